// Package orchestrator drives one advisory turn end to end: constraint
// extraction, hybrid retrieval, generation, interpretation and merge.
//
// Respond runs a turn as a single request. Stream runs the same turn but
// delivers generation fragments as they arrive over a bounded channel of
// Events:
//
//	metadata -> chunk* -> complete
//	metadata -> chunk* -> error
//
// Canceling the context ends the stream without a complete event; the
// final interpretation is skipped. Input errors are returned synchronously.
// Every other failure during a turn becomes an apologetic reply with no
// products.
package orchestrator
