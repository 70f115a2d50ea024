// Package interpret recovers structured recommendations from generative model
// output.
//
// Model text is tried against an ordered pipeline of named stages. Each stage
// either returns a verdict or passes to the next:
//
//  1. strict: the text is a complete JSON object and decodes as is
//  2. salvage: the outermost {...} span decodes, directly or after repair
//  3. heuristic: reply, reasoning and (sku, name, rationale) fields are pulled
//     out with patterns
//  4. conversational: prose is classified as a question, information or a
//     recommendation naming context items
//  5. raw: undecodable structured text becomes the reply
//
// A fallback post-stage then fills in the top context items when a reply
// carries no recommendations, unless the reply is a question, explicitly
// denies having matches, or a stage settled the result.
//
// Recommendations always refer to items in the supplied context, at most once
// each.
package interpret
