// Package offline provides a deterministic ai.Provider that needs no network.
//
// The embedder derives vectors from a BLAKE2b digest of the text, so identical
// text always maps to the identical unit vector. These vectors carry no
// semantic meaning and are not comparable with vectors from a live backend;
// the embedder reports a distinct Identity so stores can refuse to mix them.
//
// The generator recommends the highest ranked context items in a fixed
// template, which keeps the whole retrieval and interpretation pipeline
// exercised in tests and in environments without credentials.
package offline
