package ai

import (
	"context"

	"github.com/poiesic/advisor/core"
)

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Identical input must produce an identical vector.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Identity names the vector space this embedder produces, e.g.
	// "openai:text-embedding-3-small" or "digest:blake2b". Vectors with
	// different identities are not comparable.
	Identity() string
}

// Request is the input to one generation turn.
type Request struct {
	// History holds earlier conversation messages, oldest first.
	History []core.Message

	// Query is the current user message.
	Query string

	// Context holds the retrieved items offered to the model.
	Context []core.RetrievedItem
}

// Generator produces model text for a conversation turn.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Generate returns the complete model response for the request.
	Generate(ctx context.Context, req Request) (string, error)

	// Stream sends response fragments to fragments as they arrive and returns
	// when generation is complete. Stream never closes fragments; the caller owns
	// the channel. A canceled context stops generation and returns ctx.Err().
	Stream(ctx context.Context, req Request, fragments chan<- string) error

	// Model returns the model identity currently in use.
	Model() string
}

// Provider aggregates the embedding and generation capabilities of one backend.
type Provider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Generator returns the text generation service.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	Close() error
}
