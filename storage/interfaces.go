package storage

import (
	"context"
	"time"

	"github.com/poiesic/advisor/core"
)

// IndexManifest describes a persisted embedding index.
type IndexManifest struct {
	// Identity names the embedder that produced the vectors.
	Identity string
	// Dimension is the length of every vector.
	Dimension int
	// ItemIDs lists item identifiers in vector order.
	ItemIDs []string
	// BuiltAt records when the index was built.
	BuiltAt time.Time
}

// PersistedIndex is the stored form of an embedding index.
type PersistedIndex struct {
	Manifest IndexManifest
	Vectors  [][]float32
}

type IndexRepository interface {
	// LoadIndex reads the persisted index.
	// Returns ErrNotFound if the vectors or the manifest are absent.
	LoadIndex(ctx context.Context) (*PersistedIndex, error)

	// SaveIndex replaces the persisted index. Vectors and manifest are written
	// in a single transaction.
	SaveIndex(ctx context.Context, index *PersistedIndex) error

	// Close releases resources held by the repository.
	Close() error
}

type HistoryRepository interface {
	// AppendMessages stores messages in order.
	// Generates IDs for messages without one and sets Timestamp if zero.
	// Returns the messages with generated fields populated.
	AppendMessages(ctx context.Context, messages ...*core.Message) ([]*core.Message, error)

	// RecentMessages returns up to limit most recent messages of a session,
	// oldest first. limit <= 0 returns every message.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]*core.Message, error)

	// Close releases resources held by the repository.
	Close() error
}
