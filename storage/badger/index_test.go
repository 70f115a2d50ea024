package badger

import (
	"context"
	"testing"

	"github.com/poiesic/advisor/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexRepository_NotFound(t *testing.T) {
	indexRepo, historyRepo, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer func() {
		historyRepo.Close()
		indexRepo.Close()
		backend.Close()
	}()

	_, err = indexRepo.LoadIndex(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIndexRepository_RoundTrip(t *testing.T) {
	indexRepo, historyRepo, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer func() {
		historyRepo.Close()
		indexRepo.Close()
		backend.Close()
	}()
	ctx := context.Background()

	index := &storage.PersistedIndex{
		Manifest: storage.IndexManifest{
			Identity:  "openai:embeddinggemma",
			Dimension: 2,
			ItemIDs:   []string{"A", "B"},
		},
		Vectors: [][]float32{{1, 0}, {0.6, 0.8}},
	}
	require.NoError(t, indexRepo.SaveIndex(ctx, index))

	loaded, err := indexRepo.LoadIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, index.Vectors, loaded.Vectors)
	assert.Equal(t, "openai:embeddinggemma", loaded.Manifest.Identity)
	assert.Equal(t, 2, loaded.Manifest.Dimension)
	assert.Equal(t, []string{"A", "B"}, loaded.Manifest.ItemIDs)
	assert.False(t, loaded.Manifest.BuiltAt.IsZero())

	// A second save replaces the first.
	index.Manifest.ItemIDs = []string{"C"}
	index.Vectors = [][]float32{{0, 1}}
	require.NoError(t, indexRepo.SaveIndex(ctx, index))

	loaded, err = indexRepo.LoadIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, loaded.Manifest.ItemIDs)
	assert.Len(t, loaded.Vectors, 1)
}

func TestIndexRepository_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	repo := NewIndexRepository(backend)
	require.NoError(t, repo.SaveIndex(ctx, &storage.PersistedIndex{
		Manifest: storage.IndexManifest{Identity: "x", Dimension: 1, ItemIDs: []string{"A"}},
		Vectors:  [][]float32{{1}},
	}))
	require.NoError(t, backend.Close())

	backend, err = OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	loaded, err := NewIndexRepository(backend).LoadIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}}, loaded.Vectors)
}

func TestIndexRepository_CanceledContext(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewIndexRepository(backend).LoadIndex(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
