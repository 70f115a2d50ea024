package embedding

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/advisor/ai/mock"
	"github.com/poiesic/advisor/ai/offline"
	"github.com/poiesic/advisor/core"
	"github.com/poiesic/advisor/storage"
	"github.com/poiesic/advisor/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func testItems(n int) []core.Item {
	items := make([]core.Item, n)
	for i := range items {
		items[i] = core.Item{ID: fmt.Sprintf("SKU-%d", i), Name: fmt.Sprintf("Laptop %d", i), Price: float64(1000 + i)}
	}
	return items
}

func newTestStore(t *testing.T, embedder *mock.MockEmbedder, opts ...Option) (*Store, storage.IndexRepository) {
	t.Helper()
	backend, err := badger.OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	repo := badger.NewIndexRepository(backend)
	opts = append([]Option{WithRetryPolicy(fastRetry), WithPoolSize(4)}, opts...)
	store, err := NewStore(embedder, repo, opts...)
	require.NoError(t, err)
	t.Cleanup(store.Release)
	return store, repo
}

func TestStore_IndexNotReady(t *testing.T) {
	store, _ := newTestStore(t, mock.NewMockEmbedder())
	_, err := store.Index()
	assert.ErrorIs(t, err, core.ErrIndexNotReady)
}

func TestStore_BuildPersistAndReload(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	store, repo := newTestStore(t, embedder)
	ctx := context.Background()
	items := testItems(10)

	idx, err := store.LoadOrBuild(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 10, idx.Len())
	assert.Equal(t, mock.DefaultDimension, idx.Dimension)
	assert.Equal(t, "mock:fnv", idx.Identity)
	assert.Equal(t, core.ItemIDs(items), idx.ItemIDs)
	for _, vec := range idx.Vectors {
		assert.InDelta(t, 1.0, Dot(vec, vec), 1e-4)
	}

	persisted, err := repo.LoadIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, idx.ItemIDs, persisted.Manifest.ItemIDs)

	// Loading again with the same catalogue reuses the persisted vectors.
	calls := embedder.CallCount()
	again, err := NewStore(embedder, repo, WithRetryPolicy(fastRetry))
	require.NoError(t, err)
	defer again.Release()

	reloaded, err := again.LoadOrBuild(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, calls, embedder.CallCount())
	assert.Equal(t, idx.Vectors, reloaded.Vectors)
}

func TestStore_RebuildsOnMismatch(t *testing.T) {
	ctx := context.Background()
	items := testItems(4)

	tests := []struct {
		name   string
		mutate func(p *storage.PersistedIndex)
	}{
		{"count", func(p *storage.PersistedIndex) {
			p.Vectors = p.Vectors[:3]
			p.Manifest.ItemIDs = p.Manifest.ItemIDs[:3]
		}},
		{"order", func(p *storage.PersistedIndex) {
			p.Manifest.ItemIDs[0], p.Manifest.ItemIDs[1] = p.Manifest.ItemIDs[1], p.Manifest.ItemIDs[0]
		}},
		{"dimension", func(p *storage.PersistedIndex) {
			p.Manifest.Dimension = 3
		}},
		{"identity", func(p *storage.PersistedIndex) {
			p.Manifest.Identity = "openai:other-model"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := mock.NewMockEmbedder()
			store, repo := newTestStore(t, embedder)

			_, err := store.LoadOrBuild(ctx, items)
			require.NoError(t, err)

			persisted, err := repo.LoadIndex(ctx)
			require.NoError(t, err)
			tt.mutate(persisted)
			require.NoError(t, repo.SaveIndex(ctx, persisted))

			before := embedder.CallCount()
			idx, err := store.LoadOrBuild(ctx, items)
			require.NoError(t, err)
			assert.Greater(t, embedder.CallCount(), before, "expected a rebuild")
			assert.Equal(t, core.ItemIDs(items), idx.ItemIDs)
			assert.Equal(t, "mock:fnv", idx.Identity)
		})
	}
}

func TestStore_PermanentFailureRestartsOnFallback(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.IdentityValue = "openai:embeddinggemma"
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("%w: unauthenticated", core.ErrBackendPermanent)
	}
	fallback := offline.NewEmbedder(32)
	store, _ := newTestStore(t, embedder, WithFallback(fallback))
	ctx := context.Background()

	idx, err := store.LoadOrBuild(ctx, testItems(5))
	require.NoError(t, err)
	assert.Equal(t, fallback.Identity(), idx.Identity)
	assert.Equal(t, 32, idx.Dimension)

	// Queries use the embedder that matches the index.
	vec, err := store.Embed(ctx, "gaming laptop")
	require.NoError(t, err)
	assert.Len(t, vec, 32)
}

func TestStore_PermanentFailureWithoutFallback(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("%w: unauthenticated", core.ErrBackendPermanent)
	}
	store, _ := newTestStore(t, embedder)

	_, err := store.LoadOrBuild(context.Background(), testItems(3))
	assert.ErrorIs(t, err, core.ErrBackendPermanent)
	_, err = store.Index()
	assert.ErrorIs(t, err, core.ErrIndexNotReady)
}

func TestStore_DimensionMismatchIsIntegrityError(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if len(text)%2 == 0 {
			return []float32{1, 0}, nil
		}
		return []float32{1, 0, 0}, nil
	}
	store, _ := newTestStore(t, embedder, WithTextFunc(func(item core.Item) string { return item.ID }))

	items := []core.Item{{ID: "AB"}, {ID: "ABC"}}
	_, err := store.LoadOrBuild(context.Background(), items)
	assert.ErrorIs(t, err, core.ErrIndexIntegrity)
}

func TestStore_EmbedRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if calls.Add(1) < 3 {
			return nil, fmt.Errorf("%w: 503", core.ErrBackendTransient)
		}
		return []float32{3, 4}, nil
	}
	store, _ := newTestStore(t, embedder)

	vec, err := store.Embed(context.Background(), "q")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, vec, 1e-6)
	assert.Equal(t, int32(3), calls.Load())
}

func TestStore_EmbedExhausted(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("%w: 429", core.ErrBackendQuota)
	}
	store, _ := newTestStore(t, embedder)

	_, err := store.Embed(context.Background(), "q")
	assert.ErrorIs(t, err, core.ErrBackendExhausted)
	assert.ErrorIs(t, err, core.ErrBackendQuota)
}

func TestStore_EmbedRefusesForeignIdentity(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	store, _ := newTestStore(t, embedder)
	ctx := context.Background()
	items := testItems(2)

	_, err := store.LoadOrBuild(ctx, items)
	require.NoError(t, err)

	// Simulate an index produced by an embedder the store does not have.
	idx, err := store.Index()
	require.NoError(t, err)
	foreign := *idx
	foreign.Identity = "openai:unknown"
	store.current.Store(&foreign)

	_, err = store.Embed(ctx, "q")
	assert.ErrorIs(t, err, core.ErrBackendExhausted)
}

func TestStore_Progress(t *testing.T) {
	var buf bytes.Buffer
	store, _ := newTestStore(t, mock.NewMockEmbedder(), WithProgress(&buf))

	_, err := store.Rebuild(context.Background(), testItems(20))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "20/20")
}

func TestStore_CanceledBuildKeepsPreviousIndex(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	store, _ := newTestStore(t, embedder)
	items := testItems(3)

	first, err := store.LoadOrBuild(context.Background(), items)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Rebuild(ctx, testItems(6))
	assert.ErrorIs(t, err, context.Canceled)

	current, err := store.Index()
	require.NoError(t, err)
	assert.Same(t, first, current)
}

func TestNewStore_Validation(t *testing.T) {
	_, err := NewStore(nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewStore(mock.NewMockEmbedder(), nil)
	assert.ErrorIs(t, err, ErrRepositoryRequired)
}

func TestStore_RebuildIsDeterministic(t *testing.T) {
	backend, err := badger.OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	repo := badger.NewIndexRepository(backend)
	store, err := NewStore(offline.NewEmbedder(64), repo, WithPoolSize(4))
	require.NoError(t, err)
	defer store.Release()

	ctx := context.Background()
	items := testItems(12)

	_, err = store.Rebuild(ctx, items)
	require.NoError(t, err)
	first, err := repo.LoadIndex(ctx)
	require.NoError(t, err)

	_, err = store.Rebuild(ctx, items)
	require.NoError(t, err)
	second, err := repo.LoadIndex(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Manifest.ItemIDs, second.Manifest.ItemIDs)
	require.Len(t, second.Vectors, len(items))
	assert.Equal(t, first.Vectors, second.Vectors)
}
