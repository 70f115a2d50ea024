// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/advisor/ai"
	"github.com/poiesic/advisor/catalogue"
	"github.com/poiesic/advisor/core"
	"github.com/poiesic/advisor/storage"
)

// TextFunc renders the text embedded for an item.
type TextFunc func(item core.Item) string

// Store builds, persists and serves the catalogue embedding index.
type Store struct {
	embedder ai.Embedder
	fallback ai.Embedder
	repo     storage.IndexRepository
	pool     *ants.Pool
	text     TextFunc
	policy   RetryPolicy
	progress io.Writer
	logger   *slog.Logger

	// mu serializes build and persist; readers use current.
	mu      sync.Mutex
	current atomic.Pointer[Index]
}

// Option configures a Store.
type Option func(*Store) error

// WithFallback sets the embedder used when the primary embedder fails
// permanently during a build. The whole build restarts on the fallback.
func WithFallback(embedder ai.Embedder) Option {
	return func(s *Store) error {
		s.fallback = embedder
		return nil
	}
}

// WithPoolSize sets the number of concurrent embedding calls.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(s *Store) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if s.pool != nil {
			s.pool.Release()
		}
		s.pool = pool
		return nil
	}
}

// WithTextFunc sets how an item is rendered before embedding.
// Default is catalogue.Text without knowledge.
func WithTextFunc(fn TextFunc) Option {
	return func(s *Store) error {
		if fn != nil {
			s.text = fn
		}
		return nil
	}
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(s *Store) error {
		if policy.MaxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		s.policy = policy
		return nil
	}
}

// WithProgress reports build progress to w.
func WithProgress(w io.Writer) Option {
	return func(s *Store) error {
		s.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewStore creates a Store. Call Release when done.
func NewStore(embedder ai.Embedder, repo storage.IndexRepository, opts ...Option) (*Store, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if repo == nil {
		return nil, ErrRepositoryRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	s := &Store{
		embedder: embedder,
		repo:     repo,
		pool:     pool,
		text: func(item core.Item) string {
			return catalogue.Text(item, nil)
		},
		policy: DefaultRetryPolicy(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Release()
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "embedding-store")
	return s, nil
}

// Release frees the worker pool.
func (s *Store) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// Index returns the current index snapshot.
// Returns core.ErrIndexNotReady before the first successful load or build.
func (s *Store) Index() (*Index, error) {
	idx := s.current.Load()
	if idx == nil {
		return nil, core.ErrIndexNotReady
	}
	return idx, nil
}

// Embed returns the unit vector for text, using the embedder whose identity
// matches the current index. Before any index exists the primary embedder is used.
func (s *Store) Embed(ctx context.Context, text string) ([]float32, error) {
	embedder := s.embedder
	dim := 0
	if idx := s.current.Load(); idx != nil {
		embedder = s.embedderFor(idx.Identity)
		if embedder == nil {
			return nil, fmt.Errorf("%w: no embedder available for index identity %q",
				core.ErrBackendExhausted, idx.Identity)
		}
		dim = idx.Dimension
	}

	vector, err := s.embedOne(ctx, embedder, text)
	if err != nil {
		return nil, err
	}
	if dim > 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index has %d",
			core.ErrIndexIntegrity, len(vector), dim)
	}
	return vector, nil
}

func (s *Store) embedderFor(identity string) ai.Embedder {
	if s.embedder.Identity() == identity {
		return s.embedder
	}
	if s.fallback != nil && s.fallback.Identity() == identity {
		return s.fallback
	}
	return nil
}

func (s *Store) embedOne(ctx context.Context, embedder ai.Embedder, text string) ([]float32, error) {
	var vector []float32
	err := RetryWithBackoff(ctx, s.policy, func() error {
		var err error
		vector, err = embedder.EmbedText(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: embedder %s returned an empty vector", core.ErrIndexIntegrity, embedder.Identity())
	}
	return Normalize(vector), nil
}

// LoadOrBuild returns the persisted index when it matches items and the
// primary embedder, otherwise rebuilds, persists and publishes a new one.
func (s *Store) LoadOrBuild(ctx context.Context, items []core.Item) (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	persisted, err := s.repo.LoadIndex(ctx)
	switch {
	case err == nil:
		idx := indexFromPersisted(persisted)
		if verr := s.validate(idx, items); verr != nil {
			s.logger.Warn("persisted index is stale, rebuilding", "reason", verr)
		} else {
			s.current.Store(idx)
			s.logger.Info("loaded embedding index", "identity", idx.Identity, "items", idx.Len(), "dimension", idx.Dimension)
			return idx, nil
		}
	case errors.Is(err, storage.ErrNotFound):
		s.logger.Info("no persisted embedding index, building")
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		s.logger.Warn("failed to load persisted index, rebuilding", "err", err)
	}

	return s.rebuildLocked(ctx, items)
}

// Rebuild unconditionally embeds items, persists and publishes the result.
func (s *Store) Rebuild(ctx context.Context, items []core.Item) (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked(ctx, items)
}

// Persist writes idx to the repository.
func (s *Store) Persist(ctx context.Context, idx *Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.SaveIndex(ctx, idx.persisted())
}

func (s *Store) rebuildLocked(ctx context.Context, items []core.Item) (*Index, error) {
	idx, err := s.build(ctx, items)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveIndex(ctx, idx.persisted()); err != nil {
		return nil, err
	}
	s.current.Store(idx)
	s.logger.Info("built embedding index", "identity", idx.Identity, "items", idx.Len(), "dimension", idx.Dimension)
	return idx, nil
}

// validate reports why a persisted index cannot serve items, or nil.
func (s *Store) validate(idx *Index, items []core.Item) error {
	if idx.Identity != s.embedder.Identity() {
		return fmt.Errorf("%w: identity %q, active embedder %q", core.ErrIndexIntegrity, idx.Identity, s.embedder.Identity())
	}
	if idx.Len() != len(items) {
		return fmt.Errorf("%w: %d vectors for %d items", core.ErrIndexIntegrity, idx.Len(), len(items))
	}
	for i, vec := range idx.Vectors {
		if len(vec) != idx.Dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, manifest %d", core.ErrIndexIntegrity, i, len(vec), idx.Dimension)
		}
	}
	if !slices.Equal(idx.ItemIDs, core.ItemIDs(items)) {
		return fmt.Errorf("%w: item ids differ from catalogue", core.ErrIndexIntegrity)
	}
	return nil
}

// build embeds items with the primary embedder, restarting on the fallback
// when the primary cannot serve the build.
func (s *Store) build(ctx context.Context, items []core.Item) (*Index, error) {
	idx, err := s.buildWith(ctx, s.embedder, items)
	if err == nil {
		return idx, nil
	}
	if ctx.Err() != nil || s.fallback == nil || s.fallback.Identity() == s.embedder.Identity() {
		return nil, err
	}
	if !errors.Is(err, core.ErrBackendPermanent) && !errors.Is(err, core.ErrBackendExhausted) {
		return nil, err
	}

	s.logger.Warn("primary embedder failed, rebuilding on fallback",
		"primary", s.embedder.Identity(),
		"fallback", s.fallback.Identity(),
		"err", err)
	return s.buildWith(ctx, s.fallback, items)
}

func (s *Store) buildWith(ctx context.Context, embedder ai.Embedder, items []core.Item) (*Index, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var tracker *ProgressTracker
	if s.progress != nil {
		tracker = NewProgressTracker(s.progress, len(items), max(len(items)/20, 1))
		tracker.Start()
	}

	vectors := make([][]float32, len(items))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := range items {
		wg.Add(1)
		text := s.text(items[i])
		submitErr := s.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vector, err := s.embedOne(ctx, embedder, text)
			if err != nil {
				fail(fmt.Errorf("embedding item %s: %w", items[i].ID, err))
				return
			}
			vectors[i] = vector
			if tracker != nil {
				tracker.Increment(1)
			}
		})
		if submitErr != nil {
			wg.Done()
			fail(submitErr)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tracker != nil {
		tracker.Finish()
	}

	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("%w: item %s has dimension %d, expected %d",
				core.ErrIndexIntegrity, items[i].ID, len(vec), dim)
		}
	}

	return &Index{
		Identity:  embedder.Identity(),
		Dimension: dim,
		ItemIDs:   core.ItemIDs(items),
		Vectors:   vectors,
		BuiltAt:   time.Now().UTC(),
	}, nil
}
