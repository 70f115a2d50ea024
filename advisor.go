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

package advisor

import (
	"context"
	"io"
	"log/slog"

	"github.com/poiesic/advisor/ai"
	"github.com/poiesic/advisor/ai/offline"
	"github.com/poiesic/advisor/ai/openai"
	"github.com/poiesic/advisor/catalogue"
	"github.com/poiesic/advisor/config"
	"github.com/poiesic/advisor/embedding"
	"github.com/poiesic/advisor/interpret"
	"github.com/poiesic/advisor/orchestrator"
	"github.com/poiesic/advisor/search"
	"github.com/poiesic/advisor/storage"
	"github.com/poiesic/advisor/storage/badger"
)

// Advisor owns every long-lived component of a running advisor: the
// catalogue, the badger backend and its repositories, the AI provider, the
// embedding store and the orchestrator built on top of them.
type Advisor struct {
	catalogue    *catalogue.Catalogue
	backend      *badger.Backend
	indexRepo    storage.IndexRepository
	historyRepo  storage.HistoryRepository
	provider     ai.Provider
	store        *embedding.Store
	ranker       *search.Ranker
	interpreter  *interpret.Interpreter
	orchestrator *orchestrator.Orchestrator
	logger       *slog.Logger
}

// Option configures an Advisor.
type Option func(*options)

type options struct {
	provider ai.Provider
	progress io.Writer
	logger   *slog.Logger
}

// WithProvider supplies the AI provider instead of building one from the
// configuration. The Advisor takes ownership and closes it.
func WithProvider(provider ai.Provider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithProgress reports index build progress to w.
func WithProgress(w io.Writer) Option {
	return func(o *options) {
		o.progress = w
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New assembles an Advisor from cfg. The embedding index is not built until
// EnsureIndex is called; until then retrieval fails with core.ErrIndexNotReady.
func New(cfg *config.Config, opts ...Option) (*Advisor, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if cfg == nil {
		cfg = config.Default()
	}

	cat, err := catalogue.Open(cfg.CataloguePath, cfg.KnowledgePath)
	if err != nil {
		return nil, err
	}
	o.logger.Info("catalogue loaded", "items", cat.Len(), "knowledge", cat.KnowledgeCount())

	backend, err := badger.OpenBackend(cfg.DataDir, cfg.DataDir == "")
	if err != nil {
		return nil, err
	}

	historyRepo, err := badger.NewHistoryRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	indexRepo := badger.NewIndexRepository(backend)

	provider := o.provider
	if provider == nil {
		provider, err = newProvider(&cfg.AI)
		if err != nil {
			indexRepo.Close()
			historyRepo.Close()
			backend.Close()
			return nil, err
		}
	}

	storeOpts := []embedding.Option{
		embedding.WithTextFunc(cat.Text),
		embedding.WithRetryPolicy(cfg.RetryPolicy()),
		embedding.WithLogger(o.logger),
	}
	if cfg.PoolSize > 0 {
		storeOpts = append(storeOpts, embedding.WithPoolSize(cfg.PoolSize))
	}
	if o.progress != nil {
		storeOpts = append(storeOpts, embedding.WithProgress(o.progress))
	}
	if cfg.AI.Provider != ai.ProviderOffline {
		storeOpts = append(storeOpts, embedding.WithFallback(offline.NewEmbedder(cfg.AI.OfflineDimension)))
	}

	a := &Advisor{
		catalogue:   cat,
		backend:     backend,
		indexRepo:   indexRepo,
		historyRepo: historyRepo,
		provider:    provider,
		logger:      o.logger,
	}

	a.store, err = embedding.NewStore(provider.Embedder(), indexRepo, storeOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.ranker, err = search.NewRanker(a.store, cat.Items,
		search.WithHybrid(cfg.Retrieval.HybridSearch),
		search.WithTopK(cfg.Retrieval.TopK),
		search.WithLogger(o.logger),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.interpreter = interpret.New(
		interpret.WithPolicy(cfg.Interpreter),
		interpret.WithLogger(o.logger),
	)

	a.orchestrator, err = orchestrator.New(a.ranker, a.interpreter, provider.Generator(),
		orchestrator.WithHistory(historyRepo),
		orchestrator.WithKnowledge(cat),
		orchestrator.WithTopK(cfg.Retrieval.TopK),
		orchestrator.WithMaxHistoryMessages(cfg.History.MaxMessages),
		orchestrator.WithStreamBuffer(cfg.StreamBuffer),
		orchestrator.WithLogger(o.logger),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newProvider(cfg *ai.Config) (ai.Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Provider == ai.ProviderOffline {
		return offline.NewProvider(cfg)
	}
	return openai.NewProvider(cfg)
}

// EnsureIndex loads the persisted embedding index, or builds and persists a
// new one when it is missing or stale. rebuild forces a fresh build.
func (a *Advisor) EnsureIndex(ctx context.Context, rebuild bool) (*embedding.Index, error) {
	if rebuild {
		return a.store.Rebuild(ctx, a.catalogue.Items)
	}
	return a.store.LoadOrBuild(ctx, a.catalogue.Items)
}

// Catalogue returns the loaded catalogue.
func (a *Advisor) Catalogue() *catalogue.Catalogue {
	return a.catalogue
}

// Ranker returns the hybrid ranker.
func (a *Advisor) Ranker() *search.Ranker {
	return a.ranker
}

// Interpreter returns the response interpreter.
func (a *Advisor) Interpreter() *interpret.Interpreter {
	return a.interpreter
}

// Orchestrator returns the conversation orchestrator.
func (a *Advisor) Orchestrator() *orchestrator.Orchestrator {
	return a.orchestrator
}

// HistoryRepository returns the conversation history store.
func (a *Advisor) HistoryRepository() storage.HistoryRepository {
	return a.historyRepo
}

// Close releases every component in reverse order of construction. All
// components are closed even when one fails; the first error is returned.
func (a *Advisor) Close() error {
	var first error
	record := func(what string, err error) {
		if err == nil {
			return
		}
		a.logger.Error("error closing "+what, "err", err)
		if first == nil {
			first = err
		}
	}

	if a.store != nil {
		a.store.Release()
	}
	record("AI provider", a.provider.Close())
	record("history repository", a.historyRepo.Close())
	record("index repository", a.indexRepo.Close())
	record("backend storage", a.backend.Close())
	return first
}
