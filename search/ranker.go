package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/advisor/core"
	"github.com/poiesic/advisor/embedding"
	"github.com/poiesic/advisor/keyword"
)

// DefaultTopK is used when neither the caller nor WithTopK supplies a limit.
const DefaultTopK = 5

// VectorSource supplies query vectors and the current catalogue index.
// *embedding.Store satisfies it.
type VectorSource interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Index() (*embedding.Index, error)
}

// Result is the outcome of one search.
type Result struct {
	Items          []core.RetrievedItem
	Latency        time.Duration
	AppliedFilters map[string]any
}

// Ranker scores catalogue items against a query.
// It is safe for concurrent use; it holds no per-query state.
type Ranker struct {
	source   VectorSource
	items    []core.Item
	keywords *keyword.Index
	hybrid   bool
	topK     int
	logger   *slog.Logger
}

// Option configures a Ranker.
type Option func(*Ranker) error

// WithHybrid enables or disables the keyword bonus.
// Default is true.
func WithHybrid(enabled bool) Option {
	return func(r *Ranker) error {
		r.hybrid = enabled
		return nil
	}
}

// WithTopK sets the default result limit.
// Default is DefaultTopK.
func WithTopK(k int) Option {
	return func(r *Ranker) error {
		if k <= 0 {
			return fmt.Errorf("%w: topK must be positive, got %d", core.ErrInput, k)
		}
		r.topK = k
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Ranker) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRanker creates a Ranker over items, which must be in the same order the
// index was built from. The keyword index is built once here.
func NewRanker(source VectorSource, items []core.Item, opts ...Option) (*Ranker, error) {
	if source == nil {
		return nil, ErrVectorSourceRequired
	}

	r := &Ranker{
		source:   source,
		items:    items,
		keywords: keyword.Build(items),
		hybrid:   true,
		topK:     DefaultTopK,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "ranker")
	r.logger.Debug("keyword index built", "items", len(items), "tokens", r.keywords.Tokens())
	return r, nil
}

// Search ranks the catalogue for query. topK <= 0 uses the configured default.
func (r *Ranker) Search(ctx context.Context, query string, constraints Constraints, topK int) (*Result, error) {
	return r.SearchWithMonitor(ctx, query, constraints, topK, nil)
}

// SearchWithMonitor is Search with hooks for observing each step.
// A nil monitor is allowed.
func (r *Ranker) SearchWithMonitor(ctx context.Context, query string, constraints Constraints, topK int, monitor SearchMonitor) (*Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", core.ErrInput)
	}
	if topK <= 0 {
		topK = r.topK
	}

	idx, err := r.source.Index()
	if err != nil {
		return nil, err
	}
	if idx.Len() != len(r.items) {
		return nil, fmt.Errorf("%w: index has %d vectors for %d items", core.ErrIndexIntegrity, idx.Len(), len(r.items))
	}
	monitor.Start(query, constraints)

	queryVector, err := r.source.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	monitor.AfterQueryEmbedding(len(queryVector))

	var queryTokens []string
	if r.hybrid {
		queryTokens = keyword.Tokenize(query)
	}

	scored := make([]core.RetrievedItem, 0, len(r.items))
	for i, item := range r.items {
		if idx.ItemIDs[i] != item.ID {
			return nil, fmt.Errorf("%w: index position %d holds %s, catalogue has %s",
				core.ErrIndexIntegrity, i, idx.ItemIDs[i], item.ID)
		}
		if !constraints.Allows(item) {
			monitor.Filtered(item)
			continue
		}

		similarity := embedding.Dot(queryVector, idx.Vectors[i])
		var bonus float32
		var matched []string
		if r.hybrid {
			bonus, matched = r.keywords.Score(queryTokens, item.ID)
		}

		retrieved := core.RetrievedItem{
			Item:            item,
			Score:           similarity + bonus,
			MatchedKeywords: matched,
		}
		monitor.Scored(retrieved, similarity, bonus)
		scored = append(scored, retrieved)
	}

	slices.SortStableFunc(scored, func(a, b core.RetrievedItem) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	monitor.Finish(scored)

	latency := time.Since(start)
	r.logger.Debug("search complete",
		"query", query,
		"candidates", len(r.items),
		"results", len(scored),
		"latency", latency)

	return &Result{
		Items:          scored,
		Latency:        latency,
		AppliedFilters: constraints.Applied(),
	}, nil
}
