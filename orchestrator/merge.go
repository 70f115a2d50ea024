package orchestrator

import (
	"fmt"
	"log/slog"

	"github.com/poiesic/advisor/core"
)

// KnowledgeSource looks up enrichment records by item id.
// *catalogue.Catalogue satisfies it.
type KnowledgeSource interface {
	Knowledge(id string) *core.Knowledge
}

// Merge returns the retrieved items the interpreter recommended, in
// recommendation order, each with its rationale as the explanation.
// Recommendations for items that were not retrieved are dropped and logged.
// The input items are not modified.
func Merge(items []core.RetrievedItem, result core.InterpretedResult, logger *slog.Logger) []core.RetrievedItem {
	if len(result.Recommendations) == 0 {
		return []core.RetrievedItem{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	byID := make(map[string]core.RetrievedItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	merged := make([]core.RetrievedItem, 0, len(result.Recommendations))
	for _, rec := range result.Recommendations {
		item, ok := byID[rec.ItemID]
		if !ok {
			logger.Warn("skipping recommendation", "err", fmt.Errorf("%w: %s", core.ErrMergeMismatch, rec.ItemID))
			continue
		}
		item.Explanation = rec.Rationale
		merged = append(merged, item)
	}
	return merged
}

// enrich returns copies of items with their knowledge records attached.
func enrich(items []core.RetrievedItem, source KnowledgeSource) []core.RetrievedItem {
	if source == nil {
		return items
	}
	out := make([]core.RetrievedItem, len(items))
	for i, item := range items {
		if kb := source.Knowledge(item.ID); kb != nil {
			item.Knowledge = kb
		}
		out[i] = item
	}
	return out
}
