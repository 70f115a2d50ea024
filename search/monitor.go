package search

import (
	"github.com/poiesic/advisor/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, constraints Constraints)
	AfterQueryEmbedding(dimension int)
	Filtered(item core.Item)
	Scored(item core.RetrievedItem, similarity, bonus float32)
	Finish(results []core.RetrievedItem)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ Constraints) {}
func (n *noopMonitor) AfterQueryEmbedding(_ int) {}
func (n *noopMonitor) Filtered(_ core.Item) {}
func (n *noopMonitor) Scored(_ core.RetrievedItem, _ float32, _ float32) {}
func (n *noopMonitor) Finish(_ []core.RetrievedItem) {}
