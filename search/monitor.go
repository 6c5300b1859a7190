package search

import (
	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/filter"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
// Hooks are called from the searching goroutine, in stage order.
type SearchMonitor interface {
	Start(mode Mode, query string)
	AfterFilters(filters *core.Filters, predicate *filter.Predicate)
	AfterEmbedding(spaces []core.Space)
	AfterSpaceScan(space core.Space, matches int)
	AfterFusion(candidates int)
	Finish(results []*core.ResultItem)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Mode, _ string)                            {}
func (n *noopMonitor) AfterFilters(_ *core.Filters, _ *filter.Predicate) {}
func (n *noopMonitor) AfterEmbedding(_ []core.Space)                     {}
func (n *noopMonitor) AfterSpaceScan(_ core.Space, _ int)                {}
func (n *noopMonitor) AfterFusion(_ int)                                 {}
func (n *noopMonitor) Finish(_ []*core.ResultItem)                       {}
