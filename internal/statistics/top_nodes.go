// Package statistics provides summary reports over analyzed call trees.
package statistics

import (
	"sort"

	"github.com/hpc-analysis/internal/calltree"
)

// TopNodesCalculator ranks table rows by one metric.
type TopNodesCalculator struct {
	topN   int
	metric string
	types  map[calltree.NodeType]bool
}

// TopNodesOption configures the TopNodesCalculator.
type TopNodesOption func(*TopNodesCalculator)

// WithTopN sets the number of rows to return. Zero or less returns all rows.
func WithTopN(n int) TopNodesOption {
	return func(c *TopNodesCalculator) {
		c.topN = n
	}
}

// WithMetric sets the column rows are ranked by.
func WithMetric(metric string) TopNodesOption {
	return func(c *TopNodesCalculator) {
		c.metric = metric
	}
}

// WithNodeTypes restricts the ranking to the given node types.
func WithNodeTypes(types ...calltree.NodeType) TopNodesOption {
	return func(c *TopNodesCalculator) {
		c.types = make(map[calltree.NodeType]bool, len(types))
		for _, t := range types {
			c.types[t] = true
		}
	}
}

// NewTopNodesCalculator creates a new TopNodesCalculator.
func NewTopNodesCalculator(opts ...TopNodesOption) *TopNodesCalculator {
	c := &TopNodesCalculator{
		topN:   15,
		metric: calltree.DefaultBaseMetric,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TopNodeEntry is one ranked row.
type TopNodeEntry struct {
	ID      int64             `json:"id"`
	Label   string            `json:"label"`
	Path    string            `json:"path"`
	Type    calltree.NodeType `json:"type"`
	Depth   int               `json:"depth"`
	Value   float64           `json:"value"`
	Percent float64           `json:"percent"`
}

// TopNodesResult holds the calculation result.
type TopNodesResult struct {
	Metric  string         `json:"metric"`
	Total   float64        `json:"total"`
	Entries []TopNodeEntry `json:"entries"`
}

// Calculate ranks the non-root rows of t. Percent is relative to the
// root's value of the metric; rows lacking the column are skipped.
func (c *TopNodesCalculator) Calculate(t *calltree.Table) *TopNodesResult {
	result := &TopNodesResult{
		Metric:  c.metric,
		Entries: make([]TopNodeEntry, 0),
	}

	if root := t.Root(); root != nil {
		result.Total, _ = root.Column(c.metric)
	}

	for _, n := range t.Nodes() {
		if n.IsRoot() {
			continue
		}
		if c.types != nil && !c.types[n.Type] {
			continue
		}
		v, ok := n.Column(c.metric)
		if !ok {
			continue
		}
		pct := 0.0
		if result.Total != 0 {
			pct = v / result.Total * 100
		}
		result.Entries = append(result.Entries, TopNodeEntry{
			ID:      n.ID,
			Label:   n.Label(),
			Path:    n.Path(),
			Type:    n.Type,
			Depth:   n.Depth,
			Value:   v,
			Percent: pct,
		})
	}

	// Equal values keep table order.
	sort.SliceStable(result.Entries, func(i, j int) bool {
		return result.Entries[i].Value > result.Entries[j].Value
	})

	if c.topN > 0 && len(result.Entries) > c.topN {
		result.Entries = result.Entries[:c.topN]
	}
	return result
}
