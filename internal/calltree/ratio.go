package calltree

import (
	apperrors "github.com/hpc-analysis/pkg/errors"
	"github.com/hpc-analysis/pkg/utils"
)

// RatioCalculator adds "ratio of total" and "ratio of parent" columns to a
// built table.
type RatioCalculator struct {
	bases  []string
	logger utils.Logger
}

// NewRatioCalculator creates a calculator for the given base metrics.
// Without bases it uses DefaultBaseMetric.
func NewRatioCalculator(bases ...string) *RatioCalculator {
	if len(bases) == 0 {
		bases = []string{DefaultBaseMetric}
	}
	return &RatioCalculator{bases: bases, logger: &utils.NullLogger{}}
}

// WithLogger sets the logger.
func (c *RatioCalculator) WithLogger(logger utils.Logger) *RatioCalculator {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Compute sets the ratios of every node of t for each base metric.
//
// The ratio of parent divides a node's value by the value of the nearest
// ancestor whose value is at least as large. Ancestors with a smaller value,
// ancestors missing from the table and ancestors without the metric are
// climbed past.
func (c *RatioCalculator) Compute(t *Table) error {
	root := t.Root()
	if root == nil {
		return &apperrors.AggregationConsistencyError{Metric: c.bases[0]}
	}

	for _, base := range c.bases {
		total, ok := root.Metrics[base]
		if !ok {
			return &apperrors.AggregationConsistencyError{Metric: base, CallPath: root.CallPath}
		}

		// Resolved ancestor values, local to one base metric.
		memo := make(map[string]float64)

		for _, n := range t.arena.nodes {
			v, ok := n.Metrics[base]
			if !ok {
				continue
			}
			if n.Ratios == nil {
				n.Ratios = make(map[string]Ratio)
			}
			if n.IsRoot() {
				n.Ratios[base] = Ratio{OfTotal: 1, OfParent: 1}
				continue
			}

			parent, err := c.ancestorValue(t, n, base, v, memo)
			if err != nil {
				return err
			}
			n.Ratios[base] = Ratio{
				OfTotal:  divide(v, total),
				OfParent: divide(v, parent),
			}
		}

		if !t.arena.hasBase(base) {
			t.arena.bases = append(t.arena.bases, base)
		}
		c.logger.Debug("Computed ratios of %q over %d nodes (memo %d)", base, len(t.arena.nodes), len(memo))
	}
	return nil
}

func (c *RatioCalculator) ancestorValue(t *Table, n *Node, base string, v float64, memo map[string]float64) (float64, error) {
	path := n.CallPath
	for len(path) > 0 {
		path = path[:len(path)-1]
		key := pathKey(path)

		if cached, ok := memo[key]; ok {
			if cached >= v {
				return cached, nil
			}
			continue
		}

		idx, ok := t.arena.byPath[key]
		if !ok {
			c.logger.Debug("No node for call path %v, climbing further", path)
			continue
		}
		value, ok := t.arena.nodes[idx].Metrics[base]
		if !ok {
			continue
		}
		memo[key] = value
		if value >= v {
			return value, nil
		}
	}

	return 0, &apperrors.AggregationConsistencyError{
		Metric:   base,
		CallPath: append([]int64(nil), n.CallPath...),
		Value:    v,
	}
}

// divide returns a / b, or 0 when b is zero.
func divide(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
