package calltree

import (
	"fmt"

	apperrors "github.com/hpc-analysis/pkg/errors"
)

// HotPathOptions configures HotPath.
type HotPathOptions struct {
	// Start is the call path to descend from. Nil starts at the root.
	Start []int64
	// BaseMetric ranks children by its ratio of total.
	BaseMetric string
	// Threshold stops the descent at the first step below it.
	Threshold float64
}

// DefaultHotPathOptions returns the hot path defaults.
func DefaultHotPathOptions() HotPathOptions {
	return HotPathOptions{
		BaseMetric: DefaultBaseMetric,
		Threshold:  DefaultHotPathThreshold,
	}
}

// HotPath greedily descends from opts.Start, each step choosing the child
// with the highest ratio of total of opts.BaseMetric. It stops at a leaf or
// when the best child is below opts.Threshold. The result holds one node
// per visited depth. Ties go to the first child in table order.
func (t *Table) HotPath(opts HotPathOptions) (*Table, error) {
	if opts.BaseMetric == "" {
		opts.BaseMetric = DefaultBaseMetric
	}
	if !t.arena.hasBase(opts.BaseMetric) {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput,
			fmt.Sprintf("no ratio of total for %q", opts.BaseMetric), apperrors.ErrInvalidInput)
	}

	visited := map[string]struct{}{}
	current := append([]int64(nil), opts.Start...)
	for {
		visited[pathKey(current)] = struct{}{}

		var best *Node
		var bestRatio float64
		for _, child := range t.Subtree(current).AtDepth(len(current) + 1).Nodes() {
			r, ok := child.Ratios[opts.BaseMetric]
			if !ok {
				continue
			}
			if best == nil || r.OfTotal > bestRatio {
				best, bestRatio = child, r.OfTotal
			}
		}

		if best == nil || bestRatio < opts.Threshold {
			break
		}
		current = best.CallPath
	}

	return t.where(func(n *Node) bool {
		_, ok := visited[pathKey(n.CallPath)]
		return ok
	}), nil
}
