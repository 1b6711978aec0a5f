package statistics

import (
	"sort"
	"strings"

	"github.com/hpc-analysis/internal/calltree"
)

// ProcedureStatsCalculator aggregates procedure frames by procedure name.
type ProcedureStatsCalculator struct {
	maxProcedures int
	inclusive     string
	exclusive     string
}

// ProcedureStatsOption configures the ProcedureStatsCalculator.
type ProcedureStatsOption func(*ProcedureStatsCalculator)

// WithMaxProcedures sets the maximum number of procedures to return.
func WithMaxProcedures(n int) ProcedureStatsOption {
	return func(c *ProcedureStatsCalculator) {
		c.maxProcedures = n
	}
}

// WithInclusiveMetric sets the inclusive metric and derives the exclusive
// partner by replacing a trailing "(I)" with "(E)".
func WithInclusiveMetric(metric string) ProcedureStatsOption {
	return func(c *ProcedureStatsCalculator) {
		c.inclusive = metric
		c.exclusive = ExclusivePartner(metric)
	}
}

// WithExclusiveMetric overrides the exclusive metric.
func WithExclusiveMetric(metric string) ProcedureStatsOption {
	return func(c *ProcedureStatsCalculator) {
		c.exclusive = metric
	}
}

// NewProcedureStatsCalculator creates a new ProcedureStatsCalculator.
func NewProcedureStatsCalculator(opts ...ProcedureStatsOption) *ProcedureStatsCalculator {
	c := &ProcedureStatsCalculator{
		maxProcedures: 0, // 0 means no limit
		inclusive:     calltree.DefaultBaseMetric,
		exclusive:     ExclusivePartner(calltree.DefaultBaseMetric),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExclusivePartner maps "X (I)" to "X (E)". Other names are returned as is.
func ExclusivePartner(metric string) string {
	if strings.HasSuffix(metric, "(I)") {
		return strings.TrimSuffix(metric, "(I)") + "(E)"
	}
	return metric
}

// ProcedureEntry summarizes every frame of one procedure.
type ProcedureEntry struct {
	Procedure string  `json:"procedure"`
	Module    string  `json:"module,omitempty"`
	Frames    int     `json:"frames"`
	Inclusive float64 `json:"inclusive"`
	Exclusive float64 `json:"exclusive"`
	Percent   float64 `json:"percent"`
}

// ProcedureStatsResult holds the calculation result.
type ProcedureStatsResult struct {
	InclusiveMetric string           `json:"inclusiveMetric"`
	ExclusiveMetric string           `json:"exclusiveMetric"`
	TotalExclusive  float64          `json:"totalExclusive"`
	Procedures      []ProcedureEntry `json:"procedures"`
}

// Calculate aggregates the procedure frames of t. Exclusive values are
// summed over all frames. Inclusive values are summed over outermost frames
// only so recursion is not counted twice. Percent is each procedure's share
// of the summed exclusive values.
func (c *ProcedureStatsCalculator) Calculate(t *calltree.Table) *ProcedureStatsResult {
	result := &ProcedureStatsResult{
		InclusiveMetric: c.inclusive,
		ExclusiveMetric: c.exclusive,
		Procedures:      make([]ProcedureEntry, 0),
	}

	byName := make(map[string]*ProcedureEntry)
	var order []string

	for _, n := range t.Nodes() {
		if n.Type != calltree.NodeProcedureFrame {
			continue
		}
		name := n.Location.Procedure
		entry, ok := byName[name]
		if !ok {
			entry = &ProcedureEntry{Procedure: name, Module: n.Location.ModuleName()}
			byName[name] = entry
			order = append(order, name)
		}
		entry.Frames++

		if v, ok := n.Value(c.exclusive); ok {
			entry.Exclusive += v
			result.TotalExclusive += v
		}
		if v, ok := n.Value(c.inclusive); ok && !c.nested(t, n) {
			entry.Inclusive += v
		}
	}

	for _, name := range order {
		entry := byName[name]
		if result.TotalExclusive > 0 {
			entry.Percent = entry.Exclusive / result.TotalExclusive * 100
		}
		result.Procedures = append(result.Procedures, *entry)
	}

	sort.SliceStable(result.Procedures, func(i, j int) bool {
		return result.Procedures[i].Exclusive > result.Procedures[j].Exclusive
	})

	if c.maxProcedures > 0 && len(result.Procedures) > c.maxProcedures {
		result.Procedures = result.Procedures[:c.maxProcedures]
	}
	return result
}

// nested reports whether a frame of the same procedure encloses n.
func (c *ProcedureStatsCalculator) nested(t *calltree.Table, n *calltree.Node) bool {
	for p, ok := t.Parent(n); ok && !p.IsRoot(); p, ok = t.Parent(p) {
		if p.Type == calltree.NodeProcedureFrame && p.Location.Procedure == n.Location.Procedure {
			return true
		}
	}
	return false
}
