package export

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/google/pprof/profile"

	"github.com/hpc-analysis/internal/calltree"
)

// PprofExporter writes the table as a gzipped pprof profile. Every non-root
// node becomes one sample whose stack is its call path and whose values are
// the node's exclusive metrics, so pprof sums them back into inclusive
// costs.
type PprofExporter struct{}

type pprofBuilder struct {
	table     *calltree.Table
	prof      *profile.Profile
	locations map[int64]*profile.Location
	functions map[string]*profile.Function
}

// Export writes t as a pprof profile to w.
func (e *PprofExporter) Export(w io.Writer, t *calltree.Table) error {
	metrics := SampleMetrics(t)
	if len(metrics) == 0 {
		return fmt.Errorf("table %q has no metrics", t.Name())
	}

	b := &pprofBuilder{
		table:     t,
		prof:      &profile.Profile{Comments: []string{"profile: " + t.Name()}},
		locations: make(map[int64]*profile.Location),
		functions: make(map[string]*profile.Function),
	}
	for _, m := range metrics {
		b.prof.SampleType = append(b.prof.SampleType, &profile.ValueType{Type: m, Unit: unitOf(m)})
	}
	b.prof.DefaultSampleType = metrics[0]

	for _, n := range t.Nodes() {
		if n.IsRoot() {
			continue
		}
		sample := &profile.Sample{
			Value: make([]int64, len(metrics)),
			Label: map[string][]string{"type": {n.Type.String()}},
		}
		for i, m := range metrics {
			v, _ := n.Value(m)
			sample.Value[i] = int64(math.Round(v))
		}
		for cur, ok := n, true; ok && !cur.IsRoot(); cur, ok = t.Parent(cur) {
			sample.Location = append(sample.Location, b.location(cur))
		}
		b.prof.Sample = append(b.prof.Sample, sample)
	}

	if err := b.prof.CheckValid(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	return b.prof.Write(w)
}

// SampleMetrics returns the metrics written as pprof sample values: the
// exclusive metrics, or every metric when the table has none.
func SampleMetrics(t *calltree.Table) []string {
	all := t.MetricNames()
	var exclusive []string
	for _, m := range all {
		if strings.HasSuffix(m, "(E)") {
			exclusive = append(exclusive, m)
		}
	}
	if len(exclusive) > 0 {
		return exclusive
	}
	return all
}

func unitOf(metric string) string {
	switch {
	case strings.Contains(metric, "(usec)"):
		return "microseconds"
	case strings.Contains(metric, "(nsec)"):
		return "nanoseconds"
	default:
		return "count"
	}
}

func (b *pprofBuilder) location(n *calltree.Node) *profile.Location {
	if loc, ok := b.locations[n.ID]; ok {
		return loc
	}
	loc := &profile.Location{
		ID:   uint64(len(b.prof.Location) + 1),
		Line: []profile.Line{{Function: b.function(n), Line: int64(n.Location.Line)}},
	}
	b.prof.Location = append(b.prof.Location, loc)
	b.locations[n.ID] = loc
	return loc
}

func (b *pprofBuilder) function(n *calltree.Node) *profile.Function {
	name := n.Label()
	if n.Type == calltree.NodeProcedureFrame && n.Location.Procedure != "" {
		name = n.Location.Procedure
	}
	key := name + "\x00" + n.Location.File
	if fn, ok := b.functions[key]; ok {
		return fn
	}
	fn := &profile.Function{
		ID:         uint64(len(b.prof.Function) + 1),
		Name:       name,
		SystemName: n.Label(),
		Filename:   n.Location.File,
	}
	b.prof.Function = append(b.prof.Function, fn)
	b.functions[key] = fn
	return fn
}
