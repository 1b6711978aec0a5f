// Package formatter renders analyzed call trees for terminals and logs.
package formatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hpc-analysis/internal/analyzer"
	"github.com/hpc-analysis/internal/calltree"
	"github.com/hpc-analysis/pkg/utils"
)

// ResultFormatter is the interface for formatting analysis results.
type ResultFormatter interface {
	// Format outputs the analysis result to the logger.
	Format(resp *analyzer.AnalysisResponse, log utils.Logger)

	// FormatSummary returns a summary map for serialization.
	FormatSummary(resp *analyzer.AnalysisResponse) map[string]interface{}
}

// View names a column projection of a table.
type View string

const (
	// ViewCompact shows the first ratio base with its two ratios.
	ViewCompact View = "compact"
	// ViewBasicI shows the inclusive Mean and StdDev columns.
	ViewBasicI View = "basic_i"
	// ViewBasicE shows the exclusive Mean and StdDev columns.
	ViewBasicE View = "basic_e"
	// ViewAll shows every column.
	ViewAll View = "all"
)

// Registry maps view names to projections.
type Registry struct {
	views map[View]func(*calltree.Table) (*calltree.Projection, error)
}

// NewRegistry creates a registry with the built-in views.
func NewRegistry() *Registry {
	r := &Registry{views: make(map[View]func(*calltree.Table) (*calltree.Projection, error))}
	r.Register(ViewCompact, func(t *calltree.Table) (*calltree.Projection, error) {
		return t.Compact(), nil
	})
	r.Register(ViewBasicI, func(t *calltree.Table) (*calltree.Projection, error) {
		return t.Basic("I")
	})
	r.Register(ViewBasicE, func(t *calltree.Table) (*calltree.Projection, error) {
		return t.Basic("E")
	})
	r.Register(ViewAll, func(t *calltree.Table) (*calltree.Projection, error) {
		return t.Select(t.Columns()...)
	})
	return r
}

// Register adds or replaces a view.
func (r *Registry) Register(name View, project func(*calltree.Table) (*calltree.Projection, error)) {
	r.views[name] = project
}

// Project applies the named view to t.
func (r *Registry) Project(t *calltree.Table, name View) (*calltree.Projection, error) {
	project, ok := r.views[name]
	if !ok {
		return nil, fmt.Errorf("unknown view %q (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	return project(t)
}

// Names returns the registered view names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.views))
	for name := range r.views {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// FormatValue renders one cell. Ratio columns render as percentages and
// missing values as "-".
func FormatValue(column string, v *float64) string {
	if v == nil {
		return "-"
	}
	if _, _, ok := calltree.ParseRatioColumn(column); ok {
		return fmt.Sprintf("%.2f%%", *v*100)
	}
	return fmt.Sprintf("%.6g", *v)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
