package calltree

import (
	"fmt"
)

// Projection is a table restricted to a set of columns.
type Projection struct {
	Columns []string
	Rows    []ProjectedRow
}

// ProjectedRow holds one node's values for the projected columns. A nil
// value means the node has no value for that column.
type ProjectedRow struct {
	Node   *Node
	Values []*float64
}

// Select projects the table onto columns. Every column must exist.
func (t *Table) Select(columns ...string) (*Projection, error) {
	for _, c := range columns {
		if !t.HasColumn(c) {
			return nil, fmt.Errorf("unknown column %q", c)
		}
	}
	return t.project(columns), nil
}

func (t *Table) project(columns []string) *Projection {
	p := &Projection{Columns: columns, Rows: make([]ProjectedRow, 0, t.Len())}
	for _, n := range t.Nodes() {
		row := ProjectedRow{Node: n, Values: make([]*float64, len(columns))}
		for i, c := range columns {
			if v, ok := n.Column(c); ok {
				v := v
				row.Values[i] = &v
			}
		}
		p.Rows = append(p.Rows, row)
	}
	return p
}

// existing keeps the columns present in t, preserving order.
func (t *Table) existing(columns []string) []string {
	kept := make([]string, 0, len(columns))
	for _, c := range columns {
		if t.HasColumn(c) {
			kept = append(kept, c)
		}
	}
	return kept
}

// Compact projects onto the mean inclusive time and its ratios.
func (t *Table) Compact() *Projection {
	return t.project(t.existing([]string{
		DefaultBaseMetric,
		RatioColumn(DefaultBaseMetric, RatioOfTotal),
		RatioColumn(DefaultBaseMetric, RatioOfParent),
	}))
}

// Basic projects onto the mean, min, max and standard deviation of the
// inclusive ("I") or exclusive ("E") time, with the ratios of the mean.
// Columns the database does not have are left out.
func (t *Table) Basic(category string) (*Projection, error) {
	if category != "I" && category != "E" {
		return nil, fmt.Errorf("unknown metric category %q, expected I or E", category)
	}
	mean := fmt.Sprintf("CPUTIME (usec):Mean (%s)", category)
	return t.project(t.existing([]string{
		mean,
		RatioColumn(mean, RatioOfTotal),
		RatioColumn(mean, RatioOfParent),
		fmt.Sprintf("CPUTIME (usec):Min (%s)", category),
		fmt.Sprintf("CPUTIME (usec):Max (%s)", category),
		fmt.Sprintf("CPUTIME (usec):StdDev (%s)", category),
	})), nil
}
