package calltree

import (
	"encoding/json"
	"fmt"
	"strconv"

	apperrors "github.com/hpc-analysis/pkg/errors"
)

// arena owns the nodes of one analyzed database. Tables are index sets
// over an arena.
type arena struct {
	name    string
	metrics []string
	bases   []string

	nodes  []*Node
	byID   map[int64]int
	byPath map[string]int
}

func (a *arena) add(n *Node) error {
	if _, dup := a.byID[n.ID]; dup {
		return &apperrors.MalformedInputError{
			Reason: "duplicate node id " + strconv.FormatInt(n.ID, 10),
		}
	}
	a.byID[n.ID] = len(a.nodes)
	a.byPath[pathKey(n.CallPath)] = len(a.nodes)
	a.nodes = append(a.nodes, n)
	return nil
}

func (a *arena) hasBase(base string) bool {
	for _, b := range a.bases {
		if b == base {
			return true
		}
	}
	return false
}

// Table is an ordered collection of nodes keyed by id. Filtering returns a
// new Table sharing the same nodes; the source is never modified.
type Table struct {
	arena *arena
	rows  []int
	// member is nil when the table holds every node of the arena.
	member map[int]struct{}
}

func newTable(name string, metrics []string) *Table {
	return &Table{
		arena: &arena{
			name:    name,
			metrics: metrics,
			byID:    make(map[int64]int),
			byPath:  make(map[string]int),
		},
	}
}

func (t *Table) add(n *Node) error {
	if err := t.arena.add(n); err != nil {
		return err
	}
	t.rows = append(t.rows, len(t.arena.nodes)-1)
	return nil
}

// view returns a table over the given arena indexes.
func (t *Table) view(rows []int) *Table {
	member := make(map[int]struct{}, len(rows))
	for _, r := range rows {
		member[r] = struct{}{}
	}
	return &Table{arena: t.arena, rows: rows, member: member}
}

func (t *Table) contains(idx int) bool {
	if t.member == nil {
		return true
	}
	_, ok := t.member[idx]
	return ok
}

// where returns the view of the rows matching keep.
func (t *Table) where(keep func(*Node) bool) *Table {
	rows := make([]int, 0, len(t.rows))
	for _, r := range t.rows {
		if keep(t.arena.nodes[r]) {
			rows = append(rows, r)
		}
	}
	return t.view(rows)
}

// Name returns the profile name.
func (t *Table) Name() string {
	return t.arena.name
}

// Len returns the number of nodes in the table.
func (t *Table) Len() int {
	return len(t.rows)
}

// Nodes returns the nodes in table order.
func (t *Table) Nodes() []*Node {
	nodes := make([]*Node, len(t.rows))
	for i, r := range t.rows {
		nodes[i] = t.arena.nodes[r]
	}
	return nodes
}

// Node returns the i-th node in table order.
func (t *Table) Node(i int) *Node {
	return t.arena.nodes[t.rows[i]]
}

// Root returns the root node of the database. The root is reported even
// when the table is a view that filtered it out.
func (t *Table) Root() *Node {
	idx, ok := t.arena.byID[RootID]
	if !ok {
		return nil
	}
	return t.arena.nodes[idx]
}

// Lookup returns the node with the given id.
func (t *Table) Lookup(id int64) (*Node, bool) {
	idx, ok := t.arena.byID[id]
	if !ok || !t.contains(idx) {
		return nil, false
	}
	return t.arena.nodes[idx], true
}

// ByPath returns the node with the given call path.
func (t *Table) ByPath(path []int64) (*Node, bool) {
	idx, ok := t.arena.byPath[pathKey(path)]
	if !ok || !t.contains(idx) {
		return nil, false
	}
	return t.arena.nodes[idx], true
}

// Parent returns the nearest materialized ancestor of n in the database.
func (t *Table) Parent(n *Node) (*Node, bool) {
	if n.IsRoot() {
		return nil, false
	}
	idx, ok := t.arena.byPath[pathKey(n.ParentPath())]
	if !ok {
		return nil, false
	}
	return t.arena.nodes[idx], true
}

// Children returns the nodes of the table one level below n.
func (t *Table) Children(n *Node) []*Node {
	var children []*Node
	for _, r := range t.rows {
		c := t.arena.nodes[r]
		if c.Depth == n.Depth+1 && hasPrefix(c.CallPath, n.CallPath) {
			children = append(children, c)
		}
	}
	return children
}

// MetricNames returns the metric names ordered by metric id.
func (t *Table) MetricNames() []string {
	return append([]string(nil), t.arena.metrics...)
}

// RatioBases returns the metrics for which ratios were computed.
func (t *Table) RatioBases() []string {
	return append([]string(nil), t.arena.bases...)
}

// HasColumn reports whether name is a column of the table.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns() {
		if c == name {
			return true
		}
	}
	return false
}

// Columns returns the column names: metrics ordered by id, each ratio base
// followed by its ratio of total and ratio of parent.
func (t *Table) Columns() []string {
	columns := make([]string, 0, len(t.arena.metrics)+2*len(t.arena.bases))
	for _, m := range t.arena.metrics {
		columns = append(columns, m)
		if t.arena.hasBase(m) {
			columns = append(columns, RatioColumn(m, RatioOfTotal), RatioColumn(m, RatioOfParent))
		}
	}
	return columns
}

// Validate checks the structural invariants of the table: unique ids,
// depth equal to call path length, and a present parent for every node.
func (t *Table) Validate() error {
	seen := make(map[int64]struct{}, len(t.rows))
	for _, n := range t.Nodes() {
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("duplicate node id %d", n.ID)
		}
		seen[n.ID] = struct{}{}

		if n.Depth != len(n.CallPath) {
			return fmt.Errorf("node %d: depth %d does not match call path %v", n.ID, n.Depth, n.CallPath)
		}
		if n.IsRoot() {
			continue
		}
		if _, ok := t.Parent(n); !ok {
			return fmt.Errorf("node %d: parent %v not in table", n.ID, n.ParentPath())
		}
	}
	return nil
}

type tableJSON struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Nodes   []*Node  `json:"nodes"`
}

// MarshalJSON encodes the table with its column order and nodes.
func (t *Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(tableJSON{
		Name:    t.Name(),
		Columns: t.Columns(),
		Nodes:   t.Nodes(),
	})
}
