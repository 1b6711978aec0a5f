// Package calltree builds an analyzable call tree from an HPCToolkit
// measurement record and answers queries over it.
package calltree

import (
	"strconv"
	"strings"

	"github.com/hpc-analysis/internal/symbols"
)

// RootID is the id of the implicit root node.
const RootID int64 = -1

// NodeType is the kind of source element a node was built from.
type NodeType int

const (
	NodeRoot NodeType = iota
	NodeProcedureFrame
	NodeCallsite
	NodeStatement
	NodeLoop
)

// String returns the name of the node type.
func (t NodeType) String() string {
	switch t {
	case NodeRoot:
		return "root"
	case NodeProcedureFrame:
		return "procedure-frame"
	case NodeCallsite:
		return "callsite"
	case NodeStatement:
		return "statement"
	case NodeLoop:
		return "loop"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t NodeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Location is the source position of a node. Each field is set only when
// the attribute existed on the element or one of its ancestors.
type Location struct {
	Module    string `json:"module,omitempty"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
	Procedure string `json:"procedure,omitempty"`

	HasModule    bool `json:"-"`
	HasFile      bool `json:"-"`
	HasLine      bool `json:"-"`
	HasProcedure bool `json:"-"`
}

// ModuleName returns the base name of the load module.
func (l Location) ModuleName() string {
	return symbols.BaseName(l.Module)
}

// FileName returns the base name of the source file.
func (l Location) FileName() string {
	return symbols.BaseName(l.File)
}

// Ratio holds the derived ratios of one base metric.
type Ratio struct {
	OfTotal  float64 `json:"ofTotal"`
	OfParent float64 `json:"ofParent"`
}

// Node is one row of the analyzed table.
type Node struct {
	ID       int64    `json:"id"`
	CallPath []int64  `json:"callPath"`
	Labels   []string `json:"labels"`
	Depth    int      `json:"depth"`
	Type     NodeType `json:"type"`
	Location Location `json:"location"`

	// Metrics holds raw measurements and evaluated formulas by metric name.
	Metrics map[string]float64 `json:"metrics"`
	// Raw holds the node's own measurements before formula evaluation.
	Raw map[string]float64 `json:"-"`

	Ratios map[string]Ratio `json:"ratios,omitempty"`
}

// IsRoot reports whether n is the implicit root.
func (n *Node) IsRoot() bool {
	return n.ID == RootID
}

// Label returns the label of the node itself.
func (n *Node) Label() string {
	if len(n.Labels) == 0 {
		return "<root>"
	}
	return n.Labels[len(n.Labels)-1]
}

// Path renders the call path labels, e.g. "main.2 > <loop 22.5>".
func (n *Node) Path() string {
	if len(n.Labels) == 0 {
		return "<root>"
	}
	return strings.Join(n.Labels, " > ")
}

// ParentPath returns the call path of the node's parent.
func (n *Node) ParentPath() []int64 {
	if len(n.CallPath) == 0 {
		return nil
	}
	return n.CallPath[:len(n.CallPath)-1]
}

// Value returns the value of a metric.
func (n *Node) Value(metric string) (float64, bool) {
	v, ok := n.Metrics[metric]
	return v, ok
}

// Column returns the value of a table column: a metric name or a ratio
// column name.
func (n *Node) Column(name string) (float64, bool) {
	if v, ok := n.Metrics[name]; ok {
		return v, true
	}
	base, kind, ok := ParseRatioColumn(name)
	if !ok {
		return 0, false
	}
	r, ok := n.Ratios[base]
	if !ok {
		return 0, false
	}
	if kind == RatioOfTotal {
		return r.OfTotal, true
	}
	return r.OfParent, true
}

// RatioKind selects one of the two derived ratios.
type RatioKind string

const (
	RatioOfTotal  RatioKind = "total"
	RatioOfParent RatioKind = "parent"
)

// RatioColumn returns the column name of a ratio of base.
func RatioColumn(base string, kind RatioKind) string {
	return base + " ratio of " + string(kind)
}

// ParseRatioColumn splits a ratio column name into base metric and kind.
func ParseRatioColumn(name string) (string, RatioKind, bool) {
	for _, kind := range []RatioKind{RatioOfTotal, RatioOfParent} {
		suffix := " ratio of " + string(kind)
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix), kind, true
		}
	}
	return "", "", false
}

// pathKey is the map key of a call path.
func pathKey(path []int64) string {
	if len(path) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, id := range path {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(strconv.FormatInt(id, 10))
	}
	return sb.String()
}

func hasPrefix(path, prefix []int64) bool {
	if len(path) < len(prefix) {
		return false
	}
	for i, id := range prefix {
		if path[i] != id {
			return false
		}
	}
	return true
}
