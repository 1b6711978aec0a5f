// Package model holds the parsed form of an HPCToolkit profiling database.
package model

// Element tags of the nested measurement record.
const (
	TagMetricValue    = "M"
	TagProcedureFrame = "PF"
	TagCallsite       = "C"
	TagStatement      = "S"
	TagLoop           = "L"
)

// FinalizeFormula is the formula variant evaluated once a node's raw
// measurements are known.
const FinalizeFormula = "finalize"

// Experiment is one parsed call path profile.
type Experiment struct {
	// Name is the profile name (usually the executable).
	Name string

	Metrics    []MetricDef
	Modules    []Entry
	Files      []Entry
	Procedures []Entry

	// Data is the root of the nested measurement record. Its own M children
	// carry the whole-program measurements.
	Data *Element
}

// MetricDef describes one column of the metric table.
type MetricDef struct {
	ID       int
	Name     string
	Formulas []MetricFormula
}

// Finalize returns the text of the finalize formula, if any.
func (m MetricDef) Finalize() (string, bool) {
	for _, f := range m.Formulas {
		if f.Type == FinalizeFormula {
			return f.Text, true
		}
	}
	return "", false
}

// MetricFormula is one tagged formula variant of a metric.
type MetricFormula struct {
	Type string
	Text string
}

// Entry is a row of a flat id -> name table (modules, files, procedures).
type Entry struct {
	ID   int
	Name string
}

// Element is a node of the nested measurement record.
type Element struct {
	Tag      string
	Attrs    map[string]string
	Children []*Element
}

// NewElement creates an element with the given tag, attributes and children.
func NewElement(tag string, attrs map[string]string, children ...*Element) *Element {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	return &Element{Tag: tag, Attrs: attrs, Children: children}
}

// Attr returns the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Count returns the number of elements in the subtree rooted at e.
func (e *Element) Count() int {
	n := 1
	for _, c := range e.Children {
		n += c.Count()
	}
	return n
}
