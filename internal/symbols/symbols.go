// Package symbols builds the id -> name lookup tables of a profiling database.
package symbols

import (
	"fmt"
	"path"
	"sort"
	"strconv"

	apperrors "github.com/hpc-analysis/pkg/errors"
	"github.com/hpc-analysis/pkg/model"
)

// Metric is one column of the metric table. Formula holds the finalize
// formula text and is empty for raw measurements.
type Metric struct {
	ID      int
	Name    string
	Formula string
}

// Derived reports whether the metric is computed by a formula.
func (m Metric) Derived() bool {
	return m.Formula != ""
}

// NameTable maps ids to names or paths. It is read-only after construction.
type NameTable struct {
	kind  string
	names map[int]string
}

func newNameTable(kind string, entries []model.Entry) (*NameTable, error) {
	t := &NameTable{kind: kind, names: make(map[int]string, len(entries))}
	for _, e := range entries {
		if _, dup := t.names[e.ID]; dup {
			return nil, &apperrors.MalformedInputError{
				Reason: "duplicate " + kind + " id",
				Tag:    kind,
				Attrs:  map[string]string{"i": strconv.Itoa(e.ID), "n": e.Name},
			}
		}
		t.names[e.ID] = e.Name
	}
	return t, nil
}

// Lookup returns the name registered for id.
func (t *NameTable) Lookup(id int) (string, error) {
	name, ok := t.names[id]
	if !ok {
		return "", &apperrors.MalformedInputError{
			Reason: fmt.Sprintf("unknown %s id %d", t.kind, id),
		}
	}
	return name, nil
}

// Len returns the number of entries.
func (t *NameTable) Len() int {
	return len(t.names)
}

// IDs returns the registered ids in ascending order.
func (t *NameTable) IDs() []int {
	ids := make([]int, 0, len(t.names))
	for id := range t.names {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Tables holds every symbol table of one profiling database.
type Tables struct {
	metrics     map[int]Metric
	metricIDs   []int
	metricIndex map[string]int

	Modules    *NameTable
	Files      *NameTable
	Procedures *NameTable
}

// New builds the symbol tables from the database header.
func New(exp *model.Experiment) (*Tables, error) {
	t := &Tables{
		metrics:     make(map[int]Metric, len(exp.Metrics)),
		metricIndex: make(map[string]int, len(exp.Metrics)),
	}

	for _, def := range exp.Metrics {
		if _, dup := t.metrics[def.ID]; dup {
			return nil, &apperrors.MalformedInputError{
				Reason: "duplicate metric id",
				Tag:    "Metric",
				Attrs:  map[string]string{"i": strconv.Itoa(def.ID), "n": def.Name},
			}
		}
		formula, _ := def.Finalize()
		t.metrics[def.ID] = Metric{ID: def.ID, Name: def.Name, Formula: formula}
		t.metricIDs = append(t.metricIDs, def.ID)
		t.metricIndex[def.Name] = def.ID
	}
	sort.Ints(t.metricIDs)

	var err error
	if t.Modules, err = newNameTable("LoadModule", exp.Modules); err != nil {
		return nil, err
	}
	if t.Files, err = newNameTable("File", exp.Files); err != nil {
		return nil, err
	}
	if t.Procedures, err = newNameTable("Procedure", exp.Procedures); err != nil {
		return nil, err
	}

	return t, nil
}

// Metric returns the metric with the given id.
func (t *Tables) Metric(id int) (Metric, error) {
	m, ok := t.metrics[id]
	if !ok {
		return Metric{}, &apperrors.MalformedInputError{
			Reason: fmt.Sprintf("unknown metric id %d", id),
		}
	}
	return m, nil
}

// MetricName returns the name of the metric with the given id.
func (t *Tables) MetricName(id int) (string, error) {
	m, err := t.Metric(id)
	if err != nil {
		return "", err
	}
	return m.Name, nil
}

// MetricByName returns the metric with the given name.
func (t *Tables) MetricByName(name string) (Metric, bool) {
	id, ok := t.metricIndex[name]
	if !ok {
		return Metric{}, false
	}
	return t.metrics[id], true
}

// Metrics returns all metrics ordered by id.
func (t *Tables) Metrics() []Metric {
	result := make([]Metric, 0, len(t.metricIDs))
	for _, id := range t.metricIDs {
		result = append(result, t.metrics[id])
	}
	return result
}

// MetricNames returns all metric names ordered by id.
func (t *Tables) MetricNames() []string {
	names := make([]string, 0, len(t.metricIDs))
	for _, id := range t.metricIDs {
		names = append(names, t.metrics[id].Name)
	}
	return names
}

// BaseName returns the last element of a module or file path.
func BaseName(p string) string {
	if p == "" {
		return ""
	}
	return path.Base(p)
}
