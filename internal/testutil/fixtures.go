// Package testutil provides utilities for testing.
package testutil

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"testing"

	"github.com/hpc-analysis/pkg/model"
)

// ExperimentFixture is the name of the shared experiment.xml fixture.
const ExperimentFixture = "experiment.xml"

// Metric names of the shared fixture.
const (
	SumI    = "CPUTIME (usec):Sum (I)"
	SumE    = "CPUTIME (usec):Sum (E)"
	MeanI   = "CPUTIME (usec):Mean (I)"
	MeanE   = "CPUTIME (usec):Mean (E)"
	StdDevI = "CPUTIME (usec):StdDev (I)"
	StdDevE = "CPUTIME (usec):StdDev (E)"
	Count   = "CPUTIME (usec):Count"
)

// GetTestDataPath returns the absolute path to a file in the testdata directory.
// It searches for testdata in the caller's directory and parent directories.
func GetTestDataPath(t *testing.T, filename string) string {
	t.Helper()

	_, callerFile, _, ok := runtime.Caller(1)
	if !ok {
		t.Fatal("failed to get caller file path")
	}

	dir := filepath.Dir(callerFile)
	for i := 0; i < 5; i++ {
		testdataPath := filepath.Join(dir, "testdata", filename)
		if _, err := os.Stat(testdataPath); err == nil {
			return testdataPath
		}
		dir = filepath.Dir(dir)
	}

	return filepath.Join("testdata", filename)
}

// LoadFixture loads a test fixture file and returns its contents.
func LoadFixture(t *testing.T, filename string) []byte {
	t.Helper()
	path := GetTestDataPath(t, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture %s: %v", filename, err)
	}
	return data
}

// LoadFixtureReader loads a test fixture file and returns an io.Reader.
func LoadFixtureReader(t *testing.T, filename string) io.Reader {
	t.Helper()
	return bytes.NewReader(LoadFixture(t, filename))
}

// WriteFile writes content to a file in the given directory.
func WriteFile(t *testing.T, dir, filename string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}

// Node describes one element of a synthetic measurement record.
type Node struct {
	Tag      string
	Attrs    map[string]string
	Values   map[int]float64
	Children []Node
}

// PF returns a procedure frame with the given id and procedure id.
func PF(id, proc int, values map[int]float64, children ...Node) Node {
	return Node{
		Tag:      model.TagProcedureFrame,
		Attrs:    map[string]string{"i": strconv.Itoa(id), "n": strconv.Itoa(proc), "s": strconv.Itoa(proc)},
		Values:   values,
		Children: children,
	}
}

// C returns a callsite with the given id.
func C(id int, values map[int]float64, children ...Node) Node {
	return Node{
		Tag:      model.TagCallsite,
		Attrs:    map[string]string{"i": strconv.Itoa(id), "s": strconv.Itoa(id)},
		Values:   values,
		Children: children,
	}
}

// S returns a statement with the given id.
func S(id int, values map[int]float64) Node {
	return Node{
		Tag:    model.TagStatement,
		Attrs:  map[string]string{"i": strconv.Itoa(id), "s": strconv.Itoa(id), "l": strconv.Itoa(id)},
		Values: values,
	}
}

// L returns a loop with the given id.
func L(id int, values map[int]float64, children ...Node) Node {
	return Node{
		Tag:      model.TagLoop,
		Attrs:    map[string]string{"i": strconv.Itoa(id), "s": strconv.Itoa(id)},
		Values:   values,
		Children: children,
	}
}

// NewExperiment builds an experiment in memory. Procedures are named
// "proc<id>" for every procedure id referenced by a PF node.
func NewExperiment(metrics []model.MetricDef, rootValues map[int]float64, children ...Node) *model.Experiment {
	exp := &model.Experiment{
		Name:    "synthetic",
		Metrics: metrics,
		Modules: []model.Entry{{ID: 1, Name: "/bin/app"}},
		Files:   []model.Entry{{ID: 1, Name: "./app.c"}},
	}

	procs := make(map[int]bool)
	root := &model.Element{Tag: "SecCallPathProfileData", Attrs: map[string]string{}}
	root.Children = append(root.Children, metricElements(rootValues)...)
	for _, c := range children {
		root.Children = append(root.Children, buildElement(c, procs))
	}
	exp.Data = root

	ids := make([]int, 0, len(procs))
	for id := range procs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		exp.Procedures = append(exp.Procedures, model.Entry{ID: id, Name: "proc" + strconv.Itoa(id)})
	}
	return exp
}

func buildElement(n Node, procs map[int]bool) *model.Element {
	attrs := make(map[string]string, len(n.Attrs))
	for k, v := range n.Attrs {
		attrs[k] = v
	}
	if n.Tag == model.TagProcedureFrame {
		if id, err := strconv.Atoi(attrs["n"]); err == nil {
			procs[id] = true
		}
	}
	e := model.NewElement(n.Tag, attrs, metricElements(n.Values)...)
	for _, c := range n.Children {
		e.Children = append(e.Children, buildElement(c, procs))
	}
	return e
}

func metricElements(values map[int]float64) []*model.Element {
	ids := make([]int, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	elements := make([]*model.Element, 0, len(ids))
	for _, id := range ids {
		elements = append(elements, model.NewElement(model.TagMetricValue, map[string]string{
			"n": strconv.Itoa(id),
			"v": strconv.FormatFloat(values[id], 'g', -1, 64),
		}))
	}
	return elements
}
