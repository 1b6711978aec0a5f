package export

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/hpc-analysis/internal/calltree"
)

type yamlDocument struct {
	Name    string     `yaml:"name"`
	Columns []string   `yaml:"columns"`
	Nodes   []yamlNode `yaml:"nodes"`
}

type yamlNode struct {
	ID        int64              `yaml:"id"`
	Path      string             `yaml:"path"`
	Depth     int                `yaml:"depth"`
	Type      string             `yaml:"type"`
	Module    string             `yaml:"module,omitempty"`
	File      string             `yaml:"file,omitempty"`
	Line      int                `yaml:"line,omitempty"`
	Procedure string             `yaml:"procedure,omitempty"`
	Values    map[string]float64 `yaml:"values"`
}

// YAMLExporter writes the table as a YAML document. Values hold every
// column the node has, ratio columns included.
type YAMLExporter struct{}

// Export writes t as YAML to w.
func (e *YAMLExporter) Export(w io.Writer, t *calltree.Table) error {
	columns := t.Columns()
	doc := yamlDocument{Name: t.Name(), Columns: columns, Nodes: make([]yamlNode, 0, t.Len())}
	for _, n := range t.Nodes() {
		node := yamlNode{
			ID:        n.ID,
			Path:      n.Path(),
			Depth:     n.Depth,
			Type:      n.Type.String(),
			Module:    n.Location.Module,
			File:      n.Location.File,
			Line:      n.Location.Line,
			Procedure: n.Location.Procedure,
			Values:    make(map[string]float64),
		}
		for _, c := range columns {
			if v, ok := n.Column(c); ok {
				node.Values[c] = v
			}
		}
		doc.Nodes = append(doc.Nodes, node)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
