package export

import (
	"encoding/json"
	"io"

	"github.com/hpc-analysis/internal/calltree"
)

// JSONExporter writes the table as JSON.
type JSONExporter struct {
	// Indent specifies the indentation for pretty printing.
	// Empty string means compact output.
	Indent string
}

// NewJSONExporter creates a JSON exporter with compact output.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// NewPrettyJSONExporter creates a JSON exporter with pretty printing.
func NewPrettyJSONExporter() *JSONExporter {
	return &JSONExporter{Indent: "  "}
}

// Export writes t as JSON to w.
func (e *JSONExporter) Export(w io.Writer, t *calltree.Table) error {
	encoder := json.NewEncoder(w)
	if e.Indent != "" {
		encoder.SetIndent("", e.Indent)
	}
	return encoder.Encode(t)
}
