package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/hpc-analysis/internal/calltree"
)

// CSVExporter writes one row per node. Missing values are empty cells.
type CSVExporter struct{}

// Export writes t as CSV to w.
func (e *CSVExporter) Export(w io.Writer, t *calltree.Table) error {
	columns := t.Columns()
	cw := csv.NewWriter(w)

	header := append([]string{"id", "depth", "type", "call_path"}, columns...)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for _, n := range t.Nodes() {
		record[0] = strconv.FormatInt(n.ID, 10)
		record[1] = strconv.Itoa(n.Depth)
		record[2] = n.Type.String()
		record[3] = n.Path()
		for i, c := range columns {
			record[4+i] = ""
			if v, ok := n.Column(c); ok {
				record[4+i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
