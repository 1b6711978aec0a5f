// Package export writes call-tree tables to files in several formats.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpc-analysis/internal/calltree"
	"github.com/hpc-analysis/pkg/compression"
)

// Format is an output format.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatCSV   Format = "csv"
	FormatPprof Format = "pprof"
)

// Exporter writes a table to w.
type Exporter interface {
	Export(w io.Writer, t *calltree.Table) error
}

// ParseFormat parses a format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	case "pprof", "pb":
		return FormatPprof, nil
	default:
		return "", fmt.Errorf("unknown export format: %s", name)
	}
}

// FormatFromPath guesses the format and compression from a file name such
// as "run.json.gz".
func FormatFromPath(path string) (Format, compression.Type, error) {
	ctype := compression.TypeFromPath(path)
	if ctype != compression.TypeNone {
		path = strings.TrimSuffix(path, filepath.Ext(path))
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", ctype, fmt.Errorf("cannot infer export format from %q", path)
	}
	f, err := ParseFormat(ext)
	return f, ctype, err
}

// New returns the exporter for a format.
func New(f Format) (Exporter, error) {
	switch f {
	case FormatJSON:
		return NewPrettyJSONExporter(), nil
	case FormatYAML:
		return &YAMLExporter{}, nil
	case FormatCSV:
		return &CSVExporter{}, nil
	case FormatPprof:
		return &PprofExporter{}, nil
	default:
		return nil, fmt.Errorf("unknown export format: %s", f)
	}
}

// WriteResult contains statistics about the written file.
type WriteResult struct {
	Path           string
	Format         Format
	Compression    compression.Type
	RawSize        int64
	CompressedSize int64
	CompressionPct float64
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Write exports t to w, compressed with ctype, and reports the sizes.
func Write(w io.Writer, t *calltree.Table, f Format, ctype compression.Type, level compression.Level) (*WriteResult, error) {
	exp, err := New(f)
	if err != nil {
		return nil, err
	}

	compressed := &countingWriter{w: w}
	cw, err := compression.NewWriter(compressed, ctype, level)
	if err != nil {
		return nil, err
	}
	raw := &countingWriter{w: cw}
	if err := exp.Export(raw, t); err != nil {
		cw.Close()
		return nil, fmt.Errorf("failed to export %s: %w", f, err)
	}
	if err := cw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s writer: %w", ctype, err)
	}

	res := &WriteResult{
		Format:         f,
		Compression:    ctype,
		RawSize:        raw.n,
		CompressedSize: compressed.n,
	}
	if raw.n > 0 {
		res.CompressionPct = float64(compressed.n) / float64(raw.n) * 100
	}
	return res, nil
}

// WriteToFile exports t to path. The format and compression are inferred
// from the file name.
func WriteToFile(path string, t *calltree.Table, level compression.Level) (*WriteResult, error) {
	f, ctype, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	res, err := Write(file, t, f, ctype, level)
	if err != nil {
		return nil, err
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	res.Path = path
	return res, nil
}
