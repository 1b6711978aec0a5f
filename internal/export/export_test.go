package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hpc-analysis/internal/calltree"
	"github.com/hpc-analysis/internal/parser/hpctoolkit"
	"github.com/hpc-analysis/internal/testutil"
	"github.com/hpc-analysis/pkg/compression"
)

func loadTable(t *testing.T) *calltree.Table {
	t.Helper()
	exp, err := hpctoolkit.NewParser().Parse(context.Background(), testutil.LoadFixtureReader(t, testutil.ExperimentFixture))
	require.NoError(t, err)
	table, err := calltree.New(exp, nil)
	require.NoError(t, err)
	return table
}

func TestParseFormat(t *testing.T) {
	for name, want := range map[string]Format{
		"json": FormatJSON, "YAML": FormatYAML, "yml": FormatYAML, "csv": FormatCSV, "pb": FormatPprof,
	} {
		got, err := ParseFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path  string
		f     Format
		ctype compression.Type
	}{
		{"run.json", FormatJSON, compression.TypeNone},
		{"run.json.gz", FormatJSON, compression.TypeGzip},
		{"out/run.csv.zst", FormatCSV, compression.TypeZstd},
		{"run.yaml", FormatYAML, compression.TypeNone},
		{"run.pprof", FormatPprof, compression.TypeNone},
	}
	for _, tt := range tests {
		f, ctype, err := FormatFromPath(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.f, f, tt.path)
		assert.Equal(t, tt.ctype, ctype, tt.path)
	}

	_, _, err := FormatFromPath("run.gz")
	assert.Error(t, err)
}

func TestJSONExporter(t *testing.T) {
	table := loadTable(t)

	var buf bytes.Buffer
	require.NoError(t, NewJSONExporter().Export(&buf, table))

	var doc struct {
		Name    string           `json:"name"`
		Columns []string         `json:"columns"`
		Nodes   []map[string]any `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "sedov", doc.Name)
	assert.Equal(t, table.Columns(), doc.Columns)
	assert.Len(t, doc.Nodes, 7)
}

func TestYAMLExporter(t *testing.T) {
	table := loadTable(t)

	var buf bytes.Buffer
	require.NoError(t, (&YAMLExporter{}).Export(&buf, table))

	var doc yamlDocument
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "sedov", doc.Name)
	require.Len(t, doc.Nodes, 7)

	solve := doc.Nodes[2]
	assert.Equal(t, int64(4), solve.ID)
	assert.Equal(t, "main.2 > hy_ppm_sweep.4", solve.Path)
	assert.Equal(t, "./src/hy_ppm_sweep.F90", solve.File)
	assert.Equal(t, "/opt/flash/bin/flash4", solve.Module)
	assert.InDelta(t, 40, solve.Values[testutil.MeanI], testutil.FloatTolerance)
	assert.InDelta(t, 0.4, solve.Values[calltree.RatioColumn(testutil.MeanI, calltree.RatioOfTotal)], testutil.FloatTolerance)
}

func TestCSVExporter(t *testing.T) {
	table := loadTable(t)

	var buf bytes.Buffer
	require.NoError(t, (&CSVExporter{}).Export(&buf, table))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 8)

	header := records[0]
	assert.Equal(t, []string{"id", "depth", "type", "call_path"}, header[:4])
	assert.Equal(t, table.Columns(), header[4:])

	root := records[1]
	assert.Equal(t, "-1", root[0])
	assert.Equal(t, "<root>", root[3])

	main := records[2]
	assert.Equal(t, "2", main[0])
	assert.Equal(t, "1", main[1])
	assert.Equal(t, "procedure-frame", main[2])
}

func TestPprofExporter(t *testing.T) {
	table := loadTable(t)

	var buf bytes.Buffer
	require.NoError(t, (&PprofExporter{}).Export(&buf, table))

	prof, err := profile.Parse(&buf)
	require.NoError(t, err)

	require.Len(t, prof.SampleType, 3)
	assert.Equal(t, testutil.SumE, prof.SampleType[0].Type)
	assert.Equal(t, "microseconds", prof.SampleType[0].Unit)
	require.Len(t, prof.Sample, 6)

	var meanE int64
	for _, s := range prof.Sample {
		meanE += s.Value[1]
	}
	assert.Equal(t, int64(82), meanE)

	// The deepest statement carries its whole call path, leaf first.
	var deepest *profile.Sample
	for _, s := range prof.Sample {
		if len(s.Location) > 0 && (deepest == nil || len(s.Location) > len(deepest.Location)) {
			deepest = s
		}
	}
	require.NotNil(t, deepest)
	require.Len(t, deepest.Location, 4)
	assert.Equal(t, "<statement 23>", deepest.Location[0].Line[0].Function.Name)
	assert.Equal(t, "main", deepest.Location[3].Line[0].Function.Name)
}

func TestSampleMetrics(t *testing.T) {
	table := loadTable(t)
	assert.Equal(t, []string{testutil.SumE, testutil.MeanE, testutil.StdDevE}, SampleMetrics(table))
}

func TestWriteToFile(t *testing.T) {
	table := loadTable(t)
	dir := t.TempDir()

	for _, name := range []string{"run.json", "run.json.gz", "run.yaml.zst", "run.csv", "run.pprof"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			res, err := WriteToFile(path, table, compression.LevelDefault)
			require.NoError(t, err)
			assert.Equal(t, path, res.Path)
			assert.Positive(t, res.RawSize)

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, res.CompressedSize, info.Size())

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()
			rc, ctype, err := compression.NewReader(f)
			require.NoError(t, err)
			defer rc.Close()
			assert.Equal(t, res.Compression, ctype)
		})
	}
}
