package formatter

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-analysis/internal/analyzer"
	"github.com/hpc-analysis/internal/calltree"
	"github.com/hpc-analysis/internal/testutil"
	"github.com/hpc-analysis/pkg/utils"
)

func analyze(t *testing.T) *analyzer.AnalysisResponse {
	t.Helper()
	resp, err := analyzer.NewHPCToolkitAnalyzer(nil).AnalyzeFromReader(context.Background(),
		&analyzer.AnalysisRequest{RunUUID: "run-1"},
		testutil.LoadFixtureReader(t, testutil.ExperimentFixture))
	require.NoError(t, err)
	return resp
}

func TestRegistry(t *testing.T) {
	resp := analyze(t)
	r := NewRegistry()

	assert.Equal(t, []string{"all", "basic_e", "basic_i", "compact"}, r.Names())

	p, err := r.Project(resp.Table, ViewCompact)
	require.NoError(t, err)
	assert.Equal(t, []string{
		testutil.MeanI,
		testutil.MeanI + " ratio of total",
		testutil.MeanI + " ratio of parent",
	}, p.Columns)

	p, err = r.Project(resp.Table, ViewAll)
	require.NoError(t, err)
	assert.Equal(t, resp.Table.Columns(), p.Columns)

	_, err = r.Project(resp.Table, View("flat"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compact")
}

func TestFormatValue(t *testing.T) {
	v := 0.25
	assert.Equal(t, "-", FormatValue(testutil.MeanI, nil))
	assert.Equal(t, "0.25", FormatValue(testutil.MeanI, &v))
	assert.Equal(t, "25.00%", FormatValue(calltree.RatioColumn(testutil.MeanI, calltree.RatioOfTotal), &v))
}

func TestTableRenderer_Render(t *testing.T) {
	resp := analyze(t)
	p, err := NewRegistry().Project(resp.Table, ViewCompact)
	require.NoError(t, err)

	var buf bytes.Buffer
	r := NewTableRenderer()
	r.HotThreshold = 0.05
	require.NoError(t, r.Render(&buf, p))

	out := buf.String()
	assert.Contains(t, out, "call path")
	assert.Contains(t, out, "hy_ppm_sweep.4")
	assert.Contains(t, out, "60.00%")
	assert.Contains(t, out, "<statement 8>")
}

func TestTableRenderer_TruncatesLabels(t *testing.T) {
	resp := analyze(t)
	p, err := NewRegistry().Project(resp.Table, ViewCompact)
	require.NoError(t, err)

	var buf bytes.Buffer
	r := &TableRenderer{MaxLabelWidth: 8}
	require.NoError(t, r.Render(&buf, p))
	assert.NotContains(t, buf.String(), "hy_ppm_sweep.4")
}

func TestTableRenderer_RenderHotPath(t *testing.T) {
	resp := analyze(t)

	var buf bytes.Buffer
	require.NoError(t, NewTableRenderer().RenderHotPath(&buf, resp.HotPath, resp.Summary.BaseMetric))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "<root>")
	assert.Contains(t, lines[4], "<statement 23>")
	assert.Contains(t, lines[4], "20.00%")
}

func TestSummaryFormatter_Format(t *testing.T) {
	resp := analyze(t)

	var buf bytes.Buffer
	log := utils.NewDefaultLogger(utils.LevelInfo, &buf)
	(&SummaryFormatter{MaxItems: 2}).Format(resp, log)

	out := buf.String()
	assert.Contains(t, out, "=== Analysis Results ===")
	assert.Contains(t, out, "Profile:        sedov")
	assert.Contains(t, out, "=== Hot Path ===")
	assert.Contains(t, out, "hy_ppm_sweep.4 (40.00%)")
	assert.Contains(t, out, "=== Top Nodes ===")
	assert.Contains(t, out, "more nodes")
	assert.Contains(t, out, "=== Procedures (exclusive) ===")
}

func TestSummaryFormatter_FormatSummary(t *testing.T) {
	resp := analyze(t)
	f := &SummaryFormatter{}

	summary := f.FormatSummary(resp)
	assert.Equal(t, "run-1", summary["run_uuid"])
	assert.Equal(t, "sedov", summary["profile"])
	assert.Equal(t, 7, summary["nodes"])
	assert.Equal(t, "main.2", summary["top_node"])

	assert.Nil(t, f.FormatSummary(nil))
}
