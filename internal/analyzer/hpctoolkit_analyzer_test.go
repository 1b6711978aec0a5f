package analyzer

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hpc-analysis/internal/calltree"
	"github.com/hpc-analysis/internal/parser"
	"github.com/hpc-analysis/internal/storage"
	"github.com/hpc-analysis/internal/testutil"
	apperrors "github.com/hpc-analysis/pkg/errors"
)

var fixtureHotPath = []string{"<root>", "main.2", "hy_ppm_sweep.4", "<loop 22.5>", "<statement 23>"}

func TestAnalyzeFromReader(t *testing.T) {
	a := NewHPCToolkitAnalyzer(nil)

	resp, err := a.AnalyzeFromReader(context.Background(), &AnalysisRequest{RunUUID: "run-1"},
		testutil.LoadFixtureReader(t, testutil.ExperimentFixture))
	require.NoError(t, err)

	assert.Equal(t, "run-1", resp.RunUUID)
	assert.Equal(t, "sedov", resp.Name)
	assert.Equal(t, 7, resp.Table.Len())
	require.NotNil(t, resp.HotPath)
	assert.Equal(t, 5, resp.HotPath.Len())

	s := resp.Summary
	assert.Equal(t, 7, s.Nodes)
	assert.Equal(t, 4, s.MaxDepth)
	assert.Equal(t, testutil.MeanI, s.BaseMetric)
	assert.InDelta(t, 100, s.Total, testutil.FloatTolerance)
	assert.Equal(t, fixtureHotPath, s.HotPath)
	assert.Equal(t, []string{testutil.MeanI}, s.RatioBases)
	require.NotNil(t, s.TopNodes)
	assert.Equal(t, int64(2), s.TopNodes.Entries[0].ID)
	require.NotNil(t, s.Procedures)
	assert.Equal(t, "hy_ppm_sweep", s.Procedures.Procedures[0].Procedure)
}

func TestAnalyzeFromReader_GeneratesRunUUID(t *testing.T) {
	resp, err := NewHPCToolkitAnalyzer(nil).AnalyzeFromReader(context.Background(), nil,
		testutil.LoadFixtureReader(t, testutil.ExperimentFixture))
	require.NoError(t, err)
	assert.Len(t, resp.RunUUID, 36)
}

func TestAnalyzeFromReader_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(testutil.LoadFixture(t, testutil.ExperimentFixture))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	resp, err := NewHPCToolkitAnalyzer(nil).AnalyzeFromReader(context.Background(), &AnalysisRequest{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, "sedov", resp.Name)
}

func TestAnalyzeFromReader_RequestOptions(t *testing.T) {
	opts := calltree.DefaultOptions()
	opts.MaxDepth = calltree.Depth(1)

	resp, err := NewHPCToolkitAnalyzer(nil).AnalyzeFromReader(context.Background(),
		&AnalysisRequest{Options: opts, TopN: 1},
		testutil.LoadFixtureReader(t, testutil.ExperimentFixture))
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Summary.Nodes)
	assert.Equal(t, 1, resp.Summary.MaxDepth)
	assert.Len(t, resp.Summary.TopNodes.Entries, 1)
	assert.Equal(t, []string{"<root>", "main.2"}, resp.Summary.HotPath)
}

func TestAnalyzeFromReader_DepthOverlay(t *testing.T) {
	opts := calltree.DefaultOptions()
	opts.RatioBaseMetrics = []string{testutil.SumI}
	opts.HotPathBaseMetric = testutil.SumI
	a := NewHPCToolkitAnalyzer(&Config{Options: opts})

	elide := true
	resp, err := a.AnalyzeFromReader(context.Background(),
		&AnalysisRequest{MaxDepth: calltree.Depth(1), ElideCallsites: &elide},
		testutil.LoadFixtureReader(t, testutil.ExperimentFixture))
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Summary.Nodes)
	assert.Equal(t, []string{testutil.SumI}, resp.Table.RatioBases())
	assert.Equal(t, testutil.SumI, resp.Summary.BaseMetric)
	assert.Nil(t, opts.MaxDepth)
}

func TestAnalyzeFromReader_HotPathStart(t *testing.T) {
	resp, err := NewHPCToolkitAnalyzer(nil).AnalyzeFromReader(context.Background(),
		&AnalysisRequest{HotPathStart: []int64{2, 4}},
		testutil.LoadFixtureReader(t, testutil.ExperimentFixture))
	require.NoError(t, err)
	assert.Equal(t, fixtureHotPath[2:], resp.Summary.HotPath)
}

func TestAnalyzeFromReader_HotPathMetricWithoutRatios(t *testing.T) {
	opts := calltree.DefaultOptions()
	opts.HotPathBaseMetric = testutil.SumI

	resp, err := NewHPCToolkitAnalyzer(&Config{Options: opts}).AnalyzeFromReader(context.Background(),
		&AnalysisRequest{}, testutil.LoadFixtureReader(t, testutil.ExperimentFixture))
	require.NoError(t, err)
	assert.Nil(t, resp.HotPath)
	assert.Empty(t, resp.Summary.HotPath)
}

func TestAnalyzeFromReader_Errors(t *testing.T) {
	a := NewHPCToolkitAnalyzer(nil)
	ctx := context.Background()

	_, err := a.AnalyzeFromReader(ctx, &AnalysisRequest{}, strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyData)

	_, err = a.AnalyzeFromReader(ctx, &AnalysisRequest{}, strings.NewReader("<HPCToolkitExperiment/>"))
	assert.ErrorIs(t, err, ErrParseError)
	assert.ErrorIs(t, err, parser.ErrMissingSection)

	// Ratios need the base metric at the root.
	opts := calltree.DefaultOptions()
	opts.RatioBaseMetrics = []string{"no such metric"}
	_, err = NewHPCToolkitAnalyzer(&Config{Options: opts}).AnalyzeFromReader(ctx, &AnalysisRequest{},
		testutil.LoadFixtureReader(t, testutil.ExperimentFixture))
	assert.True(t, apperrors.IsAggregationConsistency(err))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = a.AnalyzeFromReader(canceled, &AnalysisRequest{}, testutil.LoadFixtureReader(t, testutil.ExperimentFixture))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAnalyze_LocalPath(t *testing.T) {
	a := NewHPCToolkitAnalyzer(nil)

	resp, err := a.Analyze(context.Background(), &AnalysisRequest{
		Input: testutil.GetTestDataPath(t, testutil.ExperimentFixture),
	})
	require.NoError(t, err)
	assert.Equal(t, "sedov", resp.Name)

	_, err = a.Analyze(context.Background(), &AnalysisRequest{Input: filepath.Join(t.TempDir(), "missing.xml")})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = a.Analyze(context.Background(), &AnalysisRequest{})
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestAnalyze_Storage(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, "runs/sedov/experiment.xml",
		testutil.LoadFixtureReader(t, testutil.ExperimentFixture)))

	a := NewHPCToolkitAnalyzer(&Config{Storage: store})
	resp, err := a.Analyze(ctx, &AnalysisRequest{Input: "runs/sedov/experiment.xml"})
	require.NoError(t, err)
	assert.Equal(t, "runs/sedov/experiment.xml", resp.Input)

	_, err = a.Analyze(ctx, &AnalysisRequest{Input: "runs/missing.xml"})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAnalyzeFromReader_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(previous)

	_, err := NewHPCToolkitAnalyzer(nil).AnalyzeFromReader(context.Background(), &AnalysisRequest{},
		testutil.LoadFixtureReader(t, testutil.ExperimentFixture))
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"analyzer.parse",
		"analyzer.build",
		"analyzer.ratios",
		"analyzer.hot_path",
		"analyzer.analyze",
	}, names)
}

func TestName(t *testing.T) {
	var a Analyzer = NewHPCToolkitAnalyzer(nil)
	assert.Equal(t, "hpctoolkit_analyzer", a.Name())
}
