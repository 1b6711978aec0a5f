package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/hpc-analysis/internal/calltree"
	"github.com/hpc-analysis/internal/parser"
	"github.com/hpc-analysis/internal/parser/hpctoolkit"
	"github.com/hpc-analysis/internal/statistics"
	"github.com/hpc-analysis/internal/storage"
	"github.com/hpc-analysis/pkg/compression"
	apperrors "github.com/hpc-analysis/pkg/errors"
	"github.com/hpc-analysis/pkg/model"
	"github.com/hpc-analysis/pkg/telemetry"
	"github.com/hpc-analysis/pkg/utils"
)

// Config holds configuration for the HPCToolkit analyzer.
type Config struct {
	// Options are the default build options. Nil uses calltree.DefaultOptions.
	Options *calltree.Options

	// Storage resolves request inputs. Nil reads inputs from the local
	// filesystem.
	Storage storage.Storage

	// Parser reads the databases. Nil uses the experiment.xml reader.
	Parser parser.Parser

	// Logger is used for phase logging. If nil, logs are discarded.
	Logger utils.Logger

	// TopN configures the ranked rows of the summary.
	TopN int
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		Options: calltree.DefaultOptions(),
		TopN:    15,
	}
}

// HPCToolkitAnalyzer turns experiment.xml databases into analyzed call-tree
// tables.
type HPCToolkitAnalyzer struct {
	config *Config
	parser parser.Parser
	logger utils.Logger
}

// NewHPCToolkitAnalyzer creates a new analyzer.
func NewHPCToolkitAnalyzer(config *Config) *HPCToolkitAnalyzer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Options == nil {
		config.Options = calltree.DefaultOptions()
	}
	logger := config.Logger
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	p := config.Parser
	if p == nil {
		p = hpctoolkit.NewParser()
	}
	return &HPCToolkitAnalyzer{
		config: config,
		parser: p,
		logger: logger,
	}
}

// Name returns the analyzer name.
func (a *HPCToolkitAnalyzer) Name() string {
	return "hpctoolkit_analyzer"
}

// Analyze opens req.Input through the configured storage, or the local
// filesystem, and analyzes it.
func (a *HPCToolkitAnalyzer) Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResponse, error) {
	if req == nil || req.Input == "" {
		return nil, ErrMissingInput
	}

	var (
		input io.ReadCloser
		err   error
	)
	if a.config.Storage != nil {
		input, err = a.config.Storage.Download(ctx, req.Input)
	} else {
		input, err = os.Open(req.Input)
		if os.IsNotExist(err) {
			err = apperrors.Wrap(apperrors.CodeNotFound, "input not found: "+req.Input, apperrors.ErrNotFound)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer input.Close()

	return a.AnalyzeFromReader(ctx, req, input)
}

// AnalyzeFromReader parses, builds, computes ratios and locates the hot path.
// Gzip and zstd compressed input is detected and decompressed.
func (a *HPCToolkitAnalyzer) AnalyzeFromReader(ctx context.Context, req *AnalysisRequest, dataReader io.Reader) (resp *AnalysisResponse, err error) {
	if req == nil {
		req = &AnalysisRequest{}
	}
	start := time.Now()
	runUUID := req.RunUUID
	if runUUID == "" {
		runUUID = uuid.NewString()
	}
	opts := a.options(req)
	logger := a.logger.WithField("run", runUUID)

	ctx, span := telemetry.StartSpan(ctx, "analyzer.analyze", telemetry.AttrInput.String(req.Input))
	defer func() { telemetry.EndSpan(span, err) }()

	exp, err := phase(ctx, "analyzer.parse", func(ctx context.Context) (*model.Experiment, error) {
		reader, ctype, err := compression.NewReader(dataReader)
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		if ctype != compression.TypeNone {
			logger.Debug("decompressing %s input", ctype)
		}
		return a.parser.Parse(ctx, reader)
	})
	if err != nil {
		if errors.Is(err, parser.ErrEmptyInput) {
			return nil, ErrEmptyData
		}
		return nil, fmt.Errorf("%w: %w", ErrParseError, err)
	}
	logger.Info("loaded profile %q: %d metrics, %d procedures", exp.Name, len(exp.Metrics), len(exp.Procedures))

	table, err := phase(ctx, "analyzer.build", func(context.Context) (*calltree.Table, error) {
		return calltree.NewBuilder(opts).Build(exp)
	})
	if err != nil {
		return nil, err
	}

	_, err = phase(ctx, "analyzer.ratios", func(context.Context) (struct{}, error) {
		return struct{}{}, calltree.NewRatioCalculator(opts.RatioBaseMetrics...).WithLogger(logger).Compute(table)
	})
	if err != nil {
		return nil, err
	}

	hot, err := phase(ctx, "analyzer.hot_path", func(context.Context) (*calltree.Table, error) {
		return table.HotPath(calltree.HotPathOptions{
			Start:      req.HotPathStart,
			BaseMetric: opts.HotPathBaseMetric,
			Threshold:  opts.HotPathThreshold,
		})
	})
	if err != nil {
		// A hot path metric without ratio columns is a configuration
		// mismatch; the table is still useful.
		if apperrors.GetErrorCode(err) != apperrors.CodeInvalidInput {
			return nil, err
		}
		logger.Warn("skipping hot path: %v", err)
		hot = nil
	}

	resp = &AnalysisResponse{
		RunUUID:  runUUID,
		Name:     table.Name(),
		Input:    req.Input,
		Table:    table,
		HotPath:  hot,
		Summary:  Summarize(table, hot, opts.HotPathBaseMetric, a.topN(req)),
		Duration: time.Since(start),
	}
	span.SetAttributes(
		telemetry.AttrProfile.String(resp.Name),
		telemetry.AttrNodeCount.Int(resp.Summary.Nodes),
		telemetry.AttrPathLength.Int(len(resp.Summary.HotPath)),
		telemetry.AttrBaseMetric.String(resp.Summary.BaseMetric),
	)
	logger.Info("analyzed %q: %d nodes, max depth %d, hot path of %d steps in %s",
		resp.Name, resp.Summary.Nodes, resp.Summary.MaxDepth, len(resp.Summary.HotPath), resp.Duration)
	return resp, nil
}

// Summarize computes the summary of an analyzed table. hot may be nil.
func Summarize(table *calltree.Table, hot *calltree.Table, baseMetric string, topN int) Summary {
	s := Summary{
		Nodes:      table.Len(),
		Metrics:    table.MetricNames(),
		RatioBases: table.RatioBases(),
		BaseMetric: baseMetric,
		HotPath:    []string{},
	}
	for _, n := range table.Nodes() {
		if n.Depth > s.MaxDepth {
			s.MaxDepth = n.Depth
		}
	}
	if root := table.Root(); root != nil {
		s.Total, _ = root.Value(baseMetric)
	}
	if hot != nil {
		for _, n := range hot.Nodes() {
			s.HotPath = append(s.HotPath, n.Label())
		}
	}
	s.TopNodes = statistics.NewTopNodesCalculator(
		statistics.WithTopN(topN),
		statistics.WithMetric(baseMetric),
	).Calculate(table)
	s.Procedures = statistics.NewProcedureStatsCalculator(
		statistics.WithInclusiveMetric(baseMetric),
		statistics.WithMaxProcedures(topN),
	).Calculate(table)
	return s
}

func (a *HPCToolkitAnalyzer) options(req *AnalysisRequest) *calltree.Options {
	opts := a.config.Options
	if req.Options != nil {
		opts = req.Options
	}
	if opts.Logger == nil || req.MaxDepth != nil || req.ElideCallsites != nil {
		copied := *opts
		if copied.Logger == nil {
			copied.Logger = a.logger
		}
		if req.MaxDepth != nil {
			copied.MaxDepth = req.MaxDepth
		}
		if req.ElideCallsites != nil {
			copied.ElideCallsites = *req.ElideCallsites
		}
		opts = &copied
	}
	return opts
}

func (a *HPCToolkitAnalyzer) topN(req *AnalysisRequest) int {
	if req.TopN > 0 {
		return req.TopN
	}
	return a.config.TopN
}

// phase runs fn inside a child span named name.
func phase[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	ctx, span := telemetry.StartSpan(ctx, name)
	out, err := fn(ctx)
	telemetry.EndSpan(span, err)
	return out, err
}
