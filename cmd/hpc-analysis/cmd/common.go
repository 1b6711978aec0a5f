package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hpc-analysis/internal/analyzer"
	"github.com/hpc-analysis/internal/calltree"
	"github.com/hpc-analysis/internal/storage"
	"github.com/hpc-analysis/pkg/compression"
)

// buildFlags are the table construction flags shared by the commands that
// load a database.
type buildFlags struct {
	maxDepth     int
	noElide      bool
	ratioMetrics []string
	threshold    float64
	hotMetric    string
	fromStorage  bool

	fs *pflag.FlagSet
}

// register adds the flags to fs. Commands that filter by depth themselves
// pass cutoff false and keep --max-depth for the filter.
func (f *buildFlags) register(fs *pflag.FlagSet, cutoff bool) {
	f.fs = fs
	if cutoff {
		fs.IntVar(&f.maxDepth, "max-depth", 0, "Stop the call tree below this depth (0 = root only, negative = unlimited)")
	}
	fs.BoolVar(&f.noElide, "no-elide", false, "Keep callsites as rows instead of splicing them into their parent")
	fs.StringSliceVar(&f.ratioMetrics, "ratio-metric", nil, "Metric to compute ratio columns for (repeatable)")
	fs.Float64Var(&f.threshold, "threshold", 0, "Hot path stop threshold in [0, 1]")
	fs.StringVar(&f.hotMetric, "hot-metric", "", "Metric the hot path is ranked by")
	fs.BoolVar(&f.fromStorage, "storage", false, "Read inputs as keys of the configured object storage")
}

// options merges the flags over the analysis section of the config.
func (f *buildFlags) options() (*calltree.Options, error) {
	opts, err := cfg.Analysis.BuildOptions(logger)
	if err != nil {
		return nil, err
	}
	if f.changed("max-depth") {
		opts.MaxDepth = nil
		if f.maxDepth >= 0 {
			opts.MaxDepth = calltree.Depth(f.maxDepth)
		}
	}
	if f.noElide {
		opts.ElideCallsites = false
	}
	if len(f.ratioMetrics) > 0 {
		opts.RatioBaseMetrics = append([]string(nil), f.ratioMetrics...)
	}
	if f.threshold < 0 || f.threshold > 1 {
		return nil, fmt.Errorf("threshold must be within [0, 1], got %v", f.threshold)
	}
	if f.changed("threshold") {
		opts.HotPathThreshold = f.threshold
	}
	if f.hotMetric != "" {
		opts.HotPathBaseMetric = f.hotMetric
		if !contains(opts.RatioBaseMetrics, f.hotMetric) {
			opts.RatioBaseMetrics = append(opts.RatioBaseMetrics, f.hotMetric)
		}
	}
	return opts, nil
}

func (f *buildFlags) changed(name string) bool {
	return f.fs != nil && f.fs.Changed(name)
}

// newAnalyzer creates an analyzer for the flags, reading inputs from
// object storage when requested.
func (f *buildFlags) newAnalyzer(topN int) (*analyzer.HPCToolkitAnalyzer, error) {
	opts, err := f.options()
	if err != nil {
		return nil, err
	}
	ac := &analyzer.Config{Options: opts, Logger: logger, TopN: topN}
	if f.fromStorage {
		st, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		ac.Storage = st
	}
	return analyzer.NewHPCToolkitAnalyzer(ac), nil
}

// analyzeOne loads a single input.
func (f *buildFlags) analyzeOne(ctx context.Context, input string, start []int64) (*analyzer.AnalysisResponse, error) {
	a, err := f.newAnalyzer(0)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, &analyzer.AnalysisRequest{Input: input, HotPathStart: start})
}

// parseCallPath parses "2,4" or "#2,#4" into node ids.
func parseCallPath(items []string) ([]int64, error) {
	var path []int64
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimPrefix(strings.TrimSpace(part), "#")
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid node id %q in call path", part)
			}
			path = append(path, id)
		}
	}
	return path, nil
}

func parseLevel(name string) (compression.Level, error) {
	switch strings.ToLower(name) {
	case "fastest", "1":
		return compression.LevelFastest, nil
	case "", "default", "3":
		return compression.LevelDefault, nil
	case "best", "9":
		return compression.LevelBest, nil
	default:
		return 0, fmt.Errorf("unknown compression level: %s (valid: fastest, default, best)", name)
	}
}

// optionalDepth returns nil unless the flag was given.
func optionalDepth(cmd *cobra.Command, name string, v int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return calltree.Depth(v)
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
