// Package analyzer runs the experiment database analysis pipeline.
package analyzer

import (
	"context"
	"io"
	"time"

	"github.com/hpc-analysis/internal/calltree"
	"github.com/hpc-analysis/internal/statistics"
)

// Analyzer is the interface for experiment database analyzers.
type Analyzer interface {
	// Analyze opens req.Input and analyzes it.
	Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResponse, error)

	// AnalyzeFromReader analyzes the database read from dataReader.
	AnalyzeFromReader(ctx context.Context, req *AnalysisRequest, dataReader io.Reader) (*AnalysisResponse, error)

	// Name returns the name of this analyzer.
	Name() string
}

// AnalysisRequest describes one analysis run.
type AnalysisRequest struct {
	// RunUUID identifies the run. A new one is generated when empty.
	RunUUID string
	// Input is a storage key, or a local path when no storage is configured.
	Input string
	// Options overrides the analyzer's build options for this run.
	Options *calltree.Options
	// MaxDepth and ElideCallsites, when set, replace the matching fields of
	// the effective options and leave the rest as configured.
	MaxDepth       *int
	ElideCallsites *bool
	// HotPathStart is the call path the hot path descends from.
	HotPathStart []int64
	// TopN limits the ranked rows of the summary.
	TopN int
}

// AnalysisResponse is the outcome of one run.
type AnalysisResponse struct {
	RunUUID  string          `json:"runUuid"`
	Name     string          `json:"name"`
	Input    string          `json:"input,omitempty"`
	Table    *calltree.Table `json:"table"`
	HotPath  *calltree.Table `json:"hotPath,omitempty"`
	Summary  Summary         `json:"summary"`
	Duration time.Duration   `json:"duration"`
}

// Summary holds the headline numbers of a run.
type Summary struct {
	Nodes      int                              `json:"nodes"`
	MaxDepth   int                              `json:"maxDepth"`
	Metrics    []string                         `json:"metrics"`
	RatioBases []string                         `json:"ratioBases"`
	BaseMetric string                           `json:"baseMetric"`
	Total      float64                          `json:"total"`
	HotPath    []string                         `json:"hotPath"`
	TopNodes   *statistics.TopNodesResult       `json:"topNodes,omitempty"`
	Procedures *statistics.ProcedureStatsResult `json:"procedures,omitempty"`
}
