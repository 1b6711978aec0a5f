// Package mcpserver exposes call-tree analysis as MCP tools over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpc-analysis/internal/analyzer"
	"github.com/hpc-analysis/internal/calltree"
	"github.com/hpc-analysis/internal/formatter"
	"github.com/hpc-analysis/pkg/utils"
)

// ServerName is the MCP implementation name.
const ServerName = "hpc-analysis"

// Server holds loaded runs and the MCP tool registrations.
type Server struct {
	analyzer analyzer.Analyzer
	logger   utils.Logger
	mcp      *server.MCPServer
	views    *formatter.Registry
	renderer *formatter.TableRenderer

	mu      sync.RWMutex
	runs    map[string]*analyzer.AnalysisResponse
	byInput map[string]string
	latest  string
}

// New creates the server and registers its tools.
func New(a analyzer.Analyzer, version string, logger utils.Logger) *Server {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	s := &Server{
		analyzer: a,
		logger:   logger,
		views:    formatter.NewRegistry(),
		renderer: formatter.NewTableRenderer(),
		runs:     make(map[string]*analyzer.AnalysisResponse),
		byInput:  make(map[string]string),
	}
	s.mcp = server.NewMCPServer(ServerName, version, server.WithLogging())
	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves the tools on stdin and stdout until the client leaves.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	runArg := mcp.WithString("run",
		mcp.Description("Run id or input path returned by load_experiment (default: the last loaded run)"),
	)

	s.mcp.AddTool(mcp.NewTool("load_experiment",
		mcp.WithDescription("Load an HPCToolkit experiment.xml database (plain, gzip or zstd) and build its call tree with inclusive/exclusive metrics and ratios."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path or storage key of the experiment database"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Deepest call-tree level to keep (default: unlimited)"),
		),
		mcp.WithBoolean("elide_callsites",
			mcp.Description("Fold callsite nodes into their callee (default: true)"),
		),
	), s.handleLoadExperiment)

	s.mcp.AddTool(mcp.NewTool("hot_path",
		mcp.WithDescription("Follow the most expensive child at each level, starting at the root or a given call path, until the share of total drops below the threshold."),
		runArg,
		mcp.WithArray("start",
			mcp.Description("Call path of node ids to start from, e.g. [2, 4]"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum ratio of total to keep descending (default: 0.05)"),
		),
		mcp.WithString("metric",
			mcp.Description("Ratio base metric (default: the run's base metric)"),
		),
	), s.handleHotPath)

	s.mcp.AddTool(mcp.NewTool("filter_nodes",
		mcp.WithDescription("List call-tree nodes filtered by depth and call path. Path patterns are \"#<id>\", \"~<regexp>\" or a literal label."),
		runArg,
		mcp.WithNumber("min_depth", mcp.Description("Shallowest depth to keep")),
		mcp.WithNumber("max_depth", mcp.Description("Deepest depth to keep")),
		mcp.WithArray("prefix",
			mcp.Description("Patterns the call path must start with"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("suffix",
			mcp.Description("Patterns the call path must end with"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("view",
			mcp.Description("Column view: compact, basic_i, basic_e or all (default: compact)"),
		),
		mcp.WithNumber("limit", mcp.Description("Maximum number of rows (default: 50)")),
	), s.handleFilterNodes)

	s.mcp.AddTool(mcp.NewTool("summary",
		mcp.WithDescription("Summarize a loaded run: size, hot path, top nodes and most expensive procedures."),
		runArg,
	), s.handleSummary)
}

func (s *Server) addRun(input string, resp *analyzer.AnalysisResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[resp.RunUUID] = resp
	s.byInput[input] = resp.RunUUID
	s.latest = resp.RunUUID
}

func (s *Server) lookup(run string) (*analyzer.AnalysisResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if run == "" {
		run = s.latest
	}
	if id, ok := s.byInput[run]; ok {
		run = id
	}
	resp, ok := s.runs[run]
	if !ok {
		return nil, fmt.Errorf("run %q not loaded. Use load_experiment first", run)
	}
	return resp, nil
}

func (s *Server) handleLoadExperiment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := &analyzer.AnalysisRequest{Input: path}
	args := request.GetArguments()
	if _, ok := args["max_depth"]; ok {
		if d := request.GetFloat("max_depth", -1); d >= 0 {
			req.MaxDepth = calltree.Depth(int(d))
		}
	}
	if _, ok := args["elide_callsites"]; ok {
		elide := request.GetBool("elide_callsites", true)
		req.ElideCallsites = &elide
	}

	resp, err := s.analyzer.Analyze(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load experiment: %v", err)), nil
	}
	s.addRun(path, resp)
	s.logger.Info("loaded %s as run %s", path, resp.RunUUID)

	return mcp.NewToolResultText(fmt.Sprintf(`Experiment loaded successfully!

Run: %s
Profile: %s
Nodes: %d
Max depth: %d
Metrics: %d
Base metric: %s
Total: %.6g

Use hot_path, filter_nodes or summary to analyze this run.
`,
		resp.RunUUID, resp.Name, resp.Summary.Nodes, resp.Summary.MaxDepth,
		len(resp.Summary.Metrics), resp.Summary.BaseMetric, resp.Summary.Total)), nil
}

func (s *Server) handleHotPath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.lookup(request.GetString("run", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	opts := calltree.DefaultHotPathOptions()
	if resp.Summary.BaseMetric != "" {
		opts.BaseMetric = resp.Summary.BaseMetric
	}
	opts.BaseMetric = request.GetString("metric", opts.BaseMetric)
	opts.Threshold = request.GetFloat("threshold", opts.Threshold)
	for _, raw := range request.GetStringSlice("start", nil) {
		id, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 10, 64)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid start id %q", raw)), nil
		}
		opts.Start = append(opts.Start, id)
	}

	hot, err := resp.Table.HotPath(opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if hot.Len() == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("no node at call path %v", opts.Start)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Hot path of %s (metric %s, threshold %.2f%%):\n\n", resp.Name, opts.BaseMetric, opts.Threshold*100)
	if err := s.renderer.RenderHotPath(&sb, hot, opts.BaseMetric); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleFilterNodes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.lookup(request.GetString("run", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var minDepth, maxDepth *int
	if d := request.GetFloat("min_depth", -1); d >= 0 {
		minDepth = calltree.Depth(int(d))
	}
	if d := request.GetFloat("max_depth", -1); d >= 0 {
		maxDepth = calltree.Depth(int(d))
	}
	prefix, err := calltree.ParsePathPatterns(request.GetStringSlice("prefix", nil))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	suffix, err := calltree.ParsePathPatterns(request.GetStringSlice("suffix", nil))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	table, err := resp.Table.FilterByDepth(minDepth, maxDepth).FilterByPath(calltree.PathQuery{Prefix: prefix, Suffix: suffix})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p, err := s.views.Project(table, formatter.View(request.GetString("view", string(formatter.ViewCompact))))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	total := len(p.Rows)
	limit := int(request.GetFloat("limit", 50))
	if limit > 0 && len(p.Rows) > limit {
		p.Rows = p.Rows[:limit]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d of %d nodes match.\n\n", len(p.Rows), total)
	if err := s.renderer.Render(&sb, p); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.lookup(request.GetString("run", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sum := resp.Summary

	var sb strings.Builder
	fmt.Fprintf(&sb, "Profile: %s (run %s)\n", resp.Name, resp.RunUUID)
	fmt.Fprintf(&sb, "Nodes: %d, max depth %d\n", sum.Nodes, sum.MaxDepth)
	fmt.Fprintf(&sb, "Total %s: %.6g\n\n", sum.BaseMetric, sum.Total)

	if len(sum.HotPath) > 0 {
		sb.WriteString("Hot path:\n")
		for i, label := range sum.HotPath {
			fmt.Fprintf(&sb, "%s%s\n", strings.Repeat("  ", i), label)
		}
		sb.WriteString("\n")
	}

	if sum.TopNodes != nil && len(sum.TopNodes.Entries) > 0 {
		sb.WriteString("Top nodes:\n")
		for i, e := range sum.TopNodes.Entries {
			fmt.Fprintf(&sb, "%2d. %6.2f%%  %s\n", i+1, e.Percent, e.Path)
		}
		sb.WriteString("\n")
	}

	if sum.Procedures != nil && len(sum.Procedures.Procedures) > 0 {
		sb.WriteString("Procedures by exclusive cost:\n")
		for i, p := range sum.Procedures.Procedures {
			fmt.Fprintf(&sb, "%2d. %6.2f%%  %s [%s]\n", i+1, p.Percent, p.Procedure, p.Module)
		}
	}

	return mcp.NewToolResultText(sb.String()), nil
}
