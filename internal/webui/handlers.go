package webui

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hpc-analysis/internal/analyzer"
	"github.com/hpc-analysis/internal/calltree"
	"github.com/hpc-analysis/internal/formatter"
	"github.com/hpc-analysis/internal/repository"
	apperrors "github.com/hpc-analysis/pkg/errors"
)

type runInfo struct {
	RunUUID    string    `json:"runUuid"`
	Name       string    `json:"name"`
	Input      string    `json:"input,omitempty"`
	Nodes      int       `json:"nodes"`
	MaxDepth   int       `json:"maxDepth"`
	BaseMetric string    `json:"baseMetric"`
	Total      float64   `json:"total"`
	HotPath    []string  `json:"hotPath"`
	Loaded     bool      `json:"loaded"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}

type nodeJSON struct {
	ID     int64               `json:"id"`
	Label  string              `json:"label"`
	Path   string              `json:"path"`
	Depth  int                 `json:"depth"`
	Type   calltree.NodeType   `json:"type"`
	Values map[string]*float64 `json:"values"`
}

type hotStep struct {
	ID       int64   `json:"id"`
	Label    string  `json:"label"`
	Depth    int     `json:"depth"`
	OfTotal  float64 `json:"ofTotal"`
	OfParent float64 `json:"ofParent"`
}

type createRunRequest struct {
	RunUUID  string `json:"runUuid"`
	Input    string `json:"input"`
	MaxDepth *int   `json:"maxDepth"`
	Elide    *bool  `json:"elideCallsites"`
}

func infoFromResponse(resp *analyzer.AnalysisResponse) runInfo {
	return runInfo{
		RunUUID:    resp.RunUUID,
		Name:       resp.Name,
		Input:      resp.Input,
		Nodes:      resp.Summary.Nodes,
		MaxDepth:   resp.Summary.MaxDepth,
		BaseMetric: resp.Summary.BaseMetric,
		Total:      resp.Summary.Total,
		HotPath:    resp.Summary.HotPath,
		Loaded:     true,
	}
}

func infoFromRecord(run *repository.ProfileRun) runInfo {
	hot, _ := run.HotPathLabels()
	return runInfo{
		RunUUID:    run.RunUUID,
		Name:       run.Name,
		Input:      run.Input,
		Nodes:      run.Nodes,
		MaxDepth:   run.MaxDepth,
		BaseMetric: run.BaseMetric,
		Total:      run.Total,
		HotPath:    hot,
		CreatedAt:  run.CreatedAt,
	}
}

// handleListRuns lists loaded runs, newest first, followed by stored runs
// that are not loaded.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := []runInfo{}
	seen := make(map[string]bool)
	for _, resp := range s.cachedRuns() {
		runs = append(runs, infoFromResponse(resp))
		seen[resp.RunUUID] = true
	}

	if s.runs != nil {
		stored, err := s.runs.ListRuns(r.Context(), 0, 0)
		if err != nil {
			s.writeError(w, err)
			return
		}
		for _, run := range stored {
			if !seen[run.RunUUID] {
				runs = append(runs, infoFromRecord(run))
			}
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// handleCreateRun analyzes an input and loads the result.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		s.writeError(w, apperrors.Wrap(apperrors.CodeInvalidInput, "server has no analyzer", apperrors.ErrInvalidInput))
		return
	}

	var body createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid request body", err))
		return
	}
	if body.Input == "" {
		s.writeError(w, apperrors.Wrap(apperrors.CodeInvalidInput, "input is required", apperrors.ErrInvalidInput))
		return
	}

	req := &analyzer.AnalysisRequest{
		RunUUID:        body.RunUUID,
		Input:          body.Input,
		MaxDepth:       body.MaxDepth,
		ElideCallsites: body.Elide,
	}

	resp, err := s.analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.AddRun(resp)

	if s.runs != nil {
		run, rows, err := repository.NewRecord(resp)
		if err == nil {
			err = s.runs.SaveRun(r.Context(), run, rows)
		}
		if err != nil {
			s.logger.Warn("failed to persist run %s: %v", resp.RunUUID, err)
		}
	}

	s.writeJSON(w, http.StatusCreated, infoFromResponse(resp))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runUUID := chi.URLParam(r, "run")
	if resp, err := s.run(runUUID); err == nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"run":     infoFromResponse(resp),
			"summary": resp.Summary,
		})
		return
	}

	if s.runs == nil {
		s.writeError(w, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("run not found: %s", runUUID), apperrors.ErrNotFound))
		return
	}
	run, err := s.runs.GetRun(r.Context(), runUUID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"run": infoFromRecord(run)})
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runUUID := chi.URLParam(r, "run")
	removed := s.removeRun(runUUID)

	if s.runs != nil {
		err := s.runs.DeleteRun(r.Context(), runUUID)
		if err != nil && !(removed && apperrors.IsNotFound(err)) {
			s.writeError(w, err)
			return
		}
	} else if !removed {
		s.writeError(w, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("run not found: %s", runUUID), apperrors.ErrNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	resp, err := s.run(r.URL.Query().Get("run"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":        resp.RunUUID,
		"columns":    resp.Table.Columns(),
		"metrics":    resp.Table.MetricNames(),
		"ratioBases": resp.Table.RatioBases(),
		"views":      s.views.Names(),
	})
}

// handleNodes returns table rows filtered by depth and call path and
// projected onto a view or an explicit column list.
//
// Query parameters: run, min_depth, max_depth, prefix and suffix (repeated
// path patterns: "#id", "~regexp" or a label), view, column (repeated).
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.run(q.Get("run"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	minDepth, err := intParam(q.Get("min_depth"), "min_depth")
	if err != nil {
		s.writeError(w, err)
		return
	}
	maxDepth, err := intParam(q.Get("max_depth"), "max_depth")
	if err != nil {
		s.writeError(w, err)
		return
	}
	prefix, err := patternParam(q["prefix"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	suffix, err := patternParam(q["suffix"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	table, err := resp.Table.FilterByDepth(minDepth, maxDepth).FilterByPath(calltree.PathQuery{Prefix: prefix, Suffix: suffix})
	if err != nil {
		s.writeError(w, err)
		return
	}

	var p *calltree.Projection
	switch {
	case len(q["column"]) > 0:
		p, err = table.Select(q["column"]...)
	case q.Get("view") != "":
		p, err = s.views.Project(table, formatter.View(q.Get("view")))
	default:
		p, err = table.Select(table.Columns()...)
	}
	if err != nil {
		s.writeError(w, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid projection", err))
		return
	}

	nodes := make([]nodeJSON, 0, len(p.Rows))
	for _, row := range p.Rows {
		n := nodeJSON{
			ID:     row.Node.ID,
			Label:  row.Node.Label(),
			Path:   row.Node.Path(),
			Depth:  row.Node.Depth,
			Type:   row.Node.Type,
			Values: make(map[string]*float64, len(p.Columns)),
		}
		for i, c := range p.Columns {
			n.Values[c] = row.Values[i]
		}
		nodes = append(nodes, n)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":     resp.RunUUID,
		"columns": p.Columns,
		"nodes":   nodes,
	})
}

// handleHotPath locates the hot path. Query parameters: run, start
// (repeated node ids), metric, threshold.
func (s *Server) handleHotPath(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.run(q.Get("run"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	opts := calltree.DefaultHotPathOptions()
	if base := resp.Summary.BaseMetric; base != "" {
		opts.BaseMetric = base
	}
	if m := q.Get("metric"); m != "" {
		opts.BaseMetric = m
	}
	if th := q.Get("threshold"); th != "" {
		v, err := strconv.ParseFloat(th, 64)
		if err != nil || v < 0 || v > 1 {
			s.writeError(w, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("invalid threshold %q", th), apperrors.ErrInvalidInput))
			return
		}
		opts.Threshold = v
	}
	for _, raw := range q["start"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("invalid start id %q", raw), apperrors.ErrInvalidInput))
			return
		}
		opts.Start = append(opts.Start, id)
	}

	hot, err := resp.Table.HotPath(opts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	steps := make([]hotStep, 0, hot.Len())
	for _, n := range hot.Nodes() {
		ratio := n.Ratios[opts.BaseMetric]
		steps = append(steps, hotStep{
			ID:       n.ID,
			Label:    n.Label(),
			Depth:    n.Depth,
			OfTotal:  ratio.OfTotal,
			OfParent: ratio.OfParent,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":       resp.RunUUID,
		"metric":    opts.BaseMetric,
		"threshold": opts.Threshold,
		"path":      steps,
	})
}

func intParam(raw, name string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("invalid %s %q", name, raw), apperrors.ErrInvalidInput)
	}
	return &v, nil
}

func patternParam(items []string) ([]calltree.PathPattern, error) {
	patterns, err := calltree.ParsePathPatterns(items)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid path pattern", err)
	}
	return patterns, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeInvalidInput, apperrors.CodeMalformedInput, apperrors.CodeParseError, apperrors.CodeEmptyFile:
		status = http.StatusBadRequest
	case apperrors.CodeUnsupportedQuery:
		status = http.StatusNotImplemented
	}
	if errors.Is(err, analyzer.ErrParseError) || errors.Is(err, analyzer.ErrEmptyData) {
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed: %v", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}
