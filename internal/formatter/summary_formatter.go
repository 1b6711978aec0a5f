package formatter

import (
	"strings"

	"github.com/hpc-analysis/internal/analyzer"
	"github.com/hpc-analysis/pkg/utils"
)

// SummaryFormatter logs the headline numbers of a run.
type SummaryFormatter struct {
	// MaxItems limits the ranked rows printed per section.
	MaxItems int
}

// Format outputs the summary of resp to the logger.
func (f *SummaryFormatter) Format(resp *analyzer.AnalysisResponse, log utils.Logger) {
	if resp == nil {
		return
	}
	limit := f.MaxItems
	if limit <= 0 {
		limit = 10
	}
	s := resp.Summary

	log.Info("=== Analysis Results ===")
	log.Info("Run UUID:       %s", resp.RunUUID)
	log.Info("Profile:        %s", resp.Name)
	log.Info("Nodes:          %d", s.Nodes)
	log.Info("Max Depth:      %d", s.MaxDepth)
	log.Info("Base Metric:    %s", s.BaseMetric)
	log.Info("Total:          %.6g", s.Total)
	log.Info("Duration:       %s", resp.Duration)
	log.Info("")

	if len(s.HotPath) > 0 {
		log.Info("=== Hot Path ===")
		var ratios []float64
		if resp.HotPath != nil {
			for _, n := range resp.HotPath.Nodes() {
				ratios = append(ratios, n.Ratios[s.BaseMetric].OfTotal)
			}
		}
		for i, label := range s.HotPath {
			indent := strings.Repeat("  ", i)
			if i < len(ratios) {
				log.Info("  %s%s (%.2f%%)", indent, label, ratios[i]*100)
			} else {
				log.Info("  %s%s", indent, label)
			}
		}
		log.Info("")
	}

	if s.TopNodes != nil && len(s.TopNodes.Entries) > 0 {
		log.Info("=== Top Nodes ===")
		for i, e := range s.TopNodes.Entries {
			if i >= limit {
				log.Info("  ... and %d more nodes", len(s.TopNodes.Entries)-limit)
				break
			}
			log.Info("  %2d. %6.2f%%  %s", i+1, e.Percent, truncateString(e.Path, 100))
		}
		log.Info("")
	}

	if s.Procedures != nil && len(s.Procedures.Procedures) > 0 {
		log.Info("=== Procedures (exclusive) ===")
		for i, p := range s.Procedures.Procedures {
			if i >= limit {
				log.Info("  ... and %d more procedures", len(s.Procedures.Procedures)-limit)
				break
			}
			log.Info("  %2d. %6.2f%%  %s (%d frames)", i+1, p.Percent, truncateString(p.Procedure, 80), p.Frames)
		}
	}
}

// FormatSummary returns a summary map for serialization.
func (f *SummaryFormatter) FormatSummary(resp *analyzer.AnalysisResponse) map[string]interface{} {
	if resp == nil {
		return nil
	}
	s := resp.Summary
	summary := map[string]interface{}{
		"run_uuid":    resp.RunUUID,
		"profile":     resp.Name,
		"nodes":       s.Nodes,
		"max_depth":   s.MaxDepth,
		"base_metric": s.BaseMetric,
		"total":       s.Total,
		"hot_path":    s.HotPath,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	if s.TopNodes != nil && len(s.TopNodes.Entries) > 0 {
		top := s.TopNodes.Entries[0]
		summary["top_node"] = top.Path
		summary["top_node_percent"] = top.Percent
	}
	return summary
}
