package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hpc-analysis/internal/analyzer"
	"github.com/hpc-analysis/internal/export"
	"github.com/hpc-analysis/internal/formatter"
	"github.com/hpc-analysis/internal/repository"
)

var (
	// Analyze command flags
	analyzeBuild   buildFlags
	analyzeTop     int
	analyzeView    string
	analyzeSave    bool
	analyzeWorkers int
	analyzeOutput  string
	analyzeJSON    bool
	analyzeStart   []string
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <experiment.xml>...",
	Short: "Analyze one or more experiment databases",
	Long: `Analyze experiment databases and report their summary and hot path.

For every input the analyze command:
  - parses the metric table and the procedure, file and module dictionaries
  - builds the call tree, evaluating derived metric formulas per node
  - computes ratio-of-total and ratio-of-parent columns
  - follows the hot path from the root (or --start)

Inputs ending in .gz or .zst, or carrying their magic bytes, are
decompressed transparently. Several inputs are analyzed in parallel.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	binName := BinName()
	analyzeCmd.Example = `  # Analyze a database
  ` + binName + ` analyze experiment.xml

  # Keep callsites and stop below depth 3
  ` + binName + ` analyze experiment.xml --no-elide --max-depth 3

  # Analyze several runs on 4 workers and store them
  ` + binName + ` analyze run*/experiment.xml --workers 4 --save

  # Print the table and write it as CSV
  ` + binName + ` analyze experiment.xml --view basic_i -o sedov.csv`

	analyzeBuild.register(analyzeCmd.Flags(), true)
	analyzeCmd.Flags().IntVarP(&analyzeTop, "top", "n", 15, "Number of ranked nodes in the summary")
	analyzeCmd.Flags().StringVar(&analyzeView, "view", "", "Also print the table: compact, basic_i, basic_e or all")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "Store the runs in the configured database")
	analyzeCmd.Flags().IntVarP(&analyzeWorkers, "workers", "w", 0, "Parallel analyses (0 = number of CPUs)")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Export the table; the format follows the extension")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the summaries as JSON instead of logging them")
	analyzeCmd.Flags().StringSliceVar(&analyzeStart, "start", nil, "Call path the hot path starts from, e.g. 2,4")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := GetLogger()

	if analyzeOutput != "" && len(args) > 1 {
		return fmt.Errorf("--output requires a single input, got %d", len(args))
	}
	start, err := parseCallPath(analyzeStart)
	if err != nil {
		return err
	}

	a, err := analyzeBuild.newAnalyzer(analyzeTop)
	if err != nil {
		return err
	}

	reqs := make([]*analyzer.AnalysisRequest, len(args))
	for i, input := range args {
		reqs[i] = &analyzer.AnalysisRequest{Input: input, HotPathStart: start, TopN: analyzeTop}
	}
	log.Info("analyzing %d input(s) with %s", len(reqs), a.Name())
	results, batchErr := analyzer.AnalyzeAll(ctx, a, reqs, analyzeWorkers)

	var repos *repository.Repositories
	if analyzeSave {
		repos, err = repository.Open(&cfg.Database)
		if err != nil {
			return err
		}
		defer repos.Close()
	}

	f := &formatter.SummaryFormatter{MaxItems: analyzeTop}
	var summaries []map[string]interface{}
	for _, res := range results {
		if res.Err != nil {
			log.Error("%s: %v", res.Request.Input, res.Err)
			continue
		}
		resp := res.Response

		if analyzeJSON {
			summaries = append(summaries, f.FormatSummary(resp))
		} else {
			f.Format(resp, log)
		}

		if analyzeView != "" {
			if err := renderView(cmd, resp, formatter.View(analyzeView)); err != nil {
				return err
			}
		}

		if analyzeOutput != "" {
			if err := exportTable(resp, analyzeOutput, "default"); err != nil {
				return err
			}
		}

		if repos != nil {
			run, rows, err := repository.NewRecord(resp)
			if err != nil {
				return err
			}
			if err := repos.Run.SaveRun(ctx, run, rows); err != nil {
				return fmt.Errorf("failed to save run %s: %w", resp.RunUUID, err)
			}
			log.Info("saved run %s (%d rows)", resp.RunUUID, len(rows))
		}
	}

	if analyzeJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(summaries); err != nil {
			return err
		}
	}
	return batchErr
}

// renderView prints the projection of resp's table as a terminal table.
func renderView(cmd *cobra.Command, resp *analyzer.AnalysisResponse, view formatter.View) error {
	p, err := formatter.NewRegistry().Project(resp.Table, view)
	if err != nil {
		return err
	}
	r := formatter.NewTableRenderer()
	r.HotThreshold = cfg.Analysis.HotPathThreshold
	return r.Render(cmd.OutOrStdout(), p)
}

func exportTable(resp *analyzer.AnalysisResponse, path, level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	res, err := export.WriteToFile(path, resp.Table, lvl)
	if err != nil {
		return err
	}
	GetLogger().Info("wrote %s (%s, %s): %d bytes, %.1f%% of %d", res.Path, res.Format, res.Compression,
		res.CompressedSize, res.CompressionPct, res.RawSize)
	return nil
}
