package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/hpc-analysis/internal/formatter"
	"github.com/hpc-analysis/internal/repository"
)

var (
	// Runs command flags
	runsLimit    int
	runsOffset   int
	runsMinDepth int
	runsMaxDepth int
)

// runsCmd represents the runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect runs stored in the database",
	Long: `List, show and delete the runs saved by "analyze --save" or the web viewer.
The database is taken from the database section of the config.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-uuid>",
	Short: "Print the stored rows of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-uuid>...",
	Short: "Delete stored runs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRunsDelete,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd)

	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs")
	runsListCmd.Flags().IntVar(&runsOffset, "offset", 0, "Number of runs to skip")
	runsShowCmd.Flags().IntVar(&runsMinDepth, "min-depth", 0, "Keep rows at this depth or deeper")
	runsShowCmd.Flags().IntVar(&runsMaxDepth, "max-depth", 0, "Keep rows at this depth or shallower")
}

func openRuns() (*repository.Repositories, error) {
	repos, err := repository.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return repos, nil
}

func runRunsList(cmd *cobra.Command, args []string) error {
	repos, err := openRuns()
	if err != nil {
		return err
	}
	defer repos.Close()

	runs, err := repos.Run.ListRuns(cmd.Context(), runsLimit, runsOffset)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no stored runs")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		hot, err := r.HotPathLabels()
		if err != nil {
			return err
		}
		rows = append(rows, []string{
			r.RunUUID,
			r.Name,
			fmt.Sprintf("%d", r.Nodes),
			fmt.Sprintf("%d", r.MaxDepth),
			fmt.Sprintf("%.6g", r.Total),
			strings.Join(hot, " > "),
			r.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("run", "profile", "nodes", "depth", "total", "hot path", "created").
		Rows(rows...)
	fmt.Fprintln(cmd.OutOrStdout(), t.String())
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	repos, err := openRuns()
	if err != nil {
		return err
	}
	defer repos.Close()

	ctx := cmd.Context()
	run, err := repos.Run.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	columns, err := run.ColumnNames()
	if err != nil {
		return err
	}
	rows, err := repos.Run.GetRows(ctx, run.RunUUID,
		optionalDepth(cmd, "min-depth", runsMinDepth),
		optionalDepth(cmd, "max-depth", runsMaxDepth))
	if err != nil {
		return err
	}

	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		values, err := row.ColumnValues()
		if err != nil {
			return err
		}
		cells := []string{fmt.Sprintf("%d", row.NodeID), strings.Repeat("  ", row.Depth) + lastLabel(row.Path)}
		for _, c := range columns {
			var v *float64
			if x, ok := values[c]; ok {
				v = &x
			}
			cells = append(cells, formatter.FormatValue(c, v))
		}
		out = append(out, cells)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %d of %d nodes\n", run.Name, run.RunUUID, len(rows), run.Nodes)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(append([]string{"id", "call path"}, columns...)...).
		Rows(out...)
	fmt.Fprintln(cmd.OutOrStdout(), t.String())
	return nil
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	repos, err := openRuns()
	if err != nil {
		return err
	}
	defer repos.Close()

	for _, id := range args {
		if err := repos.Run.DeleteRun(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
	}
	return nil
}

// lastLabel returns the last element of a " > " joined path.
func lastLabel(path string) string {
	if i := strings.LastIndex(path, " > "); i >= 0 {
		return path[i+3:]
	}
	return path
}
