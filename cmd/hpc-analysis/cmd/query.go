package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hpc-analysis/internal/calltree"
	"github.com/hpc-analysis/internal/formatter"
)

var (
	// Query command flags
	queryBuild    buildFlags
	queryMinDepth int
	queryMaxDepth int
	queryPrefix   []string
	querySuffix   []string
	queryView     string
	queryColumns  []string
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query <experiment.xml>",
	Short: "Filter a call-tree table and print it",
	Long: `Filter the nodes of a call-tree table by depth and call path, then print a
projection of its columns.

Call path patterns are "#<id>" for a node id, "~<regexp>" for a label
expression, or a plain label. --prefix matches the first elements of a
node's call path and --suffix the last ones.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	binName := BinName()
	queryCmd.Example = `  # First two levels, inclusive metrics
  ` + binName + ` query experiment.xml --max-depth 2 --view basic_i

  # Everything under main whose label is a statement
  ` + binName + ` query experiment.xml --prefix main.2 --suffix '~^<statement'

  # Selected columns of the nodes at depth 3
  ` + binName + ` query experiment.xml --min-depth 3 --max-depth 3 --columns 'CPUTIME (usec):Mean (E)'`

	queryBuild.register(queryCmd.Flags(), false)
	queryCmd.Flags().IntVar(&queryMinDepth, "min-depth", 0, "Keep nodes at this depth or deeper")
	queryCmd.Flags().IntVar(&queryMaxDepth, "max-depth", 0, "Keep nodes at this depth or shallower")
	queryCmd.Flags().StringArrayVar(&queryPrefix, "prefix", nil, "Call path prefix pattern (repeatable)")
	queryCmd.Flags().StringArrayVar(&querySuffix, "suffix", nil, "Call path suffix pattern (repeatable)")
	queryCmd.Flags().StringVar(&queryView, "view", string(formatter.ViewCompact), "Projection: compact, basic_i, basic_e or all")
	queryCmd.Flags().StringArrayVar(&queryColumns, "columns", nil, "Explicit columns instead of a view (repeatable)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	prefix, err := calltree.ParsePathPatterns(queryPrefix)
	if err != nil {
		return err
	}
	suffix, err := calltree.ParsePathPatterns(querySuffix)
	if err != nil {
		return err
	}

	resp, err := queryBuild.analyzeOne(cmd.Context(), args[0], nil)
	if err != nil {
		return err
	}

	t := resp.Table.FilterByDepth(
		optionalDepth(cmd, "min-depth", queryMinDepth),
		optionalDepth(cmd, "max-depth", queryMaxDepth),
	)
	if len(prefix) > 0 || len(suffix) > 0 {
		t, err = t.FilterByPath(calltree.PathQuery{Prefix: prefix, Suffix: suffix})
		if err != nil {
			return err
		}
	}
	if t.Len() == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no nodes match")
		return nil
	}

	var p *calltree.Projection
	if len(queryColumns) > 0 {
		p, err = t.Select(queryColumns...)
	} else {
		p, err = formatter.NewRegistry().Project(t, formatter.View(queryView))
	}
	if err != nil {
		return err
	}
	return formatter.NewTableRenderer().Render(cmd.OutOrStdout(), p)
}
