package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hpc-analysis/internal/calltree"
	"github.com/hpc-analysis/internal/formatter"
)

var (
	// Hotpath command flags
	hotBuild buildFlags
	hotStart []string
)

// hotpathCmd represents the hotpath command
var hotpathCmd = &cobra.Command{
	Use:   "hotpath <experiment.xml>",
	Short: "Print the hot path of a database",
	Long: `Follow the hottest child from the root, or from --start, until a node's
ratio of total falls below the threshold. Each step prints its label with
its ratio of total and ratio of parent.`,
	Args: cobra.ExactArgs(1),
	RunE: runHotPath,
}

func init() {
	rootCmd.AddCommand(hotpathCmd)

	binName := BinName()
	hotpathCmd.Example = `  # Hot path from the root at the default 5% threshold
  ` + binName + ` hotpath experiment.xml

  # Hot path below main, stopping at 30%
  ` + binName + ` hotpath experiment.xml --start 2 --threshold 0.3`

	hotBuild.register(hotpathCmd.Flags(), true)
	hotpathCmd.Flags().StringSliceVar(&hotStart, "start", nil, "Call path to start from, e.g. 2,4")
}

func runHotPath(cmd *cobra.Command, args []string) error {
	start, err := parseCallPath(hotStart)
	if err != nil {
		return err
	}
	opts, err := hotBuild.options()
	if err != nil {
		return err
	}

	resp, err := hotBuild.analyzeOne(cmd.Context(), args[0], nil)
	if err != nil {
		return err
	}
	hot, err := resp.Table.HotPath(calltree.HotPathOptions{
		Start:      start,
		BaseMetric: opts.HotPathBaseMetric,
		Threshold:  opts.HotPathThreshold,
	})
	if err != nil {
		return err
	}
	return formatter.NewTableRenderer().RenderHotPath(cmd.OutOrStdout(), hot, opts.HotPathBaseMetric)
}
