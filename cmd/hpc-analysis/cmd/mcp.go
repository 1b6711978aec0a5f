package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hpc-analysis/internal/mcpserver"
)

var mcpBuild buildFlags

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the analysis tools over MCP on stdio",
	Long: `Run a Model Context Protocol server on stdin and stdout.

The server offers the load_experiment, hot_path, filter_nodes and summary
tools. Logs go to stderr or the configured log file so that stdout carries
only protocol messages.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := mcpBuild.newAnalyzer(0)
		if err != nil {
			return err
		}
		return mcpserver.New(a, Version, GetLogger()).ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpBuild.register(mcpCmd.Flags(), true)
}
