package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hpc-analysis/pkg/config"
	"github.com/hpc-analysis/pkg/telemetry"
	"github.com/hpc-analysis/pkg/utils"
)

var (
	// Global flags
	cfgFile   string
	verbose   bool
	logFormat string

	cfg               *config.Config
	logger            utils.Logger = &utils.NullLogger{}
	telemetryShutdown telemetry.ShutdownFunc
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hpc-analysis",
	Short: "Call-tree analysis of HPCToolkit experiment databases",
	Long: `hpc-analysis loads HPCToolkit experiment.xml databases into call-tree tables.

Each node carries its raw metrics, derived formula metrics and ratio columns
relative to the whole program and to its parent. Tables can be filtered by
call path or depth, searched for their hot path, exported, stored in a
database and browsed over HTTP or MCP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Log.Level = "debug"
		}
		if logFormat != "" {
			loaded.Log.Format = logFormat
		}
		cfg = loaded

		l, err := cfg.Log.NewLogger()
		if err != nil {
			return err
		}
		logger = l
		utils.SetGlobalLogger(logger)

		shutdown, err := telemetry.InitWithConfig(cmd.Context(), cfg.Telemetry.Overlay(telemetry.GetConfig()))
		if err != nil {
			logger.Warn("telemetry disabled: %v", err)
		}
		telemetryShutdown = shutdown
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if telemetryShutdown != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := telemetryShutdown(ctx); err != nil {
				logger.Warn("failed to flush traces: %v", err)
			}
		}
		// Sync fails on terminals.
		if s, ok := logger.(interface{ Sync() error }); ok && cfg != nil && cfg.Log.OutputPath != "" {
			_ = s.Sync()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")

	binName := BinName()
	rootCmd.Example = `  # Analyze a database and print its summary and hot path
  ` + binName + ` analyze ./hpctoolkit-sedov-database/experiment.xml

  # Show the inclusive metrics of the first two levels
  ` + binName + ` query experiment.xml --max-depth 2 --view basic_i

  # Export the table as gzipped JSON
  ` + binName + ` export experiment.xml -o sedov.json.gz

  # Browse several databases in the web viewer
  ` + binName + ` serve run1/experiment.xml run2/experiment.xml --addr :8080`
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}
