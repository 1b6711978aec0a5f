package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hpc-analysis/internal/storage"
)

var (
	// Export command flags
	exportBuild  buildFlags
	exportOutput string
	exportLevel  string
	exportUpload string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <experiment.xml>",
	Short: "Write a call-tree table to a file",
	Long: `Write the analyzed call-tree table of a database to a file.

The format follows the file extension: .json, .yaml, .csv or .pprof. A
trailing .gz or .zst compresses the output. pprof files carry the exclusive
metrics as sample values and open in "go tool pprof".`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	binName := BinName()
	exportCmd.Example = `  # Gzipped JSON
  ` + binName + ` export experiment.xml -o sedov.json.gz

  # pprof profile, best zstd compression, uploaded to object storage
  ` + binName + ` export experiment.xml -o sedov.pprof.zst --level best --upload tables/sedov.pprof.zst`

	exportBuild.register(exportCmd.Flags(), true)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (required)")
	exportCmd.Flags().StringVar(&exportLevel, "level", "default", "Compression level: fastest, default or best")
	exportCmd.Flags().StringVar(&exportUpload, "upload", "", "Also upload the file to this object storage key")
	exportCmd.MarkFlagRequired("output")
}

func runExport(cmd *cobra.Command, args []string) error {
	if _, err := parseLevel(exportLevel); err != nil {
		return err
	}

	resp, err := exportBuild.analyzeOne(cmd.Context(), args[0], nil)
	if err != nil {
		return err
	}
	if err := exportTable(resp, exportOutput, exportLevel); err != nil {
		return err
	}

	if exportUpload == "" {
		return nil
	}
	st, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	if err := st.UploadFile(cmd.Context(), exportUpload, exportOutput); err != nil {
		return err
	}
	GetLogger().Info("uploaded %s to %s", exportOutput, st.GetURL(exportUpload))
	return nil
}
