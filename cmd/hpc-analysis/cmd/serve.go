package cmd

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hpc-analysis/internal/analyzer"
	"github.com/hpc-analysis/internal/repository"
	"github.com/hpc-analysis/internal/webui"
)

var (
	// Serve command flags
	serveBuild   buildFlags
	serveAddr    string
	serveNoDB    bool
	serveWorkers int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve [experiment.xml]...",
	Short: "Start the web viewer",
	Long: `Start an HTTP server to browse call-tree tables.

Databases given as arguments are analyzed before the server starts. More
can be loaded through POST /api/runs. Unless --no-db is set, runs are also
listed from and stored to the configured database.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	binName := BinName()
	serveCmd.Example = `  # Serve two runs on the configured address
  ` + binName + ` serve run1/experiment.xml run2/experiment.xml

  # Serve on another port without a database
  ` + binName + ` serve experiment.xml --addr :9090 --no-db`

	serveBuild.register(serveCmd.Flags(), true)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveNoDB, "no-db", false, "Do not attach the run database")
	serveCmd.Flags().IntVarP(&serveWorkers, "workers", "w", 0, "Parallel analyses at startup (0 = number of CPUs)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	a, err := serveBuild.newAnalyzer(0)
	if err != nil {
		return err
	}
	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	opts := []webui.Option{webui.WithAnalyzer(a), webui.WithLogger(log)}
	if !serveNoDB {
		repos, err := repository.Open(&cfg.Database)
		if err != nil {
			return err
		}
		defer repos.Close()
		opts = append(opts, webui.WithRunRepository(repos.Run))
	}
	server := webui.NewServer(addr, opts...)

	if len(args) > 0 {
		reqs := make([]*analyzer.AnalysisRequest, len(args))
		for i, input := range args {
			reqs[i] = &analyzer.AnalysisRequest{Input: input}
		}
		results, err := analyzer.AnalyzeAll(cmd.Context(), a, reqs, serveWorkers)
		if err != nil {
			return err
		}
		for _, res := range results {
			server.AddRun(res.Response)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.Info("")
	log.Info("Open in browser: http://localhost%s", displayAddr(addr))
	log.Info("Press Ctrl+C to stop")
	log.Info("")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// displayAddr turns ":8080" and "0.0.0.0:8080" into ":8080".
func displayAddr(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ":" + addr
}
