// Package main provides the HTTP server.
// Serves stored panels, adjusted series, pipeline and search runs, the
// progress websocket and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"jpx-stock-lab/internal/api"
	"jpx-stock-lab/internal/app"
	"jpx-stock-lab/internal/config"
	"jpx-stock-lab/internal/logging"
	"jpx-stock-lab/internal/observability"
)

var (
	configPath string
	envFile    string
	addr       string
	migrate    bool
	input      string
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the adjustment pipeline over HTTP",
	Long: `Routes:
  GET  /healthz
  GET  /metrics
  GET  /ws/pipeline                          progress events of pipeline runs
  GET  /api/securities
  GET  /api/securities/{code}/prices|adjusted|features|hurst|frame
  POST /api/pipeline/runs
  POST /api/search/runs
  GET  /api/search/runs/{runID}/trials|best`,
	SilenceUsage: true,
	RunE:         serve,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML configuration file")
	rootCmd.Flags().StringVar(&envFile, "env-file", ".env", "Optional env file loaded before JPX_* variables")
	rootCmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	rootCmd.Flags().BoolVar(&migrate, "migrate", false, "Apply database migrations on startup")
	rootCmd.Flags().StringVar(&input, "input", "", "Import this stock price file on startup")
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFiles(configPath, envFile)
	if err != nil {
		return err
	}
	logger, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := app.OpenStores(ctx, cfg.Storage, migrate, logger)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer stores.Close()

	if input != "" {
		n, err := app.ImportPanel(ctx, stores.Prices, input, "", cfg.AdjustmentOptions())
		if err != nil {
			return err
		}
		logger.Info().Str("input", input).Int("records", n).Msg("panel imported")
	}

	apiServer := api.NewServer(stores, cfg, logger, observability.DefaultMetrics)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      apiServer.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	// Channel to signal completion
	done := make(chan struct{})
	defer close(done)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Str("backend", cfg.Storage.Backend).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
	}

	// Wait for second signal for immediate shutdown
	go func() {
		select {
		case sig := <-sigCh:
			logger.Error().Str("signal", sig.String()).Msg("forcing immediate shutdown")
			os.Exit(1)
		case <-done:
		}
	}()

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	apiServer.Hub().Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Dur("timeout", cfg.Server.ShutdownTimeout).Msg("graceful shutdown timed out")
	}
	// cancels in-flight pipeline and search runs
	cancel()

	logger.Info().Msg("shutdown complete")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
