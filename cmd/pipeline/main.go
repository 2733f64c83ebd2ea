// Package main provides the adjustment pipeline CLI.
// Commands: fetch → load → run, plus per-security adjust, frame and hurst.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"jpx-stock-lab/internal/config"
	"jpx-stock-lab/internal/logging"
)

var (
	configPath string
	envFile    string

	cfg    *config.Config
	logger zerolog.Logger
)

// rootCmd is the base command of the pipeline CLI.
var rootCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "JPX stock price adjustment pipeline",
	Long: `Downloads the JPX competition panel, stores it, rebuilds split-adjusted
price and volume series per security and estimates their Hurst exponents.

Settings come from --config (YAML), then .env, then JPX_* variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadFiles(configPath, envFile)
		if err != nil {
			return err
		}
		cfg = loaded
		if logger, err = logging.Setup(cfg.Logging); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional env file loaded before JPX_* variables")
}

// signalContext is cancelled on SIGINT or SIGTERM. A second signal exits.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("cancelling")
			cancel()
		case <-ctx.Done():
			return
		}
		sig := <-sigCh
		logger.Error().Str("signal", sig.String()).Msg("forcing exit")
		os.Exit(1)
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
