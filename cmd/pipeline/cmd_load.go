package main

import (
	"errors"

	"github.com/spf13/cobra"

	"jpx-stock-lab/internal/app"
	"jpx-stock-lab/internal/config"
)

var (
	loadInput   string
	loadSheet   string
	loadMigrate bool
)

// loadCmd imports a stock price file into the configured store.
var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Import a stock price CSV or XLSX file into storage",
	Long: `Parses a stock_prices file and inserts its records into the raw panel
store. Meaningful with the sql backend; the memory backend forgets the data
when the command exits, so use "run --input" there.

Examples:
  pipeline load --input jpx/train_files/stock_prices.csv --migrate
  pipeline load --input prices.xlsx --sheet 2021`,
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringVar(&loadInput, "input", "", "Stock price file (.csv or .xlsx)")
	loadCmd.Flags().StringVar(&loadSheet, "sheet", "", "Workbook sheet (default: first sheet)")
	loadCmd.Flags().BoolVar(&loadMigrate, "migrate", false, "Apply database migrations first")
	loadCmd.MarkFlagRequired("input")
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if cfg.Storage.Backend != config.BackendSQL {
		logger.Warn().Msg("memory backend: imported records are discarded on exit")
	}

	stores, err := app.OpenStores(ctx, cfg.Storage, loadMigrate, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	n, err := app.ImportPanel(ctx, stores.Prices, loadInput, loadSheet, cfg.AdjustmentOptions())
	if err != nil {
		if n > 0 {
			logger.Error().Int("stored", n).Msg("import stopped part way")
		}
		return err
	}
	if n == 0 {
		return errors.New("input holds no records")
	}
	logger.Info().Str("input", loadInput).Int("records", n).Msg("panel imported")
	return nil
}
