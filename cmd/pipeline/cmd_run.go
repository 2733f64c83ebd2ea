package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"jpx-stock-lab/internal/app"
	"jpx-stock-lab/internal/observability"
	"jpx-stock-lab/internal/pipeline"
	"jpx-stock-lab/internal/reporting"
)

var (
	runInput     string
	runSheet     string
	runCodes     []string
	runWorkers   int
	runReportDir string
	runMigrate   bool
	runTop       int
)

// runCmd executes the adjust-and-analyze pipeline over the stored panel.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Adjust every security, store the series and write the report",
	Long: `Loads the raw panel (optionally importing --input first), rebuilds each
security's adjusted series, stores it with its Hurst exponent and writes
REPORT.md and securities.csv under <report-dir>/<run-id>.

Examples:
  pipeline run --input jpx/train_files/stock_prices.csv
  pipeline run --codes 1301,7203 --workers 8`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runInput, "input", "", "Import this stock price file before running")
	runCmd.Flags().StringVar(&runSheet, "sheet", "", "Workbook sheet for --input")
	runCmd.Flags().StringSliceVar(&runCodes, "codes", nil, "Securities to process (default: all)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Concurrent securities (default: pipeline.workers)")
	runCmd.Flags().StringVar(&runReportDir, "report-dir", "", "Report folder (default: pipeline.report_dir)")
	runCmd.Flags().BoolVar(&runMigrate, "migrate", false, "Apply database migrations first")
	runCmd.Flags().IntVar(&runTop, "top", 10, "Securities to print, highest Hurst first")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	stores, err := app.OpenStores(ctx, cfg.Storage, runMigrate, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	if runInput != "" {
		n, err := app.ImportPanel(ctx, stores.Prices, runInput, runSheet, cfg.AdjustmentOptions())
		if err != nil {
			return err
		}
		logger.Info().Str("input", runInput).Int("records", n).Msg("panel imported")
	}

	start, end, err := cfg.DateRange()
	if err != nil {
		return err
	}
	workers := cfg.Pipeline.Workers
	if runWorkers > 0 {
		workers = runWorkers
	}

	metrics := observability.DefaultMetrics
	runner := pipeline.NewRunner(stores.Pipeline(), cfg.AdjustmentOptions()).
		WithWorkers(workers).
		WithHurstColumn(cfg.Pipeline.HurstColumn).
		WithLogger(logger).
		WithMetrics(metrics)

	res, err := runner.Run(ctx, pipeline.Request{Start: start, End: end, Codes: runCodes})
	if err != nil {
		return err
	}

	report, err := reporting.NewGenerator(stores.Adjusted, stores.Features).
		WithMetrics(metrics).
		Generate(ctx, res)
	if err != nil {
		return err
	}

	dir := runReportDir
	if dir == "" {
		dir = cfg.Pipeline.ReportDir
	}
	paths, err := reporting.WriteFiles(filepath.Join(dir, res.RunID), report)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	for _, p := range paths {
		logger.Info().Str("path", p).Msg("report written")
	}
	if !report.DataQuality.AllChecksPassed {
		logger.Warn().Strs("errors", report.DataQuality.IntegrityErrors).Msg("integrity checks failed")
	}

	printSummary(cmd, res)
	return nil
}

func printSummary(cmd *cobra.Command, res *pipeline.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %d ok, %d failed, %d rows in %s\n\n",
		res.RunID, res.Succeeded, res.Failed, res.RowsAdjusted,
		res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tROWS\tFIRST\tLAST\tHURST")
	for i, sr := range res.SortedByHurst() {
		if i == runTop {
			break
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%.4f\n", sr.Code, sr.Rows,
			sr.FirstDate.Format(time.DateOnly), sr.LastDate.Format(time.DateOnly), sr.Hurst)
	}
	w.Flush()
}
