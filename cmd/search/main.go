// Package main provides the hyperparameter search CLI.
// Frames stored adjusted series into up/down windows and searches classifier
// parameters by cross-validated ROC AUC.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"jpx-stock-lab/internal/app"
	"jpx-stock-lab/internal/config"
	"jpx-stock-lab/internal/logging"
	"jpx-stock-lab/internal/modelsearch"
	"jpx-stock-lab/internal/observability"
	"jpx-stock-lab/internal/pipeline"
	"jpx-stock-lab/internal/reporting"
	"jpx-stock-lab/internal/storage"
)

var (
	configPath string
	envFile    string

	family    string
	codes     []string
	column    string
	timeDim   int
	maxEvals  int
	folds     int
	seed      int64
	workers   int
	input     string
	reportDir string
	migrate   bool

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "search",
	Short: "Search classifier hyperparameters on adjusted series",
	Long: `Builds a dataset of sliding windows from the stored adjusted series of
--codes, labels each window by whether the next value rises, and runs a
random search over the parameter space of --family (xgboost, catboost,
logistic or any). Trials are stored and summarized in search_trials.csv.

With --input the panel file is imported and adjusted first, which the memory
backend needs.

Examples:
  search --input jpx/train_files/stock_prices.csv --codes 1301,1332 --family xgboost
  search --codes 7203 --family any --max-evals 50 --folds 5`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runSearch,
}

// showCmd prints the stored trials of a finished run.
var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the stored trials of a search run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional env file loaded before JPX_* variables")

	f := rootCmd.Flags()
	f.StringVar(&family, "family", "", "Classifier family (default: search.family)")
	f.StringSliceVar(&codes, "codes", nil, "Securities whose series form the dataset (default: search.code)")
	f.StringVar(&column, "column", "", "Adjusted column (default: pipeline.hurst_column)")
	f.IntVar(&timeDim, "time-dim", 0, "Window length (default: pipeline.time_dim)")
	f.IntVar(&maxEvals, "max-evals", 0, "Trials (default: search.max_evals)")
	f.IntVar(&folds, "folds", 0, "Cross-validation folds (default: search.folds)")
	f.Int64Var(&seed, "seed", 0, "Sampling seed (default: search.seed)")
	f.IntVar(&workers, "workers", 0, "Concurrent trials (default: search.workers)")
	f.StringVar(&input, "input", "", "Import and adjust this stock price file first")
	f.StringVar(&reportDir, "report-dir", "", "Report folder (default: pipeline.report_dir)")
	f.BoolVar(&migrate, "migrate", false, "Apply database migrations first")

	rootCmd.AddCommand(showCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadFiles(configPath, envFile)
	if err != nil {
		return err
	}
	cfg = loaded
	logger, err = logging.Setup(cfg.Logging)
	return err
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if family == "" {
		family = cfg.Search.Family
	}
	if len(codes) == 0 && cfg.Search.Code != "" {
		codes = []string{cfg.Search.Code}
	}
	if len(codes) == 0 {
		return fmt.Errorf("no securities: pass --codes or set search.code")
	}
	if column == "" {
		column = cfg.Pipeline.HurstColumn
	}
	if timeDim <= 0 {
		timeDim = cfg.Pipeline.TimeDim
	}

	stores, err := app.OpenStores(ctx, cfg.Storage, migrate, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	metrics := observability.DefaultMetrics
	report := &reporting.Report{GeneratedAt: time.Now().UTC()}
	if input != "" {
		if report, err = adjustInput(ctx, stores, metrics); err != nil {
			return err
		}
	}

	data, err := pipeline.LoadDataset(ctx, stores.Adjusted, codes, column, timeDim)
	if err != nil {
		return err
	}
	logger.Info().Strs("codes", codes).Int("rows", len(data.X)).Int("features", len(data.FeatureNames)).Msg("dataset built")

	opts := []modelsearch.Option{
		modelsearch.WithMaxEvals(pick(maxEvals, cfg.Search.MaxEvals)),
		modelsearch.WithFolds(pick(folds, cfg.Search.Folds)),
		modelsearch.WithWorkers(pick(workers, cfg.Search.Workers)),
		modelsearch.WithSeed(cfg.Search.Seed),
		modelsearch.WithStore(stores.Trials),
		modelsearch.WithLogger(logger),
		modelsearch.WithMetrics(metrics),
	}
	if cmd.Flags().Changed("seed") {
		opts = append(opts, modelsearch.WithSeed(seed))
	}

	res, err := modelsearch.NewSearcher(opts...).Run(ctx, family, data)
	if err != nil {
		return err
	}

	report.Search = reporting.SearchFromTrials(res.RunID, res.Family, res.Trials)
	if report.RunID == "" {
		report.RunID = res.RunID
	}
	dir := reportDir
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

	fmt.Fprintf(cmd.OutOrStdout(), "Run %s: best trial %d (%s) ROC AUC %.4f ± %.4f\n",
		res.RunID, res.Best.TrialID, res.Best.Family, res.Best.ScoreMean, res.Best.ScoreStd)
	return nil
}

// adjustInput imports the --input panel, adjusts the requested codes and
// returns the pipeline report the search section is appended to.
func adjustInput(ctx context.Context, stores *app.Stores, metrics *observability.Metrics) (*reporting.Report, error) {
	n, err := app.ImportPanel(ctx, stores.Prices, input, "", cfg.AdjustmentOptions())
	if err != nil {
		return nil, err
	}
	logger.Info().Str("input", input).Int("records", n).Msg("panel imported")

	start, end, err := cfg.DateRange()
	if err != nil {
		return nil, err
	}
	res, err := pipeline.NewRunner(stores.Pipeline(), cfg.AdjustmentOptions()).
		WithWorkers(cfg.Pipeline.Workers).
		WithHurstColumn(cfg.Pipeline.HurstColumn).
		WithLogger(logger).
		WithMetrics(metrics).
		Run(ctx, pipeline.Request{Start: start, End: end, Codes: codes})
	if err != nil {
		return nil, err
	}
	for _, sr := range res.Securities {
		if sr.Failed() {
			return nil, fmt.Errorf("adjust %s: %s", sr.Code, sr.Error)
		}
	}
	return reporting.NewGenerator(stores.Adjusted, stores.Features).WithMetrics(metrics).Generate(ctx, res)
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	stores, err := app.OpenStores(ctx, cfg.Storage, false, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	trials, err := stores.Trials.GetByRun(ctx, args[0])
	if err != nil {
		return err
	}
	if len(trials) == 0 {
		return fmt.Errorf("search run %s: %w", args[0], storage.ErrNotFound)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRIAL\tFAMILY\tSTATUS\tMEAN\tSTD\tMS")
	for _, t := range trials {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.4f\t%.4f\t%d\n", t.TrialID, t.Family, t.Status, t.ScoreMean, t.ScoreStd, t.DurationMs)
	}
	return w.Flush()
}

func pick(flag, def int) int {
	if flag > 0 {
		return flag
	}
	return def
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
