// Package pipeline adjusts every security of a stored panel, persists the
// adjusted series and their Hurst features, and reports progress.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"jpx-stock-lab/internal/adjustment"
	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/frame"
	"jpx-stock-lab/internal/idhash"
	"jpx-stock-lab/internal/observability"
	"jpx-stock-lab/internal/panel"
	"jpx-stock-lab/internal/storage"
	"jpx-stock-lab/internal/tsprep"
)

// PhaseAdjust labels pipeline runs in metrics.
const PhaseAdjust = "adjust"

// endOfTime bounds an open-ended date range.
var endOfTime = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

var (
	// ErrEmptyPanel is returned when the requested range holds no records.
	ErrEmptyPanel = errors.New("no stock prices in range")
	// ErrUnknownSecurity is recorded for a requested code absent from the panel.
	ErrUnknownSecurity = errors.New("unknown security")
)

// Stores groups the storage the runner reads and writes.
type Stores struct {
	Prices   storage.StockPriceStore
	Adjusted storage.AdjustedPriceStore
	Features storage.SeriesFeatureStore
}

// Request selects what a run processes.
type Request struct {
	Start time.Time // zero means unbounded
	End   time.Time // zero means unbounded
	Codes []string  // empty means every security in the panel
}

// SecurityResult is the outcome for one security.
type SecurityResult struct {
	Code       string
	Rows       int
	FirstDate  time.Time
	LastDate   time.Time
	SeriesID   string
	Hurst      float64 // NaN when not computed
	HurstError string
	Error      string
}

// Failed reports whether the security could not be adjusted or stored.
func (r SecurityResult) Failed() bool {
	return r.Error != ""
}

// Result summarizes a run.
type Result struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	HurstColumn  string
	Securities   []SecurityResult // panel code order
	Succeeded    int
	Failed       int
	RowsAdjusted int
}

// Runner executes the adjustment pipeline.
type Runner struct {
	stores      Stores
	opts        adjustment.Options
	workers     int
	hurstColumn string
	replace     bool
	logger      zerolog.Logger
	metrics     *observability.Metrics
	clock       func() time.Time
	onProgress  func(Event)
}

// NewRunner creates a runner with four workers and Hurst on Close.
func NewRunner(stores Stores, opts adjustment.Options) *Runner {
	return &Runner{
		stores:      stores,
		opts:        opts,
		workers:     4,
		hurstColumn: "Close",
		replace:     true,
		logger:      zerolog.Nop(),
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// WithWorkers sets how many securities are processed concurrently.
func (r *Runner) WithWorkers(n int) *Runner {
	r.workers = n
	return r
}

// WithHurstColumn selects the adjusted column the Hurst exponent is computed on.
func (r *Runner) WithHurstColumn(name string) *Runner {
	r.hurstColumn = name
	return r
}

// WithReplace controls whether stored adjusted points of a security are
// deleted before new ones are written. Without it a rerun fails on
// duplicate points.
func (r *Runner) WithReplace(replace bool) *Runner {
	r.replace = replace
	return r
}

// WithLogger sets the logger.
func (r *Runner) WithLogger(l zerolog.Logger) *Runner {
	r.logger = l
	return r
}

// WithMetrics records per-security and per-run metrics.
func (r *Runner) WithMetrics(m *observability.Metrics) *Runner {
	r.metrics = m
	return r
}

// WithClock sets a custom clock function for deterministic output.
func (r *Runner) WithClock(clock func() time.Time) *Runner {
	r.clock = clock
	return r
}

// WithProgress registers a callback for progress events. Calls are serialized.
func (r *Runner) WithProgress(fn func(Event)) *Runner {
	r.onProgress = fn
	return r
}

// Run loads the panel for req, then adjusts, stores and analyzes each
// security. A failing security is recorded in the result and does not stop
// the others; storage errors loading the panel and context cancellation do.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	started := r.clock()
	runID := idhash.ComputeRunID("pipeline", int64(len(req.Codes)), started.UnixMilli())
	log := r.logger.With().Str("run_id", runID).Logger()

	res, err := r.run(ctx, req, runID, started, log)
	status := "ok"
	if err != nil {
		status = "error"
	}
	if r.metrics != nil {
		r.metrics.RecordPipelineRun(PhaseAdjust, status, r.clock().Sub(started).Seconds())
		if err == nil {
			r.metrics.LastSuccessfulPipeline.Set(float64(r.clock().Unix()))
		}
	}
	return res, err
}

func (r *Runner) run(ctx context.Context, req Request, runID string, started time.Time, log zerolog.Logger) (*Result, error) {
	end := req.End
	if end.IsZero() {
		end = endOfTime
	}
	records, err := r.stores.Prices.GetByDateRange(ctx, req.Start, end)
	if err != nil {
		return nil, fmt.Errorf("load panel: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyPanel
	}

	panelFrame, err := panel.ToFrame(records, r.opts)
	if err != nil {
		return nil, fmt.Errorf("build panel frame: %w", err)
	}
	codes := req.Codes
	if len(codes) == 0 {
		codeColumn := r.opts.CodeColumn
		if codeColumn == "" {
			codeColumn = adjustment.DefaultCodeColumn
		}
		if codes, err = adjustment.Codes(panelFrame, codeColumn); err != nil {
			return nil, fmt.Errorf("list codes: %w", err)
		}
	}

	log.Info().
		Int("records", len(records)).
		Int("securities", len(codes)).
		Int("workers", r.workers).
		Msg("pipeline started")

	prog := &progress{runID: runID, total: len(codes), emit: r.onProgress, clock: r.clock}
	prog.started()

	results := make([]SecurityResult, len(codes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.workers, 1))
	for i, code := range codes {
		i, code := i, code // per-iteration copy (go1.21 loop semantics)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sr, err := r.processSecurity(gctx, panelFrame, code)
			if err != nil {
				// cancellation aborts the run; anything else is per-security
				if gctx.Err() != nil {
					return gctx.Err()
				}
				sr.Error = err.Error()
				log.Warn().Err(err).Str("code", code).Msg("security failed")
			}
			results[i] = sr
			if r.metrics != nil {
				r.metrics.RecordSecurity(sr.Rows, err)
				if err == nil && !math.IsNaN(sr.Hurst) {
					r.metrics.FeaturesComputed.Inc()
				}
			}
			prog.security(code, sr.Rows, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		RunID:       runID,
		StartedAt:   started,
		HurstColumn: r.hurstColumn,
		Securities:  results,
	}
	for _, sr := range results {
		if sr.Failed() {
			res.Failed++
			continue
		}
		res.Succeeded++
		res.RowsAdjusted += sr.Rows
	}
	res.FinishedAt = r.clock()
	prog.finished()

	log.Info().
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Int("rows", res.RowsAdjusted).
		Dur("elapsed", res.FinishedAt.Sub(started)).
		Msg("pipeline finished")
	return res, nil
}

func (r *Runner) processSecurity(ctx context.Context, panelFrame *frame.Frame, code string) (SecurityResult, error) {
	sr := SecurityResult{Code: code, Hurst: math.NaN()}

	adjusted, err := adjustment.AdjustedSecurityData(panelFrame, code, r.opts)
	if err != nil {
		return sr, fmt.Errorf("adjust: %w", err)
	}
	points, err := panel.AdjustedPoints(code, adjusted, r.opts)
	if err != nil {
		return sr, fmt.Errorf("convert: %w", err)
	}
	if len(points) == 0 {
		return sr, fmt.Errorf("%w: no rows for security %s", ErrUnknownSecurity, code)
	}
	sr.Rows = len(points)
	sr.FirstDate = points[0].Date
	sr.LastDate = points[len(points)-1].Date

	if r.replace {
		if err := r.stores.Adjusted.DeleteByCode(ctx, code); err != nil {
			return sr, fmt.Errorf("delete previous points: %w", err)
		}
	}
	if err := r.stores.Adjusted.InsertBulk(ctx, points); err != nil {
		return sr, fmt.Errorf("store points: %w", err)
	}

	series, err := panel.PointColumn(points, r.hurstColumn)
	if err != nil {
		return sr, fmt.Errorf("hurst column: %w", err)
	}
	h, err := tsprep.HurstExponent(series)
	if err != nil {
		// too short or flat series still count as adjusted
		sr.HurstError = err.Error()
		return sr, nil
	}
	sr.Hurst = h

	feature := &domain.SeriesFeature{
		SeriesID:       idhash.ComputeSeriesID(code, r.hurstColumn, sr.FirstDate, sr.LastDate, sr.Rows),
		SecuritiesCode: code,
		Column:         r.hurstColumn,
		FirstDate:      sr.FirstDate.UnixMilli(),
		LastDate:       sr.LastDate.UnixMilli(),
		Observations:   sr.Rows,
		HurstExponent:  h,
		ComputedAt:     r.clock().UnixMilli(),
	}
	sr.SeriesID = feature.SeriesID
	if err := r.stores.Features.Insert(ctx, feature); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return sr, fmt.Errorf("store feature: %w", err)
	}
	return sr, nil
}

// SortedByHurst returns the securities with a Hurst estimate, highest first.
func (res *Result) SortedByHurst() []SecurityResult {
	out := make([]SecurityResult, 0, len(res.Securities))
	for _, sr := range res.Securities {
		if !sr.Failed() && !math.IsNaN(sr.Hurst) {
			out = append(out, sr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Hurst > out[j].Hurst })
	return out
}
