package reporting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/modelsearch"
	"jpx-stock-lab/internal/observability"
	"jpx-stock-lab/internal/pipeline"
	"jpx-stock-lab/internal/storage"
)

// Security status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Generator produces reports from a pipeline result and stored data.
type Generator struct {
	adjustedStore storage.AdjustedPriceStore
	featureStore  storage.SeriesFeatureStore
	metrics       *observability.Metrics
	now           func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(adjustedStore storage.AdjustedPriceStore, featureStore storage.SeriesFeatureStore) *Generator {
	return &Generator{
		adjustedStore: adjustedStore,
		featureStore:  featureStore,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithMetrics counts generated reports.
func (g *Generator) WithMetrics(m *observability.Metrics) *Generator {
	g.metrics = m
	return g
}

// Generate builds a report for res and cross-checks it against storage.
func (g *Generator) Generate(ctx context.Context, res *pipeline.Result) (*Report, error) {
	if res == nil {
		return nil, errors.New("nil pipeline result")
	}

	rows := make([]SecurityRow, len(res.Securities))
	for i, sr := range res.Securities {
		rows[i] = securityRow(sr)
	}

	integrity, err := g.checkIntegrity(ctx, res.Securities)
	if err != nil {
		return nil, err
	}

	report := &Report{
		GeneratedAt: g.now(),
		RunID:       res.RunID,
		HurstColumn: res.HurstColumn,
		DataSummary: dataSummary(res),
		DataQuality: DataQualitySection{
			IntegrityErrors: integrity,
			AllChecksPassed: len(integrity) == 0,
		},
		Securities: rows,
		Hurst:      hurstSummary(res.Securities),
	}
	if g.metrics != nil {
		g.metrics.ReportsGenerated.Inc()
	}
	return report, nil
}

func securityRow(sr pipeline.SecurityResult) SecurityRow {
	status := StatusOK
	if sr.Failed() {
		status = StatusFailed
	}
	return SecurityRow{
		Code:       sr.Code,
		Status:     status,
		Rows:       sr.Rows,
		FirstDate:  sr.FirstDate,
		LastDate:   sr.LastDate,
		SeriesID:   sr.SeriesID,
		Hurst:      sr.Hurst,
		HurstError: sr.HurstError,
		Error:      sr.Error,
	}
}

func dataSummary(res *pipeline.Result) DataSummary {
	s := DataSummary{
		Securities:   len(res.Securities),
		Succeeded:    res.Succeeded,
		Failed:       res.Failed,
		RowsAdjusted: res.RowsAdjusted,
	}
	for _, sr := range res.Securities {
		if sr.Failed() {
			continue
		}
		if sr.HurstError != "" {
			s.HurstSkipped++
		}
		if s.DateRangeStart.IsZero() || sr.FirstDate.Before(s.DateRangeStart) {
			s.DateRangeStart = sr.FirstDate
		}
		if sr.LastDate.After(s.DateRangeEnd) {
			s.DateRangeEnd = sr.LastDate
		}
	}
	return s
}

// checkIntegrity verifies every successful security has its points and
// feature in storage.
func (g *Generator) checkIntegrity(ctx context.Context, securities []pipeline.SecurityResult) ([]string, error) {
	var problems []string
	for _, sr := range securities {
		if sr.Failed() {
			continue
		}
		if g.adjustedStore != nil {
			points, err := g.adjustedStore.GetByCode(ctx, sr.Code)
			if err != nil {
				return nil, fmt.Errorf("load adjusted points %s: %w", sr.Code, err)
			}
			if len(points) != sr.Rows {
				problems = append(problems, fmt.Sprintf("security %s: %d adjusted points stored, run produced %d",
					sr.Code, len(points), sr.Rows))
			}
		}
		if g.featureStore != nil && sr.SeriesID != "" {
			_, err := g.featureStore.GetBySeriesID(ctx, sr.SeriesID)
			if errors.Is(err, storage.ErrNotFound) {
				problems = append(problems, fmt.Sprintf("security %s: feature %s missing", sr.Code, sr.SeriesID))
			} else if err != nil {
				return nil, fmt.Errorf("load feature %s: %w", sr.SeriesID, err)
			}
		}
	}
	return problems, nil
}

func hurstSummary(securities []pipeline.SecurityResult) HurstSummary {
	var values []float64
	var s HurstSummary
	for _, sr := range securities {
		if sr.Failed() || math.IsNaN(sr.Hurst) {
			continue
		}
		values = append(values, sr.Hurst)
		switch {
		case sr.Hurst > 0.5:
			s.Trending++
		case sr.Hurst < 0.5:
			s.MeanReverting++
		}
	}
	s.Count = len(values)
	if s.Count == 0 {
		s.Mean, s.Median, s.P10, s.P90 = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}
	sort.Float64s(values)
	s.Mean = stat.Mean(values, nil)
	s.Median = stat.Quantile(0.5, stat.Empirical, values, nil)
	s.P10 = stat.Quantile(0.1, stat.Empirical, values, nil)
	s.P90 = stat.Quantile(0.9, stat.Empirical, values, nil)
	return s
}

// SearchFromTrials builds the search section from stored or in-memory trials.
func SearchFromTrials(runID, family string, trials []*domain.SearchTrial) *SearchSection {
	s := &SearchSection{RunID: runID, Family: family, TotalTrials: len(trials), BestTrialID: -1}
	for _, t := range trials {
		if t.Status != domain.TrialStatusOK {
			s.FailedTrials++
		}
		s.Trials = append(s.Trials, TrialRow{
			TrialID:    t.TrialID,
			Family:     t.Family,
			Status:     t.Status,
			ScoreMean:  t.ScoreMean,
			ScoreStd:   t.ScoreStd,
			Loss:       t.Loss,
			DurationMs: t.DurationMs,
			Params:     t.Params,
			Error:      t.Error,
		})
	}
	sort.Slice(s.Trials, func(i, j int) bool { return s.Trials[i].TrialID < s.Trials[j].TrialID })

	if best := modelsearch.BestTrial(trials); best != nil {
		s.BestTrialID = best.TrialID
		s.BestFamily = best.Family
		s.BestScore = best.ScoreMean
		s.BestStd = best.ScoreStd
		s.BestParams = best.Params
	}
	return s
}
