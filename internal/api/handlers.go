package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/frame"
	"jpx-stock-lab/internal/modelsearch"
	"jpx-stock-lab/internal/panel"
	"jpx-stock-lab/internal/pipeline"
	"jpx-stock-lab/internal/reporting"
	"jpx-stock-lab/internal/storage"
	"jpx-stock-lab/internal/tsprep"
)

var farFuture = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// dateRange reads optional start and end query parameters (YYYY-MM-DD).
func dateRange(r *http.Request) (start, end time.Time, err error) {
	end = farFuture
	if v := r.URL.Query().Get("start"); v != "" {
		if start, err = time.Parse(time.DateOnly, v); err != nil {
			return start, end, fmt.Errorf("invalid start: %w", err)
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if end, err = time.Parse(time.DateOnly, v); err != nil {
			return start, end, fmt.Errorf("invalid end: %w", err)
		}
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("end %s before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return start, end, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func (s *Server) listSecurities(w http.ResponseWriter, r *http.Request) {
	codes, err := s.stores.Prices.ListCodes(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if codes == nil {
		codes = []string{}
	}
	render.JSON(w, r, map[string]any{"count": len(codes), "securities": codes})
}

func (s *Server) getPrices(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	start, end, err := dateRange(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	prices, err := s.stores.Prices.GetByCode(r.Context(), code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(prices) == 0 {
		s.fail(w, r, fmt.Errorf("security %s: %w", code, storage.ErrNotFound))
		return
	}
	out := make([]priceDTO, 0, len(prices))
	for _, p := range prices {
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		out = append(out, newPriceDTO(p))
	}
	render.JSON(w, r, map[string]any{"securities_code": code, "prices": out})
}

func (s *Server) getAdjusted(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	start, end, err := dateRange(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	points, err := s.stores.Adjusted.GetByDateRange(r.Context(), code, start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]adjustedDTO, len(points))
	for i, p := range points {
		out[i] = newAdjustedDTO(p)
	}
	render.JSON(w, r, map[string]any{"securities_code": code, "points": out})
}

func (s *Server) getFeatures(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	features, err := s.stores.Features.GetByCode(r.Context(), code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]featureDTO, len(features))
	for i, f := range features {
		out[i] = newFeatureDTO(f)
	}
	render.JSON(w, r, map[string]any{"securities_code": code, "features": out})
}

// adjustedColumn loads one stored adjusted column of a security.
func (s *Server) adjustedColumn(r *http.Request, code, column string) ([]float64, error) {
	points, err := s.stores.Adjusted.GetByCode(r.Context(), code)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("adjusted series of %s: %w", code, storage.ErrNotFound)
	}
	return panel.PointColumn(points, column)
}

func (s *Server) getHurst(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	column := r.URL.Query().Get("column")
	if column == "" {
		column = s.cfg.Pipeline.HurstColumn
	}

	series, err := s.adjustedColumn(r, code, column)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	h, err := tsprep.HurstExponent(series)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"securities_code": code,
		"column":          column,
		"observations":    len(series),
		"hurst_exponent":  num(h),
	})
}

func (s *Server) getFrame(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	column := r.URL.Query().Get("column")
	if column == "" {
		column = s.cfg.Pipeline.HurstColumn
	}
	timeDim, err := queryInt(r, "time_dim", s.cfg.Pipeline.TimeDim)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	outputDim, err := queryInt(r, "output_dim", s.cfg.Pipeline.OutputDim)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	series, err := s.adjustedColumn(r, code, column)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	features, targets, err := tsprep.ToSupervised(series, timeDim, tsprep.WithOutputDim(outputDim))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	frames := []*frame.Frame{features}
	if targets != nil {
		frames = append(frames, targets)
	}
	var names []string
	var cols [][]float64
	for _, f := range frames {
		for _, name := range f.Names() {
			values, err := f.Float(name)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			names = append(names, name)
			cols = append(cols, values)
		}
	}

	rows := make([][]*float64, features.Len())
	for i := range rows {
		row := make([]*float64, len(cols))
		for j := range cols {
			row[j] = num(cols[j][i])
		}
		rows[i] = row
	}
	render.JSON(w, r, map[string]any{
		"securities_code": code,
		"column":          column,
		"columns":         names,
		"rows":            rows,
	})
}

type pipelineRunRequest struct {
	Start       string   `json:"start" validate:"omitempty,datetime=2006-01-02"`
	End         string   `json:"end" validate:"omitempty,datetime=2006-01-02"`
	Codes       []string `json:"codes" validate:"omitempty,dive,required"`
	Workers     int      `json:"workers" validate:"omitempty,min=1,max=256"`
	HurstColumn string   `json:"hurst_column" validate:"omitempty,oneof=Open High Low Close Volume"`
	WriteReport bool     `json:"write_report"`
}

func (s *Server) createPipelineRun(w http.ResponseWriter, r *http.Request) {
	var req pipelineRunRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.badRequest(w, r, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.badRequest(w, r, err)
		return
	}

	if !s.runMu.TryLock() {
		s.fail(w, r, ErrRunInProgress)
		return
	}
	defer s.runMu.Unlock()

	var pr pipeline.Request
	pr.Codes = req.Codes
	if req.Start != "" {
		pr.Start, _ = time.Parse(time.DateOnly, req.Start)
	}
	if req.End != "" {
		pr.End, _ = time.Parse(time.DateOnly, req.End)
	}
	workers := s.cfg.Pipeline.Workers
	if req.Workers > 0 {
		workers = req.Workers
	}
	hurstColumn := s.cfg.Pipeline.HurstColumn
	if req.HurstColumn != "" {
		hurstColumn = req.HurstColumn
	}

	runner := pipeline.NewRunner(s.stores.Pipeline(), s.cfg.AdjustmentOptions()).
		WithWorkers(workers).
		WithHurstColumn(hurstColumn).
		WithLogger(s.logger).
		WithProgress(s.hub.Publish)
	if s.metrics != nil {
		runner = runner.WithMetrics(s.metrics)
	}

	res, err := runner.Run(r.Context(), pr)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	gen := reporting.NewGenerator(s.stores.Adjusted, s.stores.Features).WithClock(s.clock)
	if s.metrics != nil {
		gen = gen.WithMetrics(s.metrics)
	}
	report, err := gen.Generate(r.Context(), res)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if req.WriteReport {
		dir := filepath.Join(s.cfg.Pipeline.ReportDir, res.RunID)
		if _, err := reporting.WriteFiles(dir, report); err != nil {
			s.fail(w, r, fmt.Errorf("write report: %w", err))
			return
		}
	}

	dto := pipelineRunDTO{
		RunID:        res.RunID,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
		HurstColumn:  res.HurstColumn,
		Succeeded:    res.Succeeded,
		Failed:       res.Failed,
		RowsAdjusted: res.RowsAdjusted,
		ChecksPassed: report.DataQuality.AllChecksPassed,
		Integrity:    report.DataQuality.IntegrityErrors,
		Securities:   make([]securityResultDTO, len(res.Securities)),
	}
	for i, sr := range res.Securities {
		dto.Securities[i] = newSecurityResultDTO(sr)
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, dto)
}

type searchRunRequest struct {
	Family   string   `json:"family" validate:"required"`
	Codes    []string `json:"codes" validate:"required,min=1,dive,required"`
	Column   string   `json:"column" validate:"omitempty,oneof=Open High Low Close Volume"`
	TimeDim  int      `json:"time_dim" validate:"omitempty,min=1,max=250"`
	MaxEvals int      `json:"max_evals" validate:"omitempty,min=1,max=1000"`
	Folds    int      `json:"folds" validate:"omitempty,min=2,max=20"`
	Seed     *int64   `json:"seed"`
}

func (s *Server) createSearchRun(w http.ResponseWriter, r *http.Request) {
	var req searchRunRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.badRequest(w, r, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.badRequest(w, r, err)
		return
	}

	column := s.cfg.Pipeline.HurstColumn
	if req.Column != "" {
		column = req.Column
	}
	timeDim := s.cfg.Pipeline.TimeDim
	if req.TimeDim > 0 {
		timeDim = req.TimeDim
	}
	data, err := pipeline.LoadDataset(r.Context(), s.stores.Adjusted, req.Codes, column, timeDim)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	opts := []modelsearch.Option{
		modelsearch.WithMaxEvals(s.cfg.Search.MaxEvals),
		modelsearch.WithFolds(s.cfg.Search.Folds),
		modelsearch.WithSeed(s.cfg.Search.Seed),
		modelsearch.WithWorkers(s.cfg.Search.Workers),
		modelsearch.WithStore(s.stores.Trials),
		modelsearch.WithLogger(s.logger),
	}
	if req.MaxEvals > 0 {
		opts = append(opts, modelsearch.WithMaxEvals(req.MaxEvals))
	}
	if req.Folds > 0 {
		opts = append(opts, modelsearch.WithFolds(req.Folds))
	}
	if req.Seed != nil {
		opts = append(opts, modelsearch.WithSeed(*req.Seed))
	}
	if s.metrics != nil {
		opts = append(opts, modelsearch.WithMetrics(s.metrics))
	}

	res, err := modelsearch.NewSearcher(opts...).Run(r.Context(), req.Family, data)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	best := newTrialDTO(res.Best)
	dto := searchRunDTO{
		RunID:    res.RunID,
		Family:   res.Family,
		Rows:     len(data.X),
		Features: data.FeatureNames,
		Trials:   len(res.Trials),
		Best:     &best,
	}
	for _, t := range res.Trials {
		if t.Status == domain.TrialStatusFail {
			dto.Failed++
		}
	}
	for _, y := range data.Y {
		dto.Positives += y
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, dto)
}

func (s *Server) getTrials(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	trials, err := s.stores.Trials.GetByRun(r.Context(), runID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(trials) == 0 {
		s.fail(w, r, fmt.Errorf("search run %s: %w", runID, storage.ErrNotFound))
		return
	}
	render.JSON(w, r, map[string]any{"run_id": runID, "trials": newTrialDTOs(trials)})
}

func (s *Server) getBestTrial(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	best, err := s.stores.Trials.GetBest(r.Context(), runID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, newTrialDTO(best))
}
