package api

import (
	"math"
	"time"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/pipeline"
)

// num maps NaN to null.
func num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func msTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

type priceDTO struct {
	RowID            string    `json:"row_id"`
	Date             time.Time `json:"date"`
	Open             *float64  `json:"open"`
	High             *float64  `json:"high"`
	Low              *float64  `json:"low"`
	Close            *float64  `json:"close"`
	Volume           *float64  `json:"volume"`
	AdjustmentFactor float64   `json:"adjustment_factor"`
	ExpectedDividend *float64  `json:"expected_dividend"`
	SupervisionFlag  bool      `json:"supervision_flag"`
	Target           *float64  `json:"target"`
}

func newPriceDTO(p *domain.StockPrice) priceDTO {
	return priceDTO{
		RowID:            p.RowID,
		Date:             p.Date,
		Open:             num(p.Open),
		High:             num(p.High),
		Low:              num(p.Low),
		Close:            num(p.Close),
		Volume:           num(p.Volume),
		AdjustmentFactor: p.AdjustmentFactor,
		ExpectedDividend: p.ExpectedDividend,
		SupervisionFlag:  p.SupervisionFlag,
		Target:           p.Target,
	}
}

type adjustedDTO struct {
	Date        time.Time `json:"date"`
	Open        *float64  `json:"open"`
	High        *float64  `json:"high"`
	Low         *float64  `json:"low"`
	Close       *float64  `json:"close"`
	Volume      *float64  `json:"volume"`
	PriceFactor *float64  `json:"price_factor"`
}

func newAdjustedDTO(p *domain.AdjustedPricePoint) adjustedDTO {
	return adjustedDTO{
		Date:        p.Date,
		Open:        num(p.Open),
		High:        num(p.High),
		Low:         num(p.Low),
		Close:       num(p.Close),
		Volume:      num(p.Volume),
		PriceFactor: num(p.PriceFactor),
	}
}

type featureDTO struct {
	SeriesID       string    `json:"series_id"`
	SecuritiesCode string    `json:"securities_code"`
	Column         string    `json:"column"`
	FirstDate      time.Time `json:"first_date"`
	LastDate       time.Time `json:"last_date"`
	Observations   int       `json:"observations"`
	HurstExponent  *float64  `json:"hurst_exponent"`
	ComputedAt     time.Time `json:"computed_at"`
}

func newFeatureDTO(f *domain.SeriesFeature) featureDTO {
	return featureDTO{
		SeriesID:       f.SeriesID,
		SecuritiesCode: f.SecuritiesCode,
		Column:         f.Column,
		FirstDate:      msTime(f.FirstDate),
		LastDate:       msTime(f.LastDate),
		Observations:   f.Observations,
		HurstExponent:  num(f.HurstExponent),
		ComputedAt:     msTime(f.ComputedAt),
	}
}

type trialDTO struct {
	RunID      string         `json:"run_id"`
	TrialID    int            `json:"trial_id"`
	Family     string         `json:"family"`
	Params     map[string]any `json:"params"`
	Status     string         `json:"status"`
	Loss       *float64       `json:"loss,omitempty"`
	ScoreMean  *float64       `json:"score_mean,omitempty"`
	ScoreStd   *float64       `json:"score_std,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at"`
}

func newTrialDTO(t *domain.SearchTrial) trialDTO {
	dto := trialDTO{
		RunID:      t.RunID,
		TrialID:    t.TrialID,
		Family:     t.Family,
		Params:     t.Params,
		Status:     t.Status,
		Error:      t.Error,
		DurationMs: t.DurationMs,
		CreatedAt:  msTime(t.CreatedAt),
	}
	if t.Status == domain.TrialStatusOK {
		dto.Loss = num(t.Loss)
		dto.ScoreMean = num(t.ScoreMean)
		dto.ScoreStd = num(t.ScoreStd)
	}
	return dto
}

func newTrialDTOs(trials []*domain.SearchTrial) []trialDTO {
	out := make([]trialDTO, 0, len(trials))
	for _, t := range trials {
		out = append(out, newTrialDTO(t))
	}
	return out
}

type securityResultDTO struct {
	Code       string     `json:"securities_code"`
	Rows       int        `json:"rows"`
	FirstDate  *time.Time `json:"first_date,omitempty"`
	LastDate   *time.Time `json:"last_date,omitempty"`
	SeriesID   string     `json:"series_id,omitempty"`
	Hurst      *float64   `json:"hurst_exponent"`
	HurstError string     `json:"hurst_error,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func newSecurityResultDTO(sr pipeline.SecurityResult) securityResultDTO {
	dto := securityResultDTO{
		Code:       sr.Code,
		Rows:       sr.Rows,
		SeriesID:   sr.SeriesID,
		Hurst:      num(sr.Hurst),
		HurstError: sr.HurstError,
		Error:      sr.Error,
	}
	if !sr.FirstDate.IsZero() {
		first, last := sr.FirstDate, sr.LastDate
		dto.FirstDate, dto.LastDate = &first, &last
	}
	return dto
}

type pipelineRunDTO struct {
	RunID        string              `json:"run_id"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	HurstColumn  string              `json:"hurst_column"`
	Succeeded    int                 `json:"succeeded"`
	Failed       int                 `json:"failed"`
	RowsAdjusted int                 `json:"rows_adjusted"`
	ChecksPassed bool                `json:"checks_passed"`
	Integrity    []string            `json:"integrity_errors,omitempty"`
	Securities   []securityResultDTO `json:"securities"`
}

type searchRunDTO struct {
	RunID     string    `json:"run_id"`
	Family    string    `json:"family"`
	Rows      int       `json:"rows"`
	Features  []string  `json:"features"`
	Trials    int       `json:"trials"`
	Failed    int       `json:"failed_trials"`
	Best      *trialDTO `json:"best"`
	Positives int       `json:"positive_labels"`
}
