package reporting

import "time"

// Report represents the pipeline report structure.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string
	HurstColumn string

	// Data Summary
	DataSummary DataSummary

	// Data Quality (integrity checks against storage)
	DataQuality DataQualitySection

	// Per-security rows, in pipeline order
	Securities []SecurityRow

	// Hurst distribution over securities with an estimate
	Hurst HurstSummary

	// Search section, nil when no search ran
	Search *SearchSection
}

// DataSummary describes the processed panel.
type DataSummary struct {
	Securities     int
	Succeeded      int
	Failed         int
	HurstSkipped   int
	RowsAdjusted   int
	DateRangeStart time.Time
	DateRangeEnd   time.Time
}

// DataQualitySection lists mismatches between the run result and storage.
type DataQualitySection struct {
	IntegrityErrors []string
	AllChecksPassed bool
}

// SecurityRow is one security of the run.
type SecurityRow struct {
	Code       string
	Status     string // "ok" | "failed"
	Rows       int
	FirstDate  time.Time
	LastDate   time.Time
	SeriesID   string
	Hurst      float64 // NaN when not computed
	HurstError string
	Error      string
}

// HurstSummary summarizes the Hurst estimates of a run.
type HurstSummary struct {
	Count         int
	Mean          float64
	Median        float64
	P10           float64
	P90           float64
	Trending      int // H > 0.5
	MeanReverting int // H < 0.5
}

// SearchSection summarizes a hyperparameter search.
type SearchSection struct {
	RunID        string
	Family       string
	TotalTrials  int
	FailedTrials int
	BestTrialID  int
	BestFamily   string
	BestScore    float64
	BestStd      float64
	BestParams   map[string]any
	Trials       []TrialRow
}

// TrialRow is one search trial.
type TrialRow struct {
	TrialID    int
	Family     string
	Status     string
	ScoreMean  float64
	ScoreStd   float64
	Loss       float64
	DurationMs int64
	Params     map[string]any
	Error      string
}
