package domain

// SearchTrial is one evaluated hyperparameter candidate.
// Corresponds to search_trials table in PostgreSQL.
type SearchTrial struct {
	RunID      string         // search run identifier
	TrialID    int            // 0-based trial number within the run
	Family     string         // classifier family, e.g. "xgboost"
	Params     map[string]any // sampled hyperparameters
	Loss       float64        // negated mean CV score
	ScoreMean  float64        // mean CV score
	ScoreStd   float64        // CV score standard deviation
	Status     string         // "ok" | "fail"
	Error      string         // failure reason when Status is "fail"
	DurationMs int64          // wall time of the trial
	CreatedAt  int64          // Unix ms
}

// Trial status constants
const (
	TrialStatusOK   = "ok"
	TrialStatusFail = "fail"
)
