package domain

// SeriesFeature holds scalar statistics of one adjusted series.
// Corresponds to series_features table in ClickHouse.
type SeriesFeature struct {
	SeriesID       string  // deterministic hash of (code, column, first date, last date)
	SecuritiesCode string  // exchange security code
	Column         string  // adjusted column the statistics were computed on
	FirstDate      int64   // Unix ms of first observation
	LastDate       int64   // Unix ms of last observation
	Observations   int     // number of points
	HurstExponent  float64 // log-log slope of mean absolute lagged differences
	ComputedAt     int64   // Unix ms
}
