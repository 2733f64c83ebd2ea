package storage

import (
	"context"
	"time"

	"jpx-stock-lab/internal/domain"
)

// StockPriceStore provides access to the raw stock_prices panel.
type StockPriceStore interface {
	// InsertBulk adds multiple records atomically. Fails entire batch on
	// duplicate (securities_code, date).
	InsertBulk(ctx context.Context, prices []*domain.StockPrice) error

	// GetByCode retrieves all records of a security, ordered by date ASC.
	GetByCode(ctx context.Context, code string) ([]*domain.StockPrice, error)

	// GetByDateRange retrieves records of every security within [start, end] (inclusive),
	// ordered by (date, securities_code).
	GetByDateRange(ctx context.Context, start, end time.Time) ([]*domain.StockPrice, error)

	// ListCodes returns the distinct security codes, ordered ASC.
	ListCodes(ctx context.Context) ([]string, error)
}

// AdjustedPriceStore provides access to adjusted_prices storage.
type AdjustedPriceStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (securities_code, date).
	InsertBulk(ctx context.Context, points []*domain.AdjustedPricePoint) error

	// GetByCode retrieves all points of a security, ordered by date ASC.
	GetByCode(ctx context.Context, code string) ([]*domain.AdjustedPricePoint, error)

	// GetByDateRange retrieves points of a security within [start, end] (inclusive).
	GetByDateRange(ctx context.Context, code string, start, end time.Time) ([]*domain.AdjustedPricePoint, error)

	// DeleteByCode removes every point of a security so it can be recomputed.
	DeleteByCode(ctx context.Context, code string) error
}

// SeriesFeatureStore provides access to series_features storage.
type SeriesFeatureStore interface {
	// Insert adds a feature row. Returns ErrDuplicateKey if series_id exists.
	Insert(ctx context.Context, f *domain.SeriesFeature) error

	// GetBySeriesID retrieves a feature row. Returns ErrNotFound if not exists.
	GetBySeriesID(ctx context.Context, seriesID string) (*domain.SeriesFeature, error)

	// GetByCode retrieves all feature rows of a security, ordered by computed_at ASC.
	GetByCode(ctx context.Context, code string) ([]*domain.SeriesFeature, error)
}

// SearchTrialStore provides access to search_trials storage.
type SearchTrialStore interface {
	// InsertBulk adds trials atomically. Fails entire batch on duplicate (run_id, trial_id).
	InsertBulk(ctx context.Context, trials []*domain.SearchTrial) error

	// GetByRun retrieves all trials of a run, ordered by trial_id ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.SearchTrial, error)

	// GetBest retrieves the ok trial with the lowest loss. Returns ErrNotFound if none.
	GetBest(ctx context.Context, runID string) (*domain.SearchTrial, error)
}
