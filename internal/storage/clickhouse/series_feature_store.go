package clickhouse

import (
	"context"
	"fmt"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/storage"
)

// SeriesFeatureStore implements storage.SeriesFeatureStore using ClickHouse.
type SeriesFeatureStore struct {
	conn *Conn
}

// NewSeriesFeatureStore creates a new SeriesFeatureStore.
func NewSeriesFeatureStore(conn *Conn) *SeriesFeatureStore {
	return &SeriesFeatureStore{conn: conn}
}

var _ storage.SeriesFeatureStore = (*SeriesFeatureStore)(nil)

const seriesFeatureSelect = `
	SELECT series_id, securities_code, column_name, first_date, last_date,
	       observations, hurst_exponent, computed_at
	FROM series_features
`

// Insert adds a feature row. Returns ErrDuplicateKey if series_id exists.
func (s *SeriesFeatureStore) Insert(ctx context.Context, f *domain.SeriesFeature) error {
	if f == nil || f.SeriesID == "" {
		return storage.ErrInvalidInput
	}

	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM series_features WHERE series_id = ?`, f.SeriesID).Scan(&count)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO series_features (
			series_id, securities_code, column_name, first_date, last_date,
			observations, hurst_exponent, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		f.SeriesID, f.SecuritiesCode, f.Column, f.FirstDate, f.LastDate,
		uint32(f.Observations), f.HurstExponent, f.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("insert series feature: %w", err)
	}
	return nil
}

// GetBySeriesID retrieves a feature row. Returns ErrNotFound if not exists.
func (s *SeriesFeatureStore) GetBySeriesID(ctx context.Context, seriesID string) (*domain.SeriesFeature, error) {
	rows, err := s.conn.Query(ctx, seriesFeatureSelect+` WHERE series_id = ? LIMIT 1`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("query by series id: %w", err)
	}
	defer rows.Close()

	features, err := scanSeriesFeatures(rows)
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, storage.ErrNotFound
	}
	return features[0], nil
}

// GetByCode retrieves all feature rows of a security, ordered by computed_at ASC.
func (s *SeriesFeatureStore) GetByCode(ctx context.Context, code string) ([]*domain.SeriesFeature, error) {
	rows, err := s.conn.Query(ctx, seriesFeatureSelect+`
		WHERE securities_code = ?
		ORDER BY computed_at ASC, series_id ASC
	`, code)
	if err != nil {
		return nil, fmt.Errorf("query by code: %w", err)
	}
	defer rows.Close()

	return scanSeriesFeatures(rows)
}

func scanSeriesFeatures(rows chRows) ([]*domain.SeriesFeature, error) {
	var features []*domain.SeriesFeature

	for rows.Next() {
		var f domain.SeriesFeature
		var observations uint32
		err := rows.Scan(
			&f.SeriesID, &f.SecuritiesCode, &f.Column, &f.FirstDate, &f.LastDate,
			&observations, &f.HurstExponent, &f.ComputedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan series feature row: %w", err)
		}
		f.Observations = int(observations)
		features = append(features, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series feature rows: %w", err)
	}
	return features, nil
}
