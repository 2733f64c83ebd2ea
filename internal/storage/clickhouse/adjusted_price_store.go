package clickhouse

import (
	"context"
	"fmt"
	"time"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/storage"
)

// AdjustedPriceStore implements storage.AdjustedPriceStore using ClickHouse.
type AdjustedPriceStore struct {
	conn *Conn
}

// NewAdjustedPriceStore creates a new AdjustedPriceStore.
func NewAdjustedPriceStore(conn *Conn) *AdjustedPriceStore {
	return &AdjustedPriceStore{conn: conn}
}

var _ storage.AdjustedPriceStore = (*AdjustedPriceStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (securities_code, trade_date).
// MergeTree does not enforce keys, so duplicates are checked before the batch is sent.
func (s *AdjustedPriceStore) InsertBulk(ctx context.Context, points []*domain.AdjustedPricePoint) error {
	if len(points) == 0 {
		return nil
	}

	type key struct {
		code string
		date string
	}
	seen := make(map[key]struct{}, len(points))
	codes := make(map[string][]string)
	for _, p := range points {
		if p == nil || p.SecuritiesCode == "" {
			return storage.ErrInvalidInput
		}
		k := key{p.SecuritiesCode, p.Date.UTC().Format(time.DateOnly)}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		codes[p.SecuritiesCode] = append(codes[p.SecuritiesCode], k.date)
	}

	for code, dates := range codes {
		exists, err := s.anyExists(ctx, code, dates)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO adjusted_prices (
			securities_code, trade_date, open, high, low, close, volume, price_factor
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.SecuritiesCode, p.Date.UTC(),
			p.Open, p.High, p.Low, p.Close, p.Volume, p.PriceFactor,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByCode retrieves all points of a security, ordered by date ASC.
func (s *AdjustedPriceStore) GetByCode(ctx context.Context, code string) ([]*domain.AdjustedPricePoint, error) {
	query := `
		SELECT securities_code, trade_date, open, high, low, close, volume, price_factor
		FROM adjusted_prices
		WHERE securities_code = ?
		ORDER BY trade_date ASC
	`
	rows, err := s.conn.Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("query by code: %w", err)
	}
	defer rows.Close()

	return scanAdjustedPrices(rows)
}

// GetByDateRange retrieves points of a security within [start, end] (inclusive).
func (s *AdjustedPriceStore) GetByDateRange(ctx context.Context, code string, start, end time.Time) ([]*domain.AdjustedPricePoint, error) {
	query := `
		SELECT securities_code, trade_date, open, high, low, close, volume, price_factor
		FROM adjusted_prices
		WHERE securities_code = ? AND trade_date >= ? AND trade_date <= ?
		ORDER BY trade_date ASC
	`
	rows, err := s.conn.Query(ctx, query, code,
		start.UTC().Format(time.DateOnly), end.UTC().Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("query by date range: %w", err)
	}
	defer rows.Close()

	return scanAdjustedPrices(rows)
}

// DeleteByCode removes every point of a security with a lightweight delete.
func (s *AdjustedPriceStore) DeleteByCode(ctx context.Context, code string) error {
	if err := s.conn.Exec(ctx, `DELETE FROM adjusted_prices WHERE securities_code = ?`, code); err != nil {
		return fmt.Errorf("delete by code: %w", err)
	}
	return nil
}

// anyExists reports whether any of the yyyy-mm-dd dates is already stored for code.
func (s *AdjustedPriceStore) anyExists(ctx context.Context, code string, dates []string) (bool, error) {
	query := `
		SELECT count(*) FROM adjusted_prices
		WHERE securities_code = ? AND trade_date IN (?)
	`
	var count uint64
	if err := s.conn.QueryRow(ctx, query, code, dates).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanAdjustedPrices(rows chRows) ([]*domain.AdjustedPricePoint, error) {
	var points []*domain.AdjustedPricePoint

	for rows.Next() {
		var p domain.AdjustedPricePoint
		err := rows.Scan(
			&p.SecuritiesCode, &p.Date,
			&p.Open, &p.High, &p.Low, &p.Close, &p.Volume, &p.PriceFactor,
		)
		if err != nil {
			return nil, fmt.Errorf("scan adjusted price row: %w", err)
		}
		p.Date = p.Date.UTC()
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate adjusted price rows: %w", err)
	}
	return points, nil
}
