package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/storage"
)

// StockPriceStore implements storage.StockPriceStore using PostgreSQL.
type StockPriceStore struct {
	pool *Pool
}

// NewStockPriceStore creates a new StockPriceStore.
func NewStockPriceStore(pool *Pool) *StockPriceStore {
	return &StockPriceStore{pool: pool}
}

var _ storage.StockPriceStore = (*StockPriceStore)(nil)

var stockPriceColumns = []string{
	"row_id", "trade_date", "securities_code",
	"open", "high", "low", "close", "volume",
	"adjustment_factor", "expected_dividend", "supervision_flag", "target",
}

const stockPriceSelect = `
	SELECT
		row_id, trade_date, securities_code,
		open, high, low, close, volume,
		adjustment_factor, expected_dividend, supervision_flag, target
	FROM stock_prices
`

// InsertBulk copies records in one transaction. Fails entire batch on any duplicate.
func (s *StockPriceStore) InsertBulk(ctx context.Context, prices []*domain.StockPrice) error {
	if len(prices) == 0 {
		return nil
	}
	for _, p := range prices {
		if p == nil || p.SecuritiesCode == "" || p.Date.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"stock_prices"},
		stockPriceColumns,
		pgx.CopyFromSlice(len(prices), func(i int) ([]any, error) {
			p := prices[i]
			return []any{
				p.RowID, p.Date, p.SecuritiesCode,
				p.Open, p.High, p.Low, p.Close, p.Volume,
				p.AdjustmentFactor, p.ExpectedDividend, p.SupervisionFlag, p.Target,
			}, nil
		}),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("copy stock prices: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByCode retrieves all records of a security, ordered by date ASC.
func (s *StockPriceStore) GetByCode(ctx context.Context, code string) ([]*domain.StockPrice, error) {
	query := stockPriceSelect + `
		WHERE securities_code = $1
		ORDER BY trade_date ASC
	`
	rows, err := s.pool.Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("get stock prices by code: %w", err)
	}
	return collectStockPrices(rows)
}

// GetByDateRange retrieves records of every security within [start, end].
func (s *StockPriceStore) GetByDateRange(ctx context.Context, start, end time.Time) ([]*domain.StockPrice, error) {
	query := stockPriceSelect + `
		WHERE trade_date >= $1 AND trade_date <= $2
		ORDER BY trade_date ASC, securities_code ASC
	`
	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get stock prices by date range: %w", err)
	}
	return collectStockPrices(rows)
}

// ListCodes returns the distinct security codes, ordered ASC.
func (s *StockPriceStore) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT securities_code FROM stock_prices ORDER BY securities_code ASC`)
	if err != nil {
		return nil, fmt.Errorf("list securities codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan securities codes: %w", err)
	}
	return codes, nil
}

func collectStockPrices(rows pgx.Rows) ([]*domain.StockPrice, error) {
	defer rows.Close()

	var result []*domain.StockPrice
	for rows.Next() {
		var p domain.StockPrice
		err := rows.Scan(
			&p.RowID, &p.Date, &p.SecuritiesCode,
			&p.Open, &p.High, &p.Low, &p.Close, &p.Volume,
			&p.AdjustmentFactor, &p.ExpectedDividend, &p.SupervisionFlag, &p.Target,
		)
		if err != nil {
			return nil, fmt.Errorf("scan stock price: %w", err)
		}
		p.Date = p.Date.UTC()
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock prices: %w", err)
	}
	return result, nil
}
