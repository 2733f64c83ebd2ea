package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/storage"
)

// SearchTrialStore implements storage.SearchTrialStore using PostgreSQL.
type SearchTrialStore struct {
	pool *Pool
}

// NewSearchTrialStore creates a new SearchTrialStore.
func NewSearchTrialStore(pool *Pool) *SearchTrialStore {
	return &SearchTrialStore{pool: pool}
}

var _ storage.SearchTrialStore = (*SearchTrialStore)(nil)

const searchTrialSelect = `
	SELECT
		run_id, trial_id, family, params,
		loss, score_mean, score_std,
		status, error, duration_ms, created_at
	FROM search_trials
`

// InsertBulk adds trials atomically. Fails entire batch on any duplicate.
func (s *SearchTrialStore) InsertBulk(ctx context.Context, trials []*domain.SearchTrial) error {
	if len(trials) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO search_trials (
			run_id, trial_id, family, params,
			loss, score_mean, score_std,
			status, error, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	for _, t := range trials {
		if t == nil || t.RunID == "" {
			return storage.ErrInvalidInput
		}
		params := t.Params
		if params == nil {
			params = map[string]any{}
		}
		_, err := tx.Exec(ctx, query,
			t.RunID, t.TrialID, t.Family, params,
			t.Loss, t.ScoreMean, t.ScoreStd,
			t.Status, t.Error, t.DurationMs, t.CreatedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert search trial: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRun retrieves all trials of a run, ordered by trial_id ASC.
func (s *SearchTrialStore) GetByRun(ctx context.Context, runID string) ([]*domain.SearchTrial, error) {
	query := searchTrialSelect + `
		WHERE run_id = $1
		ORDER BY trial_id ASC
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get search trials by run: %w", err)
	}
	defer rows.Close()

	var result []*domain.SearchTrial
	for rows.Next() {
		t, err := scanSearchTrial(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search trials: %w", err)
	}
	return result, nil
}

// GetBest retrieves the ok trial with the lowest loss. Returns ErrNotFound if none.
func (s *SearchTrialStore) GetBest(ctx context.Context, runID string) (*domain.SearchTrial, error) {
	query := searchTrialSelect + `
		WHERE run_id = $1 AND status = $2
		ORDER BY loss ASC, trial_id ASC
		LIMIT 1
	`
	t, err := scanSearchTrial(s.pool.QueryRow(ctx, query, runID, domain.TrialStatusOK))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get best search trial: %w", err)
	}
	return t, nil
}

func scanSearchTrial(row pgx.Row) (*domain.SearchTrial, error) {
	var t domain.SearchTrial
	err := row.Scan(
		&t.RunID, &t.TrialID, &t.Family, &t.Params,
		&t.Loss, &t.ScoreMean, &t.ScoreStd,
		&t.Status, &t.Error, &t.DurationMs, &t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan search trial: %w", err)
	}
	return &t, nil
}
