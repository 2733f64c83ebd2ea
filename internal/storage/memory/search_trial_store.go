package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/storage"
)

// SearchTrialStore is an in-memory implementation of storage.SearchTrialStore.
type SearchTrialStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SearchTrial // keyed by (run_id, trial_id)
}

// NewSearchTrialStore creates a new in-memory search trial store.
func NewSearchTrialStore() *SearchTrialStore {
	return &SearchTrialStore{
		data: make(map[string]*domain.SearchTrial),
	}
}

func trialKey(runID string, trialID int) string {
	return fmt.Sprintf("%s|%d", runID, trialID)
}

// InsertBulk adds trials. Fails entire batch on duplicate.
func (s *SearchTrialStore) InsertBulk(_ context.Context, trials []*domain.SearchTrial) error {
	if len(trials) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(trials))
	for _, t := range trials {
		if t == nil || t.RunID == "" {
			return storage.ErrInvalidInput
		}
		key := trialKey(t.RunID, t.TrialID)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, t := range trials {
		s.data[trialKey(t.RunID, t.TrialID)] = copyTrial(t)
	}
	return nil
}

// GetByRun retrieves all trials of a run, ordered by trial_id ASC.
func (s *SearchTrialStore) GetByRun(_ context.Context, runID string) ([]*domain.SearchTrial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SearchTrial
	for _, t := range s.data {
		if t.RunID == runID {
			result = append(result, copyTrial(t))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TrialID < result[j].TrialID
	})
	return result, nil
}

// GetBest retrieves the ok trial with the lowest loss; ties go to the earlier trial.
func (s *SearchTrialStore) GetBest(ctx context.Context, runID string) (*domain.SearchTrial, error) {
	trials, _ := s.GetByRun(ctx, runID)

	var best *domain.SearchTrial
	for _, t := range trials {
		if t.Status != domain.TrialStatusOK {
			continue
		}
		if best == nil || t.Loss < best.Loss {
			best = t
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return best, nil
}

func copyTrial(t *domain.SearchTrial) *domain.SearchTrial {
	c := *t
	c.Params = maps.Clone(t.Params)
	return &c
}

var _ storage.SearchTrialStore = (*SearchTrialStore)(nil)
