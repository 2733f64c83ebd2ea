package memory

import (
	"context"
	"sort"
	"sync"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/storage"
)

// SeriesFeatureStore is an in-memory implementation of storage.SeriesFeatureStore.
type SeriesFeatureStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SeriesFeature // keyed by series_id
}

// NewSeriesFeatureStore creates a new in-memory series feature store.
func NewSeriesFeatureStore() *SeriesFeatureStore {
	return &SeriesFeatureStore{
		data: make(map[string]*domain.SeriesFeature),
	}
}

// Insert adds a feature row. Returns ErrDuplicateKey if series_id exists.
func (s *SeriesFeatureStore) Insert(_ context.Context, f *domain.SeriesFeature) error {
	if f == nil || f.SeriesID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[f.SeriesID]; exists {
		return storage.ErrDuplicateKey
	}
	featureCopy := *f
	s.data[f.SeriesID] = &featureCopy
	return nil
}

// GetBySeriesID retrieves a feature row. Returns ErrNotFound if not exists.
func (s *SeriesFeatureStore) GetBySeriesID(_ context.Context, seriesID string) (*domain.SeriesFeature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.data[seriesID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	featureCopy := *f
	return &featureCopy, nil
}

// GetByCode retrieves all feature rows of a security, ordered by computed_at ASC.
func (s *SeriesFeatureStore) GetByCode(_ context.Context, code string) ([]*domain.SeriesFeature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SeriesFeature
	for _, f := range s.data {
		if f.SecuritiesCode == code {
			featureCopy := *f
			result = append(result, &featureCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ComputedAt != result[j].ComputedAt {
			return result[i].ComputedAt < result[j].ComputedAt
		}
		return result[i].SeriesID < result[j].SeriesID
	})
	return result, nil
}

var _ storage.SeriesFeatureStore = (*SeriesFeatureStore)(nil)
