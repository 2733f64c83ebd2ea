package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/storage"
)

// AdjustedPriceStore is an in-memory implementation of storage.AdjustedPriceStore.
type AdjustedPriceStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AdjustedPricePoint // keyed by (securities_code, date)
}

// NewAdjustedPriceStore creates a new in-memory adjusted price store.
func NewAdjustedPriceStore() *AdjustedPriceStore {
	return &AdjustedPriceStore{
		data: make(map[string]*domain.AdjustedPricePoint),
	}
}

// InsertBulk adds multiple points. Fails entire batch on duplicate.
func (s *AdjustedPriceStore) InsertBulk(_ context.Context, points []*domain.AdjustedPricePoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.SecuritiesCode == "" {
			return storage.ErrInvalidInput
		}
		key := dailyKey(p.SecuritiesCode, p.Date)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, p := range points {
		pointCopy := *p
		s.data[dailyKey(p.SecuritiesCode, p.Date)] = &pointCopy
	}
	return nil
}

// GetByCode retrieves all points of a security, ordered by date ASC.
func (s *AdjustedPriceStore) GetByCode(_ context.Context, code string) ([]*domain.AdjustedPricePoint, error) {
	return s.collect(func(p *domain.AdjustedPricePoint) bool {
		return p.SecuritiesCode == code
	}), nil
}

// GetByDateRange retrieves points of a security within [start, end] (inclusive).
func (s *AdjustedPriceStore) GetByDateRange(_ context.Context, code string, start, end time.Time) ([]*domain.AdjustedPricePoint, error) {
	return s.collect(func(p *domain.AdjustedPricePoint) bool {
		return p.SecuritiesCode == code && !p.Date.Before(start) && !p.Date.After(end)
	}), nil
}

// DeleteByCode removes every point of a security.
func (s *AdjustedPriceStore) DeleteByCode(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, p := range s.data {
		if p.SecuritiesCode == code {
			delete(s.data, key)
		}
	}
	return nil
}

func (s *AdjustedPriceStore) collect(match func(*domain.AdjustedPricePoint) bool) []*domain.AdjustedPricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AdjustedPricePoint
	for _, p := range s.data {
		if match(p) {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result
}

var _ storage.AdjustedPriceStore = (*AdjustedPriceStore)(nil)
