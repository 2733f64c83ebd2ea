package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/storage"
)

// StockPriceStore is an in-memory implementation of storage.StockPriceStore.
type StockPriceStore struct {
	mu   sync.RWMutex
	data map[string]*domain.StockPrice // keyed by (securities_code, date)
}

// NewStockPriceStore creates a new in-memory stock price store.
func NewStockPriceStore() *StockPriceStore {
	return &StockPriceStore{
		data: make(map[string]*domain.StockPrice),
	}
}

func dailyKey(code string, date time.Time) string {
	return fmt.Sprintf("%s|%s", code, date.UTC().Format("2006-01-02"))
}

// InsertBulk adds multiple records. Fails entire batch on duplicate.
func (s *StockPriceStore) InsertBulk(_ context.Context, prices []*domain.StockPrice) error {
	if len(prices) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(prices))
	for _, p := range prices {
		if p == nil || p.SecuritiesCode == "" || p.Date.IsZero() {
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

	for _, p := range prices {
		s.data[dailyKey(p.SecuritiesCode, p.Date)] = copyStockPrice(p)
	}
	return nil
}

// GetByCode retrieves all records of a security, ordered by date ASC.
func (s *StockPriceStore) GetByCode(_ context.Context, code string) ([]*domain.StockPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StockPrice
	for _, p := range s.data {
		if p.SecuritiesCode == code {
			result = append(result, copyStockPrice(p))
		}
	}
	sortStockPrices(result)
	return result, nil
}

// GetByDateRange retrieves records of every security within [start, end].
func (s *StockPriceStore) GetByDateRange(_ context.Context, start, end time.Time) ([]*domain.StockPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StockPrice
	for _, p := range s.data {
		if !p.Date.Before(start) && !p.Date.After(end) {
			result = append(result, copyStockPrice(p))
		}
	}
	sortStockPrices(result)
	return result, nil
}

// ListCodes returns the distinct security codes, ordered ASC.
func (s *StockPriceStore) ListCodes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, p := range s.data {
		seen[p.SecuritiesCode] = struct{}{}
	}
	codes := make([]string, 0, len(seen))
	for c := range seen {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes, nil
}

func sortStockPrices(prices []*domain.StockPrice) {
	sort.Slice(prices, func(i, j int) bool {
		if !prices[i].Date.Equal(prices[j].Date) {
			return prices[i].Date.Before(prices[j].Date)
		}
		return prices[i].SecuritiesCode < prices[j].SecuritiesCode
	})
}

func copyStockPrice(p *domain.StockPrice) *domain.StockPrice {
	c := *p
	if p.ExpectedDividend != nil {
		v := *p.ExpectedDividend
		c.ExpectedDividend = &v
	}
	if p.Target != nil {
		v := *p.Target
		c.Target = &v
	}
	return &c
}

var _ storage.StockPriceStore = (*StockPriceStore)(nil)
