package memory

import (
	"context"
	"errors"
	"testing"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/storage"
)

func adjustedPoint(code string, d int, close float64) *domain.AdjustedPricePoint {
	return &domain.AdjustedPricePoint{
		SecuritiesCode: code,
		Date:           day(d),
		Open:           close,
		High:           close,
		Low:            close,
		Close:          close,
		Volume:         1000,
		PriceFactor:    1,
	}
}

func TestAdjustedPriceStore_InsertAndRange(t *testing.T) {
	store := NewAdjustedPriceStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.AdjustedPricePoint{
		adjustedPoint("1301", 6, 51),
		adjustedPoint("1301", 4, 50),
		adjustedPoint("1301", 5, 50.5),
		adjustedPoint("1332", 5, 500),
	})
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByDateRange(ctx, "1301", day(5), day(6))
	if err != nil {
		t.Fatalf("GetByDateRange failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 points, got %d", len(got))
	}
	if got[0].Close != 50.5 || got[1].Close != 51 {
		t.Errorf("unexpected order: %v, %v", got[0].Close, got[1].Close)
	}
}

func TestAdjustedPriceStore_DuplicateKey(t *testing.T) {
	store := NewAdjustedPriceStore()
	ctx := context.Background()

	_ = store.InsertBulk(ctx, []*domain.AdjustedPricePoint{adjustedPoint("1301", 4, 50)})
	err := store.InsertBulk(ctx, []*domain.AdjustedPricePoint{adjustedPoint("1301", 4, 60)})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestAdjustedPriceStore_DeleteByCodeAllowsRecompute(t *testing.T) {
	store := NewAdjustedPriceStore()
	ctx := context.Background()

	_ = store.InsertBulk(ctx, []*domain.AdjustedPricePoint{
		adjustedPoint("1301", 4, 50),
		adjustedPoint("1332", 4, 500),
	})

	if err := store.DeleteByCode(ctx, "1301"); err != nil {
		t.Fatalf("DeleteByCode failed: %v", err)
	}
	got, _ := store.GetByCode(ctx, "1301")
	if len(got) != 0 {
		t.Errorf("expected no points after delete, got %d", len(got))
	}
	other, _ := store.GetByCode(ctx, "1332")
	if len(other) != 1 {
		t.Errorf("delete touched another security: %d points left", len(other))
	}

	if err := store.InsertBulk(ctx, []*domain.AdjustedPricePoint{adjustedPoint("1301", 4, 55)}); err != nil {
		t.Errorf("reinsert after delete failed: %v", err)
	}
}
