package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/storage"
)

func tradeDay(d int) time.Time {
	return time.Date(2021, time.January, d, 0, 0, 0, 0, time.UTC)
}

func point(code string, d int, closePx float64) *domain.AdjustedPricePoint {
	return &domain.AdjustedPricePoint{
		SecuritiesCode: code,
		Date:           tradeDay(d),
		Open:           closePx,
		High:           closePx + 1,
		Low:            closePx - 1,
		Close:          closePx,
		Volume:         2000,
		PriceFactor:    0.5,
	}
}

func TestAdjustedPriceStore_InsertBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAdjustedPriceStore(conn)
	ctx := context.Background()

	assert.NoError(t, store.InsertBulk(ctx, nil))

	err := store.InsertBulk(ctx, []*domain.AdjustedPricePoint{
		point("1301", 5, 51),
		point("1301", 4, 50),
		point("1332", 4, 500),
	})
	require.NoError(t, err)

	got, err := store.GetByCode(ctx, "1301")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Date.Equal(tradeDay(4)))
	assert.Equal(t, 50.0, got[0].Close)
	assert.Equal(t, 0.5, got[0].PriceFactor)
	assert.True(t, got[1].Date.Equal(tradeDay(5)))
}

func TestAdjustedPriceStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAdjustedPriceStore(conn)
	ctx := context.Background()

	// Intra-batch
	err := store.InsertBulk(ctx, []*domain.AdjustedPricePoint{point("1301", 4, 50), point("1301", 4, 51)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Against stored rows
	require.NoError(t, store.InsertBulk(ctx, []*domain.AdjustedPricePoint{point("1301", 4, 50)}))
	err = store.InsertBulk(ctx, []*domain.AdjustedPricePoint{point("1301", 5, 51), point("1301", 4, 50)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByCode(ctx, "1301")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAdjustedPriceStore_GetByDateRangeAndDelete(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAdjustedPriceStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.AdjustedPricePoint{
		point("1301", 4, 50),
		point("1301", 5, 51),
		point("1301", 6, 52),
	}))

	got, err := store.GetByDateRange(ctx, "1301", tradeDay(5), tradeDay(6))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 51.0, got[0].Close)

	require.NoError(t, store.DeleteByCode(ctx, "1301"))
	got, err = store.GetByCode(ctx, "1301")
	require.NoError(t, err)
	assert.Empty(t, got)

	// Recompute after delete
	require.NoError(t, store.InsertBulk(ctx, []*domain.AdjustedPricePoint{point("1301", 4, 49)}))
}
