package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/storage"
)

func TestSeriesFeatureStore_InsertAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSeriesFeatureStore(conn)
	ctx := context.Background()

	f := &domain.SeriesFeature{
		SeriesID:       "3yQ9",
		SecuritiesCode: "1301",
		Column:         "Close",
		FirstDate:      1609718400000,
		LastDate:       1640736000000,
		Observations:   245,
		HurstExponent:  0.48,
		ComputedAt:     1700000000000,
	}
	require.NoError(t, store.Insert(ctx, f))
	assert.ErrorIs(t, store.Insert(ctx, f), storage.ErrDuplicateKey)

	got, err := store.GetBySeriesID(ctx, "3yQ9")
	require.NoError(t, err)
	assert.Equal(t, *f, *got)

	byCode, err := store.GetByCode(ctx, "1301")
	require.NoError(t, err)
	require.Len(t, byCode, 1)
	assert.Equal(t, 245, byCode[0].Observations)
}

func TestSeriesFeatureStore_NotFound(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewSeriesFeatureStore(conn).GetBySeriesID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
