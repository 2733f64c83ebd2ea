package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jpx-stock-lab/internal/adjustment"
	"jpx-stock-lab/internal/config"
	"jpx-stock-lab/internal/storage"
	"jpx-stock-lab/internal/storage/memory"
)

func TestOpenStores_Memory(t *testing.T) {
	stores, err := OpenStores(context.Background(), config.StorageConfig{Backend: config.BackendMemory}, true, zerolog.Nop())
	require.NoError(t, err)
	defer stores.Close()

	assert.IsType(t, &memory.StockPriceStore{}, stores.Prices)
	assert.IsType(t, &memory.SearchTrialStore{}, stores.Trials)

	ps := stores.Pipeline()
	assert.Same(t, stores.Adjusted, ps.Adjusted)
	assert.Same(t, stores.Features, ps.Features)
}

func TestOpenStores_SQLBadDSN(t *testing.T) {
	_, err := OpenStores(context.Background(), config.StorageConfig{
		Backend:       config.BackendSQL,
		PostgresDSN:   "::not a dsn::",
		ClickhouseDSN: "clickhouse://localhost:9000/jpx",
	}, false, zerolog.Nop())
	assert.Error(t, err)
}

const panelCSV = `RowId,Date,SecuritiesCode,Open,High,Low,Close,Volume,AdjustmentFactor,ExpectedDividend,SupervisionFlag,Target
20211201_1301,2021-12-01,1301,100,102,99,101,1000,1,,False,0.01
20211201_1332,2021-12-01,1332,50,51,49,50,2000,1,,False,
20211202_1301,2021-12-02,1301,101,103,100,102,1100,1,,False,
`

func TestImportPanel_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock_prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(panelCSV), 0644))

	store := memory.NewStockPriceStore()
	n, err := ImportPanel(context.Background(), store, path, "", adjustment.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	codes, err := store.ListCodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1301", "1332"}, codes)

	// second import collides on (code, date)
	_, err = ImportPanel(context.Background(), store, path, "", adjustment.DefaultOptions())
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestReadPanelFile_UnsupportedExtension(t *testing.T) {
	_, err := ReadPanelFile("prices.parquet", "", adjustment.DefaultOptions())
	assert.Error(t, err)
}
