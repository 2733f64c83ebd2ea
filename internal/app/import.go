package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"jpx-stock-lab/internal/adjustment"
	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/panel"
	"jpx-stock-lab/internal/storage"
)

// ImportBatchSize bounds one InsertBulk call.
const ImportBatchSize = 5000

// ReadPanelFile parses a .csv or .xlsx stock price file. sheet applies to
// workbooks only.
func ReadPanelFile(path, sheet string, opts adjustment.Options) ([]*domain.StockPrice, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return panel.LoadXLSX(path, sheet, opts)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return panel.LoadCSV(f, opts)
	default:
		return nil, fmt.Errorf("unsupported panel file %s: want .csv or .xlsx", path)
	}
}

// ImportPanel reads path and stores its records in batches. It returns the
// number of stored records; a failed batch stops the import.
func ImportPanel(ctx context.Context, store storage.StockPriceStore, path, sheet string, opts adjustment.Options) (int, error) {
	records, err := ReadPanelFile(path, sheet, opts)
	if err != nil {
		return 0, err
	}

	stored := 0
	for start := 0; start < len(records); start += ImportBatchSize {
		end := min(start+ImportBatchSize, len(records))
		if err := store.InsertBulk(ctx, records[start:end]); err != nil {
			return stored, fmt.Errorf("insert records %d-%d: %w", start, end-1, err)
		}
		stored = end
	}
	return stored, nil
}
