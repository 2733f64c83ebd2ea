package pipeline

import (
	"context"
	"fmt"
	"math"

	"jpx-stock-lab/internal/modelsearch"
	"jpx-stock-lab/internal/panel"
	"jpx-stock-lab/internal/storage"
	"jpx-stock-lab/internal/tsprep"
)

// BuildDataset frames series into windows of timeDim values and labels each
// window 1 when the next value exceeds the window's last value. Windows
// touching a NaN are skipped. A series shorter than timeDim+1 yields an
// empty dataset.
func BuildDataset(series []float64, timeDim int) (*modelsearch.Dataset, error) {
	features, targets, err := tsprep.ToSupervised(series, timeDim, tsprep.WithOutputDim(1))
	if err != nil {
		return nil, err
	}

	names := features.Names()
	cols := make([][]float64, len(names))
	for j, name := range names {
		if cols[j], err = features.Float(name); err != nil {
			return nil, err
		}
	}
	next, err := targets.Float(tsprep.DefaultTargetName)
	if err != nil {
		return nil, err
	}

	d := &modelsearch.Dataset{FeatureNames: names}
rows:
	for i := 0; i < features.Len(); i++ {
		row := make([]float64, len(names))
		for j := range cols {
			if math.IsNaN(cols[j][i]) {
				continue rows
			}
			row[j] = cols[j][i]
		}
		if math.IsNaN(next[i]) {
			continue
		}
		label := 0
		if next[i] > row[len(row)-1] {
			label = 1
		}
		d.X = append(d.X, row)
		d.Y = append(d.Y, label)
	}
	return d, nil
}

// LoadDataset builds one dataset from the stored adjusted column of each code.
func LoadDataset(ctx context.Context, store storage.AdjustedPriceStore, codes []string, column string, timeDim int) (*modelsearch.Dataset, error) {
	out := &modelsearch.Dataset{}
	for _, code := range codes {
		points, err := store.GetByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", code, err)
		}
		series, err := panel.PointColumn(points, column)
		if err != nil {
			return nil, err
		}
		d, err := BuildDataset(series, timeDim)
		if err != nil {
			return nil, fmt.Errorf("frame %s: %w", code, err)
		}
		if err := out.Append(d); err != nil {
			return nil, err
		}
	}
	return out, nil
}
