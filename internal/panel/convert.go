// Package panel moves stock price records between storage, files and the
// columnar frame the adjustment functions operate on.
package panel

import (
	"fmt"
	"math"
	"time"

	"jpx-stock-lab/internal/adjustment"
	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/frame"
)

// Names of the panel columns that are not configurable.
const (
	RowIDColumn            = "RowId"
	ExpectedDividendColumn = "ExpectedDividend"
	SupervisionFlagColumn  = "SupervisionFlag"
	TargetColumn           = "Target"
)

// ToFrame lays records out as a panel frame using the column names of opts.
// Nullable fields become NaN and SupervisionFlag becomes 0 or 1.
// opts.PriceColumns must be drawn from Open, High, Low and Close.
func ToFrame(records []*domain.StockPrice, opts adjustment.Options) (*frame.Frame, error) {
	opts = withDefaults(opts)
	n := len(records)

	rowIDs := make([]string, n)
	dates := make([]time.Time, n)
	codes := make([]string, n)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closePx := make([]float64, n)
	volume := make([]float64, n)
	factor := make([]float64, n)
	dividend := make([]float64, n)
	supervision := make([]float64, n)
	target := make([]float64, n)

	for i, r := range records {
		rowIDs[i] = r.RowID
		dates[i] = r.Date
		codes[i] = r.SecuritiesCode
		open[i] = r.Open
		high[i] = r.High
		low[i] = r.Low
		closePx[i] = r.Close
		volume[i] = r.Volume
		factor[i] = r.AdjustmentFactor
		dividend[i] = nullable(r.ExpectedDividend)
		if r.SupervisionFlag {
			supervision[i] = 1
		}
		target[i] = nullable(r.Target)
	}

	prices := map[string][]float64{"Open": open, "High": high, "Low": low, "Close": closePx}
	cols := []frame.Column{
		frame.StringColumn(RowIDColumn, rowIDs),
		frame.TimeColumn(opts.DateColumn, dates),
		frame.StringColumn(opts.CodeColumn, codes),
	}
	for _, name := range opts.PriceColumns {
		values, ok := prices[name]
		if !ok {
			return nil, fmt.Errorf("%w: price column %q has no record field", frame.ErrColumnNotFound, name)
		}
		cols = append(cols, frame.FloatColumn(name, values))
	}
	cols = append(cols,
		frame.FloatColumn(opts.VolumeColumn, volume),
		frame.FloatColumn(opts.AdjustmentFactorColumn, factor),
		frame.FloatColumn(ExpectedDividendColumn, dividend),
		frame.FloatColumn(SupervisionFlagColumn, supervision),
		frame.FloatColumn(TargetColumn, target),
	)
	return frame.New(cols...)
}

// AdjustedPoints converts the output of adjustment.AdjustedSecurityData for
// one security into storage points. PriceFactor is the cumulative price
// factor of each date.
func AdjustedPoints(code string, adjusted *frame.Frame, opts adjustment.Options) ([]*domain.AdjustedPricePoint, error) {
	opts = withDefaults(opts)
	if adjusted.Len() == 0 {
		return nil, nil
	}

	factors, err := adjustment.FactorSeries(adjusted, opts.AdjustmentFactorColumn, adjustment.ModePrice)
	if err != nil {
		return nil, err
	}

	column := func(name string) ([]float64, error) {
		if !adjusted.Has(name) {
			return make([]float64, adjusted.Len()), nil
		}
		return adjusted.Float(name)
	}

	var values [5][]float64
	for i, name := range []string{"Open", "High", "Low", "Close", opts.VolumeColumn} {
		if values[i], err = column(name); err != nil {
			return nil, err
		}
	}

	dates := adjusted.Index()
	points := make([]*domain.AdjustedPricePoint, adjusted.Len())
	for i := range points {
		points[i] = &domain.AdjustedPricePoint{
			SecuritiesCode: code,
			Date:           dates[i],
			Open:           values[0][i],
			High:           values[1][i],
			Low:            values[2][i],
			Close:          values[3][i],
			Volume:         values[4][i],
			PriceFactor:    factors.Values[i],
		}
	}
	return points, nil
}

// Closes returns the adjusted close series of stored points, in point order.
func Closes(points []*domain.AdjustedPricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Close
	}
	return out
}

// PointColumn returns one named column of stored points: Open, High, Low, Close or Volume.
func PointColumn(points []*domain.AdjustedPricePoint, name string) ([]float64, error) {
	var pick func(*domain.AdjustedPricePoint) float64
	switch name {
	case "Open":
		pick = func(p *domain.AdjustedPricePoint) float64 { return p.Open }
	case "High":
		pick = func(p *domain.AdjustedPricePoint) float64 { return p.High }
	case "Low":
		pick = func(p *domain.AdjustedPricePoint) float64 { return p.Low }
	case "Close":
		return Closes(points), nil
	case "Volume":
		pick = func(p *domain.AdjustedPricePoint) float64 { return p.Volume }
	default:
		return nil, fmt.Errorf("%w: %q", frame.ErrColumnNotFound, name)
	}
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = pick(p)
	}
	return out, nil
}

func nullable(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func withDefaults(opts adjustment.Options) adjustment.Options {
	d := adjustment.DefaultOptions()
	if opts.CodeColumn == "" {
		opts.CodeColumn = d.CodeColumn
	}
	if opts.DateColumn == "" {
		opts.DateColumn = d.DateColumn
	}
	if opts.VolumeColumn == "" {
		opts.VolumeColumn = d.VolumeColumn
	}
	if opts.AdjustmentFactorColumn == "" {
		opts.AdjustmentFactorColumn = d.AdjustmentFactorColumn
	}
	if len(opts.PriceColumns) == 0 {
		opts.PriceColumns = d.PriceColumns
	}
	return opts
}
