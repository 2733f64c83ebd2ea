package adjustment

import (
	"fmt"
	"math"

	"jpx-stock-lab/internal/frame"
)

// Mode selects whether an adjustment series scales prices or volumes.
type Mode string

const (
	ModePrice  Mode = "price"
	ModeVolume Mode = "volume"
)

// Validate returns ErrInvalidMode for anything but price or volume.
func (m Mode) Validate() error {
	if m != ModePrice && m != ModeVolume {
		return fmt.Errorf("%w: %q is neither %q nor %q", ErrInvalidMode, string(m), ModePrice, ModeVolume)
	}
	return nil
}

// FactorSeries computes the multiplicative adjustment series of one security.
// data must carry a date index. Per-date factors convert earlier prices to the
// scale of the latest record, so the cumulative product runs from the newest
// date backwards and is then returned in ascending date order. ModeVolume
// returns the reciprocal of the price series.
func FactorSeries(data *frame.Frame, factorColumn string, mode Mode) (frame.Series, error) {
	if err := mode.Validate(); err != nil {
		return frame.Series{}, err
	}

	newestFirst, err := data.SortByIndex(true)
	if err != nil {
		return frame.Series{}, fmt.Errorf("adjustment series: %w", err)
	}
	factors, err := newestFirst.Float(factorColumn)
	if err != nil {
		return frame.Series{}, fmt.Errorf("adjustment series: %w", err)
	}

	cum, err := newestFirst.Select()
	if err != nil {
		return frame.Series{}, err
	}
	if err := cum.SetFloat(factorColumn, cumProd(factors)); err != nil {
		return frame.Series{}, err
	}
	oldestFirst, err := cum.SortByIndex(false)
	if err != nil {
		return frame.Series{}, err
	}
	values, err := oldestFirst.Float(factorColumn)
	if err != nil {
		return frame.Series{}, err
	}

	series := frame.Series{
		Name:   factorColumn,
		Index:  oldestFirst.Index(),
		Values: values,
	}
	if mode == ModeVolume {
		return series.Reciprocal(), nil
	}
	return series, nil
}

// cumProd is a running product that leaves NaN entries in place without
// resetting the product.
func cumProd(values []float64) []float64 {
	out := make([]float64, len(values))
	acc := 1.0
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		acc *= v
		out[i] = acc
	}
	return out
}
