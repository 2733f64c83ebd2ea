// Package adjustment reconstructs split- and dividend-adjusted price and
// volume series from a raw stock price panel.
package adjustment

import (
	"fmt"

	"jpx-stock-lab/internal/frame"
)

// AdjustedSecurityData returns one security's records with every price column
// scaled by the price adjustment series and the volume column scaled by the
// volume adjustment series. The panel is never modified and the result shares
// no memory with it.
func AdjustedSecurityData(panel *frame.Frame, code string, opts Options) (*frame.Frame, error) {
	opts = opts.withDefaults()

	data, err := SecurityData(panel, code, opts)
	if err != nil {
		return nil, err
	}

	for _, column := range opts.PriceColumns {
		if err := scaleColumn(data, column, opts.AdjustmentFactorColumn, ModePrice); err != nil {
			return nil, err
		}
	}
	if err := scaleColumn(data, opts.VolumeColumn, opts.AdjustmentFactorColumn, ModeVolume); err != nil {
		return nil, err
	}

	return data, nil
}

// scaleColumn multiplies data[column] in place by a freshly computed
// adjustment series of the given mode.
func scaleColumn(data *frame.Frame, column, factorColumn string, mode Mode) error {
	series, err := FactorSeries(data, factorColumn, mode)
	if err != nil {
		return err
	}
	values, err := data.Float(column)
	if err != nil {
		return fmt.Errorf("adjust %s: %w", column, err)
	}
	adjusted, err := series.Mul(values)
	if err != nil {
		return fmt.Errorf("adjust %s: %w", column, err)
	}
	return data.SetFloat(column, adjusted)
}
