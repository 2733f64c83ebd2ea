package modelsearch

import "fmt"

// Dataset is a dense feature matrix with binary labels.
type Dataset struct {
	FeatureNames []string
	X            [][]float64
	Y            []int
}

// Validate checks shape and labels.
func (d *Dataset) Validate() error {
	if d == nil || len(d.X) == 0 {
		return ErrEmptyDataset
	}
	if len(d.X) != len(d.Y) {
		return fmt.Errorf("%w: %d rows, %d labels", ErrInvalidParam, len(d.X), len(d.Y))
	}
	width := len(d.X[0])
	if width == 0 {
		return ErrEmptyDataset
	}
	for i, row := range d.X {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrInvalidParam, i, len(row), width)
		}
	}
	if len(d.FeatureNames) != 0 && len(d.FeatureNames) != width {
		return fmt.Errorf("%w: %d feature names for %d features", ErrInvalidParam, len(d.FeatureNames), width)
	}
	return checkLabels(d.X, d.Y)
}

// Subset returns the rows at idx. Rows are shared, not copied.
func (d *Dataset) Subset(idx []int) ([][]float64, []int) {
	X := make([][]float64, len(idx))
	y := make([]int, len(idx))
	for k, i := range idx {
		X[k] = d.X[i]
		y[k] = d.Y[i]
	}
	return X, y
}

// Append concatenates other onto d. Feature widths must match.
func (d *Dataset) Append(other *Dataset) error {
	if other == nil || len(other.X) == 0 {
		return nil
	}
	if len(d.X) > 0 && len(d.X[0]) != len(other.X[0]) {
		return fmt.Errorf("%w: cannot append %d features to %d", ErrInvalidParam, len(other.X[0]), len(d.X[0]))
	}
	if len(d.FeatureNames) == 0 {
		d.FeatureNames = other.FeatureNames
	}
	d.X = append(d.X, other.X...)
	d.Y = append(d.Y, other.Y...)
	return nil
}
