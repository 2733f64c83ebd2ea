package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDataset(t *testing.T) {
	d, err := BuildDataset([]float64{1, 2, 1, 3, 4}, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"x0", "x1"}, d.FeatureNames)
	assert.Equal(t, [][]float64{{1, 2}, {2, 1}, {1, 3}}, d.X)
	assert.Equal(t, []int{0, 1, 1}, d.Y)
}

func TestBuildDataset_SkipsNaNWindows(t *testing.T) {
	d, err := BuildDataset([]float64{1, math.NaN(), 2, 3, 4, 3}, 2)
	require.NoError(t, err)

	// windows touching index 1 are dropped
	assert.Equal(t, [][]float64{{2, 3}, {3, 4}}, d.X)
	assert.Equal(t, []int{1, 0}, d.Y)
}

func TestBuildDataset_ShortSeries(t *testing.T) {
	d, err := BuildDataset([]float64{1, 2}, 2)
	require.NoError(t, err)
	assert.Empty(t, d.X)

	_, err = BuildDataset([]float64{1, 2, 3}, 0)
	assert.Error(t, err)
}

func TestLoadDataset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, splitPanel())
	_, err := f.runner().Run(ctx, Request{})
	require.NoError(t, err)

	d, err := LoadDataset(ctx, f.adjusted, []string{"1301", "1332"}, "Close", 5)
	require.NoError(t, err)
	assert.Len(t, d.X, 2*(panelDays-5))
	assert.Len(t, d.Y, len(d.X))
	require.NoError(t, d.Validate())

	_, err = LoadDataset(ctx, f.adjusted, []string{"1301"}, "VWAP", 5)
	assert.Error(t, err)
}
