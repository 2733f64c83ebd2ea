package tsprep

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientData is returned when the series yields fewer than two lags.
	ErrInsufficientData = errors.New("series too short for hurst estimate")

	// ErrDegenerateSeries is returned when a lag has no positive mean absolute difference.
	ErrDegenerateSeries = errors.New("degenerate series for hurst estimate")
)

// HurstExponent estimates the Hurst exponent as the slope of
// log(mean |x[t] - x[t-k]|) against log(k) for k = 1 .. floor(sqrt(n))-1.
// Pairs with a NaN on either side are skipped.
func HurstExponent(series []float64) (float64, error) {
	maxLag := int(math.Sqrt(float64(len(series))))
	if maxLag-1 < 2 {
		return math.NaN(), fmt.Errorf("%w: %d observations give %d lags, need 2",
			ErrInsufficientData, len(series), max(maxLag-1, 0))
	}

	logLag := make([]float64, 0, maxLag-1)
	logMAD := make([]float64, 0, maxLag-1)
	for k := 1; k < maxLag; k++ {
		mad := meanAbsDiff(series, k)
		if !(mad > 0) {
			return math.NaN(), fmt.Errorf("%w: lag %d has mean absolute difference %v",
				ErrDegenerateSeries, k, mad)
		}
		logLag = append(logLag, math.Log(float64(k)))
		logMAD = append(logMAD, math.Log(mad))
	}

	_, slope := stat.LinearRegression(logLag, logMAD, nil, false)
	return slope, nil
}

func meanAbsDiff(series []float64, lag int) float64 {
	var sum float64
	var n int
	for i := lag; i < len(series); i++ {
		a, b := series[i], series[i-lag]
		if math.IsNaN(a) || math.IsNaN(b) {
			continue
		}
		sum += math.Abs(a - b)
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
