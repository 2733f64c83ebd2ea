package modelsearch

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// logistic is an L2-regularized logistic regression trained by full-batch
// gradient descent on standardized features.
type logistic struct {
	c           float64
	maxIter     int
	rate        float64
	balanced    bool
	mean, scale []float64
	weights     []float64
	bias        float64
}

func newLogistic(raw map[string]any, _ int64) (Classifier, error) {
	p := params(raw)
	m := &logistic{}
	var err error
	if m.c, err = p.float("C", 1); err != nil {
		return nil, err
	}
	if m.maxIter, err = p.int("max_iter", 200); err != nil {
		return nil, err
	}
	if m.rate, err = p.float("learning_rate", 0.1); err != nil {
		return nil, err
	}
	weight, err := p.string("class_weight", "none")
	if err != nil {
		return nil, err
	}
	switch weight {
	case "none":
	case "balanced":
		m.balanced = true
	default:
		return nil, fmt.Errorf("%w: class_weight %q", ErrInvalidParam, weight)
	}
	if m.c <= 0 || m.maxIter <= 0 || m.rate <= 0 {
		return nil, fmt.Errorf("%w: C, max_iter and learning_rate must be positive", ErrInvalidParam)
	}
	return m, nil
}

func (m *logistic) Fit(X [][]float64, y []int) error {
	if err := checkLabels(X, y); err != nil {
		return err
	}
	n, d := len(X), len(X[0])

	m.mean = make([]float64, d)
	m.scale = make([]float64, d)
	col := make([]float64, 0, n)
	for j := 0; j < d; j++ {
		col = col[:0]
		for i := range X {
			if v := X[i][j]; !math.IsNaN(v) {
				col = append(col, v)
			}
		}
		m.mean[j], m.scale[j] = 0, 1
		if len(col) > 0 {
			mean, std := stat.PopMeanStdDev(col, nil)
			m.mean[j] = mean
			if std > 0 {
				m.scale[j] = std
			}
		}
	}

	Z := make([][]float64, n)
	for i := range X {
		Z[i] = m.standardize(X[i])
	}

	sampleWeight := make([]float64, n)
	var pos float64
	for _, v := range y {
		pos += float64(v)
	}
	for i, v := range y {
		sampleWeight[i] = 1
		if m.balanced {
			if v == 1 {
				sampleWeight[i] = float64(n) / (2 * pos)
			} else {
				sampleWeight[i] = float64(n) / (2 * (float64(n) - pos))
			}
		}
	}

	m.weights = make([]float64, d)
	m.bias = 0
	grad := make([]float64, d)
	penalty := 1 / (m.c * float64(n))
	for iter := 0; iter < m.maxIter; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		var gradBias float64
		for i, z := range Z {
			r := sampleWeight[i] * (sigmoid(floats.Dot(m.weights, z)+m.bias) - float64(y[i]))
			floats.AddScaled(grad, r, z)
			gradBias += r
		}
		floats.Scale(1/float64(n), grad)
		floats.AddScaled(grad, penalty, m.weights)
		floats.AddScaled(m.weights, -m.rate, grad)
		m.bias -= m.rate * gradBias / float64(n)
	}
	return nil
}

func (m *logistic) PredictProba(X [][]float64) ([]float64, error) {
	if m.weights == nil {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != len(m.weights) {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrInvalidParam, i, len(row), len(m.weights))
		}
		out[i] = sigmoid(floats.Dot(m.weights, m.standardize(row)) + m.bias)
	}
	return out, nil
}

// standardize scales a row; missing values map to the training mean.
func (m *logistic) standardize(row []float64) []float64 {
	z := make([]float64, len(row))
	for j, v := range row {
		if math.IsNaN(v) {
			continue
		}
		z[j] = (v - m.mean[j]) / m.scale[j]
	}
	return z
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
