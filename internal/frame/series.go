package frame

import (
	"fmt"
	"time"
)

// Series is a named float vector aligned to a date index.
type Series struct {
	Name   string
	Index  []time.Time
	Values []float64
}

// Len returns the number of values.
func (s Series) Len() int {
	return len(s.Values)
}

// Clone returns a deep copy.
func (s Series) Clone() Series {
	return Series{
		Name:   s.Name,
		Index:  append([]time.Time(nil), s.Index...),
		Values: append([]float64(nil), s.Values...),
	}
}

// Reciprocal returns 1/v for every value.
func (s Series) Reciprocal() Series {
	out := s.Clone()
	for i, v := range out.Values {
		out.Values[i] = 1 / v
	}
	return out
}

// Mul multiplies values elementwise and returns a new slice.
// Both sides are positionally aligned and must have equal length.
func (s Series) Mul(values []float64) ([]float64, error) {
	if len(values) != len(s.Values) {
		return nil, fmt.Errorf("%w: series %q has %d values, operand has %d",
			ErrLengthMismatch, s.Name, len(s.Values), len(values))
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = s.Values[i] * v
	}
	return out, nil
}
