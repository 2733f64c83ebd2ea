// Package tsprep turns scalar time series into supervised-learning tables
// and computes scalar statistics over them.
package tsprep

import (
	"errors"
	"fmt"

	"jpx-stock-lab/internal/frame"
)

var (
	// ErrTargetLengthMismatch is returned when an explicit target name list
	// does not have one entry per output step.
	ErrTargetLengthMismatch = errors.New("output dimension and target name list length do not match")

	// ErrInvalidArgument is returned for non-positive window sizes.
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	DefaultOutputDim  = 1
	DefaultPrefix     = "x"
	DefaultTargetName = "target"
)

type framerConfig struct {
	outputDim   int
	prefix      string
	targetName  string
	targetNames []string
	namesSet    bool
}

// Option configures ToSupervised.
type Option func(*framerConfig)

// WithOutputDim sets the number of target steps following each window. 0 disables targets.
func WithOutputDim(n int) Option {
	return func(c *framerConfig) { c.outputDim = n }
}

// WithPrefix sets the feature column prefix.
func WithPrefix(prefix string) Option {
	return func(c *framerConfig) { c.prefix = prefix }
}

// WithTargetName sets the target column name, or the target prefix when
// the output dimension is greater than one.
func WithTargetName(name string) Option {
	return func(c *framerConfig) {
		c.targetName = name
		c.targetNames = nil
		c.namesSet = false
	}
}

// WithTargetNames sets one explicit name per target step.
func WithTargetNames(names ...string) Option {
	return func(c *framerConfig) {
		c.targetNames = append([]string(nil), names...)
		c.namesSet = true
	}
}

// ToSupervised slides a window of timeDim+outputDim values over series with
// stride 1. The first timeDim values of each window become feature columns
// prefix0..prefix{timeDim-1}; the trailing outputDim values become target
// columns. Rows keep series order, earliest window first.
//
// When the output dimension is 0, targets is nil. A series shorter than one
// window yields tables with zero rows.
func ToSupervised(series []float64, timeDim int, opts ...Option) (features, targets *frame.Frame, err error) {
	cfg := framerConfig{
		outputDim:  DefaultOutputDim,
		prefix:     DefaultPrefix,
		targetName: DefaultTargetName,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.namesSet && len(cfg.targetNames) != cfg.outputDim {
		return nil, nil, fmt.Errorf("%w: output dimension %d, %d target names",
			ErrTargetLengthMismatch, cfg.outputDim, len(cfg.targetNames))
	}
	if timeDim < 1 {
		return nil, nil, fmt.Errorf("%w: time dimension %d, must be at least 1", ErrInvalidArgument, timeDim)
	}
	if cfg.outputDim < 0 {
		return nil, nil, fmt.Errorf("%w: output dimension %d is negative", ErrInvalidArgument, cfg.outputDim)
	}

	window := timeDim + cfg.outputDim
	rows := len(series) - window + 1
	if rows < 0 {
		rows = 0
	}

	featureCols := make([]frame.Column, timeDim)
	for j := 0; j < timeDim; j++ {
		values := make([]float64, rows)
		for i := 0; i < rows; i++ {
			values[i] = series[i+j]
		}
		featureCols[j] = frame.Column{
			Name:   fmt.Sprintf("%s%d", cfg.prefix, j),
			Kind:   frame.KindFloat,
			Floats: values,
		}
	}

	features, err = frame.New(featureCols...)
	if err != nil {
		return nil, nil, fmt.Errorf("build features: %w", err)
	}
	if cfg.outputDim == 0 {
		return features, nil, nil
	}

	names := targetColumnNames(cfg)
	targetCols := make([]frame.Column, cfg.outputDim)
	for k := 0; k < cfg.outputDim; k++ {
		values := make([]float64, rows)
		for i := 0; i < rows; i++ {
			values[i] = series[i+timeDim+k]
		}
		targetCols[k] = frame.Column{Name: names[k], Kind: frame.KindFloat, Floats: values}
	}

	targets, err = frame.New(targetCols...)
	if err != nil {
		return nil, nil, fmt.Errorf("build targets: %w", err)
	}
	return features, targets, nil
}

func targetColumnNames(cfg framerConfig) []string {
	if cfg.namesSet {
		return cfg.targetNames
	}
	if cfg.outputDim == 1 {
		return []string{cfg.targetName}
	}
	names := make([]string, cfg.outputDim)
	for k := range names {
		names[k] = fmt.Sprintf("%s%d", cfg.targetName, k)
	}
	return names
}
