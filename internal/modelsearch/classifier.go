// Package modelsearch tunes binary classifiers on framed price windows with
// seeded random search and stratified cross-validation.
package modelsearch

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Built-in classifier families.
const (
	FamilyXGBoost  = "xgboost"
	FamilyCatBoost = "catboost"
	FamilyLogistic = "logistic"

	// FamilyAny samples the family itself per trial.
	FamilyAny = "any"
)

var (
	// ErrUnknownFamily is returned when no classifier is registered under a name.
	ErrUnknownFamily = errors.New("unknown classifier type")
	// ErrInvalidParam is returned for a parameter of the wrong type or range.
	ErrInvalidParam = errors.New("invalid classifier parameter")
	// ErrNotFitted is returned by PredictProba before Fit.
	ErrNotFitted = errors.New("classifier not fitted")
	// ErrSingleClass is returned when a training or scoring set has one class only.
	ErrSingleClass = errors.New("labels contain a single class")
	// ErrEmptyDataset is returned for a dataset without rows or features.
	ErrEmptyDataset = errors.New("empty dataset")
)

// Classifier is a binary classifier over dense float features.
type Classifier interface {
	// Fit trains on X (rows of features) and labels y in {0, 1}.
	Fit(X [][]float64, y []int) error
	// PredictProba returns P(y=1) for each row.
	PredictProba(X [][]float64) ([]float64, error)
}

// Factory builds an unfitted classifier from sampled parameters.
// seed makes any internal sampling reproducible.
type Factory func(p map[string]any, seed int64) (Classifier, error)

// Registry maps family names to their space and factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	spaces    map[string]Space
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		spaces:    make(map[string]Space),
	}
}

// DefaultRegistry returns a registry holding the built-in families.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(XGBoostSpace(), newXGBoost)
	r.Register(CatBoostSpace(), newCatBoost)
	r.Register(LogisticSpace(), newLogistic)
	return r
}

// Register adds or replaces a family.
func (r *Registry) Register(space Space, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[space.Family] = f
	r.spaces[space.Family] = space
}

// Space returns the search space of family.
func (r *Registry) Space(family string) (Space, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.spaces[family]
	if !ok {
		return Space{}, fmt.Errorf("%w %s", ErrUnknownFamily, family)
	}
	return s, nil
}

// New builds a classifier of family.
func (r *Registry) New(family string, p map[string]any, seed int64) (Classifier, error) {
	r.mu.RLock()
	f, ok := r.factories[family]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownFamily, family)
	}
	return f(p, seed)
}

// Families lists registered family names in order.
func (r *Registry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// checkLabels validates a training set and reports whether both classes occur.
func checkLabels(X [][]float64, y []int) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return ErrEmptyDataset
	}
	if len(X) != len(y) {
		return fmt.Errorf("%w: %d rows, %d labels", ErrInvalidParam, len(X), len(y))
	}
	var pos int
	for _, v := range y {
		switch v {
		case 0:
		case 1:
			pos++
		default:
			return fmt.Errorf("%w: label %d is not 0 or 1", ErrInvalidParam, v)
		}
	}
	if pos == 0 || pos == len(y) {
		return ErrSingleClass
	}
	return nil
}
