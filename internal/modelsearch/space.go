package modelsearch

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ParamKind is the sampling distribution of a hyperparameter.
type ParamKind int

const (
	// Uniform draws from [Low, High].
	Uniform ParamKind = iota
	// QUniform draws uniformly then rounds to a multiple of Q.
	QUniform
	// LogUniform draws exp(uniform(log Low, log High)).
	LogUniform
	// Choice picks one of Choices.
	Choice
)

// Param describes one hyperparameter of a family.
type Param struct {
	Name    string
	Kind    ParamKind
	Low     float64
	High    float64
	Q       float64
	Int     bool // round sampled numbers to int
	Choices []any
}

// Sample draws one value of p.
func (p Param) Sample(rng *rand.Rand) any {
	var v float64
	switch p.Kind {
	case Choice:
		return p.Choices[rng.Intn(len(p.Choices))]
	case Uniform:
		v = p.Low + rng.Float64()*(p.High-p.Low)
	case QUniform:
		v = p.Low + rng.Float64()*(p.High-p.Low)
		v = math.Round(v/p.Q) * p.Q
	case LogUniform:
		v = math.Exp(math.Log(p.Low) + rng.Float64()*(math.Log(p.High)-math.Log(p.Low)))
	}
	if p.Int {
		return int(math.Round(v))
	}
	return v
}

// Space is the hyperparameter space of one classifier family.
type Space struct {
	Family string
	Params []Param
}

// Sample draws a full parameter set.
func (s Space) Sample(rng *rand.Rand) map[string]any {
	out := make(map[string]any, len(s.Params))
	for _, p := range s.Params {
		out[p.Name] = p.Sample(rng)
	}
	return out
}

// XGBoostSpace mirrors the xgboost pipeline: an invariant-column filter in
// front of a boosted tree classifier.
func XGBoostSpace() Space {
	return Space{Family: FamilyXGBoost, Params: []Param{
		{Name: "catbstencoder.drop_invariant", Kind: Choice, Choices: []any{false, true}},
		{Name: "n_estimators", Kind: QUniform, Low: 50, High: 200, Q: 25, Int: true},
		{Name: "max_depth", Kind: QUniform, Low: 2, High: 10, Q: 1, Int: true},
		{Name: "colsample_bytree", Kind: Uniform, Low: 0.2, High: 1},
		{Name: "subsample", Kind: Uniform, Low: 0.3, High: 1},
		{Name: "eta", Kind: Uniform, Low: 0.01, High: 1},
		{Name: "lambda", Kind: Uniform, Low: 0.8, High: 1},
		{Name: "alpha", Kind: Uniform, Low: 0, High: 0.05},
		{Name: "booster", Kind: Choice, Choices: []any{"gbtree", "dart"}},
		{Name: "gamma", Kind: Uniform, Low: 0, High: 0.01},
		{Name: "min_child_weight", Kind: QUniform, Low: 1, High: 20, Q: 1, Int: true},
		{Name: "scale_pos_weight", Kind: Uniform, Low: 1, High: 30},
	}}
}

// CatBoostSpace mirrors the catboost pipeline: an imputer in front of a
// boosted tree classifier.
func CatBoostSpace() Space {
	return Space{Family: FamilyCatBoost, Params: []Param{
		{Name: "imputer.strategy", Kind: Choice, Choices: []any{"constant", "most_frequent"}},
		{Name: "n_estimators", Kind: QUniform, Low: 50, High: 200, Q: 25, Int: true},
		{Name: "max_depth", Kind: QUniform, Low: 2, High: 10, Q: 1, Int: true},
		{Name: "rsm", Kind: Uniform, Low: 0.2, High: 1},
		{Name: "subsample", Kind: Uniform, Low: 0.3, High: 1},
		{Name: "eta", Kind: Uniform, Low: 0.01, High: 1},
		{Name: "l2_leaf_reg", Kind: Uniform, Low: 0.8, High: 1},
		{Name: "feature_border_type", Kind: Choice, Choices: []any{"GreedyLogSum", "MinEntropy"}},
		{Name: "min_data_in_leaf", Kind: QUniform, Low: 1, High: 20, Q: 1, Int: true},
		{Name: "scale_pos_weight", Kind: Uniform, Low: 1, High: 30},
	}}
}

// LogisticSpace is the space of the L2-regularized logistic regression.
func LogisticSpace() Space {
	return Space{Family: FamilyLogistic, Params: []Param{
		{Name: "C", Kind: LogUniform, Low: 0.01, High: 10},
		{Name: "max_iter", Kind: QUniform, Low: 100, High: 500, Q: 50, Int: true},
		{Name: "learning_rate", Kind: LogUniform, Low: 0.01, High: 0.5},
		{Name: "class_weight", Kind: Choice, Choices: []any{"none", "balanced"}},
	}}
}

// SearchSpace returns the spaces of every built-in family keyed by name.
func SearchSpace() map[string]Space {
	return map[string]Space{
		FamilyXGBoost:  XGBoostSpace(),
		FamilyCatBoost: CatBoostSpace(),
		FamilyLogistic: LogisticSpace(),
	}
}

// params reads typed values out of a sampled parameter map.
type params map[string]any

func (p params) float(name string, def float64) (float64, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("%w: %s must be numeric, got %T", ErrInvalidParam, name, v)
}

func (p params) int(name string, def int) (int, error) {
	f, err := p.float(name, float64(def))
	if err != nil {
		return 0, err
	}
	return int(math.Round(f)), nil
}

func (p params) string(name, def string) (string, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidParam, name, v)
	}
	return s, nil
}

func (p params) bool(name string, def bool) (bool, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a bool, got %T", ErrInvalidParam, name, v)
	}
	return b, nil
}

// sortedKeys lists map keys in order, for stable logging.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
