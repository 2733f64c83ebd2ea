package modelsearch

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/observability"
	"jpx-stock-lab/internal/storage/memory"
)

// linearDataset labels rows by the sign of the first feature; the second is noise.
func linearDataset(n int, seed int64) *Dataset {
	rng := rand.New(rand.NewSource(seed))
	d := &Dataset{FeatureNames: []string{"signal", "noise"}}
	for i := 0; i < n; i++ {
		x := rng.Float64()*2 - 1
		label := 0
		if x > 0 {
			label = 1
		}
		d.X = append(d.X, []float64{x, rng.NormFloat64()})
		d.Y = append(d.Y, label)
	}
	return d
}

// xorDataset is not linearly separable.
func xorDataset(n int, seed int64) *Dataset {
	rng := rand.New(rand.NewSource(seed))
	d := &Dataset{}
	for i := 0; i < n; i++ {
		a, b := rng.Float64()*2-1, rng.Float64()*2-1
		label := 0
		if a*b > 0 {
			label = 1
		}
		d.X = append(d.X, []float64{a, b})
		d.Y = append(d.Y, label)
	}
	return d
}

func fixedClock() func() time.Time {
	at := time.Date(2022, 1, 4, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func inSampleAUC(t *testing.T, clf Classifier, d *Dataset) float64 {
	t.Helper()
	require.NoError(t, clf.Fit(d.X, d.Y))
	proba, err := clf.PredictProba(d.X)
	require.NoError(t, err)
	auc, err := ROCAUC(d.Y, proba)
	require.NoError(t, err)
	return auc
}

func TestSpace_SampleRanges(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for family, space := range SearchSpace() {
		for i := 0; i < 200; i++ {
			sample := space.Sample(rng)
			require.Len(t, sample, len(space.Params), family)
			for _, p := range space.Params {
				v := sample[p.Name]
				switch p.Kind {
				case Choice:
					assert.Contains(t, p.Choices, v)
				default:
					f, err := params(sample).float(p.Name, 0)
					require.NoError(t, err)
					assert.GreaterOrEqual(t, f, p.Low-1e-9, "%s.%s", family, p.Name)
					assert.LessOrEqual(t, f, p.High+1e-9, "%s.%s", family, p.Name)
					if p.Kind == QUniform {
						assert.InDelta(t, 0, math.Mod(f, p.Q), 1e-9, "%s.%s", family, p.Name)
					}
					if p.Int {
						assert.IsType(t, 0, v)
					}
				}
			}
		}
	}
}

func TestSpace_SampleDeterministic(t *testing.T) {
	a := XGBoostSpace().Sample(rand.New(rand.NewSource(7)))
	b := XGBoostSpace().Sample(rand.New(rand.NewSource(7)))
	assert.Equal(t, a, b)
}

func TestRegistry_UnknownFamily(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{FamilyCatBoost, FamilyLogistic, FamilyXGBoost}, r.Families())

	_, err := r.New("svm", nil, 0)
	require.ErrorIs(t, err, ErrUnknownFamily)
	assert.EqualError(t, err, "unknown classifier type svm")

	_, err = r.Space("svm")
	assert.ErrorIs(t, err, ErrUnknownFamily)
}

func TestRegistry_InvalidParams(t *testing.T) {
	r := DefaultRegistry()
	tests := []struct {
		family string
		params map[string]any
	}{
		{FamilyXGBoost, map[string]any{"booster": "gblinear"}},
		{FamilyXGBoost, map[string]any{"subsample": 0.0}},
		{FamilyXGBoost, map[string]any{"n_estimators": "many"}},
		{FamilyCatBoost, map[string]any{"imputer.strategy": "median"}},
		{FamilyCatBoost, map[string]any{"feature_border_type": "Uniform"}},
		{FamilyLogistic, map[string]any{"C": -1.0}},
		{FamilyLogistic, map[string]any{"class_weight": "auto"}},
	}
	for _, tt := range tests {
		_, err := r.New(tt.family, tt.params, 0)
		assert.ErrorIs(t, err, ErrInvalidParam, "%s %v", tt.family, tt.params)
	}
}

func TestStratifiedKFold(t *testing.T) {
	y := []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1}
	folds, err := StratifiedKFold(y, 3)
	require.NoError(t, err)
	require.Len(t, folds, 3)

	assert.Equal(t, []int{0, 1, 2, 3, 10, 11}, folds[0].Test)
	assert.Equal(t, []int{4, 5, 6, 12, 13}, folds[1].Test)
	assert.Equal(t, []int{7, 8, 9, 14}, folds[2].Test)

	seen := make(map[int]int)
	for _, f := range folds {
		assert.Equal(t, len(y), len(f.Train)+len(f.Test))
		inTest := make(map[int]bool)
		for _, i := range f.Test {
			inTest[i] = true
			seen[i]++
		}
		for _, i := range f.Train {
			assert.False(t, inTest[i], "row %d in train and test", i)
		}
	}
	assert.Len(t, seen, len(y))
}

func TestStratifiedKFold_Errors(t *testing.T) {
	_, err := StratifiedKFold([]int{0, 1, 0, 1}, 1)
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = StratifiedKFold([]int{0, 0, 0, 0, 1, 1}, 3)
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestROCAUC(t *testing.T) {
	auc, err := ROCAUC([]int{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, auc, 1e-12)

	auc, err = ROCAUC([]int{0, 1, 0, 1}, []float64{0.5, 0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, auc, 1e-12)

	auc, err = ROCAUC([]int{1, 1, 0}, []float64{0.1, 0.2, 0.9})
	require.NoError(t, err)
	assert.InDelta(t, 0, auc, 1e-12)

	_, err = ROCAUC([]int{1, 1}, []float64{0.1, 0.2})
	assert.ErrorIs(t, err, ErrSingleClass)
}

func TestLogistic_Separable(t *testing.T) {
	clf, err := newLogistic(map[string]any{"C": 1.0, "max_iter": 300, "learning_rate": 0.1}, 0)
	require.NoError(t, err)
	assert.Greater(t, inSampleAUC(t, clf, linearDataset(200, 1)), 0.95)
}

func TestLogistic_NotFittedAndSingleClass(t *testing.T) {
	clf, err := newLogistic(nil, 0)
	require.NoError(t, err)

	_, err = clf.PredictProba([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)

	err = clf.Fit([][]float64{{1}, {2}}, []int{1, 1})
	assert.ErrorIs(t, err, ErrSingleClass)
}

func TestBooster_LearnsXOR(t *testing.T) {
	for _, family := range []string{FamilyXGBoost, FamilyCatBoost} {
		t.Run(family, func(t *testing.T) {
			clf, err := DefaultRegistry().New(family, map[string]any{
				"n_estimators": 50,
				"max_depth":    4,
				"eta":          0.3,
			}, 1)
			require.NoError(t, err)
			assert.Greater(t, inSampleAUC(t, clf, xorDataset(300, 2)), 0.9)
		})
	}
}

func TestBooster_DropInvariantAndImpute(t *testing.T) {
	d := linearDataset(100, 3)
	for i := range d.X {
		d.X[i] = append(d.X[i], 5)
		if i%10 == 0 {
			d.X[i][0] = math.NaN()
		}
	}

	clf, err := newXGBoost(map[string]any{"catbstencoder.drop_invariant": true, "n_estimators": 10}, 0)
	require.NoError(t, err)
	b := clf.(*booster)
	require.NoError(t, b.Fit(d.X, d.Y))
	assert.Equal(t, []int{0, 1}, b.keep)

	cat, err := newCatBoost(map[string]any{"imputer.strategy": "most_frequent", "n_estimators": 10}, 0)
	require.NoError(t, err)
	cb := cat.(*booster)
	require.NoError(t, cb.Fit(d.X, d.Y))
	assert.Equal(t, []int{0, 1, 2}, cb.keep)
	assert.Equal(t, 5.0, cb.fill[2])

	proba, err := cb.PredictProba([][]float64{{math.NaN(), 0, 5}})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(proba[0]))
}

func TestBooster_AllInvariant(t *testing.T) {
	clf, err := newXGBoost(map[string]any{"catbstencoder.drop_invariant": true}, 0)
	require.NoError(t, err)
	err = clf.Fit([][]float64{{1}, {1}, {1}}, []int{0, 1, 0})
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestSearcher_RunPersistsTrials(t *testing.T) {
	store := memory.NewSearchTrialStore()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)

	s := NewSearcher(
		WithMaxEvals(5),
		WithFolds(3),
		WithSeed(11),
		WithWorkers(2),
		WithStore(store),
		WithMetrics(metrics),
		WithClock(fixedClock()),
	)
	data := linearDataset(120, 4)

	res, err := s.Run(context.Background(), FamilyLogistic, data)
	require.NoError(t, err)
	require.Len(t, res.Trials, 5)
	assert.NotEmpty(t, res.RunID)

	for i, trial := range res.Trials {
		assert.Equal(t, i, trial.TrialID)
		assert.Equal(t, domain.TrialStatusOK, trial.Status)
		assert.Equal(t, -trial.ScoreMean, trial.Loss)
		assert.Greater(t, trial.ScoreMean, 0.8)
	}

	stored, err := store.GetByRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Len(t, stored, 5)

	best, err := store.GetBest(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Best.TrialID, best.TrialID)

	proba, err := res.Model.PredictProba(data.X[:3])
	require.NoError(t, err)
	assert.Len(t, proba, 3)
}

func TestSearcher_Deterministic(t *testing.T) {
	data := xorDataset(90, 5)
	run := func() *Result {
		s := NewSearcher(WithMaxEvals(3), WithSeed(3), WithWorkers(3), WithClock(fixedClock()))
		res, err := s.Run(context.Background(), FamilyXGBoost, data)
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	assert.Equal(t, a.RunID, b.RunID)
	for i := range a.Trials {
		assert.Equal(t, a.Trials[i].Params, b.Trials[i].Params)
		assert.Equal(t, a.Trials[i].ScoreMean, b.Trials[i].ScoreMean)
	}
}

func TestSearcher_AnyFamily(t *testing.T) {
	s := NewSearcher(WithMaxEvals(6), WithSeed(9), WithClock(fixedClock()))
	res, err := s.Run(context.Background(), FamilyAny, linearDataset(90, 6))
	require.NoError(t, err)
	for _, trial := range res.Trials {
		assert.Contains(t, []string{FamilyXGBoost, FamilyCatBoost, FamilyLogistic}, trial.Family)
	}
}

func TestSearcher_AllTrialsFail(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Space{Family: "broken"}, func(map[string]any, int64) (Classifier, error) {
		return nil, errors.New("cannot build")
	})
	store := memory.NewSearchTrialStore()

	s := NewSearcher(WithRegistry(reg), WithMaxEvals(2), WithStore(store), WithClock(fixedClock()))
	_, err := s.Run(context.Background(), "broken", linearDataset(30, 7))
	require.ErrorIs(t, err, ErrNoSuccessfulTrial)
}

func TestSearcher_Errors(t *testing.T) {
	s := NewSearcher(WithMaxEvals(1))

	_, err := s.Run(context.Background(), "svm", linearDataset(30, 8))
	assert.ErrorIs(t, err, ErrUnknownFamily)

	_, err = s.Run(context.Background(), FamilyLogistic, &Dataset{})
	assert.ErrorIs(t, err, ErrEmptyDataset)

	_, err = NewSearcher(WithMaxEvals(0)).Run(context.Background(), FamilyLogistic, linearDataset(30, 8))
	assert.ErrorIs(t, err, ErrInvalidParam)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Run(ctx, FamilyLogistic, linearDataset(30, 8))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBestTrial(t *testing.T) {
	trials := []*domain.SearchTrial{
		{TrialID: 0, Status: domain.TrialStatusFail, Loss: -1},
		{TrialID: 1, Status: domain.TrialStatusOK, Loss: -0.7},
		{TrialID: 2, Status: domain.TrialStatusOK, Loss: -0.8},
		{TrialID: 3, Status: domain.TrialStatusOK, Loss: -0.8},
	}
	assert.Equal(t, 2, BestTrial(trials).TrialID)
	assert.Nil(t, BestTrial(trials[:1]))
}
