package modelsearch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/idhash"
	"jpx-stock-lab/internal/observability"
	"jpx-stock-lab/internal/storage"
)

// Search defaults.
const (
	DefaultMaxEvals = 20
	DefaultFolds    = 3
)

// ErrNoSuccessfulTrial is returned when every trial of a run failed.
var ErrNoSuccessfulTrial = errors.New("no successful trial")

// Option configures a Searcher.
type Option func(*Searcher)

// WithMaxEvals sets the number of sampled trials.
func WithMaxEvals(n int) Option {
	return func(s *Searcher) { s.maxEvals = n }
}

// WithFolds sets the number of cross-validation folds.
func WithFolds(k int) Option {
	return func(s *Searcher) { s.folds = k }
}

// WithSeed seeds parameter sampling and the learners.
func WithSeed(seed int64) Option {
	return func(s *Searcher) { s.seed = seed }
}

// WithWorkers bounds how many trials are evaluated at once.
func WithWorkers(n int) Option {
	return func(s *Searcher) { s.workers = n }
}

// WithStore persists every trial of a run.
func WithStore(store storage.SearchTrialStore) Option {
	return func(s *Searcher) { s.store = store }
}

// WithRegistry replaces the built-in families.
func WithRegistry(r *Registry) Option {
	return func(s *Searcher) { s.registry = r }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Searcher) { s.logger = l }
}

// WithMetrics records trial counts and durations.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Searcher) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Searcher) { s.now = now }
}

// Searcher runs seeded random hyperparameter search.
type Searcher struct {
	registry *Registry
	maxEvals int
	folds    int
	seed     int64
	workers  int
	store    storage.SearchTrialStore
	metrics  *observability.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// NewSearcher creates a Searcher over the built-in families.
func NewSearcher(opts ...Option) *Searcher {
	s := &Searcher{
		registry: DefaultRegistry(),
		maxEvals: DefaultMaxEvals,
		folds:    DefaultFolds,
		seed:     42,
		workers:  1,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is the outcome of a search run.
type Result struct {
	RunID  string
	Family string
	Trials []*domain.SearchTrial
	Best   *domain.SearchTrial
	// Model is the best parameter set refit on the full dataset.
	Model Classifier
}

type candidate struct {
	family string
	params map[string]any
}

// Run samples maxEvals parameter sets of family, scores each by stratified
// cross-validated ROC AUC, and refits the best on all of data. Family
// FamilyAny samples the family per trial. Trials that fail to train are
// recorded with status "fail"; they do not stop the run.
func (s *Searcher) Run(ctx context.Context, family string, data *Dataset) (*Result, error) {
	if s.maxEvals <= 0 {
		return nil, fmt.Errorf("%w: max evals must be positive, got %d", ErrInvalidParam, s.maxEvals)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	folds, err := StratifiedKFold(data.Y, s.folds)
	if err != nil {
		return nil, err
	}
	candidates, err := s.sample(family)
	if err != nil {
		return nil, err
	}

	started := s.now()
	runID := idhash.ComputeRunID(family, s.seed, started.UnixMilli())
	log := s.logger.With().Str("run_id", runID).Str("family", family).Logger()
	log.Info().Int("trials", len(candidates)).Int("folds", s.folds).Int("rows", len(data.X)).Msg("search started")

	trials := make([]*domain.SearchTrial, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.workers, 1))
	for i, c := range candidates {
		i, c := i, c // per-iteration copy (go1.21 loop semantics)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			trials[i] = s.evaluate(gctx, runID, i, c, data, folds)
			if err := gctx.Err(); err != nil {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("search %s: %w", runID, err)
	}

	if s.store != nil {
		if err := s.store.InsertBulk(ctx, trials); err != nil {
			return nil, fmt.Errorf("store trials: %w", err)
		}
	}

	best := BestTrial(trials)
	if best == nil {
		log.Error().Msg("every trial failed")
		return nil, fmt.Errorf("search %s: %w", runID, ErrNoSuccessfulTrial)
	}

	model, err := s.registry.New(best.Family, best.Params, s.seed+int64(best.TrialID))
	if err != nil {
		return nil, err
	}
	if err := model.Fit(data.X, data.Y); err != nil {
		return nil, fmt.Errorf("refit best trial %d: %w", best.TrialID, err)
	}
	if s.metrics != nil {
		s.metrics.SearchBestScore.WithLabelValues(family).Set(best.ScoreMean)
	}

	log.Info().
		Int("best_trial", best.TrialID).
		Str("best_family", best.Family).
		Float64("best_score", best.ScoreMean).
		Float64("best_std", best.ScoreStd).
		Dur("elapsed", s.now().Sub(started)).
		Msg("search finished")

	return &Result{RunID: runID, Family: family, Trials: trials, Best: best, Model: model}, nil
}

// sample draws every candidate up front so results do not depend on
// evaluation order.
func (s *Searcher) sample(family string) ([]candidate, error) {
	families := []string{family}
	if family == FamilyAny {
		families = s.registry.Families()
		if len(families) == 0 {
			return nil, fmt.Errorf("%w %s", ErrUnknownFamily, family)
		}
	}
	spaces := make([]Space, len(families))
	for i, f := range families {
		space, err := s.registry.Space(f)
		if err != nil {
			return nil, err
		}
		spaces[i] = space
	}

	rng := rand.New(rand.NewSource(s.seed))
	out := make([]candidate, s.maxEvals)
	for i := range out {
		space := spaces[0]
		if len(spaces) > 1 {
			space = spaces[rng.Intn(len(spaces))]
		}
		out[i] = candidate{family: space.Family, params: space.Sample(rng)}
	}
	return out, nil
}

func (s *Searcher) evaluate(ctx context.Context, runID string, id int, c candidate, data *Dataset, folds []Fold) *domain.SearchTrial {
	start := s.now()
	trial := &domain.SearchTrial{
		RunID:     runID,
		TrialID:   id,
		Family:    c.family,
		Params:    c.params,
		CreatedAt: start.UnixMilli(),
	}

	seed := s.seed + int64(id)
	res, err := CrossValScore(ctx, func() (Classifier, error) {
		return s.registry.New(c.family, c.params, seed)
	}, data, folds)

	elapsed := s.now().Sub(start)
	trial.DurationMs = elapsed.Milliseconds()
	if err != nil {
		trial.Status = domain.TrialStatusFail
		trial.Error = err.Error()
		s.logger.Warn().Err(err).Int("trial", id).Str("family", c.family).Msg("trial failed")
	} else {
		trial.Status = domain.TrialStatusOK
		trial.ScoreMean = res.Mean
		trial.ScoreStd = res.Std
		trial.Loss = -res.Mean
		s.logger.Debug().
			Int("trial", id).
			Str("family", c.family).
			Strs("params", sortedKeys(c.params)).
			Float64("score", res.Mean).
			Float64("std", res.Std).
			Msg("trial scored")
	}
	if s.metrics != nil {
		s.metrics.RecordTrial(c.family, trial.Status, elapsed.Seconds())
	}
	return trial
}

// BestTrial returns the ok trial with the lowest loss; the earliest trial
// wins ties. Returns nil when no trial succeeded.
func BestTrial(trials []*domain.SearchTrial) *domain.SearchTrial {
	var best *domain.SearchTrial
	for _, t := range trials {
		if t == nil || t.Status != domain.TrialStatusOK {
			continue
		}
		if best == nil || t.Loss < best.Loss || (t.Loss == best.Loss && t.TrialID < best.TrialID) {
			best = t
		}
	}
	return best
}
