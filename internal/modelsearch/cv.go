package modelsearch

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Fold is one train/test split of row indices.
type Fold struct {
	Train []int
	Test  []int
}

// StratifiedKFold splits rows into k folds that preserve the class ratio.
// Rows of each class are dealt to folds in order without shuffling; the
// first folds receive the remainder.
func StratifiedKFold(y []int, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: folds must be at least 2, got %d", ErrInvalidParam, k)
	}
	byClass := map[int][]int{}
	for i, v := range y {
		byClass[v] = append(byClass[v], i)
	}
	classes := make([]int, 0, len(byClass))
	for c, rows := range byClass {
		if len(rows) < k {
			return nil, fmt.Errorf("%w: class %d has %d rows, fewer than %d folds", ErrInvalidParam, c, len(rows), k)
		}
		classes = append(classes, c)
	}
	sort.Ints(classes)

	testFold := make([]int, len(y))
	for _, c := range classes {
		rows := byClass[c]
		size, extra := len(rows)/k, len(rows)%k
		start := 0
		for f := 0; f < k; f++ {
			n := size
			if f < extra {
				n++
			}
			for _, i := range rows[start : start+n] {
				testFold[i] = f
			}
			start += n
		}
	}

	folds := make([]Fold, k)
	for i, f := range testFold {
		for j := range folds {
			if j == f {
				folds[j].Test = append(folds[j].Test, i)
			} else {
				folds[j].Train = append(folds[j].Train, i)
			}
		}
	}
	return folds, nil
}

// ROCAUC returns the area under the ROC curve of scores against labels,
// averaging ranks over ties.
func ROCAUC(y []int, scores []float64) (float64, error) {
	if len(y) != len(scores) {
		return 0, fmt.Errorf("%w: %d labels, %d scores", ErrInvalidParam, len(y), len(scores))
	}
	order := make([]int, len(y))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

	var pos, neg int
	var rankSum float64
	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) && scores[order[end]] == scores[order[start]] {
			end++
		}
		// 1-based average rank of the tie group
		rank := float64(start+end+1) / 2
		for _, i := range order[start:end] {
			if y[i] == 1 {
				pos++
				rankSum += rank
			} else {
				neg++
			}
		}
		start = end
	}
	if pos == 0 || neg == 0 {
		return 0, ErrSingleClass
	}
	return (rankSum - float64(pos)*float64(pos+1)/2) / (float64(pos) * float64(neg)), nil
}

// CVResult is the outcome of cross-validating one parameter set.
type CVResult struct {
	Scores []float64
	Mean   float64
	Std    float64 // population standard deviation
}

// CrossValScore fits a fresh classifier per fold and scores ROC AUC on the
// held-out rows. Folds run concurrently.
func CrossValScore(ctx context.Context, build func() (Classifier, error), data *Dataset, folds []Fold) (*CVResult, error) {
	scores := make([]float64, len(folds))
	g, ctx := errgroup.WithContext(ctx)
	for f, fold := range folds {
		f, fold := f, fold // per-iteration copy (go1.21 loop semantics)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			clf, err := build()
			if err != nil {
				return err
			}
			trainX, trainY := data.Subset(fold.Train)
			if err := clf.Fit(trainX, trainY); err != nil {
				return fmt.Errorf("fold %d fit: %w", f, err)
			}
			testX, testY := data.Subset(fold.Test)
			proba, err := clf.PredictProba(testX)
			if err != nil {
				return fmt.Errorf("fold %d predict: %w", f, err)
			}
			if scores[f], err = ROCAUC(testY, proba); err != nil {
				return fmt.Errorf("fold %d score: %w", f, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	mean, std := stat.PopMeanStdDev(scores, nil)
	return &CVResult{Scores: scores, Mean: mean, Std: std}, nil
}
