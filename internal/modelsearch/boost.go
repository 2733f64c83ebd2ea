package modelsearch

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const (
	maxBins    = 256
	coarseBins = 32
)

// Border strategies used to bucket feature values before split search.
const (
	bordersExact        = "exact"
	bordersGreedyLogSum = "GreedyLogSum"
	bordersMinEntropy   = "MinEntropy"
)

// Imputation strategies for missing feature values.
const (
	imputeConstant     = "constant"
	imputeMostFrequent = "most_frequent"
)

// boostConfig holds the parameters of the second-order gradient boosted
// tree learner shared by the xgboost and catboost families.
type boostConfig struct {
	nEstimators    int
	maxDepth       int
	eta            float64
	subsample      float64
	colsample      float64
	lambda         float64
	alpha          float64
	gamma          float64
	minChildWeight float64
	minDataInLeaf  int
	scalePosWeight float64
	dropInvariant  bool
	impute         string
	borders        string
}

func newXGBoost(raw map[string]any, seed int64) (Classifier, error) {
	p := params(raw)
	cfg := boostConfig{impute: imputeConstant, borders: bordersExact}
	var err error
	if cfg.dropInvariant, err = p.bool("catbstencoder.drop_invariant", false); err != nil {
		return nil, err
	}
	if err := readCommon(p, &cfg, "colsample_bytree", "lambda"); err != nil {
		return nil, err
	}
	if cfg.alpha, err = p.float("alpha", 0); err != nil {
		return nil, err
	}
	if cfg.gamma, err = p.float("gamma", 0); err != nil {
		return nil, err
	}
	if cfg.minChildWeight, err = p.float("min_child_weight", 1); err != nil {
		return nil, err
	}
	// dart with the default zero drop rate trains the same ensemble as gbtree.
	booster, err := p.string("booster", "gbtree")
	if err != nil {
		return nil, err
	}
	if booster != "gbtree" && booster != "dart" {
		return nil, fmt.Errorf("%w: booster %q", ErrInvalidParam, booster)
	}
	return newBooster(cfg, seed)
}

func newCatBoost(raw map[string]any, seed int64) (Classifier, error) {
	p := params(raw)
	cfg := boostConfig{}
	var err error
	if cfg.impute, err = p.string("imputer.strategy", imputeConstant); err != nil {
		return nil, err
	}
	if err := readCommon(p, &cfg, "rsm", "l2_leaf_reg"); err != nil {
		return nil, err
	}
	if cfg.borders, err = p.string("feature_border_type", bordersGreedyLogSum); err != nil {
		return nil, err
	}
	if cfg.minDataInLeaf, err = p.int("min_data_in_leaf", 1); err != nil {
		return nil, err
	}
	return newBooster(cfg, seed)
}

// readCommon reads the parameters both families share; the column sampling
// and L2 parameters differ only in name.
func readCommon(p params, cfg *boostConfig, colsampleName, l2Name string) error {
	var err error
	if cfg.nEstimators, err = p.int("n_estimators", 100); err != nil {
		return err
	}
	if cfg.maxDepth, err = p.int("max_depth", 6); err != nil {
		return err
	}
	if cfg.eta, err = p.float("eta", 0.3); err != nil {
		return err
	}
	if cfg.subsample, err = p.float("subsample", 1); err != nil {
		return err
	}
	if cfg.colsample, err = p.float(colsampleName, 1); err != nil {
		return err
	}
	if cfg.lambda, err = p.float(l2Name, 1); err != nil {
		return err
	}
	if cfg.scalePosWeight, err = p.float("scale_pos_weight", 1); err != nil {
		return err
	}
	return nil
}

func (c boostConfig) validate() error {
	switch {
	case c.nEstimators <= 0:
		return fmt.Errorf("%w: n_estimators must be positive", ErrInvalidParam)
	case c.maxDepth <= 0:
		return fmt.Errorf("%w: max_depth must be positive", ErrInvalidParam)
	case c.eta <= 0:
		return fmt.Errorf("%w: eta must be positive", ErrInvalidParam)
	case c.subsample <= 0 || c.subsample > 1:
		return fmt.Errorf("%w: subsample must be in (0, 1]", ErrInvalidParam)
	case c.colsample <= 0 || c.colsample > 1:
		return fmt.Errorf("%w: column sample must be in (0, 1]", ErrInvalidParam)
	case c.lambda < 0 || c.alpha < 0 || c.gamma < 0:
		return fmt.Errorf("%w: regularization must be non-negative", ErrInvalidParam)
	case c.scalePosWeight <= 0:
		return fmt.Errorf("%w: scale_pos_weight must be positive", ErrInvalidParam)
	}
	switch c.impute {
	case imputeConstant, imputeMostFrequent:
	default:
		return fmt.Errorf("%w: imputer strategy %q", ErrInvalidParam, c.impute)
	}
	switch c.borders {
	case bordersExact, bordersGreedyLogSum, bordersMinEntropy:
	default:
		return fmt.Errorf("%w: border type %q", ErrInvalidParam, c.borders)
	}
	return nil
}

// booster is a binary logistic gradient boosted tree ensemble.
type booster struct {
	cfg  boostConfig
	seed int64

	keep    []int       // kept input columns
	fill    []float64   // imputation value per kept column
	borders [][]float64 // split candidates per kept column
	trees   []*tree
}

func newBooster(cfg boostConfig, seed int64) (*booster, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &booster{cfg: cfg, seed: seed}, nil
}

type treeNode struct {
	leaf        bool
	value       float64
	feature     int
	threshold   float64
	left, right int
}

type tree struct {
	nodes []treeNode
}

func (t *tree) predict(row []float64) float64 {
	i := 0
	for {
		n := &t.nodes[i]
		if n.leaf {
			return n.value
		}
		if row[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

func (b *booster) Fit(X [][]float64, y []int) error {
	if err := checkLabels(X, y); err != nil {
		return err
	}
	b.prepare(X)
	if len(b.keep) == 0 {
		return fmt.Errorf("%w: every feature is invariant", ErrEmptyDataset)
	}

	n, d := len(X), len(b.keep)
	rows := make([][]float64, n)
	bins := make([][]int, n)
	for i := range X {
		rows[i] = b.transform(X[i])
		bins[i] = make([]int, d)
		for j, v := range rows[i] {
			bins[i][j] = sort.SearchFloat64s(b.borders[j], v)
		}
	}

	rng := rand.New(rand.NewSource(b.seed))
	margin := make([]float64, n)
	grad := make([]float64, n)
	hess := make([]float64, n)
	b.trees = b.trees[:0]

	for round := 0; round < b.cfg.nEstimators; round++ {
		for i := range margin {
			p := sigmoid(margin[i])
			w := 1.0
			if y[i] == 1 {
				w = b.cfg.scalePosWeight
			}
			grad[i] = w * (p - float64(y[i]))
			hess[i] = w * math.Max(p*(1-p), 1e-16)
		}

		sample := sampleIndices(rng, n, b.cfg.subsample)
		features := sampleIndices(rng, d, b.cfg.colsample)
		g := &grower{cfg: b.cfg, bins: bins, borders: b.borders, grad: grad, hess: hess, features: features}
		t := &tree{}
		g.grow(t, sample, 0)
		for i := range t.nodes {
			if t.nodes[i].leaf {
				t.nodes[i].value *= b.cfg.eta
			}
		}
		b.trees = append(b.trees, t)

		for i := range margin {
			margin[i] += t.predict(rows[i])
		}
	}
	return nil
}

func (b *booster) PredictProba(X [][]float64) ([]float64, error) {
	if len(b.trees) == 0 {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(X))
	for i, raw := range X {
		row := b.transform(raw)
		var margin float64
		for _, t := range b.trees {
			margin += t.predict(row)
		}
		out[i] = sigmoid(margin)
	}
	return out, nil
}

// prepare learns the column filter, imputation values and split borders.
func (b *booster) prepare(X [][]float64) {
	d := len(X[0])
	b.keep = b.keep[:0]
	b.fill = b.fill[:0]
	b.borders = b.borders[:0]

	col := make([]float64, 0, len(X))
	for j := 0; j < d; j++ {
		col = col[:0]
		for i := range X {
			if v := X[i][j]; !math.IsNaN(v) {
				col = append(col, v)
			}
		}
		fill := 0.0
		if b.cfg.impute == imputeMostFrequent {
			fill = mostFrequent(col)
		}
		for len(col) < len(X) {
			col = append(col, fill)
		}
		sort.Float64s(col)
		if b.cfg.dropInvariant && col[0] == col[len(col)-1] {
			continue
		}
		b.keep = append(b.keep, j)
		b.fill = append(b.fill, fill)
		b.borders = append(b.borders, buildBorders(col, b.cfg.borders))
	}
}

// transform selects kept columns and imputes missing values.
func (b *booster) transform(raw []float64) []float64 {
	row := make([]float64, len(b.keep))
	for k, j := range b.keep {
		v := math.NaN()
		if j < len(raw) {
			v = raw[j]
		}
		if math.IsNaN(v) {
			v = b.fill[k]
		}
		row[k] = v
	}
	return row
}

// buildBorders returns ascending split thresholds for a sorted column.
func buildBorders(sorted []float64, kind string) []float64 {
	unique := make([]float64, 0, len(sorted))
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			unique = append(unique, v)
		}
	}
	if len(unique) < 2 {
		return nil
	}

	switch kind {
	case bordersMinEntropy:
		lo, hi := unique[0], unique[len(unique)-1]
		out := make([]float64, 0, coarseBins-1)
		for k := 1; k < coarseBins; k++ {
			out = append(out, lo+(hi-lo)*float64(k)/coarseBins)
		}
		return out
	case bordersGreedyLogSum:
		return quantileBorders(sorted, coarseBins)
	}

	mids := make([]float64, len(unique)-1)
	for i := range mids {
		mids[i] = (unique[i] + unique[i+1]) / 2
	}
	if len(mids) <= maxBins {
		return mids
	}
	return quantileBorders(sorted, maxBins)
}

func quantileBorders(sorted []float64, bins int) []float64 {
	out := make([]float64, 0, bins)
	for k := 1; k < bins; k++ {
		i := k * len(sorted) / bins
		if i == 0 || i >= len(sorted) || sorted[i] == sorted[i-1] {
			continue
		}
		mid := (sorted[i-1] + sorted[i]) / 2
		if len(out) == 0 || mid > out[len(out)-1] {
			out = append(out, mid)
		}
	}
	return out
}

func mostFrequent(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	counts := make(map[float64]int, len(values))
	best, bestCount := 0.0, 0
	for _, v := range values {
		counts[v]++
		c := counts[v]
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best
}

// sampleIndices draws ceil(frac*n) distinct indices in ascending order.
func sampleIndices(rng *rand.Rand, n int, frac float64) []int {
	k := int(math.Ceil(frac * float64(n)))
	if k < 1 {
		k = 1
	}
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := rng.Perm(n)[:k]
	sort.Ints(out)
	return out
}

// grower builds one regression tree on gradient statistics.
type grower struct {
	cfg      boostConfig
	bins     [][]int
	borders  [][]float64
	grad     []float64
	hess     []float64
	features []int
}

type split struct {
	gain    float64
	feature int
	bin     int
}

// grow appends the subtree for rows and returns its node index.
func (g *grower) grow(t *tree, rows []int, depth int) int {
	var G, H float64
	for _, i := range rows {
		G += g.grad[i]
		H += g.hess[i]
	}
	idx := len(t.nodes)
	t.nodes = append(t.nodes, treeNode{leaf: true, value: g.leafValue(G, H)})
	if depth >= g.cfg.maxDepth || len(rows) < 2 {
		return idx
	}

	best, ok := g.bestSplit(rows, G, H)
	if !ok {
		return idx
	}

	var left, right []int
	for _, i := range rows {
		if g.bins[i][best.feature] <= best.bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := g.grow(t, left, depth+1)
	r := g.grow(t, right, depth+1)
	t.nodes[idx] = treeNode{
		feature:   best.feature,
		threshold: g.borders[best.feature][best.bin],
		left:      l,
		right:     r,
	}
	return idx
}

func (g *grower) bestSplit(rows []int, G, H float64) (split, bool) {
	parent := g.score(G, H)
	best := split{}
	found := false
	for _, f := range g.features {
		nb := len(g.borders[f])
		if nb == 0 {
			continue
		}
		hg := make([]float64, nb+1)
		hh := make([]float64, nb+1)
		hc := make([]int, nb+1)
		for _, i := range rows {
			b := g.bins[i][f]
			hg[b] += g.grad[i]
			hh[b] += g.hess[i]
			hc[b]++
		}

		var GL, HL float64
		var CL int
		for b := 0; b < nb; b++ {
			GL += hg[b]
			HL += hh[b]
			CL += hc[b]
			GR, HR, CR := G-GL, H-HL, len(rows)-CL
			if CL == 0 || CR == 0 {
				continue
			}
			if HL < g.cfg.minChildWeight || HR < g.cfg.minChildWeight {
				continue
			}
			if CL < g.cfg.minDataInLeaf || CR < g.cfg.minDataInLeaf {
				continue
			}
			gain := 0.5*(g.score(GL, HL)+g.score(GR, HR)-parent) - g.cfg.gamma
			if gain > 0 && (!found || gain > best.gain) {
				best = split{gain: gain, feature: f, bin: b}
				found = true
			}
		}
	}
	return best, found
}

func (g *grower) score(G, H float64) float64 {
	t := softThreshold(G, g.cfg.alpha)
	return t * t / (H + g.cfg.lambda)
}

func (g *grower) leafValue(G, H float64) float64 {
	return -softThreshold(G, g.cfg.alpha) / (H + g.cfg.lambda)
}

func softThreshold(g, alpha float64) float64 {
	switch {
	case g > alpha:
		return g - alpha
	case g < -alpha:
		return g + alpha
	}
	return 0
}
