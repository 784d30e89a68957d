package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Boosting defaults. Lambda is the fixed L2 regularization on leaf
// weights; the row subsample ratio is part of the training recipe, not
// the tuning grid.
const (
	DefaultRounds       = 50
	DefaultRowSubsample = 0.7
	defaultLeafLambda   = 1.0
)

type boostNode struct {
	Feature   int
	Threshold float64
	Left      *boostNode
	Right     *boostNode
	Weight    float64
	IsLeaf    bool
}

// GradientBoosting is a binary classifier of depth-limited trees fitted
// round by round to the logistic gradient. Splits maximize the
// second-order gain with L2-regularized leaf weights; a split whose
// gain does not clear Gamma is pruned. Each round samples rows and
// columns without replacement.
type GradientBoosting struct {
	Rounds         int
	MaxDepth       int
	Eta            float64
	Gamma          float64
	Lambda         float64
	ColSampleRatio float64
	RowSampleRatio float64
	MinChildWeight float64
	Seed           int64

	baseScore    float64
	trees        []*boostNode
	featureNames []string
	numFeatures  int
	importance   []float64
	rng          *rand.Rand
}

// NewGradientBoosting creates a booster for one grid point
func NewGradientBoosting(rounds, maxDepth int, eta, gamma, colSample, minChild float64, seed int64) *GradientBoosting {
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if eta <= 0 {
		eta = 0.1
	}
	if colSample <= 0 || colSample > 1 {
		colSample = 1
	}
	return &GradientBoosting{
		Rounds:         rounds,
		MaxDepth:       maxDepth,
		Eta:            eta,
		Gamma:          gamma,
		Lambda:         defaultLeafLambda,
		ColSampleRatio: colSample,
		RowSampleRatio: DefaultRowSubsample,
		MinChildWeight: minChild,
		Seed:           seed,
	}
}

// Fit boosts Rounds trees against the running margin
func (gb *GradientBoosting) Fit(X [][]float64, y []bool, featureNames []string) error {
	if len(X) == 0 {
		return fmt.Errorf("empty training data")
	}
	if len(X) != len(y) {
		return fmt.Errorf("X has %d rows but y has %d labels", len(X), len(y))
	}
	if len(featureNames) != len(X[0]) {
		return fmt.Errorf("%d feature names for %d columns", len(featureNames), len(X[0]))
	}

	n, d := len(X), len(X[0])
	gb.featureNames = featureNames
	gb.numFeatures = d
	gb.importance = make([]float64, d)
	gb.trees = make([]*boostNode, 0, gb.Rounds)
	gb.rng = rand.New(rand.NewSource(gb.Seed))

	pos := 0
	for _, label := range y {
		if label {
			pos++
		}
	}
	if pos == 0 || pos == n {
		return fmt.Errorf("single-class labels leave the base log-odds undefined")
	}
	base := float64(pos) / float64(n)
	base = math.Min(math.Max(base, 1e-6), 1-1e-6)
	gb.baseScore = math.Log(base / (1 - base))

	margin := make([]float64, n)
	for i := range margin {
		margin[i] = gb.baseScore
	}

	rowSample := int(math.Round(gb.RowSampleRatio * float64(n)))
	if rowSample < 1 {
		rowSample = 1
	}
	colSample := int(math.Round(gb.ColSampleRatio * float64(d)))
	if colSample < 1 {
		colSample = 1
	}

	grad := make([]float64, n)
	hess := make([]float64, n)
	for round := 0; round < gb.Rounds; round++ {
		for i := 0; i < n; i++ {
			p := sigmoid(margin[i])
			target := 0.0
			if y[i] {
				target = 1
			}
			grad[i] = p - target
			hess[i] = p * (1 - p)
		}

		rows := gb.rng.Perm(n)[:rowSample]
		cols := gb.rng.Perm(d)[:colSample]

		tree := gb.buildNode(X, grad, hess, rows, cols, 0)
		gb.trees = append(gb.trees, tree)

		for i := 0; i < n; i++ {
			margin[i] += gb.Eta * leafWeight(tree, X[i])
		}
	}
	return nil
}

// buildNode grows one regression tree on the sampled rows and columns,
// splitting greedily on the regularized gain
func (gb *GradientBoosting) buildNode(X [][]float64, grad, hess []float64, rows, cols []int, depth int) *boostNode {
	var gSum, hSum float64
	for _, i := range rows {
		gSum += grad[i]
		hSum += hess[i]
	}
	node := &boostNode{IsLeaf: true, Weight: -gSum / (hSum + gb.Lambda)}

	if depth >= gb.MaxDepth || len(rows) < 2 {
		return node
	}

	feature, threshold, gain, ok := gb.bestGainSplit(X, grad, hess, rows, cols, gSum, hSum)
	if !ok {
		return node
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, i := range rows {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	gb.importance[feature] += gain
	node.IsLeaf = false
	node.Feature = feature
	node.Threshold = threshold
	node.Left = gb.buildNode(X, grad, hess, left, cols, depth+1)
	node.Right = gb.buildNode(X, grad, hess, right, cols, depth+1)
	return node
}

// bestGainSplit sweeps every boundary of the sampled columns and keeps
// the split with the largest positive gain
func (gb *GradientBoosting) bestGainSplit(X [][]float64, grad, hess []float64, rows, cols []int, gSum, hSum float64) (feature int, threshold, gain float64, ok bool) {
	parent := gSum * gSum / (hSum + gb.Lambda)
	best := 0.0

	order := make([]int, len(rows))
	for _, f := range cols {
		copy(order, rows)
		sort.Slice(order, func(i, j int) bool { return X[order[i]][f] < X[order[j]][f] })

		var gLeft, hLeft float64
		for i := 1; i < len(order); i++ {
			gLeft += grad[order[i-1]]
			hLeft += hess[order[i-1]]
			prev, cur := X[order[i-1]][f], X[order[i]][f]
			if prev == cur {
				continue
			}
			hRight := hSum - hLeft
			if hLeft < gb.MinChildWeight || hRight < gb.MinChildWeight {
				continue
			}
			gRight := gSum - gLeft
			g := 0.5*(gLeft*gLeft/(hLeft+gb.Lambda)+
				gRight*gRight/(hRight+gb.Lambda)-parent) - gb.Gamma
			if g > best {
				best = g
				feature = f
				threshold = (prev + cur) / 2
			}
		}
	}
	if best <= 0 {
		return 0, 0, 0, false
	}
	return feature, threshold, best, true
}

func leafWeight(node *boostNode, x []float64) float64 {
	for !node.IsLeaf {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Weight
}

// PredictProba applies the boosted margin to one row
func (gb *GradientBoosting) PredictProba(x []float64) (float64, error) {
	if len(gb.trees) == 0 {
		return 0, fmt.Errorf("model is not fitted")
	}
	if len(x) != gb.numFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", gb.numFeatures, len(x))
	}
	margin := gb.baseScore
	for _, tree := range gb.trees {
		margin += gb.Eta * leafWeight(tree, x)
	}
	return sigmoid(margin), nil
}

// Importance ranks features by their total split gain
func (gb *GradientBoosting) Importance() map[string]float64 {
	return normalizeImportance(gb.featureNames, gb.importance)
}
