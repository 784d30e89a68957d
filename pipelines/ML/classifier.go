package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// BinaryClassifier is the contract shared by every model family: fit on
// a design matrix with boolean labels, then score single rows with the
// probability of the positive (delayed) class.
type BinaryClassifier interface {
	Fit(X [][]float64, y []bool, featureNames []string) error
	PredictProba(x []float64) (float64, error)
	Importance() map[string]float64
}

// SplitRule selects how tree nodes search for their threshold
type SplitRule string

const (
	// SplitGini sweeps every candidate threshold of a feature and keeps
	// the one with the largest impurity decrease.
	SplitGini SplitRule = "gini"
	// SplitExtraTrees draws one uniform random threshold per candidate
	// feature, trading split quality for decorrelation.
	SplitExtraTrees SplitRule = "extratrees"
)

type treeNode struct {
	Feature   int
	Threshold float64
	Left      *treeNode
	Right     *treeNode
	Prob      float64
	Samples   int
	IsLeaf    bool
}

// DecisionTree is a binary classification tree. It serves both as a
// standalone classifier and as the base learner of the bagged ensemble;
// with Mtry below the feature count each node searches only a random
// subset of features.
type DecisionTree struct {
	MaxDepth int // 0 grows until purity or MinLeaf stops the recursion
	MinLeaf  int
	Mtry     int // candidate features per node, 0 means sqrt of the total
	Rule     SplitRule

	root         *treeNode
	numFeatures  int
	featureNames []string
	importance   []float64
	rng          *rand.Rand
}

// NewDecisionTree creates a tree with the given split behavior
func NewDecisionTree(maxDepth, minLeaf, mtry int, rule SplitRule, seed int64) *DecisionTree {
	if minLeaf < 1 {
		minLeaf = 1
	}
	if rule == "" {
		rule = SplitGini
	}
	return &DecisionTree{
		MaxDepth: maxDepth,
		MinLeaf:  minLeaf,
		Mtry:     mtry,
		Rule:     rule,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Fit grows the tree on the full dataset
func (dt *DecisionTree) Fit(X [][]float64, y []bool, featureNames []string) error {
	if len(X) == 0 {
		return fmt.Errorf("empty training data")
	}
	if len(X) != len(y) {
		return fmt.Errorf("X has %d rows but y has %d labels", len(X), len(y))
	}
	if len(featureNames) != len(X[0]) {
		return fmt.Errorf("%d feature names for %d columns", len(featureNames), len(X[0]))
	}
	if dt.Rule != SplitGini && dt.Rule != SplitExtraTrees {
		return fmt.Errorf("unknown split rule %q", dt.Rule)
	}

	dt.numFeatures = len(X[0])
	dt.featureNames = featureNames
	dt.importance = make([]float64, dt.numFeatures)
	if dt.Mtry <= 0 || dt.Mtry > dt.numFeatures {
		dt.Mtry = int(math.Sqrt(float64(dt.numFeatures)))
		if dt.Mtry < 1 {
			dt.Mtry = 1
		}
	}

	indices := make([]int, len(X))
	for i := range indices {
		indices[i] = i
	}
	dt.root = dt.buildNode(X, y, indices, 0)
	return nil
}

func (dt *DecisionTree) buildNode(X [][]float64, y []bool, indices []int, depth int) *treeNode {
	n := len(indices)
	pos := 0
	for _, idx := range indices {
		if y[idx] {
			pos++
		}
	}
	node := &treeNode{Samples: n, Prob: float64(pos) / float64(n), IsLeaf: true}

	if pos == 0 || pos == n {
		return node
	}
	if dt.MaxDepth > 0 && depth >= dt.MaxDepth {
		return node
	}
	if n < 2*dt.MinLeaf {
		return node
	}

	feature, threshold, decrease, ok := dt.bestSplit(X, y, indices, pos)
	if !ok {
		return node
	}

	left := make([]int, 0, n)
	right := make([]int, 0, n)
	for _, idx := range indices {
		if X[idx][feature] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}

	dt.importance[feature] += decrease * float64(n)
	node.IsLeaf = false
	node.Feature = feature
	node.Threshold = threshold
	node.Left = dt.buildNode(X, y, left, depth+1)
	node.Right = dt.buildNode(X, y, right, depth+1)
	return node
}

// bestSplit searches a random subset of Mtry features for the split
// with the largest gini decrease, honoring MinLeaf on both children
func (dt *DecisionTree) bestSplit(X [][]float64, y []bool, indices []int, pos int) (feature int, threshold, decrease float64, ok bool) {
	n := len(indices)
	parent := giniImpurity(pos, n)

	candidates := dt.rng.Perm(dt.numFeatures)[:dt.Mtry]
	best := -1.0
	for _, f := range candidates {
		var t, d float64
		var valid bool
		switch dt.Rule {
		case SplitExtraTrees:
			t, d, valid = dt.randomSplit(X, y, indices, f, pos, parent)
		default:
			t, d, valid = dt.sweepSplit(X, y, indices, f, pos, parent)
		}
		if valid && d > best {
			best = d
			feature = f
			threshold = t
		}
	}
	if best <= 0 {
		return 0, 0, 0, false
	}
	return feature, threshold, best, true
}

// sweepSplit sorts the node's rows by one feature and evaluates every
// distinct boundary in a single pass over prefix counts
func (dt *DecisionTree) sweepSplit(X [][]float64, y []bool, indices []int, f, pos int, parent float64) (threshold, decrease float64, ok bool) {
	n := len(indices)
	order := make([]int, n)
	copy(order, indices)
	sort.Slice(order, func(i, j int) bool { return X[order[i]][f] < X[order[j]][f] })

	best := -1.0
	leftPos := 0
	for i := 1; i < n; i++ {
		if y[order[i-1]] {
			leftPos++
		}
		prev, cur := X[order[i-1]][f], X[order[i]][f]
		if prev == cur {
			continue
		}
		if i < dt.MinLeaf || n-i < dt.MinLeaf {
			continue
		}
		d := giniDecrease(parent, leftPos, i, pos-leftPos, n-i)
		if d > best {
			best = d
			threshold = (prev + cur) / 2
		}
	}
	if best <= 0 {
		return 0, 0, false
	}
	return threshold, best, true
}

// randomSplit draws one uniform threshold between the node's min and
// max of the feature and scores that single cut
func (dt *DecisionTree) randomSplit(X [][]float64, y []bool, indices []int, f, pos int, parent float64) (threshold, decrease float64, ok bool) {
	lo, hi := X[indices[0]][f], X[indices[0]][f]
	for _, idx := range indices[1:] {
		v := X[idx][f]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		return 0, 0, false
	}

	threshold = lo + dt.rng.Float64()*(hi-lo)
	leftN, leftPos := 0, 0
	for _, idx := range indices {
		if X[idx][f] <= threshold {
			leftN++
			if y[idx] {
				leftPos++
			}
		}
	}
	n := len(indices)
	if leftN < dt.MinLeaf || n-leftN < dt.MinLeaf {
		return 0, 0, false
	}
	decrease = giniDecrease(parent, leftPos, leftN, pos-leftPos, n-leftN)
	if decrease <= 0 {
		return 0, 0, false
	}
	return threshold, decrease, true
}

// PredictProba returns the positive fraction of the leaf the row falls
// into
func (dt *DecisionTree) PredictProba(x []float64) (float64, error) {
	if dt.root == nil {
		return 0, fmt.Errorf("tree is not fitted")
	}
	if len(x) != dt.numFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", dt.numFeatures, len(x))
	}
	node := dt.root
	for !node.IsLeaf {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Prob, nil
}

// Importance maps feature names to their normalized impurity decrease
func (dt *DecisionTree) Importance() map[string]float64 {
	return normalizeImportance(dt.featureNames, dt.importance)
}

func (dt *DecisionTree) rawImportance() []float64 {
	return dt.importance
}

func giniImpurity(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 1 - p*p - (1-p)*(1-p)
}

func giniDecrease(parent float64, leftPos, leftN, rightPos, rightN int) float64 {
	n := float64(leftN + rightN)
	child := float64(leftN)/n*giniImpurity(leftPos, leftN) +
		float64(rightN)/n*giniImpurity(rightPos, rightN)
	return parent - child
}

func normalizeImportance(names []string, raw []float64) map[string]float64 {
	total := 0.0
	for _, v := range raw {
		total += v
	}
	out := make(map[string]float64, len(names))
	for i, name := range names {
		if total > 0 {
			out[name] = raw[i] / total
		} else {
			out[name] = 0
		}
	}
	return out
}
