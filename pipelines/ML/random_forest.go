package ml

import (
	"fmt"
	"math/rand"
	"sync"
)

// DefaultNumTrees is the ensemble size of the bagged forest
const DefaultNumTrees = 100

// RandomForest bags decision trees over bootstrap samples. Every tree
// sees the full feature set and draws Mtry candidates per node, so the
// ensemble stays decorrelated without starving any single tree.
type RandomForest struct {
	NumTrees int
	MaxDepth int // 0 grows every tree to purity
	MinLeaf  int
	Mtry     int
	Rule     SplitRule
	Seed     int64

	trees        []*DecisionTree
	featureNames []string
	numFeatures  int
}

// NewRandomForest creates a forest with the given split behavior
func NewRandomForest(numTrees, mtry, minLeaf int, rule SplitRule, seed int64) *RandomForest {
	if numTrees <= 0 {
		numTrees = DefaultNumTrees
	}
	if minLeaf < 1 {
		minLeaf = 1
	}
	if rule == "" {
		rule = SplitGini
	}
	return &RandomForest{
		NumTrees: numTrees,
		MinLeaf:  minLeaf,
		Mtry:     mtry,
		Rule:     rule,
		Seed:     seed,
	}
}

// Fit grows the trees in parallel. Per-tree seeds and bootstrap draws
// are derived from rf.Seed up front, so the result does not depend on
// goroutine scheduling.
func (rf *RandomForest) Fit(X [][]float64, y []bool, featureNames []string) error {
	if len(X) == 0 {
		return fmt.Errorf("empty training data")
	}
	if len(X) != len(y) {
		return fmt.Errorf("X has %d rows but y has %d labels", len(X), len(y))
	}
	if len(featureNames) != len(X[0]) {
		return fmt.Errorf("%d feature names for %d columns", len(featureNames), len(X[0]))
	}

	rf.featureNames = featureNames
	rf.numFeatures = len(X[0])
	rf.trees = make([]*DecisionTree, rf.NumTrees)

	seedRng := rand.New(rand.NewSource(rf.Seed))
	seeds := make([]int64, rf.NumTrees)
	for i := range seeds {
		seeds[i] = seedRng.Int63()
	}

	errs := make([]error, rf.NumTrees)
	var wg sync.WaitGroup
	for i := 0; i < rf.NumTrees; i++ {
		wg.Add(1)
		go func(ti int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seeds[ti]))
			bootX, bootY := bootstrapSample(X, y, rng)

			tree := NewDecisionTree(rf.MaxDepth, rf.MinLeaf, rf.Mtry, rf.Rule, rng.Int63())
			if err := tree.Fit(bootX, bootY, featureNames); err != nil {
				errs[ti] = fmt.Errorf("tree %d: %w", ti, err)
				return
			}
			rf.trees[ti] = tree
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// bootstrapSample draws len(X) rows with replacement. Row slices are
// shared with X, not copied.
func bootstrapSample(X [][]float64, y []bool, rng *rand.Rand) ([][]float64, []bool) {
	n := len(X)
	bx := make([][]float64, n)
	by := make([]bool, n)
	for i := 0; i < n; i++ {
		j := rng.Intn(n)
		bx[i] = X[j]
		by[i] = y[j]
	}
	return bx, by
}

// PredictProba averages the leaf probabilities of all trees
func (rf *RandomForest) PredictProba(x []float64) (float64, error) {
	if len(rf.trees) == 0 {
		return 0, fmt.Errorf("forest is not fitted")
	}
	if len(x) != rf.numFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", rf.numFeatures, len(x))
	}
	sum := 0.0
	for _, tree := range rf.trees {
		p, err := tree.PredictProba(x)
		if err != nil {
			return 0, err
		}
		sum += p
	}
	return sum / float64(len(rf.trees)), nil
}

// Importance averages the impurity decrease across trees and normalizes
// it to sum to one
func (rf *RandomForest) Importance() map[string]float64 {
	raw := make([]float64, rf.numFeatures)
	for _, tree := range rf.trees {
		for i, v := range tree.rawImportance() {
			raw[i] += v
		}
	}
	return normalizeImportance(rf.featureNames, raw)
}
