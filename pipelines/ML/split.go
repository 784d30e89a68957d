package ml

import (
	"fmt"
	"math"
	"math/rand"
)

// Splitter draws a reproducible train/test partition of row indices.
// The same row count and seed always produce the same partition.
type Splitter struct {
	TrainFraction float64
	Seed          int64
}

// DefaultTrainFraction is the share of rows given to the training side
const DefaultTrainFraction = 0.7

// NewSplitter creates a splitter, falling back to the default fraction
// when the given one is not in (0, 1)
func NewSplitter(fraction float64, seed int64) *Splitter {
	if fraction <= 0 || fraction >= 1 {
		fraction = DefaultTrainFraction
	}
	return &Splitter{TrainFraction: fraction, Seed: seed}
}

// Split partitions the row indices [0, n) into a training side of
// round(fraction*n) indices drawn without replacement and a test side
// holding the remainder. The two sides are disjoint and cover all rows.
func (s *Splitter) Split(n int) (train, test []int, err error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("cannot split %d rows", n)
	}
	k := int(math.Round(s.TrainFraction * float64(n)))
	if k < 1 || k >= n {
		return nil, nil, fmt.Errorf("train fraction %.3f leaves an empty partition for %d rows", s.TrainFraction, n)
	}

	perm := rand.New(rand.NewSource(s.Seed)).Perm(n)
	train = append([]int{}, perm[:k]...)
	test = append([]int{}, perm[k:]...)
	return train, test, nil
}

// Gather materializes the rows and labels at the given indices. Row
// slices are shared with X, not copied.
func Gather(X [][]float64, y []bool, indices []int) ([][]float64, []bool) {
	gx := make([][]float64, len(indices))
	gy := make([]bool, len(indices))
	for i, idx := range indices {
		gx[i] = X[idx]
		gy[i] = y[idx]
	}
	return gx, gy
}

// StratifiedFolds partitions the rows [0, len(y)) into k validation
// folds, dealing the two classes separately so every fold's label
// balance mirrors the whole set. Rows are shuffled within each class
// before dealing, so folds depend on the rng state.
func StratifiedFolds(y []bool, k int, rng *rand.Rand) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("need at least 2 folds, got %d", k)
	}
	if len(y) < k {
		return nil, fmt.Errorf("cannot build %d folds from %d rows", k, len(y))
	}

	var pos, neg []int
	for i, v := range y {
		if v {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}
	rng.Shuffle(len(pos), func(i, j int) { pos[i], pos[j] = pos[j], pos[i] })
	rng.Shuffle(len(neg), func(i, j int) { neg[i], neg[j] = neg[j], neg[i] })

	folds := make([][]int, k)
	next := 0
	for _, idx := range pos {
		folds[next%k] = append(folds[next%k], idx)
		next++
	}
	for _, idx := range neg {
		folds[next%k] = append(folds[next%k], idx)
		next++
	}
	return folds, nil
}

// foldComplements returns, for each fold, the indices of every row not
// in that fold
func foldComplements(n int, folds [][]int) [][]int {
	out := make([][]int, len(folds))
	for fi, fold := range folds {
		inFold := make([]bool, n)
		for _, idx := range fold {
			inFold[idx] = true
		}
		rest := make([]int, 0, n-len(fold))
		for i := 0; i < n; i++ {
			if !inFold[i] {
				rest = append(rest, i)
			}
		}
		out[fi] = rest
	}
	return out
}
