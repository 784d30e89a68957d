package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomForest_SeparatesLabeledData(t *testing.T) {
	X, y, names := separableData(200, 10)

	rf := NewRandomForest(25, 2, 1, SplitGini, 42)
	require.NoError(t, rf.Fit(X, y, names))

	assert.Greater(t, trainAccuracy(t, rf, X, y), 0.95)
}

func TestRandomForest_ExtraTreesRule(t *testing.T) {
	X, y, names := separableData(200, 11)

	rf := NewRandomForest(25, 2, 5, SplitExtraTrees, 42)
	require.NoError(t, rf.Fit(X, y, names))

	assert.Greater(t, trainAccuracy(t, rf, X, y), 0.9)
}

func TestRandomForest_ProbabilitiesAreAverages(t *testing.T) {
	X, y, names := separableData(100, 12)

	rf := NewRandomForest(10, 2, 1, SplitGini, 1)
	require.NoError(t, rf.Fit(X, y, names))

	p, err := rf.PredictProba(X[0])
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)
}

func TestRandomForest_DeterministicForSeed(t *testing.T) {
	X, y, names := separableData(100, 13)

	a := NewRandomForest(15, 2, 1, SplitGini, 7)
	b := NewRandomForest(15, 2, 1, SplitGini, 7)
	require.NoError(t, a.Fit(X, y, names))
	require.NoError(t, b.Fit(X, y, names))

	for _, x := range X[:20] {
		pa, err := a.PredictProba(x)
		require.NoError(t, err)
		pb, err := b.PredictProba(x)
		require.NoError(t, err)
		assert.Equal(t, pa, pb, "same seed must rebuild the same forest")
	}
}

func TestRandomForest_ImportanceFavorsSignal(t *testing.T) {
	X, y, names := separableData(300, 14)

	rf := NewRandomForest(25, 2, 1, SplitGini, 3)
	require.NoError(t, rf.Fit(X, y, names))

	imp := rf.Importance()
	assert.Greater(t, imp["signal"], imp["noise"])
}

func TestNewRandomForest_Defaults(t *testing.T) {
	rf := NewRandomForest(0, 3, 0, "", 1)
	assert.Equal(t, DefaultNumTrees, rf.NumTrees)
	assert.Equal(t, 1, rf.MinLeaf)
	assert.Equal(t, SplitGini, rf.Rule)
}

func TestRandomForest_Errors(t *testing.T) {
	rf := NewRandomForest(5, 2, 1, SplitGini, 1)

	_, err := rf.PredictProba([]float64{1, 2, 3})
	assert.Error(t, err, "unfitted forest cannot predict")

	X, y, names := separableData(10, 15)
	assert.Error(t, rf.Fit(X, y[:3], names))
	assert.Error(t, rf.Fit(nil, nil, names))

	require.NoError(t, rf.Fit(X, y, names))
	_, err = rf.PredictProba([]float64{1})
	assert.Error(t, err)
}
