package ml

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeroml/flightdelay/pkg/models"
)

// stubModel scores rows by their first column. flip inverts the score
// so a grid can contain deliberately bad candidates.
type stubModel struct {
	flip bool
}

func (s *stubModel) Fit(X [][]float64, y []bool, featureNames []string) error {
	if len(X) == 0 {
		return fmt.Errorf("empty training data")
	}
	return nil
}

func (s *stubModel) PredictProba(x []float64) (float64, error) {
	p := sigmoid(x[0] - 1.5)
	if s.flip {
		p = 1 - p
	}
	return p, nil
}

func (s *stubModel) Importance() map[string]float64 {
	return map[string]float64{"signal": 1}
}

type failingModel struct{}

func (failingModel) Fit(X [][]float64, y []bool, featureNames []string) error {
	return fmt.Errorf("synthetic fit failure")
}

func (failingModel) PredictProba(x []float64) (float64, error) {
	return 0, fmt.Errorf("never fitted")
}

func (failingModel) Importance() map[string]float64 { return nil }

// stubFamily builds stub models from a fixed grid; a point with fail=1
// produces a candidate whose fit always errors.
type stubFamily struct {
	name models.Family
	grid []GridPoint
	rows int
}

func (f stubFamily) Name() models.Family { return f.name }
func (f stubFamily) Grid() []GridPoint   { return f.grid }
func (f stubFamily) MaxTrainRows() int   { return f.rows }

func (f stubFamily) New(p GridPoint, seed int64) BinaryClassifier {
	if p.Params["fail"] == 1 {
		return failingModel{}
	}
	return &stubModel{flip: p.Params["flip"] == 1}
}

func point(kv map[string]float64) GridPoint { return GridPoint{Params: kv} }

func TestLogisticFamily_Grid(t *testing.T) {
	family := LogisticFamily{}
	grid := family.Grid()

	require.Len(t, grid, 200)
	assert.Equal(t, models.FamilyLogistic, family.Name())
	assert.Equal(t, 0, family.MaxTrainRows(), "logistic training is never capped")

	seen := make(map[string]bool)
	for _, p := range grid {
		alpha := p.Params["alpha"]
		lambda := p.Params["lambda"]
		assert.Contains(t, []float64{0, 1}, alpha)
		assert.GreaterOrEqual(t, lambda, 0.001)
		assert.LessOrEqual(t, lambda, 0.100)
		seen[p.String()] = true
	}
	assert.Len(t, seen, 200, "every grid point must be distinct")
}

func TestForestFamily_Grid(t *testing.T) {
	family := ForestFamily{}
	grid := family.Grid()

	require.Len(t, grid, 24)
	assert.Equal(t, models.FamilyForest, family.Name())
	assert.Equal(t, DefaultSubsampleRows, family.MaxTrainRows())
	assert.Equal(t, 500, ForestFamily{SubsampleRows: 500}.MaxTrainRows())

	rules := make(map[string]int)
	for _, p := range grid {
		rules[p.Labels["split_rule"]]++
	}
	assert.Equal(t, 12, rules[string(SplitGini)])
	assert.Equal(t, 12, rules[string(SplitExtraTrees)])
}

func TestForestFamily_New(t *testing.T) {
	p := GridPoint{
		Params: map[string]float64{"mtry": 4, "min_leaf": 5},
		Labels: map[string]string{"split_rule": string(SplitExtraTrees)},
	}
	model := ForestFamily{}.New(p, 7)

	rf, ok := model.(*RandomForest)
	require.True(t, ok)
	assert.Equal(t, DefaultNumTrees, rf.NumTrees)
	assert.Equal(t, 4, rf.Mtry)
	assert.Equal(t, 5, rf.MinLeaf)
	assert.Equal(t, SplitExtraTrees, rf.Rule)
	assert.Equal(t, int64(7), rf.Seed)
}

func TestBoostingFamily_Grid(t *testing.T) {
	family := BoostingFamily{}
	grid := family.Grid()

	require.Len(t, grid, 32)
	assert.Equal(t, models.FamilyBoosting, family.Name())

	for _, p := range grid {
		assert.Contains(t, []float64{3, 5}, p.Params["max_depth"])
		assert.Contains(t, []float64{0.01, 0.1}, p.Params["eta"])
		assert.Contains(t, []float64{0, 1}, p.Params["gamma"])
		assert.Contains(t, []float64{0.5, 0.7}, p.Params["colsample_bytree"])
		assert.Contains(t, []float64{1, 3}, p.Params["min_child_weight"])
	}
}

func TestBoostingFamily_New(t *testing.T) {
	p := point(map[string]float64{
		"max_depth": 5, "eta": 0.01, "gamma": 1,
		"colsample_bytree": 0.5, "min_child_weight": 3,
	})
	model := BoostingFamily{}.New(p, 3)

	gb, ok := model.(*GradientBoosting)
	require.True(t, ok)
	assert.Equal(t, DefaultRounds, gb.Rounds)
	assert.Equal(t, 5, gb.MaxDepth)
	assert.Equal(t, 0.01, gb.Eta)
	assert.Equal(t, 1.0, gb.Gamma)
	assert.Equal(t, 0.5, gb.ColSampleRatio)
	assert.Equal(t, 3.0, gb.MinChildWeight)
	assert.Equal(t, DefaultRowSubsample, gb.RowSampleRatio)
}

func TestFamilies_Factory(t *testing.T) {
	families, err := Families([]string{
		string(models.FamilyLogistic),
		string(models.FamilyForest),
		string(models.FamilyBoosting),
	}, 5000)
	require.NoError(t, err)
	require.Len(t, families, 3)

	assert.IsType(t, LogisticFamily{}, families[0])
	assert.IsType(t, ForestFamily{}, families[1])
	assert.IsType(t, BoostingFamily{}, families[2])
	assert.Equal(t, 5000, families[1].MaxTrainRows())

	_, err = Families([]string{"perceptron"}, 0)
	assert.Error(t, err)
	_, err = Families(nil, 0)
	assert.Error(t, err)
}

func TestGridPoint_String(t *testing.T) {
	p := GridPoint{
		Params: map[string]float64{"lambda": 0.05, "alpha": 1},
		Labels: map[string]string{"split_rule": "gini"},
	}
	assert.Equal(t, "alpha=1 lambda=0.05 split_rule=gini", p.String())
	assert.Equal(t, p.String(), p.String(), "rendering must be stable")
}

func TestGridSearch_PicksBestPoint(t *testing.T) {
	X, y, names := separableData(120, 50)
	family := stubFamily{name: "stub", grid: []GridPoint{
		point(map[string]float64{"flip": 1}),
		point(map[string]float64{"flip": 0}),
	}}

	result, err := GridSearch(family, X, y, names, 5, 42)
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.Best.Params["flip"])
	assert.Greater(t, result.MeanAUC, 0.9)
	assert.Equal(t, 120, result.TrainRows)
	require.Len(t, result.CVTable, 2)
	assert.Empty(t, result.CVTable[0].Error)
	assert.Len(t, result.CVTable[0].FoldAUCs, 5)
	assert.Less(t, result.CVTable[0].MeanAUC, result.CVTable[1].MeanAUC)
}

func TestGridSearch_SkipsFailingPoints(t *testing.T) {
	X, y, names := separableData(120, 51)
	family := stubFamily{name: "stub", grid: []GridPoint{
		point(map[string]float64{"fail": 1}),
		point(map[string]float64{"flip": 0}),
	}}

	result, err := GridSearch(family, X, y, names, 5, 42)
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.Best.Params["fail"])
	assert.Contains(t, result.CVTable[0].Error, "synthetic fit failure")
	assert.Empty(t, result.CVTable[1].Error)
}

func TestGridSearch_AllPointsFailing(t *testing.T) {
	X, y, names := separableData(120, 52)
	family := stubFamily{name: "stub", grid: []GridPoint{
		point(map[string]float64{"fail": 1}),
		point(map[string]float64{"fail": 1}),
	}}

	_, err := GridSearch(family, X, y, names, 5, 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoViableHyperparameters))
}

func TestGridSearch_TieBreaksOnEarliestPoint(t *testing.T) {
	X, y, names := separableData(120, 53)
	family := stubFamily{name: "stub", grid: []GridPoint{
		point(map[string]float64{"flip": 0, "id": 1}),
		point(map[string]float64{"flip": 0, "id": 2}),
	}}

	result, err := GridSearch(family, X, y, names, 5, 42)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Best.Params["id"], "equal scores keep the earliest point")
}

func TestGridSearch_CapsTrainingRows(t *testing.T) {
	X, y, names := separableData(120, 54)
	family := stubFamily{name: "stub", rows: 60, grid: []GridPoint{
		point(map[string]float64{"flip": 0}),
	}}

	result, err := GridSearch(family, X, y, names, 5, 42)
	require.NoError(t, err)
	assert.Equal(t, 60, result.TrainRows, "tree families see only the leading rows")
}

func TestGridSearch_TooFewRowsForFolds(t *testing.T) {
	X, y, names := separableData(6, 55)
	family := stubFamily{name: "stub", grid: []GridPoint{
		point(map[string]float64{"flip": 0}),
	}}

	_, err := GridSearch(family, X, y, names, 10, 42)
	assert.Error(t, err)
}

func TestTrainFamilies_FailureIsolation(t *testing.T) {
	X, y, names := separableData(120, 56)

	good := stubFamily{name: "good", grid: []GridPoint{
		point(map[string]float64{"flip": 0}),
	}}
	bad := stubFamily{name: "bad", grid: []GridPoint{
		point(map[string]float64{"fail": 1}),
	}}

	results, failures := TrainFamilies([]ModelFamily{bad, good}, X, y, names, 5, 42)

	require.Len(t, results, 1)
	assert.Equal(t, models.Family("good"), results[0].Family)
	require.Len(t, failures, 1)
	assert.Equal(t, models.Family("bad"), failures[0].Family)
	assert.Contains(t, failures[0].Error, "no viable hyperparameters")
}
