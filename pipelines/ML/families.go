package ml

import (
	"fmt"

	"github.com/aeroml/flightdelay/pkg/models"
)

// LogisticFamily tunes the elastic-net logistic regression over the
// full mixing range and a fine penalty ladder: alpha in {0, 1} crossed
// with lambda in {0.001, 0.002, ..., 0.100}, 200 points. It always
// trains on the full training partition.
type LogisticFamily struct{}

func (LogisticFamily) Name() models.Family { return models.FamilyLogistic }

func (LogisticFamily) MaxTrainRows() int { return 0 }

func (LogisticFamily) Grid() []GridPoint {
	points := make([]GridPoint, 0, 200)
	for _, alpha := range []float64{0, 1} {
		for i := 1; i <= 100; i++ {
			points = append(points, GridPoint{
				Params: map[string]float64{
					"alpha":  alpha,
					"lambda": float64(i) / 1000,
				},
			})
		}
	}
	return points
}

func (LogisticFamily) New(p GridPoint, seed int64) BinaryClassifier {
	return NewElasticNetLogistic(p.Params["alpha"], p.Params["lambda"])
}

// ForestFamily tunes the bagged ensemble: candidate features per split
// in {2,3,4,5} crossed with the two split rules and minimum leaf sizes
// {1,5,10}, 24 points. Training is capped at the first SubsampleRows
// rows of the partition.
type ForestFamily struct {
	SubsampleRows int
}

func (ForestFamily) Name() models.Family { return models.FamilyForest }

func (f ForestFamily) MaxTrainRows() int {
	if f.SubsampleRows <= 0 {
		return DefaultSubsampleRows
	}
	return f.SubsampleRows
}

func (ForestFamily) Grid() []GridPoint {
	points := make([]GridPoint, 0, 24)
	for _, mtry := range []float64{2, 3, 4, 5} {
		for _, rule := range []SplitRule{SplitGini, SplitExtraTrees} {
			for _, minLeaf := range []float64{1, 5, 10} {
				points = append(points, GridPoint{
					Params: map[string]float64{
						"mtry":     mtry,
						"min_leaf": minLeaf,
					},
					Labels: map[string]string{"split_rule": string(rule)},
				})
			}
		}
	}
	return points
}

func (ForestFamily) New(p GridPoint, seed int64) BinaryClassifier {
	return NewRandomForest(
		DefaultNumTrees,
		int(p.Params["mtry"]),
		int(p.Params["min_leaf"]),
		SplitRule(p.Labels["split_rule"]),
		seed,
	)
}

// BoostingFamily tunes the gradient booster at 50 rounds: depth {3,5},
// learning rate {0.01,0.1}, minimum split loss {0,1}, column subsample
// {0.5,0.7} and minimum child weight {1,3}, 32 points. The row
// subsample ratio stays fixed at 0.7 and training is capped at the
// same subsample as the forest.
type BoostingFamily struct {
	SubsampleRows int
}

func (BoostingFamily) Name() models.Family { return models.FamilyBoosting }

func (b BoostingFamily) MaxTrainRows() int {
	if b.SubsampleRows <= 0 {
		return DefaultSubsampleRows
	}
	return b.SubsampleRows
}

func (BoostingFamily) Grid() []GridPoint {
	points := make([]GridPoint, 0, 32)
	for _, depth := range []float64{3, 5} {
		for _, eta := range []float64{0.01, 0.1} {
			for _, gamma := range []float64{0, 1} {
				for _, colSample := range []float64{0.5, 0.7} {
					for _, minChild := range []float64{1, 3} {
						points = append(points, GridPoint{
							Params: map[string]float64{
								"max_depth":        depth,
								"eta":              eta,
								"gamma":            gamma,
								"colsample_bytree": colSample,
								"min_child_weight": minChild,
							},
						})
					}
				}
			}
		}
	}
	return points
}

func (BoostingFamily) New(p GridPoint, seed int64) BinaryClassifier {
	return NewGradientBoosting(
		DefaultRounds,
		int(p.Params["max_depth"]),
		p.Params["eta"],
		p.Params["gamma"],
		p.Params["colsample_bytree"],
		p.Params["min_child_weight"],
		seed,
	)
}

// Families resolves config names to family implementations, preserving
// the given order
func Families(names []string, subsampleRows int) ([]ModelFamily, error) {
	out := make([]ModelFamily, 0, len(names))
	for _, name := range names {
		switch models.Family(name) {
		case models.FamilyLogistic:
			out = append(out, LogisticFamily{})
		case models.FamilyForest:
			out = append(out, ForestFamily{SubsampleRows: subsampleRows})
		case models.FamilyBoosting:
			out = append(out, BoostingFamily{SubsampleRows: subsampleRows})
		default:
			return nil, fmt.Errorf("unknown model family %q", name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no model families configured")
	}
	return out, nil
}
