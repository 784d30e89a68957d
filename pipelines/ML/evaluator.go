package ml

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/aeroml/flightdelay/pkg/models"
)

// DefaultThreshold converts a delay probability into a hard label
const DefaultThreshold = 0.5

// Evaluation is the held-out performance summary of one fitted model
type Evaluation struct {
	Scores    []float64
	Confusion models.ConfusionMatrix
	ROC       []models.ROCPoint
	AUC       float64
}

// PredictProba scores every row of X with the positive-class probability
func PredictProba(model BinaryClassifier, X [][]float64) ([]float64, error) {
	scores := make([]float64, len(X))
	for i, x := range X {
		p, err := model.PredictProba(x)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		scores[i] = p
	}
	return scores, nil
}

// Predict converts probabilities into hard labels at the threshold
func Predict(scores []float64, threshold float64) []bool {
	out := make([]bool, len(scores))
	for i, s := range scores {
		out[i] = s >= threshold
	}
	return out
}

// Confusion tallies the 2x2 contingency of predicted versus actual
// labels, with delayed as the positive class
func Confusion(predicted, actual []bool) (models.ConfusionMatrix, error) {
	var cm models.ConfusionMatrix
	if len(predicted) != len(actual) {
		return cm, fmt.Errorf("%d predictions for %d labels", len(predicted), len(actual))
	}
	if len(actual) == 0 {
		return cm, fmt.Errorf("empty evaluation set")
	}
	for i := range predicted {
		switch {
		case predicted[i] && actual[i]:
			cm.TruePositives++
		case predicted[i] && !actual[i]:
			cm.FalsePositives++
		case !predicted[i] && actual[i]:
			cm.FalseNegatives++
		default:
			cm.TrueNegatives++
		}
	}
	return cm, nil
}

// ROCCurve computes the operating points swept over every distinct
// score cutoff, ordered from (0,0) to (1,1), and the area under the
// curve by trapezoidal integration. Both classes must be present.
func ROCCurve(actual []bool, scores []float64) ([]models.ROCPoint, float64, error) {
	if len(actual) != len(scores) {
		return nil, 0, fmt.Errorf("%d scores for %d labels", len(scores), len(actual))
	}
	pos := 0
	for _, label := range actual {
		if label {
			pos++
		}
	}
	if pos == 0 || pos == len(actual) {
		return nil, 0, fmt.Errorf("ROC is undefined for a single-class sample")
	}

	y := append([]float64{}, scores...)
	classes := append([]bool{}, actual...)
	stat.SortWeightedLabeled(y, classes, nil)

	tpr, fpr, cutoffs := stat.ROC(nil, y, classes, nil)
	auc := integrate.Trapezoidal(fpr, tpr)

	points := make([]models.ROCPoint, len(tpr))
	for i := range tpr {
		cut := cutoffs[i]
		// The open upper cutoff comes back as +Inf; report it at the
		// probability ceiling so the curve stays JSON-safe.
		if math.IsInf(cut, 1) {
			cut = 1
		}
		points[i] = models.ROCPoint{FPR: fpr[i], TPR: tpr[i], Threshold: cut}
	}
	return points, auc, nil
}

// Evaluate scores a fitted model on held-out rows and assembles the
// confusion matrix and ROC summary
func Evaluate(model BinaryClassifier, X [][]float64, y []bool, threshold float64) (*Evaluation, error) {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	scores, err := PredictProba(model, X)
	if err != nil {
		return nil, err
	}
	cm, err := Confusion(Predict(scores, threshold), y)
	if err != nil {
		return nil, err
	}
	roc, auc, err := ROCCurve(y, scores)
	if err != nil {
		return nil, err
	}
	return &Evaluation{Scores: scores, Confusion: cm, ROC: roc, AUC: auc}, nil
}

// FormatConfusion renders the 2x2 table with its derived rates
func FormatConfusion(cm models.ConfusionMatrix) string {
	var sb strings.Builder
	sb.WriteString("                 actual delayed   actual on-time\n")
	fmt.Fprintf(&sb, "pred delayed     %14d   %14d\n", cm.TruePositives, cm.FalsePositives)
	fmt.Fprintf(&sb, "pred on-time     %14d   %14d\n", cm.FalseNegatives, cm.TrueNegatives)
	fmt.Fprintf(&sb, "sensitivity=%s specificity=%s accuracy=%s",
		formatRate(cm.Sensitivity()), formatRate(cm.Specificity()), formatRate(cm.Accuracy()))
	return sb.String()
}

// formatRate prints a rate, or n/a when its denominator was empty
func formatRate(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}
