package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Family identifies a model family trained by the pipeline
type Family string

const (
	FamilyLogistic Family = "elastic_net_logistic"
	FamilyForest   Family = "random_forest"
	FamilyBoosting Family = "gradient_boosting"
)

// ConfusionMatrix holds binary classification outcomes with delayed as the
// positive class
type ConfusionMatrix struct {
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	TrueNegatives  int `json:"true_negatives"`
	FalseNegatives int `json:"false_negatives"`
}

// Total returns the number of classified samples
func (c ConfusionMatrix) Total() int {
	return c.TruePositives + c.FalsePositives + c.TrueNegatives + c.FalseNegatives
}

// Sensitivity returns TP / (TP + FN), NaN when no positives exist
func (c ConfusionMatrix) Sensitivity() float64 {
	denom := c.TruePositives + c.FalseNegatives
	if denom == 0 {
		return math.NaN()
	}
	return float64(c.TruePositives) / float64(denom)
}

// Specificity returns TN / (TN + FP), NaN when no negatives exist
func (c ConfusionMatrix) Specificity() float64 {
	denom := c.TrueNegatives + c.FalsePositives
	if denom == 0 {
		return math.NaN()
	}
	return float64(c.TrueNegatives) / float64(denom)
}

// Accuracy returns the fraction of correct predictions
func (c ConfusionMatrix) Accuracy() float64 {
	total := c.Total()
	if total == 0 {
		return math.NaN()
	}
	return float64(c.TruePositives+c.TrueNegatives) / float64(total)
}

// ROCPoint is one point of a receiver operating characteristic curve
type ROCPoint struct {
	FPR       float64 `json:"fpr"`
	TPR       float64 `json:"tpr"`
	Threshold float64 `json:"threshold"`
}

// CVRow is one hyperparameter combination's cross-validation outcome
type CVRow struct {
	Params   string    `json:"params"`
	FoldAUCs []float64 `json:"fold_aucs,omitempty"`
	MeanAUC  float64   `json:"mean_auc"`
	Error    string    `json:"error,omitempty"`
}

// ColumnMissing reports missing values for one feature column
type ColumnMissing struct {
	Column  string  `json:"column"`
	Missing int     `json:"missing"`
	Percent float64 `json:"percent"`
}

// ModelReport holds the evaluation of one trained model family
type ModelReport struct {
	Family            Family             `json:"family"`
	BestParams        string             `json:"best_params"`
	MeanCVAUC         float64            `json:"mean_cv_auc"`
	TestAUC           float64            `json:"test_auc"`
	Confusion         ConfusionMatrix    `json:"confusion"`
	ROC               []ROCPoint         `json:"roc,omitempty"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	CVTable           []CVRow            `json:"cv_table,omitempty"`
	TrainRows         int                `json:"train_rows"`
	ElapsedMS         int64              `json:"elapsed_ms"`
}

// ModelFailure records a family whose training failed
type ModelFailure struct {
	Family Family `json:"family"`
	Error  string `json:"error"`
}

// InferenceResult is the scored outcome for one unseen flight
type InferenceResult struct {
	Family      Family  `json:"family"`
	Probability float64 `json:"probability"`
	Delayed     bool    `json:"delayed"`
}

// RunReport is the full record of one pipeline run
type RunReport struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	DataPath  string    `json:"data_path"`

	RowsTotal             int `json:"rows_total"`
	RowsEligible          int `json:"rows_eligible"`
	RowsCancelled         int `json:"rows_cancelled"`
	RowsDiverted          int `json:"rows_diverted"`
	RowsMissingLabel      int `json:"rows_missing_label"`
	OutlierRowsDropped    int `json:"outlier_rows_dropped"`
	IncompleteRowsDropped int `json:"incomplete_rows_dropped"`

	Missingness []ColumnMissing `json:"missingness,omitempty"`

	TrainFraction float64 `json:"train_fraction"`
	SplitSeed     int64   `json:"split_seed"`
	TrainingSeed  int64   `json:"training_seed"`
	CVFolds       int     `json:"cv_folds"`
	TrainRows     int     `json:"train_rows"`
	TestRows      int     `json:"test_rows"`

	Models    []ModelReport    `json:"models"`
	Failures  []ModelFailure   `json:"failures,omitempty"`
	Inference *InferenceResult `json:"inference,omitempty"`

	ElapsedMS int64 `json:"elapsed_ms"`
}

// NewRunReport creates a run report with a fresh ID and timestamp
func NewRunReport(dataPath string) *RunReport {
	return &RunReport{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		DataPath:  dataPath,
	}
}

// BestModel returns the trained model with the highest held-out AUC,
// or nil when no family trained
func (r *RunReport) BestModel() *ModelReport {
	var best *ModelReport
	for i := range r.Models {
		if best == nil || r.Models[i].TestAUC > best.TestAUC {
			best = &r.Models[i]
		}
	}
	return best
}
