package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfusionMatrix_Rates(t *testing.T) {
	cm := ConfusionMatrix{
		TruePositives:  8,
		FalsePositives: 3,
		TrueNegatives:  6,
		FalseNegatives: 4,
	}

	assert.Equal(t, 21, cm.Total())
	assert.InDelta(t, 8.0/12.0, cm.Sensitivity(), 1e-12)
	assert.InDelta(t, 6.0/9.0, cm.Specificity(), 1e-12)
	assert.InDelta(t, 14.0/21.0, cm.Accuracy(), 1e-12)
}

func TestConfusionMatrix_EmptyDenominators(t *testing.T) {
	t.Run("no actual positives", func(t *testing.T) {
		cm := ConfusionMatrix{TrueNegatives: 5, FalsePositives: 2}
		assert.True(t, math.IsNaN(cm.Sensitivity()))
		assert.False(t, math.IsNaN(cm.Specificity()))
	})

	t.Run("no actual negatives", func(t *testing.T) {
		cm := ConfusionMatrix{TruePositives: 5, FalseNegatives: 2}
		assert.True(t, math.IsNaN(cm.Specificity()))
		assert.False(t, math.IsNaN(cm.Sensitivity()))
	})

	t.Run("empty matrix", func(t *testing.T) {
		cm := ConfusionMatrix{}
		assert.Equal(t, 0, cm.Total())
		assert.True(t, math.IsNaN(cm.Accuracy()))
	})
}

func TestNewRunReport(t *testing.T) {
	report := NewRunReport("data/flights.csv")

	_, err := uuid.Parse(report.ID)
	require.NoError(t, err, "Run ID should be a valid UUID")
	assert.Equal(t, "data/flights.csv", report.DataPath)
	assert.Equal(t, time.UTC, report.CreatedAt.Location())
	assert.WithinDuration(t, time.Now().UTC(), report.CreatedAt, time.Minute)

	other := NewRunReport("data/flights.csv")
	assert.NotEqual(t, report.ID, other.ID)
}

func TestRunReport_BestModel(t *testing.T) {
	t.Run("no models", func(t *testing.T) {
		assert.Nil(t, NewRunReport("x.csv").BestModel())
	})

	t.Run("highest held-out AUC wins", func(t *testing.T) {
		report := NewRunReport("x.csv")
		report.Models = []ModelReport{
			{Family: FamilyLogistic, TestAUC: 0.71},
			{Family: FamilyBoosting, TestAUC: 0.83},
			{Family: FamilyForest, TestAUC: 0.79},
		}

		best := report.BestModel()
		require.NotNil(t, best)
		assert.Equal(t, FamilyBoosting, best.Family)
	})
}

func TestRunReport_JSONRoundTrip(t *testing.T) {
	report := NewRunReport("flights.csv")
	report.RowsTotal = 10
	report.Models = []ModelReport{{
		Family:     FamilyForest,
		BestParams: "mtry=3",
		TestAUC:    0.9,
		ROC:        []ROCPoint{{FPR: 0, TPR: 0, Threshold: 1}},
		CVTable:    []CVRow{{Params: "mtry=3", FoldAUCs: []float64{0.9}, MeanAUC: 0.9}},
	}}
	report.Failures = []ModelFailure{{Family: FamilyLogistic, Error: "no viable hyperparameters"}}
	report.Inference = &InferenceResult{Family: FamilyForest, Probability: 0.7, Delayed: true}

	data, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded RunReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, report.ID, decoded.ID)
	assert.Equal(t, report.Models, decoded.Models)
	assert.Equal(t, report.Failures, decoded.Failures)
	assert.Equal(t, *report.Inference, *decoded.Inference)
}
