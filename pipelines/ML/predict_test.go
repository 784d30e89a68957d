package ml

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dataset "github.com/aeroml/flightdelay/pipelines/Dataset"
	features "github.com/aeroml/flightdelay/pipelines/Features"
	"github.com/aeroml/flightdelay/pkg/models"
)

func fittedEncoder(t *testing.T) *features.Encoder {
	t.Helper()
	table := &features.Table{
		N: 3,
		Cat: map[string][]string{
			features.ColCarrier:     {"AA", "DL", "UA"},
			features.ColOrigin:      {"ATL", "DFW", "ORD"},
			features.ColDestination: {"JFK", "ORD", "SFO"},
			features.ColSeason: {
				features.SeasonChristmasNewYear,
				features.SeasonSummerHolidays,
				features.SeasonOther,
			},
			features.ColDepOccasion: {
				features.OccasionEarlyMorning,
				features.OccasionLateAfternoon,
				features.OccasionNight,
			},
			features.ColArrOccasion: {
				features.OccasionLateMorning,
				features.OccasionEvening,
				features.OccasionNight,
			},
		},
	}
	enc, err := features.FitEncoder(table, features.CategoricalColumns)
	require.NoError(t, err)
	return enc
}

func sampleObservation() Observation {
	return Observation{
		Carrier:     "UA",
		Origin:      "ORD",
		Destination: "SFO",
		TaxiIn:      5,
		TaxiOut:     15,
		AirTime:     120,
		Distance:    700,
		IsWeekend:   true,
		Season:      features.SeasonOther,
		DepOccasion: features.OccasionEarlyMorning,
		ArrOccasion: features.OccasionLateMorning,
	}
}

func TestObservationFromRecord(t *testing.T) {
	rec := dataset.FlightRecord{
		Carrier:     "UA",
		Origin:      "ORD",
		Destination: "SFO",
		DepTime:     "0755",
		ArrTime:     "1102",
		TaxiIn:      5,
		TaxiOut:     15,
		AirTime:     120,
		Distance:    700,
		Date:        time.Date(2023, 12, 23, 0, 0, 0, 0, time.UTC), // Saturday
	}

	obs, err := ObservationFromRecord(rec)
	require.NoError(t, err)

	assert.Equal(t, "UA", obs.Carrier)
	assert.True(t, obs.IsWeekend)
	assert.Equal(t, features.SeasonChristmasNewYear, obs.Season)
	assert.Equal(t, features.OccasionEarlyMorning, obs.DepOccasion)
	assert.Equal(t, features.OccasionLateMorning, obs.ArrOccasion)
}

func TestObservationFromRecord_Errors(t *testing.T) {
	base := dataset.FlightRecord{
		Carrier: "UA", DepTime: "0755", ArrTime: "1102",
		Date: time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC),
	}

	noDate := base
	noDate.Date = time.Time{}
	_, err := ObservationFromRecord(noDate)
	assert.Error(t, err)

	badDep := base
	badDep.DepTime = "2790"
	_, err = ObservationFromRecord(badDep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "departure time")

	badArr := base
	badArr.ArrTime = ""
	_, err = ObservationFromRecord(badArr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arrival time")
}

func TestObservation_Vector(t *testing.T) {
	enc := fittedEncoder(t)

	vec, err := sampleObservation().Vector(enc)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 3, 5, 15, 120, 700, 1, 2, 1, 2}, vec)
}

func TestObservation_VectorUnseenCategory(t *testing.T) {
	enc := fittedEncoder(t)

	obs := sampleObservation()
	obs.Carrier = "ZZ"

	_, err := obs.Vector(enc)
	require.Error(t, err)

	var unseen *features.UnseenCategoryError
	require.True(t, errors.As(err, &unseen), "must fail with the encoder's typed error")
	assert.Equal(t, features.ColCarrier, unseen.Column)
	assert.Equal(t, "ZZ", unseen.Value)
}

func TestObservation_VectorMissingFields(t *testing.T) {
	enc := fittedEncoder(t)

	noCarrier := sampleObservation()
	noCarrier.Carrier = ""
	_, err := noCarrier.Vector(enc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier")

	noDistance := sampleObservation()
	noDistance.Distance = math.NaN()
	_, err = noDistance.Vector(enc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distance")
}

func TestScorer_Score(t *testing.T) {
	enc := fittedEncoder(t)
	scorer := NewScorer(models.FamilyForest, &stubModel{}, enc, 0.5)

	result, err := scorer.Score(sampleObservation())
	require.NoError(t, err)

	assert.Equal(t, models.FamilyForest, result.Family)
	// stubModel scores sigmoid(carrier_code - 1.5) = sigmoid(1.5).
	assert.InDelta(t, 0.8176, result.Probability, 1e-4)
	assert.True(t, result.Delayed)
}

func TestScorer_UnseenCategoryFailsInference(t *testing.T) {
	enc := fittedEncoder(t)
	scorer := NewScorer(models.FamilyForest, &stubModel{}, enc, 0.5)

	obs := sampleObservation()
	obs.Origin = "ZZZ"

	_, err := scorer.Score(obs)
	require.Error(t, err)
	var unseen *features.UnseenCategoryError
	assert.True(t, errors.As(err, &unseen))
}

func TestNewScorer_ThresholdFallback(t *testing.T) {
	enc := fittedEncoder(t)
	assert.Equal(t, DefaultThreshold, NewScorer(models.FamilyForest, &stubModel{}, enc, 0).Threshold)
	assert.Equal(t, DefaultThreshold, NewScorer(models.FamilyForest, &stubModel{}, enc, 1.5).Threshold)
	assert.Equal(t, 0.6, NewScorer(models.FamilyForest, &stubModel{}, enc, 0.6).Threshold)
}
