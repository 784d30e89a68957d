package ml

import (
	"fmt"
	"math"

	dataset "github.com/aeroml/flightdelay/pipelines/Dataset"
	features "github.com/aeroml/flightdelay/pipelines/Features"
	"github.com/aeroml/flightdelay/pkg/models"
)

// Observation is one hand-specified flight with every modeling field
// populated and no label
type Observation struct {
	Carrier     string  `json:"carrier"`
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	TaxiIn      float64 `json:"taxi_in"`
	TaxiOut     float64 `json:"taxi_out"`
	AirTime     float64 `json:"air_time"`
	Distance    float64 `json:"distance"`
	IsWeekend   bool    `json:"is_weekend"`
	Season      string  `json:"season"`
	DepOccasion string  `json:"departure_occasion"`
	ArrOccasion string  `json:"arrival_occasion"`
}

// ObservationFromRecord derives the calendar and clock features of a
// raw record, failing when a clock value has no valid hour
func ObservationFromRecord(rec dataset.FlightRecord) (Observation, error) {
	if rec.Date.IsZero() {
		return Observation{}, fmt.Errorf("flight date is required")
	}
	depHour, ok := features.ToHour(rec.DepTime)
	if !ok {
		return Observation{}, fmt.Errorf("departure time %q has no valid hour", rec.DepTime)
	}
	arrHour, ok := features.ToHour(rec.ArrTime)
	if !ok {
		return Observation{}, fmt.Errorf("arrival time %q has no valid hour", rec.ArrTime)
	}
	return Observation{
		Carrier:     rec.Carrier,
		Origin:      rec.Origin,
		Destination: rec.Destination,
		TaxiIn:      rec.TaxiIn,
		TaxiOut:     rec.TaxiOut,
		AirTime:     rec.AirTime,
		Distance:    rec.Distance,
		IsWeekend:   features.IsWeekend(rec.Date),
		Season:      features.SeasonOf(rec.Date),
		DepOccasion: features.Occasion(depHour),
		ArrOccasion: features.Occasion(arrHour),
	}, nil
}

func (o Observation) categorical(col string) string {
	switch col {
	case features.ColCarrier:
		return o.Carrier
	case features.ColOrigin:
		return o.Origin
	case features.ColDestination:
		return o.Destination
	case features.ColSeason:
		return o.Season
	case features.ColDepOccasion:
		return o.DepOccasion
	case features.ColArrOccasion:
		return o.ArrOccasion
	}
	return ""
}

func (o Observation) numeric(col string) float64 {
	switch col {
	case features.ColTaxiIn:
		return o.TaxiIn
	case features.ColTaxiOut:
		return o.TaxiOut
	case features.ColAirTime:
		return o.AirTime
	case features.ColDistance:
		return o.Distance
	}
	return math.NaN()
}

// Vector encodes the observation in the column order the models were
// trained on. A categorical value outside the fitted vocabulary fails
// with the encoder's unseen-category error instead of producing a
// probability.
func (o Observation) Vector(enc *features.Encoder) ([]float64, error) {
	vec := make([]float64, 0, len(features.FeatureColumns))
	for _, col := range features.FeatureColumns {
		switch col {
		case features.ColCarrier, features.ColOrigin, features.ColDestination,
			features.ColSeason, features.ColDepOccasion, features.ColArrOccasion:
			value := o.categorical(col)
			if value == "" {
				return nil, fmt.Errorf("field %q is required", col)
			}
			code, err := enc.Code(col, value)
			if err != nil {
				return nil, err
			}
			vec = append(vec, float64(code))
		case features.ColIsWeekend:
			if o.IsWeekend {
				vec = append(vec, 1)
			} else {
				vec = append(vec, 0)
			}
		default:
			v := o.numeric(col)
			if math.IsNaN(v) {
				return nil, fmt.Errorf("field %q is required", col)
			}
			vec = append(vec, v)
		}
	}
	return vec, nil
}

// Scorer binds a fitted model to the encoding it was trained with for
// single-record inference
type Scorer struct {
	Family    models.Family
	Model     BinaryClassifier
	Encoder   *features.Encoder
	Threshold float64
}

// NewScorer creates a scorer around the winning model of a run
func NewScorer(family models.Family, model BinaryClassifier, enc *features.Encoder, threshold float64) *Scorer {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	return &Scorer{Family: family, Model: model, Encoder: enc, Threshold: threshold}
}

// Score produces the delay probability for one unseen flight
func (s *Scorer) Score(o Observation) (*models.InferenceResult, error) {
	vec, err := o.Vector(s.Encoder)
	if err != nil {
		return nil, err
	}
	p, err := s.Model.PredictProba(vec)
	if err != nil {
		return nil, err
	}
	return &models.InferenceResult{
		Family:      s.Family,
		Probability: p,
		Delayed:     p >= s.Threshold,
	}, nil
}
