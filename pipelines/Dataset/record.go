package dataset

import (
	"math"
	"time"
)

// FlightRecord is one historical flight as ingested. Numeric fields use
// NaN for missing values, raw clock times use the empty string.
type FlightRecord struct {
	Carrier     string    `json:"carrier"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	DepTime     string    `json:"dep_time"` // raw HHMM clock value
	ArrTime     string    `json:"arr_time"`
	TaxiOut     float64   `json:"taxi_out"` // minutes
	TaxiIn      float64   `json:"taxi_in"`
	AirTime     float64   `json:"air_time"`
	Distance    float64   `json:"distance"`
	Date        time.Time `json:"date"`
	ArrDelay    float64   `json:"arr_delay"` // minutes, negative = early
	Cancelled   bool      `json:"cancelled"`
	Diverted    bool      `json:"diverted"`
}

// TrainingEligible reports whether the record may contribute to training:
// not cancelled, not diverted, and with a known arrival delay.
func (r FlightRecord) TrainingEligible() bool {
	return !r.Cancelled && !r.Diverted && !math.IsNaN(r.ArrDelay)
}

// LoadReport accounts for every row the source saw
type LoadReport struct {
	RowsTotal        int `json:"rows_total"`
	RowsEligible     int `json:"rows_eligible"`
	RowsCancelled    int `json:"rows_cancelled"`
	RowsDiverted     int `json:"rows_diverted"`
	RowsMissingLabel int `json:"rows_missing_label"`
	RowsBadDate      int `json:"rows_bad_date"`
}

// Source yields training-eligible flight records from some backing store.
// Implementations apply the eligibility rule and account for exclusions
// in the returned report.
type Source interface {
	Load() ([]FlightRecord, *LoadReport, error)
}
