package features

import (
	"fmt"
	"math"
	"time"

	dataset "github.com/aeroml/flightdelay/pipelines/Dataset"
	"github.com/aeroml/flightdelay/pkg/models"
)

// Modeling column names, in design-matrix order
const (
	ColCarrier     = "carrier"
	ColOrigin      = "origin"
	ColDestination = "destination"
	ColTaxiIn      = "taxi_in"
	ColTaxiOut     = "taxi_out"
	ColAirTime     = "air_time"
	ColDistance    = "distance"
	ColIsWeekend   = "is_weekend"
	ColSeason      = "season"
	ColDepOccasion = "departure_occasion"
	ColArrOccasion = "arrival_occasion"
	ColIsDelayed   = "is_delayed"
)

// FeatureColumns is the fixed projection used for modeling, in order
var FeatureColumns = []string{
	ColCarrier, ColOrigin, ColDestination,
	ColTaxiIn, ColTaxiOut, ColAirTime, ColDistance,
	ColIsWeekend, ColSeason, ColDepOccasion, ColArrOccasion,
}

// CategoricalColumns are the features that require encoding
var CategoricalColumns = []string{
	ColCarrier, ColOrigin, ColDestination,
	ColSeason, ColDepOccasion, ColArrOccasion,
}

// NumericColumns are the features subject to the outlier mask
var NumericColumns = []string{ColTaxiIn, ColTaxiOut, ColAirTime, ColDistance}

// Table is the column-oriented feature table. Categorical columns use ""
// for missing values, numeric columns use NaN. The weekend flag and label
// cannot be missing once derived.
type Table struct {
	N       int
	Cat     map[string][]string
	Num     map[string][]float64
	Weekend []bool
	Delayed []bool
}

// BuildTable derives the feature table from training-eligible records
func BuildTable(records []dataset.FlightRecord) *Table {
	n := len(records)
	carriers := make([]string, n)
	origins := make([]string, n)
	dests := make([]string, n)
	depTimes := make([]string, n)
	arrTimes := make([]string, n)
	taxiIn := make([]float64, n)
	taxiOut := make([]float64, n)
	airTime := make([]float64, n)
	distance := make([]float64, n)
	dates := make([]time.Time, n)
	delays := make([]float64, n)

	for i, r := range records {
		carriers[i] = r.Carrier
		origins[i] = r.Origin
		dests[i] = r.Destination
		depTimes[i] = r.DepTime
		arrTimes[i] = r.ArrTime
		taxiIn[i] = r.TaxiIn
		taxiOut[i] = r.TaxiOut
		airTime[i] = r.AirTime
		distance[i] = r.Distance
		dates[i] = r.Date
		delays[i] = r.ArrDelay
	}

	return &Table{
		N: n,
		Cat: map[string][]string{
			ColCarrier:     carriers,
			ColOrigin:      origins,
			ColDestination: dests,
			ColSeason:      SeasonColumn(dates),
			ColDepOccasion: OccasionColumn(depTimes),
			ColArrOccasion: OccasionColumn(arrTimes),
		},
		Num: map[string][]float64{
			ColTaxiIn:   taxiIn,
			ColTaxiOut:  taxiOut,
			ColAirTime:  airTime,
			ColDistance: distance,
		},
		Weekend: WeekendColumn(dates),
		Delayed: DelayedColumn(delays),
	}
}

// MissingnessReport counts missing values per projected column. It is
// informational and mutates nothing.
func (t *Table) MissingnessReport() []models.ColumnMissing {
	report := make([]models.ColumnMissing, 0, len(FeatureColumns)+1)

	for _, col := range FeatureColumns {
		missing := 0
		switch {
		case t.Cat[col] != nil:
			for _, v := range t.Cat[col] {
				if v == "" {
					missing++
				}
			}
		case t.Num[col] != nil:
			for _, v := range t.Num[col] {
				if math.IsNaN(v) {
					missing++
				}
			}
		}
		report = append(report, columnMissing(col, missing, t.N))
	}
	report = append(report, columnMissing(ColIsDelayed, 0, t.N))
	return report
}

func columnMissing(col string, missing, n int) models.ColumnMissing {
	percent := 0.0
	if n > 0 {
		percent = float64(missing) / float64(n) * 100
	}
	return models.ColumnMissing{Column: col, Missing: missing, Percent: percent}
}

// Subset returns a new table containing only the rows where keep is true
func (t *Table) Subset(keep []bool) (*Table, error) {
	if len(keep) != t.N {
		return nil, fmt.Errorf("keep mask has %d entries for %d rows", len(keep), t.N)
	}

	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}

	out := &Table{
		N:       kept,
		Cat:     make(map[string][]string, len(t.Cat)),
		Num:     make(map[string][]float64, len(t.Num)),
		Weekend: make([]bool, 0, kept),
		Delayed: make([]bool, 0, kept),
	}
	for col := range t.Cat {
		out.Cat[col] = make([]string, 0, kept)
	}
	for col := range t.Num {
		out.Num[col] = make([]float64, 0, kept)
	}

	for i, k := range keep {
		if !k {
			continue
		}
		for col, values := range t.Cat {
			out.Cat[col] = append(out.Cat[col], values[i])
		}
		for col, values := range t.Num {
			out.Num[col] = append(out.Num[col], values[i])
		}
		out.Weekend = append(out.Weekend, t.Weekend[i])
		out.Delayed = append(out.Delayed, t.Delayed[i])
	}
	return out, nil
}
