package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dataset "github.com/aeroml/flightdelay/pipelines/Dataset"
)

func tableFixtureRecords() []dataset.FlightRecord {
	saturday := time.Date(2023, 12, 23, 0, 0, 0, 0, time.UTC)
	tuesday := time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC)

	return []dataset.FlightRecord{
		{
			Carrier: "UA", Origin: "ORD", Destination: "SFO",
			DepTime: "0755", ArrTime: "1102",
			TaxiIn: 8, TaxiOut: 21, AirTime: 255, Distance: 1846,
			Date: saturday, ArrDelay: 14,
		},
		{
			Carrier: "AA", Origin: "DFW", Destination: "LGA",
			DepTime: "", ArrTime: "1745", // missing departure clock
			TaxiIn: 12, TaxiOut: 15, AirTime: 170, Distance: 1389,
			Date: tuesday, ArrDelay: -6,
		},
		{
			Carrier: "DL", Origin: "ATL", Destination: "MCO",
			DepTime: "1504", ArrTime: "1640",
			TaxiIn: math.NaN(), TaxiOut: 11, AirTime: 71, Distance: 404,
			Date: tuesday, ArrDelay: 0,
		},
	}
}

func TestBuildTable(t *testing.T) {
	table := BuildTable(tableFixtureRecords())

	require.Equal(t, 3, table.N)

	assert.Equal(t, []string{"UA", "AA", "DL"}, table.Cat[ColCarrier])
	assert.Equal(t, []string{"ORD", "DFW", "ATL"}, table.Cat[ColOrigin])

	assert.Equal(t, []string{OccasionEarlyMorning, "", OccasionLateAfternoon}, table.Cat[ColDepOccasion])
	assert.Equal(t, []string{OccasionLateMorning, OccasionLateAfternoon, OccasionLateAfternoon}, table.Cat[ColArrOccasion])

	assert.Equal(t, []string{SeasonChristmasNewYear, SeasonOther, SeasonOther}, table.Cat[ColSeason])
	assert.Equal(t, []bool{true, false, false}, table.Weekend)

	// Only strictly positive delays are labeled delayed.
	assert.Equal(t, []bool{true, false, false}, table.Delayed)

	assert.Equal(t, 8.0, table.Num[ColTaxiIn][0])
	assert.True(t, math.IsNaN(table.Num[ColTaxiIn][2]))
}

func TestTable_MissingnessReport(t *testing.T) {
	table := BuildTable(tableFixtureRecords())
	report := table.MissingnessReport()

	byColumn := make(map[string]int)
	percents := make(map[string]float64)
	for _, row := range report {
		byColumn[row.Column] = row.Missing
		percents[row.Column] = row.Percent
	}

	assert.Equal(t, 1, byColumn[ColDepOccasion])
	assert.Equal(t, 1, byColumn[ColTaxiIn])
	assert.Equal(t, 0, byColumn[ColCarrier])
	assert.Equal(t, 0, byColumn[ColIsWeekend])
	assert.Equal(t, 0, byColumn[ColIsDelayed])

	assert.InDelta(t, 100.0/3.0, percents[ColDepOccasion], 1e-9)
	assert.InDelta(t, 0.0, percents[ColCarrier], 1e-9)

	// One entry per projected column plus the label.
	assert.Len(t, report, len(FeatureColumns)+1)
}

func TestTable_Subset(t *testing.T) {
	table := BuildTable(tableFixtureRecords())

	subset, err := table.Subset([]bool{true, false, true})
	require.NoError(t, err)

	assert.Equal(t, 2, subset.N)
	assert.Equal(t, []string{"UA", "DL"}, subset.Cat[ColCarrier])
	assert.Equal(t, []bool{true, false}, subset.Delayed)
	assert.Len(t, subset.Num[ColDistance], 2)

	t.Run("mask length must match", func(t *testing.T) {
		_, err := table.Subset([]bool{true})
		require.Error(t, err)
	})
}
