package features

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encoderTable() *Table {
	return &Table{
		N: 4,
		Cat: map[string][]string{
			ColCarrier:     {"UA", "AA", "DL", "UA"},
			ColOrigin:      {"ORD", "DFW", "ATL", "ORD"},
			ColDestination: {"SFO", "ORD", "JFK", "SFO"},
			ColSeason:      {SeasonOther, SeasonSummerHolidays, SeasonChristmasNewYear, SeasonOther},
			ColDepOccasion: {OccasionEarlyMorning, OccasionLateAfternoon, OccasionNight, OccasionEarlyMorning},
			ColArrOccasion: {OccasionLateMorning, OccasionEvening, OccasionNight, OccasionLateMorning},
		},
		Num: map[string][]float64{
			ColTaxiIn:   {5, 7, 9, 6},
			ColTaxiOut:  {15, 12, 18, 14},
			ColAirTime:  {120, 95, 105, 118},
			ColDistance: {700, 800, 760, 700},
		},
		Weekend: []bool{true, false, false, true},
		Delayed: []bool{true, false, true, false},
	}
}

func TestFitEncoder_AssignsSortedOneBasedCodes(t *testing.T) {
	enc, err := FitEncoder(encoderTable(), CategoricalColumns)
	require.NoError(t, err)

	// Codes follow ascending value order, starting at 1.
	for value, want := range map[string]int{"AA": 1, "DL": 2, "UA": 3} {
		code, err := enc.Code(ColCarrier, value)
		require.NoError(t, err)
		assert.Equal(t, want, code, "carrier %s", value)
	}

	assert.Equal(t, []string{"AA", "DL", "UA"}, enc.Vocabulary(ColCarrier))
	assert.Equal(t, []string{"ATL", "DFW", "ORD"}, enc.Vocabulary(ColOrigin))
	assert.Equal(t,
		[]string{SeasonChristmasNewYear, SeasonOther, SeasonSummerHolidays},
		enc.Vocabulary(ColSeason))
}

func TestFitEncoder_RejectsMissingValues(t *testing.T) {
	table := encoderTable()
	table.Cat[ColOrigin][1] = ""

	_, err := FitEncoder(table, CategoricalColumns)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing values at fit time")
	assert.Contains(t, err.Error(), ColOrigin)
}

func TestFitEncoder_RejectsUnknownColumn(t *testing.T) {
	_, err := FitEncoder(encoderTable(), []string{"tail_number"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tail_number")
}

func TestEncoder_CodeValueRoundTrip(t *testing.T) {
	enc, err := FitEncoder(encoderTable(), CategoricalColumns)
	require.NoError(t, err)

	for _, col := range CategoricalColumns {
		for _, value := range enc.Vocabulary(col) {
			code, err := enc.Code(col, value)
			require.NoError(t, err)
			back, err := enc.Value(col, code)
			require.NoError(t, err)
			assert.Equal(t, value, back)
		}
	}

	_, err = enc.Value(ColCarrier, 99)
	assert.Error(t, err)
	_, err = enc.Code("tail_number", "N12345")
	assert.Error(t, err)
}

func TestEncoder_UnseenCategoryFailsLoudly(t *testing.T) {
	enc, err := FitEncoder(encoderTable(), CategoricalColumns)
	require.NoError(t, err)

	_, err = enc.Code(ColCarrier, "ZZ")
	require.Error(t, err)

	var unseen *UnseenCategoryError
	require.True(t, errors.As(err, &unseen))
	assert.Equal(t, ColCarrier, unseen.Column)
	assert.Equal(t, "ZZ", unseen.Value)
	assert.Contains(t, err.Error(), `"ZZ"`)
	assert.Contains(t, err.Error(), `"carrier"`)
}

func TestEncoder_TransformColumn(t *testing.T) {
	enc, err := FitEncoder(encoderTable(), CategoricalColumns)
	require.NoError(t, err)

	t.Run("encodes known values", func(t *testing.T) {
		out, err := enc.TransformColumn(ColCarrier, []string{"DL", "UA", "AA"})
		require.NoError(t, err)
		assert.Equal(t, []float64{2, 3, 1}, out)
	})

	t.Run("unseen value fails the whole column", func(t *testing.T) {
		_, err := enc.TransformColumn(ColCarrier, []string{"AA", "WN"})
		require.Error(t, err)
		var unseen *UnseenCategoryError
		assert.True(t, errors.As(err, &unseen))
	})

	t.Run("missing value fails", func(t *testing.T) {
		_, err := enc.TransformColumn(ColCarrier, []string{"AA", ""})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing value")
	})
}

func TestEncoder_Matrix(t *testing.T) {
	table := encoderTable()
	enc, err := FitEncoder(table, CategoricalColumns)
	require.NoError(t, err)

	X, y, names, err := enc.Matrix(table)
	require.NoError(t, err)

	require.Len(t, X, 4)
	assert.Equal(t, FeatureColumns, names)
	assert.Equal(t, []bool{true, false, true, false}, y)

	// UA ORD SFO, weekend, other season, early morning out, late morning in.
	assert.Equal(t, []float64{3, 3, 3, 5, 15, 120, 700, 1, 2, 1, 2}, X[0])
	// DL ATL JFK on a weekday in the Christmas window.
	assert.Equal(t, []float64{2, 1, 1, 9, 18, 105, 760, 0, 1, 3, 3}, X[2])
}

func TestEncoder_MatrixFailsOnUnseenCategory(t *testing.T) {
	enc, err := FitEncoder(encoderTable(), CategoricalColumns)
	require.NoError(t, err)

	fresh := encoderTable()
	fresh.Cat[ColDestination][3] = "LAX"

	_, _, _, err = enc.Matrix(fresh)
	require.Error(t, err)
	var unseen *UnseenCategoryError
	require.True(t, errors.As(err, &unseen))
	assert.Equal(t, ColDestination, unseen.Column)
	assert.Equal(t, "LAX", unseen.Value)
}

func TestEncoder_SaveLoad(t *testing.T) {
	enc, err := FitEncoder(encoderTable(), CategoricalColumns)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "encoder.json")
	require.NoError(t, enc.Save(path))

	loaded, err := LoadEncoder(path)
	require.NoError(t, err)
	assert.Equal(t, enc.Columns, loaded.Columns)
	assert.Equal(t, enc.Mapping, loaded.Mapping)

	_, err = LoadEncoder(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
