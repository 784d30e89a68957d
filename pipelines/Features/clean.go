package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultSigmas is the outlier cut applied to the numeric columns
const DefaultSigmas = 6.0

// ColumnStat holds the pre-removal moments of one numeric column
type ColumnStat struct {
	Column  string  `json:"column"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Missing int     `json:"missing"`
}

// CleanReport accounts for every row the cleaning stage dropped
type CleanReport struct {
	Stats          []ColumnStat `json:"stats"`
	OutlierRows    int          `json:"outlier_rows"`
	IncompleteRows int          `json:"incomplete_rows"`
	RowsIn         int          `json:"rows_in"`
	RowsOut        int          `json:"rows_out"`
}

// Clean removes outlying and incomplete rows in a single pass. For each
// numeric modeling column the mean and sample standard deviation are
// computed once, over non-missing values, before any row is removed; a
// row is an outlier when any such column deviates from its mean by more
// than sigmas standard deviations. A row is incomplete when any projected
// feature is missing. A row matching both masks counts as an outlier.
func Clean(t *Table, sigmas float64) (*Table, *CleanReport, error) {
	if sigmas <= 0 {
		sigmas = DefaultSigmas
	}

	report := &CleanReport{RowsIn: t.N}

	stats := make(map[string]ColumnStat, len(NumericColumns))
	for _, col := range NumericColumns {
		values, ok := t.Num[col]
		if !ok {
			return nil, nil, fmt.Errorf("numeric column %q not present in table", col)
		}
		stats[col] = columnStat(col, values)
		report.Stats = append(report.Stats, stats[col])
	}

	keep := make([]bool, t.N)
	for i := 0; i < t.N; i++ {
		switch {
		case t.isOutlierRow(i, stats, sigmas):
			report.OutlierRows++
		case t.isIncompleteRow(i):
			report.IncompleteRows++
		default:
			keep[i] = true
		}
	}

	cleaned, err := t.Subset(keep)
	if err != nil {
		return nil, nil, err
	}
	report.RowsOut = cleaned.N
	return cleaned, report, nil
}

// columnStat computes mean and sample standard deviation over the
// non-missing values of a column
func columnStat(col string, values []float64) ColumnStat {
	present := make([]float64, 0, len(values))
	missing := 0
	for _, v := range values {
		if math.IsNaN(v) {
			missing++
			continue
		}
		present = append(present, v)
	}

	cs := ColumnStat{Column: col, Missing: missing}
	if len(present) == 0 {
		return cs
	}
	cs.Mean = stat.Mean(present, nil)
	if len(present) > 1 {
		cs.Std = stat.StdDev(present, nil)
	}
	return cs
}

// isOutlierRow reports whether any numeric column flags row i
func (t *Table) isOutlierRow(i int, stats map[string]ColumnStat, sigmas float64) bool {
	for _, col := range NumericColumns {
		cs := stats[col]
		if cs.Std == 0 {
			continue
		}
		v := t.Num[col][i]
		if math.IsNaN(v) {
			continue
		}
		if math.Abs(v-cs.Mean) > sigmas*cs.Std {
			return true
		}
	}
	return false
}

// isIncompleteRow reports whether row i is missing any projected feature
func (t *Table) isIncompleteRow(i int) bool {
	for _, col := range CategoricalColumns {
		if t.Cat[col][i] == "" {
			return true
		}
	}
	for _, col := range NumericColumns {
		if math.IsNaN(t.Num[col][i]) {
			return true
		}
	}
	return false
}
