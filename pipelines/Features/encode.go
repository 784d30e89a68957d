package features

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// UnseenCategoryError reports a categorical value with no fitted code.
// Encoding fails loudly instead of silently dropping or hashing unknown
// values, so out-of-vocabulary data can never leak into a model unnoticed.
type UnseenCategoryError struct {
	Column string
	Value  string
}

func (e *UnseenCategoryError) Error() string {
	return fmt.Sprintf("unseen category %q in column %q", e.Value, e.Column)
}

// Encoder maps categorical values to stable positive integer codes.
// Codes are assigned 1..n in ascending value order at fit time; the same
// fitted map serves training, evaluation and single-record inference.
type Encoder struct {
	Columns []string                  `json:"columns"`
	Mapping map[string]map[string]int `json:"mapping"`
}

// FitEncoder learns the value-to-code mapping for the given categorical
// columns of a table. Missing values must have been cleaned away first.
func FitEncoder(t *Table, columns []string) (*Encoder, error) {
	enc := &Encoder{
		Columns: append([]string{}, columns...),
		Mapping: make(map[string]map[string]int, len(columns)),
	}

	for _, col := range columns {
		values, ok := t.Cat[col]
		if !ok {
			return nil, fmt.Errorf("categorical column %q not present in table", col)
		}

		distinct := make(map[string]bool)
		for _, v := range values {
			if v == "" {
				return nil, fmt.Errorf("column %q still contains missing values at fit time", col)
			}
			distinct[v] = true
		}
		if len(distinct) == 0 {
			return nil, fmt.Errorf("column %q has no values to encode", col)
		}

		ordered := make([]string, 0, len(distinct))
		for v := range distinct {
			ordered = append(ordered, v)
		}
		sort.Strings(ordered)

		codes := make(map[string]int, len(ordered))
		for i, v := range ordered {
			codes[v] = i + 1
		}
		enc.Mapping[col] = codes
	}
	return enc, nil
}

// Code returns the fitted code for a value
func (e *Encoder) Code(column, value string) (int, error) {
	codes, ok := e.Mapping[column]
	if !ok {
		return 0, fmt.Errorf("column %q was not fitted", column)
	}
	code, ok := codes[value]
	if !ok {
		return 0, &UnseenCategoryError{Column: column, Value: value}
	}
	return code, nil
}

// Value inverts a code back to its categorical value
func (e *Encoder) Value(column string, code int) (string, error) {
	codes, ok := e.Mapping[column]
	if !ok {
		return "", fmt.Errorf("column %q was not fitted", column)
	}
	for v, c := range codes {
		if c == code {
			return v, nil
		}
	}
	return "", fmt.Errorf("column %q has no code %d", column, code)
}

// Vocabulary returns the fitted values of a column in code order
func (e *Encoder) Vocabulary(column string) []string {
	codes, ok := e.Mapping[column]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(codes))
	for v := range codes {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// TransformColumn encodes one column of values. Any value outside the
// fitted vocabulary fails the whole transform with *UnseenCategoryError.
func (e *Encoder) TransformColumn(column string, values []string) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		if v == "" {
			return nil, fmt.Errorf("missing value in column %q cannot be encoded", column)
		}
		code, err := e.Code(column, v)
		if err != nil {
			return nil, err
		}
		out[i] = float64(code)
	}
	return out, nil
}

// Matrix assembles the design matrix, labels and feature names from a
// cleaned table, encoding categorical columns through the fitted map.
// Feature order follows FeatureColumns; the weekend flag encodes as 0/1.
func (e *Encoder) Matrix(t *Table) (X [][]float64, y []bool, featureNames []string, err error) {
	columns := make(map[string][]float64, len(FeatureColumns))

	for _, col := range FeatureColumns {
		switch {
		case t.Cat[col] != nil:
			encoded, err := e.TransformColumn(col, t.Cat[col])
			if err != nil {
				return nil, nil, nil, err
			}
			columns[col] = encoded
		case t.Num[col] != nil:
			columns[col] = t.Num[col]
		case col == ColIsWeekend:
			flags := make([]float64, t.N)
			for i, w := range t.Weekend {
				if w {
					flags[i] = 1
				}
			}
			columns[col] = flags
		default:
			return nil, nil, nil, fmt.Errorf("column %q not present in table", col)
		}
	}

	X = make([][]float64, t.N)
	for i := 0; i < t.N; i++ {
		row := make([]float64, len(FeatureColumns))
		for j, col := range FeatureColumns {
			row[j] = columns[col][i]
		}
		X[i] = row
	}

	y = append([]bool{}, t.Delayed...)
	featureNames = append([]string{}, FeatureColumns...)
	return X, y, featureNames, nil
}

// Save writes the fitted encoder to a JSON file
func (e *Encoder) Save(path string) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal encoder: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write encoder file: %w", err)
	}
	return nil
}

// LoadEncoder reads a fitted encoder from a JSON file
func LoadEncoder(path string) (*Encoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoder file: %w", err)
	}
	var enc Encoder
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("failed to parse encoder file: %w", err)
	}
	return &enc, nil
}
