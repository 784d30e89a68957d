package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CSVSource loads flight records from a flat CSV file with a header row.
// Column lookup is case-insensitive and tolerates the usual on-time
// performance dataset aliases.
type CSVSource struct {
	Path    string
	MaxRows int // eligible-row cap, 0 = unlimited
}

// NewCSVSource creates a CSV-backed record source
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{Path: path}
}

// columnAliases maps canonical column names to accepted header spellings
var columnAliases = map[string][]string{
	"carrier":     {"carrier", "op_unique_carrier", "unique_carrier", "op_carrier", "airline"},
	"origin":      {"origin", "origin_airport"},
	"destination": {"dest", "destination", "dest_airport"},
	"dep_time":    {"dep_time", "deptime"},
	"arr_time":    {"arr_time", "arrtime"},
	"taxi_out":    {"taxi_out", "taxiout"},
	"taxi_in":     {"taxi_in", "taxiin"},
	"air_time":    {"air_time", "airtime"},
	"distance":    {"distance"},
	"date":        {"fl_date", "flight_date", "date"},
	"arr_delay":   {"arr_delay", "arrdelay", "arrival_delay"},
	"cancelled":   {"cancelled", "canceled"},
	"diverted":    {"diverted"},
}

// missingTokens are cell values treated as missing
var missingTokens = map[string]bool{"": true, "na": true, "null": true, "nan": true}

// Load reads the file, filters to training-eligible records and reports
// every exclusion. Malformed numeric cells become missing values rather
// than load failures.
func (s *CSVSource) Load() ([]FlightRecord, *LoadReport, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols, err := resolveColumns(header)
	if err != nil {
		return nil, nil, err
	}

	report := &LoadReport{}
	var records []FlightRecord

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read CSV row %d: %w", report.RowsTotal+2, err)
		}
		report.RowsTotal++

		rec, ok := parseRecord(row, cols, report)
		if !ok {
			continue
		}
		report.RowsEligible++
		records = append(records, rec)

		if s.MaxRows > 0 && len(records) >= s.MaxRows {
			break
		}
	}

	if len(records) == 0 {
		return nil, report, fmt.Errorf("no training-eligible rows in %s", s.Path)
	}
	return records, report, nil
}

// parseRecord converts one CSV row, applying the eligibility rule
func parseRecord(row []string, cols map[string]int, report *LoadReport) (FlightRecord, bool) {
	cell := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	rec := FlightRecord{
		Carrier:     cell("carrier"),
		Origin:      cell("origin"),
		Destination: cell("destination"),
		DepTime:     missingToEmpty(cell("dep_time")),
		ArrTime:     missingToEmpty(cell("arr_time")),
		TaxiOut:     parseFloatCell(cell("taxi_out")),
		TaxiIn:      parseFloatCell(cell("taxi_in")),
		AirTime:     parseFloatCell(cell("air_time")),
		Distance:    parseFloatCell(cell("distance")),
		ArrDelay:    parseFloatCell(cell("arr_delay")),
		Cancelled:   parseFlagCell(cell("cancelled")),
		Diverted:    parseFlagCell(cell("diverted")),
	}

	date, ok := parseDateCell(cell("date"))
	if !ok {
		report.RowsBadDate++
		return FlightRecord{}, false
	}
	rec.Date = date

	switch {
	case rec.Cancelled:
		report.RowsCancelled++
		return FlightRecord{}, false
	case rec.Diverted:
		report.RowsDiverted++
		return FlightRecord{}, false
	case math.IsNaN(rec.ArrDelay):
		report.RowsMissingLabel++
		return FlightRecord{}, false
	}
	return rec, true
}

// resolveColumns maps canonical names to header positions
func resolveColumns(header []string) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[strings.ToLower(strings.TrimSpace(name))] = i
	}

	cols := make(map[string]int, len(columnAliases))
	var missing []string
	for canonical, aliases := range columnAliases {
		found := false
		for _, alias := range aliases {
			if idx, ok := positions[alias]; ok {
				cols[canonical] = idx
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, canonical)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("CSV header is missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func missingToEmpty(s string) string {
	if missingTokens[strings.ToLower(s)] {
		return ""
	}
	return s
}

// parseFloatCell returns NaN for missing or malformed cells
func parseFloatCell(s string) float64 {
	if missingTokens[strings.ToLower(s)] {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// parseFlagCell reads 0/1 style flags, including "1.00" exports
func parseFlagCell(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "t", "yes", "y":
		return true
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v != 0
	}
	return false
}

// dateFormats are tried in order when parsing flight dates
var dateFormats = []string{"2006-01-02", "1/2/2006", "01/02/2006", "2006/01/02"}

func parseDateCell(s string) (time.Time, bool) {
	if missingTokens[strings.ToLower(s)] {
		return time.Time{}, false
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
