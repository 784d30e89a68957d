package dataset

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/montanaflynn/stats"
)

// CarrierSummary is one airline's share of the dataset
type CarrierSummary struct {
	Carrier   string  `json:"carrier"`
	Flights   int     `json:"flights"`
	DelayRate float64 `json:"delay_rate"`
}

// AirportCount is one origin airport's flight count
type AirportCount struct {
	Airport string `json:"airport"`
	Flights int    `json:"flights"`
}

// NumericSummary is a five-number summary plus the mean
type NumericSummary struct {
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
}

// Summary describes the eligible dataset before modeling. Informational
// only; nothing downstream consumes it.
type Summary struct {
	Rows         int              `json:"rows"`
	DelayedShare float64          `json:"delayed_share"`
	Carriers     []CarrierSummary `json:"carriers"`
	TopOrigins   []AirportCount   `json:"top_origins"`
	DelayMinutes NumericSummary   `json:"delay_minutes"`
	Distance     NumericSummary   `json:"distance"`
}

// topOriginCount caps the origin-airport listing
const topOriginCount = 10

// Summarize computes the descriptive dataset summary over eligible records
func Summarize(records []FlightRecord) (*Summary, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to summarize")
	}

	carriers := make([]string, len(records))
	origins := make([]string, len(records))
	delayed := make([]float64, len(records))
	delays := make([]float64, len(records))
	for i, r := range records {
		carriers[i] = r.Carrier
		origins[i] = r.Origin
		if r.ArrDelay > 0 {
			delayed[i] = 1
		}
		delays[i] = r.ArrDelay
	}

	df := dataframe.New(
		series.New(carriers, series.String, "carrier"),
		series.New(origins, series.String, "origin"),
		series.New(delayed, series.Float, "delayed"),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("failed to build summary frame: %w", df.Err)
	}

	summary := &Summary{
		Rows:         df.Nrow(),
		DelayedShare: df.Col("delayed").Mean(),
	}

	carrierStats, err := groupDelayRates(df)
	if err != nil {
		return nil, err
	}
	summary.Carriers = carrierStats

	topOrigins, err := groupOriginCounts(df)
	if err != nil {
		return nil, err
	}
	summary.TopOrigins = topOrigins

	summary.DelayMinutes, err = fiveNumber(delays)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize delay minutes: %w", err)
	}

	distances := make([]float64, 0, len(records))
	for _, r := range records {
		if !math.IsNaN(r.Distance) {
			distances = append(distances, r.Distance)
		}
	}
	if len(distances) > 0 {
		summary.Distance, err = fiveNumber(distances)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize distance: %w", err)
		}
	}

	return summary, nil
}

// groupDelayRates aggregates flight counts and delay rates per carrier
func groupDelayRates(df dataframe.DataFrame) ([]CarrierSummary, error) {
	groups := df.GroupBy("carrier")
	if groups.Err != nil {
		return nil, fmt.Errorf("failed to group by carrier: %w", groups.Err)
	}

	agg := groups.Aggregation(
		[]dataframe.AggregationType{dataframe.Aggregation_COUNT, dataframe.Aggregation_MEAN},
		[]string{"delayed", "delayed"},
	)
	if agg.Err != nil {
		return nil, fmt.Errorf("failed to aggregate carriers: %w", agg.Err)
	}

	names := agg.Col("carrier").Records()
	counts := agg.Col("delayed_COUNT").Float()
	rates := agg.Col("delayed_MEAN").Float()

	out := make([]CarrierSummary, len(names))
	for i := range names {
		out[i] = CarrierSummary{
			Carrier:   names[i],
			Flights:   int(counts[i]),
			DelayRate: rates[i],
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Flights != out[j].Flights {
			return out[i].Flights > out[j].Flights
		}
		return out[i].Carrier < out[j].Carrier
	})
	return out, nil
}

// groupOriginCounts counts flights per origin and keeps the busiest
func groupOriginCounts(df dataframe.DataFrame) ([]AirportCount, error) {
	groups := df.GroupBy("origin")
	if groups.Err != nil {
		return nil, fmt.Errorf("failed to group by origin: %w", groups.Err)
	}

	agg := groups.Aggregation(
		[]dataframe.AggregationType{dataframe.Aggregation_COUNT},
		[]string{"delayed"},
	)
	if agg.Err != nil {
		return nil, fmt.Errorf("failed to aggregate origins: %w", agg.Err)
	}

	names := agg.Col("origin").Records()
	counts := agg.Col("delayed_COUNT").Float()

	out := make([]AirportCount, len(names))
	for i := range names {
		out[i] = AirportCount{Airport: names[i], Flights: int(counts[i])}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Flights != out[j].Flights {
			return out[i].Flights > out[j].Flights
		}
		return out[i].Airport < out[j].Airport
	})
	if len(out) > topOriginCount {
		out = out[:topOriginCount]
	}
	return out, nil
}

// fiveNumber computes min, quartiles, max and mean of a numeric column
func fiveNumber(values []float64) (NumericSummary, error) {
	var s NumericSummary
	var err error

	if s.Min, err = stats.Min(values); err != nil {
		return s, err
	}
	if s.Q1, err = stats.Percentile(values, 25); err != nil {
		return s, err
	}
	if s.Median, err = stats.Median(values); err != nil {
		return s, err
	}
	if s.Q3, err = stats.Percentile(values, 75); err != nil {
		return s, err
	}
	if s.Max, err = stats.Max(values); err != nil {
		return s, err
	}
	if s.Mean, err = stats.Mean(values); err != nil {
		return s, err
	}
	return s, nil
}

// Format renders the summary as a printable block
func (s *Summary) Format() string {
	var b strings.Builder

	b.WriteString("=== Dataset Summary ===\n")
	b.WriteString(fmt.Sprintf("Eligible flights: %d\n", s.Rows))
	b.WriteString(fmt.Sprintf("Delayed share:    %.1f%%\n", s.DelayedShare*100))

	b.WriteString("\nCarriers (flights, delay rate):\n")
	for _, c := range s.Carriers {
		b.WriteString(fmt.Sprintf("  %-6s %7d  %5.1f%%\n", c.Carrier, c.Flights, c.DelayRate*100))
	}

	b.WriteString("\nBusiest origins:\n")
	for _, a := range s.TopOrigins {
		b.WriteString(fmt.Sprintf("  %-6s %7d\n", a.Airport, a.Flights))
	}

	b.WriteString(fmt.Sprintf("\nArrival delay minutes: min %.1f / q1 %.1f / median %.1f / q3 %.1f / max %.1f / mean %.1f\n",
		s.DelayMinutes.Min, s.DelayMinutes.Q1, s.DelayMinutes.Median, s.DelayMinutes.Q3, s.DelayMinutes.Max, s.DelayMinutes.Mean))
	b.WriteString(fmt.Sprintf("Distance miles:        min %.0f / q1 %.0f / median %.0f / q3 %.0f / max %.0f / mean %.0f\n",
		s.Distance.Min, s.Distance.Q1, s.Distance.Median, s.Distance.Q3, s.Distance.Max, s.Distance.Mean))

	return b.String()
}
