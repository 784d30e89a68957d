package features

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Day-part buckets for scheduled clock times
const (
	OccasionEarlyMorning   = "early_morning"   // [5, 8)
	OccasionLateMorning    = "late_morning"    // [8, 12)
	OccasionEarlyAfternoon = "early_afternoon" // [12, 15)
	OccasionLateAfternoon  = "late_afternoon"  // [15, 18)
	OccasionEvening        = "evening"         // [18, 21)
	OccasionNight          = "night"           // everything else
)

// Season labels for flight dates
const (
	SeasonChristmasNewYear = "christmas_new_year"
	SeasonSummerHolidays   = "summer_holidays"
	SeasonOther            = "other"
)

// ToHour extracts the hour from a raw HHMM clock value. The value is
// parsed numerically, zero-padded to four digits and the leading two
// digits taken as the hour. 2400 is normalized to hour 0. Unparsable,
// negative or out-of-range input reports ok=false; the function never
// panics on dirty data.
func ToHour(raw string) (hour int, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "na") {
		return 0, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}

	padded := fmt.Sprintf("%04d", int(v))
	if len(padded) > 4 {
		return 0, false
	}

	hour, err = strconv.Atoi(padded[:2])
	if err != nil {
		return 0, false
	}
	if hour == 24 { // 2400 is midnight
		hour = 0
	}
	if hour < 0 || hour > 23 {
		return 0, false
	}
	return hour, true
}

// Occasion buckets an hour of day into one of six day parts. Every hour
// maps to exactly one bucket; hours outside the named ranges are night.
func Occasion(hour int) string {
	switch {
	case hour >= 5 && hour < 8:
		return OccasionEarlyMorning
	case hour >= 8 && hour < 12:
		return OccasionLateMorning
	case hour >= 12 && hour < 15:
		return OccasionEarlyAfternoon
	case hour >= 15 && hour < 18:
		return OccasionLateAfternoon
	case hour >= 18 && hour < 21:
		return OccasionEvening
	default:
		return OccasionNight
	}
}

// OccasionOfRaw derives the day part from a raw clock value. Missing or
// unparsable input yields the empty string.
func OccasionOfRaw(raw string) string {
	hour, ok := ToHour(raw)
	if !ok {
		return ""
	}
	return Occasion(hour)
}

// IsWeekend reports whether the date falls on a Saturday or Sunday
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// SeasonOf labels a date's travel season. The Christmas/New Year window
// (Dec 20 through Jan 5) takes precedence over everything else; June
// through August is the summer holiday season.
func SeasonOf(t time.Time) string {
	month, day := t.Month(), t.Day()
	if (month == time.December && day >= 20) || (month == time.January && day <= 5) {
		return SeasonChristmasNewYear
	}
	if month >= time.June && month <= time.August {
		return SeasonSummerHolidays
	}
	return SeasonOther
}

// IsDelayed reports whether an arrival delay counts as delayed. Only a
// strictly positive delay does; on-time and early arrivals do not.
func IsDelayed(delayMinutes float64) bool {
	return delayMinutes > 0
}

// OccasionColumn derives day parts for a column of raw clock values
func OccasionColumn(raw []string) []string {
	out := make([]string, len(raw))
	for i, v := range raw {
		out[i] = OccasionOfRaw(v)
	}
	return out
}

// WeekendColumn derives weekend flags for a column of dates
func WeekendColumn(dates []time.Time) []bool {
	out := make([]bool, len(dates))
	for i, d := range dates {
		out[i] = IsWeekend(d)
	}
	return out
}

// SeasonColumn derives season labels for a column of dates
func SeasonColumn(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = SeasonOf(d)
	}
	return out
}

// DelayedColumn derives the binary label for a column of delay minutes
func DelayedColumn(delays []float64) []bool {
	out := make([]bool, len(delays))
	for i, d := range delays {
		out[i] = IsDelayed(d)
	}
	return out
}
