// Package timeseries provides the core time series types shared by the
// alignment and correlation layers.
package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Frequency identifies the native sampling frequency of a series.
type Frequency string

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
)

// Transform identifies how a series is normalized before correlating.
type Transform string

const (
	// Level passes values through unchanged.
	Level Transform = "level"
	// Return computes period-over-period percent change.
	Return Transform = "return"
	// YoY computes percent change versus the same period one year prior.
	YoY Transform = "yoy"
)

// ParseTransform validates a transform name from configuration.
func ParseTransform(s string) (Transform, error) {
	switch Transform(s) {
	case Level, Return, YoY:
		return Transform(s), nil
	case "":
		return Level, nil
	default:
		return "", fmt.Errorf("unknown transform: %q", s)
	}
}

// ParseFrequency validates a frequency name from configuration.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case Daily, Weekly, Monthly, Quarterly:
		return Frequency(s), nil
	case "":
		return Daily, nil
	default:
		return "", fmt.Errorf("unknown frequency: %q", s)
	}
}

// Observation is one (timestamp, value) point.
type Observation struct {
	Date  time.Time
	Value float64
}

// Series is a named, time-ordered sequence of observations. Series are
// immutable once fetched; alignment produces new values rather than
// mutating the source.
type Series struct {
	ID        string
	Label     string
	Transform Transform
	Frequency Frequency
	// ResampleMean selects period-mean aggregation when collapsing to the
	// target frequency; the default is period-last.
	ResampleMean bool
	Obs          []Observation
}

// New creates a series from observations, sorting by date and dropping
// duplicate timestamps (last one wins, matching the raw snapshot loader).
func New(id string, obs []Observation) *Series {
	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	dedup := sorted[:0]
	for _, o := range sorted {
		if n := len(dedup); n > 0 && dedup[n-1].Date.Equal(o.Date) {
			dedup[n-1] = o
			continue
		}
		dedup = append(dedup, o)
	}
	return &Series{ID: id, Label: id, Transform: Level, Frequency: Daily, Obs: dedup}
}

// Len returns the number of observations.
func (s *Series) Len() int { return len(s.Obs) }

// Span returns the first and last observation dates. The second return is
// false for an empty series.
func (s *Series) Span() (time.Time, time.Time, bool) {
	if len(s.Obs) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.Obs[0].Date, s.Obs[len(s.Obs)-1].Date, true
}

// Missing is the explicit missing-value marker used throughout the panel
// layer. Stored as NaN so arithmetic naturally propagates gaps.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is the missing marker.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// MonthEnd normalizes t to the last day of its month (UTC), the canonical
// index point for the monthly target frequency.
func MonthEnd(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
}

// MonthRange returns all month-end index points from the month of first
// through the month of last, inclusive.
func MonthRange(first, last time.Time) []time.Time {
	start := MonthEnd(first)
	end := MonthEnd(last)
	var out []time.Time
	for t := start; !t.After(end); t = MonthEnd(t.AddDate(0, 0, 1)) {
		out = append(out, t)
	}
	return out
}
