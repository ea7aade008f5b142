// Package align builds a monthly panel from raw series of mixed
// frequencies: resample, transform, outer-join, then apply the missing
// data policy. The output panel is what the correlation engine consumes.
package align

import (
	"fmt"
	"time"

	"github.com/macroview/macrocorr/internal/config"
	"github.com/macroview/macrocorr/internal/timeseries"
)

// AlignmentError indicates the input data cannot form a usable panel:
// fewer than two series survived filtering, or the panel is shorter than
// the smallest configured rolling window.
type AlignmentError struct {
	Reason string
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("alignment error: %s", e.Reason)
}

// Panel is a set of series on one shared, strictly increasing monthly
// index. Every series has a value or an explicit missing marker (NaN) at
// every index point. Column order follows the input series order.
type Panel struct {
	Dates  []time.Time
	IDs    []string
	Labels []string
	// Data[i][t] is the value of series i at Dates[t].
	Data [][]float64
}

// Rows returns the number of index points.
func (p *Panel) Rows() int { return len(p.Dates) }

// Cols returns the number of series.
func (p *Panel) Cols() int { return len(p.IDs) }

// Column returns the values of the series with the given id.
func (p *Panel) Column(id string) ([]float64, bool) {
	for i, pid := range p.IDs {
		if pid == id {
			return p.Data[i], true
		}
	}
	return nil, false
}

// Slice returns a view over index points [lo, hi). Data is shared with
// the parent panel.
func (p *Panel) Slice(lo, hi int) *Panel {
	out := &Panel{
		Dates:  p.Dates[lo:hi],
		IDs:    p.IDs,
		Labels: p.Labels,
		Data:   make([][]float64, p.Cols()),
	}
	for i := range p.Data {
		out.Data[i] = p.Data[i][lo:hi]
	}
	return out
}

// Tail returns the last n index points, or the whole panel if shorter.
func (p *Panel) Tail(n int) *Panel {
	if n >= p.Rows() {
		return p
	}
	return p.Slice(p.Rows()-n, p.Rows())
}

// Series converts the panel back into level series, one per column. Used
// by the snapshot writer and by re-alignment.
func (p *Panel) Series() []*timeseries.Series {
	out := make([]*timeseries.Series, p.Cols())
	for i, id := range p.IDs {
		obs := make([]timeseries.Observation, 0, p.Rows())
		for t, d := range p.Dates {
			if timeseries.IsMissing(p.Data[i][t]) {
				continue
			}
			obs = append(obs, timeseries.Observation{Date: d, Value: p.Data[i][t]})
		}
		s := timeseries.New(id, obs)
		s.Label = p.Labels[i]
		s.Frequency = timeseries.Monthly
		out[i] = s
	}
	return out
}

// Aligner applies the missing-data policy while joining series onto the
// monthly index.
type Aligner struct {
	// MaxMissingFraction drops any index point where more than this
	// fraction of series are missing.
	MaxMissingFraction float64
	// MaxFfillGap bounds how many consecutive missing points are
	// forward-filled after the join.
	MaxFfillGap int
	// MinRows is the smallest panel the downstream rolling window can
	// use; shorter panels are an AlignmentError.
	MinRows int
}

// NewAligner builds an aligner from the validated viz config, sized for
// the configured rolling window.
func NewAligner(cfg config.VizConfig) *Aligner {
	return &Aligner{
		MaxMissingFraction: cfg.MaxMissingFraction,
		MaxFfillGap:        cfg.MaxFfillGap,
		MinRows:            cfg.RollingWindowMonths,
	}
}

// Align resamples every series to month-end, applies the per-series
// transform for the given mode, outer-joins on the union of month-end
// dates, and enforces the missing-data policy.
func (a *Aligner) Align(series []*timeseries.Series, mode config.Mode) (*Panel, error) {
	type column struct {
		id     string
		label  string
		values map[time.Time]float64
	}

	var first, last time.Time
	cols := make([]column, 0, len(series))
	for _, s := range series {
		if s.Len() == 0 {
			continue
		}
		monthly := resampleMonthly(s)
		transformed := applyTransform(monthly, s.Transform, mode)
		if len(transformed) == 0 {
			continue
		}
		vals := make(map[time.Time]float64, len(transformed))
		for _, o := range transformed {
			vals[o.Date] = o.Value
		}
		lo, hi := transformed[0].Date, transformed[len(transformed)-1].Date
		if first.IsZero() || lo.Before(first) {
			first = lo
		}
		if last.IsZero() || hi.After(last) {
			last = hi
		}
		label := s.Label
		if label == "" {
			label = s.ID
		}
		cols = append(cols, column{id: s.ID, label: label, values: vals})
	}
	if len(cols) < 2 {
		return nil, &AlignmentError{Reason: fmt.Sprintf("need at least 2 series with data, have %d", len(cols))}
	}

	index := timeseries.MonthRange(first, last)
	panel := &Panel{
		Dates:  index,
		IDs:    make([]string, len(cols)),
		Labels: make([]string, len(cols)),
		Data:   make([][]float64, len(cols)),
	}
	for i, c := range cols {
		panel.IDs[i] = c.id
		panel.Labels[i] = c.label
		panel.Data[i] = make([]float64, len(index))
		for t, d := range index {
			if v, ok := c.values[d]; ok {
				panel.Data[i][t] = v
			} else {
				panel.Data[i][t] = timeseries.Missing()
			}
		}
	}

	panel = a.dropSparseRows(panel)
	a.forwardFill(panel)

	if panel.Rows() < a.MinRows {
		return nil, &AlignmentError{Reason: fmt.Sprintf(
			"panel has %d rows, need at least %d for the smallest rolling window", panel.Rows(), a.MinRows)}
	}
	return panel, nil
}

// dropSparseRows removes index points where too many series are missing.
func (a *Aligner) dropSparseRows(p *Panel) *Panel {
	keep := make([]int, 0, p.Rows())
	for t := range p.Dates {
		missing := 0
		for i := range p.Data {
			if timeseries.IsMissing(p.Data[i][t]) {
				missing++
			}
		}
		if float64(missing)/float64(p.Cols()) <= a.MaxMissingFraction {
			keep = append(keep, t)
		}
	}
	if len(keep) == p.Rows() {
		return p
	}
	out := &Panel{
		Dates:  make([]time.Time, len(keep)),
		IDs:    p.IDs,
		Labels: p.Labels,
		Data:   make([][]float64, p.Cols()),
	}
	for i := range p.Data {
		out.Data[i] = make([]float64, len(keep))
	}
	for j, t := range keep {
		out.Dates[j] = p.Dates[t]
		for i := range p.Data {
			out.Data[i][j] = p.Data[i][t]
		}
	}
	return out
}

// forwardFill fills isolated gaps with the preceding value. Only whole
// gaps no longer than MaxFfillGap are filled; longer gaps and leading
// gaps stay missing. Filling whole gaps (rather than the first N points
// of any gap) keeps re-alignment idempotent.
func (a *Aligner) forwardFill(p *Panel) {
	if a.MaxFfillGap == 0 {
		return
	}
	for i := range p.Data {
		col := p.Data[i]
		t := 0
		for t < len(col) {
			if !timeseries.IsMissing(col[t]) {
				t++
				continue
			}
			start := t
			for t < len(col) && timeseries.IsMissing(col[t]) {
				t++
			}
			gapLen := t - start
			if start == 0 || gapLen > a.MaxFfillGap {
				continue
			}
			for k := start; k < start+gapLen; k++ {
				col[k] = col[start-1]
			}
		}
	}
}

// resampleMonthly aggregates observations to one value per month-end.
// Daily and weekly input collapses by period-last or period-mean; monthly
// and quarterly input lands on its own month-end unchanged.
func resampleMonthly(s *timeseries.Series) []timeseries.Observation {
	type bucket struct {
		sum   float64
		count int
		last  float64
	}
	buckets := make(map[time.Time]*bucket)
	var order []time.Time
	for _, o := range s.Obs {
		me := timeseries.MonthEnd(o.Date)
		b, ok := buckets[me]
		if !ok {
			b = &bucket{}
			buckets[me] = b
			order = append(order, me)
		}
		b.sum += o.Value
		b.count++
		b.last = o.Value
	}
	mean := false
	// The resample rule comes from the series config via the fetch
	// layer; period-last is the domain default for prices and yields.
	if s.Frequency == timeseries.Daily || s.Frequency == timeseries.Weekly {
		mean = s.ResampleMean
	}
	out := make([]timeseries.Observation, 0, len(order))
	for _, me := range order {
		b := buckets[me]
		v := b.last
		if mean {
			v = b.sum / float64(b.count)
		}
		out = append(out, timeseries.Observation{Date: me, Value: v})
	}
	return out
}

// applyTransform produces the correlated values for one monthly series.
// In levels mode everything passes through; in returns mode the series'
// configured transform decides: return-tagged series become percent
// change, yoy-tagged become 12-month percent change, level-tagged stay
// levels (yields and spreads correlate in levels even in returns mode).
func applyTransform(monthly []timeseries.Observation, tr timeseries.Transform, mode config.Mode) []timeseries.Observation {
	if mode == config.ModeLevels {
		return monthly
	}
	switch tr {
	case timeseries.Return:
		return pctChange(monthly, 1)
	case timeseries.YoY:
		return pctChange(monthly, 12)
	default:
		return monthly
	}
}

// pctChange computes percent change over the given number of calendar
// months. The lagged value is looked up by month, not by position, so a
// point whose lagged month has no observation yields the missing marker
// rather than a change spanning the gap.
func pctChange(obs []timeseries.Observation, lag int) []timeseries.Observation {
	byMonth := make(map[int]float64, len(obs))
	for _, o := range obs {
		byMonth[monthIndex(o.Date)] = o.Value
	}
	out := make([]timeseries.Observation, len(obs))
	for i, o := range obs {
		out[i] = timeseries.Observation{Date: o.Date, Value: timeseries.Missing()}
		prev, ok := byMonth[monthIndex(o.Date)-lag]
		if !ok || prev == 0 || timeseries.IsMissing(prev) || timeseries.IsMissing(o.Value) {
			continue
		}
		out[i].Value = (o.Value - prev) / prev * 100.0
	}
	return out
}

// monthIndex counts months since year zero, so adjacent month-ends differ
// by exactly one.
func monthIndex(t time.Time) int {
	y, m, _ := t.UTC().Date()
	return y*12 + int(m) - 1
}
