package align

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macroview/macrocorr/internal/config"
	"github.com/macroview/macrocorr/internal/timeseries"
)

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// monthlySeries builds a series with one observation per month-end
// starting at the given month.
func monthlySeries(id string, startY int, startM time.Month, values []float64) *timeseries.Series {
	obs := make([]timeseries.Observation, 0, len(values))
	cur := date(startY, startM, 1)
	for _, v := range values {
		obs = append(obs, timeseries.Observation{Date: timeseries.MonthEnd(cur), Value: v})
		cur = cur.AddDate(0, 1, 0)
	}
	s := timeseries.New(id, obs)
	s.Frequency = timeseries.Monthly
	return s
}

func testAligner() *Aligner {
	return &Aligner{MaxMissingFraction: 0.5, MaxFfillGap: 3, MinRows: 2}
}

func TestAlign_CommonIndex(t *testing.T) {
	a := testAligner()
	panel, err := a.Align([]*timeseries.Series{
		monthlySeries("A", 2024, 1, []float64{1, 2, 3, 4}),
		monthlySeries("B", 2024, 1, []float64{10, 20, 30, 40}),
	}, config.ModeLevels)
	require.NoError(t, err)

	assert.Equal(t, 4, panel.Rows())
	assert.Equal(t, 2, panel.Cols())
	assert.Equal(t, []string{"A", "B"}, panel.IDs)
	for i := 1; i < panel.Rows(); i++ {
		assert.True(t, panel.Dates[i].After(panel.Dates[i-1]), "index must be strictly increasing")
	}
	col, ok := panel.Column("B")
	require.True(t, ok)
	assert.Equal(t, []float64{10, 20, 30, 40}, col)
}

func TestAlign_ResamplesDailyToMonthEnd(t *testing.T) {
	daily := timeseries.New("D", []timeseries.Observation{
		{Date: date(2024, 1, 2), Value: 100},
		{Date: date(2024, 1, 31), Value: 110}, // period-last wins
		{Date: date(2024, 2, 12), Value: 120},
		{Date: date(2024, 2, 27), Value: 130},
	})
	daily.Frequency = timeseries.Daily
	mean := timeseries.New("M", []timeseries.Observation{
		{Date: date(2024, 1, 10), Value: 2},
		{Date: date(2024, 1, 20), Value: 4}, // mean = 3
		{Date: date(2024, 2, 10), Value: 6},
	})
	mean.Frequency = timeseries.Daily
	mean.ResampleMean = true

	a := testAligner()
	panel, err := a.Align([]*timeseries.Series{daily, mean}, config.ModeLevels)
	require.NoError(t, err)

	dCol, _ := panel.Column("D")
	mCol, _ := panel.Column("M")
	assert.Equal(t, []float64{110, 130}, dCol)
	assert.Equal(t, []float64{3, 6}, mCol)
	assert.Equal(t, date(2024, 1, 31), panel.Dates[0])
	assert.Equal(t, date(2024, 2, 29), panel.Dates[1])
}

func TestAlign_ReturnsMode(t *testing.T) {
	ret := monthlySeries("RET", 2024, 1, []float64{100, 110, 99})
	ret.Transform = timeseries.Return
	lvl := monthlySeries("LVL", 2024, 1, []float64{5, 6, 7})
	lvl.Transform = timeseries.Level

	a := testAligner()
	panel, err := a.Align([]*timeseries.Series{ret, lvl}, config.ModeReturns)
	require.NoError(t, err)

	retCol, _ := panel.Column("RET")
	lvlCol, _ := panel.Column("LVL")
	// First return point has no history and stays missing.
	assert.True(t, timeseries.IsMissing(retCol[0]))
	assert.InDelta(t, 10.0, retCol[1], 1e-9)
	assert.InDelta(t, -10.0, retCol[2], 1e-9)
	// Level-tagged series pass through even in returns mode.
	assert.Equal(t, []float64{5, 6, 7}, lvlCol)
}

func TestAlign_ReturnSkipsCalendarGaps(t *testing.T) {
	// February is 10% over January, but April's prior month has no
	// observation, so its one-month return is undefined.
	ret := timeseries.New("RET", []timeseries.Observation{
		{Date: timeseries.MonthEnd(date(2024, 1, 1)), Value: 100},
		{Date: timeseries.MonthEnd(date(2024, 2, 1)), Value: 110},
		{Date: timeseries.MonthEnd(date(2024, 4, 1)), Value: 121},
	})
	ret.Frequency = timeseries.Monthly
	ret.Transform = timeseries.Return
	lvl := monthlySeries("LVL", 2024, 1, []float64{1, 2, 3, 4})

	a := testAligner()
	a.MaxFfillGap = 0
	panel, err := a.Align([]*timeseries.Series{ret, lvl}, config.ModeReturns)
	require.NoError(t, err)

	retCol, _ := panel.Column("RET")
	assert.True(t, timeseries.IsMissing(retCol[0]))
	assert.InDelta(t, 10.0, retCol[1], 1e-9)
	assert.True(t, timeseries.IsMissing(retCol[2]), "March has no observation")
	assert.True(t, timeseries.IsMissing(retCol[3]), "April's lagged month is absent, not a two-month change")
}

func TestPctChange_LagIsCalendarMonths(t *testing.T) {
	obs := []timeseries.Observation{
		{Date: timeseries.MonthEnd(date(2023, 1, 1)), Value: 100},
		{Date: timeseries.MonthEnd(date(2024, 1, 1)), Value: 108},
		{Date: timeseries.MonthEnd(date(2024, 2, 1)), Value: 110},
	}
	out := pctChange(obs, 12)
	assert.True(t, timeseries.IsMissing(out[0].Value))
	assert.InDelta(t, 8.0, out[1].Value, 1e-9)
	assert.True(t, timeseries.IsMissing(out[2].Value), "no observation twelve months before")
}

func TestAlign_YoYNeedsTwelveMonths(t *testing.T) {
	vals := make([]float64, 15)
	for i := range vals {
		vals[i] = 100 + float64(i)
	}
	yoy := monthlySeries("Y", 2023, 1, vals)
	yoy.Transform = timeseries.YoY
	otherVals := make([]float64, 15)
	for i := range otherVals {
		otherVals[i] = float64(i + 1)
	}
	other := monthlySeries("O", 2023, 1, otherVals)

	a := testAligner()
	panel, err := a.Align([]*timeseries.Series{yoy, other}, config.ModeReturns)
	require.NoError(t, err)

	yCol, _ := panel.Column("Y")
	for i := 0; i < 12; i++ {
		assert.True(t, timeseries.IsMissing(yCol[i]), "month %d should be missing", i)
	}
	assert.InDelta(t, 12.0, yCol[12], 1e-9) // 112 vs 100
}

func TestAlign_ForwardFillBoundedGaps(t *testing.T) {
	// B is quarterly: only every third month has a value.
	bObs := []timeseries.Observation{
		{Date: timeseries.MonthEnd(date(2024, 1, 1)), Value: 1},
		{Date: timeseries.MonthEnd(date(2024, 4, 1)), Value: 2},
		{Date: timeseries.MonthEnd(date(2024, 7, 1)), Value: 3},
	}
	b := timeseries.New("B", bObs)
	b.Frequency = timeseries.Quarterly
	aSer := monthlySeries("A", 2024, 1, []float64{1, 2, 3, 4, 5, 6, 7})

	al := testAligner()
	panel, err := al.Align([]*timeseries.Series{aSer, b}, config.ModeLevels)
	require.NoError(t, err)

	bCol, _ := panel.Column("B")
	// Two-month gaps between quarterly prints are forward-filled.
	assert.Equal(t, []float64{1, 1, 1, 2, 2, 2, 3}, bCol)
}

func TestAlign_LongGapsStayMissing(t *testing.T) {
	gappy := timeseries.New("G", []timeseries.Observation{
		{Date: timeseries.MonthEnd(date(2024, 1, 1)), Value: 1},
		{Date: timeseries.MonthEnd(date(2024, 7, 1)), Value: 2}, // 5-month gap
	})
	gappy.Frequency = timeseries.Monthly
	full := monthlySeries("F", 2024, 1, []float64{1, 2, 3, 4, 5, 6, 7})

	al := &Aligner{MaxMissingFraction: 0.5, MaxFfillGap: 3, MinRows: 2}
	panel, err := al.Align([]*timeseries.Series{full, gappy}, config.ModeLevels)
	require.NoError(t, err)

	gCol, _ := panel.Column("G")
	assert.Equal(t, 1.0, gCol[0])
	for i := 1; i < 6; i++ {
		assert.True(t, timeseries.IsMissing(gCol[i]), "month %d of a 5-month gap must stay missing", i)
	}
	assert.Equal(t, 2.0, gCol[6])
}

func TestAlign_DropsSparseRows(t *testing.T) {
	// Three series; C has no data for the last two months, so those rows
	// miss 1/3 of series and survive a 0.5 threshold; with threshold 0.2
	// they are dropped.
	a := monthlySeries("A", 2024, 1, []float64{1, 2, 3, 4})
	b := monthlySeries("B", 2024, 1, []float64{1, 2, 3, 4})
	c := monthlySeries("C", 2024, 1, []float64{1, 2})

	strict := &Aligner{MaxMissingFraction: 0.2, MaxFfillGap: 0, MinRows: 2}
	panel, err := strict.Align([]*timeseries.Series{a, b, c}, config.ModeLevels)
	require.NoError(t, err)
	assert.Equal(t, 2, panel.Rows())

	loose := &Aligner{MaxMissingFraction: 0.5, MaxFfillGap: 0, MinRows: 2}
	panel, err = loose.Align([]*timeseries.Series{a, b, c}, config.ModeLevels)
	require.NoError(t, err)
	assert.Equal(t, 4, panel.Rows())
}

func TestAlign_ErrorsOnTooFewSeries(t *testing.T) {
	a := testAligner()
	_, err := a.Align([]*timeseries.Series{monthlySeries("A", 2024, 1, []float64{1, 2, 3})}, config.ModeLevels)
	var alignErr *AlignmentError
	require.True(t, errors.As(err, &alignErr))
}

func TestAlign_ErrorsOnShortPanel(t *testing.T) {
	a := &Aligner{MaxMissingFraction: 0.5, MaxFfillGap: 3, MinRows: 12}
	_, err := a.Align([]*timeseries.Series{
		monthlySeries("A", 2024, 1, []float64{1, 2, 3}),
		monthlySeries("B", 2024, 1, []float64{4, 5, 6}),
	}, config.ModeLevels)
	var alignErr *AlignmentError
	require.True(t, errors.As(err, &alignErr))
	assert.Contains(t, alignErr.Error(), "rolling window")
}

func TestAlign_Idempotent(t *testing.T) {
	a := testAligner()
	first, err := a.Align([]*timeseries.Series{
		monthlySeries("A", 2024, 1, []float64{1, 2, 3, 4, 5, 6}),
		monthlySeries("B", 2024, 2, []float64{10, 20, 30, 40, 50}),
	}, config.ModeLevels)
	require.NoError(t, err)

	second, err := a.Align(first.Series(), config.ModeLevels)
	require.NoError(t, err)

	require.Equal(t, first.Rows(), second.Rows())
	require.Equal(t, first.IDs, second.IDs)
	assert.Equal(t, first.Dates, second.Dates)
	for i := range first.Data {
		for t2 := range first.Data[i] {
			v1, v2 := first.Data[i][t2], second.Data[i][t2]
			if timeseries.IsMissing(v1) {
				assert.True(t, timeseries.IsMissing(v2))
			} else {
				assert.Equal(t, v1, v2)
			}
		}
	}
}
