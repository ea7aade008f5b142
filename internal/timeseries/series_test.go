package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestNew_SortsAndDeduplicates(t *testing.T) {
	s := New("SPX", []Observation{
		{Date: d(2024, 3, 1), Value: 3.0},
		{Date: d(2024, 1, 1), Value: 1.0},
		{Date: d(2024, 2, 1), Value: 2.0},
		{Date: d(2024, 1, 1), Value: 1.5}, // duplicate, last wins
	})

	require.Equal(t, 3, s.Len())
	assert.Equal(t, 1.5, s.Obs[0].Value)
	assert.Equal(t, 2.0, s.Obs[1].Value)
	assert.Equal(t, 3.0, s.Obs[2].Value)
	assert.True(t, s.Obs[0].Date.Before(s.Obs[1].Date))
}

func TestMonthEnd(t *testing.T) {
	assert.Equal(t, d(2024, 1, 31), MonthEnd(d(2024, 1, 5)))
	assert.Equal(t, d(2024, 2, 29), MonthEnd(d(2024, 2, 1))) // leap year
	assert.Equal(t, d(2023, 2, 28), MonthEnd(d(2023, 2, 28)))
	assert.Equal(t, d(2024, 12, 31), MonthEnd(d(2024, 12, 31)))
}

func TestMonthRange(t *testing.T) {
	idx := MonthRange(d(2024, 1, 15), d(2024, 4, 2))
	require.Len(t, idx, 4)
	assert.Equal(t, d(2024, 1, 31), idx[0])
	assert.Equal(t, d(2024, 4, 30), idx[3])
	for i := 1; i < len(idx); i++ {
		assert.True(t, idx[i].After(idx[i-1]))
	}
}

func TestMissingMarker(t *testing.T) {
	assert.True(t, IsMissing(Missing()))
	assert.False(t, IsMissing(0.0))
	assert.False(t, IsMissing(-1.5))
}

func TestSpan(t *testing.T) {
	_, _, ok := New("empty", nil).Span()
	assert.False(t, ok)

	s := New("x", []Observation{{Date: d(2024, 1, 1), Value: 1}, {Date: d(2024, 6, 1), Value: 2}})
	first, last, ok := s.Span()
	require.True(t, ok)
	assert.Equal(t, d(2024, 1, 1), first)
	assert.Equal(t, d(2024, 6, 1), last)
}
