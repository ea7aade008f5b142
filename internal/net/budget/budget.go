// Package budget tracks per-provider daily request budgets. FRED and
// Stooq are free endpoints without hard quotas, but a runaway series list
// should fail loudly before it looks like scraping abuse.
package budget

import (
	"fmt"
	"sync"
	"time"
)

// ExhaustedError is returned once a provider's daily budget is spent.
type ExhaustedError struct {
	Provider string
	Used     int
	Limit    int
	ResetAt  time.Time
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("daily budget exhausted for %s: %d/%d requests, resets at %s",
		e.Provider, e.Used, e.Limit, e.ResetAt.Format("15:04 UTC"))
}

// Tracker counts requests per provider against a shared daily limit. The
// count resets at midnight UTC.
type Tracker struct {
	mu    sync.Mutex
	limit int
	used  map[string]int
	day   time.Time

	now func() time.Time
}

// NewTracker creates a tracker allowing limit requests per provider per
// UTC day.
func NewTracker(limit int) *Tracker {
	t := &Tracker{
		limit: limit,
		used:  make(map[string]int),
		now:   time.Now,
	}
	t.day = utcDay(t.now())
	return t
}

// Spend consumes one request from the provider's budget, or returns an
// ExhaustedError with the reset time.
func (t *Tracker) Spend(provider string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	if day := utcDay(now); day.After(t.day) {
		t.day = day
		t.used = make(map[string]int)
	}
	if t.used[provider] >= t.limit {
		return &ExhaustedError{
			Provider: provider,
			Used:     t.used[provider],
			Limit:    t.limit,
			ResetAt:  t.day.AddDate(0, 0, 1),
		}
	}
	t.used[provider]++
	return nil
}

// Used returns the provider's spent count for the current UTC day.
func (t *Tracker) Used(provider string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if day := utcDay(t.now().UTC()); day.After(t.day) {
		return 0
	}
	return t.used[provider]
}

func utcDay(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
