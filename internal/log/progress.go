// Package log carries shared logging helpers on top of zerolog.
package log

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Progress reports completion of a long frame-by-frame operation at a
// bounded cadence, so a 300-frame encode logs a handful of lines instead
// of 300.
type Progress struct {
	name     string
	total    int
	current  int
	started  time.Time
	lastLog  time.Time
	interval time.Duration
}

// NewProgress creates a reporter for an operation with a known total.
func NewProgress(name string, total int) *Progress {
	return &Progress{
		name:     name,
		total:    total,
		started:  time.Now(),
		interval: 2 * time.Second,
	}
}

// Step records one completed unit, logging when the cadence allows.
func (p *Progress) Step() {
	p.current++
	now := time.Now()
	if p.current != p.total && now.Sub(p.lastLog) < p.interval {
		return
	}
	p.lastLog = now
	log.Info().
		Str("op", p.name).
		Int("done", p.current).
		Int("total", p.total).
		Dur("elapsed", now.Sub(p.started).Round(time.Millisecond)).
		Msg("progress")
}
