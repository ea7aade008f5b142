package corr

import (
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/macroview/macrocorr/internal/align"
	"github.com/macroview/macrocorr/internal/config"
	"github.com/macroview/macrocorr/internal/timeseries"
)

// Engine computes correlation matrices from an aligned panel. Rolling
// windows are independent of each other and are fanned out across a
// bounded worker pool; the output sequence is reassembled in end-date
// order regardless of completion order.
type Engine struct {
	WindowLength     int
	Step             int
	MinValidFraction float64
	Workers          int
}

// NewEngine builds an engine from the validated viz config. Step defaults
// to every period.
func NewEngine(cfg config.VizConfig) *Engine {
	return &Engine{
		WindowLength:     cfg.RollingWindowMonths,
		Step:             1,
		MinValidFraction: cfg.MinValidFraction,
		Workers:          runtime.NumCPU(),
	}
}

// Compute returns the full-period matrix and the rolling sequence in one
// pass over the panel.
func (e *Engine) Compute(p *align.Panel) (*Matrix, []*Matrix) {
	return e.Full(p), e.Rolling(p)
}

// Full computes the pairwise-complete full-period matrix: each pair's
// correlation uses every index point where both series have values, even
// when that set differs between pairs.
func (e *Engine) Full(p *align.Panel) *Matrix {
	m := newMatrix(p.IDs, p.Labels, Window{Full: true, Length: p.Rows()})
	fill(m, p, 0, p.Rows(), 2)
	return m
}

// Rolling computes one matrix per window end-date. A window is emitted
// only when every pair has at least ceil(MinValidFraction * length) valid
// overlapping observations inside it; windows that fall short are skipped
// entirely, not padded. The result is strictly increasing in end-date.
func (e *Engine) Rolling(p *align.Panel) []*Matrix {
	w := e.WindowLength
	step := e.Step
	if step < 1 {
		step = 1
	}
	if p.Rows() < w {
		return nil
	}
	minObs := int(math.Ceil(e.MinValidFraction * float64(w)))
	if minObs < 2 {
		minObs = 2
	}

	// One slot per candidate end index; skipped windows leave nil slots.
	var ends []int
	for end := w; end <= p.Rows(); end += step {
		ends = append(ends, end)
	}
	out := make([]*Matrix, len(ends))

	workers := e.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(ends) {
		workers = len(ends)
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for k := 0; k < workers; k++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				end := ends[idx]
				out[idx] = e.window(p, end-w, end, minObs)
			}
		}()
	}
	for idx := range ends {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	seq := make([]*Matrix, 0, len(out))
	for _, m := range out {
		if m != nil {
			seq = append(seq, m)
		}
	}
	return seq
}

// window computes the matrix for panel rows [lo, hi), or nil when any
// pair lacks minObs overlapping observations.
func (e *Engine) window(p *align.Panel, lo, hi, minObs int) *Matrix {
	n := p.Cols()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if overlap(p.Data[i][lo:hi], p.Data[j][lo:hi]) < minObs {
				return nil
			}
		}
	}
	m := newMatrix(p.IDs, p.Labels, Window{End: p.Dates[hi-1], Length: hi - lo})
	fill(m, p, lo, hi, minObs)
	return m
}

// fill populates the upper triangle with pairwise-complete correlations
// and mirrors it. minObs below which a pair is undefined.
func fill(m *Matrix, p *align.Panel, lo, hi, minObs int) {
	n := p.Cols()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r := pearson(p.Data[i][lo:hi], p.Data[j][lo:hi], minObs)
			m.Vals[i][j] = r
			m.Vals[j][i] = r
		}
	}
}

// overlap counts index points where both series have values.
func overlap(x, y []float64) int {
	n := 0
	for t := range x {
		if !timeseries.IsMissing(x[t]) && !timeseries.IsMissing(y[t]) {
			n++
		}
	}
	return n
}

// pearson computes the pairwise-complete Pearson coefficient. Pairs with
// fewer than minObs overlapping observations or with a zero-variance leg
// yield the undefined sentinel instead of a division by zero.
func pearson(x, y []float64, minObs int) float64 {
	px := make([]float64, 0, len(x))
	py := make([]float64, 0, len(y))
	for t := range x {
		if timeseries.IsMissing(x[t]) || timeseries.IsMissing(y[t]) {
			continue
		}
		px = append(px, x[t])
		py = append(py, y[t])
	}
	if len(px) < minObs || len(px) < 2 {
		return math.NaN()
	}
	if stat.Variance(px, nil) == 0 || stat.Variance(py, nil) == 0 {
		return math.NaN()
	}
	r := stat.Correlation(px, py, nil)
	// Floating point can push |r| a hair past 1; clamp for the renderer.
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r
}
