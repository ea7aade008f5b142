// Package corr computes full-period and rolling-window Pearson
// correlation matrices from an aligned panel.
package corr

import (
	"math"
	"time"
)

// Window describes the observation set behind a matrix: either the full
// period or one rolling window identified by its end date and length.
type Window struct {
	Full   bool
	End    time.Time
	Length int
}

// Tag renders the window for artifact naming and frame stamps.
func (w Window) Tag() string {
	if w.Full {
		return "full"
	}
	return w.End.Format("2006-01")
}

// Matrix is a square Pearson correlation matrix over the panel's series.
// Entries are in [-1, 1]; an undefined correlation (zero variance or not
// enough overlapping observations) is stored as NaN. The matrix is
// symmetric and the diagonal is exactly 1.
type Matrix struct {
	IDs    []string
	Labels []string
	Window Window
	Vals   [][]float64
}

// Dim returns the matrix dimension.
func (m *Matrix) Dim() int { return len(m.IDs) }

// At returns the correlation between series i and j.
func (m *Matrix) At(i, j int) float64 { return m.Vals[i][j] }

// IsDefined reports whether a correlation value is defined.
func IsDefined(v float64) bool { return !math.IsNaN(v) }

// newMatrix allocates an identity-diagonal matrix for the given series.
func newMatrix(ids, labels []string, w Window) *Matrix {
	n := len(ids)
	vals := make([][]float64, n)
	for i := range vals {
		vals[i] = make([]float64, n)
		vals[i][i] = 1.0
	}
	return &Matrix{IDs: ids, Labels: labels, Window: w, Vals: vals}
}
