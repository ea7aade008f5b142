// Package render turns ordered correlation matrices into visual artifact
// descriptions and encodes them as SVG and PNG. File naming and paths are
// the output layer's concern, not this package's.
package render

import (
	"fmt"
	"image/color"

	"github.com/macroview/macrocorr/internal/cluster"
	"github.com/macroview/macrocorr/internal/config"
	"github.com/macroview/macrocorr/internal/corr"
)

// Cell is one matrix entry ready for display: value, annotation text and
// fill color. Undefined correlations render neutral gray with a dash.
type Cell struct {
	Value   float64
	Defined bool
	Text    string
	Fill    color.RGBA
}

// Heatmap is the artifact description for one matrix: everything the
// output layer needs to encode and name a file, nothing more.
type Heatmap struct {
	Title     string
	WindowTag string
	Labels    []string
	Cells     [][]Cell
}

// Dim returns the grid dimension.
func (h *Heatmap) Dim() int { return len(h.Labels) }

// Scale is a symmetric diverging color scale centered at zero: the bounds
// map to full-intensity cold/warm, zero maps to the neutral midpoint.
type Scale struct {
	Min, Max float64
}

// NewScale builds a scale from configured bounds.
func NewScale(bounds [2]float64) Scale {
	return Scale{Min: bounds[0], Max: bounds[1]}
}

var (
	coldColor    = color.RGBA{R: 59, G: 76, B: 192, A: 255}   // strong negative
	warmColor    = color.RGBA{R: 180, G: 4, B: 38, A: 255}    // strong positive
	neutralColor = color.RGBA{R: 245, G: 245, B: 245, A: 255} // zero
	missingColor = color.RGBA{R: 200, G: 200, B: 200, A: 255} // undefined
)

// Color maps a correlation value onto the scale. Values past the bounds
// clamp to the extremes.
func (s Scale) Color(v float64) color.RGBA {
	if v >= 0 {
		span := s.Max
		if span <= 0 {
			span = 1
		}
		t := v / span
		if t > 1 {
			t = 1
		}
		return lerp(neutralColor, warmColor, t)
	}
	span := -s.Min
	if span <= 0 {
		span = 1
	}
	t := -v / span
	if t > 1 {
		t = 1
	}
	return lerp(neutralColor, coldColor, t)
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(a.R) + (float64(b.R)-float64(a.R))*t),
		G: uint8(float64(a.G) + (float64(b.G)-float64(a.G))*t),
		B: uint8(float64(a.B) + (float64(b.B)-float64(a.B))*t),
		A: 255,
	}
}

// RenderStatic builds the artifact description for one ordered matrix:
// cells in clustered order, labels alongside, window tag for downstream
// naming. A malformed (non-square) matrix is a ConfigurationError.
func RenderStatic(om *cluster.OrderedMatrix, scale Scale) (*Heatmap, error) {
	m := om.Matrix
	n := m.Dim()
	if len(m.Vals) != n {
		return nil, config.NewConfigurationError("matrix", "non-square: %d rows for %d series", len(m.Vals), n)
	}
	for i := range m.Vals {
		if len(m.Vals[i]) != n {
			return nil, config.NewConfigurationError("matrix", "non-square: row %d has %d columns, want %d", i, len(m.Vals[i]), n)
		}
	}
	if len(om.Perm) != n {
		return nil, config.NewConfigurationError("matrix", "permutation length %d does not match dimension %d", len(om.Perm), n)
	}

	h := &Heatmap{
		Title:     title(m.Window),
		WindowTag: m.Window.Tag(),
		Labels:    make([]string, n),
		Cells:     make([][]Cell, n),
	}
	for k := 0; k < n; k++ {
		h.Labels[k] = om.Label(k)
		h.Cells[k] = make([]Cell, n)
		for l := 0; l < n; l++ {
			v := om.At(k, l)
			c := Cell{Value: v, Defined: corr.IsDefined(v)}
			if c.Defined {
				c.Text = fmt.Sprintf("%.2f", v)
				c.Fill = scale.Color(v)
			} else {
				c.Text = "–"
				c.Fill = missingColor
			}
			h.Cells[k][l] = c
		}
	}
	return h, nil
}

func title(w corr.Window) string {
	if w.Full {
		return fmt.Sprintf("Correlation Heatmap — Last %dm", w.Length)
	}
	return fmt.Sprintf("Rolling %dm Correlations — %s", w.Length, w.End.Format("2006-01"))
}
