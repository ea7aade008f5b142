package render

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Raster layout constants. basicfont.Face7x13 is fixed 7px advance, so
// label gutters are sized in character counts.
const (
	pngCell    = 52
	pngMarginL = 140
	pngMarginT = 50
	pngMarginR = 16
	pngMarginB = 90
	glyphW     = 7
	glyphH     = 13
)

// RasterImage draws the heatmap onto an RGBA image: colored cells, value
// annotations, row labels, column labels and the title/date stamp. The
// animation assembler reuses this per frame.
func RasterImage(h *Heatmap) *image.RGBA {
	n := h.Dim()
	width := pngMarginL + n*pngCell + pngMarginR
	height := pngMarginT + n*pngCell + pngMarginB
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	black := color.RGBA{A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	drawString(img, pngMarginL, 24, h.Title, black)

	for k := 0; k < n; k++ {
		for l := 0; l < n; l++ {
			cell := h.Cells[k][l]
			x0 := pngMarginL + l*pngCell
			y0 := pngMarginT + k*pngCell
			fillRect(img, x0, y0, pngCell-1, pngCell-1, cell.Fill)
			tc := black
			if textColor(cell) == "white" {
				tc = white
			}
			tx := x0 + (pngCell-len(cell.Text)*glyphW)/2
			ty := y0 + pngCell/2 + glyphH/3
			drawString(img, tx, ty, cell.Text, tc)
		}
	}

	for k := 0; k < n; k++ {
		label := h.Labels[k]
		maxChars := (pngMarginL - 10) / glyphW
		if len(label) > maxChars {
			label = label[:maxChars]
		}
		y := pngMarginT + k*pngCell + pngCell/2 + glyphH/3
		drawString(img, pngMarginL-8-len(label)*glyphW, y, label, black)
		// Columns get horizontal labels under the grid, staggered across
		// two rows to limit overlap (no rotated text in basicfont).
		x := pngMarginL + k*pngCell + 2
		yb := pngMarginT + n*pngCell + 16 + (k%2)*(glyphH+2)
		colLabel := h.Labels[k]
		if len(colLabel) > pngCell*2/glyphW {
			colLabel = colLabel[:pngCell*2/glyphW]
		}
		drawString(img, x, yb, colLabel, black)
	}

	return img
}

// EncodePNG renders the heatmap and encodes it as PNG bytes.
func EncodePNG(h *Heatmap) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, RasterImage(h)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fillRect(img *image.RGBA, x, y, w, hgt int, c color.RGBA) {
	draw.Draw(img, image.Rect(x, y, x+w, y+hgt), &image.Uniform{C: c}, image.Point{}, draw.Src)
}

func drawString(img *image.RGBA, x, y int, s string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: c},
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
