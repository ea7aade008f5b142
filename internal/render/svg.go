package render

import (
	"fmt"
	"strings"
)

// SVG layout constants, sized for up to ~20 series before labels crowd.
const (
	svgCell    = 48
	svgMarginL = 150
	svgMarginT = 60
	svgMarginR = 20
	svgMarginB = 110
)

// EncodeSVG renders the heatmap as a standalone SVG document. The output
// is deterministic for a given heatmap, which the golden tests rely on.
func EncodeSVG(h *Heatmap) []byte {
	n := h.Dim()
	width := svgMarginL + n*svgCell + svgMarginR
	height := svgMarginT + n*svgCell + svgMarginB

	var svg strings.Builder
	svg.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	svg.WriteString(fmt.Sprintf(`<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">`+"\n", width, height))
	svg.WriteString(fmt.Sprintf(`<rect width="%d" height="%d" fill="white"/>`+"\n", width, height))
	svg.WriteString(fmt.Sprintf(`<text x="%d" y="30" font-family="sans-serif" font-size="16" font-weight="bold">%s</text>`+"\n",
		svgMarginL, escape(h.Title)))

	for k := 0; k < n; k++ {
		for l := 0; l < n; l++ {
			cell := h.Cells[k][l]
			x := svgMarginL + l*svgCell
			y := svgMarginT + k*svgCell
			svg.WriteString(fmt.Sprintf(
				`<rect x="%d" y="%d" width="%d" height="%d" fill="#%02x%02x%02x" stroke="white" stroke-width="1"/>`+"\n",
				x, y, svgCell, svgCell, cell.Fill.R, cell.Fill.G, cell.Fill.B))
			svg.WriteString(fmt.Sprintf(
				`<text x="%d" y="%d" text-anchor="middle" font-family="sans-serif" font-size="11" fill="%s">%s</text>`+"\n",
				x+svgCell/2, y+svgCell/2+4, textColor(cell), escape(cell.Text)))
		}
	}

	// Row labels on the left, column labels rotated underneath.
	for k := 0; k < n; k++ {
		y := svgMarginT + k*svgCell + svgCell/2 + 4
		svg.WriteString(fmt.Sprintf(
			`<text x="%d" y="%d" text-anchor="end" font-family="sans-serif" font-size="12">%s</text>`+"\n",
			svgMarginL-8, y, escape(h.Labels[k])))
		x := svgMarginL + k*svgCell + svgCell/2
		yb := svgMarginT + n*svgCell + 12
		svg.WriteString(fmt.Sprintf(
			`<text x="%d" y="%d" text-anchor="end" font-family="sans-serif" font-size="12" transform="rotate(-45 %d %d)">%s</text>`+"\n",
			x, yb, x, yb, escape(h.Labels[k])))
	}

	svg.WriteString("</svg>\n")
	return []byte(svg.String())
}

// textColor picks black or white annotation text depending on fill
// luminance so values stay readable at the scale extremes.
func textColor(c Cell) string {
	lum := 0.299*float64(c.Fill.R) + 0.587*float64(c.Fill.G) + 0.114*float64(c.Fill.B)
	if lum < 128 {
		return "white"
	}
	return "black"
}

func escape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
