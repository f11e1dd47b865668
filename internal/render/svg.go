package render

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// SVGSurface implements Surface by accumulating SVG elements. Finish seals
// the document; the surface is single-use.
type SVGSurface struct {
	width  float64
	height float64
	body   strings.Builder
}

// NewSVGSurface creates a surface for one SVG document of the given pixel
// size.
func NewSVGSurface(width, height float64) *SVGSurface {
	return &SVGSurface{width: width, height: height}
}

func (s *SVGSurface) StrokeLine(x1, y1, x2, y2 float64, color string, width float64) {
	fmt.Fprintf(&s.body,
		`<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="%s" stroke-width="%.2f"/>`,
		x1, y1, x2, y2, color, width)
	s.body.WriteByte('\n')
}

func (s *SVGSurface) FillRect(x, y, w, h float64, color string) {
	fmt.Fprintf(&s.body,
		`<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s"/>`,
		x, y, w, h, color)
	s.body.WriteByte('\n')
}

func (s *SVGSurface) FillText(text string, x, y float64, color string) {
	var escaped strings.Builder
	xml.EscapeText(&escaped, []byte(text))
	fmt.Fprintf(&s.body,
		`<text x="%.2f" y="%.2f" fill="%s" font-family="monospace" font-size="12">%s</text>`,
		x, y, color, escaped.String())
	s.body.WriteByte('\n')
}

// Finish returns the complete SVG document.
func (s *SVGSurface) Finish() []byte {
	var doc strings.Builder
	fmt.Fprintf(&doc,
		`<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">`,
		s.width, s.height, s.width, s.height)
	doc.WriteByte('\n')
	doc.WriteString(s.body.String())
	doc.WriteString("</svg>\n")
	return []byte(doc.String())
}
