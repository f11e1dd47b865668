// Package render translates a chart frame into primitive draw calls.
//
// It is a thin, stateless layer over the data engine: every pixel position
// comes from the frame's own coordinate mapping, and no derived data is
// computed here. The Surface abstraction keeps the package free of any
// concrete graphics dependency, so the translator is testable with a
// recording surface.
package render

import (
	"fmt"
	"math"

	"tradeview/internal/chart"
)

// Surface is the 2D drawing contract the renderer needs: primitive draw
// calls in surface-local pixel coordinates. Pointer positions given to the
// crosshair are expected in the same coordinate space.
type Surface interface {
	StrokeLine(x1, y1, x2, y2 float64, color string, width float64)
	FillRect(x, y, w, h float64, color string)
	FillText(text string, x, y float64, color string)
}

// Layout describes the chart geometry in surface pixels.
type Layout struct {
	Width        float64
	Height       float64
	PaddingTop   float64
	PaddingLeft  float64
	PaddingRight float64
	// VolumeHeight is the pixel height of the volume strip at the bottom of
	// the chart area.
	VolumeHeight float64
}

// chartWidth returns the drawable width between the horizontal paddings.
func (l Layout) chartWidth() float64 { return l.Width - l.PaddingLeft - l.PaddingRight }

// priceHeight returns the height of the price pane above the volume strip.
func (l Layout) priceHeight() float64 { return l.Height - l.PaddingTop - l.VolumeHeight }

// Theme holds the draw colors. Zero values fall back to DefaultTheme.
type Theme struct {
	Up        string
	Down      string
	Wick      string
	Volume    string
	Crosshair string
	Text      string
	// MA maps a moving-average period to its line color; periods without an
	// entry rotate through a small default palette.
	MA map[int]string
}

// DefaultTheme matches the dashboard's dark palette.
var DefaultTheme = Theme{
	Up:        "#26a69a",
	Down:      "#ef5350",
	Wick:      "#787b86",
	Volume:    "#2a2e39",
	Crosshair: "#9598a1",
	Text:      "#d1d4dc",
	MA:        map[int]string{7: "#fbc02d", 25: "#e91e63", 99: "#9c27b0"},
}

// Renderer draws chart frames onto a Surface.
type Renderer struct {
	layout Layout
	theme  Theme
}

// NewRenderer creates a renderer for the given layout. Unset theme colors
// fall back to DefaultTheme.
func NewRenderer(layout Layout, theme Theme) *Renderer {
	if theme.Up == "" {
		theme.Up = DefaultTheme.Up
	}
	if theme.Down == "" {
		theme.Down = DefaultTheme.Down
	}
	if theme.Wick == "" {
		theme.Wick = DefaultTheme.Wick
	}
	if theme.Volume == "" {
		theme.Volume = DefaultTheme.Volume
	}
	if theme.Crosshair == "" {
		theme.Crosshair = DefaultTheme.Crosshair
	}
	if theme.Text == "" {
		theme.Text = DefaultTheme.Text
	}
	if theme.MA == nil {
		theme.MA = DefaultTheme.MA
	}
	return &Renderer{layout: layout, theme: theme}
}

// Draw renders the full frame: volume strip, candles with wicks, and one
// polyline per moving-average period. An empty frame draws nothing.
func (r *Renderer) Draw(frame chart.Frame, s Surface) {
	n := len(frame.Candles)
	if n == 0 {
		return
	}

	l := r.layout
	bucket := l.chartWidth() / float64(n)
	bodyWidth := math.Max(1, bucket*0.7)

	maxVolume := 0.0
	for _, c := range frame.Candles {
		maxVolume = math.Max(maxVolume, c.Volume)
	}

	for i, c := range frame.Candles {
		cx := l.PaddingLeft + (float64(i)+0.5)*bucket

		// Volume bar
		if maxVolume > 0 {
			vh := c.Volume / maxVolume * l.VolumeHeight
			s.FillRect(cx-bodyWidth/2, l.Height-vh, bodyWidth, vh, r.theme.Volume)
		}

		// Wick
		highY := frame.PriceToY(c.High, l.priceHeight(), l.PaddingTop)
		lowY := frame.PriceToY(c.Low, l.priceHeight(), l.PaddingTop)
		s.StrokeLine(cx, highY, cx, lowY, r.theme.Wick, 1)

		// Body
		openY := frame.PriceToY(c.Open, l.priceHeight(), l.PaddingTop)
		closeY := frame.PriceToY(c.Close, l.priceHeight(), l.PaddingTop)
		color := r.theme.Up
		if c.Close < c.Open {
			color = r.theme.Down
		}
		top := math.Min(openY, closeY)
		height := math.Max(1, math.Abs(openY-closeY))
		s.FillRect(cx-bodyWidth/2, top, bodyWidth, height, color)
	}

	r.drawAverages(frame, s, bucket)
}

// drawAverages renders one polyline per period, skipping the leading NaN
// region where the window has not filled yet.
func (r *Renderer) drawAverages(frame chart.Frame, s Surface, bucket float64) {
	l := r.layout
	for period, values := range frame.Averages {
		color := r.theme.MA[period]
		if color == "" {
			color = r.theme.Crosshair
		}

		prevX, prevY := math.NaN(), math.NaN()
		for i, v := range values {
			if math.IsNaN(v) {
				prevX, prevY = math.NaN(), math.NaN()
				continue
			}
			x := l.PaddingLeft + (float64(i)+0.5)*bucket
			y := frame.PriceToY(v, l.priceHeight(), l.PaddingTop)
			if !math.IsNaN(prevX) {
				s.StrokeLine(prevX, prevY, x, y, color, 1.5)
			}
			prevX, prevY = x, y
		}
	}
}

// DrawCrosshair renders the hover crosshair and the OHLCV tooltip for the
// candle under the pointer. Out-of-range pointers draw nothing.
func (r *Renderer) DrawCrosshair(frame chart.Frame, s Surface, pointerX, pointerY float64) {
	l := r.layout
	idx, ok := frame.HitTest(pointerX, l.chartWidth(), l.PaddingLeft)
	if !ok {
		return
	}

	bucket := l.chartWidth() / float64(len(frame.Candles))
	cx := l.PaddingLeft + (float64(idx)+0.5)*bucket

	s.StrokeLine(cx, l.PaddingTop, cx, l.Height, r.theme.Crosshair, 1)
	s.StrokeLine(l.PaddingLeft, pointerY, l.Width-l.PaddingRight, pointerY, r.theme.Crosshair, 1)

	c := frame.Candles[idx]
	tooltip := fmt.Sprintf("O %.2f  H %.2f  L %.2f  C %.2f  V %.2f",
		c.Open, c.High, c.Low, c.Close, c.Volume)
	s.FillText(tooltip, l.PaddingLeft, l.PaddingTop-4, r.theme.Text)

	price := frame.YToPrice(pointerY, l.priceHeight(), l.PaddingTop)
	s.FillText(fmt.Sprintf("%.2f", price), l.Width-l.PaddingRight+2, pointerY, r.theme.Text)
}
