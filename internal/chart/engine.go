// Package chart implements the streaming chart engine: a bounded,
// chronologically consistent OHLCV series for one (symbol, timeframe) pair,
// with derived moving averages and the coordinate mapping needed for
// rendering and hover interaction.
//
// The engine is the exclusive owner of its series; it is not safe for
// concurrent use. The owning session serializes all access, mirroring how a
// single chart component owns its data in the dashboard.
package chart

import (
	"errors"
	"fmt"
	"math"

	"tradeview/internal/model"
)

// rangePadding is the fraction added to each side of the raw high/low range
// when mapping prices to pixels, so candles never touch the chart edges.
const rangePadding = 0.05

// Errors returned at the snapshot/tick boundary. All are distinguishable via
// errors.Is; the engine never fabricates OHLC values to paper over bad input.
var (
	// ErrInvalidCandle indicates a candle with non-finite, negative or
	// inverted (high < low) fields.
	ErrInvalidCandle = errors.New("invalid candle data")

	// ErrUnsortedSnapshot indicates snapshot input not strictly ascending
	// by open time.
	ErrUnsortedSnapshot = errors.New("snapshot not sorted by open time")

	// ErrSnapshotTooLarge indicates snapshot input longer than the
	// configured window capacity; truncation/paging is the caller's job.
	ErrSnapshotTooLarge = errors.New("snapshot exceeds window capacity")
)

// MovingAverageSet maps an averaging period to its value series. Every value
// slice has the same length as the candle series; entries before index
// period-1 are NaN ("not yet enough history").
type MovingAverageSet map[int][]float64

// Engine maintains the rolling candle window and its derived projections.
type Engine struct {
	capacity  int
	maPeriods []int

	series       []model.Candle
	ticker       model.TickerSnapshot
	currentPrice float64

	// tailClosed records whether the forming tail bar has been confirmed
	// closed by the feed. A strictly newer tick only triggers a ring shift
	// after this confirmation; without it the tail is overwritten in place.
	tailClosed bool

	// Padded price range of the current window, recomputed on every series
	// change. Never cached across mutations: the visible range moves as
	// candles enter and leave the window.
	priceMin float64
	priceMax float64

	averages MovingAverageSet
}

// New creates an engine with the given window capacity and moving-average
// periods. Capacity and periods must be positive; misconfiguration is a hard
// construction-time error, not a recoverable condition.
func New(capacity int, maPeriods []int) (*Engine, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("window capacity must be positive, got %d", capacity)
	}
	for _, p := range maPeriods {
		if p <= 0 {
			return nil, fmt.Errorf("moving-average period must be positive, got %d", p)
		}
	}

	return &Engine{
		capacity:  capacity,
		maPeriods: append([]int(nil), maPeriods...),
		series:    make([]model.Candle, 0, capacity),
		averages:  MovingAverageSet{},
	}, nil
}

// Capacity returns the configured window size.
func (e *Engine) Capacity() int { return e.capacity }

// Len returns the number of candles currently held.
func (e *Engine) Len() int { return len(e.series) }

// Candles returns an independent copy of the current series.
func (e *Engine) Candles() []model.Candle {
	out := make([]model.Candle, len(e.series))
	copy(out, e.series)
	return out
}

// Ticker returns the current 24h summary.
func (e *Engine) Ticker() model.TickerSnapshot { return e.ticker }

// CurrentPrice returns the latest traded price. It is updated by every tick
// immediately, decoupled from committed candle state: price ticks faster
// than candle close.
func (e *Engine) CurrentPrice() float64 { return e.currentPrice }

// LoadSnapshot replaces the entire series.
//
// Input must be strictly ascending by open time and no longer than the
// window capacity. A nil ticker falls back to deriving the 24h summary from
// the loaded candles themselves. Any in-progress tick-merge state is reset.
func (e *Engine) LoadSnapshot(candles []model.Candle, ticker *model.TickerSnapshot) error {
	if len(candles) > e.capacity {
		return fmt.Errorf("%w: got %d candles, capacity %d",
			ErrSnapshotTooLarge, len(candles), e.capacity)
	}

	for i, c := range candles {
		if err := validateCandle(c); err != nil {
			return fmt.Errorf("candle %d: %w", i, err)
		}
		if i > 0 && c.OpenTime <= candles[i-1].OpenTime {
			return fmt.Errorf("%w: index %d", ErrUnsortedSnapshot, i)
		}
	}

	e.series = e.series[:0]
	e.series = append(e.series, candles...)
	e.tailClosed = false

	if ticker != nil {
		e.ticker = *ticker
		e.currentPrice = ticker.LastPrice
	} else {
		e.ticker = deriveTicker(e.series)
		e.currentPrice = e.ticker.LastPrice
	}

	e.recompute()
	return nil
}

// ApplyTick merges one incremental candle update into the series.
//
// Exact behavior, since it is compatibility-critical:
//   - an invalid candle is rejected before any state changes
//   - the current price is updated to the tick's close immediately
//   - an empty series ignores the tick (wait for the next snapshot)
//   - a tick strictly older than the tail is ignored (out-of-order delivery
//     is expected steady state, not an error)
//   - a tick with the tail's open time replaces the tail in place, whether
//     or not it is flagged closed
//   - a strictly newer tick appends and evicts the oldest candle only once
//     the tail was previously confirmed closed; otherwise it overwrites the
//     tail in place as a best effort so the update is never dropped
func (e *Engine) ApplyTick(c model.Candle, isClosed bool) error {
	if err := validateCandle(c); err != nil {
		return err
	}

	e.currentPrice = c.Close

	if len(e.series) == 0 {
		return nil
	}

	tail := len(e.series) - 1
	switch {
	case c.OpenTime < e.series[tail].OpenTime:
		return nil

	case c.OpenTime == e.series[tail].OpenTime:
		e.series[tail] = c
		e.tailClosed = isClosed

	case e.tailClosed:
		if len(e.series) == e.capacity {
			copy(e.series, e.series[1:])
			e.series[len(e.series)-1] = c
		} else {
			e.series = append(e.series, c)
		}
		e.tailClosed = isClosed

	default:
		// Newer bar without a close confirmation for the previous one.
		e.series[tail] = c
		e.tailClosed = isClosed
	}

	e.recompute()
	return nil
}

// MovingAverages returns an independent copy of the derived moving-average
// set. Each series has the same length as the candle series.
func (e *Engine) MovingAverages() MovingAverageSet {
	out := make(MovingAverageSet, len(e.averages))
	for period, values := range e.averages {
		out[period] = append([]float64(nil), values...)
	}
	return out
}

// PriceRange returns the padded [min, max] price range of the current
// window, as used by the coordinate mapping.
func (e *Engine) PriceRange() (float64, float64) { return e.priceMin, e.priceMax }

// PriceToY maps a price into a vertical pixel coordinate within a chart area
// of the given height starting at paddingTop. Higher prices map to smaller y.
func (e *Engine) PriceToY(price, chartHeight, paddingTop float64) float64 {
	return mapPriceToY(e.priceMin, e.priceMax, price, chartHeight, paddingTop)
}

// YToPrice is the inverse of PriceToY.
func (e *Engine) YToPrice(y, chartHeight, paddingTop float64) float64 {
	return mapYToPrice(e.priceMin, e.priceMax, y, chartHeight, paddingTop)
}

// HitTest maps a horizontal pixel position to the candle index under it,
// using a uniform bucket width of chartWidth/candleCount. The second return
// is false when the pointer is outside [0, candleCount).
func (e *Engine) HitTest(pointerX, chartWidth, paddingLeft float64, candleCount int) (int, bool) {
	return mapHitTest(pointerX, chartWidth, paddingLeft, candleCount)
}

func mapPriceToY(min, max, price, chartHeight, paddingTop float64) float64 {
	span := max - min
	if span <= 0 || chartHeight <= 0 {
		return paddingTop
	}
	return paddingTop + (max-price)/span*chartHeight
}

func mapYToPrice(min, max, y, chartHeight, paddingTop float64) float64 {
	span := max - min
	if span <= 0 || chartHeight <= 0 {
		return max
	}
	return max - (y-paddingTop)/chartHeight*span
}

func mapHitTest(pointerX, chartWidth, paddingLeft float64, candleCount int) (int, bool) {
	if candleCount <= 0 || chartWidth <= 0 {
		return 0, false
	}
	bucket := chartWidth / float64(candleCount)
	idx := int(math.Floor((pointerX - paddingLeft) / bucket))
	if idx < 0 || idx >= candleCount {
		return 0, false
	}
	return idx, true
}

// Frame captures a render-ready snapshot of the engine's derived state. It
// shares no memory with the engine, so the rendering layer can hold it
// across a frame without racing subsequent ticks.
type Frame struct {
	Candles      []model.Candle
	Averages     MovingAverageSet
	Ticker       model.TickerSnapshot
	CurrentPrice float64
	PriceMin     float64
	PriceMax     float64
}

// PriceToY maps a price to a vertical pixel coordinate using the frame's
// captured range; see Engine.PriceToY.
func (f Frame) PriceToY(price, chartHeight, paddingTop float64) float64 {
	return mapPriceToY(f.PriceMin, f.PriceMax, price, chartHeight, paddingTop)
}

// YToPrice is the inverse of PriceToY over the frame's captured range.
func (f Frame) YToPrice(y, chartHeight, paddingTop float64) float64 {
	return mapYToPrice(f.PriceMin, f.PriceMax, y, chartHeight, paddingTop)
}

// HitTest maps a pointer x position to the index of the candle under it;
// see Engine.HitTest.
func (f Frame) HitTest(pointerX, chartWidth, paddingLeft float64) (int, bool) {
	return mapHitTest(pointerX, chartWidth, paddingLeft, len(f.Candles))
}

// Frame builds a snapshot of the current derived state.
func (e *Engine) Frame() Frame {
	return Frame{
		Candles:      e.Candles(),
		Averages:     e.MovingAverages(),
		Ticker:       e.ticker,
		CurrentPrice: e.currentPrice,
		PriceMin:     e.priceMin,
		PriceMax:     e.priceMax,
	}
}

// recompute refreshes every series-derived projection: the moving averages
// and the padded price range.
func (e *Engine) recompute() {
	e.averages = computeAverages(e.series, e.maPeriods)
	e.priceMin, e.priceMax = paddedRange(e.series)
}

// computeAverages calculates the trailing arithmetic mean of close prices
// for each period, with NaN before index period-1. A running window sum
// keeps this linear in the series length.
func computeAverages(series []model.Candle, periods []int) MovingAverageSet {
	out := make(MovingAverageSet, len(periods))
	for _, period := range periods {
		values := make([]float64, len(series))
		var sum float64
		for i, c := range series {
			sum += c.Close
			if i >= period {
				sum -= series[i-period].Close
			}
			if i >= period-1 {
				values[i] = sum / float64(period)
			} else {
				values[i] = math.NaN()
			}
		}
		out[period] = values
	}
	return out
}

// paddedRange returns the min/max over all highs and lows, padded by
// rangePadding on each side. A flat window still gets a usable non-zero
// span so the coordinate mapping stays invertible.
func paddedRange(series []model.Candle) (float64, float64) {
	if len(series) == 0 {
		return 0, 0
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range series {
		lo = math.Min(lo, c.Low)
		hi = math.Max(hi, c.High)
	}

	pad := (hi - lo) * rangePadding
	if pad == 0 {
		pad = math.Max(math.Abs(hi)*rangePadding, 1)
	}
	return lo - pad, hi + pad
}

// deriveTicker computes the 24h summary fallback directly from the loaded
// candles when the data source supplied no ticker.
func deriveTicker(series []model.Candle) model.TickerSnapshot {
	if len(series) == 0 {
		return model.TickerSnapshot{}
	}

	first, last := series[0], series[len(series)-1]
	t := model.TickerSnapshot{
		LastPrice: last.Close,
		High24h:   math.Inf(-1),
		Low24h:    math.Inf(1),
	}
	for _, c := range series {
		t.High24h = math.Max(t.High24h, c.High)
		t.Low24h = math.Min(t.Low24h, c.Low)
	}
	if first.Open != 0 {
		t.PercentChange = (last.Close - first.Open) / first.Open * 100
	}
	return t
}

// validateCandle rejects candles no safe default exists for: non-finite
// numbers, negative values, or an inverted price range.
func validateCandle(c model.Candle) error {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite field", ErrInvalidCandle)
		}
		if v < 0 {
			return fmt.Errorf("%w: negative field", ErrInvalidCandle)
		}
	}
	if c.OpenTime <= 0 {
		return fmt.Errorf("%w: non-positive open time", ErrInvalidCandle)
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: high below low", ErrInvalidCandle)
	}
	if math.Min(c.Open, c.Close) < c.Low || math.Max(c.Open, c.Close) > c.High {
		return fmt.Errorf("%w: open/close outside high/low range", ErrInvalidCandle)
	}
	return nil
}
