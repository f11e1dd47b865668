package chart

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeview/internal/model"
)

// flatCandle creates a candle with a single price level, useful when the
// shape of individual bars does not matter.
func flatCandle(openTime int64, price float64) model.Candle {
	return model.Candle{
		OpenTime: openTime,
		Open:     price,
		High:     price,
		Low:      price,
		Close:    price,
		Volume:   1,
	}
}

// testCandle creates a fully specified candle.
func testCandle(openTime int64, open, high, low, close, volume float64) model.Candle {
	return model.Candle{
		OpenTime: openTime,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   volume,
	}
}

// Test_New tests construction-time validation.
func Test_New(t *testing.T) {
	tests := []struct {
		name        string
		capacity    int
		periods     []int
		expectError bool
		description string
	}{
		{
			name:        "Valid configuration",
			capacity:    100,
			periods:     []int{7, 25, 99},
			expectError: false,
			description: "Should accept the default configuration",
		},
		{
			name:        "Zero capacity",
			capacity:    0,
			periods:     []int{7},
			expectError: true,
			description: "Should reject a zero window capacity",
		},
		{
			name:        "Negative capacity",
			capacity:    -5,
			periods:     []int{7},
			expectError: true,
			description: "Should reject a negative window capacity",
		},
		{
			name:        "Non-positive period",
			capacity:    10,
			periods:     []int{7, 0},
			expectError: true,
			description: "Should reject a non-positive moving-average period",
		},
		{
			name:        "No periods",
			capacity:    10,
			periods:     nil,
			expectError: false,
			description: "Should allow an engine without moving averages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := New(tt.capacity, tt.periods)
			if tt.expectError {
				assert.Error(t, err, tt.description)
				assert.Nil(t, engine)
			} else {
				require.NoError(t, err, tt.description)
				assert.Equal(t, tt.capacity, engine.Capacity())
			}
		})
	}
}

// Test_LoadSnapshot_Validation tests rejection of malformed snapshot input.
func Test_LoadSnapshot_Validation(t *testing.T) {
	tests := []struct {
		name        string
		candles     []model.Candle
		expectedErr error
		description string
	}{
		{
			name:        "Unsorted input",
			candles:     []model.Candle{flatCandle(2000, 10), flatCandle(1000, 10)},
			expectedErr: ErrUnsortedSnapshot,
			description: "Should reject input not ascending by open time",
		},
		{
			name:        "Duplicate open time",
			candles:     []model.Candle{flatCandle(1000, 10), flatCandle(1000, 11)},
			expectedErr: ErrUnsortedSnapshot,
			description: "Should reject duplicate open times",
		},
		{
			name:        "Inverted high/low",
			candles:     []model.Candle{testCandle(1000, 10, 9, 11, 10, 1)},
			expectedErr: ErrInvalidCandle,
			description: "Should reject high below low",
		},
		{
			name:        "Non-finite field",
			candles:     []model.Candle{testCandle(1000, 10, math.NaN(), 9, 10, 1)},
			expectedErr: ErrInvalidCandle,
			description: "Should reject NaN fields",
		},
		{
			name:        "Negative volume",
			candles:     []model.Candle{testCandle(1000, 10, 11, 9, 10, -1)},
			expectedErr: ErrInvalidCandle,
			description: "Should reject negative values",
		},
		{
			name: "Close outside range",
			candles: []model.Candle{
				{OpenTime: 1000, Open: 10, High: 11, Low: 9, Close: 12, Volume: 1},
			},
			expectedErr: ErrInvalidCandle,
			description: "Should reject close above high",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := New(10, nil)
			require.NoError(t, err)

			err = engine.LoadSnapshot(tt.candles, nil)
			require.Error(t, err, tt.description)
			assert.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, 0, engine.Len(), "failed snapshot must not partially load")
		})
	}
}

// Test_LoadSnapshot_TooLarge tests that oversized input is the caller's bug.
func Test_LoadSnapshot_TooLarge(t *testing.T) {
	engine, err := New(2, nil)
	require.NoError(t, err)

	candles := []model.Candle{flatCandle(1000, 10), flatCandle(2000, 10), flatCandle(3000, 10)}
	err = engine.LoadSnapshot(candles, nil)
	assert.ErrorIs(t, err, ErrSnapshotTooLarge)
}

// Test_LoadSnapshot_TickerFallback tests deriving the 24h summary from the
// candles when no ticker is supplied.
func Test_LoadSnapshot_TickerFallback(t *testing.T) {
	engine, err := New(10, nil)
	require.NoError(t, err)

	candles := []model.Candle{
		testCandle(1000, 100, 120, 95, 105, 5),
		testCandle(2000, 105, 130, 104, 110, 3),
	}
	require.NoError(t, engine.LoadSnapshot(candles, nil))

	ticker := engine.Ticker()
	assert.InDelta(t, 130, ticker.High24h, 1e-9)
	assert.InDelta(t, 95, ticker.Low24h, 1e-9)
	assert.InDelta(t, 110, ticker.LastPrice, 1e-9)
	// (110 - 100) / 100 * 100
	assert.InDelta(t, 10, ticker.PercentChange, 1e-9)
	assert.InDelta(t, 110, engine.CurrentPrice(), 1e-9)
}

// Test_LoadSnapshot_WithTicker tests that a supplied ticker wins over the
// derived fallback.
func Test_LoadSnapshot_WithTicker(t *testing.T) {
	engine, err := New(10, nil)
	require.NoError(t, err)

	ticker := &model.TickerSnapshot{Symbol: "BTCUSDT", LastPrice: 42, High24h: 50, Low24h: 40, PercentChange: -1.5}
	require.NoError(t, engine.LoadSnapshot([]model.Candle{flatCandle(1000, 41)}, ticker))

	assert.Equal(t, *ticker, engine.Ticker())
	assert.InDelta(t, 42, engine.CurrentPrice(), 1e-9)
}

// Test_ApplyTick_RingBuffer tests the fixed-window eviction invariant.
func Test_ApplyTick_RingBuffer(t *testing.T) {
	engine, err := New(3, nil)
	require.NoError(t, err)

	require.NoError(t, engine.LoadSnapshot([]model.Candle{
		flatCandle(1000, 10), flatCandle(2000, 11), flatCandle(3000, 12),
	}, nil))

	// Confirm the tail closed, then roll several new bars in.
	require.NoError(t, engine.ApplyTick(flatCandle(3000, 12), true))
	require.NoError(t, engine.ApplyTick(flatCandle(4000, 13), true))
	require.NoError(t, engine.ApplyTick(flatCandle(5000, 14), true))

	series := engine.Candles()
	require.Len(t, series, 3, "length must never exceed capacity")
	assert.Equal(t, int64(3000), series[0].OpenTime, "oldest bars must be evicted first")
	assert.Equal(t, int64(5000), series[2].OpenTime)
}

// Test_ApplyTick_Idempotent tests that reapplying the same tick changes
// nothing.
func Test_ApplyTick_Idempotent(t *testing.T) {
	engine, err := New(5, []int{1})
	require.NoError(t, err)

	require.NoError(t, engine.LoadSnapshot([]model.Candle{
		flatCandle(1000, 10), flatCandle(2000, 11),
	}, nil))

	tick := testCandle(2000, 11, 12, 10, 11.5, 7)
	require.NoError(t, engine.ApplyTick(tick, false))
	once := engine.Frame()

	require.NoError(t, engine.ApplyTick(tick, false))
	twice := engine.Frame()

	assert.Equal(t, once.Candles, twice.Candles)
	assert.Equal(t, once.Averages, twice.Averages)
	assert.Equal(t, once.CurrentPrice, twice.CurrentPrice)
}

// Test_ApplyTick_OutOfOrder tests that a tick older than the tail is
// ignored rather than inserted out of order.
func Test_ApplyTick_OutOfOrder(t *testing.T) {
	engine, err := New(5, nil)
	require.NoError(t, err)

	require.NoError(t, engine.LoadSnapshot([]model.Candle{flatCandle(1000, 10)}, nil))

	require.NoError(t, engine.ApplyTick(flatCandle(900, 55), false))

	series := engine.Candles()
	require.Len(t, series, 1)
	assert.Equal(t, int64(1000), series[0].OpenTime, "series order must be unchanged")
	assert.InDelta(t, 10, series[0].Close, 1e-9)
}

// Test_ApplyTick_EmptySeries tests that ticks before the first snapshot
// are ignored.
func Test_ApplyTick_EmptySeries(t *testing.T) {
	engine, err := New(5, nil)
	require.NoError(t, err)

	require.NoError(t, engine.ApplyTick(flatCandle(1000, 10), true))
	assert.Equal(t, 0, engine.Len())
	// The traded price still updates: price display is decoupled from
	// committed candle state.
	assert.InDelta(t, 10, engine.CurrentPrice(), 1e-9)
}

// Test_ApplyTick_ReplaceTail tests in-place mutation of the forming bar.
func Test_ApplyTick_ReplaceTail(t *testing.T) {
	engine, err := New(5, nil)
	require.NoError(t, err)

	require.NoError(t, engine.LoadSnapshot([]model.Candle{
		flatCandle(1000, 10), flatCandle(2000, 11),
	}, nil))

	update := testCandle(2000, 11, 13, 10.5, 12.5, 9)
	require.NoError(t, engine.ApplyTick(update, false))

	series := engine.Candles()
	require.Len(t, series, 2)
	assert.Equal(t, update, series[1], "tail must be replaced in place")
	assert.InDelta(t, 12.5, engine.CurrentPrice(), 1e-9)
}

// Test_ApplyTick_UnconfirmedShift tests the conservative no-shift rule: a
// newer bar arriving before the previous one was confirmed closed
// overwrites the tail instead of appending.
func Test_ApplyTick_UnconfirmedShift(t *testing.T) {
	engine, err := New(5, nil)
	require.NoError(t, err)

	require.NoError(t, engine.LoadSnapshot([]model.Candle{
		flatCandle(1000, 10), flatCandle(2000, 11),
	}, nil))

	// No close confirmation has been seen for the 2000 bar.
	require.NoError(t, engine.ApplyTick(flatCandle(3000, 12), false))

	series := engine.Candles()
	require.Len(t, series, 2, "must not grow without a close confirmation")
	assert.Equal(t, int64(1000), series[0].OpenTime)
	assert.Equal(t, int64(3000), series[1].OpenTime, "update must not be dropped")
}

// Test_ApplyTick_ConfirmedShift tests appending after the tail was
// confirmed closed, below capacity (no eviction yet).
func Test_ApplyTick_ConfirmedShift(t *testing.T) {
	engine, err := New(5, nil)
	require.NoError(t, err)

	require.NoError(t, engine.LoadSnapshot([]model.Candle{flatCandle(1000, 10)}, nil))

	require.NoError(t, engine.ApplyTick(flatCandle(1000, 10.5), true))
	require.NoError(t, engine.ApplyTick(flatCandle(2000, 11), false))

	series := engine.Candles()
	require.Len(t, series, 2)
	assert.Equal(t, int64(1000), series[0].OpenTime)
	assert.Equal(t, int64(2000), series[1].OpenTime)
}

// Test_MovingAverages tests the trailing-mean computation.
func Test_MovingAverages(t *testing.T) {
	t.Run("Constant closes", func(t *testing.T) {
		engine, err := New(10, []int{3})
		require.NoError(t, err)

		candles := make([]model.Candle, 5)
		for i := range candles {
			candles[i] = flatCandle(int64((i+1)*1000), 42)
		}
		require.NoError(t, engine.LoadSnapshot(candles, nil))

		values := engine.MovingAverages()[3]
		require.Len(t, values, 5, "result length must equal series length")
		for i := 0; i < 2; i++ {
			assert.True(t, math.IsNaN(values[i]), "index %d should be undefined", i)
		}
		for i := 2; i < 5; i++ {
			assert.InDelta(t, 42, values[i], 1e-9, "index %d", i)
		}
	})

	t.Run("Rolling mean", func(t *testing.T) {
		engine, err := New(10, []int{2})
		require.NoError(t, err)

		closes := []float64{10, 20, 30, 40}
		candles := make([]model.Candle, len(closes))
		for i, c := range closes {
			candles[i] = flatCandle(int64((i+1)*1000), c)
		}
		require.NoError(t, engine.LoadSnapshot(candles, nil))

		values := engine.MovingAverages()[2]
		require.Len(t, values, 4)
		assert.True(t, math.IsNaN(values[0]))
		assert.InDelta(t, 15, values[1], 1e-9)
		assert.InDelta(t, 25, values[2], 1e-9)
		assert.InDelta(t, 35, values[3], 1e-9)
	})

	t.Run("Recomputed on tick", func(t *testing.T) {
		engine, err := New(10, []int{2})
		require.NoError(t, err)

		require.NoError(t, engine.LoadSnapshot([]model.Candle{
			flatCandle(1000, 10), flatCandle(2000, 20),
		}, nil))
		require.NoError(t, engine.ApplyTick(flatCandle(2000, 30), false))

		values := engine.MovingAverages()[2]
		assert.InDelta(t, 20, values[1], 1e-9, "average must track the mutated tail")
	})
}

// Test_CoordinateRoundTrip tests that YToPrice inverts PriceToY within
// floating-point tolerance across the padded range.
func Test_CoordinateRoundTrip(t *testing.T) {
	engine, err := New(10, nil)
	require.NoError(t, err)

	require.NoError(t, engine.LoadSnapshot([]model.Candle{
		testCandle(1000, 100, 150, 90, 120, 1),
		testCandle(2000, 120, 160, 110, 140, 1),
	}, nil))

	const (
		chartHeight = 400.0
		paddingTop  = 20.0
	)

	min, max := engine.PriceRange()
	assert.Less(t, min, 90.0, "range must be padded below the raw low")
	assert.Greater(t, max, 160.0, "range must be padded above the raw high")

	for _, price := range []float64{min, 95, 100, 123.456, 160, max} {
		y := engine.PriceToY(price, chartHeight, paddingTop)
		back := engine.YToPrice(y, chartHeight, paddingTop)
		assert.InDelta(t, price, back, 1e-9, "price %v", price)
	}
}

// Test_PriceRange_RecomputedOnEviction tests that the visible range tracks
// candles leaving the window.
func Test_PriceRange_RecomputedOnEviction(t *testing.T) {
	engine, err := New(2, nil)
	require.NoError(t, err)

	require.NoError(t, engine.LoadSnapshot([]model.Candle{
		testCandle(1000, 10, 100, 5, 50, 1),
		testCandle(2000, 50, 60, 40, 55, 1),
	}, nil))

	_, maxBefore := engine.PriceRange()
	assert.Greater(t, maxBefore, 100.0)

	// Evict the wide bar.
	require.NoError(t, engine.ApplyTick(testCandle(2000, 50, 60, 40, 55, 1), true))
	require.NoError(t, engine.ApplyTick(testCandle(3000, 55, 58, 52, 56, 1), true))

	_, maxAfter := engine.PriceRange()
	assert.Less(t, maxAfter, 100.0, "range must shrink once the wide bar leaves the window")
}

// Test_HitTest tests pointer-to-index bucket mapping.
func Test_HitTest(t *testing.T) {
	engine, err := New(10, nil)
	require.NoError(t, err)

	tests := []struct {
		name        string
		pointerX    float64
		expectIdx   int
		expectOk    bool
		description string
	}{
		{
			name:        "First bucket left edge",
			pointerX:    10,
			expectIdx:   0,
			expectOk:    true,
			description: "Pointer at padding edge maps to index 0",
		},
		{
			name:        "Within second bucket",
			pointerX:    25,
			expectIdx:   1,
			expectOk:    true,
			description: "Bucket width is chartWidth/candleCount",
		},
		{
			name:        "Last bucket",
			pointerX:    109.9,
			expectIdx:   9,
			expectOk:    true,
			description: "Pointer just inside the right edge maps to the last index",
		},
		{
			name:        "Left of chart",
			pointerX:    5,
			expectOk:    false,
			description: "Pointer left of padding is a miss",
		},
		{
			name:        "Right of chart",
			pointerX:    110,
			expectOk:    false,
			description: "Pointer at or past the right edge is a miss",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, ok := engine.HitTest(tt.pointerX, 100, 10, 10)
			assert.Equal(t, tt.expectOk, ok, tt.description)
			if tt.expectOk {
				assert.Equal(t, tt.expectIdx, idx, tt.description)
			}
		})
	}
}

// Test_Frame_Independence tests that the rendering snapshot shares no
// memory with the engine.
func Test_Frame_Independence(t *testing.T) {
	engine, err := New(5, []int{2})
	require.NoError(t, err)

	require.NoError(t, engine.LoadSnapshot([]model.Candle{
		flatCandle(1000, 10), flatCandle(2000, 20),
	}, nil))

	frame := engine.Frame()
	frame.Candles[0].Close = 999
	frame.Averages[2][1] = 999

	assert.InDelta(t, 10, engine.Candles()[0].Close, 1e-9)
	assert.InDelta(t, 15, engine.MovingAverages()[2][1], 1e-9)
}
