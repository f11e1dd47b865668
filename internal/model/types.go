// Package model defines core data types for the trading dashboard core.
//
// This package contains the fundamental data structures shared by the chart
// and signal engines: OHLCV candles, ticker summaries, and trading signals in
// both their raw (as-received) and display-ready (normalized) forms.
//
// Candle prices are held as float64: they are consumed by coordinate mapping
// and moving-average math, which is float math end to end. Wire payloads that
// carry prices as strings are parsed through decimal.Decimal at the adapter
// boundary before being converted here.
package model

import "time"

// Interval identifies the fixed duration one candle represents.
//
// The token set maps 1:1 to the market-data source's own interval vocabulary;
// tokens outside this set are rejected before any network call is made.
type Interval string

// Supported candle intervals.
const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

// Valid reports whether the interval token is part of the supported set.
func (i Interval) Valid() bool {
	switch i {
	case Interval1m, Interval5m, Interval15m, Interval30m,
		Interval1h, Interval4h, Interval1d, Interval1w:
		return true
	}
	return false
}

// Candle represents one OHLCV bar for a fixed timeframe.
//
// OpenTime is the unique ordering key within a series. A candle is mutable
// while it is still the forming (tail) bar of its series and becomes
// immutable once a newer OpenTime has been observed.
//
// Invariant: Low <= min(Open, Close) <= max(Open, Close) <= High, and all
// numeric fields are non-negative and finite. The chart engine enforces this
// at its snapshot/tick boundary.
type Candle struct {
	OpenTime int64   `json:"openTime"` // Bar start, epoch milliseconds
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// TickerSnapshot is a point-in-time 24h summary for one symbol.
//
// It is independent of any candle series and replaced wholesale on each
// fetch; there is no partial update.
type TickerSnapshot struct {
	Symbol        string  `json:"symbol"`
	LastPrice     float64 `json:"lastPrice"`
	High24h       float64 `json:"high24h"`
	Low24h        float64 `json:"low24h"`
	PercentChange float64 `json:"percentChange"`
}

// SignalSource identifies which channel produced a trading signal.
type SignalSource string

// Signal provenance tags.
const (
	// SourceAPI marks signals fetched from the pull-based analysis endpoint.
	SourceAPI SignalSource = "api"

	// SourceWebsocket marks signals delivered over the live push channel.
	SourceWebsocket SignalSource = "websocket"
)

// Direction is the normalized trading-signal tag.
type Direction string

// Normalized signal directions. Unrecognized or absent tags normalize to
// DirectionNeutral rather than being dropped.
const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// TradingSignal is one normalized opinion emitted by either signal source.
//
// Normalization guarantees: Confidence is clamped into [0,1], Timestamp is
// always set (an unparseable source timestamp is replaced with the receive
// time, never dropped), Direction is one of the Direction constants, and a
// missing symbol is substituted with the literal "UNKNOWN" so upstream data
// problems stay visible instead of disappearing silently.
type TradingSignal struct {
	Symbol     string       `json:"symbol"`
	Direction  Direction    `json:"signal"`
	Confidence float64      `json:"confidence"`
	Timestamp  time.Time    `json:"timestamp"`
	Reasoning  string       `json:"reasoning,omitempty"`
	Analysis   *MarketView  `json:"marketAnalysis,omitempty"`
	Risk       *RiskView    `json:"riskAssessment,omitempty"`
	Source     SignalSource `json:"source"`
}

// MarketView is the optional nested market-analysis payload of a signal,
// passed through to the display layer untouched.
type MarketView struct {
	Trend      string  `json:"trend,omitempty"`
	Momentum   float64 `json:"momentum,omitempty"`
	Support    float64 `json:"support,omitempty"`
	Resistance float64 `json:"resistance,omitempty"`
	Summary    string  `json:"summary,omitempty"`
}

// RiskView is the optional nested risk-assessment payload of a signal.
type RiskView struct {
	Level      string  `json:"level,omitempty"`
	StopLoss   float64 `json:"stopLoss,omitempty"`
	TakeProfit float64 `json:"takeProfit,omitempty"`
	Summary    string  `json:"summary,omitempty"`
}

// DisplaySignal is the canonicalized, UI-ready projection of a TradingSignal.
//
// ID is derived deterministically from symbol, timestamp and source so it is
// a stable list key across rebuilds of the merged view. Pair is the symbol
// with a separator inserted before the quote-currency suffix ("BTCUSDT" ->
// "BTC/USDT"). Active reports whether the signal's age was under the
// freshness window when the view was built.
type DisplaySignal struct {
	ID         string       `json:"id"`
	Symbol     string       `json:"symbol"`
	Pair       string       `json:"pair"`
	Direction  Direction    `json:"signal"`
	Confidence float64      `json:"confidence"`
	Timestamp  time.Time    `json:"timestamp"`
	Active     bool         `json:"active"`
	Reasoning  string       `json:"reasoning,omitempty"`
	Analysis   *MarketView  `json:"marketAnalysis,omitempty"`
	Risk       *RiskView    `json:"riskAssessment,omitempty"`
	Source     SignalSource `json:"source"`
}
