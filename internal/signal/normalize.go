// Package signal implements the signal merge engine: normalization of
// loosely-typed trading-signal payloads from two independently clocked
// sources, deduplication by symbol keeping only the most recent, and a
// freshness-ranked display view.
package signal

import (
	"math"
	"strings"
	"time"

	"tradeview/internal/model"
	"tradeview/internal/utils"
)

// unknownSymbol is the sentinel substituted for a missing symbol so the
// record still renders, visibly labeled, instead of disappearing silently.
const unknownSymbol = "UNKNOWN"

// FlexTime accepts the mixed timestamp forms emitted by the signal sources:
// epoch milliseconds (as a JSON number or numeric string) or an ISO-8601
// string. A value that parses as neither is recorded as absent rather than
// failing the whole record; normalization substitutes the receive time.
type FlexTime struct {
	t  time.Time
	ok bool
}

// UnmarshalJSON implements json.Unmarshaler. It never returns an error: an
// unparseable timestamp must not drop the signal carrying it.
func (ft *FlexTime) UnmarshalJSON(data []byte) error {
	if t, err := utils.ParseTimestamp(string(data)); err == nil {
		ft.t, ft.ok = t, true
	}
	return nil
}

// Time returns the parsed timestamp and whether one was present.
func (ft FlexTime) Time() (time.Time, bool) { return ft.t, ft.ok }

// Payload is the loosely-typed external shape of one signal as delivered by
// either the pull endpoint or the live channel. All defensive parsing is
// isolated here, at the normalization boundary, rather than scattered
// through consumers.
type Payload struct {
	Symbol     string            `json:"symbol"`
	Signal     string            `json:"signal"`
	Confidence float64           `json:"confidence"`
	Timestamp  FlexTime          `json:"timestamp"`
	Reasoning  string            `json:"reasoning,omitempty"`
	Analysis   *model.MarketView `json:"marketAnalysis,omitempty"`
	Risk       *model.RiskView   `json:"riskAssessment,omitempty"`
}

// Normalize maps a loosely-typed payload to a strictly-typed TradingSignal.
//
// Repairs applied where a safe default exists: confidence clamped into
// [0,1], absent/unparseable timestamp replaced with now, unrecognized
// direction tag defaulted to NEUTRAL, missing symbol replaced with the
// UNKNOWN sentinel. Nothing is ever dropped here.
func Normalize(p Payload, source model.SignalSource, now time.Time) model.TradingSignal {
	ts, ok := p.Timestamp.Time()
	if !ok {
		ts = now
	}

	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	if symbol == "" {
		symbol = unknownSymbol
	}

	return model.TradingSignal{
		Symbol:     symbol,
		Direction:  normalizeDirection(p.Signal),
		Confidence: clampConfidence(p.Confidence),
		Timestamp:  ts,
		Reasoning:  p.Reasoning,
		Analysis:   cloneAnalysis(p.Analysis),
		Risk:       cloneRisk(p.Risk),
		Source:     source,
	}
}

// cloneAnalysis copies the nested analysis payload so normalized signals
// never alias caller- or engine-owned memory.
func cloneAnalysis(v *model.MarketView) *model.MarketView {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// cloneRisk copies the nested risk payload; see cloneAnalysis.
func cloneRisk(v *model.RiskView) *model.RiskView {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// normalizeDirection upper-cases the signal tag, defaulting to NEUTRAL when
// absent or unrecognized.
func normalizeDirection(tag string) model.Direction {
	switch model.Direction(strings.ToUpper(strings.TrimSpace(tag))) {
	case model.DirectionLong:
		return model.DirectionLong
	case model.DirectionShort:
		return model.DirectionShort
	default:
		return model.DirectionNeutral
	}
}

// clampConfidence forces a confidence into [0,1]. Sources occasionally
// report percentages or garbage; NaN collapses to zero.
func clampConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Min(1, math.Max(0, c))
}
