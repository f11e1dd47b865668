package signal

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"tradeview/internal/model"
	"tradeview/internal/utils"
)

const (
	// DefaultFreshnessWindow is the maximum age under which a signal is
	// considered active. A signal aged exactly at the window is not active.
	DefaultFreshnessWindow = 30 * time.Minute

	// DefaultLiveBuffer bounds how many push-channel signals are retained;
	// the oldest are dropped beyond it so a chatty channel cannot grow the
	// engine without bound.
	DefaultLiveBuffer = 256
)

// Config holds engine tunables. Zero values select the defaults above.
type Config struct {
	FreshnessWindow time.Duration
	LiveBuffer      int
}

// Engine merges trading signals from the pull-based analysis endpoint and
// the push-based live channel into one freshness-ordered, per-symbol
// deduplicated view.
//
// The held signal set is mutated only by the ingest operations; MergedView
// returns an independent snapshot, so consumers can never alias engine
// state. A mutex covers ingest vs. read because the two sources arrive on
// separate goroutines.
type Engine struct {
	mu  sync.Mutex
	cfg Config
	clk clock.Clock

	// api holds the latest pull snapshot, replaced wholesale per fetch.
	api []model.TradingSignal

	// live holds push-channel signals in arrival order, bounded.
	live []model.TradingSignal
}

// NewEngine creates a merge engine. A nil clock selects the wall clock; the
// injectable clock exists so tests control the freshness boundary.
func NewEngine(cfg Config, clk clock.Clock) *Engine {
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultFreshnessWindow
	}
	if cfg.LiveBuffer <= 0 {
		cfg.LiveBuffer = DefaultLiveBuffer
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Engine{cfg: cfg, clk: clk}
}

// IngestAPISignals normalizes one pull-endpoint response and replaces the
// entire API-side set with it (poll snapshot semantics).
func (e *Engine) IngestAPISignals(payloads []Payload) {
	now := e.clk.Now()
	next := make([]model.TradingSignal, 0, len(payloads))
	for _, p := range payloads {
		next = append(next, Normalize(p, model.SourceAPI, now))
	}

	e.mu.Lock()
	e.api = next
	e.mu.Unlock()
}

// IngestLiveSignal normalizes one push-channel signal and appends it to the
// bounded live buffer.
func (e *Engine) IngestLiveSignal(p Payload) {
	sig := Normalize(p, model.SourceWebsocket, e.clk.Now())

	e.mu.Lock()
	e.live = append(e.live, sig)
	if len(e.live) > e.cfg.LiveBuffer {
		e.live = e.live[len(e.live)-e.cfg.LiveBuffer:]
	}
	e.mu.Unlock()
}

// MergedView builds the display-ready list:
//
//  1. concatenate both sides' normalized signals
//  2. stable-sort descending by timestamp (ties keep ingestion order)
//  3. keep the first occurrence per symbol, discarding the rest; because
//     the list is newest-first this keeps exactly the most recent signal
//     per symbol, regardless of source ("latest wins", never field-merge)
//
// The result stays sorted newest-first by construction and is a fresh,
// independent snapshot.
func (e *Engine) MergedView() []model.DisplaySignal {
	e.mu.Lock()
	merged := make([]model.TradingSignal, 0, len(e.api)+len(e.live))
	merged = append(merged, e.api...)
	merged = append(merged, e.live...)
	e.mu.Unlock()

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})

	now := e.clk.Now()
	seen := make(map[string]struct{}, len(merged))
	out := make([]model.DisplaySignal, 0, len(merged))
	for _, sig := range merged {
		if _, dup := seen[sig.Symbol]; dup {
			continue
		}
		seen[sig.Symbol] = struct{}{}
		out = append(out, e.display(sig, now))
	}
	return out
}

// Active reports whether the signal's age is strictly under the freshness
// window at the given instant. Exactly at the window boundary is stale.
func (e *Engine) Active(sig model.TradingSignal, now time.Time) bool {
	return now.Sub(sig.Timestamp) < e.cfg.FreshnessWindow
}

// display projects a normalized signal into its UI-ready form. The nested
// payloads are cloned so a consumer mutating the view cannot reach back into
// engine state.
func (e *Engine) display(sig model.TradingSignal, now time.Time) model.DisplaySignal {
	return model.DisplaySignal{
		ID:         signalID(sig),
		Symbol:     sig.Symbol,
		Pair:       utils.FormatPair(sig.Symbol),
		Direction:  sig.Direction,
		Confidence: sig.Confidence,
		Timestamp:  sig.Timestamp,
		Active:     e.Active(sig, now),
		Reasoning:  sig.Reasoning,
		Analysis:   cloneAnalysis(sig.Analysis),
		Risk:       cloneRisk(sig.Risk),
		Source:     sig.Source,
	}
}

// signalID derives a stable list key from symbol, timestamp and source.
func signalID(sig model.TradingSignal) string {
	return fmt.Sprintf("%s-%d-%s", sig.Symbol, sig.Timestamp.UnixMilli(), sig.Source)
}
