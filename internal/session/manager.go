package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"tradeview/internal/model"
	"tradeview/internal/signal"
	"tradeview/internal/utils"
)

const defaultCapacity = 100

// ErrInvalidPair wraps validation failures for the requested (symbol,
// interval) pair, letting callers tell a bad request apart from a failed
// session start.
var ErrInvalidPair = errors.New("invalid chart pair")

var defaultMAPeriods = []int{7, 25, 99}

// Manager owns the single active chart session and the signal merge engine,
// and produces the dashboard state consumed by the presentation layer.
type Manager struct {
	cfg     Config
	signals *signal.Engine

	mu      sync.Mutex
	current *ChartSession
	ctx     context.Context
}

// NewManager creates a manager. Zero-valued tunables select the defaults;
// Market and Subscribe are required.
func NewManager(ctx context.Context, cfg Config, signals *signal.Engine) (*Manager, error) {
	if cfg.Market == nil {
		return nil, errors.New("market data source is required")
	}
	if cfg.Subscribe == nil {
		return nil, errors.New("kline subscribe function is required")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if len(cfg.MAPeriods) == 0 {
		cfg.MAPeriods = defaultMAPeriods
	}
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = DefaultResyncInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &Manager{cfg: cfg, signals: signals, ctx: ctx}, nil
}

// Switch makes (symbol, interval) the displayed pair. The previous
// session's subscription is torn down completely before the new one is
// established, so a stale-channel tick for the abandoned pair can never
// reach the new series.
func (m *Manager) Switch(symbol string, interval model.Interval) error {
	if err := utils.ValidateSymbol(symbol); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPair, err)
	}
	if !interval.Valid() {
		return fmt.Errorf("%w: unsupported interval token %q", ErrInvalidPair, interval)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		if m.current.Symbol() == symbol && m.current.Interval() == interval {
			return nil
		}
		m.current.Close()
		m.current = nil
	}

	next, err := newSession(m.ctx, symbol, interval, m.cfg)
	if err != nil {
		return fmt.Errorf("failed to start chart session for %s %s: %w", symbol, interval, err)
	}
	m.current = next

	log.Info().Str("symbol", symbol).Str("interval", string(interval)).Msg("switched chart session")
	return nil
}

// Current returns the active session, or nil before the first Switch.
func (m *Manager) Current() *ChartSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close tears down the active session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}

// DashboardState is the presentation-ready snapshot pushed to dashboard
// clients: chart state plus the merged signal view. Undefined moving-average
// entries are nil so the state serializes to plain JSON.
type DashboardState struct {
	Symbol       string                `json:"symbol"`
	Interval     model.Interval        `json:"interval"`
	Candles      []model.Candle        `json:"candles"`
	Averages     map[int][]*float64    `json:"movingAverages"`
	Ticker       model.TickerSnapshot  `json:"ticker"`
	CurrentPrice float64               `json:"currentPrice"`
	Connected    bool                  `json:"connected"`
	Signals      []model.DisplaySignal `json:"signals"`
	GeneratedAt  time.Time             `json:"generatedAt"`
}

// Snapshot builds an independent DashboardState from the current session
// and signal engines. With no active session only the signal side is
// populated.
func (m *Manager) Snapshot() DashboardState {
	state := DashboardState{
		Signals:     m.signals.MergedView(),
		GeneratedAt: m.cfg.Clock.Now(),
	}

	current := m.Current()
	if current == nil {
		return state
	}

	frame := current.Frame()
	state.Symbol = current.Symbol()
	state.Interval = current.Interval()
	state.Candles = frame.Candles
	state.Averages = jsonAverages(frame.Averages)
	state.Ticker = frame.Ticker
	state.CurrentPrice = frame.CurrentPrice
	state.Connected = current.Connected()
	return state
}

// jsonAverages converts NaN ("not yet enough history") entries to nil so
// the moving averages survive JSON encoding.
func jsonAverages(averages map[int][]float64) map[int][]*float64 {
	out := make(map[int][]*float64, len(averages))
	for period, values := range averages {
		converted := make([]*float64, len(values))
		for i, v := range values {
			if !math.IsNaN(v) {
				value := v
				converted[i] = &value
			}
		}
		out[period] = converted
	}
	return out
}
