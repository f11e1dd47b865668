// Package session owns the lifecycle of chart state: one ChartSession per
// displayed (symbol, timeframe) pair, with snapshot loading, live tick
// application, periodic resync, and teardown on switch.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"tradeview/internal/chart"
	"tradeview/internal/market"
	"tradeview/internal/model"
)

// DefaultResyncInterval is how often the chart snapshot is re-fetched. The
// resync is a required reconciliation step, not an optimization: the push
// channel can silently stop without a disconnect event in every failure
// mode, and the periodic snapshot heals any drift.
const DefaultResyncInterval = 30 * time.Second

// MarketData is the REST surface a session needs.
type MarketData interface {
	Klines(ctx context.Context, symbol string, interval model.Interval, limit int) ([]model.Candle, error)
	Ticker24h(ctx context.Context, symbol string) (*model.TickerSnapshot, error)
}

// KlineSubscription is one live kline subscription, as the session sees it.
type KlineSubscription interface {
	Events() <-chan market.KlineEvent
	Connected() bool
	Close()
}

// SubscribeFunc opens a kline subscription for one (symbol, interval) pair.
type SubscribeFunc func(ctx context.Context, symbol string, interval model.Interval) (KlineSubscription, error)

// Config holds the collaborators and tunables shared by all sessions.
type Config struct {
	Market         MarketData
	Subscribe      SubscribeFunc
	Capacity       int
	MAPeriods      []int
	ResyncInterval time.Duration
	Clock          clock.Clock
}

// ChartSession exclusively owns the chart engine for one (symbol,
// timeframe) pair. Its run goroutine serializes all engine access behind a
// mutex shared only with Frame.
type ChartSession struct {
	symbol   string
	interval model.Interval
	cfg      Config

	mu     sync.Mutex
	engine *chart.Engine

	sub       KlineSubscription
	connected atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newSession constructs and starts a session: initial snapshot, stream
// subscription, and the run loop with its resync ticker.
func newSession(ctx context.Context, symbol string, interval model.Interval, cfg Config) (*ChartSession, error) {
	engine, err := chart.New(cfg.Capacity, cfg.MAPeriods)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &ChartSession{
		symbol:   symbol,
		interval: interval,
		cfg:      cfg,
		engine:   engine,
		cancel:   cancel,
	}

	if err := s.resync(ctx); err != nil {
		// A failed initial load is not fatal: the session starts
		// disconnected and the resync ticker keeps retrying.
		log.Warn().Err(err).Str("symbol", symbol).Str("interval", string(interval)).
			Msg("initial chart snapshot failed")
	}

	sub, err := cfg.Subscribe(ctx, symbol, interval)
	if err != nil {
		cancel()
		return nil, err
	}
	s.sub = sub

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()

	return s, nil
}

// Symbol returns the session's symbol.
func (s *ChartSession) Symbol() string { return s.symbol }

// Interval returns the session's timeframe token.
func (s *ChartSession) Interval() model.Interval { return s.interval }

// Connected reports whether the session's data is believed current: a
// recent snapshot succeeded and the live channel is up.
func (s *ChartSession) Connected() bool {
	return s.connected.Load() && s.sub.Connected()
}

// Frame returns an independent snapshot of the engine's derived state.
func (s *ChartSession) Frame() chart.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Frame()
}

// Close tears the session down: the stream subscription is cancelled before
// the run loop exits, so no stale tick for an abandoned symbol can ever be
// applied after Close returns.
func (s *ChartSession) Close() {
	s.cancel()
	s.sub.Close()
	s.wg.Wait()
}

// run applies stream events and periodic resyncs until cancellation.
func (s *ChartSession) run(ctx context.Context) {
	ticker := s.cfg.Clock.Ticker(s.cfg.ResyncInterval)
	defer ticker.Stop()

	logger := log.With().Str("symbol", s.symbol).Str("interval", string(s.interval)).Logger()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("chart session stopped")
			return

		case <-ticker.C:
			if err := s.resync(ctx); err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Msg("chart resync failed, keeping last-known-good state")
			}

		case event, ok := <-s.sub.Events():
			if !ok {
				logger.Info().Msg("kline stream ended")
				return
			}
			if event.Symbol != s.symbol || event.Interval != s.interval {
				// Guard against a mislabeled channel; never apply a tick
				// for a pair this session does not own.
				continue
			}
			s.mu.Lock()
			err := s.engine.ApplyTick(event.Candle, event.IsClosed)
			s.mu.Unlock()
			if err != nil {
				logger.Warn().Err(err).Msg("rejected malformed tick")
			}
		}
	}
}

// resync replaces the series with a fresh snapshot. Transport failure
// leaves last-known-good state rendering and flips the connectivity flag.
func (s *ChartSession) resync(ctx context.Context) error {
	candles, err := s.cfg.Market.Klines(ctx, s.symbol, s.interval, s.cfg.Capacity)
	if err != nil {
		s.connected.Store(false)
		return err
	}

	// Ticker fetch failing is not fatal: the engine derives the 24h
	// summary from the candles themselves.
	ticker, err := s.cfg.Market.Ticker24h(ctx, s.symbol)
	if err != nil {
		log.Debug().Err(err).Str("symbol", s.symbol).Msg("ticker fetch failed, deriving from candles")
		ticker = nil
	}

	s.mu.Lock()
	err = s.engine.LoadSnapshot(candles, ticker)
	s.mu.Unlock()
	if err != nil {
		s.connected.Store(false)
		return err
	}

	s.connected.Store(true)
	return nil
}
