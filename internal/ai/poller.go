package ai

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"tradeview/internal/signal"
)

// DefaultPollInterval is how often the pull endpoint is refreshed.
const DefaultPollInterval = 30 * time.Second

// SignalFetcher abstracts the pull endpoint so tests can script responses.
type SignalFetcher interface {
	Signals(ctx context.Context) ([]signal.Payload, error)
}

// Poller refreshes the signal snapshot on a fixed interval.
//
// Fetches run asynchronously so a slow response never blocks the next tick,
// which makes out-of-order completion possible: a generation counter tags
// each fetch when it starts, and a response whose generation is no longer
// current is discarded instead of overwriting fresher data. The generation
// check and the delivery happen under one mutex, so a response that passes
// the check cannot be overtaken by a newer one before it lands.
type Poller struct {
	fetcher  SignalFetcher
	sink     func([]signal.Payload)
	interval time.Duration
	clk      clock.Clock

	gen atomic.Uint64

	// mu serializes the generation re-check with the sink call.
	mu      sync.Mutex
	healthy atomic.Bool
}

// NewPoller creates a poller delivering each accepted snapshot to sink. A
// nil clock selects the wall clock; a non-positive interval selects the
// default.
func NewPoller(fetcher SignalFetcher, sink func([]signal.Payload), interval time.Duration, clk clock.Clock) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Poller{fetcher: fetcher, sink: sink, interval: interval, clk: clk}
}

// Healthy reports whether the most recent completed fetch succeeded. It is
// the pull side's connectivity-status flag; last-known-good data keeps
// rendering regardless.
func (p *Poller) Healthy() bool { return p.healthy.Load() }

// Run refreshes immediately and then on every interval tick until the
// context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clk.Ticker(p.interval)
	defer ticker.Stop()

	go p.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go p.refresh(ctx)
		}
	}
}

// refresh performs one guarded fetch.
func (p *Poller) refresh(ctx context.Context) {
	gen := p.gen.Add(1)

	payloads, err := p.fetcher.Signals(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("signal snapshot fetch failed")
			p.healthy.Store(false)
		}
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gen.Load() != gen {
		// A newer fetch started while this one was in flight; its result
		// wins regardless of completion order.
		log.Debug().Uint64("generation", gen).Msg("discarding stale signal fetch")
		return
	}

	p.healthy.Store(true)
	p.sink(payloads)
}
