/*
Package main runs the trading dashboard stream server.

The server maintains a live candlestick chart session for one (symbol,
interval) pair (initial snapshot over REST, incremental updates over a
kline websocket, periodic snapshot resync) and merges AI trading signals
from a pull endpoint and a live push channel into one deduplicated view.
The combined dashboard state is served as JSON and streamed to connected
dashboard clients over a websocket hub.

Usage:

	go run ./cmd/server -config=config.yaml -addr=:8080

Environment variables prefixed with TRADEVIEW_ override file settings.
*/
package main

import (
	"context"
	"flag"
	"os"
	stdsignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tradeview/internal/ai"
	"tradeview/internal/config"
	"tradeview/internal/market"
	"tradeview/internal/model"
	"tradeview/internal/server"
	"tradeview/internal/session"
	"tradeview/internal/signal"
)

// Command-line flags; file/env configuration carries everything else.
var (
	configPath = flag.String("config", "", "Path to config file (optional)")
	addr       = flag.String("addr", "", "Listen address override")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	initLogger(cfg.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal merge engine fed by both analysis channels.
	signals := signal.NewEngine(signal.Config{
		FreshnessWindow: cfg.Signals.FreshnessWindow,
		LiveBuffer:      cfg.Signals.LiveBuffer,
	}, nil)

	aiCfg := &ai.ClientConfig{
		BaseURL:     cfg.AI.BaseURL,
		SignalsPath: cfg.AI.SignalsPath,
		StreamURL:   cfg.AI.StreamURL,
	}

	poller := ai.NewPoller(ai.NewClient(aiCfg), signals.IngestAPISignals, cfg.AI.PollInterval, nil)
	go poller.Run(ctx)

	liveSignals, err := ai.NewStream(aiCfg).Subscribe(ctx, signals.IngestLiveSignal)
	if err != nil {
		// The pull side still works; the live channel reconnects on its own
		// once reachable, so start degraded rather than failing.
		log.Warn().Err(err).Msg("live signal channel unavailable at startup")
	} else {
		defer liveSignals.Close()
	}

	// Chart session manager over the market-data source.
	marketCfg := &market.ClientConfig{
		BaseURL:   cfg.Market.BaseURL,
		StreamURL: cfg.Market.StreamURL,
	}
	stream := market.NewStream(marketCfg)

	manager, err := session.NewManager(ctx, session.Config{
		Market: market.NewClient(marketCfg),
		Subscribe: func(ctx context.Context, symbol string, interval model.Interval) (session.KlineSubscription, error) {
			return stream.Subscribe(ctx, symbol, interval)
		},
		Capacity:       cfg.Chart.Capacity,
		MAPeriods:      cfg.Chart.MAPeriods,
		ResyncInterval: cfg.Chart.ResyncInterval,
	}, signals)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session manager")
	}
	defer manager.Close()

	if err := manager.Switch(cfg.Market.Symbol, model.Interval(cfg.Market.Interval)); err != nil {
		log.Fatal().Err(err).
			Str("symbol", cfg.Market.Symbol).Str("interval", cfg.Market.Interval).
			Msg("failed to start initial chart session")
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	sig := make(chan os.Signal, 1)
	stdsignal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("initiating graceful shutdown")
		cancel()
	}()

	srv := server.NewServer(manager, cfg.Server.Addr)
	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

// initLogger configures the global zerolog logger.
func initLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339

	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
