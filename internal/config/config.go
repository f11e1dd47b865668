// Package config loads the application configuration from an optional file
// plus environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Market  MarketConfig  `mapstructure:"market"`
	AI      AIConfig      `mapstructure:"ai"`
	Chart   ChartConfig   `mapstructure:"chart"`
	Signals SignalsConfig `mapstructure:"signals"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the dashboard server's listen address.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// MarketConfig holds the market-data source endpoints and the initially
// displayed pair.
type MarketConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	StreamURL string `mapstructure:"stream_url"`
	Symbol    string `mapstructure:"symbol"`
	Interval  string `mapstructure:"interval"`
}

// AIConfig holds the analysis-service endpoints and poll cadence.
type AIConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	SignalsPath  string        `mapstructure:"signals_path"`
	StreamURL    string        `mapstructure:"stream_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ChartConfig holds chart engine tunables.
type ChartConfig struct {
	Capacity       int           `mapstructure:"capacity"`
	MAPeriods      []int         `mapstructure:"ma_periods"`
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
}

// SignalsConfig holds signal merge tunables.
type SignalsConfig struct {
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	LiveBuffer      int           `mapstructure:"live_buffer"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from the given file (optional: a missing path
// falls back to defaults) and TRADEVIEW_-prefixed environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TRADEVIEW")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("market.base_url", "https://api.binance.com")
	v.SetDefault("market.stream_url", "wss://stream.binance.com:9443")
	v.SetDefault("market.symbol", "BTCUSDT")
	v.SetDefault("market.interval", "1m")

	v.SetDefault("ai.base_url", "http://localhost:8090")
	v.SetDefault("ai.signals_path", "/api/signals")
	v.SetDefault("ai.stream_url", "ws://localhost:8090/ws/signals")
	v.SetDefault("ai.poll_interval", 30*time.Second)

	v.SetDefault("chart.capacity", 100)
	v.SetDefault("chart.ma_periods", []int{7, 25, 99})
	v.SetDefault("chart.resync_interval", 30*time.Second)

	v.SetDefault("signals.freshness_window", 30*time.Minute)
	v.SetDefault("signals.live_buffer", 256)

	v.SetDefault("logging.level", "info")
}

func validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return errors.New("server.addr cannot be empty")
	}
	if cfg.Chart.Capacity <= 0 {
		return fmt.Errorf("chart.capacity must be positive, got %d", cfg.Chart.Capacity)
	}
	for _, p := range cfg.Chart.MAPeriods {
		if p <= 0 {
			return fmt.Errorf("chart.ma_periods entries must be positive, got %d", p)
		}
	}
	if cfg.Signals.LiveBuffer <= 0 {
		return fmt.Errorf("signals.live_buffer must be positive, got %d", cfg.Signals.LiveBuffer)
	}
	return nil
}
