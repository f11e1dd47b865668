// Package market implements the market-data source adapter: batch kline and
// ticker fetches over REST plus an incremental kline stream over websocket.
//
// The adapter speaks the exchange's binance-shaped wire format directly.
// Prices cross the wire as strings and are parsed through decimal.Decimal at
// this boundary before conversion to the float64 candles the chart engine
// consumes. Interval tokens map 1:1 onto the source's own vocabulary and are
// rejected before any network call.
package market

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"tradeview/internal/model"
	"tradeview/internal/utils"
)

const (
	klinesPath = "/api/v3/klines"
	tickerPath = "/api/v3/ticker/24hr"

	defaultHTTPTimeout = 10 * time.Second
)

// Errors returned by the market client.
var (
	ErrBadInterval = errors.New("unsupported interval token")
	ErrBadPayload  = errors.New("malformed market data payload")
	ErrHTTPStatus  = errors.New("unexpected HTTP status")
)

// defaultClientConfig provides sensible defaults for the REST client.
var defaultClientConfig = ClientConfig{
	BaseURL:   "https://api.binance.com",
	StreamURL: "wss://stream.binance.com:9443",
}

// ClientConfig holds endpoint configuration shared by the REST client and
// the kline stream.
type ClientConfig struct {
	// BaseURL is the REST endpoint root.
	BaseURL string

	// StreamURL is the websocket endpoint root.
	StreamURL string
}

// applyDefaults fills unset fields from the package defaults.
func (c *ClientConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultClientConfig.BaseURL
	}
	if c.StreamURL == "" {
		c.StreamURL = defaultClientConfig.StreamURL
	}
}

// Client fetches kline batches and ticker snapshots over REST.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient creates a market-data REST client. A nil config selects the
// defaults.
func NewClient(cfg *ClientConfig) *Client {
	resolved := defaultClientConfig
	if cfg != nil {
		resolved = *cfg
		resolved.applyDefaults()
	}
	return &Client{
		cfg:  resolved,
		http: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Klines fetches up to limit candles for one symbol and interval, ascending
// by open time. The returned slice is freshly allocated and already
// validated to be chronologically ordered.
func (c *Client) Klines(ctx context.Context, symbol string, interval model.Interval, limit int) ([]model.Candle, error) {
	if err := utils.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrBadInterval, interval)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", string(interval))
	q.Set("limit", fmt.Sprintf("%d", limit))

	body, err := c.get(ctx, klinesPath, q)
	if err != nil {
		return nil, err
	}

	// Each row is a mixed-type array: integer open time, string prices.
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("kline row %d: %w", i, err)
		}
		if i > 0 && candle.OpenTime <= candles[i-1].OpenTime {
			return nil, fmt.Errorf("%w: rows not ascending at index %d", ErrBadPayload, i)
		}
		candles = append(candles, candle)
	}

	log.Debug().Str("symbol", symbol).Str("interval", string(interval)).
		Int("count", len(candles)).Msg("fetched klines")
	return candles, nil
}

// tickerPayload is the 24h ticker wire shape, with string-typed prices.
type tickerPayload struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
}

// Ticker24h fetches the point-in-time 24h summary for one symbol. The
// result replaces any previous snapshot wholesale.
func (c *Client) Ticker24h(ctx context.Context, symbol string) (*model.TickerSnapshot, error) {
	if err := utils.ValidateSymbol(symbol); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("symbol", symbol)

	body, err := c.get(ctx, tickerPath, q)
	if err != nil {
		return nil, err
	}

	var payload tickerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	last, err := parsePrice(payload.LastPrice)
	if err != nil {
		return nil, err
	}
	high, err := parsePrice(payload.HighPrice)
	if err != nil {
		return nil, err
	}
	low, err := parsePrice(payload.LowPrice)
	if err != nil {
		return nil, err
	}
	change, err := parsePrice(payload.PriceChangePercent)
	if err != nil {
		return nil, err
	}

	return &model.TickerSnapshot{
		Symbol:        payload.Symbol,
		LastPrice:     last,
		High24h:       high,
		Low24h:        low,
		PercentChange: change,
	}, nil
}

// get performs one GET request and returns the response body.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("%s%s?%s", c.cfg.BaseURL, path, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s from %s", ErrHTTPStatus, resp.Status, path)
	}

	return io.ReadAll(resp.Body)
}

// parseKlineRow converts one wire row into a candle. Layout: open time,
// open, high, low, close, volume, then fields this adapter ignores.
func parseKlineRow(row []json.RawMessage) (model.Candle, error) {
	if len(row) < 6 {
		return model.Candle{}, fmt.Errorf("%w: row has %d fields, need 6", ErrBadPayload, len(row))
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return model.Candle{}, fmt.Errorf("%w: open time: %v", ErrBadPayload, err)
	}

	values := make([]float64, 5)
	for i, raw := range row[1:6] {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return model.Candle{}, fmt.Errorf("%w: field %d: %v", ErrBadPayload, i+1, err)
		}
		v, err := parsePrice(s)
		if err != nil {
			return model.Candle{}, err
		}
		values[i] = v
	}

	return model.Candle{
		OpenTime: openTime,
		Open:     values[0],
		High:     values[1],
		Low:      values[2],
		Close:    values[3],
		Volume:   values[4],
	}, nil
}

// parsePrice converts a string-typed wire price through decimal.Decimal,
// keeping the precise-parse step in one place.
func parsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: price %q: %v", ErrBadPayload, s, err)
	}
	return d.InexactFloat64(), nil
}
