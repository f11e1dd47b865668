// Package ai implements the AI analysis source adapter: a pull client for
// the signal snapshot endpoint, a live push-channel subscription, and a
// poller that guards against out-of-order fetch completion.
//
// Both channels deliver the same loosely-typed per-item shape; all
// defensive parsing is delegated to the signal package's normalization
// boundary, so nothing here repairs payloads itself.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"tradeview/internal/signal"
)

const defaultHTTPTimeout = 10 * time.Second

// ErrBadPayload indicates a response body that is not a JSON signal array.
var ErrBadPayload = errors.New("malformed signal payload")

// defaultClientConfig provides defaults for a locally running analysis
// service.
var defaultClientConfig = ClientConfig{
	BaseURL:     "http://localhost:8090",
	SignalsPath: "/api/signals",
	StreamURL:   "ws://localhost:8090/ws/signals",
}

// ClientConfig holds the analysis service endpoints.
type ClientConfig struct {
	// BaseURL is the HTTP endpoint root of the analysis service.
	BaseURL string

	// SignalsPath is the pull endpoint returning a signal array.
	SignalsPath string

	// StreamURL is the live push-channel endpoint.
	StreamURL string
}

// applyDefaults fills unset fields from the package defaults.
func (c *ClientConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultClientConfig.BaseURL
	}
	if c.SignalsPath == "" {
		c.SignalsPath = defaultClientConfig.SignalsPath
	}
	if c.StreamURL == "" {
		c.StreamURL = defaultClientConfig.StreamURL
	}
}

// Client fetches signal snapshots from the pull endpoint.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient creates an analysis-service client. A nil config selects the
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

// Signals fetches the current signal array. The items stay loosely typed;
// the merge engine normalizes them at ingest.
func (c *Client) Signals(ctx context.Context) ([]signal.Payload, error) {
	endpoint := c.cfg.BaseURL + c.cfg.SignalsPath

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
		return nil, fmt.Errorf("signal fetch returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payloads []signal.Payload
	if err := json.Unmarshal(body, &payloads); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	log.Debug().Int("count", len(payloads)).Msg("fetched signal snapshot")
	return payloads, nil
}
