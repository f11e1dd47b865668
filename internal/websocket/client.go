// Package websocket provides the websocket client shared by the market-data
// and live-signal adapters.
//
// The client owns the full connection lifecycle: dial with handshake
// timeout, subscription messages on connect, a read loop with panic-isolated
// message handling, a ping loop with pong-driven read deadlines, and
// automatic reconnection with exponential backoff. Push channels can stall
// without a disconnect event in every failure mode; the periodic snapshot
// resync upstream is the reconciliation for that, while this client handles
// the failures that do surface.
package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// defaultPingPeriod is the interval between websocket ping messages.
	defaultPingPeriod = 15 * time.Second

	// defaultSendTimeout bounds websocket write operations.
	defaultSendTimeout = 5 * time.Second

	// defaultReadLimit is the maximum size of incoming messages.
	defaultReadLimit = 1 << 20 // 1MB

	// defaultHandshakeTimeout bounds the websocket handshake.
	defaultHandshakeTimeout = 10 * time.Second

	// maxReconnectInterval caps the exponential backoff between redials.
	maxReconnectInterval = 30 * time.Second
)

// ErrClientClosed indicates the client has been shut down.
var ErrClientClosed = errors.New("websocket client closed")

// Config defines settings for the websocket client.
type Config struct {
	// Endpoint is the websocket URL to connect to. Required.
	Endpoint string

	// Handler is called for each incoming message with the raw payload.
	// Required. A handler error is logged and the message dropped; it does
	// not terminate the connection.
	Handler func([]byte) error

	// SubscriptionMessages are sent immediately after every (re)connect.
	SubscriptionMessages [][]byte

	// PingPeriod overrides the default ping interval.
	PingPeriod time.Duration

	// SendTimeout overrides the default write timeout.
	SendTimeout time.Duration

	// TLSInsecureSkip disables TLS certificate verification.
	TLSInsecureSkip bool

	// DisableReconnect turns off automatic redialing; the client then stops
	// after the first connection loss.
	DisableReconnect bool
}

// Client maintains one logical subscription over a self-healing websocket
// connection.
type Client struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	conn      atomic.Value // holds *websocket.Conn
	connected atomic.Bool

	once sync.Once
	wg   sync.WaitGroup
}

// NewClient validates the configuration, establishes the first connection,
// and starts the run and ping loops. The initial dial failing is an error;
// later losses are handled by the reconnect loop.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint URL is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("message handler is required")
	}
	if cfg.PingPeriod == 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Client{cfg: cfg, ctx: ctx, cancel: cancel}

	conn, err := c.dial()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("initial dial failed: %w", err)
	}
	if err := c.setup(conn); err != nil {
		cancel()
		conn.Close()
		return nil, err
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.runLoop(conn)
	}()
	go func() {
		defer c.wg.Done()
		c.pingLoop()
	}()

	return c, nil
}

// Connected reports whether a live connection is currently established. It
// is the connectivity-status flag surfaced to the session layer.
func (c *Client) Connected() bool { return c.connected.Load() }

// Close shuts the client down. Safe to call multiple times.
func (c *Client) Close() {
	c.once.Do(func() {
		logger := log.With().Str("endpoint", c.cfg.Endpoint).Logger()
		logger.Info().Msg("closing websocket client")

		c.cancel()
		if conn, ok := c.conn.Load().(*websocket.Conn); ok && conn != nil {
			deadline := time.Now().Add(time.Second)
			if err := conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline); err != nil {
				logger.Debug().Err(err).Msg("failed to send close frame")
			}
			if err := conn.Close(); err != nil {
				logger.Debug().Err(err).Msg("error closing connection")
			}
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Warn().Msg("timeout waiting for goroutines to stop")
		}
	})
}

// runLoop reads from the current connection until it fails, then redials
// with exponential backoff until the context is cancelled.
func (c *Client) runLoop(conn *websocket.Conn) {
	logger := log.With().Str("endpoint", c.cfg.Endpoint).Str("component", "runLoop").Logger()

	for {
		c.readLoop(conn)
		c.connected.Store(false)

		if c.ctx.Err() != nil || c.cfg.DisableReconnect {
			logger.Info().Msg("run loop exiting")
			return
		}

		next, err := c.redial()
		if err != nil {
			logger.Warn().Err(err).Msg("giving up on reconnect")
			return
		}
		conn = next
	}
}

// readLoop reads and dispatches messages until the connection errors.
func (c *Client) readLoop(conn *websocket.Conn) {
	logger := log.With().Str("endpoint", c.cfg.Endpoint).Str("component", "readLoop").Logger()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case c.ctx.Err() != nil:
				logger.Info().Msg("read loop stopped by shutdown")
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				logger.Info().Err(err).Msg("websocket closed normally")
			default:
				logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		c.handle(data, logger)
	}
}

// handle invokes the configured handler with panic isolation: a broken
// payload must never take the connection down with it.
func (c *Client) handle(data []byte, logger zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Any("recover", r).Msg("panic in message handler")
		}
	}()

	if err := c.cfg.Handler(data); err != nil {
		logger.Warn().Err(err).Msg("message handler error")
	}
}

// redial reconnects with exponential backoff, honoring context cancellation.
func (c *Client) redial() (*websocket.Conn, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = maxReconnectInterval
	policy.MaxElapsedTime = 0 // retry until cancelled

	var conn *websocket.Conn
	operation := func() error {
		next, err := c.dial()
		if err != nil {
			return err
		}
		if err := c.setup(next); err != nil {
			next.Close()
			return err
		}
		conn = next
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, c.ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}

// setup configures a fresh connection and replays subscription messages.
func (c *Client) setup(conn *websocket.Conn) error {
	conn.SetReadLimit(defaultReadLimit)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PingPeriod * 2))
	})

	for _, msg := range c.cfg.SubscriptionMessages {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return fmt.Errorf("subscription failed: %w", err)
		}
	}

	c.conn.Store(conn)
	c.connected.Store(true)
	log.Info().Str("endpoint", c.cfg.Endpoint).Msg("websocket connected")
	return nil
}

// pingLoop keeps the connection alive and detects silent failures.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	logger := log.With().Str("endpoint", c.cfg.Endpoint).Str("component", "pingLoop").Logger()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			conn, ok := c.conn.Load().(*websocket.Conn)
			if !ok || conn == nil || !c.connected.Load() {
				continue
			}
			deadline := time.Now().Add(c.cfg.SendTimeout)
			if err := conn.SetWriteDeadline(deadline); err != nil {
				logger.Debug().Err(err).Msg("failed to set write deadline")
				continue
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug().Err(err).Msg("ping failed")
			}
		}
	}
}

// dial establishes a websocket connection to the configured endpoint.
func (c *Client) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: c.cfg.TLSInsecureSkip},
		HandshakeTimeout: defaultHandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(c.ctx, c.cfg.Endpoint, make(http.Header))
	if err != nil {
		if resp != nil {
			log.Warn().Err(err).Int("statusCode", resp.StatusCode).
				Str("endpoint", c.cfg.Endpoint).Msg("websocket dial failed")
		} else {
			log.Warn().Err(err).Str("endpoint", c.cfg.Endpoint).Msg("websocket dial failed")
		}
		return nil, err
	}
	return conn, nil
}
