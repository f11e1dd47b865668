package ai

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"tradeview/internal/signal"
	"tradeview/internal/websocket"
)

// Stream delivers individual live signals from the push channel to a sink,
// typically the merge engine's IngestLiveSignal.
type Stream struct {
	cfg ClientConfig
}

// NewStream creates a live signal stream factory. A nil config selects the
// defaults.
func NewStream(cfg *ClientConfig) *Stream {
	resolved := defaultClientConfig
	if cfg != nil {
		resolved = *cfg
		resolved.applyDefaults()
	}
	return &Stream{cfg: resolved}
}

// Subscription is a live signal-channel subscription.
type Subscription struct {
	client *websocket.Client
}

// Connected reports whether the push channel is currently live.
func (s *Subscription) Connected() bool { return s.client.Connected() }

// Close tears the subscription down.
func (s *Subscription) Close() { s.client.Close() }

// Subscribe opens the push channel and forwards each signal to sink. Each
// websocket message carries exactly one signal object, schema-compatible
// with the pull endpoint's per-item shape.
func (st *Stream) Subscribe(ctx context.Context, sink func(signal.Payload)) (*Subscription, error) {
	client, err := websocket.NewClient(ctx, websocket.Config{
		Endpoint: st.cfg.StreamURL,
		Handler: func(raw []byte) error {
			var p signal.Payload
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("%w: %v", ErrBadPayload, err)
			}
			sink(p)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open signal stream: %w", err)
	}

	log.Info().Str("endpoint", st.cfg.StreamURL).Msg("signal stream subscribed")
	return &Subscription{client: client}, nil
}
