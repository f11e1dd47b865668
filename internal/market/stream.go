package market

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"tradeview/internal/model"
	"tradeview/internal/utils"
	"tradeview/internal/websocket"
)

// KlineEvent is one incremental candle update from the stream. IsClosed
// reports whether the exchange has finalized the bar.
type KlineEvent struct {
	Symbol   string
	Interval model.Interval
	Candle   model.Candle
	IsClosed bool
}

// klineMsg is the outer wrapper of a kline stream message.
//
// Wire example:
//
//	{
//		"e": "kline", "E": 1700000000000, "s": "BTCUSDT",
//		"k": {"t": 1699999980000, "o": "50000.12", "h": "50010.00",
//		      "l": "49990.00", "c": "50001.50", "v": "12.5", "x": false}
//	}
type klineMsg struct {
	EventType string          `json:"e" validate:"required"`
	Symbol    string          `json:"s" validate:"required"`
	Kline     json.RawMessage `json:"k" validate:"required"`
}

// klinePayload is the inner bar update. Prices are string-typed to preserve
// wire precision until the decimal parse.
type klinePayload struct {
	OpenTime int64  `json:"t" validate:"required,gt=0"`
	Interval string `json:"i" validate:"required"`
	Open     string `json:"o" validate:"required,numeric"`
	Close    string `json:"c" validate:"required,numeric"`
	High     string `json:"h" validate:"required,numeric"`
	Low      string `json:"l" validate:"required,numeric"`
	Volume   string `json:"v" validate:"required,numeric"`
	IsClosed bool   `json:"x"`
}

// Stream subscribes to incremental kline updates for one (symbol, interval)
// pair at a time. Each Subscribe call owns its own websocket connection, so
// tearing a subscription down cannot leak ticks into a successor.
type Stream struct {
	cfg      ClientConfig
	validate *validator.Validate
}

// NewStream creates a kline stream factory. A nil config selects the
// defaults.
func NewStream(cfg *ClientConfig) *Stream {
	resolved := defaultClientConfig
	if cfg != nil {
		resolved = *cfg
		resolved.applyDefaults()
	}
	return &Stream{cfg: resolved, validate: validator.New()}
}

// Subscription is one live kline subscription.
type Subscription struct {
	events <-chan KlineEvent
	client *websocket.Client
	cancel context.CancelFunc
}

// Events returns the channel delivering kline updates. It is closed when
// the subscription ends.
func (s *Subscription) Events() <-chan KlineEvent { return s.events }

// Connected reports whether the underlying channel is currently live.
func (s *Subscription) Connected() bool { return s.client.Connected() }

// Close tears the subscription down. Safe to call multiple times.
func (s *Subscription) Close() {
	s.cancel()
	s.client.Close()
}

// Subscribe opens a kline websocket for the given symbol and interval and
// returns the subscription. Updates arrive in FIFO order per connection;
// the subscription ends when ctx is cancelled or Close is called.
func (st *Stream) Subscribe(ctx context.Context, symbol string, interval model.Interval) (*Subscription, error) {
	if err := utils.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrBadInterval, interval)
	}

	endpoint := fmt.Sprintf("%s/ws/%s@kline_%s",
		st.cfg.StreamURL, strings.ToLower(symbol), interval)

	ctx, cancel := context.WithCancel(ctx)
	events := make(chan KlineEvent, 256)

	client, err := websocket.NewClient(ctx, websocket.Config{
		Endpoint: endpoint,
		Handler: func(raw []byte) error {
			event, err := st.parseKlineMessage(raw)
			if err != nil {
				return err
			}
			select {
			case events <- event:
			default:
				// Consumer stalled: drop the oldest update so the newest
				// always lands. The periodic snapshot resync reconciles.
				select {
				case <-events:
				default:
				}
				select {
				case events <- event:
				default:
				}
			}
			return nil
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open kline stream: %w", err)
	}

	// Close the event channel only after the websocket is fully down
	// (Close waits for the read loop), so consumers see channel-closed as
	// the definitive end of this stream and no handler send can race it.
	go func() {
		<-ctx.Done()
		client.Close()
		close(events)
	}()

	log.Info().Str("symbol", symbol).Str("interval", string(interval)).
		Msg("kline stream subscribed")

	return &Subscription{events: events, client: client, cancel: cancel}, nil
}

// parseKlineMessage decodes, validates and converts one stream message.
func (st *Stream) parseKlineMessage(raw []byte) (KlineEvent, error) {
	var m klineMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return KlineEvent{}, fmt.Errorf("%w: outer message: %v", ErrBadPayload, err)
	}
	if err := st.validate.Struct(&m); err != nil {
		return KlineEvent{}, fmt.Errorf("%w: outer message: %v", ErrBadPayload, err)
	}

	var k klinePayload
	if err := json.Unmarshal(m.Kline, &k); err != nil {
		return KlineEvent{}, fmt.Errorf("%w: kline payload: %v", ErrBadPayload, err)
	}
	if err := st.validate.Struct(&k); err != nil {
		return KlineEvent{}, fmt.Errorf("%w: kline payload: %v", ErrBadPayload, err)
	}

	open, err := parsePrice(k.Open)
	if err != nil {
		return KlineEvent{}, err
	}
	high, err := parsePrice(k.High)
	if err != nil {
		return KlineEvent{}, err
	}
	low, err := parsePrice(k.Low)
	if err != nil {
		return KlineEvent{}, err
	}
	closePrice, err := parsePrice(k.Close)
	if err != nil {
		return KlineEvent{}, err
	}
	volume, err := parsePrice(k.Volume)
	if err != nil {
		return KlineEvent{}, err
	}

	return KlineEvent{
		Symbol:   strings.ToUpper(m.Symbol),
		Interval: model.Interval(k.Interval),
		Candle: model.Candle{
			OpenTime: k.OpenTime,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   volume,
		},
		IsClosed: k.IsClosed,
	}, nil
}
