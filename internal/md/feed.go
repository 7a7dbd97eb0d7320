package md

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradlet-core/internal/num"
)

// FeedConfig describes the upstream tick stream.
type FeedConfig struct {
	URL           string
	Instruments   []string
	ReconnectWait time.Duration // initial backoff, grows up to maxBackoff
}

// Feed is a websocket client that decodes tick frames and fans them out to
// registered listeners. Listeners must be registered before Run is called.
type Feed struct {
	cfg       FeedConfig
	log       zerolog.Logger
	listeners []Listener
}

func NewFeed(cfg FeedConfig, log zerolog.Logger) *Feed {
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = time.Second
	}
	return &Feed{cfg: cfg, log: log.With().Str("component", "feed").Logger()}
}

// AddListener registers a tick consumer. Not safe to call after Run.
func (f *Feed) AddListener(l Listener) {
	f.listeners = append(f.listeners, l)
}

// tickFrame is the wire format of one tick.
type tickFrame struct {
	Instrument   string `json:"instrument"`
	Time         int64  `json:"time"` // unix millis
	Price        string `json:"price"`
	Volume       int64  `json:"volume"`
	Turnover     string `json:"turnover"`
	OpenInterest int64  `json:"openInterest"`
	AvgPrice     string `json:"avgPrice"`
	High         string `json:"high,omitempty"`
	Low          string `json:"low,omitempty"`
}

type subscribeFrame struct {
	Op          string   `json:"op"`
	Instruments []string `json:"instruments"`
}

// Run connects and consumes the stream until the context is canceled,
// reconnecting with exponential backoff on transport errors.
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.cfg.ReconnectWait
	const maxBackoff = 30 * time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Msg("feed disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *Feed) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeFrame{Op: "subscribe", Instruments: f.cfg.Instruments}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.log.Info().Strs("instruments", f.cfg.Instruments).Msg("connected market data feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("feed ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		tick, err := decodeTick(message)
		if err != nil {
			f.log.Warn().Err(err).Msg("failed to decode tick frame")
			continue
		}
		for _, l := range f.listeners {
			l.OnTick(tick)
		}
	}
}

func decodeTick(message []byte) (*Tick, error) {
	var frame tickFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		return nil, err
	}
	if frame.Instrument == "" {
		return nil, fmt.Errorf("md: frame without instrument")
	}
	t := &Tick{
		Instrument:   frame.Instrument,
		Time:         time.UnixMilli(frame.Time),
		Volume:       frame.Volume,
		OpenInterest: frame.OpenInterest,
	}
	var err error
	if t.Price, err = parsePrice(frame.Price); err != nil {
		return nil, fmt.Errorf("md: price: %w", err)
	}
	if t.Turnover, err = parsePrice(frame.Turnover); err != nil {
		return nil, fmt.Errorf("md: turnover: %w", err)
	}
	if t.AvgPrice, err = parsePrice(frame.AvgPrice); err != nil {
		return nil, fmt.Errorf("md: avgPrice: %w", err)
	}
	if frame.High != "" {
		if t.High, err = parsePrice(frame.High); err != nil {
			return nil, fmt.Errorf("md: high: %w", err)
		}
	}
	if frame.Low != "" {
		if t.Low, err = parsePrice(frame.Low); err != nil {
			return nil, fmt.Errorf("md: low: %w", err)
		}
	}
	return t, nil
}

func parsePrice(s string) (num.Price, error) {
	if s == "" {
		return 0, nil
	}
	return num.Parse(s)
}
