// Package marketdata consumes the external tick feed over websocket and
// hands normalized ticks and depth snapshots to the core. It is the
// only network boundary in the module; the venue itself stays external.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rustyeddy/oms/market"
)

// Config for the tick stream.
type Config struct {
	URL               string
	Symbols           []string
	ReconnectInterval time.Duration
	MaxReconnects     int // 0 means retry forever
}

// TickHandler receives each normalized price tick.
type TickHandler func(market.Tick)

// BookHandler receives each depth snapshot.
type BookHandler func(market.Book)

// wire messages from the feed.
type feedMsg struct {
	Type   string      `json:"type"` // "tick" or "book"
	Symbol string      `json:"symbol"`
	Price  float64     `json:"price"`
	Time   int64       `json:"ts"` // unix millis
	Bids   []feedLevel `json:"bids,omitempty"`
	Asks   []feedLevel `json:"asks,omitempty"`
}

type feedLevel struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Orders   int     `json:"orders"`
}

type subscribeMsg struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

// Stream is a reconnecting websocket consumer.
type Stream struct {
	cfg Config
	log *zap.Logger

	mu     sync.Mutex
	onTick TickHandler
	onBook BookHandler
	cancel context.CancelFunc
	done   chan struct{}
}

func NewStream(cfg Config, log *zap.Logger) (*Stream, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("marketdata: missing url")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("marketdata: no symbols to subscribe")
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Stream{cfg: cfg, log: log}, nil
}

func (s *Stream) SetTickHandler(h TickHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTick = h
}

func (s *Stream) SetBookHandler(h BookHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBook = h
}

// Start connects and consumes in the background until ctx is done or
// Stop is called. Reconnects with a fixed interval on failure.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("marketdata: already started")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Stop closes the stream and waits for the consumer to exit.
func (s *Stream) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)

	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}

		attempts++
		if s.cfg.MaxReconnects > 0 && attempts > s.cfg.MaxReconnects {
			s.log.Error("marketdata: giving up after max reconnects",
				zap.Int("attempts", attempts), zap.Error(err))
			return
		}
		s.log.Warn("marketdata: stream dropped, reconnecting",
			zap.Int("attempt", attempts),
			zap.Duration("in", s.cfg.ReconnectInterval),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectInterval):
		}
	}
}

func (s *Stream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMsg{Op: "subscribe", Symbols: s.cfg.Symbols}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info("marketdata: connected",
		zap.String("url", s.cfg.URL),
		zap.Strings("symbols", s.cfg.Symbols))

	// Unblock ReadMessage when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.dispatch(raw)
	}
}

func (s *Stream) dispatch(raw []byte) {
	var msg feedMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.log.Warn("marketdata: bad message", zap.Error(err))
		return
	}

	s.mu.Lock()
	onTick := s.onTick
	onBook := s.onBook
	s.mu.Unlock()

	switch msg.Type {
	case "tick":
		if onTick == nil {
			return
		}
		onTick(market.Tick{
			Symbol: msg.Symbol,
			Price:  msg.Price,
			Time:   time.UnixMilli(msg.Time).UTC(),
		})
	case "book":
		if onBook == nil {
			return
		}
		onBook(market.Book{
			Symbol:      msg.Symbol,
			Bids:        levels(msg.Bids),
			Asks:        levels(msg.Asks),
			LastUpdated: time.UnixMilli(msg.Time).UTC(),
		})
	}
}

func levels(in []feedLevel) []market.BookLevel {
	out := make([]market.BookLevel, len(in))
	for i, l := range in {
		out[i] = market.BookLevel{Price: l.Price, Quantity: l.Quantity, Orders: l.Orders}
	}
	return out
}
