package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"tradebot/internal/exchange"
	"tradebot/internal/model"
)

var (
	// ErrUpstreamUnavailable is returned when no exchange client is connected.
	ErrUpstreamUnavailable = errors.New("exchange stream unavailable")
	// ErrClosed is returned by Subscribe after Close.
	ErrClosed = errors.New("relay closed")
	// ErrInvalidKey is returned for an empty symbol or interval.
	ErrInvalidKey = errors.New("invalid stream key")

	errNotKline = errors.New("not a kline event")
)

// Publisher is the fan-out side of the relay.
type Publisher interface {
	Publish(topic string, payload any)
}

// Key identifies one upstream kline subscription.
type Key struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

// Relay keeps at most one upstream kline subscription per key and republishes
// normalized bars on the symbol's topic.
type Relay struct {
	ctx      context.Context
	exchange exchange.Client
	pub      Publisher
	logger   *slog.Logger

	mu     sync.Mutex
	subs   map[Key]exchange.Subscription
	closed bool
}

// NewRelay creates a relay. ex may be nil when the exchange is unreachable.
func NewRelay(ctx context.Context, ex exchange.Client, pub Publisher, logger *slog.Logger) *Relay {
	return &Relay{
		ctx:      ctx,
		exchange: ex,
		pub:      pub,
		logger:   logger,
		subs:     make(map[Key]exchange.Subscription),
	}
}

// Subscribe opens the upstream subscription for (symbol, interval) unless it
// is already open. The lock is held across the open so racing callers
// produce a single upstream subscription.
func (r *Relay) Subscribe(symbol, interval string) error {
	key := Key{Symbol: strings.ToUpper(strings.TrimSpace(symbol)), Interval: strings.TrimSpace(interval)}
	if key.Symbol == "" || key.Interval == "" {
		return fmt.Errorf("%w: symbol %q interval %q", ErrInvalidKey, symbol, interval)
	}
	if r.exchange == nil {
		return ErrUpstreamUnavailable
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, ok := r.subs[key]; ok {
		return nil
	}

	sub, err := r.exchange.SubscribeKlines(r.ctx, key.Symbol, key.Interval, r.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s %s: %w", key.Symbol, key.Interval, err)
	}
	r.subs[key] = sub
	r.logger.Info("Subscribed to kline stream", "symbol", key.Symbol, "interval", key.Interval)
	return nil
}

// Subscriptions lists the open upstream subscriptions.
func (r *Relay) Subscriptions() []Key {
	r.mu.Lock()
	keys := make([]Key, 0, len(r.subs))
	for key := range r.subs {
		keys = append(keys, key)
	}
	r.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Symbol == keys[j].Symbol {
			return keys[i].Interval < keys[j].Interval
		}
		return keys[i].Symbol < keys[j].Symbol
	})
	return keys
}

// Close tears down every upstream subscription. Later Subscribe calls fail.
func (r *Relay) Close() {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[Key]exchange.Subscription)
	r.closed = true
	r.mu.Unlock()

	for key, sub := range subs {
		sub.Close()
		r.logger.Info("Closed kline stream", "symbol", key.Symbol, "interval", key.Interval)
	}
}

func (r *Relay) handle(raw []byte) {
	topic, bar, err := normalize(raw)
	if err != nil {
		if !errors.Is(err, errNotKline) {
			r.logger.Warn("Dropping malformed stream message", "error", err)
		}
		return
	}
	r.pub.Publish(topic, bar)
}

type klineEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Kline  struct {
		Start  int64  `json:"t"`
		Symbol string `json:"s"`
		Open   string `json:"o"`
		High   string `json:"h"`
		Low    string `json:"l"`
		Close  string `json:"c"`
	} `json:"k"`
}

// normalize converts a raw kline frame into the canonical bar and the topic
// it is published on.
func normalize(raw []byte) (string, model.PriceBar, error) {
	var ev klineEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return "", model.PriceBar{}, fmt.Errorf("decode stream message: %w", err)
	}
	if ev.Event != "kline" {
		return "", model.PriceBar{}, errNotKline
	}

	topic := ev.Kline.Symbol
	if topic == "" {
		topic = ev.Symbol
	}
	if topic == "" {
		return "", model.PriceBar{}, errors.New("kline event without symbol")
	}

	bar := model.PriceBar{Time: ev.Kline.Start / 1000}
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", ev.Kline.Open, &bar.Open},
		{"high", ev.Kline.High, &bar.High},
		{"low", ev.Kline.Low, &bar.Low},
		{"close", ev.Kline.Close, &bar.Close},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return "", model.PriceBar{}, fmt.Errorf("parse kline %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = v
	}
	return strings.ToUpper(topic), bar, nil
}
