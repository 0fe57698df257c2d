package exchange

import (
	"context"
	"errors"
	"fmt"

	"tradebot/internal/model"
)

// ErrUnknownExchange is returned by NewClient for unsupported venues.
var ErrUnknownExchange = errors.New("unknown exchange")

// Client defines the exchange surface consumed by bots and the stream relay.
type Client interface {
	GetName() string
	Ping(ctx context.Context) error
	// HistoricalCandles returns the most recent limit candles, oldest first.
	HistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]model.PriceBar, error)
	// SubmitMarketOrder places a market order. The ack carries a fill price
	// only when the venue reports one.
	SubmitMarketOrder(ctx context.Context, symbol string, side model.Side, quantity float64) (OrderAck, error)
	// SubscribeKlines opens a push subscription. onMessage receives each raw
	// frame on the subscription's own goroutine until the handle is closed.
	SubscribeKlines(ctx context.Context, symbol, interval string, onMessage func([]byte)) (Subscription, error)
	Balances(ctx context.Context) ([]Balance, error)
}

// Subscription is a handle on an open push feed.
type Subscription interface {
	// Close stops the feed and waits for its goroutine to exit.
	Close()
}

// OrderAck is the exchange's acknowledgement of a submitted order.
type OrderAck struct {
	OrderID   string
	FillPrice float64
	HasFill   bool
}

// Balance is a non-zero asset balance.
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// APIError is an error payload returned by the exchange.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange api error: status %d, code %d: %s", e.Status, e.Code, e.Message)
}
