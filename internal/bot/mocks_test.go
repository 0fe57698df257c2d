package bot

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"tradebot/internal/exchange"
	"tradebot/internal/model"
)

type MockExchange struct {
	mock.Mock
}

func (m *MockExchange) GetName() string { return "mock" }

func (m *MockExchange) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockExchange) HistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]model.PriceBar, error) {
	args := m.Called(ctx, symbol, interval, limit)
	bars, _ := args.Get(0).([]model.PriceBar)
	return bars, args.Error(1)
}

func (m *MockExchange) SubmitMarketOrder(ctx context.Context, symbol string, side model.Side, quantity float64) (exchange.OrderAck, error) {
	args := m.Called(ctx, symbol, side, quantity)
	return args.Get(0).(exchange.OrderAck), args.Error(1)
}

func (m *MockExchange) SubscribeKlines(ctx context.Context, symbol, interval string, onMessage func([]byte)) (exchange.Subscription, error) {
	args := m.Called(ctx, symbol, interval, onMessage)
	sub, _ := args.Get(0).(exchange.Subscription)
	return sub, args.Error(1)
}

func (m *MockExchange) Balances(ctx context.Context) ([]exchange.Balance, error) {
	args := m.Called(ctx)
	balances, _ := args.Get(0).([]exchange.Balance)
	return balances, args.Error(1)
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) LogTrade(ctx context.Context, trade model.Trade) error {
	args := m.Called(ctx, trade)
	return args.Error(0)
}

func (m *MockRepository) Trades(ctx context.Context) ([]model.Trade, error) {
	args := m.Called(ctx)
	trades, _ := args.Get(0).([]model.Trade)
	return trades, args.Error(1)
}

func (m *MockRepository) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRepository) Close() {}

type recordingSink struct {
	mu     sync.Mutex
	events []event
}

type event struct {
	topic   string
	payload any
}

func (s *recordingSink) Publish(topic string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event{topic: topic, payload: payload})
}

func (s *recordingSink) trades() []model.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Trade
	for _, e := range s.events {
		if t, ok := e.payload.(model.Trade); ok && e.topic == TopicTrades {
			out = append(out, t)
		}
	}
	return out
}

func barsOf(closes ...float64) []model.PriceBar {
	bars := make([]model.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = model.PriceBar{Time: int64(1700000000 + 60*i), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

// Short 2 / long 5 crosses upward on the last bar only.
var buySeries = barsOf(10, 10, 10, 9, 9, 9, 9, 9, 9, 9, 8, 11)

var flatSeries = barsOf(10, 10, 10, 10, 10, 10, 10, 10)
