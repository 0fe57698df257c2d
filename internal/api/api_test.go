package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tradebot/internal/bot"
	"tradebot/internal/exchange"
	"tradebot/internal/logger"
	"tradebot/internal/model"
	"tradebot/internal/strategy"
	"tradebot/internal/stream"
)

type MockExchange struct {
	mock.Mock
}

func (m *MockExchange) GetName() string { return "mock" }

func (m *MockExchange) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
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

type MockBotManager struct {
	mock.Mock
}

func (m *MockBotManager) CreateAndStart(symbol, interval string, quantity float64, cfg strategy.Config) (string, error) {
	args := m.Called(symbol, interval, quantity, cfg)
	return args.String(0), args.Error(1)
}

func (m *MockBotManager) Stop(id string) error {
	return m.Called(id).Error(0)
}

func (m *MockBotManager) List() []bot.Info {
	args := m.Called()
	infos, _ := args.Get(0).([]bot.Info)
	return infos
}

type MockTradeReader struct {
	mock.Mock
}

func (m *MockTradeReader) Trades(ctx context.Context) ([]model.Trade, error) {
	args := m.Called(ctx)
	trades, _ := args.Get(0).([]model.Trade)
	return trades, args.Error(1)
}

type MockRelay struct {
	mock.Mock
}

func (m *MockRelay) Subscribe(symbol, interval string) error {
	return m.Called(symbol, interval).Error(0)
}

func (m *MockRelay) Subscriptions() []stream.Key {
	args := m.Called()
	keys, _ := args.Get(0).([]stream.Key)
	return keys
}

type fixture struct {
	exchange *MockExchange
	bots     *MockBotManager
	trades   *MockTradeReader
	relay    *MockRelay
	hub      *stream.Hub
	router   *gin.Engine
}

func setupGinTestMode() {
	gin.SetMode(gin.TestMode)
}

func newFixture(connected bool) *fixture {
	setupGinTestMode()

	f := &fixture{
		bots:   new(MockBotManager),
		trades: new(MockTradeReader),
		relay:  new(MockRelay),
		hub:    stream.NewHub(),
	}
	var ex exchange.Client
	if connected {
		f.exchange = new(MockExchange)
		ex = f.exchange
	}
	f.router = NewHandler(ex, f.bots, f.trades, f.relay, f.hub, logger.Discard(), 8).SetupRoutes()
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestSetupRoutes(t *testing.T) {
	f := newFixture(true)

	registered := make(map[string]bool)
	for _, route := range f.router.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, route := range []string{
		"GET /api/status",
		"GET /api/balance",
		"POST /api/bot/start",
		"POST /api/bot/stop/:id",
		"GET /api/bots/active",
		"GET /api/trades",
		"GET /api/trades/export",
		"GET /api/klines",
		"GET /ws",
	} {
		assert.True(t, registered[route], "%s should be registered", route)
	}
}

func TestMiddleware(t *testing.T) {
	f := newFixture(true)
	f.bots.On("List").Return([]bot.Info{})

	w := f.do(http.MethodGet, "/api/bots/active", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeaderKey))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "/api/bots/active", nil)
	req.Header.Set(RequestIDHeaderKey, "req-123")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeaderKey))

	w = f.do(http.MethodOptions, "/api/bot/start", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestStatus(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		f := newFixture(true)
		f.relay.On("Subscriptions").Return([]stream.Key{{Symbol: "BTCUSDT", Interval: "1m"}})
		f.bots.On("List").Return([]bot.Info{{BotID: "a"}})

		w := f.do(http.MethodGet, "/api/status", "")
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Status             string       `json:"status"`
			ExchangeConnection string       `json:"exchange_connection"`
			Subscriptions      []stream.Key `json:"subscriptions"`
			ActiveBots         int          `json:"active_bots"`
		}
		decode(t, w, &body)
		assert.Equal(t, "running", body.Status)
		assert.Equal(t, "ok", body.ExchangeConnection)
		assert.Equal(t, []stream.Key{{Symbol: "BTCUSDT", Interval: "1m"}}, body.Subscriptions)
		assert.Equal(t, 1, body.ActiveBots)
	})

	t.Run("disconnected", func(t *testing.T) {
		f := newFixture(false)
		f.relay.On("Subscriptions").Return([]stream.Key{})
		f.bots.On("List").Return([]bot.Info{})

		w := f.do(http.MethodGet, "/api/status", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"exchange_connection":"error"`)
	})
}

func TestBalance(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		f := newFixture(false)
		w := f.do(http.MethodGet, "/api/balance", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("ok", func(t *testing.T) {
		f := newFixture(true)
		f.exchange.On("Balances", mock.Anything).Return([]exchange.Balance{{Asset: "BTC", Free: 0.5}}, nil)

		w := f.do(http.MethodGet, "/api/balance", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[{"asset":"BTC","free":0.5,"locked":0}]`, w.Body.String())
	})

	t.Run("exchange error", func(t *testing.T) {
		f := newFixture(true)
		f.exchange.On("Balances", mock.Anything).Return(nil, errors.New("signature rejected"))

		w := f.do(http.MethodGet, "/api/balance", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestStartBot(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		f := newFixture(true)
		want := strategy.MovingAverageCrossover{ShortWindow: strategy.DefaultShortWindow, LongWindow: strategy.DefaultLongWindow}
		f.bots.On("CreateAndStart", "BTCUSDT", "1m", 0.001, want).Return("bot-1", nil).Once()

		w := f.do(http.MethodPost, "/api/bot/start", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.JSONEq(t, `{"message":"Bot started","bot_id":"bot-1"}`, w.Body.String())
		f.bots.AssertExpectations(t)
	})

	t.Run("bollinger with params", func(t *testing.T) {
		f := newFixture(true)
		want := strategy.BollingerBands{Window: 10, StdDevMultiplier: 1.5}
		f.bots.On("CreateAndStart", "ethusdt", "5m", 0.5, want).Return("bot-2", nil).Once()

		w := f.do(http.MethodPost, "/api/bot/start",
			`{"symbol":"ethusdt","interval":"5m","strategy":"bollinger_bands","quantity":0.5,"params":{"window":10,"std_dev":1.5}}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		f.bots.AssertExpectations(t)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		f := newFixture(true)
		w := f.do(http.MethodPost, "/api/bot/start", `{"strategy":"martingale"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.bots.AssertNotCalled(t, "CreateAndStart", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newFixture(true)
		w := f.do(http.MethodPost, "/api/bot/start", `{"symbol":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejected quantity", func(t *testing.T) {
		f := newFixture(true)
		f.bots.On("CreateAndStart", "BTCUSDT", "1m", -1.0, mock.Anything).
			Return("", fmt.Errorf("%w: quantity must be positive", bot.ErrInvalidConfig)).Once()

		w := f.do(http.MethodPost, "/api/bot/start", `{"quantity":-1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("explicit zero window", func(t *testing.T) {
		f := newFixture(true)
		w := f.do(http.MethodPost, "/api/bot/start", `{"params":{"short_window":0}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.bots.AssertNotCalled(t, "CreateAndStart", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("registry closed", func(t *testing.T) {
		f := newFixture(true)
		f.bots.On("CreateAndStart", "BTCUSDT", "1m", 0.001, mock.Anything).Return("", bot.ErrClosed).Once()

		w := f.do(http.MethodPost, "/api/bot/start", `{}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("exchange unavailable", func(t *testing.T) {
		f := newFixture(false)
		w := f.do(http.MethodPost, "/api/bot/start", `{}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestStopBot(t *testing.T) {
	f := newFixture(true)
	f.bots.On("Stop", "bot-1").Return(nil).Once()
	f.bots.On("Stop", "missing").Return(fmt.Errorf("%w: missing", bot.ErrNotFound)).Once()

	w := f.do(http.MethodPost, "/api/bot/stop/bot-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Bot stopped"}`, w.Body.String())

	w = f.do(http.MethodPost, "/api/bot/stop/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	f.bots.AssertExpectations(t)
}

func TestActiveBots(t *testing.T) {
	f := newFixture(true)
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f.bots.On("List").Return([]bot.Info{{
		BotID: "bot-1", Symbol: "BTCUSDT", Interval: "1m", Strategy: "MovingAverageCrossover",
		Quantity: 0.001, IsRunning: true, State: "running", CreatedAt: created,
	}})

	w := f.do(http.MethodGet, "/api/bots/active", "")
	require.Equal(t, http.StatusOK, w.Code)

	var infos []bot.Info
	decode(t, w, &infos)
	require.Len(t, infos, 1)
	assert.Equal(t, "bot-1", infos[0].BotID)
	assert.True(t, infos[0].IsRunning)
	assert.Equal(t, "MovingAverageCrossover", infos[0].Strategy)
}

var storedTrades = []model.Trade{
	{ID: 1, Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), Symbol: "BTCUSDT", Side: model.SideBuy, Price: 60000, Quantity: 0.001, Strategy: "MovingAverageCrossover"},
}

func TestTrades(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f := newFixture(false)
		f.trades.On("Trades", mock.Anything).Return(storedTrades, nil)

		w := f.do(http.MethodGet, "/api/trades", "")
		require.Equal(t, http.StatusOK, w.Code)

		var got []model.Trade
		decode(t, w, &got)
		assert.Equal(t, storedTrades, got)
	})

	t.Run("store error", func(t *testing.T) {
		f := newFixture(false)
		f.trades.On("Trades", mock.Anything).Return(nil, errors.New("connection refused"))

		w := f.do(http.MethodGet, "/api/trades", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestExportTrades(t *testing.T) {
	t.Run("csv", func(t *testing.T) {
		f := newFixture(false)
		f.trades.On("Trades", mock.Anything).Return(storedTrades, nil)

		w := f.do(http.MethodGet, "/api/trades/export?format=csv", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
		assert.True(t, strings.HasPrefix(w.Body.String(), "id,timestamp,symbol,side,price,quantity,strategy\n"))
	})

	t.Run("parquet", func(t *testing.T) {
		f := newFixture(false)
		f.trades.On("Trades", mock.Anything).Return(storedTrades, nil)

		w := f.do(http.MethodGet, "/api/trades/export?format=parquet", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PAR1")))
	})

	t.Run("unsupported format", func(t *testing.T) {
		f := newFixture(false)
		w := f.do(http.MethodGet, "/api/trades/export?format=xlsx", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.trades.AssertNotCalled(t, "Trades", mock.Anything)
	})
}

func TestKlines(t *testing.T) {
	bars := []model.PriceBar{{Time: 1700000000, Open: 1, High: 2, Low: 0.5, Close: 1.5}}

	t.Run("defaults", func(t *testing.T) {
		f := newFixture(true)
		f.exchange.On("HistoricalCandles", mock.Anything, "BTCUSDT", "1m", DefaultKlineLimit).Return(bars, nil).Once()

		w := f.do(http.MethodGet, "/api/klines", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[{"time":1700000000,"open":1,"high":2,"low":0.5,"close":1.5}]`, w.Body.String())
	})

	t.Run("explicit query", func(t *testing.T) {
		f := newFixture(true)
		f.exchange.On("HistoricalCandles", mock.Anything, "ETHUSDT", "5m", 10).Return(bars, nil).Once()

		w := f.do(http.MethodGet, "/api/klines?symbol=ethusdt&interval=5m&limit=10", "")
		require.Equal(t, http.StatusOK, w.Code)
		f.exchange.AssertExpectations(t)
	})

	t.Run("bad limit", func(t *testing.T) {
		f := newFixture(true)
		for _, limit := range []string{"0", "abc", "1001"} {
			w := f.do(http.MethodGet, "/api/klines?limit="+limit, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, limit)
		}
	})

	t.Run("unavailable", func(t *testing.T) {
		f := newFixture(false)
		w := f.do(http.MethodGet, "/api/klines", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func readEvent(t *testing.T, conn *websocket.Conn) outboundMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg outboundMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStream(t *testing.T) {
	f := newFixture(true)
	f.relay.On("Subscribe", "btcusdt", "1m").Return(nil).Once()
	f.relay.On("Subscribe", "", "1m").Return(stream.ErrInvalidKey).Once()

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, 5*time.Second, 5*time.Millisecond)

	f.hub.Publish(bot.TopicTrades, storedTrades[0])
	msg := readEvent(t, conn)
	assert.Equal(t, bot.TopicTrades, msg.Event)
	assert.Equal(t, "BTCUSDT", msg.Data.(map[string]any)["symbol"])

	// bars are only delivered after subscribing
	f.hub.Publish("BTCUSDT", model.PriceBar{Time: 1})

	require.NoError(t, conn.WriteJSON(inboundMessage{Action: "subscribe", Symbol: "", Interval: "1m"}))
	msg = readEvent(t, conn)
	assert.Equal(t, eventError, msg.Event)

	require.NoError(t, conn.WriteJSON(inboundMessage{Action: "subscribe", Symbol: "btcusdt", Interval: "1m"}))
	msg = readEvent(t, conn)
	assert.Equal(t, eventSubscribed, msg.Event)
	assert.Equal(t, map[string]any{"symbol": "BTCUSDT", "interval": "1m"}, msg.Data)

	f.hub.Publish("BTCUSDT", model.PriceBar{Time: 1700000040, Open: 1, High: 2, Low: 0.5, Close: 1.5})
	msg = readEvent(t, conn)
	assert.Equal(t, "BTCUSDT", msg.Event)
	assert.Equal(t, map[string]any{"time": 1700000040.0, "open": 1.0, "high": 2.0, "low": 0.5, "close": 1.5}, msg.Data)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("nonsense")))
	msg = readEvent(t, conn)
	assert.Equal(t, eventError, msg.Event)

	conn.Close()
	assert.Eventually(t, func() bool { return f.hub.Subscribers() == 0 }, 5*time.Second, 5*time.Millisecond)
	f.relay.AssertExpectations(t)
}
