package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tradebot/internal/bot"
	"tradebot/internal/exchange"
	"tradebot/internal/model"
	"tradebot/internal/strategy"
	"tradebot/internal/stream"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultSymbol       = "BTCUSDT"
	DefaultInterval     = "1m"
	DefaultStrategy     = strategy.KindMACrossover
	DefaultQuantity     = 0.001
	DefaultKlineLimit   = 500
	MaxKlineLimit       = 1000
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// BotManager starts, stops and lists bots.
type BotManager interface {
	CreateAndStart(symbol, interval string, quantity float64, cfg strategy.Config) (string, error)
	Stop(id string) error
	List() []bot.Info
}

// TradeReader reads the trade history.
type TradeReader interface {
	Trades(ctx context.Context) ([]model.Trade, error)
}

// StreamRelay opens live kline feeds on demand.
type StreamRelay interface {
	Subscribe(symbol, interval string) error
	Subscriptions() []stream.Key
}

// Handler serves the REST API and the live event socket.
type Handler struct {
	exchange exchange.Client
	bots     BotManager
	trades   TradeReader
	relay    StreamRelay
	hub      *stream.Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
	wsBuffer int
}

// NewHandler wires the handler. ex may be nil when the exchange could not be
// reached at startup; exchange-backed routes then answer 503.
func NewHandler(ex exchange.Client, bots BotManager, trades TradeReader, relay StreamRelay, hub *stream.Hub, logger *slog.Logger, wsBuffer int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if wsBuffer < 1 {
		wsBuffer = 64
	}
	return &Handler{
		exchange: ex,
		bots:     bots,
		trades:   trades,
		relay:    relay,
		hub:      hub,
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		wsBuffer: wsBuffer,
	}
}

// SetupRoutes configures all API routes.
func (h *Handler) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(h.logger))
	router.Use(recoveryMiddleware(h.logger))
	router.Use(corsMiddleware())

	api := router.Group("/api")
	api.GET("/status", h.Status)
	api.GET("/balance", h.Balance)
	api.POST("/bot/start", h.StartBot)
	api.POST("/bot/stop/:id", h.StopBot)
	api.GET("/bots/active", h.ActiveBots)
	api.GET("/trades", h.Trades)
	api.GET("/trades/export", h.ExportTrades)
	api.GET("/klines", h.Klines)

	router.GET("/ws", h.Stream)

	return router
}
