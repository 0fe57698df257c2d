package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradebot/internal/bot"
	"tradebot/internal/saver"
	"tradebot/internal/strategy"
)

type startBotRequest struct {
	Symbol   string          `json:"symbol"`
	Interval string          `json:"interval"`
	Strategy string          `json:"strategy"`
	Quantity *float64        `json:"quantity"`
	Params   strategy.Params `json:"params"`
}

// Status handles GET /api/status.
func (h *Handler) Status(c *gin.Context) {
	connection := "ok"
	if h.exchange == nil {
		connection = "error"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":              "running",
		"exchange_connection": connection,
		"subscriptions":       h.relay.Subscriptions(),
		"active_bots":         len(h.bots.List()),
		"dropped_events":      h.hub.Dropped(),
	})
}

// Balance handles GET /api/balance.
func (h *Handler) Balance(c *gin.Context) {
	if h.exchange == nil {
		h.handleError(c, bot.ErrUpstreamUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	balances, err := h.exchange.Balances(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, balances)
}

// StartBot handles POST /api/bot/start. Every body field is optional.
func (h *Handler) StartBot(c *gin.Context) {
	if h.exchange == nil {
		h.handleError(c, bot.ErrUpstreamUnavailable)
		return
	}

	var req startBotRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.handleError(c, fmt.Errorf("%w: %w", bot.ErrInvalidConfig, err))
		return
	}
	if req.Symbol == "" {
		req.Symbol = DefaultSymbol
	}
	if req.Interval == "" {
		req.Interval = DefaultInterval
	}
	if req.Strategy == "" {
		req.Strategy = DefaultStrategy
	}
	quantity := DefaultQuantity
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cfg, err := strategy.Parse(req.Strategy, req.Params)
	if err != nil {
		h.handleError(c, err)
		return
	}

	id, err := h.bots.CreateAndStart(req.Symbol, req.Interval, quantity, cfg)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.logger.Info("Bot started via API", "bot_id", id, "symbol", req.Symbol, "interval", req.Interval, "strategy", cfg.Name())
	c.JSON(http.StatusOK, gin.H{"message": "Bot started", "bot_id": id})
}

// StopBot handles POST /api/bot/stop/:id.
func (h *Handler) StopBot(c *gin.Context) {
	id := c.Param("id")
	if err := h.bots.Stop(id); err != nil {
		h.handleError(c, err)
		return
	}
	h.logger.Info("Bot stopped via API", "bot_id", id)
	c.JSON(http.StatusOK, gin.H{"message": "Bot stopped"})
}

// ActiveBots handles GET /api/bots/active.
func (h *Handler) ActiveBots(c *gin.Context) {
	c.JSON(http.StatusOK, h.bots.List())
}

// Trades handles GET /api/trades.
func (h *Handler) Trades(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	trades, err := h.trades.Trades(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, trades)
}

// ExportTrades handles GET /api/trades/export?format=csv|json|parquet.
func (h *Handler) ExportTrades(c *gin.Context) {
	s, err := saver.NewTradeSaver(c.DefaultQuery("format", "csv"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	trades, err := h.trades.Trades(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := s.Save(&buf, trades); err != nil {
		h.handleError(c, fmt.Errorf("export trades: %w", err))
		return
	}

	filename := fmt.Sprintf("trades-%s.%s", time.Now().UTC().Format("20060102T150405Z"), s.Extension())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, s.ContentType(), buf.Bytes())
}

// Klines handles GET /api/klines.
func (h *Handler) Klines(c *gin.Context) {
	if h.exchange == nil {
		h.handleError(c, bot.ErrUpstreamUnavailable)
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(c.DefaultQuery("symbol", DefaultSymbol)))
	interval := strings.TrimSpace(c.DefaultQuery("interval", DefaultInterval))
	limit := DefaultKlineLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxKlineLimit {
			h.handleError(c, fmt.Errorf("%w: limit must be between 1 and %d", errBadRequest, MaxKlineLimit))
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	bars, err := h.exchange.HistoricalCandles(ctx, symbol, interval, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, bars)
}
