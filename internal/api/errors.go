package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradebot/internal/bot"
	"tradebot/internal/saver"
	"tradebot/internal/strategy"
	"tradebot/internal/stream"
)

var errBadRequest = errors.New("bad request")

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, bot.ErrUpstreamUnavailable), errors.Is(err, stream.ErrUpstreamUnavailable),
		errors.Is(err, bot.ErrClosed), errors.Is(err, stream.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, bot.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, bot.ErrInvalidConfig),
		errors.Is(err, strategy.ErrInvalidConfig),
		errors.Is(err, stream.ErrInvalidKey),
		errors.Is(err, saver.ErrUnsupportedFormat),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleError logs the error and sends the mapped HTTP response.
func (h *Handler) handleError(c *gin.Context, err error) {
	status := statusFor(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(c.Request.Context(), level, "API error",
		slog.String("request_id", requestID(c)),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
		slog.Int("status_code", status),
	)

	c.JSON(status, gin.H{
		"error":      err.Error(),
		"request_id": requestID(c),
	})
}
