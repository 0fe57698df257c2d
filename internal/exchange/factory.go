package exchange

import (
	"fmt"
	"log/slog"
	"strings"

	"tradebot/internal/config"
)

// NewClient creates a new exchange client based on the given configuration.
func NewClient(logger *slog.Logger, cfg config.ExchangeConfig) (Client, error) {
	switch strings.ToLower(cfg.Name) {
	case "binance":
		return NewBinanceClient(logger, cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExchange, cfg.Name)
	}
}
