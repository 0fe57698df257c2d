package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"

	"tradebot/internal/api"
	"tradebot/internal/bot"
	"tradebot/internal/config"
	"tradebot/internal/database"
	"tradebot/internal/exchange"
	"tradebot/internal/logger"
	"tradebot/internal/stream"
)

// ConfigPath is the directory searched for config.yaml.
type ConfigPath string

// ProviderSet builds an App from a root context and a config path.
var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	ProvideExchange,
	ProvideRepository,
	ProvideHub,
	ProvideRelay,
	ProvideRegistry,
	ProvideHandler,
	ProvideServer,
	wire.Struct(new(App), "*"),
)

// ProvideConfig loads configuration from path and the environment (for Wire).
func ProvideConfig(path ConfigPath) (config.Config, error) {
	cfg, err := config.LoadConfig(string(path))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// ProvideLogger builds the process logger and installs it as the slog default (for Wire).
func ProvideLogger(cfg config.Config) *slog.Logger {
	l := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(l)
	return l
}

// ProvideExchange connects to the configured exchange (for Wire). An
// unreachable exchange is not fatal: the result is nil and exchange-backed
// operations report it as unavailable.
func ProvideExchange(ctx context.Context, cfg config.Config, logger *slog.Logger) (exchange.Client, error) {
	client, err := exchange.NewClient(logger, cfg.Exchange)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Exchange.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		logger.Error("Exchange unreachable, continuing without it", "exchange", client.GetName(), "error", err)
		return nil, nil
	}
	logger.Info("Connected to exchange", "exchange", client.GetName(), "base_url", cfg.Exchange.BaseURL)
	return client, nil
}

// ProvideRepository opens the trade store (for Wire).
func ProvideRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (database.Repository, func(), error) {
	repo, err := database.NewRepository(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Trade store ready", "driver", cfg.Database.Driver)
	return repo, repo.Close, nil
}

// ProvideHub creates the live event hub (for Wire).
func ProvideHub() *stream.Hub {
	return stream.NewHub()
}

// ProvideRelay creates the kline relay; cleanup closes every upstream feed (for Wire).
func ProvideRelay(ctx context.Context, ex exchange.Client, hub *stream.Hub, logger *slog.Logger) (*stream.Relay, func()) {
	relay := stream.NewRelay(ctx, ex, hub, logger)
	return relay, relay.Close
}

// ProvideRegistry creates the bot registry; cleanup stops every bot (for Wire).
func ProvideRegistry(ctx context.Context, cfg config.Config, ex exchange.Client, repo database.Repository, hub *stream.Hub, logger *slog.Logger) (*bot.Registry, func()) {
	registry := bot.NewRegistry(ctx, ex, repo, hub, logger, bot.OptionsFromConfig(cfg.Bot))
	return registry, registry.StopAll
}

// ProvideHandler creates the HTTP handler (for Wire).
func ProvideHandler(cfg config.Config, ex exchange.Client, registry *bot.Registry, repo database.Repository, relay *stream.Relay, hub *stream.Hub, logger *slog.Logger) *api.Handler {
	if strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	return api.NewHandler(ex, registry, repo, relay, hub, logger, cfg.Stream.Buffer)
}

// ProvideServer creates the HTTP server (for Wire).
func ProvideServer(cfg config.Config, handler *api.Handler) *http.Server {
	return &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler.SetupRoutes(),
	}
}
