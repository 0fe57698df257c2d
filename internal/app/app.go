package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"tradebot/internal/bot"
	"tradebot/internal/config"
	"tradebot/internal/database"
	"tradebot/internal/exchange"
	"tradebot/internal/stream"
)

// App holds the long-lived components built by Wire.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Exchange exchange.Client
	Repo     database.Repository
	Hub      *stream.Hub
	Relay    *stream.Relay
	Registry *bot.Registry
	Server   *http.Server
}

// Run serves HTTP until ctx ends or the listener fails, then shuts the
// server down gracefully. Bots, relay and store are released by the
// injector's cleanup.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("HTTP server listening", "addr", a.Server.Addr, "exchange_connected", a.Exchange != nil)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info("Shutting down HTTP server")

		timeout := a.Config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
