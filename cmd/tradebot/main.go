package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tradebot/internal/app"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	// Bots and streams outlive the signal: they are stopped by cleanup, not
	// by cancellation.
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, cleanup, err := InitializeApp(rootCtx, app.ConfigPath(*configPath))
	if err != nil {
		log.Fatalf("cannot initialize app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := a.Run(ctx)
	cleanup()
	a.Logger.Info("Shutdown complete")

	if runErr != nil {
		a.Logger.Error("Server stopped with error", "error", runErr)
		os.Exit(1)
	}
}
