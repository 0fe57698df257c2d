//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"tradebot/internal/app"
)

// InitializeApp builds the App via Wire. ctx is the root context of every
// bot and stream; the caller must invoke cleanup on shutdown.
func InitializeApp(ctx context.Context, path app.ConfigPath) (*app.App, func(), error) {
	wire.Build(app.ProviderSet)
	return nil, nil, nil
}
