package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"tradebot/internal/config"
	"tradebot/internal/model"
)

// Repository defines the standard interface for trade persistence.
// Trades are only ever appended and queried.
type Repository interface {
	LogTrade(ctx context.Context, trade model.Trade) error
	// Trades returns every recorded trade, newest first.
	Trades(ctx context.Context) ([]model.Trade, error)
	Migrate(ctx context.Context) error
	Close()
}

// NewRepository opens the repository selected by cfg.Driver and ensures its
// schema exists.
func NewRepository(ctx context.Context, cfg config.DatabaseConfig) (Repository, error) {
	var repo Repository
	switch cfg.Driver {
	case config.DriverMemory:
		repo = NewMemoryRepository()
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		repo = &PostgresRepository{Pool: pool}
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("migrate trade store: %w", err)
	}
	return repo, nil
}
