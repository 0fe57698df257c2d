package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradebot/internal/model"
)

var migrations = []string{`
CREATE TABLE IF NOT EXISTS trades (
	id BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	symbol VARCHAR(20) NOT NULL,
	side VARCHAR(4) NOT NULL CHECK (side IN ('BUY', 'SELL')),
	price DOUBLE PRECISION NOT NULL,
	quantity DOUBLE PRECISION NOT NULL,
	strategy VARCHAR(64) NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS trades_timestamp_idx ON trades (timestamp DESC)`,
}

// PostgresRepository stores trades in PostgreSQL.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// Migrate creates the trades table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := r.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// LogTrade inserts a trade. A zero timestamp is replaced with the current UTC time.
func (r *PostgresRepository) LogTrade(ctx context.Context, trade model.Trade) error {
	if trade.Timestamp.IsZero() {
		trade.Timestamp = time.Now().UTC()
	}
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO trades (timestamp, symbol, side, price, quantity, strategy) VALUES ($1, $2, $3, $4, $5, $6)`,
		trade.Timestamp.UTC(), trade.Symbol, string(trade.Side), trade.Price, trade.Quantity, trade.Strategy,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// Trades returns all trades ordered by timestamp descending.
func (r *PostgresRepository) Trades(ctx context.Context) ([]model.Trade, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT id, timestamp, symbol, side, price, quantity, strategy FROM trades ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	trades, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Trade])
	if err != nil {
		return nil, fmt.Errorf("scan trades: %w", err)
	}
	for i := range trades {
		trades[i].Timestamp = trades[i].Timestamp.UTC()
	}
	return trades, nil
}

func (r *PostgresRepository) Close() {
	r.Pool.Close()
}
