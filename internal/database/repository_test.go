package database

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"tradebot/internal/config"
	"tradebot/internal/model"
)

var (
	pool *pgxpool.Pool
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	// Define the PostgreSQL container request
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpassword",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	// Without a container runtime only the in-memory tests run.
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Printf("postgres container unavailable, skipping postgres tests: %s", err)
		os.Exit(m.Run())
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		log.Fatalf("could not get container host: %s", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("could not get mapped port: %s", err)
	}

	connStr := "postgres://testuser:testpassword@" + host + ":" + port.Port() + "/testdb"

	pool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("could not connect to database: %s", err)
	}

	if err := (&PostgresRepository{Pool: pool}).Migrate(ctx); err != nil {
		log.Fatalf("could not migrate: %s", err)
	}

	code := m.Run()

	pool.Close()
	if err := pgContainer.Terminate(ctx); err != nil {
		log.Printf("could not stop postgres container: %s", err)
	}
	os.Exit(code)
}

func requirePostgres(t *testing.T) *PostgresRepository {
	t.Helper()
	if pool == nil {
		t.Skip("postgres container not available")
	}
	_, err := pool.Exec(context.Background(), "TRUNCATE trades RESTART IDENTITY")
	require.NoError(t, err)
	return &PostgresRepository{Pool: pool}
}

func TestPostgresRepository_LogTrade(t *testing.T) {
	ctx := context.Background()
	repo := requirePostgres(t)

	trade := model.Trade{
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Symbol:    "BTCUSDT",
		Side:      model.SideBuy,
		Price:     60000.5,
		Quantity:  0.001,
		Strategy:  "MovingAverageCrossover",
	}

	err := repo.LogTrade(ctx, trade)
	assert.NoError(t, err)

	trades, err := repo.Trades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.NotZero(t, trades[0].ID)
	assert.True(t, trade.Timestamp.Equal(trades[0].Timestamp))
	assert.Equal(t, trade.Symbol, trades[0].Symbol)
	assert.Equal(t, trade.Side, trades[0].Side)
	assert.Equal(t, trade.Price, trades[0].Price)
	assert.Equal(t, trade.Quantity, trades[0].Quantity)
	assert.Equal(t, trade.Strategy, trades[0].Strategy)
}

func TestPostgresRepository_TradesNewestFirst(t *testing.T) {
	repo := requirePostgres(t)
	assertNewestFirst(t, repo)
}

func TestPostgresRepository_ConcurrentWrites(t *testing.T) {
	repo := requirePostgres(t)
	assertConcurrentWrites(t, repo)
}

func TestMemoryRepository_TradesNewestFirst(t *testing.T) {
	assertNewestFirst(t, NewMemoryRepository())
}

func TestMemoryRepository_ConcurrentWrites(t *testing.T) {
	assertConcurrentWrites(t, NewMemoryRepository())
}

func TestMemoryRepository_AssignsTimestamp(t *testing.T) {
	repo := NewMemoryRepository()
	before := time.Now().UTC()

	require.NoError(t, repo.LogTrade(context.Background(), model.Trade{Symbol: "ETHUSDT", Side: model.SideSell}))

	trades, err := repo.Trades(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(1), trades[0].ID)
	assert.False(t, trades[0].Timestamp.Before(before))
	assert.Equal(t, time.UTC, trades[0].Timestamp.Location())
}

func TestNewRepository_Memory(t *testing.T) {
	repo, err := NewRepository(context.Background(), config.DatabaseConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	defer repo.Close()
	assert.IsType(t, &MemoryRepository{}, repo)

	_, err = NewRepository(context.Background(), config.DatabaseConfig{Driver: "sqlite"})
	assert.Error(t, err)
}

func assertNewestFirst(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// inserted out of order on purpose
	for _, offset := range []int{2, 0, 3, 1} {
		err := repo.LogTrade(ctx, model.Trade{
			Timestamp: base.Add(time.Duration(offset) * time.Minute),
			Symbol:    "BTCUSDT",
			Side:      model.SideBuy,
			Price:     100 + float64(offset),
			Quantity:  1,
			Strategy:  "BollingerBands",
		})
		require.NoError(t, err)
	}

	trades, err := repo.Trades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 4)
	for i := 1; i < len(trades); i++ {
		assert.False(t, trades[i].Timestamp.After(trades[i-1].Timestamp), "trade %d is newer than trade %d", i, i-1)
	}
	assert.Equal(t, 103.0, trades[0].Price)
}

func assertConcurrentWrites(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	const writers, perWriter = 8, 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, repo.LogTrade(ctx, model.Trade{
					Symbol:   "BTCUSDT",
					Side:     model.SideSell,
					Price:    1,
					Quantity: 1,
					Strategy: "MovingAverageCrossover",
				}))
			}
		}()
	}
	wg.Wait()

	trades, err := repo.Trades(ctx)
	require.NoError(t, err)
	assert.Len(t, trades, writers*perWriter)
}
