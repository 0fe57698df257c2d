package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradebot/internal/model"
)

// MemoryRepository keeps trades in process memory. It is used when no
// database is configured.
type MemoryRepository struct {
	mu     sync.RWMutex
	trades []model.Trade
	nextID int64
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1}
}

func (r *MemoryRepository) Migrate(ctx context.Context) error { return nil }

func (r *MemoryRepository) Close() {}

// LogTrade appends a trade and assigns its id.
func (r *MemoryRepository) LogTrade(ctx context.Context, trade model.Trade) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if trade.Timestamp.IsZero() {
		trade.Timestamp = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	trade.ID = r.nextID
	r.nextID++
	r.trades = append(r.trades, trade)
	return nil
}

// Trades returns a copy of all trades, newest first.
func (r *MemoryRepository) Trades(ctx context.Context) ([]model.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	result := make([]model.Trade, len(r.trades))
	copy(result, r.trades)
	r.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].ID > result[j].ID
		}
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return result, nil
}
