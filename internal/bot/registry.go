package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tradebot/internal/database"
	"tradebot/internal/exchange"
	"tradebot/internal/strategy"
)

var (
	// ErrUpstreamUnavailable is returned when no exchange client is connected.
	ErrUpstreamUnavailable = errors.New("exchange client unavailable")
	// ErrNotFound is returned for an unknown bot id.
	ErrNotFound = errors.New("bot not found")
	// ErrInvalidConfig is returned for a rejected bot request.
	ErrInvalidConfig = errors.New("invalid bot config")
	// ErrClosed is returned by CreateAndStart after StopAll.
	ErrClosed = errors.New("bot registry closed")
)

// Registry owns the running bots, keyed by id.
type Registry struct {
	ctx      context.Context
	exchange exchange.Client
	repo     database.Repository
	sink     EventSink
	logger   *slog.Logger
	opts     Options

	mu     sync.RWMutex
	bots   map[string]*Bot
	closed bool
}

// NewRegistry creates an empty registry. ctx is handed to every bot and
// bounds its exchange and store calls. ex may be nil when the exchange could
// not be reached at startup.
func NewRegistry(ctx context.Context, ex exchange.Client, repo database.Repository, sink EventSink, logger *slog.Logger, opts Options) *Registry {
	return &Registry{
		ctx:      ctx,
		exchange: ex,
		repo:     repo,
		sink:     sink,
		logger:   logger,
		opts:     opts,
		bots:     make(map[string]*Bot),
	}
}

// CreateAndStart registers a new bot and starts its loop.
func (r *Registry) CreateAndStart(symbol, interval string, quantity float64, cfg strategy.Config) (string, error) {
	if r.exchange == nil {
		return "", ErrUpstreamUnavailable
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	interval = strings.TrimSpace(interval)
	switch {
	case symbol == "":
		return "", fmt.Errorf("%w: symbol is required", ErrInvalidConfig)
	case interval == "":
		return "", fmt.Errorf("%w: interval is required", ErrInvalidConfig)
	case quantity <= 0 || math.IsNaN(quantity) || math.IsInf(quantity, 0):
		return "", fmt.Errorf("%w: quantity must be positive, got %v", ErrInvalidConfig, quantity)
	case cfg == nil:
		return "", fmt.Errorf("%w: strategy is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if lookback := cfg.MinBars() + r.opts.LookbackMargin; lookback > exchange.MaxKlineLimit {
		return "", fmt.Errorf("%w: %s needs %d candles per cycle, exchange returns at most %d",
			ErrInvalidConfig, cfg.Name(), lookback, exchange.MaxKlineLimit)
	}

	id := uuid.NewString()
	b := New(id, Params{Symbol: symbol, Interval: interval, Quantity: quantity, Strategy: cfg},
		r.exchange, r.repo, r.sink, r.logger, r.opts)

	// Only running bots are ever visible through List.
	if err := b.Start(r.ctx); err != nil {
		return "", err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		b.Stop()
		return "", ErrClosed
	}
	r.bots[id] = b
	r.mu.Unlock()
	return id, nil
}

// Stop removes the bot and waits for its loop to exit.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	b, ok := r.bots[id]
	delete(r.bots, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	b.Stop()
	return nil
}

// List returns a snapshot of the registered bots, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.bots))
	for _, b := range r.bots {
		infos = append(infos, b.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].BotID < infos[j].BotID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// StopAll stops every bot concurrently and empties the registry. Later
// CreateAndStart calls fail with ErrClosed.
func (r *Registry) StopAll() {
	r.mu.Lock()
	bots := r.bots
	r.bots = make(map[string]*Bot)
	r.closed = true
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, b := range bots {
		wg.Add(1)
		go func(b *Bot) {
			defer wg.Done()
			b.Stop()
		}(b)
	}
	wg.Wait()
	if len(bots) > 0 {
		r.logger.Info("All bots stopped", "count", len(bots))
	}
}

// Connected reports whether an exchange client is available.
func (r *Registry) Connected() bool {
	return r.exchange != nil
}
