package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tradebot/internal/config"
	"tradebot/internal/database"
	"tradebot/internal/exchange"
	"tradebot/internal/model"
	"tradebot/internal/strategy"
)

// TopicTrades is the event topic every persisted trade is published on.
const TopicTrades = "trades"

var (
	// ErrAlreadyStarted is returned when Start is called on a bot that has
	// left the Created state.
	ErrAlreadyStarted = errors.New("bot already started")
	// ErrNoFillPrice is returned when the fill price source is configured
	// but the exchange acknowledged the order without a fill.
	ErrNoFillPrice = errors.New("order acknowledged without fill price")
)

// State is the lifecycle position of a bot.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options are the settings shared by every bot of a registry.
type Options struct {
	PollInterval   time.Duration
	LookbackMargin int
	PriceSource    string
	PersistRetries uint64
}

// OptionsFromConfig maps the bot section of the configuration.
func OptionsFromConfig(cfg config.BotConfig) Options {
	return Options{
		PollInterval:   cfg.PollInterval,
		LookbackMargin: cfg.LookbackMargin,
		PriceSource:    cfg.PriceSource,
		PersistRetries: cfg.PersistRetries,
	}
}

// EventSink receives events for live clients. Publish must not block.
type EventSink interface {
	Publish(topic string, payload any)
}

type discardSink struct{}

func (discardSink) Publish(string, any) {}

// Params describe what a bot trades.
type Params struct {
	Symbol   string
	Interval string
	Quantity float64
	Strategy strategy.Config
}

// Info is a point-in-time view of a bot.
type Info struct {
	BotID     string    `json:"bot_id"`
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	Strategy  string    `json:"strategy"`
	Quantity  float64   `json:"quantity"`
	IsRunning bool      `json:"is_running"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Bot runs one strategy against one symbol on its own goroutine.
// Cycles never overlap and a failed cycle never ends the loop.
type Bot struct {
	id        string
	params    Params
	createdAt time.Time

	exchange exchange.Client
	repo     database.Repository
	sink     EventSink
	logger   *slog.Logger
	opts     Options

	newBackOff func() backoff.BackOff
	now        func() time.Time

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a bot in the Created state.
func New(id string, params Params, ex exchange.Client, repo database.Repository, sink EventSink, logger *slog.Logger, opts Options) *Bot {
	if sink == nil {
		sink = discardSink{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 60 * time.Second
	}
	if opts.PriceSource == "" {
		opts.PriceSource = config.PriceSourceLastClose
	}
	return &Bot{
		id:         id,
		params:     params,
		createdAt:  time.Now(),
		exchange:   ex,
		repo:       repo,
		sink:       sink,
		logger:     logger.With("bot_id", id, "symbol", params.Symbol, "interval", params.Interval, "strategy", params.Strategy.Name()),
		opts:       opts,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		now:        time.Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (b *Bot) ID() string { return b.id }

func (b *Bot) State() State { return State(b.state.Load()) }

func (b *Bot) Info() Info {
	state := b.State()
	return Info{
		BotID:     b.id,
		Symbol:    b.params.Symbol,
		Interval:  b.params.Interval,
		Strategy:  b.params.Strategy.Name(),
		Quantity:  b.params.Quantity,
		IsRunning: state == StateRunning,
		State:     state.String(),
		CreatedAt: b.createdAt,
	}
}

// Start launches the trading loop. ctx bounds exchange and store calls; it is
// not the stop signal.
func (b *Bot) Start(ctx context.Context) error {
	if !b.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return fmt.Errorf("%w: bot %s is %s", ErrAlreadyStarted, b.id, b.State())
	}
	b.logger.Info("Bot started", "poll_interval", b.opts.PollInterval)
	go b.run(ctx)
	return nil
}

// Stop asks the loop to exit and waits until it has. A cycle already in
// progress runs to completion first. Stop is safe to call more than once.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		if b.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
			close(b.done)
			return
		}
		b.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
		close(b.stop)
	})
	<-b.done
}

func (b *Bot) run(ctx context.Context) {
	defer func() {
		b.state.Store(int32(StateStopped))
		b.logger.Info("Bot stopped")
		close(b.done)
	}()

	timer := time.NewTimer(b.opts.PollInterval)
	defer timer.Stop()

	for {
		if b.stopping() {
			return
		}
		b.runCycle(ctx)

		timer.Reset(b.opts.PollInterval)
		select {
		case <-b.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

func (b *Bot) stopping() bool {
	select {
	case <-b.stop:
		return true
	default:
		return false
	}
}

func (b *Bot) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Bot cycle panicked", "panic", r)
		}
	}()

	if err := b.cycle(ctx); err != nil {
		b.logger.Error("Bot cycle failed", "error", err)
	}
}

func (b *Bot) cycle(ctx context.Context) error {
	lookback := b.params.Strategy.MinBars() + b.opts.LookbackMargin
	bars, err := b.exchange.HistoricalCandles(ctx, b.params.Symbol, b.params.Interval, lookback)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}

	signal, err := strategy.Evaluate(b.params.Strategy, bars)
	if errors.Is(err, strategy.ErrInsufficientData) {
		b.logger.Debug("Not enough candles to decide", "bars", len(bars), "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("evaluate strategy: %w", err)
	}

	side, ok := signal.Side()
	if !ok {
		return nil
	}
	lastClose := bars[len(bars)-1].Close
	b.logger.Info("Signal generated", "signal", signal, "last_close", lastClose)

	ack, err := b.exchange.SubmitMarketOrder(ctx, b.params.Symbol, side, b.params.Quantity)
	if err != nil {
		return fmt.Errorf("submit %s order: %w", side, err)
	}

	price, err := b.tradePrice(lastClose, ack)
	if err != nil {
		b.logger.Error("Order placed but trade not recorded",
			"order_id", ack.OrderID, "side", side, "quantity", b.params.Quantity, "error", err)
		return nil
	}

	trade := model.Trade{
		Symbol:   b.params.Symbol,
		Side:     side,
		Price:    price,
		Quantity: b.params.Quantity,
		Strategy: b.params.Strategy.Name(),
	}
	if err := b.persist(ctx, &trade); err != nil {
		b.logger.Error("Failed to record trade, reconcile manually",
			"order_id", ack.OrderID,
			"timestamp", trade.Timestamp,
			"side", trade.Side,
			"price", trade.Price,
			"quantity", trade.Quantity,
			"error", err,
		)
		return nil
	}

	b.logger.Info("Trade recorded", "order_id", ack.OrderID, "side", trade.Side, "price", trade.Price, "quantity", trade.Quantity)
	b.sink.Publish(TopicTrades, trade)
	return nil
}

func (b *Bot) tradePrice(lastClose float64, ack exchange.OrderAck) (float64, error) {
	if b.opts.PriceSource == config.PriceSourceFill {
		if !ack.HasFill {
			return 0, ErrNoFillPrice
		}
		return ack.FillPrice, nil
	}
	return lastClose, nil
}

// persist stamps trade with the time of each insert attempt, so the stored
// timestamp is the write time even after retries.
func (b *Bot) persist(ctx context.Context, trade *model.Trade) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(b.newBackOff(), b.opts.PersistRetries), ctx)
	return backoff.RetryNotify(func() error {
		trade.Timestamp = b.now().UTC()
		return b.repo.LogTrade(ctx, *trade)
	}, policy, func(err error, wait time.Duration) {
		b.logger.Warn("Retrying trade insert", "error", err, "wait", wait)
	})
}
