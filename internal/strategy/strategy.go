package strategy

import (
	"errors"
	"fmt"

	"tradebot/internal/model"
)

var (
	// ErrInsufficientData is returned when the window is too short to hold a
	// current and a previous indicator value. Callers treat it as HOLD.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidConfig is returned for out-of-range strategy parameters.
	ErrInvalidConfig = errors.New("invalid strategy config")
)

// Config is the closed set of strategy variants. Only the types declared in
// this package implement it.
type Config interface {
	// Name identifies the strategy on persisted trades and bot listings.
	Name() string
	// MinBars is the smallest window Evaluate can decide on.
	MinBars() int
	Validate() error

	isConfig()
}

// Evaluate dispatches to the variant held by cfg. It has no side effects and
// returns the same signal for the same input.
func Evaluate(cfg Config, bars []model.PriceBar) (model.Signal, error) {
	if cfg == nil {
		return model.SignalHold, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return model.SignalHold, err
	}
	if len(bars) < cfg.MinBars() {
		return model.SignalHold, fmt.Errorf("%w: %s needs %d bars, got %d", ErrInsufficientData, cfg.Name(), cfg.MinBars(), len(bars))
	}

	switch c := cfg.(type) {
	case MovingAverageCrossover:
		return c.analyze(closes(bars)), nil
	case BollingerBands:
		return c.analyze(closes(bars)), nil
	default:
		return model.SignalHold, fmt.Errorf("%w: unsupported strategy %T", ErrInvalidConfig, cfg)
	}
}

func closes(bars []model.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
