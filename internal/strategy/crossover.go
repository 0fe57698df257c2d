package strategy

import (
	"fmt"

	"tradebot/internal/model"
)

const (
	DefaultShortWindow = 10
	DefaultLongWindow  = 30
)

// MovingAverageCrossover signals when the short SMA crosses the long SMA at
// the latest bar.
type MovingAverageCrossover struct {
	ShortWindow int `json:"short_window"`
	LongWindow  int `json:"long_window"`
}

func (MovingAverageCrossover) isConfig() {}

func (MovingAverageCrossover) Name() string { return "MovingAverageCrossover" }

func (c MovingAverageCrossover) MinBars() int { return c.LongWindow + 1 }

func (c MovingAverageCrossover) Validate() error {
	if c.ShortWindow < 1 {
		return fmt.Errorf("%w: short window must be >= 1, got %d", ErrInvalidConfig, c.ShortWindow)
	}
	if c.LongWindow <= c.ShortWindow {
		return fmt.Errorf("%w: long window %d must exceed short window %d", ErrInvalidConfig, c.LongWindow, c.ShortWindow)
	}
	return nil
}

// analyze expects len(closes) >= MinBars. NaN comparisons are false, so a
// bar without both averages never produces a cross.
func (c MovingAverageCrossover) analyze(closes []float64) model.Signal {
	short := SMA(closes, c.ShortWindow)
	long := SMA(closes, c.LongWindow)

	last := len(closes) - 1
	prev := last - 1

	switch {
	case short[prev] < long[prev] && short[last] > long[last]:
		return model.SignalBuy
	case short[prev] > long[prev] && short[last] < long[last]:
		return model.SignalSell
	default:
		return model.SignalHold
	}
}
