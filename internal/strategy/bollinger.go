package strategy

import (
	"fmt"

	"tradebot/internal/model"
)

const (
	DefaultBollingerWindow  = 20
	DefaultStdDevMultiplier = 2.0
)

// BollingerBands signals when the close re-enters the bands: from below the
// lower band (BUY) or from above the upper band (SELL).
type BollingerBands struct {
	Window           int     `json:"window"`
	StdDevMultiplier float64 `json:"std_dev"`
}

func (BollingerBands) isConfig() {}

func (BollingerBands) Name() string { return "BollingerBands" }

func (c BollingerBands) MinBars() int { return c.Window + 1 }

func (c BollingerBands) Validate() error {
	if c.Window < 2 {
		return fmt.Errorf("%w: window must be >= 2, got %d", ErrInvalidConfig, c.Window)
	}
	if !(c.StdDevMultiplier > 0) {
		return fmt.Errorf("%w: std dev multiplier must be > 0, got %v", ErrInvalidConfig, c.StdDevMultiplier)
	}
	return nil
}

func (c BollingerBands) analyze(closes []float64) model.Signal {
	mean := SMA(closes, c.Window)
	std := RollingStdDev(closes, c.Window)

	last := len(closes) - 1
	prev := last - 1

	upper := func(i int) float64 { return mean[i] + c.StdDevMultiplier*std[i] }
	lower := func(i int) float64 { return mean[i] - c.StdDevMultiplier*std[i] }

	switch {
	case closes[prev] < lower(prev) && closes[last] > lower(last):
		return model.SignalBuy
	case closes[prev] > upper(prev) && closes[last] < upper(last):
		return model.SignalSell
	default:
		return model.SignalHold
	}
}
