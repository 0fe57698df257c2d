package strategy

import (
	"fmt"
	"strings"
)

// Transport names accepted by Parse.
const (
	KindMACrossover    = "ma_crossover"
	KindBollingerBands = "bollinger_bands"
)

// Params carries optional per-strategy overrides. An absent field falls back
// to the strategy default; a present one, zero included, is validated as is.
type Params struct {
	ShortWindow      *int     `json:"short_window"`
	LongWindow       *int     `json:"long_window"`
	Window           *int     `json:"window"`
	StdDevMultiplier *float64 `json:"std_dev"`
}

// Parse builds and validates a Config from its transport name.
func Parse(kind string, p Params) (Config, error) {
	var cfg Config
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindMACrossover, "movingaveragecrossover":
		c := MovingAverageCrossover{ShortWindow: DefaultShortWindow, LongWindow: DefaultLongWindow}
		if p.ShortWindow != nil {
			c.ShortWindow = *p.ShortWindow
		}
		if p.LongWindow != nil {
			c.LongWindow = *p.LongWindow
		}
		cfg = c
	case KindBollingerBands, "bollingerbands":
		c := BollingerBands{Window: DefaultBollingerWindow, StdDevMultiplier: DefaultStdDevMultiplier}
		if p.Window != nil {
			c.Window = *p.Window
		}
		if p.StdDevMultiplier != nil {
			c.StdDevMultiplier = *p.StdDevMultiplier
		}
		cfg = c
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, kind)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
