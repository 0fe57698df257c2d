package model

import (
	"fmt"
	"strings"
	"time"
)

// PriceBar is one OHLC candle. Time is the candle open time in epoch seconds.
// The same shape is served for historical klines and relayed live updates.
type PriceBar struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Signal is the decision a strategy produces for the latest bar.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Side is the direction of an order or an executed trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Side converts a non-HOLD signal into an order side.
func (s Signal) Side() (Side, bool) {
	switch s {
	case SignalBuy:
		return SideBuy, true
	case SignalSell:
		return SideSell, true
	default:
		return "", false
	}
}

// ParseSide accepts BUY/SELL in any case.
func ParseSide(value string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(SideBuy):
		return SideBuy, nil
	case string(SideSell):
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown side %q", value)
	}
}

// Trade is an executed order as recorded in the trade store. Price is the
// last close at decision time unless the exchange reported a fill price.
type Trade struct {
	ID        int64     `db:"id" json:"id"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	Symbol    string    `db:"symbol" json:"symbol"`
	Side      Side      `db:"side" json:"side"`
	Price     float64   `db:"price" json:"price"`
	Quantity  float64   `db:"quantity" json:"quantity"`
	Strategy  string    `db:"strategy" json:"strategy"`
}
