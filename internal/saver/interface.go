package saver

import (
	"io"

	"tradebot/internal/model"
)

// TradeSaver writes a trade history in one export format.
type TradeSaver interface {
	Save(w io.Writer, trades []model.Trade) error
	Extension() string
	ContentType() string
}
