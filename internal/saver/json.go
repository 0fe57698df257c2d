package saver

import (
	"encoding/json"
	"io"

	"tradebot/internal/model"
)

// JSONSaver writes trades as an indented JSON array.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) ContentType() string { return "application/json" }

func (JSONSaver) Save(w io.Writer, trades []model.Trade) error {
	if trades == nil {
		trades = []model.Trade{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(trades)
}
