package saver

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"tradebot/internal/model"
)

// CSVSaver writes trades as CSV with a header row.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) ContentType() string { return "text/csv" }

func (CSVSaver) Save(w io.Writer, trades []model.Trade) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"id", "timestamp", "symbol", "side", "price", "quantity", "strategy"}); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write([]string{
			strconv.FormatInt(t.ID, 10),
			t.Timestamp.UTC().Format(time.RFC3339Nano),
			t.Symbol,
			string(t.Side),
			floatStr(t.Price),
			floatStr(t.Quantity),
			t.Strategy,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
