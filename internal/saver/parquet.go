package saver

import (
	"io"

	"github.com/parquet-go/parquet-go"

	"tradebot/internal/model"
)

// tradeRow is the Parquet layout of a trade. Timestamps are epoch millis.
type tradeRow struct {
	ID          int64   `parquet:"id"`
	TimestampMS int64   `parquet:"timestamp_ms"`
	Symbol      string  `parquet:"symbol,dict"`
	Side        string  `parquet:"side,dict"`
	Price       float64 `parquet:"price"`
	Quantity    float64 `parquet:"quantity"`
	Strategy    string  `parquet:"strategy,dict"`
}

// ParquetSaver writes trades as a Parquet file.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) ContentType() string { return "application/vnd.apache.parquet" }

func (ParquetSaver) Save(w io.Writer, trades []model.Trade) error {
	rows := make([]tradeRow, len(trades))
	for i, t := range trades {
		rows[i] = tradeRow{
			ID:          t.ID,
			TimestampMS: t.Timestamp.UnixMilli(),
			Symbol:      t.Symbol,
			Side:        string(t.Side),
			Price:       t.Price,
			Quantity:    t.Quantity,
			Strategy:    t.Strategy,
		}
	}
	return parquet.Write(w, rows)
}
