package saver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFormat is returned for an unknown export format.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// NewTradeSaver returns the saver for format (csv, json, parquet).
func NewTradeSaver(format string) (TradeSaver, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}, nil
	case "json", "":
		return JSONSaver{}, nil
	case "parquet":
		return ParquetSaver{}, nil
	default:
		return nil, fmt.Errorf("%w %q (use csv, json or parquet)", ErrUnsupportedFormat, format)
	}
}
