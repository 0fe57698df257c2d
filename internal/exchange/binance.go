package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"tradebot/internal/config"
	"tradebot/internal/model"
)

// MaxKlineLimit is the most candles one HistoricalCandles call returns.
const MaxKlineLimit = 1000

const recvWindow = "5000"

// BinanceClient implements the Client interface for Binance spot.
type BinanceClient struct {
	logger     *slog.Logger
	http       *resty.Client
	streamURL  string
	apiSecret  string
	testOrders bool
	now        func() time.Time
}

// NewBinanceClient creates a new BinanceClient.
func NewBinanceClient(logger *slog.Logger, cfg config.ExchangeConfig) *BinanceClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		rc.SetHeader("X-MBX-APIKEY", cfg.APIKey)
	}

	return &BinanceClient{
		logger:     logger,
		http:       rc,
		streamURL:  strings.TrimRight(cfg.StreamURL, "/"),
		apiSecret:  cfg.APISecret,
		testOrders: cfg.TestOrders,
		now:        time.Now,
	}
}

func (b *BinanceClient) GetName() string {
	return "binance"
}

// Ping checks connectivity to the REST API.
func (b *BinanceClient) Ping(ctx context.Context) error {
	resp, err := b.http.R().SetContext(ctx).SetError(&APIError{}).Get("/api/v3/ping")
	return checkResponse(resp, err)
}

// HistoricalCandles fetches klines for symbol and interval, oldest first.
func (b *BinanceClient) HistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]model.PriceBar, error) {
	if limit <= 0 || limit > MaxKlineLimit {
		limit = MaxKlineLimit
	}

	var rows [][]any
	resp, err := b.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   strings.ToUpper(symbol),
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		}).
		SetResult(&rows).
		SetError(&APIError{}).
		Get("/api/v3/klines")
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, interval, err)
	}

	return parseKlines(rows)
}

// parseKlines converts Binance kline rows ([openTime, "o", "h", "l", "c", ...])
// into bars with the open time in epoch seconds.
func parseKlines(rows [][]any) ([]model.PriceBar, error) {
	bars := make([]model.PriceBar, 0, len(rows))
	for i, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("kline %d: expected at least 5 fields, got %d", i, len(row))
		}
		openTime, ok := row[0].(float64)
		if !ok {
			return nil, fmt.Errorf("kline %d: open time is %T", i, row[0])
		}
		var ohlc [4]float64
		for j := range ohlc {
			v, err := parseNumber(row[j+1])
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j+1, err)
			}
			ohlc[j] = v
		}
		bars = append(bars, model.PriceBar{
			Time:  int64(openTime) / 1000,
			Open:  ohlc[0],
			High:  ohlc[1],
			Low:   ohlc[2],
			Close: ohlc[3],
		})
	}
	return bars, nil
}

func parseNumber(v any) (float64, error) {
	switch n := v.(type) {
	case string:
		return strconv.ParseFloat(n, 64)
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}

type orderResponse struct {
	OrderID int64 `json:"orderId"`
	Fills   []struct {
		Price string `json:"price"`
		Qty   string `json:"qty"`
	} `json:"fills"`
}

// SubmitMarketOrder places a MARKET order. With test orders enabled the
// exchange validates the order without executing it and reports no fill.
func (b *BinanceClient) SubmitMarketOrder(ctx context.Context, symbol string, side model.Side, quantity float64) (OrderAck, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", decimal.NewFromFloat(quantity).String())

	path := "/api/v3/order"
	if b.testOrders {
		path = "/api/v3/order/test"
	} else {
		params.Set("newOrderRespType", "FULL")
	}

	var out orderResponse
	resp, err := b.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&APIError{}).
		Post(path + "?" + b.sign(params))
	if err := checkResponse(resp, err); err != nil {
		return OrderAck{}, fmt.Errorf("submit %s order %s: %w", side, symbol, err)
	}

	ack := OrderAck{}
	if out.OrderID != 0 {
		ack.OrderID = strconv.FormatInt(out.OrderID, 10)
	}
	if price, ok := averageFillPrice(out); ok {
		ack.FillPrice = price
		ack.HasFill = true
	}
	return ack, nil
}

// averageFillPrice is the quantity-weighted price over all fills.
func averageFillPrice(out orderResponse) (float64, bool) {
	notional := decimal.Zero
	filled := decimal.Zero
	for _, f := range out.Fills {
		price, err := decimal.NewFromString(f.Price)
		if err != nil {
			return 0, false
		}
		qty, err := decimal.NewFromString(f.Qty)
		if err != nil {
			return 0, false
		}
		notional = notional.Add(price.Mul(qty))
		filled = filled.Add(qty)
	}
	if filled.IsZero() {
		return 0, false
	}
	return notional.Div(filled).InexactFloat64(), true
}

type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// Balances returns the assets with a non-zero free or locked amount.
func (b *BinanceClient) Balances(ctx context.Context) ([]Balance, error) {
	var out accountResponse
	resp, err := b.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&APIError{}).
		Get("/api/v3/account?" + b.sign(url.Values{}))
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("fetch account: %w", err)
	}

	balances := make([]Balance, 0, len(out.Balances))
	for _, raw := range out.Balances {
		free, err := strconv.ParseFloat(raw.Free, 64)
		if err != nil {
			return nil, fmt.Errorf("parse free balance of %s: %w", raw.Asset, err)
		}
		locked, err := strconv.ParseFloat(raw.Locked, 64)
		if err != nil {
			return nil, fmt.Errorf("parse locked balance of %s: %w", raw.Asset, err)
		}
		if free > 0 || locked > 0 {
			balances = append(balances, Balance{Asset: raw.Asset, Free: free, Locked: locked})
		}
	}
	return balances, nil
}

// sign appends timestamp, recvWindow and the HMAC-SHA256 signature of the
// encoded query. The result goes on the URL verbatim; the signature must stay
// last and must cover the exact bytes sent.
func (b *BinanceClient) sign(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(b.now().UnixMilli(), 10))
	params.Set("recvWindow", recvWindow)
	query := params.Encode()

	mac := hmac.New(sha256.New, []byte(b.apiSecret))
	mac.Write([]byte(query))
	return query + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	if apiErr, ok := resp.Error().(*APIError); ok && apiErr != nil && apiErr.Message != "" {
		apiErr.Status = resp.StatusCode()
		return apiErr
	}
	apiErr := &APIError{Status: resp.StatusCode()}
	if err := json.Unmarshal(resp.Body(), apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(resp.Body()))
	}
	return apiErr
}
