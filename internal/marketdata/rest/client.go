// Package rest is the snapshot client for the exchange's public REST API:
// instrument list, ticker and order-book snapshots, and minute-candle
// history. It is the price source for the auto-trading loop whenever the
// push feed is turned off.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"papertraderv1/internal/model"
)

const defaultTimeout = 7 * time.Second

var routes = map[string]string{
	"markets":   "/market/all",
	"ticker":    "/ticker",
	"orderbook": "/orderbook",
	"candles":   "/candles/minutes/%d",
}

// Config holds REST client parameters.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client performs snapshot requests against the REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a REST snapshot client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rest: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rest: GET %s returned %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rest: decode %s response: %w", path, err)
	}
	return nil
}

// Markets returns every listed instrument.
func (c *Client) Markets(ctx context.Context) ([]model.Instrument, error) {
	var wire []struct {
		Market      string `json:"market"`
		EnglishName string `json:"english_name"`
		KoreanName  string `json:"korean_name"`
	}
	if err := c.getJSON(ctx, routes["markets"], nil, &wire); err != nil {
		return nil, err
	}

	out := make([]model.Instrument, 0, len(wire))
	for _, w := range wire {
		out = append(out, model.Instrument{
			Code:        w.Market,
			DisplayName: w.EnglishName,
			LocalName:   w.KoreanName,
		})
	}
	return out, nil
}

type wireTicker struct {
	Market            string  `json:"market"`
	TradePrice        float64 `json:"trade_price"`
	OpeningPrice      float64 `json:"opening_price"`
	HighPrice         float64 `json:"high_price"`
	LowPrice          float64 `json:"low_price"`
	PrevClosingPrice  float64 `json:"prev_closing_price"`
	SignedChangeRate  float64 `json:"signed_change_rate"`
	AccTradeVolume24h float64 `json:"acc_trade_volume_24h"`
	Timestamp         int64   `json:"timestamp"` // epoch millis
}

// Tickers returns a snapshot for each requested instrument.
func (c *Client) Tickers(ctx context.Context, codes []string) ([]model.Ticker, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	query := url.Values{"markets": {strings.Join(codes, ",")}}

	var wire []wireTicker
	if err := c.getJSON(ctx, routes["ticker"], query, &wire); err != nil {
		return nil, err
	}

	out := make([]model.Ticker, 0, len(wire))
	for _, w := range wire {
		out = append(out, model.Ticker{
			Code:             w.Market,
			TradePrice:       w.TradePrice,
			OpenPrice:        w.OpeningPrice,
			HighPrice:        w.HighPrice,
			LowPrice:         w.LowPrice,
			PrevClosingPrice: w.PrevClosingPrice,
			SignedChangeRate: w.SignedChangeRate,
			AccTradeVolume:   w.AccTradeVolume24h,
			TS:               time.UnixMilli(w.Timestamp).UTC(),
		})
	}
	return out, nil
}

// PriceMap returns code → last trade price for the requested instruments.
// Instruments missing from the response are absent from the map.
func (c *Client) PriceMap(ctx context.Context, codes []string) (map[string]float64, error) {
	tickers, err := c.Tickers(ctx, codes)
	if err != nil {
		return nil, err
	}
	prices := make(map[string]float64, len(tickers))
	for _, tk := range tickers {
		prices[tk.Code] = tk.TradePrice
	}
	return prices, nil
}

// OrderBooks returns an order-book snapshot for each requested instrument.
func (c *Client) OrderBooks(ctx context.Context, codes []string) ([]model.OrderBook, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	query := url.Values{"markets": {strings.Join(codes, ",")}}

	var wire []struct {
		Market       string                `json:"market"`
		TotalAskSize float64               `json:"total_ask_size"`
		TotalBidSize float64               `json:"total_bid_size"`
		Units        []model.OrderBookUnit `json:"orderbook_units"`
		Timestamp    int64                 `json:"timestamp"`
	}
	if err := c.getJSON(ctx, routes["orderbook"], query, &wire); err != nil {
		return nil, err
	}

	out := make([]model.OrderBook, 0, len(wire))
	for _, w := range wire {
		out = append(out, model.OrderBook{
			Code:         w.Market,
			TotalAskSize: w.TotalAskSize,
			TotalBidSize: w.TotalBidSize,
			Units:        w.Units,
			TS:           time.UnixMilli(w.Timestamp).UTC(),
		})
	}
	return out, nil
}

// MinuteCandles returns up to count OHLCV candles for code at the given
// minute unit, newest first as served by the API.
func (c *Client) MinuteCandles(ctx context.Context, unit int, code string, count int) ([]model.Candle, error) {
	query := url.Values{
		"market": {code},
		"count":  {strconv.Itoa(count)},
	}

	var wire []struct {
		Market            string  `json:"market"`
		CandleDateTimeUTC string  `json:"candle_date_time_utc"`
		OpeningPrice      float64 `json:"opening_price"`
		HighPrice         float64 `json:"high_price"`
		LowPrice          float64 `json:"low_price"`
		TradePrice        float64 `json:"trade_price"`
		AccTradeVolume    float64 `json:"candle_acc_trade_volume"`
	}
	path := fmt.Sprintf(routes["candles"], unit)
	if err := c.getJSON(ctx, path, query, &wire); err != nil {
		return nil, err
	}

	out := make([]model.Candle, 0, len(wire))
	for _, w := range wire {
		ts, err := time.Parse("2006-01-02T15:04:05", w.CandleDateTimeUTC)
		if err != nil {
			return nil, fmt.Errorf("rest: bad candle timestamp %q: %w", w.CandleDateTimeUTC, err)
		}
		out = append(out, model.Candle{
			Code:   w.Market,
			TS:     ts.UTC(),
			Open:   w.OpeningPrice,
			High:   w.HighPrice,
			Low:    w.LowPrice,
			Close:  w.TradePrice,
			Volume: w.AccTradeVolume,
		})
	}
	return out, nil
}
