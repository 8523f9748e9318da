package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sawpanic/pumpwatch/internal/errs"
	"github.com/sawpanic/pumpwatch/internal/models"
)

const bybitBaseURL = "https://api.bybit.com"

// Bybit talks to the v5 linear-perpetual API.
type Bybit struct {
	client  *Client
	baseURL string
}

// NewBybit returns the Bybit adapter. baseURL empty means production.
func NewBybit(client *Client, baseURL string) *Bybit {
	if baseURL == "" {
		baseURL = bybitBaseURL
	}
	return &Bybit{client: client, baseURL: baseURL}
}

func (b *Bybit) Name() string { return "bybit" }

func (b *Bybit) pair(symbol string) string {
	return strings.ToUpper(symbol) + "USDT"
}

// envelope is the v5 response wrapper. Non-zero retCodes are permanent
// except the documented rate-limit codes.
type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (b *Bybit) call(ctx context.Context, url string, ttl time.Duration, result interface{}) error {
	var env bybitEnvelope
	if err := b.client.GetJSON(ctx, b.Name(), url, ttl, &env); err != nil {
		return err
	}
	if env.RetCode != 0 {
		kind := errs.KindPermanentFetch
		if env.RetCode == 10006 || env.RetCode == 10018 { // rate limited
			kind = errs.KindTransientFetch
		}
		return errs.Ef(kind, "bybit: fetch", "retCode %d: %s", env.RetCode, env.RetMsg)
	}
	if err := json.Unmarshal(env.Result, result); err != nil {
		return errs.E(errs.KindPermanentFetch, "bybit: decode result", err)
	}
	return nil
}

func (b *Bybit) ListFuturesSymbols(ctx context.Context) ([]string, error) {
	var result struct {
		List []struct {
			BaseCoin     string `json:"baseCoin"`
			QuoteCoin    string `json:"quoteCoin"`
			Status       string `json:"status"`
			ContractType string `json:"contractType"`
		} `json:"list"`
	}
	url := b.baseURL + "/v5/market/instruments-info?category=linear&limit=1000"
	if err := b.call(ctx, url, 0, &result); err != nil {
		return nil, err
	}

	var out []string
	for _, s := range result.List {
		if s.ContractType == "LinearPerpetual" && s.QuoteCoin == "USDT" && s.Status == "Trading" {
			out = append(out, s.BaseCoin)
		}
	}
	return out, nil
}

func (b *Bybit) FetchCandles(ctx context.Context, symbol string, limit int) ([]models.Candle, error) {
	// Kline rows: [startMs, open, high, low, close, volume, turnover],
	// newest first. Turnover is the quote volume we keep.
	var result struct {
		List [][7]string `json:"list"`
	}
	url := fmt.Sprintf("%s/v5/market/kline?category=linear&symbol=%s&interval=60&limit=%d",
		b.baseURL, b.pair(symbol), limit)
	if err := b.call(ctx, url, 0, &result); err != nil {
		return nil, err
	}

	out := make([]models.Candle, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
		start, err := parseFloat(b.Name(), "kline start", row[0])
		if err != nil {
			return nil, err
		}
		c := models.Candle{T: int64(start)}
		for j, dst := range []*float64{&c.O, &c.H, &c.L, &c.C} {
			v, err := parseFloat(b.Name(), "kline", row[j+1])
			if err != nil {
				return nil, err
			}
			*dst = v
		}
		if c.V, err = parseFloat(b.Name(), "kline turnover", row[6]); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

type bybitTicker struct {
	LastPrice         string `json:"lastPrice"`
	Turnover24h       string `json:"turnover24h"`
	Bid1Price         string `json:"bid1Price"`
	Ask1Price         string `json:"ask1Price"`
	OpenInterestValue string `json:"openInterestValue"`
}

func (b *Bybit) ticker(ctx context.Context, symbol string) (bybitTicker, error) {
	var result struct {
		List []bybitTicker `json:"list"`
	}
	url := fmt.Sprintf("%s/v5/market/tickers?category=linear&symbol=%s",
		b.baseURL, b.pair(symbol))
	if err := b.call(ctx, url, 30*time.Second, &result); err != nil {
		return bybitTicker{}, err
	}
	if len(result.List) == 0 {
		return bybitTicker{}, errs.Ef(errs.KindPermanentFetch, "bybit: ticker",
			"no data for %s", symbol)
	}
	return result.List[0], nil
}

func (b *Bybit) FetchTicker(ctx context.Context, symbol string) (models.ExchangeQuote, error) {
	t, err := b.ticker(ctx, symbol)
	if err != nil {
		return models.ExchangeQuote{}, err
	}

	var q models.ExchangeQuote
	if q.Price, err = parseFloat(b.Name(), "lastPrice", t.LastPrice); err != nil {
		return q, err
	}
	if q.Vol24, err = parseFloat(b.Name(), "turnover24h", t.Turnover24h); err != nil {
		return q, err
	}
	if q.Bid, err = parseFloat(b.Name(), "bid1Price", t.Bid1Price); err != nil {
		return q, err
	}
	if q.Ask, err = parseFloat(b.Name(), "ask1Price", t.Ask1Price); err != nil {
		return q, err
	}
	return q, nil
}

func (b *Bybit) FetchOI(ctx context.Context, symbol string) (float64, error) {
	t, err := b.ticker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return parseFloat(b.Name(), "openInterestValue", t.OpenInterestValue)
}

func (b *Bybit) FetchFunding(ctx context.Context, symbol string) (float64, error) {
	rates, err := b.FetchFundingHistory(ctx, symbol, 1)
	if err != nil {
		return 0, err
	}
	if len(rates) == 0 {
		return 0, errs.Ef(errs.KindPermanentFetch, "bybit: funding",
			"no data for %s", symbol)
	}
	return rates[len(rates)-1].Rate, nil
}

func (b *Bybit) FetchFundingHistory(ctx context.Context, symbol string, limit int) ([]FundingRate, error) {
	var result struct {
		List []struct {
			FundingRate          string `json:"fundingRate"`
			FundingRateTimestamp string `json:"fundingRateTimestamp"`
		} `json:"list"`
	}
	url := fmt.Sprintf("%s/v5/market/funding/history?category=linear&symbol=%s&limit=%d",
		b.baseURL, b.pair(symbol), limit)
	if err := b.call(ctx, url, 0, &result); err != nil {
		return nil, err
	}

	out := make([]FundingRate, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- { // newest first -> ascending
		row := result.List[i]
		ts, err := parseFloat(b.Name(), "fundingRateTimestamp", row.FundingRateTimestamp)
		if err != nil {
			return nil, err
		}
		rate, err := parseFloat(b.Name(), "fundingRate", row.FundingRate)
		if err != nil {
			return nil, err
		}
		out = append(out, FundingRate{T: int64(ts), Rate: rate})
	}
	return out, nil
}

func (b *Bybit) FetchBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error) {
	var result struct {
		Bids [][2]string `json:"b"`
		Asks [][2]string `json:"a"`
	}
	url := fmt.Sprintf("%s/v5/market/orderbook?category=linear&symbol=%s&limit=%d",
		b.baseURL, b.pair(symbol), depth)
	if err := b.call(ctx, url, 30*time.Second, &result); err != nil {
		return models.OrderBook{}, err
	}

	var book models.OrderBook
	var err error
	if book.Bids, err = parseLevels(b.Name(), result.Bids); err != nil {
		return models.OrderBook{}, err
	}
	if book.Asks, err = parseLevels(b.Name(), result.Asks); err != nil {
		return models.OrderBook{}, err
	}
	return book, nil
}

func (b *Bybit) FetchLSRatio(ctx context.Context, symbol string) (float64, error) {
	var result struct {
		List []struct {
			BuyRatio  string `json:"buyRatio"`
			SellRatio string `json:"sellRatio"`
		} `json:"list"`
	}
	url := fmt.Sprintf("%s/v5/market/account-ratio?category=linear&symbol=%s&period=1h&limit=1",
		b.baseURL, b.pair(symbol))
	if err := b.call(ctx, url, 0, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		return 0, errs.Ef(errs.KindPermanentFetch, "bybit: ls ratio",
			"no data for %s", symbol)
	}

	buy, err := parseFloat(b.Name(), "buyRatio", result.List[0].BuyRatio)
	if err != nil {
		return 0, err
	}
	sell, err := parseFloat(b.Name(), "sellRatio", result.List[0].SellRatio)
	if err != nil {
		return 0, err
	}
	if sell <= 0 {
		return 0, errs.Ef(errs.KindPermanentFetch, "bybit: ls ratio",
			"sell ratio %v", sell)
	}
	return buy / sell, nil
}
