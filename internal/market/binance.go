package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sawpanic/pumpwatch/internal/errs"
	"github.com/sawpanic/pumpwatch/internal/models"
)

const binanceBaseURL = "https://fapi.binance.com"

// Binance talks to the USDⓈ-M futures API. Public endpoints only.
type Binance struct {
	client  *Client
	baseURL string
}

// NewBinance returns the Binance adapter. baseURL empty means production.
func NewBinance(client *Client, baseURL string) *Binance {
	if baseURL == "" {
		baseURL = binanceBaseURL
	}
	return &Binance{client: client, baseURL: baseURL}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) pair(symbol string) string {
	return strings.ToUpper(symbol) + "USDT"
}

func (b *Binance) ListFuturesSymbols(ctx context.Context) ([]string, error) {
	var resp struct {
		Symbols []struct {
			BaseAsset    string `json:"baseAsset"`
			QuoteAsset   string `json:"quoteAsset"`
			ContractType string `json:"contractType"`
			Status       string `json:"status"`
		} `json:"symbols"`
	}
	url := b.baseURL + "/fapi/v1/exchangeInfo"
	if err := b.client.GetJSON(ctx, b.Name(), url, 0, &resp); err != nil {
		return nil, err
	}

	var out []string
	for _, s := range resp.Symbols {
		if s.ContractType == "PERPETUAL" && s.QuoteAsset == "USDT" && s.Status == "TRADING" {
			out = append(out, s.BaseAsset)
		}
	}
	return out, nil
}

func (b *Binance) FetchCandles(ctx context.Context, symbol string, limit int) ([]models.Candle, error) {
	// Klines come as mixed arrays: open time number, OHLCV as strings,
	// quote turnover at index 7.
	var raw [][]interface{}
	url := fmt.Sprintf("%s/fapi/v1/klines?symbol=%s&interval=1h&limit=%d",
		b.baseURL, b.pair(symbol), limit)
	if err := b.client.GetJSON(ctx, b.Name(), url, 0, &raw); err != nil {
		return nil, err
	}

	out := make([]models.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 8 {
			return nil, errs.Ef(errs.KindPermanentFetch, "binance: parse klines",
				"kline with %d fields", len(k))
		}
		openTime, ok := k[0].(float64)
		if !ok {
			return nil, errs.Ef(errs.KindPermanentFetch, "binance: parse klines",
				"open time %T", k[0])
		}
		c := models.Candle{T: int64(openTime)}
		for i, dst := range []*float64{&c.O, &c.H, &c.L, &c.C} {
			s, ok := k[i+1].(string)
			if !ok {
				return nil, errs.Ef(errs.KindPermanentFetch, "binance: parse klines",
					"ohlc field %d is %T", i+1, k[i+1])
			}
			v, err := parseFloat(b.Name(), "kline", s)
			if err != nil {
				return nil, err
			}
			*dst = v
		}
		quoteVol, ok := k[7].(string)
		if !ok {
			return nil, errs.Ef(errs.KindPermanentFetch, "binance: parse klines",
				"quote volume is %T", k[7])
		}
		v, err := parseFloat(b.Name(), "kline volume", quoteVol)
		if err != nil {
			return nil, err
		}
		c.V = v
		out = append(out, c)
	}
	return out, nil
}

func (b *Binance) FetchTicker(ctx context.Context, symbol string) (models.ExchangeQuote, error) {
	var day struct {
		LastPrice   string `json:"lastPrice"`
		QuoteVolume string `json:"quoteVolume"`
	}
	url := fmt.Sprintf("%s/fapi/v1/ticker/24hr?symbol=%s", b.baseURL, b.pair(symbol))
	if err := b.client.GetJSON(ctx, b.Name(), url, 30*time.Second, &day); err != nil {
		return models.ExchangeQuote{}, err
	}

	var book struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	url = fmt.Sprintf("%s/fapi/v1/ticker/bookTicker?symbol=%s", b.baseURL, b.pair(symbol))
	if err := b.client.GetJSON(ctx, b.Name(), url, 30*time.Second, &book); err != nil {
		return models.ExchangeQuote{}, err
	}

	var q models.ExchangeQuote
	var err error
	if q.Price, err = parseFloat(b.Name(), "lastPrice", day.LastPrice); err != nil {
		return q, err
	}
	if q.Vol24, err = parseFloat(b.Name(), "quoteVolume", day.QuoteVolume); err != nil {
		return q, err
	}
	if q.Bid, err = parseFloat(b.Name(), "bidPrice", book.BidPrice); err != nil {
		return q, err
	}
	if q.Ask, err = parseFloat(b.Name(), "askPrice", book.AskPrice); err != nil {
		return q, err
	}
	return q, nil
}

func (b *Binance) FetchOI(ctx context.Context, symbol string) (float64, error) {
	var oi struct {
		OpenInterest string `json:"openInterest"`
	}
	url := fmt.Sprintf("%s/fapi/v1/openInterest?symbol=%s", b.baseURL, b.pair(symbol))
	if err := b.client.GetJSON(ctx, b.Name(), url, 0, &oi); err != nil {
		return 0, err
	}
	contracts, err := parseFloat(b.Name(), "openInterest", oi.OpenInterest)
	if err != nil {
		return 0, err
	}

	// OI is in contracts (base asset); mark price converts to USD.
	mark, err := b.markPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return contracts * mark, nil
}

func (b *Binance) FetchFunding(ctx context.Context, symbol string) (float64, error) {
	var premium struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	url := fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%s", b.baseURL, b.pair(symbol))
	if err := b.client.GetJSON(ctx, b.Name(), url, 0, &premium); err != nil {
		return 0, err
	}
	return parseFloat(b.Name(), "lastFundingRate", premium.LastFundingRate)
}

func (b *Binance) FetchFundingHistory(ctx context.Context, symbol string, limit int) ([]FundingRate, error) {
	var raw []struct {
		FundingTime int64  `json:"fundingTime"`
		FundingRate string `json:"fundingRate"`
	}
	url := fmt.Sprintf("%s/fapi/v1/fundingRate?symbol=%s&limit=%d",
		b.baseURL, b.pair(symbol), limit)
	if err := b.client.GetJSON(ctx, b.Name(), url, 0, &raw); err != nil {
		return nil, err
	}

	out := make([]FundingRate, 0, len(raw))
	for _, r := range raw {
		rate, err := parseFloat(b.Name(), "fundingRate", r.FundingRate)
		if err != nil {
			return nil, err
		}
		out = append(out, FundingRate{T: r.FundingTime, Rate: rate})
	}
	return out, nil
}

func (b *Binance) FetchBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error) {
	var raw struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	url := fmt.Sprintf("%s/fapi/v1/depth?symbol=%s&limit=%d",
		b.baseURL, b.pair(symbol), depth)
	if err := b.client.GetJSON(ctx, b.Name(), url, 30*time.Second, &raw); err != nil {
		return models.OrderBook{}, err
	}

	var book models.OrderBook
	var err error
	if book.Bids, err = parseLevels(b.Name(), raw.Bids); err != nil {
		return models.OrderBook{}, err
	}
	if book.Asks, err = parseLevels(b.Name(), raw.Asks); err != nil {
		return models.OrderBook{}, err
	}
	return book, nil
}

func (b *Binance) FetchLSRatio(ctx context.Context, symbol string) (float64, error) {
	var raw []struct {
		LongShortRatio string `json:"longShortRatio"`
	}
	url := fmt.Sprintf("%s/futures/data/globalLongShortAccountRatio?symbol=%s&period=1h&limit=1",
		b.baseURL, b.pair(symbol))
	if err := b.client.GetJSON(ctx, b.Name(), url, 0, &raw); err != nil {
		return 0, err
	}
	if len(raw) == 0 {
		return 0, errs.Ef(errs.KindPermanentFetch, "binance: ls ratio",
			"no data for %s", symbol)
	}
	return parseFloat(b.Name(), "longShortRatio", raw[0].LongShortRatio)
}

func (b *Binance) markPrice(ctx context.Context, symbol string) (float64, error) {
	var premium struct {
		MarkPrice string `json:"markPrice"`
	}
	url := fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%s", b.baseURL, b.pair(symbol))
	if err := b.client.GetJSON(ctx, b.Name(), url, 30*time.Second, &premium); err != nil {
		return 0, err
	}
	return parseFloat(b.Name(), "markPrice", premium.MarkPrice)
}

// parseLevels converts [price, qty] string pairs into typed levels.
func parseLevels(exchange string, raw [][2]string) ([]models.BookLevel, error) {
	out := make([]models.BookLevel, 0, len(raw))
	for _, lvl := range raw {
		p, err := parseFloat(exchange, "book price", lvl[0])
		if err != nil {
			return nil, err
		}
		q, err := parseFloat(exchange, "book qty", lvl[1])
		if err != nil {
			return nil, err
		}
		out = append(out, models.BookLevel{Price: p, Qty: q})
	}
	return out, nil
}
