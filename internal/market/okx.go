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

const okxBaseURL = "https://www.okx.com"

// OKX talks to the v5 USDT-swap API.
type OKX struct {
	client  *Client
	baseURL string
}

// NewOKX returns the OKX adapter. baseURL empty means production.
func NewOKX(client *Client, baseURL string) *OKX {
	if baseURL == "" {
		baseURL = okxBaseURL
	}
	return &OKX{client: client, baseURL: baseURL}
}

func (o *OKX) Name() string { return "okx" }

func (o *OKX) instID(symbol string) string {
	return strings.ToUpper(symbol) + "-USDT-SWAP"
}

// call unwraps the v5 {code, msg, data} envelope. Any non-zero code is a
// permanent failure; transient conditions surface as HTTP 429/5xx before
// this layer.
func (o *OKX) call(ctx context.Context, url string, ttl time.Duration, data interface{}) error {
	var env struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := o.client.GetJSON(ctx, o.Name(), url, ttl, &env); err != nil {
		return err
	}
	if env.Code != "0" {
		return errs.Ef(errs.KindPermanentFetch, "okx: fetch", "code %s: %s", env.Code, env.Msg)
	}
	if err := json.Unmarshal(env.Data, data); err != nil {
		return errs.E(errs.KindPermanentFetch, "okx: decode data", err)
	}
	return nil
}

func (o *OKX) ListFuturesSymbols(ctx context.Context) ([]string, error) {
	var data []struct {
		InstID   string `json:"instId"`
		State    string `json:"state"`
		CtType   string `json:"ctType"`
		SettleCcy string `json:"settleCcy"`
	}
	url := o.baseURL + "/api/v5/public/instruments?instType=SWAP"
	if err := o.call(ctx, url, 0, &data); err != nil {
		return nil, err
	}

	var out []string
	for _, inst := range data {
		if inst.State != "live" || inst.CtType != "linear" || inst.SettleCcy != "USDT" {
			continue
		}
		base, ok := strings.CutSuffix(inst.InstID, "-USDT-SWAP")
		if !ok {
			continue
		}
		out = append(out, base)
	}
	return out, nil
}

func (o *OKX) FetchCandles(ctx context.Context, symbol string, limit int) ([]models.Candle, error) {
	// Rows: [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm], newest
	// first. volCcyQuote is the USDT turnover we keep.
	var data [][9]string
	url := fmt.Sprintf("%s/api/v5/market/candles?instId=%s&bar=1H&limit=%d",
		o.baseURL, o.instID(symbol), limit)
	if err := o.call(ctx, url, 0, &data); err != nil {
		return nil, err
	}

	out := make([]models.Candle, 0, len(data))
	for i := len(data) - 1; i >= 0; i-- {
		row := data[i]
		ts, err := parseFloat(o.Name(), "candle ts", row[0])
		if err != nil {
			return nil, err
		}
		c := models.Candle{T: int64(ts)}
		for j, dst := range []*float64{&c.O, &c.H, &c.L, &c.C} {
			v, err := parseFloat(o.Name(), "candle", row[j+1])
			if err != nil {
				return nil, err
			}
			*dst = v
		}
		if c.V, err = parseFloat(o.Name(), "candle turnover", row[7]); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (o *OKX) FetchTicker(ctx context.Context, symbol string) (models.ExchangeQuote, error) {
	var data []struct {
		Last      string `json:"last"`
		VolCcy24h string `json:"volCcy24h"`
		BidPx     string `json:"bidPx"`
		AskPx     string `json:"askPx"`
	}
	url := fmt.Sprintf("%s/api/v5/market/ticker?instId=%s", o.baseURL, o.instID(symbol))
	if err := o.call(ctx, url, 30*time.Second, &data); err != nil {
		return models.ExchangeQuote{}, err
	}
	if len(data) == 0 {
		return models.ExchangeQuote{}, errs.Ef(errs.KindPermanentFetch, "okx: ticker",
			"no data for %s", symbol)
	}

	var q models.ExchangeQuote
	var err error
	if q.Price, err = parseFloat(o.Name(), "last", data[0].Last); err != nil {
		return q, err
	}
	// volCcy24h is base-currency volume on linear swaps.
	baseVol, err := parseFloat(o.Name(), "volCcy24h", data[0].VolCcy24h)
	if err != nil {
		return q, err
	}
	q.Vol24 = baseVol * q.Price
	if q.Bid, err = parseFloat(o.Name(), "bidPx", data[0].BidPx); err != nil {
		return q, err
	}
	if q.Ask, err = parseFloat(o.Name(), "askPx", data[0].AskPx); err != nil {
		return q, err
	}
	return q, nil
}

func (o *OKX) FetchOI(ctx context.Context, symbol string) (float64, error) {
	var data []struct {
		OiUsd string `json:"oiUsd"`
		OiCcy string `json:"oiCcy"`
	}
	url := fmt.Sprintf("%s/api/v5/public/open-interest?instId=%s", o.baseURL, o.instID(symbol))
	if err := o.call(ctx, url, 0, &data); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, errs.Ef(errs.KindPermanentFetch, "okx: open interest",
			"no data for %s", symbol)
	}
	if data[0].OiUsd != "" {
		return parseFloat(o.Name(), "oiUsd", data[0].OiUsd)
	}

	// Older gateways omit oiUsd; convert the coin figure at last price.
	coin, err := parseFloat(o.Name(), "oiCcy", data[0].OiCcy)
	if err != nil {
		return 0, err
	}
	q, err := o.FetchTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return coin * q.Price, nil
}

func (o *OKX) FetchFunding(ctx context.Context, symbol string) (float64, error) {
	var data []struct {
		FundingRate string `json:"fundingRate"`
	}
	url := fmt.Sprintf("%s/api/v5/public/funding-rate?instId=%s", o.baseURL, o.instID(symbol))
	if err := o.call(ctx, url, 0, &data); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, errs.Ef(errs.KindPermanentFetch, "okx: funding",
			"no data for %s", symbol)
	}
	return parseFloat(o.Name(), "fundingRate", data[0].FundingRate)
}

func (o *OKX) FetchFundingHistory(ctx context.Context, symbol string, limit int) ([]FundingRate, error) {
	var data []struct {
		FundingRate string `json:"fundingRate"`
		FundingTime string `json:"fundingTime"`
	}
	url := fmt.Sprintf("%s/api/v5/public/funding-rate-history?instId=%s&limit=%d",
		o.baseURL, o.instID(symbol), limit)
	if err := o.call(ctx, url, 0, &data); err != nil {
		return nil, err
	}

	out := make([]FundingRate, 0, len(data))
	for i := len(data) - 1; i >= 0; i-- { // newest first -> ascending
		ts, err := parseFloat(o.Name(), "fundingTime", data[i].FundingTime)
		if err != nil {
			return nil, err
		}
		rate, err := parseFloat(o.Name(), "fundingRate", data[i].FundingRate)
		if err != nil {
			return nil, err
		}
		out = append(out, FundingRate{T: int64(ts), Rate: rate})
	}
	return out, nil
}

func (o *OKX) FetchBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error) {
	// Book levels carry two trailing bookkeeping fields we ignore.
	var data []struct {
		Bids [][4]string `json:"bids"`
		Asks [][4]string `json:"asks"`
	}
	url := fmt.Sprintf("%s/api/v5/market/books?instId=%s&sz=%d",
		o.baseURL, o.instID(symbol), depth)
	if err := o.call(ctx, url, 30*time.Second, &data); err != nil {
		return models.OrderBook{}, err
	}
	if len(data) == 0 {
		return models.OrderBook{}, errs.Ef(errs.KindPermanentFetch, "okx: book",
			"no data for %s", symbol)
	}

	var book models.OrderBook
	var err error
	if book.Bids, err = o.parseDeepLevels(data[0].Bids); err != nil {
		return models.OrderBook{}, err
	}
	if book.Asks, err = o.parseDeepLevels(data[0].Asks); err != nil {
		return models.OrderBook{}, err
	}
	return book, nil
}

func (o *OKX) parseDeepLevels(raw [][4]string) ([]models.BookLevel, error) {
	pairs := make([][2]string, len(raw))
	for i, lvl := range raw {
		pairs[i] = [2]string{lvl[0], lvl[1]}
	}
	return parseLevels(o.Name(), pairs)
}

func (o *OKX) FetchLSRatio(ctx context.Context, symbol string) (float64, error) {
	var data [][2]string // [ts, ratio]
	url := fmt.Sprintf("%s/api/v5/rubik/stat/contracts/long-short-account-ratio?ccy=%s&period=1H",
		o.baseURL, strings.ToUpper(symbol))
	if err := o.call(ctx, url, 0, &data); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, errs.Ef(errs.KindPermanentFetch, "okx: ls ratio",
			"no data for %s", symbol)
	}
	return parseFloat(o.Name(), "long/short ratio", data[0][1])
}
