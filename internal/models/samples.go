package models

// SeriesKind identifies a per-symbol time series in the store.
type SeriesKind string

const (
	SeriesCandles SeriesKind = "candles"
	SeriesOI      SeriesKind = "oi"
	SeriesFunding SeriesKind = "funding"
	SeriesLS      SeriesKind = "ls_ratio"
	SeriesTickers SeriesKind = "tickers"
	SeriesBook    SeriesKind = "book"
)

// RetentionCap returns how many rows the store keeps per symbol for a kind.
// Caps sit above the bootstrap minimums so lookbacks never starve.
func (k SeriesKind) RetentionCap() int {
	switch k {
	case SeriesCandles:
		return 720 // 30 days of hourly candles
	case SeriesOI:
		return 288
	case SeriesFunding:
		return 150
	case SeriesLS:
		return 200
	case SeriesTickers:
		return 720
	case SeriesBook:
		return 1 // latest only
	default:
		return 0
	}
}

// Candle is one hourly OHLCV bar. T is the bar open time in ms.
type Candle struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

// OIPoint is an open-interest observation in USD notional per exchange.
type OIPoint struct {
	T          int64              `json:"t"`
	ByExchange map[string]float64 `json:"by_exchange"`
}

// Total sums open interest across exchanges.
func (p OIPoint) Total() float64 {
	var sum float64
	for _, v := range p.ByExchange {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

// FundingPoint is one funding period's rate per exchange. T is the period
// start in ms; perpetual venues settle every 8 hours.
type FundingPoint struct {
	T          int64              `json:"t"`
	ByExchange map[string]float64 `json:"by_exchange"`
}

// Mean averages the rate across exchanges reporting this period.
func (p FundingPoint) Mean() float64 {
	if len(p.ByExchange) == 0 {
		return 0
	}
	var sum float64
	for _, v := range p.ByExchange {
		sum += v
	}
	return sum / float64(len(p.ByExchange))
}

// LSPoint is a long/short account-ratio observation per exchange.
type LSPoint struct {
	T          int64              `json:"t"`
	ByExchange map[string]float64 `json:"by_exchange"`
}

// Mean averages the ratio across exchanges reporting it.
func (p LSPoint) Mean() float64 {
	if len(p.ByExchange) == 0 {
		return 0
	}
	var sum float64
	for _, v := range p.ByExchange {
		sum += v
	}
	return sum / float64(len(p.ByExchange))
}

// ExchangeQuote is one exchange's contribution to a Ticker.
type ExchangeQuote struct {
	Price float64 `json:"price"`
	Vol24 float64 `json:"vol24"` // quote volume, USD
	Bid   float64 `json:"bid"`
	Ask   float64 `json:"ask"`
}

// Ticker aggregates the latest quotes across exchanges. Price is the mean of
// exchange prices, Vol24 the sum, Bid/Ask the best across venues.
type Ticker struct {
	T          int64                    `json:"t"`
	Price      float64                  `json:"price"`
	Vol24      float64                  `json:"vol24"`
	Bid        float64                  `json:"bid"`
	Ask        float64                  `json:"ask"`
	ByExchange map[string]ExchangeQuote `json:"by_exchange"`
}

// Aggregate recomputes the combined fields from ByExchange.
func (t *Ticker) Aggregate() {
	var priceSum float64
	var n int
	t.Vol24, t.Bid, t.Ask = 0, 0, 0
	for _, q := range t.ByExchange {
		if q.Price <= 0 {
			continue
		}
		priceSum += q.Price
		n++
		t.Vol24 += q.Vol24
		if q.Bid > t.Bid {
			t.Bid = q.Bid
		}
		if t.Ask == 0 || (q.Ask > 0 && q.Ask < t.Ask) {
			t.Ask = q.Ask
		}
	}
	if n > 0 {
		t.Price = priceSum / float64(n)
	}
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price float64 `json:"p"`
	Qty   float64 `json:"q"`
}

// USD returns the notional value of the level.
func (l BookLevel) USD() float64 { return l.Price * l.Qty }

// OrderBook holds one exchange's depth snapshot, best levels first.
type OrderBook struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}

// BookSnapshot is the latest depth across exchanges. Ephemeral: the store
// keeps only the most recent snapshot per symbol.
type BookSnapshot struct {
	T          int64                `json:"t"`
	ByExchange map[string]OrderBook `json:"by_exchange"`
}

// AllBids returns every bid level across exchanges, unordered.
func (b BookSnapshot) AllBids() []BookLevel {
	var out []BookLevel
	for _, ob := range b.ByExchange {
		out = append(out, ob.Bids...)
	}
	return out
}

// AllAsks returns every ask level across exchanges, unordered.
func (b BookSnapshot) AllAsks() []BookLevel {
	var out []BookLevel
	for _, ob := range b.ByExchange {
		out = append(out, ob.Asks...)
	}
	return out
}
