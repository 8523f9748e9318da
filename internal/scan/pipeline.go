package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pumpwatch/internal/alert"
	"github.com/sawpanic/pumpwatch/internal/errs"
	"github.com/sawpanic/pumpwatch/internal/events"
	"github.com/sawpanic/pumpwatch/internal/features"
	"github.com/sawpanic/pumpwatch/internal/levels"
	"github.com/sawpanic/pumpwatch/internal/market"
	"github.com/sawpanic/pumpwatch/internal/metrics"
	"github.com/sawpanic/pumpwatch/internal/models"
	"github.com/sawpanic/pumpwatch/internal/score"
	"github.com/sawpanic/pumpwatch/internal/signal"
	"github.com/sawpanic/pumpwatch/internal/store"
)

// Mode is the data policy for one symbol in one cycle.
type Mode string

const (
	ModeBootstrap   Mode = "BOOTSTRAP"
	ModeIncremental Mode = "INCREMENTAL"
)

// Bootstrap minimums: below any of these the symbol's history is refilled
// from scratch.
const (
	bootstrapCandles = 500
	bootstrapOI      = 200
	bootstrapFunding = 100
	bootstrapLS      = 100
)

const (
	incrementalCandles = 6
	fundingHistLimit   = 100
	bookDepth          = 50
	atrPeriod          = 14
)

// ModeFor decides between backfill and top-up from the store's inventory.
func ModeFor(c store.SeriesCounts) Mode {
	if c.Candles < bootstrapCandles || c.OI < bootstrapOI ||
		c.Funding < bootstrapFunding || c.LS < bootstrapLS {
		return ModeBootstrap
	}
	return ModeIncremental
}

// Pipeline runs the full per-symbol path: fetch, persist, evaluate, score,
// derive levels, diff events. One Pipeline is shared by all workers.
type Pipeline struct {
	store    *store.Store
	registry *market.Registry
	scorer   *score.Scorer
	levels   *levels.Engine
	alerts   *alert.Manager
	metrics  *metrics.Registry

	maxGapHours float64
}

// NewPipeline wires the per-symbol scan path. The alert manager is the
// operator side channel for storage degradation.
func NewPipeline(st *store.Store, reg *market.Registry, sc *score.Scorer, lv *levels.Engine, am *alert.Manager, m *metrics.Registry, maxGapHours int) *Pipeline {
	return &Pipeline{
		store:       st,
		registry:    reg,
		scorer:      sc,
		levels:      lv,
		alerts:      am,
		metrics:     m,
		maxGapHours: float64(maxGapHours),
	}
}

// venueData is one exchange's fetch results for a symbol. Zero-valued
// fields whose ok flag is false were absent on that venue this cycle.
type venueData struct {
	exchange string

	candles []models.Candle
	quote   models.ExchangeQuote
	oi      float64
	funding float64
	hist    []market.FundingRate
	book    models.OrderBook
	ls      float64

	candlesOK, quoteOK, oiOK, fundingOK, histOK, bookOK, lsOK bool

	failures int
	timedOut bool
}

// Scan processes one symbol and returns its persisted result with any
// cross-scan events. Fetching runs under the per-symbol budget; once it is
// spent the symbol is evaluated from whatever already landed in the store.
// A degraded fetch lowers quality; only store failures surface as errors.
// budget <= 0 means unbounded.
func (p *Pipeline) Scan(ctx context.Context, symbol string, budget time.Duration) (*models.ScanResult, []models.Event, error) {
	counts, err := p.store.SeriesCounts(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}
	mode := ModeFor(counts)

	fetchCtx := ctx
	cancel := func() {}
	if budget > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, budget)
	}
	venues := p.fetch(fetchCtx, symbol, mode)
	budgetSpent := fetchCtx.Err() != nil
	cancel()
	for _, v := range venues {
		if v.timedOut {
			budgetSpent = true
		}
	}
	degraded := p.persist(ctx, symbol, venues)

	b, err := p.bundle(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}
	if b.Price <= 0 {
		return nil, nil, errs.Ef(errs.KindTransientFetch, "scan: "+symbol,
			"no price available from any exchange")
	}

	signals := signal.EvaluateAll(b)

	var return7d float64
	if c, ok := features.CloseAt(b.Candles, b.Now-7*24*3600_000); ok && c > 0 {
		return7d = b.Price/c - 1
	}

	result := p.scorer.Score(symbol, b.Now, b.Price, signals, return7d)
	if degraded {
		result.Quality = result.Quality.Min(models.QualityMed)
	}
	if budgetSpent || ctx.Err() != nil {
		// Budget ran out mid-fetch; whatever we scored came from a
		// partial snapshot.
		result.Quality = models.QualityLow
	}

	if atr, ok := features.ATR(b.Candles, atrPeriod); ok {
		if lv, ok := p.levels.Compute(levels.Input{
			Classification: result.Classification,
			Price:          b.Price,
			ATR:            atr,
			Candles:        b.Candles,
			Book:           b.Book,
			CascadeRatio:   signals[models.SignalLiqLeverage].Raw,
			Quality:        result.Quality,
		}); ok {
			result.Levels = lv
		}
	}

	var prev *models.ScanResult
	if hist, err := p.store.LastResults(ctx, symbol, 1); err == nil && len(hist) > 0 {
		prev = &hist[0]
	}
	var price6hAgo float64
	if c, ok := features.CloseAt(b.Candles, b.Now-6*3600_000); ok {
		price6hAgo = c
	}
	evs := events.Detect(&result, prev, price6hAgo)

	if err := p.store.PutScanResult(ctx, &result); err != nil {
		return nil, nil, err
	}

	log.Debug().Str("symbol", symbol).Str("mode", string(mode)).
		Float64("score", result.FinalScore).
		Str("class", string(result.Classification)).
		Int("events", len(evs)).
		Msg("symbol scanned")
	return &result, evs, nil
}

// fetch pulls the symbol's data from every exchange concurrently. Failed
// calls are logged and counted; the pipeline works with whatever arrived.
func (p *Pipeline) fetch(ctx context.Context, symbol string, mode Mode) []*venueData {
	sources := p.registry.Sources()
	out := make([]*venueData, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src market.Source) {
			defer wg.Done()
			out[i] = p.fetchVenue(ctx, src, symbol, mode)
		}(i, src)
	}
	wg.Wait()
	return out
}

func (p *Pipeline) fetchVenue(ctx context.Context, src market.Source, symbol string, mode Mode) *venueData {
	v := &venueData{exchange: src.Name()}

	candleLimit := incrementalCandles
	if mode == ModeBootstrap {
		candleLimit = bootstrapCandles
	}

	fail := func(kind string, err error) {
		v.failures++
		if ctx.Err() != nil {
			v.timedOut = true
		}
		if p.metrics != nil {
			p.metrics.FetchErrors.WithLabelValues(v.exchange, kind).Inc()
		}
		log.Debug().Err(err).Str("symbol", symbol).Str("exchange", v.exchange).
			Str("kind", kind).Msg("fetch failed")
	}

	var err error
	if v.candles, err = src.FetchCandles(ctx, symbol, candleLimit); err != nil {
		fail("candles", err)
	} else {
		v.candlesOK = true
	}
	if v.quote, err = src.FetchTicker(ctx, symbol); err != nil {
		fail("ticker", err)
	} else {
		v.quoteOK = true
	}
	if v.oi, err = src.FetchOI(ctx, symbol); err != nil {
		fail("oi", err)
	} else {
		v.oiOK = true
	}
	if v.funding, err = src.FetchFunding(ctx, symbol); err != nil {
		fail("funding", err)
	} else {
		v.fundingOK = true
	}
	if mode == ModeBootstrap {
		if v.hist, err = src.FetchFundingHistory(ctx, symbol, fundingHistLimit); err != nil {
			fail("funding_history", err)
		} else {
			v.histOK = true
		}
	}
	if v.book, err = src.FetchBook(ctx, symbol, bookDepth); err != nil {
		fail("book", err)
	} else {
		v.bookOK = true
	}
	if v.ls, err = src.FetchLSRatio(ctx, symbol); err != nil {
		fail("ls_ratio", err)
	} else {
		v.lsOK = true
	}
	return v
}

// persist merges the venue results into store appends. Candles come from
// the first venue that delivered them (registry order); everything else is
// aggregated per exchange. Returns true when any fetch failed.
func (p *Pipeline) persist(ctx context.Context, symbol string, venues []*venueData) bool {
	now := time.Now().UnixMilli()
	degraded := false

	oi := models.OIPoint{T: now, ByExchange: map[string]float64{}}
	fundingNow := models.FundingPoint{T: now, ByExchange: map[string]float64{}}
	ls := models.LSPoint{T: now, ByExchange: map[string]float64{}}
	ticker := models.Ticker{T: now, ByExchange: map[string]models.ExchangeQuote{}}
	book := models.BookSnapshot{T: now, ByExchange: map[string]models.OrderBook{}}
	histByT := map[int64]*models.FundingPoint{}

	candlesStored := false
	for _, v := range venues {
		if v.failures > 0 {
			degraded = true
		}
		if v.candlesOK && !candlesStored && len(v.candles) > 0 {
			candles := v.candles
			if p.runAppend(ctx, symbol, "candles", func() error {
				return p.store.AppendCandles(ctx, symbol, candles)
			}) {
				candlesStored = true
			} else {
				degraded = true
			}
		}
		if v.oiOK {
			oi.ByExchange[v.exchange] = v.oi
		}
		if v.fundingOK {
			fundingNow.ByExchange[v.exchange] = v.funding
		}
		if v.lsOK {
			ls.ByExchange[v.exchange] = v.ls
		}
		if v.quoteOK {
			ticker.ByExchange[v.exchange] = v.quote
		}
		if v.bookOK {
			book.ByExchange[v.exchange] = v.book
		}
		if v.histOK {
			for _, fr := range v.hist {
				fp := histByT[fr.T]
				if fp == nil {
					fp = &models.FundingPoint{T: fr.T, ByExchange: map[string]float64{}}
					histByT[fr.T] = fp
				}
				fp.ByExchange[v.exchange] = fr.Rate
			}
		}
	}

	var fundingHist []models.FundingPoint
	for _, fp := range histByT {
		fundingHist = append(fundingHist, *fp)
	}

	appendIf := func(kind string, fn func() error, have bool) {
		if !have {
			return
		}
		if !p.runAppend(ctx, symbol, kind, fn) {
			degraded = true
		}
	}
	appendIf("oi", func() error {
		return p.store.AppendOI(ctx, symbol, []models.OIPoint{oi})
	}, len(oi.ByExchange) > 0)
	appendIf("funding", func() error {
		return p.store.AppendFunding(ctx, symbol, []models.FundingPoint{fundingNow})
	}, len(fundingNow.ByExchange) > 0)
	appendIf("funding_history", func() error {
		return p.store.AppendFunding(ctx, symbol, fundingHist)
	}, len(fundingHist) > 0)
	appendIf("ls_ratio", func() error {
		return p.store.AppendLS(ctx, symbol, []models.LSPoint{ls})
	}, len(ls.ByExchange) > 0)
	appendIf("ticker", func() error {
		ticker.Aggregate()
		return p.store.AppendTicker(ctx, symbol, ticker)
	}, len(ticker.ByExchange) > 0)
	appendIf("book", func() error {
		return p.store.PutBook(ctx, symbol, book)
	}, len(book.ByExchange) > 0)

	return degraded
}

// runAppend runs one store append, retrying once when the failure is
// retryable. A second failure gives up on the kind for this cycle, degrades
// the scan and raises an error alert on the operator side channel. Reports
// whether the append landed.
func (p *Pipeline) runAppend(ctx context.Context, symbol, kind string, fn func() error) bool {
	err := fn()
	if err != nil && errs.Retryable(err) {
		err = fn()
	}
	if err == nil {
		return true
	}
	if p.metrics != nil {
		p.metrics.ScanErrors.WithLabelValues(string(errs.KindOf(err))).Inc()
	}
	log.Warn().Err(err).Str("symbol", symbol).Str("kind", kind).
		Msg("store append failed")
	if p.alerts != nil {
		p.alerts.Emit(ctx, alert.Textf(alert.SeverityError, symbol,
			fmt.Sprintf("store degraded: %s append failed: %v", kind, err)))
	}
	return false
}

// bundle reads the symbol's evaluation window back out of the store.
func (p *Pipeline) bundle(ctx context.Context, symbol string) (*signal.Bundle, error) {
	candles, err := p.store.Candles(ctx, symbol, bootstrapCandles)
	if err != nil {
		return nil, err
	}
	oi, err := p.store.OIPoints(ctx, symbol, models.SeriesOI.RetentionCap())
	if err != nil {
		return nil, err
	}
	funding, err := p.store.FundingPoints(ctx, symbol, models.SeriesFunding.RetentionCap())
	if err != nil {
		return nil, err
	}
	ls, err := p.store.LSPoints(ctx, symbol, models.SeriesLS.RetentionCap())
	if err != nil {
		return nil, err
	}
	ticker, err := p.store.LatestTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}
	book, err := p.store.Book(ctx, symbol)
	if err != nil {
		return nil, err
	}

	b := &signal.Bundle{
		Symbol:  symbol,
		Now:     time.Now().UnixMilli(),
		Candles: candles,
		OI:      oi,
		Funding: funding,
		LS:      ls,
		Ticker:  ticker,
		Book:    book,
	}
	if ticker != nil && ticker.Price > 0 {
		b.Price = ticker.Price
	} else if len(candles) > 0 {
		b.Price = candles[len(candles)-1].C
	}
	if features.MaxGapHours(candles) > p.maxGapHours {
		b.GapExceeded = true
	}
	return b, nil
}
