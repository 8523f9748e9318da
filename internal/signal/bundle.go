package signal

import (
	"github.com/sawpanic/pumpwatch/internal/features"
	"github.com/sawpanic/pumpwatch/internal/models"
)

// Bundle is everything the evaluators may look at for one symbol: the full
// series views plus the latest ticker and book. Evaluators treat it as
// read-only.
type Bundle struct {
	Symbol  string
	Now     int64 // ms
	Price   float64
	Candles []models.Candle // ascending, hourly
	OI      []models.OIPoint
	Funding []models.FundingPoint
	LS      []models.LSPoint
	Ticker  *models.Ticker
	Book    *models.BookSnapshot

	// GapExceeded is set by the pipeline when the candle series has a hole
	// beyond the configured max gap. It caps every signal's quality at LOW.
	GapExceeded bool
}

// closeAgo returns the close nearest to (but not after) hours before Now.
func (b *Bundle) closeAgo(hours int) (float64, bool) {
	return features.CloseAt(b.Candles, b.Now-int64(hours)*3600_000)
}

// lastN returns the trailing n candles, or everything when shorter.
func (b *Bundle) lastN(n int) []models.Candle {
	if len(b.Candles) <= n {
		return b.Candles
	}
	return b.Candles[len(b.Candles)-n:]
}

// grade caps q at LOW when the bundle carries a data gap.
func (b *Bundle) grade(q models.Quality) models.Quality {
	if b.GapExceeded {
		return models.QualityLow
	}
	return q
}

// meanLS averages each exchange's latest long/short ratio.
func (b *Bundle) meanLS() (float64, bool) {
	if len(b.LS) == 0 {
		return 0, false
	}
	last := b.LS[len(b.LS)-1]
	if len(last.ByExchange) == 0 {
		return 0, false
	}
	return last.Mean(), true
}
