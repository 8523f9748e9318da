// Package features holds the pure extractors the signal evaluators and the
// levels engine are built on. Everything here is deterministic and never
// blocks; input sufficiency is reported through ok returns so callers can
// grade quality.
package features

import (
	"math"

	"github.com/sawpanic/pumpwatch/internal/models"
)

// BBWidths returns the Bollinger band width series (2σ / SMA) over the
// given period for every position with a full window. Candles ascending.
func BBWidths(candles []models.Candle, period int) []float64 {
	if period <= 0 || len(candles) <= period {
		return nil
	}
	out := make([]float64, 0, len(candles)-period)
	for i := period; i <= len(candles); i++ {
		w := candles[i-period : i]
		var sum float64
		for _, c := range w {
			sum += c.C
		}
		mean := sum / float64(period)
		if mean <= 0 {
			continue
		}
		var varsum float64
		for _, c := range w {
			d := c.C - mean
			varsum += d * d
		}
		std := math.Sqrt(varsum / float64(period))
		out = append(out, 2*std/mean)
	}
	return out
}

// FractionAbove returns the fraction of the series strictly greater than x.
// For band widths this is the compression percentile: 0.9 means the current
// width is tighter than 90% of history.
func FractionAbove(series []float64, x float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var n int
	for _, v := range series {
		if v > x {
			n++
		}
	}
	return float64(n) / float64(len(series))
}

// VWAP computes the volume-weighted average of typical price over the last
// n candles. Falls back to the last close when no volume traded.
func VWAP(candles []models.Candle, n int) float64 {
	if len(candles) == 0 {
		return 0
	}
	if n > len(candles) {
		n = len(candles)
	}
	var pv, vol float64
	for _, c := range candles[len(candles)-n:] {
		typical := (c.H + c.L + c.C) / 3
		pv += typical * c.V
		vol += c.V
	}
	if vol == 0 {
		return candles[len(candles)-1].C
	}
	return pv / vol
}

// SwingLow returns the lowest low of the last n candles.
func SwingLow(candles []models.Candle, n int) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}
	if n > len(candles) {
		n = len(candles)
	}
	low := math.MaxFloat64
	for _, c := range candles[len(candles)-n:] {
		if c.L < low {
			low = c.L
		}
	}
	return low, true
}

// HighestHigh returns the highest high of the last n candles.
func HighestHigh(candles []models.Candle, n int) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}
	if n > len(candles) {
		n = len(candles)
	}
	var high float64
	for _, c := range candles[len(candles)-n:] {
		if c.H > high {
			high = c.H
		}
	}
	return high, true
}

// SumVolume totals candle volume over the given slice.
func SumVolume(candles []models.Candle) float64 {
	var sum float64
	for _, c := range candles {
		sum += c.V
	}
	return sum
}

// MeanVolume is the average per-candle volume over the given slice.
func MeanVolume(candles []models.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return SumVolume(candles) / float64(len(candles))
}

// CloseAt returns the close of the latest candle at or before cutoff (ms).
func CloseAt(candles []models.Candle, cutoff int64) (float64, bool) {
	for i := len(candles) - 1; i >= 0; i-- {
		if candles[i].T <= cutoff {
			return candles[i].C, true
		}
	}
	return 0, false
}

// MaxGapHours returns the largest gap between adjacent candles, in hours.
func MaxGapHours(candles []models.Candle) float64 {
	var max float64
	for i := 1; i < len(candles); i++ {
		gap := float64(candles[i].T-candles[i-1].T) / float64(3600_000)
		if gap > max {
			max = gap
		}
	}
	return max
}
