// Package events diffs adjacent scan results for one symbol and reports
// what changed: score jumps, classification upgrades, price ignition.
package events

import (
	"fmt"

	"github.com/sawpanic/pumpwatch/internal/models"
)

const (
	scoreJumpDelta   = 15
	ignitionReturn   = 0.05 // +5% over 6h
	ignitionMinScore = 48
)

// Detect compares the current result against the previous one. prev may be
// nil on a symbol's first scan; price6hAgo 0 when the candle history does
// not reach back that far. Events are emitted in fixed order: SCORE_JUMP,
// UPGRADE, IGNITION.
func Detect(cur, prev *models.ScanResult, price6hAgo float64) []models.Event {
	if cur == nil {
		return nil
	}
	var out []models.Event

	if prev != nil {
		if delta := cur.FinalScore - prev.FinalScore; delta >= scoreJumpDelta {
			out = append(out, models.Event{
				Kind:    models.EventScoreJump,
				Detail:  fmt.Sprintf("score +%.1f in one cycle", delta),
				Current: cur.FinalScore,
				Prev:    prev.FinalScore,
			})
		}
		if cur.Classification.Rank() > prev.Classification.Rank() {
			out = append(out, models.Event{
				Kind:    models.EventUpgrade,
				Detail:  fmt.Sprintf("%s -> %s", prev.Classification, cur.Classification),
				Current: cur.FinalScore,
				Prev:    prev.FinalScore,
			})
		}
	}

	if price6hAgo > 0 && cur.Price > 0 {
		ret := cur.Price/price6hAgo - 1
		if ret >= ignitionReturn && cur.FinalScore >= ignitionMinScore {
			out = append(out, models.Event{
				Kind:    models.EventIgnition,
				Detail:  fmt.Sprintf("price +%.1f%% in 6h with score %.0f", ret*100, cur.FinalScore),
				Current: cur.Price,
				Prev:    price6hAgo,
			})
		}
	}
	return out
}
