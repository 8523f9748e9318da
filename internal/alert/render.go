package alert

import (
	"fmt"
	"strings"

	"github.com/sawpanic/pumpwatch/internal/models"
)

var signalLabels = map[string]string{
	models.SignalOISurge:          "OI surge",
	models.SignalFundingRate:      "Funding",
	models.SignalLiqLeverage:      "Liq leverage",
	models.SignalCrossExVolume:    "Cross-ex volume",
	models.SignalDepthImbalance:   "Depth imbalance",
	models.SignalVolPriceDecouple: "Vol/price decouple",
	models.SignalVolCompression:   "Vol compression",
	models.SignalLongShortRatio:   "Long/short",
	models.SignalFutVolDivergence: "Futures vol",
}

// Render produces the shared plain-text body used by the console and
// Telegram sinks. CRITICAL and HIGH_ALERT get the full breakdown with
// smart levels; WATCHLIST gets the breakdown and entry band only.
func Render(a *Alert) string {
	if a.Text != "" {
		if a.Symbol != "" {
			return fmt.Sprintf("[%s] %s", a.Symbol, a.Text)
		}
		return a.Text
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s  score %.1f  [%s]\n",
		headline(a.Classification), a.Symbol, a.Score, a.Quality)
	if a.Price > 0 {
		fmt.Fprintf(&sb, "price %s\n", fmtPrice(a.Price))
	}

	for _, ev := range a.Events {
		fmt.Fprintf(&sb, "! %s: %s\n", ev.Kind, ev.Detail)
	}

	for _, name := range models.SignalNames {
		sig, ok := a.Signals[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "  %-18s %5.1f", signalLabels[name], sig.Score)
		if sig.Quality == models.QualityLow {
			sb.WriteString("  (low)")
		}
		sb.WriteByte('\n')
	}

	if len(a.Bonuses) > 0 {
		fmt.Fprintf(&sb, "bonuses: %s\n", strings.Join(a.Bonuses, ", "))
	}
	if a.Penalty != "" {
		fmt.Fprintf(&sb, "penalty: %s\n", a.Penalty)
	}

	if lv := a.Levels; lv != nil {
		fmt.Fprintf(&sb, "entry %s - %s (ideal %s)\n",
			fmtPrice(lv.Entry.Low), fmtPrice(lv.Entry.High), fmtPrice(lv.Entry.Ideal))
		if a.Classification != models.ClassWatchlist {
			fmt.Fprintf(&sb, "stop %s (%.1f%%, %s)\n",
				fmtPrice(lv.Stop), lv.StopPct*100, lv.StopMethod)
			for i := 0; i < 3; i++ {
				tp := lv.TPs[i]
				snapped := ""
				if tp.Snapped {
					snapped = " *"
				}
				fmt.Fprintf(&sb, "tp%d %s%s\n", i+1, fmtPrice(tp.Price), snapped)
			}
			fmt.Fprintf(&sb, "tp4 trail %.1f%%\n", lv.TPs[3].TrailPct*100)
			fmt.Fprintf(&sb, "r:r %.2f  size $%.0f\n", lv.RiskReward, lv.PositionUSD)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func headline(c models.Classification) string {
	switch c {
	case models.ClassCritical:
		return "🚨 CRITICAL"
	case models.ClassHighAlert:
		return "⚠️ HIGH ALERT"
	case models.ClassWatchlist:
		return "👀 WATCHLIST"
	default:
		return string(c)
	}
}

// fmtPrice keeps enough precision for sub-cent perp prices without
// littering majors with decimals.
func fmtPrice(p float64) string {
	switch {
	case p >= 100:
		return fmt.Sprintf("%.2f", p)
	case p >= 1:
		return fmt.Sprintf("%.4f", p)
	default:
		return fmt.Sprintf("%.6f", p)
	}
}
