package trade

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sawpanic/pumpwatch/internal/store"
)

const helpText = `pumpwatch commands:
/trade SYMBOL entry size stop_pct  register a position to watch
/close SYMBOL [price]              close at price (market when omitted)
/status                            digest of open trades
/adjust SYMBOL stop|tp1|tp2|tp3 v  move a level (stop only up)
/scan                              force an immediate scan cycle
/watchlist                         latest scores >= 40, top 20
/help                              this text`

const (
	watchlistMinScore = 40
	watchlistLimit    = 20
)

// Forcer triggers an out-of-band scan cycle.
type Forcer interface {
	ForceScan()
}

// Commander parses operator command lines (Telegram or programmatic) and
// dispatches them to the monitor, store and scheduler.
type Commander struct {
	monitor *Monitor
	store   *store.Store
	forcer  Forcer
}

// NewCommander wires the command surface.
func NewCommander(m *Monitor, st *store.Store, f Forcer) *Commander {
	return &Commander{monitor: m, store: st, forcer: f}
}

// Handle executes one command line and returns the reply text. Unknown or
// malformed commands reply with usage; Handle never returns an empty
// string for a line starting with '/'.
func (c *Commander) Handle(ctx context.Context, line string) string {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}

	switch strings.ToLower(fields[0]) {
	case "/trade":
		return c.handleTrade(ctx, fields[1:])
	case "/close":
		return c.handleClose(ctx, fields[1:])
	case "/status":
		out, err := c.monitor.Status(ctx)
		if err != nil {
			return "status failed: " + err.Error()
		}
		return out
	case "/adjust":
		return c.handleAdjust(ctx, fields[1:])
	case "/scan":
		c.forcer.ForceScan()
		return "scan cycle queued"
	case "/watchlist":
		return c.handleWatchlist(ctx)
	case "/help", "/start":
		return helpText
	default:
		return "unknown command\n" + helpText
	}
}

func (c *Commander) handleTrade(ctx context.Context, args []string) string {
	if len(args) != 4 {
		return "usage: /trade SYMBOL entry size stop_pct"
	}
	symbol := strings.ToUpper(args[0])
	entry, err1 := strconv.ParseFloat(args[1], 64)
	size, err2 := strconv.ParseFloat(args[2], 64)
	stopPct, err3 := strconv.ParseFloat(args[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return "usage: /trade SYMBOL entry size stop_pct (numbers)"
	}
	if stopPct >= 1 {
		// "5" means five percent.
		stopPct /= 100
	}

	t, err := c.monitor.Open(ctx, symbol, entry, size, stopPct)
	if err != nil {
		return "trade rejected: " + err.Error()
	}
	return fmt.Sprintf("watching %s: entry %.4f, stop %.4f, TPs %.4f / %.4f / %.4f",
		t.Symbol, t.Entry, t.Stop, t.TPs[0], t.TPs[1], t.TPs[2])
}

func (c *Commander) handleClose(ctx context.Context, args []string) string {
	if len(args) < 1 || len(args) > 2 {
		return "usage: /close SYMBOL [price]"
	}
	symbol := strings.ToUpper(args[0])
	var price float64
	if len(args) == 2 {
		var err error
		if price, err = strconv.ParseFloat(args[1], 64); err != nil {
			return "usage: /close SYMBOL [price]"
		}
	}

	t, err := c.monitor.Close(ctx, symbol, price)
	if err != nil {
		return "close failed: " + err.Error()
	}
	return fmt.Sprintf("%s closed, realized $%.2f", t.Symbol, t.RealizedPnL)
}

func (c *Commander) handleAdjust(ctx context.Context, args []string) string {
	if len(args) != 3 {
		return "usage: /adjust SYMBOL stop|tp1|tp2|tp3 value"
	}
	symbol := strings.ToUpper(args[0])
	field := strings.ToLower(args[1])
	value, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return "usage: /adjust SYMBOL stop|tp1|tp2|tp3 value"
	}

	if _, err := c.monitor.Adjust(ctx, symbol, field, value); err != nil {
		return "adjust failed: " + err.Error()
	}
	return fmt.Sprintf("%s %s -> %.4f", symbol, field, value)
}

func (c *Commander) handleWatchlist(ctx context.Context) string {
	results, err := c.store.TopScores(ctx, watchlistMinScore, watchlistLimit)
	if err != nil {
		return "watchlist failed: " + err.Error()
	}
	if len(results) == 0 {
		return "watchlist empty (no scores >= 40 yet)"
	}
	var b strings.Builder
	b.WriteString("watchlist:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%2d. %-10s %6.2f %s\n", i+1, r.Symbol, r.FinalScore, r.Classification)
	}
	return b.String()
}
