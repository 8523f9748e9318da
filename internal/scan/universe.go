package scan

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pumpwatch/internal/errs"
	"github.com/sawpanic/pumpwatch/internal/market"
	"github.com/sawpanic/pumpwatch/internal/store"
)

// universeTTL is how long the cached symbol list stays fresh.
const universeTTL = 24 * time.Hour

// stableBases are quote-like tokens that list as perpetuals on some venues
// but can never pump; they are excluded from the universe.
var stableBases = map[string]bool{
	"USDT": true, "USDC": true, "BUSD": true, "TUSD": true,
	"DAI": true, "FDUSD": true, "USDD": true, "USDE": true,
	"PYUSD": true, "EUR": true, "FDUSDT": true, "USDP": true,
}

// BuildUniverse returns the scan universe: the union of futures symbols
// across all registered exchanges, stablecoin bases removed, sorted. The
// store caches the list for 24 hours so forced scans do not re-list.
func BuildUniverse(ctx context.Context, st *store.Store, reg *market.Registry) ([]string, error) {
	if cached, fetchedAt, err := st.Universe(ctx); err == nil &&
		len(cached) > 0 && time.Since(fetchedAt) < universeTTL {
		return cached, nil
	}

	seen := map[string]bool{}
	listed := 0
	for _, src := range reg.Sources() {
		symbols, err := src.ListFuturesSymbols(ctx)
		if err != nil {
			log.Warn().Err(err).Str("exchange", src.Name()).
				Msg("symbol listing failed, continuing with remaining exchanges")
			continue
		}
		listed++
		for _, s := range symbols {
			base := strings.ToUpper(s)
			if !stableBases[base] {
				seen[base] = true
			}
		}
	}
	if listed == 0 {
		// Every venue failed; fall back to a stale cache when one exists.
		if cached, _, err := st.Universe(ctx); err == nil && len(cached) > 0 {
			log.Warn().Int("symbols", len(cached)).
				Msg("all symbol listings failed, using stale universe cache")
			return cached, nil
		}
		return nil, errs.Ef(errs.KindTransientFetch, "scan: build universe",
			"no exchange returned a symbol list")
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)

	if err := st.PutUniverse(ctx, out); err != nil {
		log.Warn().Err(err).Msg("universe cache write failed")
	}
	return out, nil
}
