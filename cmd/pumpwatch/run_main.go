package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/pumpwatch/internal/alert"
	"github.com/sawpanic/pumpwatch/internal/cache"
	"github.com/sawpanic/pumpwatch/internal/config"
	"github.com/sawpanic/pumpwatch/internal/errs"
	httpops "github.com/sawpanic/pumpwatch/internal/interfaces/http"
	"github.com/sawpanic/pumpwatch/internal/levels"
	"github.com/sawpanic/pumpwatch/internal/market"
	"github.com/sawpanic/pumpwatch/internal/metrics"
	"github.com/sawpanic/pumpwatch/internal/net/circuit"
	"github.com/sawpanic/pumpwatch/internal/net/ratelimit"
	"github.com/sawpanic/pumpwatch/internal/scan"
	"github.com/sawpanic/pumpwatch/internal/score"
	"github.com/sawpanic/pumpwatch/internal/store"
	"github.com/sawpanic/pumpwatch/internal/trade"
)

func newRunCmd() *cobra.Command {
	var (
		flagOnce    bool
		flagStats   bool
		flagCleanup bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan continuously (or run one maintenance action and exit)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd.Context(), flagOnce, flagStats, flagCleanup)
		},
	}
	cmd.Flags().BoolVar(&flagOnce, "once", false, "run a single scan cycle and exit")
	cmd.Flags().BoolVar(&flagStats, "stats", false, "print store statistics and exit")
	cmd.Flags().BoolVar(&flagCleanup, "cleanup", false, "purge rows past retention and exit")
	return cmd
}

// app is everything run wires together.
type app struct {
	cfg       *config.Config
	store     *store.Store
	registry  *market.Registry
	breakers  *circuit.Set
	metrics   *metrics.Registry
	alerts    *alert.Manager
	telegram  *alert.Telegram
	scheduler *scan.Scheduler
	monitor   *trade.Monitor
	commander *trade.Commander
	server    *httpops.Server
}

func runRun(ctx context.Context, once, stats, cleanup bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	switch {
	case stats:
		return printStats(ctx, st)
	case cleanup:
		removed, err := st.Cleanup(ctx, cfg.Store.RetentionDays)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d rows older than %d days\n", removed, cfg.Store.RetentionDays)
		return nil
	}

	a, err := build(cfg, st)
	if err != nil {
		return err
	}

	// A dead universe at startup is a fatal adapter condition (exit 2);
	// once running, listing failures only degrade cycles.
	universe, err := scan.BuildUniverse(ctx, st, a.registry)
	if err != nil {
		return errs.E(errs.KindPermanentFetch, "startup: universe", err)
	}
	log.Info().Int("symbols", len(universe)).
		Strs("exchanges", a.registry.Names()).Msg("universe ready")

	if once {
		summary, err := a.scheduler.RunCycle(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("scanned %d symbols, %d alerts, %d errors in %s\n",
			summary.Scanned, summary.Alerts, summary.Errors,
			summary.Duration.Round(time.Millisecond))
		return nil
	}

	return a.serve(ctx)
}

// build wires the full application graph from config.
func build(cfg *config.Config, st *store.Store) (*app, error) {
	a := &app{cfg: cfg, store: st}

	limiter := ratelimit.New(5, 10)
	a.breakers = circuit.NewSet()
	client := market.NewClient(limiter, a.breakers, cache.New(cfg.Cache.RedisAddr))

	var sources []market.Source
	for _, name := range cfg.EnabledExchanges() {
		switch name {
		case "binance":
			sources = append(sources, market.NewBinance(client, ""))
		case "bybit":
			sources = append(sources, market.NewBybit(client, ""))
		case "okx":
			sources = append(sources, market.NewOKX(client, ""))
		}
	}
	a.registry = market.NewRegistry(sources...)
	a.metrics = metrics.New()

	a.alerts = alert.NewManager(cfg.MinClassification(), cfg.Thresholds.Watchlist)
	for _, sink := range cfg.Alerts.Sinks {
		switch sink {
		case "console":
			a.alerts.AddSink(alert.NewConsole(nil))
		case "telegram":
			a.telegram = alert.NewTelegram(
				cfg.Alerts.Telegram.BotToken, cfg.Alerts.Telegram.ChatID, "")
			a.alerts.AddSink(a.telegram)
		}
		// The websocket sink attaches below once the hub exists.
	}

	pipeline := scan.NewPipeline(st, a.registry,
		score.New(cfg.Thresholds),
		levels.New(levels.Params{AccountUSD: cfg.Risk.AccountUSD, RiskPct: cfg.Risk.RiskPct}),
		a.alerts, a.metrics, cfg.Scan.MaxGapHours)

	a.scheduler = scan.NewScheduler(st, a.registry, pipeline, a.alerts, a.metrics, scan.Params{
		Cadence:          time.Duration(cfg.Scan.CadenceSeconds) * time.Second,
		Concurrency:      cfg.Scan.Concurrency,
		PerSymbolTimeout: time.Duration(cfg.Scan.PerSymbolTimeoutS) * time.Second,
	})

	a.monitor = trade.NewMonitor(st, a.registry, a.alerts, cfg.Risk.MaxOpenTrades)
	a.commander = trade.NewCommander(a.monitor, st, a.scheduler)

	if cfg.Server.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		a.server = httpops.New(addr, st, a.scheduler, a.breakers, a.metrics)
		for _, sink := range cfg.Alerts.Sinks {
			if sink == "websocket" {
				a.alerts.AddSink(a.server.Hub())
			}
		}
	}
	return a, nil
}

// serve runs the scheduler, trade monitor, ops server and Telegram command
// loop until the context is cancelled or the store is corrupt.
func (a *app) serve(ctx context.Context) error {
	errc := make(chan error, 1)

	go func() { errc <- a.scheduler.Run(ctx) }()
	go a.monitor.Run(ctx)

	if a.server != nil {
		go func() {
			if err := a.server.Start(ctx); err != nil {
				log.Error().Err(err).Msg("ops server stopped")
			}
		}()
	}
	if a.telegram != nil && a.telegram.Enabled() {
		go a.telegram.Listen(ctx, a.commander.Handle)
	}

	log.Info().Int("cadence_s", a.cfg.Scan.CadenceSeconds).Msg("pumpwatch running")
	err := <-errc
	if errs.KindOf(err) == errs.KindStoreCorruption {
		return err
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		log.Info().Msg("shutting down")
		return nil
	}
	return err
}

func printStats(ctx context.Context, st *store.Store) error {
	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("store: %.1f MiB, %d symbols\n",
		float64(stats.FileBytes)/(1<<20), stats.Symbols)
	for _, table := range []string{
		"candles", "oi_points", "funding_points", "ls_points",
		"tickers", "book_snapshots", "scan_results", "trades",
	} {
		fmt.Printf("  %-16s %d rows\n", table, stats.Rows[table])
	}
	if stats.LastScanMs > 0 {
		fmt.Printf("last scan: %s\n", time.UnixMilli(stats.LastScanMs).Format(time.RFC3339))
	} else {
		fmt.Println("last scan: never")
	}
	return nil
}
