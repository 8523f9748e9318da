// Package metrics exposes the Prometheus registry for the scanner: cycle
// timing, per-exchange fetch failures, alert and trade counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every pumpwatch metric on its own Prometheus registry so
// tests and the ops server stay isolated from the global default.
type Registry struct {
	reg *prometheus.Registry

	CycleDuration  prometheus.Histogram
	CyclesTotal    prometheus.Counter
	SymbolsScanned prometheus.Counter
	ScanErrors     *prometheus.CounterVec
	FetchErrors    *prometheus.CounterVec
	AlertsEmitted  *prometheus.CounterVec
	FinalScore     prometheus.Histogram
	OpenTrades     prometheus.Gauge
	UniverseSize   prometheus.Gauge
}

// New builds and registers all metrics.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pumpwatch_cycle_duration_seconds",
			Help:    "Wall time of one full scan cycle.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pumpwatch_cycles_total",
			Help: "Completed scan cycles.",
		}),
		SymbolsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pumpwatch_symbols_scanned_total",
			Help: "Symbols processed across all cycles.",
		}),
		ScanErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pumpwatch_scan_errors_total",
			Help: "Per-symbol pipeline failures by error kind.",
		}, []string{"kind"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pumpwatch_fetch_errors_total",
			Help: "Exchange fetch failures by venue and data kind.",
		}, []string{"exchange", "kind"}),
		AlertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pumpwatch_alerts_emitted_total",
			Help: "Alerts emitted by classification.",
		}, []string{"classification"}),
		FinalScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pumpwatch_final_score",
			Help:    "Distribution of final composite scores.",
			Buckets: []float64{10, 20, 33, 48, 62, 78, 90, 100},
		}),
		OpenTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pumpwatch_open_trades",
			Help: "Registered trades currently open.",
		}),
		UniverseSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pumpwatch_universe_size",
			Help: "Symbols in the current scan universe.",
		}),
	}

	r.reg.MustRegister(
		r.CycleDuration, r.CyclesTotal, r.SymbolsScanned, r.ScanErrors,
		r.FetchErrors, r.AlertsEmitted, r.FinalScore, r.OpenTrades,
		r.UniverseSize,
	)
	return r
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
