// Package scan drives the scheduler loop: universe construction, bounded
// per-symbol fan-out through the pipeline, alert emission and cycle
// accounting.
package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pumpwatch/internal/alert"
	"github.com/sawpanic/pumpwatch/internal/errs"
	"github.com/sawpanic/pumpwatch/internal/market"
	"github.com/sawpanic/pumpwatch/internal/metrics"
	"github.com/sawpanic/pumpwatch/internal/store"
)

// cycleSlack is subtracted from the cadence to form the cycle deadline so
// one cycle always finishes before the next tick.
const cycleSlack = 30 * time.Second

// CycleSummary describes the most recent completed cycle for /status and
// the --once exit report.
type CycleSummary struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Universe int           `json:"universe"`
	Scanned  int           `json:"scanned"`
	Alerts   int           `json:"alerts"`
	Errors   int           `json:"errors"`
}

// Params bound the scheduler loop.
type Params struct {
	Cadence          time.Duration
	Concurrency      int
	PerSymbolTimeout time.Duration
}

// Scheduler owns the cycle clock and the worker pool. Constructed in main,
// shared with the ops server (status) and the command handler (force scan).
type Scheduler struct {
	store    *store.Store
	registry *market.Registry
	pipeline *Pipeline
	alerts   *alert.Manager
	metrics  *metrics.Registry
	params   Params

	force chan struct{}

	mu   sync.Mutex
	last CycleSummary
}

// NewScheduler wires the scan loop.
func NewScheduler(st *store.Store, reg *market.Registry, p *Pipeline, am *alert.Manager, m *metrics.Registry, params Params) *Scheduler {
	if params.Concurrency <= 0 {
		params.Concurrency = 6
	}
	return &Scheduler{
		store:    st,
		registry: reg,
		pipeline: p,
		alerts:   am,
		metrics:  m,
		params:   params,
		force:    make(chan struct{}, 1),
	}
}

// ForceScan requests an immediate cycle. Non-blocking; a request while a
// forced cycle is already pending is coalesced.
func (s *Scheduler) ForceScan() {
	select {
	case s.force <- struct{}{}:
	default:
	}
}

// LastCycle returns the most recent cycle summary.
func (s *Scheduler) LastCycle() CycleSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run scans on the configured cadence until ctx is cancelled. Store
// corruption stops the loop and is returned to the caller.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.params.Cadence)
	defer ticker.Stop()

	for {
		if _, err := s.RunCycle(ctx); err != nil {
			if errs.KindOf(err) == errs.KindStoreCorruption {
				s.alerts.Emit(ctx, alert.Textf(alert.SeverityError, "",
					"store corruption detected, scanning halted: "+err.Error()))
				return err
			}
			log.Error().Err(err).Msg("scan cycle failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.force:
			log.Info().Msg("forced scan requested")
		}
	}
}

// RunCycle executes one full cycle under the cadence deadline.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleSummary, error) {
	started := time.Now()
	deadline := s.params.Cadence - cycleSlack
	if deadline <= 0 {
		deadline = s.params.Cadence
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	summary := CycleSummary{Started: started}

	universe, err := BuildUniverse(ctx, s.store, s.registry)
	if err != nil {
		return summary, err
	}
	summary.Universe = len(universe)
	if s.metrics != nil {
		s.metrics.UniverseSize.Set(float64(len(universe)))
	}

	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.params.Concurrency)
		mu  sync.Mutex
	)
	for _, symbol := range universe {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			alerted, err := s.scanOne(ctx, symbol)
			mu.Lock()
			summary.Scanned++
			if alerted {
				summary.Alerts++
			}
			if err != nil {
				summary.Errors++
			}
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	summary.Duration = time.Since(started)
	s.mu.Lock()
	s.last = summary
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.CyclesTotal.Inc()
		s.metrics.CycleDuration.Observe(summary.Duration.Seconds())
		s.metrics.SymbolsScanned.Add(float64(summary.Scanned))
	}
	log.Info().Int("universe", summary.Universe).Int("scanned", summary.Scanned).
		Int("alerts", summary.Alerts).Int("errors", summary.Errors).
		Dur("took", summary.Duration).Msg("cycle complete")
	return summary, nil
}

// scanOne runs the pipeline for a symbol within its own fetch budget and
// applies the alert policy. Reports whether an alert was emitted.
func (s *Scheduler) scanOne(ctx context.Context, symbol string) (bool, error) {
	result, evs, err := s.pipeline.Scan(ctx, symbol, s.params.PerSymbolTimeout)
	if err != nil {
		kind := errs.KindOf(err)
		if s.metrics != nil {
			s.metrics.ScanErrors.WithLabelValues(string(kind)).Inc()
		}
		if kind == errs.KindStoreIO {
			s.alerts.Emit(ctx, alert.Textf(alert.SeverityError, symbol,
				fmt.Sprintf("store degraded during scan: %v", err)))
		}
		log.Warn().Err(err).Str("symbol", symbol).Msg("symbol scan failed")
		return false, err
	}

	if s.metrics != nil {
		s.metrics.FinalScore.Observe(result.FinalScore)
	}

	emitted := s.alerts.Emit(ctx, alert.FromScan(result, evs))
	if emitted && s.metrics != nil {
		s.metrics.AlertsEmitted.WithLabelValues(string(result.Classification)).Inc()
	}
	return emitted, nil
}
