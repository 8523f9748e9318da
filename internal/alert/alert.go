// Package alert carries classified scan alerts and trade notifications to
// their sinks. Sinks are interchangeable renderers of the same structured
// message; the manager fans out and keeps the last error per sink.
package alert

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pumpwatch/internal/models"
)

// Severity grades an alert for sink presentation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Alert is the sink-neutral message. Scan alerts fill the breakdown
// fields; trade and operator notifications fill Text instead.
type Alert struct {
	Severity       Severity                 `json:"severity"`
	Symbol         string                   `json:"symbol,omitempty"`
	Classification models.Classification    `json:"classification,omitempty"`
	Score          float64                  `json:"score,omitempty"`
	Quality        models.Quality           `json:"quality,omitempty"`
	Price          float64                  `json:"price,omitempty"`
	Signals        map[string]models.Signal `json:"signals,omitempty"`
	Bonuses        []string                 `json:"bonuses,omitempty"`
	Penalty        string                   `json:"penalty,omitempty"`
	Levels         *models.Levels           `json:"levels,omitempty"`
	Events         []models.Event           `json:"events,omitempty"`
	Text           string                   `json:"text,omitempty"`
}

// FromScan builds a scan alert from a result and its events.
func FromScan(r *models.ScanResult, events []models.Event) *Alert {
	sev := SeverityInfo
	switch r.Classification {
	case models.ClassCritical:
		sev = SeverityCritical
	case models.ClassHighAlert:
		sev = SeverityWarning
	}
	return &Alert{
		Severity:       sev,
		Symbol:         r.Symbol,
		Classification: r.Classification,
		Score:          r.FinalScore,
		Quality:        r.Quality,
		Price:          r.Price,
		Signals:        r.Signals,
		Bonuses:        r.Bonuses,
		Penalty:        r.Penalty,
		Levels:         r.Levels,
		Events:         events,
	}
}

// Textf builds a plain text notification.
func Textf(sev Severity, symbol, text string) *Alert {
	return &Alert{Severity: sev, Symbol: symbol, Text: text}
}

// Sink delivers rendered alerts somewhere.
type Sink interface {
	Send(ctx context.Context, a *Alert) error
	Name() string
	Enabled() bool
}

// Manager fans alerts out to every enabled sink.
type Manager struct {
	mu         sync.Mutex
	sinks      []Sink
	lastErrs   map[string]error
	minClass   models.Classification
	eventFloor float64
}

// NewManager returns a Manager that drops scan alerts classified below min.
// eventFloor is the score at which event-carrying alerts punch through the
// classification filter; it tracks the configured watchlist cutoff, and
// values <= 0 fall back to the default cutoff.
func NewManager(min models.Classification, eventFloor float64, sinks ...Sink) *Manager {
	if eventFloor <= 0 {
		eventFloor = defaultEventFloor
	}
	return &Manager{
		sinks:      sinks,
		lastErrs:   make(map[string]error),
		minClass:   min,
		eventFloor: eventFloor,
	}
}

// defaultEventFloor matches the stock watchlist threshold.
const defaultEventFloor = 48

// AddSink registers another sink.
func (m *Manager) AddSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// Emit applies the alert policy and fans out, reporting whether the alert
// went to the sinks. Scan alerts below the configured classification are
// suppressed unless they carry events and a score at or above the event
// floor; MONITOR results never alert. Text alerts always go out.
func (m *Manager) Emit(ctx context.Context, a *Alert) bool {
	if a.Text == "" && !m.shouldEmit(a) {
		return false
	}

	m.mu.Lock()
	sinks := make([]Sink, len(m.sinks))
	copy(sinks, m.sinks)
	m.mu.Unlock()

	for _, s := range sinks {
		if !s.Enabled() {
			continue
		}
		err := s.Send(ctx, a)
		m.mu.Lock()
		m.lastErrs[s.Name()] = err
		m.mu.Unlock()
		if err != nil {
			log.Error().Err(err).Str("sink", s.Name()).Str("symbol", a.Symbol).
				Msg("alert delivery failed")
		}
	}
	return true
}

func (m *Manager) shouldEmit(a *Alert) bool {
	if a.Classification.Rank() >= m.minClass.Rank() &&
		a.Classification.Rank() >= models.ClassWatchlist.Rank() {
		return true
	}
	// Events punch through classification filtering above the score floor.
	return len(a.Events) > 0 && a.Score >= m.eventFloor
}

// LastErrors snapshots the most recent delivery error per sink; nil means
// the last send succeeded.
func (m *Manager) LastErrors() map[string]error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]error, len(m.lastErrs))
	for k, v := range m.lastErrs {
		out[k] = v
	}
	return out
}
