// Package circuit wraps sony/gobreaker with one named breaker per
// exchange. Five consecutive failures open a breaker for thirty seconds,
// after which a single probe request is let through.
package circuit

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

const (
	consecutiveFailures = 5
	openTimeout         = 30 * time.Second
	halfOpenRequests    = 1
)

// Set is a registry of breakers keyed by exchange name, created on demand.
type Set struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewSet returns an empty breaker registry.
func NewSet() *Set {
	return &Set{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

// Execute runs fn through the named breaker. When the breaker is open the
// call fails fast with gobreaker.ErrOpenState.
func (s *Set) Execute(name string, fn func() (interface{}, error)) (interface{}, error) {
	return s.breaker(name).Execute(fn)
}

// Open reports whether the named breaker currently rejects calls.
func (s *Set) Open(name string) bool {
	return s.breaker(name).State() == gobreaker.StateOpen
}

// States snapshots every breaker's state for the health endpoint.
func (s *Set) States() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.breakers))
	for name, b := range s.breakers {
		out[name] = b.State().String()
	}
	return out
}

func (s *Set) breaker(name string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[name]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpenRequests,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("exchange", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	s.breakers[name] = b
	return b
}
