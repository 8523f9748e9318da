// Package http serves the local ops surface: health, cycle status,
// Prometheus metrics and a websocket alert stream.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pumpwatch/internal/metrics"
	"github.com/sawpanic/pumpwatch/internal/models"
	"github.com/sawpanic/pumpwatch/internal/net/circuit"
	"github.com/sawpanic/pumpwatch/internal/scan"
	"github.com/sawpanic/pumpwatch/internal/store"
)

const handlerTimeout = 10 * time.Second

// CycleSource exposes the scheduler's latest cycle to /status.
type CycleSource interface {
	LastCycle() scan.CycleSummary
}

// Server is the ops HTTP listener. Local-only by default; it never carries
// exchange credentials or order flow.
type Server struct {
	srv      *http.Server
	store    *store.Store
	cycles   CycleSource
	breakers *circuit.Set
	metrics  *metrics.Registry
	hub      *Hub
	started  time.Time
}

// New builds the server on addr ("host:port").
func New(addr string, st *store.Store, cycles CycleSource, breakers *circuit.Set, m *metrics.Registry) *Server {
	s := &Server{
		store:    st,
		cycles:   cycles,
		breakers: breakers,
		metrics:  m,
		hub:      NewHub(),
		started:  time.Now(),
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware, loggingMiddleware)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/stream", s.hub.handleStream).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Hub returns the websocket broadcast hub, registered as an alert sink in
// main.
func (s *Server) Hub() *Hub { return s.hub }

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.srv.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("ops server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("failed to serve ops endpoint: %w", err)
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		return s.srv.Shutdown(shutCtx)
	}
}

type healthResponse struct {
	Status   string            `json:"status"`
	UptimeS  int64             `json:"uptime_s"`
	StoreOK  bool              `json:"store_ok"`
	Breakers map[string]string `json:"breakers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	resp := healthResponse{
		Status:   "ok",
		UptimeS:  int64(time.Since(s.started).Seconds()),
		StoreOK:  true,
		Breakers: s.breakers.States(),
	}
	if _, err := s.store.Stats(ctx); err != nil {
		resp.Status = "degraded"
		resp.StoreOK = false
	}
	for _, state := range resp.Breakers {
		if state == "open" {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	Cycle scan.CycleSummary   `json:"cycle"`
	Top   []models.ScanResult `json:"top"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	top, err := s.store.TopScores(ctx, 40, 20)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Cycle: s.cycles.LastCycle(),
		Top:   top,
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encoding failed")
	}
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		id, _ := r.Context().Value(requestIDKey).(string)
		log.Debug().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("ops request")
	})
}
