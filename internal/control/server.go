// Package control exposes the HTTP control surface for a running huemood
// instance: liveness, readiness, per-bulb session status and remote stop.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huemood/internal/ledger"
)

// statusHistoryLimit bounds the session history returned by /status.
const statusHistoryLimit = 20

// Controller is the slice of the mood engine the control server needs.
type Controller interface {
	// Statuses returns the per-bulb session status snapshot.
	Statuses() map[string]string
	// RequestStop asks the engine to stop all loops and restore bulbs.
	RequestStop()
}

// History supplies recent session events for the status endpoint.
type History interface {
	Recent(limit int) ([]ledger.Entry, error)
}

// Server is the HTTP control server.
type Server struct {
	addr       string
	controller Controller
	history    History
	ready      func() bool
	httpServer *http.Server
}

// NewServer creates a control server. The ready func reports whether the
// bridge connection has been established; nil means always ready. A nil
// history omits recent events from /status.
func NewServer(host string, port int, controller Controller, history History, ready func() bool) *Server {
	return &Server{
		addr:       fmt.Sprintf("%s:%d", host, port),
		controller: controller,
		history:    history,
		ready:      ready,
	}
}

// Run starts the control server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/stop", s.handleStop)

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	log.Info().Str("addr", s.addr).Msg("Starting control server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Control server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.ready != nil && !s.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not_ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := map[string]any{
		"bulbs": s.controller.Statuses(),
	}
	if s.history != nil {
		entries, err := s.history.Recent(statusHistoryLimit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load session history")
		} else {
			events := make([]map[string]any, 0, len(entries))
			for _, e := range entries {
				events = append(events, map[string]any{
					"session_id": e.SessionID,
					"bulb":       e.Bulb,
					"event":      e.EventType,
					"at":         e.Timestamp.Format(time.RFC3339),
				})
			}
			resp["recent_events"] = events
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	log.Info().Str("remote", r.RemoteAddr).Msg("Stop requested over HTTP")
	s.controller.RequestStop()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(`{"status":"stopping"}`))
}
