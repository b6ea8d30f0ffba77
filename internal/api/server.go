// Package api exposes the operational HTTP surface: a health probe, the
// Prometheus metrics endpoint, and a read-only anomaly listing.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vdp-1/cubesat-telemetry/internal/anomaly"
)

const (
	defaultAnomalyLimit = 50
	maxAnomalyLimit     = 500
)

// AnomalySource is the read side the anomaly listing is served from.
type AnomalySource interface {
	RecentAnomalies(ctx context.Context, limit int) ([]anomaly.Record, error)
}

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) func(*Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server routes the operational endpoints.
type Server struct {
	source AnomalySource
	logger *slog.Logger
}

// NewServer creates the HTTP server over the given anomaly source.
func NewServer(source AnomalySource, options ...func(*Server)) *Server {
	s := Server{
		source: source,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Handler returns the router with all endpoints mounted.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/anomalies", s.handleAnomalies).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAnomalies lists recent anomalies, newest first. The limit query
// parameter defaults to 50 and is capped at 500.
func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	limit := defaultAnomalyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = v
	}
	if limit > maxAnomalyLimit {
		limit = maxAnomalyLimit
	}

	records, err := s.source.RecentAnomalies(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing anomalies failed", slog.String("error", err.Error()))
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if records == nil {
		records = []anomaly.Record{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(records),
		"anomalies": records,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("writing response failed", slog.String("error", err.Error()))
	}
}

// Serve runs the HTTP server on addr until ctx is cancelled, then shuts it
// down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
