// Package status serves a small read-only HTTP view of the poll loop:
// liveness, counters and the most recent checks.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/visacheck/slotwatch/internal/history"
	"github.com/hazyhaar/visacheck/slotwatch/internal/poll"
)

// StatsSource is implemented by poll.Loop.
type StatsSource interface {
	Stats() poll.Stats
}

// CheckLister is implemented by history.Ledger.
type CheckLister interface {
	RecentChecks(ctx context.Context, limit int) ([]history.Check, error)
}

const (
	defaultChecks = 20
	maxChecks     = 500
)

// Server is the status endpoint.
type Server struct {
	addr    string
	started time.Time
	stats   StatsSource
	checks  CheckLister
	router  *chi.Mux
	logger  *slog.Logger
}

// New builds the router. Nothing listens until ListenAndServe.
func New(addr string, stats StatsSource, checks CheckLister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:    addr,
		started: time.Now().UTC(),
		stats:   stats,
		checks:  checks,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(headOK)
	r.Use(noSniff)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/status", s.handleStatus)
	r.Get("/checks", s.handleChecks)

	s.router = r
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("status: listen %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("status: listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status: shutdown: %w", err)
	}
	s.logger.Info("status: stopped")
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"started_at": s.started,
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"stats":      s.stats.Stats(),
	})
}

func (s *Server) handleChecks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultChecks)
	if err != nil || limit <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		return
	}
	limit = min(limit, maxChecks)

	checks, err := s.checks.RecentChecks(r.Context(), limit)
	if err != nil {
		s.logger.Error("status: recent checks", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, checks)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
