// Package health serves the liveness/readiness and metrics endpoints.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Status values reported by the health endpoint.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Checker reports whether a dependency is ready.
type Checker interface {
	IsReady() bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func() bool

// IsReady implements Checker.
func (f CheckerFunc) IsReady() bool { return f() }

// Report is the body returned by GET /health.
type Report struct {
	Status    string          `json:"status"`
	Checks    map[string]bool `json:"checks"`
	Uptime    string          `json:"uptime"`
	Timestamp time.Time       `json:"timestamp"`
}

// Config holds the server settings.
type Config struct {
	Port           int
	HandlerTimeout time.Duration
}

// Server exposes /health and, when a metrics handler is given, /metrics.
type Server struct {
	logger  zerolog.Logger
	server  *http.Server
	checks  map[string]Checker
	started time.Time
	now     func() time.Time
}

// NewServer constructs a Server. metrics may be nil.
func NewServer(cfg Config, checks map[string]Checker, metrics http.Handler, logger zerolog.Logger) *Server {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	s := &Server{
		logger:  logger,
		checks:  checks,
		started: time.Now(),
		now:     time.Now,
	}

	mux := http.NewServeMux()
	var healthHandler http.Handler = http.HandlerFunc(s.handleHealth)
	if cfg.HandlerTimeout > 0 {
		healthHandler = http.TimeoutHandler(healthHandler, cfg.HandlerTimeout, `{"status":"unhealthy"}`)
	}
	mux.Handle("GET /health", healthHandler)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Check evaluates every checker.
func (s *Server) Check() Report {
	report := Report{
		Status:    StatusHealthy,
		Checks:    make(map[string]bool, len(s.checks)),
		Uptime:    s.now().Sub(s.started).Round(time.Second).String(),
		Timestamp: s.now().UTC(),
	}
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ok := s.checks[name] != nil && s.checks[name].IsReady()
		report.Checks[name] = ok
		if !ok {
			report.Status = StatusUnhealthy
		}
	}
	return report
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	report := s.Check()
	code := http.StatusOK
	if report.Status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.Error().Err(err).Msg("health: encode report")
	}
}

// Start listens until Shutdown is called. It returns once the listener is
// bound; serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("health: listen %s: %w", s.server.Addr, err)
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("health: server stopped")
		}
	}()
	s.logger.Info().Str("addr", s.server.Addr).Msg("health: server listening")
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
