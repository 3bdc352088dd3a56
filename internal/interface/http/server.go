// Package http serves the worker's operational endpoints: liveness,
// readiness against Postgres and Redis, and a view of the scheduled jobs.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/infrastructure/messaging"
	"github.com/alem-hub/alem-missions/internal/infrastructure/scheduler"
	"github.com/alem-hub/alem-missions/internal/interface/http/handlers"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains ops server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default ops server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8081",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// JobLister is implemented by *scheduler.Scheduler.
type JobLister interface {
	ListJobs() []scheduler.JobInfo
}

// BusMetrics is implemented by *messaging.InMemoryEventBus.
type BusMetrics interface {
	Metrics() *messaging.EventBusMetrics
}

// Dependencies are the components the ops endpoints report on. Jobs and Bus
// are optional.
type Dependencies struct {
	Health *handlers.CompositeHealthChecker
	Jobs   JobLister
	Bus    BusMetrics
	Logger *zap.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the ops HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewServer creates an ops server.
func NewServer(config Config, deps Dependencies) *Server {
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if deps.Health == nil {
		deps.Health = handlers.NewCompositeHealthChecker("")
	}

	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: logger.OrNop(deps.Logger).With(logger.Component("ops_http")),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.recoveryMiddleware(s.router),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /healthz", s.handleLive)
	s.router.HandleFunc("GET /readyz", s.handleReady)
	s.router.HandleFunc("GET /debug/jobs", s.handleJobs)
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("stack", string(debug.Stack())),
					zap.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_server_error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
		s.logger.Warn("readiness check failed", zap.String("message", status.Message))
	}
	writeJSON(w, code, status)
}

// JobView is one entry of the /debug/jobs response.
type JobView struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Enabled   bool       `json:"enabled"`
	RunCount  int64      `json:"run_count"`
	FailCount int64      `json:"fail_count"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// BusView summarizes event bus counters.
type BusView struct {
	Published       int64  `json:"published"`
	HandlerExecs    int64  `json:"handler_execs"`
	HandlerFailures int64  `json:"handler_failures"`
	AvgHandler      string `json:"avg_handler"`
}

// DebugView is the /debug/jobs response body.
type DebugView struct {
	Jobs []JobView `json:"jobs"`
	Bus  *BusView  `json:"bus,omitempty"`
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	view := DebugView{Jobs: []JobView{}}

	if s.deps.Jobs != nil {
		for _, j := range s.deps.Jobs.ListJobs() {
			jv := JobView{
				Name:      j.Name,
				Schedule:  j.Schedule,
				Enabled:   j.Enabled,
				RunCount:  j.RunCount,
				FailCount: j.FailCount,
				LastRun:   optionalTime(j.LastRun),
				NextRun:   optionalTime(j.NextRun),
			}
			if j.LastResult != nil && j.LastResult.Error != nil {
				jv.LastError = j.LastResult.Error.Error()
			}
			view.Jobs = append(view.Jobs, jv)
		}
	}

	if s.deps.Bus != nil && s.deps.Bus.Metrics() != nil {
		snap := s.deps.Bus.Metrics().Snapshot()
		view.Bus = &BusView{
			Published:       snap.TotalPublished,
			HandlerExecs:    snap.TotalHandlerExecs,
			HandlerFailures: snap.HandlerFailures,
			AvgHandler:      snap.AverageHandlerDuration.String(),
		}
	}

	writeJSON(w, http.StatusOK, view)
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// StartAsync starts listening in a goroutine. The channel receives a listen
// error, if any, and is closed when the server stops.
func (s *Server) StartAsync() <-chan error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.logger.Info("starting ops server", zap.String("addr", s.config.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("ops server: %w", err)
		}
	}()
	return errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down ops server")
	return s.httpServer.Shutdown(ctx)
}
