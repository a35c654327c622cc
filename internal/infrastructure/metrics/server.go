package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	checkTimeout      = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Check reports the health of one component; nil means healthy.
type Check func(ctx context.Context) error

// Logger defines the logging interface used by the Server.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Server exposes /metrics, /health, /health/live and /health/ready.
type Server struct {
	addr   string
	reg    *Registry
	logger Logger

	mu     sync.RWMutex
	checks map[string]Check

	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components"`
}

// NewServer creates an HTTP server for reg listening on addr.
func NewServer(addr string, reg *Registry, logger Logger) *Server {
	if logger == nil {
		logger = noopLogger{}
	}
	s := &Server{
		addr:   addr,
		reg:    reg,
		logger: logger,
		checks: make(map[string]Check),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HealthHandler)
	mux.HandleFunc("/health/live", s.LiveHandler)
	mux.HandleFunc("/health/ready", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))

	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// AddCheck registers a named component check used by /health and /health/ready.
func (s *Server) AddCheck(name string, check Check) {
	s.mu.Lock()
	s.checks[name] = check
	s.mu.Unlock()
}

// Start binds the listen address and serves in the background. Binding
// errors are returned so startup can fail on them.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.addr, err)
	}
	s.listener = l
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info("HTTP server starting", "address", l.Addr().String())
		if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}

// runChecks evaluates all checks and returns component statuses.
func (s *Server) runChecks(ctx context.Context) (map[string]string, bool) {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]Check, len(names))
	for i, name := range names {
		checks[i] = s.checks[name]
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	ok := true
	components := make(map[string]string, len(names))
	for i, name := range names {
		if err := checks[i](ctx); err != nil {
			components[name] = "unhealthy"
			ok = false
			continue
		}
		components[name] = "healthy"
	}
	return components, ok
}

// HealthHandler returns the overall health status.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	components, ok := s.runChecks(r.Context())

	status := "healthy"
	code := http.StatusOK
	if !ok {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	})
}

// LiveHandler returns 200 if the process is running.
func (s *Server) LiveHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadyHandler returns 200 once every component check passes.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	components, ok := s.runChecks(r.Context())

	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":     "not_ready",
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"components": components,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
