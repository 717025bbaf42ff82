package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/config"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
	healthTimeout     = 3 * time.Second
)

// Logger is the logging interface used by the server.
type Logger interface {
	Error(msg string, args ...any)
}

// HealthFunc reports whether the service's dependencies are healthy.
type HealthFunc func(ctx context.Context) error

// Server serves the Prometheus scrape endpoint and a health endpoint.
type Server struct {
	srv *http.Server

	mu     sync.RWMutex
	health HealthFunc
	logger Logger
}

// NewServer builds the metrics HTTP server. A nil gatherer serves the
// default registry.
func NewServer(cfg config.MetricsConfig, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	s := &Server{}

	r := chi.NewRouter()
	r.Use(s.recoveryMiddleware)
	r.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", s.handleHealth)

	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// SetHealthCheck installs the check run by /healthz. Without one the endpoint
// always reports ok.
func (s *Server) SetHealthCheck(fn HealthFunc) {
	s.mu.Lock()
	s.health = fn
	s.mu.Unlock()
}

// SetLogger sets the logger used for recovered handler panics.
func (s *Server) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start listens in a background goroutine. Listen errors other than a
// clean shutdown are reported on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
		close(errCh)
	}()
	return errCh
}

// Close shuts the server down gracefully.
func (s *Server) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	check := s.health
	s.mu.RUnlock()

	status, body := http.StatusOK, map[string]string{"status": "ok"}
	if check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := check(ctx); err != nil {
			status, body = http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // client gone
}

// recoveryMiddleware turns a handler panic into a 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.mu.RLock()
				logger := s.logger
				s.mu.RUnlock()
				if logger != nil {
					logger.Error("panic recovered in HTTP handler",
						"error", err,
						"method", r.Method,
						"path", r.URL.Path,
					)
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
