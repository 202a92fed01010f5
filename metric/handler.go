package metric

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/focusstream/errors"
)

// Server exposes the registry over HTTP for Prometheus scraping,
// alongside any extra diagnostic handlers mounted on the same listener.
type Server struct {
	addr     string
	path     string
	registry *Registry
	extra    map[string]http.Handler

	mu     sync.Mutex
	server *http.Server
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithHandler mounts an additional handler, e.g. a health endpoint
func WithHandler(path string, h http.Handler) ServerOption {
	return func(s *Server) { s.extra[path] = h }
}

// NewServer creates a metrics server. Empty addr defaults to ":9090",
// empty path to "/metrics".
func NewServer(addr, path string, registry *Registry, opts ...ServerOption) *Server {
	if addr == "" {
		addr = ":9090"
	}
	if path == "" {
		path = "/metrics"
	}
	s := &Server{
		addr:     addr,
		path:     path,
		registry: registry,
		extra:    make(map[string]http.Handler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins serving. Non-blocking; listen errors other than a clean
// shutdown are reported through errCh when provided.
func (s *Server) Start(errCh chan<- error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "check server state")
	}
	if s.registry == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Server", "Start", "metrics registry not provided")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{},
	))
	for path, handler := range s.extra {
		mux.Handle(path, handler)
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if errCh != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}
	}()

	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.server = nil
	if err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown metrics server")
	}
	return nil
}
