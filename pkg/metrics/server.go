package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/httpfileserv/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the Prometheus registry over HTTP.
//
// Endpoints:
//   - GET /metrics: Prometheus metrics in text format
//   - GET /: index page linking to /metrics
//
// It runs beside the file server and never touches the served root.
//
// Thread safety:
// Port and Addr may be called from any goroutine while Start runs. Stop is
// idempotent and may race with context cancellation in Start.
type Server struct {
	// server is the net/http server carrying the mux.
	server *http.Server

	// port is the configured port until Start binds, then the bound port.
	port int

	// mu guards port and listener.
	mu sync.Mutex

	// listener is set by Start.
	listener net.Listener

	// shutdownOnce makes Stop idempotent.
	shutdownOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Port to listen on. 0 picks a free port.
	// Default: 9090 (applied by the config package)
	Port int
}

// NewServer creates a metrics server in the stopped state.
//
// The /metrics handler is bound to the registry present at construction.
// When InitRegistry has not been called, /metrics answers 503 so a scraper
// sees a clear failure instead of an empty page.
func NewServer(config ServerConfig) *Server {
	mux := http.NewServeMux()

	if registry := GetRegistry(); registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
		logger.Debug("Metrics endpoint registered at /metrics")
	} else {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "Metrics collection is disabled\n")
		})
		logger.Debug("Metrics collection disabled")
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>httpfileserv metrics</title></head>
<body>
    <h1>httpfileserv metrics</h1>
    <p><a href="/metrics">/metrics</a> exposes Prometheus metrics in text format.</p>
</body>
</html>`)
	})

	return &Server{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		port: config.Port,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
//
// Returns nil on graceful shutdown, or the error that stopped the server.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("metrics server failed to listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening on port %d", s.Port())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// ctx is already cancelled; shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown error: %w", err)
			logger.Error("Metrics server shutdown error: %v", err)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return shutdownErr
}

// Port returns the port the server listens on (the bound port once started).
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
