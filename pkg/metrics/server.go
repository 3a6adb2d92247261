package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/filebox/internal/logger"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	BindAddress string
	Port        int
}

// Server exposes /metrics and /health over HTTP.
type Server struct {
	config   ServerConfig
	server   *http.Server
	checks   map[string]HealthCheck
	listener net.Listener

	ready        chan struct{}
	shutdownOnce sync.Once
}

// NewServer creates a stopped server. checks are run by /health; any
// failure turns the response into 503.
func NewServer(config ServerConfig, checks map[string]HealthCheck) *Server {
	s := &Server{
		config: config,
		checks: checks,
		ready:  make(chan struct{}),
	}
	s.server = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", s.metricsHandler())
	return r
}

func (s *Server) metricsHandler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics disabled", http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	code := http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// Start listens and serves until ctx is cancelled, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.BindAddress, strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		close(s.ready)
		return fmt.Errorf("metrics server listen on %s: %w", addr, err)
	}
	s.listener = ln
	close(s.ready)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening", "address", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
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
			shutdownErr = fmt.Errorf("metrics server shutdown: %w", err)
			return
		}
		logger.Debug("Metrics server stopped")
	})
	return shutdownErr
}

// Addr blocks until Start has bound and returns the listen address, or ""
// if binding failed.
func (s *Server) Addr() string {
	<-s.ready
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("Metrics request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"remote_addr", r.RemoteAddr,
			logger.KeyDurationMs, float64(time.Since(start).Microseconds())/1000.0,
		)
	})
}
