package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/doc-harvester/internal/report"
)

// RunSource supplies the live view of the current run.
type RunSource interface {
	Snapshot() report.Run
}

// Config wires the server's collaborators.
type Config struct {
	Run RunSource
	// Metrics serves /metrics; nil disables the route.
	Metrics http.Handler
	// Middleware wraps every route, typically metrics.Middleware.
	Middleware []func(http.Handler) http.Handler
	// Cancel stops the run; nil disables POST /v1/run/cancel.
	Cancel context.CancelFunc
}

// Server exposes run status over HTTP.
type Server struct {
	router   chi.Router
	run      RunSource
	cancel   context.CancelFunc
	canceled atomic.Bool
	logger   *zap.Logger
	srv      *http.Server
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config, logger *zap.Logger) (*Server, error) {
	if cfg.Run == nil {
		return nil, errors.New("api server requires a run source")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{run: cfg.Run, cancel: cfg.Cancel, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	for _, mw := range cfg.Middleware {
		r.Use(mw)
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	r.Route("/v1/run", func(r chi.Router) {
		r.Get("/", s.getRun)
		r.Get("/failed", s.getFailed)
		r.Post("/cancel", s.cancelRun)
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when addr uses port 0.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("status server listening", zap.String("addr", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Shutdown gracefully stops a started server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.canceled.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "canceling"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getRun(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.run.Snapshot())
}

func (s *Server) getFailed(w http.ResponseWriter, _ *http.Request) {
	failed := s.run.Snapshot().FailedEntries()
	if failed == nil {
		failed = []report.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"failed": failed})
}

func (s *Server) cancelRun(w http.ResponseWriter, _ *http.Request) {
	if s.cancel == nil {
		writeError(w, http.StatusNotImplemented, "cancel not supported")
		return
	}
	if !s.canceled.CompareAndSwap(false, true) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already canceling"})
		return
	}
	s.logger.Warn("run cancel requested via API")
	s.cancel()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "canceling"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
