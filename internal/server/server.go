// Package server is the gateway's HTTP surface: routing, request
// validation, error mapping and instrumentation around the core
// components.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sentra-ai/sentra-gateway/internal/config"
	"github.com/sentra-ai/sentra-gateway/internal/engine"
	"github.com/sentra-ai/sentra-gateway/internal/ingest"
	"github.com/sentra-ai/sentra-gateway/internal/lifecycle"
	"github.com/sentra-ai/sentra-gateway/internal/metrics"
	"github.com/sentra-ai/sentra-gateway/internal/telemetry"
)

// Engine dispatches one question to the retrieval engine. Both the
// per-request dispatcher and the worker pool satisfy it.
type Engine interface {
	Dispatch(ctx context.Context, question string) (engine.Result, error)
}

// Server wires the core components behind the REST surface.
type Server struct {
	cfg         *config.Config
	engine      Engine
	manager     *lifecycle.Manager
	coordinator *ingest.Coordinator
	metrics     *metrics.Metrics
	recorder    *telemetry.Recorder
	logger      *slog.Logger
	router      chi.Router
}

// Options carries the component dependencies. Recorder may be nil when
// telemetry is disabled.
type Options struct {
	Config      *config.Config
	Engine      Engine
	Manager     *lifecycle.Manager
	Coordinator *ingest.Coordinator
	Metrics     *metrics.Metrics
	Recorder    *telemetry.Recorder
	Logger      *slog.Logger
}

// New builds a Server and its route table.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:         opts.Config,
		engine:      opts.Engine,
		manager:     opts.Manager,
		coordinator: opts.Coordinator,
		metrics:     opts.Metrics,
		recorder:    opts.Recorder,
		logger:      logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	r.Get("/", s.handleHome)
	r.Handle("/static/*", s.staticHandler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/query", s.instrument("query", s.handleQuery))
		r.Get("/documents", s.instrument("documents", s.handleDocuments))
		r.Post("/ingest", s.instrument("ingest", s.handleIngest))
		r.Get("/health", s.instrument("health", s.handleHealth))
		r.Get("/stats", s.instrument("stats", s.handleStats))
	})

	r.Handle("/metrics", s.metrics.Handler())
	return r
}

// ServeHTTP makes the server usable directly with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe runs the server until the context is cancelled, then
// drains with a short grace period.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// requestLogger logs one line per request with the slog logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(started).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// handlerFunc is a handler that reports its final outcome for metrics.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// instrument wraps a handler so each request yields exactly one counter
// increment and one latency observation reflecting the final outcome.
// Errors are mapped to their HTTP status here, after instrumentation.
func (s *Server) instrument(endpoint string, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = s.metrics.Instrument(endpoint, func() error {
			err := h(w, r)
			if err != nil {
				s.writeError(w, err)
			}
			return err
		})
	}
}
