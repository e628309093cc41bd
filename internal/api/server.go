package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-bundler/internal/bundle"
	"github.com/JakeFAU/page-bundler/internal/metrics"
)

// RequestTimeout bounds lookup and probe requests. Pipeline runs, deliveries
// and archive downloads are bounded by their own fetch and webhook timeouts.
const RequestTimeout = 2 * time.Minute

// Runner executes the bundle pipeline.
type Runner interface {
	Run(ctx context.Context, rawURL string, mode bundle.ContentMode) (bundle.Result, error)
}

// ReadinessCheck reports whether a downstream dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Options carries the optional collaborators of a Server.
type Options struct {
	// Deliverer forwards bundles; delivery routes answer 503 when nil.
	Deliverer bundle.Deliverer
	// DefaultMode applies when a request omits mode.
	DefaultMode bundle.ContentMode
	// Checks are evaluated by /readyz, keyed by dependency name.
	Checks map[string]ReadinessCheck
	// RequestTimeout overrides the package default when positive.
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the pipeline and the bundle store.
type Server struct {
	router chi.Router
	runner Runner
	store  bundle.BundleStore
	opts   Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, store bundle.BundleStore, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultMode == "" {
		opts.DefaultMode = bundle.ContentModeClean
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = RequestTimeout
	}
	metrics.Init()

	s := &Server{
		runner: runner,
		store:  store,
		opts:   opts,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	timeout := timeoutMiddleware(opts.RequestTimeout)

	r.Group(func(r chi.Router) {
		r.Use(timeout)
		r.Get("/healthz", s.healthz)
		r.Get("/readyz", s.readyz)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	})

	r.Route("/v1/bundles", func(r chi.Router) {
		r.Post("/", s.createBundle)
		r.Route("/{id}", func(r chi.Router) {
			r.With(timeout).Get("/", s.getBundle)
			r.With(timeout).Delete("/", s.deleteBundle)
			r.Get("/archive", s.downloadArchive)
			r.Post("/deliver", s.deliverBundle)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	failures := map[string]string{}
	for name, check := range s.opts.Checks {
		if err := check(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		s.logger.Warn("readiness check failed", zap.Any("failures", failures))
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failures": failures})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
