// Package web provides the HTTP API for submitting spreadsheet imports and
// polling their status.
package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/listing-import/internal/config"
	"github.com/JonMunkholm/listing-import/internal/core"
	"github.com/JonMunkholm/listing-import/internal/jobs"
	"github.com/JonMunkholm/listing-import/internal/logging"
	"github.com/JonMunkholm/listing-import/internal/web/middleware"
)

// Importer runs and dry-runs imports. *core.Coordinator implements it.
type Importer interface {
	Import(ctx context.Context, req core.ImportRequest) (*core.ImportResult, error)
	Validate(ctx context.Context, req core.ImportRequest) core.ValidationReport
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the import API.
type Server struct {
	cfg      *config.Config
	importer Importer
	jobs     jobs.Store
	limiter  *core.ImportLimiter
	db       Pinger
	validate *validator.Validate

	router *chi.Mux
	server *http.Server

	// baseCtx outlives requests; imports run under it after the 202.
	baseCtx  context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// NewServer creates a new Server instance. db may be nil.
func NewServer(cfg *config.Config, importer Importer, store jobs.Store, limiter *core.ImportLimiter, db Pinger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		importer: importer,
		jobs:     store,
		limiter:  limiter,
		db:       db,
		validate: newValidator(),
		router:   chi.NewRouter(),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	}

	// Security hardening
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))

		r.Get("/sheets", s.handleListSheets)

		r.Route("/imports", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if s.cfg.Rate.Enabled {
					r.Use(newRateLimiter(s.cfg.Rate.ImportLimit, time.Minute).middleware)
				}
				r.Post("/", s.handleSubmitImport)
				r.Post("/validate", s.handleValidateImport)
			})
			r.Get("/{importID}", s.handleGetImport)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	logging.FromContext(s.baseCtx).Info("starting server", "addr", addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then waits for running imports until
// ctx ends. Imports still running at that point are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.cancel()
		<-done
	}
	s.cancel()
	return err
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// JSON only; nothing to load
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}
