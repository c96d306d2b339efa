// Package web provides the HTTP server and handlers for the measurement
// upload UI and API.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/msmtupload/internal/config"
	"github.com/JonMunkholm/msmtupload/internal/core"
	mw "github.com/JonMunkholm/msmtupload/internal/web/middleware"
)

// Server is the HTTP server for the upload application.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	limiter       *rateLimiter
	importLimiter *rateLimiter
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.limiter = newRateLimiter(cfg.Rate.RequestsPerMinute, time.Minute)
		s.importLimiter = newRateLimiter(cfg.Rate.ImportLimit, time.Minute)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.limiter != nil {
		s.router.Use(s.limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	timeout := middleware.Timeout(s.requestTimeout())

	s.router.Get("/healthz", s.handleHealth)
	s.router.With(timeout).Get("/", s.handleIndex)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		// Streams run for as long as the submission does
		r.Get("/submissions/{submissionID}/progress", s.handleSubmissionProgress)

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			r.Get("/template", s.handleTemplate)

			// Import and submit share the stricter limiter
			r.Group(func(r chi.Router) {
				if s.importLimiter != nil {
					r.Use(s.importLimiter.middleware)
				}
				r.Post("/import", s.handleImportFile)
				r.Post("/import/rows", s.handleImportRows)
				r.Post("/batches/{batchID}/submit", s.handleSubmit)
			})

			r.Get("/batches/{batchID}", s.handleGetBatch)

			r.Get("/submissions/active", s.handleActiveSubmission)
			r.Get("/submissions/{submissionID}/result", s.handleSubmissionResult)
			r.Post("/submissions/{submissionID}/cancel", s.handleCancelSubmission)

			r.Get("/logs", s.handleLogs)
			r.Delete("/logs", s.handleClearLogs)
			r.Get("/logs/export", s.handleExportLogs)
			r.Get("/history", s.handleHistory)

			r.Get("/settings/columns", s.handleGetColumns)
			r.Put("/settings/columns", s.handleSaveColumns)
			r.Delete("/settings/columns", s.handleResetColumns)

			r.Get("/measuring-points/{pointID}", s.handleMeasuringPoint)
			r.Get("/measuring-points/{pointID}/latest-reading", s.handleLatestReading)
		})
	})
}

func (s *Server) requestTimeout() time.Duration {
	if s.cfg.Server.RequestTimeout > 0 {
		return s.cfg.Server.RequestTimeout
	}
	return 60 * time.Second
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps SSE streams open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	if s.importLimiter != nil {
		s.importLimiter.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status": "ok",
		"gate":   s.service.Gate(),
	})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				w.Header().Set("Content-Security-Policy",
					"default-src 'self'; script-src 'self' https://unpkg.com; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, v interface{}) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
