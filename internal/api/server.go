// Package api serves a small JSON API over detected subscriptions and alerts.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jask/subsentry/internal/service"
)

// Server is the HTTP API server.
type Server struct {
	addr       string
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger

	insights   *service.InsightsService
	recompute  *service.Recomputer
	statements *service.StatementService
	explain    *service.ExplainService
}

// Services are the backends the API reads from. Only Insights is required;
// a nil service disables its endpoints.
type Services struct {
	Insights   *service.InsightsService
	Recompute  *service.Recomputer
	Statements *service.StatementService
	Explain    *service.ExplainService
}

// NewServer wires the routes.
func NewServer(addr string, svc Services, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:       addr,
		router:     chi.NewRouter(),
		logger:     logger,
		insights:   svc.Insights,
		recompute:  svc.Recompute,
		statements: svc.Statements,
		explain:    svc.Explain,
	}
	s.router.Use(requestLogging(s.logger))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.health)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/subscriptions", s.listSubscriptions)
		r.Get("/alerts", s.listAlerts)
		r.Get("/alerts/{id}", s.getAlert)
		r.Post("/alerts/{id}/dismiss", s.dismissAlert)
		if s.explain != nil {
			r.Get("/alerts/{id}/explain", s.explainAlert)
		}
		if s.recompute != nil {
			r.Post("/recompute", s.runRecompute)
		}
		if s.statements != nil {
			r.Get("/statements", s.listStatements)
		}
	})
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info("starting API server", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		})
	}
}
