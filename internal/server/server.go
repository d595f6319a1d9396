package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"

	"github.com/studentid/walletpass/internal/config"
	"github.com/studentid/walletpass/internal/docstore"
	"github.com/studentid/walletpass/internal/logger"
	"github.com/studentid/walletpass/internal/server/handlers"
	"github.com/studentid/walletpass/internal/server/middleware"
	"github.com/studentid/walletpass/internal/storage"
	"github.com/studentid/walletpass/internal/version"
)

// Dependencies are constructed by the caller and owned by the server once passed in.
type Dependencies struct {
	Documents docstore.DocumentStore
	Objects   storage.ObjectStore

	// Issuance serves the pass issuance routes
	Issuance http.Handler
}

type Server struct {
	config  *config.ServerEnvironment
	logger  *slog.Logger
	router  *chi.Mux
	deps    Dependencies
	isReady atomic.Bool
}

func NewServer(cfg *config.ServerEnvironment, logger *slog.Logger, deps Dependencies) (*Server, error) {
	if deps.Documents == nil || deps.Objects == nil || deps.Issuance == nil {
		return nil, errors.New("server requires a document store, an object store and the issuance handler")
	}

	server := &Server{
		config: cfg,
		logger: logger,
		router: chi.NewRouter(),
		deps:   deps,
	}
	server.isReady.Store(true)

	server.setupMiddleware()
	server.registerRoutes()

	return server, nil
}

// Handler returns the root handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(logger.RequestLogger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	if s.config.MetricsEnabled {
		s.router.Use(middleware.Metrics)
	}
	s.router.Use(chimiddleware.Timeout(s.config.RequestTimeout))
	s.router.Use(middleware.SecurityHeaders(s.config.Environment))
	s.router.Use(middleware.RateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst))
	s.router.Use(middleware.RequestSizeLimit(s.config.MaxRequestBytes))
}

func (s *Server) registerRoutes() {
	s.router.Get("/health/live", handlers.HandleHealth)
	s.router.Get("/health/ready", handlers.HandleReadiness(&s.isReady,
		handlers.ReadinessCheck{Name: "document store", Check: s.deps.Documents.Ping},
		handlers.ReadinessCheck{Name: "object storage", Check: s.deps.Objects.Available},
	))
	s.router.Get("/version", handlers.HandleVersion(version.Get()))

	// operational endpoints get an access log line of their own
	s.router.With(s.httpLogger).Get("/drain", handlers.HandleDrain(&s.isReady, s.logger))
	s.router.With(s.httpLogger).Get("/undrain", handlers.HandleUndrain(&s.isReady, s.logger))

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.AllowedOrigins(s.config.AllowedOrigins, s.config.CORSAllowMissingOrigin))

		r.Post("/pass", s.deps.Issuance.ServeHTTP)
		r.Options("/pass", preflight)

		r.Route("/v1", func(r chi.Router) {
			r.Post("/passes", s.deps.Issuance.ServeHTTP)
			r.Options("/passes", preflight)
		})
	})

	if src, ok := s.deps.Objects.(handlers.DownloadSource); ok {
		s.router.Get(storage.DownloadPathPrefix+"*", handlers.HandleDownload(src))
	}
}

// preflight is answered by the AllowedOrigins middleware; the route only has to exist
func preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.logger, next)
}

func (s *Server) Start(ctx context.Context) error {
	serverAddr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("service listening",
			slog.String("environment", s.config.Environment),
			slog.String("address", serverAddr),
			slog.String("object_store", s.deps.Objects.Name()),
		)

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	// stop advertising readiness while in-flight requests complete
	s.isReady.Store(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ServerShutdownTimeout)
	defer shutdownCancel()

	s.logger.Info("shutting down HTTP server")

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Warn("HTTP server shutdown error",
			slog.String("error", err.Error()))
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// Shutdown releases the document store connection.
func (s *Server) Shutdown() {
	if err := s.deps.Documents.Close(); err != nil {
		s.logger.Warn("error closing document store", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("document store connection closed")
}
