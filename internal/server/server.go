// Package server exposes the cache, downloader and validator over an
// authenticated HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ned1313/pdf-mirror/internal/auth"
	"github.com/ned1313/pdf-mirror/internal/cache"
	"github.com/ned1313/pdf-mirror/internal/config"
	"github.com/ned1313/pdf-mirror/internal/database"
	"github.com/ned1313/pdf-mirror/internal/downloader"
	"github.com/ned1313/pdf-mirror/internal/metrics"
	"github.com/ned1313/pdf-mirror/internal/pdf"
)

// Server represents the HTTP server
type Server struct {
	config     *config.Config
	cache      *cache.Manager
	downloader *downloader.Downloader
	validator  *pdf.Validator
	db         *database.DB
	metrics    *metrics.Metrics
	logger     *slog.Logger
	router     *chi.Mux
	server     *http.Server

	// Services
	authService *auth.Service

	// Repositories, nil when the database is disabled
	historyRepo *database.HistoryRepository
	auditRepo   *database.AuditRepository
}

// Options carries the collaborators served by a Server
type Options struct {
	Cache      *cache.Manager
	Downloader *downloader.Downloader
	Validator  *pdf.Validator
	Auth       *auth.Service

	// DB enables the history, audit and backup endpoints
	DB *database.DB

	// Metrics enables the metrics endpoint and request instrumentation
	Metrics *metrics.Metrics

	Logger *slog.Logger
}

// New creates a new HTTP server instance
func New(cfg *config.Config, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		config:      cfg,
		cache:       opts.Cache,
		downloader:  opts.Downloader,
		validator:   opts.Validator,
		db:          opts.DB,
		metrics:     opts.Metrics,
		logger:      opts.Logger.With("component", "server"),
		authService: opts.Auth,
	}

	if opts.DB != nil {
		s.historyRepo = database.NewHistoryRepository(opts.DB)
		s.auditRepo = database.NewAuditRepository(opts.DB)
	}

	s.setupRouter()
	return s
}

// setupRouter initializes the Chi router with all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	if s.config.Server.BehindProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(metricsMiddleware(s.metrics))
	}

	// Health check endpoint (no auth required)
	r.Get("/health", s.handleHealth)

	if s.metrics != nil && s.config.Telemetry.Enabled {
		r.Method(http.MethodGet, s.config.Telemetry.MetricsPath, s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Authentication endpoints (no auth required)
		r.Post("/login", s.handleLogin)

		// Protected routes (authentication required)
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/logout", s.handleLogout)

			// Cache management
			r.Get("/cache/stats", s.handleCacheStats)
			r.Post("/cache/sweep", s.handleCacheSweep)
			r.Get("/cache/entries", s.handleListCacheEntries)
			r.Get("/cache/{key}", s.handleGetCacheEntry)
			r.Get("/cache/{key}/content", s.handleGetCacheContent)
			r.Get("/cache/{key}/integrity", s.handleCacheIntegrity)
			r.Delete("/cache/{key}", s.handleDeleteCacheEntry)

			// Downloads and validation
			r.Post("/downloads", s.handleDownloads)
			r.Post("/validate", s.handleValidate)

			// History, audit and backup
			r.Group(func(r chi.Router) {
				r.Use(s.requireDatabase)
				r.Get("/history", s.handleListHistory)
				r.Get("/history/summary", s.handleHistorySummary)
				r.Get("/history/{requestID}", s.handleGetHistory)
				r.Get("/audit", s.handleAuditLogs)
				r.Post("/backup", s.handleTriggerBackup)
			})
		})
	})

	s.router = r
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Server.Port)

	// No WriteTimeout: a download request lasts as long as its retries
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("starting server", "addr", addr, "tls", s.config.Server.TLSEnabled)

	var err error
	if s.config.Server.TLSEnabled {
		err = s.server.ListenAndServeTLS(
			s.config.Server.TLSCertPath,
			s.config.Server.TLSKeyPath,
		)
	} else {
		err = s.server.ListenAndServe()
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server and flushes the cache
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if s.server != nil {
		s.logger.Info("shutting down server")
		if err := s.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down HTTP server: %w", err))
		}
	}

	if s.cache != nil {
		if err := s.cache.Shutdown(s.config.Cache.CleanupOnShutdown); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down cache: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Router returns the underlying Chi router (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
