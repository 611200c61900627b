// Package server wires the configured backends into a registry and serves
// it over HTTP.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/internal/api"
	"github.com/inferloop/modelregistry/internal/api/handlers"
	"github.com/inferloop/modelregistry/internal/config"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	components *Components
	logger     *logrus.Logger
	config     *config.Config
}

// NewServer builds the API router over components
func NewServer(cfg *config.Config, components *Components, build handlers.BuildInfo, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}

	middleware := api.DefaultMiddlewareConfig()
	middleware.JWTSecret = cfg.Server.Auth.JWTSecret
	middleware.EnableRateLimit = cfg.Server.RateLimit.Enabled
	middleware.RateLimitRequests = cfg.Server.RateLimit.RequestsPerSecond
	middleware.RateLimitBurst = cfg.Server.RateLimit.Burst
	middleware.TrustedProxies = cfg.Server.RateLimit.TrustedProxies

	router := api.NewRouter(api.RouterOptions{
		Registry:     components.Registry,
		Checker:      components.Checker,
		Metrics:      components.Metrics,
		Middleware:   middleware,
		Build:        build,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       logger,
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port)),
			Handler:      router.SetupRoutes(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		components: components,
		logger:     logger,
		config:     cfg,
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves the API and, when enabled, the metrics endpoint. It blocks
// until the API server stops.
func (s *Server) Start(ctx context.Context) error {
	if s.config.Metrics.Enabled {
		if err := s.components.Metrics.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.WithField("address", s.httpServer.Addr).Info("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops both servers
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if s.config.Metrics.Enabled {
		if err := s.components.Metrics.Stop(shutdownCtx); err != nil {
			s.logger.WithError(err).Error("Error shutting down metrics server")
		}
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("Error shutting down HTTP server")
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}
