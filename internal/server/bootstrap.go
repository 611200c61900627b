package server

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/internal/artifacts"
	"github.com/inferloop/modelregistry/internal/config"
	"github.com/inferloop/modelregistry/internal/events"
	"github.com/inferloop/modelregistry/internal/observability/health"
	"github.com/inferloop/modelregistry/internal/observability/metrics"
	"github.com/inferloop/modelregistry/internal/registry"
	"github.com/inferloop/modelregistry/internal/registry/store"
	"github.com/inferloop/modelregistry/pkg/interfaces"
)

// Components is a fully wired registry with the backends it owns
type Components struct {
	Registry  *registry.Registry
	Records   interfaces.RecordStore
	Artifacts interfaces.ArtifactStore
	Events    interfaces.EventSink
	Metrics   *metrics.PrometheusMetrics
	Checker   *health.Checker

	logger *logrus.Logger
}

// Bootstrap opens every backend named by cfg and wires a registry over
// them. On failure the backends opened so far are closed.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (_ *Components, err error) {
	if logger == nil {
		logger = logrus.New()
	}

	c := &Components{logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	openCtx := ctx
	if cfg.Registry.StorageTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, cfg.Registry.StorageTimeout)
		defer cancel()
	}

	c.Records, err = store.Open(openCtx, cfg.Records, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}

	c.Artifacts, err = artifacts.NewFactory(logger).Create(cfg.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact store: %w", err)
	}

	c.Events, err = events.New(openCtx, cfg.Events, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event sink: %w", err)
	}

	metricsConfig := cfg.Metrics
	c.Metrics, err = metrics.NewPrometheusMetrics(&metricsConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	c.Registry, err = registry.New(registry.Options{
		Artifacts:         c.Artifacts,
		Records:           c.Records,
		Events:            c.Events,
		Metrics:           c.Metrics,
		Logger:            logger,
		EvaluationTimeout: cfg.Registry.EvaluationTimeout,
	})
	if err != nil {
		return nil, err
	}

	if err := c.Registry.SyncMetrics(openCtx); err != nil {
		logger.WithError(err).Warn("Failed to seed production gauge")
	}

	c.Checker = health.NewChecker(cfg.Registry.StorageTimeout, logger)
	c.registerChecks()

	logger.WithFields(logrus.Fields{
		"records":   cfg.Records.Backend,
		"artifacts": cfg.Artifacts.Backend,
		"events":    cfg.Events.Backend,
	}).Info("Registry backends ready")

	return c, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (c *Components) registerChecks() {
	registry := c.Registry
	c.Checker.Register("records", true, func(ctx context.Context) error {
		_, err := registry.Names(ctx)
		return err
	})

	store := c.Artifacts
	probe := artifacts.RefFor(nil)
	c.Checker.Register("artifacts", true, func(ctx context.Context) error {
		_, err := store.Exists(ctx, probe)
		return err
	})

	if p, ok := c.Events.(pinger); ok {
		c.Checker.Register("events", false, p.Ping)
	}
}

// Close releases the event sink and record store
func (c *Components) Close() error {
	var firstErr error
	if c.Events != nil {
		if err := c.Events.Close(); err != nil {
			c.logger.WithError(err).Error("Failed to close event sink")
			firstErr = err
		}
	}
	if c.Records != nil {
		if err := c.Records.Close(); err != nil {
			c.logger.WithError(err).Error("Failed to close record store")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
