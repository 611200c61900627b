// Package store opens the configured RecordStore backend.
package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/internal/registry/store/memory"
	"github.com/inferloop/modelregistry/internal/registry/store/redisstore"
	"github.com/inferloop/modelregistry/internal/registry/store/sqlstore"
	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/interfaces"
)

// Backend names
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// Backends lists every supported record backend
var Backends = []string{BackendMemory, BackendPostgres, BackendSQLite, BackendRedis}

// Config selects and configures a record store
type Config struct {
	Backend  string                  `mapstructure:"backend"`
	Postgres sqlstore.PostgresConfig `mapstructure:"postgres"`
	SQLite   sqlstore.SQLiteConfig   `mapstructure:"sqlite"`
	Redis    redisstore.Config       `mapstructure:"redis"`
}

// Open connects to the configured backend
func Open(ctx context.Context, config Config, logger *logrus.Logger) (interfaces.RecordStore, error) {
	if logger == nil {
		logger = logrus.New()
	}

	var (
		s   interfaces.RecordStore
		err error
	)

	switch config.Backend {
	case BackendMemory:
		s = memory.New()
	case BackendPostgres:
		s, err = sqlstore.OpenPostgres(ctx, config.Postgres, logger)
	case BackendSQLite:
		s, err = sqlstore.OpenSQLite(ctx, config.SQLite, logger)
	case BackendRedis:
		redisConfig := config.Redis
		s, err = redisstore.Open(ctx, &redisConfig, logger)
	default:
		return nil, errors.NewValidationError(errors.CodeInvalidConfig,
			fmt.Sprintf("record backend '%s' is not supported", config.Backend))
	}
	if err != nil {
		return nil, err
	}

	logger.WithField("backend", config.Backend).Info("Opened record store")
	return s, nil
}
