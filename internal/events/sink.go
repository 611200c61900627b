// Package events delivers registry audit events to logs, Redis streams or
// InfluxDB.
package events

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/interfaces"
	"github.com/inferloop/modelregistry/pkg/models"
)

// Backend names
const (
	BackendLog      = "log"
	BackendRedis    = "redis"
	BackendInfluxDB = "influxdb"
	BackendNone     = "none"
)

// Backends lists every supported event backend
var Backends = []string{BackendLog, BackendRedis, BackendInfluxDB, BackendNone}

// Config selects and configures the event sink
type Config struct {
	Backend  string       `mapstructure:"backend"`
	Redis    RedisConfig  `mapstructure:"redis"`
	InfluxDB InfluxConfig `mapstructure:"influxdb"`
}

// New builds the configured sink
func New(ctx context.Context, config Config, logger *logrus.Logger) (interfaces.EventSink, error) {
	if logger == nil {
		logger = logrus.New()
	}

	switch config.Backend {
	case BackendLog, "":
		return NewLogSink(logger), nil
	case BackendRedis:
		sink, err := NewRedisStreamSink(ctx, config.Redis, logger)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case BackendInfluxDB:
		sink, err := NewInfluxSink(ctx, config.InfluxDB, logger)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case BackendNone:
		return NopSink{}, nil
	default:
		return nil, errors.NewValidationError(errors.CodeInvalidConfig,
			fmt.Sprintf("event backend '%s' is not supported", config.Backend))
	}
}

// NopSink discards every event
type NopSink struct{}

// Publish does nothing
func (NopSink) Publish(ctx context.Context, event models.Event) error { return nil }

// Close does nothing
func (NopSink) Close() error { return nil }

// Name identifies the sink in metrics
func (NopSink) Name() string { return BackendNone }

// LogSink writes events as structured log entries
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a sink logging through logger
func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogSink{logger: logger}
}

// Publish logs one event at info level
func (s *LogSink) Publish(ctx context.Context, event models.Event) error {
	fields := logrus.Fields{
		"event":      event.Type,
		"model_id":   event.RecordID,
		"name":       event.Name,
		"version":    event.Version,
		"model_type": event.ModelType,
	}
	if event.FromStage != "" {
		fields["from_stage"] = event.FromStage
	}
	if event.ToStage != "" {
		fields["stage"] = event.ToStage
	}
	if event.SupersededBy != "" {
		fields["superseded_by"] = event.SupersededBy
	}

	s.logger.WithFields(fields).WithTime(event.OccurredAt).Info("Registry event")
	return nil
}

// Close does nothing
func (s *LogSink) Close() error { return nil }

// Name identifies the sink in metrics
func (s *LogSink) Name() string { return BackendLog }
