package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/models"
)

// RedisConfig configures the Redis stream sink
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// RedisStreamSink appends events to a Redis stream with XADD
type RedisStreamSink struct {
	client redis.UniversalClient
	config RedisConfig
	logger *logrus.Logger
}

// NewRedisStreamSink connects to Redis
func NewRedisStreamSink(ctx context.Context, config RedisConfig, logger *logrus.Logger) (*RedisStreamSink, error) {
	if config.Addr == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "Redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.NewStorageConnectionError("redis", config.Addr, err)
	}

	return NewRedisStreamSinkWithClient(client, config, logger), nil
}

// NewRedisStreamSinkWithClient wraps an existing client
func NewRedisStreamSinkWithClient(client redis.UniversalClient, config RedisConfig, logger *logrus.Logger) *RedisStreamSink {
	if logger == nil {
		logger = logrus.New()
	}
	if config.Stream == "" {
		config.Stream = "modelreg:events"
	}
	return &RedisStreamSink{
		client: client,
		config: config,
		logger: logger,
	}
}

// Publish appends one stream entry
func (s *RedisStreamSink) Publish(ctx context.Context, event models.Event) error {
	values, err := streamValues(event)
	if err != nil {
		return err
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.config.Stream,
		MaxLen: s.config.MaxLen,
		Approx: s.config.MaxLen > 0,
		Values: values,
	}).Result()
	if err != nil {
		return errors.WrapStorageError(err, "publish", "redis")
	}

	s.logger.WithFields(logrus.Fields{
		"stream":   s.config.Stream,
		"entry_id": id,
		"event":    event.Type,
	}).Debug("Published registry event")

	return nil
}

// Close closes the client
func (s *RedisStreamSink) Close() error {
	return s.client.Close()
}

// Name identifies the sink in metrics
func (s *RedisStreamSink) Name() string { return BackendRedis }

// Ping checks that Redis answers
func (s *RedisStreamSink) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.WrapStorageError(err, "ping", "redis")
	}
	return nil
}

func streamValues(event models.Event) (map[string]interface{}, error) {
	metrics, err := json.Marshal(event.Metrics)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "failed to encode event metrics")
	}

	return map[string]interface{}{
		"type":          string(event.Type),
		"record_id":     event.RecordID,
		"name":          event.Name,
		"version":       strconv.Itoa(event.Version),
		"model_type":    string(event.ModelType),
		"from_stage":    string(event.FromStage),
		"to_stage":      string(event.ToStage),
		"superseded_by": event.SupersededBy,
		"metrics":       string(metrics),
		"occurred_at":   event.OccurredAt.UTC().Format(time.RFC3339Nano),
	}, nil
}
