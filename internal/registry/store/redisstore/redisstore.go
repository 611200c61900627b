// Package redisstore persists model records in Redis.
//
// Layout, with the default prefix:
//
//	modelreg:counter:<name>   last assigned version
//	modelreg:records:<name>   hash of record id -> JSON record
//	modelreg:ids              hash of record id -> name
//	modelreg:names            set of names
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/interfaces"
	"github.com/inferloop/modelregistry/pkg/models"
)

const (
	defaultKeyPrefix     = "modelreg"
	defaultUpdateRetries = 16
)

// Config holds configuration for the Redis record store
type Config struct {
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	PoolSize      int           `mapstructure:"pool_size"`
	MinIdleConns  int           `mapstructure:"min_idle_conns"`
	MaxRetries    int           `mapstructure:"max_retries"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	UpdateRetries int           `mapstructure:"update_retries"`
}

// Store implements RecordStore with optimistic WATCH/MULTI transactions
type Store struct {
	config *Config
	client redis.UniversalClient
	logger *logrus.Logger
}

var _ interfaces.RecordStore = (*Store)(nil)

// Open connects to Redis and verifies the connection
func Open(ctx context.Context, config *Config, logger *logrus.Logger) (*Store, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "Redis config cannot be nil")
	}
	if config.Addr == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "Redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.NewStorageConnectionError("redis", config.Addr, err)
	}

	store := NewWithClient(client, config, logger)
	store.logger.WithFields(logrus.Fields{
		"addr":       config.Addr,
		"db":         config.DB,
		"key_prefix": store.config.KeyPrefix,
	}).Info("Connected to Redis record store")

	return store, nil
}

// NewWithClient wraps an existing client
func NewWithClient(client redis.UniversalClient, config *Config, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.UpdateRetries <= 0 {
		cfg.UpdateRetries = defaultUpdateRetries
	}

	return &Store{
		config: &cfg,
		client: client,
		logger: logger,
	}
}

// Update watches the name's counter key and commits fn's records with
// MULTI/EXEC. A concurrent commit on the same name re-runs fn.
func (s *Store) Update(ctx context.Context, name string, fn interfaces.UpdateFunc) error {
	counterKey := s.counterKey(name)

	txf := func(tx *redis.Tx) error {
		last, err := tx.Get(ctx, counterKey).Int()
		if err != nil && err != redis.Nil {
			return errors.WrapStorageError(err, "update", "redis")
		}

		records, err := s.readRecords(ctx, tx, name)
		if err != nil {
			return err
		}

		upserts, err := fn(&interfaces.NameView{Name: name, LastVersion: last, Records: records})
		if err != nil {
			return err
		}

		newLast := last
		payloads := make(map[string]string, len(upserts))
		for _, r := range upserts {
			if r.Name != name {
				return errors.NewInternalError(fmt.Sprintf("record %s belongs to %q, not %q", r.ID, r.Name, name))
			}
			data, err := json.Marshal(r)
			if err != nil {
				return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "failed to encode record")
			}
			payloads[r.ID] = string(data)
			if r.Version > newLast {
				newLast = r.Version
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for id, data := range payloads {
				pipe.HSet(ctx, s.recordsKey(name), id, data)
				pipe.HSet(ctx, s.idsKey(), id, name)
			}
			if len(payloads) > 0 {
				pipe.SAdd(ctx, s.namesKey(), name)
			}
			// SET always touches the key, so concurrent watchers abort
			pipe.Set(ctx, counterKey, newLast, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.config.UpdateRetries; attempt++ {
		err := s.client.Watch(ctx, txf, counterKey)
		if err == redis.TxFailedErr {
			s.logger.WithFields(logrus.Fields{
				"name":    name,
				"attempt": attempt + 1,
			}).Debug("Redis update conflicted, retrying")
			continue
		}
		if err != nil {
			if _, ok := errors.AsAppError(err); ok {
				return err
			}
			return errors.WrapStorageError(err, "update", "redis")
		}
		return nil
	}

	return errors.NewStorageError(errors.CodeTxConflict,
		fmt.Sprintf("update of %q conflicted %d times", name, s.config.UpdateRetries))
}

// Get returns the record with id
func (s *Store) Get(ctx context.Context, id string) (*models.ModelRecord, error) {
	name, err := s.client.HGet(ctx, s.idsKey(), id).Result()
	if err == redis.Nil {
		return nil, errors.NewNotFoundError(errors.CodeRecordNotFound,
			fmt.Sprintf("model record not found: %s", id))
	}
	if err != nil {
		return nil, errors.WrapStorageError(err, "get", "redis")
	}

	data, err := s.client.HGet(ctx, s.recordsKey(name), id).Result()
	if err == redis.Nil {
		return nil, errors.NewNotFoundError(errors.CodeRecordNotFound,
			fmt.Sprintf("model record not found: %s", id))
	}
	if err != nil {
		return nil, errors.WrapStorageError(err, "get", "redis")
	}
	return decodeRecord(data)
}

// ListByName returns the records of name ordered by version
func (s *Store) ListByName(ctx context.Context, name string) ([]*models.ModelRecord, error) {
	return s.readRecords(ctx, s.client, name)
}

// Names returns every name with a committed record
func (s *Store) Names(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, errors.WrapStorageError(err, "names", "redis")
	}
	sort.Strings(names)
	return names, nil
}

// Close closes the Redis client
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return errors.WrapStorageError(err, "close", "redis")
	}
	return nil
}

func (s *Store) readRecords(ctx context.Context, c redis.Cmdable, name string) ([]*models.ModelRecord, error) {
	raw, err := c.HGetAll(ctx, s.recordsKey(name)).Result()
	if err != nil {
		return nil, errors.WrapStorageError(err, "list", "redis")
	}
	return decodeRecords(raw)
}

func decodeRecords(raw map[string]string) ([]*models.ModelRecord, error) {
	records := make([]*models.ModelRecord, 0, len(raw))
	for _, data := range raw {
		r, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Version < records[j].Version })
	return records, nil
}

func decodeRecord(data string) (*models.ModelRecord, error) {
	var r models.ModelRecord
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "failed to decode record")
	}
	if r.Metrics == nil {
		r.Metrics = map[string]float64{}
	}
	return &r, nil
}

func (s *Store) counterKey(name string) string {
	return fmt.Sprintf("%s:counter:%s", s.config.KeyPrefix, name)
}

func (s *Store) recordsKey(name string) string {
	return fmt.Sprintf("%s:records:%s", s.config.KeyPrefix, name)
}

func (s *Store) idsKey() string {
	return s.config.KeyPrefix + ":ids"
}

func (s *Store) namesKey() string {
	return s.config.KeyPrefix + ":names"
}
