// Package config loads service configuration from YAML files and
// MODELREG_* environment variables.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/inferloop/modelregistry/internal/artifacts"
	"github.com/inferloop/modelregistry/internal/events"
	"github.com/inferloop/modelregistry/internal/observability/metrics"
	"github.com/inferloop/modelregistry/internal/registry/store"
	"github.com/inferloop/modelregistry/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g. MODELREG_SERVER_PORT
const EnvPrefix = "MODELREG"

// Config is the complete service configuration
type Config struct {
	Server    ServerConfig             `mapstructure:"server"`
	Log       LogConfig                `mapstructure:"log"`
	Registry  RegistryConfig           `mapstructure:"registry"`
	Records   store.Config             `mapstructure:"records"`
	Artifacts artifacts.Config         `mapstructure:"artifacts"`
	Events    events.Config            `mapstructure:"events"`
	Metrics   metrics.PrometheusConfig `mapstructure:"metrics"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host            string          `mapstructure:"host"`
	Port            int             `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64           `mapstructure:"max_body_bytes"`
	Auth            AuthConfig      `mapstructure:"auth"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// AuthConfig enables bearer authentication of mutating requests when
// JWTSecret is set
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// RateLimitConfig configures the per-client token bucket. Clients are keyed
// by their direct peer address unless that peer is listed in TrustedProxies.
type RateLimitConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second"`
	Burst             int      `mapstructure:"burst"`
	TrustedProxies    []string `mapstructure:"trusted_proxies"`
}

// LogConfig configures logrus
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RegistryConfig bounds registry operations
type RegistryConfig struct {
	EvaluationTimeout time.Duration `mapstructure:"evaluation_timeout"`
	StorageTimeout    time.Duration `mapstructure:"storage_timeout"`
}

// Load reads cfgFile, or $HOME/.modelregistry.yaml when cfgFile is empty,
// applies environment overrides and validates the result. A missing
// default file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".modelregistry")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("invalid default config: %v", err))
	}
	return cfg
}

// Validate rejects unknown backends and missing backend settings
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.RequestsPerSecond <= 0 || c.Server.RateLimit.Burst <= 0) {
		problems = append(problems, "server.rate_limit needs positive requests_per_second and burst")
	}
	for _, proxy := range c.Server.RateLimit.TrustedProxies {
		if _, _, err := net.ParseCIDR(proxy); err != nil && net.ParseIP(proxy) == nil {
			problems = append(problems, fmt.Sprintf("server.rate_limit.trusted_proxies entry %q is not an address or CIDR", proxy))
		}
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Sprintf("log.level %q is invalid", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		problems = append(problems, fmt.Sprintf("log.format %q must be json or text", c.Log.Format))
	}

	switch c.Records.Backend {
	case store.BackendMemory:
	case store.BackendPostgres:
		if c.Records.Postgres.Host == "" || c.Records.Postgres.Database == "" {
			problems = append(problems, "records.postgres.host and records.postgres.database are required")
		}
	case store.BackendSQLite:
		if c.Records.SQLite.Path == "" {
			problems = append(problems, "records.sqlite.path is required")
		}
	case store.BackendRedis:
		if c.Records.Redis.Addr == "" {
			problems = append(problems, "records.redis.addr is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("records.backend %q must be one of %s",
			c.Records.Backend, strings.Join(store.Backends, ", ")))
	}

	switch c.Artifacts.Backend {
	case artifacts.BackendMemory:
	case artifacts.BackendLocal:
		if c.Artifacts.Local.Path == "" {
			problems = append(problems, "artifacts.local.path is required")
		}
	case artifacts.BackendS3:
		if c.Artifacts.S3.Bucket == "" {
			problems = append(problems, "artifacts.s3.bucket is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("artifacts.backend %q must be one of memory, local, s3",
			c.Artifacts.Backend))
	}

	switch c.Events.Backend {
	case events.BackendLog, events.BackendNone:
	case events.BackendRedis:
		if c.Events.Redis.Addr == "" {
			problems = append(problems, "events.redis.addr is required")
		}
	case events.BackendInfluxDB:
		if c.Events.InfluxDB.URL == "" || c.Events.InfluxDB.Bucket == "" {
			problems = append(problems, "events.influxdb.url and events.influxdb.bucket are required")
		}
	default:
		problems = append(problems, fmt.Sprintf("events.backend %q must be one of %s",
			c.Events.Backend, strings.Join(events.Backends, ", ")))
	}

	if c.Registry.EvaluationTimeout < 0 || c.Registry.StorageTimeout < 0 {
		problems = append(problems, "registry timeouts cannot be negative")
	}

	if len(problems) > 0 {
		return errors.NewValidationError(errors.CodeInvalidConfig, "invalid configuration").
			WithDetails(strings.Join(problems, "; "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".modelregistry")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_body_bytes", 64<<20)
	v.SetDefault("server.auth.jwt_secret", "")
	v.SetDefault("server.auth.token_ttl", 24*time.Hour)
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.requests_per_second", 50.0)
	v.SetDefault("server.rate_limit.burst", 100)
	v.SetDefault("server.rate_limit.trusted_proxies", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("registry.evaluation_timeout", 5*time.Minute)
	v.SetDefault("registry.storage_timeout", 30*time.Second)

	v.SetDefault("records.backend", store.BackendSQLite)
	v.SetDefault("records.sqlite.path", filepath.Join(dataDir, "registry.db"))
	v.SetDefault("records.postgres.host", "")
	v.SetDefault("records.postgres.port", 5432)
	v.SetDefault("records.postgres.database", "")
	v.SetDefault("records.postgres.username", "")
	v.SetDefault("records.postgres.password", "")
	v.SetDefault("records.postgres.ssl_mode", "prefer")
	v.SetDefault("records.postgres.connect_timeout", 10*time.Second)
	v.SetDefault("records.postgres.max_connections", 10)
	v.SetDefault("records.postgres.max_idle_conns", 5)
	v.SetDefault("records.postgres.conn_max_lifetime", time.Hour)
	v.SetDefault("records.redis.addr", "")
	v.SetDefault("records.redis.password", "")
	v.SetDefault("records.redis.db", 0)
	v.SetDefault("records.redis.key_prefix", "modelreg")
	v.SetDefault("records.redis.update_retries", 16)

	v.SetDefault("artifacts.backend", artifacts.BackendLocal)
	v.SetDefault("artifacts.local.path", filepath.Join(dataDir, "artifacts"))
	v.SetDefault("artifacts.s3.region", "us-east-1")
	v.SetDefault("artifacts.s3.bucket", "")
	v.SetDefault("artifacts.s3.endpoint", "")
	v.SetDefault("artifacts.s3.access_key_id", "")
	v.SetDefault("artifacts.s3.secret_access_key", "")
	v.SetDefault("artifacts.s3.force_path_style", false)
	v.SetDefault("artifacts.s3.prefix", "modelreg")
	v.SetDefault("artifacts.s3.timeout", 60*time.Second)
	v.SetDefault("artifacts.s3.max_retries", 3)
	v.SetDefault("artifacts.cache.enabled", true)
	v.SetDefault("artifacts.cache.ttl", 10*time.Minute)

	v.SetDefault("events.backend", events.BackendLog)
	v.SetDefault("events.redis.addr", "")
	v.SetDefault("events.redis.password", "")
	v.SetDefault("events.redis.stream", "modelreg:events")
	v.SetDefault("events.redis.max_len", 10000)
	v.SetDefault("events.influxdb.url", "")
	v.SetDefault("events.influxdb.token", "")
	v.SetDefault("events.influxdb.organization", "")
	v.SetDefault("events.influxdb.bucket", "")
	v.SetDefault("events.influxdb.measurement", "model_registry_events")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "modelreg")
}
