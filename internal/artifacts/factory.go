package artifacts

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/interfaces"
)

// Backend names
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendS3     = "s3"
)

// Config selects and configures an artifact backend
type Config struct {
	Backend string      `mapstructure:"backend"`
	Local   LocalConfig `mapstructure:"local"`
	S3      S3Config    `mapstructure:"s3"`
	Cache   CacheConfig `mapstructure:"cache"`
}

// LocalConfig configures the filesystem backend
type LocalConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig configures the read-through cache
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// CreateFunc builds an artifact store from config
type CreateFunc func(config Config) (interfaces.ArtifactStore, error)

// Factory builds artifact stores by backend name
type Factory struct {
	creators map[string]CreateFunc
	mu       sync.RWMutex
	logger   *logrus.Logger
}

// NewFactory creates a factory with the built-in backends registered
func NewFactory(logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}

	factory := &Factory{
		creators: make(map[string]CreateFunc),
		logger:   logger,
	}
	factory.registerDefaults()

	return factory
}

// Create builds the configured backend, wrapped in a cache when enabled
func (f *Factory) Create(config Config) (interfaces.ArtifactStore, error) {
	f.mu.RLock()
	createFunc, exists := f.creators[config.Backend]
	f.mu.RUnlock()

	if !exists {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig,
			fmt.Sprintf("artifact backend '%s' is not supported", config.Backend))
	}

	store, err := createFunc(config)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			fmt.Sprintf("failed to create %s artifact store", config.Backend))
	}

	if config.Cache.Enabled {
		store = NewCachedStore(store, config.Cache.TTL)
	}

	f.logger.WithFields(logrus.Fields{
		"backend": config.Backend,
		"cached":  config.Cache.Enabled,
	}).Info("Created artifact store")

	return store, nil
}

// Register adds or replaces a backend
func (f *Factory) Register(backend string, createFunc CreateFunc) error {
	if backend == "" {
		return errors.NewValidationError(errors.CodeInvalidInput, "artifact backend name cannot be empty")
	}
	if createFunc == nil {
		return errors.NewValidationError(errors.CodeInvalidInput, "artifact backend create function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.creators[backend] = createFunc
	return nil
}

// SupportedBackends returns the registered backend names, sorted
func (f *Factory) SupportedBackends() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	backends := make([]string, 0, len(f.creators))
	for name := range f.creators {
		backends = append(backends, name)
	}
	sort.Strings(backends)
	return backends
}

func (f *Factory) registerDefaults() {
	f.Register(BackendMemory, func(config Config) (interfaces.ArtifactStore, error) {
		return NewMemoryStore(), nil
	})

	f.Register(BackendLocal, func(config Config) (interfaces.ArtifactStore, error) {
		return NewLocalStore(config.Local.Path, f.logger)
	})

	f.Register(BackendS3, func(config Config) (interfaces.ArtifactStore, error) {
		s3Config := config.S3
		if s3Config.Region == "" {
			s3Config.Region = "us-east-1"
		}
		if s3Config.MaxRetries == 0 {
			s3Config.MaxRetries = 3
		}
		return NewS3Store(&s3Config, f.logger)
	})
}
