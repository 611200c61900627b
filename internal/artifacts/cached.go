package artifacts

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/inferloop/modelregistry/pkg/interfaces"
)

// CachedStore is a read-through cache in front of another artifact store.
// Entries never go stale because references are content digests.
type CachedStore struct {
	inner interfaces.ArtifactStore
	cache *cache.Cache
}

// NewCachedStore wraps inner with a TTL cache
func NewCachedStore(inner interfaces.ArtifactStore, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedStore{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

var _ interfaces.ArtifactStore = (*CachedStore)(nil)

// Put stores through to the inner store and primes the cache
func (c *CachedStore) Put(ctx context.Context, content []byte) (string, error) {
	ref, err := c.inner.Put(ctx, content)
	if err != nil {
		return "", err
	}
	c.cache.SetDefault(ref, append([]byte{}, content...))
	return ref, nil
}

// Get serves from cache, falling back to the inner store
func (c *CachedStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if v, ok := c.cache.Get(ref); ok {
		return append([]byte{}, v.([]byte)...), nil
	}

	content, err := c.inner.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(ref, append([]byte{}, content...))
	return content, nil
}

// Exists answers from cache when possible
func (c *CachedStore) Exists(ctx context.Context, ref string) (bool, error) {
	if _, ok := c.cache.Get(ref); ok {
		return true, nil
	}
	return c.inner.Exists(ctx, ref)
}

// ItemCount returns the number of cached artifacts
func (c *CachedStore) ItemCount() int {
	return c.cache.ItemCount()
}
