package artifacts

import (
	"context"
	"sync"

	"github.com/inferloop/modelregistry/pkg/interfaces"
)

// MemoryStore keeps artifacts in process memory
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory artifact store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

var _ interfaces.ArtifactStore = (*MemoryStore)(nil)

// Put stores content once per digest
func (m *MemoryStore) Put(ctx context.Context, content []byte) (string, error) {
	ref := RefFor(content)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blobs[ref]; !ok {
		m.blobs[ref] = append([]byte{}, content...)
	}
	return ref, nil
}

// Get returns a copy of the stored content
func (m *MemoryStore) Get(ctx context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.blobs[ref]
	if !ok {
		return nil, notFound(ref)
	}
	return append([]byte{}, blob...), nil
}

// Exists reports whether ref is stored
func (m *MemoryStore) Exists(ctx context.Context, ref string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.blobs[ref]
	return ok, nil
}

// Len returns the number of distinct artifacts
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
