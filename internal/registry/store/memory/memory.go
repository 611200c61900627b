package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/interfaces"
	"github.com/inferloop/modelregistry/pkg/models"
)

// Store keeps records in process memory. Nothing survives a restart.
type Store struct {
	mu       sync.RWMutex
	records  map[string]*models.ModelRecord
	byName   map[string][]string
	counters map[string]int
	closed   bool
}

// New creates an empty in-memory record store
func New() *Store {
	return &Store{
		records:  make(map[string]*models.ModelRecord),
		byName:   make(map[string][]string),
		counters: make(map[string]int),
	}
}

var _ interfaces.RecordStore = (*Store)(nil)

// Update runs fn under the store's write lock and applies its result
func (s *Store) Update(ctx context.Context, name string, fn interfaces.UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapStorageError(err, "update", "memory")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.NewStorageError(errors.CodeStorageError, "record store is closed")
	}

	view := &interfaces.NameView{
		Name:        name,
		LastVersion: s.counters[name],
		Records:     s.listLocked(name),
	}

	upserts, err := fn(view)
	if err != nil {
		return err
	}

	for _, r := range upserts {
		if r.Name != name {
			return errors.NewInternalError(fmt.Sprintf("record %s belongs to %q, not %q", r.ID, r.Name, name))
		}
	}

	last := s.counters[name]
	for _, r := range upserts {
		if _, exists := s.records[r.ID]; !exists {
			s.byName[name] = append(s.byName[name], r.ID)
		}
		s.records[r.ID] = r.Clone()
		if r.Version > last {
			last = r.Version
		}
	}
	s.counters[name] = last

	return nil
}

// Get returns a copy of the record with id
func (s *Store) Get(ctx context.Context, id string) (*models.ModelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, errors.NewNotFoundError(errors.CodeRecordNotFound,
			fmt.Sprintf("model record not found: %s", id))
	}
	return r.Clone(), nil
}

// ListByName returns copies of the records of name ordered by version
func (s *Store) ListByName(ctx context.Context, name string) ([]*models.ModelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listLocked(name), nil
}

// Names returns every name that has a committed record
func (s *Store) Names(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close marks the store closed; later updates fail
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) listLocked(name string) []*models.ModelRecord {
	ids := s.byName[name]
	out := make([]*models.ModelRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.records[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}
