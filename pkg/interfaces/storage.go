package interfaces

import (
	"context"

	"github.com/inferloop/modelregistry/pkg/models"
)

// ArtifactStore defines content-addressed storage of model artifacts.
// There is no delete or overwrite operation.
type ArtifactStore interface {
	// Put stores content and returns its reference. Identical content
	// always yields the same reference and is stored once.
	Put(ctx context.Context, content []byte) (string, error)

	// Get returns the content for ref, or a not found error
	Get(ctx context.Context, ref string) ([]byte, error)

	// Exists reports whether ref is stored
	Exists(ctx context.Context, ref string) (bool, error)
}

// NameView is a consistent view of every record sharing one name
type NameView struct {
	Name string

	// LastVersion is the persisted version counter for Name
	LastVersion int

	// Records are ordered by version ascending
	Records []*models.ModelRecord
}

// Find returns the record with the given id, or nil
func (v *NameView) Find(id string) *models.ModelRecord {
	for _, r := range v.Records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Production returns the record currently in production, or nil
func (v *NameView) Production() *models.ModelRecord {
	for _, r := range v.Records {
		if r.Stage == models.StageProduction {
			return r
		}
	}
	return nil
}

// UpdateFunc computes the records to insert or replace for one name.
// The version counter advances to the highest version among the returned
// records. Returning an error aborts the update with nothing committed.
type UpdateFunc func(view *NameView) ([]*models.ModelRecord, error)

// RecordStore defines durable storage of model records and their
// per-name version counters.
type RecordStore interface {
	// Update runs fn over a consistent view of name and commits the returned
	// records together with the advanced version counter as one atomic unit.
	// Concurrent updates of the same name are serialized.
	Update(ctx context.Context, name string, fn UpdateFunc) error

	// Get returns a record by id, or a not found error
	Get(ctx context.Context, id string) (*models.ModelRecord, error)

	// ListByName returns the records of name ordered by version
	ListByName(ctx context.Context, name string) ([]*models.ModelRecord, error)

	// Names returns every known model name in lexical order
	Names(ctx context.Context) ([]string, error)

	// Close releases backend resources
	Close() error
}
