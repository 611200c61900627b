// Package query offers read-only views over the registry for dashboards
// and API consumers.
package query

import (
	"context"

	"github.com/inferloop/modelregistry/pkg/models"
)

// Registry is the subset of the model registry the facade reads from
type Registry interface {
	ListVersions(ctx context.Context, name string) ([]*models.ModelRecord, error)
	GetProduction(ctx context.Context, name string) (*models.ModelRecord, bool, error)
	Compare(ctx context.Context, idA, idB string) (map[string]models.MetricComparison, error)
	Names(ctx context.Context) ([]string, error)
}

// Facade answers history, diff and snapshot queries. It keeps no state of
// its own.
type Facade struct {
	registry Registry
}

// NewFacade creates a facade over registry
func NewFacade(registry Registry) *Facade {
	return &Facade{registry: registry}
}

// History returns every version of name in ascending order
func (f *Facade) History(ctx context.Context, name string) ([]*models.ModelRecord, error) {
	return f.registry.ListVersions(ctx, name)
}

// Diff compares two records; Delta is b minus a
func (f *Facade) Diff(ctx context.Context, a, b string) (map[string]models.MetricComparison, error) {
	return f.registry.Compare(ctx, a, b)
}

// ProductionSnapshot maps every known name to its Production record, or to
// nil when the name has none
func (f *Facade) ProductionSnapshot(ctx context.Context) (map[string]*models.ModelRecord, error) {
	names, err := f.registry.Names(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]*models.ModelRecord, len(names))
	for _, name := range names {
		record, ok, err := f.registry.GetProduction(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			snapshot[name] = record
		} else {
			snapshot[name] = nil
		}
	}
	return snapshot, nil
}
