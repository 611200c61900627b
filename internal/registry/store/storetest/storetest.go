// Package storetest holds the behavioural checks every RecordStore backend
// must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/interfaces"
	"github.com/inferloop/modelregistry/pkg/models"
)

// Factory returns a fresh, empty store for one subtest
type Factory func(t *testing.T) interfaces.RecordStore

// Run executes the full RecordStore suite against stores built by newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("AppendVersions", func(t *testing.T) { testAppendVersions(t, newStore(t)) })
	t.Run("ReplaceRecord", func(t *testing.T) { testReplaceRecord(t, newStore(t)) })
	t.Run("AbortedUpdateCommitsNothing", func(t *testing.T) { testAbortedUpdate(t, newStore(t)) })
	t.Run("GetUnknown", func(t *testing.T) { testGetUnknown(t, newStore(t)) })
	t.Run("RoundTripFields", func(t *testing.T) { testRoundTripFields(t, newStore(t)) })
	t.Run("ReturnsCopies", func(t *testing.T) { testReturnsCopies(t, newStore(t)) })
	t.Run("Names", func(t *testing.T) { testNames(t, newStore(t)) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrentAppends(t, newStore(t)) })
}

// NewRecord builds a staging record for name at version
func NewRecord(name string, version int) *models.ModelRecord {
	return &models.ModelRecord{
		ID:                  uuid.New().String(),
		Name:                name,
		Version:             version,
		Stage:               models.StageStaging,
		ModelType:           models.ModelTypeRegression,
		ArtifactRef:         fmt.Sprintf("sha256:%064d", version),
		TrainingFingerprint: "fp-" + name,
		Metrics:             map[string]float64{"mse": float64(version)},
		CreatedAt:           time.Unix(1700000000, int64(version)).UTC(),
	}
}

func appendNext(ctx context.Context, store interfaces.RecordStore, name string) (*models.ModelRecord, error) {
	var created *models.ModelRecord
	err := store.Update(ctx, name, func(view *interfaces.NameView) ([]*models.ModelRecord, error) {
		created = NewRecord(name, view.LastVersion+1)
		return []*models.ModelRecord{created}, nil
	})
	return created, err
}

func testAppendVersions(t *testing.T, store interfaces.RecordStore) {
	defer store.Close()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		r, err := appendNext(ctx, store, "churn")
		require.NoError(t, err)
		assert.Equal(t, i, r.Version)
	}

	records, err := store.ListByName(ctx, "churn")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, i+1, r.Version)
	}

	empty, err := store.ListByName(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testReplaceRecord(t *testing.T, store interfaces.RecordStore) {
	defer store.Close()
	ctx := context.Background()

	r, err := appendNext(ctx, store, "churn")
	require.NoError(t, err)

	promotedAt := time.Unix(1700000100, 0).UTC()
	err = store.Update(ctx, "churn", func(view *interfaces.NameView) ([]*models.ModelRecord, error) {
		assert.Equal(t, 1, view.LastVersion)
		current := view.Find(r.ID)
		require.NotNil(t, current)
		current.Stage = models.StageProduction
		current.PromotedAt = &promotedAt
		return []*models.ModelRecord{current}, nil
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageProduction, got.Stage)
	require.NotNil(t, got.PromotedAt)
	assert.True(t, promotedAt.Equal(*got.PromotedAt))

	records, err := store.ListByName(ctx, "churn")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	next, err := appendNext(ctx, store, "churn")
	require.NoError(t, err)
	assert.Equal(t, 2, next.Version)
}

func testAbortedUpdate(t *testing.T, store interfaces.RecordStore) {
	defer store.Close()
	ctx := context.Background()

	_, err := appendNext(ctx, store, "churn")
	require.NoError(t, err)

	abort := errors.NewEvaluationError(errors.CodeEmptyHoldout, "holdout is empty")
	err = store.Update(ctx, "churn", func(view *interfaces.NameView) ([]*models.ModelRecord, error) {
		return nil, abort
	})
	require.Error(t, err)
	assert.True(t, errors.IsEvaluation(err))

	next, err := appendNext(ctx, store, "churn")
	require.NoError(t, err)
	assert.Equal(t, 2, next.Version)
}

func testGetUnknown(t *testing.T, store interfaces.RecordStore) {
	defer store.Close()

	_, err := store.Get(context.Background(), uuid.New().String())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func testRoundTripFields(t *testing.T, store interfaces.RecordStore) {
	defer store.Close()
	ctx := context.Background()

	promoted := time.Unix(1700000200, 500).UTC()
	archived := time.Unix(1700000300, 0).UTC()
	want := NewRecord("fraud", 1)
	want.Stage = models.StageArchived
	want.ModelType = models.ModelTypeClassification
	want.Metrics = map[string]float64{"accuracy": 0.91, "precision": 0.8, "recall": 0.75, "f1": 0.774}
	want.PromotedAt = &promoted
	want.ArchivedAt = &archived
	want.SupersededBy = uuid.New().String()

	err := store.Update(ctx, "fraud", func(view *interfaces.NameView) ([]*models.ModelRecord, error) {
		return []*models.ModelRecord{want}, nil
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Version, got.Version)
	assert.Equal(t, want.Stage, got.Stage)
	assert.Equal(t, want.ModelType, got.ModelType)
	assert.Equal(t, want.ArtifactRef, got.ArtifactRef)
	assert.Equal(t, want.TrainingFingerprint, got.TrainingFingerprint)
	assert.Equal(t, want.Metrics, got.Metrics)
	assert.Equal(t, want.SupersededBy, got.SupersededBy)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	require.NotNil(t, got.PromotedAt)
	assert.True(t, promoted.Equal(*got.PromotedAt))
	require.NotNil(t, got.ArchivedAt)
	assert.True(t, archived.Equal(*got.ArchivedAt))
	assert.Nil(t, got.MetricsUpdatedAt)
}

func testReturnsCopies(t *testing.T, store interfaces.RecordStore) {
	defer store.Close()
	ctx := context.Background()

	r, err := appendNext(ctx, store, "churn")
	require.NoError(t, err)

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	got.Stage = models.StageArchived
	got.Metrics["mse"] = 999

	again, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageStaging, again.Stage)
	assert.Equal(t, 1.0, again.Metrics["mse"])
}

func testNames(t *testing.T, store interfaces.RecordStore) {
	defer store.Close()
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mid", "alpha"} {
		_, err := appendNext(ctx, store, name)
		require.NoError(t, err)
	}

	names, err := store.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func testConcurrentAppends(t *testing.T, store interfaces.RecordStore) {
	defer store.Close()
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := appendNext(ctx, store, "contended"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	records, err := store.ListByName(ctx, "contended")
	require.NoError(t, err)
	require.Len(t, records, workers)
	for i, r := range records {
		assert.Equal(t, i+1, r.Version)
	}
}
