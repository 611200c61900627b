package query

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/modelregistry/internal/artifacts"
	"github.com/inferloop/modelregistry/internal/inference"
	"github.com/inferloop/modelregistry/internal/registry"
	"github.com/inferloop/modelregistry/internal/registry/store/memory"
	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/models"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reg, err := registry.New(registry.Options{
		Artifacts: artifacts.NewMemoryStore(),
		Records:   memory.New(),
		Logger:    logger,
	})
	require.NoError(t, err)
	return reg
}

func register(t *testing.T, reg *registry.Registry, name string, value float64) *models.ModelRecord {
	t.Helper()
	artifact, err := inference.NewJSONCodec().Encode(&inference.LinearModel{Weights: []float64{0}, Bias: value})
	require.NoError(t, err)

	record, err := reg.Register(context.Background(), registry.RegisterRequest{
		Name:      name,
		ModelType: models.ModelTypeRegression,
		Artifact:  artifact,
		Holdout: models.Dataset{
			Features: [][]float64{{1}, {2}},
			Targets:  []float64{1, 3},
		},
	})
	require.NoError(t, err)
	return record
}

func TestProductionSnapshot(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	facade := NewFacade(reg)

	empty, err := facade.ProductionSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	live := register(t, reg, "sales_predictor", 2)
	register(t, reg, "churn", 1)
	_, err = reg.Promote(ctx, live.ID, models.StageProduction)
	require.NoError(t, err)

	snapshot, err := facade.ProductionSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 2)
	require.NotNil(t, snapshot["sales_predictor"])
	assert.Equal(t, live.ID, snapshot["sales_predictor"].ID)

	churn, ok := snapshot["churn"]
	assert.True(t, ok)
	assert.Nil(t, churn)
}

func TestHistoryAndDiff(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	facade := NewFacade(reg)

	v1 := register(t, reg, "sales_predictor", 2)
	v2 := register(t, reg, "sales_predictor", 1)

	history, err := facade.History(ctx, "sales_predictor")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, v1.ID, history[0].ID)
	assert.Equal(t, v2.ID, history[1].ID)

	diff, err := facade.Diff(ctx, v1.ID, v2.ID)
	require.NoError(t, err)
	assert.Equal(t, diff["mse"].B-diff["mse"].A, diff["mse"].Delta)

	_, err = facade.Diff(ctx, v1.ID, "unknown")
	assert.True(t, errors.IsIncomparable(err))
}
