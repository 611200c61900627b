package pipeline

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/modelregistry/internal/artifacts"
	"github.com/inferloop/modelregistry/internal/evaluation"
	"github.com/inferloop/modelregistry/internal/inference"
	"github.com/inferloop/modelregistry/internal/registry"
	"github.com/inferloop/modelregistry/internal/registry/store/memory"
	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/models"
)

type unknownModel struct{}

func (unknownModel) NumFeatures() int                    { return 1 }
func (unknownModel) Predict(x []float64) (float64, error) { return 0, nil }

func newSubmitter(t *testing.T) (*Submitter, *registry.Registry, *artifacts.MemoryStore) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := artifacts.NewMemoryStore()
	reg, err := registry.New(registry.Options{
		Artifacts: store,
		Records:   memory.New(),
		Logger:    logger,
	})
	require.NoError(t, err)
	return NewSubmitter(reg, nil, logger), reg, store
}

func TestSubmitRegistersEncodedModel(t *testing.T) {
	ctx := context.Background()
	submitter, reg, _ := newSubmitter(t)

	training := models.Dataset{
		Features: [][]float64{{1, 0}, {0, 1}, {1, 1}},
		Targets:  []float64{1, 2, 3},
	}
	model := &inference.LinearModel{Weights: []float64{1, 2}}

	record, err := submitter.Submit(ctx, TrainingResult{
		Name:         "sales_predictor",
		ModelType:    models.ModelTypeRegression,
		Model:        model,
		TrainingData: &training,
		Holdout:      training,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, record.Version)
	assert.Equal(t, evaluation.Fingerprint(training), record.TrainingFingerprint)
	assert.InDelta(t, 0, record.Metrics["mse"], 1e-12)

	content, err := reg.Artifact(ctx, record.ID)
	require.NoError(t, err)
	decoded, err := inference.NewJSONCodec().Decode(content)
	require.NoError(t, err)
	assert.Equal(t, model, decoded)
}

func TestSubmitKeepsExplicitFingerprint(t *testing.T) {
	submitter, _, _ := newSubmitter(t)
	training := models.Dataset{Features: [][]float64{{1}}, Targets: []float64{1}}

	record, err := submitter.Submit(context.Background(), TrainingResult{
		Name:                "m",
		ModelType:           models.ModelTypeOther,
		Model:               &inference.ConstantModel{Value: 1, Features: 1},
		TrainingFingerprint: "job-42",
		TrainingData:        &training,
	})
	require.NoError(t, err)
	assert.Equal(t, "job-42", record.TrainingFingerprint)
}

func TestSubmitRejectsUnencodableModel(t *testing.T) {
	submitter, _, store := newSubmitter(t)

	_, err := submitter.Submit(context.Background(), TrainingResult{
		Name:      "m",
		ModelType: models.ModelTypeOther,
		Model:     unknownModel{},
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, 0, store.Len())

	_, err = submitter.Submit(context.Background(), TrainingResult{Name: "m", ModelType: models.ModelTypeOther})
	assert.True(t, errors.IsValidation(err))
}

func TestSubmitPropagatesEvaluationFailure(t *testing.T) {
	submitter, reg, _ := newSubmitter(t)

	_, err := submitter.Submit(context.Background(), TrainingResult{
		Name:      "x",
		ModelType: models.ModelTypeClassification,
		Model:     &inference.LogisticModel{Weights: []float64{1}},
	})
	require.Error(t, err)
	assert.True(t, errors.IsEvaluation(err))

	versions, err := reg.ListVersions(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, versions)
}
