package registry

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/inferloop/modelregistry/internal/artifacts"
	"github.com/inferloop/modelregistry/internal/inference"
	"github.com/inferloop/modelregistry/internal/observability/metrics"
	"github.com/inferloop/modelregistry/internal/registry/store/memory"
	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/interfaces"
	"github.com/inferloop/modelregistry/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (s *recordingSink) Publish(ctx context.Context, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) types() []models.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	registry  *Registry
	artifacts *artifacts.MemoryStore
	records   *memory.Store
	sink      *recordingSink
	metrics   *metrics.PrometheusMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	pm, err := metrics.NewPrometheusMetrics(&metrics.PrometheusConfig{}, logger)
	require.NoError(t, err)

	var (
		clockMu sync.Mutex
		tick    = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	)

	f := &fixture{
		artifacts: artifacts.NewMemoryStore(),
		records:   memory.New(),
		sink:      &recordingSink{},
		metrics:   pm,
	}
	f.registry, err = New(Options{
		Artifacts: f.artifacts,
		Records:   f.records,
		Events:    f.sink,
		Metrics:   pm,
		Logger:    logger,
		Clock: func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			tick = tick.Add(time.Second)
			return tick
		},
	})
	require.NoError(t, err)
	return f
}

func constantArtifact(t *testing.T, value float64) []byte {
	t.Helper()
	content, err := inference.NewJSONCodec().Encode(&inference.ConstantModel{Value: value, Features: 1})
	require.NoError(t, err)
	return content
}

// zeroTargets makes a constant model's rmse equal to its value
func zeroTargets() models.Dataset {
	return models.Dataset{
		Features: [][]float64{{1}, {2}, {3}},
		Targets:  []float64{0, 0, 0},
	}
}

func (f *fixture) register(t *testing.T, name string, value float64) *models.ModelRecord {
	t.Helper()
	record, err := f.registry.Register(context.Background(), RegisterRequest{
		Name:                name,
		ModelType:           models.ModelTypeRegression,
		Artifact:            constantArtifact(t, value),
		TrainingFingerprint: "dataset-2024-03",
		Holdout:             zeroTargets(),
	})
	require.NoError(t, err)
	return record
}

func gaugeValue(t *testing.T, pm *metrics.PrometheusMetrics, name string) float64 {
	t.Helper()
	families, err := pm.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestNewRequiresStores(t *testing.T) {
	_, err := New(Options{Records: memory.New()})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = New(Options{Artifacts: artifacts.NewMemoryStore()})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestRegisterAssignsStagingVersions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.register(t, "churn", 1.5)
	second := f.register(t, "churn", 0.5)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, models.StageStaging, first.Stage)
	assert.Equal(t, models.ModelTypeRegression, first.ModelType)
	assert.Equal(t, "dataset-2024-03", first.TrainingFingerprint)
	assert.InDelta(t, 1.5, first.Metrics["rmse"], 1e-9)
	assert.Len(t, first.Metrics, 4)
	assert.Nil(t, first.PromotedAt)

	exists, err := f.artifacts.Exists(ctx, first.ArtifactRef)
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Equal(t, []models.EventType{models.EventRegistered, models.EventRegistered}, f.sink.types())
}

func TestSalesPredictorScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v1 := f.register(t, "sales_predictor", 10.2)
	v2 := f.register(t, "sales_predictor", 8.5)
	assert.InDelta(t, 10.2, v1.Metrics["rmse"], 1e-9)
	assert.InDelta(t, 8.5, v2.Metrics["rmse"], 1e-9)

	promoted, err := f.registry.Promote(ctx, v1.ID, models.StageProduction)
	require.NoError(t, err)
	assert.Equal(t, models.StageProduction, promoted.Stage)
	require.NotNil(t, promoted.PromotedAt)
	firstPromotion := *promoted.PromotedAt

	promoted, err = f.registry.Promote(ctx, v2.ID, models.StageProduction)
	require.NoError(t, err)
	assert.Equal(t, models.StageProduction, promoted.Stage)

	old, err := f.registry.Get(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageArchived, old.Stage)
	assert.Equal(t, v2.ID, old.SupersededBy)
	require.NotNil(t, old.ArchivedAt)
	require.NotNil(t, old.PromotedAt)
	assert.True(t, firstPromotion.Equal(*old.PromotedAt))

	current, ok, err := f.registry.GetProduction(ctx, "sales_predictor")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v2.ID, current.ID)

	comparison, err := f.registry.Compare(ctx, v1.ID, v2.ID)
	require.NoError(t, err)
	assert.InDelta(t, -1.7, comparison["rmse"].Delta, 1e-9)

	assert.Equal(t, []models.EventType{
		models.EventRegistered,
		models.EventRegistered,
		models.EventPromoted,
		models.EventPromoted,
		models.EventDemoted,
	}, f.sink.types())
	assert.Equal(t, 1.0, gaugeValue(t, f.metrics, "modelreg_production_models"))
}

func TestPromoteUnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.Promote(context.Background(), "does-not-exist", models.StageProduction)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestPromoteTransitions(t *testing.T) {
	tests := []struct {
		name    string
		setup   []models.Stage
		target  models.Stage
		wantErr func(error) bool
	}{
		{name: "staging to production", target: models.StageProduction},
		{name: "staging to archived", target: models.StageArchived},
		{name: "staging to staging", target: models.StageStaging, wantErr: errors.IsInvalidTransition},
		{name: "production to production", setup: []models.Stage{models.StageProduction}, target: models.StageProduction, wantErr: errors.IsInvalidTransition},
		{name: "production to archived", setup: []models.Stage{models.StageProduction}, target: models.StageArchived},
		{name: "production to staging", setup: []models.Stage{models.StageProduction}, target: models.StageStaging, wantErr: errors.IsInvalidTransition},
		{name: "archived to production", setup: []models.Stage{models.StageArchived}, target: models.StageProduction, wantErr: errors.IsInvalidTransition},
		{name: "archived to staging", setup: []models.Stage{models.StageArchived}, target: models.StageStaging, wantErr: errors.IsInvalidTransition},
		{name: "archived to archived", setup: []models.Stage{models.StageArchived}, target: models.StageArchived, wantErr: errors.IsInvalidTransition},
		{name: "unknown stage", target: models.Stage("canary"), wantErr: errors.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			record := f.register(t, "churn", 1)

			for _, stage := range tt.setup {
				_, err := f.registry.Promote(ctx, record.ID, stage)
				require.NoError(t, err)
			}
			before, err := f.registry.Get(ctx, record.ID)
			require.NoError(t, err)

			got, err := f.registry.Promote(ctx, record.ID, tt.target)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error: %v", err)

				after, err := f.registry.Get(ctx, record.ID)
				require.NoError(t, err)
				assert.Equal(t, before.Stage, after.Stage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.target, got.Stage)
		})
	}
}

func TestArchiveProductionClearsGauge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.register(t, "churn", 1)

	_, err := f.registry.Promote(ctx, record.ID, models.StageProduction)
	require.NoError(t, err)
	assert.Equal(t, 1.0, gaugeValue(t, f.metrics, "modelreg_production_models"))

	archived, err := f.registry.Archive(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageArchived, archived.Stage)
	assert.Empty(t, archived.SupersededBy)
	assert.Equal(t, 0.0, gaugeValue(t, f.metrics, "modelreg_production_models"))

	_, ok, err := f.registry.GetProduction(ctx, "churn")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegisterClassificationEmptyHoldout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.Register(ctx, RegisterRequest{
		Name:                "x",
		ModelType:           models.ModelTypeClassification,
		Artifact:            constantArtifact(t, 1),
		TrainingFingerprint: "fp",
		Holdout:             models.Dataset{},
	})
	require.Error(t, err)
	assert.True(t, errors.IsEvaluation(err))

	versions, err := f.registry.ListVersions(ctx, "x")
	require.NoError(t, err)
	assert.Empty(t, versions)

	// the next successful registration still gets version 1
	record, err := f.registry.Register(ctx, RegisterRequest{
		Name:      "x",
		ModelType: models.ModelTypeClassification,
		Artifact:  constantArtifact(t, 1),
		Holdout: models.Dataset{
			Features: [][]float64{{0}, {1}},
			Targets:  []float64{1, 0},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, record.Version)
	assert.InDelta(t, 0.5, record.Metrics["accuracy"], 1e-9)
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     func(t *testing.T) RegisterRequest
		wantErr func(error) bool
	}{
		{
			name: "empty name",
			req: func(t *testing.T) RegisterRequest {
				return RegisterRequest{Name: "  ", ModelType: models.ModelTypeOther, Artifact: constantArtifact(t, 1)}
			},
			wantErr: errors.IsValidation,
		},
		{
			name: "name with surrounding whitespace",
			req: func(t *testing.T) RegisterRequest {
				return RegisterRequest{Name: " sales", ModelType: models.ModelTypeOther, Artifact: constantArtifact(t, 1)}
			},
			wantErr: errors.IsValidation,
		},
		{
			name: "metrics overflow",
			req: func(t *testing.T) RegisterRequest {
				return RegisterRequest{
					Name:      "m",
					ModelType: models.ModelTypeRegression,
					Artifact:  constantArtifact(t, 0),
					Holdout:   models.Dataset{Features: [][]float64{{1}}, Targets: []float64{1e200}},
				}
			},
			wantErr: errors.IsEvaluation,
		},
		{
			name: "unsupported type",
			req: func(t *testing.T) RegisterRequest {
				return RegisterRequest{Name: "m", ModelType: "clustering", Artifact: constantArtifact(t, 1)}
			},
			wantErr: errors.IsValidation,
		},
		{
			name: "undecodable artifact",
			req: func(t *testing.T) RegisterRequest {
				return RegisterRequest{Name: "m", ModelType: models.ModelTypeOther, Artifact: []byte("not a model")}
			},
			wantErr: errors.IsValidation,
		},
		{
			name: "feature mismatch",
			req: func(t *testing.T) RegisterRequest {
				return RegisterRequest{
					Name:      "m",
					ModelType: models.ModelTypeRegression,
					Artifact:  constantArtifact(t, 1),
					Holdout:   models.Dataset{Features: [][]float64{{1, 2}}, Targets: []float64{1}},
				}
			},
			wantErr: errors.IsEvaluation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.registry.Register(context.Background(), tt.req(t))
			require.Error(t, err)
			assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
			assert.Equal(t, 0, f.artifacts.Len())

			names, err := f.registry.Names(context.Background())
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

type failingArtifacts struct {
	interfaces.ArtifactStore
	putErr error
}

func (s *failingArtifacts) Put(ctx context.Context, content []byte) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	return s.ArtifactStore.Put(ctx, content)
}

type failingRecords struct {
	interfaces.RecordStore
	updateErr error
}

func (s *failingRecords) Update(ctx context.Context, name string, fn interfaces.UpdateFunc) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	return s.RecordStore.Update(ctx, name, fn)
}

func TestRegisterStorageFailureConsumesNoVersion(t *testing.T) {
	tests := []struct {
		name      string
		putErr    error
		updateErr error
	}{
		{name: "artifact put fails", putErr: fmt.Errorf("disk full")},
		{name: "record update fails", updateErr: fmt.Errorf("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			artifactStore := &failingArtifacts{ArtifactStore: artifacts.NewMemoryStore(), putErr: tt.putErr}
			recordStore := &failingRecords{RecordStore: memory.New(), updateErr: tt.updateErr}

			reg, err := New(Options{Artifacts: artifactStore, Records: recordStore})
			require.NoError(t, err)

			req := RegisterRequest{
				Name:      "sales_predictor",
				ModelType: models.ModelTypeRegression,
				Artifact:  constantArtifact(t, 1),
				Holdout:   zeroTargets(),
			}

			_, err = reg.Register(ctx, req)
			require.Error(t, err)
			assert.True(t, errors.IsStorage(err), "unexpected error: %v", err)

			versions, err := reg.ListVersions(ctx, req.Name)
			require.NoError(t, err)
			assert.Empty(t, versions)

			names, err := reg.Names(ctx)
			require.NoError(t, err)
			assert.Empty(t, names)

			artifactStore.putErr = nil
			recordStore.updateErr = nil

			record, err := reg.Register(ctx, req)
			require.NoError(t, err)
			assert.Equal(t, 1, record.Version)
		})
	}
}

func TestRegisterOtherTypeAllowsEmptyMetrics(t *testing.T) {
	f := newFixture(t)

	record, err := f.registry.Register(context.Background(), RegisterRequest{
		Name:      "embedding",
		ModelType: models.ModelTypeOther,
		Artifact:  constantArtifact(t, 0),
	})
	require.NoError(t, err)
	assert.Empty(t, record.Metrics)
	assert.NotNil(t, record.Metrics)
}

type emptyEvaluator struct{}

func (emptyEvaluator) Evaluate(ctx context.Context, modelType models.ModelType, model interfaces.FittedModel, holdout models.Dataset) (map[string]float64, error) {
	return map[string]float64{}, nil
}

func TestRegisterRejectsEmptyMetrics(t *testing.T) {
	registry, err := New(Options{
		Artifacts: artifacts.NewMemoryStore(),
		Records:   memory.New(),
		Evaluator: emptyEvaluator{},
	})
	require.NoError(t, err)

	_, err = registry.Register(context.Background(), RegisterRequest{
		Name:      "m",
		ModelType: models.ModelTypeRegression,
		Artifact:  constantArtifact(t, 1),
		Holdout:   zeroTargets(),
	})
	require.Error(t, err)
	assert.True(t, errors.IsEvaluation(err))
}

type slowEvaluator struct{}

func (slowEvaluator) Evaluate(ctx context.Context, modelType models.ModelType, model interfaces.FittedModel, holdout models.Dataset) (map[string]float64, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRegisterEvaluationTimeout(t *testing.T) {
	registry, err := New(Options{
		Artifacts:         artifacts.NewMemoryStore(),
		Records:           memory.New(),
		Evaluator:         slowEvaluator{},
		EvaluationTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = registry.Register(context.Background(), RegisterRequest{
		Name:      "m",
		ModelType: models.ModelTypeRegression,
		Artifact:  constantArtifact(t, 1),
		Holdout:   zeroTargets(),
	})
	require.Error(t, err)
	assert.True(t, errors.IsEvaluation(err))
	assert.Contains(t, err.Error(), errors.CodeEvaluationTimeout)
}

func TestCompare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.register(t, "churn", 4)
	b := f.register(t, "churn", 1)

	ab, err := f.registry.Compare(ctx, a.ID, b.ID)
	require.NoError(t, err)
	ba, err := f.registry.Compare(ctx, b.ID, a.ID)
	require.NoError(t, err)

	require.Len(t, ab, 4)
	for metric, cmp := range ab {
		assert.Equal(t, cmp.B-cmp.A, cmp.Delta)
		assert.Equal(t, -cmp.Delta, ba[metric].Delta, metric)
		assert.Equal(t, cmp.A, ba[metric].B)
	}
	assert.InDelta(t, -3.0, ab["rmse"].Delta, 1e-9)

	self, err := f.registry.Compare(ctx, a.ID, a.ID)
	require.NoError(t, err)
	for _, cmp := range self {
		assert.Zero(t, cmp.Delta)
	}
}

func TestCompareIncomparable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg := f.register(t, "churn", 1)
	other, err := f.registry.Register(ctx, RegisterRequest{
		Name:      "embedding",
		ModelType: models.ModelTypeOther,
		Artifact:  constantArtifact(t, 2),
	})
	require.NoError(t, err)

	_, err = f.registry.Compare(ctx, reg.ID, other.ID)
	require.Error(t, err)
	assert.True(t, errors.IsIncomparable(err))

	_, err = f.registry.Compare(ctx, reg.ID, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsIncomparable(err))
	assert.True(t, errors.IsNotFound(err))
}

func TestRecomputeMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record := f.register(t, "churn", 2)
	_, err := f.registry.Promote(ctx, record.ID, models.StageProduction)
	require.NoError(t, err)

	updated, err := f.registry.RecomputeMetrics(ctx, record.ID, models.Dataset{
		Features: [][]float64{{1}, {1}},
		Targets:  []float64{2, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageProduction, updated.Stage)
	assert.Zero(t, updated.Metrics["rmse"])
	require.NotNil(t, updated.MetricsUpdatedAt)

	stored, err := f.registry.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Metrics["mse"])

	_, err = f.registry.RecomputeMetrics(ctx, record.ID, models.Dataset{})
	require.Error(t, err)
	assert.True(t, errors.IsEvaluation(err))

	assert.Contains(t, f.sink.types(), models.EventMetricsRecomputed)
}

func TestArtifactAndPredict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record := f.register(t, "churn", 3)

	content, err := f.registry.Artifact(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, constantArtifact(t, 3), content)

	predictions, err := f.registry.Predict(ctx, record.ID, [][]float64{{1}, {5}})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3}, predictions)

	_, err = f.registry.Predict(ctx, record.ID, [][]float64{{1, 2}})
	require.Error(t, err)
	assert.True(t, errors.IsEvaluation(err))

	_, err = f.registry.Predict(ctx, "missing", nil)
	assert.True(t, errors.IsNotFound(err))
}

func TestListVersionsAndNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.registry.ListVersions(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)

	f.register(t, "b", 1)
	f.register(t, "a", 1)
	f.register(t, "a", 2)

	versions, err := f.registry.ListVersions(ctx, "a")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, 2, versions[1].Version)

	names, err := f.registry.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record := f.register(t, "churn", 1)
	record.Stage = models.StageProduction
	record.Metrics["rmse"] = -1

	stored, err := f.registry.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageStaging, stored.Stage)
	assert.InDelta(t, 1.0, stored.Metrics["rmse"], 1e-9)
}

func TestSinkFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.sink.err = fmt.Errorf("sink unavailable")

	record := f.register(t, "churn", 1)
	_, err := f.registry.Promote(context.Background(), record.ID, models.StageProduction)
	require.NoError(t, err)
}

func TestConcurrentRegistrationAssignsDistinctVersions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 25
	var wg sync.WaitGroup
	versions := make(chan int, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			record, err := f.registry.Register(ctx, RegisterRequest{
				Name:      "contended",
				ModelType: models.ModelTypeRegression,
				Artifact:  constantArtifact(t, float64(i)),
				Holdout:   zeroTargets(),
			})
			if assert.NoError(t, err) {
				versions <- record.Version
			}
		}(i)
	}
	wg.Wait()
	close(versions)

	seen := make(map[int]bool)
	for v := range versions {
		assert.False(t, seen[v], "version %d assigned twice", v)
		seen[v] = true
	}
	for v := 1; v <= workers; v++ {
		assert.True(t, seen[v], "version %d missing", v)
	}
}

func TestConcurrentPromotionKeepsSingleProduction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const candidates = 12
	ids := make([]string, 0, candidates)
	for i := 0; i < candidates; i++ {
		ids = append(ids, f.register(t, "contended", float64(i)).ID)
	}

	stop := make(chan struct{})
	observerDone := make(chan struct{})
	go func() {
		defer close(observerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			records, err := f.registry.ListVersions(ctx, "contended")
			if !assert.NoError(t, err) {
				return
			}
			production := 0
			for _, r := range records {
				if r.Stage == models.StageProduction {
					production++
				}
			}
			assert.LessOrEqual(t, production, 1)
		}
	}()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.registry.Promote(ctx, id, models.StageProduction)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()
	close(stop)
	<-observerDone

	records, err := f.registry.ListVersions(ctx, "contended")
	require.NoError(t, err)

	production, archived := 0, 0
	for _, r := range records {
		switch r.Stage {
		case models.StageProduction:
			production++
		case models.StageArchived:
			archived++
			assert.NotEmpty(t, r.SupersededBy)
		}
	}
	assert.Equal(t, 1, production)
	assert.Equal(t, candidates-1, archived)
	assert.Equal(t, 1.0, gaugeValue(t, f.metrics, "modelreg_production_models"))
}

func TestDifferentNamesProceedIndependently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("model-%d", i)
			for j := 0; j < 4; j++ {
				_, err := f.registry.Register(ctx, RegisterRequest{
					Name:      name,
					ModelType: models.ModelTypeOther,
					Artifact:  constantArtifact(t, float64(j)),
				})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		versions, err := f.registry.ListVersions(ctx, fmt.Sprintf("model-%d", i))
		require.NoError(t, err)
		assert.Len(t, versions, 4)
	}
	assert.Equal(t, 0, f.registry.locks.size())
}

func TestSyncMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		record := f.register(t, name, 1)
		if name != "c" {
			_, err := f.registry.Promote(ctx, record.ID, models.StageProduction)
			require.NoError(t, err)
		}
	}

	f.metrics.SetProductionModels(0)
	require.NoError(t, f.registry.SyncMetrics(ctx))
	assert.Equal(t, 2.0, gaugeValue(t, f.metrics, "modelreg_production_models"))
}
