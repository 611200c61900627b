// Package registry implements the model version lifecycle: registration,
// promotion through Staging, Production and Archived, and comparison of
// per-version metrics.
package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/internal/evaluation"
	"github.com/inferloop/modelregistry/internal/inference"
	"github.com/inferloop/modelregistry/internal/observability/metrics"
	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/interfaces"
	"github.com/inferloop/modelregistry/pkg/models"
)

// Options wires a Registry to its collaborators
type Options struct {
	Artifacts interfaces.ArtifactStore
	Records   interfaces.RecordStore

	// Evaluator defaults to evaluation.Evaluator
	Evaluator interfaces.MetricsEvaluator

	// Codec defaults to the JSON codec of the inference package
	Codec interfaces.Codec

	// Events and Metrics are optional
	Events  interfaces.EventSink
	Metrics *metrics.PrometheusMetrics

	Logger *logrus.Logger

	// EvaluationTimeout bounds each evaluation; zero means no bound
	EvaluationTimeout time.Duration

	// Clock defaults to time.Now in UTC
	Clock func() time.Time
}

// Registry owns the record store and enforces the lifecycle rules.
// Mutations of one name are serialized; different names proceed in parallel.
type Registry struct {
	artifacts         interfaces.ArtifactStore
	records           interfaces.RecordStore
	evaluator         interfaces.MetricsEvaluator
	codec             interfaces.Codec
	events            interfaces.EventSink
	metrics           *metrics.PrometheusMetrics
	logger            *logrus.Logger
	evaluationTimeout time.Duration
	clock             func() time.Time
	locks             *keyedMutex
}

// RegisterRequest carries one trained model to register
type RegisterRequest struct {
	Name                string
	ModelType           models.ModelType
	Artifact            []byte
	TrainingFingerprint string
	Holdout             models.Dataset
}

// New creates a registry
func New(opts Options) (*Registry, error) {
	if opts.Artifacts == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "artifact store is required")
	}
	if opts.Records == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "record store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	evaluator := opts.Evaluator
	if evaluator == nil {
		evaluator = evaluation.NewEvaluator(logger)
	}
	codec := opts.Codec
	if codec == nil {
		codec = inference.NewJSONCodec()
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Registry{
		artifacts:         opts.Artifacts,
		records:           opts.Records,
		evaluator:         evaluator,
		codec:             codec,
		events:            opts.Events,
		metrics:           opts.Metrics,
		logger:            logger,
		evaluationTimeout: opts.EvaluationTimeout,
		clock:             clock,
		locks:             newKeyedMutex(),
	}, nil
}

// Register validates, evaluates and stores a new version of req.Name in
// Staging. A failed registration consumes no version.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (record *models.ModelRecord, err error) {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.RecordRegistration(string(req.ModelType), resultLabel(err), time.Since(start))
		}
	}()

	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.NewValidationError(errors.CodeMissingField, "model name is required")
	}
	if strings.TrimSpace(req.Name) != req.Name {
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("model name %q has leading or trailing whitespace", req.Name))
	}
	if !req.ModelType.Valid() {
		return nil, errors.NewValidationError(errors.CodeUnsupportedType,
			fmt.Sprintf("unsupported model type %q", req.ModelType))
	}

	model, err := r.decode(req.Artifact)
	if err != nil {
		return nil, err
	}

	scores, err := r.evaluate(ctx, req.ModelType, model, req.Holdout)
	if err != nil {
		return nil, err
	}

	ref, err := r.artifacts.Put(ctx, req.Artifact)
	if err != nil {
		return nil, storageErr(err, "put artifact")
	}

	unlock := r.locks.Lock(req.Name)
	defer unlock()

	err = r.records.Update(ctx, req.Name, func(view *interfaces.NameView) ([]*models.ModelRecord, error) {
		record = &models.ModelRecord{
			ID:                  uuid.New().String(),
			Name:                req.Name,
			Version:             view.LastVersion + 1,
			Stage:               models.StageStaging,
			ModelType:           req.ModelType,
			ArtifactRef:         ref,
			TrainingFingerprint: req.TrainingFingerprint,
			Metrics:             scores,
			CreatedAt:           r.clock(),
		}
		return []*models.ModelRecord{record}, nil
	})
	if err != nil {
		return nil, storageErr(err, "register")
	}

	r.logger.WithFields(logrus.Fields{
		"model_id":   record.ID,
		"name":       record.Name,
		"version":    record.Version,
		"model_type": record.ModelType,
	}).Info("Registered model version")

	r.publish(ctx, eventFor(models.EventRegistered, record, "", models.StageStaging, record.CreatedAt))

	return record.Clone(), nil
}

// Promote moves a record to target. Promoting to Production archives the
// current Production record of the same name in the same commit.
func (r *Registry) Promote(ctx context.Context, id string, target models.Stage) (record *models.ModelRecord, err error) {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.RecordPromotion(string(target), resultLabel(err), time.Since(start))
		}
	}()

	if !target.Valid() {
		return nil, errors.NewValidationError(errors.CodeInvalidStage,
			fmt.Sprintf("invalid target stage %q", target))
	}

	existing, err := r.records.Get(ctx, id)
	if err != nil {
		return nil, storageErr(err, "get record")
	}

	unlock := r.locks.Lock(existing.Name)
	defer unlock()

	var (
		from    models.Stage
		demoted *models.ModelRecord
		now     time.Time
	)

	err = r.records.Update(ctx, existing.Name, func(view *interfaces.NameView) ([]*models.ModelRecord, error) {
		current := view.Find(id)
		if current == nil {
			return nil, notFound(id)
		}
		if !current.Stage.CanTransition(target) {
			return nil, errors.NewInvalidTransitionError(string(current.Stage), string(target)).
				WithContext("model_id", id)
		}

		now = r.clock()
		from = current.Stage
		demoted = nil
		var upserts []*models.ModelRecord

		switch target {
		case models.StageProduction:
			if incumbent := view.Production(); incumbent != nil {
				incumbent.Stage = models.StageArchived
				incumbent.ArchivedAt = &now
				incumbent.SupersededBy = current.ID
				upserts = append(upserts, incumbent)
				demoted = incumbent
			}
			current.Stage = models.StageProduction
			current.PromotedAt = &now
		case models.StageArchived:
			current.Stage = models.StageArchived
			current.ArchivedAt = &now
		}

		record = current
		return append(upserts, current), nil
	})
	if err != nil {
		return nil, storageErr(err, "promote")
	}

	fields := logrus.Fields{
		"model_id":   record.ID,
		"name":       record.Name,
		"version":    record.Version,
		"from_stage": from,
		"stage":      record.Stage,
	}
	if demoted != nil {
		fields["demoted_id"] = demoted.ID
		fields["demoted_version"] = demoted.Version
	}
	r.logger.WithFields(fields).Info("Changed model stage")

	r.trackProduction(from, target, demoted != nil)

	eventType := models.EventPromoted
	if target == models.StageArchived {
		eventType = models.EventArchived
	}
	events := []models.Event{eventFor(eventType, record, from, target, now)}
	if demoted != nil {
		ev := eventFor(models.EventDemoted, demoted, models.StageProduction, models.StageArchived, now)
		ev.SupersededBy = record.ID
		events = append(events, ev)
	}
	r.publish(ctx, events...)

	return record.Clone(), nil
}

// Archive retires a record
func (r *Registry) Archive(ctx context.Context, id string) (*models.ModelRecord, error) {
	return r.Promote(ctx, id, models.StageArchived)
}

// Get returns a copy of the record with id
func (r *Registry) Get(ctx context.Context, id string) (*models.ModelRecord, error) {
	defer r.observe("get", time.Now())

	record, err := r.records.Get(ctx, id)
	if err != nil {
		return nil, storageErr(err, "get record")
	}
	return record, nil
}

// GetProduction returns the Production record of name. ok is false when
// the name has no Production version.
func (r *Registry) GetProduction(ctx context.Context, name string) (record *models.ModelRecord, ok bool, err error) {
	defer r.observe("get_production", time.Now())

	records, err := r.records.ListByName(ctx, name)
	if err != nil {
		return nil, false, storageErr(err, "list records")
	}
	for _, rec := range records {
		if rec.Stage == models.StageProduction {
			return rec, true, nil
		}
	}
	return nil, false, nil
}

// ListVersions returns every record of name ordered by version. An unknown
// name yields an empty list.
func (r *Registry) ListVersions(ctx context.Context, name string) ([]*models.ModelRecord, error) {
	defer r.observe("list_versions", time.Now())

	records, err := r.records.ListByName(ctx, name)
	if err != nil {
		return nil, storageErr(err, "list records")
	}
	return records, nil
}

// Names returns every registered model name
func (r *Registry) Names(ctx context.Context) ([]string, error) {
	names, err := r.records.Names(ctx)
	if err != nil {
		return nil, storageErr(err, "list names")
	}
	return names, nil
}

// Compare pairs the metrics present in both records. Delta is B minus A.
// Records of different model types, or an unknown id, are incomparable.
func (r *Registry) Compare(ctx context.Context, idA, idB string) (map[string]models.MetricComparison, error) {
	defer r.observe("compare", time.Now())

	a, err := r.lookupComparable(ctx, idA)
	if err != nil {
		return nil, err
	}
	b, err := r.lookupComparable(ctx, idB)
	if err != nil {
		return nil, err
	}

	if a.ModelType != b.ModelType {
		return nil, errors.NewIncomparableError(errors.CodeModelTypeMismatch,
			fmt.Sprintf("cannot compare %s model %s with %s model %s", a.ModelType, a.ID, b.ModelType, b.ID))
	}

	out := make(map[string]models.MetricComparison, len(a.Metrics))
	for metric, va := range a.Metrics {
		vb, ok := b.Metrics[metric]
		if !ok {
			continue
		}
		out[metric] = models.MetricComparison{A: va, B: vb, Delta: vb - va}
	}
	return out, nil
}

// RecomputeMetrics re-evaluates the stored artifact of id against holdout
// and replaces its metrics. Stage is left unchanged.
func (r *Registry) RecomputeMetrics(ctx context.Context, id string, holdout models.Dataset) (record *models.ModelRecord, err error) {
	defer r.observe("recompute_metrics", time.Now())

	existing, err := r.records.Get(ctx, id)
	if err != nil {
		return nil, storageErr(err, "get record")
	}

	model, err := r.loadModel(ctx, existing)
	if err != nil {
		return nil, err
	}

	scores, err := r.evaluate(ctx, existing.ModelType, model, holdout)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(existing.Name)
	defer unlock()

	var now time.Time
	err = r.records.Update(ctx, existing.Name, func(view *interfaces.NameView) ([]*models.ModelRecord, error) {
		current := view.Find(id)
		if current == nil {
			return nil, notFound(id)
		}
		now = r.clock()
		current.Metrics = scores
		current.MetricsUpdatedAt = &now
		record = current
		return []*models.ModelRecord{current}, nil
	})
	if err != nil {
		return nil, storageErr(err, "recompute metrics")
	}

	r.logger.WithFields(logrus.Fields{
		"model_id": record.ID,
		"name":     record.Name,
		"version":  record.Version,
	}).Info("Recomputed model metrics")

	r.publish(ctx, eventFor(models.EventMetricsRecomputed, record, record.Stage, record.Stage, now))

	return record.Clone(), nil
}

// Artifact returns the stored artifact bytes of id
func (r *Registry) Artifact(ctx context.Context, id string) ([]byte, error) {
	record, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	content, err := r.artifacts.Get(ctx, record.ArtifactRef)
	if err != nil {
		return nil, storageErr(err, "get artifact")
	}
	return content, nil
}

// Predict runs the model of id over rows
func (r *Registry) Predict(ctx context.Context, id string, rows [][]float64) ([]float64, error) {
	defer r.observe("predict", time.Now())

	record, err := r.records.Get(ctx, id)
	if err != nil {
		return nil, storageErr(err, "get record")
	}
	model, err := r.loadModel(ctx, record)
	if err != nil {
		return nil, err
	}
	return evaluation.Predict(ctx, model, rows)
}

// SyncMetrics sets the production gauge from the stored records
func (r *Registry) SyncMetrics(ctx context.Context) error {
	if r.metrics == nil {
		return nil
	}

	names, err := r.Names(ctx)
	if err != nil {
		return err
	}

	count := 0
	for _, name := range names {
		_, ok, err := r.GetProduction(ctx, name)
		if err != nil {
			return err
		}
		if ok {
			count++
		}
	}
	r.metrics.SetProductionModels(float64(count))
	return nil
}

func (r *Registry) lookupComparable(ctx context.Context, id string) (*models.ModelRecord, error) {
	record, err := r.records.Get(ctx, id)
	if err == nil {
		return record, nil
	}
	if errors.IsNotFound(err) {
		return nil, errors.NewIncomparableError(errors.CodeUnknownRecord,
			fmt.Sprintf("unknown model record %s", id)).WithCause(err)
	}
	return nil, storageErr(err, "get record")
}

func (r *Registry) loadModel(ctx context.Context, record *models.ModelRecord) (interfaces.FittedModel, error) {
	content, err := r.artifacts.Get(ctx, record.ArtifactRef)
	if err != nil {
		return nil, storageErr(err, "get artifact")
	}
	return r.decode(content)
}

func (r *Registry) decode(artifact []byte) (interfaces.FittedModel, error) {
	model, err := r.codec.Decode(artifact)
	if err != nil {
		if errors.IsValidation(err) {
			return nil, err
		}
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidArtifact,
			"artifact cannot be decoded")
	}
	return model, nil
}

// evaluate runs the evaluator under the configured timeout and enforces
// non-empty metrics for the types that require them
func (r *Registry) evaluate(ctx context.Context, modelType models.ModelType, model interfaces.FittedModel, holdout models.Dataset) (map[string]float64, error) {
	if r.evaluationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.evaluationTimeout)
		defer cancel()
	}

	scores, err := r.evaluator.Evaluate(ctx, modelType, model, holdout)
	if err != nil {
		if _, ok := errors.AsAppError(err); ok {
			return nil, err
		}
		if ctxErr := errors.FromContext(err, errors.ErrorTypeEvaluation, "evaluation"); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.WrapError(err, errors.ErrorTypeEvaluation, errors.CodeInferenceFailed, "evaluation failed")
	}

	if modelType.RequiresMetrics() && len(scores) == 0 {
		return nil, errors.NewEvaluationError(errors.CodeEmptyMetrics,
			fmt.Sprintf("%s models require metrics", modelType))
	}
	if err := evaluation.CheckFinite(scores); err != nil {
		return nil, err
	}
	if scores == nil {
		scores = map[string]float64{}
	}
	return scores, nil
}

func (r *Registry) trackProduction(from, target models.Stage, replaced bool) {
	if r.metrics == nil {
		return
	}
	switch {
	case target == models.StageProduction && !replaced:
		r.metrics.AddProductionModels(1)
	case target == models.StageArchived && from == models.StageProduction:
		r.metrics.AddProductionModels(-1)
	}
}

// publish delivers events after commit. Sink failures are logged only.
func (r *Registry) publish(ctx context.Context, events ...models.Event) {
	if r.events == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	for _, ev := range events {
		err := r.events.Publish(ctx, ev)
		if r.metrics != nil {
			r.metrics.RecordEvent(sinkName(r.events), resultLabel(err))
		}
		if err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"event":    ev.Type,
				"model_id": ev.RecordID,
			}).Warn("Failed to publish registry event")
		}
	}
}

func sinkName(sink interfaces.EventSink) string {
	if named, ok := sink.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "custom"
}

func (r *Registry) observe(operation string, start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveOperation(operation, time.Since(start))
	}
}

func eventFor(eventType models.EventType, record *models.ModelRecord, from, to models.Stage, at time.Time) models.Event {
	return models.Event{
		Type:         eventType,
		RecordID:     record.ID,
		Name:         record.Name,
		Version:      record.Version,
		ModelType:    record.ModelType,
		FromStage:    from,
		ToStage:      to,
		SupersededBy: record.SupersededBy,
		Metrics:      record.Clone().Metrics,
		OccurredAt:   at,
	}
}

func notFound(id string) error {
	return errors.NewNotFoundError(errors.CodeRecordNotFound,
		fmt.Sprintf("model record not found: %s", id))
}

// storageErr keeps typed errors and classifies the rest as storage failures
func storageErr(err error, operation string) error {
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	return errors.WrapStorageError(err, operation, "registry")
}

func resultLabel(err error) string {
	if err != nil {
		return metrics.ResultFailure
	}
	return metrics.ResultSuccess
}
