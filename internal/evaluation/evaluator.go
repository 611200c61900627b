package evaluation

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/interfaces"
	"github.com/inferloop/modelregistry/pkg/models"
)

// Metric names
const (
	MetricMSE       = "mse"
	MetricRMSE      = "rmse"
	MetricMAE       = "mae"
	MetricR2        = "r2"
	MetricAccuracy  = "accuracy"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
	MetricF1        = "f1"
)

// MetricNames returns the metric set computed for a model type
func MetricNames(modelType models.ModelType) []string {
	switch modelType {
	case models.ModelTypeRegression:
		return []string{MetricMSE, MetricRMSE, MetricMAE, MetricR2}
	case models.ModelTypeClassification:
		return []string{MetricAccuracy, MetricPrecision, MetricRecall, MetricF1}
	default:
		return nil
	}
}

// Evaluator computes metrics for fitted models against holdout data.
// It holds no state between calls and is safe for concurrent use.
type Evaluator struct {
	logger *logrus.Logger
}

// NewEvaluator creates a new evaluator
func NewEvaluator(logger *logrus.Logger) *Evaluator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Evaluator{logger: logger}
}

var _ interfaces.MetricsEvaluator = (*Evaluator)(nil)

// Evaluate scores model against holdout using the metric set of modelType.
// Other-typed models yield an empty mapping without inspecting holdout.
func (e *Evaluator) Evaluate(ctx context.Context, modelType models.ModelType, model interfaces.FittedModel, holdout models.Dataset) (map[string]float64, error) {
	switch modelType {
	case models.ModelTypeOther:
		return map[string]float64{}, nil
	case models.ModelTypeRegression, models.ModelTypeClassification:
	default:
		return nil, errors.NewValidationError(errors.CodeUnsupportedType,
			fmt.Sprintf("unsupported model type %q", modelType))
	}

	if model == nil {
		return nil, errors.NewEvaluationError(errors.CodeInferenceFailed, "model is nil")
	}

	predictions, err := e.predictAll(ctx, model, holdout)
	if err != nil {
		return nil, err
	}

	var metrics map[string]float64
	if modelType == models.ModelTypeRegression {
		metrics = regressionMetrics(holdout.Targets, predictions)
	} else {
		metrics = classificationMetrics(holdout.Targets, predictions)
	}
	if err := CheckFinite(metrics); err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"model_type": modelType,
		"rows":       holdout.Len(),
	}).Debug("Evaluated model")

	return metrics, nil
}

// CheckFinite rejects a metric set holding NaN or an infinity. Finite
// inputs can still overflow, e.g. squaring a residual near 1e200.
func CheckFinite(metrics map[string]float64) error {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if v := metrics[name]; math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewEvaluationError(errors.CodeInferenceFailed,
				fmt.Sprintf("metric %s is not finite", name))
		}
	}
	return nil
}

// Predict runs model over every row without scoring
func Predict(ctx context.Context, model interfaces.FittedModel, rows [][]float64) ([]float64, error) {
	if model == nil {
		return nil, errors.NewEvaluationError(errors.CodeInferenceFailed, "model is nil")
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, errors.FromContext(err, errors.ErrorTypeEvaluation, "inference")
		}
		if len(row) != model.NumFeatures() {
			return nil, errors.NewEvaluationError(errors.CodeFeatureMismatch,
				fmt.Sprintf("row %d has %d features, model expects %d", i, len(row), model.NumFeatures()))
		}
		y, err := safePredict(model, row)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeEvaluation, errors.CodeInferenceFailed,
				fmt.Sprintf("inference failed on row %d", i))
		}
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, errors.NewEvaluationError(errors.CodeInferenceFailed,
				fmt.Sprintf("non-finite prediction on row %d", i))
		}
		out[i] = y
	}
	return out, nil
}

func (e *Evaluator) predictAll(ctx context.Context, model interfaces.FittedModel, holdout models.Dataset) ([]float64, error) {
	if holdout.Len() == 0 || len(holdout.Targets) == 0 {
		return nil, errors.NewEvaluationError(errors.CodeEmptyHoldout, "holdout data is empty")
	}
	if len(holdout.Targets) != holdout.Len() {
		return nil, errors.NewEvaluationError(errors.CodeFeatureMismatch,
			fmt.Sprintf("holdout has %d feature rows but %d targets", holdout.Len(), len(holdout.Targets)))
	}
	return Predict(ctx, model, holdout.Features)
}

// safePredict converts a panic inside the model into an error
func safePredict(model interfaces.FittedModel, row []float64) (y float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panicked: %v", r)
		}
	}()
	return model.Predict(row)
}
