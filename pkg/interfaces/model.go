package interfaces

import (
	"context"

	"github.com/inferloop/modelregistry/pkg/models"
)

// FittedModel is a trained model able to score one row of features.
// Training happens elsewhere; the registry only runs inference.
type FittedModel interface {
	// NumFeatures returns the feature count every input row must have
	NumFeatures() int

	// Predict scores a single row
	Predict(features []float64) (float64, error)
}

// Codec is the serialization hook between fitted models and artifact bytes
type Codec interface {
	// Encode serializes a fitted model into artifact bytes
	Encode(model FittedModel) ([]byte, error)

	// Decode restores a fitted model from artifact bytes
	Decode(artifact []byte) (FittedModel, error)
}

// MetricsEvaluator computes the fixed metric set for a model type
type MetricsEvaluator interface {
	// Evaluate scores model against holdout data
	Evaluate(ctx context.Context, modelType models.ModelType, model FittedModel, holdout models.Dataset) (map[string]float64, error)
}

// EventSink receives audit events after registry mutations commit
type EventSink interface {
	// Publish delivers one event
	Publish(ctx context.Context, event models.Event) error

	// Close flushes and releases resources
	Close() error
}
