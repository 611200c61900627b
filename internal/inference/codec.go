package inference

import (
	"encoding/json"
	"fmt"

	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/interfaces"
)

// Model kinds understood by JSONCodec
const (
	KindLinear   = "linear"
	KindLogistic = "logistic"
	KindConstant = "constant"
)

type envelope struct {
	Kind      string    `json:"kind"`
	Weights   []float64 `json:"weights,omitempty"`
	Bias      float64   `json:"bias,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Value     float64   `json:"value,omitempty"`
	Features  int       `json:"features,omitempty"`
}

// JSONCodec serializes the built-in model kinds as JSON documents
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

var _ interfaces.Codec = (*JSONCodec)(nil)

// Encode serializes a built-in model
func (c *JSONCodec) Encode(model interfaces.FittedModel) ([]byte, error) {
	var env envelope
	switch m := model.(type) {
	case *LinearModel:
		env = envelope{Kind: KindLinear, Weights: m.Weights, Bias: m.Bias}
	case *LogisticModel:
		env = envelope{Kind: KindLogistic, Weights: m.Weights, Bias: m.Bias, Threshold: m.Threshold}
	case *ConstantModel:
		env = envelope{Kind: KindConstant, Value: m.Value, Features: m.Features}
	default:
		return nil, errors.NewValidationError(errors.CodeInvalidArtifact,
			fmt.Sprintf("cannot encode model of type %T", model))
	}
	return json.Marshal(env)
}

// Decode restores a built-in model from its JSON document
func (c *JSONCodec) Decode(artifact []byte) (interfaces.FittedModel, error) {
	var env envelope
	if err := json.Unmarshal(artifact, &env); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidArtifact,
			"artifact is not a JSON model document")
	}

	switch env.Kind {
	case KindLinear:
		return &LinearModel{Weights: env.Weights, Bias: env.Bias}, nil
	case KindLogistic:
		return &LogisticModel{Weights: env.Weights, Bias: env.Bias, Threshold: env.Threshold}, nil
	case KindConstant:
		return &ConstantModel{Value: env.Value, Features: env.Features}, nil
	default:
		return nil, errors.NewValidationError(errors.CodeInvalidArtifact,
			fmt.Sprintf("unknown model kind %q", env.Kind))
	}
}
