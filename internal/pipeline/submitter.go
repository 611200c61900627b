// Package pipeline connects training jobs to the registry.
package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/internal/evaluation"
	"github.com/inferloop/modelregistry/internal/inference"
	"github.com/inferloop/modelregistry/internal/registry"
	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/interfaces"
	"github.com/inferloop/modelregistry/pkg/models"
)

// Registrar is the registry operation the submitter needs
type Registrar interface {
	Register(ctx context.Context, req registry.RegisterRequest) (*models.ModelRecord, error)
}

// TrainingResult is what a finished training job hands over
type TrainingResult struct {
	Name      string
	ModelType models.ModelType
	Model     interfaces.FittedModel

	// TrainingFingerprint identifies the training data. When empty it is
	// derived from TrainingData.
	TrainingFingerprint string
	TrainingData        *models.Dataset

	Holdout models.Dataset
}

// Submitter serializes fitted models and registers them
type Submitter struct {
	registrar Registrar
	codec     interfaces.Codec
	logger    *logrus.Logger
}

// NewSubmitter creates a submitter. A nil codec selects the JSON codec.
func NewSubmitter(registrar Registrar, codec interfaces.Codec, logger *logrus.Logger) *Submitter {
	if codec == nil {
		codec = inference.NewJSONCodec()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Submitter{
		registrar: registrar,
		codec:     codec,
		logger:    logger,
	}
}

// Submit encodes result.Model and registers it in Staging
func (s *Submitter) Submit(ctx context.Context, result TrainingResult) (*models.ModelRecord, error) {
	if result.Model == nil {
		return nil, errors.NewValidationError(errors.CodeMissingField, "fitted model is required")
	}

	artifact, err := s.codec.Encode(result.Model)
	if err != nil {
		if errors.IsValidation(err) {
			return nil, err
		}
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidArtifact,
			"fitted model cannot be serialized")
	}

	fingerprint := result.TrainingFingerprint
	if fingerprint == "" && result.TrainingData != nil {
		fingerprint = evaluation.Fingerprint(*result.TrainingData)
	}

	record, err := s.registrar.Register(ctx, registry.RegisterRequest{
		Name:                result.Name,
		ModelType:           result.ModelType,
		Artifact:            artifact,
		TrainingFingerprint: fingerprint,
		Holdout:             result.Holdout,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"name":       result.Name,
			"model_type": result.ModelType,
		}).Warn("Training result rejected by registry")
		return nil, err
	}

	return record, nil
}
