package models

import (
	"fmt"
	"strings"
	"time"
)

// Stage is the lifecycle state of a model version
type Stage string

const (
	StageStaging    Stage = "staging"
	StageProduction Stage = "production"
	StageArchived   Stage = "archived"
)

// ParseStage parses a stage name case-insensitively
func ParseStage(s string) (Stage, error) {
	switch stage := Stage(strings.ToLower(strings.TrimSpace(s))); stage {
	case StageStaging, StageProduction, StageArchived:
		return stage, nil
	default:
		return "", fmt.Errorf("unknown stage %q", s)
	}
}

// Valid reports whether s is one of the lifecycle stages
func (s Stage) Valid() bool {
	switch s {
	case StageStaging, StageProduction, StageArchived:
		return true
	}
	return false
}

// CanTransition reports whether a record in stage from may move to stage to.
// Staging moves to Production or Archived, Production moves to Archived,
// Archived is terminal and nothing re-enters Staging.
func (from Stage) CanTransition(to Stage) bool {
	switch from {
	case StageStaging:
		return to == StageProduction || to == StageArchived
	case StageProduction:
		return to == StageArchived
	default:
		return false
	}
}

// ModelType selects the metric set computed for a model
type ModelType string

const (
	ModelTypeRegression     ModelType = "regression"
	ModelTypeClassification ModelType = "classification"
	ModelTypeOther          ModelType = "other"
)

// ParseModelType parses a model type name case-insensitively
func ParseModelType(s string) (ModelType, error) {
	switch t := ModelType(strings.ToLower(strings.TrimSpace(s))); t {
	case ModelTypeRegression, ModelTypeClassification, ModelTypeOther:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported model type %q", s)
	}
}

// Valid reports whether t is one of the supported model types
func (t ModelType) Valid() bool {
	switch t {
	case ModelTypeRegression, ModelTypeClassification, ModelTypeOther:
		return true
	}
	return false
}

// RequiresMetrics reports whether records of this type must carry metrics
func (t ModelType) RequiresMetrics() bool {
	return t == ModelTypeRegression || t == ModelTypeClassification
}

// ModelRecord is one registered (name, version) pair
type ModelRecord struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	Version             int                `json:"version"`
	Stage               Stage              `json:"stage"`
	ModelType           ModelType          `json:"model_type"`
	ArtifactRef         string             `json:"artifact_ref"`
	TrainingFingerprint string             `json:"training_fingerprint"`
	Metrics             map[string]float64 `json:"metrics"`
	CreatedAt           time.Time          `json:"created_at"`
	PromotedAt          *time.Time         `json:"promoted_at,omitempty"`
	ArchivedAt          *time.Time         `json:"archived_at,omitempty"`
	SupersededBy        string             `json:"superseded_by,omitempty"`
	MetricsUpdatedAt    *time.Time         `json:"metrics_updated_at,omitempty"`
}

// Clone returns a deep copy of the record
func (r *ModelRecord) Clone() *ModelRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Metrics = make(map[string]float64, len(r.Metrics))
	for k, v := range r.Metrics {
		c.Metrics[k] = v
	}
	c.PromotedAt = cloneTime(r.PromotedAt)
	c.ArchivedAt = cloneTime(r.ArchivedAt)
	c.MetricsUpdatedAt = cloneTime(r.MetricsUpdatedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// MetricComparison holds one metric of two records side by side.
// Delta is B - A.
type MetricComparison struct {
	A     float64 `json:"a"`
	B     float64 `json:"b"`
	Delta float64 `json:"delta"`
}
