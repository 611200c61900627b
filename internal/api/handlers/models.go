package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/internal/api/responses"
	"github.com/inferloop/modelregistry/internal/query"
	"github.com/inferloop/modelregistry/internal/registry"
	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/models"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured
const DefaultMaxBodyBytes = 64 << 20

// ModelRegistry is the registry surface the HTTP API drives
type ModelRegistry interface {
	query.Registry
	Register(ctx context.Context, req registry.RegisterRequest) (*models.ModelRecord, error)
	Promote(ctx context.Context, id string, target models.Stage) (*models.ModelRecord, error)
	Archive(ctx context.Context, id string) (*models.ModelRecord, error)
	Get(ctx context.Context, id string) (*models.ModelRecord, error)
	RecomputeMetrics(ctx context.Context, id string, holdout models.Dataset) (*models.ModelRecord, error)
	Artifact(ctx context.Context, id string) ([]byte, error)
	Predict(ctx context.Context, id string, rows [][]float64) ([]float64, error)
}

// ModelsHandler serves model and record endpoints
type ModelsHandler struct {
	registry     ModelRegistry
	facade       *query.Facade
	logger       *logrus.Logger
	maxBodyBytes int64
}

// RegisterVersionRequest is the body of POST /models/{name}/versions.
// Artifact is base64 in JSON.
type RegisterVersionRequest struct {
	ModelType           string         `json:"model_type"`
	Artifact            []byte         `json:"artifact"`
	TrainingFingerprint string         `json:"training_fingerprint"`
	Holdout             models.Dataset `json:"holdout"`
}

// PromoteRequest is the body of POST /records/{id}/promote
type PromoteRequest struct {
	Stage string `json:"stage"`
}

// RecomputeRequest is the body of POST /records/{id}/metrics
type RecomputeRequest struct {
	Holdout models.Dataset `json:"holdout"`
}

// PredictRequest is the body of POST /records/{id}/predict
type PredictRequest struct {
	Features [][]float64 `json:"features"`
}

// PredictResponse carries one prediction per input row
type PredictResponse struct {
	RecordID    string    `json:"record_id"`
	Predictions []float64 `json:"predictions"`
}

// ModelSummary is one entry of GET /models
type ModelSummary struct {
	Name       string              `json:"name"`
	Production *models.ModelRecord `json:"production"`
}

// CompareResponse is the body of GET /compare
type CompareResponse struct {
	A       string                             `json:"a"`
	B       string                             `json:"b"`
	Metrics map[string]models.MetricComparison `json:"metrics"`
}

// NewModelsHandler creates a handler over reg
func NewModelsHandler(reg ModelRegistry, maxBodyBytes int64, logger *logrus.Logger) *ModelsHandler {
	if logger == nil {
		logger = logrus.New()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &ModelsHandler{
		registry:     reg,
		facade:       query.NewFacade(reg),
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

// ListModels handles GET /models
func (h *ModelsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.facade.ProductionSnapshot(r.Context())
	if err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}

	summaries := make([]ModelSummary, 0, len(snapshot))
	for name, record := range snapshot {
		summaries = append(summaries, ModelSummary{Name: name, Production: record})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })

	responses.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"models": summaries,
		"count":  len(summaries),
	})
}

// ListVersions handles GET /models/{name}/versions
func (h *ModelsHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	versions, err := h.facade.History(r.Context(), name)
	if err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}

	responses.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"name":     name,
		"versions": versions,
		"count":    len(versions),
	})
}

// RegisterVersion handles POST /models/{name}/versions
func (h *ModelsHandler) RegisterVersion(w http.ResponseWriter, r *http.Request) {
	var req RegisterVersionRequest
	if err := h.decode(w, r, &req); err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}

	modelType, err := models.ParseModelType(req.ModelType)
	if err != nil {
		responses.WriteError(w, r, errors.NewValidationError(errors.CodeUnsupportedType, err.Error()), h.logger)
		return
	}

	record, err := h.registry.Register(r.Context(), registry.RegisterRequest{
		Name:                mux.Vars(r)["name"],
		ModelType:           modelType,
		Artifact:            req.Artifact,
		TrainingFingerprint: req.TrainingFingerprint,
		Holdout:             req.Holdout,
	})
	if err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Location", "/api/v1/records/"+record.ID)
	responses.WriteJSON(w, http.StatusCreated, record)
}

// GetProduction handles GET /models/{name}/production. A name without a
// Production version answers 404 with found=false.
func (h *ModelsHandler) GetProduction(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	record, ok, err := h.registry.GetProduction(r.Context(), name)
	if err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}
	if !ok {
		responses.WriteJSON(w, http.StatusNotFound, map[string]interface{}{
			"name":  name,
			"found": false,
		})
		return
	}

	responses.WriteJSON(w, http.StatusOK, record)
}

// GetRecord handles GET /records/{id}
func (h *ModelsHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.registry.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}
	responses.WriteJSON(w, http.StatusOK, record)
}

// GetArtifact handles GET /records/{id}/artifact
func (h *ModelsHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	artifact, err := h.registry.Artifact(r.Context(), id)
	if err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".model"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact)
}

// Promote handles POST /records/{id}/promote
func (h *ModelsHandler) Promote(w http.ResponseWriter, r *http.Request) {
	var req PromoteRequest
	if err := h.decode(w, r, &req); err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}

	stage, err := models.ParseStage(req.Stage)
	if err != nil {
		responses.WriteError(w, r, errors.NewValidationError(errors.CodeInvalidStage, err.Error()), h.logger)
		return
	}

	record, err := h.registry.Promote(r.Context(), mux.Vars(r)["id"], stage)
	if err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}
	responses.WriteJSON(w, http.StatusOK, record)
}

// Archive handles POST /records/{id}/archive
func (h *ModelsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	record, err := h.registry.Archive(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}
	responses.WriteJSON(w, http.StatusOK, record)
}

// RecomputeMetrics handles POST /records/{id}/metrics
func (h *ModelsHandler) RecomputeMetrics(w http.ResponseWriter, r *http.Request) {
	var req RecomputeRequest
	if err := h.decode(w, r, &req); err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}

	record, err := h.registry.RecomputeMetrics(r.Context(), mux.Vars(r)["id"], req.Holdout)
	if err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}
	responses.WriteJSON(w, http.StatusOK, record)
}

// Predict handles POST /records/{id}/predict
func (h *ModelsHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := h.decode(w, r, &req); err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}

	id := mux.Vars(r)["id"]
	predictions, err := h.registry.Predict(r.Context(), id, req.Features)
	if err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}

	responses.WriteJSON(w, http.StatusOK, &PredictResponse{RecordID: id, Predictions: predictions})
}

// Compare handles GET /compare?a=..&b=..
func (h *ModelsHandler) Compare(w http.ResponseWriter, r *http.Request) {
	a := r.URL.Query().Get("a")
	b := r.URL.Query().Get("b")
	if a == "" || b == "" {
		responses.WriteError(w, r, errors.NewValidationError(errors.CodeMissingField,
			"query parameters a and b are required"), h.logger)
		return
	}

	diff, err := h.facade.Diff(r.Context(), a, b)
	if err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}

	responses.WriteJSON(w, http.StatusOK, &CompareResponse{A: a, B: b, Metrics: diff})
}

// Snapshot handles GET /snapshot
func (h *ModelsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.facade.ProductionSnapshot(r.Context())
	if err != nil {
		responses.WriteError(w, r, err, h.logger)
		return
	}
	responses.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"production": snapshot,
	})
}

func (h *ModelsHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		if err == io.EOF {
			return errors.NewValidationError(errors.CodeInvalidInput, "request body is empty")
		}
		return errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidInput,
			"request body is not valid JSON")
	}
	return nil
}
