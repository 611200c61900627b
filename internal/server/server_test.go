package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/modelregistry/internal/api/handlers"
	"github.com/inferloop/modelregistry/internal/artifacts"
	"github.com/inferloop/modelregistry/internal/config"
	"github.com/inferloop/modelregistry/internal/events"
	"github.com/inferloop/modelregistry/internal/inference"
	"github.com/inferloop/modelregistry/internal/observability/health"
	"github.com/inferloop/modelregistry/internal/registry"
	"github.com/inferloop/modelregistry/internal/registry/store"
	"github.com/inferloop/modelregistry/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Records.Backend = store.BackendSQLite
	cfg.Records.SQLite.Path = filepath.Join(t.TempDir(), "registry.db")
	cfg.Artifacts.Backend = artifacts.BackendLocal
	cfg.Artifacts.Local.Path = filepath.Join(t.TempDir(), "artifacts")
	cfg.Events.Backend = events.BackendNone
	cfg.Metrics.Enabled = false
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBootstrapPersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	artifact, err := inference.NewJSONCodec().Encode(&inference.ConstantModel{Value: 2, Features: 1})
	require.NoError(t, err)

	first, err := Bootstrap(ctx, cfg, quietLogger())
	require.NoError(t, err)

	record, err := first.Registry.Register(ctx, registry.RegisterRequest{
		Name:      "churn",
		ModelType: models.ModelTypeRegression,
		Artifact:  artifact,
		Holdout:   models.Dataset{Features: [][]float64{{1}}, Targets: []float64{2}},
	})
	require.NoError(t, err)
	_, err = first.Registry.Promote(ctx, record.ID, models.StageProduction)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Bootstrap(ctx, cfg, quietLogger())
	require.NoError(t, err)
	defer second.Close()

	production, ok, err := second.Registry.GetProduction(ctx, "churn")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record.ID, production.ID)

	content, err := second.Registry.Artifact(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, artifact, content)

	report := second.Checker.Check(ctx)
	assert.Equal(t, health.StatusHealthy, report.Status)
	assert.Len(t, report.Checks, 2)
}

func TestBootstrapFailsOnBadBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Records.Backend = "mongo"

	_, err := Bootstrap(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

func TestServerRoutes(t *testing.T) {
	cfg := testConfig(t)
	components, err := Bootstrap(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer components.Close()

	srv := NewServer(cfg, components, handlers.NewBuildInfo("1.0.0", "deadbeef", "now"), quietLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := `{"model_type":"other","artifact":"eyJraW5kIjoiY29uc3RhbnQiLCJ2YWx1ZSI6MSwiZmVhdHVyZXMiOjF9"}`
	resp, err = http.Post(ts.URL+"/api/v1/models/ranker/versions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var record models.ModelRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	assert.Equal(t, "ranker", record.Name)
	assert.Equal(t, 1, record.Version)
	assert.Empty(t, record.Metrics)
}

func TestServerRequiresTokenWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Auth.JWTSecret = "s3cret"

	components, err := Bootstrap(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer components.Close()

	srv := NewServer(cfg, components, handlers.BuildInfo{}, quietLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/records/x/archive", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
