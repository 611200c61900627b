package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/modelregistry/internal/api"
	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/models"
)

// cliEnv is a scratch registry backed by sqlite and a local artifact directory,
// so state survives between command invocations like it does for a user.
type cliEnv struct {
	dir    string
	config string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	config := fmt.Sprintf(`
records:
  backend: sqlite
  sqlite:
    path: %s
artifacts:
  backend: local
  local:
    path: %s
  cache:
    enabled: false
events:
  backend: none
server:
  auth:
    jwt_secret: cli-test-secret
    token_ttl: 1h
`, filepath.Join(dir, "registry.db"), filepath.Join(dir, "artifacts"))

	env := &cliEnv{dir: dir, config: filepath.Join(dir, "modelreg.yaml")}
	require.NoError(t, os.WriteFile(env.config, []byte(config), 0644))
	return env
}

func (e *cliEnv) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", e.config}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) record(t *testing.T, args ...string) *models.ModelRecord {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err)
	var record models.ModelRecord
	require.NoError(t, json.Unmarshal([]byte(out), &record), out)
	return &record
}

const holdoutJSON = `{"features": [[1, 0], [0, 1], [1, 1]], "targets": [1, 2, 3]}`

func TestCLIModelLifecycle(t *testing.T) {
	env := newCLIEnv(t)
	exact := env.file(t, "exact.json", `{"kind": "linear", "weights": [1, 2]}`)
	shifted := env.file(t, "shifted.json", `{"kind": "linear", "weights": [1, 2], "bias": 1}`)
	holdout := env.file(t, "holdout.json", holdoutJSON)

	v1 := env.record(t, "register", "--name", "sales_predictor", "--type", "regression",
		"--model", exact, "--holdout", holdout, "--training-data", holdout)
	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, models.StageStaging, v1.Stage)
	assert.InDelta(t, 0, v1.Metrics["mse"], 1e-12)

	fingerprint, err := env.run(t, "fingerprint", holdout)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(fingerprint), v1.TrainingFingerprint)

	v2 := env.record(t, "register", "-n", "sales_predictor", "-t", "Regression",
		"-m", shifted, "--holdout", holdout, "--fingerprint", "job-42")
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, "job-42", v2.TrainingFingerprint)
	assert.InDelta(t, 1, v2.Metrics["mse"], 1e-12)

	promoted := env.record(t, "promote", v1.ID, "--stage", "Production")
	assert.Equal(t, models.StageProduction, promoted.Stage)
	assert.NotNil(t, promoted.PromotedAt)

	production := env.record(t, "production", "sales_predictor")
	assert.Equal(t, v1.ID, production.ID)

	fetched := env.record(t, "get", v2.ID)
	assert.Equal(t, models.StageStaging, fetched.Stage)

	out, err := env.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "sales_predictor")
	assert.Contains(t, out, "v1")

	out, err = env.run(t, "list", "sales_predictor", "--output", "json")
	require.NoError(t, err)
	var history []*models.ModelRecord
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Version)
	assert.Equal(t, 2, history[1].Version)

	out, err = env.run(t, "compare", v1.ID, v2.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "DELTA")
	assert.Contains(t, out, "rmse")
	assert.Contains(t, out, "+1")

	out, err = env.run(t, "snapshot", "--output", "json")
	require.NoError(t, err)
	var snapshot map[string]*models.ModelRecord
	require.NoError(t, json.Unmarshal([]byte(out), &snapshot))
	require.Contains(t, snapshot, "sales_predictor")
	assert.Equal(t, v1.ID, snapshot["sales_predictor"].ID)

	features := env.file(t, "features.json", `[[1, 1], [2, 0]]`)
	out, err = env.run(t, "predict", v1.ID, "--features", features)
	require.NoError(t, err)
	var predictions []float64
	require.NoError(t, json.Unmarshal([]byte(out), &predictions))
	assert.Equal(t, []float64{3, 2}, predictions)

	newHoldout := env.file(t, "holdout-2.json", `{"features": [[1, 0], [0, 1]], "targets": [2, 3]}`)
	recomputed := env.record(t, "recompute", v1.ID, "--holdout", newHoldout)
	assert.InDelta(t, 1, recomputed.Metrics["mse"], 1e-12)
	assert.NotNil(t, recomputed.MetricsUpdatedAt)

	archived := env.record(t, "archive", v2.ID)
	assert.Equal(t, models.StageArchived, archived.Stage)
}

func TestCLIErrors(t *testing.T) {
	env := newCLIEnv(t)
	model := env.file(t, "model.json", `{"kind": "linear", "weights": [1, 2]}`)
	holdout := env.file(t, "holdout.json", holdoutJSON)

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, err error)
	}{
		{
			name: "unsupported model type",
			args: []string{"register", "-n", "m", "-t", "clustering", "-m", model, "--holdout", holdout},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "unsupported model type")
			},
		},
		{
			name: "missing holdout for regression",
			args: []string{"register", "-n", "m", "-t", "regression", "-m", model},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.IsEvaluation(err), err.Error())
			},
		},
		{
			name: "unknown record",
			args: []string{"get", "does-not-exist"},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.IsNotFound(err), err.Error())
			},
		},
		{
			name: "no production version",
			args: []string{"production", "nobody"},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.IsNotFound(err), err.Error())
			},
		},
		{
			name: "invalid stage",
			args: []string{"promote", "some-id", "--stage", "canary"},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "canary")
			},
		},
		{
			name: "missing required flag",
			args: []string{"register", "-n", "m", "-t", "other"},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "model")
			},
		},
		{
			name: "wrong argument count",
			args: []string{"compare", "only-one"},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "accepts 2 arg(s)")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestCLIToken(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "token", "--subject", "ci-pipeline")
	require.NoError(t, err)

	claims, err := api.ParseToken([]byte("cli-test-secret"), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ci-pipeline", claims.Subject)
	assert.True(t, claims.HasScope(api.ScopeWrite))
	require.NotNil(t, claims.ExpiresAt)

	out, err = env.run(t, "token", "--subject", "dashboard", "--scope", "registry:read", "--ttl", "0s")
	require.NoError(t, err)
	claims, err = api.ParseToken([]byte("cli-test-secret"), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.False(t, claims.HasScope(api.ScopeWrite))
	assert.Nil(t, claims.ExpiresAt)
}

func TestCLITokenRequiresSecret(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(env.config, []byte("events:\n  backend: none\n"), 0644))

	_, err := env.run(t, "token", "--subject", "ci")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestCLIMigrate(t *testing.T) {
	source := newCLIEnv(t)
	target := newCLIEnv(t)
	model := source.file(t, "model.json", `{"kind": "linear", "weights": [1, 2]}`)
	holdout := source.file(t, "holdout.json", holdoutJSON)

	v1 := source.record(t, "register", "-n", "sales_predictor", "-t", "regression", "-m", model, "--holdout", holdout)
	source.record(t, "promote", v1.ID)

	out, err := target.run(t, "migrate", "--from", source.config, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, `"dry_run": true`)

	_, err = target.run(t, "get", v1.ID)
	require.Error(t, err)

	out, err = target.run(t, "migrate", "--from", source.config)
	require.NoError(t, err)
	var result struct {
		Names   int `json:"names"`
		Records int `json:"records"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.Names)
	assert.Equal(t, 1, result.Records)

	production := target.record(t, "production", "sales_predictor")
	assert.Equal(t, v1.ID, production.ID)

	_, err = target.run(t, "migrate", "--from", source.config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TARGET_NOT_EMPTY")
}

func TestCLIDashboard(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "dashboard", "--namespace", "acme")
	require.NoError(t, err)

	var dashboard struct {
		UID    string `json:"uid"`
		Panels []struct {
			Targets []struct {
				Expr string `json:"expr"`
			} `json:"targets"`
		} `json:"panels"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &dashboard))
	assert.Equal(t, "acme-overview", dashboard.UID)
	assert.Contains(t, out, "acme_registrations_total")

	out, err = env.run(t, "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "modelreg_production_models")
}
