package dashboards

import (
	"encoding/json"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/modelregistry/internal/observability/metrics"
)

func TestRegistryDashboardQueriesExportedMetrics(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	pm, err := metrics.NewPrometheusMetrics(&metrics.PrometheusConfig{Namespace: "acme"}, logger)
	require.NoError(t, err)

	pm.RecordRegistration("regression", "success", time.Millisecond)
	pm.RecordPromotion("production", "success", time.Millisecond)
	pm.ObserveOperation("get", time.Millisecond)
	pm.SetProductionModels(1)
	pm.RecordEvent("log", "error")
	pm.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)

	families, err := pm.Registry().Gather()
	require.NoError(t, err)
	exported := map[string]bool{}
	for _, f := range families {
		exported[f.GetName()] = true
	}

	metricName := regexp.MustCompile(`acme_[a-z_]+`)
	dashboard := RegistryDashboard("acme")

	queried := 0
	for _, panel := range dashboard.Panels {
		for _, target := range panel.Targets {
			for _, name := range metricName.FindAllString(target.Expr, -1) {
				name = strings.TrimSuffix(name, "_bucket")
				assert.True(t, exported[name], "panel %q queries unknown metric %s", panel.Title, name)
				queried++
			}
		}
	}
	assert.Equal(t, 7, queried)

	for _, v := range dashboard.Templating.List {
		for _, name := range metricName.FindAllString(v.Query, -1) {
			assert.True(t, exported[name], name)
		}
	}
}

func TestRegistryDashboardLayout(t *testing.T) {
	dashboard := RegistryDashboard("modelreg")

	ids := map[int]bool{}
	for _, panel := range dashboard.Panels {
		assert.False(t, ids[panel.ID], "duplicate panel id %d", panel.ID)
		ids[panel.ID] = true
		assert.LessOrEqual(t, panel.GridPos.X+panel.GridPos.W, 24, panel.Title)

		if panel.Type == "row" {
			assert.Empty(t, panel.Targets)
			continue
		}
		require.NotEmpty(t, panel.Targets, panel.Title)
		assert.Equal(t, "A", panel.Targets[0].RefID)
		assert.Equal(t, "prometheus", panel.Datasource)
	}

	// panels on the same line never overlap
	for i, a := range dashboard.Panels {
		for _, b := range dashboard.Panels[i+1:] {
			overlapX := a.GridPos.X < b.GridPos.X+b.GridPos.W && b.GridPos.X < a.GridPos.X+a.GridPos.W
			overlapY := a.GridPos.Y < b.GridPos.Y+b.GridPos.H && b.GridPos.Y < a.GridPos.Y+a.GridPos.H
			assert.False(t, overlapX && overlapY, "%q overlaps %q", a.Title, b.Title)
		}
	}
}

func TestDashboardToJSON(t *testing.T) {
	content, err := RegistryDashboard("modelreg").ToJSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(content, &decoded))
	assert.Equal(t, "modelreg-overview", decoded["uid"])
	assert.Equal(t, "Model Registry", decoded["title"])
	assert.Len(t, decoded["panels"], 10)
}
