package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/inferloop/modelregistry/internal/api/responses"
	"github.com/inferloop/modelregistry/internal/observability/health"
)

// BuildInfo describes the running binary
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// NewBuildInfo fills the runtime fields of a BuildInfo
func NewBuildInfo(version, gitCommit, buildTime string) BuildInfo {
	return BuildInfo{
		Version:   version,
		GitCommit: gitCommit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

type HealthHandler struct {
	checker   *health.Checker
	build     BuildInfo
	startTime time.Time
}

func NewHealthHandler(checker *health.Checker, build BuildInfo) *HealthHandler {
	if checker == nil {
		checker = health.NewChecker(0, nil)
	}
	return &HealthHandler{
		checker:   checker,
		build:     build,
		startTime: time.Now(),
	}
}

// GetHealth runs every dependency check. Degraded still answers 200.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := h.checker.Check(r.Context())

	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	responses.WriteJSON(w, status, report)
}

func (h *HealthHandler) GetLiveness(w http.ResponseWriter, r *http.Request) {
	responses.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
	})
}

func (h *HealthHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	responses.WriteJSON(w, http.StatusOK, h.build)
}
