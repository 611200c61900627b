// Package api exposes the model registry over HTTP.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/internal/api/handlers"
	"github.com/inferloop/modelregistry/internal/api/responses"
	"github.com/inferloop/modelregistry/internal/observability/health"
	"github.com/inferloop/modelregistry/internal/observability/metrics"
)

// RouterOptions wires the router to the registry and its observers
type RouterOptions struct {
	Registry     handlers.ModelRegistry
	Checker      *health.Checker
	Metrics      *metrics.PrometheusMetrics
	Middleware   *MiddlewareConfig
	Build        handlers.BuildInfo
	MaxBodyBytes int64
	Logger       *logrus.Logger
}

type Router struct {
	modelsHandler *handlers.ModelsHandler
	healthHandler *handlers.HealthHandler
	middleware    *MiddlewareConfig
	metrics       *metrics.PrometheusMetrics
	logger        *logrus.Logger
}

func NewRouter(opts RouterOptions) *Router {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Middleware == nil {
		opts.Middleware = DefaultMiddlewareConfig()
	}

	return &Router{
		modelsHandler: handlers.NewModelsHandler(opts.Registry, opts.MaxBodyBytes, opts.Logger),
		healthHandler: handlers.NewHealthHandler(opts.Checker, opts.Build),
		middleware:    opts.Middleware,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}
}

func (router *Router) SetupRoutes() *mux.Router {
	r := mux.NewRouter()
	ApplyMiddleware(r, router.middleware, router.metrics, router.logger)

	r.HandleFunc("/health", router.healthHandler.GetHealth).Methods("GET")
	r.HandleFunc("/health/live", router.healthHandler.GetLiveness).Methods("GET")
	r.HandleFunc("/version", router.healthHandler.GetVersion).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Model endpoints
	modelsRouter := api.PathPrefix("/models").Subrouter()
	modelsRouter.HandleFunc("", router.modelsHandler.ListModels).Methods("GET")
	modelsRouter.HandleFunc("/{name}/versions", router.modelsHandler.ListVersions).Methods("GET")
	modelsRouter.HandleFunc("/{name}/versions", router.modelsHandler.RegisterVersion).Methods("POST")
	modelsRouter.HandleFunc("/{name}/production", router.modelsHandler.GetProduction).Methods("GET")

	// Record endpoints
	records := api.PathPrefix("/records").Subrouter()
	records.HandleFunc("/{id}", router.modelsHandler.GetRecord).Methods("GET")
	records.HandleFunc("/{id}/artifact", router.modelsHandler.GetArtifact).Methods("GET")
	records.HandleFunc("/{id}/promote", router.modelsHandler.Promote).Methods("POST")
	records.HandleFunc("/{id}/archive", router.modelsHandler.Archive).Methods("POST")
	records.HandleFunc("/{id}/metrics", router.modelsHandler.RecomputeMetrics).Methods("POST")
	records.HandleFunc("/{id}/predict", router.modelsHandler.Predict).Methods("POST")

	// Query endpoints
	api.HandleFunc("/compare", router.modelsHandler.Compare).Methods("GET")
	api.HandleFunc("/snapshot", router.modelsHandler.Snapshot).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		responses.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
	})

	return r
}
