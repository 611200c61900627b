package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// PrometheusMetrics collects registry metrics on a private Prometheus registry
type PrometheusMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	server   *http.Server
	config   *PrometheusConfig

	registrationsTotal  *prometheus.CounterVec
	promotionsTotal     *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	productionModels    prometheus.Gauge
	eventsTotal         *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// PrometheusConfig configures Prometheus metrics
type PrometheusConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Port      int    `mapstructure:"port"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// NewPrometheusMetrics creates and registers the registry metrics
func NewPrometheusMetrics(config *PrometheusConfig, logger *logrus.Logger) (*PrometheusMetrics, error) {
	if config == nil {
		config = getDefaultPrometheusConfig()
	}
	if config.Namespace == "" {
		config.Namespace = "modelreg"
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if logger == nil {
		logger = logrus.New()
	}

	pm := &PrometheusMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}

	pm.initializeMetrics()

	if err := pm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return pm, nil
}

// Handler serves the collected metrics
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry exposes the underlying registry, mainly for tests
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// Start serves metrics on their own port
func (pm *PrometheusMetrics) Start(ctx context.Context) error {
	if !pm.config.Enabled {
		pm.logger.Info("Prometheus metrics disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(pm.config.Path, pm.Handler())

	pm.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", pm.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	pm.logger.WithFields(logrus.Fields{
		"port": pm.config.Port,
		"path": pm.config.Path,
	}).Info("Starting Prometheus metrics server")

	go func() {
		if err := pm.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			pm.logger.WithError(err).Error("Prometheus metrics server error")
		}
	}()

	return nil
}

// Stop stops the metrics server
func (pm *PrometheusMetrics) Stop(ctx context.Context) error {
	if pm.server == nil {
		return nil
	}

	pm.logger.Info("Stopping Prometheus metrics server")
	return pm.server.Shutdown(ctx)
}

// RecordRegistration counts one register call
func (pm *PrometheusMetrics) RecordRegistration(modelType, result string, duration time.Duration) {
	pm.registrationsTotal.WithLabelValues(modelType, result).Inc()
	pm.operationDuration.WithLabelValues("register").Observe(duration.Seconds())
}

// RecordPromotion counts one promote call
func (pm *PrometheusMetrics) RecordPromotion(targetStage, result string, duration time.Duration) {
	pm.promotionsTotal.WithLabelValues(targetStage, result).Inc()
	pm.operationDuration.WithLabelValues("promote").Observe(duration.Seconds())
}

// ObserveOperation records the latency of any other registry operation
func (pm *PrometheusMetrics) ObserveOperation(operation string, duration time.Duration) {
	pm.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddProductionModels moves the production gauge by delta
func (pm *PrometheusMetrics) AddProductionModels(delta float64) {
	pm.productionModels.Add(delta)
}

// SetProductionModels sets the production gauge
func (pm *PrometheusMetrics) SetProductionModels(count float64) {
	pm.productionModels.Set(count)
}

// RecordEvent counts one event delivery attempt
func (pm *PrometheusMetrics) RecordEvent(sink, result string) {
	pm.eventsTotal.WithLabelValues(sink, result).Inc()
}

// RecordHTTPRequest counts one API request
func (pm *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	pm.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	pm.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (pm *PrometheusMetrics) initializeMetrics() {
	namespace := pm.config.Namespace

	pm.registrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Total number of model registrations",
		},
		[]string{"model_type", "result"},
	)

	pm.promotionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotions_total",
			Help:      "Total number of stage transitions",
		},
		[]string{"target_stage", "result"},
	)

	pm.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Registry operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"operation"},
	)

	pm.productionModels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "production_models",
			Help:      "Number of model names with a production version",
		},
	)

	pm.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of audit events delivered to sinks",
		},
		[]string{"sink", "result"},
	)

	pm.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	pm.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
}

func (pm *PrometheusMetrics) registerMetrics() error {
	collectors := []prometheus.Collector{
		pm.registrationsTotal,
		pm.promotionsTotal,
		pm.operationDuration,
		pm.productionModels,
		pm.eventsTotal,
		pm.httpRequestsTotal,
		pm.httpRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}

	for _, collector := range collectors {
		if err := pm.registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

func getDefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "modelreg",
	}
}
