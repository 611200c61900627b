package events

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/models"
)

// InfluxConfig configures the InfluxDB sink
type InfluxConfig struct {
	URL          string        `mapstructure:"url"`
	Token        string        `mapstructure:"token"`
	Organization string        `mapstructure:"organization"`
	Bucket       string        `mapstructure:"bucket"`
	Measurement  string        `mapstructure:"measurement"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UseGZip      bool          `mapstructure:"use_gzip"`
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink records each event as a point so metric values can be charted
// per model over time
type InfluxSink struct {
	client influxdb2.Client
	writer pointWriter
	config InfluxConfig
	logger *logrus.Logger
}

// NewInfluxSink connects to InfluxDB
func NewInfluxSink(ctx context.Context, config InfluxConfig, logger *logrus.Logger) (*InfluxSink, error) {
	if config.URL == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "InfluxDB URL is required")
	}
	if config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "InfluxDB bucket is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	options := influxdb2.DefaultOptions()
	options.SetUseGZip(config.UseGZip)
	options.SetPrecision(time.Nanosecond)
	options.SetHTTPRequestTimeout(uint(config.Timeout.Seconds()))

	client := influxdb2.NewClientWithOptions(config.URL, config.Token, options)

	ok, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, errors.NewStorageConnectionError("influxdb", config.URL, err)
	}
	if !ok {
		client.Close()
		return nil, errors.NewStorageError(errors.CodeConnectionFailed, "InfluxDB ping failed")
	}

	sink := newInfluxSink(client.WriteAPIBlocking(config.Organization, config.Bucket), config, logger)
	sink.client = client

	sink.logger.WithFields(logrus.Fields{
		"url":          config.URL,
		"organization": config.Organization,
		"bucket":       config.Bucket,
	}).Info("Connected to InfluxDB event sink")

	return sink, nil
}

func newInfluxSink(writer pointWriter, config InfluxConfig, logger *logrus.Logger) *InfluxSink {
	if logger == nil {
		logger = logrus.New()
	}
	if config.Measurement == "" {
		config.Measurement = "model_registry_events"
	}
	return &InfluxSink{
		writer: writer,
		config: config,
		logger: logger,
	}
}

// Publish writes one point
func (s *InfluxSink) Publish(ctx context.Context, event models.Event) error {
	if err := s.writer.WritePoint(ctx, s.point(event)); err != nil {
		return errors.WrapStorageError(err, "publish", "influxdb")
	}
	return nil
}

// Close releases the client
func (s *InfluxSink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// Name identifies the sink in metrics
func (s *InfluxSink) Name() string { return BackendInfluxDB }

// Ping checks that InfluxDB answers
func (s *InfluxSink) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return errors.NewStorageConnectionError("influxdb", s.config.URL, err)
	}
	if !ok {
		return errors.NewStorageError(errors.CodeConnectionFailed, "InfluxDB ping failed")
	}
	return nil
}

func (s *InfluxSink) point(event models.Event) *write.Point {
	p := influxdb2.NewPointWithMeasurement(s.config.Measurement).
		AddTag("event", string(event.Type)).
		AddTag("name", event.Name).
		AddTag("model_type", string(event.ModelType)).
		AddField("record_id", event.RecordID).
		AddField("version", event.Version).
		SetTime(event.OccurredAt)

	if event.ToStage != "" {
		p.AddTag("stage", string(event.ToStage))
	}
	if event.SupersededBy != "" {
		p.AddField("superseded_by", event.SupersededBy)
	}
	for metric, value := range event.Metrics {
		p.AddField("metric_"+metric, value)
	}
	return p
}
