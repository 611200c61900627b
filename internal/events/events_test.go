package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/models"
)

func sampleEvent() models.Event {
	return models.Event{
		Type:         models.EventDemoted,
		RecordID:     "rec-1",
		Name:         "sales_predictor",
		Version:      1,
		ModelType:    models.ModelTypeRegression,
		FromStage:    models.StageProduction,
		ToStage:      models.StageArchived,
		SupersededBy: "rec-2",
		Metrics:      map[string]float64{"rmse": 10.2},
		OccurredAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	sink, err := New(ctx, Config{Backend: BackendLog}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogSink{}, sink)

	sink, err = New(ctx, Config{Backend: BackendNone}, nil)
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, sink)
	assert.NoError(t, sink.Publish(ctx, sampleEvent()))

	_, err = New(ctx, Config{Backend: "kafka"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = New(ctx, Config{Backend: BackendRedis}, nil)
	assert.True(t, errors.IsStorage(err))

	_, err = New(ctx, Config{Backend: BackendInfluxDB}, nil)
	assert.True(t, errors.IsStorage(err))
}

func TestLogSinkWritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	require.NoError(t, NewLogSink(logger).Publish(context.Background(), sampleEvent()))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "demoted", entry["event"])
	assert.Equal(t, "rec-1", entry["model_id"])
	assert.Equal(t, "archived", entry["stage"])
	assert.Equal(t, "rec-2", entry["superseded_by"])
}

func TestStreamValues(t *testing.T) {
	values, err := streamValues(sampleEvent())
	require.NoError(t, err)

	assert.Equal(t, "demoted", values["type"])
	assert.Equal(t, "1", values["version"])
	assert.Equal(t, "production", values["from_stage"])
	assert.Equal(t, `{"rmse":10.2}`, values["metrics"])
	assert.Equal(t, "2024-03-01T12:00:00Z", values["occurred_at"])
}

type capturingWriter struct {
	points []*write.Point
	err    error
}

func (w *capturingWriter) WritePoint(ctx context.Context, point ...*write.Point) error {
	w.points = append(w.points, point...)
	return w.err
}

func TestInfluxSinkPoint(t *testing.T) {
	writer := &capturingWriter{}
	sink := newInfluxSink(writer, InfluxConfig{}, nil)

	require.NoError(t, sink.Publish(context.Background(), sampleEvent()))
	require.Len(t, writer.points, 1)

	line := write.PointToLineProtocol(writer.points[0], time.Nanosecond)
	assert.Contains(t, line, "model_registry_events,")
	assert.Contains(t, line, "event=demoted")
	assert.Contains(t, line, "name=sales_predictor")
	assert.Contains(t, line, "stage=archived")
	assert.Contains(t, line, "metric_rmse=10.2")
	assert.Contains(t, line, "version=1i")
}

func TestInfluxSinkWriteFailure(t *testing.T) {
	writer := &capturingWriter{err: fmt.Errorf("bucket not found")}
	sink := newInfluxSink(writer, InfluxConfig{Measurement: "events"}, nil)

	err := sink.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.True(t, errors.IsStorage(err))
}

func TestRedisStreamSinkIntegration(t *testing.T) {
	addr := os.Getenv("MODELREG_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Integration test - requires running Redis instance")
	}

	ctx := context.Background()
	sink, err := NewRedisStreamSink(ctx, RedisConfig{Addr: addr, Stream: "modelreg:test:events", MaxLen: 100}, nil)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Publish(ctx, sampleEvent()))

	entries, err := sink.client.XRevRangeN(ctx, "modelreg:test:events", "+", "-", 1).Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "demoted", entries[0].Values["type"])
}
