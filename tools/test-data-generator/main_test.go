package main

import (
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/modelregistry/internal/inference"
)

func TestGenerateWritesWorkerJobs(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	for _, kind := range []string{"regression", "classification"} {
		t.Run(kind, func(t *testing.T) {
			config := getDefaultConfig()
			config.Models = 2
			config.Versions = 2
			config.TrainingRows = 20
			config.HoldoutRows = 10
			config.Kind = kind
			config.Seed = 7
			config.OutputDir = t.TempDir()

			files, err := NewGenerator(config, logger).Generate()
			require.NoError(t, err)
			require.Len(t, files, 4)

			for _, path := range files {
				content, err := os.ReadFile(path)
				require.NoError(t, err)

				var job Job
				require.NoError(t, json.Unmarshal(content, &job))
				assert.Equal(t, "submit", job.Type)
				assert.Equal(t, kind, job.ModelType)
				assert.Len(t, job.Holdout.Features, 10)
				assert.Len(t, job.TrainingData.Targets, 20)

				model, err := inference.NewJSONCodec().Decode(job.Model)
				require.NoError(t, err)
				assert.Equal(t, 4, model.NumFeatures())

				if kind == "classification" {
					for _, y := range job.Holdout.Targets {
						assert.Contains(t, []float64{0, 1}, y)
					}
				}
			}

			entries, err := os.ReadDir(config.OutputDir)
			require.NoError(t, err)
			assert.Len(t, entries, 4)
		})
	}
}

func TestGenerateRejectsUnknownKind(t *testing.T) {
	config := getDefaultConfig()
	config.Kind = "clustering"
	config.OutputDir = t.TempDir()

	_, err := NewGenerator(config, logrus.New()).Generate()
	assert.Error(t, err)
}
