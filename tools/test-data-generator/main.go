package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/internal/inference"
	"github.com/inferloop/modelregistry/pkg/models"
)

// Config describes the synthetic training results to generate
type Config struct {
	Models       int     `json:"models"`
	Versions     int     `json:"versions"`
	Features     int     `json:"features"`
	TrainingRows int     `json:"training_rows"`
	HoldoutRows  int     `json:"holdout_rows"`
	Noise        float64 `json:"noise"`
	Kind         string  `json:"kind"` // regression, classification
	OutputDir    string  `json:"output_dir"`
	Seed         int64   `json:"seed"`
}

// Job mirrors the file format the submission worker reads from its inbox
type Job struct {
	Type         string          `json:"type"`
	Name         string          `json:"name"`
	ModelType    string          `json:"model_type"`
	Model        json.RawMessage `json:"model"`
	TrainingData *models.Dataset `json:"training_data"`
	Holdout      models.Dataset  `json:"holdout"`
}

type Generator struct {
	config *Config
	logger *logrus.Logger
	rand   *rand.Rand
	codec  *inference.JSONCodec
}

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		numModels  = flag.Int("models", 3, "Number of model names")
		versions   = flag.Int("versions", 3, "Versions per model")
		kind       = flag.String("kind", "regression", "Model kind (regression/classification)")
		output     = flag.String("output", "inbox", "Output directory, usually the worker inbox")
		seed       = flag.Int64("seed", 0, "Random seed (0 for time based)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	var config *Config
	if *configFile != "" {
		var err error
		config, err = loadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		config = getDefaultConfig()
		config.Models = *numModels
		config.Versions = *versions
		config.Kind = *kind
		config.OutputDir = *output
		config.Seed = *seed
	}

	generator := NewGenerator(config, logger)

	logger.WithFields(logrus.Fields{
		"models":     config.Models,
		"versions":   config.Versions,
		"kind":       config.Kind,
		"output_dir": config.OutputDir,
	}).Info("Starting training result generation")

	files, err := generator.Generate()
	if err != nil {
		log.Fatalf("Failed to generate training results: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"files":      len(files),
		"output_dir": config.OutputDir,
	}).Info("Training result generation completed")
}

func NewGenerator(config *Config, logger *logrus.Logger) *Generator {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		config: config,
		logger: logger,
		rand:   rand.New(rand.NewSource(seed)),
		codec:  inference.NewJSONCodec(),
	}
}

// Generate writes one job file per model version and returns their paths.
// Later versions fit the underlying weights more closely, so their
// metrics improve.
func (g *Generator) Generate() ([]string, error) {
	if g.config.Kind != "regression" && g.config.Kind != "classification" {
		return nil, fmt.Errorf("unsupported kind: %s", g.config.Kind)
	}
	if err := os.MkdirAll(g.config.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var files []string
	for m := 0; m < g.config.Models; m++ {
		name := fmt.Sprintf("%s_model_%d", g.config.Kind, m)
		weights := g.randomWeights()
		training := g.dataset(weights, g.config.TrainingRows)
		holdout := g.dataset(weights, g.config.HoldoutRows)

		for v := 1; v <= g.config.Versions; v++ {
			fitted := g.perturb(weights, 1/float64(v))
			job, err := g.job(name, fitted, training, holdout)
			if err != nil {
				return files, err
			}

			path := filepath.Join(g.config.OutputDir, fmt.Sprintf("%s-v%d.json", name, v))
			if err := g.save(job, path); err != nil {
				return files, err
			}
			files = append(files, path)

			g.logger.WithFields(logrus.Fields{
				"name": name,
				"file": path,
			}).Debug("Training result written")
		}
	}

	return files, nil
}

func (g *Generator) randomWeights() []float64 {
	weights := make([]float64, g.config.Features)
	for i := range weights {
		weights[i] = g.rand.NormFloat64() * 2
	}
	return weights
}

func (g *Generator) perturb(weights []float64, scale float64) []float64 {
	fitted := make([]float64, len(weights))
	for i, w := range weights {
		fitted[i] = w + g.rand.NormFloat64()*scale
	}
	return fitted
}

func (g *Generator) dataset(weights []float64, rows int) models.Dataset {
	data := models.Dataset{
		Features: make([][]float64, rows),
		Targets:  make([]float64, rows),
	}
	for r := 0; r < rows; r++ {
		x := make([]float64, len(weights))
		y := 0.0
		for i, w := range weights {
			x[i] = g.rand.Float64()*2 - 1
			y += w * x[i]
		}
		y += g.rand.NormFloat64() * g.config.Noise

		if g.config.Kind == "classification" {
			if 1/(1+math.Exp(-y)) >= 0.5 {
				y = 1
			} else {
				y = 0
			}
		}
		data.Features[r] = x
		data.Targets[r] = y
	}
	return data
}

func (g *Generator) job(name string, weights []float64, training, holdout models.Dataset) (*Job, error) {
	var model []byte
	var err error
	if g.config.Kind == "classification" {
		model, err = g.codec.Encode(&inference.LogisticModel{Weights: weights, Threshold: 0.5})
	} else {
		model, err = g.codec.Encode(&inference.LinearModel{Weights: weights})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode model: %w", err)
	}

	return &Job{
		Type:         "submit",
		Name:         name,
		ModelType:    g.config.Kind,
		Model:        model,
		TrainingData: &training,
		Holdout:      holdout,
	}, nil
}

// save writes to a temporary name first so the worker never claims a
// partially written file
func (g *Generator) save(job *Job, path string) error {
	content, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tmp, path)
}

func loadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := getDefaultConfig()
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}

func getDefaultConfig() *Config {
	return &Config{
		Models:       3,
		Versions:     3,
		Features:     4,
		TrainingRows: 500,
		HoldoutRows:  100,
		Noise:        0.1,
		Kind:         "regression",
		OutputDir:    "inbox",
	}
}
