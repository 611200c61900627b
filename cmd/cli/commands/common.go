package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/internal/config"
	"github.com/inferloop/modelregistry/internal/server"
	"github.com/inferloop/modelregistry/pkg/models"
)

// GlobalOptions holds the persistent flags shared by every command
type GlobalOptions struct {
	ConfigFile string
	Verbose    bool
}

func (g *GlobalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// logger writes to stderr so command output stays machine readable
func (g *GlobalOptions) logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if g.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

// withRegistry opens the configured backends, runs fn and closes them again
func (g *GlobalOptions) withRegistry(ctx context.Context, fn func(*server.Components) error) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	// The CLI is short lived; a metrics endpoint would never be scraped.
	cfg.Metrics.Enabled = false

	components, err := server.Bootstrap(ctx, cfg, g.logger())
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer components.Close()

	return fn(components)
}

func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func readJSONFile(path string, v interface{}) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func loadDataset(path string) (models.Dataset, error) {
	var dataset models.Dataset
	if err := readJSONFile(path, &dataset); err != nil {
		return models.Dataset{}, fmt.Errorf("failed to load dataset: %w", err)
	}
	return dataset, nil
}
