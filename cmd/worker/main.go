package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/internal/config"
	"github.com/inferloop/modelregistry/internal/inference"
	"github.com/inferloop/modelregistry/internal/pipeline"
	"github.com/inferloop/modelregistry/internal/server"
)

type WorkerConfig struct {
	WorkerID        string
	ConfigFile      string
	InboxDir        string
	Concurrency     int
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
}

var logger *logrus.Logger

func main() {
	workerConfig := parseFlags()

	logger = setupLogger(workerConfig.LogLevel, workerConfig.LogFormat)

	logger.WithFields(logrus.Fields{
		"worker_id":   workerConfig.WorkerID,
		"concurrency": workerConfig.Concurrency,
		"inbox":       workerConfig.InboxDir,
	}).Info("Starting model registry submission worker")

	cfg, err := config.Load(workerConfig.ConfigFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := server.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open registry backends")
	}
	defer components.Close()

	codec := inference.NewJSONCodec()
	submitter := pipeline.NewSubmitter(components.Registry, codec, logger)

	scheduler := NewScheduler(workerConfig, logger)
	if err := scheduler.Prepare(); err != nil {
		logger.WithError(err).Fatal("Failed to prepare inbox")
	}

	processor := NewJobProcessor(workerConfig, submitter, components.Registry, codec, logger)
	processor.SetScheduler(scheduler)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Jobs already claimed finish with their own context so a shutdown
	// never leaves a half-registered version behind.
	jobCtx := context.WithoutCancel(ctx)

	processorDone := make(chan struct{})
	go scheduler.Start(ctx)
	go func() {
		processor.Start(jobCtx)
		close(processorDone)
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.WithFields(logrus.Fields{
					"active_jobs":    processor.ActiveJobs(),
					"completed_jobs": processor.CompletedJobs(),
					"failed_jobs":    processor.FailedJobs(),
				}).Debug("Worker health check")
			}
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), workerConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := gracefulShutdown(shutdownCtx, cancel, processorDone); err != nil {
		logger.WithError(err).Error("Worker shutdown failed")
		os.Exit(1)
	}

	logger.WithFields(logrus.Fields{
		"completed_jobs": processor.CompletedJobs(),
		"failed_jobs":    processor.FailedJobs(),
	}).Info("Worker stopped successfully")
}

func parseFlags() *WorkerConfig {
	workerConfig := &WorkerConfig{}

	home, _ := os.UserHomeDir()

	flag.StringVar(&workerConfig.WorkerID, "worker-id", generateWorkerID(), "Unique worker ID")
	flag.StringVar(&workerConfig.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&workerConfig.InboxDir, "inbox", filepath.Join(home, ".modelregistry", "inbox"), "Directory polled for training results")
	flag.IntVar(&workerConfig.Concurrency, "concurrency", 4, "Number of concurrent jobs")
	flag.DurationVar(&workerConfig.PollInterval, "poll-interval", 5*time.Second, "Inbox polling interval")
	flag.DurationVar(&workerConfig.ShutdownTimeout, "shutdown-timeout", 30*time.Second, "Time allowed for claimed jobs to finish")
	flag.StringVar(&workerConfig.LogLevel, "log-level", "info", "Log level")
	flag.StringVar(&workerConfig.LogFormat, "log-format", "json", "Log format")

	flag.Parse()

	if workerConfig.Concurrency < 1 {
		workerConfig.Concurrency = 1
	}

	return workerConfig
}

func setupLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func generateWorkerID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// gracefulShutdown stops the scheduler and waits for the processor to
// drain the jobs it already claimed.
func gracefulShutdown(ctx context.Context, stopScheduler context.CancelFunc, processorDone <-chan struct{}) error {
	logger.Info("Starting graceful shutdown")

	stopScheduler()

	select {
	case <-processorDone:
		logger.Info("All jobs completed")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout exceeded")
	}
}
