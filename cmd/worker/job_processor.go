package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/internal/pipeline"
	"github.com/inferloop/modelregistry/pkg/interfaces"
	"github.com/inferloop/modelregistry/pkg/models"
)

// Payload is the content of one inbox file
type Payload struct {
	Type JobType `json:"type"`

	// submit
	Name                string          `json:"name,omitempty"`
	ModelType           string          `json:"model_type,omitempty"`
	Model               json.RawMessage `json:"model,omitempty"`
	TrainingFingerprint string          `json:"training_fingerprint,omitempty"`
	TrainingData        *models.Dataset `json:"training_data,omitempty"`

	// recompute
	RecordID string `json:"record_id,omitempty"`

	Holdout models.Dataset `json:"holdout"`
}

// Recomputer re-evaluates stored records
type Recomputer interface {
	RecomputeMetrics(ctx context.Context, id string, holdout models.Dataset) (*models.ModelRecord, error)
}

type JobProcessor struct {
	config        *WorkerConfig
	logger        *logrus.Logger
	scheduler     *Scheduler
	submitter     *pipeline.Submitter
	recomputer    Recomputer
	codec         interfaces.Codec
	activeJobs    int32
	completedJobs int64
	failedJobs    int64
	wg            sync.WaitGroup
}

func NewJobProcessor(config *WorkerConfig, submitter *pipeline.Submitter, recomputer Recomputer, codec interfaces.Codec, logger *logrus.Logger) *JobProcessor {
	return &JobProcessor{
		config:     config,
		logger:     logger,
		submitter:  submitter,
		recomputer: recomputer,
		codec:      codec,
	}
}

// Start runs the worker pool until the job queue is closed and drained
func (jp *JobProcessor) Start(ctx context.Context) {
	jp.logger.Info("Job processor started")

	for i := 0; i < jp.config.Concurrency; i++ {
		jp.wg.Add(1)
		go jp.worker(ctx, i)
	}

	jp.wg.Wait()
	jp.logger.Info("All workers stopped")
}

func (jp *JobProcessor) SetScheduler(scheduler *Scheduler) {
	jp.scheduler = scheduler
}

func (jp *JobProcessor) worker(ctx context.Context, workerID int) {
	defer jp.wg.Done()

	jp.logger.WithField("worker_id", workerID).Debug("Worker started")

	for job := range jp.scheduler.GetJobQueue() {
		jp.processJob(ctx, job, workerID)
	}

	jp.logger.WithField("worker_id", workerID).Debug("Job queue closed, worker stopping")
}

func (jp *JobProcessor) processJob(ctx context.Context, job *Job, workerID int) {
	atomic.AddInt32(&jp.activeJobs, 1)
	defer atomic.AddInt32(&jp.activeJobs, -1)

	startTime := time.Now()
	logger := jp.logger.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"worker_id": workerID,
	})

	record, err := jp.run(ctx, job)
	duration := time.Since(startTime)

	if err != nil {
		atomic.AddInt64(&jp.failedJobs, 1)
		logger.WithError(err).WithField("duration", duration).Error("Job failed")
		jp.finish(job, failedDir, []byte(err.Error()+"\n"), ".error")
		return
	}

	atomic.AddInt64(&jp.completedJobs, 1)
	logger.WithFields(logrus.Fields{
		"duration": duration,
		"model_id": record.ID,
		"name":     record.Name,
		"version":  record.Version,
	}).Info("Job completed successfully")

	result, _ := json.MarshalIndent(record, "", "  ")
	jp.finish(job, doneDir, result, ".record.json")
}

func (jp *JobProcessor) run(ctx context.Context, job *Job) (*models.ModelRecord, error) {
	content, err := os.ReadFile(job.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}

	var payload Payload
	if err := json.Unmarshal(content, &payload); err != nil {
		return nil, fmt.Errorf("invalid job file: %w", err)
	}

	switch payload.Type {
	case JobTypeSubmit:
		return jp.processSubmitJob(ctx, &payload)
	case JobTypeRecompute:
		return jp.processRecomputeJob(ctx, &payload)
	default:
		return nil, fmt.Errorf("unknown job type: %q", payload.Type)
	}
}

func (jp *JobProcessor) processSubmitJob(ctx context.Context, payload *Payload) (*models.ModelRecord, error) {
	modelType, err := models.ParseModelType(payload.ModelType)
	if err != nil {
		return nil, err
	}

	model, err := jp.codec.Decode(payload.Model)
	if err != nil {
		return nil, err
	}

	return jp.submitter.Submit(ctx, pipeline.TrainingResult{
		Name:                payload.Name,
		ModelType:           modelType,
		Model:               model,
		TrainingFingerprint: payload.TrainingFingerprint,
		TrainingData:        payload.TrainingData,
		Holdout:             payload.Holdout,
	})
}

func (jp *JobProcessor) processRecomputeJob(ctx context.Context, payload *Payload) (*models.ModelRecord, error) {
	if payload.RecordID == "" {
		return nil, fmt.Errorf("record_id is required for recompute jobs")
	}
	return jp.recomputer.RecomputeMetrics(ctx, payload.RecordID, payload.Holdout)
}

// finish moves the job file into dir and writes a sidecar next to it
func (jp *JobProcessor) finish(job *Job, dir string, sidecar []byte, suffix string) {
	base := filepath.Join(jp.config.InboxDir, dir, job.ID)

	if err := os.Rename(job.Path, base+".json"); err != nil {
		jp.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to move job file")
		return
	}
	if err := os.WriteFile(base+suffix, sidecar, 0644); err != nil {
		jp.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to write job result")
	}
}

func (jp *JobProcessor) ActiveJobs() int32 {
	return atomic.LoadInt32(&jp.activeJobs)
}

func (jp *JobProcessor) CompletedJobs() int64 {
	return atomic.LoadInt64(&jp.completedJobs)
}

func (jp *JobProcessor) FailedJobs() int64 {
	return atomic.LoadInt64(&jp.failedJobs)
}
