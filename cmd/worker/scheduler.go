package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type JobType string

const (
	JobTypeSubmit    JobType = "submit"
	JobTypeRecompute JobType = "recompute"
)

// Inbox subdirectories. A file is claimed by renaming it into processing,
// so two workers sharing an inbox never process the same file.
const (
	processingDir = "processing"
	doneDir       = "done"
	failedDir     = "failed"
)

type Job struct {
	ID        string
	Path      string
	ClaimedAt time.Time
}

type Scheduler struct {
	config   *WorkerConfig
	logger   *logrus.Logger
	jobQueue chan *Job
	mu       sync.RWMutex
	running  bool
}

func NewScheduler(config *WorkerConfig, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		config:   config,
		logger:   logger,
		jobQueue: make(chan *Job, config.Concurrency*2),
	}
}

// Prepare creates the inbox layout and returns files left in processing
// by an earlier run to the inbox. It must run before any worker sharing
// the inbox starts claiming.
func (s *Scheduler) Prepare() error {
	for _, dir := range []string{"", processingDir, doneDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(s.config.InboxDir, dir), 0755); err != nil {
			return err
		}
	}
	return s.recoverStranded()
}

func (s *Scheduler) recoverStranded() error {
	entries, err := os.ReadDir(filepath.Join(s.config.InboxDir, processingDir))
	if err != nil {
		return err
	}

	recovered := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		target := filepath.Join(s.config.InboxDir, entry.Name())
		if _, err := os.Stat(target); err == nil {
			s.logger.WithField("file", entry.Name()).Warn("Stranded job shadowed by a newer inbox file, leaving it in processing")
			continue
		}
		if err := os.Rename(filepath.Join(s.config.InboxDir, processingDir, entry.Name()), target); err != nil {
			return err
		}
		recovered++
	}

	if recovered > 0 {
		s.logger.WithField("count", recovered).Warn("Returned stranded jobs to the inbox")
	}
	return nil
}

// Start polls the inbox until ctx is canceled or Stop is called, then
// closes the job queue. It is the only sender on the queue.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.jobQueue)

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.logger.WithField("inbox", s.config.InboxDir).Info("Scheduler started")

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.pollJobs(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopping due to context cancellation")
			return
		case <-ticker.C:
			if !s.isRunning() {
				s.logger.Info("Scheduler stopped")
				return
			}
			s.pollJobs(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.logger.Info("Scheduler stop requested")
}

func (s *Scheduler) GetJobQueue() <-chan *Job {
	return s.jobQueue
}

func (s *Scheduler) isRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) pollJobs(ctx context.Context) {
	files, err := s.pendingFiles()
	if err != nil {
		s.logger.WithError(err).Error("Failed to list inbox")
		return
	}

	queued := 0
	for _, name := range files {
		if len(s.jobQueue) >= cap(s.jobQueue) {
			s.logger.Debug("Job queue is full, deferring remaining files")
			break
		}

		if ctx.Err() != nil {
			return
		}

		job, err := s.claim(name)
		if err != nil {
			s.logger.WithError(err).WithField("file", name).Debug("File claimed elsewhere")
			continue
		}

		if !s.enqueue(ctx, job) {
			return
		}
		queued++
	}

	if queued > 0 {
		s.logger.WithField("count", queued).Info("Jobs claimed and queued")
	}
}

// enqueue hands job to the workers. On cancellation the claim is undone.
func (s *Scheduler) enqueue(ctx context.Context, job *Job) bool {
	select {
	case s.jobQueue <- job:
		s.logger.WithField("job_id", job.ID).Debug("Job queued")
		return true
	case <-ctx.Done():
		s.release(job)
		return false
	}
}

func (s *Scheduler) release(job *Job) {
	target := filepath.Join(s.config.InboxDir, filepath.Base(job.Path))
	if err := os.Rename(job.Path, target); err != nil {
		s.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to return claimed job to the inbox")
		return
	}
	s.logger.WithField("job_id", job.ID).Debug("Returned claimed job to the inbox")
}

func (s *Scheduler) pendingFiles() ([]string, error) {
	entries, err := os.ReadDir(s.config.InboxDir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

func (s *Scheduler) claim(name string) (*Job, error) {
	target := filepath.Join(s.config.InboxDir, processingDir, name)
	if err := os.Rename(filepath.Join(s.config.InboxDir, name), target); err != nil {
		return nil, err
	}
	return &Job{
		ID:        strings.TrimSuffix(name, ".json"),
		Path:      target,
		ClaimedAt: time.Now(),
	}, nil
}
