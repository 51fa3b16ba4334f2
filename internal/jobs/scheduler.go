package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler is responsible for running background jobs
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	interval  time.Duration

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	retentionJob    *RetentionJob
	retentionTicker *time.Ticker
	done            chan struct{}
}

// NewScheduler creates a scheduler running the retention job every interval.
func NewScheduler(retentionJob *RetentionJob, interval time.Duration, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	return &Scheduler{
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		enabled:      true,
		interval:     interval,
		retentionJob: retentionJob,
	}
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")
	s.isRunning = true
	s.startRetentionJob()

	s.logger.Info("Background jobs started", slog.Duration("retention_interval", s.interval))
	return nil
}

func (s *Scheduler) startRetentionJob() {
	s.retentionTicker = time.NewTicker(s.interval)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Running initial retention sweep...")
		runRetention := func() error { return s.retentionJob.Run(s.ctx) }
		s.executeJobSafely("retention", runRetention)

		for {
			select {
			case <-s.retentionTicker.C:
				s.executeJobSafely("retention", runRetention)
			case <-s.ctx.Done():
				s.logger.Info("Retention job stopped")
				return
			}
		}
	}()
}

// Stop halts all background jobs and waits for a running sweep to return.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.retentionTicker != nil {
		s.retentionTicker.Stop()
	}

	s.cancel()
	if s.done != nil {
		<-s.done
	}
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}
