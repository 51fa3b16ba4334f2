package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"viewtracker/internal/metrics"
	"viewtracker/internal/views"
)

const (
	defaultRetentionBatchSize = 1000
	retentionBatchPause       = 100 * time.Millisecond
)

// RetentionJob deletes view detail rows older than the configured horizon.
// Counters are never touched.
type RetentionJob struct {
	db        *gorm.DB
	logger    *slog.Logger
	options   views.OptionsProvider
	details   *views.DetailStore
	now       func() time.Time
	batchSize int
}

// RetentionOption customises a RetentionJob.
type RetentionOption func(*RetentionJob)

// WithRetentionClock overrides the time the cutoff is computed from.
func WithRetentionClock(now func() time.Time) RetentionOption {
	return func(j *RetentionJob) {
		j.now = now
	}
}

// WithRetentionBatchSize overrides how many rows one delete statement removes.
func WithRetentionBatchSize(n int) RetentionOption {
	return func(j *RetentionJob) {
		if n > 0 {
			j.batchSize = n
		}
	}
}

func NewRetentionJob(db *gorm.DB, logger *slog.Logger, options views.OptionsProvider, opts ...RetentionOption) *RetentionJob {
	j := &RetentionJob{
		db:        db,
		logger:    logger,
		options:   options,
		details:   views.NewDetailStore(db),
		now:       time.Now,
		batchSize: defaultRetentionBatchSize,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run sweeps with the data retention option currently configured. Cancelling
// ctx stops the sweep between batches.
func (j *RetentionJob) Run(ctx context.Context) error {
	opts, err := j.options.Options(ctx)
	if err != nil {
		return err
	}
	_, err = j.Sweep(ctx, opts.RetentionDays)
	return err
}

// Sweep removes detail rows viewed more than horizonDays days ago and returns
// how many were deleted. A horizon of zero keeps everything.
func (j *RetentionJob) Sweep(ctx context.Context, horizonDays int) (int64, error) {
	if horizonDays <= 0 {
		j.logger.Debug("Data retention disabled, keeping all view details")
		return 0, nil
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cutoff := j.now().UTC().AddDate(0, 0, -horizonDays)

	j.logger.Info("Starting cleanup of expired view details",
		slog.Int("retention_days", horizonDays),
		slog.Time("cutoff_date", cutoff))

	countToDelete, err := j.details.CountOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("Failed to count expired view details", slog.Any("error", err))
		return 0, err
	}

	if countToDelete == 0 {
		j.logger.Debug("No expired view details to clean up")
		return 0, nil
	}

	// Delete in batches to avoid locking the database for too long
	totalDeleted := int64(0)
	db := j.db.WithContext(ctx)

	for {
		var deleted int64
		err := sqlite.PerformWrite(j.logger, db, func(tx *gorm.DB) error {
			n, err := j.details.DeleteOlderThanBatch(tx, cutoff, j.batchSize)
			deleted = n
			return err
		})
		if err != nil {
			j.logger.Error("Failed to delete expired view details",
				slog.Any("error", err),
				slog.Int64("deleted_so_far", totalDeleted))
			metrics.RecordRetentionDeleted(totalDeleted)
			return totalDeleted, err
		}

		totalDeleted += deleted

		if deleted < int64(j.batchSize) {
			break
		}
		if err := ctx.Err(); err != nil {
			metrics.RecordRetentionDeleted(totalDeleted)
			return totalDeleted, err
		}

		// Small delay between batches to prevent database lock contention
		time.Sleep(retentionBatchPause)
	}

	metrics.RecordRetentionDeleted(totalDeleted)
	j.logger.Info("Cleaned up expired view details",
		slog.Int64("deleted_count", totalDeleted),
		slog.Int("retention_days", horizonDays))

	return totalDeleted, nil
}
