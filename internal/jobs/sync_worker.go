package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/metrics"
	"github.com/talentboard/supportbot/internal/service"
	"github.com/talentboard/supportbot/internal/telemetry"
	"go.uber.org/zap"
)

const (
	// MaxRetries is the maximum number of attempts for a failed job
	MaxRetries = 3

	DefaultBatchSize  = 10
	DefaultJobTimeout = 5 * time.Minute
)

// SyncJobRepository persists queued sync jobs.
type SyncJobRepository interface {
	// ClaimPending moves up to limit pending jobs to processing and returns them.
	ClaimPending(ctx context.Context, limit int) ([]*domain.SyncJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.SyncJobStatus, errMsg string) error
	IncrementRetries(ctx context.Context, id string) error
}

// Synchronizer is the part of the sync service a job can drive.
type Synchronizer interface {
	SyncAll(ctx context.Context, sourceType domain.SourceType) (*service.SyncReport, error)
	SyncOne(ctx context.Context, sourceType domain.SourceType, id string) (*service.SyncResult, error)
	RemoveSource(ctx context.Context, sourceType domain.SourceType, id string) (int64, error)
}

// SyncWorker runs queued sync jobs.
type SyncWorker struct {
	repo       SyncJobRepository
	sync       Synchronizer
	batchSize  int
	jobTimeout time.Duration
	log        *zap.Logger
}

func NewSyncWorker(repo SyncJobRepository, sync Synchronizer, jobTimeout time.Duration, log *zap.Logger) *SyncWorker {
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncWorker{
		repo:       repo,
		sync:       sync,
		batchSize:  DefaultBatchSize,
		jobTimeout: jobTimeout,
		log:        log,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *SyncWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.ClaimPending(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("failed to claim pending jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	w.log.Debug("processing sync jobs", zap.Int("count", len(jobs)))
	for _, job := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.processJob(ctx, job); err != nil {
			w.log.Error("sync job bookkeeping failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	return nil
}

func (w *SyncWorker) processJob(ctx context.Context, job *domain.SyncJob) error {
	ctx, span := telemetry.StartTransaction(ctx, "sync_job."+string(job.Action), "job.sync")
	defer span.End()

	log := w.log.With(
		zap.String("job_id", job.ID),
		zap.String("source_type", string(job.SourceType)),
		zap.String("source_id", job.SourceID),
		zap.String("action", string(job.Action)),
	)

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	err := w.run(jobCtx, job)
	cancel()

	if err != nil {
		return w.handleJobFailure(ctx, job, err, log)
	}

	if err := w.repo.UpdateStatus(ctx, job.ID, domain.SyncJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}
	metrics.SyncJobsTotal.WithLabelValues(string(domain.SyncJobStatusCompleted)).Inc()
	log.Info("sync job completed")
	return nil
}

func (w *SyncWorker) run(ctx context.Context, job *domain.SyncJob) error {
	switch job.Action {
	case domain.SyncActionSync:
		if job.SourceID == "" {
			_, err := w.sync.SyncAll(ctx, job.SourceType)
			return err
		}
		_, err := w.sync.SyncOne(ctx, job.SourceType, job.SourceID)
		return err
	case domain.SyncActionRemove:
		_, err := w.sync.RemoveSource(ctx, job.SourceType, job.SourceID)
		return err
	default:
		return fmt.Errorf("unknown sync action %q", job.Action)
	}
}

// handleJobFailure requeues the job until it has been attempted MaxRetries times.
func (w *SyncWorker) handleJobFailure(ctx context.Context, job *domain.SyncJob, jobErr error, log *zap.Logger) error {
	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	attempt := job.Retries + 1
	if attempt >= MaxRetries {
		log.Error("sync job failed permanently", zap.Int32("attempt", attempt), zap.Error(jobErr))
		telemetry.CaptureError(ctx, jobErr)
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.SyncJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		metrics.SyncJobsTotal.WithLabelValues(string(domain.SyncJobStatusFailed)).Inc()
		return nil
	}

	log.Warn("sync job will be retried", zap.Int32("attempt", attempt), zap.Int("max_retries", MaxRetries), zap.Error(jobErr))
	errMsg := fmt.Sprintf("retry %d: %v", attempt, jobErr)
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.SyncJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}
	return nil
}
