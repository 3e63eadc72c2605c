package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/talentboard/supportbot/internal/domain"
)

const syncJobColumns = `id, source_type, source_id, action, status, retries, error, created_at, processed_at`

type SyncJobRepository struct {
	db dbtx
}

func NewSyncJobRepository(pool *pgxpool.Pool) *SyncJobRepository {
	return &SyncJobRepository{db: pool}
}

func NewSyncJobRepositoryWithTx(tx pgx.Tx) *SyncJobRepository {
	return &SyncJobRepository{db: tx}
}

func (r *SyncJobRepository) Create(ctx context.Context, job *domain.SyncJob) error {
	if err := domain.ValidateSyncJob(job); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid sync job", err)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO sync_jobs (`+syncJobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.SourceType, nullableString(job.SourceID), job.Action, job.Status, job.Retries,
		nullableString(job.Error), job.CreatedAt, job.ProcessedAt,
	)
	return err
}

func (r *SyncJobRepository) GetByID(ctx context.Context, id string) (*domain.SyncJob, error) {
	job, err := scanSyncJob(r.db.QueryRow(ctx,
		`SELECT `+syncJobColumns+` FROM sync_jobs WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, domain.ErrSyncJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ClaimPending moves up to limit pending jobs to processing and returns them.
// Rows locked by another worker are skipped.
func (r *SyncJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.SyncJob, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM sync_jobs
			 WHERE status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE sync_jobs
		 SET status = $3,
		     error = NULL,
		     processed_at = NULL
		 FROM cte
		 WHERE sync_jobs.id = cte.id
		 RETURNING sync_jobs.id, sync_jobs.source_type, sync_jobs.source_id, sync_jobs.action, sync_jobs.status,
		           sync_jobs.retries, sync_jobs.error, sync_jobs.created_at, sync_jobs.processed_at`,
		domain.SyncJobStatusPending, limit, domain.SyncJobStatusProcessing,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.SyncJob
	for rows.Next() {
		job, err := scanSyncJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *SyncJobRepository) UpdateStatus(ctx context.Context, id string, status domain.SyncJobStatus, errMsg string) error {
	var processedAt *time.Time
	if status == domain.SyncJobStatusCompleted || status == domain.SyncJobStatusFailed {
		now := time.Now().UTC()
		processedAt = &now
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE sync_jobs SET status = $1, error = $2, processed_at = $3 WHERE id = $4`,
		status, nullableString(errMsg), processedAt, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSyncJobNotFound
	}
	return nil
}

func (r *SyncJobRepository) IncrementRetries(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE sync_jobs SET retries = retries + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSyncJobNotFound
	}
	return nil
}

func scanSyncJob(row pgx.Row) (*domain.SyncJob, error) {
	var job domain.SyncJob
	var sourceID, errMsg pgtype.Text
	if err := row.Scan(&job.ID, &job.SourceType, &sourceID, &job.Action, &job.Status, &job.Retries,
		&errMsg, &job.CreatedAt, &job.ProcessedAt); err != nil {
		return nil, err
	}
	if sourceID.Valid {
		job.SourceID = sourceID.String
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	return &job, nil
}
