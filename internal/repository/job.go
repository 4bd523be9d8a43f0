package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dangthobach/data-extraction/constants"
	"github.com/dangthobach/data-extraction/internal/common"
	"github.com/dangthobach/data-extraction/internal/entity"
)

// JobRepository manages job lifecycle rows.
type JobRepository interface {
	Create(ctx context.Context, requestID, tenantID string, kind constants.JobKind, sourcePath string) (*entity.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	// GetByIDForTenant returns common.ErrNotFound for jobs owned by another
	// tenant, never a forbidden-style error.
	GetByIDForTenant(ctx context.Context, id uuid.UUID, tenantID string) (*entity.Job, error)
	ListByTenant(ctx context.Context, tenantID string, page, size int) ([]*entity.Job, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
}

type jobRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewJobRepository(pool *pgxpool.Pool, log *slog.Logger) JobRepository {
	return &jobRepo{pool: pool, log: log}
}

const jobColumns = `id, request_id, tenant_id, kind, status, source_path, progress, error_message, created_at, updated_at, completed_at`

func scanJob(row pgx.Row) (*entity.Job, error) {
	var j entity.Job
	err := row.Scan(&j.ID, &j.RequestID, &j.TenantID, &j.Kind, &j.Status, &j.SourcePath,
		&j.Progress, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *jobRepo) Create(ctx context.Context, requestID, tenantID string, kind constants.JobKind, sourcePath string) (*entity.Job, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, request_id, tenant_id, kind, status, source_path, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, now(), now())
		RETURNING `+jobColumns,
		uuid.New(), requestID, tenantID, kind, constants.JobStatusPending, sourcePath)
	job, err := scanJob(row)
	if err != nil {
		r.log.Error("job create failed", "request_id", requestID, "tenant_id", tenantID, "error", err)
		return nil, err
	}
	r.log.Info("job created", "job_id", job.ID, "request_id", requestID, "tenant_id", tenantID, "kind", kind)
	return job, nil
}

func (r *jobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return job, err
}

func (r *jobRepo) GetByIDForTenant(ctx context.Context, id uuid.UUID, tenantID string) (*entity.Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return job, err
}

func (r *jobRepo) ListByTenant(ctx context.Context, tenantID string, page, size int) ([]*entity.Job, int64, error) {
	// page is 1-based.
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 20
	}

	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM jobs WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, tenantID, size, (page-1)*size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

func (r *jobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		r.log.Error("job status update failed", "job_id", id, "status", status, "error", err)
		return err
	}
	r.log.Debug("job status updated", "job_id", id, "status", status)
	return nil
}

func (r *jobRepo) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE jobs SET progress = $2, updated_at = now() WHERE id = $1`, id, progress)
	return err
}

func (r *jobRepo) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, progress = 100, completed_at = $3, updated_at = now()
		WHERE id = $1`, id, constants.JobStatusCompleted, time.Now())
	if err != nil {
		r.log.Error("job completion failed", "job_id", id, "error", err)
		return err
	}
	r.log.Info("job completed", "job_id", id)
	return nil
}

func (r *jobRepo) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, error_message = $3, completed_at = $4, updated_at = now()
		WHERE id = $1`, id, constants.JobStatusFailed, errorMessage, time.Now())
	if err != nil {
		r.log.Error("job failure update failed", "job_id", id, "error", err)
		return err
	}
	r.log.Warn("job failed", "job_id", id, "error", errorMessage)
	return nil
}
