package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dangthobach/data-extraction/constants"
	"github.com/dangthobach/data-extraction/internal/common"
	"github.com/dangthobach/data-extraction/internal/entity"
)

// HistoryRepository stores the append-only stage attempt trail.
//
// Begin inserts an IN_PROGRESS row and returns its id; FinishSuccess and
// FinishFailure move that row to its single terminal status. Rows are never
// deleted and terminal rows are never rewritten.
type HistoryRepository interface {
	Begin(ctx context.Context, transactionID *string, stage constants.Stage, sourceURI *string, request json.RawMessage) (int64, error)
	FinishSuccess(ctx context.Context, id int64, transactionID *string, response json.RawMessage, durationMs int64) error
	FinishFailure(ctx context.Context, id int64, errorMessage string, errorDetail *string, durationMs int64) error

	ByTransaction(ctx context.Context, transactionID string) ([]*entity.StageAttempt, error)
	LatestByTransaction(ctx context.Context, transactionID string) (*entity.StageAttempt, error)
	ByTransactionAndStage(ctx context.Context, transactionID string, stage constants.Stage) (*entity.StageAttempt, error)
	ByStatus(ctx context.Context, status constants.StageStatus) ([]*entity.StageAttempt, error)
}

type historyRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewHistoryRepository(pool *pgxpool.Pool, log *slog.Logger) HistoryRepository {
	return &historyRepo{pool: pool, log: log}
}

const historyColumns = `id, transaction_id, stage, status, source_uri, request_payload, response_payload, error_message, error_detail, duration_ms, created_at, updated_at`

func scanAttempt(row pgx.Row) (*entity.StageAttempt, error) {
	var a entity.StageAttempt
	err := row.Scan(&a.ID, &a.TransactionID, &a.Stage, &a.Status, &a.SourceURI,
		&a.RequestPayload, &a.ResponsePayload, &a.ErrorMessage, &a.ErrorDetail,
		&a.DurationMs, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *historyRepo) Begin(ctx context.Context, transactionID *string, stage constants.Stage, sourceURI *string, request json.RawMessage) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO stage_attempts (transaction_id, stage, status, source_uri, request_payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id`,
		transactionID, stage, constants.StageStatusInProgress, sourceURI, request).Scan(&id)
	if err != nil {
		r.log.Error("stage attempt begin failed", "stage", stage, "error", err)
		return 0, err
	}
	r.log.Info("stage attempt started", "attempt_id", id, "stage", stage, "transaction_id", strOrEmpty(transactionID))
	return id, nil
}

func (r *historyRepo) FinishSuccess(ctx context.Context, id int64, transactionID *string, response json.RawMessage, durationMs int64) error {
	// The status guard keeps terminal rows immutable even on redelivery races.
	tag, err := r.pool.Exec(ctx, `
		UPDATE stage_attempts
		SET status = $2, transaction_id = COALESCE($3, transaction_id),
		    response_payload = $4, duration_ms = $5, updated_at = now()
		WHERE id = $1 AND status = $6`,
		id, constants.StageStatusSuccess, transactionID, response, durationMs, constants.StageStatusInProgress)
	if err != nil {
		r.log.Error("stage attempt finish(SUCCESS) failed", "attempt_id", id, "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		r.log.Warn("stage attempt already terminal, success not applied", "attempt_id", id)
		return nil
	}
	r.log.Info("stage attempt succeeded", "attempt_id", id, "duration_ms", durationMs)
	return nil
}

func (r *historyRepo) FinishFailure(ctx context.Context, id int64, errorMessage string, errorDetail *string, durationMs int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE stage_attempts
		SET status = $2, error_message = $3, error_detail = $4, duration_ms = $5, updated_at = now()
		WHERE id = $1 AND status = $6`,
		id, constants.StageStatusFailed, errorMessage, errorDetail, durationMs, constants.StageStatusInProgress)
	if err != nil {
		r.log.Error("stage attempt finish(FAILED) failed", "attempt_id", id, "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		r.log.Warn("stage attempt already terminal, failure not applied", "attempt_id", id)
		return nil
	}
	r.log.Warn("stage attempt failed", "attempt_id", id, "error", errorMessage)
	return nil
}

func (r *historyRepo) ByTransaction(ctx context.Context, transactionID string) ([]*entity.StageAttempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+historyColumns+` FROM stage_attempts
		WHERE transaction_id = $1
		ORDER BY created_at ASC, id ASC`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

func (r *historyRepo) LatestByTransaction(ctx context.Context, transactionID string) (*entity.StageAttempt, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+historyColumns+` FROM stage_attempts
		WHERE transaction_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, transactionID)
	a, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return a, err
}

func (r *historyRepo) ByTransactionAndStage(ctx context.Context, transactionID string, stage constants.Stage) (*entity.StageAttempt, error) {
	// At most one attempt per stage per transaction under normal flow; on
	// redelivery the most recent attempt wins.
	row := r.pool.QueryRow(ctx, `
		SELECT `+historyColumns+` FROM stage_attempts
		WHERE transaction_id = $1 AND stage = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, transactionID, stage)
	a, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return a, err
}

func (r *historyRepo) ByStatus(ctx context.Context, status constants.StageStatus) ([]*entity.StageAttempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+historyColumns+` FROM stage_attempts
		WHERE status = $1
		ORDER BY created_at DESC, id DESC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

func collectAttempts(rows pgx.Rows) ([]*entity.StageAttempt, error) {
	var attempts []*entity.StageAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
