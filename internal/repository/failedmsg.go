package repository

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dangthobach/data-extraction/constants"
	"github.com/dangthobach/data-extraction/internal/entity"
)

// FailedMessageRepository persists dead-lettered messages for analysis.
type FailedMessageRepository interface {
	Save(ctx context.Context, msg *entity.FailedMessage) (int64, error)
	CountByStatus(ctx context.Context, status constants.FailedMessageStatus) (int64, error)
	ListPending(ctx context.Context, limit int) ([]*entity.FailedMessage, error)
}

type failedMsgRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewFailedMessageRepository(pool *pgxpool.Pool, log *slog.Logger) FailedMessageRepository {
	return &failedMsgRepo{pool: pool, log: log}
}

func (r *failedMsgRepo) Save(ctx context.Context, msg *entity.FailedMessage) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO failed_messages (job_id, tenant_id, original_queue, failure_reason, redelivery_count, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id`,
		msg.JobID, msg.TenantID, msg.OriginalQueue, msg.FailureReason,
		msg.RedeliveryCount, msg.Payload, msg.Status).Scan(&id)
	if err != nil {
		r.log.Error("failed message save failed", "job_id", msg.JobID, "error", err)
		return 0, err
	}
	r.log.Info("failed message persisted", "id", id, "job_id", msg.JobID, "reason", msg.FailureReason)
	return id, nil
}

func (r *failedMsgRepo) CountByStatus(ctx context.Context, status constants.FailedMessageStatus) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM failed_messages WHERE status = $1`, status).Scan(&n)
	return n, err
}

func (r *failedMsgRepo) ListPending(ctx context.Context, limit int) ([]*entity.FailedMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_id, tenant_id, original_queue, failure_reason, redelivery_count, payload, status, created_at
		FROM failed_messages
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`, constants.FailedMessagePending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*entity.FailedMessage
	for rows.Next() {
		var m entity.FailedMessage
		if err := rows.Scan(&m.ID, &m.JobID, &m.TenantID, &m.OriginalQueue, &m.FailureReason,
			&m.RedeliveryCount, &m.Payload, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}
