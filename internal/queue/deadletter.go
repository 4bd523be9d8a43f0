package queue

import (
	"context"
	"log/slog"

	"github.com/dangthobach/data-extraction/constants"
	"github.com/dangthobach/data-extraction/internal/entity"
	"github.com/dangthobach/data-extraction/internal/repository"
)

// DeadLetterHandler persists messages that exhausted their redelivery budget.
// It is a terminal sink: it never re-publishes; resubmission is an operator
// action against the failed_messages table.
type DeadLetterHandler struct {
	repo          repository.FailedMessageRepository
	originalQueue string
	log           *slog.Logger
}

func NewDeadLetterHandler(repo repository.FailedMessageRepository, originalQueue string, log *slog.Logger) *DeadLetterHandler {
	return &DeadLetterHandler{repo: repo, originalQueue: originalQueue, log: log}
}

// Handle is the queue.Handler for the dead-letter queue.
func (h *DeadLetterHandler) Handle(ctx context.Context, d Delivery) error {
	reason, count := parseXDeath(d.Headers)

	jobID, tenantID := "", ""
	if msg, err := DecodeIngestMessage(d.Body); err == nil {
		jobID, tenantID = msg.JobID, msg.TenantID
	} else {
		h.log.Warn("dead letter payload undecodable, persisting raw", "error", err)
	}

	h.log.Warn("received dead letter", "job_id", jobID, "tenant_id", tenantID,
		"reason", reason, "redeliveries", count)

	id, err := h.repo.Save(ctx, &entity.FailedMessage{
		JobID:           jobID,
		TenantID:        tenantID,
		OriginalQueue:   h.originalQueue,
		FailureReason:   reason,
		RedeliveryCount: count,
		Payload:         string(d.Body),
		Status:          constants.FailedMessagePending,
	})
	if err != nil {
		// Nack is the retry path: the broker redelivers the dead letter and
		// the insert runs again once the database recovers.
		return err
	}

	h.log.Info("dead letter persisted", "id", id, "job_id", jobID)
	return nil
}

// parseXDeath extracts the last failure reason and redelivery count from the
// broker's x-death header, defaulting to "unknown"/0 when absent.
func parseXDeath(headers map[string]any) (string, int) {
	reason, count := "unknown", 0

	deaths, ok := headers["x-death"].([]any)
	if !ok || len(deaths) == 0 {
		return reason, count
	}
	first, ok := deaths[0].(map[string]any)
	if !ok {
		return reason, count
	}

	if r, ok := first["reason"].(string); ok && r != "" {
		reason = r
	}
	switch c := first["count"].(type) {
	case int64:
		count = int(c)
	case int32:
		count = int(c)
	case int:
		count = c
	default:
		count = 1
	}
	return reason, count
}
