package entity

import (
	"time"

	"github.com/dangthobach/data-extraction/constants"
)

// FailedMessage is a dead-lettered queue message persisted for analysis.
// Terminal sink only: resubmission is an operator action, never automatic.
type FailedMessage struct {
	ID              int64                         `json:"id"`
	JobID           string                        `json:"job_id"`
	TenantID        string                        `json:"tenant_id"`
	OriginalQueue   string                        `json:"original_queue"`
	FailureReason   string                        `json:"failure_reason"`
	RedeliveryCount int                           `json:"redelivery_count"`
	Payload         string                        `json:"payload"`
	Status          constants.FailedMessageStatus `json:"status"`
	CreatedAt       time.Time                     `json:"created_at"`
}
