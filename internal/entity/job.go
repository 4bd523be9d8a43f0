package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dangthobach/data-extraction/constants"
)

// Job represents one admitted ingest request for data transfer between layers.
type Job struct {
	ID           uuid.UUID           `json:"id"`
	RequestID    string              `json:"request_id"`
	TenantID     string              `json:"tenant_id"`
	Kind         constants.JobKind   `json:"kind"`
	Status       constants.JobStatus `json:"status"`
	SourcePath   string              `json:"source_path"`
	Progress     int                 `json:"progress"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
}

// StatusMessage renders a human-readable summary of the job state.
func (j *Job) StatusMessage() string {
	switch j.Status {
	case constants.JobStatusPending:
		return "Job is queued for processing"
	case constants.JobStatusProcessing:
		return fmt.Sprintf("Processing in progress (%d%%)", j.Progress)
	case constants.JobStatusCompleted:
		return "Job completed successfully"
	case constants.JobStatusFailed:
		if j.ErrorMessage != nil {
			return "Job failed: " + *j.ErrorMessage
		}
		return "Job failed: unknown error"
	}
	return string(j.Status)
}
