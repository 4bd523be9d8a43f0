package entity

import (
	"encoding/json"
	"time"

	"github.com/dangthobach/data-extraction/constants"
)

// StageAttempt is one row of the append-only processing audit trail.
// A row is created IN_PROGRESS when a stage call starts and moved to exactly
// one terminal status when it ends; terminal rows are never rewritten.
type StageAttempt struct {
	ID              int64                 `json:"id"`
	TransactionID   *string               `json:"transaction_id,omitempty"`
	Stage           constants.Stage       `json:"stage"`
	Status          constants.StageStatus `json:"status"`
	SourceURI       *string               `json:"source_uri,omitempty"`
	RequestPayload  json.RawMessage       `json:"request_payload,omitempty"`
	ResponsePayload json.RawMessage       `json:"response_payload,omitempty"`
	ErrorMessage    *string               `json:"error_message,omitempty"`
	ErrorDetail     *string               `json:"error_detail,omitempty"`
	DurationMs      *int64                `json:"duration_ms,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}
