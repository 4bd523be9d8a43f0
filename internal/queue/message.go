package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dangthobach/data-extraction/constants"
	"github.com/dangthobach/data-extraction/internal/common"
)

// IngestMessage is the typed ingest queue payload. It is validated at the
// deserialization boundary so malformed payloads fail before any side effect.
type IngestMessage struct {
	JobID        string            `json:"job_id"`
	RequestID    string            `json:"request_id"`
	TenantID     string            `json:"tenant_id"`
	Kind         constants.JobKind `json:"kind"`
	SourcePath   string            `json:"source_path,omitempty"`
	SourceConfig string            `json:"source_config,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Validate checks the shape invariants per message kind.
func (m *IngestMessage) Validate() error {
	if m.JobID == "" {
		return common.NewAppError("MSG_INVALID", "job_id is required", common.ErrValidation)
	}
	if m.TenantID == "" {
		return common.NewAppError("MSG_INVALID", "tenant_id is required", common.ErrValidation)
	}
	if !m.Kind.Valid() {
		return common.NewAppError("MSG_INVALID", fmt.Sprintf("unknown kind %q", m.Kind), common.ErrValidation)
	}
	if m.Kind == constants.JobKindUpload && m.SourcePath == "" {
		return common.NewAppError("MSG_INVALID", "source_path is required for UPLOAD", common.ErrValidation)
	}
	if m.Kind == constants.JobKindSync && m.SourceConfig == "" {
		return common.NewAppError("MSG_INVALID", "source_config is required for SYNC", common.ErrValidation)
	}
	return nil
}

// DecodeIngestMessage parses and validates a raw queue payload.
func DecodeIngestMessage(body []byte) (*IngestMessage, error) {
	var m IngestMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, common.NewAppError("MSG_MALFORMED", "unparseable ingest payload", common.ErrValidation)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
