package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangthobach/data-extraction/constants"
	"github.com/dangthobach/data-extraction/internal/common"
)

func validUpload() IngestMessage {
	return IngestMessage{
		JobID:      "a3f1c1de-9f1b-4a57-8d36-2f1f1a2b3c4d",
		RequestID:  "req-1",
		TenantID:   "tenant-a",
		Kind:       constants.JobKindUpload,
		SourcePath: "s3://ingest-temp/tenant-a/req-1/file.pdf",
		CreatedAt:  time.Now().UTC(),
	}
}

func TestIngestMessageValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*IngestMessage)
		ok     bool
	}{
		{"valid upload", func(m *IngestMessage) {}, true},
		{"valid sync", func(m *IngestMessage) {
			m.Kind = constants.JobKindSync
			m.SourcePath = ""
			m.SourceConfig = `{"host":"sftp.example.com"}`
		}, true},
		{"missing job id", func(m *IngestMessage) { m.JobID = "" }, false},
		{"missing tenant", func(m *IngestMessage) { m.TenantID = "" }, false},
		{"unknown kind", func(m *IngestMessage) { m.Kind = "REPLAY" }, false},
		{"upload without source path", func(m *IngestMessage) { m.SourcePath = "" }, false},
		{"sync without source config", func(m *IngestMessage) {
			m.Kind = constants.JobKindSync
			m.SourceConfig = ""
		}, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := validUpload()
			c.mutate(&m)
			err := m.Validate()
			if c.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrValidation)
			}
		})
	}
}

func TestDecodeIngestMessage(t *testing.T) {
	body := []byte(`{"job_id":"a3f1c1de-9f1b-4a57-8d36-2f1f1a2b3c4d","request_id":"req-1","tenant_id":"tenant-a","kind":"UPLOAD","source_path":"s3://b/k"}`)

	m, err := DecodeIngestMessage(body)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", m.TenantID)
	assert.Equal(t, constants.JobKindUpload, m.Kind)
}

func TestDecodeIngestMessageMalformed(t *testing.T) {
	_, err := DecodeIngestMessage([]byte(`{not json`))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestDecodeIngestMessageInvalidShape(t *testing.T) {
	_, err := DecodeIngestMessage([]byte(`{"job_id":"x","tenant_id":"t","kind":"SYNC"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)
}
