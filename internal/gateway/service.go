package gateway

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dangthobach/data-extraction/constants"
	"github.com/dangthobach/data-extraction/internal/common"
	"github.com/dangthobach/data-extraction/internal/entity"
	"github.com/dangthobach/data-extraction/internal/queue"
	"github.com/dangthobach/data-extraction/internal/ratelimit"
	"github.com/dangthobach/data-extraction/internal/repository"
	"github.com/dangthobach/data-extraction/internal/storage"
)

// Credentials identifies the calling tenant system.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Admission is the acceptance receipt for a new job.
type Admission struct {
	JobID          uuid.UUID `json:"job_id"`
	RequestID      string    `json:"request_id"`
	RemainingQuota int64     `json:"remaining_quota"`
}

// CredentialLookup is the slice of auth.Cache the gateway needs.
type CredentialLookup interface {
	Lookup(ctx context.Context, clientID, clientSecret string) (*entity.Credential, error)
}

// Admitter is the slice of ratelimit.Limiter the gateway needs.
type Admitter interface {
	Admit(ctx context.Context, tenantID string, dailyCap int) bool
	Remaining(ctx context.Context, tenantID string, dailyCap int) int64
	GetStats(ctx context.Context, tenantID string, dailyCap int) ratelimit.Stats
}

// Service is the admission gateway. Order of operations on every submit:
// authenticate, then consume quota, then persist blob and job, then publish
// with delivery confirmation. Unauthenticated calls never consume quota;
// unconfirmed publishes never leave a PENDING job behind.
type Service struct {
	creds      CredentialLookup
	limiter    Admitter
	blobs      storage.BlobStore
	jobs       repository.JobRepository
	failedMsgs repository.FailedMessageRepository
	publisher  queue.Publisher

	uploadBulkhead *Bulkhead
	syncBulkhead   *Bulkhead
	tempBucket     string
	log            *slog.Logger
}

// Config holds gateway construction parameters.
type Config struct {
	TempBucket           string
	MaxConcurrentUploads int64
	MaxConcurrentSyncs   int64
}

func NewService(creds CredentialLookup, limiter Admitter, blobs storage.BlobStore, jobs repository.JobRepository, failedMsgs repository.FailedMessageRepository, publisher queue.Publisher, cfg Config, log *slog.Logger) *Service {
	return &Service{
		creds:          creds,
		limiter:        limiter,
		blobs:          blobs,
		jobs:           jobs,
		failedMsgs:     failedMsgs,
		publisher:      publisher,
		uploadBulkhead: NewBulkhead("upload bulkhead", cfg.MaxConcurrentUploads),
		syncBulkhead:   NewBulkhead("sync bulkhead", cfg.MaxConcurrentSyncs),
		tempBucket:     cfg.TempBucket,
		log:            log,
	}
}

// SubmitUpload admits a direct file upload and queues it for processing.
func (s *Service) SubmitUpload(ctx context.Context, creds Credentials, fileName string, fileBytes []byte) (*Admission, error) {
	if err := s.uploadBulkhead.Acquire(); err != nil {
		s.log.Warn("upload rejected, bulkhead full")
		return nil, err
	}
	defer s.uploadBulkhead.Release()

	if len(fileBytes) == 0 {
		return nil, common.NewAppError("UPLOAD_EMPTY", "file is required", common.ErrValidation)
	}

	cred, err := s.admit(ctx, creds)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	s.log.Info("upload admitted", "request_id", requestID, "tenant_id", cred.TenantID,
		"file", fileName, "size", len(fileBytes),
		"cache_local", cred.CachedLocal, "cache_shared", cred.CachedShared)

	key := fmt.Sprintf("%s/%s/%s", cred.TenantID, requestID, fileName)
	s3URI, err := s.blobs.Put(ctx, s.tempBucket, key, bytes.NewReader(fileBytes), int64(len(fileBytes)), "application/octet-stream")
	if err != nil {
		s.log.Error("blob store unavailable", "request_id", requestID, "error", err)
		return nil, common.NewAppError("STORE_UNAVAILABLE", "failed to persist upload", common.ErrUnavailable)
	}

	return s.createAndPublish(ctx, cred, requestID, constants.JobKindUpload, s3URI, "")
}

// TriggerSync admits a pulled-sync request and queues it for processing.
// sourceDescriptor is the JSON remote-source configuration.
func (s *Service) TriggerSync(ctx context.Context, creds Credentials, sourceDescriptor string) (*Admission, error) {
	if err := s.syncBulkhead.Acquire(); err != nil {
		s.log.Warn("sync trigger rejected, bulkhead full")
		return nil, err
	}
	defer s.syncBulkhead.Release()

	cred, err := s.admit(ctx, creds)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	s.log.Info("sync admitted", "request_id", requestID, "tenant_id", cred.TenantID)

	return s.createAndPublish(ctx, cred, requestID, constants.JobKindSync, "", sourceDescriptor)
}

// admit authenticates then consumes quota, in that order.
func (s *Service) admit(ctx context.Context, creds Credentials) (*entity.Credential, error) {
	cred, err := s.creds.Lookup(ctx, creds.ClientID, creds.ClientSecret)
	if err != nil {
		return nil, err
	}

	if !s.limiter.Admit(ctx, cred.TenantID, cred.DailyLimit) {
		s.log.Warn("rate limit exceeded", "tenant_id", cred.TenantID)
		return nil, common.NewAppError("RATE_LIMIT_EXCEEDED", "daily request limit exceeded", common.ErrRateLimited)
	}
	return cred, nil
}

func (s *Service) createAndPublish(ctx context.Context, cred *entity.Credential, requestID string, kind constants.JobKind, sourcePath, sourceConfig string) (*Admission, error) {
	job, err := s.jobs.Create(ctx, requestID, cred.TenantID, kind, sourcePath)
	if err != nil {
		return nil, common.NewAppError("JOB_CREATE_FAILED", "failed to persist job", common.ErrUnavailable)
	}

	msg := &queue.IngestMessage{
		JobID:        job.ID.String(),
		RequestID:    requestID,
		TenantID:     cred.TenantID,
		Kind:         kind,
		SourcePath:   sourcePath,
		SourceConfig: sourceConfig,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.publisher.Publish(ctx, msg); err != nil {
		// Better a FAILED job than an orphaned PENDING one nothing will pick
		// up.
		if ferr := s.jobs.MarkFailed(ctx, job.ID, "ingest message not confirmed: "+err.Error()); ferr != nil {
			s.log.Error("failed to mark unpublished job", "job_id", job.ID, "error", ferr)
		}
		return nil, err
	}

	s.log.Info("job accepted", "job_id", job.ID, "request_id", requestID, "kind", kind)
	return &Admission{
		JobID:          job.ID,
		RequestID:      requestID,
		RemainingQuota: s.limiter.Remaining(ctx, cred.TenantID, cred.DailyLimit),
	}, nil
}
