package gateway

import (
	"context"

	"github.com/google/uuid"

	"github.com/dangthobach/data-extraction/internal/entity"
	"github.com/dangthobach/data-extraction/internal/ratelimit"
)

// JobView is the tenant-facing job read model.
type JobView struct {
	*entity.Job
	StatusMessage string `json:"status_message"`
}

// JobPage is one page of a tenant's jobs, newest first.
type JobPage struct {
	Jobs  []*JobView `json:"jobs"`
	Page  int        `json:"page"`
	Size  int        `json:"size"`
	Total int64      `json:"total"`
}

// GetJobStatus returns one job scoped to the authenticated tenant. Jobs owned
// by other tenants read as not found: existence is never leaked.
func (s *Service) GetJobStatus(ctx context.Context, jobID uuid.UUID, tenantID string) (*JobView, error) {
	job, err := s.jobs.GetByIDForTenant(ctx, jobID, tenantID)
	if err != nil {
		return nil, err
	}
	return &JobView{Job: job, StatusMessage: job.StatusMessage()}, nil
}

// ListJobs returns a page of the tenant's jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, tenantID string, page, size int) (*JobPage, error) {
	jobs, total, err := s.jobs.ListByTenant(ctx, tenantID, page, size)
	if err != nil {
		return nil, err
	}
	views := make([]*JobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, &JobView{Job: j, StatusMessage: j.StatusMessage()})
	}
	return &JobPage{Jobs: views, Page: page, Size: size, Total: total}, nil
}

// GetQuota returns the tenant's rate-limit usage snapshot.
func (s *Service) GetQuota(ctx context.Context, tenantID string, dailyLimit int) ratelimit.Stats {
	return s.limiter.GetStats(ctx, tenantID, dailyLimit)
}

// ListFailedIngests returns unresolved dead-lettered messages, newest first.
// Operator surface: resubmission is a manual decision, never automatic.
func (s *Service) ListFailedIngests(ctx context.Context, limit int) ([]*entity.FailedMessage, error) {
	return s.failedMsgs.ListPending(ctx, limit)
}
