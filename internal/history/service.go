package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dangthobach/data-extraction/constants"
	"github.com/dangthobach/data-extraction/internal/common"
	"github.com/dangthobach/data-extraction/internal/entity"
	"github.com/dangthobach/data-extraction/internal/repository"
)

// Attempt is the read-model for one ledger row, with the duration rendered
// for humans alongside the raw milliseconds.
type Attempt struct {
	*entity.StageAttempt
	DurationHuman string `json:"duration_human,omitempty"`
}

// Service exposes the append-only ledger queries. Records are never deleted.
type Service struct {
	repo repository.HistoryRepository
	log  *slog.Logger
}

func NewService(repo repository.HistoryRepository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// ByTransaction returns every attempt for a transaction in creation order.
func (s *Service) ByTransaction(ctx context.Context, transactionID string) ([]*Attempt, error) {
	if transactionID == "" {
		return nil, common.NewAppError("HISTORY_INVALID", "transaction id is required", common.ErrValidation)
	}
	attempts, err := s.repo.ByTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return render(attempts), nil
}

// LatestByTransaction returns the most recent attempt for a transaction.
func (s *Service) LatestByTransaction(ctx context.Context, transactionID string) (*Attempt, error) {
	if transactionID == "" {
		return nil, common.NewAppError("HISTORY_INVALID", "transaction id is required", common.ErrValidation)
	}
	a, err := s.repo.LatestByTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return renderOne(a), nil
}

// ByTransactionAndStage returns the attempt for one stage of a transaction.
func (s *Service) ByTransactionAndStage(ctx context.Context, transactionID string, stage constants.Stage) (*Attempt, error) {
	if transactionID == "" {
		return nil, common.NewAppError("HISTORY_INVALID", "transaction id is required", common.ErrValidation)
	}
	if !stage.Valid() {
		return nil, common.NewAppError("HISTORY_INVALID", fmt.Sprintf("unknown stage %q", stage), common.ErrValidation)
	}
	a, err := s.repo.ByTransactionAndStage(ctx, transactionID, stage)
	if err != nil {
		return nil, err
	}
	return renderOne(a), nil
}

// ByStatus returns attempts in a status, newest first.
func (s *Service) ByStatus(ctx context.Context, status constants.StageStatus) ([]*Attempt, error) {
	if !status.Valid() {
		return nil, common.NewAppError("HISTORY_INVALID", fmt.Sprintf("unknown status %q", status), common.ErrValidation)
	}
	attempts, err := s.repo.ByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	return render(attempts), nil
}

func render(attempts []*entity.StageAttempt) []*Attempt {
	out := make([]*Attempt, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, renderOne(a))
	}
	return out
}

func renderOne(a *entity.StageAttempt) *Attempt {
	r := &Attempt{StageAttempt: a}
	if a.DurationMs != nil {
		r.DurationHuman = FormatDuration(*a.DurationMs)
	}
	return r
}

// FormatDuration renders milliseconds as "Nms" below one second, "N.NNs"
// below one minute, and "Mm Ss" beyond.
func FormatDuration(ms int64) string {
	switch {
	case ms < 1000:
		return fmt.Sprintf("%dms", ms)
	case ms < 60000:
		return fmt.Sprintf("%.2fs", float64(ms)/1000.0)
	default:
		minutes := ms / int64(time.Minute/time.Millisecond)
		seconds := (ms % int64(time.Minute/time.Millisecond)) / 1000
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
}
