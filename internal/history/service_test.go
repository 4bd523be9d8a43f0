package history

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangthobach/data-extraction/constants"
	"github.com/dangthobach/data-extraction/internal/common"
	"github.com/dangthobach/data-extraction/internal/entity"
	"github.com/dangthobach/data-extraction/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeHistoryRepo struct {
	repository.HistoryRepository
	attempts []*entity.StageAttempt
}

func (f *fakeHistoryRepo) ByTransaction(context.Context, string) ([]*entity.StageAttempt, error) {
	return f.attempts, nil
}

func (f *fakeHistoryRepo) LatestByTransaction(context.Context, string) (*entity.StageAttempt, error) {
	return f.attempts[len(f.attempts)-1], nil
}

func (f *fakeHistoryRepo) ByTransactionAndStage(context.Context, string, constants.Stage) (*entity.StageAttempt, error) {
	return f.attempts[0], nil
}

func (f *fakeHistoryRepo) ByStatus(context.Context, constants.StageStatus) ([]*entity.StageAttempt, error) {
	return f.attempts, nil
}

func ms(v int64) *int64 { return &v }

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{0, "0ms"},
		{1, "1ms"},
		{999, "999ms"},
		{1000, "1.00s"},
		{1234, "1.23s"},
		{59999, "60.00s"},
		{60000, "1m 0s"},
		{61000, "1m 1s"},
		{125000, "2m 5s"},
		{3600000, "60m 0s"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatDuration(c.ms), "%dms", c.ms)
	}
}

func TestByTransactionRendersDurations(t *testing.T) {
	repo := &fakeHistoryRepo{attempts: []*entity.StageAttempt{
		{ID: 1, Stage: constants.StageSplitRename, Status: constants.StageStatusSuccess, DurationMs: ms(850)},
		{ID: 2, Stage: constants.StageCheckCompleteness, Status: constants.StageStatusSuccess, DurationMs: ms(2500)},
		{ID: 3, Stage: constants.StageExtractData, Status: constants.StageStatusInProgress},
	}}
	s := NewService(repo, discardLogger())

	attempts, err := s.ByTransaction(context.Background(), "txn-1")
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, "850ms", attempts[0].DurationHuman)
	assert.Equal(t, "2.50s", attempts[1].DurationHuman)
	assert.Empty(t, attempts[2].DurationHuman)
}

func TestByTransactionRequiresTransactionID(t *testing.T) {
	s := NewService(&fakeHistoryRepo{}, discardLogger())

	_, err := s.ByTransaction(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = s.LatestByTransaction(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestByTransactionAndStageValidatesStage(t *testing.T) {
	repo := &fakeHistoryRepo{attempts: []*entity.StageAttempt{
		{ID: 1, Stage: constants.StageCrossCheck, Status: constants.StageStatusSuccess, DurationMs: ms(90000)},
	}}
	s := NewService(repo, discardLogger())

	_, err := s.ByTransactionAndStage(context.Background(), "txn-1", constants.Stage("NOPE"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)

	a, err := s.ByTransactionAndStage(context.Background(), "txn-1", constants.StageCrossCheck)
	require.NoError(t, err)
	assert.Equal(t, "1m 30s", a.DurationHuman)
}

func TestByStatusValidatesStatus(t *testing.T) {
	s := NewService(&fakeHistoryRepo{}, discardLogger())

	_, err := s.ByStatus(context.Background(), constants.StageStatus("MAYBE"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = s.ByStatus(context.Background(), constants.StageStatusFailed)
	assert.NoError(t, err)
}
