package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangthobach/data-extraction/constants"
	"github.com/dangthobach/data-extraction/internal/caller"
	"github.com/dangthobach/data-extraction/internal/docai"
	"github.com/dangthobach/data-extraction/internal/entity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDocAI struct {
	mu    sync.Mutex
	calls []constants.Stage

	splitErr        error
	completenessErr error
	extractErr      error
	crossCheckErr   error
	transactionID   string
}

func (f *fakeDocAI) record(stage constants.Stage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, stage)
}

func (f *fakeDocAI) SplitRename(_ context.Context, req docai.SplitRenameRequest) (*docai.SplitRenameResponse, error) {
	f.record(constants.StageSplitRename)
	if f.splitErr != nil {
		return nil, f.splitErr
	}
	txn := f.transactionID
	if txn == "" {
		txn = "txn-123"
	}
	return &docai.SplitRenameResponse{TransactionID: txn, SubDocumentsProcessed: 3}, nil
}

func (f *fakeDocAI) CheckCompleteness(_ context.Context, req docai.StageRequest) (*docai.CheckCompletenessResponse, error) {
	f.record(constants.StageCheckCompleteness)
	if f.completenessErr != nil {
		return nil, f.completenessErr
	}
	resp := &docai.CheckCompletenessResponse{}
	resp.CheckResult.Status = "COMPLETE"
	return resp, nil
}

func (f *fakeDocAI) ExtractData(_ context.Context, req docai.StageRequest) (*docai.ExtractDataResponse, error) {
	f.record(constants.StageExtractData)
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return &docai.ExtractDataResponse{Status: "OK"}, nil
}

func (f *fakeDocAI) CrossCheck(_ context.Context, req docai.StageRequest) (*docai.CrossCheckResponse, error) {
	f.record(constants.StageCrossCheck)
	if f.crossCheckErr != nil {
		return nil, f.crossCheckErr
	}
	return &docai.CrossCheckResponse{Consistent: true}, nil
}

// memHistory is an in-memory HistoryRepository honoring the append-only
// contract: terminal rows are never rewritten.
type memHistory struct {
	mu       sync.Mutex
	nextID   int64
	attempts map[int64]*entity.StageAttempt
	beginErr error
}

func newMemHistory() *memHistory {
	return &memHistory{nextID: 1, attempts: make(map[int64]*entity.StageAttempt)}
}

func (m *memHistory) Begin(_ context.Context, transactionID *string, stage constants.Stage, sourceURI *string, request json.RawMessage) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beginErr != nil {
		return 0, m.beginErr
	}
	id := m.nextID
	m.nextID++
	m.attempts[id] = &entity.StageAttempt{
		ID:             id,
		TransactionID:  transactionID,
		Stage:          stage,
		Status:         constants.StageStatusInProgress,
		SourceURI:      sourceURI,
		RequestPayload: request,
		CreatedAt:      time.Now(),
	}
	return id, nil
}

func (m *memHistory) FinishSuccess(_ context.Context, id int64, transactionID *string, response json.RawMessage, durationMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok || a.Status != constants.StageStatusInProgress {
		return errors.New("attempt not in progress")
	}
	a.Status = constants.StageStatusSuccess
	if transactionID != nil {
		a.TransactionID = transactionID
	}
	a.ResponsePayload = response
	a.DurationMs = &durationMs
	return nil
}

func (m *memHistory) FinishFailure(_ context.Context, id int64, errorMessage string, errorDetail *string, durationMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok || a.Status != constants.StageStatusInProgress {
		return errors.New("attempt not in progress")
	}
	a.Status = constants.StageStatusFailed
	a.ErrorMessage = &errorMessage
	a.ErrorDetail = errorDetail
	a.DurationMs = &durationMs
	return nil
}

func (m *memHistory) ByTransaction(_ context.Context, transactionID string) ([]*entity.StageAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.StageAttempt
	for id := int64(1); id < m.nextID; id++ {
		a := m.attempts[id]
		if a.TransactionID != nil && *a.TransactionID == transactionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memHistory) LatestByTransaction(ctx context.Context, transactionID string) (*entity.StageAttempt, error) {
	all, _ := m.ByTransaction(ctx, transactionID)
	if len(all) == 0 {
		return nil, errors.New("not found")
	}
	return all[len(all)-1], nil
}

func (m *memHistory) ByTransactionAndStage(ctx context.Context, transactionID string, stage constants.Stage) (*entity.StageAttempt, error) {
	all, _ := m.ByTransaction(ctx, transactionID)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Stage == stage {
			return all[i], nil
		}
	}
	return nil, errors.New("not found")
}

func (m *memHistory) ByStatus(_ context.Context, status constants.StageStatus) ([]*entity.StageAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.StageAttempt
	for id := m.nextID - 1; id >= 1; id-- {
		if m.attempts[id].Status == status {
			out = append(out, m.attempts[id])
		}
	}
	return out, nil
}

func (m *memHistory) all() []*entity.StageAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.StageAttempt, 0, len(m.attempts))
	for id := int64(1); id < m.nextID; id++ {
		out = append(out, m.attempts[id])
	}
	return out
}

func newTestOrchestrator(client docai.Client, history *memHistory) *Orchestrator {
	call := caller.New("docai", caller.Options{MaxRetries: 0}, discardLogger())
	return NewOrchestrator(client, history, call, discardLogger())
}

func TestProcessRunsAllStagesInOrder(t *testing.T) {
	client := &fakeDocAI{}
	history := newMemHistory()
	o := newTestOrchestrator(client, history)

	txn, err := o.Process(context.Background(), "s3://raw/t1/job/file.pdf")
	require.NoError(t, err)
	assert.Equal(t, "txn-123", txn)

	assert.Equal(t, []constants.Stage{
		constants.StageSplitRename,
		constants.StageCheckCompleteness,
		constants.StageExtractData,
		constants.StageCrossCheck,
	}, client.calls)

	attempts := history.all()
	require.Len(t, attempts, 4)
	for i, a := range attempts {
		assert.Equal(t, constants.Stages[i], a.Stage)
		assert.Equal(t, constants.StageStatusSuccess, a.Status)
		require.NotNil(t, a.TransactionID)
		assert.Equal(t, "txn-123", *a.TransactionID)
		assert.NotNil(t, a.DurationMs)
	}
}

func TestProcessAbortsOnStageFailure(t *testing.T) {
	client := &fakeDocAI{completenessErr: errors.New("documents missing")}
	history := newMemHistory()
	o := newTestOrchestrator(client, history)

	txn, err := o.Process(context.Background(), "s3://raw/t1/job/file.pdf")
	require.Error(t, err)
	assert.Equal(t, "txn-123", txn)
	assert.Contains(t, err.Error(), string(constants.StageCheckCompleteness))

	// Later stages were never attempted.
	assert.Equal(t, []constants.Stage{
		constants.StageSplitRename,
		constants.StageCheckCompleteness,
	}, client.calls)

	attempts := history.all()
	require.Len(t, attempts, 2)
	assert.Equal(t, constants.StageStatusSuccess, attempts[0].Status)
	assert.Equal(t, constants.StageStatusFailed, attempts[1].Status)
	require.NotNil(t, attempts[1].ErrorMessage)
	assert.Contains(t, *attempts[1].ErrorMessage, "documents missing")
}

func TestProcessSplitRenameFailureRecordsOneAttempt(t *testing.T) {
	client := &fakeDocAI{splitErr: errors.New("corrupt archive")}
	history := newMemHistory()
	o := newTestOrchestrator(client, history)

	txn, err := o.Process(context.Background(), "s3://raw/t1/job/file.pdf")
	require.Error(t, err)
	assert.Empty(t, txn)

	attempts := history.all()
	require.Len(t, attempts, 1)
	assert.Equal(t, constants.StageSplitRename, attempts[0].Stage)
	assert.Equal(t, constants.StageStatusFailed, attempts[0].Status)
	assert.Nil(t, attempts[0].TransactionID)
}

func TestRunStageRequiresTransactionForLaterStages(t *testing.T) {
	client := &fakeDocAI{}
	o := newTestOrchestrator(client, newMemHistory())

	out := o.RunStage(context.Background(), "", constants.StageExtractData, "")
	require.Error(t, out.Err)
	assert.Equal(t, constants.StageStatusFailed, out.Status)
	assert.Empty(t, client.calls)
}

func TestRunStageUnknownStage(t *testing.T) {
	o := newTestOrchestrator(&fakeDocAI{}, newMemHistory())

	out := o.RunStage(context.Background(), "txn-123", constants.Stage("REDACT"), "")
	require.Error(t, out.Err)
	assert.Equal(t, constants.StageStatusFailed, out.Status)
}

func TestStageNotAttemptedWhenLedgerWriteFails(t *testing.T) {
	client := &fakeDocAI{}
	history := newMemHistory()
	history.beginErr = errors.New("db down")
	o := newTestOrchestrator(client, history)

	_, err := o.Process(context.Background(), "s3://raw/t1/job/file.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording attempt")
	assert.Empty(t, client.calls)
}

func TestRunStageRecordsPayloads(t *testing.T) {
	client := &fakeDocAI{}
	history := newMemHistory()
	o := newTestOrchestrator(client, history)

	out := o.RunStage(context.Background(), "txn-9", constants.StageCheckCompleteness, "")
	require.NoError(t, out.Err)
	assert.Equal(t, constants.StageStatusSuccess, out.Status)

	a, err := history.ByTransactionAndStage(context.Background(), "txn-9", constants.StageCheckCompleteness)
	require.NoError(t, err)
	assert.JSONEq(t, `{"transaction_id":"txn-9"}`, string(a.RequestPayload))
	assert.Contains(t, string(a.ResponsePayload), "COMPLETE")
}
