package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dangthobach/data-extraction/constants"
	"github.com/dangthobach/data-extraction/internal/caller"
	"github.com/dangthobach/data-extraction/internal/docai"
	"github.com/dangthobach/data-extraction/internal/repository"
)

// StageOutcome is the result of one stage attempt.
type StageOutcome struct {
	TransactionID string
	Status        constants.StageStatus
	Response      json.RawMessage
	Err           error
}

// Orchestrator drives the four ordered stages for one transaction. A stage is
// attempted only when the previous one succeeded; any failure aborts the
// transaction. The orchestrator never retries a failed stage itself; the
// wrapped Caller applies the bounded per-call retry.
type Orchestrator struct {
	client  docai.Client
	history repository.HistoryRepository
	call    *caller.Caller
	log     *slog.Logger
}

func NewOrchestrator(client docai.Client, history repository.HistoryRepository, call *caller.Caller, log *slog.Logger) *Orchestrator {
	return &Orchestrator{client: client, history: history, call: call, log: log}
}

// RunStage executes one stage for a transaction. transactionID must be empty
// for SPLIT_RENAME (the stage assigns it) and set for every later stage.
// Every invocation yields exactly one terminal ledger row, whatever happens.
func (o *Orchestrator) RunStage(ctx context.Context, transactionID string, stage constants.Stage, input string) StageOutcome {
	switch stage {
	case constants.StageSplitRename:
		return o.runSplitRename(ctx, input)
	case constants.StageCheckCompleteness, constants.StageExtractData, constants.StageCrossCheck:
		return o.runTransactionStage(ctx, transactionID, stage)
	}
	return StageOutcome{Status: constants.StageStatusFailed, Err: fmt.Errorf("unknown stage %q", stage)}
}

// Process runs the full stage sequence for one stored file. It returns the
// transaction id when SPLIT_RENAME succeeded, and an error when any stage
// failed. Pipeline status is reconstructed from the ledger, not returned.
func (o *Orchestrator) Process(ctx context.Context, s3URI string) (string, error) {
	o.log.Info("pipeline started", "s3_uri", s3URI)

	out := o.runSplitRename(ctx, s3URI)
	if out.Err != nil {
		return "", fmt.Errorf("%s: %w", constants.StageSplitRename, out.Err)
	}
	transactionID := out.TransactionID
	o.log.Info("transaction assigned", "transaction_id", transactionID, "s3_uri", s3URI)

	for _, stage := range []constants.Stage{
		constants.StageCheckCompleteness,
		constants.StageExtractData,
		constants.StageCrossCheck,
	} {
		out = o.runTransactionStage(ctx, transactionID, stage)
		if out.Err != nil {
			o.log.Warn("transaction aborted", "transaction_id", transactionID, "stage", stage, "error", out.Err)
			return transactionID, fmt.Errorf("%s: %w", stage, out.Err)
		}
	}

	o.log.Info("pipeline completed", "transaction_id", transactionID)
	return transactionID, nil
}

func (o *Orchestrator) runSplitRename(ctx context.Context, s3URI string) StageOutcome {
	req := docai.SplitRenameRequest{S3URI: s3URI}
	reqPayload, _ := json.Marshal(req)

	attemptID, err := o.history.Begin(ctx, nil, constants.StageSplitRename, &s3URI, reqPayload)
	if err != nil {
		// Without a ledger row the attempt must not proceed: the trail is
		// durability, not best-effort logging.
		return StageOutcome{Status: constants.StageStatusFailed, Err: fmt.Errorf("recording attempt: %w", err)}
	}

	started := time.Now()
	var resp *docai.SplitRenameResponse
	callErr := o.call.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = o.client.SplitRename(ctx, req)
		return err
	})
	elapsed := time.Since(started).Milliseconds()

	if callErr != nil {
		o.finishFailure(ctx, attemptID, callErr, elapsed)
		return StageOutcome{Status: constants.StageStatusFailed, Err: callErr}
	}

	respPayload, _ := json.Marshal(resp)
	txn := resp.TransactionID
	o.finishSuccess(ctx, attemptID, &txn, respPayload, elapsed)

	return StageOutcome{
		TransactionID: txn,
		Status:        constants.StageStatusSuccess,
		Response:      respPayload,
	}
}

func (o *Orchestrator) runTransactionStage(ctx context.Context, transactionID string, stage constants.Stage) StageOutcome {
	if transactionID == "" {
		return StageOutcome{Status: constants.StageStatusFailed,
			Err: fmt.Errorf("stage %s requires a transaction id", stage)}
	}

	req := docai.StageRequest{TransactionID: transactionID}
	reqPayload, _ := json.Marshal(req)

	attemptID, err := o.history.Begin(ctx, &transactionID, stage, nil, reqPayload)
	if err != nil {
		return StageOutcome{TransactionID: transactionID, Status: constants.StageStatusFailed,
			Err: fmt.Errorf("recording attempt: %w", err)}
	}

	started := time.Now()
	var respPayload json.RawMessage
	callErr := o.call.Do(ctx, func(ctx context.Context) error {
		resp, err := o.dispatch(ctx, stage, req)
		if err != nil {
			return err
		}
		respPayload, _ = json.Marshal(resp)
		return nil
	})
	elapsed := time.Since(started).Milliseconds()

	if callErr != nil {
		o.finishFailure(ctx, attemptID, callErr, elapsed)
		return StageOutcome{TransactionID: transactionID, Status: constants.StageStatusFailed, Err: callErr}
	}

	o.finishSuccess(ctx, attemptID, &transactionID, respPayload, elapsed)
	return StageOutcome{
		TransactionID: transactionID,
		Status:        constants.StageStatusSuccess,
		Response:      respPayload,
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, stage constants.Stage, req docai.StageRequest) (any, error) {
	switch stage {
	case constants.StageCheckCompleteness:
		return o.client.CheckCompleteness(ctx, req)
	case constants.StageExtractData:
		return o.client.ExtractData(ctx, req)
	case constants.StageCrossCheck:
		return o.client.CrossCheck(ctx, req)
	}
	return nil, fmt.Errorf("unknown stage %q", stage)
}

// finishSuccess and finishFailure write with a background-derived context so
// the terminal ledger row lands even when the stage context is already done.

func (o *Orchestrator) finishSuccess(ctx context.Context, attemptID int64, transactionID *string, response json.RawMessage, elapsed int64) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.history.FinishSuccess(wctx, attemptID, transactionID, response, elapsed); err != nil {
		o.log.Error("ledger success write failed", "attempt_id", attemptID, "error", err)
	}
}

func (o *Orchestrator) finishFailure(ctx context.Context, attemptID int64, cause error, elapsed int64) {
	detail := fmt.Sprintf("%+v", cause)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.history.FinishFailure(wctx, attemptID, cause.Error(), &detail, elapsed); err != nil {
		o.log.Error("ledger failure write failed", "attempt_id", attemptID, "error", err)
	}
}
