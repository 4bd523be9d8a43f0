package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/dangthobach/data-extraction/constants"
	"github.com/dangthobach/data-extraction/internal/common"
	"github.com/dangthobach/data-extraction/internal/queue"
	"github.com/dangthobach/data-extraction/internal/remote"
	"github.com/dangthobach/data-extraction/internal/repository"
	"github.com/dangthobach/data-extraction/internal/storage"
)

// Runner starts the pipeline for one stored file. Satisfied by
// pipeline.Orchestrator.
type Runner interface {
	Process(ctx context.Context, s3URI string) (string, error)
}

// FileOutcome is the collected result of one per-file sync task.
type FileOutcome struct {
	RemotePath    string
	TransactionID string
	Err           error
}

// Worker consumes ingest messages. UPLOAD sources are forwarded straight to
// the pipeline; SYNC sources are resolved and fanned out one task per file on
// a bounded pool. One file's failure never aborts its siblings.
type Worker struct {
	jobs      repository.JobRepository
	blobs     storage.BlobStore
	connector remote.Connector
	runner    Runner
	pool      *ants.Pool

	rawBucket string
	defaults  remote.SourceConfig
	log       *slog.Logger
}

// Config holds worker construction parameters.
type Config struct {
	RawBucket string
	PoolSize  int
	Defaults  remote.SourceConfig
}

func NewWorker(jobs repository.JobRepository, blobs storage.BlobStore, connector remote.Connector, runner Runner, cfg Config, log *slog.Logger) (*Worker, error) {
	size := cfg.PoolSize
	if size <= 0 {
		size = 64
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("creating sync pool: %w", err)
	}
	return &Worker{
		jobs:      jobs,
		blobs:     blobs,
		connector: connector,
		runner:    runner,
		pool:      pool,
		rawBucket: cfg.RawBucket,
		defaults:  cfg.Defaults,
		log:       log,
	}, nil
}

// Release tears down the fan-out pool.
func (w *Worker) Release() {
	w.pool.Release()
}

// Handle is the queue.Handler for the ingest queue.
func (w *Worker) Handle(ctx context.Context, d queue.Delivery) error {
	msg, err := queue.DecodeIngestMessage(d.Body)
	if err != nil {
		// Malformed payloads cannot succeed on redelivery; nack toward the
		// dead-letter queue.
		w.log.Error("undecodable ingest message", "error", err)
		return err
	}

	w.log.Info("ingest message received", "job_id", msg.JobID, "kind", msg.Kind,
		"tenant_id", msg.TenantID, "redelivered", d.Redelivered)

	jobID, err := uuid.Parse(msg.JobID)
	if err != nil {
		return common.NewAppError("MSG_INVALID", "job_id is not a UUID", common.ErrValidation)
	}

	if err := w.jobs.UpdateStatus(ctx, jobID, constants.JobStatusProcessing); err != nil {
		// Redelivery will retry the whole message; processing without a
		// status write is preferable to dropping the work, so log and go on.
		w.log.Warn("job status update failed", "job_id", jobID, "error", err)
	}

	switch msg.Kind {
	case constants.JobKindUpload:
		return w.handleUpload(ctx, jobID, msg)
	case constants.JobKindSync:
		return w.handleSync(ctx, jobID, msg)
	}
	return common.NewAppError("MSG_INVALID", fmt.Sprintf("unknown kind %q", msg.Kind), common.ErrValidation)
}

func (w *Worker) handleUpload(ctx context.Context, jobID uuid.UUID, msg *queue.IngestMessage) error {
	s3URI := msg.SourcePath
	if !strings.HasPrefix(s3URI, "s3://") {
		s3URI = storage.S3URI(w.rawBucket, msg.SourcePath)
	}

	txn, err := w.runner.Process(ctx, s3URI)
	if err != nil {
		w.markFailed(ctx, jobID, err.Error())
		// The pipeline already recorded the failed attempt; acking here
		// avoids re-running stages with external side effects.
		return nil
	}

	w.log.Info("upload processed", "job_id", jobID, "transaction_id", txn)
	w.markCompleted(ctx, jobID)
	return nil
}

func (w *Worker) handleSync(ctx context.Context, jobID uuid.UUID, msg *queue.IngestMessage) error {
	cfg, err := remote.ParseSourceConfig(msg.SourceConfig, w.defaults)
	if err != nil {
		w.markFailed(ctx, jobID, err.Error())
		return err
	}

	source, err := w.connector.Connect(ctx, cfg)
	if err != nil {
		w.markFailed(ctx, jobID, "connecting to source: "+err.Error())
		return err
	}
	defer source.Close()

	files, err := source.List(ctx, cfg.RemotePath, cfg.FilePattern)
	if err != nil {
		w.markFailed(ctx, jobID, "listing source files: "+err.Error())
		return err
	}

	w.log.Info("sync resolved", "job_id", jobID, "files", len(files))
	if len(files) == 0 {
		w.markCompleted(ctx, jobID)
		return nil
	}

	outcomes := w.fanOut(ctx, jobID, msg.TenantID, source, files)
	w.rollUp(ctx, jobID, outcomes)
	return nil
}

// fanOut runs one task per file on the pool and collects every outcome. Tasks
// are independent: each downloads, stages into the raw bucket, and runs the
// pipeline for its single file.
func (w *Worker) fanOut(ctx context.Context, jobID uuid.UUID, tenantID string, source remote.Source, files []string) []FileOutcome {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make([]FileOutcome, 0, len(files))
		done     int
	)

	record := func(o FileOutcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		done++
		progress := done * 100 / len(files)
		mu.Unlock()

		// The lock only guards the outcome bookkeeping; the progress write is
		// a database call and sibling completions must not queue behind it.
		if err := w.jobs.UpdateProgress(ctx, jobID, progress); err != nil {
			w.log.Warn("progress update failed", "job_id", jobID, "error", err)
		}
	}

	for _, file := range files {
		file := file
		wg.Add(1)
		err := w.pool.Submit(func() {
			defer wg.Done()
			txn, err := w.processFile(ctx, jobID, tenantID, source, file)
			if err != nil {
				w.log.Error("sync file failed", "job_id", jobID, "file", file, "error", err)
			} else {
				w.log.Info("sync file processed", "job_id", jobID, "file", file, "transaction_id", txn)
			}
			record(FileOutcome{RemotePath: file, TransactionID: txn, Err: err})
		})
		if err != nil {
			wg.Done()
			record(FileOutcome{RemotePath: file, Err: fmt.Errorf("scheduling task: %w", err)})
		}
	}

	wg.Wait()
	return outcomes
}

func (w *Worker) processFile(ctx context.Context, jobID uuid.UUID, tenantID string, source remote.Source, remotePath string) (string, error) {
	name := path.Base(remotePath)

	size, err := source.Size(ctx, remotePath)
	if err != nil {
		return "", fmt.Errorf("sizing %s: %w", remotePath, err)
	}

	body, err := source.Download(ctx, remotePath)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", remotePath, err)
	}
	defer body.Close()

	key := fmt.Sprintf("%s/%s/%s", tenantID, jobID, name)
	s3URI, err := w.blobs.Put(ctx, w.rawBucket, key, body, size, "application/octet-stream")
	if err != nil {
		return "", fmt.Errorf("staging %s: %w", remotePath, err)
	}

	return w.runner.Process(ctx, s3URI)
}

// rollUp folds per-file outcomes into the parent job status: COMPLETED only
// when every file succeeded, FAILED otherwise with the failures summarized.
func (w *Worker) rollUp(ctx context.Context, jobID uuid.UUID, outcomes []FileOutcome) {
	var failed []string
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", path.Base(o.RemotePath), o.Err))
		}
	}

	if len(failed) == 0 {
		w.markCompleted(ctx, jobID)
		return
	}
	w.markFailed(ctx, jobID,
		fmt.Sprintf("%d/%d files failed: %s", len(failed), len(outcomes), strings.Join(failed, "; ")))
}

func (w *Worker) markCompleted(ctx context.Context, jobID uuid.UUID) {
	if err := w.jobs.MarkCompleted(ctx, jobID); err != nil {
		w.log.Error("job completion write failed", "job_id", jobID, "error", err)
	}
}

func (w *Worker) markFailed(ctx context.Context, jobID uuid.UUID, reason string) {
	if err := w.jobs.MarkFailed(ctx, jobID, reason); err != nil {
		w.log.Error("job failure write failed", "job_id", jobID, "error", err)
	}
}
