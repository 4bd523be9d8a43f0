package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dangthobach/data-extraction/internal/caller"
	"github.com/dangthobach/data-extraction/internal/common"
	"github.com/dangthobach/data-extraction/internal/docai"
	"github.com/dangthobach/data-extraction/internal/ingest"
	"github.com/dangthobach/data-extraction/internal/pipeline"
	"github.com/dangthobach/data-extraction/internal/queue"
	"github.com/dangthobach/data-extraction/internal/remote"
	"github.com/dangthobach/data-extraction/internal/repository"
	"github.com/dangthobach/data-extraction/internal/storage"
)

// executord runs the processing side: ingest consumer, sync fan-out, pipeline
// orchestrator, and the history ledger writes.
func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	if err := repository.HealthCheck(ctx, pool, cfg.Database, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	blobs, err := storage.NewMinioStore(cfg.Blob, logger)
	if err != nil {
		logger.Error("initializing blob store", "error", err)
		os.Exit(1)
	}
	if err := storage.EnsureBuckets(ctx, blobs, cfg.Blob); err != nil {
		logger.Error("ensuring buckets", "error", err)
		os.Exit(1)
	}

	broker, err := queue.Connect(cfg.Broker, logger)
	if err != nil {
		logger.Error("connecting to broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	docaiClient := docai.NewHTTPClient(cfg.DocAI.BaseURL, cfg.DocAI.ConnectTimeout, cfg.DocAI.ReadTimeout, logger)
	docaiCaller := caller.New("docai", caller.Options{
		Timeout:    cfg.DocAI.ConnectTimeout + cfg.DocAI.ReadTimeout,
		MaxRetries: uint64(cfg.DocAI.MaxRetries),
	}, logger)

	historyRepo := repository.NewHistoryRepository(pool, logger)
	orchestrator := pipeline.NewOrchestrator(docaiClient, historyRepo, docaiCaller, logger)

	jobs := repository.NewJobRepository(pool, logger)
	connector := remote.NewSFTPConnector(cfg.Sync.SFTPTimeout, logger)

	worker, err := ingest.NewWorker(jobs, blobs, connector, orchestrator, ingest.Config{
		RawBucket: cfg.Blob.RawBucket,
		PoolSize:  cfg.Sync.PoolSize,
		Defaults: remote.SourceConfig{
			Host:       cfg.Sync.SFTPHost,
			Port:       cfg.Sync.SFTPPort,
			Username:   cfg.Sync.SFTPUser,
			Password:   cfg.Sync.SFTPPass,
			RemotePath: cfg.Sync.SFTPDir,
		},
	}, logger)
	if err != nil {
		logger.Error("creating ingest worker", "error", err)
		os.Exit(1)
	}
	defer worker.Release()

	consumer, err := queue.NewConsumer(broker, cfg.Broker.IngestQueue, worker.Handle, logger)
	if err != nil {
		logger.Error("creating ingest consumer", "error", err)
		os.Exit(1)
	}

	logger.Info("executord started", "queue", cfg.Broker.IngestQueue)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("ingest consumer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("executord shutting down")
}
