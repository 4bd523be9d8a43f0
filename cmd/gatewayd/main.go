package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dangthobach/data-extraction/constants"
	"github.com/dangthobach/data-extraction/internal/auth"
	"github.com/dangthobach/data-extraction/internal/caller"
	"github.com/dangthobach/data-extraction/internal/common"
	"github.com/dangthobach/data-extraction/internal/gateway"
	"github.com/dangthobach/data-extraction/internal/queue"
	"github.com/dangthobach/data-extraction/internal/ratelimit"
	"github.com/dangthobach/data-extraction/internal/repository"
	"github.com/dangthobach/data-extraction/internal/storage"
)

// gatewayd runs the admission side: credential cache, rate limiter,
// bulkheaded submission service, and the dead-letter consumer.
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

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The limiter fails open and the credential cache falls through to
		// the identity authority, so a cold Redis is not fatal.
		logger.Warn("redis unreachable at startup", "error", err)
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

	publisher, err := queue.NewPublisher(broker, logger)
	if err != nil {
		logger.Error("creating publisher", "error", err)
		os.Exit(1)
	}

	identity := auth.NewHTTPIdentityClient(cfg.Identity.BaseURL, cfg.Identity.Timeout, logger)
	identityCaller := caller.New("identity", caller.Options{
		Timeout:    cfg.Identity.Timeout,
		MaxRetries: 1,
	}, logger)
	credCache := auth.NewCache(
		auth.NewRedisSharedCache(redisClient, cfg.Identity.SharedKeySpace),
		identity, identityCaller,
		auth.CacheOptions{
			LocalMaxSize: cfg.Identity.LocalMaxSize,
			LocalTTL:     cfg.Identity.LocalTTL,
			SharedTTL:    cfg.Identity.SharedTTL,
		}, logger)

	limiter := ratelimit.NewLimiter(
		ratelimit.NewRedisCounterStore(redisClient),
		cfg.RateLimit.DefaultDailyLimit, cfg.RateLimit.BurstLimit, logger)

	jobs := repository.NewJobRepository(pool, logger)
	failedMsgs := repository.NewFailedMessageRepository(pool, logger)

	svc := gateway.NewService(credCache, limiter, blobs, jobs, failedMsgs, publisher, gateway.Config{
		TempBucket:           cfg.Blob.TempBucket,
		MaxConcurrentUploads: cfg.Admission.MaxConcurrentUploads,
		MaxConcurrentSyncs:   cfg.Admission.MaxConcurrentSyncs,
	}, logger)

	dlq := queue.NewDeadLetterHandler(failedMsgs, cfg.Broker.IngestQueue, logger)
	dlqConsumer, err := queue.NewConsumer(broker, queue.DLQName(cfg.Broker.IngestQueue), dlq.Handle, logger)
	if err != nil {
		logger.Error("creating dead-letter consumer", "error", err)
		os.Exit(1)
	}

	logger.Info("gatewayd started")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dlqConsumer.Run(gctx)
	})
	g.Go(func() error {
		return watchDeadLetterBacklog(gctx, svc, failedMsgs, logger)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gatewayd stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("gatewayd shutting down")
}

// watchDeadLetterBacklog periodically reports the unresolved dead-letter count
// so a growing backlog shows up in the logs before anyone goes looking, along
// with the most recent entries awaiting operator resubmission.
func watchDeadLetterBacklog(ctx context.Context, svc *gateway.Service, repo repository.FailedMessageRepository, logger *slog.Logger) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := repo.CountByStatus(ctx, constants.FailedMessagePending)
			if err != nil {
				logger.Warn("dead-letter backlog check failed", "error", err)
				continue
			}
			if n == 0 {
				continue
			}
			logger.Warn("unresolved dead letters pending", "count", n)

			recent, err := svc.ListFailedIngests(ctx, 5)
			if err != nil {
				logger.Warn("listing dead letters failed", "error", err)
				continue
			}
			for _, m := range recent {
				logger.Warn("dead letter awaiting resubmission", "id", m.ID,
					"job_id", m.JobID, "tenant_id", m.TenantID,
					"reason", m.FailureReason, "redeliveries", m.RedeliveryCount)
			}
		}
	}
}
