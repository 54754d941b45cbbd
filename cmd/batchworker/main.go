// Command batchworker runs the NATS-backed "batch" pool processor:
// best-effort execution for low-priority submissions that don't need
// the Redis Streams "container" pool's at-least-once guarantees.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/arvancloud/codearena/internal/blob"
	"github.com/arvancloud/codearena/internal/config"
	"github.com/arvancloud/codearena/internal/harness"
	"github.com/arvancloud/codearena/internal/judge"
	"github.com/arvancloud/codearena/internal/metrics"
	"github.com/arvancloud/codearena/internal/observability"
	"github.com/arvancloud/codearena/internal/queue/natsqueue"
	"github.com/arvancloud/codearena/internal/retry"
	"github.com/arvancloud/codearena/internal/runtime/docker"
	"github.com/arvancloud/codearena/internal/store"
	"github.com/arvancloud/codearena/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.GetLoggerFromEnv(cfg.LogLevel)
	defer logger.Sync()
	logger.Info("starting batch worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	blobStore, err := blob.New(blob.Config{Backend: cfg.BlobBackend, File: blob.FileConfig{BaseDir: cfg.BlobBaseDir}})
	if err != nil {
		logger.Fatal("failed to initialize blob store", zap.Error(err))
	}

	rt, err := docker.NewClient(cfg.DockerHost)
	if err != nil {
		logger.Fatal("failed to initialize runtime client", zap.Error(err))
	}
	defer rt.Close()

	batchQueue, err := natsqueue.New(cfg.NATSURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to nats", zap.Error(err))
	}
	defer batchQueue.Close()

	m := metrics.New()
	subs := store.NewStore(db)
	h := harness.New(rt, harness.Config{}, logger)

	retryPolicy := retry.Policy{
		MaxAttempts: cfg.MaxJobAttempts,
		BaseDelay:   time.Duration(cfg.RetryBackoffBaseMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.RetryBackoffMaxMs) * time.Millisecond,
	}

	processor := worker.NewBatchProcessor(batchQueue, h, blobStore, subs, m, retryPolicy, judge.DefaultConfig(), logger, worker.DefaultBatchConfig())

	go func() {
		if err := processor.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("batch processor exited with error", zap.Error(err))
		}
	}()

	logger.Info("batch worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down batch worker")
	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("batch worker stopped")
}
