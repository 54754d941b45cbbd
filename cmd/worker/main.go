// Command worker runs the Worker Supervisor for one pool: it claims
// jobs from the Job Queue, executes them in the sandbox, judges the
// result, and writes it back.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arvancloud/codearena/internal/blob"
	"github.com/arvancloud/codearena/internal/config"
	"github.com/arvancloud/codearena/internal/harness"
	"github.com/arvancloud/codearena/internal/judge"
	"github.com/arvancloud/codearena/internal/metrics"
	"github.com/arvancloud/codearena/internal/observability"
	"github.com/arvancloud/codearena/internal/queue/redisqueue"
	"github.com/arvancloud/codearena/internal/retry"
	"github.com/arvancloud/codearena/internal/runtime/docker"
	"github.com/arvancloud/codearena/internal/store"
	"github.com/arvancloud/codearena/internal/sweeper"
	"github.com/arvancloud/codearena/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.GetLoggerFromEnv(cfg.LogLevel)
	defer logger.Sync()
	logger.Info("starting worker supervisor", zap.String("pool", cfg.PoolName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to parse redis url", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	blobStore, err := blob.New(blob.Config{Backend: cfg.BlobBackend, File: blob.FileConfig{BaseDir: cfg.BlobBaseDir}})
	if err != nil {
		logger.Fatal("failed to initialize blob store", zap.Error(err))
	}

	rt, err := docker.NewClient(cfg.DockerHost)
	if err != nil {
		logger.Fatal("failed to initialize runtime client", zap.Error(err))
	}
	defer rt.Close()

	queueCfg := redisqueue.DefaultConfig(cfg.PoolName, hostConsumerID(cfg.PoolName))
	queue, err := redisqueue.New(ctx, redisClient, queueCfg)
	if err != nil {
		logger.Fatal("failed to initialize job queue", zap.Error(err))
	}

	m := metrics.New()
	if cfg.MetricsEnabled {
		shutdownOtel, meter, err := observability.SetupOpenTelemetry("codearena-worker", m.Registry, logger)
		if err != nil {
			logger.Warn("failed to initialize OpenTelemetry bridge", zap.Error(err))
		} else {
			defer shutdownOtel()
			if err := observability.RegisterQueueDepthGauge(meter, cfg.PoolName, queue.Depth); err != nil {
				logger.Warn("failed to register queue depth gauge", zap.Error(err))
			}
		}
	}

	subs := store.NewStore(db)
	h := harness.New(rt, harness.Config{}, logger)
	breaker := metrics.NewCircuitBreaker(cfg.PoolName, metrics.DefaultBreakerConfig(), m)

	retryPolicy := retry.Policy{
		MaxAttempts: cfg.MaxJobAttempts,
		BaseDelay:   time.Duration(cfg.RetryBackoffBaseMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.RetryBackoffMaxMs) * time.Millisecond,
	}

	supervisorCfg := worker.DefaultConfig()
	supervisorCfg.MaxConcurrentJobs = cfg.MaxConcurrentJobs
	supervisorCfg.ShutdownDrain = cfg.ShutdownDrain
	supervisorCfg.PoolName = cfg.PoolName

	supervisor := worker.New(queue, h, blobStore, subs, m, breaker, retryPolicy, judge.DefaultConfig(), logger, supervisorCfg)

	sweep := sweeper.New(subs, queue, logger, sweeper.DefaultConfig())
	go sweep.Run(ctx)

	healthChecker := worker.NewHealthChecker(redisClient, db, rt, blobStore)
	healthSrv := startHealthServer(cfg.HealthPort, healthChecker, logger)

	go func() {
		if err := supervisor.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("worker supervisor exited with error", zap.Error(err))
		}
	}()

	logger.Info("worker supervisor started", zap.String("pool", cfg.PoolName), zap.Int("max_concurrent_jobs", cfg.MaxConcurrentJobs))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker supervisor")
	supervisor.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	logger.Info("worker supervisor stopped")
}

func hostConsumerID(pool string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return pool + "-" + host
}

func startHealthServer(port string, hc *worker.HealthChecker, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := hc.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := hc.Ready(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", zap.Error(err))
		}
	}()
	return srv
}
