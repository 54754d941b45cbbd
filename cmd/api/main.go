// Command api runs the Intake API: validation, blob write, submission
// record insert, and job enqueue behind the rate limiter.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arvancloud/codearena/internal/admin"
	"github.com/arvancloud/codearena/internal/api"
	"github.com/arvancloud/codearena/internal/blob"
	"github.com/arvancloud/codearena/internal/config"
	"github.com/arvancloud/codearena/internal/metrics"
	"github.com/arvancloud/codearena/internal/observability"
	"github.com/arvancloud/codearena/internal/queue/redisqueue"
	"github.com/arvancloud/codearena/internal/ratelimit"
	"github.com/arvancloud/codearena/internal/runtime/docker"
	"github.com/arvancloud/codearena/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.GetLoggerFromEnv(cfg.LogLevel)
	defer logger.Sync()
	logger.Info("starting intake API", zap.String("port", cfg.Port))

	ctx := context.Background()

	db, err := store.Open(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()
	if err := db.RunMigrations("migrations"); err != nil {
		logger.Warn("failed to run migrations", zap.Error(err))
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to parse redis url", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}

	blobStore, err := blob.New(blob.Config{Backend: cfg.BlobBackend, File: blob.FileConfig{BaseDir: cfg.BlobBaseDir}})
	if err != nil {
		logger.Fatal("failed to initialize blob store", zap.Error(err))
	}

	queueCfg := redisqueue.DefaultConfig(cfg.PoolName, "intake-api")
	queue, err := redisqueue.New(ctx, redisClient, queueCfg)
	if err != nil {
		logger.Fatal("failed to initialize job queue", zap.Error(err))
	}

	m := metrics.New()
	if cfg.MetricsEnabled {
		shutdownOtel, _, err := observability.SetupOpenTelemetry("codearena-api", m.Registry, logger)
		if err != nil {
			logger.Warn("failed to initialize OpenTelemetry bridge", zap.Error(err))
		} else {
			defer shutdownOtel()
		}
	}

	limiter := ratelimit.New(redisClient, logger, ratelimit.DefaultConfig())
	subs := store.NewStore(db)
	handlers := api.New(logger, subs, blobStore, queue, limiter, m)

	rt, err := docker.NewClient(cfg.DockerHost)
	if err != nil {
		logger.Warn("failed to initialize runtime client for health checks", zap.Error(err))
	}

	var adminHandlers *admin.Handlers
	if cfg.DLQAdminToken != "" {
		adminHandlers = admin.New(queue, logger, admin.Config{
			Token:    cfg.DLQAdminToken,
			AllowIPs: splitAllowIPs(cfg.DLQAllowIPs),
		})
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			logger.Error("fiber error", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "INTERNAL_ERROR"})
		},
	})

	healthFn := func(c *fiber.Ctx) error {
		if err := redisClient.Ping(c.Context()).Err(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "error": err.Error()})
		}
		if err := db.HealthCheck(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "error": err.Error()})
		}
		if rt != nil {
			if err := rt.Ping(c.Context()); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "error": err.Error()})
			}
		}
		return c.JSON(fiber.Map{"status": "healthy"})
	}
	readyFn := healthFn

	api.SetupRoutes(app, logger, m, handlers, adminHandlers, healthFn, readyFn)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()
	logger.Info("intake API started", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down intake API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("failed to shut down gracefully", zap.Error(err))
	}
	logger.Info("intake API stopped")
}

func splitAllowIPs(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, ip := range strings.Split(raw, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			out = append(out, ip)
		}
	}
	return out
}
