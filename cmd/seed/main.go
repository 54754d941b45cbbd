// Command seed loads a TOML fixture of problems and test cases and
// submits each as a real submission through the same pipeline the
// Intake API uses, for local development and the end-to-end scenarios
// in spec.md §8.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/arvancloud/codearena/internal/blob"
	"github.com/arvancloud/codearena/internal/config"
	"github.com/arvancloud/codearena/internal/harness"
	"github.com/arvancloud/codearena/internal/observability"
	"github.com/arvancloud/codearena/internal/queue/redisqueue"
	"github.com/arvancloud/codearena/internal/seed"
	"github.com/arvancloud/codearena/internal/store"

	"github.com/redis/go-redis/v9"
)

func main() {
	fixturePath := flag.String("fixture", "seed/problems.toml", "path to the TOML problem fixture")
	userID := flag.String("user", "seed-user", "user ID to attribute seeded submissions to")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := observability.GetLoggerFromEnv(cfg.LogLevel)
	defer logger.Sync()

	bundle, err := seed.Load(*fixturePath)
	if err != nil {
		logger.Fatal("failed to load fixture", zap.Error(err))
	}

	ctx := context.Background()

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

	queue, err := redisqueue.New(ctx, redisClient, redisqueue.DefaultConfig(cfg.PoolName, "seed-cli"))
	if err != nil {
		logger.Fatal("failed to initialize job queue", zap.Error(err))
	}

	subs := store.NewStore(db)

	for _, problem := range bundle.Problems {
		if err := seedOne(ctx, subs, blobStore, queue, *userID, problem); err != nil {
			logger.Error("failed to seed problem", zap.String("problem_id", problem.ID), zap.Error(err))
			continue
		}
		logger.Info("seeded problem", zap.String("problem_id", problem.ID), zap.Int("test_cases", len(problem.TestCases)))
	}
}

func seedOne(ctx context.Context, subs *store.Store, blobStore blob.Store, queue *redisqueue.Queue, userID string, problem seed.Problem) error {
	key, err := blob.NewKey(userID, problem.ID, problem.Language)
	if err != nil {
		return err
	}
	if err := blobStore.Put(ctx, key, []byte(problem.Solution), blob.Metadata{
		UserID: userID, ProblemID: problem.ID, Language: problem.Language, SizeBytes: len(problem.Solution),
	}); err != nil {
		return err
	}

	testCases := make([]harness.TestCase, 0, len(problem.TestCases))
	for _, tc := range problem.TestCases {
		testCases = append(testCases, harness.TestCase{
			ID: tc.ID, Input: tc.Input, Expected: tc.Expected, StopOnFailure: tc.StopOnFailure,
		})
	}
	testCasesJSON, err := json.Marshal(testCases)
	if err != nil {
		return err
	}

	timeLimitMs := problem.TimeLimitMs
	if timeLimitMs <= 0 {
		timeLimitMs = 5000
	}
	memoryLimitKB := problem.MemoryLimitMB * 1024
	if memoryLimitKB <= 0 {
		memoryLimitKB = 256 * 1024
	}

	sub := &store.Submission{
		UserID:        userID,
		ProblemID:     problem.ID,
		Language:      problem.Language,
		BlobKey:       key,
		CodeSizeBytes: len(problem.Solution),
		TimeLimitMs:   timeLimitMs,
		MemoryLimitKB: memoryLimitKB,
		Priority:      store.PriorityNormal,
		MaxScore:      float64(len(testCases)),
		Metadata:      map[string]string{"test_cases": string(testCasesJSON)},
	}
	if err := subs.Insert(ctx, sub); err != nil {
		return err
	}

	job := redisqueue.Job{
		SubmissionID: sub.ID, UserID: sub.UserID, ProblemID: sub.ProblemID,
		Language: sub.Language, BlobKey: sub.BlobKey, Priority: string(sub.Priority), Attempt: 1,
	}
	if _, err := queue.Push(ctx, job); err != nil {
		return err
	}
	return subs.MarkQueued(ctx, sub.ID)
}
