package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arvancloud/codearena/internal/blob"
	"github.com/arvancloud/codearena/internal/harness"
	"github.com/arvancloud/codearena/internal/judge"
	"github.com/arvancloud/codearena/internal/metrics"
	"github.com/arvancloud/codearena/internal/queue/natsqueue"
	"github.com/arvancloud/codearena/internal/retry"
	"github.com/arvancloud/codearena/internal/store"
)

// BatchConfig tunes the in-process worker pool that drains the NATS
// "batch" pool — a fixed number of goroutines pulling off a buffered
// channel, mirroring the teacher's enhanced-worker jobChan pattern.
type BatchConfig struct {
	PoolSize  int
	ChanDepth int
}

// DefaultBatchConfig matches spec.md §4.2's secondary-pool sizing.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{PoolSize: 5, ChanDepth: 100}
}

// BatchProcessor runs low-priority submissions delivered over NATS
// through the same harness/judge pipeline the Redis-backed Supervisor
// uses, without the claim/ack semantics a durable stream gives —
// a dropped or crashed batch job is retried at most via PublishDelayed
// and otherwise lost, which is the tradeoff this pool accepts.
type BatchProcessor struct {
	queue     *natsqueue.Queue
	harness   *harness.Harness
	blobStore blob.Store
	subs      *store.Store
	metrics   *metrics.Metrics
	retryCfg  retry.Policy
	judgeCfg  judge.Config
	logger    *zap.Logger
	cfg       BatchConfig
}

// NewBatchProcessor builds a BatchProcessor.
func NewBatchProcessor(
	q *natsqueue.Queue,
	h *harness.Harness,
	bs blob.Store,
	subs *store.Store,
	m *metrics.Metrics,
	retryCfg retry.Policy,
	judgeCfg judge.Config,
	logger *zap.Logger,
	cfg BatchConfig,
) *BatchProcessor {
	return &BatchProcessor{
		queue: q, harness: h, blobStore: bs, subs: subs,
		metrics: m, retryCfg: retryCfg, judgeCfg: judgeCfg, logger: logger, cfg: cfg,
	}
}

// Run subscribes to the batch subject and processes jobs with a fixed
// pool of goroutines fed by a buffered channel. It blocks until ctx is
// cancelled.
func (b *BatchProcessor) Run(ctx context.Context) error {
	jobs := make(chan natsqueue.Job, b.cfg.ChanDepth)

	for i := 0; i < b.cfg.PoolSize; i++ {
		go func(workerID int) {
			for job := range jobs {
				b.process(ctx, job)
			}
		}(i)
	}

	sub, err := b.queue.Subscribe(func(job natsqueue.Job) error {
		select {
		case jobs <- job:
			return nil
		default:
			b.logger.Warn("batch pool saturated, dropping job", zap.String("submission_id", job.SubmissionID))
			return nil
		}
	})
	if err != nil {
		close(jobs)
		return err
	}

	<-ctx.Done()
	_ = sub.Unsubscribe()
	close(jobs)
	return ctx.Err()
}

func (b *BatchProcessor) process(ctx context.Context, job natsqueue.Job) {
	start := time.Now()
	logger := b.logger.With(zap.String("submission_id", job.SubmissionID), zap.Int("attempt", job.Attempt))

	if err := b.subs.MarkProcessing(ctx, job.SubmissionID); err != nil && err != store.ErrAlreadyAdvanced {
		logger.Error("failed to mark submission processing", zap.Error(err))
	} else if err == store.ErrAlreadyAdvanced {
		return
	}

	code, err := b.blobStore.Get(ctx, job.BlobKey)
	if err != nil {
		b.fail(ctx, job, logger, "failed to fetch code from blob store: "+err.Error())
		return
	}

	sub, err := b.subs.GetByID(ctx, job.SubmissionID)
	if err != nil {
		b.fail(ctx, job, logger, "failed to load submission record: "+err.Error())
		return
	}

	testCases, err := decodeTestCases(sub.Metadata["test_cases"])
	if err != nil {
		logger.Warn("failed to decode test cases, running without them", zap.Error(err))
	}

	outcome, err := b.harness.Execute(ctx, harness.Job{
		SubmissionID:  job.SubmissionID,
		Language:      job.Language,
		Code:          code,
		TimeLimitMs:   sub.TimeLimitMs,
		MemoryLimitKB: sub.MemoryLimitKB,
		TestCases:     testCases,
	})
	if err != nil {
		b.retryOrDrop(ctx, job, logger, "execution harness error: "+err.Error())
		return
	}

	agg := judgeBatchOutcome(ctx, b.judgeCfg, outcome, testCases)

	status := store.StatusCompleted
	switch agg.Verdict {
	case judge.VerdictTimeLimit:
		status = store.StatusTimeout
	case judge.VerdictInternal, judge.VerdictRuntimeError, judge.VerdictCompileError:
		status = store.StatusFailed
	}

	if err := b.subs.Complete(ctx, job.SubmissionID, store.CompleteResult{
		Status: status, Verdict: store.Verdict(agg.Verdict), Score: agg.Score, MaxScore: agg.MaxScore,
		PassedTests: agg.PassedTests, TotalTests: agg.TotalTests, ExecutionTimeMs: int(time.Since(start).Milliseconds()),
	}); err != nil {
		logger.Error("failed to persist submission result", zap.Error(err))
	}

	if b.metrics != nil {
		b.metrics.JobDuration.WithLabelValues("batch", job.Language, string(status), string(agg.Verdict)).Observe(time.Since(start).Seconds())
		b.metrics.JobsTotal.WithLabelValues("batch", job.Language).Inc()
		b.metrics.VerdictTotal.WithLabelValues(string(agg.Verdict), job.Language).Inc()
	}
}

func judgeBatchOutcome(ctx context.Context, cfg judge.Config, outcome *harness.Outcome, testCases []harness.TestCase) judge.Aggregate {
	if outcome.Compile != nil && !outcome.Compile.Success {
		return judge.Aggregation(nil, true)
	}

	results := make([]judge.CaseResult, 0, len(outcome.Runs))
	for i, run := range outcome.Runs {
		var expected string
		if i < len(testCases) {
			expected = testCases[i].Expected
		}
		co := judge.CaseOutcome{TestID: run.TestID, Expected: expected, Actual: run.Stdout}
		if run.Status != harness.StatusSuccess {
			co.HarnessFailed = true
			co.HarnessVerdict = harnessStatusToVerdict(run.Status)
		}
		if cfg.Mode == judge.ModeSpecial && !co.HarnessFailed {
			results = append(results, cfg.EvaluateSpecial(ctx, co, ""))
		} else {
			results = append(results, cfg.Evaluate(co))
		}
	}
	return judge.Aggregation(results, false)
}

func (b *BatchProcessor) fail(ctx context.Context, job natsqueue.Job, logger *zap.Logger, reason string) {
	logger.Error("batch submission failed terminally", zap.String("reason", reason))
	errMsg := reason
	_ = b.subs.Complete(ctx, job.SubmissionID, store.CompleteResult{
		Status: store.StatusFailed, Verdict: store.VerdictInternalError, ErrorMessage: &errMsg,
	})
	if b.metrics != nil {
		b.metrics.ErrorsTotal.WithLabelValues("batch_worker", "terminal").Inc()
	}
}

func (b *BatchProcessor) retryOrDrop(ctx context.Context, job natsqueue.Job, logger *zap.Logger, reason string) {
	attempt := job.Attempt
	if attempt == 0 {
		attempt = 1
	}

	if !b.retryCfg.Exhausted(attempt) {
		delay := b.retryCfg.Delay(attempt)
		next := job
		next.Attempt = attempt + 1
		_ = b.subs.IncrementAttempts(ctx, job.SubmissionID)
		logger.Warn("scheduling batch retry", zap.Duration("delay", delay), zap.String("reason", reason))
		b.queue.PublishDelayed(ctx, next, delay)
		return
	}

	logger.Error("batch retry attempts exhausted, dead-lettering", zap.String("reason", reason))
	errMsg := reason
	_ = b.subs.Complete(ctx, job.SubmissionID, store.CompleteResult{
		Status: store.StatusFailed, Verdict: store.VerdictInternalError, ErrorMessage: &errMsg,
	})
	if err := b.queue.PublishDLQ(ctx, job, reason); err != nil {
		logger.Error("failed to publish batch dead letter", zap.Error(err))
	}
	if b.metrics != nil {
		b.metrics.ErrorsTotal.WithLabelValues("batch_worker", "dead_letter").Inc()
	}
}
