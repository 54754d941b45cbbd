// Package worker is the Worker Supervisor (WS): a single-owner claim
// loop dispatching concurrent per-job handlers, with graceful
// shutdown and health/readiness checks.
package worker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/arvancloud/codearena/internal/blob"
	"github.com/arvancloud/codearena/internal/harness"
	"github.com/arvancloud/codearena/internal/judge"
	"github.com/arvancloud/codearena/internal/metrics"
	"github.com/arvancloud/codearena/internal/queue/redisqueue"
	"github.com/arvancloud/codearena/internal/retry"
	"github.com/arvancloud/codearena/internal/store"
)

// Config tunes the supervisor's concurrency and timing.
type Config struct {
	MaxConcurrentJobs int
	ClaimBlock        time.Duration
	ShutdownDrain     time.Duration
	PoolName          string
}

// DefaultConfig matches spec.md §4.5/§6 defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs: 2,
		ClaimBlock:        5 * time.Second,
		ShutdownDrain:     30 * time.Second,
		PoolName:          "container",
	}
}

// Supervisor owns one pool's claim loop.
type Supervisor struct {
	queue     *redisqueue.Queue
	harness   *harness.Harness
	blobStore blob.Store
	subs      *store.Store
	metrics   *metrics.Metrics
	breaker   *metrics.CircuitBreaker
	retryCfg  retry.Policy
	judgeCfg  judge.Config
	logger    *zap.Logger
	cfg       Config

	activeJobs   int64
	shuttingDown int32
	wg           sync.WaitGroup
}

// New builds a Supervisor for one pool.
func New(
	q *redisqueue.Queue,
	h *harness.Harness,
	bs blob.Store,
	subs *store.Store,
	m *metrics.Metrics,
	breaker *metrics.CircuitBreaker,
	retryCfg retry.Policy,
	judgeCfg judge.Config,
	logger *zap.Logger,
	cfg Config,
) *Supervisor {
	return &Supervisor{
		queue: q, harness: h, blobStore: bs, subs: subs,
		metrics: m, breaker: breaker, retryCfg: retryCfg, judgeCfg: judgeCfg,
		logger: logger, cfg: cfg,
	}
}

// Run executes the claim loop until ctx is cancelled or Shutdown is
// called, per the four-step loop in spec.md §4.5.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if atomic.LoadInt32(&s.shuttingDown) == 1 {
			s.waitForDrain()
			s.logger.Info("worker supervisor drained, exiting")
			return nil
		}

		select {
		case <-ctx.Done():
			atomic.StoreInt32(&s.shuttingDown, 1)
			s.waitForDrain()
			return ctx.Err()
		default:
		}

		active := atomic.LoadInt64(&s.activeJobs)
		if active >= int64(s.cfg.MaxConcurrentJobs) {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if s.breaker != nil && !s.breaker.Allow() {
			time.Sleep(s.cfg.ClaimBlock)
			continue
		}

		want := int64(s.cfg.MaxConcurrentJobs) - active
		msgs, err := s.queue.Claim(ctx, want, s.cfg.ClaimBlock)
		if err != nil {
			if s.breaker != nil {
				s.breaker.RecordFailure()
			}
			s.logger.Error("failed to claim jobs", zap.Error(err))
			if s.metrics != nil {
				s.metrics.ErrorsTotal.WithLabelValues("worker", "claim").Inc()
			}
			continue
		}
		if s.breaker != nil {
			s.breaker.RecordSuccess()
		}

		for _, msg := range msgs {
			atomic.AddInt64(&s.activeJobs, 1)
			if s.metrics != nil {
				s.metrics.ActiveJobs.Inc()
			}
			s.wg.Add(1)
			go s.handle(ctx, msg)
		}
	}
}

// Shutdown requests a graceful drain: in-flight jobs finish, no new
// ones are claimed, and the loop exits once active_jobs reaches zero
// or the drain deadline passes.
func (s *Supervisor) Shutdown() {
	atomic.StoreInt32(&s.shuttingDown, 1)
}

func (s *Supervisor) waitForDrain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownDrain):
		s.logger.Warn("shutdown drain deadline exceeded, exiting with jobs still active",
			zap.Int64("active_jobs", atomic.LoadInt64(&s.activeJobs)))
	}
}

func (s *Supervisor) handle(ctx context.Context, msg redisqueue.Message) {
	defer func() {
		atomic.AddInt64(&s.activeJobs, -1)
		if s.metrics != nil {
			s.metrics.ActiveJobs.Dec()
		}
		s.wg.Done()
	}()

	job := msg.Job
	start := time.Now()
	logger := s.logger.With(zap.String("submission_id", job.SubmissionID), zap.Int("attempt", job.Attempt))

	if err := s.subs.MarkProcessing(ctx, job.SubmissionID); err != nil {
		if err == store.ErrAlreadyAdvanced {
			logger.Info("submission already advanced, acking and skipping")
			_ = s.queue.Ack(ctx, msg.ID)
			return
		}
		logger.Error("failed to mark submission processing", zap.Error(err))
	}

	code, err := s.blobStore.Get(ctx, job.BlobKey)
	if err != nil {
		s.fail(ctx, msg, logger, "failed to fetch code from blob store: "+err.Error())
		return
	}

	sub, err := s.subs.GetByID(ctx, job.SubmissionID)
	if err != nil {
		s.fail(ctx, msg, logger, "failed to load submission record: "+err.Error())
		return
	}

	testCases, err := decodeTestCases(sub.Metadata["test_cases"])
	if err != nil {
		logger.Warn("failed to decode test cases, running without them", zap.Error(err))
	}

	outcome, err := s.harness.Execute(ctx, harness.Job{
		SubmissionID:  job.SubmissionID,
		Language:      job.Language,
		Code:          code,
		TimeLimitMs:   sub.TimeLimitMs,
		MemoryLimitKB: sub.MemoryLimitKB,
		TestCases:     testCases,
	})
	if err != nil {
		s.retryOrFail(ctx, msg, logger, "execution harness error: "+err.Error())
		return
	}

	agg := s.judgeOutcome(ctx, outcome, testCases)

	errMsg := (*string)(nil)
	if outcome.Compile != nil && !outcome.Compile.Success {
		msgStr := outcome.Compile.Stderr
		errMsg = &msgStr
	}

	status := store.StatusCompleted
	switch agg.Verdict {
	case judge.VerdictTimeLimit:
		status = store.StatusTimeout
	case judge.VerdictInternal, judge.VerdictRuntimeError, judge.VerdictCompileError:
		status = store.StatusFailed
	}

	if err := s.subs.Complete(ctx, job.SubmissionID, store.CompleteResult{
		Status:          status,
		Verdict:         store.Verdict(agg.Verdict),
		Score:           agg.Score,
		MaxScore:        agg.MaxScore,
		PassedTests:     agg.PassedTests,
		TotalTests:      agg.TotalTests,
		ExecutionTimeMs: int(time.Since(start).Milliseconds()),
		ErrorMessage:    errMsg,
	}); err != nil {
		logger.Error("failed to persist submission result", zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.JobDuration.WithLabelValues(s.cfg.PoolName, job.Language, string(status), string(agg.Verdict)).Observe(time.Since(start).Seconds())
		s.metrics.JobsTotal.WithLabelValues(s.cfg.PoolName, job.Language).Inc()
		s.metrics.VerdictTotal.WithLabelValues(string(agg.Verdict), job.Language).Inc()
		s.metrics.ScoreHistogram.Observe(agg.ScorePercent)
	}

	_ = s.queue.Ack(ctx, msg.ID)
}

func (s *Supervisor) judgeOutcome(ctx context.Context, outcome *harness.Outcome, testCases []harness.TestCase) judge.Aggregate {
	if outcome.Compile != nil && !outcome.Compile.Success {
		return judge.Aggregation(nil, true)
	}

	cfg := s.judgeCfg

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

		var result judge.CaseResult
		if cfg.Mode == judge.ModeSpecial && !co.HarnessFailed {
			result = cfg.EvaluateSpecial(ctx, co, "")
		} else {
			result = cfg.Evaluate(co)
		}
		results = append(results, result)
	}

	return judge.Aggregation(results, false)
}

func harnessStatusToVerdict(status harness.Status) judge.Verdict {
	switch status {
	case harness.StatusTimeLimit:
		return judge.VerdictTimeLimit
	case harness.StatusMemoryLimit:
		return judge.VerdictMemoryLimit
	case harness.StatusRuntimeError:
		return judge.VerdictRuntimeError
	default:
		return judge.VerdictInternal
	}
}

// fail persists a terminal failure with no retry (used for errors
// that are not going to resolve by re-attempting, e.g. a missing
// blob).
func (s *Supervisor) fail(ctx context.Context, msg redisqueue.Message, logger *zap.Logger, reason string) {
	logger.Error("submission failed terminally", zap.String("reason", reason))
	errMsg := reason
	_ = s.subs.Complete(ctx, msg.Job.SubmissionID, store.CompleteResult{
		Status: store.StatusFailed, Verdict: store.VerdictInternalError, ErrorMessage: &errMsg,
	})
	if s.metrics != nil {
		s.metrics.ErrorsTotal.WithLabelValues("worker", "terminal").Inc()
	}
	_ = s.queue.Ack(ctx, msg.ID)
}

// retryOrFail applies the retry/DLQ policy (§4.4) to a non-terminal
// failure.
func (s *Supervisor) retryOrFail(ctx context.Context, msg redisqueue.Message, logger *zap.Logger, reason string) {
	attempt := msg.Job.Attempt
	if attempt == 0 {
		attempt = 1
	}

	if !s.retryCfg.Exhausted(attempt) {
		delay := s.retryCfg.Delay(attempt)
		next := msg.Job
		next.Attempt = attempt + 1
		_ = s.subs.IncrementAttempts(ctx, msg.Job.SubmissionID)

		logger.Warn("scheduling retry", zap.Duration("delay", delay), zap.String("reason", reason))
		go func() {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
				if _, err := s.queue.Push(context.Background(), next); err != nil {
					logger.Error("failed to push retry job", zap.Error(err))
				}
			case <-ctx.Done():
			}
		}()
		_ = s.queue.Ack(ctx, msg.ID)
		return
	}

	logger.Error("retry attempts exhausted, dead-lettering", zap.String("reason", reason))
	errMsg := reason
	_ = s.subs.Complete(ctx, msg.Job.SubmissionID, store.CompleteResult{
		Status: store.StatusFailed, Verdict: store.VerdictInternalError, ErrorMessage: &errMsg,
	})
	if err := s.queue.PushDeadLetter(ctx, msg, reason); err != nil {
		logger.Error("failed to push dead letter", zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.ErrorsTotal.WithLabelValues("worker", "dead_letter").Inc()
	}
}

func decodeTestCases(raw string) ([]harness.TestCase, error) {
	if raw == "" {
		return nil, nil
	}
	var cases []harness.TestCase
	if err := json.Unmarshal([]byte(raw), &cases); err != nil {
		return nil, err
	}
	return cases, nil
}
