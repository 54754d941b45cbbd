// Package sweeper resubmits submissions stuck in pending longer than
// expected — the IA accepted them (RS insert succeeded) but the JQ
// push failed, or it succeeded and the queued mark did not. Rows
// already marked queued are not swept. This
// is a supplement beyond the core pipeline's normal path: a periodic
// safety net, grounded on the teacher's GetQueuedMessages/
// GetFailedMessagesForRetry recovery queries.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arvancloud/codearena/internal/queue/redisqueue"
	"github.com/arvancloud/codearena/internal/store"
)

// Config tunes the sweep cadence and staleness threshold.
type Config struct {
	Interval time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

// DefaultConfig sweeps every 30s for submissions pending more than 2
// minutes.
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second, StaleAfter: 2 * time.Minute, BatchSize: 100}
}

// Sweeper periodically requeues stale pending submissions.
type Sweeper struct {
	subs   *store.Store
	queue  *redisqueue.Queue
	logger *zap.Logger
	cfg    Config
}

// New builds a Sweeper.
func New(subs *store.Store, queue *redisqueue.Queue, logger *zap.Logger, cfg Config) *Sweeper {
	return &Sweeper{subs: subs, queue: queue, logger: logger, cfg: cfg}
}

// Run blocks, sweeping on cfg.Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.StaleAfter)
	stale, err := s.subs.PendingOlderThan(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("sweeper failed to query stale submissions", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}

	s.logger.Info("resubmitting stale pending submissions", zap.Int("count", len(stale)))
	for _, sub := range stale {
		job := redisqueue.Job{
			SubmissionID: sub.ID,
			UserID:       sub.UserID,
			ProblemID:    sub.ProblemID,
			Language:     sub.Language,
			BlobKey:      sub.BlobKey,
			Priority:     string(sub.Priority),
			Attempt:      sub.Attempts + 1,
		}
		if _, err := s.queue.Push(ctx, job); err != nil {
			s.logger.Error("sweeper failed to requeue submission", zap.String("submission_id", sub.ID), zap.Error(err))
			continue
		}
		if err := s.subs.MarkQueued(ctx, sub.ID); err != nil {
			s.logger.Warn("sweeper requeued submission but failed to mark queued", zap.String("submission_id", sub.ID), zap.Error(err))
		}
	}
}
