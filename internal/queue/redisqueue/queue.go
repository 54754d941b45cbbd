// Package redisqueue is the primary Job Queue (JQ): a Redis Streams
// consumer group giving at-least-once delivery, explicit acking, and
// claim-based recovery of messages abandoned by a dead worker.
package redisqueue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config names the stream, consumer group, and this consumer's identity.
type Config struct {
	Stream        string
	DeadLetter    string
	ConsumerGroup string
	ConsumerID    string
	MaxLen        int64
}

// DefaultConfig returns the stream layout spec.md §4.3 describes for
// the "container" pool.
func DefaultConfig(pool, consumerID string) Config {
	return Config{
		Stream:        "jobs:" + pool,
		DeadLetter:    "jobs:" + pool + ":dlq",
		ConsumerGroup: pool + "-workers",
		ConsumerID:    consumerID,
		MaxLen:        100_000,
	}
}

// Message wraps a decoded Job with the stream message ID needed to ack
// or claim it.
type Message struct {
	ID  string
	Job Job
}

// Queue is the Job Queue client for one pool (stream + consumer group).
type Queue struct {
	client *redis.Client
	cfg    Config
}

// New builds a Queue and ensures its consumer group exists.
func New(ctx context.Context, client *redis.Client, cfg Config) (*Queue, error) {
	q := &Queue{client: client, cfg: cfg}
	if err := q.ensureGroup(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.ConsumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s on %s: %w", q.cfg.ConsumerGroup, q.cfg.Stream, err)
	}
	return nil
}

// Push enqueues a job, approximately trimming the stream to MaxLen so
// a stalled consumer group cannot grow the stream without bound.
func (q *Queue) Push(ctx context.Context, job Job) (string, error) {
	payload, err := job.marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal job for submission %s: %w", job.SubmissionID, err)
	}

	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		MaxLen: q.cfg.MaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to push job for submission %s: %w", job.SubmissionID, err)
	}
	return id, nil
}

// Claim reads up to count never-delivered messages for this consumer,
// blocking up to block waiting for new ones. Entries already pending
// for another consumer are picked up by Reclaim, not here.
func (q *Queue) Claim(ctx context.Context, count int64, block time.Duration) ([]Message, error) {
	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.ConsumerGroup,
		Consumer: q.cfg.ConsumerID,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim jobs from %s: %w", q.cfg.Stream, err)
	}

	var out []Message
	for _, stream := range res {
		for _, msg := range stream.Messages {
			raw, _ := msg.Values["data"].(string)
			job, err := unmarshalJob(raw)
			if err != nil {
				// Malformed message: ack it so it doesn't block the
				// group forever, but surface it as an error so the
				// caller can log and count it.
				_ = q.Ack(ctx, msg.ID)
				return nil, fmt.Errorf("failed to decode job %s: %w", msg.ID, err)
			}
			out = append(out, Message{ID: msg.ID, Job: job})
		}
	}
	return out, nil
}

// Ack acknowledges successful (or terminally failed and
// dead-lettered) processing of a message.
func (q *Queue) Ack(ctx context.Context, id string) error {
	if err := q.client.XAck(ctx, q.cfg.Stream, q.cfg.ConsumerGroup, id).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", id, err)
	}
	return nil
}

// Reclaim takes ownership of messages idle longer than minIdle —
// pending entries left by a worker that crashed or was killed before
// it could ack — and reassigns them to this consumer.
func (q *Queue) Reclaim(ctx context.Context, minIdle time.Duration, count int64) ([]Message, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.cfg.Stream,
		Group:  q.cfg.ConsumerGroup,
		Start:  "-",
		End:    "+",
		Count:  count,
		Idle:   minIdle,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list pending entries on %s: %w", q.cfg.Stream, err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
	}

	msgs, err := q.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   q.cfg.Stream,
		Group:    q.cfg.ConsumerGroup,
		Consumer: q.cfg.ConsumerID,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim stale pending entries on %s: %w", q.cfg.Stream, err)
	}

	var out []Message
	for _, msg := range msgs {
		raw, _ := msg.Values["data"].(string)
		job, err := unmarshalJob(raw)
		if err != nil {
			_ = q.Ack(ctx, msg.ID)
			continue
		}
		out = append(out, Message{ID: msg.ID, Job: job})
	}
	return out, nil
}

// PushDeadLetter writes a terminally-failed job to the dead-letter
// stream and acks the original message so it stops being redelivered.
func (q *Queue) PushDeadLetter(ctx context.Context, msg Message, reason string) error {
	payload, err := msg.Job.marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal dead-lettered job %s: %w", msg.Job.SubmissionID, err)
	}
	_, err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.DeadLetter,
		MaxLen: q.cfg.MaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": payload, "reason": reason, "original_id": msg.ID},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to push dead letter for submission %s: %w", msg.Job.SubmissionID, err)
	}
	return q.Ack(ctx, msg.ID)
}

// Depth reports the stream's approximate current length, used for the
// queue-depth gauge and load shedding.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	length, err := q.client.XLen(ctx, q.cfg.Stream).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read stream length for %s: %w", q.cfg.Stream, err)
	}
	return length, nil
}

// ListDeadLetters returns up to limit raw dead-letter entries, newest
// first, for the admin inspection endpoint.
func (q *Queue) ListDeadLetters(ctx context.Context, limit int64) ([]redis.XMessage, error) {
	msgs, err := q.client.XRevRangeN(ctx, q.cfg.DeadLetter, "+", "-", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters on %s: %w", q.cfg.DeadLetter, err)
	}
	return msgs, nil
}
