// Package natsqueue is the secondary transport for the "batch" pool:
// low-priority submissions (bulk re-judging, practice-mode runs) that
// can tolerate best-effort delivery in exchange for not competing with
// the Redis Streams "container" pool's at-least-once guarantees.
package natsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectBatchSubmit = "codearena.batch.submit"
	SubjectBatchDLQ    = "codearena.batch.dlq"
)

// Job is the batch pool's wire payload, mirroring redisqueue.Job but
// kept as an independent type since the two transports evolve
// separately.
type Job struct {
	SubmissionID string `json:"submission_id"`
	UserID       string `json:"user_id"`
	ProblemID    string `json:"problem_id"`
	Language     string `json:"language"`
	BlobKey      string `json:"blob_key"`
	Attempt      int    `json:"attempt"`
}

// Queue wraps a NATS connection for the batch pool's publish/subscribe
// traffic.
type Queue struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// New connects to NATS with the reconnect policy the rest of this
// system expects from a best-effort transport: infinite reconnect
// attempts, since a batch job that's delayed by an outage is still
// preferable to one silently dropped.
func New(natsURL string, logger *zap.Logger) (*Queue, error) {
	opts := []nats.Option{
		nats.Name("codearena-batch"),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Error("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	logger.Info("connected to nats", zap.String("url", conn.ConnectedUrl()))

	return &Queue{conn: conn, logger: logger}, nil
}

func (q *Queue) Close() {
	q.conn.Close()
}

func (q *Queue) HealthCheck(ctx context.Context) error {
	if q.conn.Status() != nats.CONNECTED {
		return fmt.Errorf("nats not connected, status: %v", q.conn.Status())
	}
	return nil
}

// Publish enqueues a batch submission for pickup by any subscribed
// worker.
func (q *Queue) Publish(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal batch job %s: %w", job.SubmissionID, err)
	}
	if err := q.conn.Publish(SubjectBatchSubmit, data); err != nil {
		return fmt.Errorf("failed to publish batch job %s: %w", job.SubmissionID, err)
	}
	return nil
}

// PublishDelayed schedules a retry after delay, mirroring the teacher
// pattern of a goroutine-held timer rather than a dedicated delayed-
// delivery broker feature.
func (q *Queue) PublishDelayed(ctx context.Context, job Job, delay time.Duration) {
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			if err := q.Publish(context.Background(), job); err != nil {
				q.logger.Error("failed to publish delayed batch job",
					zap.String("submission_id", job.SubmissionID), zap.Error(err))
			}
		case <-ctx.Done():
			q.logger.Debug("delayed batch job cancelled", zap.String("submission_id", job.SubmissionID))
		}
	}()
}

// PublishDLQ records a terminally-failed batch job.
func (q *Queue) PublishDLQ(ctx context.Context, job Job, reason string) error {
	payload := map[string]interface{}{
		"submission_id": job.SubmissionID,
		"reason":        reason,
		"timestamp":     time.Now(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal batch dlq entry for %s: %w", job.SubmissionID, err)
	}
	if err := q.conn.Publish(SubjectBatchDLQ, data); err != nil {
		return fmt.Errorf("failed to publish batch dlq entry for %s: %w", job.SubmissionID, err)
	}
	return nil
}

// Subscribe registers handler for incoming batch submissions.
func (q *Queue) Subscribe(handler func(job Job) error) (*nats.Subscription, error) {
	return q.conn.Subscribe(SubjectBatchSubmit, func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			q.logger.Error("failed to unmarshal batch job", zap.Error(err))
			return
		}
		if err := handler(job); err != nil {
			q.logger.Error("failed to handle batch job",
				zap.String("submission_id", job.SubmissionID), zap.Error(err))
		}
	})
}
