// Package api is the Intake API (IA): request validation, the
// rate-limit/blob-store/relational-store/job-queue pipeline, and the
// submission/admin/health HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/arvancloud/codearena/internal/apierr"
	"github.com/arvancloud/codearena/internal/blob"
	"github.com/arvancloud/codearena/internal/metrics"
	"github.com/arvancloud/codearena/internal/queue/redisqueue"
	"github.com/arvancloud/codearena/internal/ratelimit"
	"github.com/arvancloud/codearena/internal/store"
)

// Handlers wires the Intake API's dependencies.
type Handlers struct {
	logger       *zap.Logger
	subs         *store.Store
	blobStore    blob.Store
	queue        *redisqueue.Queue
	limiter      *ratelimit.Limiter
	metrics      *metrics.Metrics
	maxCodeBytes int
}

// New builds Handlers.
func New(logger *zap.Logger, subs *store.Store, bs blob.Store, q *redisqueue.Queue, limiter *ratelimit.Limiter, m *metrics.Metrics) *Handlers {
	return &Handlers{logger: logger, subs: subs, blobStore: bs, queue: q, limiter: limiter, metrics: m, maxCodeBytes: 10 * 1024 * 1024}
}

// submitRequest is POST /api/submit's body per spec.md §6.
type submitRequest struct {
	Code      string          `json:"code"`
	Language  string          `json:"language"`
	ProblemID string          `json:"problemId"`
	UserID    string          `json:"userId"`
	Metadata  *submitMetadata `json:"metadata"`
}

type submitMetadata struct {
	TimeLimit   *int            `json:"timeLimit"`
	MemoryLimit *int            `json:"memoryLimit"`
	Priority    *string         `json:"priority"`
	TestCases   []testCaseInput `json:"testCases"`
}

type testCaseInput struct {
	ID            string `json:"id"`
	Input         string `json:"input"`
	Expected      string `json:"expectedOutput"`
	StopOnFailure bool   `json:"stopOnFailure"`
}

type submitResponse struct {
	Success      bool   `json:"success"`
	SubmissionID string `json:"submissionId"`
	Timestamp    string `json:"timestamp"`
	Message      string `json:"message,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Submit handles POST /api/submit.
func (h *Handlers) Submit(c *fiber.Ctx) error {
	ctx := c.Context()

	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return writeErr(c, apierr.New(apierr.InvalidTypes, "request body is not valid JSON"))
	}

	if err := validate(req); err != nil {
		return writeErr(c, err)
	}
	if len(req.Code) > h.maxCodeBytes {
		return writeErr(c, apierr.New(apierr.CodeTooLarge, "submission exceeds 10 MiB"))
	}

	ip := c.IP()
	decision := h.limiter.Allow(ctx, req.UserID, ip)
	if !decision.Allowed {
		c.Set("Retry-After", fmt.Sprintf("%.0f", decision.RetryAfter.Seconds()))
		if h.metrics != nil {
			h.metrics.RateLimitRejects.WithLabelValues(string(decision.Scope)).Inc()
		}
		return writeErr(c, apierr.New(apierr.RateLimitExceeded, "rate limit exceeded"))
	}

	timeLimit, memoryLimit, priority, testCases := metadataDefaults(req.Metadata)

	key, err := blob.NewKey(req.UserID, req.ProblemID, req.Language)
	if err != nil {
		return writeErr(c, apierr.Wrap(apierr.StorageError, "failed to generate blob key", err))
	}

	if err := h.blobStore.Put(ctx, key, []byte(req.Code), blob.Metadata{
		UserID: req.UserID, ProblemID: req.ProblemID, Language: req.Language, SizeBytes: len(req.Code),
	}); err != nil {
		h.logger.Error("blob store write failed", zap.Error(err))
		return writeErr(c, apierr.Wrap(apierr.StorageError, "failed to store submission code", err))
	}

	testCasesJSON, _ := json.Marshal(testCases)
	sub := &store.Submission{
		UserID:        req.UserID,
		ProblemID:     req.ProblemID,
		Language:      req.Language,
		BlobKey:       key,
		CodeSizeBytes: len(req.Code),
		TimeLimitMs:   timeLimit,
		MemoryLimitKB: memoryLimit,
		Priority:      priority,
		MaxScore:      float64(len(testCases)),
		Metadata:      map[string]string{"test_cases": string(testCasesJSON)},
	}

	if err := h.subs.Insert(ctx, sub); err != nil {
		// Compensate: the blob write succeeded but the record never
		// became visible, so remove it rather than leak an orphan.
		if delErr := h.blobStore.Delete(context.Background(), key); delErr != nil {
			h.logger.Error("failed to roll back blob after insert failure", zap.Error(delErr))
		}
		h.logger.Error("relational store insert failed", zap.Error(err))
		return writeErr(c, apierr.Wrap(apierr.DatabaseError, "failed to persist submission", err))
	}

	job := redisqueue.Job{
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		ProblemID:    sub.ProblemID,
		Language:     sub.Language,
		BlobKey:      sub.BlobKey,
		Priority:     string(sub.Priority),
		Attempt:      1,
	}

	if _, err := h.queue.Push(ctx, job); err != nil {
		// Per spec.md §7, a StreamStore push failure is accepted
		// 202-deferred rather than rolled back: the submission stays
		// pending and the sweeper will pick it up.
		h.logger.Warn("job queue push deferred", zap.String("submission_id", sub.ID), zap.Error(err))
		return c.Status(fiber.StatusAccepted).JSON(submitResponse{
			Success: true, SubmissionID: sub.ID, Timestamp: time.Now().UTC().Format(time.RFC3339), Message: "queuing delayed",
		})
	}

	if err := h.subs.MarkQueued(ctx, sub.ID); err != nil {
		h.logger.Warn("failed to mark submission queued", zap.String("submission_id", sub.ID), zap.Error(err))
	}

	if h.metrics != nil {
		h.metrics.SubmissionSize.Observe(float64(len(req.Code)))
	}

	return c.Status(fiber.StatusCreated).JSON(submitResponse{
		Success: true, SubmissionID: sub.ID, Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeErr(c *fiber.Ctx, err error) error {
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		apiErr = apierr.Wrap(apierr.UnknownError, "unexpected error", err)
	}
	return c.Status(apiErr.HTTPStatus()).JSON(errorResponse{Success: false, Error: string(apiErr.Code)})
}

// GetSubmission handles GET /api/submissions/:id.
func (h *Handlers) GetSubmission(c *fiber.Ctx) error {
	sub, err := h.subs.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Success: false, Error: "not found"})
	}
	return c.JSON(sub)
}

// ListUserSubmissions handles GET /api/users/:id/submissions.
func (h *Handlers) ListUserSubmissions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	subs, err := h.subs.ListByUser(c.Context(), c.Params("id"), limit, offset)
	if err != nil {
		return writeErr(c, apierr.Wrap(apierr.DatabaseError, "failed to list submissions", err))
	}
	return c.JSON(subs)
}
