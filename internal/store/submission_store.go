package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the Relational Store's CRUD surface over the submissions
// table, mirroring the teacher's messages.Store shape: one struct
// wrapping *DB plus a logger-free set of query methods (callers log
// around these calls, the store itself stays silent on success).
type Store struct {
	db *DB
}

// NewStore wraps db for submission CRUD.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Insert creates a new submission row in pending status and assigns
// it a server-generated UUID.
func (s *Store) Insert(ctx context.Context, sub *Submission) error {
	sub.ID = uuid.New().String()
	sub.Status = StatusPending
	sub.SubmittedAt = time.Now().UTC()

	metaJSON, err := json.Marshal(sub.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `INSERT INTO submissions
		(id, user_id, problem_id, language, blob_key, code_size_bytes, status,
		 time_limit_ms, memory_limit_kb, priority, submitted_at, metadata, max_score)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err = s.db.ExecContext(ctx, query,
		sub.ID, sub.UserID, sub.ProblemID, sub.Language, sub.BlobKey, sub.CodeSizeBytes, sub.Status,
		sub.TimeLimitMs, sub.MemoryLimitKB, sub.Priority, sub.SubmittedAt, metaJSON, sub.MaxScore)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

// Delete removes a submission row outright. Nothing in the intake or
// worker path calls it: when Insert fails there is no row to remove,
// and the intake compensation path deletes only the blob.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM submissions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete submission %s: %w", id, err)
	}
	return nil
}

func scanSubmission(row rowScanner) (*Submission, error) {
	var sub Submission
	var metaJSON []byte
	var verdict, errorMessage sql.NullString
	var queuedAt, startedAt, completedAt sql.NullTime

	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.ProblemID, &sub.Language, &sub.BlobKey, &sub.CodeSizeBytes,
		&sub.Status, &verdict, &sub.Score, &sub.MaxScore, &sub.PassedTests, &sub.TotalTests,
		&sub.ExecutionTimeMs, &sub.PeakMemoryKB, &errorMessage,
		&sub.TimeLimitMs, &sub.MemoryLimitKB, &sub.Priority,
		&sub.SubmittedAt, &queuedAt, &startedAt, &completedAt,
		&sub.Attempts, &metaJSON,
	)
	if err != nil {
		return nil, err
	}

	if verdict.Valid {
		sub.Verdict = Verdict(verdict.String)
	}
	if errorMessage.Valid {
		sub.ErrorMessage = &errorMessage.String
	}
	if queuedAt.Valid {
		sub.QueuedAt = &queuedAt.Time
	}
	if startedAt.Valid {
		sub.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		sub.CompletedAt = &completedAt.Time
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &sub.Metadata)
	}
	return &sub, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const selectColumns = `id, user_id, problem_id, language, blob_key, code_size_bytes,
	status, verdict, score, max_score, passed_tests, total_tests,
	execution_time_ms, peak_memory_kb, error_message,
	time_limit_ms, memory_limit_kb, priority,
	submitted_at, queued_at, started_at, completed_at,
	attempts, metadata`

// GetByID fetches a single submission by its opaque ID.
func (s *Store) GetByID(ctx context.Context, id string) (*Submission, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM submissions WHERE id = $1", id)
	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("submission not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission %s: %w", id, err)
	}
	return sub, nil
}

// ListByUser returns a user's submissions, most recent first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM submissions WHERE user_id = $1 ORDER BY submitted_at DESC LIMIT $2 OFFSET $3",
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions for user %s: %w", userID, err)
	}
	defer rows.Close()
	return scanAll(rows)
}

func scanAll(rows *sql.Rows) ([]*Submission, error) {
	var out []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission row: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return out, nil
}

// MarkQueued transitions pending -> queued. Per spec.md §4.2 step 4,
// failure here is non-fatal to the caller: a worker will move the row
// straight to processing regardless.
func (s *Store) MarkQueued(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		"UPDATE submissions SET status = $2, queued_at = $3 WHERE id = $1 AND status = $4",
		id, StatusQueued, now, StatusPending)
	return err
}

// MarkProcessing transitions {pending, queued} -> processing. Used by
// the worker when it picks up a claimed job; tolerant of a submission
// that skipped the queued update.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET status = $2, started_at = $3
		 WHERE id = $1 AND status IN ($4, $5)`,
		id, StatusProcessing, now, StatusPending, StatusQueued)
	if err != nil {
		return fmt.Errorf("failed to mark submission %s processing: %w", id, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrAlreadyAdvanced
	}
	return nil
}

// ErrAlreadyAdvanced is returned when a worker tries to advance a
// submission's status but another attempt already moved it past the
// expected state — the at-least-once delivery contract requires
// callers to treat this as "ack and skip", not a failure.
var ErrAlreadyAdvanced = fmt.Errorf("submission already advanced past expected status")

// CompleteResult carries the fields a terminal status transition
// writes in one statement.
type CompleteResult struct {
	Status          Status
	Verdict         Verdict
	Score           float64
	MaxScore        float64
	PassedTests     int
	TotalTests      int
	ExecutionTimeMs int
	PeakMemoryKB    int
	ErrorMessage    *string
}

// Complete writes a terminal status (completed, failed, or timeout)
// along with the judged result.
func (s *Store) Complete(ctx context.Context, id string, r CompleteResult) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE submissions SET
			status = $2, verdict = $3, score = $4, max_score = $5,
			passed_tests = $6, total_tests = $7, execution_time_ms = $8,
			peak_memory_kb = $9, error_message = $10, completed_at = $11
		WHERE id = $1`,
		id, r.Status, r.Verdict, r.Score, r.MaxScore, r.PassedTests, r.TotalTests,
		r.ExecutionTimeMs, r.PeakMemoryKB, r.ErrorMessage, now)
	if err != nil {
		return fmt.Errorf("failed to complete submission %s: %w", id, err)
	}
	return nil
}

// IncrementAttempts bumps the retry attempt counter.
func (s *Store) IncrementAttempts(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE submissions SET attempts = attempts + 1 WHERE id = $1", id)
	return err
}

// PendingOlderThan returns pending submissions whose submitted_at
// predates the cutoff, for the sweeper to re-enqueue.
func (s *Store) PendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM submissions WHERE status = $1 AND submitted_at < $2 ORDER BY submitted_at ASC LIMIT $3",
		StatusPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale pending submissions: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// HealthCheck pings the underlying database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}
