package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestDB spins up a disposable Postgres container, runs the real
// migrations against it, and returns a ready Store. Skipped in short
// mode; fails when Docker is not reachable from the test environment.
func newTestDB(t *testing.T) (*DB, *Store) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping testcontainers-backed test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("codearena_test"),
		postgres.WithUsername("codearena"),
		postgres.WithPassword("codearena"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.RunMigrations("../../migrations"))

	return db, NewStore(db)
}

func TestStore_InsertAndGetByID(t *testing.T) {
	_, store := newTestDB(t)
	ctx := context.Background()

	sub := &Submission{
		UserID: "u1", ProblemID: "two-sum", Language: "python", BlobKey: "u1/two-sum/python/abc",
		CodeSizeBytes: 42, TimeLimitMs: 2000, MemoryLimitKB: 256 * 1024, Priority: PriorityNormal,
		MaxScore: 2, Metadata: map[string]string{"test_cases": "[]"},
	}
	require.NoError(t, store.Insert(ctx, sub))
	assert.NotEmpty(t, sub.ID)

	got, err := store.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, sub.ProblemID, got.ProblemID)
	assert.Equal(t, sub.MemoryLimitKB, got.MemoryLimitKB)
}

func TestStore_StatusTransitions(t *testing.T) {
	_, store := newTestDB(t)
	ctx := context.Background()

	sub := &Submission{
		UserID: "u1", ProblemID: "p1", Language: "go", BlobKey: "key",
		TimeLimitMs: 1000, MemoryLimitKB: 1024, Priority: PriorityHigh,
	}
	require.NoError(t, store.Insert(ctx, sub))

	require.NoError(t, store.MarkQueued(ctx, sub.ID))
	require.NoError(t, store.MarkProcessing(ctx, sub.ID))

	// A second MarkProcessing call must report the already-advanced
	// sentinel rather than silently re-applying the transition.
	err := store.MarkProcessing(ctx, sub.ID)
	assert.ErrorIs(t, err, ErrAlreadyAdvanced)

	require.NoError(t, store.Complete(ctx, sub.ID, CompleteResult{
		Status: StatusCompleted, Verdict: VerdictAccepted, Score: 1, MaxScore: 1, PassedTests: 1, TotalTests: 1,
	}))

	got, err := store.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, VerdictAccepted, got.Verdict)
	assert.NotNil(t, got.CompletedAt)
}

func TestStore_ListByUser(t *testing.T) {
	_, store := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sub := &Submission{UserID: "listed-user", ProblemID: "p1", Language: "go", BlobKey: "k", TimeLimitMs: 1000, MemoryLimitKB: 1024, Priority: PriorityNormal}
		require.NoError(t, store.Insert(ctx, sub))
	}

	subs, err := store.ListByUser(ctx, "listed-user", 10, 0)
	require.NoError(t, err)
	assert.Len(t, subs, 3)
}
