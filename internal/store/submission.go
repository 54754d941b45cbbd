// Package store is the Relational Store (RS): submission records,
// status, metrics, indexes, backed by Postgres.
package store

import "time"

// Status is one of the values in the submission lifecycle DAG:
// pending -> queued -> processing -> {completed, failed, timeout}.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
)

// Verdict is the final judgment of a submission.
type Verdict string

const (
	VerdictAccepted        Verdict = "AC"
	VerdictWrongAnswer     Verdict = "WA"
	VerdictTimeLimit       Verdict = "TLE"
	VerdictMemoryLimit     Verdict = "MLE"
	VerdictRuntimeError    Verdict = "RE"
	VerdictCompileError    Verdict = "CE"
	VerdictInternalError   Verdict = "IE"
	VerdictPresentation    Verdict = "PE"
	VerdictSkipped         Verdict = "SK"
)

// Priority is the submission's scheduling class.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Submission is the authoritative row for a single user's request to
// run code against optional test cases.
type Submission struct {
	ID        string
	UserID    string
	ProblemID string
	Language  string
	BlobKey   string

	CodeSizeBytes int
	Status        Status
	Verdict       Verdict

	Score          float64
	MaxScore       float64
	PassedTests    int
	TotalTests     int
	ExecutionTimeMs int
	PeakMemoryKB    int
	ErrorMessage    *string

	TimeLimitMs   int
	MemoryLimitKB int
	Priority      Priority

	SubmittedAt time.Time
	QueuedAt    *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	Attempts int
	Metadata map[string]string
}

// SupportedLanguages is the authoritative language set from spec.md
// §4.2 step 2.
var SupportedLanguages = map[string]bool{
	"javascript": true,
	"typescript": true,
	"python":     true,
	"java":       true,
	"cpp":        true,
	"c":          true,
	"go":         true,
	"rust":       true,
	"ruby":       true,
	"php":        true,
}
