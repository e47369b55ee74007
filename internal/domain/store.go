package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// PredictionRecord is the off-ledger index row kept for a prediction.
type PredictionRecord struct {
	Chain        string
	PredictionID uint64
	TxHash       string
	Creator      string
	Title        string
	Category     Category
	TargetDate   time.Time
	Status       Status
	Outcome      Outcome
	Source       string // "api", "bot"
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PredictionIndex mirrors ledger events into a queryable table.
type PredictionIndex interface {
	Upsert(ctx context.Context, rec PredictionRecord) error
	UpdateStatus(ctx context.Context, chain string, id uint64, status Status, outcome Outcome) error
	Get(ctx context.Context, chain string, id uint64) (PredictionRecord, error)
	ListByStatus(ctx context.Context, chain string, status Status, opts ListOpts) ([]PredictionRecord, error)
}

// Workout is one logged exercise session.
type Workout struct {
	ID           int64
	FID          uint64
	ExerciseType string
	Reps         uint64
	ProofURL     string
	LoggedAt     time.Time
}

// WorkoutStore reads and records workout activity used by the fitness
// oracle and challenge verification.
type WorkoutStore interface {
	Record(ctx context.Context, w Workout) error
	SumReps(ctx context.Context, fid uint64, exerciseType string, from, to time.Time) (uint64, error)
}

// ChallengeRecord tracks verification attempts for a challenge.
type ChallengeRecord struct {
	Chain       string
	ChallengeID uint64
	User        string
	ProofKey    string
	Approved    bool
	Reason      string
	TxHash      string
	CreatedAt   time.Time
}

// ChallengeStore persists verification attempts.
type ChallengeStore interface {
	RecordAttempt(ctx context.Context, rec ChallengeRecord) error
	ListAttempts(ctx context.Context, chain string, challengeID uint64) ([]ChallengeRecord, error)
}
