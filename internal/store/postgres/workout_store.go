package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imperfectform/predictbot/internal/domain"
)

// WorkoutStore implements domain.WorkoutStore over the fitness app's
// workouts table.
type WorkoutStore struct {
	pool *pgxpool.Pool
}

// NewWorkoutStore creates a WorkoutStore backed by pool.
func NewWorkoutStore(pool *pgxpool.Pool) *WorkoutStore {
	return &WorkoutStore{pool: pool}
}

func (s *WorkoutStore) Record(ctx context.Context, w domain.Workout) error {
	loggedAt := w.LoggedAt
	if loggedAt.IsZero() {
		loggedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workouts (fid, exercise_type, reps, proof_url, logged_at) VALUES ($1, $2, $3, $4, $5)`,
		int64(w.FID), w.ExerciseType, int64(w.Reps), w.ProofURL, loggedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record workout fid %d: %w", w.FID, err)
	}
	return nil
}

// SumReps totals reps of exerciseType logged in [from, to). Exercise types
// compare case-insensitively.
func (s *WorkoutStore) SumReps(ctx context.Context, fid uint64, exerciseType string, from, to time.Time) (uint64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(reps), 0)::BIGINT FROM workouts
		WHERE fid = $1 AND LOWER(exercise_type) = LOWER($2)
		  AND logged_at >= $3 AND logged_at < $4`,
		int64(fid), exerciseType, from, to,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum reps fid %d: %w", fid, err)
	}
	return uint64(total), nil
}

var _ domain.WorkoutStore = (*WorkoutStore)(nil)
