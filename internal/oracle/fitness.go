package oracle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/imperfectform/predictbot/internal/domain"
)

// Fitness resolves FITNESS predictions by totalling the subject's logged
// reps between creation and the target date.
type Fitness struct {
	workouts domain.WorkoutStore
	now      func() time.Time
}

func NewFitness(workouts domain.WorkoutStore, now func() time.Time) *Fitness {
	if now == nil {
		now = time.Now
	}
	return &Fitness{workouts: workouts, now: now}
}

func (f *Fitness) Resolve(ctx context.Context, p domain.Prediction) (Resolution, error) {
	subject, ok := ParseFitnessSubject(p.Title + "\n" + p.Description)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: prediction %d names no FID and exercise", ErrUnsupported, p.ID)
	}
	reps, err := f.workouts.SumReps(ctx, subject.FID, subject.Exercise, p.CreatedAt, p.TargetDate)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: sum reps for fid %d: %v", ErrNoData, subject.FID, err)
	}
	observed := new(big.Int).SetUint64(reps)
	return Resolution{
		Outcome:    threshold(p, observed),
		Observed:   observed,
		Source:     "workouts",
		ObservedAt: f.now().UTC(),
	}, nil
}

var _ Oracle = (*Fitness)(nil)
