package sweat

import (
	"context"
	"fmt"
	"strings"

	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/oracle"
)

// Proof is what the user submits as evidence of completing a challenge.
type Proof struct {
	Text        string `json:"text"`
	MediaURL    string `json:"mediaUrl,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Bytes is the representation archived for audit.
func (p Proof) Bytes() []byte {
	if p.MediaURL == "" {
		return []byte(p.Text)
	}
	return []byte(p.Text + "\n" + p.MediaURL)
}

// Verdict is a verifier's binary decision with its reasoning.
type Verdict struct {
	Approved   bool    `json:"approved"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Verifier judges whether proof shows the challenge was completed. It must
// not change any state.
type Verifier interface {
	Verify(ctx context.Context, ch domain.Challenge, proof Proof) (Verdict, error)
	Name() string
}

// HeuristicVerifier approves proof that states at least the target count
// of the challenge's exercise. When the proof names a Farcaster FID and a
// workout store is configured, logged reps inside the challenge window are
// used instead of the stated count.
type HeuristicVerifier struct {
	workouts domain.WorkoutStore
}

// NewHeuristicVerifier creates a verifier. workouts may be nil.
func NewHeuristicVerifier(workouts domain.WorkoutStore) *HeuristicVerifier {
	return &HeuristicVerifier{workouts: workouts}
}

func (h *HeuristicVerifier) Name() string { return "heuristic" }

func (h *HeuristicVerifier) Verify(ctx context.Context, ch domain.Challenge, proof Proof) (Verdict, error) {
	want := canonicalExercise(ch.ExerciseType)

	if h.workouts != nil {
		if subject, ok := oracle.ParseFitnessSubject(proof.Text); ok && subject.Exercise == want {
			reps, err := h.workouts.SumReps(ctx, subject.FID, want, ch.CreatedAt, ch.Deadline)
			if err != nil {
				return Verdict{}, fmt.Errorf("sweat: heuristic verify: %w", err)
			}
			if reps >= ch.TargetAmount {
				return Verdict{Approved: true, Reasoning: fmt.Sprintf("FID %d logged %d %s, target %d", subject.FID, reps, want, ch.TargetAmount)}, nil
			}
			return Verdict{Reasoning: fmt.Sprintf("FID %d logged %d %s, short of %d", subject.FID, reps, want, ch.TargetAmount)}, nil
		}
	}

	best, ok := oracle.StatedCount(proof.Text, want)
	if !ok {
		return Verdict{Reasoning: fmt.Sprintf("proof does not state a count of %s", want)}, nil
	}
	if best < ch.TargetAmount {
		return Verdict{Reasoning: fmt.Sprintf("proof claims %d %s, target %d", best, want, ch.TargetAmount)}, nil
	}
	return Verdict{Approved: true, Reasoning: fmt.Sprintf("proof claims %d %s, target %d", best, want, ch.TargetAmount)}, nil
}

func canonicalExercise(s string) string {
	if canon, ok := oracle.NormalizeExercise(s); ok {
		return canon
	}
	return strings.ToLower(strings.TrimSpace(s))
}

var _ Verifier = (*HeuristicVerifier)(nil)
