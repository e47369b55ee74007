package sweat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/imperfectform/predictbot/internal/domain"
)

type fixedWorkouts struct {
	reps uint64
	err  error
	got  struct {
		fid      uint64
		exercise string
	}
}

func (f *fixedWorkouts) Record(context.Context, domain.Workout) error { return nil }

func (f *fixedWorkouts) SumReps(_ context.Context, fid uint64, exercise string, _, _ time.Time) (uint64, error) {
	f.got.fid, f.got.exercise = fid, exercise
	return f.reps, f.err
}

func pushupChallenge() domain.Challenge {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return domain.Challenge{ID: 1, ExerciseType: "pushups", TargetAmount: 100, CreatedAt: start, Deadline: start.Add(24 * time.Hour)}
}

func TestHeuristicVerifierStatedCount(t *testing.T) {
	tests := []struct {
		name  string
		proof string
		want  bool
	}{
		{"meets target", "Did 100 pushups today", true},
		{"thousands separator", "1,200 push ups over the weekend", true},
		{"below target", "Managed 99 push-ups", false},
		{"no count", "did my pushups", false},
		{"other exercise", "150 squats", false},
		{"empty", "", false},
		{"date is not a count", "Did 20 pushups on 2025-03-01", false},
		{"fid is not a count", "FID 500 did 10 pushups", false},
		{"time is not a count", "20 pushups at 1130 am", false},
		{"reps of", "150 reps of push-ups, logged 2025-03-01", true},
	}
	v := NewHeuristicVerifier(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(context.Background(), pushupChallenge(), Proof{Text: tt.proof})
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if got.Approved != tt.want {
				t.Fatalf("approved = %v, want %v (%s)", got.Approved, tt.want, got.Reasoning)
			}
			if got.Reasoning == "" {
				t.Error("empty reasoning")
			}
		})
	}
}

func TestHeuristicVerifierUsesLoggedWorkouts(t *testing.T) {
	store := &fixedWorkouts{reps: 40}
	v := NewHeuristicVerifier(store)

	got, err := v.Verify(context.Background(), pushupChallenge(), Proof{Text: "FID 77 did 500 pushups"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.Approved {
		t.Fatal("stated count should not override logged reps")
	}
	if store.got.fid != 77 || store.got.exercise != "pushups" {
		t.Errorf("queried %+v", store.got)
	}

	store.reps = 120
	got, _ = v.Verify(context.Background(), pushupChallenge(), Proof{Text: "FID 77 did 500 pushups"})
	if !got.Approved || !strings.Contains(got.Reasoning, "logged 120") {
		t.Fatalf("verdict = %+v, want approved from logged reps", got)
	}

	store.err = errors.New("db down")
	if _, err := v.Verify(context.Background(), pushupChallenge(), Proof{Text: "fid:77 pushups"}); err == nil {
		t.Fatal("expected store error")
	}
}

type cannedCompleter struct {
	reply  Verdict
	err    error
	system string
}

func (c *cannedCompleter) CompleteJSON(_ context.Context, system, _ string, out any) error {
	c.system = system
	if c.err != nil {
		return c.err
	}
	*(out.(*Verdict)) = c.reply
	return nil
}

func TestLLMVerifier(t *testing.T) {
	tests := []struct {
		name  string
		reply Verdict
		want  bool
	}{
		{"confident approval", Verdict{Approved: true, Reasoning: "video shows 100 reps", Confidence: 0.9}, true},
		{"unsure approval", Verdict{Approved: true, Reasoning: "blurry", Confidence: 0.4}, false},
		{"rejection", Verdict{Approved: false, Reasoning: "no evidence", Confidence: 0.95}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &cannedCompleter{reply: tt.reply}
			got, err := NewLLMVerifier(llm, 0.7).Verify(context.Background(), pushupChallenge(), Proof{Text: "see video", MediaURL: "https://example.com/v.mp4"})
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if got.Approved != tt.want {
				t.Fatalf("approved = %v, want %v", got.Approved, tt.want)
			}
			if !strings.Contains(llm.system, "100 pushups") {
				t.Errorf("prompt missing target: %q", llm.system)
			}
		})
	}

	_, err := NewLLMVerifier(&cannedCompleter{err: domain.ErrExternalDependency}, 0).Verify(context.Background(), pushupChallenge(), Proof{Text: "x"})
	if !errors.Is(err, domain.ErrExternalDependency) {
		t.Fatalf("err = %v, want ErrExternalDependency", err)
	}
}
