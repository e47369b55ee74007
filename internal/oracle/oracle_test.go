package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/imperfectform/predictbot/internal/domain"
)

type fakeWorkouts struct {
	reps     uint64
	err      error
	gotFID   uint64
	gotType  string
	from, to time.Time
}

func (f *fakeWorkouts) Record(context.Context, domain.Workout) error { return nil }

func (f *fakeWorkouts) SumReps(_ context.Context, fid uint64, exerciseType string, from, to time.Time) (uint64, error) {
	f.gotFID, f.gotType, f.from, f.to = fid, exerciseType, from, to
	return f.reps, f.err
}

type fakeHead struct {
	height uint64
	calls  int
	err    error
}

func (f *fakeHead) BlockNumber(context.Context) (uint64, error) {
	f.calls++
	return f.height, f.err
}

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func fitnessPrediction(target int64) domain.Prediction {
	return domain.Prediction{
		ID:          4,
		Title:       "FID 123 will do 500 push-ups by May 31",
		Category:    domain.CategoryFitness,
		TargetValue: big.NewInt(target),
		CreatedAt:   now.AddDate(0, -1, 0),
		TargetDate:  now.Add(-time.Hour),
	}
}

func TestParseFitnessSubject(t *testing.T) {
	tests := []struct {
		text string
		want FitnessSubject
		ok   bool
	}{
		{"I predict FID 123 will do 500 pushups by March 1", FitnessSubject{123, "pushups"}, true},
		{"fid:77 hits 300 Sit-Ups this week", FitnessSubject{77, "situps"}, true},
		{"FID #9 does 50 jumping jacks", FitnessSubject{9, "jumping_jacks"}, true},
		{"FID 12 will run a marathon", FitnessSubject{}, false},
		{"someone will do 100 squats", FitnessSubject{}, false},
	}
	for _, tc := range tests {
		got, ok := ParseFitnessSubject(tc.text)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseFitnessSubject(%q) = %+v, %v; want %+v, %v", tc.text, got, ok, tc.want, tc.ok)
		}
	}
}

func TestStatedCount(t *testing.T) {
	tests := []struct {
		text string
		want uint64
		ok   bool
	}{
		{"Did 120 pushups today", 120, true},
		{"1,200 push ups over the weekend", 1200, true},
		{"30 reps of squats then 40 pushups", 40, true},
		{"10 pushups, then 25 pushups", 25, true},
		{"Did 20 pushups on 2025-03-01", 20, true},
		{"FID 500 did 10 pushups", 10, true},
		{"20 pushups at 1130 am", 20, true},
		{"150 squats on 2025-03-01", 0, false},
		{"did my pushups", 0, false},
	}
	for _, tc := range tests {
		got, ok := StatedCount(tc.text, "pushups")
		if ok != tc.ok || got != tc.want {
			t.Errorf("StatedCount(%q) = %d, %v; want %d, %v", tc.text, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFitnessThreshold(t *testing.T) {
	tests := []struct {
		name string
		reps uint64
		want domain.Outcome
	}{
		{"reached", 500, domain.OutcomeYes},
		{"exceeded", 640, domain.OutcomeYes},
		{"short", 499, domain.OutcomeNo},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := &fakeWorkouts{reps: tc.reps}
			p := fitnessPrediction(500)
			res, err := NewFitness(w, clock).Resolve(context.Background(), p)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if res.Outcome != tc.want {
				t.Errorf("outcome = %v, want %v", res.Outcome, tc.want)
			}
			if w.gotFID != 123 || w.gotType != "pushups" || !w.from.Equal(p.CreatedAt) || !w.to.Equal(p.TargetDate) {
				t.Errorf("SumReps called with fid=%d type=%q window=%v..%v", w.gotFID, w.gotType, w.from, w.to)
			}
		})
	}
}

func TestFitnessStoreErrorIsNoData(t *testing.T) {
	w := &fakeWorkouts{err: errors.New("connection refused")}
	_, err := NewFitness(w, clock).Resolve(context.Background(), fitnessPrediction(1))
	if !errors.Is(err, ErrNoData) || !errors.Is(err, domain.ErrExternalDependency) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestFitnessWithoutSubjectIsUnsupported(t *testing.T) {
	p := fitnessPrediction(1)
	p.Title = "Alice will get fit"
	_, err := NewFitness(&fakeWorkouts{}, clock).Resolve(context.Background(), p)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestChainCachesHeight(t *testing.T) {
	head := &fakeHead{height: 1_000_000}
	o := NewChain(map[string]HeadReader{"base": head}, time.Minute, clock)
	p := domain.Prediction{ID: 1, Category: domain.CategoryChain, Network: "Base", TargetValue: big.NewInt(999_999)}

	for i := 0; i < 3; i++ {
		res, err := o.Resolve(context.Background(), p)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if res.Outcome != domain.OutcomeYes || res.Observed.Uint64() != 1_000_000 {
			t.Errorf("resolution = %+v", res)
		}
	}
	if head.calls != 1 {
		t.Errorf("BlockNumber calls = %d, want 1", head.calls)
	}
}

func TestChainErrors(t *testing.T) {
	o := NewChain(map[string]HeadReader{"celo": &fakeHead{err: errors.New("timeout")}}, time.Minute, clock)

	_, err := o.Resolve(context.Background(), domain.Prediction{Network: "celo"})
	if !errors.Is(err, ErrNoData) {
		t.Errorf("rpc failure: err = %v, want ErrNoData", err)
	}
	_, err = o.Resolve(context.Background(), domain.Prediction{Network: "solana"})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("unknown network: err = %v, want ErrUnsupported", err)
	}
}

func TestRouterDispatchesByCategory(t *testing.T) {
	r := NewRouter().Handle(domain.CategoryCommunity, Func(func(context.Context, domain.Prediction) (Resolution, error) {
		return Resolution{Outcome: domain.OutcomeNo, Source: "stub"}, nil
	}))

	res, err := r.Resolve(context.Background(), domain.Prediction{Category: domain.CategoryCommunity})
	if err != nil || res.Source != "stub" {
		t.Errorf("community: %+v, %v", res, err)
	}
	if _, err := r.Resolve(context.Background(), domain.Prediction{Category: domain.CategoryCustom}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("custom: err = %v, want ErrUnsupported", err)
	}
}
