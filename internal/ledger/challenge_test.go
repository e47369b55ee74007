package ledger

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/imperfectform/predictbot/internal/domain"
)

func resolvedWithLoser(t *testing.T, l *Ledger, clock *fakeClock) uint64 {
	t.Helper()
	id := createPrediction(t, l, clock, true)
	mustVote(t, l, user1, id, true, ether(1))
	mustVote(t, l, user2, id, false, ether(5))
	if _, err := l.ResolvePrediction(owner, id, domain.OutcomeYes); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := l.FundRecoveryReserve(owner, ether(50)); err != nil {
		t.Fatalf("FundRecoveryReserve: %v", err)
	}
	return id
}

func TestCanCreateSweatEquityGate(t *testing.T) {
	l, clock := newTestLedger(t)
	active := createPrediction(t, l, clock, false)
	mustVote(t, l, user2, active, false, ether(1))
	id := resolvedWithLoser(t, l, clock)

	tests := []struct {
		name string
		id   uint64
		user common.Address
		want bool
	}{
		{"winner", id, user1, false},
		{"loser", id, user2, true},
		{"non-voter", id, user3, false},
		{"unresolved", active, user2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.CanCreateSweatEquity(tt.id, tt.user)
			if err != nil {
				t.Fatalf("CanCreateSweatEquity: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := l.CreateChallenge(user2, domain.CreateChallengeRequest{
		User: user2, PredictionID: id, ExerciseType: "pushups", TargetAmount: 100,
	}); err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if ok, _ := l.CanCreateSweatEquity(id, user2); ok {
		t.Fatal("gate open after challenge created")
	}
	if _, err := l.CanCreateSweatEquity(99, user2); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing prediction err = %v", err)
	}
}

func TestCreateChallengeRules(t *testing.T) {
	l, clock := newTestLedger(t)
	id := resolvedWithLoser(t, l, clock)

	req := domain.CreateChallengeRequest{User: user2, PredictionID: id, ExerciseType: "squats", TargetAmount: 50}
	if _, err := l.CreateChallenge(user3, req); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("stranger create err = %v", err)
	}
	bad := req
	bad.TargetAmount = 0
	if _, err := l.CreateChallenge(user2, bad); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("zero target err = %v", err)
	}
	winner := req
	winner.User = user1
	if _, err := l.CreateChallenge(user1, winner); !errors.Is(err, domain.ErrChallengeNotAllowed) {
		t.Fatalf("winner create err = %v", err)
	}

	rcpt, err := l.CreateChallenge(bot, req)
	if err != nil {
		t.Fatalf("bot create for user: %v", err)
	}
	c, err := l.GetChallenge(rcpt.ChallengeID)
	if err != nil {
		t.Fatalf("GetChallenge: %v", err)
	}
	if c.RecoveryAmount.Cmp(ether(4)) != 0 {
		t.Fatalf("recovery = %s, want 80%% of 5 ether", c.RecoveryAmount)
	}
	p, _ := l.GetPrediction(id)
	if !c.Deadline.Equal(p.ResolvedAt.Add(24 * time.Hour)) {
		t.Fatalf("deadline = %s", c.Deadline)
	}
	if c.State(clock.Now()) != domain.ChallengePending {
		t.Fatalf("state = %s", c.State(clock.Now()))
	}
	if _, err := l.CreateChallenge(user2, req); !errors.Is(err, domain.ErrChallengeNotAllowed) {
		t.Fatalf("duplicate create err = %v", err)
	}
}

func TestCreateChallengeWindowClosed(t *testing.T) {
	l, clock := newTestLedger(t)
	id := resolvedWithLoser(t, l, clock)
	clock.Advance(24 * time.Hour)
	_, err := l.CreateChallenge(user2, domain.CreateChallengeRequest{
		User: user2, PredictionID: id, ExerciseType: "pushups", TargetAmount: 10,
	})
	if !errors.Is(err, domain.ErrChallengeWindowClosed) {
		t.Fatalf("err = %v", err)
	}
}

func TestCompleteChallengePaysOnce(t *testing.T) {
	l, clock := newTestLedger(t)
	id := resolvedWithLoser(t, l, clock)
	rcpt, err := l.CreateChallenge(user2, domain.CreateChallengeRequest{
		User: user2, PredictionID: id, ExerciseType: "pushups", TargetAmount: 100,
	})
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	cid := rcpt.ChallengeID

	if _, err := l.CompleteChallenge(user2, cid); !errors.Is(err, domain.ErrNotVerifier) {
		t.Fatalf("self-complete err = %v", err)
	}

	before := l.BalanceOf(user2)
	reserve := l.RecoveryReserve()
	done, err := l.CompleteChallenge(bot, cid)
	if err != nil {
		t.Fatalf("CompleteChallenge: %v", err)
	}
	if done.Amount.Cmp(ether(4)) != 0 {
		t.Fatalf("payout = %s", done.Amount)
	}
	if got := new(big.Int).Sub(l.BalanceOf(user2), before); got.Cmp(ether(4)) != 0 {
		t.Fatalf("user gained %s", got)
	}
	if got := new(big.Int).Sub(reserve, l.RecoveryReserve()); got.Cmp(ether(4)) != 0 {
		t.Fatalf("reserve paid %s", got)
	}

	clock.Advance(48 * time.Hour)
	if _, err := l.CompleteChallenge(bot, cid); !errors.Is(err, domain.ErrChallengeCompleted) {
		t.Fatalf("retry err = %v, want already completed", err)
	}
	if got := new(big.Int).Sub(l.BalanceOf(user2), before); got.Cmp(ether(4)) != 0 {
		t.Fatalf("retry paid again: gained %s", got)
	}
	c, _ := l.GetChallenge(cid)
	if c.State(clock.Now()) != domain.ChallengeVerified {
		t.Fatalf("state = %s", c.State(clock.Now()))
	}
}

func TestCompleteChallengeExpiredAndUnderfunded(t *testing.T) {
	l, clock := newTestLedger(t)
	id := createPrediction(t, l, clock, true)
	mustVote(t, l, user1, id, true, ether(1))
	mustVote(t, l, user2, id, false, ether(5))
	if _, err := l.ResolvePrediction(owner, id, domain.OutcomeYes); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	rcpt, err := l.CreateChallenge(user2, domain.CreateChallengeRequest{
		User: user2, PredictionID: id, ExerciseType: "pushups", TargetAmount: 100,
	})
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	if _, err := l.CompleteChallenge(owner, rcpt.ChallengeID); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("unfunded err = %v", err)
	}
	c, _ := l.GetChallenge(rcpt.ChallengeID)
	if c.Completed {
		t.Fatal("challenge completed without payout")
	}

	clock.Advance(25 * time.Hour)
	if _, err := l.FundRecoveryReserve(owner, ether(10)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if _, err := l.CompleteChallenge(owner, rcpt.ChallengeID); !errors.Is(err, domain.ErrChallengeExpired) {
		t.Fatalf("expired err = %v", err)
	}
	c, _ = l.GetChallenge(rcpt.ChallengeID)
	if c.State(clock.Now()) != domain.ChallengeExpired {
		t.Fatalf("state = %s", c.State(clock.Now()))
	}
	if _, err := l.CompleteChallenge(owner, 42); !errors.Is(err, domain.ErrChallengeNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}
