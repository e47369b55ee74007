package ledger

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/fees"
)

// FundRecoveryReserve moves funds from the caller's balance into the reserve
// that pays sweat-equity recoveries.
func (l *Ledger) FundRecoveryReserve(from common.Address, amount *big.Int) (domain.TxReceipt, error) {
	return l.exec(from, "fundRecoveryReserve", amount, nil, func(t *txn) error {
		if amount == nil || amount.Sign() <= 0 {
			return domain.ErrZeroStake
		}
		if l.balance(from).Cmp(amount) < 0 {
			return domain.ErrInsufficientBalance
		}
		amt := new(big.Int).Set(amount)
		t.stage(func() {
			l.debit(from, amt)
			l.reserve.Add(l.reserve, amt)
		})
		t.amount = amt
		return nil
	})
}

// RecoveryReserve returns the funds available for challenge payouts.
func (l *Ledger) RecoveryReserve() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.reserve)
}

// canCreateChallenge must be called with l.mu held.
func (l *Ledger) canCreateChallenge(id uint64, user common.Address) (*domain.Prediction, *domain.Vote, error) {
	p, err := l.prediction(id)
	if err != nil {
		return nil, nil, err
	}
	if p.Status != domain.StatusResolved {
		return nil, nil, domain.ErrChallengeNotAllowed
	}
	v, ok := l.votes[id][user]
	if !ok || !v.HasStake() || v.Claimed || domain.OutcomeFor(v.IsYes) == p.Outcome {
		return nil, nil, domain.ErrChallengeNotAllowed
	}
	if _, exists := l.challengeByPair[challengeKey{id, user}]; exists {
		return nil, nil, domain.ErrChallengeNotAllowed
	}
	return p, v, nil
}

// CanCreateSweatEquity reports whether user holds an unclaimed losing vote on
// a resolved prediction and has no challenge for it yet.
func (l *Ledger) CanCreateSweatEquity(id uint64, user common.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _, err := l.canCreateChallenge(id, user)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrChallengeNotAllowed):
		return false, nil
	default:
		return false, err
	}
}

// CreateChallenge opens a sweat-equity challenge for a losing stake. The
// caller must be the user, the owner, or an authorized bot acting for the
// user. The deadline is the resolution time plus the challenge window.
func (l *Ledger) CreateChallenge(from common.Address, req domain.CreateChallengeRequest) (domain.TxReceipt, error) {
	args := []string{req.User.Hex(), u64(req.PredictionID), req.ExerciseType, u64(req.TargetAmount)}
	return l.exec(from, "createChallenge", nil, args, func(t *txn) error {
		if from != req.User && !l.isOwner(from) && !l.bots[from] {
			return domain.ErrNotCreator
		}
		if strings.TrimSpace(req.ExerciseType) == "" || req.TargetAmount == 0 {
			return domain.ErrInvalidChallenge
		}
		p, v, err := l.canCreateChallenge(req.PredictionID, req.User)
		if err != nil {
			return err
		}
		now := l.now().UTC()
		deadline := p.ResolvedAt.Add(l.cfg.ChallengeWindow)
		if !now.Before(deadline) {
			return domain.ErrChallengeWindowClosed
		}

		id := l.nextChallengeID
		c := &domain.Challenge{
			ID:             id,
			User:           req.User,
			PredictionID:   req.PredictionID,
			ExerciseType:   strings.TrimSpace(req.ExerciseType),
			TargetAmount:   req.TargetAmount,
			Deadline:       deadline,
			StakeAmount:    new(big.Int).Set(v.Amount),
			RecoveryAmount: fees.Percent(v.Amount, l.cfg.RecoveryPercentage),
			CreatedAt:      now,
		}
		t.stage(func() {
			l.challenges[id] = c
			l.challengeByPair[challengeKey{req.PredictionID, req.User}] = id
			l.nextChallengeID = id + 1
		})
		t.predictionID = req.PredictionID
		t.challengeID = id
		t.amount = new(big.Int).Set(c.RecoveryAmount)
		t.emit(domain.Event{
			Type:         domain.EventChallengeCreated,
			PredictionID: req.PredictionID,
			ChallengeID:  id,
			Account:      req.User,
			Amount:       new(big.Int).Set(c.RecoveryAmount),
		})
		return nil
	})
}

// CompleteChallenge marks a challenge completed and pays the recovery amount
// from the reserve in one step. Only the owner or an authorized bot may
// complete challenges. A completed challenge reports ErrChallengeCompleted
// regardless of its deadline so retries are clean no-ops.
func (l *Ledger) CompleteChallenge(from common.Address, challengeID uint64) (domain.TxReceipt, error) {
	return l.exec(from, "completeChallenge", nil, []string{u64(challengeID)}, func(t *txn) error {
		if !l.isOwner(from) && !l.bots[from] {
			return domain.ErrNotVerifier
		}
		c, ok := l.challenges[challengeID]
		if !ok {
			return domain.ErrChallengeNotFound
		}
		if c.Completed {
			return domain.ErrChallengeCompleted
		}
		now := l.now().UTC()
		if now.After(c.Deadline) {
			return domain.ErrChallengeExpired
		}
		if l.reserve.Cmp(c.RecoveryAmount) < 0 {
			return domain.ErrInsufficientReserve
		}
		payout := new(big.Int).Set(c.RecoveryAmount)
		t.stage(func() {
			c.Completed = true
			c.CompletedAt = &now
			l.reserve.Sub(l.reserve, payout)
			l.credit(c.User, payout)
		})
		t.predictionID = c.PredictionID
		t.challengeID = challengeID
		t.amount = payout
		t.emit(domain.Event{
			Type:         domain.EventChallengeCompleted,
			PredictionID: c.PredictionID,
			ChallengeID:  challengeID,
			Account:      c.User,
			Amount:       new(big.Int).Set(payout),
		})
		return nil
	})
}

// GetChallenge returns a copy of the challenge record.
func (l *Ledger) GetChallenge(id uint64) (domain.Challenge, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.challenges[id]
	if !ok {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	return c.Clone(), nil
}

// ChallengeFor returns the challenge a user opened on a prediction.
func (l *Ledger) ChallengeFor(predictionID uint64, user common.Address) (domain.Challenge, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.challengeByPair[challengeKey{predictionID, user}]
	if !ok {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	return l.challenges[id].Clone(), nil
}
