package market

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/ledger"
)

// LocalBackend serves a chain from an in-process ledger. Transactions are
// attributed to the account's address; nothing is signed.
type LocalBackend struct {
	ledger *ledger.Ledger
}

var _ Backend = (*LocalBackend)(nil)

// NewLocalBackend wraps l.
func NewLocalBackend(l *ledger.Ledger) *LocalBackend {
	return &LocalBackend{ledger: l}
}

// Ledger returns the wrapped ledger.
func (b *LocalBackend) Ledger() *ledger.Ledger { return b.ledger }

func (b *LocalBackend) CreatePrediction(ctx context.Context, from Account, req domain.CreatePredictionRequest) (domain.TxReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.TxReceipt{}, err
	}
	return b.ledger.CreatePrediction(from.Address(), req)
}

func (b *LocalBackend) Vote(ctx context.Context, from Account, id uint64, isYes bool, value *big.Int) (domain.TxReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.TxReceipt{}, err
	}
	return b.ledger.Vote(from.Address(), id, isYes, value)
}

func (b *LocalBackend) ResolvePrediction(ctx context.Context, from Account, id uint64, outcome domain.Outcome) (domain.TxReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.TxReceipt{}, err
	}
	return b.ledger.ResolvePrediction(from.Address(), id, outcome)
}

func (b *LocalBackend) CancelPrediction(ctx context.Context, from Account, id uint64) (domain.TxReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.TxReceipt{}, err
	}
	return b.ledger.CancelPrediction(from.Address(), id)
}

func (b *LocalBackend) ClaimReward(ctx context.Context, from Account, id uint64) (domain.TxReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.TxReceipt{}, err
	}
	return b.ledger.ClaimReward(from.Address(), id)
}

func (b *LocalBackend) ClaimRefund(ctx context.Context, from Account, id uint64) (domain.TxReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.TxReceipt{}, err
	}
	return b.ledger.ClaimRefund(from.Address(), id)
}

func (b *LocalBackend) CreateChallenge(ctx context.Context, from Account, req domain.CreateChallengeRequest) (domain.TxReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.TxReceipt{}, err
	}
	return b.ledger.CreateChallenge(from.Address(), req)
}

func (b *LocalBackend) CompleteChallenge(ctx context.Context, from Account, challengeID uint64) (domain.TxReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.TxReceipt{}, err
	}
	return b.ledger.CompleteChallenge(from.Address(), challengeID)
}

func (b *LocalBackend) GetPrediction(_ context.Context, id uint64) (domain.Prediction, error) {
	return b.ledger.GetPrediction(id)
}

func (b *LocalBackend) GetUserVote(_ context.Context, id uint64, user common.Address) (domain.Vote, error) {
	return b.ledger.GetUserVote(id, user)
}

func (b *LocalBackend) GetFeeInfo(_ context.Context) (domain.FeeInfo, error) {
	return b.ledger.FeeInfo(), nil
}

func (b *LocalBackend) ListPredictions(_ context.Context, statuses ...domain.Status) ([]domain.Prediction, error) {
	return b.ledger.ListPredictions(statuses...), nil
}

func (b *LocalBackend) CanCreateSweatEquity(_ context.Context, id uint64, user common.Address) (bool, error) {
	return b.ledger.CanCreateSweatEquity(id, user)
}

func (b *LocalBackend) GetChallenge(_ context.Context, id uint64) (domain.Challenge, error) {
	return b.ledger.GetChallenge(id)
}

// Events uses the event sequence number as the cursor.
func (b *LocalBackend) Events(_ context.Context, cursor uint64) ([]domain.Event, uint64, error) {
	events := b.ledger.EventsSince(cursor)
	if len(events) == 0 {
		return nil, cursor, nil
	}
	return events, events[len(events)-1].Seq, nil
}
