// Package market is the typed client that reads prediction-market state and
// submits transactions to a ledger deployment selected by chain key.
package market

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/imperfectform/predictbot/internal/domain"
)

// Account is a signing identity that submits transactions.
type Account interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Backend is one ledger deployment. Every state-changing call is a signed
// transaction from the given account and returns once it is included.
type Backend interface {
	CreatePrediction(ctx context.Context, from Account, req domain.CreatePredictionRequest) (domain.TxReceipt, error)
	Vote(ctx context.Context, from Account, id uint64, isYes bool, value *big.Int) (domain.TxReceipt, error)
	ResolvePrediction(ctx context.Context, from Account, id uint64, outcome domain.Outcome) (domain.TxReceipt, error)
	CancelPrediction(ctx context.Context, from Account, id uint64) (domain.TxReceipt, error)
	ClaimReward(ctx context.Context, from Account, id uint64) (domain.TxReceipt, error)
	ClaimRefund(ctx context.Context, from Account, id uint64) (domain.TxReceipt, error)
	CreateChallenge(ctx context.Context, from Account, req domain.CreateChallengeRequest) (domain.TxReceipt, error)
	CompleteChallenge(ctx context.Context, from Account, challengeID uint64) (domain.TxReceipt, error)

	GetPrediction(ctx context.Context, id uint64) (domain.Prediction, error)
	GetUserVote(ctx context.Context, id uint64, user common.Address) (domain.Vote, error)
	GetFeeInfo(ctx context.Context) (domain.FeeInfo, error)
	ListPredictions(ctx context.Context, statuses ...domain.Status) ([]domain.Prediction, error)
	CanCreateSweatEquity(ctx context.Context, id uint64, user common.Address) (bool, error)
	GetChallenge(ctx context.Context, id uint64) (domain.Challenge, error)

	// Events returns events after cursor and the cursor to pass next time.
	Events(ctx context.Context, cursor uint64) ([]domain.Event, uint64, error)
}
