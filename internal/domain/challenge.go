package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ChallengeState is derived from a challenge record and the current time.
type ChallengeState string

const (
	ChallengePending  ChallengeState = "pending"
	ChallengeVerified ChallengeState = "verified"
	ChallengeExpired  ChallengeState = "expired"
)

// Challenge is a sweat-equity challenge: a losing staker may recover part of
// their stake by completing TargetAmount of ExerciseType before Deadline.
type Challenge struct {
	ID             uint64
	User           common.Address
	PredictionID   uint64
	ExerciseType   string
	TargetAmount   uint64
	Deadline       time.Time
	Completed      bool
	StakeAmount    *big.Int // the losing stake
	RecoveryAmount *big.Int // paid on completion
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// State returns the challenge state as of now.
func (c Challenge) State(now time.Time) ChallengeState {
	switch {
	case c.Completed:
		return ChallengeVerified
	case now.After(c.Deadline):
		return ChallengeExpired
	default:
		return ChallengePending
	}
}

// Clone returns a deep copy.
func (c Challenge) Clone() Challenge {
	out := c
	out.StakeAmount = cloneInt(c.StakeAmount)
	out.RecoveryAmount = cloneInt(c.RecoveryAmount)
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// CreateChallengeRequest carries the createChallenge arguments.
type CreateChallengeRequest struct {
	User         common.Address
	PredictionID uint64
	ExerciseType string
	TargetAmount uint64
}
