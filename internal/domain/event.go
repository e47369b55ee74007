package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names a ledger event.
type EventType string

const (
	EventPredictionCreated   EventType = "PredictionCreated"
	EventVoteCast            EventType = "VoteCast"
	EventPredictionResolved  EventType = "PredictionResolved"
	EventPredictionCancelled EventType = "PredictionCancelled"
	EventRewardClaimed       EventType = "RewardClaimed"
	EventRefundClaimed       EventType = "RefundClaimed"
	EventChallengeCreated    EventType = "ChallengeCreated"
	EventChallengeCompleted  EventType = "ChallengeCompleted"
)

// Event is a flattened ledger event. Fields not carried by a given type are
// left zero.
type Event struct {
	Type         EventType      `json:"type"`
	Seq          uint64         `json:"seq"`
	Chain        string         `json:"chain,omitempty"`
	TxHash       common.Hash    `json:"txHash"`
	PredictionID uint64         `json:"predictionId"`
	Account      common.Address `json:"account"` // creator, voter, or claimant
	Title        string         `json:"title,omitempty"`
	TargetDate   time.Time      `json:"targetDate,omitempty"`
	Category     Category       `json:"category"`
	Network      string         `json:"network,omitempty"`
	IsYes        bool           `json:"isYes,omitempty"`
	Amount       *big.Int       `json:"amount,omitempty"`
	Outcome      Outcome        `json:"outcome"`
	ChallengeID  uint64         `json:"challengeId,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
