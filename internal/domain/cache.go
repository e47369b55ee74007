package domain

import (
	"context"
	"time"
)

// PredictionCache provides fast prediction lookups in front of a ledger.
type PredictionCache interface {
	Set(ctx context.Context, chain string, p Prediction) error
	Get(ctx context.Context, chain string, id uint64) (Prediction, error)
	Invalidate(ctx context.Context, chain string, id uint64) error
}

// Draft is a proposal awaiting the user's confirmation.
type Draft struct {
	ConversationID string                  `json:"conversationId"`
	Sender         string                  `json:"sender"`
	Chain          string                  `json:"chain"`
	Request        CreatePredictionRequest `json:"request"`
	CreatedAt      time.Time               `json:"createdAt"`
}

// DraftStore holds pending proposals per conversation.
type DraftStore interface {
	Put(ctx context.Context, d Draft, ttl time.Duration) error
	Get(ctx context.Context, conversationID string) (Draft, error)
	Delete(ctx context.Context, conversationID string) error
}

// Deduper remembers keys for a while. FirstSeen records key and reports
// whether it was new.
type Deduper interface {
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// Bus channel and stream names for ledger events.
const (
	ChannelLedgerPrefix = "ch:ledger:"
	ChannelLedgerAll    = ChannelLedgerPrefix + "*"
	ChannelBot          = "ch:bot"
	StreamLedger        = "stream:ledger"
)

// LedgerChannel is the pub/sub channel carrying one chain's ledger events.
func LedgerChannel(chain string) string { return ChannelLedgerPrefix + chain }

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
