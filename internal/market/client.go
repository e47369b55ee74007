package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/imperfectform/predictbot/internal/chain"
	"github.com/imperfectform/predictbot/internal/domain"
)

// Result is the outcome of CreateChainPrediction.
type Result struct {
	Success      bool     `json:"success"`
	TxHash       string   `json:"txHash,omitempty"`
	PredictionID uint64   `json:"predictionId,omitempty"`
	ExplorerURL  string   `json:"explorerUrl,omitempty"`
	Error        *TxError `json:"error,omitempty"`
}

// Client selects a ledger deployment by chain key and classifies every
// failure into a TxError. It never holds funds.
type Client struct {
	registry *chain.Registry
	backends map[string]Backend
	cache    domain.PredictionCache
	logger   *slog.Logger
}

// NewClient builds a client. Every registry key must have a backend. cache
// may be nil.
func NewClient(registry *chain.Registry, backends map[string]Backend, cache domain.PredictionCache, logger *slog.Logger) (*Client, error) {
	for _, key := range registry.Keys() {
		if backends[key] == nil {
			return nil, fmt.Errorf("market: %w: no backend for chain %q", domain.ErrValidation, key)
		}
	}
	return &Client{
		registry: registry,
		backends: backends,
		cache:    cache,
		logger:   logger.With(slog.String("component", "market_client")),
	}, nil
}

// Registry returns the chain table the client serves.
func (c *Client) Registry() *chain.Registry { return c.registry }

// Backend resolves a chain key to its descriptor and backend.
func (c *Client) Backend(chainKey string) (chain.Descriptor, Backend, error) {
	desc, err := c.registry.Get(chainKey)
	if err != nil {
		return chain.Descriptor{}, nil, classified(err)
	}
	return desc, c.backends[desc.Key], nil
}

// CreateChainPrediction submits createPrediction on the named chain, signed by
// signer. Failures are reported in Result.Error rather than as a Go error.
func (c *Client) CreateChainPrediction(ctx context.Context, chainKey string, req domain.CreatePredictionRequest, signer Account) Result {
	desc, backend, err := c.Backend(chainKey)
	if err != nil {
		return Result{Error: Classify(err)}
	}
	rcpt, err := backend.CreatePrediction(ctx, signer, req)
	if err != nil {
		te := Classify(err)
		c.logger.WarnContext(ctx, "create prediction failed",
			slog.String("chain", desc.Key),
			slog.String("code", string(te.Code)),
			slog.String("error", err.Error()),
		)
		return Result{Error: te}
	}
	hash := rcpt.TxHash.Hex()
	c.logger.InfoContext(ctx, "prediction created",
		slog.String("chain", desc.Key),
		slog.Uint64("prediction_id", rcpt.PredictionID),
		slog.String("tx_hash", hash),
	)
	return Result{
		Success:      true,
		TxHash:       hash,
		PredictionID: rcpt.PredictionID,
		ExplorerURL:  desc.TxURL(hash),
	}
}

// GetPrediction reads through the prediction cache when one is configured.
func (c *Client) GetPrediction(ctx context.Context, chainKey string, id uint64) (domain.Prediction, error) {
	desc, backend, err := c.Backend(chainKey)
	if err != nil {
		return domain.Prediction{}, err
	}
	if c.cache != nil {
		if p, err := c.cache.Get(ctx, desc.Key, id); err == nil {
			return p, nil
		}
	}
	p, err := backend.GetPrediction(ctx, id)
	if err != nil {
		return domain.Prediction{}, classified(err)
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, desc.Key, p); err != nil {
			c.logger.WarnContext(ctx, "cache set failed",
				slog.String("chain", desc.Key),
				slog.Uint64("prediction_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return p, nil
}

func (c *Client) GetUserVote(ctx context.Context, chainKey string, id uint64, user common.Address) (domain.Vote, error) {
	_, backend, err := c.Backend(chainKey)
	if err != nil {
		return domain.Vote{}, err
	}
	v, err := backend.GetUserVote(ctx, id, user)
	return v, classified(err)
}

func (c *Client) GetFeeInfo(ctx context.Context, chainKey string) (domain.FeeInfo, error) {
	_, backend, err := c.Backend(chainKey)
	if err != nil {
		return domain.FeeInfo{}, err
	}
	info, err := backend.GetFeeInfo(ctx)
	return info, classified(err)
}

// ListPredictions always reads the ledger; listings are not cached.
func (c *Client) ListPredictions(ctx context.Context, chainKey string, statuses ...domain.Status) ([]domain.Prediction, error) {
	_, backend, err := c.Backend(chainKey)
	if err != nil {
		return nil, err
	}
	out, err := backend.ListPredictions(ctx, statuses...)
	return out, classified(err)
}

func (c *Client) Vote(ctx context.Context, chainKey string, from Account, id uint64, isYes bool, value *big.Int) (domain.TxReceipt, error) {
	return c.write(ctx, chainKey, id, func(b Backend) (domain.TxReceipt, error) {
		return b.Vote(ctx, from, id, isYes, value)
	})
}

func (c *Client) ResolvePrediction(ctx context.Context, chainKey string, from Account, id uint64, outcome domain.Outcome) (domain.TxReceipt, error) {
	return c.write(ctx, chainKey, id, func(b Backend) (domain.TxReceipt, error) {
		return b.ResolvePrediction(ctx, from, id, outcome)
	})
}

func (c *Client) CancelPrediction(ctx context.Context, chainKey string, from Account, id uint64) (domain.TxReceipt, error) {
	return c.write(ctx, chainKey, id, func(b Backend) (domain.TxReceipt, error) {
		return b.CancelPrediction(ctx, from, id)
	})
}

// ClaimReward succeeds with a zero Amount for a losing vote.
func (c *Client) ClaimReward(ctx context.Context, chainKey string, from Account, id uint64) (domain.TxReceipt, error) {
	return c.write(ctx, chainKey, id, func(b Backend) (domain.TxReceipt, error) {
		return b.ClaimReward(ctx, from, id)
	})
}

func (c *Client) ClaimRefund(ctx context.Context, chainKey string, from Account, id uint64) (domain.TxReceipt, error) {
	return c.write(ctx, chainKey, id, func(b Backend) (domain.TxReceipt, error) {
		return b.ClaimRefund(ctx, from, id)
	})
}

func (c *Client) CanCreateSweatEquity(ctx context.Context, chainKey string, id uint64, user common.Address) (bool, error) {
	_, backend, err := c.Backend(chainKey)
	if err != nil {
		return false, err
	}
	ok, err := backend.CanCreateSweatEquity(ctx, id, user)
	return ok, classified(err)
}

func (c *Client) CreateChallenge(ctx context.Context, chainKey string, from Account, req domain.CreateChallengeRequest) (domain.TxReceipt, error) {
	return c.write(ctx, chainKey, req.PredictionID, func(b Backend) (domain.TxReceipt, error) {
		return b.CreateChallenge(ctx, from, req)
	})
}

func (c *Client) CompleteChallenge(ctx context.Context, chainKey string, from Account, challengeID uint64) (domain.TxReceipt, error) {
	_, backend, err := c.Backend(chainKey)
	if err != nil {
		return domain.TxReceipt{}, err
	}
	rcpt, err := backend.CompleteChallenge(ctx, from, challengeID)
	return rcpt, classified(err)
}

func (c *Client) GetChallenge(ctx context.Context, chainKey string, id uint64) (domain.Challenge, error) {
	_, backend, err := c.Backend(chainKey)
	if err != nil {
		return domain.Challenge{}, err
	}
	ch, err := backend.GetChallenge(ctx, id)
	return ch, classified(err)
}

// Events pages ledger events on one chain. Each event is stamped with the
// chain key.
func (c *Client) Events(ctx context.Context, chainKey string, cursor uint64) ([]domain.Event, uint64, error) {
	desc, backend, err := c.Backend(chainKey)
	if err != nil {
		return nil, cursor, err
	}
	events, next, err := backend.Events(ctx, cursor)
	if err != nil {
		return nil, cursor, classified(err)
	}
	for i := range events {
		events[i].Chain = desc.Key
	}
	return events, next, nil
}

// Invalidate drops a cached prediction, for callers that learn about a
// change from the event stream.
func (c *Client) Invalidate(ctx context.Context, chainKey string, id uint64) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, chainKey, id); err != nil {
		c.logger.WarnContext(ctx, "cache invalidate failed",
			slog.String("chain", chainKey),
			slog.Uint64("prediction_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Client) write(ctx context.Context, chainKey string, id uint64, fn func(Backend) (domain.TxReceipt, error)) (domain.TxReceipt, error) {
	desc, backend, err := c.Backend(chainKey)
	if err != nil {
		return domain.TxReceipt{}, err
	}
	rcpt, err := fn(backend)
	if err != nil {
		return domain.TxReceipt{}, classified(err)
	}
	c.Invalidate(ctx, desc.Key, id)
	return rcpt, nil
}

// classified returns Classify(err) as an error, keeping nil nil.
func classified(err error) error {
	if te := Classify(err); te != nil {
		return te
	}
	return nil
}
