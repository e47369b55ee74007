package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/imperfectform/predictbot/internal/cache/ttl"
	"github.com/imperfectform/predictbot/internal/domain"
)

// HeadReader reports the latest block number of a chain.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

var _ HeadReader = (*ethclient.Client)(nil)

// Chain resolves CHAIN predictions: YES when the block height of the
// prediction's network has reached the target value. Heights are cached
// briefly per network.
type Chain struct {
	heads   map[string]HeadReader
	heights *ttl.Cache[string, uint64]
	now     func() time.Time
}

// NewChain creates a Chain oracle over the given network readers, keyed by
// chain key.
func NewChain(heads map[string]HeadReader, cacheFor time.Duration, now func() time.Time) *Chain {
	if now == nil {
		now = time.Now
	}
	return &Chain{heads: heads, heights: ttl.New[string, uint64](cacheFor, now), now: now}
}

func (c *Chain) Resolve(ctx context.Context, p domain.Prediction) (Resolution, error) {
	network := strings.ToLower(strings.TrimSpace(p.Network))
	head, ok := c.heads[network]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: no rpc for network %q", ErrUnsupported, p.Network)
	}

	height, ok := c.heights.Get(network)
	if !ok {
		h, err := head.BlockNumber(ctx)
		if err != nil {
			return Resolution{}, fmt.Errorf("%w: block number on %s: %v", ErrNoData, network, err)
		}
		height = h
		c.heights.Set(network, height)
	}

	observed := new(big.Int).SetUint64(height)
	return Resolution{
		Outcome:    threshold(p, observed),
		Observed:   observed,
		Source:     "block_height:" + network,
		ObservedAt: c.now().UTC(),
	}, nil
}

var _ Oracle = (*Chain)(nil)
