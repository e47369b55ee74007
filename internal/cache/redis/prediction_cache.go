package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imperfectform/predictbot/internal/domain"
)

// Terminal predictions never change again and are kept longer.
const (
	activePredictionTTL   = 30 * time.Second
	terminalPredictionTTL = 24 * time.Hour
)

// PredictionCache implements domain.PredictionCache with one JSON string per
// prediction.
//
// Key schema:
//
//	{prefix}prediction:{chain}:{id} - JSON-encoded domain.Prediction
type PredictionCache struct {
	c *Client
}

// NewPredictionCache creates a PredictionCache backed by c.
func NewPredictionCache(c *Client) *PredictionCache {
	return &PredictionCache{c: c}
}

func (pc *PredictionCache) key(chain string, id uint64) string {
	return pc.c.Key("prediction", chain, strconv.FormatUint(id, 10))
}

// predictionTTL keeps ACTIVE predictions briefly since votes from outside
// this process do not invalidate them.
func predictionTTL(p domain.Prediction) time.Duration {
	if p.Status.Terminal() {
		return terminalPredictionTTL
	}
	return activePredictionTTL
}

func (pc *PredictionCache) Set(ctx context.Context, chain string, p domain.Prediction) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redis: marshal prediction %s/%d: %w", chain, p.ID, err)
	}
	if err := pc.c.rdb.Set(ctx, pc.key(chain, p.ID), data, predictionTTL(p)).Err(); err != nil {
		return fmt.Errorf("redis: set prediction %s/%d: %w", chain, p.ID, err)
	}
	return nil
}

// Get returns domain.ErrNotFound on a miss.
func (pc *PredictionCache) Get(ctx context.Context, chain string, id uint64) (domain.Prediction, error) {
	data, err := pc.c.rdb.Get(ctx, pc.key(chain, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Prediction{}, domain.ErrNotFound
		}
		return domain.Prediction{}, fmt.Errorf("redis: get prediction %s/%d: %w", chain, id, err)
	}
	var p domain.Prediction
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Prediction{}, fmt.Errorf("redis: unmarshal prediction %s/%d: %w", chain, id, err)
	}
	return p, nil
}

func (pc *PredictionCache) Invalidate(ctx context.Context, chain string, id uint64) error {
	if err := pc.c.rdb.Del(ctx, pc.key(chain, id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate prediction %s/%d: %w", chain, id, err)
	}
	return nil
}

var _ domain.PredictionCache = (*PredictionCache)(nil)
