package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/imperfectform/predictbot/internal/domain"
)

// Deduper implements domain.Deduper with SET NX, so duplicate deliveries are
// caught across replicas.
type Deduper struct {
	c *Client
}

// NewDeduper creates a Deduper backed by c.
func NewDeduper(c *Client) *Deduper {
	return &Deduper{c: c}
}

func (d *Deduper) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.c.rdb.SetNX(ctx, d.c.Key("seen", key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: dedup %s: %w", key, err)
	}
	return ok, nil
}

var _ domain.Deduper = (*Deduper)(nil)
