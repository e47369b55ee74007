// Package memory provides in-process implementations of the domain cache
// interfaces for single-replica deployments without Redis.
package memory

import (
	"context"
	"strconv"
	"time"

	"github.com/imperfectform/predictbot/internal/cache/ttl"
	"github.com/imperfectform/predictbot/internal/domain"
)

// PredictionCache keeps predictions for a fixed TTL.
type PredictionCache struct {
	items *ttl.Cache[string, domain.Prediction]
}

// NewPredictionCache creates a cache whose entries live for d.
func NewPredictionCache(d time.Duration, now func() time.Time) *PredictionCache {
	return &PredictionCache{items: ttl.New[string, domain.Prediction](d, now)}
}

func predictionKey(chain string, id uint64) string {
	return chain + ":" + strconv.FormatUint(id, 10)
}

func (c *PredictionCache) Set(_ context.Context, chain string, p domain.Prediction) error {
	c.items.Set(predictionKey(chain, p.ID), p.Clone())
	return nil
}

func (c *PredictionCache) Get(_ context.Context, chain string, id uint64) (domain.Prediction, error) {
	p, ok := c.items.Get(predictionKey(chain, id))
	if !ok {
		return domain.Prediction{}, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (c *PredictionCache) Invalidate(_ context.Context, chain string, id uint64) error {
	c.items.Delete(predictionKey(chain, id))
	return nil
}

// DraftStore keeps one pending draft per conversation.
type DraftStore struct {
	items *ttl.Cache[string, domain.Draft]
}

// NewDraftStore creates an empty store.
func NewDraftStore(now func() time.Time) *DraftStore {
	return &DraftStore{items: ttl.New[string, domain.Draft](time.Hour, now)}
}

func (s *DraftStore) Put(_ context.Context, d domain.Draft, expiry time.Duration) error {
	s.items.SetWithTTL(d.ConversationID, d, expiry)
	return nil
}

func (s *DraftStore) Get(_ context.Context, conversationID string) (domain.Draft, error) {
	d, ok := s.items.Get(conversationID)
	if !ok {
		return domain.Draft{}, domain.ErrNotFound
	}
	return d, nil
}

func (s *DraftStore) Delete(_ context.Context, conversationID string) error {
	s.items.Delete(conversationID)
	return nil
}

// Deduper drops keys seen within their TTL. Expired keys are purged on
// insert once the map grows past purgeAt.
type Deduper struct {
	seen    *ttl.Cache[string, struct{}]
	purgeAt int
}

// NewDeduper creates a Deduper.
func NewDeduper(now func() time.Time) *Deduper {
	return &Deduper{seen: ttl.New[string, struct{}](time.Hour, now), purgeAt: 10000}
}

func (d *Deduper) FirstSeen(_ context.Context, key string, expiry time.Duration) (bool, error) {
	if d.seen.Len() >= d.purgeAt {
		d.seen.Purge()
	}
	return d.seen.AddWithTTL(key, struct{}{}, expiry), nil
}

var (
	_ domain.PredictionCache = (*PredictionCache)(nil)
	_ domain.DraftStore      = (*DraftStore)(nil)
	_ domain.Deduper         = (*Deduper)(nil)
)
