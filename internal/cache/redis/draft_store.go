package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imperfectform/predictbot/internal/domain"
)

// DraftStore implements domain.DraftStore. A conversation holds at most one
// pending draft; Put replaces it.
type DraftStore struct {
	c *Client
}

// NewDraftStore creates a DraftStore backed by c.
func NewDraftStore(c *Client) *DraftStore {
	return &DraftStore{c: c}
}

func (ds *DraftStore) key(conversationID string) string {
	return ds.c.Key("draft", conversationID)
}

func (ds *DraftStore) Put(ctx context.Context, d domain.Draft, ttl time.Duration) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("redis: marshal draft %s: %w", d.ConversationID, err)
	}
	if err := ds.c.rdb.Set(ctx, ds.key(d.ConversationID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: put draft %s: %w", d.ConversationID, err)
	}
	return nil
}

// Get returns domain.ErrNotFound when no draft is pending.
func (ds *DraftStore) Get(ctx context.Context, conversationID string) (domain.Draft, error) {
	data, err := ds.c.rdb.Get(ctx, ds.key(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Draft{}, domain.ErrNotFound
		}
		return domain.Draft{}, fmt.Errorf("redis: get draft %s: %w", conversationID, err)
	}
	var d domain.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return domain.Draft{}, fmt.Errorf("redis: unmarshal draft %s: %w", conversationID, err)
	}
	return d, nil
}

func (ds *DraftStore) Delete(ctx context.Context, conversationID string) error {
	if err := ds.c.rdb.Del(ctx, ds.key(conversationID)).Err(); err != nil {
		return fmt.Errorf("redis: delete draft %s: %w", conversationID, err)
	}
	return nil
}

var _ domain.DraftStore = (*DraftStore)(nil)
