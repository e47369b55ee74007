package memory

import (
	"context"
	"sync"
	"time"

	"github.com/imperfectform/predictbot/internal/domain"
)

const waitPollInterval = 50 * time.Millisecond

// RateLimiter is an in-process sliding-window domain.RateLimiter.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	now    func() time.Time
	limit  int
	window time.Duration
}

// NewRateLimiter creates a RateLimiter. Wait admits waitLimit calls per
// waitWindow per key; zero values mean one per second.
func NewRateLimiter(waitLimit int, waitWindow time.Duration, now func() time.Time) *RateLimiter {
	if waitLimit <= 0 {
		waitLimit = 1
	}
	if waitWindow <= 0 {
		waitWindow = time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{hits: make(map[string][]time.Time), now: now, limit: waitLimit, window: waitWindow}
}

func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := rl.now()
	cutoff := now.Add(-window)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	hits := rl.hits[key]
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]
	if len(hits) >= limit {
		rl.hits[key] = hits
		return false, nil
	}
	rl.hits[key] = append(hits, now)
	return true, nil
}

func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		ok, err := rl.Allow(ctx, key, rl.limit, rl.window)
		if err != nil || ok {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitPollInterval):
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
