package memory

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imperfectform/predictbot/internal/domain"
)

const streamMaxLen = 10000

type subscriber struct {
	pattern string
	out     chan []byte
}

// SignalBus is an in-process domain.SignalBus. Channel names may be glob
// patterns, matched with path.Match. Slow subscribers drop messages.
type SignalBus struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextSub int
	streams map[string][]domain.StreamMessage
	seq     map[string]uint64
}

func NewSignalBus() *SignalBus {
	return &SignalBus{
		subs:    make(map[int]*subscriber),
		streams: make(map[string][]domain.StreamMessage),
		seq:     make(map[string]uint64),
	}
}

func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok && s.pattern != channel {
			continue
		}
		select {
		case s.out <- append([]byte(nil), payload...):
		default:
		}
	}
	return nil
}

func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, fmt.Errorf("memory: subscribe %s: %w", channel, err)
	}
	s := &subscriber{pattern: channel, out: make(chan []byte, 128)}
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = s
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(s.out)
		b.mu.Unlock()
	}()
	return s.out, nil
}

// StreamAppend keeps at most streamMaxLen entries per stream. IDs are
// decimal sequence numbers starting at 1.
func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq[stream]++
	msgs := append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatUint(b.seq[stream], 10),
		Payload: append([]byte(nil), payload...),
	})
	if len(msgs) > streamMaxLen {
		msgs = msgs[len(msgs)-streamMaxLen:]
	}
	b.streams[stream] = msgs
	return nil
}

func (b *SignalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after, err := strconv.ParseUint(lastID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("memory: stream read %s: %w: bad id %q", stream, domain.ErrValidation, lastID)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		id, _ := strconv.ParseUint(m.ID, 10, 64)
		if id <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

type heldLock struct {
	token   string
	expires time.Time
}

// LockManager is an in-process domain.LockManager with expiring locks.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]heldLock
	now   func() time.Time
}

func NewLockManager(now func() time.Time) *LockManager {
	if now == nil {
		now = time.Now
	}
	return &LockManager{locks: make(map[string]heldLock), now: now}
}

func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	now := lm.now()
	if held, ok := lm.locks[key]; ok && now.Before(held.expires) {
		return nil, fmt.Errorf("memory: acquire lock %s: %w", key, domain.ErrLockHeld)
	}
	token := uuid.NewString()
	lm.locks[key] = heldLock{token: token, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			if lm.locks[key].token == token {
				delete(lm.locks, key)
			}
		})
	}, nil
}

var (
	_ domain.SignalBus   = (*SignalBus)(nil)
	_ domain.LockManager = (*LockManager)(nil)
)
