package ledger

import (
	"log/slog"

	"github.com/imperfectform/predictbot/internal/domain"
)

// Subscribe returns a channel receiving every event committed after the
// call. Slow subscribers drop events rather than block the ledger; use
// EventsSince to catch up. The returned func unsubscribes.
func (l *Ledger) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan domain.Event, buffer)

	l.subMu.Lock()
	id := l.subID
	l.subID++
	l.subs[id] = ch
	l.subMu.Unlock()

	return ch, func() {
		l.subMu.Lock()
		defer l.subMu.Unlock()
		if c, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(c)
		}
	}
}

// publishLocked must be called with l.subMu held.
func (l *Ledger) publishLocked(events []domain.Event) {
	for id, ch := range l.subs {
		for _, ev := range events {
			select {
			case ch <- ev:
			default:
				l.logger.Warn("subscriber buffer full, dropping event",
					slog.Int("subscriber", id),
					slog.Uint64("seq", ev.Seq),
				)
			}
		}
	}
}

// EventsSince returns committed events with Seq greater than seq.
func (l *Ledger) EventsSince(seq uint64) []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq >= uint64(len(l.log)) {
		return nil
	}
	out := make([]domain.Event, len(l.log)-int(seq))
	copy(out, l.log[seq:])
	return out
}
