package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/market"
)

// sourceLedger marks index rows first seen on the event stream.
const sourceLedger = "ledger"

// RelayConfig tunes the relay.
type RelayConfig struct {
	Chains       []string
	Interval     time.Duration
	ArchiveBatch int
	// StartCursors overrides where each chain starts reading; absent chains
	// start at zero.
	StartCursors map[string]uint64
}

// RelayDeps are the relay's sinks. Any of Bus, Index, and Archiver may be nil.
type RelayDeps struct {
	Client   *market.Client
	Bus      domain.SignalBus
	Index    domain.PredictionIndex
	Archiver domain.Archiver
}

// Relay polls each chain's ledger events and fans them out: pub/sub for live
// clients, a replayable stream, the prediction index, cache invalidation,
// and batched cold-storage archives.
type Relay struct {
	cfg      RelayConfig
	client   *market.Client
	bus      domain.SignalBus
	index    domain.PredictionIndex
	archiver domain.Archiver
	logger   *slog.Logger

	mu      sync.Mutex
	cursors map[string]uint64
	pending map[string][]domain.Event
}

func NewRelay(cfg RelayConfig, deps RelayDeps, logger *slog.Logger) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.ArchiveBatch <= 0 {
		cfg.ArchiveBatch = 500
	}
	cursors := make(map[string]uint64, len(cfg.Chains))
	for _, c := range cfg.Chains {
		cursors[c] = cfg.StartCursors[c]
	}
	return &Relay{
		cfg:      cfg,
		client:   deps.Client,
		bus:      deps.Bus,
		index:    deps.Index,
		archiver: deps.Archiver,
		logger:   logger.With(slog.String("component", "relay")),
		cursors:  cursors,
		pending:  make(map[string][]domain.Event),
	}
}

// Cursor returns the next read position for a chain.
func (r *Relay) Cursor(chainKey string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursors[chainKey]
}

// RunLoop polls every chain on each tick until ctx is done, then archives
// whatever is still pending.
func (r *Relay) RunLoop(ctx context.Context) error {
	r.pollAll(ctx)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := r.Flush(flushCtx); err != nil {
				r.logger.Error("final archive flush failed", slog.String("error", err.Error()))
			}
			cancel()
			return ctx.Err()
		case <-ticker.C:
			r.pollAll(ctx)
		}
	}
}

func (r *Relay) pollAll(ctx context.Context) {
	for _, chainKey := range r.cfg.Chains {
		if _, err := r.Poll(ctx, chainKey); err != nil && ctx.Err() == nil {
			r.logger.Warn("relay poll failed",
				slog.String("chain", chainKey),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Poll reads and relays one page of events for a chain and returns how many
// were relayed. The cursor advances only when the read succeeds; sink
// failures are logged and do not stop the relay.
func (r *Relay) Poll(ctx context.Context, chainKey string) (int, error) {
	cursor := r.Cursor(chainKey)
	events, next, err := r.client.Events(ctx, chainKey, cursor)
	if err != nil {
		return 0, fmt.Errorf("pipeline: read events %s from %d: %w", chainKey, cursor, err)
	}
	for _, ev := range events {
		r.relay(ctx, ev)
	}

	r.mu.Lock()
	r.cursors[chainKey] = next
	if r.archiver != nil {
		r.pending[chainKey] = append(r.pending[chainKey], events...)
	}
	full := len(r.pending[chainKey]) >= r.cfg.ArchiveBatch
	r.mu.Unlock()

	if full {
		if err := r.flushChain(ctx, chainKey); err != nil {
			r.logger.Error("event archive failed", slog.String("chain", chainKey), slog.String("error", err.Error()))
		}
	}
	if len(events) > 0 {
		r.logger.Debug("relayed events", slog.String("chain", chainKey), slog.Int("count", len(events)), slog.Uint64("cursor", next))
	}
	return len(events), nil
}

// Flush archives every chain's pending events.
func (r *Relay) Flush(ctx context.Context) error {
	var errs []error
	for _, chainKey := range r.cfg.Chains {
		if err := r.flushChain(ctx, chainKey); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Relay) flushChain(ctx context.Context, chainKey string) error {
	if r.archiver == nil {
		return nil
	}
	r.mu.Lock()
	batch := r.pending[chainKey]
	delete(r.pending, chainKey)
	r.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	key, err := r.archiver.ArchiveEvents(ctx, chainKey, batch)
	if err != nil {
		// Put the batch back in front of anything that arrived meanwhile.
		r.mu.Lock()
		r.pending[chainKey] = append(batch, r.pending[chainKey]...)
		r.mu.Unlock()
		return fmt.Errorf("pipeline: archive %d events for %s: %w", len(batch), chainKey, err)
	}
	r.logger.Info("archived events", slog.String("chain", chainKey), slog.Int("count", len(batch)), slog.String("key", key))
	return nil
}

func (r *Relay) relay(ctx context.Context, ev domain.Event) {
	log := r.logger.With(slog.String("chain", ev.Chain), slog.String("type", string(ev.Type)), slog.Uint64("seq", ev.Seq))

	if r.bus != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Error("marshal event failed", slog.String("error", err.Error()))
		} else {
			if err := r.bus.Publish(ctx, domain.LedgerChannel(ev.Chain), payload); err != nil {
				log.Warn("publish event failed", slog.String("error", err.Error()))
			}
			if err := r.bus.StreamAppend(ctx, domain.StreamLedger, payload); err != nil {
				log.Warn("stream event failed", slog.String("error", err.Error()))
			}
		}
	}

	if ev.PredictionID != 0 {
		r.client.Invalidate(ctx, ev.Chain, ev.PredictionID)
	}
	if r.index != nil {
		if err := r.applyIndex(ctx, ev); err != nil {
			log.Warn("index update failed", slog.String("error", err.Error()))
		}
	}
}

func (r *Relay) applyIndex(ctx context.Context, ev domain.Event) error {
	switch ev.Type {
	case domain.EventPredictionCreated:
		return r.index.Upsert(ctx, domain.PredictionRecord{
			Chain:        ev.Chain,
			PredictionID: ev.PredictionID,
			TxHash:       ev.TxHash.Hex(),
			Creator:      ev.Account.Hex(),
			Title:        ev.Title,
			Category:     ev.Category,
			TargetDate:   ev.TargetDate,
			Status:       domain.StatusActive,
			Source:       sourceLedger,
			CreatedAt:    ev.Timestamp,
		})
	case domain.EventPredictionResolved:
		return r.updateStatus(ctx, ev, domain.StatusResolved, ev.Outcome)
	case domain.EventPredictionCancelled:
		return r.updateStatus(ctx, ev, domain.StatusCancelled, domain.OutcomeUnresolved)
	}
	return nil
}

// updateStatus backfills the row from the ledger when the creation event
// was never indexed, such as when the relay started past it.
func (r *Relay) updateStatus(ctx context.Context, ev domain.Event, status domain.Status, outcome domain.Outcome) error {
	err := r.index.UpdateStatus(ctx, ev.Chain, ev.PredictionID, status, outcome)
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	p, err := r.client.GetPrediction(ctx, ev.Chain, ev.PredictionID)
	if err != nil {
		return fmt.Errorf("backfill prediction %d: %w", ev.PredictionID, err)
	}
	return r.index.Upsert(ctx, domain.PredictionRecord{
		Chain:        ev.Chain,
		PredictionID: p.ID,
		Creator:      p.Creator.Hex(),
		Title:        p.Title,
		Category:     p.Category,
		TargetDate:   p.TargetDate,
		Status:       p.Status,
		Outcome:      p.Outcome,
		Source:       sourceLedger,
		CreatedAt:    p.CreatedAt,
	})
}
