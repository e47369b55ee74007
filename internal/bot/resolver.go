package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/market"
	"github.com/imperfectform/predictbot/internal/notify"
	"github.com/imperfectform/predictbot/internal/oracle"
)

// ItemStatus is what a scan did with one prediction.
type ItemStatus string

const (
	ItemResolved ItemStatus = "resolved"
	ItemSkipped  ItemStatus = "skipped" // retried on the next scan
	ItemFailed   ItemStatus = "failed"  // parked until an operator clears it
	ItemParked   ItemStatus = "parked"
)

// ItemResult reports one prediction's scan outcome.
type ItemResult struct {
	Chain        string         `json:"chain"`
	PredictionID uint64         `json:"predictionId"`
	Status       ItemStatus     `json:"status"`
	Outcome      domain.Outcome `json:"outcome,omitempty"`
	TxHash       string         `json:"txHash,omitempty"`
	Reason       string         `json:"reason,omitempty"`
}

// ScanReport summarizes one scan across chains.
type ScanReport struct {
	StartedAt time.Time    `json:"startedAt"`
	Checked   int          `json:"checked"`
	Resolved  int          `json:"resolved"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items"`
}

func (r *ScanReport) add(item ItemResult) {
	r.Items = append(r.Items, item)
	r.Checked++
	switch item.Status {
	case ItemResolved:
		r.Resolved++
	case ItemFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}

// ResolverConfig tunes scans.
type ResolverConfig struct {
	Chains      []string
	Interval    time.Duration
	Concurrency int
	LockTTL     time.Duration
}

// ResolverDeps are the collaborators. Locks, Audit, Notifier, and Bus may be
// nil.
type ResolverDeps struct {
	Client   *market.Client
	Oracle   oracle.Oracle
	Signer   market.Account
	Locks    domain.LockManager
	Audit    domain.AuditStore
	Notifier *notify.Notifier
	Bus      domain.SignalBus
	Now      func() time.Time
}

// Resolver settles auto-resolvable predictions whose target date has
// passed. Each prediction is handled independently: one failure never
// blocks or fails another.
type Resolver struct {
	cfg      ResolverConfig
	client   *market.Client
	oracle   oracle.Oracle
	signer   market.Account
	locks    domain.LockManager
	audit    domain.AuditStore
	notifier *notify.Notifier
	bus      domain.SignalBus
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	parked map[string]string // chain:id -> reason
}

func NewResolver(cfg ResolverConfig, deps ResolverDeps, logger *slog.Logger) *Resolver {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Resolver{
		cfg:      cfg,
		client:   deps.Client,
		oracle:   deps.Oracle,
		signer:   deps.Signer,
		locks:    deps.Locks,
		audit:    deps.Audit,
		notifier: deps.Notifier,
		bus:      deps.Bus,
		now:      deps.Now,
		logger:   logger.With(slog.String("component", "resolver")),
		parked:   make(map[string]string),
	}
}

// Run scans on every tick until ctx is done. Call in a goroutine.
func (r *Resolver) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report, err := r.Scan(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "resolver scan failed", slog.String("error", err.Error()))
				continue
			}
			if report.Checked > 0 {
				r.logger.InfoContext(ctx, "resolver scan done",
					slog.Int("checked", report.Checked),
					slog.Int("resolved", report.Resolved),
					slog.Int("skipped", report.Skipped),
					slog.Int("failed", report.Failed),
				)
			}
		}
	}
}

func itemKey(chain string, id uint64) string { return fmt.Sprintf("%s:%d", chain, id) }

// Parked returns the predictions whose resolution transaction failed and
// that scans now skip, keyed chain:id.
func (r *Resolver) Parked() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.parked))
	for k, v := range r.parked {
		out[k] = v
	}
	return out
}

// Unpark lets the next scan retry a parked prediction.
func (r *Resolver) Unpark(chain string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := itemKey(chain, id)
	_, ok := r.parked[key]
	delete(r.parked, key)
	return ok
}

func (r *Resolver) isParked(chain string, id uint64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reason, ok := r.parked[itemKey(chain, id)]
	return reason, ok
}

func (r *Resolver) park(chain string, id uint64, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parked[itemKey(chain, id)] = reason
}

// Scan resolves every due prediction once. A chain whose listing fails is
// reported and the other chains are still scanned; the error is non-nil
// only when no chain could be listed.
func (r *Resolver) Scan(ctx context.Context) (ScanReport, error) {
	now := r.now().UTC()
	report := ScanReport{StartedAt: now}

	var (
		mu       sync.Mutex
		listErrs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for _, chainKey := range r.cfg.Chains {
		active, err := r.client.ListPredictions(ctx, chainKey, domain.StatusActive)
		if err != nil {
			r.logger.ErrorContext(ctx, "list active predictions failed",
				slog.String("chain", chainKey),
				slog.String("error", err.Error()),
			)
			listErrs = append(listErrs, fmt.Errorf("%s: %w", chainKey, err))
			continue
		}
		for _, p := range active {
			if !p.AutoResolvable || !p.TargetDate.Before(now) {
				continue
			}
			g.Go(func() error {
				item := r.resolveOne(gctx, chainKey, p)
				mu.Lock()
				report.add(item)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()
	r.publish(ctx, report)

	if len(r.cfg.Chains) > 0 && len(listErrs) == len(r.cfg.Chains) {
		return report, fmt.Errorf("bot: scan: %w", errors.Join(listErrs...))
	}
	return report, nil
}

// publish announces a scan that touched at least one prediction on the bot
// channel.
func (r *Resolver) publish(ctx context.Context, report ScanReport) {
	if r.bus == nil || report.Checked == 0 {
		return
	}
	payload, err := json.Marshal(map[string]any{"type": "resolver_scan", "report": report})
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, domain.ChannelBot, payload); err != nil {
		r.logger.WarnContext(ctx, "publish scan report failed", slog.String("error", err.Error()))
	}
}

func (r *Resolver) resolveOne(ctx context.Context, chainKey string, p domain.Prediction) ItemResult {
	item := ItemResult{Chain: chainKey, PredictionID: p.ID}
	log := r.logger.With(slog.String("chain", chainKey), slog.Uint64("prediction_id", p.ID))

	if reason, ok := r.isParked(chainKey, p.ID); ok {
		item.Status, item.Reason = ItemParked, reason
		return item
	}

	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, "resolve:"+itemKey(chainKey, p.ID), r.cfg.LockTTL)
		if err != nil {
			item.Status, item.Reason = ItemSkipped, err.Error()
			log.DebugContext(ctx, "resolution lock unavailable", slog.String("error", err.Error()))
			return item
		}
		defer unlock()
	}

	res, err := r.oracle.Resolve(ctx, p)
	if err != nil {
		item.Status, item.Reason = ItemSkipped, err.Error()
		if errors.Is(err, oracle.ErrUnsupported) {
			log.WarnContext(ctx, "no oracle can resolve prediction", slog.String("error", err.Error()))
		} else {
			log.InfoContext(ctx, "oracle data unavailable, retrying next scan", slog.String("error", err.Error()))
		}
		return item
	}

	rcpt, err := r.client.ResolvePrediction(ctx, chainKey, r.signer, p.ID, res.Outcome)
	if err != nil {
		return r.resolveFailed(ctx, log, item, p, err)
	}

	item.Status, item.Outcome, item.TxHash = ItemResolved, res.Outcome, rcpt.TxHash.Hex()
	log.InfoContext(ctx, "prediction resolved",
		slog.String("outcome", res.Outcome.String()),
		slog.String("observed", res.Observed.String()),
		slog.String("source", res.Source),
		slog.String("tx_hash", item.TxHash),
	)
	r.auditLog(ctx, "bot.resolve", map[string]any{
		"chain":         chainKey,
		"prediction_id": p.ID,
		"outcome":       res.Outcome.String(),
		"observed":      res.Observed.String(),
		"target":        p.TargetValue.String(),
		"source":        res.Source,
		"tx_hash":       item.TxHash,
	})
	r.notify(ctx, notify.EventPredictionResolved, "Prediction resolved",
		r.resolvedMessage(chainKey, p, res.Outcome, item.TxHash))
	return item
}

// resolveFailed classifies a failed resolution transaction. Network errors
// are retried on the next scan. A prediction another resolver already
// settled is skipped. Anything else is parked for an operator.
func (r *Resolver) resolveFailed(ctx context.Context, log *slog.Logger, item ItemResult, p domain.Prediction, err error) ItemResult {
	te := market.Classify(err)
	item.Reason = te.Error()

	switch {
	case te.Code == market.CodeNetworkError:
		item.Status = ItemSkipped
		log.WarnContext(ctx, "resolve transaction not confirmed, retrying next scan", slog.String("error", te.Error()))
		return item
	case errors.Is(err, domain.ErrAlreadyResolved), errors.Is(err, domain.ErrPredictionNotActive):
		item.Status = ItemSkipped
		log.InfoContext(ctx, "prediction already settled", slog.String("reason", te.Reason))
		return item
	}

	item.Status = ItemFailed
	r.park(item.Chain, p.ID, item.Reason)
	log.ErrorContext(ctx, "resolve transaction failed, operator action required",
		slog.String("code", string(te.Code)),
		slog.String("error", te.Error()),
	)
	r.auditLog(ctx, "bot.resolve.failed", map[string]any{
		"chain":         item.Chain,
		"prediction_id": p.ID,
		"code":          string(te.Code),
		"reason":        te.Reason,
	})
	r.notify(ctx, notify.EventResolutionFailed, "Resolution failed",
		fmt.Sprintf("#%d %s on %s\n%s", p.ID, p.Title, item.Chain, te))
	return item
}

func (r *Resolver) resolvedMessage(chainKey string, p domain.Prediction, outcome domain.Outcome, txHash string) string {
	desc, _, err := r.client.Backend(chainKey)
	if err != nil {
		return fmt.Sprintf("#%d %s: %s", p.ID, p.Title, outcome)
	}
	return fmt.Sprintf("#%d %s: %s\nPool: %s\n%s", p.ID, p.Title, outcome, desc.Format(p.TotalStaked), desc.TxURL(txHash))
}

func (r *Resolver) auditLog(ctx context.Context, event string, detail map[string]any) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Log(ctx, event, detail); err != nil {
		r.logger.WarnContext(ctx, "audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func (r *Resolver) notify(ctx context.Context, event, title, msg string) {
	if err := r.notifier.Notify(ctx, event, title, msg); err != nil {
		r.logger.WarnContext(ctx, "notify failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
