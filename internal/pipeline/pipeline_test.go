package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/imperfectform/predictbot/internal/cache/memory"
	"github.com/imperfectform/predictbot/internal/chain"
	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/ledger"
	"github.com/imperfectform/predictbot/internal/market"
)

var (
	ownerAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	aliceAddr = common.HexToAddress("0x0000000000000000000000000000000000000001")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memIndex struct {
	mu      sync.Mutex
	records map[uint64]domain.PredictionRecord
}

func newMemIndex() *memIndex { return &memIndex{records: map[uint64]domain.PredictionRecord{}} }

func (m *memIndex) Upsert(_ context.Context, rec domain.PredictionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.records[rec.PredictionID]; ok {
		rec.Status, rec.Outcome = old.Status, old.Outcome
	}
	m.records[rec.PredictionID] = rec
	return nil
}

func (m *memIndex) UpdateStatus(_ context.Context, _ string, id uint64, status domain.Status, outcome domain.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status, rec.Outcome = status, outcome
	m.records[id] = rec
	return nil
}

func (m *memIndex) Get(_ context.Context, _ string, id uint64) (domain.PredictionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return domain.PredictionRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memIndex) ListByStatus(context.Context, string, domain.Status, domain.ListOpts) ([]domain.PredictionRecord, error) {
	return nil, nil
}

type memArchiver struct {
	fail    bool
	batches [][]domain.Event
	before  []time.Time
}

func (a *memArchiver) ArchiveEvents(_ context.Context, _ string, events []domain.Event) (string, error) {
	if a.fail {
		return "", errors.New("bucket unavailable")
	}
	a.batches = append(a.batches, events)
	return "archive/events/x.jsonl", nil
}

func (a *memArchiver) ArchiveAudit(_ context.Context, before time.Time) (string, error) {
	a.before = append(a.before, before)
	return "archive/audit/x.jsonl", nil
}

func (a *memArchiver) StoreProof(context.Context, uint64, []byte, string) (string, error) {
	return "", nil
}

type relayEnv struct {
	ledger *ledger.Ledger
	client *market.Client
	now    time.Time
}

func newRelayEnv(t *testing.T) *relayEnv {
	t.Helper()
	env := &relayEnv{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, err := ledger.New(ledger.Config{Owner: ownerAddr, RecoveryPercentage: 80, Clock: func() time.Time { return env.now }}, testLogger())
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	reg, err := chain.NewRegistry(chain.Defaults()[:1], "base")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	client, err := market.NewClient(reg, map[string]market.Backend{"base": market.NewLocalBackend(l)}, nil, testLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	env.ledger, env.client = l, client
	return env
}

func (e *relayEnv) create(t *testing.T, title string) uint64 {
	t.Helper()
	rcpt, err := e.ledger.CreatePrediction(ownerAddr, domain.CreatePredictionRequest{
		Title: title, TargetDate: e.now.Add(time.Hour), Category: domain.CategoryCustom,
	})
	if err != nil {
		t.Fatalf("CreatePrediction: %v", err)
	}
	return rcpt.PredictionID
}

func TestRelayFansOutEvents(t *testing.T) {
	env := newRelayEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewSignalBus()
	live, err := bus.Subscribe(ctx, domain.ChannelLedgerAll)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	idx := newMemIndex()
	arch := &memArchiver{}
	relay := NewRelay(RelayConfig{Chains: []string{"base"}, ArchiveBatch: 3},
		RelayDeps{Client: env.client, Bus: bus, Index: idx, Archiver: arch}, testLogger())

	id := env.create(t, "first")
	if _, err := env.ledger.Deposit(aliceAddr, big.NewInt(10)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, err := env.ledger.Vote(aliceAddr, id, true, big.NewInt(10)); err != nil {
		t.Fatalf("Vote: %v", err)
	}

	n, err := relay.Poll(ctx, "base")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 2 || relay.Cursor("base") != 2 {
		t.Fatalf("relayed %d, cursor %d; want 2, 2", n, relay.Cursor("base"))
	}

	var first domain.Event
	if err := json.Unmarshal(<-live, &first); err != nil {
		t.Fatalf("unmarshal live event: %v", err)
	}
	if first.Type != domain.EventPredictionCreated || first.Chain != "base" {
		t.Fatalf("live event = %+v", first)
	}
	stream, _ := bus.StreamRead(ctx, domain.StreamLedger, "0", 10)
	if len(stream) != 2 {
		t.Fatalf("stream has %d entries, want 2", len(stream))
	}

	rec, err := idx.Get(ctx, "base", id)
	if err != nil || rec.Title != "first" || rec.Source != sourceLedger || rec.Status != domain.StatusActive {
		t.Fatalf("index record = %+v, %v", rec, err)
	}

	if _, err := env.ledger.ResolvePrediction(ownerAddr, id, domain.OutcomeYes); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := relay.Poll(ctx, "base"); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	rec, _ = idx.Get(ctx, "base", id)
	if rec.Status != domain.StatusResolved || rec.Outcome != domain.OutcomeYes {
		t.Fatalf("after resolve record = %+v", rec)
	}
	if len(arch.batches) != 1 || len(arch.batches[0]) != 3 {
		t.Fatalf("archived batches = %d, want one of 3 events", len(arch.batches))
	}

	if n, _ := relay.Poll(ctx, "base"); n != 0 {
		t.Fatalf("idle poll relayed %d", n)
	}
}

func TestRelayBackfillsUnindexedPrediction(t *testing.T) {
	env := newRelayEnv(t)
	id := env.create(t, "missed")
	if _, err := env.ledger.CancelPrediction(ownerAddr, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	idx := newMemIndex()
	relay := NewRelay(RelayConfig{Chains: []string{"base"}, StartCursors: map[string]uint64{"base": 1}},
		RelayDeps{Client: env.client, Index: idx}, testLogger())

	if _, err := relay.Poll(context.Background(), "base"); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	rec, err := idx.Get(context.Background(), "base", id)
	if err != nil || rec.Title != "missed" || rec.Status != domain.StatusCancelled {
		t.Fatalf("backfilled record = %+v, %v", rec, err)
	}
}

func TestRelayKeepsBatchWhenArchiveFails(t *testing.T) {
	env := newRelayEnv(t)
	arch := &memArchiver{fail: true}
	relay := NewRelay(RelayConfig{Chains: []string{"base"}, ArchiveBatch: 1},
		RelayDeps{Client: env.client, Archiver: arch}, testLogger())
	env.create(t, "a")

	if _, err := relay.Poll(context.Background(), "base"); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	env.create(t, "b")
	if _, err := relay.Poll(context.Background(), "base"); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	arch.fail = false
	if err := relay.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(arch.batches) != 1 || len(arch.batches[0]) != 2 || arch.batches[0][0].Title != "a" {
		t.Fatalf("batches = %+v, want both events in order", arch.batches)
	}
}

func TestRelayUnknownChain(t *testing.T) {
	env := newRelayEnv(t)
	relay := NewRelay(RelayConfig{Chains: []string{"solana"}}, RelayDeps{Client: env.client}, testLogger())
	if _, err := relay.Poll(context.Background(), "solana"); err == nil {
		t.Fatal("expected error for unknown chain")
	}
}

func TestAuditArchiverCutoff(t *testing.T) {
	now := time.Date(2025, 4, 1, 3, 0, 0, 0, time.UTC)
	arch := &memArchiver{}
	a := NewAuditArchiver(arch, 30, func() time.Time { return now }, testLogger())

	key, err := a.Run(context.Background())
	if err != nil || key == "" {
		t.Fatalf("Run = %q, %v", key, err)
	}
	if want := now.Add(-30 * 24 * time.Hour); !arch.before[0].Equal(want) {
		t.Fatalf("cutoff = %s, want %s", arch.before[0], want)
	}
}

func TestCronNext(t *testing.T) {
	from := time.Date(2025, 3, 14, 10, 7, 30, 0, time.UTC)
	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2025, 3, 14, 10, 8, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2025, 3, 14, 10, 15, 0, 0, time.UTC)},
		{"0 3 1 * *", time.Date(2025, 4, 1, 3, 0, 0, 0, time.UTC)},
		{"30 9-17 * * 1-5", time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)},
		{"0 0 * * 0", time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)},
		{"5,10 12 * * *", time.Date(2025, 3, 14, 12, 5, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			sched, err := parseCron(tt.expr)
			if err != nil {
				t.Fatalf("parseCron: %v", err)
			}
			got, ok := sched.next(from)
			if !ok || !got.Equal(tt.want) {
				t.Fatalf("next = %s, %v; want %s", got, ok, tt.want)
			}
		})
	}
}

func TestCronRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "*/0 * * * *", "a * * * *", "5-1 * * * *"} {
		if _, err := parseCron(expr); err == nil {
			t.Errorf("parseCron(%q) succeeded", expr)
		}
	}
}
