package redis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/imperfectform/predictbot/internal/domain"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "")
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLockManagerExclusion(t *testing.T) {
	mr, c := newTestClient(t)
	lm := NewLockManager(c, discardLogger())
	ctx := context.Background()

	unlockA, err := lm.Acquire(ctx, "scan:base", time.Minute)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if _, err := lm.Acquire(ctx, "scan:base", time.Minute); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second Acquire err = %v, want ErrLockHeld", err)
	}
	if _, err := lm.Acquire(ctx, "scan:celo", time.Minute); err != nil {
		t.Fatalf("other key Acquire: %v", err)
	}

	// A's lease runs out and B takes over; A's late release must leave B alone.
	mr.FastForward(2 * time.Minute)
	unlockB, err := lm.Acquire(ctx, "scan:base", time.Minute)
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	unlockA()
	if !mr.Exists(c.Key("lock", "scan:base")) {
		t.Fatal("stale unlock deleted the new holder's lock")
	}
	if _, err := lm.Acquire(ctx, "scan:base", time.Minute); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("Acquire while B holds err = %v, want ErrLockHeld", err)
	}

	unlockB()
	unlockB()
	unlockC, err := lm.Acquire(ctx, "scan:base", time.Minute)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	unlockC()
}

func TestLockReleaseFailureIsLogged(t *testing.T) {
	mr, c := newTestClient(t)
	var buf bytes.Buffer
	lm := NewLockManager(c, slog.New(slog.NewTextHandler(&buf, nil)))

	unlock, err := lm.Acquire(context.Background(), "challenge:7", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mr.Close()
	unlock()

	if out := buf.String(); !strings.Contains(out, "lock release failed") || !strings.Contains(out, "challenge:7") {
		t.Fatalf("log = %q, want a release failure for challenge:7", out)
	}
}

func TestDeduperFirstSeen(t *testing.T) {
	mr, c := newTestClient(t)
	d := NewDeduper(c)
	ctx := context.Background()

	for i, want := range []bool{true, false, false} {
		got, err := d.FirstSeen(ctx, "msg-1", time.Minute)
		if err != nil {
			t.Fatalf("FirstSeen #%d: %v", i, err)
		}
		if got != want {
			t.Fatalf("FirstSeen #%d = %v, want %v", i, got, want)
		}
	}
	if ok, _ := d.FirstSeen(ctx, "msg-2", time.Minute); !ok {
		t.Error("a different message was reported as seen")
	}

	mr.FastForward(2 * time.Minute)
	if ok, _ := d.FirstSeen(ctx, "msg-1", time.Minute); !ok {
		t.Error("message still deduplicated after its window")
	}
}

func TestDraftStoreLifecycle(t *testing.T) {
	mr, c := newTestClient(t)
	ds := NewDraftStore(c)
	ctx := context.Background()

	if _, err := ds.Get(ctx, "conv"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get empty err = %v, want ErrNotFound", err)
	}

	draft := func(title string) domain.Draft {
		return domain.Draft{
			ConversationID: "conv",
			Sender:         "0xabc",
			Chain:          "base",
			Request: domain.CreatePredictionRequest{
				Title:       title,
				TargetDate:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
				TargetValue: big.NewInt(500),
				Category:    domain.CategoryFitness,
			},
		}
	}
	if err := ds.Put(ctx, draft("first"), 30*time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := ds.Put(ctx, draft("second"), 30*time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := ds.Get(ctx, "conv")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Request.Title != "second" || got.Request.TargetValue.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("draft = %+v, want the replacement", got.Request)
	}

	if err := ds.Delete(ctx, "conv"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := ds.Get(ctx, "conv"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get after Delete err = %v, want ErrNotFound", err)
	}

	if err := ds.Put(ctx, draft("expiring"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := ds.Get(ctx, "conv"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get after ttl err = %v, want ErrNotFound", err)
	}
}
