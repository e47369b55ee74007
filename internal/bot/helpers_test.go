package bot

import (
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/imperfectform/predictbot/internal/chain"
	"github.com/imperfectform/predictbot/internal/ledger"
	"github.com/imperfectform/predictbot/internal/market"
)

var (
	ownerAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	botAddr   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	aliceAddr = common.HexToAddress("0x0000000000000000000000000000000000000001")
)

type addrAccount common.Address

func (a addrAccount) Address() common.Address { return common.Address(a) }

func (a addrAccount) SignTx(tx *types.Transaction, _ *big.Int) (*types.Transaction, error) {
	return tx, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	clock  *testClock
	ledger *ledger.Ledger
	client *market.Client
}

// newTestEnv wires a real in-process ledger behind a market client on the
// "base" chain, with the bot authorized.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, err := ledger.New(ledger.Config{
		Owner:                    ownerAddr,
		CharityFeePercentage:     15,
		MaintenanceFeePercentage: 5,
		RecoveryPercentage:       80,
		Clock:                    clock.Now,
	}, testLogger())
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	if _, err := l.AuthorizeBot(ownerAddr, botAddr, true); err != nil {
		t.Fatalf("AuthorizeBot: %v", err)
	}
	reg, err := chain.NewRegistry(chain.Defaults()[:1], "base")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	client, err := market.NewClient(reg, map[string]market.Backend{"base": market.NewLocalBackend(l)}, nil, testLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return &testEnv{clock: clock, ledger: l, client: client}
}
