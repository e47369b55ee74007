package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/imperfectform/predictbot/internal/config"
	"github.com/imperfectform/predictbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChainDescriptors(t *testing.T) {
	if got := ChainDescriptors(nil); len(got) != 2 {
		t.Fatalf("built-ins = %d chains, want 2", len(got))
	}

	got := ChainDescriptors([]config.ChainConfig{
		{Key: " Celo ", ContractAddress: "0x2222222222222222222222222222222222222222"},
		{Key: "anvil", RPCURL: "http://127.0.0.1:8545", ChainID: 31337, Symbol: "ETH", Decimals: 18, Testnet: true},
	})
	if len(got) != 2 {
		t.Fatalf("got %d chains, want only the configured 2", len(got))
	}
	celo := got[0]
	if celo.Key != "celo" || celo.ChainID != 42220 || celo.RPCURL == "" {
		t.Errorf("celo did not inherit its built-in: %+v", celo)
	}
	if celo.ContractAddress != common.HexToAddress("0x2222222222222222222222222222222222222222") {
		t.Errorf("celo contract = %s", celo.ContractAddress.Hex())
	}
	anvil := got[1]
	if anvil.Name != "anvil" || anvil.ChainID != 31337 || anvil.NativeCurrency.Name != "ETH" || !anvil.Testnet {
		t.Errorf("anvil = %+v", anvil)
	}
}

func TestNewLocalLedger(t *testing.T) {
	bot := common.HexToAddress("0xb0b0000000000000000000000000000000000000")
	owner := common.HexToAddress("0x0000000000000000000000000000000000000a11")

	lc := config.Defaults().Ledger
	lc.Owner = owner.Hex()
	lc.InitialReserve = "500"
	l, err := newLocalLedger(lc, bot, testLogger())
	if err != nil {
		t.Fatalf("newLocalLedger: %v", err)
	}
	if l.Owner() != owner {
		t.Errorf("owner = %s", l.Owner().Hex())
	}
	if !l.IsBot(bot) {
		t.Error("bot was not authorized")
	}
	if got := l.RecoveryReserve(); got.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("reserve = %s, want 500", got)
	}
	if info := l.FeeInfo(); info.CharityAddress != owner {
		t.Errorf("charity address = %s, want owner fallback", info.CharityAddress.Hex())
	}
}

func TestWireInProcess(t *testing.T) {
	cfg := config.Defaults()
	cfg.Ledger.InitialReserve = "1000"

	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if deps.Client == nil || deps.Signer == nil || deps.SignalBus == nil || deps.RateLimiter == nil {
		t.Fatalf("missing core dependency: %+v", deps)
	}
	if deps.AuditStore != nil || deps.Archiver != nil || deps.LLM != nil {
		t.Error("optional backends wired while disabled")
	}
	l, ok := deps.Ledgers["base"]
	if !ok || len(deps.Ledgers) != 2 {
		t.Fatalf("ledgers = %v", deps.Ledgers)
	}
	if l.Owner() != deps.Signer.Address() {
		t.Errorf("owner = %s, want the bot", l.Owner().Hex())
	}
	if got := l.RecoveryReserve(); got.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("reserve = %s", got)
	}
	if deps.Registry.Default().Key != "base" {
		t.Errorf("default chain = %q", deps.Registry.Default().Key)
	}
	if len(deps.Checks) != 0 {
		t.Errorf("checks = %v, want none in-process", deps.Checks)
	}
	if deps.Notifier.Enabled("prediction_created") {
		t.Error("notifier enabled without senders")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func dialWS(t *testing.T, port int) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://127.0.0.1:%d/ws", port)
	deadline := time.Now().Add(3 * time.Second)
	for {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Cleanup(func() { conn.Close() })
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial %s: %v", url, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestServerModePushesLedgerEvents(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "server"
	cfg.Server.Port = freePort(t)
	cfg.Pipeline.RelayInterval.Duration = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	deps, cleanup, err := Wire(ctx, &cfg, testLogger())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	done := make(chan error, 1)
	go func() { done <- New(&cfg, testLogger()).ServerMode(ctx, deps) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("ServerMode: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("ServerMode did not stop")
		}
	}()

	conn := dialWS(t, cfg.Server.Port)

	res := deps.Client.CreateChainPrediction(ctx, "base", domain.CreatePredictionRequest{
		Title:          "FID 123 does 500 pushups",
		TargetDate:     time.Now().Add(48 * time.Hour),
		TargetValue:    big.NewInt(500),
		Category:       domain.CategoryFitness,
		Network:        "base",
		AutoResolvable: true,
	}, deps.Signer)
	if !res.Success {
		t.Fatalf("create: %+v", res.Error)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("no PredictionCreated frame: %v", err)
		}
		var frame struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		if frame.Type != "event" {
			continue
		}
		var ev domain.Event
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			t.Fatalf("decode event %s: %v", frame.Data, err)
		}
		if ev.Type == domain.EventPredictionCreated && ev.Chain == "base" && ev.PredictionID == res.PredictionID {
			return
		}
	}
}
