package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/imperfectform/predictbot/internal/bot"
	"github.com/imperfectform/predictbot/internal/cache/memory"
	"github.com/imperfectform/predictbot/internal/chain"
	"github.com/imperfectform/predictbot/internal/crypto"
	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/ledger"
	"github.com/imperfectform/predictbot/internal/market"
	"github.com/imperfectform/predictbot/internal/sweat"
)

var (
	ownerAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	botAddr   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	aliceAddr = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bobAddr   = common.HexToAddress("0x0000000000000000000000000000000000000002")
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeScanner struct {
	report bot.ScanReport
	err    error
}

func (f *fakeScanner) Scan(context.Context) (bot.ScanReport, error) { return f.report, f.err }

type testEnv struct {
	clock  *testClock
	ledger *ledger.Ledger
	mux    *http.ServeMux
}

// newTestEnv serves every handler on a mux backed by an in-process ledger on
// the "base" chain.
func newTestEnv(t *testing.T, webhook *crypto.WebhookAuth, scanner Scanner) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, err := ledger.New(ledger.Config{
		Owner:                    ownerAddr,
		CharityFeePercentage:     15,
		MaintenanceFeePercentage: 5,
		RecoveryPercentage:       80,
		ChallengeWindow:          24 * time.Hour,
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

	orch := bot.NewOrchestrator(bot.OrchestratorConfig{DefaultChain: "base"}, bot.OrchestratorDeps{
		Extractor: bot.NewHeuristicExtractor(clock.Now),
		Client:    client,
		Signer:    addrAccount(botAddr),
		Drafts:    memory.NewDraftStore(clock.Now),
		Dedup:     memory.NewDeduper(clock.Now),
		Now:       clock.Now,
	}, testLogger())
	svc := sweat.NewService(sweat.Config{}, sweat.Deps{
		Client:   client,
		Signer:   addrAccount(botAddr),
		Verifier: sweat.NewHeuristicVerifier(nil),
		Locks:    memory.NewLockManager(clock.Now),
		Now:      clock.Now,
	}, testLogger())

	preds := NewPredictionHandler(client, orch, testLogger())
	bots := NewBotHandler(orch, scanner, webhook, testLogger())
	sweats := NewSweatHandler(svc, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chains", preds.ListChains)
	mux.HandleFunc("POST /api/create-prediction", preds.CreatePrediction)
	mux.HandleFunc("GET /api/predictions/{chain}/{id}", preds.GetPrediction)
	mux.HandleFunc("GET /api/predictions/{chain}/{id}/votes/{address}", preds.GetUserVote)
	mux.HandleFunc("GET /api/fees/{chain}", preds.GetFeeInfo)
	mux.HandleFunc("POST /api/bot/message", bots.Message)
	mux.HandleFunc("POST /api/bot/resolve", bots.Resolve)
	mux.HandleFunc("POST /api/sweat-equity/create-challenge", sweats.CreateChallenge)
	mux.HandleFunc("POST /api/sweat-equity/autonomous-verification", sweats.AutonomousVerification)
	mux.HandleFunc("GET /api/sweat-equity/can-create", sweats.CanCreate)
	return &testEnv{clock: clock, ledger: l, mux: mux}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	case []byte:
		rd = bytes.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

// resolvedLoss creates a prediction that alice loses with a stake of 100 and
// funds the recovery reserve.
func (e *testEnv) resolvedLoss(t *testing.T) uint64 {
	t.Helper()
	rcpt, err := e.ledger.CreatePrediction(ownerAddr, domain.CreatePredictionRequest{
		Title:      "ETH flips BTC",
		TargetDate: e.clock.Now().Add(time.Hour),
		Category:   domain.CategoryCustom,
	})
	if err != nil {
		t.Fatalf("CreatePrediction: %v", err)
	}
	id := rcpt.PredictionID
	for _, a := range []common.Address{aliceAddr, bobAddr, ownerAddr} {
		if _, err := e.ledger.Deposit(a, big.NewInt(1000)); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
	}
	if _, err := e.ledger.Vote(aliceAddr, id, false, big.NewInt(100)); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if _, err := e.ledger.Vote(bobAddr, id, true, big.NewInt(100)); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if _, err := e.ledger.ResolvePrediction(ownerAddr, id, domain.OutcomeYes); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := e.ledger.FundRecoveryReserve(ownerAddr, big.NewInt(500)); err != nil {
		t.Fatalf("FundRecoveryReserve: %v", err)
	}
	return id
}

func TestCreateAndReadPrediction(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	code, body := env.do(t, http.MethodPost, "/api/create-prediction", map[string]any{
		"title":          "FID 123 will do 500 pushups",
		"targetDate":     "2025-03-10",
		"targetValue":    500,
		"category":       "fitness",
		"userAddress":    aliceAddr.Hex(),
		"autoResolvable": true,
	}, nil)
	if code != http.StatusOK || body["success"] != true {
		t.Fatalf("create = %d %v", code, body)
	}
	if body["predictionId"] != float64(1) || !strings.Contains(body["explorerUrl"].(string), "basescan.org/tx/") {
		t.Errorf("create body = %v", body)
	}

	code, body = env.do(t, http.MethodGet, "/api/predictions/base/1", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("get = %d %v", code, body)
	}
	want := map[string]any{
		"title":          "FID 123 will do 500 pushups",
		"category":       "FITNESS",
		"status":         "ACTIVE",
		"targetValue":    "500",
		"autoResolvable": true,
		"creator":        strings.ToLower(botAddr.Hex()),
		"targetDate":     "2025-03-10T23:59:59Z",
	}
	for k, v := range want {
		got := body[k]
		if s, ok := got.(string); ok && k == "creator" {
			got = strings.ToLower(s)
		}
		if got != v {
			t.Errorf("%s = %v, want %v", k, got, v)
		}
	}

	code, body = env.do(t, http.MethodGet, "/api/predictions/base/1/votes/"+aliceAddr.Hex(), nil, nil)
	if code != http.StatusOK || body["hasVoted"] != false || body["amount"] != "0" {
		t.Errorf("vote = %d %v", code, body)
	}

	code, body = env.do(t, http.MethodGet, "/api/fees/base", nil, nil)
	if code != http.StatusOK || body["charityFeePercentage"] != float64(15) || body["totalFeePercentage"] != float64(20) {
		t.Errorf("fees = %d %v", code, body)
	}

	code, body = env.do(t, http.MethodGet, "/api/chains", nil, nil)
	if code != http.StatusOK || body["default"] != "base" {
		t.Errorf("chains = %d %v", code, body)
	}
}

func TestCreatePredictionFailures(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing title",
			body:     map[string]any{"targetDate": "2025-03-10"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "bad date",
			body:     map[string]any{"title": "x", "targetDate": "next week"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown category",
			body:     map[string]any{"title": "x", "targetDate": "2025-03-10", "category": "SPORTS"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unsupported chain",
			body:     map[string]any{"title": "x", "targetDate": "2025-03-10", "chain": "solana"},
			wantCode: http.StatusBadRequest,
			wantErr:  string(market.CodeInvalidRequest),
		},
		{
			name:     "past target date",
			body:     map[string]any{"title": "x", "targetDate": "2025-02-01"},
			wantCode: http.StatusBadRequest,
			wantErr:  string(market.CodeContractRevert),
		},
		{
			name:     "malformed json",
			body:     "{",
			wantCode: http.StatusBadRequest,
		},
	}
	env := newTestEnv(t, nil, nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, body := env.do(t, http.MethodPost, "/api/create-prediction", tc.body, nil)
			if code != tc.wantCode {
				t.Fatalf("status = %d, want %d (%v)", code, tc.wantCode, body)
			}
			if body["success"] != false || body["message"] == "" {
				t.Errorf("body = %v", body)
			}
			if tc.wantErr != "" && body["code"] != tc.wantErr {
				t.Errorf("code = %v, want %s", body["code"], tc.wantErr)
			}
		})
	}
	if env.ledger.PredictionCount() != 0 {
		t.Errorf("failed requests created %d predictions", env.ledger.PredictionCount())
	}
}

func TestGetPredictionErrors(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	for path, want := range map[string]int{
		"/api/predictions/base/99":                  http.StatusNotFound,
		"/api/predictions/solana/1":                 http.StatusNotFound,
		"/api/predictions/base/abc":                 http.StatusBadRequest,
		"/api/predictions/base/1/votes/not-an-addr": http.StatusBadRequest,
		"/api/fees/solana":                          http.StatusNotFound,
	} {
		if code, body := env.do(t, http.MethodGet, path, nil, nil); code != want {
			t.Errorf("GET %s = %d %v, want %d", path, code, body, want)
		}
	}
}

func TestBotMessageConversation(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	msg := func(id, text string) map[string]any {
		return map[string]any{"id": id, "conversationId": "conv-1", "sender": "0xalice", "text": text}
	}

	code, body := env.do(t, http.MethodPost, "/api/bot/message", msg("m1", "I predict FID 123 will do 500 push-ups by 2025-03-20"), nil)
	if code != http.StatusOK || body["draft"] == nil {
		t.Fatalf("proposal = %d %v", code, body)
	}
	code, body = env.do(t, http.MethodPost, "/api/bot/message", msg("m2", "yes"), nil)
	if code != http.StatusOK {
		t.Fatalf("confirm = %d %v", code, body)
	}
	result, _ := body["result"].(map[string]any)
	if result == nil || result["success"] != true {
		t.Fatalf("confirm body = %v", body)
	}
	if env.ledger.PredictionCount() != 1 {
		t.Errorf("prediction count = %d, want 1", env.ledger.PredictionCount())
	}

	code, body = env.do(t, http.MethodPost, "/api/bot/message", msg("m2", "yes"), nil)
	if code != http.StatusOK || body["duplicate"] != true {
		t.Errorf("redelivered message = %d %v", code, body)
	}

	code, _ = env.do(t, http.MethodPost, "/api/bot/message", map[string]any{"text": "hi"}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("missing conversation id = %d, want 400", code)
	}
}

func TestBotMessageSignature(t *testing.T) {
	auth := &crypto.WebhookAuth{Secret: "bridge-secret", Now: func() time.Time { return time.Unix(1_740_830_400, 0) }}
	env := newTestEnv(t, auth, nil)
	raw := []byte(`{"id":"m1","conversationId":"c","sender":"s","text":"gm"}`)

	if code, _ := env.do(t, http.MethodPost, "/api/bot/message", raw, nil); code != http.StatusUnauthorized {
		t.Errorf("unsigned = %d, want 401", code)
	}
	forged := (&crypto.WebhookAuth{Secret: "other"}).Sign(raw, 1_740_830_400)
	if code, _ := env.do(t, http.MethodPost, "/api/bot/message", raw, forged); code != http.StatusUnauthorized {
		t.Errorf("wrong secret = %d, want 401", code)
	}
	code, body := env.do(t, http.MethodPost, "/api/bot/message", raw, auth.Sign(raw, 1_740_830_400))
	if code != http.StatusOK || body["text"] == "" {
		t.Errorf("signed = %d %v", code, body)
	}
}

func TestBotResolve(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	if code, _ := env.do(t, http.MethodPost, "/api/bot/resolve", nil, nil); code != http.StatusServiceUnavailable {
		t.Errorf("without scanner = %d, want 503", code)
	}

	env = newTestEnv(t, nil, &fakeScanner{report: bot.ScanReport{Checked: 2, Resolved: 1, Skipped: 1}})
	code, body := env.do(t, http.MethodPost, "/api/bot/resolve", nil, nil)
	if code != http.StatusOK || body["resolved"] != float64(1) || body["checked"] != float64(2) {
		t.Errorf("scan = %d %v", code, body)
	}

	env = newTestEnv(t, nil, &fakeScanner{err: errors.New("all chains down")})
	if code, _ := env.do(t, http.MethodPost, "/api/bot/resolve", nil, nil); code != http.StatusBadGateway {
		t.Errorf("failed scan = %d, want 502", code)
	}
}

func TestSweatEquityFlow(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	id := env.resolvedLoss(t)
	canCreate := func(user common.Address) bool {
		t.Helper()
		code, body := env.do(t, http.MethodGet, "/api/sweat-equity/can-create?chain=base&predictionId=1&user="+user.Hex(), nil, nil)
		if code != http.StatusOK {
			t.Fatalf("can-create = %d %v", code, body)
		}
		return body["canCreate"] == true
	}
	if !canCreate(aliceAddr) || canCreate(bobAddr) {
		t.Fatal("only the losing staker may open a challenge")
	}

	code, body := env.do(t, http.MethodPost, "/api/sweat-equity/create-challenge", map[string]any{
		"userAddress":  aliceAddr.Hex(),
		"predictionId": "1",
		"exerciseType": "Push-ups",
		"targetAmount": 50,
	}, nil)
	if code != http.StatusOK || body["challengeId"] != float64(1) || body["recoveryAmount"] != "80" {
		t.Fatalf("create-challenge = %d %v", code, body)
	}
	if body["deadline"] != "2025-03-02T12:00:00Z" {
		t.Errorf("deadline = %v", body["deadline"])
	}
	if canCreate(aliceAddr) {
		t.Error("second challenge allowed for the same prediction")
	}

	code, body = env.do(t, http.MethodPost, "/api/sweat-equity/autonomous-verification", map[string]any{
		"challengeId":       1,
		"verificationProof": "only managed 20 pushups",
	}, nil)
	if code != http.StatusOK || body["approved"] != false || body["success"] != true {
		t.Fatalf("short proof = %d %v", code, body)
	}
	// The test clock sits before the deadline even though the wall clock does not.
	if challenge, _ := body["challenge"].(map[string]any); challenge["state"] != "pending" {
		t.Errorf("short proof state = %v, want pending on the service clock", challenge["state"])
	}

	code, body = env.do(t, http.MethodPost, "/api/sweat-equity/autonomous-verification", map[string]any{
		"challengeId":       "1",
		"verificationProof": map[string]any{"text": "did 55 pushups this morning", "mediaUrl": "https://example.com/v.mp4"},
	}, nil)
	if code != http.StatusOK || body["approved"] != true || body["payout"] != "80" {
		t.Fatalf("approved proof = %d %v", code, body)
	}
	challenge, _ := body["challenge"].(map[string]any)
	if challenge["state"] != "verified" || challenge["completed"] != true || challenge["predictionId"] != float64(id) {
		t.Errorf("challenge = %v", challenge)
	}

	code, body = env.do(t, http.MethodPost, "/api/sweat-equity/autonomous-verification", map[string]any{
		"challengeId":       1,
		"verificationProof": "did 55 pushups this morning",
	}, nil)
	if code != http.StatusOK || body["approved"] != false || body["alreadyCompleted"] != true {
		t.Errorf("retry = %d %v", code, body)
	}
}

func TestSweatEquityValidation(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.resolvedLoss(t)
	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"bad user", "/api/sweat-equity/create-challenge", map[string]any{"userAddress": "alice", "predictionId": 1, "exerciseType": "squats", "targetAmount": 5}, http.StatusBadRequest},
		{"missing exercise", "/api/sweat-equity/create-challenge", map[string]any{"userAddress": aliceAddr.Hex(), "predictionId": 1, "targetAmount": 5}, http.StatusBadRequest},
		{"winner cannot recover", "/api/sweat-equity/create-challenge", map[string]any{"userAddress": bobAddr.Hex(), "predictionId": 1, "exerciseType": "squats", "targetAmount": 5}, http.StatusConflict},
		{"unknown prediction", "/api/sweat-equity/create-challenge", map[string]any{"userAddress": aliceAddr.Hex(), "predictionId": 7, "exerciseType": "squats", "targetAmount": 5}, http.StatusNotFound},
		{"missing proof", "/api/sweat-equity/autonomous-verification", map[string]any{"challengeId": 1}, http.StatusBadRequest},
		{"proof of wrong type", "/api/sweat-equity/autonomous-verification", map[string]any{"challengeId": 1, "verificationProof": 12}, http.StatusBadRequest},
		{"unknown challenge", "/api/sweat-equity/autonomous-verification", map[string]any{"challengeId": 9, "verificationProof": "10 squats"}, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, body := env.do(t, http.MethodPost, tc.path, tc.body, nil)
			if code != tc.want {
				t.Fatalf("status = %d, want %d (%v)", code, tc.want, body)
			}
			if body["success"] != false {
				t.Errorf("body = %v", body)
			}
		})
	}

	if code, _ := env.do(t, http.MethodGet, "/api/sweat-equity/can-create?predictionId=x&user="+aliceAddr.Hex(), nil, nil); code != http.StatusBadRequest {
		t.Errorf("can-create bad id = %d, want 400", code)
	}
}
