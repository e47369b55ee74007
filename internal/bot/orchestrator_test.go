package bot

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/imperfectform/predictbot/internal/cache/memory"
	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/market"
)

// fakeExtractor returns a canned draft for any message containing
// "predict" and a conversational reply otherwise.
type fakeExtractor struct {
	draft domain.CreatePredictionRequest
	calls int
}

func (f *fakeExtractor) ExtractProposal(_ context.Context, text string) (Extraction, error) {
	f.calls++
	if !strings.Contains(text, "predict") {
		return Extraction{Reply: helpReply}, nil
	}
	d := f.draft
	return Extraction{Draft: &d, Reply: ConfirmationPrompt(d)}, nil
}

type recordingIndex struct {
	records []domain.PredictionRecord
}

func (r *recordingIndex) Upsert(_ context.Context, rec domain.PredictionRecord) error {
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingIndex) UpdateStatus(context.Context, string, uint64, domain.Status, domain.Outcome) error {
	return nil
}

func (r *recordingIndex) Get(context.Context, string, uint64) (domain.PredictionRecord, error) {
	return domain.PredictionRecord{}, domain.ErrNotFound
}

func (r *recordingIndex) ListByStatus(context.Context, string, domain.Status, domain.ListOpts) ([]domain.PredictionRecord, error) {
	return nil, nil
}

func newTestOrchestrator(t *testing.T, env *testEnv) (*Orchestrator, *fakeExtractor, *recordingIndex) {
	t.Helper()
	ext := &fakeExtractor{draft: domain.CreatePredictionRequest{
		Title:          "FID 123 will do 500 pushups",
		TargetDate:     env.clock.Now().Add(48 * time.Hour),
		TargetValue:    big.NewInt(500),
		Category:       domain.CategoryFitness,
		AutoResolvable: true,
	}}
	idx := &recordingIndex{}
	o := NewOrchestrator(OrchestratorConfig{DefaultChain: "base"}, OrchestratorDeps{
		Extractor: ext,
		Client:    env.client,
		Signer:    addrAccount(botAddr),
		Drafts:    memory.NewDraftStore(env.clock.Now),
		Dedup:     memory.NewDeduper(env.clock.Now),
		Index:     idx,
		Now:       env.clock.Now,
	}, testLogger())
	return o, ext, idx
}

func send(t *testing.T, o *Orchestrator, id, text string) Reply {
	t.Helper()
	r, err := o.HandleMessage(context.Background(), Message{ID: id, ConversationID: "conv-1", Sender: "0xalice", Text: text})
	if err != nil {
		t.Fatalf("HandleMessage(%q): %v", text, err)
	}
	return r
}

func TestConfirmCreatesWithBotIdentity(t *testing.T) {
	env := newTestEnv(t)
	o, _, idx := newTestOrchestrator(t, env)

	proposal := send(t, o, "m1", "I predict FID 123 will do 500 pushups")
	if proposal.Draft == nil || proposal.Draft.Chain != "base" || proposal.Draft.Request.Network != "base" {
		t.Fatalf("proposal = %+v", proposal)
	}
	if env.ledger.PredictionCount() != 0 {
		t.Fatal("prediction created before confirmation")
	}

	done := send(t, o, "m2", "Yes!")
	if done.Result == nil || !done.Result.Success {
		t.Fatalf("confirm reply = %+v", done)
	}
	if !strings.Contains(done.Text, done.Result.TxHash) || !strings.Contains(done.Text, "basescan.org/tx/") {
		t.Errorf("reply text %q lacks tx hash or explorer link", done.Text)
	}
	p, err := env.ledger.GetPrediction(done.Result.PredictionID)
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if p.Creator != botAddr {
		t.Errorf("creator = %s, want bot %s", p.Creator.Hex(), botAddr.Hex())
	}
	if len(idx.records) != 1 || idx.records[0].Source != SourceBot {
		t.Errorf("index records = %+v", idx.records)
	}

	again := send(t, o, "m3", "yes")
	if again.Result != nil || env.ledger.PredictionCount() != 1 {
		t.Errorf("second yes created again: %+v", again)
	}
}

func TestCancelDiscardsDraft(t *testing.T) {
	env := newTestEnv(t)
	o, _, _ := newTestOrchestrator(t, env)

	send(t, o, "m1", "I predict FID 123 will do 500 pushups")
	if r := send(t, o, "m2", "cancel"); !strings.Contains(r.Text, "Cancelled") {
		t.Errorf("cancel reply = %q", r.Text)
	}
	if r := send(t, o, "m3", "yes"); r.Result != nil {
		t.Errorf("yes after cancel created %+v", r.Result)
	}
	if env.ledger.PredictionCount() != 0 {
		t.Error("prediction exists after cancel")
	}
}

func TestDuplicateMessageIgnored(t *testing.T) {
	env := newTestEnv(t)
	o, ext, _ := newTestOrchestrator(t, env)

	send(t, o, "m1", "I predict FID 123 will do 500 pushups")
	r := send(t, o, "m1", "I predict FID 123 will do 500 pushups")
	if !r.Duplicate {
		t.Errorf("reply = %+v, want duplicate", r)
	}
	if ext.calls != 1 {
		t.Errorf("extractor calls = %d, want 1", ext.calls)
	}
}

func TestNonPredictionGetsConversationalReply(t *testing.T) {
	env := newTestEnv(t)
	o, _, _ := newTestOrchestrator(t, env)
	r := send(t, o, "m1", "hello there")
	if r.Draft != nil || r.Text != helpReply {
		t.Errorf("reply = %+v", r)
	}
}

func TestConfirmAfterTargetDatePassedRejects(t *testing.T) {
	env := newTestEnv(t)
	o, _, _ := newTestOrchestrator(t, env)

	send(t, o, "m1", "I predict FID 123 will do 500 pushups")
	env.clock.Advance(72 * time.Hour)
	r := send(t, o, "m2", "yes")
	if r.Result != nil || r.Text != pastDateReply {
		t.Errorf("reply = %+v", r)
	}
	if env.ledger.PredictionCount() != 0 {
		t.Error("created a prediction with a past target date")
	}
}

func TestCreatePredictionReportsFailureCode(t *testing.T) {
	env := newTestEnv(t)
	o, _, _ := newTestOrchestrator(t, env)
	o.signer = addrAccount(aliceAddr) // not authorized to create

	res := o.CreatePrediction(context.Background(), "base", domain.CreatePredictionRequest{
		Title:      "x",
		TargetDate: env.clock.Now().Add(time.Hour),
	}, "0xalice", SourceAPI)
	if res.Success || res.Error == nil || res.Error.Code != market.CodeContractRevert {
		t.Errorf("result = %+v", res)
	}
}
