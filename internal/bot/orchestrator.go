package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/market"
	"github.com/imperfectform/predictbot/internal/notify"
)

// Prediction sources recorded in the index.
const (
	SourceBot = "bot"
	SourceAPI = "api"
)

// Message is one inbound chat message from the messaging bridge.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Sender         string `json:"sender"`
	Text           string `json:"text"`
	Chain          string `json:"chain,omitempty"`
}

// Reply is what the bot answers. Draft is set while a proposal awaits
// confirmation; Result is set once creation was attempted.
type Reply struct {
	Text      string         `json:"text"`
	Draft     *domain.Draft  `json:"draft,omitempty"`
	Result    *market.Result `json:"result,omitempty"`
	Duplicate bool           `json:"duplicate,omitempty"`
}

// OrchestratorConfig tunes the conversation flow.
type OrchestratorConfig struct {
	DefaultChain string
	DraftTTL     time.Duration
	DedupTTL     time.Duration
}

// Orchestrator runs the propose, confirm, create conversation. It keeps no
// state of its own between messages; pending drafts live in the DraftStore.
type Orchestrator struct {
	cfg       OrchestratorConfig
	extractor Extractor
	client    *market.Client
	signer    market.Account
	drafts    domain.DraftStore
	dedup     domain.Deduper
	index     domain.PredictionIndex
	notifier  *notify.Notifier
	now       func() time.Time
	logger    *slog.Logger
}

// OrchestratorDeps are the collaborators. Dedup, Index, and Notifier may be
// nil.
type OrchestratorDeps struct {
	Extractor Extractor
	Client    *market.Client
	Signer    market.Account
	Drafts    domain.DraftStore
	Dedup     domain.Deduper
	Index     domain.PredictionIndex
	Notifier  *notify.Notifier
	Now       func() time.Time
}

func NewOrchestrator(cfg OrchestratorConfig, deps OrchestratorDeps, logger *slog.Logger) *Orchestrator {
	if cfg.DraftTTL <= 0 {
		cfg.DraftTTL = 30 * time.Minute
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 10 * time.Minute
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{
		cfg:       cfg,
		extractor: deps.Extractor,
		client:    deps.Client,
		signer:    deps.Signer,
		drafts:    deps.Drafts,
		dedup:     deps.Dedup,
		index:     deps.Index,
		notifier:  deps.Notifier,
		now:       deps.Now,
		logger:    logger.With(slog.String("component", "bot_orchestrator")),
	}
}

var (
	confirmWords = map[string]bool{"yes": true, "y": true, "confirm": true, "ok": true, "do it": true}
	cancelWords  = map[string]bool{"no": true, "n": true, "cancel": true, "stop": true, "nevermind": true}
)

func normalizeReply(text string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(text)), ".! ")
}

// HandleMessage processes one message. Errors are returned only for
// infrastructure failures; everything the user should see is in Reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg Message) (Reply, error) {
	if msg.ConversationID == "" {
		return Reply{}, fmt.Errorf("bot: handle message: %w: conversation id is required", domain.ErrValidation)
	}
	if o.dedup != nil && msg.ID != "" {
		first, err := o.dedup.FirstSeen(ctx, "msg:"+msg.ID, o.cfg.DedupTTL)
		if err != nil {
			o.logger.WarnContext(ctx, "dedup check failed", slog.String("message_id", msg.ID), slog.String("error", err.Error()))
		} else if !first {
			return Reply{Duplicate: true}, nil
		}
	}

	word := normalizeReply(msg.Text)
	if confirmWords[word] || cancelWords[word] {
		draft, err := o.drafts.Get(ctx, msg.ConversationID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return Reply{Text: "There is nothing waiting for confirmation. Tell me a prediction first."}, nil
		case err != nil:
			return Reply{}, fmt.Errorf("bot: load draft: %w", err)
		case cancelWords[word]:
			if err := o.drafts.Delete(ctx, msg.ConversationID); err != nil {
				return Reply{}, fmt.Errorf("bot: delete draft: %w", err)
			}
			return Reply{Text: "Cancelled. Nothing was created."}, nil
		default:
			return o.confirm(ctx, draft)
		}
	}

	ext, err := o.extractor.ExtractProposal(ctx, msg.Text)
	if err != nil {
		o.logger.WarnContext(ctx, "extract proposal failed",
			slog.String("conversation_id", msg.ConversationID),
			slog.String("error", err.Error()),
		)
		return Reply{Text: "I couldn't read that right now. Please try again in a moment."}, nil
	}
	if ext.Draft == nil {
		return Reply{Text: ext.Reply}, nil
	}

	chainKey := msg.Chain
	if chainKey == "" {
		chainKey = o.cfg.DefaultChain
	}
	req := *ext.Draft
	if req.Network == "" {
		req.Network = chainKey
	}
	if err := validateDraft(req, o.now()); err != nil {
		return Reply{Text: clarifyDateReply}, nil
	}
	draft := domain.Draft{
		ConversationID: msg.ConversationID,
		Sender:         msg.Sender,
		Chain:          chainKey,
		Request:        req,
		CreatedAt:      o.now().UTC(),
	}
	if err := o.drafts.Put(ctx, draft, o.cfg.DraftTTL); err != nil {
		return Reply{}, fmt.Errorf("bot: save draft: %w", err)
	}
	return Reply{Text: ext.Reply, Draft: &draft}, nil
}

func (o *Orchestrator) confirm(ctx context.Context, draft domain.Draft) (Reply, error) {
	if err := validateDraft(draft.Request, o.now()); err != nil {
		if err := o.drafts.Delete(ctx, draft.ConversationID); err != nil {
			return Reply{}, fmt.Errorf("bot: delete draft: %w", err)
		}
		return Reply{Text: pastDateReply}, nil
	}

	res := o.CreatePrediction(ctx, draft.Chain, draft.Request, draft.Sender, SourceBot)
	if !res.Success {
		// A network failure leaves the draft so "yes" can be sent again.
		if res.Error == nil || res.Error.Code != market.CodeNetworkError {
			if err := o.drafts.Delete(ctx, draft.ConversationID); err != nil {
				return Reply{}, fmt.Errorf("bot: delete draft: %w", err)
			}
		}
		return Reply{Text: failureText(res.Error), Result: &res}, nil
	}
	if err := o.drafts.Delete(ctx, draft.ConversationID); err != nil {
		o.logger.WarnContext(ctx, "delete draft failed", slog.String("conversation_id", draft.ConversationID), slog.String("error", err.Error()))
	}
	text := fmt.Sprintf("Created prediction #%d on %s.\nTx: %s", res.PredictionID, draft.Chain, res.TxHash)
	if res.ExplorerURL != "" {
		text += "\n" + res.ExplorerURL
	}
	return Reply{Text: text, Result: &res}, nil
}

func failureText(te *market.TxError) string {
	if te == nil {
		return "Creating the prediction failed."
	}
	switch te.Code {
	case market.CodeNetworkError:
		return `The network didn't respond. Reply "yes" to try again.`
	case market.CodeInsufficientFunds:
		return "The bot wallet is out of funds for gas. An operator has to top it up."
	default:
		return fmt.Sprintf("Creating the prediction failed (%s).", te)
	}
}

// CreatePrediction submits a prediction with the bot's own identity and
// records it. requester is the end user the bot acts for.
func (o *Orchestrator) CreatePrediction(ctx context.Context, chainKey string, req domain.CreatePredictionRequest, requester, source string) market.Result {
	if chainKey == "" {
		chainKey = o.cfg.DefaultChain
	}
	res := o.client.CreateChainPrediction(ctx, chainKey, req, o.signer)
	if !res.Success {
		return res
	}
	o.logger.InfoContext(ctx, "bot created prediction",
		slog.String("chain", chainKey),
		slog.Uint64("prediction_id", res.PredictionID),
		slog.String("requester", requester),
		slog.String("source", source),
	)
	if o.index != nil {
		rec := domain.PredictionRecord{
			Chain:        chainKey,
			PredictionID: res.PredictionID,
			TxHash:       res.TxHash,
			Creator:      o.signer.Address().Hex(),
			Title:        req.Title,
			Category:     req.Category,
			TargetDate:   req.TargetDate,
			Status:       domain.StatusActive,
			Source:       source,
			CreatedAt:    o.now().UTC(),
		}
		if err := o.index.Upsert(ctx, rec); err != nil {
			o.logger.WarnContext(ctx, "index prediction failed",
				slog.Uint64("prediction_id", res.PredictionID),
				slog.String("error", err.Error()),
			)
		}
	}
	msg := fmt.Sprintf("#%d %s\nrequested by %s\n%s", res.PredictionID, req.Title, requester, res.ExplorerURL)
	if err := o.notifier.Notify(ctx, notify.EventPredictionCreated, "Prediction created", msg); err != nil {
		o.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
	}
	return res
}
