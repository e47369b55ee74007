package bot

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/imperfectform/predictbot/internal/domain"
)

// Completer is the part of the LLM client the extractor needs.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string, out any) error
}

const extractorPrompt = `You read chat messages for a prediction-market bot. Today is %s (UTC).
Decide whether the message states a falsifiable claim with a settlement date.
Reply with one JSON object:
{"is_prediction": bool, "title": string, "description": string,
 "target_date": "YYYY-MM-DD" or "", "date_explicit": bool,
 "target_value": integer, "category": "FITNESS"|"CHAIN"|"COMMUNITY"|"CUSTOM",
 "network": string, "reply": string}
Set date_explicit to false when the message gives no exact calendar date,
including dates without a year. Never invent a date. For fitness claims keep
the FID and the exercise in the title. reply is a short conversational answer
for non-predictions.`

type llmDraft struct {
	IsPrediction bool   `json:"is_prediction"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	TargetDate   string `json:"target_date"`
	DateExplicit bool   `json:"date_explicit"`
	TargetValue  uint64 `json:"target_value"`
	Category     string `json:"category"`
	Network      string `json:"network"`
	Reply        string `json:"reply"`
}

// LLMExtractor asks a chat model to classify the message and fill the draft.
// The model's answer is checked with the same rules as the heuristic
// extractor; it never supplies a date the user did not give.
type LLMExtractor struct {
	llm Completer
	now func() time.Time
}

func NewLLMExtractor(llm Completer, now func() time.Time) *LLMExtractor {
	if now == nil {
		now = time.Now
	}
	return &LLMExtractor{llm: llm, now: now}
}

func (e *LLMExtractor) ExtractProposal(ctx context.Context, text string) (Extraction, error) {
	now := e.now().UTC()
	var out llmDraft
	if err := e.llm.CompleteJSON(ctx, fmt.Sprintf(extractorPrompt, now.Format("2006-01-02")), text, &out); err != nil {
		return Extraction{}, fmt.Errorf("bot: extract proposal: %w", err)
	}
	if !out.IsPrediction {
		reply := strings.TrimSpace(out.Reply)
		if reply == "" {
			reply = helpReply
		}
		return Extraction{Reply: reply}, nil
	}
	if !out.DateExplicit || out.TargetDate == "" {
		return Extraction{Reply: clarifyDateReply}, nil
	}
	day, err := time.Parse("2006-01-02", out.TargetDate)
	if err != nil {
		return Extraction{Reply: clarifyDateReply}, nil
	}
	target := endOfDay(day.Year(), day.Month(), day.Day())
	if !target.After(now) {
		return Extraction{Reply: pastDateReply}, nil
	}

	category, err := domain.ParseCategory(out.Category)
	if err != nil {
		category = domain.CategoryCustom
	}
	req := domain.CreatePredictionRequest{
		Title:          strings.TrimSpace(out.Title),
		Description:    strings.TrimSpace(out.Description),
		TargetDate:     target,
		TargetValue:    new(big.Int).SetUint64(out.TargetValue),
		Category:       category,
		Network:        strings.ToLower(strings.TrimSpace(out.Network)),
		Emoji:          emojiFor(category),
		AutoResolvable: category == domain.CategoryFitness || category == domain.CategoryChain,
	}
	if req.Title == "" {
		req.Title = titleFrom(text)
	}
	if req.Description == "" {
		req.Description = text
	}
	if err := validateDraft(req, now); err != nil {
		return Extraction{Reply: clarifyDateReply}, nil
	}
	return Extraction{Draft: &req, Reply: ConfirmationPrompt(req)}, nil
}

func emojiFor(c domain.Category) string {
	switch c {
	case domain.CategoryFitness:
		return "💪"
	case domain.CategoryChain:
		return "⛓️"
	case domain.CategoryCommunity:
		return "🤝"
	default:
		return "🔮"
	}
}

var _ Extractor = (*LLMExtractor)(nil)
