// Package bot turns chat messages into prediction markets and resolves
// markets whose target date has passed.
package bot

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/oracle"
)

// Extraction is the result of reading one message. Draft is nil when the
// message is not a usable prediction; Reply is what to say back either way.
type Extraction struct {
	Draft *domain.CreatePredictionRequest
	Reply string
}

// Extractor classifies free text and fills a draft from it.
type Extractor interface {
	ExtractProposal(ctx context.Context, text string) (Extraction, error)
}

const (
	helpReply = `I turn dated predictions into on-chain markets. Try: "I predict FID 123 will do 500 pushups by 2025-03-01".`

	clarifyDateReply = "When should this be settled? Give me an exact date with a year, like 2025-03-01 or March 1, 2025."
	pastDateReply    = "That date has already passed. Give me a future date to settle on."
	maxTitleLen      = 120
)

var (
	claimPattern   = regexp.MustCompile(`(?i)\b(predict|bet|wager|will|gonna|going to)\b`)
	predictPrefix  = regexp.MustCompile(`(?i)^\s*(?:i\s+)?(?:predict|bet|wager)(?:\s+that)?[:,]?\s+`)
	blockTarget    = regexp.MustCompile(`(?i)\bblock(?:\s+height)?\s*#?\s*(\d[\d,]*)`)
	reachTarget    = regexp.MustCompile(`(?i)\b(?:reach|hit|exceed|above|over)\s+(\d[\d,]*)`)
	networkPattern = regexp.MustCompile(`(?i)\b(base|celo)\b`)
)

// HeuristicExtractor recognizes predictions with regular expressions. It
// understands fitness claims about a Farcaster FID, block-height claims,
// and otherwise produces a CUSTOM draft.
type HeuristicExtractor struct {
	now func() time.Time
}

func NewHeuristicExtractor(now func() time.Time) *HeuristicExtractor {
	if now == nil {
		now = time.Now
	}
	return &HeuristicExtractor{now: now}
}

func (h *HeuristicExtractor) ExtractProposal(_ context.Context, text string) (Extraction, error) {
	text = strings.TrimSpace(text)
	if text == "" || !claimPattern.MatchString(text) {
		return Extraction{Reply: helpReply}, nil
	}
	now := h.now()

	target, res := parseTargetDate(text, now)
	switch res {
	case dateMissing, dateVague, dateInvalid:
		return Extraction{Reply: clarifyDateReply}, nil
	}
	if !target.After(now) {
		return Extraction{Reply: pastDateReply}, nil
	}

	req := domain.CreatePredictionRequest{
		Title:       titleFrom(text),
		Description: text,
		TargetDate:  target,
		TargetValue: new(big.Int),
		Category:    domain.CategoryCustom,
		Emoji:       emojiFor(domain.CategoryCustom),
	}
	switch subject, ok := oracle.ParseFitnessSubject(text); {
	case ok:
		req.Category = domain.CategoryFitness
		req.Emoji = emojiFor(req.Category)
		req.AutoResolvable = true
		req.TargetValue = repsTarget(text, subject.Exercise)
		req.Description = fmt.Sprintf("%s\nFID %d · %s", text, subject.FID, subject.Exercise)
	case blockTarget.MatchString(text):
		req.Category = domain.CategoryChain
		req.Emoji = emojiFor(req.Category)
		req.AutoResolvable = true
		req.TargetValue = parseNumber(blockTarget.FindStringSubmatch(text)[1])
		if m := networkPattern.FindStringSubmatch(text); m != nil {
			req.Network = strings.ToLower(m[1])
		}
	default:
		if m := reachTarget.FindStringSubmatch(text); m != nil {
			req.TargetValue = parseNumber(m[1])
		}
	}
	if req.Category == domain.CategoryFitness && req.TargetValue.Sign() == 0 {
		return Extraction{Reply: "How many reps? Include the number, like 500 pushups."}, nil
	}
	return Extraction{Draft: &req, Reply: ConfirmationPrompt(req)}, nil
}

// repsTarget returns the number written before the exercise name.
func repsTarget(text, exercise string) *big.Int {
	n, _ := oracle.StatedCount(text, exercise)
	return new(big.Int).SetUint64(n)
}

func parseNumber(s string) *big.Int {
	n, ok := new(big.Int).SetString(strings.ReplaceAll(s, ",", ""), 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

func titleFrom(text string) string {
	title := strings.TrimSpace(predictPrefix.ReplaceAllString(text, ""))
	if idx := strings.IndexAny(title, "\n"); idx >= 0 {
		title = title[:idx]
	}
	title = strings.TrimRight(title, ".!? ")
	r := []rune(title)
	if len(r) == 0 {
		return text
	}
	if len(r) > maxTitleLen {
		r = append(r[:maxTitleLen-1], '…')
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// ConfirmationPrompt asks the requester to confirm a draft.
func ConfirmationPrompt(req domain.CreatePredictionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", req.Emoji, req.Title)
	fmt.Fprintf(&b, "Category: %s", req.Category)
	if req.TargetValue != nil && req.TargetValue.Sign() > 0 {
		fmt.Fprintf(&b, " · target %s", req.TargetValue)
	}
	fmt.Fprintf(&b, "\nSettles: %s UTC\n", req.TargetDate.UTC().Format("2006-01-02 15:04"))
	b.WriteString(`Reply "yes" to create it or "no" to cancel.`)
	return b.String()
}

// validateDraft checks what every draft must satisfy before it is offered
// or submitted.
func validateDraft(req domain.CreatePredictionRequest, now time.Time) error {
	switch {
	case strings.TrimSpace(req.Title) == "":
		return domain.ErrEmptyTitle
	case !req.Category.Valid():
		return domain.ErrInvalidCategory
	case !req.TargetDate.After(now):
		return domain.ErrTargetDateNotFuture
	}
	return nil
}

var _ Extractor = (*HeuristicExtractor)(nil)
