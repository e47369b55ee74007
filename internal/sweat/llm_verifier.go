package sweat

import (
	"context"
	"fmt"
	"strings"

	"github.com/imperfectform/predictbot/internal/domain"
)

// Completer is the part of the LLM client the verifier needs.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string, out any) error
}

const verifierPrompt = `You verify fitness challenge proofs for a prediction market.
The user must have completed %d %s. Judge only the proof given.
Reply with one JSON object: {"approved": bool, "reasoning": string, "confidence": number between 0 and 1}.`

// LLMVerifier asks a chat model for a verdict. Approvals below
// MinConfidence are turned into rejections.
type LLMVerifier struct {
	llm           Completer
	minConfidence float64
}

func NewLLMVerifier(llm Completer, minConfidence float64) *LLMVerifier {
	if minConfidence <= 0 || minConfidence > 1 {
		minConfidence = 0.7
	}
	return &LLMVerifier{llm: llm, minConfidence: minConfidence}
}

func (v *LLMVerifier) Name() string { return "llm" }

func (v *LLMVerifier) Verify(ctx context.Context, ch domain.Challenge, proof Proof) (Verdict, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Proof text: %s\n", proof.Text)
	if proof.MediaURL != "" {
		fmt.Fprintf(&b, "Media: %s\n", proof.MediaURL)
	}

	var out Verdict
	system := fmt.Sprintf(verifierPrompt, ch.TargetAmount, ch.ExerciseType)
	if err := v.llm.CompleteJSON(ctx, system, b.String(), &out); err != nil {
		return Verdict{}, fmt.Errorf("sweat: llm verify: %w", err)
	}
	if out.Approved && out.Confidence < v.minConfidence {
		out.Approved = false
		out.Reasoning = fmt.Sprintf("confidence %.2f below %.2f: %s", out.Confidence, v.minConfidence, out.Reasoning)
	}
	return out, nil
}

var _ Verifier = (*LLMVerifier)(nil)
