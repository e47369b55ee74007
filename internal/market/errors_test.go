package market

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/imperfectform/predictbot/internal/domain"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   Code
		wantReason string
	}{
		{"signing failed", fmt.Errorf("sign: %w", domain.ErrSigningFailed), CodeUserRejected, "transaction rejected by signer"},
		{"wallet rejection text", errors.New("User rejected the request"), CodeUserRejected, "transaction rejected by signer"},
		{"ledger balance", fmt.Errorf("vote: %w", domain.ErrInsufficientBalance), CodeInsufficientFunds, "insufficient balance"},
		{"node funds text", errors.New("insufficient funds for gas * price + value"), CodeInsufficientFunds, "insufficient funds for gas * price + value"},
		{"revert", fmt.Errorf("market: vote: %w", domain.ErrPredictionNotActive), CodeContractRevert, "prediction not active"},
		{"unknown revert", domain.ParseRevert("custom guard"), CodeContractRevert, "custom guard"},
		{"reserve is a revert", domain.ErrInsufficientReserve, CodeContractRevert, "recovery reserve too low"},
		{"deadline", context.DeadlineExceeded, CodeNetworkError, "context deadline exceeded"},
		{"net error", fmt.Errorf("dial: %w", timeoutErr{}), CodeNetworkError, "dial: i/o timeout"},
		{"validation", fmt.Errorf("chain: %w: unknown", domain.ErrNotFound), CodeInvalidRequest, "chain: not found: unknown"},
		{"anything else", errors.New("boom"), CodeNetworkError, "boom"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got == nil {
				t.Fatal("Classify returned nil")
			}
			if got.Code != tc.wantCode {
				t.Errorf("code = %s, want %s", got.Code, tc.wantCode)
			}
			if got.Reason != tc.wantReason {
				t.Errorf("reason = %q, want %q", got.Reason, tc.wantReason)
			}
		})
	}
}

func TestClassifyNilAndPassThrough(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatal("Classify(nil) should be nil")
	}
	orig := &TxError{Code: CodeContractRevert, Reason: "already claimed"}
	if got := Classify(fmt.Errorf("wrapped: %w", orig)); got != orig {
		t.Fatalf("existing TxError not passed through: %v", got)
	}
}

func TestTxErrorUnwrapsToDomainSentinel(t *testing.T) {
	te := Classify(fmt.Errorf("claim: %w", domain.ErrAlreadyClaimed))
	if !errors.Is(te, domain.ErrAlreadyClaimed) {
		t.Error("TxError should unwrap to the revert")
	}
	if !errors.Is(te, domain.ErrStateConflict) {
		t.Error("TxError should unwrap to the category")
	}
	if te.Error() != "CONTRACT_REVERT: already claimed" {
		t.Errorf("Error() = %q", te.Error())
	}
}
