package market

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/imperfectform/predictbot/internal/domain"
)

// Code is the error class surfaced to market-client callers.
type Code string

const (
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeNetworkError      Code = "NETWORK_ERROR"
	CodeUserRejected      Code = "USER_REJECTED"
	CodeContractRevert    Code = "CONTRACT_REVERT"
	// CodeInvalidRequest covers requests rejected before anything is
	// submitted, such as an unsupported chain key.
	CodeInvalidRequest Code = "INVALID_REQUEST"
)

// TxError is a classified market-client failure. It unwraps to the
// underlying error so errors.Is still matches domain sentinels.
type TxError struct {
	Code   Code   `json:"code"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func (e *TxError) Error() string {
	if e.Reason == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *TxError) Unwrap() error { return e.Err }

// Classify maps any error crossing the client boundary onto a TxError.
// It returns nil for a nil error.
func Classify(err error) *TxError {
	if err == nil {
		return nil
	}
	var te *TxError
	if errors.As(err, &te) {
		return te
	}

	msg := strings.ToLower(err.Error())
	var le *domain.LedgerError
	switch {
	case errors.Is(err, domain.ErrSigningFailed),
		strings.Contains(msg, "user rejected"),
		strings.Contains(msg, "user denied"):
		return &TxError{Code: CodeUserRejected, Reason: "transaction rejected by signer", Err: err}

	case errors.Is(err, domain.ErrInsufficientBalance),
		strings.Contains(msg, "insufficient funds"):
		reason := domain.RevertReason(err)
		if reason == "" {
			reason = err.Error()
		}
		return &TxError{Code: CodeInsufficientFunds, Reason: reason, Err: err}

	case errors.As(err, &le):
		return &TxError{Code: CodeContractRevert, Reason: le.Reason, Err: err}

	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, domain.ErrExternalDependency):
		return &TxError{Code: CodeNetworkError, Reason: err.Error(), Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TxError{Code: CodeNetworkError, Reason: err.Error(), Err: err}
	}
	if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) {
		return &TxError{Code: CodeInvalidRequest, Reason: err.Error(), Err: err}
	}
	return &TxError{Code: CodeNetworkError, Reason: err.Error(), Err: err}
}
