package domain

import "errors"

// Error categories. Every ledger rejection wraps exactly one of these so
// callers can branch on the category with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrValidation         = errors.New("validation failed")
	ErrStateConflict      = errors.New("state conflict")
	ErrExternalDependency = errors.New("external dependency unavailable")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrSigningFailed      = errors.New("signing failed")
	ErrLockHeld           = errors.New("lock already held")
	ErrReverted           = errors.New("transaction reverted")
)

// LedgerError is a ledger revert. Reason is the string the ledger reports to
// callers; Kind is the category sentinel it belongs to.
type LedgerError struct {
	Kind   error
	Reason string
}

func (e *LedgerError) Error() string { return e.Reason }

func (e *LedgerError) Unwrap() error { return e.Kind }

func revert(kind error, reason string) *LedgerError {
	return &LedgerError{Kind: kind, Reason: reason}
}

// Ledger revert reasons.
var (
	ErrTargetDateNotFuture = revert(ErrValidation, "target date must be in the future")
	ErrEmptyTitle          = revert(ErrValidation, "title is required")
	ErrInvalidCategory     = revert(ErrValidation, "invalid category")
	ErrInvalidOutcome      = revert(ErrValidation, "outcome must be YES or NO")
	ErrZeroStake           = revert(ErrValidation, "must stake something")
	ErrInvalidFees         = revert(ErrValidation, "total fee percentage must be below 100")
	ErrInvalidChallenge    = revert(ErrValidation, "exercise type and target amount are required")

	ErrPredictionNotFound = revert(ErrNotFound, "prediction does not exist")
	ErrChallengeNotFound  = revert(ErrNotFound, "challenge does not exist")

	ErrNotOwner    = revert(ErrUnauthorized, "caller is not the owner")
	ErrNotResolver = revert(ErrUnauthorized, "caller is not authorized to resolve")
	ErrNotVerifier = revert(ErrUnauthorized, "caller is not authorized to verify challenges")
	ErrNotCreator  = revert(ErrUnauthorized, "caller is not authorized to create predictions")

	ErrPredictionNotActive   = revert(ErrStateConflict, "prediction not active")
	ErrAlreadyResolved       = revert(ErrStateConflict, "already resolved")
	ErrNotResolved           = revert(ErrStateConflict, "prediction not resolved")
	ErrNotCancelled          = revert(ErrStateConflict, "prediction not cancelled")
	ErrNoVote                = revert(ErrStateConflict, "no vote found")
	ErrAlreadyClaimed        = revert(ErrStateConflict, "already claimed")
	ErrChallengeNotAllowed   = revert(ErrStateConflict, "cannot create sweat equity challenge")
	ErrChallengeWindowClosed = revert(ErrStateConflict, "no time remaining for challenge")
	ErrChallengeExpired      = revert(ErrStateConflict, "challenge deadline passed")
	ErrChallengeCompleted    = revert(ErrStateConflict, "challenge already completed")

	ErrInsufficientBalance = revert(ErrInsufficientFunds, "insufficient balance")
	ErrInsufficientReserve = revert(ErrInsufficientFunds, "recovery reserve too low")
)

var knownReverts = []*LedgerError{
	ErrTargetDateNotFuture, ErrEmptyTitle, ErrInvalidCategory, ErrInvalidOutcome,
	ErrZeroStake, ErrInvalidFees, ErrInvalidChallenge,
	ErrPredictionNotFound, ErrChallengeNotFound,
	ErrNotOwner, ErrNotResolver, ErrNotVerifier, ErrNotCreator,
	ErrPredictionNotActive, ErrAlreadyResolved, ErrNotResolved, ErrNotCancelled,
	ErrNoVote, ErrAlreadyClaimed, ErrChallengeNotAllowed, ErrChallengeWindowClosed,
	ErrChallengeExpired, ErrChallengeCompleted,
	ErrInsufficientBalance, ErrInsufficientReserve,
}

// ParseRevert maps a revert reason reported by a deployed ledger back to the
// matching error. Unknown reasons become a LedgerError of kind ErrReverted.
func ParseRevert(reason string) *LedgerError {
	for _, le := range knownReverts {
		if le.Reason == reason {
			return le
		}
	}
	return &LedgerError{Kind: ErrReverted, Reason: reason}
}

// RevertReason returns the ledger reason carried by err, or "" when err did
// not originate from a ledger revert.
func RevertReason(err error) string {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Reason
	}
	return ""
}
