package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Category classifies a prediction and selects the oracle used to resolve it.
type Category uint8

const (
	CategoryFitness Category = iota
	CategoryChain
	CategoryCommunity
	CategoryCustom
)

var categoryNames = [...]string{"FITNESS", "CHAIN", "COMMUNITY", "CUSTOM"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("Category(%d)", uint8(c))
}

// Valid reports whether c is one of the defined categories.
func (c Category) Valid() bool { return int(c) < len(categoryNames) }

// ParseCategory accepts the category name in any case.
func ParseCategory(s string) (Category, error) {
	for i, name := range categoryNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown category %q", ErrValidation, s)
}

func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Status is the lifecycle state of a prediction. RESOLVED and CANCELLED are
// terminal.
type Status uint8

const (
	StatusActive Status = iota
	StatusResolved
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusResolved:
		return "RESOLVED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "ACTIVE":
		*s = StatusActive
	case "RESOLVED":
		*s = StatusResolved
	case "CANCELLED":
		*s = StatusCancelled
	default:
		return fmt.Errorf("%w: unknown status %q", ErrValidation, text)
	}
	return nil
}

// Terminal reports whether no further state transitions are possible.
func (s Status) Terminal() bool { return s == StatusResolved || s == StatusCancelled }

// Outcome is the resolved answer. Only meaningful once Status is RESOLVED.
type Outcome uint8

const (
	OutcomeUnresolved Outcome = iota
	OutcomeYes
	OutcomeNo
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnresolved:
		return "UNRESOLVED"
	case OutcomeYes:
		return "YES"
	case OutcomeNo:
		return "NO"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(text []byte) error {
	if strings.EqualFold(strings.TrimSpace(string(text)), "UNRESOLVED") {
		*o = OutcomeUnresolved
		return nil
	}
	parsed, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// ParseOutcome accepts "yes"/"no" in any case, or true/false spellings.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		return OutcomeYes, nil
	case "no", "false", "2":
		return OutcomeNo, nil
	default:
		return OutcomeUnresolved, fmt.Errorf("%w: unknown outcome %q", ErrValidation, s)
	}
}

// OutcomeFor maps a yes/no side to the outcome it wins under.
func OutcomeFor(isYes bool) Outcome {
	if isYes {
		return OutcomeYes
	}
	return OutcomeNo
}

// Prediction is one market question. Amounts are in the ledger's smallest
// native unit. TotalStaked always equals YesVotes + NoVotes.
type Prediction struct {
	ID             uint64
	Creator        common.Address
	Title          string
	Description    string
	Emoji          string
	Network        string
	TargetDate     time.Time
	TargetValue    *big.Int
	Category       Category
	TotalStaked    *big.Int
	YesVotes       *big.Int
	NoVotes        *big.Int
	Status         Status
	Outcome        Outcome
	AutoResolvable bool
	CreatedAt      time.Time
	ResolvedAt     *time.Time

	// Frozen at resolution.
	CharityAmount     *big.Int
	MaintenanceAmount *big.Int
	Distributable     *big.Int
}

// WinningTotal returns the stake on the side that won. Zero before
// resolution.
func (p Prediction) WinningTotal() *big.Int {
	switch p.Outcome {
	case OutcomeYes:
		return new(big.Int).Set(p.YesVotes)
	case OutcomeNo:
		return new(big.Int).Set(p.NoVotes)
	default:
		return new(big.Int)
	}
}

// Clone returns a deep copy so callers cannot mutate ledger state.
func (p Prediction) Clone() Prediction {
	out := p
	out.TargetValue = cloneInt(p.TargetValue)
	out.TotalStaked = cloneInt(p.TotalStaked)
	out.YesVotes = cloneInt(p.YesVotes)
	out.NoVotes = cloneInt(p.NoVotes)
	out.CharityAmount = cloneInt(p.CharityAmount)
	out.MaintenanceAmount = cloneInt(p.MaintenanceAmount)
	out.Distributable = cloneInt(p.Distributable)
	if p.ResolvedAt != nil {
		t := *p.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}

// CreatePredictionRequest carries the createPrediction arguments.
type CreatePredictionRequest struct {
	Title          string
	Description    string
	TargetDate     time.Time
	TargetValue    *big.Int
	Category       Category
	Network        string
	Emoji          string
	AutoResolvable bool
}

// Vote is one user's stake on one prediction.
type Vote struct {
	IsYes   bool
	Amount  *big.Int
	Claimed bool
}

// HasStake reports whether the user staked anything.
func (v Vote) HasStake() bool { return v.Amount != nil && v.Amount.Sign() > 0 }

// Clone returns a deep copy.
func (v Vote) Clone() Vote {
	v.Amount = cloneInt(v.Amount)
	return v
}

// FeeInfo is the fee configuration currently in force.
type FeeInfo struct {
	CharityFeePercentage     uint64
	MaintenanceFeePercentage uint64
	TotalFeePercentage       uint64
	CharityAddress           common.Address
	MaintenanceAddress       common.Address
}

// TxReceipt is what a state-changing ledger call returns once included.
type TxReceipt struct {
	TxHash       common.Hash
	PredictionID uint64
	ChallengeID  uint64
	Amount       *big.Int
	Events       []Event
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
