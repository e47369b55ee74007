// Package fees implements the charity/maintenance/winner split applied to a
// resolved prediction's pool.
package fees

import (
	"fmt"
	"math/big"

	"github.com/imperfectform/predictbot/internal/domain"
)

var hundred = big.NewInt(100)

// Split is the fixed division of a resolved pool. It is computed once at
// resolution and never recomputed.
type Split struct {
	CharityAmount     *big.Int
	MaintenanceAmount *big.Int
	Distributable     *big.Int
}

// Fees returns CharityAmount + MaintenanceAmount.
func (s Split) Fees() *big.Int {
	return new(big.Int).Add(s.CharityAmount, s.MaintenanceAmount)
}

// ValidatePercentages rejects fee configurations that leave nothing for
// winners.
func ValidatePercentages(charityPct, maintenancePct uint64) error {
	if charityPct >= 100 || maintenancePct >= 100 || charityPct+maintenancePct >= 100 {
		return domain.ErrInvalidFees
	}
	return nil
}

// Percent returns amount * pct / 100, truncating.
func Percent(amount *big.Int, pct uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(pct))
	return out.Quo(out, hundred)
}

// SplitPool divides totalStaked into charity, maintenance, and the pool left
// for winners. Each fee is truncated independently; the remainder goes to
// Distributable, so the three parts always sum to totalStaked.
func SplitPool(totalStaked *big.Int, charityPct, maintenancePct uint64) (Split, error) {
	if err := ValidatePercentages(charityPct, maintenancePct); err != nil {
		return Split{}, err
	}
	if totalStaked == nil || totalStaked.Sign() < 0 {
		return Split{}, fmt.Errorf("fees: split pool: %w: negative total", domain.ErrValidation)
	}

	charity := Percent(totalStaked, charityPct)
	maintenance := Percent(totalStaked, maintenancePct)
	distributable := new(big.Int).Sub(totalStaked, charity)
	distributable.Sub(distributable, maintenance)

	return Split{
		CharityAmount:     charity,
		MaintenanceAmount: maintenance,
		Distributable:     distributable,
	}, nil
}

// Payout returns a winner's share: stake * distributable / winningTotal,
// truncating. It returns zero when winningTotal is zero.
func Payout(stake, distributable, winningTotal *big.Int) *big.Int {
	if winningTotal == nil || winningTotal.Sign() == 0 || stake == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(stake, distributable)
	return out.Quo(out, winningTotal)
}
