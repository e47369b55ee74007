package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/imperfectform/predictbot/internal/domain"
)

// FormatAmount renders a base-unit amount in whole native units, trimming
// trailing zeros ("1.5", "0.000000000000000001").
func FormatAmount(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// ParseAmount converts a native-unit string such as "0.25" into base units.
// Precision beyond the currency's decimals is rejected rather than rounded.
func ParseAmount(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("chain: parse amount %q: %w", s, domain.ErrValidation)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("chain: parse amount %q: %w: negative", s, domain.ErrValidation)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("chain: parse amount %q: %w: more than %d decimals", s, domain.ErrValidation, decimals)
	}
	return scaled.BigInt(), nil
}

// Format renders amount with the chain's currency symbol.
func (d Descriptor) Format(amount *big.Int) string {
	return FormatAmount(amount, d.NativeCurrency.Decimals) + " " + d.NativeCurrency.Symbol
}

// Parse converts a native-unit string into base units for this chain.
func (d Descriptor) Parse(s string) (*big.Int, error) {
	return ParseAmount(s, d.NativeCurrency.Decimals)
}
