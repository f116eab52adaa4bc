package scenario

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// SolDecimals is the number of lamports per SOL as a power of ten.
const SolDecimals uint8 = 9

// ToBaseUnits converts a decimal amount of whole units into base units.
func ToBaseUnits(amount string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid amount %q: negative", amount)
	}
	units := d.Shift(int32(decimals))
	if !units.Equal(units.Truncate(0)) {
		return 0, fmt.Errorf("invalid amount %q: more than %d decimal places", amount, decimals)
	}
	n := units.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("invalid amount %q: out of range", amount)
	}
	return n.Uint64(), nil
}

// FromBaseUnits converts base units back into whole units.
func FromBaseUnits(units uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -int32(decimals))
}
