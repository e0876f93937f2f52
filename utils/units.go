package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToSmallestUnit converts a whole-unit amount (e.g. 25 USDC) into the token's
// smallest integer unit by applying 10^decimals.
func ToSmallestUnit(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative: %s", amount)
	}

	scaled := amount.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %s exceeds %d decimals of precision", amount, decimals)
	}

	return scaled.BigInt(), nil
}

// FromSmallestUnit converts a raw integer balance into whole units.
func FromSmallestUnit(raw *big.Int, decimals int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -decimals)
}

// FormatUnits renders a raw integer amount as a decimal string, trailing
// zeros trimmed ("25000000", 6 -> "25").
func FormatUnits(raw *big.Int, decimals int32) string {
	return FromSmallestUnit(raw, decimals).String()
}
