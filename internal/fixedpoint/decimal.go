package fixedpoint

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// RatioPrecision is the number of decimal places kept by Ratio.
const RatioPrecision = 18

// Decimal converts an integer amount to a decimal.
func Decimal(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// Ratio returns num/den rounded to RatioPrecision places. It reports false
// when den is zero.
func Ratio(num, den uint64) (decimal.Decimal, bool) {
	if den == 0 {
		return decimal.Zero, false
	}
	return Decimal(num).DivRound(Decimal(den), RatioPrecision), true
}
