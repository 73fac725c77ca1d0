package aggregate

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"constantProduct/internal/fixedpoint"
)

var yearSeconds = decimal.NewFromInt(int64(365 * 24 * time.Hour / time.Second))

func formatAmount(value *uint256.Int) string {
	if value == nil {
		return "0"
	}
	return value.ToBig().String()
}

func toDecimal(value *uint256.Int) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value.ToBig(), 0)
}

func computePrice(reserveA, reserveB uint64) *string {
	price, ok := fixedpoint.Ratio(reserveB, reserveA)
	if !ok || reserveB == 0 {
		return nil
	}
	val := price.String()
	return &val
}

func computeFeeRates(feeA, feeB *uint256.Int, reserveA, reserveB uint64) (*string, *string) {
	return computeRate(feeA, reserveA), computeRate(feeB, reserveB)
}

func computeRate(fee *uint256.Int, reserve uint64) *string {
	if fee == nil || fee.IsZero() || reserve == 0 {
		return nil
	}
	rate := toDecimal(fee).DivRound(fixedpoint.Decimal(reserve), fixedpoint.RatioPrecision)
	val := rate.String()
	return &val
}

// computeAPR annualises the window's fee yield. Fees of B are valued in A at
// the closing price, and pool value is 2*reserveA, which holds for a
// constant-product pool at its own spot price.
func computeAPR(feeA, feeB *uint256.Int, reserveA, reserveB uint64, windowSeconds uint64) *string {
	if windowSeconds == 0 || reserveA == 0 || reserveB == 0 {
		return nil
	}
	if (feeA == nil || feeA.IsZero()) && (feeB == nil || feeB.IsZero()) {
		return nil
	}

	ra := fixedpoint.Decimal(reserveA)
	rb := fixedpoint.Decimal(reserveB)
	feeValue := toDecimal(feeA).Add(toDecimal(feeB).Mul(ra).Div(rb))
	rate := feeValue.Div(ra.Mul(decimal.NewFromInt(2)))

	apr := rate.Mul(yearSeconds).DivRound(fixedpoint.Decimal(windowSeconds), fixedpoint.RatioPrecision)
	val := apr.String()
	return &val
}
