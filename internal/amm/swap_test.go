package amm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constantProduct/internal/model"
)

func TestSwapAToB(t *testing.T) {
	pool := newPool(t, 1000, 1000, 2000, 3, 1000)

	output, err := Swap(&pool, 100, 80, model.AToB)
	require.NoError(t, err)

	assert.Equal(t, uint64(90), output)
	assert.Equal(t, uint64(1100), pool.ReserveA)
	assert.Equal(t, uint64(910), pool.ReserveB)
	assert.Equal(t, uint64(2000), pool.TotalShares)
}

func TestSwapBToA(t *testing.T) {
	pool := newPool(t, 1000, 1000, 2000, 3, 1000)

	output, err := Swap(&pool, 100, 0, model.BToA)
	require.NoError(t, err)

	assert.Equal(t, uint64(90), output)
	assert.Equal(t, uint64(910), pool.ReserveA)
	assert.Equal(t, uint64(1100), pool.ReserveB)
}

func TestSwapChargesFee(t *testing.T) {
	pool := newPool(t, 10_000, 10_000, 20_000, 3, 1000)

	quote, err := QuoteSwap(pool, 1000, 0, model.AToB)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), quote.Fee)
	assert.Equal(t, uint64(997), quote.NetInput)
	assert.Equal(t, uint64(906), quote.Output)

	output, err := Swap(&pool, 1000, 0, model.AToB)
	require.NoError(t, err)
	assert.Equal(t, quote.Output, output)
	// The whole input, fee included, lands in the reserve.
	assert.Equal(t, uint64(11_000), pool.ReserveA)
	assert.Equal(t, uint64(9_094), pool.ReserveB)
}

func TestSwapSlippageExceeded(t *testing.T) {
	pool := newPool(t, 1000, 1000, 2000, 3, 1000)
	before := pool

	_, err := Swap(&pool, 100, 91, model.AToB)
	require.ErrorIs(t, err, ErrSlippageExceeded)
	assert.Equal(t, before, pool)
}

func TestSwapRejectsZeroInput(t *testing.T) {
	pool := newPool(t, 1000, 1000, 2000, 3, 1000)
	before := pool

	_, err := Swap(&pool, 0, 0, model.AToB)
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, before, pool)
}

func TestSwapZeroOutput(t *testing.T) {
	pool := newPool(t, 1000, 1000, 2000, 0, 1)
	before := pool

	_, err := Swap(&pool, 1, 0, model.AToB)
	require.ErrorIs(t, err, ErrZeroSwapOutput)
	assert.Equal(t, before, pool)
}

func TestSwapEmptyPool(t *testing.T) {
	pool := newPool(t, 0, 0, 0, 3, 1000)

	_, err := Swap(&pool, 100, 0, model.AToB)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestSwapFeeAboveInput(t *testing.T) {
	pool := newPool(t, 1000, 1000, 2000, 2, 1)
	before := pool

	_, err := Swap(&pool, 100, 0, model.AToB)
	require.ErrorIs(t, err, ErrArithmetic)
	assert.Equal(t, before, pool)
}

func TestSwapFeeOverflow(t *testing.T) {
	pool := newPool(t, 1000, 1000, 2000, math.MaxUint64, 1)

	_, err := Swap(&pool, 2, 0, model.AToB)
	require.ErrorIs(t, err, ErrArithmetic)
}

func TestSwapReserveOverflow(t *testing.T) {
	pool := newPool(t, math.MaxUint64-5, 1000, 2000, 0, 1)
	before := pool

	_, err := Swap(&pool, 10, 0, model.AToB)
	require.ErrorIs(t, err, ErrArithmetic)
	assert.Equal(t, before, pool)
}

func TestSwapUnknownDirection(t *testing.T) {
	pool := newPool(t, 1000, 1000, 2000, 3, 1000)

	_, err := Swap(&pool, 100, 0, model.Direction(7))
	require.Error(t, err)
}

func TestQuoteSwapDoesNotMutate(t *testing.T) {
	pool := newPool(t, 1000, 1000, 2000, 3, 1000)
	before := pool

	quote, err := QuoteSwap(pool, 100, 80, model.AToB)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), quote.Output)
	assert.Equal(t, model.AToB, quote.Direction)
	assert.Equal(t, before, pool)
}

func TestEffectiveFee(t *testing.T) {
	pool := newPool(t, 0, 0, 0, 3, 1000)

	fee, err := EffectiveFee(pool, 100)
	require.NoError(t, err)
	assert.Zero(t, fee)

	fee, err = EffectiveFee(pool, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(3000), fee)
}

func TestSettlements(t *testing.T) {
	pool := newPool(t, 1000, 1000, 2000, 3, 1000)

	add := AddLiquiditySettlement(pool, alice, 10, 20, 15)
	require.Len(t, add, 3)
	assert.Equal(t, model.Transfer(tokenA, alice, pool.Authority, 10), add[0])
	assert.Equal(t, model.Transfer(tokenB, alice, pool.Authority, 20), add[1])
	assert.Equal(t, model.Mint(pool.ShareIssuer, alice, 15), add[2])

	remove := RemoveLiquiditySettlement(pool, alice, 5, 3, 0)
	require.Len(t, remove, 2)
	assert.Equal(t, model.Burn(pool.ShareIssuer, alice, 5), remove[0])
	assert.Equal(t, model.Transfer(tokenA, pool.Authority, alice, 3), remove[1])

	swap := SwapSettlement(pool, alice, model.BToA, 100, 90)
	require.Len(t, swap, 2)
	assert.Equal(t, model.Transfer(tokenB, alice, pool.Authority, 100), swap[0])
	assert.Equal(t, model.Transfer(tokenA, pool.Authority, alice, 90), swap[1])
}
