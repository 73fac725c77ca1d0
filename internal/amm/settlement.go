package amm

import (
	"github.com/ethereum/go-ethereum/common"

	"constantProduct/internal/model"
)

// AddLiquiditySettlement lists the movements of a deposit: both assets from
// the depositor into the pool authority, then the share mint.
func AddLiquiditySettlement(pool model.Pool, depositor common.Address, amountA, amountB, shares uint64) []model.Movement {
	return []model.Movement{
		model.Transfer(pool.AssetA, depositor, pool.Authority, amountA),
		model.Transfer(pool.AssetB, depositor, pool.Authority, amountB),
		model.Mint(pool.ShareIssuer, depositor, shares),
	}
}

// RemoveLiquiditySettlement lists the movements of a withdrawal. Zero amounts
// are skipped.
func RemoveLiquiditySettlement(pool model.Pool, withdrawer common.Address, lpTokens, amountA, amountB uint64) []model.Movement {
	movements := []model.Movement{model.Burn(pool.ShareIssuer, withdrawer, lpTokens)}
	if amountA > 0 {
		movements = append(movements, model.Transfer(pool.AssetA, pool.Authority, withdrawer, amountA))
	}
	if amountB > 0 {
		movements = append(movements, model.Transfer(pool.AssetB, pool.Authority, withdrawer, amountB))
	}
	return movements
}

// SwapSettlement lists the movements of a swap.
func SwapSettlement(pool model.Pool, trader common.Address, direction model.Direction, input, output uint64) []model.Movement {
	assetIn, assetOut := direction.Assets(pool)
	return []model.Movement{
		model.Transfer(assetIn, trader, pool.Authority, input),
		model.Transfer(assetOut, pool.Authority, trader, output),
	}
}
