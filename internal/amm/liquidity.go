package amm

import (
	"fmt"

	"constantProduct/internal/fixedpoint"
	"constantProduct/internal/model"
)

// QuoteAddLiquidity returns the shares a deposit of (amountA, amountB) would
// mint without touching the pool.
func QuoteAddLiquidity(pool model.Pool, amountA, amountB uint64) (uint64, error) {
	_, shares, err := addLiquidity(pool, amountA, amountB)
	return shares, err
}

// AddLiquidity deposits (amountA, amountB) and returns the shares minted to
// the depositor.
func AddLiquidity(pool *model.Pool, amountA, amountB uint64) (uint64, error) {
	next, shares, err := addLiquidity(*pool, amountA, amountB)
	if err != nil {
		return 0, err
	}
	*pool = next
	return shares, nil
}

func addLiquidity(pool model.Pool, amountA, amountB uint64) (model.Pool, uint64, error) {
	if amountA == 0 || amountB == 0 {
		return pool, 0, ErrInvalidAmount
	}

	reserveA, err := fixedpoint.Add(pool.ReserveA, amountA)
	if err != nil {
		return pool, 0, fmt.Errorf("reserve a: %w", err)
	}
	reserveB, err := fixedpoint.Add(pool.ReserveB, amountB)
	if err != nil {
		return pool, 0, fmt.Errorf("reserve b: %w", err)
	}

	var shares uint64
	if pool.ReserveA == 0 || pool.ReserveB == 0 {
		// No ratio to preserve yet: the first depositor's units set the scale.
		shares, err = fixedpoint.Add(amountA, amountB)
		if err != nil {
			return pool, 0, fmt.Errorf("initial shares: %w", err)
		}
	} else {
		shareA, err := fixedpoint.MulDiv(amountA, pool.TotalShares, pool.ReserveA)
		if err != nil {
			return pool, 0, fmt.Errorf("shares for a: %w", err)
		}
		shareB, err := fixedpoint.MulDiv(amountB, pool.TotalShares, pool.ReserveB)
		if err != nil {
			return pool, 0, fmt.Errorf("shares for b: %w", err)
		}
		shares = fixedpoint.Min(shareA, shareB)
	}
	if shares == 0 {
		return pool, 0, fmt.Errorf("%w: deposit too small to mint shares", ErrArithmetic)
	}

	totalShares, err := fixedpoint.Add(pool.TotalShares, shares)
	if err != nil {
		return pool, 0, fmt.Errorf("total shares: %w", err)
	}

	pool.ReserveA = reserveA
	pool.ReserveB = reserveB
	pool.TotalShares = totalShares
	return pool, shares, nil
}

// QuoteRemoveLiquidity returns the amounts burning lpTokens would release
// without touching the pool.
func QuoteRemoveLiquidity(pool model.Pool, lpTokens uint64) (uint64, uint64, error) {
	_, amountA, amountB, err := removeLiquidity(pool, lpTokens)
	return amountA, amountB, err
}

// RemoveLiquidity burns lpTokens and returns the withdrawn (amountA, amountB).
// Amounts are floored, so rounding residue stays with the remaining holders.
func RemoveLiquidity(pool *model.Pool, lpTokens uint64) (uint64, uint64, error) {
	next, amountA, amountB, err := removeLiquidity(*pool, lpTokens)
	if err != nil {
		return 0, 0, err
	}
	*pool = next
	return amountA, amountB, nil
}

func removeLiquidity(pool model.Pool, lpTokens uint64) (model.Pool, uint64, uint64, error) {
	if lpTokens == 0 {
		return pool, 0, 0, ErrInvalidAmount
	}
	if pool.TotalShares == 0 {
		return pool, 0, 0, fmt.Errorf("%w: pool has no shares outstanding", ErrInsufficientLiquidity)
	}
	if lpTokens > pool.TotalShares {
		return pool, 0, 0, fmt.Errorf("%w: burning %d of %d shares", ErrInsufficientLiquidity, lpTokens, pool.TotalShares)
	}

	amountA, err := fixedpoint.MulDiv(lpTokens, pool.ReserveA, pool.TotalShares)
	if err != nil {
		return pool, 0, 0, fmt.Errorf("amount a: %w", err)
	}
	amountB, err := fixedpoint.MulDiv(lpTokens, pool.ReserveB, pool.TotalShares)
	if err != nil {
		return pool, 0, 0, fmt.Errorf("amount b: %w", err)
	}

	reserveA, err := fixedpoint.Sub(pool.ReserveA, amountA)
	if err != nil {
		return pool, 0, 0, fmt.Errorf("reserve a: %w", err)
	}
	reserveB, err := fixedpoint.Sub(pool.ReserveB, amountB)
	if err != nil {
		return pool, 0, 0, fmt.Errorf("reserve b: %w", err)
	}
	totalShares, err := fixedpoint.Sub(pool.TotalShares, lpTokens)
	if err != nil {
		return pool, 0, 0, fmt.Errorf("total shares: %w", err)
	}

	pool.ReserveA = reserveA
	pool.ReserveB = reserveB
	pool.TotalShares = totalShares
	return pool, amountA, amountB, nil
}
