// Package amm implements the constant-product pool engine: pool creation,
// LP share minting and burning, and fee-charging swaps.
//
// Operations take the pool by pointer and only write to it after every check
// has passed, so a returned error always means the pool is unchanged. The
// engine never moves assets; the movements each operation implies are built
// by the Settlement helpers and executed by the caller.
package amm

import (
	"errors"

	"constantProduct/internal/fixedpoint"
)

var (
	ErrInvalidFee            = errors.New("invalid fee: denominator must be non-zero")
	ErrInvalidAssetPair      = errors.New("invalid asset pair: assets must differ")
	ErrInvalidAmount         = errors.New("invalid amount: must be greater than zero")
	ErrArithmetic            = fixedpoint.ErrArithmetic
	ErrZeroSwapOutput        = errors.New("swap output rounds to zero")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
)
