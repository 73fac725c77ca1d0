package amm

import (
	"fmt"

	"constantProduct/internal/fixedpoint"
	"constantProduct/internal/model"
)

// SwapQuote is the outcome of pricing a swap against a pool.
type SwapQuote struct {
	Direction model.Direction `json:"direction"`
	Input     uint64          `json:"input,string"`
	Fee       uint64          `json:"fee,string"`
	NetInput  uint64          `json:"net_input,string"`
	Output    uint64          `json:"output,string"`
}

// EffectiveFee returns floor(input * feeNumerator / feeDenominator).
func EffectiveFee(pool model.Pool, input uint64) (uint64, error) {
	fee, err := fixedpoint.MulDiv(input, pool.FeeNumerator, pool.FeeDenominator)
	if err != nil {
		return 0, fmt.Errorf("fee: %w", err)
	}
	return fee, nil
}

// QuoteSwap prices a swap without touching the pool. It applies every check
// Swap applies, including the minimum output.
func QuoteSwap(pool model.Pool, input, minimumOutput uint64, direction model.Direction) (SwapQuote, error) {
	_, quote, err := swap(pool, input, minimumOutput, direction)
	return quote, err
}

// Swap sells input of the direction's input asset and returns the output
// amount. The fee stays in the input reserve.
func Swap(pool *model.Pool, input, minimumOutput uint64, direction model.Direction) (uint64, error) {
	quote, err := ExecuteSwap(pool, input, minimumOutput, direction)
	if err != nil {
		return 0, err
	}
	return quote.Output, nil
}

// ExecuteSwap is Swap returning the full quote of the executed swap.
func ExecuteSwap(pool *model.Pool, input, minimumOutput uint64, direction model.Direction) (SwapQuote, error) {
	next, quote, err := swap(*pool, input, minimumOutput, direction)
	if err != nil {
		return quote, err
	}
	*pool = next
	return quote, nil
}

func swap(pool model.Pool, input, minimumOutput uint64, direction model.Direction) (model.Pool, SwapQuote, error) {
	quote := SwapQuote{Direction: direction, Input: input}
	if direction != model.AToB && direction != model.BToA {
		return pool, quote, fmt.Errorf("unknown swap direction %d", uint8(direction))
	}
	if input == 0 {
		return pool, quote, ErrInvalidAmount
	}

	fee, err := EffectiveFee(pool, input)
	if err != nil {
		return pool, quote, err
	}
	netInput, err := fixedpoint.Sub(input, fee)
	if err != nil {
		return pool, quote, fmt.Errorf("net input: %w", err)
	}
	quote.Fee = fee
	quote.NetInput = netInput

	reserveIn, reserveOut := direction.Reserves(pool)
	if reserveIn == 0 || reserveOut == 0 {
		return pool, quote, fmt.Errorf("%w: pool reserves are empty", ErrInsufficientLiquidity)
	}

	denominator, err := fixedpoint.Add(reserveIn, netInput)
	if err != nil {
		return pool, quote, fmt.Errorf("curve denominator: %w", err)
	}
	output, err := fixedpoint.MulDiv(reserveOut, netInput, denominator)
	if err != nil {
		return pool, quote, fmt.Errorf("output: %w", err)
	}
	quote.Output = output
	if output == 0 {
		return pool, quote, ErrZeroSwapOutput
	}
	if output < minimumOutput {
		return pool, quote, fmt.Errorf("%w: output %d below minimum %d", ErrSlippageExceeded, output, minimumOutput)
	}

	newIn, err := fixedpoint.Add(reserveIn, input)
	if err != nil {
		return pool, quote, fmt.Errorf("input reserve: %w", err)
	}
	newOut, err := fixedpoint.Sub(reserveOut, output)
	if err != nil {
		return pool, quote, fmt.Errorf("output reserve: %w", err)
	}

	// k measured on net input must never shrink.
	before := fixedpoint.Product(reserveIn, reserveOut)
	after := fixedpoint.Product(denominator, newOut)
	if after.Lt(before) {
		return pool, quote, fmt.Errorf("%w: invariant decreased", ErrArithmetic)
	}

	if direction == model.AToB {
		pool.ReserveA, pool.ReserveB = newIn, newOut
	} else {
		pool.ReserveB, pool.ReserveA = newIn, newOut
	}
	return pool, quote, nil
}
