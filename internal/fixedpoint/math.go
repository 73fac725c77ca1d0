// Package fixedpoint provides checked unsigned 64-bit arithmetic for pool accounting.
//
// Every operation either returns an exact result or an error wrapping ErrArithmetic.
// Division always rounds toward zero.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"
)

var (
	// ErrArithmetic is the root of every arithmetic failure.
	ErrArithmetic = errors.New("arithmetic error")

	ErrOverflow       = fmt.Errorf("%w: overflow", ErrArithmetic)
	ErrUnderflow      = fmt.Errorf("%w: underflow", ErrArithmetic)
	ErrDivisionByZero = fmt.Errorf("%w: division by zero", ErrArithmetic)
)

// Add returns a+b.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}

// Sub returns a-b.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d", ErrUnderflow, a, b)
	}
	return diff, nil
}

// Mul returns a*b.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d", ErrOverflow, a, b)
	}
	return lo, nil
}

// Div returns floor(a/b).
func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, fmt.Errorf("%w: %d / 0", ErrDivisionByZero, a)
	}
	return a / b, nil
}

// MulDiv returns floor(a*b/c). The product is kept in 256 bits so only the
// final quotient has to fit in 64 bits.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, fmt.Errorf("%w: %d * %d / 0", ErrDivisionByZero, a, b)
	}
	q := Product(a, b)
	q.Div(q, uint256.NewInt(c))
	if !q.IsUint64() {
		return 0, fmt.Errorf("%w: %d * %d / %d", ErrOverflow, a, b, c)
	}
	return q.Uint64(), nil
}

// Product returns the exact product a*b.
func Product(a, b uint64) *uint256.Int {
	x := uint256.NewInt(a)
	return x.Mul(x, uint256.NewInt(b))
}

// Min returns the smaller of a and b.
func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
