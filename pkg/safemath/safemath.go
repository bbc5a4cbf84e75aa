// Package safemath provides overflow-checked uint64 arithmetic with 128-bit intermediates.
package safemath

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
)

var (
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrUnderflow      = errors.New("arithmetic underflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// Add returns a+b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%d + %d: %w", a, b, ErrOverflow)
	}
	return sum, nil
}

// Sub returns a-b or ErrUnderflow.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%d - %d: %w", a, b, ErrUnderflow)
	}
	return diff, nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%d * %d: %w", a, b, ErrOverflow)
	}
	return lo, nil
}

// Sum adds all values, failing on the first overflow.
func Sum(values ...uint64) (uint64, error) {
	var total uint64
	for _, v := range values {
		var err error
		if total, err = Add(total, v); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// MulDiv returns floor(a*b/c) computed over a 128-bit product.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivisionByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, fmt.Errorf("%d * %d / %d: %w", a, b, c, ErrOverflow)
	}
	quo, _ := bits.Div64(hi, lo, c)
	return quo, nil
}

// MulDivCeil returns ceil(a*b/c) computed over a 128-bit product.
func MulDivCeil(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivisionByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, fmt.Errorf("%d * %d / %d: %w", a, b, c, ErrOverflow)
	}
	quo, rem := bits.Div64(hi, lo, c)
	if rem != 0 {
		return Add(quo, 1)
	}
	return quo, nil
}

// SqrtProduct returns floor(sqrt(a*b)). The result always fits in 64 bits.
func SqrtProduct(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	product := new(big.Int).Lsh(new(big.Int).SetUint64(hi), 64)
	product.Or(product, new(big.Int).SetUint64(lo))
	return product.Sqrt(product).Uint64()
}

// Pow10 returns 10^exp or ErrOverflow.
func Pow10(exp uint8) (uint64, error) {
	result := uint64(1)
	for i := uint8(0); i < exp; i++ {
		var err error
		if result, err = Mul(result, 10); err != nil {
			return 0, err
		}
	}
	return result, nil
}

// Min returns the smaller of a and b.
func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
