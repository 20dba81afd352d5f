/*
This file contains checked integer helpers shared by the rate, vault and market packages.
Every operation either returns an exact result or one of the arithmetic error kinds below;
nothing wraps and nothing saturates.
*/

package utils

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Arithmetic error kinds.
var (
	ErrOverflow = errors.New("arithmetic overflow")
	ErrMath     = errors.New("math error")
)

// CheckedAdd returns a + b or ErrOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}

// CheckedSub returns a - b or ErrMath when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%w: %d - %d underflows", ErrMath, a, b)
	}
	return a - b, nil
}

// SaturatingSub returns a - b, or zero when b > a.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// CheckedMul returns a * b or ErrOverflow.
func CheckedMul(a, b uint64) (uint64, error) {
	return ToUint64(sdkmath.NewIntFromUint64(a).Mul(sdkmath.NewIntFromUint64(b)))
}

// MulDiv returns floor(a * b / c) using a wide intermediate.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, fmt.Errorf("%w: division by zero", ErrMath)
	}
	product := sdkmath.NewIntFromUint64(a).Mul(sdkmath.NewIntFromUint64(b))
	return ToUint64(product.Quo(sdkmath.NewIntFromUint64(c)))
}

// MulDivInt returns floor(prod(factors) / denominator) where every factor and the
// denominator are uint64. The intermediate product is unbounded up to 256 bits.
func MulDivInt(denominator uint64, factors ...uint64) (uint64, error) {
	if denominator == 0 {
		return 0, fmt.Errorf("%w: division by zero", ErrMath)
	}
	product := sdkmath.OneInt()
	for _, f := range factors {
		next, err := product.SafeMul(sdkmath.NewIntFromUint64(f))
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrOverflow, err)
		}
		product = next
	}
	return ToUint64(product.Quo(sdkmath.NewIntFromUint64(denominator)))
}

// ToUint64 narrows an SDK Int to uint64.
func ToUint64(i sdkmath.Int) (uint64, error) {
	if i.IsNil() {
		return 0, fmt.Errorf("%w: nil amount", ErrMath)
	}
	if i.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %s", ErrMath, i.String())
	}
	if !i.IsUint64() {
		return 0, fmt.Errorf("%w: %s does not fit in 64 bits", ErrOverflow, i.String())
	}
	return i.Uint64(), nil
}
