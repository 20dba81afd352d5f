/*

Rate is an exact, non-negative fixed-point fraction used for weights, fees and exchange
rates. It is stored as a WAD-scaled (1e18) decimal and every result is bounded to 128
bits of scaled value, so arithmetic either returns an exact floored result or fails.

*/

package rate

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/allocator/internal/utils"
)

// Precision is the number of decimal places carried by a Rate.
const Precision = sdkmath.LegacyPrecision

// maxScaledBits bounds the scaled integer behind every Rate.
const maxScaledBits = 128

type Rate struct {
	dec sdkmath.LegacyDec
}

func Zero() Rate { return Rate{dec: sdkmath.LegacyZeroDec()} }

func One() Rate { return Rate{dec: sdkmath.LegacyOneDec()} }

// FromPercent returns pct / 100.
func FromPercent(pct uint8) Rate {
	return Rate{dec: sdkmath.LegacyNewDecWithPrec(int64(pct), 2)}
}

// FromBips returns bips / 10000.
func FromBips(bips uint64) Rate {
	return Rate{dec: sdkmath.LegacyNewDecFromBigIntWithPrec(new(big.Int).SetUint64(bips), 4)}
}

// FromScaled interprets v as a WAD-scaled value.
func FromScaled(v uint64) Rate {
	return Rate{dec: sdkmath.LegacyNewDecFromBigIntWithPrec(new(big.Int).SetUint64(v), Precision)}
}

// FromFraction returns floor(num / den).
func FromFraction(num, den uint64) (Rate, error) {
	if den == 0 {
		return Rate{}, fmt.Errorf("%w: rate with zero denominator", utils.ErrMath)
	}
	n := sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(num))
	return bounded(n.QuoTruncate(sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(den))))
}

// FromDec wraps a decimal, rejecting negative or out-of-range values.
func FromDec(d sdkmath.LegacyDec) (Rate, error) {
	if d.IsNil() || d.IsNegative() {
		return Rate{}, fmt.Errorf("%w: rate must be non-negative", utils.ErrMath)
	}
	return bounded(d)
}

func bounded(d sdkmath.LegacyDec) (Rate, error) {
	if d.BigInt().BitLen() > maxScaledBits {
		return Rate{}, fmt.Errorf("%w: rate %s exceeds %d-bit scaled range", utils.ErrOverflow, d.String(), maxScaledBits)
	}
	return Rate{dec: d}, nil
}

// d treats the zero Rate as 0.
func (r Rate) d() sdkmath.LegacyDec {
	if r.dec.IsNil() {
		return sdkmath.LegacyZeroDec()
	}
	return r.dec
}

func (r Rate) TryAdd(o Rate) (Rate, error) {
	return bounded(r.d().Add(o.d()))
}

func (r Rate) TrySub(o Rate) (Rate, error) {
	if o.d().GT(r.d()) {
		return Rate{}, fmt.Errorf("%w: rate %s - %s underflows", utils.ErrMath, r, o)
	}
	return bounded(r.d().Sub(o.d()))
}

func (r Rate) TryMul(o Rate) (Rate, error) {
	return bounded(r.d().MulTruncate(o.d()))
}

func (r Rate) TryDiv(o Rate) (Rate, error) {
	if o.IsZero() {
		return Rate{}, fmt.Errorf("%w: rate division by zero", utils.ErrMath)
	}
	return bounded(r.d().QuoTruncate(o.d()))
}

// MulFloor returns floor(amount * r).
func (r Rate) MulFloor(amount uint64) (uint64, error) {
	a := sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(amount))
	return utils.ToUint64(a.MulTruncate(r.d()).TruncateInt())
}

// Cmp returns -1, 0 or +1.
func (r Rate) Cmp(o Rate) int {
	return r.d().BigInt().Cmp(o.d().BigInt())
}

func (r Rate) Equal(o Rate) bool { return r.Cmp(o) == 0 }
func (r Rate) LTE(o Rate) bool   { return r.Cmp(o) <= 0 }
func (r Rate) GT(o Rate) bool    { return r.Cmp(o) > 0 }
func (r Rate) IsZero() bool      { return r.d().IsZero() }

// Bips returns the rate in basis points, floored.
func (r Rate) Bips() (uint64, error) {
	return utils.ToUint64(r.d().MulInt64(10_000).TruncateInt())
}

// Percent returns the rate in whole percent, floored.
func (r Rate) Percent() (uint64, error) {
	return utils.ToUint64(r.d().MulInt64(100).TruncateInt())
}

// Scaled returns the WAD-scaled integer behind r.
func (r Rate) Scaled() *big.Int {
	return r.d().BigInt()
}

// Dec returns r as an SDK decimal.
func (r Rate) Dec() sdkmath.LegacyDec {
	return r.d().Clone()
}

func (r Rate) String() string {
	return r.d().String()
}

func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

func (r *Rate) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("rate must be a JSON string, got %s", data)
	}
	d, err := sdkmath.LegacyNewDecFromStr(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	parsed, err := FromDec(d)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Max returns the largest of rates, or Zero when rates is empty.
func Max(rates ...Rate) Rate {
	out := Zero()
	for _, r := range rates {
		if r.GT(out) {
			out = r
		}
	}
	return out
}
