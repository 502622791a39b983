// Package fixedpoint implements the checked 256-bit integer arithmetic the
// lending engine uses for cumulative indexes, USD-scaled values and basis
// point ratios. Every operation that can overflow returns an error instead
// of wrapping, matching the accounting core's "any overflow is fatal"
// requirement; division always truncates toward zero (floor, since all
// operands are unsigned).
package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrOverflow is returned by any operation whose true result does not fit in
// 256 bits.
var ErrOverflow = errors.New("fixedpoint: overflow")

// ErrDivideByZero is returned by division and MulDiv when the divisor is zero.
var ErrDivideByZero = errors.New("fixedpoint: divide by zero")

// U256 is a checked unsigned 256-bit integer. The zero value is zero.
type U256 struct {
	v uint256.Int
}

// FromUint64 builds a U256 from a native uint64.
func FromUint64(v uint64) U256 {
	var out U256
	out.v.SetUint64(v)
	return out
}

// Zero returns the additive identity.
func Zero() U256 { return U256{} }

// IsZero reports whether the value is zero.
func (a U256) IsZero() bool { return a.v.IsZero() }

// Cmp returns -1, 0 or 1 as a is less than, equal to, or greater than b.
func (a U256) Cmp(b U256) int { return a.v.Cmp(&b.v) }

// Uint64 returns the value truncated/validated to fit in a uint64. It errors
// if the value overflows 64 bits, since native token amounts and BPS ratios
// are always expected to fit.
func (a U256) Uint64() (uint64, error) {
	if !a.v.IsUint64() {
		return 0, fmt.Errorf("fixedpoint: value does not fit in uint64: %w", ErrOverflow)
	}
	return a.v.Uint64(), nil
}

// Add returns a+b, erroring on overflow.
func Add(a, b U256) (U256, error) {
	var out U256
	overflow := out.v.AddOverflow(&a.v, &b.v)
	if overflow {
		return U256{}, ErrOverflow
	}
	return out, nil
}

// Sub returns a-b, erroring if b > a (unsigned underflow is treated as
// overflow per the core's "checked operations" rule).
func Sub(a, b U256) (U256, error) {
	if a.Cmp(b) < 0 {
		return U256{}, ErrOverflow
	}
	var out U256
	out.v.Sub(&a.v, &b.v)
	return out, nil
}

// SatSub returns a-b, saturating at zero instead of erroring. Used for the
// handful of places the core spec calls out as explicitly saturating
// (slots/time elapsed, remaining borrow capacity).
func SatSub(a, b U256) U256 {
	if a.Cmp(b) < 0 {
		return Zero()
	}
	var out U256
	out.v.Sub(&a.v, &b.v)
	return out
}

// Mul returns a*b, erroring on overflow.
func Mul(a, b U256) (U256, error) {
	var out U256
	overflow := out.v.MulOverflow(&a.v, &b.v)
	if overflow {
		return U256{}, ErrOverflow
	}
	return out, nil
}

// MulDiv computes floor(a*b/c) using a 512-bit intermediate product so the
// multiply never overflows even when the final result fits back into 256
// bits. This is the workhorse for index and USD-value math throughout the
// engine (amount*index/INDEX_ONE, value*bps/10000, etc).
func MulDiv(a, b, c U256) (U256, error) {
	if c.IsZero() {
		return U256{}, ErrDivideByZero
	}
	// MulDivOverflow computes floor(a*b/c) via a 512-bit intermediate and
	// reports whether the final result overflows 256 bits.
	result, overflow := new(uint256.Int).MulDivOverflow(&a.v, &b.v, &c.v)
	if overflow {
		return U256{}, ErrOverflow
	}
	return U256{v: *result}, nil
}

// Div returns floor(a/b), erroring if b is zero.
func Div(a, b U256) (U256, error) {
	if b.IsZero() {
		return U256{}, ErrDivideByZero
	}
	var out U256
	out.v.Div(&a.v, &b.v)
	return out, nil
}

// Min returns the lesser of a and b.
func Min(a, b U256) U256 {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the greater of a and b.
func Max(a, b U256) U256 {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func (a U256) String() string { return a.v.String() }

// MarshalText and UnmarshalText let U256 round-trip through TOML/YAML/JSON
// config and snapshot files as a decimal string, since the underlying
// uint256.Int does not fit a native numeric type in those encodings.
func (a U256) MarshalText() ([]byte, error) {
	return []byte(a.v.String()), nil
}

func (a *U256) UnmarshalText(text []byte) error {
	return a.v.SetFromDecimal(string(text))
}
