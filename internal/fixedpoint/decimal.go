// Package fixedpoint reproduces the ledger's 18-decimal fixed-point numbers.
// Magnitudes are unsigned 256-bit integers scaled by 1e18; signs travel
// separately, never as two's complement.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional digits carried by every magnitude.
const Decimals = 18

// ErrArithmetic is returned for overflow, underflow and division by zero.
// The ledger aborts in the same situations.
var ErrArithmetic = errors.New("fixed-point arithmetic error")

var (
	scale   = uint256.NewInt(1_000_000_000_000_000_000)
	maxU128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
)

// Decimal is a non-negative magnitude scaled by 1e18. The zero value is 0.
type Decimal struct {
	v uint256.Int
}

// Zero returns the zero Decimal.
func Zero() Decimal { return Decimal{} }

// One returns 1.0 (raw 1e18).
func One() Decimal { return Decimal{v: *scale} }

// FromRaw wraps an already-scaled integer. The argument is copied.
func FromRaw(v *uint256.Int) Decimal {
	var d Decimal
	if v != nil {
		d.v.Set(v)
	}
	return d
}

// FromRawUint64 wraps a small already-scaled integer.
func FromRawUint64(n uint64) Decimal {
	var d Decimal
	d.v.SetUint64(n)
	return d
}

// FromUnits scales a whole number of units by 1e18.
func FromUnits(n uint64) Decimal {
	var d Decimal
	d.v.Mul(uint256.NewInt(n), scale)
	return d
}

// Parse reads a raw (already scaled) base-10 integer such as the strings the
// ledger returns in JSON payloads.
func Parse(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, fmt.Errorf("%w: empty integer", ErrArithmetic)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("%w: parse %q: %v", ErrArithmetic, s, err)
	}
	return Decimal{v: *v}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromBig converts a non-negative big.Int that fits in 256 bits.
func FromBig(b *big.Int) (Decimal, error) {
	if b.Sign() < 0 {
		return Decimal{}, fmt.Errorf("%w: negative magnitude %s", ErrArithmetic, b)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Decimal{}, fmt.Errorf("%w: %s exceeds 256 bits", ErrArithmetic, b)
	}
	return Decimal{v: *v}, nil
}

// Raw returns a copy of the scaled integer.
func (d Decimal) Raw() *uint256.Int { return new(uint256.Int).Set(&d.v) }

// Big returns the scaled integer as a big.Int.
func (d Decimal) Big() *big.Int { return d.v.ToBig() }

func (d Decimal) IsZero() bool { return d.v.IsZero() }

// FitsRate reports whether d fits the 128-bit wire width of a rate.
func (d Decimal) FitsRate() bool { return d.v.Cmp(maxU128) <= 0 }

func (d Decimal) Cmp(o Decimal) int { return d.v.Cmp(&o.v) }

func (d Decimal) Equal(o Decimal) bool { return d.v.Eq(&o.v) }

func (d Decimal) Add(o Decimal) (Decimal, error) {
	var r Decimal
	if _, overflow := r.v.AddOverflow(&d.v, &o.v); overflow {
		return Decimal{}, fmt.Errorf("%w: add overflow", ErrArithmetic)
	}
	return r, nil
}

func (d Decimal) Sub(o Decimal) (Decimal, error) {
	var r Decimal
	if _, underflow := r.v.SubOverflow(&d.v, &o.v); underflow {
		return Decimal{}, fmt.Errorf("%w: sub underflow", ErrArithmetic)
	}
	return r, nil
}

// Mul returns floor(d*o / 1e18).
func (d Decimal) Mul(o Decimal) (Decimal, error) {
	var r Decimal
	if _, overflow := r.v.MulDivOverflow(&d.v, &o.v, scale); overflow {
		return Decimal{}, fmt.Errorf("%w: mul overflow", ErrArithmetic)
	}
	return r, nil
}

// Div returns floor(d*1e18 / o).
func (d Decimal) Div(o Decimal) (Decimal, error) {
	if o.v.IsZero() {
		return Decimal{}, fmt.Errorf("%w: division by zero", ErrArithmetic)
	}
	var r Decimal
	if _, overflow := r.v.MulDivOverflow(&d.v, scale, &o.v); overflow {
		return Decimal{}, fmt.Errorf("%w: div overflow", ErrArithmetic)
	}
	return r, nil
}

// Text returns the raw scaled integer in base 10.
func (d Decimal) Text() string { return d.v.Dec() }

// String returns the display value raw/1e18 with trailing zeros trimmed,
// e.g. "123.456789" or "950000".
func (d Decimal) String() string {
	var whole, frac uint256.Int
	whole.DivMod(&d.v, scale, &frac)
	if frac.IsZero() {
		return whole.Dec()
	}
	f := frac.Dec()
	f = strings.Repeat("0", Decimals-len(f)) + f
	return whole.Dec() + "." + strings.TrimRight(f, "0")
}

// Float64 returns the display value as the nearest float64.
func (d Decimal) Float64() float64 {
	f, _ := strconv.ParseFloat(d.String(), 64)
	return f
}

// Units returns the display value rounded half up to a whole number, as the
// ledger reports token amounts that were carried at 18 decimals.
func (d Decimal) Units() *big.Int {
	var whole, frac uint256.Int
	whole.DivMod(&d.v, scale, &frac)
	half := new(uint256.Int).Rsh(scale, 1)
	if frac.Cmp(half) >= 0 {
		whole.AddUint64(&whole, 1)
	}
	return whole.ToBig()
}

// MarshalText emits the raw scaled integer so JSON round trips are exact.
func (d Decimal) MarshalText() ([]byte, error) { return []byte(d.v.Dec()), nil }

func (d *Decimal) UnmarshalText(text []byte) error {
	p, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = p
	return nil
}
