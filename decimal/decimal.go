// Package decimal implements the engine's fixed-point numeric types: D, an
// unsigned 18-fractional-digit decimal backed by a big integer bounded to
// 192 bits, and R, the same scale bounded to 128 bits and used for rates.
// Arithmetic is always checked: overflow, underflow (negative results on an
// unsigned type), and division by zero all fail with errs.ErrMathOverflow
// rather than wrapping or panicking. There is no native floating point
// anywhere in this package, by design of the engine it backs.
package decimal

import (
	"fmt"
	"math/big"

	"github.com/solendgo/lending-engine/errs"
)

// Wad is the fixed-point scale shared by D and R: 10^18.
var Wad = big.NewInt(1_000_000_000_000_000_000)

const (
	dBits = 192
	rBits = 128
)

// D is an unsigned wad-scaled decimal, conceptually bounded to 192 bits.
type D struct{ v *big.Int }

// R is an unsigned wad-scaled rate, conceptually bounded to 128 bits.
type R struct{ v *big.Int }

func newD(v *big.Int) (D, error) {
	if err := checkBounds(v, dBits); err != nil {
		return D{}, err
	}
	return D{v: v}, nil
}

func newR(v *big.Int) (R, error) {
	if err := checkBounds(v, rBits); err != nil {
		return R{}, err
	}
	return R{v: v}, nil
}

func checkBounds(v *big.Int, bits int) error {
	if v.Sign() < 0 {
		return fmt.Errorf("%w: negative result", errs.ErrMathOverflow)
	}
	if v.BitLen() > bits {
		return fmt.Errorf("%w: exceeds %d bits", errs.ErrMathOverflow, bits)
	}
	return nil
}

// ZeroD is the additive identity.
func ZeroD() D { return D{v: big.NewInt(0)} }

// OneD is 1.0 in wad scale.
func OneD() D { return D{v: new(big.Int).Set(Wad)} }

// ZeroR is the additive identity for R.
func ZeroR() R { return R{v: big.NewInt(0)} }

// OneR is 1.0 in wad scale, as an R.
func OneR() R { return R{v: new(big.Int).Set(Wad)} }

// FromU64 builds a whole-number D, i.e. n scaled by Wad.
func FromU64(n uint64) D {
	v := new(big.Int).SetUint64(n)
	return D{v: v.Mul(v, Wad)}
}

// FromRawU64 builds a D directly from an already wad-scaled raw value,
// matching from_scaled_val in spec §4.1.
func FromRawU64(raw uint64) D {
	return D{v: new(big.Int).SetUint64(raw)}
}

// FromRawBigInt builds a D directly from an already wad-scaled big.Int.
func FromRawBigInt(raw *big.Int) (D, error) {
	return newD(new(big.Int).Set(raw))
}

// FromPercent builds a D equal to pct/100.
func FromPercent(pct uint8) D {
	v := new(big.Int).SetUint64(uint64(pct))
	v.Mul(v, Wad)
	return D{v: v.Div(v, big.NewInt(100))}
}

// FromPercentU64 builds a D equal to pct/100 where pct may exceed 100 (used
// for rates like super_max_borrow_rate that are allowed past 100%).
func FromPercentU64(pct uint64) D {
	v := new(big.Int).SetUint64(pct)
	v.Mul(v, Wad)
	return D{v: v.Div(v, big.NewInt(100))}
}

// FromBps builds a D equal to bps/10_000.
func FromBps(bps uint64) D {
	v := new(big.Int).SetUint64(bps)
	v.Mul(v, Wad)
	return D{v: v.Div(v, big.NewInt(10_000))}
}

// FromDecaBps builds a D equal to decaBps/1_000 (deca-basis-points, i.e.
// units of ten basis points), used for protocol_liquidation_fee.
func FromDecaBps(decaBps uint8) D {
	v := new(big.Int).SetUint64(uint64(decaBps))
	v.Mul(v, Wad)
	return D{v: v.Div(v, big.NewInt(1_000))}
}

// Raw exposes the underlying wad-scaled integer for logging/persistence.
func (d D) Raw() *big.Int { return new(big.Int).Set(d.v) }

func (r R) Raw() *big.Int { return new(big.Int).Set(r.v) }

// IsZero reports whether d is exactly zero.
func (d D) IsZero() bool { return d.v.Sign() == 0 }

func (r R) IsZero() bool { return r.v.Sign() == 0 }

// Cmp compares d and o: -1, 0, or 1.
func (d D) Cmp(o D) int { return d.v.Cmp(o.v) }

func (r R) Cmp(o R) int { return r.v.Cmp(o.v) }

// Min returns the lesser of d and o.
func (d D) Min(o D) D {
	if d.v.Cmp(o.v) <= 0 {
		return d
	}
	return o
}

// Max returns the greater of d and o.
func (d D) Max(o D) D {
	if d.v.Cmp(o.v) >= 0 {
		return d
	}
	return o
}

// TryAdd returns d+o, failing on overflow.
func (d D) TryAdd(o D) (D, error) {
	return newD(new(big.Int).Add(d.v, o.v))
}

// TrySub returns d-o, failing if the result would be negative (D is
// unsigned) or otherwise out of range.
func (d D) TrySub(o D) (D, error) {
	return newD(new(big.Int).Sub(d.v, o.v))
}

// TryMul returns the wad-scaled product d*o.
func (d D) TryMul(o D) (D, error) {
	p := new(big.Int).Mul(d.v, o.v)
	p.Div(p, Wad)
	return newD(p)
}

// TryDiv returns the wad-scaled quotient d/o, failing on division by zero.
func (d D) TryDiv(o D) (D, error) {
	if o.v.Sign() == 0 {
		return D{}, fmt.Errorf("%w: division by zero", errs.ErrMathOverflow)
	}
	p := new(big.Int).Mul(d.v, Wad)
	p.Div(p, o.v)
	return newD(p)
}

// TryMulInt returns d scaled by the plain (non-wad) integer n.
func (d D) TryMulInt(n uint64) (D, error) {
	return newD(new(big.Int).Mul(d.v, new(big.Int).SetUint64(n)))
}

// TryDivInt returns d divided by the plain (non-wad) integer n.
func (d D) TryDivInt(n uint64) (D, error) {
	if n == 0 {
		return D{}, fmt.Errorf("%w: division by zero", errs.ErrMathOverflow)
	}
	return newD(new(big.Int).Div(d.v, new(big.Int).SetUint64(n)))
}

// FloorU64 truncates d to a uint64, failing if it does not fit.
func (d D) FloorU64() (uint64, error) {
	q := new(big.Int).Div(d.v, Wad)
	return bigToU64(q)
}

// CeilU64 rounds d up to a uint64.
func (d D) CeilU64() (uint64, error) {
	q, r := new(big.Int).QuoRem(d.v, Wad, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return bigToU64(q)
}

// RoundU64 rounds d half-up to a uint64.
func (d D) RoundU64() (uint64, error) {
	half := new(big.Int).Div(Wad, big.NewInt(2))
	q := new(big.Int).Add(d.v, half)
	q.Div(q, Wad)
	return bigToU64(q)
}

func bigToU64(v *big.Int) (uint64, error) {
	if v.Sign() < 0 || v.BitLen() > 64 {
		return 0, fmt.Errorf("%w: does not fit in u64", errs.ErrMathOverflow)
	}
	return v.Uint64(), nil
}

// ToRate converts d to an R, failing if the value exceeds R's 128-bit range.
func (d D) ToRate() (R, error) {
	return newR(new(big.Int).Set(d.v))
}

// ToDecimal converts r to a D.
func (r R) ToDecimal() (D, error) {
	return newD(new(big.Int).Set(r.v))
}

// TryAdd returns r+o, failing on overflow.
func (r R) TryAdd(o R) (R, error) {
	return newR(new(big.Int).Add(r.v, o.v))
}

// TrySub returns r-o, failing if negative.
func (r R) TrySub(o R) (R, error) {
	return newR(new(big.Int).Sub(r.v, o.v))
}

// TryMul returns the wad-scaled product r*o.
func (r R) TryMul(o R) (R, error) {
	p := new(big.Int).Mul(r.v, o.v)
	p.Div(p, Wad)
	return newR(p)
}

// TryDiv returns the wad-scaled quotient r/o.
func (r R) TryDiv(o R) (R, error) {
	if o.v.Sign() == 0 {
		return R{}, fmt.Errorf("%w: division by zero", errs.ErrMathOverflow)
	}
	p := new(big.Int).Mul(r.v, Wad)
	p.Div(p, o.v)
	return newR(p)
}

// TryPow computes base^n by binary exponentiation, checking bounds at every
// squaring/multiplication step so no intermediate value silently overflows.
func (r R) TryPow(n uint64) (R, error) {
	result := OneR()
	base := r
	for n > 0 {
		if n&1 == 1 {
			var err error
			result, err = result.TryMul(base)
			if err != nil {
				return R{}, err
			}
		}
		n >>= 1
		if n == 0 {
			break
		}
		var err error
		base, err = base.TryMul(base)
		if err != nil {
			return R{}, err
		}
	}
	return result, nil
}

// Min returns the lesser of r and o.
func (r R) Min(o R) R {
	if r.v.Cmp(o.v) <= 0 {
		return r
	}
	return o
}

func (r R) Max(o R) R {
	if r.v.Cmp(o.v) >= 0 {
		return r
	}
	return o
}

// String renders d as a decimal string for logging.
func (d D) String() string {
	return renderWad(d.v)
}

func (r R) String() string {
	return renderWad(r.v)
}

func renderWad(v *big.Int) string {
	q, rem := new(big.Int).QuoRem(v, Wad, new(big.Int))
	if rem.Sign() == 0 {
		return q.String()
	}
	frac := new(big.Int).Abs(rem).String()
	for len(frac) < 18 {
		frac = "0" + frac
	}
	return q.String() + "." + frac
}
