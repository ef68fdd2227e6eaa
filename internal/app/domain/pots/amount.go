package pots

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Checked arithmetic over token amounts. Amounts are never negative; every
// helper reports overflow, underflow and division by zero as errors.

// ParseAmount parses a base-10 non-negative integer amount.
func ParseAmount(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok || v.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("%w: amount %q", ErrInvalidFunds, s)
	}
	return v, nil
}

// OrZero normalises an unset amount to zero.
func OrZero(v sdkmath.Int) sdkmath.Int {
	if v.IsNil() {
		return sdkmath.ZeroInt()
	}
	return v
}

// Add returns a+b.
func Add(a, b sdkmath.Int) (sdkmath.Int, error) {
	res, err := OrZero(a).SafeAdd(OrZero(b))
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %s + %s", ErrOverflow, a, b)
	}
	return res, nil
}

// Sub returns a-b, failing when b exceeds a.
func Sub(a, b sdkmath.Int) (sdkmath.Int, error) {
	a, b = OrZero(a), OrZero(b)
	if a.LT(b) {
		return sdkmath.Int{}, &InsufficientFundsError{Available: a, Requested: b}
	}
	return a.Sub(b), nil
}

// Mul returns a*b.
func Mul(a, b sdkmath.Int) (sdkmath.Int, error) {
	res, err := OrZero(a).SafeMul(OrZero(b))
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %s * %s", ErrOverflow, a, b)
	}
	return res, nil
}

// Quo returns floor(a/b).
func Quo(a, b sdkmath.Int) (sdkmath.Int, error) {
	b = OrZero(b)
	if b.IsZero() {
		return sdkmath.Int{}, fmt.Errorf("%w: %s / 0", ErrDivideByZero, a)
	}
	return OrZero(a).Quo(b), nil
}

// MulDiv returns floor(a*num/den), the proportional split used by settlement.
func MulDiv(a, num, den sdkmath.Int) (sdkmath.Int, error) {
	prod, err := Mul(a, num)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return Quo(prod, den)
}

// Percent returns floor(a*pct/100).
func Percent(a sdkmath.Int, pct uint64) (sdkmath.Int, error) {
	return MulDiv(a, sdkmath.NewIntFromUint64(pct), sdkmath.NewInt(100))
}

// MulDec returns floor(a*d) for a non-negative decimal d.
func MulDec(a sdkmath.Int, d sdkmath.LegacyDec) (sdkmath.Int, error) {
	if d.IsNil() || d.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("%w: negative multiplier %s", ErrInvalidInput, d)
	}
	a = OrZero(a)
	if a.BigInt().BitLen() > maxDecOperandBits {
		return sdkmath.Int{}, fmt.Errorf("%w: %s * %s", ErrOverflow, a, d)
	}
	return sdkmath.LegacyNewDecFromInt(a).Mul(d).TruncateInt(), nil
}

// Sum adds every amount in vs.
func Sum(vs ...sdkmath.Int) (sdkmath.Int, error) {
	total := sdkmath.ZeroInt()
	for _, v := range vs {
		var err error
		if total, err = Add(total, v); err != nil {
			return sdkmath.Int{}, err
		}
	}
	return total, nil
}

// legacy decimals carry 18 fractional digits inside a 256-bit integer
const maxDecOperandBits = 192
