// internal/curve/pricing.go
package curve

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
	"lukechampine.com/uint128"
)

// Quote is the result of pricing a single trade.
type Quote struct {
	Direction        Direction
	AmountIn         uint64
	Fee              uint64
	AmountInAfterFee uint64
	AmountOut        uint64
}

// Price computes the output of a constant-product trade against r.
//
// The fee is taken from the input: fee = floor(amountIn * feePercent / 100).
// The remaining input moves the curve along x*y = k and the output is the
// reserve released by that move, truncated toward the curve:
//
//	buy:  out = x - ceil(k / (y + in))
//	sell: out = y - ceil(k / (x + in))
//
// All curve math runs on 128-bit integers; no floating point touches values.
func Price(r Reserves, amountIn uint64, d Direction, feePercent float64) (Quote, error) {
	q := Quote{Direction: d, AmountIn: amountIn}

	if r.Token == 0 || r.Lamport == 0 {
		return q, ErrEmptyReserves
	}

	fee, err := FeeAmount(amountIn, feePercent)
	if err != nil {
		return q, err
	}
	if fee > amountIn {
		return q, ErrFeeExceedsAmount
	}
	q.Fee = fee
	q.AmountInAfterFee = amountIn - fee

	if q.AmountInAfterFee == 0 {
		return q, nil
	}

	var in, out uint64
	if d == Buy {
		in, out = r.Lamport, r.Token
	} else {
		in, out = r.Token, r.Lamport
	}

	remaining, err := remainingReserve(in, out, q.AmountInAfterFee)
	if err != nil {
		return q, err
	}
	if remaining > out {
		return q, fmt.Errorf("%w: remaining reserve %d exceeds reserve %d", ErrInvariantViolation, remaining, out)
	}
	q.AmountOut = out - remaining

	return q, nil
}

// remainingReserve returns ceil(in*out / (in+delta)), the output reserve left
// after delta is added to the input reserve.
func remainingReserve(in, out, delta uint64) (uint64, error) {
	k := uint128.From64(in).Mul64(out)
	denominator := uint128.From64(in).Add64(delta)

	quo, rem := k.QuoRem(denominator)
	if !rem.IsZero() {
		quo = quo.Add64(1)
	}
	if quo.Hi != 0 {
		return 0, &ArithmeticError{Op: "div", Field: "remaining_reserve", A: in, B: out}
	}
	return quo.Lo, nil
}

// FeeAmount returns floor(amount * percent / 100). The percent is converted
// to its shortest decimal form so the product is exact.
func FeeAmount(amount uint64, percent float64) (uint64, error) {
	if err := validateFeePercent(percent); err != nil {
		return 0, err
	}
	if amount == 0 || percent == 0 {
		return 0, nil
	}

	fee := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0).
		Mul(decimal.NewFromFloat(percent)).
		Shift(-2).
		Floor().
		BigInt()
	if !fee.IsUint64() {
		return 0, ErrFeeExceedsAmount
	}
	return fee.Uint64(), nil
}

func validateFeePercent(percent float64) error {
	if math.IsNaN(percent) || math.IsInf(percent, 0) || percent < 0 || percent >= 100 {
		return ErrInvalidFee
	}
	return nil
}
