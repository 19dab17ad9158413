// internal/curve/state.go
package curve

import (
	"fmt"
	"math/bits"
	"time"
)

// CheckTradable rejects trades on curves that can no longer accept them.
func (b *BondingCurve) CheckTradable() error {
	if b.IsCompleted {
		return ErrCurveCompleted
	}
	return nil
}

// ApplyTrade returns the state of b after q has been executed. b itself is
// not modified, so a failed transition leaves nothing to undo.
//
// A buy adds the post-fee input to both lamport reserves and removes the
// output from the token reserve. A sell does the reverse; the fee taken in
// tokens never enters the curve. The curve completes on the buy that lifts
// the actual lamport reserves to threshold.
func (b *BondingCurve) ApplyTrade(q Quote, threshold uint64, now time.Time) (BondingCurve, error) {
	next := *b

	if err := b.CheckTradable(); err != nil {
		return next, err
	}

	var err error
	switch q.Direction {
	case Buy:
		if next.VirtualTokenReserves, err = checkedSub("virtual_token_reserves", b.VirtualTokenReserves, q.AmountOut); err != nil {
			return *b, err
		}
		if next.VirtualLamportReserves, err = checkedAdd("virtual_lamport_reserves", b.VirtualLamportReserves, q.AmountInAfterFee); err != nil {
			return *b, err
		}
		if next.ActualLamportReserves, err = checkedAdd("actual_lamport_reserves", b.ActualLamportReserves, q.AmountInAfterFee); err != nil {
			return *b, err
		}
	case Sell:
		if next.VirtualTokenReserves, err = checkedAdd("virtual_token_reserves", b.VirtualTokenReserves, q.AmountInAfterFee); err != nil {
			return *b, err
		}
		if next.VirtualLamportReserves, err = checkedSub("virtual_lamport_reserves", b.VirtualLamportReserves, q.AmountOut); err != nil {
			return *b, err
		}
		if next.ActualLamportReserves, err = checkedSub("actual_lamport_reserves", b.ActualLamportReserves, q.AmountOut); err != nil {
			return *b, err
		}
	default:
		return *b, fmt.Errorf("%w: unknown direction %d", ErrInvariantViolation, q.Direction)
	}

	if next.TradeCount, err = checkedAdd("trade_count", b.TradeCount, 1); err != nil {
		return *b, err
	}

	if q.Direction == Buy && next.ActualLamportReserves >= threshold {
		next.IsCompleted = true
	}
	next.UpdatedAt = now

	return next, nil
}

func checkedAdd(field string, a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, &ArithmeticError{Op: "add", Field: field, A: a, B: b}
	}
	return sum, nil
}

func checkedSub(field string, a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, &ArithmeticError{Op: "sub", Field: field, A: a, B: b}
	}
	return diff, nil
}
