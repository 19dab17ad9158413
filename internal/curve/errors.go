// internal/curve/errors.go
package curve

import (
	"errors"
	"fmt"
)

var (
	ErrCurveCompleted        = errors.New("curve already completed")
	ErrZeroAmount            = errors.New("amount in must be positive")
	ErrZeroOutput            = errors.New("trade yields zero output")
	ErrEmptyReserves         = errors.New("curve has empty reserves")
	ErrInvalidFee            = errors.New("fee percent must be in [0, 100)")
	ErrFeeExceedsAmount      = errors.New("fee exceeds amount in")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrIncorrectFeeRecipient = errors.New("incorrect fee recipient")

	// ErrInvariantViolation marks reserve corruption. It is never expected
	// from a correctly configured curve and is not retried.
	ErrInvariantViolation = errors.New("reserve invariant violation")
)

// ErrInvalidConfig is returned by GlobalConfig.Validate.
var ErrInvalidConfig = errors.New("invalid global config")

func invalidConfig(detail string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, detail)
}

// SlippageExceededError is returned when the quoted output is below the
// caller's minimum.
type SlippageExceededError struct {
	AmountOut    uint64
	MinAmountOut uint64
}

func (e *SlippageExceededError) Error() string {
	return fmt.Sprintf("slippage exceeded: amount out %d is below minimum %d", e.AmountOut, e.MinAmountOut)
}

func (e *SlippageExceededError) Is(target error) bool {
	return target == ErrSlippageExceeded
}

// ArithmeticError reports a checked add/sub failure on a reserve field.
type ArithmeticError struct {
	Op    string
	Field string
	A, B  uint64
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("checked %s failed on %s (%d, %d)", e.Op, e.Field, e.A, e.B)
}

func (e *ArithmeticError) Unwrap() error { return ErrInvariantViolation }
