// internal/curve/slippage.go
package curve

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// SlippageType selects how a trader derives MinAmountOut from a quote.
type SlippageType string

const (
	// SlippageFixed uses Value as the exact minimum output.
	SlippageFixed SlippageType = "fixed"
	// SlippagePercent accepts up to Value percent less than the quote.
	SlippagePercent SlippageType = "percent"
	// SlippageNone accepts any output.
	SlippageNone SlippageType = "none"
)

// SlippageConfig is a trader-side tolerance policy.
type SlippageConfig struct {
	Type  SlippageType `json:"type" mapstructure:"type"`
	Value float64      `json:"value" mapstructure:"value"`
}

// fixedLimit is 2^64, the first float64 a uint64 cannot hold.
const fixedLimit = float64(1<<63) * 2

// Validate checks the policy value for its type.
func (c SlippageConfig) Validate() error {
	switch c.Type {
	case SlippageNone, "":
	case SlippageFixed:
		if !(c.Value >= 0 && c.Value < fixedLimit) || c.Value != math.Trunc(c.Value) {
			return fmt.Errorf("fixed slippage must be a whole token amount: %v", c.Value)
		}
	case SlippagePercent:
		if !(c.Value >= 0 && c.Value <= 100) {
			return fmt.Errorf("slippage percent must be in [0, 100]: %v", c.Value)
		}
	default:
		return fmt.Errorf("unknown slippage type %q", c.Type)
	}
	return nil
}

// MinAmountOut derives the slippage guard for a quoted output. Percent
// tolerance rounds down so the quoted trade itself always passes.
func (c SlippageConfig) MinAmountOut(quoted uint64) uint64 {
	switch c.Type {
	case SlippageFixed:
		switch {
		case !(c.Value > 0):
			return 0
		case c.Value >= fixedLimit:
			return math.MaxUint64
		}
		return uint64(c.Value)
	case SlippagePercent:
		keep := decimal.NewFromInt(100).Sub(decimal.NewFromFloat(c.Value))
		return decimal.NewFromUint64(quoted).Mul(keep).Shift(-2).Floor().BigInt().Uint64()
	default:
		return 0
	}
}
