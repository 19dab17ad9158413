// internal/curve/types.go
package curve

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Direction is the side of a swap from the trader's point of view.
type Direction uint8

const (
	// Buy spends lamports and receives tokens.
	Buy Direction = iota
	// Sell spends tokens and receives lamports.
	Sell
)

// DirectionOf maps the wire-level is_buy flag to a Direction.
func DirectionOf(isBuy bool) Direction {
	if isBuy {
		return Buy
	}
	return Sell
}

// IsBuy reports whether d is a buy.
func (d Direction) IsBuy() bool { return d == Buy }

func (d Direction) String() string {
	if d == Buy {
		return "buy"
	}
	return "sell"
}

// GlobalConfig holds the parameters shared by every curve. A value of this
// type is always read and replaced as a whole.
type GlobalConfig struct {
	FeeRecipient solana.PublicKey `json:"fee_recipient"`

	// CompletionThreshold is the amount of actual lamports that completes a curve.
	CompletionThreshold uint64 `json:"completion_threshold"`
	// TotalTokenSupply is minted into the curve custody at launch.
	TotalTokenSupply uint64 `json:"total_token_supply"`
	// InitialVirtualLamportReserves seeds the lamport side of every new curve.
	InitialVirtualLamportReserves uint64 `json:"initial_virtual_lamport_reserves"`

	BuyFeePercent  float64 `json:"buy_fee_percent"`
	SellFeePercent float64 `json:"sell_fee_percent"`

	// Version is assigned by the config store on every replacement.
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FeePercent returns the fee rate applied to trades in direction d.
func (c GlobalConfig) FeePercent(d Direction) float64 {
	if d == Buy {
		return c.BuyFeePercent
	}
	return c.SellFeePercent
}

// Validate checks the ranges the pricing engine relies on.
func (c GlobalConfig) Validate() error {
	if c.FeeRecipient.IsZero() {
		return invalidConfig("fee_recipient is empty")
	}
	if c.CompletionThreshold == 0 {
		return invalidConfig("completion_threshold must be positive")
	}
	if c.TotalTokenSupply == 0 {
		return invalidConfig("total_token_supply must be positive")
	}
	if c.InitialVirtualLamportReserves == 0 {
		return invalidConfig("initial_virtual_lamport_reserves must be positive")
	}
	if err := validateFeePercent(c.BuyFeePercent); err != nil {
		return invalidConfig("buy_fee_percent: " + err.Error())
	}
	if err := validateFeePercent(c.SellFeePercent); err != nil {
		return invalidConfig("sell_fee_percent: " + err.Error())
	}
	return nil
}

// Reserves is the pricing view of a curve.
type Reserves struct {
	Token   uint64
	Lamport uint64
}

// BondingCurve is the per-asset state of a launch.
type BondingCurve struct {
	Mint solana.PublicKey `json:"mint"`

	// Authority is the only identity allowed to move curve-custodied funds.
	// It is derived once at launch and never recomputed.
	Authority      solana.PublicKey `json:"authority"`
	AuthorityBump  uint8            `json:"authority_bump"`
	CustodyHolding solana.PublicKey `json:"custody_holding"`

	VirtualTokenReserves   uint64 `json:"virtual_token_reserves"`
	VirtualLamportReserves uint64 `json:"virtual_lamport_reserves"`
	ActualLamportReserves  uint64 `json:"actual_lamport_reserves"`
	TokenTotalSupply       uint64 `json:"token_total_supply"`

	IsCompleted bool   `json:"is_completed"`
	TradeCount  uint64 `json:"trade_count"`

	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	URI    string `json:"uri"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reserves returns the virtual reserves used for pricing.
func (b *BondingCurve) Reserves() Reserves {
	return Reserves{Token: b.VirtualTokenReserves, Lamport: b.VirtualLamportReserves}
}

// Progress returns the share of the completion threshold collected so far, in [0,1].
func (b *BondingCurve) Progress(threshold uint64) float64 {
	if b.IsCompleted || threshold == 0 {
		return 1
	}
	p := float64(b.ActualLamportReserves) / float64(threshold)
	if p > 1 {
		return 1
	}
	return p
}

// TradeRecord describes one executed swap.
type TradeRecord struct {
	ID        string           `json:"id"`
	Trader    solana.PublicKey `json:"trader"`
	Mint      solana.PublicKey `json:"mint"`
	IsBuy     bool             `json:"is_buy"`
	AmountIn  uint64           `json:"amount_in"`
	AmountOut uint64           `json:"amount_out"`
	Fee       uint64           `json:"fee"`
	Sequence  uint64           `json:"sequence"`

	VirtualTokenReserves   uint64 `json:"virtual_token_reserves"`
	VirtualLamportReserves uint64 `json:"virtual_lamport_reserves"`
	ActualLamportReserves  uint64 `json:"actual_lamport_reserves"`
	CompletedCurve         bool   `json:"completed_curve"`

	ExecutedAt time.Time `json:"executed_at"`
}
