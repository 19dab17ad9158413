// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
)

// ConfigStore keeps the single global configuration.
type ConfigStore interface {
	// Get returns the current config. Returns ErrNotFound if never configured.
	Get(ctx context.Context) (curve.GlobalConfig, error)

	// Put replaces the config as a whole and returns the stored value with
	// its new Version.
	Put(ctx context.Context, cfg curve.GlobalConfig) (curve.GlobalConfig, error)
}

// UpdateFunc mutates a curve inside CurveStore.Update. Returning an error
// discards every change made by the function. ctx carries the store's
// transaction, if any, so collaborators backed by the same database join it.
type UpdateFunc func(ctx context.Context, c *curve.BondingCurve) error

// CurveStore maps a mint to its bonding curve.
type CurveStore interface {
	// Create stores a new curve. Returns ErrDuplicateKey if the mint exists.
	Create(ctx context.Context, c *curve.BondingCurve) error

	// Get retrieves a curve by mint. Returns ErrNotFound if not exists.
	Get(ctx context.Context, mint solana.PublicKey) (*curve.BondingCurve, error)

	// List returns all curves ordered by creation time.
	List(ctx context.Context) ([]*curve.BondingCurve, error)

	// Update runs fn on the current state of the curve while holding the
	// curve exclusively; the result is written only if fn returns nil.
	// Updates of different mints do not block each other.
	Update(ctx context.Context, mint solana.PublicKey, fn UpdateFunc) error
}

// TradeStore keeps executed trades.
type TradeStore interface {
	// Insert adds a trade. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, t *curve.TradeRecord) error

	// ListByMint returns trades of a mint ordered by sequence, at most limit
	// (0 means all).
	ListByMint(ctx context.Context, mint solana.PublicKey, limit int) ([]*curve.TradeRecord, error)
}
