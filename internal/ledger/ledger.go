// internal/ledger/ledger.go
package ledger

import (
	"context"
	"fmt"
	"math/bits"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// Transfers is the pair of movement primitives a swap settles through.
type Transfers interface {
	// TransferLamports moves base currency from payer to destination.
	TransferLamports(ctx context.Context, payer, destination solana.PublicKey, amount uint64) error
	// TransferTokens moves tokens between two holdings of the same mint.
	// authority must own source: either the trader or a curve's custody authority.
	TransferTokens(ctx context.Context, authority, source, destination solana.PublicKey, amount uint64) error
}

// Metadata is the display information registered for a mint at launch.
type Metadata struct {
	Name            string
	Symbol          string
	URI             string
	UpdateAuthority solana.PublicKey
}

// Issuance records where the supply of a mint went.
type Issuance struct {
	Destination solana.PublicKey
	Supply      uint64
}

type mintInfo struct {
	issuance *Issuance
	metadata *Metadata
}

// Ledger is an in-memory account book of lamport balances and token
// holdings. Every balance change goes through an all-or-nothing batch.
type Ledger struct {
	mu       sync.RWMutex
	lamports map[solana.PublicKey]uint64
	holdings map[solana.PublicKey]*Holding
	mints    map[solana.PublicKey]*mintInfo
	logger   *zap.Logger
}

// New creates an empty ledger.
func New(logger *zap.Logger) *Ledger {
	return &Ledger{
		lamports: make(map[solana.PublicKey]uint64),
		holdings: make(map[solana.PublicKey]*Holding),
		mints:    make(map[solana.PublicKey]*mintInfo),
		logger:   logger.Named("ledger"),
	}
}

// HoldingAddress returns the associated token holding of owner for mint.
func HoldingAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive holding for %s: %w", owner, err)
	}
	return addr, nil
}

// OpenHolding returns the holding of owner for mint, creating it if needed.
func (l *Ledger) OpenHolding(_ context.Context, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, err := HoldingAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.holdings[addr]; !ok {
		l.holdings[addr] = &Holding{Owner: owner, Mint: mint}
		l.logger.Debug("Holding opened",
			zap.String("owner", owner.String()),
			zap.String("mint", mint.String()),
			zap.String("holding", addr.String()))
	}
	return addr, nil
}

func (l *Ledger) mint(mint solana.PublicKey) *mintInfo {
	info, ok := l.mints[mint]
	if !ok {
		info = &mintInfo{}
		l.mints[mint] = info
	}
	return info
}

// Issue mints amount tokens into destination. A mint can be issued only
// once; the mint authority is considered revoked afterwards.
func (l *Ledger) Issue(_ context.Context, mint, destination solana.PublicKey, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if info, ok := l.mints[mint]; ok && info.issuance != nil {
		return fmt.Errorf("issue %s: %w", mint, ErrMintAlreadyIssued)
	}
	h, ok := l.holdings[destination]
	if !ok {
		return fmt.Errorf("issue %s into %s: %w", mint, destination, ErrUnknownHolding)
	}
	if !h.Mint.Equals(mint) {
		return fmt.Errorf("issue %s into %s: %w", mint, destination, ErrMintMismatch)
	}

	h.Amount = amount
	l.mint(mint).issuance = &Issuance{Destination: destination, Supply: amount}

	l.logger.Info("Supply issued",
		zap.String("mint", mint.String()),
		zap.String("holding", destination.String()),
		zap.Uint64("amount", amount))
	return nil
}

// Issuance reports whether mint was issued and where.
func (l *Ledger) Issuance(_ context.Context, mint solana.PublicKey) (Issuance, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	info, ok := l.mints[mint]
	if !ok || info.issuance == nil {
		return Issuance{}, false, nil
	}
	return *info.issuance, true, nil
}

// RegisterMetadata attaches display metadata to a mint. Registering the
// same metadata again is a no-op.
func (l *Ledger) RegisterMetadata(_ context.Context, mint solana.PublicKey, md Metadata) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info := l.mint(mint)
	if info.metadata != nil {
		if *info.metadata == md {
			return nil
		}
		return fmt.Errorf("register metadata for %s: %w", mint, ErrMetadataExists)
	}
	mdCopy := md
	info.metadata = &mdCopy
	return nil
}

// MetadataOf returns the registered metadata of mint.
func (l *Ledger) MetadataOf(mint solana.PublicKey) (Metadata, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	info, ok := l.mints[mint]
	if !ok || info.metadata == nil {
		return Metadata{}, false
	}
	return *info.metadata, true
}

// Airdrop credits lamports out of thin air. Used to fund traders.
func (l *Ledger) Airdrop(_ context.Context, account solana.PublicKey, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sum, carry := bits.Add64(l.lamports[account], amount, 0)
	if carry != 0 {
		return fmt.Errorf("airdrop to %s: %w", account, ErrBalanceOverflow)
	}
	l.lamports[account] = sum
	return nil
}

// LamportBalance returns the lamports held by account.
func (l *Ledger) LamportBalance(_ context.Context, account solana.PublicKey) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lamports[account], nil
}

// TokenBalance returns the amount in a holding.
func (l *Ledger) TokenBalance(_ context.Context, holdingAddr solana.PublicKey) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if h, ok := l.holdings[holdingAddr]; ok {
		return h.Amount, nil
	}
	return 0, nil
}

// TokenBalanceOf returns the amount owner holds of mint.
func (l *Ledger) TokenBalanceOf(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	addr, err := HoldingAddress(owner, mint)
	if err != nil {
		return 0, err
	}
	return l.TokenBalance(ctx, addr)
}

// Totals returns the sum of all lamport balances and the circulating amount
// of mint across holdings.
func (l *Ledger) Totals(mint solana.PublicKey) (lamports, tokens uint64, err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var carry uint64
	for _, v := range l.lamports {
		if lamports, carry = bits.Add64(lamports, v, 0); carry != 0 {
			return 0, 0, fmt.Errorf("sum lamports: %w", ErrBalanceOverflow)
		}
	}
	for _, h := range l.holdings {
		if !h.Mint.Equals(mint) {
			continue
		}
		if tokens, carry = bits.Add64(tokens, h.Amount, 0); carry != 0 {
			return 0, 0, fmt.Errorf("sum %s holdings: %w", mint, ErrBalanceOverflow)
		}
	}
	return lamports, tokens, nil
}

// TransferLamports performs a single lamport transfer.
func (l *Ledger) TransferLamports(ctx context.Context, payer, destination solana.PublicKey, amount uint64) error {
	return l.Atomically(ctx, func(t Transfers) error {
		return t.TransferLamports(ctx, payer, destination, amount)
	})
}

// TransferTokens performs a single token transfer.
func (l *Ledger) TransferTokens(ctx context.Context, authority, source, destination solana.PublicKey, amount uint64) error {
	return l.Atomically(ctx, func(t Transfers) error {
		return t.TransferTokens(ctx, authority, source, destination, amount)
	})
}

// Atomically stages the transfers made by fn and applies them as one unit.
// If fn returns an error, or any staged transfer cannot be applied, no
// balance changes.
func (l *Ledger) Atomically(ctx context.Context, fn func(Transfers) error) error {
	b := l.Begin()
	if err := fn(b); err != nil {
		b.Rollback()
		return err
	}
	return b.Commit(ctx)
}

// Begin opens a settlement batch.
func (l *Ledger) Begin() *Batch {
	return NewBatch(l)
}

// Settle implements Settler.
func (l *Ledger) Settle(ctx context.Context, transfers []Transfer, apply bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if apply {
		l.mu.Lock()
		defer l.mu.Unlock()
	} else {
		l.mu.RLock()
		defer l.mu.RUnlock()
	}

	ch, err := Plan(memoryBook{l}, transfers)
	if err != nil {
		l.logger.Debug("Settlement rejected", zap.Bool("apply", apply), zap.Error(err))
		return err
	}
	if !apply {
		return nil
	}

	for k, v := range ch.Lamports {
		l.lamports[k] = v
	}
	for k, v := range ch.Tokens {
		l.holdings[k].Amount = v
	}
	return nil
}

// memoryBook reads balances; the caller holds the ledger lock.
type memoryBook struct{ l *Ledger }

func (b memoryBook) Lamports(account solana.PublicKey) uint64 { return b.l.lamports[account] }

func (b memoryBook) Holding(addr solana.PublicKey) (Holding, bool) {
	h, ok := b.l.holdings[addr]
	if !ok {
		return Holding{}, false
	}
	return *h, true
}

var (
	_ Transfers = (*Ledger)(nil)
	_ Settler   = (*Ledger)(nil)
)
