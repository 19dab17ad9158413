// internal/ledger/batch.go
package ledger

import (
	"bytes"
	"context"
	"math/bits"
	"slices"

	"github.com/gagliardetto/solana-go"
)

// Kind tells lamport and token transfers apart.
type Kind uint8

const (
	LamportTransfer Kind = iota
	TokenTransfer
)

func (k Kind) String() string {
	if k == LamportTransfer {
		return "lamport"
	}
	return "token"
}

// Transfer is one staged balance movement. For lamport transfers the
// authority is the payer.
type Transfer struct {
	Kind        Kind
	Authority   solana.PublicKey
	Source      solana.PublicKey
	Destination solana.PublicKey
	Amount      uint64
}

func (t Transfer) fail(err error) error {
	return &TransferError{
		Kind:        t.Kind.String(),
		Authority:   t.Authority,
		Source:      t.Source,
		Destination: t.Destination,
		Amount:      t.Amount,
		Err:         err,
	}
}

// Holding is a token account of one owner for one mint.
type Holding struct {
	Owner  solana.PublicKey
	Mint   solana.PublicKey
	Amount uint64
}

// Book is the balance view transfers are checked against.
type Book interface {
	Lamports(account solana.PublicKey) uint64
	Holding(addr solana.PublicKey) (Holding, bool)
}

// Changes holds the balances a settlement leaves behind, keyed by lamport
// account and by holding address.
type Changes struct {
	Lamports map[solana.PublicKey]uint64
	Tokens   map[solana.PublicKey]uint64
}

// Plan checks transfers in order against book, each one seeing the
// balances left by the previous ones, and returns the final balances of
// every touched account. Nothing is written.
func Plan(book Book, transfers []Transfer) (Changes, error) {
	ch := Changes{
		Lamports: make(map[solana.PublicKey]uint64),
		Tokens:   make(map[solana.PublicKey]uint64),
	}
	lamportsOf := func(k solana.PublicKey) uint64 {
		if v, ok := ch.Lamports[k]; ok {
			return v
		}
		return book.Lamports(k)
	}
	tokensOf := func(k solana.PublicKey, h Holding) uint64 {
		if v, ok := ch.Tokens[k]; ok {
			return v
		}
		return h.Amount
	}

	for _, t := range transfers {
		switch t.Kind {
		case LamportTransfer:
			from := lamportsOf(t.Source)
			if from < t.Amount {
				return Changes{}, t.fail(ErrInsufficientFunds)
			}
			ch.Lamports[t.Source] = from - t.Amount
			to, carry := bits.Add64(lamportsOf(t.Destination), t.Amount, 0)
			if carry != 0 {
				return Changes{}, t.fail(ErrBalanceOverflow)
			}
			ch.Lamports[t.Destination] = to

		case TokenTransfer:
			src, ok := book.Holding(t.Source)
			if !ok {
				return Changes{}, t.fail(ErrUnknownHolding)
			}
			dst, ok := book.Holding(t.Destination)
			if !ok {
				return Changes{}, t.fail(ErrUnknownHolding)
			}
			if !src.Owner.Equals(t.Authority) {
				return Changes{}, t.fail(ErrUnauthorized)
			}
			if !src.Mint.Equals(dst.Mint) {
				return Changes{}, t.fail(ErrMintMismatch)
			}
			from := tokensOf(t.Source, src)
			if from < t.Amount {
				return Changes{}, t.fail(ErrInsufficientFunds)
			}
			ch.Tokens[t.Source] = from - t.Amount
			to, carry := bits.Add64(tokensOf(t.Destination, dst), t.Amount, 0)
			if carry != 0 {
				return Changes{}, t.fail(ErrBalanceOverflow)
			}
			ch.Tokens[t.Destination] = to

		default:
			return Changes{}, t.fail(ErrInvalidTransferArgs)
		}
	}
	return ch, nil
}

// Touched returns the lamport accounts and token holdings transfers
// reference, each sorted and without duplicates.
func Touched(transfers []Transfer) (accounts, holdings []solana.PublicKey) {
	for _, t := range transfers {
		if t.Kind == LamportTransfer {
			accounts = append(accounts, t.Source, t.Destination)
		} else {
			holdings = append(holdings, t.Source, t.Destination)
		}
	}
	return sortKeys(accounts), sortKeys(holdings)
}

func sortKeys(keys []solana.PublicKey) []solana.PublicKey {
	slices.SortFunc(keys, func(a, b solana.PublicKey) int { return bytes.Compare(a[:], b[:]) })
	return slices.Compact(keys)
}

// Settler checks staged transfers against its balances and, when apply is
// set, writes the result as one unit.
type Settler interface {
	Settle(ctx context.Context, transfers []Transfer, apply bool) error
}

// Batch collects transfers that are applied together on Commit.
type Batch struct {
	settler   Settler
	transfers []Transfer
	closed    bool
}

var _ Transfers = (*Batch)(nil)

// NewBatch opens a batch settled by s.
func NewBatch(s Settler) *Batch {
	return &Batch{settler: s}
}

// TransferLamports stages a lamport transfer.
func (b *Batch) TransferLamports(_ context.Context, payer, destination solana.PublicKey, amount uint64) error {
	return b.stage(Transfer{Kind: LamportTransfer, Authority: payer, Source: payer, Destination: destination, Amount: amount})
}

// TransferTokens stages a token transfer.
func (b *Batch) TransferTokens(_ context.Context, authority, source, destination solana.PublicKey, amount uint64) error {
	return b.stage(Transfer{Kind: TokenTransfer, Authority: authority, Source: source, Destination: destination, Amount: amount})
}

func (b *Batch) stage(t Transfer) error {
	if b.closed {
		return ErrBatchClosed
	}
	if t.Authority.IsZero() || t.Source.IsZero() || t.Destination.IsZero() {
		return t.fail(ErrInvalidTransferArgs)
	}
	b.transfers = append(b.transfers, t)
	return nil
}

// Validate checks the staged transfers against current balances without
// applying them. The batch stays open.
func (b *Batch) Validate(ctx context.Context) error {
	if b.closed {
		return ErrBatchClosed
	}
	return b.settler.Settle(ctx, b.transfers, false)
}

// Rollback discards staged transfers.
func (b *Batch) Rollback() {
	b.transfers = nil
	b.closed = true
}

// Commit applies every staged transfer, or none.
func (b *Batch) Commit(ctx context.Context) error {
	if b.closed {
		return ErrBatchClosed
	}
	b.closed = true
	return b.settler.Settle(ctx, b.transfers, true)
}
