package ledger

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrUnknownHolding      = errors.New("unknown token holding")
	ErrUnauthorized        = errors.New("authority does not own source holding")
	ErrMintMismatch        = errors.New("holdings belong to different mints")
	ErrMintAlreadyIssued   = errors.New("mint already issued")
	ErrBalanceOverflow     = errors.New("balance overflow")
	ErrMetadataExists      = errors.New("metadata already registered")
	ErrBatchClosed         = errors.New("settlement batch already closed")
	ErrInvalidTransferArgs = errors.New("invalid transfer arguments")
)

// TransferError wraps a failed transfer with its arguments.
type TransferError struct {
	Kind        string
	Authority   solana.PublicKey
	Source      solana.PublicKey
	Destination solana.PublicKey
	Amount      uint64
	Err         error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s transfer of %d from %s to %s: %v",
		e.Kind, e.Amount, e.Source, e.Destination, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
