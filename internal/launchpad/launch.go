// internal/launchpad/launch.go
package launchpad

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/events"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
	"github.com/rovshanmuradov/fairlaunch/internal/storage"
)

// Metadata limits follow the token metadata standard.
const (
	MaxNameLength   = 32
	MaxSymbolLength = 10
	MaxURILength    = 200
)

// LaunchParams describes a new token.
type LaunchParams struct {
	Mint   solana.PublicKey
	Name   string
	Symbol string
	URI    string
}

func (p LaunchParams) validate() error {
	switch {
	case p.Mint.IsZero():
		return fmt.Errorf("%w: mint is empty", ErrInvalidLaunch)
	case p.Name == "" || utf8.RuneCountInString(p.Name) > MaxNameLength:
		return fmt.Errorf("%w: name must have 1..%d characters", ErrInvalidLaunch, MaxNameLength)
	case p.Symbol == "" || utf8.RuneCountInString(p.Symbol) > MaxSymbolLength:
		return fmt.Errorf("%w: symbol must have 1..%d characters", ErrInvalidLaunch, MaxSymbolLength)
	case len(p.URI) > MaxURILength:
		return fmt.Errorf("%w: uri longer than %d bytes", ErrInvalidLaunch, MaxURILength)
	}
	return nil
}

// CustodyAuthority derives the identity that controls the funds of the
// curve of mint.
func CustodyAuthority(programID, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{mint.Bytes()}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive custody authority for %s: %w", mint, err)
	}
	return addr, bump, nil
}

// Launch issues the total supply of a new token into curve custody and
// creates its bonding curve. Only the administrator may launch.
func (s *Service) Launch(ctx context.Context, caller solana.PublicKey, p LaunchParams) (*curve.BondingCurve, error) {
	if !caller.Equals(s.admin) {
		s.logger.Warn("Rejected launch from non-admin",
			zap.String("caller", caller.String()),
			zap.String("mint", p.Mint.String()))
		return nil, ErrUnauthorized
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	cfg, err := s.Config(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := s.curves.Get(ctx, p.Mint); err == nil {
		return nil, ErrAlreadyLaunched
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("check existing curve: %w", err)
	}

	authority, bump, err := CustodyAuthority(s.programID, p.Mint)
	if err != nil {
		return nil, err
	}
	custody, err := s.ledger.OpenHolding(ctx, authority, p.Mint)
	if err != nil {
		return nil, fmt.Errorf("open custody holding: %w", err)
	}

	supply, err := s.issueSupply(ctx, p.Mint, custody, cfg.TotalTokenSupply)
	if err != nil {
		return nil, err
	}

	md := ledger.Metadata{Name: p.Name, Symbol: p.Symbol, URI: p.URI, UpdateAuthority: authority}
	if err := s.ledger.RegisterMetadata(ctx, p.Mint, md); err != nil {
		return nil, fmt.Errorf("register metadata: %w", err)
	}

	now := s.now().UTC()
	c := &curve.BondingCurve{
		Mint:                   p.Mint,
		Authority:              authority,
		AuthorityBump:          bump,
		CustodyHolding:         custody,
		VirtualTokenReserves:   supply,
		VirtualLamportReserves: cfg.InitialVirtualLamportReserves,
		TokenTotalSupply:       supply,
		Name:                   p.Name,
		Symbol:                 p.Symbol,
		URI:                    p.URI,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := s.curves.Create(ctx, c); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, ErrAlreadyLaunched
		}
		return nil, fmt.Errorf("store curve: %w", err)
	}

	s.logger.Info("Curve launched",
		zap.String("mint", c.Mint.String()),
		zap.String("symbol", c.Symbol),
		zap.String("authority", c.Authority.String()),
		zap.Uint64("supply", c.TokenTotalSupply),
		zap.Uint64("virtual_lamport_reserves", c.VirtualLamportReserves),
		zap.Uint64("config_version", cfg.Version))

	s.publish(events.NewCurveLaunched(*c, now))
	return c, nil
}

// issueSupply issues the supply of mint into custody and returns it. A
// launch that issued the supply but failed before storing its curve is
// resumed with the supply already in custody.
func (s *Service) issueSupply(ctx context.Context, mint, custody solana.PublicKey, supply uint64) (uint64, error) {
	err := s.ledger.Issue(ctx, mint, custody, supply)
	if err == nil {
		return supply, nil
	}
	if !errors.Is(err, ledger.ErrMintAlreadyIssued) {
		return 0, fmt.Errorf("issue supply: %w", err)
	}

	iss, ok, lookupErr := s.ledger.Issuance(ctx, mint)
	if lookupErr != nil {
		return 0, fmt.Errorf("look up issuance: %w", lookupErr)
	}
	if !ok || !iss.Destination.Equals(custody) {
		return 0, ErrAlreadyLaunched
	}

	s.logger.Warn("Resuming interrupted launch",
		zap.String("mint", mint.String()),
		zap.Uint64("issued_supply", iss.Supply))
	return iss.Supply, nil
}
