package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/storage"
)

type curveEntry struct {
	mu    sync.Mutex // serializes Update on this curve
	state curve.BondingCurve
}

// CurveStore is an in-memory implementation of storage.CurveStore with one
// lock per curve.
type CurveStore struct {
	mu   sync.RWMutex // guards the map, not the entries
	data map[solana.PublicKey]*curveEntry
}

// NewCurveStore creates an empty curve store.
func NewCurveStore() *CurveStore {
	return &CurveStore{data: make(map[solana.PublicKey]*curveEntry)}
}

var _ storage.CurveStore = (*CurveStore)(nil)

// Create stores a new curve. Returns ErrDuplicateKey if the mint exists.
func (s *CurveStore) Create(_ context.Context, c *curve.BondingCurve) error {
	if c == nil || c.Mint.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.Mint]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[c.Mint] = &curveEntry{state: *c}
	return nil
}

// Get retrieves a snapshot of a curve. Returns ErrNotFound if not exists.
func (s *CurveStore) Get(_ context.Context, mint solana.PublicKey) (*curve.BondingCurve, error) {
	e, ok := s.entry(mint)
	if !ok {
		return nil, storage.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.state
	return &c, nil
}

// List returns snapshots of all curves ordered by creation time.
func (s *CurveStore) List(_ context.Context) ([]*curve.BondingCurve, error) {
	s.mu.RLock()
	entries := make([]*curveEntry, 0, len(s.data))
	for _, e := range s.data {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	result := make([]*curve.BondingCurve, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		c := e.state
		e.mu.Unlock()
		result = append(result, &c)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].Mint.String() < result[j].Mint.String()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Update runs fn on a working copy under the curve's lock and stores the
// copy only if fn succeeds.
func (s *CurveStore) Update(ctx context.Context, mint solana.PublicKey, fn storage.UpdateFunc) error {
	e, ok := s.entry(mint)
	if !ok {
		return storage.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := e.state
	if err := fn(ctx, &working); err != nil {
		return err
	}
	working.Mint = mint
	e.state = working
	return nil
}

func (s *CurveStore) entry(mint solana.PublicKey) (*curveEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[mint]
	return e, ok
}
