package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu     sync.RWMutex
	byID   map[string]struct{}
	byMint map[solana.PublicKey][]*curve.TradeRecord
}

// NewTradeStore creates an empty trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		byID:   make(map[string]struct{}),
		byMint: make(map[solana.PublicKey][]*curve.TradeRecord),
	}
}

var _ storage.TradeStore = (*TradeStore)(nil)

// Insert adds a trade. Returns ErrDuplicateKey if the ID exists.
func (s *TradeStore) Insert(_ context.Context, t *curve.TradeRecord) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[t.ID]; exists {
		return storage.ErrDuplicateKey
	}
	rec := *t
	s.byID[t.ID] = struct{}{}
	s.byMint[t.Mint] = append(s.byMint[t.Mint], &rec)
	return nil
}

// ListByMint returns trades ordered by sequence. Recorders may insert out
// of order, so the slice is sorted on read.
func (s *TradeStore) ListByMint(_ context.Context, mint solana.PublicKey, limit int) ([]*curve.TradeRecord, error) {
	s.mu.RLock()
	trades := s.byMint[mint]
	result := make([]*curve.TradeRecord, 0, len(trades))
	for _, t := range trades {
		rec := *t
		result = append(result, &rec)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Sequence < result[j].Sequence
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
