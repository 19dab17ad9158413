package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/storage"
)

// ConfigStore is an in-memory implementation of storage.ConfigStore.
type ConfigStore struct {
	mu  sync.RWMutex
	cfg *curve.GlobalConfig
	now func() time.Time
}

// NewConfigStore creates an empty config store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{now: time.Now}
}

var _ storage.ConfigStore = (*ConfigStore)(nil)

// Get returns a copy of the current config.
func (s *ConfigStore) Get(_ context.Context) (curve.GlobalConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cfg == nil {
		return curve.GlobalConfig{}, storage.ErrNotFound
	}
	return *s.cfg, nil
}

// Put replaces the config and bumps its version.
func (s *ConfigStore) Put(_ context.Context, cfg curve.GlobalConfig) (curve.GlobalConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.Version = 1
	if s.cfg != nil {
		cfg.Version = s.cfg.Version + 1
	}
	cfg.UpdatedAt = s.now().UTC()
	s.cfg = &cfg
	return cfg, nil
}
