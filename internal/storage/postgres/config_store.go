package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/storage"
)

// ConfigStore implements storage.ConfigStore using PostgreSQL.
type ConfigStore struct {
	pool *Pool
}

// NewConfigStore creates a new ConfigStore.
func NewConfigStore(pool *Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ConfigStore = (*ConfigStore)(nil)

const selectConfig = `
	SELECT fee_recipient, completion_threshold, total_token_supply,
	       initial_virtual_lamport_reserves, buy_fee_percent, sell_fee_percent,
	       version, updated_at
	FROM global_config
	WHERE id = 1
`

// Get returns the current config. Returns ErrNotFound if never configured.
func (s *ConfigStore) Get(ctx context.Context) (curve.GlobalConfig, error) {
	cfg, err := scanConfig(s.pool.QueryRow(ctx, selectConfig))
	if err != nil {
		if isNotFoundError(err) {
			return curve.GlobalConfig{}, storage.ErrNotFound
		}
		return curve.GlobalConfig{}, fmt.Errorf("get global config: %w", err)
	}
	return cfg, nil
}

// Put replaces the config in one transaction, bumping the version.
func (s *ConfigStore) Put(ctx context.Context, cfg curve.GlobalConfig) (curve.GlobalConfig, error) {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var version int64
		err := tx.QueryRow(ctx, `SELECT version FROM global_config WHERE id = 1 FOR UPDATE`).Scan(&version)
		if err != nil && !isNotFoundError(err) {
			return fmt.Errorf("lock global config: %w", err)
		}

		cfg.Version = uint64(version) + 1
		cfg.UpdatedAt = time.Now().UTC()

		_, err = tx.Exec(ctx, `
			INSERT INTO global_config (
				id, fee_recipient, completion_threshold, total_token_supply,
				initial_virtual_lamport_reserves, buy_fee_percent, sell_fee_percent,
				version, updated_at
			) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				fee_recipient = EXCLUDED.fee_recipient,
				completion_threshold = EXCLUDED.completion_threshold,
				total_token_supply = EXCLUDED.total_token_supply,
				initial_virtual_lamport_reserves = EXCLUDED.initial_virtual_lamport_reserves,
				buy_fee_percent = EXCLUDED.buy_fee_percent,
				sell_fee_percent = EXCLUDED.sell_fee_percent,
				version = EXCLUDED.version,
				updated_at = EXCLUDED.updated_at
		`,
			cfg.FeeRecipient.String(), numeric(cfg.CompletionThreshold), numeric(cfg.TotalTokenSupply),
			numeric(cfg.InitialVirtualLamportReserves), cfg.BuyFeePercent, cfg.SellFeePercent,
			int64(cfg.Version), cfg.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert global config: %w", err)
		}
		return nil
	})
	if err != nil {
		return curve.GlobalConfig{}, err
	}
	return cfg, nil
}

func scanConfig(row pgx.Row) (curve.GlobalConfig, error) {
	var (
		cfg                     curve.GlobalConfig
		recipient               string
		threshold, supply, seed pgtype.Numeric
		version                 int64
	)
	err := row.Scan(&recipient, &threshold, &supply, &seed,
		&cfg.BuyFeePercent, &cfg.SellFeePercent, &version, &cfg.UpdatedAt)
	if err != nil {
		return cfg, err
	}

	var d decoder
	cfg.FeeRecipient = d.key(recipient)
	cfg.CompletionThreshold = d.u64(threshold)
	cfg.TotalTokenSupply = d.u64(supply)
	cfg.InitialVirtualLamportReserves = d.u64(seed)
	cfg.Version = uint64(version)
	return cfg, d.err
}
