// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/logger"
)

// Store drivers.
const (
	DriverMemory     = "memory"
	DriverPostgres   = "postgres"
	DriverClickHouse = "clickhouse"
)

type Config struct {
	Log         logger.Config    `mapstructure:"log"`
	Admin       string           `mapstructure:"admin"`
	ProgramID   string           `mapstructure:"program_id"`
	Store       StoreConfig      `mapstructure:"store"`
	Trades      TradesConfig     `mapstructure:"trades"`
	Feed        FeedConfig       `mapstructure:"feed"`
	EventBuffer int              `mapstructure:"event_buffer"`
	Global      GlobalConfig     `mapstructure:"global"`
	Simulation  SimulationConfig `mapstructure:"simulation"`
	License     LicenseConfig    `mapstructure:"license"`
	Startup     StartupConfig    `mapstructure:"startup"`
}

// StoreConfig selects where config and curves live.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	PostgresURL string `mapstructure:"postgres_url"`
}

// TradesConfig selects where executed trades are recorded. An empty sink
// follows store.driver.
type TradesConfig struct {
	Sink          string `mapstructure:"sink"`
	ClickHouseURL string `mapstructure:"clickhouse_url"`
}

// FeedConfig configures the websocket trade feed.
type FeedConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Path       string `mapstructure:"path"`
	// MetricsPath serves Prometheus metrics on the feed listener; empty
	// disables it.
	MetricsPath string `mapstructure:"metrics_path"`
}

// GlobalConfig is the bootstrap global config applied at startup when set.
type GlobalConfig struct {
	FeeRecipient                  string  `mapstructure:"fee_recipient"`
	CompletionThreshold           uint64  `mapstructure:"completion_threshold"`
	TotalTokenSupply              uint64  `mapstructure:"total_token_supply"`
	InitialVirtualLamportReserves uint64  `mapstructure:"initial_virtual_lamport_reserves"`
	BuyFeePercent                 float64 `mapstructure:"buy_fee_percent"`
	SellFeePercent                float64 `mapstructure:"sell_fee_percent"`
}

// SimulationConfig drives the built-in trade simulator.
type SimulationConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Curves         int           `mapstructure:"curves"`
	Traders        int           `mapstructure:"traders"`
	Interval       time.Duration `mapstructure:"interval"`
	TraderFunding  uint64        `mapstructure:"trader_funding"`
	MaxBuyLamports uint64        `mapstructure:"max_buy_lamports"`
	SellRatio      float64       `mapstructure:"sell_ratio"`

	Slippage curve.SlippageConfig `mapstructure:"slippage"`
}

// LicenseConfig enables the operator license gate when Key is set.
type LicenseConfig struct {
	Key          string `mapstructure:"key"`
	AccountID    string `mapstructure:"account_id"`
	ProductID    string `mapstructure:"product_id"`
	ProductToken string `mapstructure:"product_token"`
}

// StartupConfig bounds retries while connecting to backing services.
type StartupConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

const (
	DefaultEventBuffer    = 1024
	DefaultFeedAddr       = "127.0.0.1:8645"
	DefaultFeedPath       = "/feed"
	DefaultMetricsPath    = "/metrics"
	DefaultConnectTimeout = 30 * time.Second
)

func defaults() map[string]any {
	lg := logger.DefaultConfig()
	return map[string]any{
		"log.file":        lg.File,
		"log.max_size":    lg.MaxSize,
		"log.max_age":     lg.MaxAge,
		"log.max_backups": lg.MaxBackups,
		"log.compress":    lg.Compress,
		"log.development": lg.Development,
		"log.console":     lg.Console,

		"admin":      "",
		"program_id": "",

		"store.driver":       DriverMemory,
		"store.postgres_url": "",

		"trades.sink":           "",
		"trades.clickhouse_url": "",

		"feed.enabled":      true,
		"feed.listen_addr":  DefaultFeedAddr,
		"feed.path":         DefaultFeedPath,
		"feed.metrics_path": DefaultMetricsPath,

		"event_buffer": DefaultEventBuffer,

		"global.fee_recipient":                    "",
		"global.completion_threshold":             uint64(85_000_000_000),
		"global.total_token_supply":               uint64(1_000_000_000_000_000),
		"global.initial_virtual_lamport_reserves": uint64(30_000_000_000),
		"global.buy_fee_percent":                  1.0,
		"global.sell_fee_percent":                 1.0,

		"simulation.enabled":          false,
		"simulation.curves":           3,
		"simulation.traders":          8,
		"simulation.interval":         "250ms",
		"simulation.trader_funding":   uint64(100_000_000_000),
		"simulation.max_buy_lamports": uint64(2_000_000_000),
		"simulation.sell_ratio":       0.3,
		"simulation.slippage.type":    string(curve.SlippagePercent),
		"simulation.slippage.value":   5.0,

		"license.key":           "",
		"license.account_id":    "",
		"license.product_id":    "",
		"license.product_token": "",

		"startup.connect_timeout": DefaultConnectTimeout,
	}
}

// LoadConfig reads path (JSON, YAML or TOML by extension) and applies
// FAIRLAUNCH_* environment overrides. An empty path uses defaults and the
// environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("FAIRLAUNCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, cfg.Validate()
}

// Validate checks the settings that do not depend on live services.
func (c *Config) Validate() error {
	if _, err := c.AdminKey(); err != nil {
		return err
	}
	if _, err := c.ProgramKey(); err != nil {
		return err
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if err := validateURL(c.Store.PostgresURL, "postgres"); err != nil {
			return fmt.Errorf("store.postgres_url: %w", err)
		}
	default:
		return fmt.Errorf("unsupported store.driver %q", c.Store.Driver)
	}

	switch c.TradeSink() {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.Driver != DriverPostgres {
			return errors.New("trades.sink postgres requires store.driver postgres")
		}
	case DriverClickHouse:
		if err := validateURL(c.Trades.ClickHouseURL, "clickhouse"); err != nil {
			return fmt.Errorf("trades.clickhouse_url: %w", err)
		}
	default:
		return fmt.Errorf("unsupported trades.sink %q", c.Trades.Sink)
	}

	if c.EventBuffer <= 0 {
		return errors.New("invalid event_buffer")
	}
	if c.Feed.Enabled && c.Feed.ListenAddr == "" {
		return errors.New("feed.listen_addr is empty")
	}
	if c.Feed.Path != "" && !strings.HasPrefix(c.Feed.Path, "/") {
		return errors.New("feed.path must start with /")
	}
	if c.Feed.MetricsPath != "" {
		if !strings.HasPrefix(c.Feed.MetricsPath, "/") {
			return errors.New("feed.metrics_path must start with /")
		}
		if c.Feed.MetricsPath == c.Feed.Path {
			return errors.New("feed.metrics_path must differ from feed.path")
		}
	}

	if c.Global.FeeRecipient != "" {
		if _, err := c.Global.ToCurve(); err != nil {
			return err
		}
	}

	if c.Simulation.Enabled {
		if c.Global.FeeRecipient == "" {
			return errors.New("simulation requires a bootstrap global config")
		}
		if c.Simulation.Curves <= 0 || c.Simulation.Traders <= 0 {
			return errors.New("simulation needs at least one curve and one trader")
		}
		if c.Simulation.Interval <= 0 {
			return errors.New("invalid simulation.interval")
		}
		if c.Simulation.MaxBuyLamports == 0 {
			return errors.New("invalid simulation.max_buy_lamports")
		}
		if c.Simulation.SellRatio < 0 || c.Simulation.SellRatio > 1 {
			return errors.New("simulation.sell_ratio must be in [0, 1]")
		}
		if err := c.Simulation.Slippage.Validate(); err != nil {
			return fmt.Errorf("simulation.slippage: %w", err)
		}
	}

	if c.License.Key != "" && (c.License.AccountID == "" || c.License.ProductID == "") {
		return errors.New("license.account_id and license.product_id are required with license.key")
	}
	return nil
}

// TradeSink resolves the effective trade sink.
func (c *Config) TradeSink() string {
	if c.Trades.Sink == "" {
		return c.Store.Driver
	}
	return c.Trades.Sink
}

// AdminKey parses the administrator identity.
func (c *Config) AdminKey() (solana.PublicKey, error) {
	return parseKey("admin", c.Admin)
}

// ProgramKey parses the program id used to derive curve custody.
func (c *Config) ProgramKey() (solana.PublicKey, error) {
	return parseKey("program_id", c.ProgramID)
}

// ToCurve converts the bootstrap config and validates its ranges.
func (g GlobalConfig) ToCurve() (curve.GlobalConfig, error) {
	recipient, err := parseKey("global.fee_recipient", g.FeeRecipient)
	if err != nil {
		return curve.GlobalConfig{}, err
	}
	cfg := curve.GlobalConfig{
		FeeRecipient:                  recipient,
		CompletionThreshold:           g.CompletionThreshold,
		TotalTokenSupply:              g.TotalTokenSupply,
		InitialVirtualLamportReserves: g.InitialVirtualLamportReserves,
		BuyFeePercent:                 g.BuyFeePercent,
		SellFeePercent:                g.SellFeePercent,
	}
	return cfg, cfg.Validate()
}

func parseKey(field, value string) (solana.PublicKey, error) {
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("missing %s in configuration", field)
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return key, nil
}

func validateURL(rawURL, scheme string) error {
	if rawURL == "" {
		return errors.New("url is empty")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, scheme) {
		return fmt.Errorf("URL scheme must be %s", scheme)
	}
	return nil
}
