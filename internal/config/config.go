// Package config defines the server configuration. Config is loaded from a
// YAML file (default: configs/config.yaml) with fields overridable via
// VIDAR_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
}

// ExchangeConfig tunes the engine itself.
//
//   - StartingCash: balance credited to every new account, two decimals.
//   - AdminUsername: manager account created on first boot.
type ExchangeConfig struct {
	StartingCash  string `mapstructure:"starting_cash"`
	AdminUsername string `mapstructure:"admin_username"`
}

// StoreConfig sets where exchange state snapshots are persisted.
type StoreConfig struct {
	DataDir          string        `mapstructure:"data_dir"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("VIDAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 9001)
	v.SetDefault("exchange.starting_cash", "10000.00")
	v.SetDefault("exchange.admin_username", "admin")
	v.SetDefault("store.data_dir", "data")
	v.SetDefault("store.snapshot_interval", time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	cash, err := c.StartingCash()
	if err != nil {
		return err
	}
	if cash.IsNegative() {
		return fmt.Errorf("exchange.starting_cash must not be negative")
	}
	if c.Exchange.AdminUsername == "" {
		return fmt.Errorf("exchange.admin_username must be set")
	}
	if c.Store.SnapshotInterval <= 0 {
		return fmt.Errorf("store.snapshot_interval must be positive")
	}
	return nil
}

// StartingCash parses the configured starting balance.
func (c *Config) StartingCash() (decimal.Decimal, error) {
	cash, err := decimal.NewFromString(c.Exchange.StartingCash)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("exchange.starting_cash: %w", err)
	}
	return cash, nil
}
