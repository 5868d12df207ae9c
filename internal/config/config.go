package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	RPCURL         string `envconfig:"BUYBACK_RPC_URL"`
	ChainID        int64  `envconfig:"BUYBACK_CHAIN_ID" default:"97"`
	DepositToken   string `envconfig:"BUYBACK_DEPOSIT_TOKEN"`
	PayoutToken    string `envconfig:"BUYBACK_PAYOUT_TOKEN"`
	CustodialAddr  string `envconfig:"BUYBACK_CUSTODIAL_ADDRESS"`
	PrivateKeyFile string `envconfig:"BUYBACK_PRIVATE_KEY_FILE"`
	TelegramToken  string `envconfig:"BUYBACK_TELEGRAM_TOKEN"`

	DBPath   string `envconfig:"BUYBACK_DB_PATH" default:"./data/buyback.sqlite"`
	Port     int    `envconfig:"BUYBACK_PORT" default:"8080"`
	LogLevel string `envconfig:"BUYBACK_LOG_LEVEL" default:"info"`
	LogDir   string `envconfig:"BUYBACK_LOG_DIR" default:"./logs"`

	PricePerUnit string `envconfig:"BUYBACK_PRICE_PER_UNIT" default:"0.5"`
	FeeRate      string `envconfig:"BUYBACK_FEE_RATE" default:"0.02"`
	MinSwapSize  int64  `envconfig:"BUYBACK_MIN_SWAP_SIZE" default:"25"`
	MaxSwapSize  int64  `envconfig:"BUYBACK_MAX_SWAP_SIZE" default:"300"`
	TotalLimit   int64  `envconfig:"BUYBACK_TOTAL_LIMIT" default:"100000"`

	MaxSettlementsPerAddress int `envconfig:"BUYBACK_MAX_SETTLEMENTS_PER_ADDRESS" default:"5"`

	PayoutConfirmTimeoutSec int `envconfig:"BUYBACK_PAYOUT_CONFIRM_TIMEOUT_SEC" default:"180"`
}

// Load reads configuration from .env file (if present) then from environment variables.
// Environment variables override .env values.
func Load() (*Config, error) {
	// godotenv does NOT override already-set env vars, so real environment
	// variables take precedence over .env values.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			slog.Warn("failed to load .env file", "error", err)
		} else {
			slog.Info("loaded .env file")
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration values for correctness. A process with an
// invalid configuration must refuse to start.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("%w: BUYBACK_RPC_URL is required", ErrInvalidConfig)
	}
	if c.TelegramToken == "" {
		return fmt.Errorf("%w: BUYBACK_TELEGRAM_TOKEN is required", ErrInvalidConfig)
	}
	if c.PrivateKeyFile == "" {
		return fmt.Errorf("%w: BUYBACK_PRIVATE_KEY_FILE is required", ErrInvalidConfig)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be 1-65535, got %d", ErrInvalidConfig, c.Port)
	}

	for name, addr := range map[string]string{
		"BUYBACK_DEPOSIT_TOKEN":     c.DepositToken,
		"BUYBACK_PAYOUT_TOKEN":      c.PayoutToken,
		"BUYBACK_CUSTODIAL_ADDRESS": c.CustodialAddr,
	} {
		if addr == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidConfig, name)
		}
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%w: %s is not a valid address: %q", ErrInvalidConfig, name, addr)
		}
	}

	price, err := decimal.NewFromString(c.PricePerUnit)
	if err != nil {
		return fmt.Errorf("%w: price per unit %q is not a decimal: %v", ErrInvalidConfig, c.PricePerUnit, err)
	}
	if price.Sign() <= 0 {
		return fmt.Errorf("%w: price per unit must be positive, got %s", ErrInvalidConfig, price)
	}

	fee, err := decimal.NewFromString(c.FeeRate)
	if err != nil {
		return fmt.Errorf("%w: fee rate %q is not a decimal: %v", ErrInvalidConfig, c.FeeRate, err)
	}
	if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: fee rate must be in [0, 1), got %s", ErrInvalidConfig, fee)
	}

	if c.MinSwapSize < 0 {
		return fmt.Errorf("%w: min swap size must be non-negative, got %d", ErrInvalidConfig, c.MinSwapSize)
	}
	if c.MinSwapSize > c.MaxSwapSize {
		return fmt.Errorf("%w: min swap size %d exceeds max swap size %d", ErrInvalidConfig, c.MinSwapSize, c.MaxSwapSize)
	}
	if c.MaxSettlementsPerAddress < 1 {
		return fmt.Errorf("%w: max settlements per address must be >= 1, got %d", ErrInvalidConfig, c.MaxSettlementsPerAddress)
	}

	return nil
}

// Price returns the parsed payout price per deposit token. Validate must have
// been called first.
func (c *Config) Price() decimal.Decimal {
	d, _ := decimal.NewFromString(c.PricePerUnit)
	return d
}

// Fee returns the parsed fee rate. Validate must have been called first.
func (c *Config) Fee() decimal.Decimal {
	d, _ := decimal.NewFromString(c.FeeRate)
	return d
}
