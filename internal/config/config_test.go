package config

import (
	"errors"
	"testing"
)

func validConfig() *Config {
	return &Config{
		RPCURL:                   "wss://bsc-testnet.example/ws",
		ChainID:                  97,
		DepositToken:             "0x1111111111111111111111111111111111111111",
		PayoutToken:              "0x2222222222222222222222222222222222222222",
		CustodialAddr:            "0x3333333333333333333333333333333333333333",
		PrivateKeyFile:           "/tmp/key.hex",
		TelegramToken:            "123:abc",
		DBPath:                   "./data/test.sqlite",
		Port:                     8080,
		PricePerUnit:             "0.5",
		FeeRate:                  "0.02",
		MinSwapSize:              25,
		MaxSwapSize:              300,
		TotalLimit:               100000,
		MaxSettlementsPerAddress: 5,
		PayoutConfirmTimeoutSec:  180,
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidate_MissingRPCURL(t *testing.T) {
	cfg := validConfig()
	cfg.RPCURL = ""
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidate_MissingTelegramToken(t *testing.T) {
	cfg := validConfig()
	cfg.TelegramToken = ""
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidate_BadAddresses(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"deposit token not hex", func(c *Config) { c.DepositToken = "not-an-address" }},
		{"payout token too short", func(c *Config) { c.PayoutToken = "0x1234" }},
		{"custodial missing", func(c *Config) { c.CustodialAddr = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidate_FeeRateBounds(t *testing.T) {
	cases := []struct {
		fee     string
		wantErr bool
	}{
		{"0", false},
		{"0.02", false},
		{"0.999", false},
		{"1", true},
		{"1.5", true},
		{"-0.01", true},
		{"garbage", true},
	}

	for _, tc := range cases {
		cfg := validConfig()
		cfg.FeeRate = tc.fee
		err := cfg.Validate()
		if tc.wantErr && err == nil {
			t.Errorf("FeeRate %q: expected error, got nil", tc.fee)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("FeeRate %q: unexpected error %v", tc.fee, err)
		}
	}
}

func TestValidate_SwapSizeOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.MinSwapSize = 500
	cfg.MaxSwapSize = 300
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for min > max, got %v", err)
	}
}

func TestValidate_PortBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Port = 0
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for port 0, got %v", err)
	}

	cfg = validConfig()
	cfg.Port = 70000
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for port 70000, got %v", err)
	}
}

func TestValidate_BadPrice(t *testing.T) {
	cfg := validConfig()
	cfg.PricePerUnit = "-1"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for negative price, got %v", err)
	}
}

func TestPriceAndFeeParsed(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	if got := cfg.Price().String(); got != "0.5" {
		t.Errorf("Price() = %s, want 0.5", got)
	}
	if got := cfg.Fee().String(); got != "0.02" {
		t.Errorf("Fee() = %s, want 0.02", got)
	}
}
