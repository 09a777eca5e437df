package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fox-one/treasury"
	"github.com/shopspring/decimal"
)

const (
	ledgerDemo  = "demo"
	ledgerMixin = "mixin"
)

type fileConfig struct {
	TreasuryID    string        `toml:"treasury_id"`
	Threshold     int           `toml:"threshold"`
	SubmitTimeout string        `toml:"submit_timeout"`
	Owners        []ownerConfig `toml:"owners"`
	Ledger        ledgerConfig  `toml:"ledger"`
	Auth          authConfig    `toml:"auth"`
	Redis         redisConfig   `toml:"redis"`
}

type ownerConfig struct {
	Address   string `toml:"address"`
	PublicKey string `toml:"public_key"`
}

type ledgerConfig struct {
	Kind     string `toml:"kind"`
	Balance  string `toml:"balance"`
	Keystore string `toml:"keystore"`
	SpendKey string `toml:"spend_key"`
	AssetID  string `toml:"asset_id"`
}

type authConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

type redisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
	LockTTL  string `toml:"lock_ttl"`
}

type serviceConfig struct {
	Registry      *treasury.Registry
	OwnerKeys     []treasury.OwnerKey
	SubmitTimeout time.Duration
	Ledger        ledgerConfig
	DemoBalance   decimal.Decimal
	Auth          authConfig
	Redis         redisConfig
	LockTTL       time.Duration
}

func loadServiceConfig(path string) (serviceConfig, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serviceConfig{}, fmt.Errorf("load treasury config: %w", err)
	}

	cfg := serviceConfig{
		SubmitTimeout: treasury.DefaultSubmitTimeout,
		Ledger:        raw.Ledger,
		Auth:          raw.Auth,
		Redis:         raw.Redis,
	}

	owners := make([]string, 0, len(raw.Owners))
	for _, o := range raw.Owners {
		owners = append(owners, o.Address)
	}

	threshold := raw.Threshold
	if !meta.IsDefined("threshold") {
		threshold = len(owners)
	}

	cfg.Registry, err = treasury.NewRegistry(raw.TreasuryID, owners, threshold)
	if err != nil {
		return serviceConfig{}, err
	}

	if cfg.OwnerKeys, err = parseOwnerKeys(raw.Owners); err != nil {
		return serviceConfig{}, err
	}

	if meta.IsDefined("submit_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SubmitTimeout))
		if err != nil {
			return serviceConfig{}, fmt.Errorf("parse submit_timeout: %w", err)
		}
		cfg.SubmitTimeout = d
	}

	cfg.LockTTL = 2 * cfg.SubmitTimeout
	if meta.IsDefined("redis", "lock_ttl") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Redis.LockTTL))
		if err != nil {
			return serviceConfig{}, fmt.Errorf("parse redis.lock_ttl: %w", err)
		}

		if d <= cfg.SubmitTimeout {
			return serviceConfig{}, fmt.Errorf("redis.lock_ttl %s must exceed submit_timeout %s", d, cfg.SubmitTimeout)
		}
		cfg.LockTTL = d
	}

	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "treasury"
	}

	cfg.Ledger.Kind = strings.ToLower(strings.TrimSpace(cfg.Ledger.Kind))
	switch cfg.Ledger.Kind {
	case "", ledgerDemo:
		cfg.Ledger.Kind = ledgerDemo
		balance := "1000000000"
		if meta.IsDefined("ledger", "balance") {
			balance = raw.Ledger.Balance
		}

		if cfg.DemoBalance, err = decimal.NewFromString(balance); err != nil {
			return serviceConfig{}, fmt.Errorf("parse ledger.balance: %w", err)
		}
	case ledgerMixin:
		if cfg.Ledger.Keystore == "" || cfg.Ledger.SpendKey == "" || cfg.Ledger.AssetID == "" {
			return serviceConfig{}, fmt.Errorf("mixin ledger needs keystore, spend_key and asset_id")
		}
	default:
		return serviceConfig{}, fmt.Errorf("unknown ledger kind %q", raw.Ledger.Kind)
	}

	return cfg, nil
}

// parseOwnerKeys returns nil when no owner has a public key. Keys are all or
// nothing: a partial set would make some owners unable to approve.
func parseOwnerKeys(owners []ownerConfig) ([]treasury.OwnerKey, error) {
	var keys []treasury.OwnerKey
	for _, o := range owners {
		if o.PublicKey == "" {
			continue
		}

		key, err := treasury.ParseOwnerKey(o.Address, o.PublicKey)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	if len(keys) > 0 && len(keys) != len(owners) {
		return nil, fmt.Errorf("%d of %d owners have a public_key, set it for all or none", len(keys), len(owners))
	}

	return keys, nil
}
