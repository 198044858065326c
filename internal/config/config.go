// Package config loads the gateway configuration from the environment, with
// an optional .env file for local development and an optional yaml file
// pinning the deployed contract identifiers.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full gateway configuration.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR,default=:8080"`
	LogLevel   string `env:"LOG_LEVEL,default=info"`

	// SeedPhrase derives the custodial signing key. Required.
	SeedPhrase string        `env:"SPONSOR_SEED_PHRASE,required"`
	RPCURL     string        `env:"CHAIN_RPC_URL,required"`
	RPCTimeout time.Duration `env:"CHAIN_RPC_TIMEOUT,default=30s"`

	JWTSecret string `env:"JWT_SECRET,required"`

	// DatabaseURL selects the postgres store; empty falls back to memory.
	DatabaseURL string `env:"DATABASE_URL,default="`
	// RedisAddr selects the redis task mailbox; empty keeps tasks in the
	// primary store.
	RedisAddr string `env:"REDIS_ADDR,default="`

	GasCount          int    `env:"GAS_COUNT,default=20"`
	GasAmount         uint64 `env:"GAS_AMOUNT,default=1000000000"`
	RebalanceSchedule string `env:"REBALANCE_SCHEDULE,default=0 0 1 * *"`

	// ContractsPath points at the yaml file carrying contract ids; the
	// CONTRACT_* variables below apply when the file is absent.
	ContractsPath string `env:"CONTRACTS_PATH,default="`

	PackageID    string `env:"CONTRACT_PACKAGE_ID,default="`
	AdminCapID   string `env:"CONTRACT_ADMIN_CAP_ID,default="`
	ProfileIndex string `env:"CONTRACT_PROFILE_INDEX_ID,default="`
	ProfileTable string `env:"CONTRACT_PROFILE_TABLE_ID,default="`
}

// Load reads the environment, layering a .env file underneath when present.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// Contracts resolves the deployed-contract identifiers, preferring the yaml
// file over the flat environment variables.
func (c *Config) Contracts() (*ContractsConfig, error) {
	if c.ContractsPath != "" {
		return LoadContractsFromPath(c.ContractsPath)
	}
	contracts := &ContractsConfig{
		Packages:     []string{c.PackageID},
		AdminCap:     c.AdminCapID,
		ProfileIndex: c.ProfileIndex,
		ProfileTable: c.ProfileTable,
	}
	if err := contracts.validate(); err != nil {
		return nil, err
	}
	return contracts, nil
}
