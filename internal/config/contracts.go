package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ContractsConfig pins the deployed social package and its shared objects.
// Packages lists every published version, newest first; older entries are
// kept so capability objects minted by previous versions still match.
type ContractsConfig struct {
	Packages     []string `yaml:"packages"`
	AdminCap     string   `yaml:"adminCap"`
	ProfileIndex string   `yaml:"profileIndex"`
	ProfileTable string   `yaml:"profileTable"`
}

// LoadContracts loads the contract map from config/contracts.yaml.
func LoadContracts() (*ContractsConfig, error) {
	return LoadContractsFromPath(filepath.Join("config", "contracts.yaml"))
}

// LoadContractsFromPath loads the contract map from a specific path.
func LoadContractsFromPath(path string) (*ContractsConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read contracts config: %w", err)
	}

	var cfg ContractsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse contracts config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ContractsConfig) validate() error {
	if len(c.Packages) == 0 || c.Packages[0] == "" {
		return fmt.Errorf("contracts config: at least one package id is required")
	}
	if c.AdminCap == "" {
		return fmt.Errorf("contracts config: adminCap is required")
	}
	if c.ProfileIndex == "" {
		return fmt.Errorf("contracts config: profileIndex is required")
	}
	if c.ProfileTable == "" {
		return fmt.Errorf("contracts config: profileTable is required")
	}
	return nil
}
