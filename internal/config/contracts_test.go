package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadContractsFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contracts.yaml")
	raw := `packages:
  - "0xnewpkg"
  - "0xoldpkg"
adminCap: "0xadmincap"
profileIndex: "0xindex"
profileTable: "0xtable"
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := LoadContractsFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Packages) != 2 || cfg.Packages[0] != "0xnewpkg" {
		t.Fatalf("packages = %v, want newest first", cfg.Packages)
	}
	if cfg.AdminCap != "0xadmincap" || cfg.ProfileIndex != "0xindex" || cfg.ProfileTable != "0xtable" {
		t.Fatalf("unexpected contract ids: %+v", cfg)
	}
}

func TestLoadContractsRejectsIncomplete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contracts.yaml")
	if err := os.WriteFile(path, []byte("packages:\n  - \"0xpkg\"\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadContractsFromPath(path); err == nil {
		t.Fatal("incomplete contract map must be rejected")
	}
}

func TestContractsFallsBackToEnvironment(t *testing.T) {
	cfg := &Config{
		PackageID:    "0xpkg",
		AdminCapID:   "0xadmincap",
		ProfileIndex: "0xindex",
		ProfileTable: "0xtable",
	}
	contracts, err := cfg.Contracts()
	if err != nil {
		t.Fatalf("contracts: %v", err)
	}
	if contracts.Packages[0] != "0xpkg" {
		t.Fatalf("packages = %v", contracts.Packages)
	}
}
