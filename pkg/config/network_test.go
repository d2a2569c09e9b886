// Copyright 2025 Certen Protocol

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadNetworkConfigSubstitutesEnvVars(t *testing.T) {
	t.Setenv("RNG_MONIKER", "validator-a")

	dir := t.TempDir()
	path := filepath.Join(dir, "devnet.yaml")
	contents := `
network_name: devnet
chain_id: rng-devnet
moniker: ${RNG_MONIKER:-unnamed}
peers:
  - validator_id: v2
    p2p_addr: tcp://10.0.0.2:26656
    rpc_addr: tcp://10.0.0.2:26657
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadNetworkConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Moniker != "validator-a" {
		t.Fatalf("expected substituted moniker, got %q", cfg.Moniker)
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0].ValidatorID != "v2" {
		t.Fatalf("expected one peer v2, got %+v", cfg.Peers)
	}
}

func TestLoadNetworkConfigFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devnet.yaml")
	if err := os.WriteFile(path, []byte("moniker: ${UNSET_RNG_VAR:-fallback}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadNetworkConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Moniker != "fallback" {
		t.Fatalf("expected fallback default, got %q", cfg.Moniker)
	}
}
