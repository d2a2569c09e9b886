// Copyright 2025 Certen Protocol
//
// Static validator-set configuration loaded from YAML, with
// ${VAR_NAME} / ${VAR_NAME:-default} environment substitution applied
// before parsing.

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// NetworkConfig describes the validator set this node participates in:
// the network name, chain id, this node's moniker, and the peers it
// gossips with. It is separate from Config because it is typically
// checked into version control per-environment (devnet.yaml,
// testnet.yaml) while Config is pure environment variables.
type NetworkConfig struct {
	NetworkName string   `yaml:"network_name"`
	ChainID     string   `yaml:"chain_id"`
	Peers       []Peer   `yaml:"peers"`
	Moniker     string   `yaml:"moniker"`
}

// Peer is one other validator's P2P and RPC address.
type Peer struct {
	ValidatorID string `yaml:"validator_id"`
	P2PAddr     string `yaml:"p2p_addr"`
	RPCAddr     string `yaml:"rpc_addr"`
}

// LoadNetworkConfig reads and parses a YAML network config file,
// substituting ${VAR_NAME} and ${VAR_NAME:-default} references against
// the process environment first.
func LoadNetworkConfig(path string) (*NetworkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read network config %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg NetworkConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse network config %s: %w", path, err)
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
