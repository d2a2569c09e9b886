// Copyright 2025 Certen Protocol
//
// Service configuration for a single randomness validator node, loaded
// from environment variables with defaults.

package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all configuration for a randomness validator node.
type Config struct {
	// Identity
	ValidatorID string
	HomeDir     string // CometBFT home directory (config/, data/)

	// HTTP surface
	ListenAddr  string // ingress: /tx, /rng/state, /rng/history, /health
	MetricsAddr string // /metrics
	HealthAddr  string // loaded but not used by cmd/rngvalidatord; /health is served on ListenAddr

	// CometBFT
	RPCAddr string // local node RPC, e.g. tcp://127.0.0.1:26657
	ChainID string

	// VDF worker pool
	VdfWorkerConcurrency int

	// PermissiveFinalisation, when true, finalises RANDOMNESS on the last
	// VDF result received once a supermajority has submitted, rather than
	// requiring bit-equality among the supermajority's results.
	PermissiveFinalisation bool

	// Audit log (optional)
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int // seconds
	DatabaseMaxLifetime int // seconds
	AuditLogEnabled     bool

	// Firestore mirror (optional, best-effort)
	FirestoreEnabled        bool
	FirebaseProjectID       string
	FirebaseCredentialsFile string

	LogLevel string
}

// Load reads configuration from environment variables. Network/identity
// settings default to something runnable locally; credentials and
// feature toggles do not silently enable.
func Load() (*Config, error) {
	cfg := &Config{
		ValidatorID: getEnv("VALIDATOR_ID", "validator-default"),
		HomeDir:     getEnv("RNG_HOME_DIR", "./data"),

		ListenAddr:  getEnv("RNG_LISTEN_ADDR", "0.0.0.0:8080"),
		MetricsAddr: getEnv("RNG_METRICS_ADDR", "0.0.0.0:9090"),
		HealthAddr:  getEnv("RNG_HEALTH_ADDR", "0.0.0.0:8081"),

		RPCAddr: getEnv("COMETBFT_RPC_ADDR", "tcp://127.0.0.1:26657"),
		ChainID: getEnv("COMETBFT_CHAIN_ID", "rng-validator"),

		VdfWorkerConcurrency: getEnvInt("VDF_WORKER_CONCURRENCY", 2),

		PermissiveFinalisation: getEnvBool("RNG_PERMISSIVE_FINALISATION", false),

		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 10),
		DatabaseMinConns:    getEnvInt("DATABASE_MIN_CONNS", 2),
		DatabaseMaxIdleTime: getEnvInt("DATABASE_MAX_IDLE_TIME", 300),
		DatabaseMaxLifetime: getEnvInt("DATABASE_MAX_LIFETIME", 3600),
		AuditLogEnabled:     getEnvBool("AUDIT_LOG_ENABLED", false),

		FirestoreEnabled:        getEnvBool("FIRESTORE_ENABLED", false),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate checks invariants that must hold before the node starts,
// accumulating every violation rather than failing on the first.
func (c *Config) Validate() error {
	var errors []string

	if c.ValidatorID == "" {
		errors = append(errors, "VALIDATOR_ID is required but not set")
	}
	if c.VdfWorkerConcurrency < 1 {
		errors = append(errors, "VDF_WORKER_CONCURRENCY must be at least 1")
	}
	if c.AuditLogEnabled && c.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required when AUDIT_LOG_ENABLED is true")
	}
	if c.FirestoreEnabled && c.FirebaseProjectID == "" {
		errors = append(errors, "FIREBASE_PROJECT_ID is required when FIRESTORE_ENABLED is true")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}
	return nil
}

// DatabaseConnMaxIdleTime returns DatabaseMaxIdleTime as a Duration.
func (c *Config) DatabaseConnMaxIdleTime() time.Duration {
	return time.Duration(c.DatabaseMaxIdleTime) * time.Second
}

// DatabaseConnMaxLifetime returns DatabaseMaxLifetime as a Duration.
func (c *Config) DatabaseConnMaxLifetime() time.Duration {
	return time.Duration(c.DatabaseMaxLifetime) * time.Second
}
