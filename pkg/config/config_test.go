// Copyright 2025 Certen Protocol

package config

import "testing"

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("VALIDATOR_ID", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ValidatorID != "validator-default" {
		t.Fatalf("expected default validator id, got %q", cfg.ValidatorID)
	}
	if cfg.VdfWorkerConcurrency != 2 {
		t.Fatalf("expected default concurrency 2, got %d", cfg.VdfWorkerConcurrency)
	}
}

func TestValidateRequiresDatabaseURLWhenAuditLogEnabled(t *testing.T) {
	cfg := &Config{ValidatorID: "v1", VdfWorkerConcurrency: 1, AuditLogEnabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error when audit log enabled without DATABASE_URL")
	}
}

func TestValidateRequiresFirebaseProjectIDWhenFirestoreEnabled(t *testing.T) {
	cfg := &Config{ValidatorID: "v1", VdfWorkerConcurrency: 1, FirestoreEnabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error when firestore enabled without project id")
	}
}

func TestValidatePasses(t *testing.T) {
	cfg := &Config{ValidatorID: "v1", VdfWorkerConcurrency: 1}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}
