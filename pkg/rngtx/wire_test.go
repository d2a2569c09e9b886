// Copyright 2025 Certen Protocol

package rngtx

import (
	"testing"

	"github.com/cometbft/cometbft/crypto/ed25519"
)

func TestSeedCommitmentWireRoundTrip(t *testing.T) {
	priv := ed25519.GenPrivKey()
	pub := priv.PubKey().(ed25519.PubKey)

	env, err := SignSeedCommitment(priv, pub, "42")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	raw, err := EncodeSeedCommitment(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != KindPublishSeedCommitment {
		t.Fatalf("expected seed commitment kind, got %d", decoded.Kind)
	}
	if decoded.SeedCommit.Payload.Value != "42" {
		t.Fatalf("expected value 42, got %q", decoded.SeedCommit.Payload.Value)
	}
	if !decoded.SeedCommit.Verify() {
		t.Fatalf("expected decoded envelope to verify")
	}
}

func TestVdfResultWireRoundTrip(t *testing.T) {
	priv := ed25519.GenPrivKey()
	pub := priv.PubKey().(ed25519.PubKey)
	var seed [32]byte
	seed[5] = 0x42

	env, err := SignVdfResult(priv, pub, seed, "987654321")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	raw, err := EncodeVdfResult(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != KindPublishVdfResult {
		t.Fatalf("expected vdf result kind, got %d", decoded.Kind)
	}
	if decoded.VdfResult.Payload.Seed != seed {
		t.Fatalf("seed mismatch after round trip")
	}
	if !decoded.VdfResult.Verify() {
		t.Fatalf("expected decoded envelope to verify")
	}
}

func TestDecodeRejectsEmptyAndUnknownKind(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatalf("expected error decoding empty transaction")
	}
	if _, err := Decode([]byte{0xFF}); err == nil {
		t.Fatalf("expected error decoding unknown kind")
	}
}
