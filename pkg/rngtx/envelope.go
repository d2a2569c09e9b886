// Copyright 2025 Certen Protocol
//
// Signed transaction envelopes. Both transaction kinds are authenticated
// the same way: sign the canonical payload bytes with the author's
// ed25519 key, embed the public key, and let verify() re-check the
// signature against that embedded key. CometBFT's own ed25519 package is
// used so the 32-byte public key matches the wire format exactly.

package rngtx

import (
	"fmt"

	"github.com/cometbft/cometbft/crypto/ed25519"
)

// Kind tags which of the two transaction kinds an envelope carries, per
// the service's declared type tags (0 = seed commitment, 1 = VDF result).
type Kind uint8

const (
	KindPublishSeedCommitment Kind = 0
	KindPublishVdfResult      Kind = 1
)

// SeedCommitmentPayload is the signed content of a TxPublishSeedCommitment.
type SeedCommitmentPayload struct {
	PubKey ed25519.PubKey
	Value  string
}

// Bytes returns the canonical byte encoding signed over by the author.
func (p SeedCommitmentPayload) Bytes() []byte {
	b := make([]byte, 0, len(p.PubKey)+len(p.Value))
	b = append(b, p.PubKey...)
	b = append(b, []byte(p.Value)...)
	return b
}

// VdfResultPayload is the signed content of a TxPublishVdfResult.
type VdfResultPayload struct {
	PubKey ed25519.PubKey
	Seed   [32]byte
	Value  string
}

// Bytes returns the canonical byte encoding signed over by the author.
func (p VdfResultPayload) Bytes() []byte {
	b := make([]byte, 0, len(p.PubKey)+len(p.Seed)+len(p.Value))
	b = append(b, p.PubKey...)
	b = append(b, p.Seed[:]...)
	b = append(b, []byte(p.Value)...)
	return b
}

// SignedSeedCommitment is a TxPublishSeedCommitment together with its
// author's signature over the payload.
type SignedSeedCommitment struct {
	Payload   SeedCommitmentPayload
	Signature []byte
}

// SignedVdfResult is a TxPublishVdfResult together with its author's
// signature over the payload.
type SignedVdfResult struct {
	Payload   VdfResultPayload
	Signature []byte
}

// SignSeedCommitment signs a seed commitment payload with priv, producing
// a ready-to-broadcast envelope.
func SignSeedCommitment(priv ed25519.PrivKey, pubKey ed25519.PubKey, value string) (SignedSeedCommitment, error) {
	payload := SeedCommitmentPayload{PubKey: pubKey, Value: value}
	sig, err := priv.Sign(payload.Bytes())
	if err != nil {
		return SignedSeedCommitment{}, fmt.Errorf("sign seed commitment: %w", err)
	}
	return SignedSeedCommitment{Payload: payload, Signature: sig}, nil
}

// SignVdfResult signs a VDF result payload with priv, producing a
// ready-to-broadcast envelope.
func SignVdfResult(priv ed25519.PrivKey, pubKey ed25519.PubKey, seed [32]byte, value string) (SignedVdfResult, error) {
	payload := VdfResultPayload{PubKey: pubKey, Seed: seed, Value: value}
	sig, err := priv.Sign(payload.Bytes())
	if err != nil {
		return SignedVdfResult{}, fmt.Errorf("sign vdf result: %w", err)
	}
	return SignedVdfResult{Payload: payload, Signature: sig}, nil
}

// Verify re-checks the embedded signature against the embedded public
// key. This is the only authentication check performed at execution
// time; the host envelope is responsible for rejecting the transaction
// before execution if this fails.
func (s SignedSeedCommitment) Verify() bool {
	if len(s.Payload.PubKey) != ed25519.PubKeySize {
		return false
	}
	return s.Payload.PubKey.VerifySignature(s.Payload.Bytes(), s.Signature)
}

// Verify re-checks the embedded signature against the embedded public
// key.
func (s SignedVdfResult) Verify() bool {
	if len(s.Payload.PubKey) != ed25519.PubKeySize {
		return false
	}
	return s.Payload.PubKey.VerifySignature(s.Payload.Bytes(), s.Signature)
}
