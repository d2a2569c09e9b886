// Copyright 2025 Certen Protocol
//
// Wire encoding for the two transaction kinds: a one-byte kind tag
// followed by a JSON-encoded payload and signature.

package rngtx

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cometbft/cometbft/crypto/ed25519"
)

type wireSeedCommitment struct {
	PubKey    string `json:"pub_key"`
	Value     string `json:"value"`
	Signature string `json:"signature"`
}

type wireVdfResult struct {
	PubKey    string `json:"pub_key"`
	Seed      string `json:"seed"`
	Value     string `json:"value"`
	Signature string `json:"signature"`
}

// EncodeSeedCommitment renders env as mempool-ready bytes: a kind tag
// followed by the JSON envelope.
func EncodeSeedCommitment(env SignedSeedCommitment) ([]byte, error) {
	w := wireSeedCommitment{
		PubKey:    hex.EncodeToString(env.Payload.PubKey),
		Value:     env.Payload.Value,
		Signature: hex.EncodeToString(env.Signature),
	}
	body, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal seed commitment: %w", err)
	}
	return append([]byte{byte(KindPublishSeedCommitment)}, body...), nil
}

// EncodeVdfResult renders env as mempool-ready bytes.
func EncodeVdfResult(env SignedVdfResult) ([]byte, error) {
	w := wireVdfResult{
		PubKey:    hex.EncodeToString(env.Payload.PubKey),
		Seed:      hex.EncodeToString(env.Payload.Seed[:]),
		Value:     env.Payload.Value,
		Signature: hex.EncodeToString(env.Signature),
	}
	body, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal vdf result: %w", err)
	}
	return append([]byte{byte(KindPublishVdfResult)}, body...), nil
}

// DecodedTx is whichever of the two envelope kinds Decode recovered.
type DecodedTx struct {
	Kind         Kind
	SeedCommit   SignedSeedCommitment
	VdfResult    SignedVdfResult
}

// Decode parses raw mempool bytes back into a typed, signed envelope. It
// performs no signature verification; call Verify() on the result kind
// separately.
func Decode(raw []byte) (DecodedTx, error) {
	if len(raw) < 1 {
		return DecodedTx{}, fmt.Errorf("empty transaction")
	}
	kind := Kind(raw[0])
	body := raw[1:]

	switch kind {
	case KindPublishSeedCommitment:
		var w wireSeedCommitment
		if err := json.Unmarshal(body, &w); err != nil {
			return DecodedTx{}, fmt.Errorf("unmarshal seed commitment: %w", err)
		}
		pubKey, sig, err := decodeHexFields(w.PubKey, w.Signature)
		if err != nil {
			return DecodedTx{}, err
		}
		return DecodedTx{
			Kind: kind,
			SeedCommit: SignedSeedCommitment{
				Payload:   SeedCommitmentPayload{PubKey: ed25519.PubKey(pubKey), Value: w.Value},
				Signature: sig,
			},
		}, nil

	case KindPublishVdfResult:
		var w wireVdfResult
		if err := json.Unmarshal(body, &w); err != nil {
			return DecodedTx{}, fmt.Errorf("unmarshal vdf result: %w", err)
		}
		pubKey, sig, err := decodeHexFields(w.PubKey, w.Signature)
		if err != nil {
			return DecodedTx{}, err
		}
		seedBytes, err := hex.DecodeString(w.Seed)
		if err != nil || len(seedBytes) != 32 {
			return DecodedTx{}, fmt.Errorf("decode seed: invalid hex or length")
		}
		var seed [32]byte
		copy(seed[:], seedBytes)
		return DecodedTx{
			Kind: kind,
			VdfResult: SignedVdfResult{
				Payload:   VdfResultPayload{PubKey: ed25519.PubKey(pubKey), Seed: seed, Value: w.Value},
				Signature: sig,
			},
		}, nil

	default:
		return DecodedTx{}, fmt.Errorf("unknown transaction kind %d", kind)
	}
}

func decodeHexFields(pubKeyHex, sigHex string) (pubKey, sig []byte, err error) {
	pubKey, err = hex.DecodeString(pubKeyHex)
	if err != nil || len(pubKey) != ed25519.PubKeySize {
		return nil, nil, fmt.Errorf("decode pub_key: invalid hex or length")
	}
	sig, err = hex.DecodeString(sigHex)
	if err != nil {
		return nil, nil, fmt.Errorf("decode signature: %w", err)
	}
	return pubKey, sig, nil
}
