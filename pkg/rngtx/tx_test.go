// Copyright 2025 Certen Protocol

package rngtx

import (
	"testing"

	"github.com/certen/rng-validator/pkg/kvdb"
	"github.com/certen/rng-validator/pkg/rngschema"
	"github.com/certen/rng-validator/pkg/vdf"
)

func newStore(t *testing.T) *rngschema.Store {
	t.Helper()
	return rngschema.New(kvdb.NewMemoryKV())
}

// TestFullRoundFinalisesAndClearsState walks the happy path for a
// four-validator round: three commitments seal the seed, three matching
// VDF results finalise the round and clear all three round-scoped cells.
func TestFullRoundFinalisesAndClearsState(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full-difficulty VDF evaluation in short mode")
	}
	store := newStore(t)
	const n = 4

	for _, c := range []TxPublishSeedCommitment{
		{PubKeyHex: "v0", Value: "111"},
		{PubKeyHex: "v1", Value: "222"},
	} {
		if err := c.Execute(store, n); err != nil {
			t.Fatalf("commit %s: %v", c.PubKeyHex, err)
		}
		if _, hasSeed, _ := store.Seed(); hasSeed {
			t.Fatalf("seed should not be sealed before threshold")
		}
	}

	if err := (TxPublishSeedCommitment{PubKeyHex: "v2", Value: "333"}).Execute(store, n); err != nil {
		t.Fatalf("third commit: %v", err)
	}
	seedBytes, hasSeed, err := store.Seed()
	if err != nil || !hasSeed {
		t.Fatalf("expected seed sealed after third commit, err=%v hasSeed=%v", err, hasSeed)
	}
	var seed [32]byte
	copy(seed[:], seedBytes)

	y, ok := vdf.Evaluate(seed[:])
	if !ok {
		t.Fatalf("vdf evaluation failed for sealed seed")
	}

	vdfTx := func(pk string) TxPublishVdfResult {
		return TxPublishVdfResult{PubKeyHex: pk, Seed: seed, Value: y}
	}

	cfg := Config{}
	if err := vdfTx("v0").Execute(store, n, cfg); err != nil {
		t.Fatalf("vdf v0: %v", err)
	}
	if err := vdfTx("v1").Execute(store, n, cfg); err != nil {
		t.Fatalf("vdf v1: %v", err)
	}
	if _, ok, _ := store.Randomness(); ok {
		t.Fatalf("round should not finalise before threshold")
	}

	if err := vdfTx("v2").Execute(store, n, cfg); err != nil {
		t.Fatalf("vdf v2: %v", err)
	}

	randomness, hasRandomness, err := store.Randomness()
	if err != nil || !hasRandomness {
		t.Fatalf("expected randomness set after finalisation, err=%v ok=%v", err, hasRandomness)
	}
	if len(randomness) != 32 {
		t.Fatalf("expected 32-byte randomness, got %d bytes", len(randomness))
	}

	if _, hasSeed, _ := store.Seed(); hasSeed {
		t.Fatalf("seed should be cleared after finalisation")
	}
	if n, _ := store.NumVdfResults(); n != 0 {
		t.Fatalf("vdf results should be cleared after finalisation, got %d", n)
	}
	if n, _ := store.NumCommitments(); n != 0 {
		t.Fatalf("commitments should be cleared after finalisation, got %d", n)
	}
}

// TestStaleVdfResultAfterFinalisationIsNoOp pins the stale-VDF-tx
// behavior: once SEED has been cleared by finalisation, a late VDF
// result referencing the old seed is a pure no-op.
func TestStaleVdfResultAfterFinalisationIsNoOp(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full-difficulty VDF evaluation in short mode")
	}
	store := newStore(t)
	const n = 4

	for i, pk := range []string{"v0", "v1", "v2"} {
		val := []string{"111", "222", "333"}[i]
		if err := (TxPublishSeedCommitment{PubKeyHex: pk, Value: val}).Execute(store, n); err != nil {
			t.Fatalf("commit %s: %v", pk, err)
		}
	}
	seedBytes, _, _ := store.Seed()
	var seed [32]byte
	copy(seed[:], seedBytes)
	y, _ := vdf.Evaluate(seed[:])

	cfg := Config{}
	for _, pk := range []string{"v0", "v1", "v2"} {
		if err := (TxPublishVdfResult{PubKeyHex: pk, Seed: seed, Value: y}).Execute(store, n, cfg); err != nil {
			t.Fatalf("vdf %s: %v", pk, err)
		}
	}

	before, err := snapshotState(store)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	staleTx := TxPublishVdfResult{PubKeyHex: "v3", Seed: seed, Value: y}
	if err := staleTx.Execute(store, n, cfg); err != nil {
		t.Fatalf("stale vdf tx: %v", err)
	}

	after, err := snapshotState(store)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if before != after {
		t.Fatalf("state changed after a stale VDF tx: before=%+v after=%+v", before, after)
	}
}

// TestVdfResultAgainstWrongSeedIsNoOp pins the wrong-seed no-op.
func TestVdfResultAgainstWrongSeedIsNoOp(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full-difficulty VDF evaluation in short mode")
	}
	store := newStore(t)
	const n = 4
	for i, pk := range []string{"v0", "v1", "v2"} {
		val := []string{"111", "222", "333"}[i]
		if err := (TxPublishSeedCommitment{PubKeyHex: pk, Value: val}).Execute(store, n); err != nil {
			t.Fatalf("commit %s: %v", pk, err)
		}
	}
	seedBytes, _, _ := store.Seed()
	var wrongSeed [32]byte
	copy(wrongSeed[:], seedBytes)
	wrongSeed[0] ^= 0xFF

	before, err := snapshotState(store)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	y, _ := vdf.Evaluate(wrongSeed[:])
	if err := (TxPublishVdfResult{PubKeyHex: "v0", Seed: wrongSeed, Value: y}).Execute(store, n, Config{}); err != nil {
		t.Fatalf("vdf with wrong seed: %v", err)
	}

	after, err := snapshotState(store)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if before != after {
		t.Fatalf("state changed after a wrong-seed VDF tx: before=%+v after=%+v", before, after)
	}
}

// TestInvalidVdfValueIsNoOp pins the invalid-VDF-value no-op.
func TestInvalidVdfValueIsNoOp(t *testing.T) {
	store := newStore(t)
	const n = 4
	for i, pk := range []string{"v0", "v1", "v2"} {
		val := []string{"111", "222", "333"}[i]
		if err := (TxPublishSeedCommitment{PubKeyHex: pk, Value: val}).Execute(store, n); err != nil {
			t.Fatalf("commit %s: %v", pk, err)
		}
	}
	seedBytes, _, _ := store.Seed()
	var seed [32]byte
	copy(seed[:], seedBytes)

	before, err := snapshotState(store)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if err := (TxPublishVdfResult{PubKeyHex: "v0", Seed: seed, Value: "7"}).Execute(store, n, Config{}); err != nil {
		t.Fatalf("invalid vdf tx: %v", err)
	}

	after, err := snapshotState(store)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if before != after {
		t.Fatalf("state changed after an invalid VDF tx: before=%+v after=%+v", before, after)
	}
}

// TestLateCommitmentChangingSeedClearsVdfResults pins the
// commitment-overwrite-past-threshold behavior: a re-derived seed that
// actually changes clears VDF_RESULTS, while COMMITMENTS keeps its new
// value.
func TestLateCommitmentChangingSeedClearsVdfResults(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full-difficulty VDF evaluation in short mode")
	}
	store := newStore(t)
	const n = 4
	for i, pk := range []string{"v0", "v1", "v2"} {
		val := []string{"111", "222", "333"}[i]
		if err := (TxPublishSeedCommitment{PubKeyHex: pk, Value: val}).Execute(store, n); err != nil {
			t.Fatalf("commit %s: %v", pk, err)
		}
	}
	seedBytes, _, _ := store.Seed()
	var firstSeed [32]byte
	copy(firstSeed[:], seedBytes)

	y, _ := vdf.Evaluate(firstSeed[:])
	if err := (TxPublishVdfResult{PubKeyHex: "v0", Seed: firstSeed, Value: y}).Execute(store, n, Config{}); err != nil {
		t.Fatalf("vdf v0: %v", err)
	}
	if n, _ := store.NumVdfResults(); n != 1 {
		t.Fatalf("expected 1 vdf result recorded, got %d", n)
	}

	if err := (TxPublishSeedCommitment{PubKeyHex: "v0", Value: "999"}).Execute(store, n); err != nil {
		t.Fatalf("re-commit v0: %v", err)
	}

	commitments, err := store.Commitments()
	if err != nil {
		t.Fatalf("commitments: %v", err)
	}
	if commitments["v0"] != "999" {
		t.Fatalf("expected v0's commitment overwritten to 999, got %q", commitments["v0"])
	}

	newSeedBytes, hasSeed, err := store.Seed()
	if err != nil || !hasSeed {
		t.Fatalf("expected seed still sealed after re-commit, err=%v hasSeed=%v", err, hasSeed)
	}
	if string(newSeedBytes) == string(firstSeed[:]) {
		t.Fatalf("expected seed to change after re-committing with a new value")
	}

	if vn, _ := store.NumVdfResults(); vn != 0 {
		t.Fatalf("expected vdf results cleared once the seed changed, got %d", vn)
	}
}

// TestIdempotentReCommit covers the round-trip property: applying the
// same commitment twice in a row leaves COMMITMENTS unchanged.
func TestIdempotentReCommit(t *testing.T) {
	store := newStore(t)
	const n = 4

	tx := TxPublishSeedCommitment{PubKeyHex: "v0", Value: "111"}
	if err := tx.Execute(store, n); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	before, err := store.Commitments()
	if err != nil {
		t.Fatalf("commitments: %v", err)
	}
	if err := tx.Execute(store, n); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	after, err := store.Commitments()
	if err != nil {
		t.Fatalf("commitments: %v", err)
	}
	if len(before) != len(after) || before["v0"] != after["v0"] {
		t.Fatalf("expected commitments unchanged after re-issuing the same value")
	}
}

func TestNSingleValidatorThreshold(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full-difficulty VDF evaluation in short mode")
	}
	store := newStore(t)
	const n = 1

	if err := (TxPublishSeedCommitment{PubKeyHex: "solo", Value: "42"}).Execute(store, n); err != nil {
		t.Fatalf("commit: %v", err)
	}
	seedBytes, hasSeed, err := store.Seed()
	if err != nil || !hasSeed {
		t.Fatalf("expected single commitment to seal the seed for N=1, err=%v hasSeed=%v", err, hasSeed)
	}

	var seed [32]byte
	copy(seed[:], seedBytes)
	y, _ := vdf.Evaluate(seed[:])
	if err := (TxPublishVdfResult{PubKeyHex: "solo", Seed: seed, Value: y}).Execute(store, n, Config{}); err != nil {
		t.Fatalf("vdf: %v", err)
	}
	if _, ok, _ := store.Randomness(); !ok {
		t.Fatalf("expected single vdf result to finalise the round for N=1")
	}
}

type stateSnapshot struct {
	CommitmentsRoot [32]byte
	NumVdfResults   int
	SeedHex         string
	RandomnessHex   string
}

func snapshotState(store *rngschema.Store) (stateSnapshot, error) {
	h, err := store.StateHash()
	if err != nil {
		return stateSnapshot{}, err
	}
	n, err := store.NumVdfResults()
	if err != nil {
		return stateSnapshot{}, err
	}
	seed, _, err := store.Seed()
	if err != nil {
		return stateSnapshot{}, err
	}
	randomness, _, err := store.Randomness()
	if err != nil {
		return stateSnapshot{}, err
	}
	return stateSnapshot{
		CommitmentsRoot: h.CommitmentsRoot,
		NumVdfResults:   n,
		SeedHex:         string(seed),
		RandomnessHex:   string(randomness),
	}, nil
}
