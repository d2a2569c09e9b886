// Copyright 2025 Certen Protocol
//
// TxPublishVdfResult execution: record the VDF output, then finalise
// RANDOMNESS once a supermajority agrees on its value. Finalisation is
// strict bit-equality by default; see Config.PermissiveFinalisation for
// the last-writer-wins alternative.

package rngtx

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/certen/rng-validator/pkg/rngschema"
	"github.com/certen/rng-validator/pkg/vdf"
)

// TxPublishVdfResult carries one validator's VDF evaluation of the
// current round's SEED.
type TxPublishVdfResult struct {
	PubKeyHex string
	Seed      [32]byte
	Value     string
}

// Verify checks the envelope's signature against its own embedded public
// key. It never inspects chain state.
func (tx TxPublishVdfResult) Verify(env SignedVdfResult) bool {
	return env.Verify()
}

// Execute runs the transaction against store, which must be a fork scoped
// to the block currently being applied. Every invalidity (no seed yet,
// stale seed, bad VDF proof) is a silent no-op, per the service's
// error-handling design: only a storage failure returns an error.
func (tx TxPublishVdfResult) Execute(store *rngschema.Store, validatorCount int, cfg Config) error {
	currentSeed, hasSeed, err := store.Seed()
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	if !hasSeed {
		return nil
	}
	if !bytes.Equal(currentSeed, tx.Seed[:]) {
		return nil
	}
	if !vdf.Verify(tx.Seed[:], tx.Value) {
		return nil
	}

	if err := store.PutVdfResult(tx.PubKeyHex, tx.Value); err != nil {
		return fmt.Errorf("put vdf result: %w", err)
	}

	count, err := store.NumVdfResults()
	if err != nil {
		return fmt.Errorf("count vdf results: %w", err)
	}
	if !MeetsThreshold(count, validatorCount) {
		return nil
	}

	canonical := tx.Value
	if !cfg.PermissiveFinalisation {
		results, err := store.VdfResults()
		if err != nil {
			return fmt.Errorf("read vdf results: %w", err)
		}
		winner, ok := majorityValue(results, validatorCount)
		if !ok {
			// Threshold in raw count was crossed but no single value yet
			// holds a bit-identical supermajority; wait for more results.
			return nil
		}
		canonical = winner
	}

	randomness := sha256.Sum256([]byte(canonical))
	if err := store.SetRandomness(randomness[:]); err != nil {
		return fmt.Errorf("set randomness: %w", err)
	}
	if err := store.ClearSeed(); err != nil {
		return fmt.Errorf("clear seed: %w", err)
	}
	if err := store.ClearVdfResults(); err != nil {
		return fmt.Errorf("clear vdf results: %w", err)
	}
	if err := store.ClearCommitments(); err != nil {
		return fmt.Errorf("clear commitments: %w", err)
	}
	return nil
}

// majorityValue returns the value holding a bit-identical supermajority
// among results, if any.
func majorityValue(results map[string]string, validatorCount int) (string, bool) {
	counts := make(map[string]int, len(results))
	for _, v := range results {
		counts[v]++
	}
	for v, c := range counts {
		if MeetsThreshold(c, validatorCount) {
			return v, true
		}
	}
	return "", false
}
