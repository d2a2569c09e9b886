// Copyright 2025 Certen Protocol
//
// TxPublishSeedCommitment execution: record the commitment, then attempt
// to seal the seed once a supermajority has spoken.

package rngtx

import (
	"fmt"

	"github.com/certen/rng-validator/pkg/rngschema"
	"github.com/certen/rng-validator/pkg/seedcombine"
)

// TxPublishSeedCommitment carries one validator's seed contribution for
// the current round.
type TxPublishSeedCommitment struct {
	PubKeyHex string
	Value     string
}

// Verify checks the envelope's signature against its own embedded public
// key. It never inspects chain state.
func (tx TxPublishSeedCommitment) Verify(env SignedSeedCommitment) bool {
	return env.Verify()
}

// Execute runs the transaction against store, which must be a fork scoped
// to the block currently being applied. validatorCount is the current
// validator set size (N) as reported by the host configuration.
//
// Only a storage failure returns an error: falling short of the threshold
// is a silent wait, not an error.
func (tx TxPublishSeedCommitment) Execute(store *rngschema.Store, validatorCount int) error {
	if err := store.PutCommitment(tx.PubKeyHex, tx.Value); err != nil {
		return fmt.Errorf("put commitment: %w", err)
	}

	count, err := store.NumCommitments()
	if err != nil {
		return fmt.Errorf("count commitments: %w", err)
	}
	if !MeetsThreshold(count, validatorCount) {
		return nil
	}

	commitments, err := store.Commitments()
	if err != nil {
		return fmt.Errorf("read commitments: %w", err)
	}
	values := make([]string, 0, len(commitments))
	for _, v := range commitments {
		values = append(values, v)
	}
	sorted := seedcombine.Sorted(values)
	newSeed := seedcombine.Combine(sorted)

	oldSeed, hadSeed, err := store.Seed()
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}

	if err := store.SetSeed(newSeed[:]); err != nil {
		return fmt.Errorf("set seed: %w", err)
	}

	// Resolved open question: a re-derived seed that actually changes
	// value invalidates every VDF result collected so far, since those
	// results were computed against the old seed. Re-deriving to the
	// same bytes (e.g. a no-op re-commit) leaves VDF_RESULTS untouched.
	if !hadSeed || string(oldSeed) != string(newSeed[:]) {
		if err := store.ClearVdfResults(); err != nil {
			return fmt.Errorf("clear vdf results: %w", err)
		}
	}

	return nil
}
