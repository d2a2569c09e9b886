// Copyright 2025 Certen Protocol
//
// Seed combiner: folds a validator set's published seed commitments into a
// single deterministic seed hash.

package seedcombine

import (
	"crypto/sha256"
	"sort"
)

// Combine concatenates commitments in the given order (no separator) and
// returns the SHA-256 hash of the resulting byte string. Callers MUST sort
// commitments ascending lexicographically before calling Combine so that the
// result does not depend on transaction-arrival order across replicas; use
// Sorted to do that.
func Combine(commitments []string) [32]byte {
	var buf []byte
	for _, c := range commitments {
		buf = append(buf, c...)
	}
	return sha256.Sum256(buf)
}

// Sorted returns a copy of commitments sorted ascending lexicographically.
// This is the single point of determinism for seed derivation across
// replicas: every replica must sort before combining.
func Sorted(commitments []string) []string {
	out := make([]string, len(commitments))
	copy(out, commitments)
	sort.Strings(out)
	return out
}
