// Copyright 2025 Certen Protocol
//
// Schema / storage view: typed accessors over the replicated state backing
// the randomness service, a plain KV with a Merkle-rooted index for
// COMMITMENTS.

package rngschema

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/certen/rng-validator/pkg/kvdb"
	"github.com/certen/rng-validator/pkg/merkle"
)

// Store is a read/write view over a KV (a raw Adapter/MemoryKV snapshot, or
// a Fork scoped to one in-flight block). Every method is safe to call on
// either a read-only snapshot (in which case the mutating methods are
// simply never invoked) or a writable fork.
type Store struct {
	kv kvdb.KV
}

// New wraps kv in a Store.
func New(kv kvdb.KV) *Store {
	return &Store{kv: kv}
}

// Commitments returns every validator public key (hex) mapped to its
// published commitment value for the current round.
func (s *Store) Commitments() (map[string]string, error) {
	out := make(map[string]string)
	err := s.kv.Iterate(commitmentsPrefix(), func(k, v []byte) error {
		pk := strings.TrimPrefix(string(k), commitmentsNS+".")
		out[pk] = string(v)
		return nil
	})
	return out, err
}

// NumCommitments returns the count of present COMMITMENTS entries.
func (s *Store) NumCommitments() (int, error) {
	m, err := s.Commitments()
	return len(m), err
}

// HasCommitment reports whether pubKeyHex has an entry in COMMITMENTS.
func (s *Store) HasCommitment(pubKeyHex string) (bool, error) {
	v, err := s.kv.Get(commitmentKey(pubKeyHex))
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// PutCommitment inserts or overwrites COMMITMENTS[pubKeyHex] := value.
func (s *Store) PutCommitment(pubKeyHex, value string) error {
	return s.kv.Set(commitmentKey(pubKeyHex), []byte(value))
}

// ClearCommitments wipes every entry in COMMITMENTS.
func (s *Store) ClearCommitments() error {
	m, err := s.Commitments()
	if err != nil {
		return err
	}
	for pk := range m {
		if err := s.kv.Delete(commitmentKey(pk)); err != nil {
			return err
		}
	}
	return nil
}

// VdfResults returns every validator public key (hex) mapped to its
// published VDF output for the current round.
func (s *Store) VdfResults() (map[string]string, error) {
	out := make(map[string]string)
	err := s.kv.Iterate(vdfResultsPrefix(), func(k, v []byte) error {
		pk := strings.TrimPrefix(string(k), vdfResultsNS+".")
		out[pk] = string(v)
		return nil
	})
	return out, err
}

// NumVdfResults returns the count of present VDF_RESULTS entries.
func (s *Store) NumVdfResults() (int, error) {
	m, err := s.VdfResults()
	return len(m), err
}

// PutVdfResult inserts or overwrites VDF_RESULTS[pubKeyHex] := value.
func (s *Store) PutVdfResult(pubKeyHex, value string) error {
	return s.kv.Set(vdfResultKey(pubKeyHex), []byte(value))
}

// ClearVdfResults wipes every entry in VDF_RESULTS.
func (s *Store) ClearVdfResults() error {
	m, err := s.VdfResults()
	if err != nil {
		return err
	}
	for pk := range m {
		if err := s.kv.Delete(vdfResultKey(pk)); err != nil {
			return err
		}
	}
	return nil
}

// Seed returns the current round's combined seed hash, if one is set.
func (s *Store) Seed() ([]byte, bool, error) {
	v, err := s.kv.Get([]byte(SeedKey))
	if err != nil {
		return nil, false, err
	}
	return v, v != nil, nil
}

// SetSeed sets the current round's combined seed hash.
func (s *Store) SetSeed(seed []byte) error {
	return s.kv.Set([]byte(SeedKey), seed)
}

// ClearSeed removes the current round's combined seed hash.
func (s *Store) ClearSeed() error {
	return s.kv.Delete([]byte(SeedKey))
}

// Randomness returns the most recently agreed random value, if any.
func (s *Store) Randomness() ([]byte, bool, error) {
	v, err := s.kv.Get([]byte(RandomnessKey))
	if err != nil {
		return nil, false, err
	}
	return v, v != nil, nil
}

// SetRandomness overwrites the most recently agreed random value.
func (s *Store) SetRandomness(value []byte) error {
	return s.kv.Set([]byte(RandomnessKey), value)
}

// StateHash is the ordered triple mixed into the block header by the host:
// Merkle root of COMMITMENTS, hash of SEED, hash of RANDOMNESS.
type StateHash struct {
	CommitmentsRoot [32]byte
	SeedHash        [32]byte
	RandomnessHash  [32]byte
}

// StateHash computes the service's state-hash contribution. VDF_RESULTS is
// intentionally excluded (see design notes on VDF_RESULTS exclusion).
func (s *Store) StateHash() (StateHash, error) {
	root, err := s.CommitmentsMerkleRoot()
	if err != nil {
		return StateHash{}, fmt.Errorf("commitments merkle root: %w", err)
	}
	seed, _, err := s.Seed()
	if err != nil {
		return StateHash{}, fmt.Errorf("read seed: %w", err)
	}
	randomness, _, err := s.Randomness()
	if err != nil {
		return StateHash{}, fmt.Errorf("read randomness: %w", err)
	}
	return StateHash{
		CommitmentsRoot: root,
		SeedHash:        sha256.Sum256(seed),
		RandomnessHash:  sha256.Sum256(randomness),
	}, nil
}

// CommitmentsMerkleRoot builds a Merkle tree over every COMMITMENTS entry
// (leaf = hash of "pubkey=value") and returns its root. An empty map
// produces the zero root.
func (s *Store) CommitmentsMerkleRoot() ([32]byte, error) {
	m, err := s.Commitments()
	if err != nil {
		return [32]byte{}, err
	}
	if len(m) == 0 {
		return [32]byte{}, nil
	}

	keys := sortedKeys(m)
	leaves := make([][]byte, 0, len(keys))
	for _, k := range keys {
		h := sha256.Sum256([]byte(k + "=" + m[k]))
		leaves = append(leaves, h[:])
	}

	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		return [32]byte{}, err
	}
	var root [32]byte
	copy(root[:], tree.Root())
	return root, nil
}

// CommitmentProof returns a Merkle inclusion proof that pubKeyHex's current
// commitment is part of COMMITMENTS, for clients that want to verify a
// single entry without fetching the whole map.
func (s *Store) CommitmentProof(pubKeyHex string) (*merkle.InclusionProof, error) {
	m, err := s.Commitments()
	if err != nil {
		return nil, err
	}
	keys := sortedKeys(m)

	leaves := make([][]byte, 0, len(keys))
	index := -1
	for i, k := range keys {
		h := sha256.Sum256([]byte(k + "=" + m[k]))
		leaves = append(leaves, h[:])
		if k == pubKeyHex {
			index = i
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("no commitment recorded for %s", pubKeyHex)
	}

	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		return nil, err
	}
	return tree.GenerateProof(index)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
