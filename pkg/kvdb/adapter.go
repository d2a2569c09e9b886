// Copyright 2025 Certen Protocol
//
// KV adapter over CometBFT's database package.
//
// Generalized from a single Get/Set pass-through into a Get/Set/Delete/
// Iterate interface so the randomness schema can enumerate COMMITMENTS and
// VDF_RESULTS map entries deterministically (CometBFT's backing stores
// return keys in ascending lexicographic order).

package kvdb

import (
	dbm "github.com/cometbft/cometbft-db"
)

// KV is the minimal key-value contract the randomness schema needs.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Iterate calls fn once per key with the given prefix, in ascending
	// lexicographic key order, stopping early if fn returns an error.
	Iterate(prefix []byte, fn func(key, value []byte) error) error
}

// Adapter wraps a CometBFT dbm.DB and exposes it as a KV.
type Adapter struct {
	db dbm.DB
}

// NewAdapter creates a new Adapter for the given underlying DB.
func NewAdapter(db dbm.DB) *Adapter {
	return &Adapter{db: db}
}

// Get implements KV.Get.
func (a *Adapter) Get(key []byte) ([]byte, error) {
	if a.db == nil {
		return nil, nil
	}
	v, err := a.db.Get(key)
	if err != nil {
		return nil, err
	}
	// v may be nil if key not found - callers treat nil as "not present".
	return v, nil
}

// Set implements KV.Set, using SetSync for durable writes at commit time.
func (a *Adapter) Set(key, value []byte) error {
	if a.db == nil {
		return nil
	}
	return a.db.SetSync(key, value)
}

// Delete implements KV.Delete.
func (a *Adapter) Delete(key []byte) error {
	if a.db == nil {
		return nil
	}
	return a.db.DeleteSync(key)
}

// Iterate implements KV.Iterate over all keys sharing the given prefix.
func (a *Adapter) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	if a.db == nil {
		return nil
	}
	it, err := a.db.Iterator(prefix, prefixUpperBound(prefix))
	if err != nil {
		return err
	}
	defer it.Close()

	for ; it.Valid(); it.Next() {
		key := append([]byte(nil), it.Key()...)
		value := append([]byte(nil), it.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return it.Error()
}

// prefixUpperBound returns the smallest key that is strictly greater than
// every key sharing prefix, for use as an exclusive iterator upper bound. A
// prefix of all 0xff bytes (or empty) has no finite upper bound, so nil is
// returned to mean "iterate to the end of the keyspace".
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
