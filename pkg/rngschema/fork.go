// Copyright 2025 Certen Protocol
//
// Copy-on-write fork over a KV snapshot. A Fork is owned exclusively by the
// block whose transactions execute against it; nothing is visible to other
// replicas or to later blocks until Commit flushes it into the underlying store.

package rngschema

import (
	"sort"
	"strings"

	"github.com/certen/rng-validator/pkg/kvdb"
)

// Fork implements kvdb.KV as a copy-on-write overlay over base. Reads fall
// through to base when the key has not been written or deleted locally.
type Fork struct {
	base    kvdb.KV
	writes  map[string][]byte
	deleted map[string]bool
}

// NewFork creates a Fork over base. base is never mutated by the fork; only
// Commit mutates a destination store.
func NewFork(base kvdb.KV) *Fork {
	return &Fork{
		base:    base,
		writes:  make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// Get implements kvdb.KV.Get.
func (f *Fork) Get(key []byte) ([]byte, error) {
	k := string(key)
	if f.deleted[k] {
		return nil, nil
	}
	if v, ok := f.writes[k]; ok {
		return append([]byte(nil), v...), nil
	}
	return f.base.Get(key)
}

// Set implements kvdb.KV.Set.
func (f *Fork) Set(key, value []byte) error {
	k := string(key)
	delete(f.deleted, k)
	f.writes[k] = append([]byte(nil), value...)
	return nil
}

// Delete implements kvdb.KV.Delete.
func (f *Fork) Delete(key []byte) error {
	k := string(key)
	delete(f.writes, k)
	f.deleted[k] = true
	return nil
}

// Iterate implements kvdb.KV.Iterate, merging the base snapshot with the
// fork's local overlay and visiting keys in ascending lexicographic order.
func (f *Fork) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)
	if err := f.base.Iterate(prefix, func(k, v []byte) error {
		merged[string(k)] = append([]byte(nil), v...)
		return nil
	}); err != nil {
		return err
	}

	p := string(prefix)
	for k := range f.deleted {
		if strings.HasPrefix(k, p) {
			delete(merged, k)
		}
	}
	for k, v := range f.writes {
		if strings.HasPrefix(k, p) {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := fn([]byte(k), merged[k]); err != nil {
			return err
		}
	}
	return nil
}

// Commit flushes every local write and delete into dst, in deterministic
// key order. It does not clear the fork; forks are scoped to a single block
// and discarded afterwards.
func (f *Fork) Commit(dst kvdb.KV) error {
	keys := make([]string, 0, len(f.writes)+len(f.deleted))
	for k := range f.writes {
		keys = append(keys, k)
	}
	for k := range f.deleted {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true

		if f.deleted[k] {
			if err := dst.Delete([]byte(k)); err != nil {
				return err
			}
			continue
		}
		if v, ok := f.writes[k]; ok {
			if err := dst.Set([]byte(k), v); err != nil {
				return err
			}
		}
	}
	return nil
}
