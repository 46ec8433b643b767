// Package storage holds the shared Pebble wiring reused by the balance
// ledger, order store, and candle builder's historical store: the same
// tuned pebble.Options the teacher used for its account store, and the
// prefix-scan key helpers every one of those stores needs.
package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Open opens (or creates) a Pebble database at path with the cache/memtable
// sizing the teacher's account store used, reasonable for a single-node
// exchange core.
func Open(path string) (*pebble.DB, error) {
	opts := &pebble.Options{
		Cache:                     pebble.NewCache(128 << 20), // 128MB block cache
		MemTableSize:              64 << 20,                   // 64MB memtable
		MaxConcurrentCompactions:  func() int { return 3 },
		L0CompactionThreshold:     2,
		L0StopWritesThreshold:     12,
		LBaseMaxBytes:             64 << 20,
		MaxOpenFiles:              1000,
		BytesPerSync:              512 << 10,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open pebble db at %s: %w", path, err)
	}
	return db, nil
}

// UpperBound returns the exclusive upper bound for a lexicographic prefix
// scan over keys starting with prefix.
func UpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		bound[i]++
		if bound[i] != 0 {
			return bound[:i+1]
		}
	}
	return nil // prefix was all 0xff; unbounded scan
}
