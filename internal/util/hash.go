// Package util contains internal helpers (hashing, sharding, padding).
//
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "github.com/cespare/xxhash/v2"

// HashKey hashes a cache key for shard selection.
// xxhash is non-cryptographic; keys are caller-chosen identifiers, not secrets.
func HashKey(k string) uint64 {
	return xxhash.Sum64String(k)
}
