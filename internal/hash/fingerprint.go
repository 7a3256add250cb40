// Package hash provides stable 64-bit fingerprints for query descriptors.
package hash

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// Fingerprint hashes an ordered sequence of string parts into a single 64-bit value.
//
// Each part is hashed with xxh3 and chained into the next part's seed, so that
// ("ab", "c") and ("a", "bc") produce different fingerprints. The part count is
// folded in last to separate a trailing empty part from its absence.
//
// Parameters:
//   - parts: Canonical string parts, in significant order
//
// Returns:
//   - uint64: Stable fingerprint (identical across processes and runs)
//
// Example:
//
//	fp := hash.Fingerprint("items", "type==\"a\"")
func Fingerprint(parts ...string) uint64 {
	var h uint64
	for _, part := range parts {
		h = xxh3.HashStringSeed(part, h)
	}

	var lb [8]byte
	binary.LittleEndian.PutUint64(lb[:], uint64(len(parts)))

	return xxh3.HashSeed(lb[:], h)
}

// String hashes a single key without chaining.
func String(key string) uint64 {
	return xxh3.HashString(key)
}
