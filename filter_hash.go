package easycache

import (
	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// HashFunc returns 64 hash bits for an item. The low and high 32-bit halves
// seed the double hashing scheme.
type HashFunc func(item []byte) uint64

// Murmur3 returns the first 64 bits (little-endian) of the 128-bit x64
// MurmurHash3 with seed 0. This is the default and matches filters written
// by other clients that use Guava-style hashing.
func Murmur3(item []byte) uint64 {
	h1, _ := murmur3.Sum128(item)
	return h1
}

// XXHash is a faster alternative. Filters written with one HashFunc cannot be
// read with another.
func XXHash(item []byte) uint64 { return xxhash.Sum64(item) }
