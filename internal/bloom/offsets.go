// Package bloom holds the bit addressing shared by the store-backed and the
// process-local Bloom filters.
package bloom

// Offsets derives k offsets from one 64-bit hash:
// offset_i = (h1 + i*h2) mod m for i in 1..k, in wrapping 32-bit arithmetic,
// with negative combinations bit-flipped first. dst is reused when it has room.
func Offsets(h64 uint64, k int, m int64, dst []int64) []int64 {
	hash1 := int32(h64)
	hash2 := int32(h64 >> 32)
	dst = dst[:0]
	for i := int32(1); i <= int32(k); i++ {
		combined := hash1 + i*hash2
		if combined < 0 {
			combined = ^combined
		}
		dst = append(dst, int64(combined)%m)
	}
	return dst
}
