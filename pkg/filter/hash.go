package filter

import "github.com/cespare/xxhash/v2"

// HashFunc maps a key to the single 32-bit value every probe position is derived
// from. It must be deterministic, and it must not change for as long as filter
// data produced with it is kept around.
type HashFunc func(data []byte) uint32

// Hash is the default HashFunc: xxhash64 folded to 32 bits.
func Hash(data []byte) uint32 {
	h := xxhash.Sum64(data)
	return uint32(h) ^ uint32(h>>32)
}
