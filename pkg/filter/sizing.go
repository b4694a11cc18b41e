package filter

import "math"

const (
	// DefaultBitsPerKey is used when a target rate cannot be turned into a size.
	DefaultBitsPerKey = 10
	// MaxProbes caps the number of probe rounds. A larger value found at query
	// time marks data this filter cannot interpret.
	MaxProbes = 30

	minFilterBits = 64
)

// BitsPerKeyForRate returns the bits per key needed to hold entries keys at
// false-positive probability fpRate: ceil((-n*ln(p) / ln(2)^2) / n).
func BitsPerKeyForRate(entries int, fpRate float64) int {
	if entries <= 0 || fpRate <= 0 || fpRate >= 1 {
		return DefaultBitsPerKey
	}
	n := float64(entries)
	size := -n * math.Log(fpRate) / (math.Ln2 * math.Ln2)
	return int(math.Ceil(size / n))
}

// ProbesForBitsPerKey returns k = ceil(ln(2) * bitsPerKey) clamped to [1, MaxProbes].
func ProbesForBitsPerKey(bitsPerKey int) int {
	k := int(math.Ceil(math.Ln2 * float64(bitsPerKey)))
	return min(max(k, 1), MaxProbes)
}

// SegmentBytes returns the size of the segment CreateFilter appends for entries
// keys: max(64, entries*bitsPerKey) bits rounded up to whole bytes.
func SegmentBytes(entries, bitsPerKey int) int {
	bits := max(entries*bitsPerKey, minFilterBits)
	return (bits + 7) / 8
}
