// Package filter provides the membership filter written next to every flushed
// table.
//
// A BloomFilter owns one growable byte buffer. Each CreateFilter call appends a
// self-contained segment sized for its batch of keys, so the filters of many
// tables can live back to back in a single buffer. A segment is addressed by its
// byte offset and length; CreateFilter returns both, and the caller keeps them
// with the table.
//
// Only one hash is computed per key. The k probe positions are derived from it
// by double hashing: the hash rotated right by 17 bits is added after each
// probe.
package filter

// Policy is the contract the engine programs against.
type Policy interface {
	// Name identifies the encoding. Data written under one name is meaningless
	// to a policy with another.
	Name() string
	// CreateFilter appends a segment summarising keys and returns its location.
	CreateFilter(keys [][]byte) Segment
	// KeyMayMatch reports false only if key was definitely not in the batch the
	// addressed segment was built from.
	KeyMayMatch(key []byte, start, length int) bool
	// Data returns the whole buffer.
	Data() []byte
	// Size returns the buffer length in bytes.
	Size() int
}

// Segment locates one CreateFilter result inside the buffer. K is the number of
// probe rounds the segment was built with.
type Segment struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
	K      int `json:"k"`
}

// Empty reports whether the segment holds no bits.
func (s Segment) Empty() bool {
	return s.Length == 0
}

const bloomFilterName = "kvcore.bloom.double-hash"

// BloomFilter is a Policy backed by a classic bit array per segment.
//
// CreateFilter calls must be serialised by the caller. Queries only read the
// buffer and may run concurrently with each other, but not with CreateFilter.
type BloomFilter struct {
	bitsPerKey int
	k          int
	hash       HashFunc
	data       []byte
}

var _ Policy = (*BloomFilter)(nil)

// NewBloomFilter creates a filter that spends bitsPerKey bits on every key.
func NewBloomFilter(bitsPerKey int, opts ...Option) *BloomFilter {
	f := &BloomFilter{
		bitsPerKey: max(bitsPerKey, 0),
		hash:       Hash,
	}
	f.k = ProbesForBitsPerKey(f.bitsPerKey)
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// NewBloomFilterWithRate creates a filter sized for entries keys at the target
// false-positive probability fpRate.
func NewBloomFilterWithRate(entries int, fpRate float64, opts ...Option) *BloomFilter {
	return NewBloomFilter(BitsPerKeyForRate(entries, fpRate), opts...)
}

// FromData wraps a buffer produced earlier by a filter with the same bitsPerKey
// and hash. The filter takes ownership of data.
func FromData(data []byte, bitsPerKey int, opts ...Option) *BloomFilter {
	f := NewBloomFilter(bitsPerKey, opts...)
	f.data = data
	return f
}

func (f *BloomFilter) Name() string {
	return bloomFilterName
}

// BitsPerKey returns the configured bits per key.
func (f *BloomFilter) BitsPerKey() int {
	return f.bitsPerKey
}

// K returns the number of probe rounds.
func (f *BloomFilter) K() int {
	return f.k
}

func (f *BloomFilter) Data() []byte {
	return f.data
}

func (f *BloomFilter) Size() int {
	return len(f.data)
}

// CreateFilter appends a segment for keys. An empty batch leaves the buffer
// untouched and returns an empty Segment.
func (f *BloomFilter) CreateFilter(keys [][]byte) Segment {
	if len(keys) == 0 {
		return Segment{}
	}

	nBytes := SegmentBytes(len(keys), f.bitsPerKey)
	bits := uint32(nBytes * 8)

	start := len(f.data)
	f.data = append(f.data, make([]byte, nBytes)...)
	array := f.data[start:]

	for _, key := range keys {
		h := f.hash(key)
		delta := h>>17 | h<<15
		for range f.k {
			bitpos := h % bits
			array[bitpos/8] |= 1 << (bitpos % 8)
			h += delta
		}
	}

	return Segment{Offset: start, Length: nBytes, K: f.k}
}

// KeyMayMatch tests key against the segment starting at start. A length of 0
// means the rest of the buffer; a length running past the buffer always
// matches.
func (f *BloomFilter) KeyMayMatch(key []byte, start, length int) bool {
	return f.matchAt(key, start, length, f.k)
}

// MatchSegment tests key against seg using the probe count recorded in it. A
// zero K falls back to the filter's own.
func (f *BloomFilter) MatchSegment(key []byte, seg Segment) bool {
	k := seg.K
	if k == 0 {
		k = f.k
	}
	return f.matchAt(key, seg.Offset, seg.Length, k)
}

func (f *BloomFilter) matchAt(key []byte, start, length, k int) bool {
	if len(key) == 0 || len(f.data) == 0 {
		return false
	}
	if start < 0 || start >= len(f.data) || length < 0 {
		return false
	}
	if length == 0 {
		length = len(f.data) - start
	}
	if length > len(f.data)-start {
		// the segment was sized for bits we do not have
		return true
	}

	return probe(f.hash(key), f.data[start:start+length], k)
}

func probe(h uint32, array []byte, k int) bool {
	if k > MaxProbes {
		// unknown encoding, never hide a key that might be there
		return true
	}

	bits := uint32(len(array) * 8)
	delta := h>>17 | h<<15
	for range k {
		bitpos := h % bits
		if array[bitpos/8]&(1<<(bitpos%8)) == 0 {
			return false
		}
		h += delta
	}

	return true
}
