package filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKeys = [][]byte{[]byte("corekv"), []byte("corekv1"), []byte("corekv2")}

func TestBloomFilter_CreateFilter(t *testing.T) {
	f := NewBloomFilterWithRate(3, 0.01)
	require.Equal(t, 10, f.BitsPerKey())
	require.Equal(t, 7, f.K())

	seg := f.CreateFilter(testKeys)
	require.Equal(t, Segment{Offset: 0, Length: 8, K: 7}, seg)
	require.Equal(t, 8, f.Size())

	for _, k := range testKeys {
		assert.True(t, f.KeyMayMatch(k, 0, 0), "key %s", k)
		assert.True(t, f.MatchSegment(k, seg), "key %s", k)
	}

	// an absent key gets the same answer every time
	first := f.KeyMayMatch([]byte("hardcore"), 0, 0)
	for range 10 {
		require.Equal(t, first, f.KeyMayMatch([]byte("hardcore"), 0, 0))
	}
}

func TestBloomFilter_FalsePositiveRate(t *testing.T) {
	const (
		n      = 10_000
		probes = 100_000
		rate   = 0.01
	)

	f := NewBloomFilterWithRate(n, rate)
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("present-%d", i))
	}
	seg := f.CreateFilter(keys)

	for _, k := range keys {
		require.True(t, f.MatchSegment(k, seg))
	}

	positives := 0
	for i := range probes {
		if f.MatchSegment([]byte(fmt.Sprintf("absent-%d", i)), seg) {
			positives++
		}
	}
	got := float64(positives) / probes
	require.LessOrEqual(t, got, 3*rate, "false positive rate %.4f", got)
}

func TestBloomFilter_SmallBatchRate(t *testing.T) {
	f := NewBloomFilterWithRate(3, 0.01)
	seg := f.CreateFilter(testKeys)

	positives := 0
	const probes = 50_000
	for i := range probes {
		if f.MatchSegment([]byte(fmt.Sprintf("hardcore-%d", i)), seg) {
			positives++
		}
	}
	require.LessOrEqual(t, float64(positives)/probes, 0.03)
}

func TestBloomFilter_Segments(t *testing.T) {
	f := NewBloomFilter(10)

	batches := make([][][]byte, 3)
	segs := make([]Segment, 3)
	offset := 0
	for b, size := range []int{1, 50, 400} {
		for i := range size {
			batches[b] = append(batches[b], []byte(fmt.Sprintf("batch-%d-key-%d", b, i)))
		}
		segs[b] = f.CreateFilter(batches[b])

		require.Equal(t, offset, segs[b].Offset)
		require.Equal(t, SegmentBytes(size, 10), segs[b].Length)
		offset += segs[b].Length
	}
	require.Equal(t, offset, f.Size())

	for b := range batches {
		for _, k := range batches[b] {
			require.True(t, f.KeyMayMatch(k, segs[b].Offset, segs[b].Length))
			require.True(t, f.MatchSegment(k, segs[b]))
		}
	}

	// the last segment can also be addressed as "rest of buffer"
	for _, k := range batches[2] {
		require.True(t, f.KeyMayMatch(k, segs[2].Offset, 0))
	}
}

func TestBloomFilter_EmptyBatch(t *testing.T) {
	f := NewBloomFilter(10)

	require.True(t, f.CreateFilter(nil).Empty())
	require.True(t, f.CreateFilter([][]byte{}).Empty())
	require.Zero(t, f.Size())
	require.False(t, f.KeyMayMatch([]byte("a"), 0, 0))
}

func TestBloomFilter_QueryBounds(t *testing.T) {
	f := NewBloomFilter(10)
	seg := f.CreateFilter(testKeys)

	require.False(t, f.KeyMayMatch(nil, 0, 0))
	require.False(t, f.KeyMayMatch([]byte{}, 0, 0))
	require.False(t, f.KeyMayMatch(testKeys[0], f.Size()+1, 0))
	require.False(t, f.KeyMayMatch(testKeys[0], f.Size(), 0))
	require.False(t, f.KeyMayMatch(testKeys[0], -1, 0))
	require.False(t, f.KeyMayMatch(testKeys[0], 0, -1))

	// an overlong length matches everything
	for _, k := range testKeys {
		require.True(t, f.KeyMayMatch(k, seg.Offset, seg.Length+100))
	}
	require.True(t, f.KeyMayMatch([]byte("never-added"), seg.Offset, seg.Length+1))
}

func TestBloomFilter_OverlongLengthOnInnerSegment(t *testing.T) {
	f := NewBloomFilter(10)

	keys := make([][]byte, 200)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("inner-%03d", i))
	}
	first := f.CreateFilter(keys)
	require.Equal(t, 250, first.Length)
	second := f.CreateFilter([][]byte{[]byte("tail")})
	require.Equal(t, first.Length, second.Offset)

	for _, k := range keys {
		require.True(t, f.KeyMayMatch(k, first.Offset, first.Length), string(k))
		require.True(t, f.KeyMayMatch(k, first.Offset, first.Length+100), string(k))
	}
}

func TestBloomFilter_UnknownProbeCount(t *testing.T) {
	f := NewBloomFilter(10)
	seg := f.CreateFilter(testKeys)

	legacy := seg
	legacy.K = MaxProbes + 1
	for i := range 100 {
		require.True(t, f.MatchSegment([]byte(fmt.Sprintf("anything-%d", i)), legacy))
	}
}

func TestBloomFilter_FromData(t *testing.T) {
	f := NewBloomFilter(12)
	seg := f.CreateFilter(testKeys)

	data := append([]byte(nil), f.Data()...)
	g := FromData(data, 12)
	require.Equal(t, f.K(), g.K())
	for _, k := range testKeys {
		require.True(t, g.KeyMayMatch(k, seg.Offset, seg.Length))
	}
}

func TestBloomFilter_WithHash(t *testing.T) {
	constant := func([]byte) uint32 { return 42 }
	f := NewBloomFilter(10, WithHash(constant))
	f.CreateFilter(testKeys)

	// every key hashes the same, so every key matches
	require.True(t, f.KeyMayMatch([]byte("not-there"), 0, 0))
	require.Equal(t, bloomFilterName, f.Name())
}

func TestBloomFilter_MinimumSize(t *testing.T) {
	f := NewBloomFilter(1)
	seg := f.CreateFilter([][]byte{[]byte("only")})
	require.Equal(t, 8, seg.Length)

	f = NewBloomFilter(0)
	require.Equal(t, 1, f.K())
	seg = f.CreateFilter(testKeys)
	require.Equal(t, 8, seg.Length)
	for _, k := range testKeys {
		require.True(t, f.MatchSegment(k, seg))
	}
}

func TestSizing(t *testing.T) {
	require.Equal(t, 10, BitsPerKeyForRate(3, 0.01))
	require.Equal(t, 10, BitsPerKeyForRate(1000, 0.01))
	require.Equal(t, 5, BitsPerKeyForRate(1000, 0.1))
	require.Equal(t, DefaultBitsPerKey, BitsPerKeyForRate(0, 0.01))
	require.Equal(t, DefaultBitsPerKey, BitsPerKeyForRate(10, 0))
	require.Equal(t, DefaultBitsPerKey, BitsPerKeyForRate(10, 1))

	require.Equal(t, 1, ProbesForBitsPerKey(0))
	require.Equal(t, 1, ProbesForBitsPerKey(1))
	require.Equal(t, 7, ProbesForBitsPerKey(10))
	require.Equal(t, MaxProbes, ProbesForBitsPerKey(100))

	require.Equal(t, 8, SegmentBytes(1, 10))
	require.Equal(t, 13, SegmentBytes(10, 10))
	require.Equal(t, 1250, SegmentBytes(1000, 10))
}

func TestHash_Deterministic(t *testing.T) {
	require.Equal(t, Hash([]byte("corekv")), Hash([]byte("corekv")))
	require.NotEqual(t, Hash([]byte("corekv")), Hash([]byte("corekv1")))
}
