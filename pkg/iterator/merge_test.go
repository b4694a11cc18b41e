package iterator

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"kvcore/pkg/types"
)

type entry struct {
	key  string
	val  string
	seq  types.SeqN
	kind types.Kind
}

// sliceIter is a sorted in-memory source.
type sliceIter struct {
	entries []entry
	pos     int
	closed  bool
}

func newSliceIter(entries ...entry) *sliceIter {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].key != entries[j].key {
			return entries[i].key < entries[j].key
		}
		return entries[i].seq > entries[j].seq
	})
	return &sliceIter{entries: entries, pos: -1}
}

func (s *sliceIter) Seek(target types.Key) {
	s.pos = sort.Search(len(s.entries), func(i int) bool {
		return bytes.Compare([]byte(s.entries[i].key), target) >= 0
	})
}
func (s *sliceIter) First()             { s.pos = 0 }
func (s *sliceIter) Last()              { s.pos = len(s.entries) - 1 }
func (s *sliceIter) Next()              { s.pos++ }
func (s *sliceIter) Prev()              { s.pos-- }
func (s *sliceIter) Valid() bool        { return s.pos >= 0 && s.pos < len(s.entries) }
func (s *sliceIter) Key() types.Key     { return []byte(s.entries[s.pos].key) }
func (s *sliceIter) Value() types.Value { return []byte(s.entries[s.pos].val) }
func (s *sliceIter) SeqN() types.SeqN   { return s.entries[s.pos].seq }
func (s *sliceIter) Kind() types.Kind   { return s.entries[s.pos].kind }
func (s *sliceIter) Close() error       { s.closed = true; return nil }

func drain(m *MergingIterator) []string {
	var out []string
	for ; m.Valid(); m.Next() {
		out = append(out, string(m.Key())+"="+string(m.Value()))
	}
	return out
}

func TestMerge_NewestSourceWins(t *testing.T) {
	newest := newSliceIter(
		entry{key: "b", val: "b3", seq: 9, kind: types.KindSet},
		entry{key: "d", val: "", seq: 8, kind: types.KindDelete},
	)
	older := newSliceIter(
		entry{key: "a", val: "a1", seq: 1, kind: types.KindSet},
		entry{key: "b", val: "b1", seq: 2, kind: types.KindSet},
		entry{key: "b", val: "b2", seq: 5, kind: types.KindSet},
		entry{key: "d", val: "d1", seq: 3, kind: types.KindSet},
	)
	oldest := newSliceIter(
		entry{key: "c", val: "c0", seq: 0, kind: types.KindSet},
	)

	m := Merge(nil, newest, older, oldest)
	m.First()
	require.Equal(t, []string{"a=a1", "b=b3", "c=c0", "d="}, drain(m))

	m.Seek([]byte("b"))
	require.True(t, m.Valid())
	require.Equal(t, types.SeqN(9), m.SeqN())
	require.Equal(t, types.KindSet, m.Kind())

	m.Seek([]byte("d"))
	require.Equal(t, types.KindDelete, m.Kind())

	m.Seek([]byte("e"))
	require.False(t, m.Valid())
	require.Nil(t, m.Key())

	require.NoError(t, m.Close())
	require.True(t, newest.closed)
	require.True(t, oldest.closed)
}

func TestMerge_SameSourceVersions(t *testing.T) {
	src := newSliceIter(
		entry{key: "k", val: "old", seq: 1, kind: types.KindSet},
		entry{key: "k", val: "new", seq: 2, kind: types.KindSet},
		entry{key: "z", val: "z", seq: 3, kind: types.KindSet},
	)

	m := Merge(bytes.Compare, src)
	m.First()
	require.Equal(t, []string{"k=new", "z=z"}, drain(m))
}

func TestMerge_Empty(t *testing.T) {
	m := Merge(nil)
	m.First()
	require.False(t, m.Valid())
	m.Next()
	require.False(t, m.Valid())
	require.NoError(t, m.Close())
}
