package memtable

import (
	"kvcore/pkg/iterator"
	"kvcore/pkg/skiplist"
	"kvcore/pkg/types"
)

// Iterator walks every stored version in order: user keys ascending, versions
// of one key newest first.
type Iterator struct {
	it *skiplist.Iterator

	key   []byte
	value []byte
	seq   types.SeqN
	kind  types.Kind
}

var _ iterator.Iterator = (*Iterator)(nil)

// Seek moves to the newest version of the first user key >= target.
func (i *Iterator) Seek(target types.Key) {
	i.it.Seek(lookupEntry(target, types.MaxSeqN))
	i.load()
}

func (i *Iterator) First() {
	i.it.First()
	i.load()
}

// Last moves to the oldest version of the largest user key.
func (i *Iterator) Last() {
	i.it.Last()
	i.load()
}

func (i *Iterator) Next() {
	i.it.Next()
	i.load()
}

func (i *Iterator) Prev() {
	i.it.Prev()
	i.load()
}

func (i *Iterator) Valid() bool {
	return i.it.Valid()
}

func (i *Iterator) Key() types.Key {
	return i.key
}

func (i *Iterator) Value() types.Value {
	return i.value
}

func (i *Iterator) SeqN() types.SeqN {
	return i.seq
}

func (i *Iterator) Kind() types.Kind {
	return i.kind
}

func (i *Iterator) Close() error {
	return nil
}

func (i *Iterator) load() {
	if !i.it.Valid() {
		i.key, i.value, i.seq, i.kind = nil, nil, 0, types.KindDelete
		return
	}
	ikey, value := decodeEntry(i.it.Key())
	i.key, i.seq, i.kind = splitInternalKey(ikey)
	i.value = value
}
