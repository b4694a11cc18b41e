// Package memtable buffers recent writes in an arena-backed skiplist. Every
// write is stored as its own version keyed by user key, sequence number and
// operation kind, so a memtable only ever grows until it is flushed.
package memtable

import (
	"bytes"
	"errors"
	"fmt"

	"kvcore/pkg/arena"
	"kvcore/pkg/config"
	"kvcore/pkg/dberrors"
	"kvcore/pkg/skiplist"
	"kvcore/pkg/types"
)

var (
	ErrTooLargeEntry = errors.New("entry is too large")
)

// Memtable accepts writes from one goroutine at a time and reads from any
// number of goroutines without locking.
type Memtable struct {
	list *skiplist.Skiplist
}

func New(cfg config.MemtableConfig, opts ...skiplist.Option) (*Memtable, error) {
	if cfg.ArenaSize <= 0 || int64(cfg.ArenaSize) > arena.MaxCapacity {
		return nil, fmt.Errorf("%w: arena size %d", dberrors.ErrInvalidArgument, cfg.ArenaSize)
	}

	list, err := skiplist.New(arena.New(uint32(cfg.ArenaSize)), CompareEntries, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create memtable: %w", err)
	}

	return &Memtable{
		list: list,
	}, nil
}

// Add records one version of key. It fails with an error wrapping
// arena.ErrArenaFull once the arena cannot take the entry; the memtable is
// unchanged in that case. Entries too large for even an empty memtable are
// rejected with ErrTooLargeEntry.
func (mt *Memtable) Add(seq types.SeqN, kind types.Kind, key, value []byte) error {
	if seq > types.MaxSeqN {
		return fmt.Errorf("%w: sequence number %d overflows", dberrors.ErrInvalidArgument, seq)
	}

	if !mt.Fits(key, value) {
		return ErrTooLargeEntry
	}
	entry := encodeEntry(key, seq, kind, value)

	if err := mt.list.Add(entry); err != nil {
		return fmt.Errorf("failed to add entry: %w", err)
	}

	return nil
}

// Fits reports whether an entry for key and value can be held by an empty
// memtable of this size.
func (mt *Memtable) Fits(key, value []byte) bool {
	return uint64(encodedSize(key, value)) <= uint64(mt.list.MaxKeySize())
}

// Get returns the newest version of key whose sequence number is <= snapshot.
// Tombstones are returned as well; check Item.Deleted.
func (mt *Memtable) Get(key []byte, snapshot types.SeqN) (Item, bool) {
	it := mt.list.NewIterator()
	it.Seek(lookupEntry(key, snapshot))
	if !it.Valid() {
		return Item{}, false
	}

	ikey, value := decodeEntry(it.Key())
	userKey, seq, kind := splitInternalKey(ikey)
	if !bytes.Equal(userKey, key) {
		return Item{}, false
	}

	return Item{
		Key:   userKey,
		Value: value,
		SeqN:  seq,
		Kind:  kind,
	}, true
}

// UserKeys returns every distinct user key in ascending order. The slices point
// into the arena and must not be modified.
func (mt *Memtable) UserKeys() [][]byte {
	keys := make([][]byte, 0, mt.list.Len())

	it := mt.list.NewIterator()
	for it.First(); it.Valid(); it.Next() {
		ikey, _ := decodeEntry(it.Key())
		userKey, _, _ := splitInternalKey(ikey)
		if n := len(keys); n > 0 && bytes.Equal(keys[n-1], userKey) {
			continue
		}
		keys = append(keys, userKey)
	}

	return keys
}

// ApproximateMemoryUsage returns the arena bytes in use.
func (mt *Memtable) ApproximateMemoryUsage() uint32 {
	return mt.list.Size()
}

// Capacity returns the arena size.
func (mt *Memtable) Capacity() uint32 {
	return mt.list.Arena().Capacity()
}

// Len returns the number of stored versions.
func (mt *Memtable) Len() int {
	return mt.list.Len()
}

func (mt *Memtable) Empty() bool {
	return mt.list.Len() == 0
}

func (mt *Memtable) NewIterator() *Iterator {
	return &Iterator{it: mt.list.NewIterator()}
}
