package iterator

import (
	"bytes"
	"errors"

	"kvcore/pkg/types"
)

// MergingIterator is a forward-only union of several iterators. Sources are
// passed newest first; when more than one holds the same user key, only the
// entry of the newest source is surfaced.
type MergingIterator struct {
	cmp   func(a, b []byte) int
	iters []Iterator
	cur   int
}

// Merge combines iters, ordered from newest to oldest. A nil cmp means
// bytes.Compare.
func Merge(cmp func(a, b []byte) int, iters ...Iterator) *MergingIterator {
	if cmp == nil {
		cmp = bytes.Compare
	}
	return &MergingIterator{cmp: cmp, iters: iters, cur: -1}
}

// First positions every source at its first entry.
func (m *MergingIterator) First() {
	for _, it := range m.iters {
		it.First()
	}
	m.pick()
}

// Seek positions every source at its first key >= target.
func (m *MergingIterator) Seek(target types.Key) {
	for _, it := range m.iters {
		it.Seek(target)
	}
	m.pick()
}

// Next moves past every entry that shares the current user key.
func (m *MergingIterator) Next() {
	if m.cur < 0 {
		return
	}

	key := bytes.Clone(m.iters[m.cur].Key())
	for _, it := range m.iters {
		for it.Valid() && m.cmp(it.Key(), key) == 0 {
			it.Next()
		}
	}
	m.pick()
}

func (m *MergingIterator) Valid() bool {
	return m.cur >= 0
}

func (m *MergingIterator) Key() types.Key {
	if m.cur < 0 {
		return nil
	}
	return m.iters[m.cur].Key()
}

func (m *MergingIterator) Value() types.Value {
	if m.cur < 0 {
		return nil
	}
	return m.iters[m.cur].Value()
}

func (m *MergingIterator) SeqN() types.SeqN {
	if m.cur < 0 {
		return 0
	}
	return m.iters[m.cur].SeqN()
}

func (m *MergingIterator) Kind() types.Kind {
	if m.cur < 0 {
		return types.KindDelete
	}
	return m.iters[m.cur].Kind()
}

// Close closes every source and returns their joined errors.
func (m *MergingIterator) Close() error {
	var errs []error
	for _, it := range m.iters {
		if err := it.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.cur = -1
	return errors.Join(errs...)
}

// pick selects the smallest current key; ties go to the lowest index, which is
// the newest source.
func (m *MergingIterator) pick() {
	m.cur = -1
	for i, it := range m.iters {
		if !it.Valid() {
			continue
		}
		if m.cur < 0 || m.cmp(it.Key(), m.iters[m.cur].Key()) < 0 {
			m.cur = i
		}
	}
}
