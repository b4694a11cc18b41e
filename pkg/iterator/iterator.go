package iterator

import "kvcore/pkg/types"

// Iterator iterates over a sorted sequence of entries. Several versions of the
// same user key may follow each other, newest first.
type Iterator interface {
	// Seek moves the iterator to the first key >= target.
	Seek(target types.Key)
	// First moves to the smallest key.
	First()
	// Last moves to the largest key.
	Last()
	// Next advances to the next entry.
	Next()
	// Prev moves to the previous entry.
	Prev()
	// Valid reports whether the iterator points to a valid entry.
	Valid() bool
	// Key returns the current user key.
	Key() types.Key
	// Value returns the current value.
	Value() types.Value
	// SeqN returns the sequence number of the current entry.
	SeqN() types.SeqN
	// Kind returns the operation of the current entry.
	Kind() types.Kind
	// Close releases resources.
	Close() error
}
