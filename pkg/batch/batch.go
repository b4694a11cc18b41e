// Package batch groups mutations that a store applies under consecutive
// sequence numbers and publishes together.
package batch

import (
	"bytes"
	"fmt"

	"kvcore/pkg/dberrors"
	"kvcore/pkg/types"
)

// Op is one mutation in a batch.
type Op struct {
	Kind  types.Kind
	Key   types.Key
	Value types.Value
}

// WriteBatch collects Put and Delete operations in order. It is not safe for
// concurrent use.
type WriteBatch struct {
	ops  []Op
	size int
}

func New() *WriteBatch {
	return &WriteBatch{}
}

// Put records a set of key to value. Both slices are copied.
func (b *WriteBatch) Put(key types.Key, value types.Value) {
	b.add(types.KindSet, key, value)
}

// Delete records a tombstone for key.
func (b *WriteBatch) Delete(key types.Key) {
	b.add(types.KindDelete, key, nil)
}

func (b *WriteBatch) add(kind types.Kind, key types.Key, value types.Value) {
	b.ops = append(b.ops, Op{
		Kind:  kind,
		Key:   bytes.Clone(key),
		Value: bytes.Clone(value),
	})
	b.size += len(key) + len(value)
}

// Clear drops every recorded operation.
func (b *WriteBatch) Clear() {
	b.ops = b.ops[:0]
	b.size = 0
}

func (b *WriteBatch) Count() int {
	return len(b.ops)
}

// Size is the total number of key and value bytes recorded.
func (b *WriteBatch) Size() int {
	return b.size
}

// Ops returns the recorded operations in insertion order. The slice must not be
// modified.
func (b *WriteBatch) Ops() []Op {
	return b.ops
}

// Validate rejects batches holding an empty key.
func (b *WriteBatch) Validate() error {
	for i, op := range b.ops {
		if len(op.Key) == 0 {
			return fmt.Errorf("%w: empty key at position %d", dberrors.ErrInvalidArgument, i)
		}
	}
	return nil
}
