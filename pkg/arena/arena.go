// Package arena provides the bulk memory region that backs the memtable index.
//
// An Arena hands out offsets into a single preallocated byte slice. Offsets stay
// valid for the lifetime of the arena because the slice is never reallocated, and
// nothing is ever freed individually: the whole region goes away together with
// the structure that owns it.
package arena

import (
	"errors"
	"math"
	"sync/atomic"
	"unsafe"
)

// MaxCapacity is the largest region an Arena can address with 32-bit offsets.
const MaxCapacity = math.MaxUint32

var (
	ErrArenaFull = errors.New("arena: allocation failed, arena is full")
)

// Arena is a fixed-size bump allocator. Alloc must be called by one goroutine at
// a time; Size, Bytes and Pointer may be called concurrently with it.
type Arena struct {
	n   atomic.Uint64
	buf []byte
}

// New creates an arena over a freshly allocated region of capacity bytes.
func New(capacity uint32) *Arena {
	a := &Arena{
		buf: make([]byte, capacity),
	}
	// offset 0 is reserved as the nil offset
	a.n.Store(1)

	return a
}

// Size returns the number of bytes handed out so far.
func (a *Arena) Size() uint32 {
	s := a.n.Load()
	if s > uint64(len(a.buf)) {
		// a failed allocation may push the cursor past the end
		return uint32(len(a.buf))
	}
	return uint32(s)
}

// Capacity returns the size of the underlying region.
func (a *Arena) Capacity() uint32 {
	return uint32(len(a.buf))
}

// Alloc reserves size bytes aligned to align (a power of two) and returns the
// offset of the reservation. overflow is the number of bytes past size that the
// caller may still address through a typed pointer; it must fit in the region
// too, but is not consumed.
func (a *Arena) Alloc(size, align, overflow uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}

	orig := a.n.Load()
	if orig > uint64(len(a.buf)) {
		return 0, ErrArenaFull
	}

	padded := uint64(size) + uint64(align) - 1
	newSize := a.n.Add(padded)
	if newSize+uint64(overflow) > uint64(len(a.buf)) {
		return 0, ErrArenaFull
	}

	offset := (newSize - padded + uint64(align) - 1) &^ (uint64(align) - 1)
	return uint32(offset), nil
}

// Bytes returns the size bytes starting at offset. The slice is capped so that
// appending to it never writes into neighbouring allocations.
func (a *Arena) Bytes(offset, size uint32) []byte {
	if offset == 0 {
		return nil
	}
	end := offset + size
	return a.buf[offset:end:end]
}

// Pointer returns the address of offset inside the region, or nil for offset 0.
func (a *Arena) Pointer(offset uint32) unsafe.Pointer {
	if offset == 0 {
		return nil
	}
	return unsafe.Pointer(&a.buf[offset])
}

// Offset is the inverse of Pointer.
func (a *Arena) Offset(ptr unsafe.Pointer) uint32 {
	if ptr == nil {
		return 0
	}
	return uint32(uintptr(ptr) - uintptr(unsafe.Pointer(&a.buf[0])))
}
