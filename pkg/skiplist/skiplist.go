// Package skiplist implements the ordered index behind the memtable: an
// arena-backed skip list that accepts one writer and any number of concurrent
// readers without locks on the read path.
//
// Nodes and their keys live inside an arena.Arena and reference each other by
// 32-bit arena offsets. A node's tower is fully written before the node is
// published into its predecessors, so a reader following forward links only ever
// sees fully initialised nodes. Nodes are never removed.
package skiplist

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync/atomic"
	"unsafe"

	"kvcore/pkg/arena"
)

const (
	// MaxHeight is the fixed ceiling for tower heights.
	MaxHeight = 20
	// DefaultBranching is the reciprocal of the per-level promotion probability.
	DefaultBranching = 4
)

// Comparator is a three-way comparison over keys. It must be a strict total
// order that stays consistent for the lifetime of the list.
type Comparator func(a, b []byte) int

// DefaultComparator orders keys lexicographically.
var DefaultComparator Comparator = bytes.Compare

type node struct {
	keyOffset uint32
	keySize   uint32
	height    uint32

	// Only the first height links are allocated; the rest of the array overlaps
	// whatever follows the node in the arena and must never be touched.
	tower [MaxHeight]atomic.Uint32
}

const (
	linkSize    = uint32(unsafe.Sizeof(atomic.Uint32{}))
	maxNodeSize = uint32(unsafe.Sizeof(node{}))
	nodeAlign   = uint32(unsafe.Alignof(node{}))
)

// Skiplist is a sorted set of byte keys.
type Skiplist struct {
	arena     *arena.Arena
	cmp       Comparator
	head      *node
	height    atomic.Uint32
	count     atomic.Int64
	rnd       RandomSource
	branching uint32
	logger    *slog.Logger
}

// New creates an empty list whose nodes are allocated from a. The arena must
// not be shared with another list.
func New(a *arena.Arena, cmp Comparator, opts ...Option) (*Skiplist, error) {
	if cmp == nil {
		cmp = DefaultComparator
	}

	s := &Skiplist{
		arena:     a,
		cmp:       cmp,
		rnd:       fastrandSource{},
		branching: DefaultBranching,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	head, _, err := s.newNode(nil, MaxHeight)
	if err != nil {
		return nil, fmt.Errorf("skiplist: allocate head: %w", err)
	}
	for i := range MaxHeight {
		head.tower[i].Store(0)
	}
	s.head = head
	s.height.Store(1)

	return s, nil
}

// Add inserts key into the list. The key bytes are copied into the arena.
//
// Adding a key that compares equal to an existing one leaves the list unchanged
// and returns ErrRecordExists. If the arena cannot hold the new node, an error
// wrapping arena.ErrArenaFull is returned and nothing is linked.
func (s *Skiplist) Add(key []byte) error {
	var prev [MaxHeight]*node

	next := s.findGreaterOrEqual(key, &prev)
	if next != nil && s.cmp(key, s.nodeKey(next)) == 0 {
		s.logger.Warn("skiplist: duplicate key ignored", "key", fmt.Sprintf("%q", key))
		return ErrRecordExists
	}

	height := s.randomHeight()
	nd, offset, err := s.newNode(key, height)
	if err != nil {
		return fmt.Errorf("skiplist: allocate node: %w", err)
	}

	listHeight := s.Height()
	if height > listHeight {
		for i := listHeight; i < height; i++ {
			prev[i] = s.head
		}
		// readers that see the new height early find nil links at the new levels
		s.height.Store(uint32(height))
	}

	for i := range height {
		// the node must point at its successor before it becomes reachable
		nd.tower[i].Store(prev[i].tower[i].Load())
		prev[i].tower[i].Store(offset)
	}
	s.count.Add(1)

	return nil
}

// Contains reports whether a key equal to key is in the list.
func (s *Skiplist) Contains(key []byte) bool {
	nd := s.findGreaterOrEqual(key, nil)
	return nd != nil && s.cmp(key, s.nodeKey(nd)) == 0
}

// Len returns the number of keys in the list.
func (s *Skiplist) Len() int {
	return int(s.count.Load())
}

// Height returns the current maximum tower height.
func (s *Skiplist) Height() int {
	return int(s.height.Load())
}

// Size returns the number of arena bytes in use.
func (s *Skiplist) Size() uint32 {
	return s.arena.Size()
}

// Arena returns the arena backing the list.
func (s *Skiplist) Arena() *arena.Arena {
	return s.arena
}

// MaxKeySize is the largest key that a fresh list over an arena of the same
// capacity can always hold, whatever height the node draws.
func (s *Skiplist) MaxKeySize() uint32 {
	// the reserved nil offset, the head and one node, each padded for alignment
	reserved := 1 + 2*(maxNodeSize+nodeAlign-1)
	if c := s.arena.Capacity(); c > reserved {
		return c - reserved
	}
	return 0
}

// Compare exposes the list's comparator.
func (s *Skiplist) Compare(a, b []byte) int {
	return s.cmp(a, b)
}

func (s *Skiplist) newNode(key []byte, height int) (*node, uint32, error) {
	unused := (MaxHeight - uint32(height)) * linkSize
	nodeSize := maxNodeSize - unused
	keySize := uint32(len(key))

	offset, err := s.arena.Alloc(nodeSize+keySize, nodeAlign, unused)
	if err != nil {
		return nil, 0, err
	}

	nd := (*node)(s.arena.Pointer(offset))
	nd.keyOffset = offset + nodeSize
	nd.keySize = keySize
	nd.height = uint32(height)
	copy(s.arena.Bytes(nd.keyOffset, keySize), key)

	return nd, offset, nil
}

func (s *Skiplist) nodeKey(nd *node) []byte {
	if nd.keySize == 0 {
		return []byte{}
	}
	return s.arena.Bytes(nd.keyOffset, nd.keySize)
}

func (s *Skiplist) next(nd *node, level int) *node {
	return (*node)(s.arena.Pointer(nd.tower[level].Load()))
}

func (s *Skiplist) randomHeight() int {
	h := 1
	for h < MaxHeight && s.rnd.Uint32()%s.branching == 0 {
		h++
	}
	return h
}

// findGreaterOrEqual returns the first node whose key is >= key, or nil. When
// prev is not nil it receives the predecessor at every level below the current
// height.
func (s *Skiplist) findGreaterOrEqual(key []byte, prev *[MaxHeight]*node) *node {
	x := s.head
	level := s.Height() - 1
	for {
		next := s.next(x, level)
		if next != nil && s.cmp(s.nodeKey(next), key) < 0 {
			x = next
			continue
		}
		if prev != nil {
			prev[level] = x
		}
		if level == 0 {
			return next
		}
		level--
	}
}

// findLessThan returns the last node whose key is < key, or the head.
func (s *Skiplist) findLessThan(key []byte) *node {
	x := s.head
	level := s.Height() - 1
	for {
		next := s.next(x, level)
		if next != nil && s.cmp(s.nodeKey(next), key) < 0 {
			x = next
			continue
		}
		if level == 0 {
			return x
		}
		level--
	}
}

// findLast returns the last node in the list, or the head if it is empty.
func (s *Skiplist) findLast() *node {
	x := s.head
	level := s.Height() - 1
	for {
		next := s.next(x, level)
		if next != nil {
			x = next
			continue
		}
		if level == 0 {
			return x
		}
		level--
	}
}
