package skiplist

// Iterator walks a Skiplist in key order. It is safe to use while the list is
// being written to; keys added after the iterator passed their position are not
// guaranteed to be seen. The zero position is invalid.
type Iterator struct {
	list *Skiplist
	nd   *node
}

// NewIterator returns an unpositioned iterator over the list.
func (s *Skiplist) NewIterator() *Iterator {
	return &Iterator{list: s}
}

// Valid reports whether the iterator is positioned at a node.
func (it *Iterator) Valid() bool {
	return it.nd != nil
}

// Key returns the key at the current position, or nil if the iterator is
// invalid. The returned slice points into the arena and must not be modified.
func (it *Iterator) Key() []byte {
	if it.nd == nil {
		return nil
	}
	return it.list.nodeKey(it.nd)
}

// Next advances to the next node.
func (it *Iterator) Next() {
	if it.nd == nil {
		return
	}
	it.nd = it.list.next(it.nd, 0)
}

// Prev moves to the previous node. There are no backward links, so this
// searches from the head.
func (it *Iterator) Prev() {
	if it.nd == nil {
		return
	}
	it.nd = it.list.findLessThan(it.list.nodeKey(it.nd))
	if it.nd == it.list.head {
		it.nd = nil
	}
}

// Seek moves to the first node whose key is >= target.
func (it *Iterator) Seek(target []byte) {
	it.nd = it.list.findGreaterOrEqual(target, nil)
}

// First moves to the node with the smallest key.
func (it *Iterator) First() {
	it.nd = it.list.next(it.list.head, 0)
}

// Last moves to the node with the largest key.
func (it *Iterator) Last() {
	it.nd = it.list.findLast()
	if it.nd == it.list.head {
		it.nd = nil
	}
}
