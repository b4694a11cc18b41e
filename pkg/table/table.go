// Package table keeps the memtables that have been flushed, each paired with
// the bloom filter segment built from its keys.
package table

import (
	"bytes"
	"time"

	"github.com/google/uuid"

	"kvcore/pkg/filter"
	"kvcore/pkg/memtable"
)

// Table is a frozen memtable plus the location of its filter segment in the
// registry's shared filter buffer. BitsPerKey and Filter.K are kept with the
// segment because the raw bits cannot be interpreted without them.
type Table struct {
	ID         uuid.UUID
	Seq        uint64
	Mem        *memtable.Memtable
	Filter     filter.Segment
	BitsPerKey int
	Smallest   []byte
	Largest    []byte
	Keys       int
	CreatedAt  time.Time
}

// covers reports whether key falls inside the table's key range.
func (t *Table) covers(key []byte) bool {
	return bytes.Compare(key, t.Smallest) >= 0 && bytes.Compare(key, t.Largest) <= 0
}
