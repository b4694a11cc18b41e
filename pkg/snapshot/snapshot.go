package snapshot

import (
	"sync/atomic"

	"kvcore/pkg/dberrors"
	"kvcore/pkg/types"
)

// Snapshot provides a consistent view of the database at a given sequence.
type Snapshot struct {
	seq     types.SeqN
	closed  atomic.Bool
	release func()
}

// New pins seq. release, if set, runs once when the snapshot is closed.
func New(seq types.SeqN, release func()) *Snapshot {
	return &Snapshot{seq: seq, release: release}
}

// Sequence returns the read sequence number.
func (s *Snapshot) Sequence() types.SeqN {
	return s.seq
}

// Close releases the snapshot.
func (s *Snapshot) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return dberrors.ErrClosed
	}
	if s.release != nil {
		s.release()
	}
	return nil
}
