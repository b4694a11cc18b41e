package clock

import (
	"sync/atomic"

	"kvcore/pkg/types"
)

// Sequence hands out monotonically increasing sequence numbers.
type Sequence struct {
	v atomic.Uint64
}

func NewSequence(init types.SeqN) *Sequence {
	var s Sequence
	s.Set(init)
	return &s
}

// Val returns the last sequence number handed out.
func (s *Sequence) Val() types.SeqN {
	return s.v.Load()
}

func (s *Sequence) Next() types.SeqN {
	return s.v.Add(1)
}

func (s *Sequence) Set(t types.SeqN) {
	s.v.Store(t)
}
