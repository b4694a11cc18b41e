package skiplist

import "log/slog"

// Option configures a Skiplist.
type Option func(*Skiplist)

// WithRandomSource sets the generator used to draw tower heights. Pass a seeded
// generator to get a reproducible structure.
func WithRandomSource(rnd RandomSource) Option {
	return func(s *Skiplist) {
		if rnd != nil {
			s.rnd = rnd
		}
	}
}

// WithBranching sets the branching factor; a node is promoted to the next level
// with probability 1/branching.
func WithBranching(branching int) Option {
	return func(s *Skiplist) {
		if branching > 1 {
			s.branching = uint32(branching)
		}
	}
}

// WithLogger sets the logger used to report ignored duplicate inserts.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Skiplist) {
		if logger != nil {
			s.logger = logger
		}
	}
}
