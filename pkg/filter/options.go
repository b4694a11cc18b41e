package filter

// Option configures a BloomFilter.
type Option func(*BloomFilter)

// WithHash replaces the default hash. Filters built with one hash can only be
// queried with the same hash.
func WithHash(h HashFunc) Option {
	return func(f *BloomFilter) {
		if h != nil {
			f.hash = h
		}
	}
}
