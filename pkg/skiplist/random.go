package skiplist

import "github.com/zhangyunhao116/fastrand"

// RandomSource produces the uniform stream tower heights are drawn from. It need
// not be cryptographically secure. *rand.Rand from math/rand/v2 satisfies it.
type RandomSource interface {
	Uint32() uint32
}

// fastrandSource is the default source, backed by the runtime's per-P generator.
type fastrandSource struct{}

func (fastrandSource) Uint32() uint32 {
	return fastrand.Uint32()
}
