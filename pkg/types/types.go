package types

// Key is an immutable byte slice type alias used for clarity.
type Key = []byte

// Value is an immutable byte slice type alias used for clarity.
type Value = []byte

// SeqN orders writes; a higher sequence number is a newer write.
type SeqN = uint64

// MaxSeqN is the largest sequence number that fits in an internal key trailer.
const MaxSeqN SeqN = 1<<56 - 1

// Kind is the operation an entry records.
type Kind uint8

const (
	KindDelete Kind = iota
	KindSet

	// KindMax sorts before every other kind at the same sequence number and is
	// only used to build lookup keys.
	KindMax = KindSet
)

func (k Kind) String() string {
	switch k {
	case KindDelete:
		return "DEL"
	case KindSet:
		return "SET"
	default:
		return "UNKNOWN"
	}
}
