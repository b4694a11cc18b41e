package memtable

import (
	"bytes"
	"encoding/binary"

	"kvcore/pkg/types"
)

// An entry stored in the skiplist is
//
//	uvarint(len(ikey)) | ikey | value
//
// where ikey is the user key followed by an 8 byte little-endian trailer
// seq<<8 | kind. Entries sort by user key ascending, then trailer descending,
// so the newest version of a key comes first.

const trailerSize = 8

func makeTrailer(seq types.SeqN, kind types.Kind) uint64 {
	return seq<<8 | uint64(kind)
}

func encodeEntry(key []byte, seq types.SeqN, kind types.Kind, value []byte) []byte {
	ikeyLen := len(key) + trailerSize
	buf := make([]byte, binary.MaxVarintLen64+ikeyLen+len(value))

	n := binary.PutUvarint(buf, uint64(ikeyLen))
	n += copy(buf[n:], key)
	binary.LittleEndian.PutUint64(buf[n:], makeTrailer(seq, kind))
	n += trailerSize
	n += copy(buf[n:], value)

	return buf[:n]
}

func encodedSize(key, value []byte) int {
	ikeyLen := len(key) + trailerSize
	var tmp [binary.MaxVarintLen64]byte
	return binary.PutUvarint(tmp[:], uint64(ikeyLen)) + ikeyLen + len(value)
}

// lookupEntry builds the entry that sorts right before every version of key
// visible at snapshot.
func lookupEntry(key []byte, snapshot types.SeqN) []byte {
	return encodeEntry(key, snapshot, types.KindMax, nil)
}

func decodeEntry(entry []byte) (ikey, value []byte) {
	ikeyLen, n := binary.Uvarint(entry)
	if n <= 0 || uint64(len(entry)-n) < ikeyLen {
		return nil, nil
	}
	end := n + int(ikeyLen)
	return entry[n:end], entry[end:]
}

func splitTrailer(ikey []byte) ([]byte, uint64) {
	if len(ikey) < trailerSize {
		return ikey, 0
	}
	cut := len(ikey) - trailerSize
	return ikey[:cut], binary.LittleEndian.Uint64(ikey[cut:])
}

func splitInternalKey(ikey []byte) (userKey []byte, seq types.SeqN, kind types.Kind) {
	userKey, trailer := splitTrailer(ikey)
	return userKey, trailer >> 8, types.Kind(trailer & 0xff)
}

// CompareEntries orders encoded entries by user key ascending, then by
// sequence number and kind descending. Values do not take part.
func CompareEntries(a, b []byte) int {
	ak, _ := decodeEntry(a)
	bk, _ := decodeEntry(b)
	return compareInternalKeys(ak, bk)
}

func compareInternalKeys(a, b []byte) int {
	au, at := splitTrailer(a)
	bu, bt := splitTrailer(b)
	if c := bytes.Compare(au, bu); c != 0 {
		return c
	}

	switch {
	case at > bt:
		return -1
	case at < bt:
		return 1
	default:
		return 0
	}
}
