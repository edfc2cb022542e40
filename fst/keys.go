package fst

import "encoding/binary"

// Uint32Key returns the big-endian byte encoding of n, so that unsigned
// numeric order matches the byte-lexicographic order the trie indexes by
// (spec.md §6).
func Uint32Key(n uint32) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	return string(buf[:])
}

// Uint64Key returns the big-endian byte encoding of n.
func Uint64Key(n uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return string(buf[:])
}

// DecodeUint32Key is the inverse of Uint32Key.
func DecodeUint32Key(key string) uint32 {
	return binary.BigEndian.Uint32([]byte(key))
}

// DecodeUint64Key is the inverse of Uint64Key.
func DecodeUint64Key(key string) uint64 {
	return binary.BigEndian.Uint64([]byte(key))
}

// LookupUint32 looks up a uint32 key encoded via Uint32Key.
func (f *FST) LookupUint32(n uint32) (uint64, bool) {
	return f.LookupKey(Uint32Key(n))
}

// LookupUint64 looks up a uint64 key encoded via Uint64Key.
func (f *FST) LookupUint64(n uint64) (uint64, bool) {
	return f.LookupKey(Uint64Key(n))
}
