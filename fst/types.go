// Package fst implements a Fast Succinct Trie: an immutable, ordered
// key->value index built once from a sorted collection of byte-string keys
// paired with 64-bit values. Lookups, prefix navigation and bidirectional
// range iteration run over a LOUDS-Dense upper section and a LOUDS-Sparse
// lower section, both backed by a rank-only bitvector primitive.
package fst

// position_t in the reference sources.
type position = uint32

// level_t in the reference sources.
type level = uint32

// label_t in the reference sources: a single outgoing-edge byte.
type label = byte

const (
	// nodeFanout is the fixed width of a dense node's label window.
	nodeFanout position = 256

	// denseRankBasicBlockSize is the basic-block size used for the rank
	// lookup tables of the dense section's bitvectors (in bits).
	denseRankBasicBlockSize position = 512

	// sparseRankBasicBlockSize is the basic-block size used for the rank
	// lookup table of the sparse section's has-child/louds bitvectors.
	sparseRankBasicBlockSize position = 256

	wordSize = 64
)

// align rounds n up to the next multiple of 8 (bytes), matching the
// 8-byte alignment the serialization format requires between components.
func align(n int) int {
	return (n + 7) &^ 7
}
