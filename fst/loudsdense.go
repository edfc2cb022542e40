package fst

import (
	"encoding/binary"
	"io"

	E "github.com/sagernet/sing-fst/internal/exceptions"
)

// LoudsDense is the upper section of an FST: every level is expanded into
// fixed 256-slot node windows so a probe byte maps directly to a bit
// position without needing LOUDS select, at the cost of wasting space on
// sparsely populated nodes. Ported from the reference sources'
// LoudsDense, minus the suffix/could-be-false-positive machinery this
// index does not carry (see spec.md's Non-goals).
type LoudsDense struct {
	height      level
	labels      *BitvectorRank
	children    *BitvectorRank
	prefixKeys  *BitvectorRank
	values      []uint64
	numPrefixes position // = prefixKeys.NumBits(), the node count
}

func newLoudsDenseFromBuilder(b *Builder) *LoudsDense {
	if b.sparseStartLevel == 0 {
		return &LoudsDense{height: 0}
	}
	return &LoudsDense{
		height:      b.sparseStartLevel,
		labels:      NewBitvectorRank(denseRankBasicBlockSize, b.denseLabels, b.denseNumBits),
		children:    NewBitvectorRank(denseRankBasicBlockSize, b.denseChildren, b.denseNumBits),
		prefixKeys:  NewBitvectorRank(denseRankBasicBlockSize, b.densePrefixKeys, b.densePrefixBits),
		values:      b.denseValues,
		numPrefixes: b.densePrefixBits,
	}
}

// Height reports how many levels the dense section covers (0 if the whole
// trie is sparse).
func (ld *LoudsDense) Height() level { return ld.height }

// valueIndex computes the rank-based index of the terminator value at pos,
// a position with labels bit set and children bit clear, inside node
// node. It additionally accounts for prefix-key value slots recorded at or
// before this node, generalizing the reference implementation's narrower
// formula (which omits the prefix-rank term and is therefore only correct
// when no prefix key precedes the lookup).
func (ld *LoudsDense) valueIndex(pos, node position) position {
	return ld.labels.Rank1(pos) - ld.children.Rank1(pos) + ld.prefixKeys.Rank1(node) - 1
}

// prefixValueIndex computes the value slot for node's own prefix-key
// value, ordered immediately before that node's label terminators.
func (ld *LoudsDense) prefixValueIndex(node position) position {
	if node == 0 {
		return ld.prefixKeys.Rank1(0) - 1
	}
	boundary := node*nodeFanout - 1
	return ld.labels.Rank1(boundary) - ld.children.Rank1(boundary) + ld.prefixKeys.Rank1(node) - 1
}

func (ld *LoudsDense) getChildNodeNum(pos position) position {
	return ld.children.Rank1(pos)
}

// LookupResult reports where a point lookup landed.
type LookupResult struct {
	Found bool
	Value uint64

	// ContinueInSparse is set when the dense section is exhausted part
	// way through the key (it fully matched every dense level) and the
	// remaining suffix must be resolved by LoudsSparse starting at
	// NextNode.
	ContinueInSparse bool
	NextNode         position
	NextDepth        int
}

// LookupKey walks key through the dense section from the root node. depth
// is the number of key bytes already consumed by an outer caller (always 0
// from FST.LookupKey itself); resuming at an arbitrary node goes through
// LookupKeyAtNode instead.
func (ld *LoudsDense) LookupKey(key []byte, depth int) LookupResult {
	return ld.lookupKeyAtNode(key, depth, 0)
}

func (ld *LoudsDense) lookupKeyAtNode(key []byte, depth int, node position) LookupResult {
	for ; depth < len(key); depth++ {
		pos := node*nodeFanout + position(key[depth])
		if !ld.labels.ReadBit(pos) {
			return LookupResult{Found: false}
		}
		if !ld.children.ReadBit(pos) {
			return LookupResult{Found: true, Value: ld.values[ld.valueIndex(pos, node)]}
		}
		node = ld.getChildNodeNum(pos)
		if level(depth+1) >= ld.height {
			return LookupResult{ContinueInSparse: true, NextNode: node, NextDepth: depth + 1}
		}
	}
	// key exhausted exactly at a node boundary: only a prefix-key hit is
	// possible (Open Question #3, resolved: point lookups do find keys
	// that are strict prefixes of longer keys).
	if ld.prefixKeys.ReadBit(node) {
		return LookupResult{Found: true, Value: ld.values[ld.prefixValueIndex(node)]}
	}
	return LookupResult{Found: false}
}

// LookupKeyAtNode resumes a dense-section lookup at an arbitrary node
// number and key depth, used by FST.LookupKeyAtNode.
func (ld *LoudsDense) LookupKeyAtNode(key []byte, depth int, node position) LookupResult {
	return ld.lookupKeyAtNode(key, depth, node)
}

// FindNextNodeOrValue is the one-byte-at-a-time stepping primitive behind
// StepByte/GetNode: it tries edge b from node and reports whether it
// exists (found), and if so whether it leads to a child node (next,
// hasChild) or terminates with a value.
func (ld *LoudsDense) FindNextNodeOrValue(node position, b byte) (next position, value uint64, hasChild bool, found bool) {
	pos := node*nodeFanout + position(b)
	if !ld.labels.ReadBit(pos) {
		return 0, 0, false, false
	}
	if ld.children.ReadBit(pos) {
		return ld.getChildNodeNum(pos), 0, true, true
	}
	return 0, ld.values[ld.valueIndex(pos, node)], false, true
}

// NodeHasMultipleBranchesOrTerminates reports whether node has more than
// one outgoing label, or exactly one label that is itself a terminator
// rather than a child edge — the stopping condition a single-child
// path-compaction pass checks for.
func (ld *LoudsDense) NodeHasMultipleBranchesOrTerminates(node position) bool {
	base := node * nodeFanout
	var count, firstPos position
	for i := position(0); i < nodeFanout; i++ {
		pos := base + i
		if ld.labels.ReadBit(pos) {
			if count == 0 {
				firstPos = pos
			}
			count++
			if count > 1 {
				return true
			}
		}
	}
	if count == 0 {
		return false
	}
	return !ld.children.ReadBit(firstPos)
}

// Size returns the approximate in-memory footprint in bytes.
func (ld *LoudsDense) Size() int {
	if ld.height == 0 {
		return 0
	}
	return ld.labels.Size() + ld.children.Size() + ld.prefixKeys.Size() + len(ld.values)*8
}

// SerializedSize returns the number of bytes Serialize writes.
func (ld *LoudsDense) SerializedSize() int {
	if ld.height == 0 {
		return 4
	}
	return 4 + ld.labels.SerializedSize() + ld.children.SerializedSize() + ld.prefixKeys.SerializedSize() + align(4+len(ld.values)*8)
}

// Serialize writes [u32 height][labels][children][prefixKeys][u32
// numValues][values]. The height is written unpadded; each bitvector and
// the values block are individually padded to 8 bytes.
func (ld *LoudsDense) Serialize(w io.Writer) error {
	var heightBuf [4]byte
	binary.LittleEndian.PutUint32(heightBuf[:], ld.height)
	if _, err := w.Write(heightBuf[:]); err != nil {
		return E.Cause(err, "write louds-dense height")
	}
	if ld.height == 0 {
		return nil
	}
	if err := ld.labels.Serialize(w); err != nil {
		return err
	}
	if err := ld.children.Serialize(w); err != nil {
		return err
	}
	if err := ld.prefixKeys.Serialize(w); err != nil {
		return err
	}
	valuesBuf := make([]byte, align(4+len(ld.values)*8))
	binary.LittleEndian.PutUint32(valuesBuf[0:4], uint32(len(ld.values)))
	for i, v := range ld.values {
		binary.LittleEndian.PutUint64(valuesBuf[4+i*8:], v)
	}
	if _, err := w.Write(valuesBuf); err != nil {
		return E.Cause(err, "write louds-dense values")
	}
	return nil
}

// DeserializeLoudsDense mirrors the Serialize layout. The bitvectors borrow
// from buf; the values are copied out of buf into a new slice.
func DeserializeLoudsDense(buf []byte) (*LoudsDense, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, ErrDeserializeFormat
	}
	height := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]
	ld := &LoudsDense{height: height}
	if height == 0 {
		return ld, buf, nil
	}
	var err error
	ld.labels, buf, err = DeserializeBitvectorRank(buf)
	if err != nil {
		return nil, nil, err
	}
	ld.children, buf, err = DeserializeBitvectorRank(buf)
	if err != nil {
		return nil, nil, err
	}
	ld.prefixKeys, buf, err = DeserializeBitvectorRank(buf)
	if err != nil {
		return nil, nil, err
	}
	ld.numPrefixes = ld.prefixKeys.NumBits()
	if len(buf) < 4 {
		return nil, nil, ErrDeserializeFormat
	}
	numValues := binary.LittleEndian.Uint32(buf[0:4])
	rawBytes := 4 + int(numValues)*8
	if len(buf) < align(rawBytes) {
		return nil, nil, ErrDeserializeFormat
	}
	if numValues > 0 {
		ld.values = decodeUint64Slice(buf[4:4+int(numValues)*8], int(numValues))
	}
	buf = buf[align(rawBytes):]
	return ld, buf, nil
}

func decodeUint64Slice(buf []byte, n int) []uint64 {
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return out
}
