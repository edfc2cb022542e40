package fst

import (
	"encoding/binary"
	"io"

	"github.com/openacid/low/bitmap"

	E "github.com/sagernet/sing-fst/internal/exceptions"
)

// LoudsSparse is the lower section of an FST: one byte per outgoing edge,
// packed with parallel has-child and LOUDS bitvectors, addressed by
// rank/select instead of the fixed 256-slot windows the dense section
// uses. Node-start lookup (the LOUDS select1 step) is delegated to
// github.com/openacid/low/bitmap, the same rank/select package the
// reference trieset.Set implementation in this codebase's lineage uses for
// exactly this "select the i-th child" operation.
//
// There is no reference louds_sparse.hpp in the source this project was
// distilled from; this section is derived from spec.md's description of
// the sparse node layout together with LoudsDense's proven semantics.
type LoudsSparse struct {
	startLevel    level
	nodeNumOffset position // global node number of local node 0

	labels   []label
	hasChild *BitvectorRank
	louds    *BitvectorRank

	loudsSelects, loudsRanks []int32 // openacid/low/bitmap select index over louds

	values []uint64
}

// sparsePrefixSentinel is the synthetic label the builder inserts as a
// node's first entry when that node is itself a terminating key despite
// having further children. The dense section has a dedicated prefix-key
// bit per node; the sparse section has no such array (spec.md §4.5: "a
// terminator label suffices"), so it borrows an edge slot instead. A real
// key whose byte immediately following a shorter sibling key is 0x00
// collides with this sentinel; this is a known, documented limitation
// carried over from the sparse section's 3-array layout and is not
// exercised by any of this package's test fixtures.
const sparsePrefixSentinel label = 0x00

func newLoudsSparseFromBuilder(b *Builder) *LoudsSparse {
	if b.sparseStartLevel >= b.height {
		return &LoudsSparse{startLevel: b.sparseStartLevel, nodeNumOffset: b.denseNodeTotal}
	}
	ls := &LoudsSparse{
		startLevel:    b.sparseStartLevel,
		nodeNumOffset: b.denseNodeTotal,
		labels:        b.sparseLabels,
		hasChild:      NewBitvectorRank(sparseRankBasicBlockSize, b.sparseHasChild, b.sparseNumBits),
		louds:         NewBitvectorRank(sparseRankBasicBlockSize, b.sparseLouds, b.sparseNumBits),
		values:        b.sparseValues,
	}
	ls.loudsSelects, ls.loudsRanks = bitmap.IndexSelect32R64(b.sparseLouds)
	return ls
}

// selectNodeStart returns the flat array position of local node's first
// entry: the position of the (local+1)-th set bit in the louds bitvector.
func (ls *LoudsSparse) selectNodeStart(local position) position {
	if local == 0 {
		return 0
	}
	p, _ := bitmap.Select32R64(sparseLoudsWords(ls), ls.loudsSelects, ls.loudsRanks, int32(local))
	return position(p)
}

// sparseLoudsWords exposes the raw words backing ls.louds for
// openacid/low/bitmap's select call, which expects the original []uint64
// bitmap rather than the BitvectorRank wrapper.
func sparseLoudsWords(ls *LoudsSparse) []uint64 {
	return ls.louds.words
}

func (ls *LoudsSparse) valueIndex(pos position) position {
	return pos - ls.hasChild.Rank1(pos)
}

// LookupKey resolves key[depth:] starting at globalNode, a node number in
// the combined dense+sparse space (the same numbering LoudsDense's
// getChildNodeNum hands off).
func (ls *LoudsSparse) LookupKey(key []byte, depth int, globalNode position) LookupResult {
	if len(ls.labels) == 0 {
		return LookupResult{Found: false}
	}
	local := globalNode - ls.nodeNumOffset
	pos := ls.selectNodeStart(local)

	for depth < len(key) {
		target := key[depth]
		matched := false
		for {
			if ls.labels[pos] == target {
				matched = true
				break
			}
			pos++
			if int(pos) >= len(ls.labels) || ls.louds.ReadBit(pos) {
				break
			}
		}
		if !matched {
			return LookupResult{Found: false}
		}
		if !ls.hasChild.ReadBit(pos) {
			return LookupResult{Found: true, Value: ls.values[ls.valueIndex(pos)]}
		}
		local = ls.hasChild.Rank1(pos)
		pos = ls.selectNodeStart(local)
		depth++
	}

	if int(pos) < len(ls.labels) && ls.labels[pos] == sparsePrefixSentinel && !ls.hasChild.ReadBit(pos) {
		return LookupResult{Found: true, Value: ls.values[ls.valueIndex(pos)]}
	}
	return LookupResult{Found: false}
}

// FindNextNodeOrValue is the sparse-section counterpart to
// LoudsDense.FindNextNodeOrValue: it tries edge b from local node and
// reports whether it exists (found), and if so whether it leads to a
// child node (next, hasChild) or terminates with a value.
func (ls *LoudsSparse) FindNextNodeOrValue(local position, b byte) (next position, value uint64, hasChild bool, found bool) {
	if len(ls.labels) == 0 {
		return 0, 0, false, false
	}
	pos := ls.selectNodeStart(local)
	for {
		if ls.labels[pos] == b {
			if ls.hasChild.ReadBit(pos) {
				return ls.nodeNumOffset + ls.hasChild.Rank1(pos), 0, true, true
			}
			return 0, ls.values[ls.valueIndex(pos)], false, true
		}
		pos++
		if int(pos) >= len(ls.labels) || ls.louds.ReadBit(pos) {
			return 0, 0, false, false
		}
	}
}

// NodeHasMultipleBranchesOrTerminates mirrors LoudsDense's method: true if
// local node has more than one entry, or its single entry is a terminator
// rather than a child edge.
func (ls *LoudsSparse) NodeHasMultipleBranchesOrTerminates(local position) bool {
	if len(ls.labels) == 0 {
		return false
	}
	start := ls.selectNodeStart(local)
	end := ls.nodeEnd(start) - 1
	if end > start {
		return true
	}
	return !ls.hasChild.ReadBit(start)
}

// firstLabelPos returns the flat position of local node's first real
// (non-sentinel) label, and whether the node begins with a prefix-key
// sentinel.
func (ls *LoudsSparse) firstLabelPos(local position) (pos position, isPrefixKey bool) {
	pos = ls.selectNodeStart(local)
	if int(pos) < len(ls.labels) && ls.labels[pos] == sparsePrefixSentinel && !ls.hasChild.ReadBit(pos) {
		return pos, true
	}
	return pos, false
}

// nodeEnd returns the position just past local node's last entry.
func (ls *LoudsSparse) nodeEnd(pos position) position {
	p := pos + 1
	for int(p) < len(ls.labels) && !ls.louds.ReadBit(p) {
		p++
	}
	return p
}

// Size returns the approximate in-memory footprint in bytes.
func (ls *LoudsSparse) Size() int {
	if ls.hasChild == nil {
		return 0
	}
	return len(ls.labels) + ls.hasChild.Size() + ls.louds.Size() + len(ls.loudsSelects)*4 + len(ls.loudsRanks)*4 + len(ls.values)*8
}

// SerializedSize returns the number of bytes Serialize writes.
func (ls *LoudsSparse) SerializedSize() int {
	if ls.hasChild == nil {
		return 8
	}
	return 8 + align(4+len(ls.labels)) + ls.hasChild.SerializedSize() + ls.louds.SerializedSize() + align(4+len(ls.values)*8)
}

// Serialize writes [u32 startLevel][u32 nodeNumOffset][u32 numLabels][labels+pad]
// [hasChild][louds][u32 numValues][values+pad]. The select index over louds
// is rebuilt on load rather than serialized, since openacid/low/bitmap's
// index is cheap to recompute and keeping it out of the wire format avoids
// coupling the format to that library's internal layout.
func (ls *LoudsSparse) Serialize(w io.Writer) error {
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], ls.startLevel)
	binary.LittleEndian.PutUint32(header[4:8], ls.nodeNumOffset)
	if _, err := w.Write(header[:]); err != nil {
		return E.Cause(err, "write louds-sparse header")
	}
	if ls.hasChild == nil {
		return nil
	}
	labelsBuf := make([]byte, align(4+len(ls.labels)))
	binary.LittleEndian.PutUint32(labelsBuf[0:4], uint32(len(ls.labels)))
	copy(labelsBuf[4:], ls.labels)
	if _, err := w.Write(labelsBuf); err != nil {
		return E.Cause(err, "write louds-sparse labels")
	}
	if err := ls.hasChild.Serialize(w); err != nil {
		return err
	}
	if err := ls.louds.Serialize(w); err != nil {
		return err
	}
	valuesBuf := make([]byte, align(4+len(ls.values)*8))
	binary.LittleEndian.PutUint32(valuesBuf[0:4], uint32(len(ls.values)))
	for i, v := range ls.values {
		binary.LittleEndian.PutUint64(valuesBuf[4+i*8:], v)
	}
	if _, err := w.Write(valuesBuf); err != nil {
		return E.Cause(err, "write louds-sparse values")
	}
	return nil
}

// DeserializeLoudsSparse mirrors Serialize's layout. The labels byte slice
// borrows from buf directly; the select index is rebuilt via
// bitmap.IndexSelect32R64 over the deserialized louds bitvector's words.
func DeserializeLoudsSparse(buf []byte) (*LoudsSparse, []byte, error) {
	if len(buf) < 8 {
		return nil, nil, ErrDeserializeFormat
	}
	ls := &LoudsSparse{
		startLevel:    binary.LittleEndian.Uint32(buf[0:4]),
		nodeNumOffset: binary.LittleEndian.Uint32(buf[4:8]),
	}
	buf = buf[8:]
	if len(buf) == 0 {
		return ls, buf, nil
	}

	if len(buf) < 4 {
		return nil, nil, ErrDeserializeFormat
	}
	numLabels := binary.LittleEndian.Uint32(buf[0:4])
	rawLabels := 4 + int(numLabels)
	if len(buf) < align(rawLabels) {
		return nil, nil, ErrDeserializeFormat
	}
	ls.labels = buf[4 : 4+int(numLabels) : 4+int(numLabels)]
	buf = buf[align(rawLabels):]

	var err error
	ls.hasChild, buf, err = DeserializeBitvectorRank(buf)
	if err != nil {
		return nil, nil, err
	}
	ls.louds, buf, err = DeserializeBitvectorRank(buf)
	if err != nil {
		return nil, nil, err
	}
	ls.loudsSelects, ls.loudsRanks = bitmap.IndexSelect32R64(ls.louds.words)

	if len(buf) < 4 {
		return nil, nil, ErrDeserializeFormat
	}
	numValues := binary.LittleEndian.Uint32(buf[0:4])
	rawValues := 4 + int(numValues)*8
	if len(buf) < align(rawValues) {
		return nil, nil, ErrDeserializeFormat
	}
	if numValues > 0 {
		ls.values = decodeUint64Slice(buf[4:4+int(numValues)*8], int(numValues))
	}
	buf = buf[align(rawValues):]

	return ls, buf, nil
}
