package fst

import (
	"encoding/binary"
	"io"
	"math/bits"
	"unsafe"

	E "github.com/sagernet/sing-fst/internal/exceptions"
)

// BitvectorRank is a packed bit-array with O(1) rank1 via a precomputed
// per-basic-block popcount lookup table. Bits are stored 64 per word,
// big-endian (MSB-first) within a word: bit b of the array sits at
// mask 1<<(63-(b%64)) of words[b/64].
type BitvectorRank struct {
	words          []uint64
	numBits        position
	basicBlockSize position
	rankLUT        []position
}

// NewBitvectorRank builds a rank structure over words, which must hold at
// least ceil(numBits/64) entries. words is retained, not copied.
func NewBitvectorRank(basicBlockSize position, words []uint64, numBits position) *BitvectorRank {
	bv := &BitvectorRank{
		words:          words,
		numBits:        numBits,
		basicBlockSize: basicBlockSize,
	}
	bv.initRankLUT()
	return bv
}

func (bv *BitvectorRank) initRankLUT() {
	wordsPerBlock := bv.basicBlockSize / wordSize
	numBlocks := bv.numBits/bv.basicBlockSize + 1
	lut := make([]position, numBlocks)
	var cumulative position
	for i := position(0); i < numBlocks-1; i++ {
		lut[i] = cumulative
		cumulative += popcountLinear(bv.words, i*wordsPerBlock, bv.basicBlockSize)
	}
	lut[numBlocks-1] = cumulative
	bv.rankLUT = lut
}

// popcountLinear counts set bits among the first numBits bits starting at
// word index startWord (MSB-first within each word).
func popcountLinear(words []uint64, startWord position, numBits position) position {
	var count position
	w := startWord
	remaining := numBits
	for remaining >= wordSize {
		count += position(bits.OnesCount64(words[w]))
		w++
		remaining -= wordSize
	}
	if remaining > 0 {
		mask := ^uint64(0) << (wordSize - remaining)
		count += position(bits.OnesCount64(words[w] & mask))
	}
	return count
}

// ReadBit reports whether bit pos is set.
func (bv *BitvectorRank) ReadBit(pos position) bool {
	wordID := pos / wordSize
	offset := pos % wordSize
	return bv.words[wordID]&(msbMask>>offset) != 0
}

const msbMask uint64 = 1 << 63

// Rank1 returns the number of set bits in [0, pos], one-based.
func (bv *BitvectorRank) Rank1(pos position) position {
	wordsPerBlock := bv.basicBlockSize / wordSize
	block := pos / bv.basicBlockSize
	offset := pos % bv.basicBlockSize
	return bv.rankLUT[block] + popcountLinear(bv.words, block*wordsPerBlock, offset+1)
}

// DistanceToNextSetBit returns the distance from pos to the nearest set bit
// strictly after pos. If none exists, it returns numBits-pos, which is
// always large enough to push callers across any remaining node boundary.
func (bv *BitvectorRank) DistanceToNextSetBit(pos position) position {
	for p := pos + 1; p < bv.numBits; p++ {
		if bv.ReadBit(p) {
			return p - pos
		}
	}
	return bv.numBits - pos
}

// DistanceToPrevSetBit returns the distance from pos to the nearest set bit
// strictly before pos. If none exists it returns pos+1, so pos-distance
// underflows; if the nearest one is position 0 it returns pos. Callers
// treat any distance >= pos as out of bound, matching the reference
// implementation's off-by-one treatment of the array's start.
func (bv *BitvectorRank) DistanceToPrevSetBit(pos position) position {
	if pos == 0 {
		return 1
	}
	for p := int64(pos) - 1; p >= 0; p-- {
		if bv.ReadBit(position(p)) {
			return pos - position(p)
		}
	}
	return pos + 1
}

// NumSetBitsInDenseNode scans the 256-slot window of node and returns the
// number of set labels and, if any, the first one encountered.
func (bv *BitvectorRank) NumSetBitsInDenseNode(node position) (count position, firstLabel label) {
	base := node * nodeFanout
	for i := position(0); i < nodeFanout; i++ {
		if bv.ReadBit(base + i) {
			if count == 0 {
				firstLabel = byte(i)
			}
			count++
		}
	}
	return
}

// NumBits returns the length of the bit array.
func (bv *BitvectorRank) NumBits() position { return bv.numBits }

// NumWords returns len(words).
func (bv *BitvectorRank) NumWords() position { return position(len(bv.words)) }

// GetWord returns the raw word at index i, used by InterleavedBitvectorRank
// to build its interleaved storage.
func (bv *BitvectorRank) GetWord(i position) uint64 { return bv.words[i] }

// Size returns the approximate in-memory footprint in bytes.
func (bv *BitvectorRank) Size() int {
	return len(bv.words)*8 + len(bv.rankLUT)*4
}

// SerializedSize returns the number of bytes Serialize writes, including
// trailing alignment padding.
func (bv *BitvectorRank) SerializedSize() int {
	raw := 4 + 4 + len(bv.words)*8 + len(bv.rankLUT)*4
	return align(raw)
}

// Serialize writes [u32 numBits][u32 basicBlockSize][words][lut], padded
// to 8-byte alignment.
func (bv *BitvectorRank) Serialize(w io.Writer) error {
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], bv.numBits)
	binary.LittleEndian.PutUint32(header[4:8], bv.basicBlockSize)
	if _, err := w.Write(header[:]); err != nil {
		return E.Cause(err, "write bitvector header")
	}
	wordBuf := make([]byte, len(bv.words)*8)
	for i, word := range bv.words {
		binary.LittleEndian.PutUint64(wordBuf[i*8:], word)
	}
	if _, err := w.Write(wordBuf); err != nil {
		return E.Cause(err, "write bitvector words")
	}
	lutBuf := make([]byte, len(bv.rankLUT)*4)
	for i, entry := range bv.rankLUT {
		binary.LittleEndian.PutUint32(lutBuf[i*4:], entry)
	}
	if _, err := w.Write(lutBuf); err != nil {
		return E.Cause(err, "write bitvector rank lut")
	}
	padding := bv.SerializedSize() - (8 + len(wordBuf) + len(lutBuf))
	if padding > 0 {
		if _, err := w.Write(make([]byte, padding)); err != nil {
			return E.Cause(err, "write bitvector padding")
		}
	}
	return nil
}

// DeserializeBitvectorRank reads a BitvectorRank from buf and returns the
// remaining, unconsumed tail. The returned structure borrows directly from
// buf's backing array via an unsafe reinterpretation of its word and LUT
// regions: buf must outlive the returned value and must not be freed while
// it is in use, and must be 8-byte aligned (true of any slice backed by a
// []byte allocated by Go's allocator, since Go guarantees word alignment
// for allocations of this size). Like the rest of the serialized format,
// this assumes a little-endian host; Serialize always writes little-endian,
// so round-tripping on a big-endian machine would require a byte-swapping
// path this package does not implement.
func DeserializeBitvectorRank(buf []byte) (*BitvectorRank, []byte, error) {
	if len(buf) < 8 {
		return nil, nil, ErrDeserializeFormat
	}
	if uintptr(unsafe.Pointer(&buf[0]))%8 != 0 {
		return nil, nil, E.Cause(ErrDeserializeFormat, "bitvector data is not 8-byte aligned")
	}
	numBits := binary.LittleEndian.Uint32(buf[0:4])
	basicBlockSize := binary.LittleEndian.Uint32(buf[4:8])
	if basicBlockSize == 0 || basicBlockSize%wordSize != 0 {
		return nil, nil, E.Cause(ErrDeserializeFormat, "invalid basic block size ", basicBlockSize)
	}
	buf = buf[8:]

	numWords := numBits / wordSize
	if numBits%wordSize != 0 {
		numWords++
	}
	wordBytes := int(numWords) * 8
	if len(buf) < wordBytes {
		return nil, nil, ErrDeserializeFormat
	}
	var words []uint64
	if numWords > 0 {
		words = unsafe.Slice((*uint64)(unsafe.Pointer(&buf[0])), numWords)
	}
	buf = buf[wordBytes:]

	numBlocks := numBits/basicBlockSize + 1
	lutBytes := int(numBlocks) * 4
	if len(buf) < lutBytes {
		return nil, nil, ErrDeserializeFormat
	}
	var lut []position
	if numBlocks > 0 {
		lut = unsafe.Slice((*position)(unsafe.Pointer(&buf[0])), numBlocks)
	}
	buf = buf[lutBytes:]

	raw := 8 + wordBytes + lutBytes
	padding := align(raw) - raw
	if len(buf) < padding {
		return nil, nil, ErrDeserializeFormat
	}
	buf = buf[padding:]

	bv := &BitvectorRank{
		words:          words,
		numBits:        numBits,
		basicBlockSize: basicBlockSize,
		rankLUT:        lut,
	}
	return bv, buf, nil
}
