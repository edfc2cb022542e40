package fst

import (
	"encoding/binary"
	"io"
	"math/bits"
	"unsafe"

	E "github.com/sagernet/sing-fst/internal/exceptions"
)

// InterleavedBitvectorRank stores a label bitvector and a same-length child
// bitvector with their 64-bit words alternating (word 2i holds the label's
// word i, word 2i+1 holds the child's word i), so that a dense-node lookup
// reading both bits at the same position touches a single cache line.
// ReadLabelBit/ReadChildBit/RankLabel/RankChild all take pos in the
// original, un-interleaved bit space.
type InterleavedBitvectorRank struct {
	words          []uint64
	numBits        position // length of either source bitvector, NOT doubled
	basicBlockSize position
	rankLUTLabel   []position
	rankLUTChild   []position
}

// NewInterleavedBitvectorRank interleaves labels and children, which must
// have the same length.
func NewInterleavedBitvectorRank(basicBlockSize position, labels, children *BitvectorRank) *InterleavedBitvectorRank {
	if labels.NumWords() != children.NumWords() {
		panic("fst: interleaved bitvector operands have mismatched word counts")
	}
	words := make([]uint64, labels.NumWords()<<1)
	for i := position(0); i < labels.NumWords(); i++ {
		words[i<<1] = labels.GetWord(i)
		words[(i<<1)+1] = children.GetWord(i)
	}
	ibv := &InterleavedBitvectorRank{
		words:          words,
		numBits:        labels.NumBits(),
		basicBlockSize: basicBlockSize,
	}
	ibv.rankLUTLabel = ibv.buildLaneLUT(0)
	ibv.rankLUTChild = ibv.buildLaneLUT(1)
	return ibv
}

// buildLaneLUT builds a per-lane rank lookup table the same way
// BitvectorRank does, except the popcount for each block only visits that
// lane's words (every other word, offset by laneOffset).
func (ibv *InterleavedBitvectorRank) buildLaneLUT(laneOffset position) []position {
	wordsPerBlock := ibv.basicBlockSize / wordSize
	numBlocks := ibv.numBits/ibv.basicBlockSize + 1
	lut := make([]position, numBlocks)
	var cumulative position
	for i := position(0); i < numBlocks-1; i++ {
		lut[i] = cumulative
		startWord := laneOffset + i*wordsPerBlock*2
		cumulative += popcountLinearSkipping(ibv.words, startWord, ibv.basicBlockSize)
	}
	lut[numBlocks-1] = cumulative
	return lut
}

// popcountLinearSkipping sums popcounts over one lane's words only (every
// other word starting at startWord), covering numBits logical bits.
func popcountLinearSkipping(words []uint64, startWord position, numBits position) position {
	var count position
	w := startWord
	remaining := numBits
	for remaining >= wordSize {
		count += position(bits.OnesCount64(words[w]))
		w += 2
		remaining -= wordSize
	}
	if remaining > 0 {
		mask := ^uint64(0) << (wordSize - remaining)
		count += position(bits.OnesCount64(words[w] & mask))
	}
	return count
}

// ReadLabelBit reads the label bitmap's bit at pos.
func (ibv *InterleavedBitvectorRank) ReadLabelBit(pos position) bool {
	wordID := (pos / wordSize) << 1
	offset := pos % wordSize
	return ibv.words[wordID]&(msbMask>>offset) != 0
}

// ReadChildBit reads the child bitmap's bit at pos.
func (ibv *InterleavedBitvectorRank) ReadChildBit(pos position) bool {
	wordID := ((pos / wordSize) << 1) + 1
	offset := pos % wordSize
	return ibv.words[wordID]&(msbMask>>offset) != 0
}

// RankLabel returns rank1(pos) over the label bitmap.
func (ibv *InterleavedBitvectorRank) RankLabel(pos position) position {
	return ibv.rank(pos, 0, ibv.rankLUTLabel)
}

// RankChild returns rank1(pos) over the child bitmap.
func (ibv *InterleavedBitvectorRank) RankChild(pos position) position {
	return ibv.rank(pos, 1, ibv.rankLUTChild)
}

func (ibv *InterleavedBitvectorRank) rank(pos, laneOffset position, lut []position) position {
	wordsPerBlock := ibv.basicBlockSize / wordSize
	block := pos / ibv.basicBlockSize
	offset := pos % ibv.basicBlockSize
	startWord := laneOffset + block*wordsPerBlock*2
	return lut[block] + popcountLinearSkipping(ibv.words, startWord, offset+1)
}

// Size returns the approximate in-memory footprint in bytes.
func (ibv *InterleavedBitvectorRank) Size() int {
	return len(ibv.words)*8 + (len(ibv.rankLUTLabel)+len(ibv.rankLUTChild))*4
}

// SerializedSize returns the number of bytes Serialize writes.
func (ibv *InterleavedBitvectorRank) SerializedSize() int {
	raw := 4 + 4 + len(ibv.words)*8 + (len(ibv.rankLUTLabel)+len(ibv.rankLUTChild))*4
	return align(raw)
}

// Serialize writes [u32 numBits][u32 basicBlockSize][words][labelLUT][childLUT],
// padded to 8-byte alignment.
func (ibv *InterleavedBitvectorRank) Serialize(w io.Writer) error {
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], ibv.numBits)
	binary.LittleEndian.PutUint32(header[4:8], ibv.basicBlockSize)
	if _, err := w.Write(header[:]); err != nil {
		return E.Cause(err, "write interleaved header")
	}
	wordBuf := make([]byte, len(ibv.words)*8)
	for i, word := range ibv.words {
		binary.LittleEndian.PutUint64(wordBuf[i*8:], word)
	}
	if _, err := w.Write(wordBuf); err != nil {
		return E.Cause(err, "write interleaved words")
	}
	for _, lut := range [][]position{ibv.rankLUTLabel, ibv.rankLUTChild} {
		lutBuf := make([]byte, len(lut)*4)
		for i, entry := range lut {
			binary.LittleEndian.PutUint32(lutBuf[i*4:], entry)
		}
		if _, err := w.Write(lutBuf); err != nil {
			return E.Cause(err, "write interleaved rank lut")
		}
	}
	written := 8 + len(wordBuf) + (len(ibv.rankLUTLabel)+len(ibv.rankLUTChild))*4
	padding := ibv.SerializedSize() - written
	if padding > 0 {
		if _, err := w.Write(make([]byte, padding)); err != nil {
			return E.Cause(err, "write interleaved padding")
		}
	}
	return nil
}

// DeserializeInterleavedBitvectorRank mirrors DeserializeBitvectorRank's
// borrowing semantics.
func DeserializeInterleavedBitvectorRank(buf []byte) (*InterleavedBitvectorRank, []byte, error) {
	if len(buf) < 8 {
		return nil, nil, ErrDeserializeFormat
	}
	numBits := binary.LittleEndian.Uint32(buf[0:4])
	basicBlockSize := binary.LittleEndian.Uint32(buf[4:8])
	if basicBlockSize == 0 || basicBlockSize%wordSize != 0 {
		return nil, nil, E.Cause(ErrDeserializeFormat, "invalid basic block size ", basicBlockSize)
	}
	buf = buf[8:]

	numWords := (numBits / wordSize) << 1
	if numBits%wordSize != 0 {
		numWords += 2
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
	if len(buf) < lutBytes*2 {
		return nil, nil, ErrDeserializeFormat
	}
	var lutLabel, lutChild []position
	lutLabel = unsafe.Slice((*position)(unsafe.Pointer(&buf[0])), numBlocks)
	buf = buf[lutBytes:]
	lutChild = unsafe.Slice((*position)(unsafe.Pointer(&buf[0])), numBlocks)
	buf = buf[lutBytes:]

	raw := 8 + wordBytes + lutBytes*2
	padding := align(raw) - raw
	if len(buf) < padding {
		return nil, nil, ErrDeserializeFormat
	}
	buf = buf[padding:]

	ibv := &InterleavedBitvectorRank{
		words:          words,
		numBits:        numBits,
		basicBlockSize: basicBlockSize,
		rankLUTLabel:   lutLabel,
		rankLUTChild:   lutChild,
	}
	return ibv, buf, nil
}
