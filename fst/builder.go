package fst

import (
	"bytes"

	"github.com/sagernet/sing-fst/internal/flog"
)

var builderLog = flog.NewLogger("fst/builder")

// Config carries the Builder's non-default parameters (spec.md §4.3).
type Config struct {
	// IncludeDense, if false, forces the entire trie into the sparse
	// section (sparse start level 0).
	IncludeDense bool `json:"include_dense"`

	// SparseDenseRatio governs how aggressively the builder keeps a
	// level dense: a level is retained in the dense section while
	// dense_bits(level) <= SparseDenseRatio * sparse_bits(level).
	SparseDenseRatio uint32 `json:"sparse_dense_ratio"`
}

// DefaultConfig returns the parameters the original sources default to.
func DefaultConfig() Config {
	return Config{IncludeDense: true, SparseDenseRatio: 16}
}

// nodeRecord is the builder's intermediate, section-agnostic representation
// of a single trie node: its outgoing labels in ascending order, whether
// each one leads to a child node, and whether the node itself terminates a
// key despite having children (a "prefix key").
type nodeRecord struct {
	labels      []label
	hasChild    []bool
	values      []uint64 // parallel to labels; meaningful only where hasChild[i] is false
	isPrefixKey bool
	prefixValue uint64
}

// Builder consumes sorted (key, value) pairs and produces the per-level
// bitmaps, LOUDS bits and value arrays that LoudsDense and LoudsSparse are
// built from. A Builder is used once.
type Builder struct {
	config Config

	levels [][]*nodeRecord // levels[level], nodes in left-to-right order

	height           level
	sparseStartLevel level

	// outputs, populated by Build
	denseLabels      []uint64
	denseChildren    []uint64
	densePrefixKeys  []uint64
	denseValues      []uint64
	denseNumBits     position
	densePrefixBits  position
	denseNodeCounts  []position // per dense level, for prefix-bit concatenation

	denseNodeTotal position // total node count across all dense levels

	sparseLabels   []label
	sparseHasChild []uint64
	sparseLouds    []uint64
	sparseValues   []uint64
	sparseNumBits  position // length of the has_child/louds bit arrays

	nodeCounts []position // per level (both sections), global node numbering
}

// NewBuilder creates a Builder with the given configuration.
func NewBuilder(config Config) *Builder {
	return &Builder{config: config}
}

// Build ingests the sorted, deduplicated (keys, values) pairs and produces
// the dense/sparse section data. keys must be strictly increasing.
func (b *Builder) Build(keys []string, values []uint64) error {
	if len(keys) != len(values) {
		return ErrValueCountMismatch
	}
	if err := b.constructTrie(keys, values); err != nil {
		return err
	}
	b.height = level(len(b.levels))
	b.decideSparseStartLevel()
	b.materializeDense()
	b.materializeSparse()
	builderLog.Debugf("built fst: height=%d sparseStartLevel=%d nodes=%d", b.height, b.sparseStartLevel, b.totalNodes())
	return nil
}

func (b *Builder) totalNodes() position {
	var n position
	for _, c := range b.nodeCounts {
		n += c
	}
	return n
}

// terminatorLoc pins the exact slot of a key's still-open terminator entry,
// in case the next key turns out to share it as a strict prefix.
type terminatorLoc struct {
	level    level
	nodeIdx  int
	labelIdx int
}

func (b *Builder) constructTrie(keys []string, values []uint64) error {
	var prevKey []byte
	var pending terminatorLoc
	havePending := false

	for i, key := range keys {
		keyBytes := []byte(key)
		if i > 0 && bytes.Compare(prevKey, keyBytes) >= 0 {
			return ErrDuplicateOrUnsortedKey
		}
		commonLen := commonPrefixLen(prevKey, keyBytes)

		if i > 0 && commonLen == len(prevKey) {
			// prevKey is a strict prefix of key: convert its pending
			// terminator into the new, deeper node's prefix-key marker.
			if !havePending {
				panic("fst: builder invariant violation: missing pending terminator")
			}
			node := b.levels[pending.level][pending.nodeIdx]
			node.hasChild[pending.labelIdx] = true
			node.values[pending.labelIdx] = 0
		}

		var node *nodeRecord
		var nodeIdx int
		for lvl := commonLen; lvl < len(keyBytes); lvl++ {
			if lvl == commonLen && commonLen < len(prevKey) {
				nodeIdx = len(b.levels[lvl]) - 1
				node = b.levels[lvl][nodeIdx]
			} else {
				node = &nodeRecord{}
				if lvl == commonLen && commonLen == len(prevKey) && i > 0 {
					node.isPrefixKey = true
					node.prefixValue = values[i-1]
				}
				for level(len(b.levels)) <= level(lvl) {
					b.levels = append(b.levels, nil)
				}
				b.levels[lvl] = append(b.levels[lvl], node)
				nodeIdx = len(b.levels[lvl]) - 1
			}

			isLast := lvl == len(keyBytes)-1
			node.labels = append(node.labels, keyBytes[lvl])
			node.hasChild = append(node.hasChild, !isLast)
			if isLast {
				node.values = append(node.values, values[i])
				pending = terminatorLoc{level: level(lvl), nodeIdx: nodeIdx, labelIdx: len(node.labels) - 1}
				havePending = true
			} else {
				node.values = append(node.values, 0)
			}
		}
		prevKey = keyBytes
	}
	return nil
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// decideSparseStartLevel walks levels top-down and keeps a level dense
// while its dense encoding cost stays within the configured ratio of its
// sparse encoding cost (spec.md §4.3 step 3).
func (b *Builder) decideSparseStartLevel() {
	if !b.config.IncludeDense {
		b.sparseStartLevel = 0
		return
	}
	var lvl level
	for lvl = 0; lvl < b.height; lvl++ {
		nodes := b.levels[lvl]
		denseBits := position(len(nodes)) * nodeFanout
		var sparseBits position
		for _, n := range nodes {
			sparseBits += position(len(n.labels)) * 10 // 8(label) + 1(hasChild) + 1(louds)
		}
		if uint64(denseBits) > uint64(b.config.SparseDenseRatio)*uint64(sparseBits) {
			break
		}
	}
	b.sparseStartLevel = lvl
}

func (b *Builder) materializeDense() {
	b.nodeCounts = make([]position, b.height)
	for lvl := level(0); lvl < b.height; lvl++ {
		b.nodeCounts[lvl] = position(len(b.levels[lvl]))
	}

	if b.sparseStartLevel == 0 {
		return
	}

	var totalDenseNodes position
	b.denseNodeCounts = make([]position, b.sparseStartLevel)
	for lvl := level(0); lvl < b.sparseStartLevel; lvl++ {
		b.denseNodeCounts[lvl] = position(len(b.levels[lvl]))
		totalDenseNodes += b.denseNodeCounts[lvl]
	}
	b.denseNumBits = totalDenseNodes * nodeFanout
	b.densePrefixBits = totalDenseNodes
	b.denseNodeTotal = totalDenseNodes

	labelWords := wordsFor(b.denseNumBits)
	childWords := wordsFor(b.denseNumBits)
	prefixWords := wordsFor(b.densePrefixBits)
	b.denseLabels = make([]uint64, labelWords)
	b.denseChildren = make([]uint64, childWords)
	b.densePrefixKeys = make([]uint64, prefixWords)

	var nodeNum position
	for lvl := level(0); lvl < b.sparseStartLevel; lvl++ {
		for _, node := range b.levels[lvl] {
			base := nodeNum * nodeFanout
			if node.isPrefixKey {
				setBit(b.densePrefixKeys, nodeNum)
			}
			for i, lbl := range node.labels {
				pos := base + position(lbl)
				setBit(b.denseLabels, pos)
				if node.hasChild[i] {
					setBit(b.denseChildren, pos)
				}
			}
			nodeNum++
		}
	}

	// values, walked in flat (node-major, label-ascending) position order,
	// matching the rank-based value-index formula LoudsDense uses.
	for lvl := level(0); lvl < b.sparseStartLevel; lvl++ {
		for _, node := range b.levels[lvl] {
			if node.isPrefixKey {
				b.denseValues = append(b.denseValues, node.prefixValue)
			}
			for i := range node.labels {
				if !node.hasChild[i] {
					b.denseValues = append(b.denseValues, node.values[i])
				}
			}
		}
	}
}

func (b *Builder) materializeSparse() {
	if b.sparseStartLevel >= b.height {
		return
	}

	type flatPos struct {
		label    label
		hasChild bool
		loudsBit bool
		value    uint64
		isValue  bool
	}
	var flat []flatPos

	for lvl := b.sparseStartLevel; lvl < b.height; lvl++ {
		for _, node := range b.levels[lvl] {
			start := len(flat)
			if node.isPrefixKey {
				flat = append(flat, flatPos{label: 0x00, hasChild: false, loudsBit: true, value: node.prefixValue, isValue: true})
			}
			for i, lbl := range node.labels {
				flat = append(flat, flatPos{
					label:    lbl,
					hasChild: node.hasChild[i],
					loudsBit: len(flat) == start && !node.isPrefixKey,
					value:    node.values[i],
					isValue:  !node.hasChild[i],
				})
			}
			if len(flat) == start {
				// node with no outgoing labels at all cannot happen for a
				// well-formed trie (every node has >=1 label), but guard
				// against degenerate input rather than emit an empty node.
				continue
			}
		}
	}

	b.sparseNumBits = position(len(flat))
	b.sparseLabels = make([]label, len(flat))
	hasChildWords := wordsFor(b.sparseNumBits)
	loudsWords := wordsFor(b.sparseNumBits)
	b.sparseHasChild = make([]uint64, hasChildWords)
	b.sparseLouds = make([]uint64, loudsWords)

	for i, fp := range flat {
		b.sparseLabels[i] = fp.label
		if fp.hasChild {
			setBit(b.sparseHasChild, position(i))
		}
		if fp.loudsBit {
			setBit(b.sparseLouds, position(i))
		}
		if fp.isValue {
			b.sparseValues = append(b.sparseValues, fp.value)
		}
	}
}

func wordsFor(numBits position) position {
	w := numBits / wordSize
	if numBits%wordSize != 0 {
		w++
	}
	return w
}

// setBit sets bit pos in a big-endian (MSB-first) packed bit array,
// growing nothing — words must already be sized to hold pos.
func setBit(words []uint64, pos position) {
	wordID := pos / wordSize
	offset := pos % wordSize
	words[wordID] |= msbMask >> offset
}
