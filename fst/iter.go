package fst

import "bytes"

// iterFrame is one level of an Iter's root-to-current path.
type iterFrame struct {
	sparse   bool
	node     position // dense: global node number; sparse: local node number
	pos      position // current flat bit/array position within the node
	endPos   position // last valid position in the node (dense: node*256+255; sparse: inclusive)
	atPrefix bool     // sitting at the node's own prefix-key value, label not yet chosen
}

// Iter is a bidirectional cursor over an FST's keys, in sorted order.
// The zero value is not valid; obtain one via FST.MoveToFirst,
// FST.MoveToLast, FST.MoveToKeyGreaterThan or FST.MoveToKeyLessThan.
type Iter struct {
	fst    *FST
	frames []iterFrame
	key    []byte
	valid  bool
}

// Valid reports whether the iterator currently denotes a key.
func (it *Iter) Valid() bool { return it.valid }

// Key returns the current key. Only meaningful while Valid.
func (it *Iter) Key() []byte { return it.key }

// Compare reports bytes.Compare(it.Key(), key). Only meaningful while Valid.
func (it *Iter) Compare(key []byte) int { return bytes.Compare(it.key, key) }

// Value returns the value associated with the current key. Only
// meaningful while Valid.
func (it *Iter) Value() uint64 {
	top := it.frames[len(it.frames)-1]
	if !top.sparse {
		if top.atPrefix {
			return it.fst.dense.values[it.fst.dense.prefixValueIndex(top.node)]
		}
		return it.fst.dense.values[it.fst.dense.valueIndex(top.pos, top.node)]
	}
	return it.fst.sparse.values[it.fst.sparse.valueIndex(top.pos)]
}

// MoveToFirst returns an iterator positioned at the smallest key.
func (f *FST) MoveToFirst() *Iter {
	it := &Iter{fst: f}
	if f.dense.height > 0 {
		it.descendLeftmostDense(0, 0)
	} else {
		it.descendLeftmostSparse(0)
	}
	return it
}

// MoveToLast returns an iterator positioned at the largest key.
func (f *FST) MoveToLast() *Iter {
	it := &Iter{fst: f}
	if f.dense.height > 0 {
		it.descendRightmostDense(0)
	} else {
		it.descendRightmostSparse(0)
	}
	return it
}

func (it *Iter) descendLeftmostDense(node position, depth level) {
	dense := it.fst.dense
	for {
		if dense.prefixKeys.ReadBit(node) {
			it.frames = append(it.frames, iterFrame{node: node, atPrefix: true})
			it.valid = true
			return
		}
		base := node * nodeFanout
		pos := base
		for pos < base+nodeFanout && !dense.labels.ReadBit(pos) {
			pos++
		}
		if pos == base+nodeFanout {
			it.valid = false
			return
		}
		it.frames = append(it.frames, iterFrame{node: node, pos: pos, endPos: base + nodeFanout - 1})
		it.key = append(it.key, byte(pos-base))
		if !dense.children.ReadBit(pos) {
			it.valid = true
			return
		}
		child := dense.getChildNodeNum(pos)
		depth++
		if depth >= dense.height {
			it.descendLeftmostSparse(child)
			return
		}
		node = child
	}
}

func (it *Iter) descendRightmostDense(node position) {
	dense := it.fst.dense
	var depth level
	for {
		base := node * nodeFanout
		pos := base + nodeFanout - 1
		for pos > base && !dense.labels.ReadBit(pos) {
			pos--
		}
		if !dense.labels.ReadBit(pos) {
			if dense.prefixKeys.ReadBit(node) {
				it.frames = append(it.frames, iterFrame{node: node, atPrefix: true})
				it.valid = true
				return
			}
			it.valid = false
			return
		}
		it.frames = append(it.frames, iterFrame{node: node, pos: pos, endPos: base + nodeFanout - 1})
		it.key = append(it.key, byte(pos-base))
		if !dense.children.ReadBit(pos) {
			it.valid = true
			return
		}
		child := dense.getChildNodeNum(pos)
		depth++
		if depth >= dense.height {
			it.descendRightmostSparse(child)
			return
		}
		node = child
	}
}

func (it *Iter) descendLeftmostSparse(local position) {
	sparse := it.fst.sparse
	if len(sparse.labels) == 0 {
		it.valid = false
		return
	}
	for {
		pos, isPrefix := sparse.firstLabelPos(local)
		if isPrefix {
			it.frames = append(it.frames, iterFrame{sparse: true, node: local, pos: pos, atPrefix: true})
			it.valid = true
			return
		}
		end := sparse.nodeEnd(pos) - 1
		it.frames = append(it.frames, iterFrame{sparse: true, node: local, pos: pos, endPos: end})
		it.key = append(it.key, sparse.labels[pos])
		if !sparse.hasChild.ReadBit(pos) {
			it.valid = true
			return
		}
		local = sparse.hasChild.Rank1(pos)
	}
}

func (it *Iter) descendRightmostSparse(local position) {
	sparse := it.fst.sparse
	if len(sparse.labels) == 0 {
		it.valid = false
		return
	}
	for {
		start := sparse.selectNodeStart(local)
		end := sparse.nodeEnd(start) - 1
		pos := end
		if sparse.labels[start] == sparsePrefixSentinel && !sparse.hasChild.ReadBit(start) && pos == start {
			it.frames = append(it.frames, iterFrame{sparse: true, node: local, pos: start, atPrefix: true})
			it.valid = true
			return
		}
		it.frames = append(it.frames, iterFrame{sparse: true, node: local, pos: pos, endPos: end})
		it.key = append(it.key, sparse.labels[pos])
		if !sparse.hasChild.ReadBit(pos) {
			it.valid = true
			return
		}
		local = sparse.hasChild.Rank1(pos)
	}
}

// Next advances to the lexicographically next key, or invalidates the
// iterator if the current key was the largest.
func (it *Iter) Next() {
	for len(it.frames) > 0 {
		top := &it.frames[len(it.frames)-1]
		if !top.sparse {
			dense := it.fst.dense
			if top.atPrefix {
				top.atPrefix = false
				base := top.node * nodeFanout
				pos := base
				for pos < base+nodeFanout && !dense.labels.ReadBit(pos) {
					pos++
				}
				if pos == base+nodeFanout {
					it.popDense()
					continue
				}
				top.pos = pos
				top.endPos = base + nodeFanout - 1
				it.key = append(it.key, byte(pos-base))
				if it.descendIfChildDense(*top) {
					return
				}
				it.valid = true
				return
			}
			base := top.node * nodeFanout
			pos := top.pos + 1
			for pos <= top.endPos && !dense.labels.ReadBit(pos) {
				pos++
			}
			if pos > top.endPos {
				it.popDense()
				continue
			}
			top.pos = pos
			it.key[len(it.key)-1] = byte(pos - base)
			if it.descendIfChildDense(*top) {
				return
			}
			it.valid = true
			return
		}

		sparse := it.fst.sparse
		if top.atPrefix {
			top.atPrefix = false
			// start holds the prefix sentinel; the first real label follows it.
			start := sparse.selectNodeStart(top.node)
			end := sparse.nodeEnd(start) - 1
			top.pos = start + 1
			top.endPos = end
			it.key = append(it.key, sparse.labels[start+1])
			if it.descendIfChildSparse(*top) {
				return
			}
			it.valid = true
			return
		}
		pos := top.pos + 1
		if pos > top.endPos {
			it.popSparse()
			continue
		}
		top.pos = pos
		it.key[len(it.key)-1] = sparse.labels[pos]
		if it.descendIfChildSparse(*top) {
			return
		}
		it.valid = true
		return
	}
	it.valid = false
}

func (it *Iter) popDense() {
	it.frames = it.frames[:len(it.frames)-1]
	if len(it.key) > 0 {
		it.key = it.key[:len(it.key)-1]
	}
}

func (it *Iter) popSparse() { it.popDense() }

// descendIfChildDense descends into frame's child subtree (crossing into
// sparse if needed) when frame.pos has its child bit set, returning true
// if it did (the caller should return without setting valid itself — the
// descend helpers set it).
func (it *Iter) descendIfChildDense(frame iterFrame) bool {
	dense := it.fst.dense
	if !dense.children.ReadBit(frame.pos) {
		return false
	}
	child := dense.getChildNodeNum(frame.pos)
	depth := it.currentDepth()
	if level(depth) >= dense.height {
		it.descendLeftmostSparse(child)
	} else {
		it.descendLeftmostDense(child, level(depth))
	}
	return true
}

func (it *Iter) descendIfChildSparse(frame iterFrame) bool {
	sparse := it.fst.sparse
	if !sparse.hasChild.ReadBit(frame.pos) {
		return false
	}
	it.descendLeftmostSparse(sparse.hasChild.Rank1(frame.pos))
	return true
}

// currentDepth returns how many dense frames currently precede the top of
// the stack, i.e. the dense tree-depth of the node about to be descended
// from. Used only while still inside the dense section.
func (it *Iter) currentDepth() int {
	n := 0
	for _, fr := range it.frames {
		if fr.sparse {
			break
		}
		n++
	}
	return n
}

// Prev moves to the lexicographically previous key, or invalidates the
// iterator if the current key was the smallest.
func (it *Iter) Prev() {
	for len(it.frames) > 0 {
		top := &it.frames[len(it.frames)-1]
		if top.atPrefix {
			// a prefix-key stop owns no key byte, so only the frame is dropped
			it.frames = it.frames[:len(it.frames)-1]
			continue
		}
		if !top.sparse {
			dense := it.fst.dense
			base := top.node * nodeFanout
			pos := top.pos
			found := false
			for pos > base {
				pos--
				if dense.labels.ReadBit(pos) {
					found = true
					break
				}
			}
			if !found {
				if dense.prefixKeys.ReadBit(top.node) {
					top.atPrefix = true
					it.popToPrefixValue(top)
					return
				}
				it.popFrame()
				continue
			}
			top.pos = pos
			it.key[len(it.key)-1] = byte(pos - base)
			it.descendRightmostFromTop()
			return
		}

		sparse := it.fst.sparse
		start := sparse.selectNodeStart(top.node)
		if top.pos == start {
			it.popFrame()
			continue
		}
		top.pos--
		if top.pos == start && sparse.labels[start] == sparsePrefixSentinel && !sparse.hasChild.ReadBit(start) {
			top.atPrefix = true
			it.popToPrefixValue(top)
			return
		}
		it.key[len(it.key)-1] = sparse.labels[top.pos]
		it.descendRightmostFromTop()
		return
	}
	it.valid = false
}

// popToPrefixValue truncates key to just before the frame that was
// converted into an atPrefix stop (the node's own value has no label byte).
func (it *Iter) popToPrefixValue(top *iterFrame) {
	if len(it.key) > 0 {
		it.key = it.key[:len(it.key)-1]
	}
	it.valid = true
}

func (it *Iter) popFrame() {
	it.frames = it.frames[:len(it.frames)-1]
	if len(it.key) > 0 {
		it.key = it.key[:len(it.key)-1]
	}
}

// descendRightmostFromTop, after Prev adjusts the top frame to a new
// (possibly child-bearing) position, descends into the rightmost
// descendant of that position if it leads to a child.
func (it *Iter) descendRightmostFromTop() {
	top := it.frames[len(it.frames)-1]
	if !top.sparse {
		dense := it.fst.dense
		if dense.children.ReadBit(top.pos) {
			it.descendRightmostDense(dense.getChildNodeNum(top.pos))
			return
		}
		it.valid = true
		return
	}
	sparse := it.fst.sparse
	if sparse.hasChild.ReadBit(top.pos) {
		it.descendRightmostSparse(sparse.hasChild.Rank1(top.pos))
		return
	}
	it.valid = true
}

// MoveToKeyGreaterThan returns an iterator positioned at the smallest key
// >= target (inclusive=true) or strictly > target (inclusive=false).
func (f *FST) MoveToKeyGreaterThan(target []byte, inclusive bool) *Iter {
	it := &Iter{fst: f}
	it.seekGreaterThan(target)
	if it.valid && !inclusive && bytes.Equal(it.key, target) {
		it.Next()
	}
	return it
}

// MoveToKeyLessThan returns an iterator positioned at the largest key <=
// target (inclusive=true) or strictly < target (inclusive=false), using
// the reference implementation's technique of deriving it from
// MoveToKeyGreaterThan followed by a single Prev.
func (f *FST) MoveToKeyLessThan(target []byte, inclusive bool) *Iter {
	it := f.MoveToKeyGreaterThan(target, true)
	if it.valid && bytes.Equal(it.key, target) {
		if inclusive {
			return it
		}
		it.Prev()
		return it
	}
	if it.valid {
		it.Prev()
		return it
	}
	return f.MoveToLast()
}

// MoveToKeyStartingAtNode resumes a greater-than walk for key at node, a
// cached (depth, node) pair from a prior GetNode call, instead of walking
// from the root. key is the full key, as with FST.LookupKeyAtNode; the
// returned iterator's Key() reconstructs the full key from key[:depth]
// plus whatever it finds below node. Because the path above node was
// never pushed onto the frame stack, Next/Prev only range within node's
// own subtree rather than continuing out past it — a caller resuming at a
// cached subtree location is expected to already be scoping its walk to
// that subtree. Supplemented per spec.md's original_source feature list.
func (f *FST) MoveToKeyStartingAtNode(key []byte, depth int, node position, inclusive bool) *Iter {
	it := &Iter{fst: f}
	it.key = append(it.key, key[:depth]...)
	it.seekGreaterThanAtNode(key, depth, node)
	if it.valid && !inclusive && bytes.Equal(it.key, key) {
		it.Next()
	}
	return it
}

// MoveToLeftmostKeyStartingAtNode returns the smallest key in the subtree
// rooted at node, with the same node-relative contract as
// MoveToKeyStartingAtNode: prefix supplies the bytes already consumed to
// reach node, so Key() reconstructs the full key.
func (f *FST) MoveToLeftmostKeyStartingAtNode(prefix []byte, node position) *Iter {
	it := &Iter{fst: f}
	it.key = append(it.key, prefix...)
	if node < f.sparse.nodeNumOffset {
		it.descendLeftmostDense(node, level(len(prefix)))
	} else {
		it.descendLeftmostSparse(node - f.sparse.nodeNumOffset)
	}
	return it
}

func (it *Iter) seekGreaterThan(target []byte) {
	it.seekGreaterThanAtNode(target, 0, 0)
}

// seekGreaterThanAtNode resumes the greater-than walk for target at node,
// depth bytes already having been consumed to reach it (depth==0, node==0
// for a fresh walk from the root; nonzero when resuming via
// MoveToKeyStartingAtNode at a cached node).
func (it *Iter) seekGreaterThanAtNode(target []byte, depth int, node position) {
	dense := it.fst.dense

	if dense.height == 0 || node >= it.fst.sparse.nodeNumOffset {
		it.seekGreaterThanSparse(target, depth, node-it.fst.sparse.nodeNumOffset)
		return
	}

	for depth < len(target) {
		base := node * nodeFanout
		b := position(target[depth])
		pos := base + b
		if dense.labels.ReadBit(pos) {
			it.frames = append(it.frames, iterFrame{node: node, pos: pos, endPos: base + nodeFanout - 1})
			it.key = append(it.key, byte(b))
			if !dense.children.ReadBit(pos) {
				it.valid = true
				if depth+1 < len(target) {
					// the stored key is a proper prefix of target, so it sorts before it
					it.Next()
				}
				return
			}
			child := dense.getChildNodeNum(pos)
			depth++
			if level(depth) >= dense.height {
				it.seekGreaterThanSparse(target, depth, child)
				return
			}
			node = child
			continue
		}
		// no exact match at this node: find the next larger label, if any.
		dist := dense.labels.DistanceToNextSetBit(pos)
		nextPos := pos + dist
		if nextPos <= base+nodeFanout-1 {
			it.frames = append(it.frames, iterFrame{node: node, pos: nextPos, endPos: base + nodeFanout - 1})
			it.key = append(it.key, byte(nextPos-base))
			if it.descendIfChildDense(iterFrame{node: node, pos: nextPos}) {
				return
			}
			it.valid = true
			return
		}
		// dead end: no label >= target[depth] in this node; back out and
		// advance the nearest ancestor, like Next()'s backtrack.
		it.valid = false
		if len(it.frames) == 0 {
			return
		}
		it.Next()
		return
	}

	// target fully consumed while landing exactly on node: the smallest
	// key >= target is this node's own prefix value if present, else its
	// leftmost descendant.
	if dense.prefixKeys.ReadBit(node) {
		it.frames = append(it.frames, iterFrame{node: node, atPrefix: true})
		it.valid = true
		return
	}
	it.descendLeftmostDense(node, level(depth))
}

func (it *Iter) seekGreaterThanSparse(target []byte, depth int, local position) {
	sparse := it.fst.sparse
	if len(sparse.labels) == 0 {
		it.valid = false
		return
	}
	for depth < len(target) {
		start := sparse.selectNodeStart(local)
		end := sparse.nodeEnd(start) - 1
		b := target[depth]
		pos := start
		matched := false
		for p := start; p <= end; p++ {
			if sparse.labels[p] == b {
				pos = p
				matched = true
				break
			}
			if sparse.labels[p] > b {
				pos = p
				break
			}
			pos = p + 1
		}
		if matched {
			it.frames = append(it.frames, iterFrame{sparse: true, node: local, pos: pos, endPos: end})
			it.key = append(it.key, sparse.labels[pos])
			if !sparse.hasChild.ReadBit(pos) {
				it.valid = true
				if depth+1 < len(target) {
					// the stored key is a proper prefix of target, so it sorts before it
					it.Next()
				}
				return
			}
			local = sparse.hasChild.Rank1(pos)
			depth++
			continue
		}
		if pos <= end && sparse.labels[pos] > b {
			it.frames = append(it.frames, iterFrame{sparse: true, node: local, pos: pos, endPos: end})
			it.key = append(it.key, sparse.labels[pos])
			if sparse.hasChild.ReadBit(pos) {
				it.descendLeftmostSparse(sparse.hasChild.Rank1(pos))
				return
			}
			it.valid = true
			return
		}
		it.valid = false
		if len(it.frames) == 0 {
			return
		}
		it.Next()
		return
	}
	it.descendLeftmostSparse(local)
}
