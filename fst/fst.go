package fst

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/samber/lo"

	E "github.com/sagernet/sing-fst/internal/exceptions"
	"github.com/sagernet/sing-fst/internal/flog"
)

var fstLog = flog.NewLogger("fst")

const magic uint32 = 0x46535401 // "FST" + version 1

// FST is an immutable, ordered byte-string-to-uint64 index: a LOUDS-Dense
// upper section for O(1) probing near the root, handing off to a
// LOUDS-Sparse lower section for the long tail of rarely-branching nodes.
// Ported from the reference sources' FST facade (fst.hpp), generalized per
// spec.md's Open Question resolutions.
type FST struct {
	dense  *LoudsDense
	sparse *LoudsSparse
}

// New builds an FST from sorted, distinct keys paired 1:1 with values.
// Keys must be strictly increasing; Build reports ErrDuplicateOrUnsortedKey
// otherwise, and ErrValueCountMismatch if len(keys) != len(values).
func New(keys []string, values []uint64, config Config) (*FST, error) {
	b := NewBuilder(config)
	if err := b.Build(keys, values); err != nil {
		return nil, err
	}
	fstLog.Infof("fst built from %d keys (height=%d, sparseStart=%d)", len(keys), b.height, b.sparseStartLevel)
	return &FST{
		dense:  newLoudsDenseFromBuilder(b),
		sparse: newLoudsSparseFromBuilder(b),
	}, nil
}

// LookupKey returns the value associated with key, if present.
func (f *FST) LookupKey(key string) (uint64, bool) {
	res := f.lookup([]byte(key))
	return res.Value, res.Found
}

func (f *FST) lookup(key []byte) LookupResult {
	if f.dense.height == 0 {
		return f.sparse.LookupKey(key, 0, 0)
	}
	res := f.dense.LookupKey(key, 0)
	if res.ContinueInSparse {
		return f.sparse.LookupKey(key, res.NextDepth, res.NextNode)
	}
	return res
}

// LookupKeyAtNode resumes a lookup for key as if probing had already
// reached node (a global node number obtained from a prior GetNode call)
// after consuming depth bytes, without re-walking the prefix. Supplemented
// per spec.md's original_source feature list.
func (f *FST) LookupKeyAtNode(key []byte, depth int, node position) (uint64, bool) {
	var res LookupResult
	if node < f.sparse.nodeNumOffset {
		res = f.dense.LookupKeyAtNode(key, depth, node)
		if res.ContinueInSparse {
			res = f.sparse.LookupKey(key, res.NextDepth, res.NextNode)
		}
	} else {
		res = f.sparse.LookupKey(key, depth, node)
	}
	return res.Value, res.Found
}

// GetNode returns the global node number reached by walking key from the
// root, and the number of key bytes consumed before either exhausting the
// key or falling off the trie. ok is false if key is not a valid path
// prefix in the trie at all.
func (f *FST) GetNode(key []byte) (node position, depth int, ok bool) {
	node = 0
	depth = 0
	for depth < len(key) {
		var hasChild bool
		var next position
		var found bool
		if node < f.sparse.nodeNumOffset {
			next, _, hasChild, found = f.dense.FindNextNodeOrValue(node, key[depth])
		} else {
			next, _, hasChild, found = f.sparse.FindNextNodeOrValue(node-f.sparse.nodeNumOffset, key[depth])
		}
		if !found {
			return 0, 0, false
		}
		depth++
		if !hasChild {
			return node, depth, true
		}
		node = next
	}
	return node, depth, true
}

// NodeHasMultipleBranchesOrTerminates reports whether node (a global node
// number) has more than one outgoing edge, or a single edge that is
// itself a terminator — the condition a caller compacting single-child
// path runs stops at.
func (f *FST) NodeHasMultipleBranchesOrTerminates(node position) bool {
	if node < f.sparse.nodeNumOffset {
		return f.dense.NodeHasMultipleBranchesOrTerminates(node)
	}
	return f.sparse.NodeHasMultipleBranchesOrTerminates(node - f.sparse.nodeNumOffset)
}

// StepByte advances one label from node and reports the child node number,
// if that edge exists and leads to a child (as opposed to a terminator).
func (f *FST) StepByte(node position, b byte) (child position, hasChild bool, present bool) {
	if node < f.sparse.nodeNumOffset {
		next, _, hc, found := f.dense.FindNextNodeOrValue(node, b)
		if !found {
			return 0, false, false
		}
		return next, hc, true
	}
	next, _, hc, found := f.sparse.FindNextNodeOrValue(node-f.sparse.nodeNumOffset, b)
	if !found {
		return 0, false, false
	}
	return next, hc, true
}

// LookupRange implements spec.md §4.6's lookup_range(lk, li, rk, ri): begin
// is move_to_key_greater_than(lk, li); end is move_to_key_greater_than(rk,
// true), advanced once more if ri is true and end currently sits on rk
// itself. Enumerate the range by walking begin forward with Next while
// !end.Valid() || begin.Compare(end.Key()) < 0. If both bounds are valid
// but begin's key sorts after end's, the range is empty and both
// iterators are returned invalid (spec.md's S5).
func (f *FST) LookupRange(lk []byte, li bool, rk []byte, ri bool) (begin, end *Iter) {
	begin = f.MoveToKeyGreaterThan(lk, li)
	end = f.MoveToKeyGreaterThan(rk, true)
	if ri && end.Valid() && bytes.Equal(end.Key(), rk) {
		end.Next()
	}
	if begin.Valid() && end.Valid() && bytes.Compare(begin.Key(), end.Key()) > 0 {
		begin.valid = false
		end.valid = false
	}
	return begin, end
}

// GetMemoryUsage returns the approximate resident size in bytes.
func (f *FST) GetMemoryUsage() int {
	n := 0
	if f.dense.height > 0 {
		n += f.dense.Size()
	}
	n += f.sparse.Size()
	return n
}

// SerializedSize returns the number of bytes Serialize writes.
func (f *FST) SerializedSize() int {
	return 4 + f.dense.SerializedSize() + f.sparse.SerializedSize()
}

// Serialize writes the FST to w in the [magic][dense][sparse] layout.
func (f *FST) Serialize(w io.Writer) error {
	var magicBuf [4]byte
	binary.LittleEndian.PutUint32(magicBuf[:], magic)
	if _, err := w.Write(magicBuf[:]); err != nil {
		return E.Cause(err, "write fst magic")
	}
	if err := f.dense.Serialize(w); err != nil {
		return err
	}
	return f.sparse.Serialize(w)
}

// Deserialize loads an FST that borrows its bitvector words and sparse
// labels directly from buf (see DeserializeBitvectorRank); the value
// arrays are copied. buf must outlive the returned FST.
func Deserialize(buf []byte) (*FST, error) {
	if len(buf) < 4 {
		return nil, ErrDeserializeFormat
	}
	if got := binary.LittleEndian.Uint32(buf[0:4]); got != magic {
		return nil, E.Cause(ErrDeserializeFormat, "bad magic ", got)
	}
	buf = buf[4:]
	dense, buf, err := DeserializeLoudsDense(buf)
	if err != nil {
		return nil, err
	}
	sparse, _, err := DeserializeLoudsSparse(buf)
	if err != nil {
		return nil, err
	}
	return &FST{dense: dense, sparse: sparse}, nil
}

// Keys returns every key stored in the trie, in sorted order. Intended for
// tests and small indexes; it is not an efficient operation for large
// tries (it materializes the whole key set).
func (f *FST) Keys() []string {
	var out []string
	it := f.MoveToFirst()
	for it.Valid() {
		out = append(out, string(it.Key()))
		it.Next()
	}
	return lo.Uniq(out)
}
