package fst_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sagernet/sing-fst/fst"
)

func buildFST(t *testing.T, keys []string, config fst.Config) *fst.FST {
	t.Helper()
	values := make([]uint64, len(keys))
	for i := range keys {
		values[i] = uint64(i)
	}
	index, err := fst.New(keys, values, config)
	require.NoError(t, err)
	return index
}

func TestScenarioAllPresentKeysFound(t *testing.T) {
	t.Parallel()
	keys := []string{"ant", "bear", "bee", "bird", "cat", "cow", "deer", "dog", "duck", "eagle", "elk", "fish", "fox", "frog", "goat", "goose", "hare", "hawk", "hen"}
	index := buildFST(t, keys, fst.DefaultConfig())

	for i, key := range keys {
		value, ok := index.LookupKey(key)
		require.True(t, ok, "key %q should be found", key)
		require.Equal(t, uint64(i), value)
	}
}

func TestScenarioAbsentKeysNotFound(t *testing.T) {
	t.Parallel()
	keys := []string{"ant", "bear", "bee", "bird", "cat"}
	index := buildFST(t, keys, fst.DefaultConfig())

	for _, key := range []string{"a", "be", "beer", "birdie", "catfish", "zebra", ""} {
		_, ok := index.LookupKey(key)
		require.False(t, ok, "key %q should not be found", key)
	}
}

func TestScenarioForcedAllSparse(t *testing.T) {
	t.Parallel()
	keys := []string{"alpha", "beta", "delta", "gamma"}
	index := buildFST(t, keys, fst.Config{IncludeDense: false, SparseDenseRatio: 16})

	for i, key := range keys {
		value, ok := index.LookupKey(key)
		require.True(t, ok)
		require.Equal(t, uint64(i), value)
	}
	_, ok := index.LookupKey("epsilon")
	require.False(t, ok)
}

func TestScenarioForcedAllDense(t *testing.T) {
	t.Parallel()
	keys := []string{"alpha", "beta", "delta", "gamma"}
	// A huge ratio keeps every level dense regardless of size.
	index := buildFST(t, keys, fst.Config{IncludeDense: true, SparseDenseRatio: 1 << 30})

	for i, key := range keys {
		value, ok := index.LookupKey(key)
		require.True(t, ok)
		require.Equal(t, uint64(i), value)
	}
}

func TestScenarioPrefixKeyIsFindable(t *testing.T) {
	t.Parallel()
	keys := []string{"ab", "abc"}
	index := buildFST(t, keys, fst.DefaultConfig())

	value, ok := index.LookupKey("ab")
	require.True(t, ok, `"ab" is a prefix of "abc" and must still be independently findable`)
	require.Equal(t, uint64(0), value)

	value, ok = index.LookupKey("abc")
	require.True(t, ok)
	require.Equal(t, uint64(1), value)

	_, ok = index.LookupKey("a")
	require.False(t, ok)
}

func TestScenarioDuplicateOrUnsortedKeysRejected(t *testing.T) {
	t.Parallel()
	_, err := fst.New([]string{"b", "a"}, []uint64{0, 1}, fst.DefaultConfig())
	require.ErrorIs(t, err, fst.ErrDuplicateOrUnsortedKey)

	_, err = fst.New([]string{"a", "a"}, []uint64{0, 1}, fst.DefaultConfig())
	require.ErrorIs(t, err, fst.ErrDuplicateOrUnsortedKey)
}

func TestScenarioValueCountMismatch(t *testing.T) {
	t.Parallel()
	_, err := fst.New([]string{"a", "b"}, []uint64{0}, fst.DefaultConfig())
	require.ErrorIs(t, err, fst.ErrValueCountMismatch)
}

func TestScenarioEmptyTrie(t *testing.T) {
	t.Parallel()
	index := buildFST(t, nil, fst.DefaultConfig())
	_, ok := index.LookupKey("anything")
	require.False(t, ok)

	first := index.MoveToFirst()
	require.False(t, first.Valid())
	last := index.MoveToLast()
	require.False(t, last.Valid())
	begin, end := index.LookupRange([]byte("a"), true, []byte("z"), true)
	require.False(t, begin.Valid())
	require.False(t, end.Valid())
}

func TestScenarioSingleKey(t *testing.T) {
	t.Parallel()
	index := buildFST(t, []string{"only"}, fst.DefaultConfig())
	value, ok := index.LookupKey("only")
	require.True(t, ok)
	require.Zero(t, value)
	_, ok = index.LookupKey("onl")
	require.False(t, ok)
	_, ok = index.LookupKey("onlyx")
	require.False(t, ok)
}

func TestIteratorFirstAndLast(t *testing.T) {
	t.Parallel()
	keys := []string{"ant", "bear", "bee", "bird", "cat"}
	index := buildFST(t, keys, fst.DefaultConfig())

	first := index.MoveToFirst()
	require.True(t, first.Valid())
	require.Equal(t, "ant", string(first.Key()))

	last := index.MoveToLast()
	require.True(t, last.Valid())
	require.Equal(t, "cat", string(last.Key()))
}

func TestIteratorNextWalksInOrder(t *testing.T) {
	t.Parallel()
	keys := []string{"ant", "bear", "bee", "bird", "cat"}
	index := buildFST(t, keys, fst.DefaultConfig())

	it := index.MoveToFirst()
	var seen []string
	for it.Valid() {
		seen = append(seen, string(it.Key()))
		it.Next()
	}
	require.Equal(t, keys, seen)
}

func TestIteratorPrevWalksInReverseOrder(t *testing.T) {
	t.Parallel()
	keys := []string{"ant", "bear", "bee", "bird", "cat"}
	index := buildFST(t, keys, fst.DefaultConfig())

	it := index.MoveToLast()
	var seen []string
	for it.Valid() {
		seen = append(seen, string(it.Key()))
		it.Prev()
	}
	require.Len(t, seen, len(keys))
	for i, key := range seen {
		require.Equal(t, keys[len(keys)-1-i], key)
	}
}

// enumerateRange walks begin forward, collecting keys, until it either
// invalidates or reaches end (spec.md §8 Testable Property 6).
func enumerateRange(begin, end *fst.Iter) []string {
	var out []string
	for begin.Valid() && (!end.Valid() || begin.Compare(end.Key()) < 0) {
		out = append(out, string(begin.Key()))
		begin.Next()
	}
	return out
}

func TestLookupRange(t *testing.T) {
	t.Parallel()
	keys := []string{"b", "d", "f", "h"}
	index := buildFST(t, keys, fst.DefaultConfig())

	begin, end := index.LookupRange([]byte("a"), true, []byte("c"), true)
	require.Equal(t, []string{"b"}, enumerateRange(begin, end))

	begin, end = index.LookupRange([]byte("d"), true, []byte("d"), true)
	require.Equal(t, []string{"d"}, enumerateRange(begin, end))

	begin, end = index.LookupRange([]byte("i"), true, []byte("z"), true)
	require.Empty(t, enumerateRange(begin, end))
}

func buildStrideKeys(t *testing.T, n int) ([]string, []uint64, *fst.FST) {
	t.Helper()
	keys := make([]string, n)
	values := make([]uint64, n)
	for i := 0; i < n; i++ {
		keys[i] = fst.Uint32Key(uint32(i)*9 + 3)
		values[i] = uint64(i)
	}
	index, err := fst.New(keys, values, fst.DefaultConfig())
	require.NoError(t, err)
	return keys, values, index
}

// TestScenarioLookupRangeExclusiveSingleValue is spec.md §8's S3.
func TestScenarioLookupRangeExclusiveSingleValue(t *testing.T) {
	t.Parallel()
	keys, _, index := buildStrideKeys(t, 50)

	i := 20
	begin, end := index.LookupRange([]byte(keys[i-1]), false, []byte(keys[i+1]), false)
	require.Equal(t, []string{keys[i]}, enumerateRange(begin, end))
}

// TestScenarioLookupRangeInclusiveRightAddsOne is spec.md §8's S4.
func TestScenarioLookupRangeInclusiveRightAddsOne(t *testing.T) {
	t.Parallel()
	keys, _, index := buildStrideKeys(t, 50)

	start, end := 10, 30
	beginExcl, endExcl := index.LookupRange([]byte(keys[start-1]), false, []byte(keys[end]), false)
	beginIncl, endIncl := index.LookupRange([]byte(keys[start-1]), false, []byte(keys[end]), true)

	exclRange := enumerateRange(beginExcl, endExcl)
	inclRange := enumerateRange(beginIncl, endIncl)
	require.Equal(t, keys[start:end], exclRange)
	require.Equal(t, keys[start:end+1], inclRange)
	require.Len(t, inclRange, len(exclRange)+1)
}

// TestScenarioLookupRangeEmptyWhenBoundsCross is spec.md §8's S5.
func TestScenarioLookupRangeEmptyWhenBoundsCross(t *testing.T) {
	t.Parallel()
	keys, _, index := buildStrideKeys(t, 50)

	begin, end := index.LookupRange([]byte(keys[30]), false, []byte(keys[10]), false)
	require.False(t, begin.Valid())
	require.False(t, end.Valid())
}

func TestMoveToKeyGreaterThan(t *testing.T) {
	t.Parallel()
	keys := []string{"b", "d", "f", "h"}
	index := buildFST(t, keys, fst.DefaultConfig())

	t.Run("exact match inclusive stays", func(t *testing.T) {
		it := index.MoveToKeyGreaterThan([]byte("d"), true)
		require.True(t, it.Valid())
		require.Equal(t, "d", string(it.Key()))
	})

	t.Run("exact match exclusive advances", func(t *testing.T) {
		it := index.MoveToKeyGreaterThan([]byte("d"), false)
		require.True(t, it.Valid())
		require.Equal(t, "f", string(it.Key()))
	})

	t.Run("miss lands on next greater key regardless of inclusive", func(t *testing.T) {
		it := index.MoveToKeyGreaterThan([]byte("c"), true)
		require.True(t, it.Valid())
		require.Equal(t, "d", string(it.Key()))

		it = index.MoveToKeyGreaterThan([]byte("c"), false)
		require.True(t, it.Valid())
		require.Equal(t, "d", string(it.Key()))
	})

	t.Run("past the end is invalid", func(t *testing.T) {
		it := index.MoveToKeyGreaterThan([]byte("z"), true)
		require.False(t, it.Valid())
	})
}

func TestMoveToKeyLessThan(t *testing.T) {
	t.Parallel()
	keys := []string{"b", "d", "f", "h"}
	index := buildFST(t, keys, fst.DefaultConfig())

	t.Run("exact match inclusive stays", func(t *testing.T) {
		it := index.MoveToKeyLessThan([]byte("d"), true)
		require.True(t, it.Valid())
		require.Equal(t, "d", string(it.Key()))
	})

	t.Run("exact match exclusive retreats", func(t *testing.T) {
		it := index.MoveToKeyLessThan([]byte("d"), false)
		require.True(t, it.Valid())
		require.Equal(t, "b", string(it.Key()))
	})

	t.Run("miss lands on next smaller key", func(t *testing.T) {
		it := index.MoveToKeyLessThan([]byte("e"), true)
		require.True(t, it.Valid())
		require.Equal(t, "d", string(it.Key()))
	})

	t.Run("before the start is invalid", func(t *testing.T) {
		it := index.MoveToKeyLessThan([]byte("a"), true)
		require.False(t, it.Valid())
	})
}

func TestSerializeRoundTrip(t *testing.T) {
	t.Parallel()
	keys := []string{"ant", "bear", "bee", "bird", "cat", "cow", "deer"}
	index := buildFST(t, keys, fst.DefaultConfig())

	var w bytes.Buffer
	require.NoError(t, index.Serialize(&w))
	require.Equal(t, index.SerializedSize(), w.Len())

	reloaded, err := fst.Deserialize(w.Bytes())
	require.NoError(t, err)
	for i, key := range keys {
		value, ok := reloaded.LookupKey(key)
		require.True(t, ok)
		require.Equal(t, uint64(i), value)
	}
}
