package fst_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sagernet/sing-fst/fst"
)

func TestUint32KeyRoundTrip(t *testing.T) {
	t.Parallel()
	for _, n := range []uint32{0, 1, 255, 256, 1 << 20, 1<<32 - 1} {
		require.Equal(t, n, fst.DecodeUint32Key(fst.Uint32Key(n)))
	}
}

func TestUint32KeyPreservesNumericOrder(t *testing.T) {
	t.Parallel()
	a, b := fst.Uint32Key(100), fst.Uint32Key(200)
	require.Less(t, a, b)
}

func TestLookupUint32(t *testing.T) {
	t.Parallel()
	keys := []string{fst.Uint32Key(10), fst.Uint32Key(20), fst.Uint32Key(30)}
	values := []uint64{100, 200, 300}
	index, err := fst.New(keys, values, fst.DefaultConfig())
	require.NoError(t, err)

	value, ok := index.LookupUint32(20)
	require.True(t, ok)
	require.Equal(t, uint64(200), value)

	_, ok = index.LookupUint32(25)
	require.False(t, ok)
}
