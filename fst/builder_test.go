package fst_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sagernet/sing-fst/fst"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	config := fst.DefaultConfig()
	require.True(t, config.IncludeDense)
	require.Equal(t, uint32(16), config.SparseDenseRatio)
}

func TestBuilderRejectsMismatchedLengths(t *testing.T) {
	t.Parallel()
	b := fst.NewBuilder(fst.DefaultConfig())
	err := b.Build([]string{"a", "b", "c"}, []uint64{1, 2})
	require.ErrorIs(t, err, fst.ErrValueCountMismatch)
}

func TestBuilderRejectsUnsortedKeys(t *testing.T) {
	t.Parallel()
	b := fst.NewBuilder(fst.DefaultConfig())
	err := b.Build([]string{"banana", "apple"}, []uint64{0, 1})
	require.ErrorIs(t, err, fst.ErrDuplicateOrUnsortedKey)
}
