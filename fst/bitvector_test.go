package fst_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sagernet/sing-fst/fst"
)

func TestBitvectorRank(t *testing.T) {
	t.Run("rank1 matches naive popcount", func(t *testing.T) {
		t.Parallel()
		words := []uint64{0b1011, 0, 0xFFFFFFFFFFFFFFFF}
		bv := fst.NewBitvectorRank(128, words, 192)

		var expected uint32
		for pos := uint32(0); pos < 192; pos++ {
			if bv.ReadBit(pos) {
				expected++
			}
			require.Equal(t, expected, bv.Rank1(pos), "pos=%d", pos)
		}
	})

	t.Run("read bit matches bit position", func(t *testing.T) {
		t.Parallel()
		words := []uint64{1 << 63, 1}
		bv := fst.NewBitvectorRank(128, words, 128)
		require.True(t, bv.ReadBit(0))
		require.False(t, bv.ReadBit(1))
		require.True(t, bv.ReadBit(127))
	})

	t.Run("distance to next and prev set bit", func(t *testing.T) {
		t.Parallel()
		// bits set at positions 2 and 10
		raw := make([]uint64, 1)
		raw[0] |= 1 << (63 - 2)
		raw[0] |= 1 << (63 - 10)
		bv := fst.NewBitvectorRank(64, raw, 64)

		require.Equal(t, uint32(8), bv.DistanceToNextSetBit(2))
		require.Equal(t, uint32(1), bv.DistanceToNextSetBit(9))
		require.Equal(t, uint32(8), bv.DistanceToPrevSetBit(10))
		require.Equal(t, uint32(1), bv.DistanceToPrevSetBit(3))
	})
}

func TestInterleavedBitvectorRank(t *testing.T) {
	t.Run("rank label and child agree with plain bitvectors", func(t *testing.T) {
		t.Parallel()
		labelWords := []uint64{0b1101, 0xFF00FF00FF00FF00}
		childWords := []uint64{0b1001, 0x0F0F0F0F0F0F0F0F}

		labels := fst.NewBitvectorRank(64, labelWords, 128)
		children := fst.NewBitvectorRank(64, childWords, 128)
		interleaved := fst.NewInterleavedBitvectorRank(64, labels, children)

		for pos := uint32(0); pos < 128; pos++ {
			require.Equal(t, labels.ReadBit(pos), interleaved.ReadLabelBit(pos), "pos=%d", pos)
			require.Equal(t, children.ReadBit(pos), interleaved.ReadChildBit(pos), "pos=%d", pos)
			require.Equal(t, labels.Rank1(pos), interleaved.RankLabel(pos), "pos=%d", pos)
			require.Equal(t, children.Rank1(pos), interleaved.RankChild(pos), "pos=%d", pos)
		}
	})
}
