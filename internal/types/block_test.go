package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPhaseOfBoundaries(t *testing.T) {
	cases := []struct {
		position uint64
		want     Phase
	}{
		{0, PhaseCommit},
		{37, PhaseCommit},
		{38, PhaseReveal},
		{75, PhaseReveal},
		{76, PhaseClaim},
		{151, PhaseClaim},
	}
	for _, c := range cases {
		require.Equal(t, c.want, PhaseOf(BlockNumber(c.position)), "position %d", c.position)
	}
}

func TestRoundOf(t *testing.T) {
	require.Equal(t, RoundNumber(270428), RoundOf(41_105_200))
	require.Equal(t, RoundNumber(0), RoundOf(151))
	require.Equal(t, RoundNumber(1), RoundOf(152))
}

func TestRangeChunks(t *testing.T) {
	r := Range{From: 10_000, To: 10_099}
	chunks := r.Chunks(50)
	require.Len(t, chunks, 2)
	require.Equal(t, Range{From: 10_000, To: 10_049}, chunks[0])
	require.Equal(t, Range{From: 10_050, To: 10_099}, chunks[1])
}

func TestRangeEmpty(t *testing.T) {
	r := Range{From: 100, To: 50}
	require.True(t, r.Empty())
	require.Nil(t, r.Chunks(10))
}

func TestRangeIntersectsExclusiveEnd(t *testing.T) {
	end := BlockNumber(41_105_199)
	r := Range{From: 41_105_195, To: 41_105_205}
	require.True(t, r.Intersects(40_430_261, &end))

	next := BlockNumber(41_105_199)
	r2 := Range{From: 41_105_199, To: 41_105_199}
	require.False(t, r2.Intersects(40_430_261, &next))
}
