package ataxx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quercus/game"
)

func TestStartposFENRoundTrip(t *testing.T) {
	b := Start()
	assert.Equal(t, StartPos, b.FEN())
}

func TestStartposMoveCount(t *testing.T) {
	moves := Start().AppendLegalMoves(nil)
	assert.Len(t, moves, 16)
}

func TestFromFENRejectsGarbage(t *testing.T) {
	_, err := FromFEN("nonsense")
	assert.Error(t, err)

	_, err = FromFEN("x5o/7/7/7/7/7 x 0 1")
	assert.Error(t, err)
}

func TestGapsParseAndRender(t *testing.T) {
	fen := "x5o/7/2-1-2/7/2-1-2/7/o5x x 0 1"
	b, err := FromFEN(fen)
	require.NoError(t, err)
	assert.Equal(t, fen, b.FEN())
	assert.Equal(t, 4, popcount(b.gaps))
}

func TestMakeSingleGrowsAndCaptures(t *testing.T) {
	b, err := FromFEN("7/7/7/7/7/2x4/1o5 x 0 1")
	require.NoError(t, err)

	// clone to b2, adjacent to the lone blue stone on b1
	mv, err := b.ParseMove("b2")
	require.NoError(t, err)
	b.Make(mv)

	assert.Equal(t, 3, popcount(b.bbs[Red]))
	assert.Equal(t, 0, popcount(b.bbs[Blu]))
	assert.Equal(t, Blu, b.SideToMove())
	assert.Equal(t, game.Lost(0), b.GameState())
}

func TestMakeDoubleLeavesOrigin(t *testing.T) {
	b := Start()
	mv, err := b.ParseMove("a7c5")
	require.NoError(t, err)

	before := popcount(b.bbs[Red])
	b.Make(mv)
	assert.Equal(t, before, popcount(b.bbs[Red]))
	assert.Equal(t, uint64(0), b.bbs[Red]&(1<<42)) // a7 vacated
}

func TestHalfmoveClock(t *testing.T) {
	b := Start()
	mv, err := b.ParseMove("a7c5") // jump: clock ticks
	require.NoError(t, err)
	b.Make(mv)
	assert.Equal(t, uint8(1), b.halfm)

	mv, err = b.ParseMove("b1") // clone: clock resets
	require.NoError(t, err)
	b.Make(mv)
	assert.Equal(t, uint8(0), b.halfm)
}

func TestHalfmoveDraw(t *testing.T) {
	b, err := FromFEN("x5o/7/7/7/7/7/o5x x 100 1")
	require.NoError(t, err)
	assert.Equal(t, game.Draw, b.GameState())
	assert.Empty(t, b.AppendLegalMoves(nil))
}

func TestPassWhenBlockedIn(t *testing.T) {
	// red's lone stone is fenced in by gaps; its only move is to pass
	b, err := FromFEN("6o/7/7/7/---4/---4/x------ x 0 1")
	require.NoError(t, err)
	require.Equal(t, game.Ongoing, b.GameState())

	moves := b.AppendLegalMoves(nil)
	require.Len(t, moves, 1)
	assert.True(t, Move(moves[0]).IsPass())
	assert.Equal(t, "0000", b.MoveString(moves[0]))
}

func TestMoveStrings(t *testing.T) {
	assert.Equal(t, "a2", Single(7).String())
	assert.Equal(t, "a1c3", Double(0, 16).String())
	assert.Equal(t, "0000", Pass().String())
}

func TestHashProperties(t *testing.T) {
	b := Start()
	assert.Equal(t, b.Hash(), b.Clone().Hash())

	mv, err := b.ParseMove("b6")
	require.NoError(t, err)
	after := b.Clone()
	after.Make(mv)
	assert.NotEqual(t, b.Hash(), after.Hash())
}

func TestCopyFromDetaches(t *testing.T) {
	a := Start()
	b := &Board{}
	b.CopyFrom(a)

	mv, err := b.ParseMove("b6")
	require.NoError(t, err)
	b.Make(mv)

	assert.Equal(t, StartPos, a.FEN())
	assert.NotEqual(t, a.FEN(), b.FEN())
}

func TestScorerValueBounds(t *testing.T) {
	s := NewScorer()
	for _, fen := range []string{
		StartPos,
		"xxxxxxx/xxxxxxx/7/7/7/7/o6 x 0 1",
		"xxxxxxx/xxxxxxx/7/7/7/7/o6 o 0 1",
	} {
		b, err := FromFEN(fen)
		require.NoError(t, err)
		v := s.Value(b)
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}

	strong, _ := FromFEN("xxxxxxx/xxxxxxx/7/7/7/7/o6 x 0 1")
	weak, _ := FromFEN("xxxxxxx/xxxxxxx/7/7/7/7/o6 o 0 1")
	assert.Greater(t, s.Value(strong), s.Value(weak))
}

func TestScorerPrefersCaptures(t *testing.T) {
	b, err := FromFEN("7/7/7/7/7/2x4/1o5 x 0 1")
	require.NoError(t, err)

	s := NewScorer()
	moves := b.AppendLegalMoves(nil)
	logits := make([]float32, len(moves))
	s.PolicyLogits(b, moves, logits)

	bestIdx := 0
	for i := range logits {
		if logits[i] > logits[bestIdx] {
			bestIdx = i
		}
	}
	// the best-scored move must flip the blue stone on b1
	after := b.Clone()
	after.Make(moves[bestIdx])
	assert.Equal(t, 0, popcount(after.bbs[Blu]))
}
