package mcts

import (
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quercus/game"
	"github.com/quercus/game/ataxx"
	"github.com/quercus/params"
)

func newAtaxxSearcher(t *testing.T, fen string, capacity int) (*Searcher[*ataxx.Board], *Tree, *atomic.Bool) {
	t.Helper()
	pos, err := ataxx.FromFEN(fen)
	require.NoError(t, err)

	tree := NewTree(capacity)
	abort := &atomic.Bool{}
	s := NewSearcher[*ataxx.Board](tree, pos, params.Defaults(), ataxx.NewScorer(), abort, io.Discard)
	return s, tree, abort
}

func legalMoveSet(fen string) map[game.Move]bool {
	pos, err := ataxx.FromFEN(fen)
	if err != nil {
		panic(err)
	}
	set := make(map[game.Move]bool)
	for _, mv := range pos.AppendLegalMoves(nil) {
		set[mv] = true
	}
	return set
}

func TestSearchSingleNode(t *testing.T) {
	s, tree, _ := newAtaxxSearcher(t, ataxx.StartPos, 4096)

	var nodes int64
	mv, q := s.Search(1, Limits{MaxNodes: 1, MaxDepth: 256}, false, &nodes)

	root := tree.RootNode()
	require.False(t, root.IsNull())
	assert.Equal(t, 16, tree.Node(root).NumActions())
	assert.Equal(t, int32(2), tree.Node(root).Visits())

	assert.True(t, legalMoveSet(ataxx.StartPos)[mv])
	assert.GreaterOrEqual(t, q, float32(0))
	assert.LessOrEqual(t, q, float32(1))
	assert.Positive(t, nodes)
}

func TestSearchProvesImmediateWin(t *testing.T) {
	const fen = "7/7/7/7/7/2x4/1o5 x 0 1"
	s, tree, _ := newAtaxxSearcher(t, fen, 1<<14)

	mv, _ := s.Search(1, Limits{MaxNodes: 1000, MaxDepth: 256}, false, nil)

	root := tree.Node(tree.RootNode())
	assert.Equal(t, game.Won(1), root.State())

	pos, err := ataxx.FromFEN(fen)
	require.NoError(t, err)
	require.True(t, legalMoveSet(fen)[mv])
	pos.Make(mv)
	assert.Equal(t, game.Lost(0), pos.GameState())
}

func TestSearchTerminalRoot(t *testing.T) {
	// blue has been wiped out; red has already won and there is no move
	const fen = "7/7/7/7/7/7/xx5 x 0 1"
	s, tree, _ := newAtaxxSearcher(t, fen, 1024)

	mv, _ := s.Search(1, Limits{MaxNodes: 10, MaxDepth: 256}, false, nil)
	assert.Equal(t, game.NullMove, mv)
	assert.True(t, tree.Node(tree.RootNode()).IsTerminal())
}

func TestSearchTwoThreadsInvariants(t *testing.T) {
	s, tree, _ := newAtaxxSearcher(t, ataxx.StartPos, 1<<16)

	var nodes int64
	mv, q := s.Search(2, Limits{MaxNodes: 20000, MaxDepth: 256}, false, &nodes)

	assert.True(t, legalMoveSet(ataxx.StartPos)[mv])
	assert.GreaterOrEqual(t, q, float32(0))
	assert.LessOrEqual(t, q, float32(1))

	// walk the whole arena: no leaked virtual loss, Q in bounds, and visit
	// counts consistent with the children
	half := tree.activeHalf()
	used := tree.Used()
	for i := 0; i < used; i++ {
		n := &half.nodes[i]
		assert.Zero(t, n.Threads(), "node %d leaked threads", i)

		if n.Visits() > 0 {
			assert.GreaterOrEqual(t, n.Q(), float32(0))
			assert.LessOrEqual(t, n.Q(), float32(1))
		}

		if n.NumActions() > 0 && n.Visits() > 0 {
			first := n.firstChild()
			var childVisits int32
			for j := 0; j < n.NumActions(); j++ {
				childVisits += tree.Node(first.Offset(j)).Visits()
			}
			assert.GreaterOrEqual(t, n.Visits(), childVisits+1, "node %d", i)
		}
	}
}

func TestSearchFlipsWhenFull(t *testing.T) {
	// a deliberately tiny arena forces TreeFull recovery mid-search
	s, tree, _ := newAtaxxSearcher(t, ataxx.StartPos, 256)

	mv, _ := s.Search(1, Limits{MaxNodes: 3000, MaxDepth: 256}, false, nil)

	assert.True(t, legalMoveSet(ataxx.StartPos)[mv])
	assert.LessOrEqual(t, tree.Used(), 256)
	assert.False(t, tree.RootNode().IsNull())
}

func TestSearchReusesTreeAcrossCalls(t *testing.T) {
	s, tree, abort := newAtaxxSearcher(t, ataxx.StartPos, 1<<14)

	s.Search(1, Limits{MaxNodes: 200, MaxDepth: 256}, false, nil)
	visitsAfterFirst := tree.Node(tree.RootNode()).Visits()
	actions := tree.Node(tree.RootNode()).NumActions()

	abort.Store(false)
	s.Search(1, Limits{MaxNodes: 200, MaxDepth: 256}, false, nil)

	assert.Equal(t, actions, tree.Node(tree.RootNode()).NumActions())
	assert.Greater(t, tree.Node(tree.RootNode()).Visits(), visitsAfterFirst)
}

func TestTryUseSubtreeAdoptsPlayedMove(t *testing.T) {
	s, tree, _ := newAtaxxSearcher(t, ataxx.StartPos, 1<<14)
	s.Search(1, Limits{MaxNodes: 500, MaxDepth: 256}, false, nil)

	infos := tree.RootChildInfo()
	require.NotEmpty(t, infos)
	best := infos[0]
	for _, info := range infos {
		if info.Visits > best.Visits {
			best = info
		}
	}
	require.Positive(t, best.Visits)

	prev := ataxx.Start()
	next := ataxx.Start()
	next.Make(best.Move)

	require.True(t, TryUseSubtree[*ataxx.Board](tree, next, prev, true))
	assert.Equal(t, best.Ptr, tree.RootNode())
	assert.Equal(t, best.Move, tree.Node(tree.RootNode()).Move())
}

func TestTryUseSubtreeClearsOnMismatch(t *testing.T) {
	s, tree, _ := newAtaxxSearcher(t, ataxx.StartPos, 1<<14)
	s.Search(1, Limits{MaxNodes: 200, MaxDepth: 256}, false, nil)

	other, err := ataxx.FromFEN("x5o/7/2-1-2/7/2-1-2/7/o5x x 0 1")
	require.NoError(t, err)

	assert.False(t, TryUseSubtree[*ataxx.Board](tree, other, ataxx.Start(), true))
	assert.True(t, tree.IsEmpty())
	assert.True(t, tree.RootNode().IsNull())
}

func TestTryUseSubtreeWithoutHistoryClears(t *testing.T) {
	s, tree, _ := newAtaxxSearcher(t, ataxx.StartPos, 1<<14)
	s.Search(1, Limits{MaxNodes: 100, MaxDepth: 256}, false, nil)

	assert.False(t, TryUseSubtree[*ataxx.Board](tree, ataxx.Start(), ataxx.Start(), false))
	assert.True(t, tree.IsEmpty())
}

func TestRootPolicySumsToOne(t *testing.T) {
	s, tree, _ := newAtaxxSearcher(t, ataxx.StartPos, 4096)
	s.Search(1, Limits{MaxNodes: 1, MaxDepth: 256}, false, nil)

	var sum float32
	for _, info := range tree.RootChildInfo() {
		sum += info.Policy
	}
	assert.InDelta(t, 1.0, sum, 1e-2)
}

func TestRootNoiseStaysNormalized(t *testing.T) {
	pos := ataxx.Start()
	tree := NewTree(4096)
	abort := &atomic.Bool{}

	p := params.Defaults()
	p.RootNoiseFrac = 0.25

	s := NewSearcher[*ataxx.Board](tree, pos, p, ataxx.NewScorer(), abort, io.Discard)
	s.Search(1, Limits{MaxNodes: 8, MaxDepth: 256}, false, nil)

	var sum float32
	for _, info := range tree.RootChildInfo() {
		sum += info.Policy
		assert.GreaterOrEqual(t, info.Policy, float32(0))
	}
	assert.InDelta(t, 1.0, sum, 2e-2)
}

func TestSearchKeepsSamePositionSubtree(t *testing.T) {
	s, tree, _ := newAtaxxSearcher(t, ataxx.StartPos, 1<<14)
	s.Search(1, Limits{MaxNodes: 100, MaxDepth: 256}, false, nil)

	root := tree.RootNode()
	assert.True(t, TryUseSubtree[*ataxx.Board](tree, ataxx.Start(), ataxx.Start(), true))
	assert.Equal(t, root, tree.RootNode())
}
