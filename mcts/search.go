package mcts

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quercus/game"
	"github.com/quercus/params"
)

// Searcher runs searches for one root position over a persistent tree. The
// abort flag is shared with the command layer, which sets it on "stop".
type Searcher[P game.Position[P]] struct {
	tree    *Tree
	rootPos P
	params  *params.Params
	eval    game.Evaluator[P]
	abort   *atomic.Bool
	out     io.Writer
}

// NewSearcher wires a searcher. out receives protocol "info" lines.
func NewSearcher[P game.Position[P]](tree *Tree, rootPos P, p *params.Params, eval game.Evaluator[P], abort *atomic.Bool, out io.Writer) *Searcher[P] {
	return &Searcher[P]{
		tree:    tree,
		rootPos: rootPos,
		params:  p,
		eval:    eval,
		abort:   abort,
		out:     out,
	}
}

// Search runs until a limit fires or abort is set, fanning out the given
// number of workers, flipping the tree whenever it fills, and returns the
// best root move with its value. updateNodes, when non-nil, accumulates the
// node total across searches.
func (s *Searcher[P]) Search(threads int, limits Limits, output bool, updateNodes *int64) (game.Move, float32) {
	if threads < 1 {
		threads = 1
	}

	start := time.Now()
	lastOutput := start

	// the root is seeded outside the node count so `go nodes 1` performs
	// exactly one countable iteration
	if s.tree.IsEmpty() {
		ptr := s.tree.SeedRoot()
		s.tree.Node(ptr).setState(s.rootPos.GameState())

		if !s.tree.Node(ptr).IsTerminal() {
			w := s.newWorker()
			w.expandNode(s.rootPos.Clone(), ptr, 1)
		}

		rootEval := s.eval.Value(s.rootPos)
		s.tree.Node(ptr).update(1.0 - rootEval)
	} else if root := s.tree.RootNode(); s.tree.Node(root).HasChildren() {
		// a reused subtree carries interior-temperature priors; relabel the
		// root's children at PST temperature, and one ply deeper
		w := s.newWorker()
		w.relabelPolicy(s.rootPos, root, 1)

		for _, info := range s.tree.ChildrenInfo(root) {
			if !info.HasChildren {
				continue
			}
			childPos := s.rootPos.Clone()
			childPos.Make(info.Move)
			w.relabelPolicy(childPos, info.Ptr, 2)
		}
	}

	stats := &SearchStats{}
	bestMove := game.NullMove
	bestMoveChanges := 0
	prevScore := negInf

	for !s.abort.Load() {
		var g errgroup.Group

		g.Go(func() error {
			w := s.newWorker()
			full := !s.playoutLoop(w, stats, true, func() bool {
				return s.checkLimits(limits, start, &lastOutput, stats, &bestMove, &bestMoveChanges, &prevScore, output)
			})
			if !full {
				s.abort.Store(true)
			}
			return nil
		})

		for i := 1; i < threads; i++ {
			g.Go(func() error {
				w := s.newWorker()
				s.playoutLoop(w, stats, false, func() bool { return false })
				return nil
			})
		}

		_ = g.Wait()

		if !s.abort.Load() {
			s.tree.Flip(true, threads)
		}
	}

	if updateNodes != nil {
		*updateNodes += stats.TotalNodes.Load()
	}

	if output {
		depth := int(stats.AvgDepth.Load())
		if depth < 1 {
			depth = 1
		}
		s.report(depth, int(stats.SelDepth.Load()), start, stats)
	}

	_, mov, q := s.getBestAction(s.tree.RootNode())
	return mov, q
}

// playoutLoop runs iterations until the tree fills (false) or the search is
// over (true): root proven, abort set, or the stop callback fired.
func (s *Searcher[P]) playoutLoop(w *worker[P], stats *SearchStats, main bool, stop func() bool) bool {
	pos := s.rootPos.Clone()

	for {
		pos.CopyFrom(s.rootPos)
		depth := 0

		if _, ok := w.performOne(pos, s.tree.RootNode(), &depth); !ok {
			return false
		}

		stats.TotalIters.Add(1)
		stats.TotalNodes.Add(int64(depth))
		atomicMax(&stats.SelDepth, int64(depth-1))
		if main {
			stats.MainIters.Add(1)
		}

		if s.tree.Node(s.tree.RootNode()).IsTerminal() {
			return true
		}
		if s.abort.Load() {
			return true
		}
		if stop() {
			return true
		}
	}
}

// checkLimits is the main worker's between-iterations check: node cap every
// iteration, hard time and best-move sampling every 128, soft time every
// 4096 with the change counter reset every 16384, plus depth accounting and
// periodic reporting.
func (s *Searcher[P]) checkLimits(limits Limits, start time.Time, lastOutput *time.Time, stats *SearchStats, bestMove *game.Move, bestMoveChanges *int, prevScore *float32, output bool) bool {
	iters := stats.MainIters.Load()

	if limits.MaxNodes > 0 && stats.TotalIters.Load() >= limits.MaxNodes {
		return true
	}

	if iters%128 == 0 {
		if limits.MaxTime > 0 && time.Since(start) >= limits.MaxTime {
			return true
		}

		if _, newBest, _ := s.getBestAction(s.tree.RootNode()); newBest != *bestMove {
			*bestMove = newBest
			*bestMoveChanges++
		}
	}

	if iters%4096 == 0 && limits.OptTime > 0 {
		shouldStop, score := s.softTimeCutoff(start, limits.OptTime, *prevScore, *bestMoveChanges)
		if shouldStop {
			return true
		}

		if iters%16384 == 0 {
			*bestMoveChanges = 0
		}

		if *prevScore == negInf {
			*prevScore = score
		} else {
			*prevScore = (score + 2.0**prevScore) / 3.0
		}
	}

	// "depth" is the average depth of selection
	totalIters := stats.TotalIters.Load()
	if totalIters > 0 {
		newDepth := (stats.TotalNodes.Load() - totalIters) / totalIters
		if newDepth > stats.AvgDepth.Load() {
			stats.AvgDepth.Store(newDepth)
			if limits.MaxDepth > 0 && int(newDepth) >= limits.MaxDepth {
				return true
			}

			if output {
				s.report(int(newDepth), int(stats.SelDepth.Load()), start, stats)
				*lastOutput = time.Now()
			}
		}
	}

	if output && iters%8192 == 0 && time.Since(*lastOutput) >= 15*time.Second {
		s.report(int(stats.AvgDepth.Load()), int(stats.SelDepth.Load()), start, stats)
		*lastOutput = time.Now()
	}

	return false
}

// softTimeCutoff stretches the soft budget while the best move keeps
// changing or the score is falling, and cuts the search once the stretched
// deadline passes.
func (s *Searcher[P]) softTimeCutoff(start time.Time, opt time.Duration, prevScore float32, bestMoveChanges int) (bool, float32) {
	_, _, score := s.getBestAction(s.tree.RootNode())

	mult := 1.0 + float64(s.params.TmInstabilityWeight)*float64(bestMoveChanges)
	if prevScore != negInf && score < prevScore {
		mult *= 1.0 + float64(s.params.TmFallingWeight)*float64(prevScore-score)
	}
	if mult > 3.0 {
		mult = 3.0
	}

	deadline := time.Duration(float64(opt) * mult)
	return time.Since(start) >= deadline, score
}

// getBestChild picks the root-choice child: proven wins first (shortest),
// then value, proven losses last (longest). Ties go to the more visited
// child, then the earlier index. An unvisited child is chosen only when no
// child has been visited.
func (s *Searcher[P]) getBestChild(ptr NodePtr) int {
	n := s.tree.Node(ptr)
	first := n.firstChild()
	if first.IsNull() {
		return -1
	}

	best := -1
	bestKey := negInf
	bestVisits := int32(-1)

	num := n.NumActions()
	for i := 0; i < num; i++ {
		c := s.tree.Node(first.Offset(i))

		key := negInf
		if c.Visits() > 0 {
			switch st := c.State(); {
			case st.IsLost():
				key = 256.0 - float32(st.Plies())
			case st.IsWon():
				key = -256.0 + float32(st.Plies())
			case st.IsDraw():
				key = 0.5
			default:
				key = c.Q()
			}
		}

		if key > bestKey || (key == bestKey && c.Visits() > bestVisits) {
			best, bestKey, bestVisits = i, key, c.Visits()
		}
	}
	return best
}

func (s *Searcher[P]) getBestAction(ptr NodePtr) (NodePtr, game.Move, float32) {
	idx := s.getBestChild(ptr)
	if idx < 0 {
		return NullPtr, game.NullMove, s.tree.Node(ptr).Q()
	}
	childPtr := s.tree.Node(ptr).firstChild().Offset(idx)
	child := s.tree.Node(childPtr)
	return childPtr, child.Move(), child.Q()
}

// getPV walks best children for up to depth plies (or the whole proven line
// when the root is terminal) and scores the line from the root's view.
func (s *Searcher[P]) getPV(depth int) ([]game.Move, float32) {
	mate := s.tree.Node(s.tree.RootNode()).IsTerminal()

	ptr, mov, q := s.getBestAction(s.tree.RootNode())

	score := q
	if !ptr.IsNull() {
		switch st := s.tree.Node(ptr).State(); {
		case st.IsLost():
			score = 1.1
		case st.IsWon():
			score = -0.1
		case st.IsDraw():
			score = 0.5
		}
	}

	var pv []game.Move
	half := s.tree.activeBit()

	for (mate || depth > 0) && !ptr.IsNull() && ptr.Half() == half {
		pv = append(pv, mov)

		if s.getBestChild(ptr) < 0 {
			break
		}
		ptr, mov, _ = s.getBestAction(ptr)
		if depth > 0 {
			depth--
		}
	}

	return pv, score
}

// report writes one info line. The line is built up front and written in a
// single call so concurrent protocol replies cannot split it.
func (s *Searcher[P]) report(depth, seldepth int, start time.Time, stats *SearchStats) {
	pv, score := s.getPV(depth)

	var sb strings.Builder
	fmt.Fprintf(&sb, "info depth %d seldepth %d ", depth, seldepth)

	switch {
	case score > 1.0:
		fmt.Fprintf(&sb, "score mate %d ", (len(pv)+1)/2)
	case score < 0.0:
		fmt.Fprintf(&sb, "score mate -%d ", len(pv)/2)
	default:
		fmt.Fprintf(&sb, "score cp %.0f ", scoreCP(score))
	}

	nodes := stats.TotalNodes.Load()
	elapsed := time.Since(start)
	nps := float64(nodes) / elapsed.Seconds()

	fmt.Fprintf(&sb, "nodes %d nps %.0f time %d pv", nodes, nps, elapsed.Milliseconds())
	for _, mov := range pv {
		sb.WriteByte(' ')
		sb.WriteString(s.rootPos.MoveString(mov))
	}
	sb.WriteByte('\n')

	io.WriteString(s.out, sb.String())
}
