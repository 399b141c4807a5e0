package mcts

import (
	"time"

	distrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/quercus/game"
)

// worker holds one search thread's scratch buffers, so iterations allocate
// nothing beyond what the game's own move generation needs.
type worker[P game.Position[P]] struct {
	s      *Searcher[P]
	moves  []game.Move
	logits []float32
}

func (s *Searcher[P]) newWorker() *worker[P] {
	return &worker[P]{
		s:      s,
		moves:  make([]game.Move, 0, 128),
		logits: make([]float32, 128),
	}
}

// performOne runs one MCTS iteration from ptr on the given position clone:
// descend by PUCT, expand on the second visit, evaluate or read the cache at
// the leaf, and back the value up with a perspective flip per ply. The
// second result is false when a reservation failed; the driver must then
// flip the tree.
func (w *worker[P]) performOne(pos P, ptr NodePtr, depth *int) (float32, bool) {
	*depth++

	t := w.s.tree
	n := t.Node(ptr)

	var u float32

	if n.IsTerminal() || n.Visits() == 0 {
		if n.Visits() == 0 {
			// first touch decides the terminal classification; a state
			// already proven by mate propagation is never overwritten
			if !n.IsTerminal() {
				n.setState(pos.GameState())
			}
		}

		if n.State() == game.Ongoing {
			hash := pos.Hash()
			if q, ok := t.cache.Probe(hash); ok {
				u = q
			} else {
				u = w.s.eval.Value(pos)
				t.cache.Store(hash, u)
			}
		} else {
			u = utility(n.State())
		}
	} else {
		if n.isNotExpanded() {
			if !w.expandNode(pos, ptr, *depth) {
				return 0, false
			}
		}

		action := w.pickAction(ptr, n)
		if action < 0 {
			return 0, false
		}

		childPtr := n.firstChild().Offset(action)
		child := t.Node(childPtr)

		pos.Make(child.Move())
		child.incThreads()

		// hold the parent's expansion lock across a child's first visit so
		// concurrent threads cannot race its game-state classification
		locked := child.Visits() == 0
		if locked {
			n.mu.Lock()
		}

		childU, ok := w.performOne(pos, childPtr, depth)

		if locked {
			n.mu.Unlock()
		}
		child.decThreads()

		if !ok {
			return 0, false
		}

		t.propagateProvenMates(ptr, child.State())
		u = childU
	}

	// values are stored from the parent's point of view
	u = 1.0 - u
	n.update(u)
	return u, true
}

func utility(st game.State) float32 {
	switch {
	case st.IsWon():
		return 1.0
	case st.IsLost():
		return 0.0
	default:
		return 0.5
	}
}

// expandNode materializes the children of an internal node: one block of
// arena nodes, priors from the evaluator softmaxed at the root's PST
// temperature when depth is 1, and the gini concentration of the resulting
// distribution. Returns false when the block cannot be reserved.
func (w *worker[P]) expandNode(pos P, ptr NodePtr, depth int) bool {
	t := w.s.tree
	n := t.Node(ptr)

	n.mu.Lock()
	defer n.mu.Unlock()

	// another thread may have won the race
	if n.numActions.Load() > 0 {
		return true
	}

	w.moves = pos.AppendLegalMoves(w.moves[:0])
	k := len(w.moves)
	if k == 0 {
		return true
	}
	if cap(w.logits) < k {
		w.logits = make([]float32, k)
	}
	probs := w.logits[:k]
	w.s.eval.PolicyLogits(pos, w.moves, probs)

	first, ok := t.ReserveNodes(k)
	if !ok {
		return false
	}

	temperature := float32(1.0)
	if depth == 1 {
		temperature = w.s.params.RootPST
	}
	softmaxInPlace(probs, temperature)

	if depth == 1 && w.s.params.RootNoiseFrac > 0 {
		mixDirichlet(probs, w.s.params.RootNoiseFrac, w.s.params.RootNoiseAlpha)
	}

	for i := 0; i < k; i++ {
		t.Node(first.Offset(i)).setNew(w.moves[i], probs[i])
	}

	n.setGini(giniImpurity(probs))
	n.actions = first
	n.numActions.Store(uint32(k))
	return true
}

// mixDirichlet blends Dirichlet noise into the root priors for exploration
// during self-play style searches.
func mixDirichlet(probs []float32, frac, alphaVal float32) {
	alpha := make([]float64, len(probs))
	for i := range alpha {
		alpha[i] = float64(alphaVal)
	}
	dist := distmv.NewDirichlet(alpha, distrand.NewSource(uint64(time.Now().UnixNano())))
	noise := dist.Rand(nil)
	for i := range probs {
		probs[i] = (1.0-frac)*probs[i] + frac*float32(noise[i])
	}
}

// relabelPolicy recomputes the priors of an already-expanded node, applying
// the root PST temperature at depth 1. Used when a preserved subtree becomes
// the root of a new search.
func (w *worker[P]) relabelPolicy(pos P, ptr NodePtr, depth int) {
	t := w.s.tree
	n := t.Node(ptr)

	n.mu.Lock()
	defer n.mu.Unlock()

	k := int(n.numActions.Load())
	if k == 0 || n.actions.IsNull() {
		return
	}

	w.moves = w.moves[:0]
	for i := 0; i < k; i++ {
		w.moves = append(w.moves, t.Node(n.actions.Offset(i)).Move())
	}
	if cap(w.logits) < k {
		w.logits = make([]float32, k)
	}
	probs := w.logits[:k]
	w.s.eval.PolicyLogits(pos, w.moves, probs)

	temperature := float32(1.0)
	if depth == 1 {
		temperature = w.s.params.RootPST
	}
	softmaxInPlace(probs, temperature)

	for i := 0; i < k; i++ {
		t.Node(n.actions.Offset(i)).setPolicy(probs[i])
	}
	n.setGini(giniImpurity(probs))
}

// pickAction chooses a child by PUCT. Proven children bypass the formula:
// replies the opponent loses score 1+n and are taken ahead of unproven ones
// (the longer distance scores higher), proven losing replies score n-256 and
// are pushed below everything else (longest first), proven draws sit at
// their exact value.
func (w *worker[P]) pickAction(ptr NodePtr, n *Node) int {
	p := w.s.params
	isRoot := ptr == w.s.tree.RootNode()

	cpuct := cpuctFor(p, n, isRoot)
	fpu := fpuFor(n)
	expl := cpuct * exploreScale(p, n)

	return w.s.tree.bestChildByKey(ptr, func(child *Node) float32 {
		switch st := child.State(); {
		case st.IsLost():
			return 1.0 + float32(st.Plies())
		case st.IsWon():
			return float32(st.Plies()) - 256.0
		case st.IsDraw():
			return 0.5
		}

		q := fpu
		visits := child.Visits()
		if visits > 0 {
			q = child.Q()
		}

		// virtual loss: dilute towards zero by the in-flight thread share
		if threads := child.Threads(); threads > 0 {
			q = q * float32(visits) / float32(visits+threads)
		}

		u := expl * child.Policy() / (1.0 + float32(visits))
		return q + u
	})
}
