package mcts

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/quercus/game"
)

// Tree is the double-buffered arena of search nodes plus the transposition
// cache. One half is active and takes all writes; the other is stale and is
// only read while a flip copies the preserved subtree across.
type Tree struct {
	halves [2]*treeHalf
	active atomic.Int32
	root   atomic.Uint32
	cache  *HashTable
}

// NewTree builds a tree with the given number of node slots per half.
func NewTree(nodesPerHalf int) *Tree {
	if nodesPerHalf < 2 {
		nodesPerHalf = 2
	}
	t := &Tree{
		halves: [2]*treeHalf{
			newTreeHalf(nodesPerHalf, false),
			newTreeHalf(nodesPerHalf, true),
		},
		cache: newHashTable(max(1024, nodesPerHalf/4)),
	}
	t.root.Store(uint32(NullPtr))
	return t
}

// NewTreeMB builds a tree sized to the given megabytes per half.
func NewTreeMB(mb int) *Tree {
	nodeSize := int(unsafe.Sizeof(Node{}))
	return NewTree(mb << 20 / nodeSize)
}

// Node resolves a handle. The handle must be valid: allocated in the current
// generation of its half.
func (t *Tree) Node(ptr NodePtr) *Node {
	half := t.halves[0]
	if ptr.Half() {
		half = t.halves[1]
	}
	return &half.nodes[ptr.Idx()]
}

func (t *Tree) activeHalf() *treeHalf { return t.halves[t.active.Load()] }

func (t *Tree) activeBit() bool { return t.active.Load() == 1 }

// ReserveNodes claims a contiguous block in the active half. Failure means
// the tree is full and the caller must request a flip.
func (t *Tree) ReserveNodes(num int) (NodePtr, bool) {
	return t.activeHalf().reserve(num)
}

// IsEmpty reports whether nothing is allocated in the active half.
func (t *Tree) IsEmpty() bool { return t.activeHalf().isEmpty() }

// IsFull reports whether the active half is out of space.
func (t *Tree) IsFull() bool { return t.activeHalf().isFull() }

// Used is the number of allocated nodes in the active half.
func (t *Tree) Used() int { return t.activeHalf().usedCount() }

// CapacityPerHalf is the node-slot count of one half.
func (t *Tree) CapacityPerHalf() int { return len(t.halves[0].nodes) }

// Cache is the transposition cache.
func (t *Tree) Cache() *HashTable { return t.cache }

// RootNode is the current root handle, NullPtr when the tree is cleared.
func (t *Tree) RootNode() NodePtr { return NodePtr(t.root.Load()) }

func (t *Tree) setRoot(ptr NodePtr) { t.root.Store(uint32(ptr)) }

// SeedRoot reserves and clears the root slot in the active half. Call only
// on an empty tree.
func (t *Tree) SeedRoot() NodePtr {
	ptr, ok := t.ReserveNodes(1)
	if !ok {
		panic("mcts: arena too small for a root node")
	}
	t.Node(ptr).clear()
	t.setRoot(ptr)
	return ptr
}

// Clear resets both halves, makes half 0 active and drops the cache. Every
// stored handle is invalidated; callers must reseed the root.
func (t *Tree) Clear() {
	t.halves[0].clear()
	t.halves[1].clear()
	t.active.Store(0)
	t.setRoot(NullPtr)
	t.cache.Clear()
}

// copyPair links a node already copied into the new half (dst) to its
// original in the stale half (src), whose children still need copying.
type copyPair struct {
	dst, src NodePtr
}

// Flip swaps the active half, clears it, and, if preserveRoot is set, copies
// the root's reachable subtree into it breadth first so the preserved tree is
// compact from index 0. The copy stops reserving blocks once the new half is
// half full, so the search that follows always has room to grow; nodes past
// the cutoff keep their statistics but lose their children. Flip must not
// run concurrently with workers.
func (t *Tree) Flip(preserveRoot bool, threads int) {
	oldRoot := t.RootNode()
	oldHalf := t.activeHalf()

	t.active.Store(t.active.Load() ^ 1)
	fresh := t.activeHalf()
	fresh.clear()

	if !preserveRoot || oldRoot.IsNull() || oldHalf.isEmpty() {
		t.setRoot(NullPtr)
		return
	}

	rootPtr, _ := fresh.reserve(1)
	root := t.Node(rootPtr)
	root.copyFrom(t.Node(oldRoot))
	t.setRoot(rootPtr)

	budget := int64(len(fresh.nodes) / 2)
	level := []copyPair{{dst: rootPtr, src: oldRoot}}
	for len(level) > 0 {
		level = t.copyLevel(level, budget, threads)
	}
}

func (t *Tree) copyLevel(level []copyPair, budget int64, threads int) []copyPair {
	if threads < 2 || len(level) < 256 {
		return t.copyChunk(level, budget)
	}

	chunk := (len(level) + threads - 1) / threads
	results := make([][]copyPair, (len(level)+chunk-1)/chunk)

	var g errgroup.Group
	for i := range results {
		lo := i * chunk
		hi := min(lo+chunk, len(level))
		i := i
		g.Go(func() error {
			results[i] = t.copyChunk(level[lo:hi], budget)
			return nil
		})
	}
	_ = g.Wait()

	var next []copyPair
	for _, r := range results {
		next = append(next, r...)
	}
	return next
}

func (t *Tree) copyChunk(pairs []copyPair, budget int64) []copyPair {
	fresh := t.activeHalf()
	var next []copyPair
	for _, pair := range pairs {
		dst := t.Node(pair.dst)
		src := t.Node(pair.src)

		num := src.NumActions()
		srcFirst := src.firstChild()
		if num == 0 || srcFirst.IsNull() {
			dst.clearActions()
			continue
		}

		if fresh.used.Load() > budget {
			dst.clearActions()
			continue
		}
		dstFirst, ok := fresh.reserve(num)
		if !ok {
			dst.clearActions()
			continue
		}

		for i := 0; i < num; i++ {
			t.Node(dstFirst.Offset(i)).copyFrom(t.Node(srcFirst.Offset(i)))
			next = append(next, copyPair{dst: dstFirst.Offset(i), src: srcFirst.Offset(i)})
		}

		dst.mu.Lock()
		dst.actions = dstFirst
		dst.mu.Unlock()
	}
	return next
}

// TryUseSubtree keeps the tree across successive root moves: it walks up to
// two plies below the previous root looking for the node that reaches the
// new root position, and adopts it as the root when it lives in the active
// half and has been visited. A position equal to the previous one keeps the
// current root. Anything else clears the tree.
func TryUseSubtree[P game.Position[P]](t *Tree, pos P, prev P, hasPrev bool) bool {
	if !hasPrev || t.IsEmpty() || t.RootNode().IsNull() {
		t.Clear()
		return false
	}

	target := pos.FEN()
	if prev.FEN() == target {
		return true
	}

	found := findSubtree(t, prev, target, t.RootNode(), 2)
	if !found.IsNull() && found.Half() == t.activeBit() && t.Node(found).Visits() > 0 {
		t.setRoot(found)
		return true
	}

	t.Clear()
	return false
}

func findSubtree[P game.Position[P]](t *Tree, from P, target string, ptr NodePtr, depth int) NodePtr {
	n := t.Node(ptr)
	first := n.firstChild()
	if first.IsNull() {
		return NullPtr
	}
	num := n.NumActions()
	for i := 0; i < num; i++ {
		childPtr := first.Offset(i)
		next := from.Clone()
		next.Make(t.Node(childPtr).Move())
		if next.FEN() == target {
			return childPtr
		}
		if depth > 1 {
			if found := findSubtree(t, next, target, childPtr, depth-1); !found.IsNull() {
				return found
			}
		}
	}
	return NullPtr
}

// propagateProvenMates re-derives the parent's terminal classification after
// a child transitioned. A child lost from its own side's view is a proven
// win for the parent; when every reply is terminal the parent takes the best
// of the proven outcomes. Transitions are monotone, so rechecking all
// children under relaxed ordering converges.
func (t *Tree) propagateProvenMates(ptr NodePtr, childState game.State) {
	n := t.Node(ptr)
	if n.IsTerminal() {
		return
	}

	switch {
	case childState.IsLost():
		n.setState(game.Won(satIncr(childState.Plies())))

	case childState.IsWon() || childState.IsDraw():
		first := n.firstChild()
		if first.IsNull() {
			return
		}
		num := n.NumActions()
		anyDraw := false
		var worst uint8
		for i := 0; i < num; i++ {
			switch st := t.Node(first.Offset(i)).State(); {
			case st == game.Ongoing:
				return
			case st.IsLost():
				// a sibling already proves the win for the parent
				return
			case st.IsDraw():
				anyDraw = true
			case st.Plies() > worst:
				worst = st.Plies()
			}
		}
		if anyDraw {
			n.setState(game.Draw)
		} else {
			n.setState(game.Lost(satIncr(worst)))
		}
	}
}

func satIncr(n uint8) uint8 {
	if n == 255 {
		return 255
	}
	return n + 1
}

func (t *Tree) bestChildByKey(ptr NodePtr, key func(*Node) float32) int {
	n := t.Node(ptr)
	first := n.firstChild()
	if first.IsNull() {
		return -1
	}
	num := n.NumActions()
	best := -1
	bestScore := float32(negInf)
	for i := 0; i < num; i++ {
		if s := key(t.Node(first.Offset(i))); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// ChildInfo is a read-only snapshot of one child, for reporting and
// debugging surfaces.
type ChildInfo struct {
	Ptr         NodePtr
	Move        game.Move
	Policy      float32
	Q           float32
	Visits      int32
	State       game.State
	HasChildren bool
}

// ChildrenInfo snapshots the children of a node.
func (t *Tree) ChildrenInfo(ptr NodePtr) []ChildInfo {
	if ptr.IsNull() {
		return nil
	}
	n := t.Node(ptr)
	first := n.firstChild()
	if first.IsNull() {
		return nil
	}
	num := n.NumActions()
	infos := make([]ChildInfo, 0, num)
	for i := 0; i < num; i++ {
		c := t.Node(first.Offset(i))
		infos = append(infos, ChildInfo{
			Ptr:         first.Offset(i),
			Move:        c.Move(),
			Policy:      c.Policy(),
			Q:           c.Q(),
			Visits:      c.Visits(),
			State:       c.State(),
			HasChildren: c.HasChildren(),
		})
	}
	return infos
}

// RootChildInfo snapshots the root's children.
func (t *Tree) RootChildInfo() []ChildInfo {
	return t.ChildrenInfo(t.RootNode())
}
