package mcts

import "sync/atomic"

// treeHalf is one slab of the double-buffered arena: a fixed vector of nodes
// with an atomic bump counter for O(1) concurrent block reservation.
type treeHalf struct {
	nodes []Node
	used  atomic.Int64
	half  bool
}

func newTreeHalf(size int, half bool) *treeHalf {
	return &treeHalf{
		// The zero Node is Ongoing and empty; nodes are fully initialized
		// by setNew/clear when handed out.
		nodes: make([]Node, size),
		half:  half,
	}
}

// reserve claims a contiguous block of num nodes. It fails when the half is
// out of space; the caller must then flip.
func (h *treeHalf) reserve(num int) (NodePtr, bool) {
	idx := h.used.Add(int64(num)) - int64(num)
	if idx+int64(num) > int64(len(h.nodes)) {
		return NullPtr, false
	}
	return newPtr(h.half, uint32(idx)), true
}

func (h *treeHalf) clear()        { h.used.Store(0) }
func (h *treeHalf) isEmpty() bool { return h.used.Load() == 0 }

func (h *treeHalf) usedCount() int {
	used := h.used.Load()
	if used > int64(len(h.nodes)) {
		return len(h.nodes)
	}
	return int(used)
}

func (h *treeHalf) isFull() bool { return h.used.Load() >= int64(len(h.nodes)) }
