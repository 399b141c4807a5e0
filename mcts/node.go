// Package mcts implements the parallel Monte Carlo tree search core: the
// double-buffered node arena, the PUCT iteration kernel, the transposition
// cache and the search driver.
package mcts

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/quercus/game"
)

// quant is the fixed-point multiplier for the summed Q statistics. Storing Q
// as integer multiples keeps concurrent backups commutative under fetch-add.
const quant = 4096

// NodePtr is an opaque 32-bit node handle: the top bit selects the arena
// half, the rest is the index within that half.
type NodePtr uint32

// NullPtr is the reserved sentinel handle.
const NullPtr NodePtr = math.MaxUint32

func newPtr(half bool, idx uint32) NodePtr {
	if half {
		return NodePtr(1<<31 | idx)
	}
	return NodePtr(idx)
}

// IsNull reports whether the handle is the sentinel.
func (p NodePtr) IsNull() bool { return p == NullPtr }

// Half is the arena half the handle points into.
func (p NodePtr) Half() bool { return p&(1<<31) > 0 }

// Idx is the index within the half.
func (p NodePtr) Idx() int { return int(p & 0x7FFF_FFFF) }

// Offset addresses the i-th consecutive node after p, within the same half.
func (p NodePtr) Offset(i int) NodePtr { return p + NodePtr(i) }

// Node is one arena-resident search node. Nodes never move after
// construction; all statistics are independent atomics, and the only locked
// structure is the child-block pointer, written once at expansion.
type Node struct {
	// mu guards actions. Expansion takes the write side; selection takes
	// the read side just long enough to snapshot the pointer. The write
	// side also serializes a child's first evaluation against its
	// siblings' selection.
	mu      sync.RWMutex
	actions NodePtr

	numActions atomic.Uint32
	state      atomic.Uint32
	threads    atomic.Int32
	mov        atomic.Uint32
	policy     atomic.Uint32
	visits     atomic.Int32
	summedQ    atomic.Int64
	summedSqQ  atomic.Int64
	gini       atomic.Uint32
}

// setNew resets the node and stamps the parent-edge move and prior.
func (n *Node) setNew(mov game.Move, policy float32) {
	n.clear()
	n.mov.Store(uint32(mov))
	n.setPolicy(policy)
}

func (n *Node) clear() {
	n.clearActions()
	n.state.Store(uint32(game.Ongoing))
	n.threads.Store(0)
	n.mov.Store(0)
	n.policy.Store(0)
	n.visits.Store(0)
	n.summedQ.Store(0)
	n.summedSqQ.Store(0)
	n.gini.Store(0)
}

func (n *Node) clearActions() {
	n.mu.Lock()
	n.actions = NullPtr
	n.mu.Unlock()
	n.numActions.Store(0)
}

// Move is the move on the parent edge that reaches this node.
func (n *Node) Move() game.Move { return game.Move(n.mov.Load()) }

// State is the terminal classification, Ongoing until proven otherwise.
func (n *Node) State() game.State { return game.State(n.state.Load()) }

func (n *Node) setState(s game.State) { n.state.Store(uint32(s)) }

// IsTerminal reports whether the node is a proven terminal.
func (n *Node) IsTerminal() bool { return n.State().IsTerminal() }

// isNotExpanded reports an internal node whose children have not been
// materialized yet.
func (n *Node) isNotExpanded() bool {
	return n.State() == game.Ongoing && n.NumActions() == 0
}

// NumActions is the number of children.
func (n *Node) NumActions() int { return int(n.numActions.Load()) }

// HasChildren reports whether the node has been expanded.
func (n *Node) HasChildren() bool { return n.NumActions() != 0 }

// firstChild snapshots the child-block pointer.
func (n *Node) firstChild() NodePtr {
	n.mu.RLock()
	ptr := n.actions
	n.mu.RUnlock()
	return ptr
}

// Visits is the number of completed iterations through this node.
func (n *Node) Visits() int32 { return n.visits.Load() }

// Threads is the number of in-flight selections through this node.
func (n *Node) Threads() int32 { return n.threads.Load() }

func (n *Node) incThreads() { n.threads.Add(1) }
func (n *Node) decThreads() { n.threads.Add(-1) }

// Policy is the dequantized prior on the parent edge.
func (n *Node) Policy() float32 {
	return float32(n.policy.Load()) / float32(math.MaxUint16)
}

func (n *Node) setPolicy(p float32) {
	n.policy.Store(uint32(p * float32(math.MaxUint16)))
}

// Q is the mean backed-up value, in [0, 1], from the parent's perspective.
func (n *Node) Q() float32 {
	visits := n.visits.Load()
	if visits == 0 {
		return 0
	}
	return float32(n.summedQ.Load()/int64(visits)) / quant
}

// Var is the running variance of the backed-up values.
func (n *Node) Var() float32 {
	visits := n.visits.Load()
	if visits == 0 {
		return 0
	}
	mean := float64(n.summedQ.Load()/int64(visits)) / quant
	meanSq := float64(n.summedSqQ.Load()/int64(visits)) / (quant * quant)
	v := meanSq - mean*mean
	if v < 0 {
		return 0
	}
	return float32(v)
}

// Gini is the child-policy concentration measure stored at expansion time.
func (n *Node) Gini() float32 {
	return math.Float32frombits(n.gini.Load())
}

func (n *Node) setGini(g float32) { n.gini.Store(math.Float32bits(g)) }

// update backs one value up into the node: one visit, q and q-squared added
// to the quantized sums.
func (n *Node) update(q float32) {
	qi := int64(q * quant)
	n.visits.Add(1)
	n.summedQ.Add(qi)
	n.summedSqQ.Add(qi * qi)
}

// copyFrom copies every field but the child-block pointer, which the flip
// rewrites after reserving the children in the new half.
func (n *Node) copyFrom(other *Node) {
	n.state.Store(other.state.Load())
	n.threads.Store(other.threads.Load())
	n.mov.Store(other.mov.Load())
	n.policy.Store(other.policy.Load())
	n.visits.Store(other.visits.Load())
	n.summedQ.Store(other.summedQ.Load())
	n.summedSqQ.Store(other.summedSqQ.Load())
	n.gini.Store(other.gini.Load())
	n.numActions.Store(other.numActions.Load())
}
