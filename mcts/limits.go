package mcts

import (
	"sync/atomic"
	"time"
)

// Limits bounds one search. Zero values mean "no limit".
type Limits struct {
	// MaxTime is the hard wall-clock cap.
	MaxTime time.Duration
	// OptTime is the soft cap, stretched by the best-move stability
	// heuristic before it fires.
	OptTime time.Duration
	// MaxDepth caps the average selection depth.
	MaxDepth int
	// MaxNodes caps the number of iterations.
	MaxNodes int64
}

// SearchStats are the running counters of one search, shared by all workers.
type SearchStats struct {
	// TotalNodes is the sum of per-iteration selection depths; it is what
	// "nodes" reports.
	TotalNodes atomic.Int64
	// TotalIters is the number of completed iterations.
	TotalIters atomic.Int64
	// MainIters counts only the main worker's iterations, pacing its limit
	// checks.
	MainIters atomic.Int64
	// AvgDepth is the high-water mark of (TotalNodes-TotalIters)/TotalIters.
	AvgDepth atomic.Int64
	// SelDepth is the deepest selection seen.
	SelDepth atomic.Int64
}

func atomicMax(a *atomic.Int64, v int64) {
	for {
		old := a.Load()
		if v <= old || a.CompareAndSwap(old, v) {
			return
		}
	}
}
