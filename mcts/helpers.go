package mcts

import (
	"time"

	"github.com/chewxy/math32"

	"github.com/quercus/params"
)

var negInf = math32.Inf(-1)

// cpuctFor is the exploration constant for selecting among a node's
// children: the baseline (root or interior) scaled up with the node's visit
// count and with the observed variance of its value.
func cpuctFor(p *params.Params, n *Node, isRoot bool) float32 {
	cpuct := p.Cpuct
	if isRoot {
		cpuct = p.RootCpuct
	}

	scale := p.CpuctVisitsScale * 128.0
	cpuct *= 1.0 + math32.Log((float32(n.Visits())+scale)/scale)

	if n.Visits() > 1 {
		frac := math32.Sqrt(n.Var()) / p.CpuctVarScale
		cpuct *= 1.0 + p.CpuctVarWeight*(frac-1.0)
	}

	return cpuct
}

// exploreScale is sqrt of the parent's visit count, widened when the child
// policies are diverse (low gini concentration).
func exploreScale(p *params.Params, n *Node) float32 {
	visits := float32(n.Visits())
	if visits < 1 {
		visits = 1
	}
	scale := math32.Sqrt(visits)

	if g := n.Gini(); g > 0 {
		scale *= math32.Min(p.GiniMin, p.GiniBase-p.GiniLnMultiplier*math32.Log(g+0.001))
	}

	return scale
}

// fpuFor is the first-play urgency given to unvisited children.
func fpuFor(n *Node) float32 { return 1.0 - n.Q() }

// softmaxInPlace turns logits into probabilities, with a temperature that
// flattens (>1) or sharpens (<1) the distribution.
func softmaxInPlace(logits []float32, temperature float32) {
	if len(logits) == 0 {
		return
	}

	maxLogit := negInf
	for _, l := range logits {
		if l > maxLogit {
			maxLogit = l
		}
	}

	var sum float32
	for i, l := range logits {
		e := math32.Exp((l - maxLogit) / temperature)
		logits[i] = e
		sum += e
	}
	for i := range logits {
		logits[i] /= sum
	}
}

// giniImpurity is the policy concentration measure stored at expansion time.
func giniImpurity(probs []float32) float32 {
	var sum float32
	for _, p := range probs {
		sum += p * p
	}
	return sum
}

// scoreCP converts a win probability to a centipawn figure: flattened (cubic)
// near 0.5 up to a deviation of 0.107 (100cp), then linear at 2923cp per unit
// of deviation towards the proven ends.
func scoreCP(score float32) float32 {
	clamped := math32.Max(0.0, math32.Min(1.0, score))
	deviation := math32.Abs(clamped - 0.5)
	sign := float32(1.0)
	if clamped < 0.5 {
		sign = -1.0
	}
	if deviation > 0.107 {
		return (100.0 + 2923.0*(deviation-0.107)) * sign
	}
	d := clamped - 0.5
	adjusted := 0.5 + d*d*d*100.0
	return -200.0 * math32.Log(1.0/adjusted-1.0)
}

// TimeBudget splits the remaining clock into a soft and a hard limit for one
// move: base share of the clock plus three quarters of the increment, with
// the hard limit capped to half the clock. The move overhead comes off both.
func TimeBudget(p *params.Params, remaining, inc time.Duration, movesToGo int, overhead time.Duration) (opt, hard time.Duration) {
	mtg := movesToGo
	if mtg <= 0 {
		mtg = int(p.TmMtg)
	}
	if mtg < 1 {
		mtg = 1
	}

	budget := remaining/time.Duration(mtg) + inc*3/4

	opt = budget
	hard = 5 * budget
	if hard > remaining/2 {
		hard = remaining / 2
	}

	opt -= overhead
	hard -= overhead
	if opt < time.Millisecond {
		opt = time.Millisecond
	}
	if hard < time.Millisecond {
		hard = time.Millisecond
	}
	if hard < opt {
		opt = hard
	}
	return opt, hard
}
