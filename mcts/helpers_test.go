package mcts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quercus/params"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := []float32{1.0, 2.0, 3.0, -1.0}
	softmaxInPlace(probs, 1.0)

	var sum float32
	for _, p := range probs {
		assert.Greater(t, p, float32(0))
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-3)
	assert.Greater(t, probs[2], probs[0])
}

func TestSoftmaxTemperatureFlattens(t *testing.T) {
	sharp := []float32{0.0, 4.0}
	flat := []float32{0.0, 4.0}
	softmaxInPlace(sharp, 1.0)
	softmaxInPlace(flat, 4.0)

	assert.Greater(t, sharp[1], flat[1])
	assert.Greater(t, flat[0], sharp[0])
}

func TestGiniImpurity(t *testing.T) {
	uniform := []float32{0.25, 0.25, 0.25, 0.25}
	assert.InDelta(t, 0.25, giniImpurity(uniform), 1e-5)

	peaked := []float32{1.0, 0.0, 0.0, 0.0}
	assert.InDelta(t, 1.0, giniImpurity(peaked), 1e-5)
}

func TestScoreCPShape(t *testing.T) {
	assert.InDelta(t, 0.0, scoreCP(0.5), 1.0)
	assert.InDelta(t, scoreCP(0.7), -scoreCP(0.3), 1e-2)

	// monotone over the whole range
	prev := scoreCP(0.0)
	for q := float32(0.05); q <= 1.0; q += 0.05 {
		cur := scoreCP(q)
		assert.GreaterOrEqual(t, cur, prev, "q=%v", q)
		prev = cur
	}
	assert.Greater(t, scoreCP(1.0), float32(1000))
}

func TestCpuctScalesWithVisits(t *testing.T) {
	p := params.Defaults()
	var fresh Node
	fresh.clear()

	base := cpuctFor(p, &fresh, false)
	assert.InDelta(t, p.Cpuct, base, 0.01)

	var busy Node
	busy.clear()
	for i := 0; i < 10000; i++ {
		if i%2 == 0 {
			busy.update(0.1)
		} else {
			busy.update(0.9)
		}
	}
	assert.Greater(t, cpuctFor(p, &busy, false), base)

	assert.InDelta(t, p.RootCpuct, cpuctFor(p, &fresh, true), 0.01)
}

func TestExploreScaleGrowsWithDiversity(t *testing.T) {
	p := params.Defaults()

	var concentrated Node
	concentrated.clear()
	concentrated.update(0.5)
	concentrated.setGini(0.9)

	var diverse Node
	diverse.clear()
	diverse.update(0.5)
	diverse.setGini(0.05)

	assert.Greater(t, exploreScale(p, &diverse), exploreScale(p, &concentrated))
}

func TestFPUIsOneMinusParentQ(t *testing.T) {
	var n Node
	n.clear()
	n.update(0.8)
	assert.InDelta(t, 0.2, fpuFor(&n), 1e-3)
}

func TestTimeBudget(t *testing.T) {
	p := params.Defaults()

	opt, hard := TimeBudget(p, 30*time.Second, time.Second, 0, 40*time.Millisecond)
	// 30s/30 + 750ms - overhead
	assert.InDelta(t, 1.71, opt.Seconds(), 0.01)
	assert.Greater(t, hard, opt)
	assert.LessOrEqual(t, hard, 15*time.Second)

	// movestogo overrides the default split
	opt2, _ := TimeBudget(p, 30*time.Second, 0, 1, 0)
	assert.Greater(t, opt2, opt)

	// never returns a non-positive budget
	opt3, hard3 := TimeBudget(p, 10*time.Millisecond, 0, 0, 40*time.Millisecond)
	require.Greater(t, opt3, time.Duration(0))
	require.Greater(t, hard3, time.Duration(0))
	assert.GreaterOrEqual(t, hard3, opt3)
}
