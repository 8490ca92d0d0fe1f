package factorgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/chielk/ml2-lab/pkg/factorgraph/tensor"
)

// twoNodeChain is the smallest interesting graph: x1 - f - x2 with a
// non-uniform pairwise table.
func twoNodeChain(t *testing.T) (*Graph, *Variable, *Variable, *Factor) {
	t.Helper()
	return pairGraph(t, []float64{
		0.3, 0.2,
		0.1, 0.4,
	})
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("sum-product")
	require.NoError(t, err)
	assert.Equal(t, SumProduct, m)

	m, err = ParseMode("max-sum")
	require.NoError(t, err)
	assert.Equal(t, MaxSum, m)

	_, err = ParseMode("loopy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown inference mode")
}

func TestRunScheduleValidatesInput(t *testing.T) {
	g, x1, x2, f := twoNodeChain(t)

	_, err := g.RunSchedule(Mode("bogus"), []NodeID{x1.ID(), x2.ID(), f.ID()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown inference mode")

	_, err = g.RunSchedule(SumProduct, []NodeID{x1.ID(), f.ID()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lists 2 nodes, graph has 3")

	_, err = g.RunSchedule(SumProduct, []NodeID{x1.ID(), x1.ID(), f.ID()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twice")

	_, err = g.RunSchedule(SumProduct, []NodeID{x1.ID(), x2.ID(), NodeID(9)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node")
}

func TestRunScheduleRejectsPrematureOrder(t *testing.T) {
	// v1 - f12 - v2 - f23 - v3, with the middle variable scheduled first:
	// it would have to send before either side has reported in.
	g := NewGraph()
	v1, _ := g.AddVariable("v1", 2)
	v2, _ := g.AddVariable("v2", 2)
	v3, _ := g.AddVariable("v3", 2)
	table := tensor.Must(tensor.FromSlice([]float64{1, 2, 3, 4}, 2, 2))
	f12, err := g.AddFactor("f12", table, v1, v2)
	require.NoError(t, err)
	f23, err := g.AddFactor("f23", table, v2, v3)
	require.NoError(t, err)

	_, err = g.RunSchedule(SumProduct, []NodeID{v2.ID(), f12.ID(), f23.ID(), v1.ID(), v3.ID()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing message")
}

func TestChainHandOrderRuns(t *testing.T) {
	g := NewGraph()
	v1, _ := g.AddVariable("v1", 2)
	v2, _ := g.AddVariable("v2", 2)
	v3, _ := g.AddVariable("v3", 2)
	table := tensor.Must(tensor.FromSlice([]float64{1, 2, 3, 4}, 2, 2))
	f12, err := g.AddFactor("f12", table, v1, v2)
	require.NoError(t, err)
	f23, err := g.AddFactor("f23", table, v2, v3)
	require.NoError(t, err)

	// Ends first, middle last: no node is followed by more than one of
	// its neighbors, so every send finds its inputs already in place.
	order := []NodeID{v1.ID(), v3.ID(), f12.ID(), f23.ID(), v2.ID()}
	stats, err := g.RunSchedule(SumProduct, order)
	require.NoError(t, err)
	assert.Equal(t, 2*g.Edges(), stats.Messages)

	for _, v := range g.Variables() {
		got, z, err := v.Marginal()
		require.NoError(t, err)
		want, ze, err := g.ExhaustiveMarginal(v)
		require.NoError(t, err)
		assert.True(t, floats.EqualApprox(want, got, tol), "marginal of %s", v.Name())
		assert.InDelta(t, ze, z, tol)
	}
}

func TestCycleHasNoValidOrder(t *testing.T) {
	// Two factors over the same pair close a loop. Whatever the order,
	// some node is asked to send before the loop has reported in.
	g := NewGraph()
	a, _ := g.AddVariable("a", 2)
	b, _ := g.AddVariable("b", 2)
	table := tensor.Must(tensor.FromSlice([]float64{1, 2, 3, 4}, 2, 2))
	f1, err := g.AddFactor("f1", table, a, b)
	require.NoError(t, err)
	f2, err := g.AddFactor("f2", table, a, b)
	require.NoError(t, err)

	for _, order := range [][]NodeID{
		{a.ID(), b.ID(), f1.ID(), f2.ID()},
		{f1.ID(), f2.ID(), a.ID(), b.ID()},
	} {
		_, err := g.RunSchedule(SumProduct, order)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing message")
		g.Reset()
	}
}

func TestEmptyGraphRunsTrivially(t *testing.T) {
	stats, err := NewGraph().RunSchedule(SumProduct, nil)
	require.NoError(t, err)
	assert.Equal(t, RunStats{}, stats)
}

func TestTwoNodeChainExactBeliefs(t *testing.T) {
	g, x1, x2, f := twoNodeChain(t)
	order := []NodeID{x1.ID(), x2.ID(), f.ID()}

	stats, err := g.RunSchedule(SumProduct, order)
	require.NoError(t, err)

	// One message per direction per edge.
	assert.Equal(t, 2*g.Edges(), stats.Messages)
	assert.Equal(t, RunStats{Messages: 4, Forward: 2, Backward: 2}, stats)

	// Row sums of the table give x1's marginal, column sums x2's.
	m1, z1, err := x1.Marginal()
	require.NoError(t, err)
	assert.True(t, floats.EqualApprox([]float64{0.5, 0.5}, m1, tol))
	assert.InDelta(t, 1.0, z1, tol)

	m2, z2, err := x2.Marginal()
	require.NoError(t, err)
	assert.True(t, floats.EqualApprox([]float64{0.4, 0.6}, m2, tol))
	assert.InDelta(t, 1.0, z2, tol)
}

func TestEvidencePinsBeliefs(t *testing.T) {
	g, x1, x2, f := twoNodeChain(t)
	order := []NodeID{x1.ID(), x2.ID(), f.ID()}
	require.NoError(t, x2.SetObserved(0))

	_, err := g.RunSchedule(SumProduct, order)
	require.NoError(t, err)

	// With x2 pinned to state 0, x1's belief follows the first column of
	// the table up to the observation epsilon.
	w0 := 0.3 + 0.2*ObservedEpsilon
	w1 := 0.1 + 0.4*ObservedEpsilon
	m1, z1, err := x1.Marginal()
	require.NoError(t, err)
	assert.True(t, floats.EqualApprox([]float64{w0 / (w0 + w1), w1 / (w0 + w1)}, m1, tol))

	// The observed variable's own marginal stays on its evidence.
	m2, z2, err := x2.Marginal()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, m2[0], 1-1e-5)

	// Both variables see the same total mass.
	assert.InDelta(t, z1, z2, tol)

	// And the exhaustive reference agrees with message passing.
	e1, ze, err := g.ExhaustiveMarginal(x1)
	require.NoError(t, err)
	assert.True(t, floats.EqualApprox(e1, m1, 1e-9))
	assert.InDelta(t, ze, z1, 1e-9)
}

func TestMaxSumTwoNodeChain(t *testing.T) {
	g, x1, x2, f := twoNodeChain(t)
	order := []NodeID{x1.ID(), x2.ID(), f.ID()}

	// 1. Latent: the heaviest cell of the table is (1,1).
	_, err := g.RunSchedule(MaxSum, order)
	require.NoError(t, err)

	b1, err := x1.BestValue()
	require.NoError(t, err)
	b2, err := x2.BestValue()
	require.NoError(t, err)
	assert.Equal(t, 1, b1)
	assert.Equal(t, 1, b2)

	want, _, err := g.ExhaustiveMAP()
	require.NoError(t, err)
	assert.Equal(t, want["x1"], b1)
	assert.Equal(t, want["x2"], b2)

	// 2. Observing x2 drags the best joint assignment to column 0.
	g.Reset()
	require.NoError(t, x2.SetObserved(0))
	_, err = g.RunSchedule(MaxSum, order)
	require.NoError(t, err)

	b1, err = x1.BestValue()
	require.NoError(t, err)
	assert.Equal(t, 0, b1)

	want, _, err = g.ExhaustiveMAP()
	require.NoError(t, err)
	assert.Equal(t, 0, want["x1"])
	assert.Equal(t, 0, want["x2"])
}

func TestPriorChainMatchesHandComputation(t *testing.T) {
	// x1 carries a uniform prior, f12 a non-symmetric transition. The
	// joint weights are 0.45, 0.05, 0.10 and 0.40, so x2's marginal is
	// [0.55, 0.45] and the heaviest path ends in state 0 on both sides.
	g := NewGraph()
	x1, _ := g.AddVariable("x1", 2)
	x2, _ := g.AddVariable("x2", 2)
	prior := tensor.Must(tensor.FromSlice([]float64{0.5, 0.5}, 2))
	f1, err := g.AddFactor("f1", prior, x1)
	require.NoError(t, err)
	trans := tensor.Must(tensor.FromSlice([]float64{
		0.9, 0.1,
		0.2, 0.8,
	}, 2, 2))
	f12, err := g.AddFactor("f12", trans, x1, x2)
	require.NoError(t, err)

	order := []NodeID{f1.ID(), x2.ID(), x1.ID(), f12.ID()}
	stats, err := g.RunSchedule(SumProduct, order)
	require.NoError(t, err)
	assert.Equal(t, 2*g.Edges(), stats.Messages)

	m2, z2, err := x2.Marginal()
	require.NoError(t, err)
	assert.True(t, floats.EqualApprox([]float64{0.55, 0.45}, m2, tol))
	assert.InDelta(t, 1.0, z2, tol)

	_, err = g.RunSchedule(MaxSum, order)
	require.NoError(t, err)
	b1, err := x1.BestValue()
	require.NoError(t, err)
	b2, err := x2.BestValue()
	require.NoError(t, err)
	assert.Equal(t, 0, b1)
	assert.Equal(t, 0, b2)
}

func TestRunRecordsLeafDebtWithoutActingOnIt(t *testing.T) {
	g, x1, x2, f := twoNodeChain(t)

	_, err := g.RunSchedule(SumProduct, []NodeID{x1.ID(), x2.ID(), f.ID()})
	require.NoError(t, err)

	// The leaf fix-up re-marks each leaf after its forward send, and the
	// backward sweep never consults the set, so the debt note survives a
	// completed run. The factor, having sent both directions, owes
	// nothing.
	assert.Equal(t, []NodeID{f.ID()}, x1.Pending())
	assert.Equal(t, []NodeID{f.ID()}, x2.Pending())
	assert.Empty(t, f.Pending())

	// Beliefs are exact all the same.
	m1, _, err := x1.Marginal()
	require.NoError(t, err)
	assert.True(t, floats.EqualApprox([]float64{0.5, 0.5}, m1, tol))
}

func TestRepeatedRunsAreIdenticalAfterReset(t *testing.T) {
	g, x1, x2, f := twoNodeChain(t)
	order := []NodeID{x1.ID(), x2.ID(), f.ID()}

	_, err := g.RunSchedule(SumProduct, order)
	require.NoError(t, err)
	first, _, err := x1.Marginal()
	require.NoError(t, err)

	g.Reset()
	_, err = g.RunSchedule(SumProduct, order)
	require.NoError(t, err)
	second, _, err := x1.Marginal()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
