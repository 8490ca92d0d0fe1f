// Package factorgraph provides tree-structured factor graphs and the
// message-passing machinery that runs exact inference over them.
//
// This file implements exhaustive inference by enumerating every joint
// assignment. It is exponential in the number of variables and exists as the
// reference that message-passing results are checked against on small
// graphs, the same role a linear scan plays next to a search index.
package factorgraph

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// forEachAssignment invokes fn once per joint assignment of the graph's
// variables, odometer order with the last variable fastest, together with
// the assignment's unnormalized weight: the product of every factor table
// entry it selects and every variable's observed-state entry.
func (g *Graph) forEachAssignment(fn func(assign []int, weight float64)) error {
	vars := g.Variables()
	if len(vars) == 0 {
		return fmt.Errorf("graph has no variables")
	}
	varPos := make(map[NodeID]int, len(vars))
	for i, v := range vars {
		varPos[v.id] = i
	}

	factors := g.Factors()
	factorVars := make([][]int, len(factors))
	maxDegree := 0
	for i, f := range factors {
		nbs := f.Neighbors()
		positions := make([]int, len(nbs))
		for j, nb := range nbs {
			positions[j] = varPos[nb]
		}
		factorVars[i] = positions
		if len(nbs) > maxDegree {
			maxDegree = len(nbs)
		}
	}

	assign := make([]int, len(vars))
	idxBuf := make([]int, maxDegree)
	for {
		w := 1.0
		for i, f := range factors {
			idx := idxBuf[:len(factorVars[i])]
			for j, p := range factorVars[i] {
				idx[j] = assign[p]
			}
			w *= f.potential.At(idx...)
		}
		for i, v := range vars {
			w *= v.observedState[assign[i]]
		}
		fn(assign, w)

		k := len(assign) - 1
		for ; k >= 0; k-- {
			assign[k]++
			if assign[k] < vars[k].states {
				break
			}
			assign[k] = 0
		}
		if k < 0 {
			return nil
		}
	}
}

// ExhaustiveMarginal computes a variable's marginal by summing the weight of
// every joint assignment, and returns it normalized together with the total
// mass Z. Observations enter through the observed-state vectors, so the
// result matches what a sum-product run reports. The graph must be quiescent
// while this executes.
func (g *Graph) ExhaustiveMarginal(v *Variable) (Message, float64, error) {
	if v == nil || int(v.id) >= g.Len() {
		return nil, 0, fmt.Errorf("variable does not belong to this graph")
	}
	if n, _ := g.Node(v.id); n != Node(v) {
		return nil, 0, fmt.Errorf("variable does not belong to this graph")
	}

	pos := -1
	for i, gv := range g.Variables() {
		if gv == v {
			pos = i
			break
		}
	}

	acc := make(Message, v.states)
	err := g.forEachAssignment(func(assign []int, weight float64) {
		acc[assign[pos]] += weight
	})
	if err != nil {
		return nil, 0, err
	}

	z := floats.Sum(acc)
	if z == 0 {
		return nil, 0, fmt.Errorf("exhaustive marginal of variable '%s': %w", v.name, ErrDegenerateZ)
	}
	floats.Scale(1/z, acc)
	return acc, z, nil
}

// ExhaustiveMAP returns the joint assignment with the highest unnormalized
// weight, keyed by variable name, together with that weight. Among equally
// weighted assignments the first in odometer order wins. The graph must be
// quiescent while this executes.
func (g *Graph) ExhaustiveMAP() (map[string]int, float64, error) {
	vars := g.Variables()

	best := make([]int, len(vars))
	bestWeight := -1.0
	err := g.forEachAssignment(func(assign []int, weight float64) {
		if weight > bestWeight {
			copy(best, assign)
			bestWeight = weight
		}
	})
	if err != nil {
		return nil, 0, err
	}

	out := make(map[string]int, len(vars))
	for i, v := range vars {
		out[v.name] = best[i]
	}
	return out, bestWeight, nil
}
