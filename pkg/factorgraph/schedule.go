// Package factorgraph provides tree-structured factor graphs and the
// message-passing machinery that runs exact inference over them.
//
// This file implements the synchronous two-sweep scheduler. A schedule is a
// caller-supplied linearization of the nodes; the forward sweep walks it
// start to end with each node sending to its later neighbors, the backward
// sweep walks it end to start doing the same. On a tree this delivers
// exactly one message per direction per edge, after which every belief is
// exact.
package factorgraph

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Mode selects which message-passing algorithm a run uses.
type Mode string

const (
	// SumProduct computes exact marginal distributions.
	SumProduct Mode = "sum-product"
	// MaxSum computes the most probable joint assignment in log domain.
	MaxSum Mode = "max-sum"
)

// ParseMode converts a string to a Mode, accepting exactly the two known
// algorithm names.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case SumProduct:
		return SumProduct, nil
	case MaxSum:
		return MaxSum, nil
	default:
		return "", fmt.Errorf("unknown inference mode '%s' (want '%s' or '%s')", s, SumProduct, MaxSum)
	}
}

// RunStats reports what a completed run did.
type RunStats struct {
	// Messages is the total number of messages delivered. On a tree this
	// equals twice the edge count: one message per direction per edge.
	Messages int
	// Forward and Backward split the total by sweep.
	Forward  int
	Backward int
}

// RunSchedule runs one full two-sweep pass in the given mode, visiting nodes
// in the supplied order. The order must list every node of the graph exactly
// once and must be a valid linearization of the tree, meaning no node is
// followed by more than one of its neighbors; otherwise some node will be
// asked to send before its inputs arrived and the run fails. Deriving such
// an order from the topology is the caller's job. Beliefs are read
// afterwards with Marginal, MarginalWithZ and BestValue.
func (g *Graph) RunSchedule(mode Mode, order []NodeID) (RunStats, error) {
	return g.run(mode, order, 1)
}

// RunScheduleParallel behaves like RunSchedule but delivers each visited
// node's outgoing messages concurrently, at most workers at a time; zero or
// negative means one worker per CPU. Distinct receivers own distinct
// inboxes, so the result is identical to the sequential run.
func (g *Graph) RunScheduleParallel(mode Mode, order []NodeID, workers int) (RunStats, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return g.run(mode, order, workers)
}

func (g *Graph) run(mode Mode, order []NodeID, workers int) (RunStats, error) {
	var stats RunStats

	if _, err := ParseMode(string(mode)); err != nil {
		return stats, err
	}
	pos, err := g.validateOrder(order)
	if err != nil {
		return stats, err
	}

	send := func(n Node, to NodeID) error {
		if mode == SumProduct {
			return n.SendSumProduct(g, to)
		}
		return n.SendMaxSum(g, to)
	}

	// 1. Forward sweep: each node passes its evidence toward the nodes
	// that come later in the schedule.
	for idx, id := range order {
		n := g.nodes[id]
		targets := laterNeighbors(n, pos, idx)
		sent, err := g.fanOut(n, targets, send, workers)
		stats.Forward += sent
		stats.Messages += sent
		if err != nil {
			return stats, fmt.Errorf("forward sweep, '%s': %w", n.Name(), err)
		}
	}

	// 2. Leaf fix-up: every leaf owes its single neighbor a message for
	// the return direction. The two-sweep walk sends it regardless; the
	// pending set just records the debt.
	for _, id := range order {
		n := g.nodes[id]
		if nbs := n.Neighbors(); len(nbs) == 1 {
			if m, ok := n.(pendingMarker); ok {
				m.markPending(nbs[0])
			}
		}
	}

	// 3. Backward sweep: the same walk in reverse sends the remaining
	// direction of every edge.
	for idx := len(order) - 1; idx >= 0; idx-- {
		n := g.nodes[order[idx]]
		targets := earlierNeighbors(n, pos, idx)
		sent, err := g.fanOut(n, targets, send, workers)
		stats.Backward += sent
		stats.Messages += sent
		if err != nil {
			return stats, fmt.Errorf("backward sweep, '%s': %w", n.Name(), err)
		}
	}

	return stats, nil
}

// pendingMarker is satisfied by every node kind through the embedded base
// state.
type pendingMarker interface {
	markPending(NodeID)
}

// fanOut sends one node's messages to each listed target, sequentially or
// concurrently, and reports how many deliveries succeeded.
func (g *Graph) fanOut(n Node, targets []NodeID, send func(Node, NodeID) error, workers int) (int, error) {
	if len(targets) == 0 {
		return 0, nil
	}

	if workers > 1 && len(targets) > 1 {
		var eg errgroup.Group
		eg.SetLimit(workers)
		for _, to := range targets {
			to := to
			eg.Go(func() error {
				if err := send(n, to); err != nil {
					return fmt.Errorf("to '%s': %w", g.nameOf(to), err)
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return 0, err
		}
		return len(targets), nil
	}

	for i, to := range targets {
		if err := send(n, to); err != nil {
			return i, fmt.Errorf("to '%s': %w", g.nameOf(to), err)
		}
	}
	return len(targets), nil
}

// laterNeighbors returns n's neighbors that the schedule visits after
// position idx, in neighbor order.
func laterNeighbors(n Node, pos map[NodeID]int, idx int) []NodeID {
	var out []NodeID
	for _, nb := range n.Neighbors() {
		if pos[nb] > idx {
			out = append(out, nb)
		}
	}
	return out
}

// earlierNeighbors returns n's neighbors that the schedule visits before
// position idx, in neighbor order.
func earlierNeighbors(n Node, pos map[NodeID]int, idx int) []NodeID {
	var out []NodeID
	for _, nb := range n.Neighbors() {
		if pos[nb] < idx {
			out = append(out, nb)
		}
	}
	return out
}

// validateOrder checks that order lists every node of the graph exactly once
// and returns the position of each node within it.
func (g *Graph) validateOrder(order []NodeID) (map[NodeID]int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("schedule lists %d nodes, graph has %d", len(order), len(g.nodes))
	}
	pos := make(map[NodeID]int, len(order))
	for idx, id := range order {
		if int(id) >= len(g.nodes) {
			return nil, fmt.Errorf("schedule names unknown node %d", id)
		}
		if prev, dup := pos[id]; dup {
			return nil, fmt.Errorf("schedule lists node '%s' twice (positions %d and %d)", g.nodes[id].Name(), prev, idx)
		}
		pos[id] = idx
	}
	return pos, nil
}

