// Package factorgraph provides tree-structured factor graphs and the
// message-passing machinery that runs exact inference over them.
//
// This file defines the Factor node kind: a potential table over one or more
// variables, with axis i of the table bound to neighbor i, and the two
// message computations built on the tensor kernels.
package factorgraph

import (
	"fmt"

	"github.com/chielk/ml2-lab/pkg/factorgraph/tensor"
)

// Factor is a potential table attached to one or more variables. The table's
// axis order follows the neighbor order fixed at construction and never
// changes afterwards.
type Factor struct {
	node

	potential *tensor.Dense
}

func newFactor(id NodeID, name string, potential *tensor.Dense) *Factor {
	return &Factor{
		node:      newNode(id, name),
		potential: potential,
	}
}

// Potential returns a copy of the factor's table.
func (f *Factor) Potential() *tensor.Dense {
	return f.potential.Clone()
}

// SendSumProduct computes and delivers the sum-product message toward to:
// the potential contracted with the inbox messages from every other
// neighbor, along their axes. A leaf factor has nothing to contract and
// sends its table as a vector.
func (f *Factor) SendSumProduct(g *Graph, to NodeID) error {
	// The contraction keeps exactly the target's axis, so the axis index
	// itself is not needed here.
	_, others, msgs, err := f.gather(to)
	if err != nil {
		return err
	}

	var msg Message
	if len(others) == 0 {
		msg = f.potential.Values()
	} else {
		outer, err := tensor.Outer(msgs...)
		if err != nil {
			return fmt.Errorf("factor '%s' sending to %d: %w", f.name, to, err)
		}
		outerAxes := make([]int, len(others))
		for i := range outerAxes {
			outerAxes[i] = i
		}
		out, err := tensor.Contract(outer, f.potential, outerAxes, others)
		if err != nil {
			return fmt.Errorf("factor '%s' sending to %d: %w", f.name, to, err)
		}
		msg = out.Values()
	}
	if err := g.deliver(f.id, to, msg); err != nil {
		return err
	}
	f.clearPending(to)
	return nil
}

// SendMaxSum computes and delivers the max-sum message toward to: the
// log-domain potential plus the inbox messages from every other neighbor,
// broadcast along their axes, max-reduced onto the target's axis. A leaf
// factor sends the log of its table.
func (f *Factor) SendMaxSum(g *Graph, to NodeID) error {
	targetAxis, others, msgs, err := f.gather(to)
	if err != nil {
		return err
	}

	work := f.potential.Log()
	for i, axis := range others {
		if err := work.BroadcastAdd(axis, msgs[i]); err != nil {
			return fmt.Errorf("factor '%s' sending to %d: %w", f.name, to, err)
		}
	}
	msg, err := work.MaxExcept(targetAxis)
	if err != nil {
		return fmt.Errorf("factor '%s' sending to %d: %w", f.name, to, err)
	}
	if err := g.deliver(f.id, to, Message(msg)); err != nil {
		return err
	}
	f.clearPending(to)
	return nil
}

// gather resolves the target's axis and collects the inbox messages from
// every other neighbor in axis order, validating that each has arrived and
// matches its axis length.
func (f *Factor) gather(to NodeID) (targetAxis int, others []int, msgs [][]float64, err error) {
	targetAxis = -1
	for axis, nb := range f.neighbors {
		if nb == to {
			targetAxis = axis
			break
		}
	}
	if targetAxis == -1 {
		return 0, nil, nil, fmt.Errorf("node %d is not a neighbor of factor '%s'", to, f.name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for axis, nb := range f.neighbors {
		if axis == targetAxis {
			continue
		}
		in, ok := f.inbox[nb]
		if !ok {
			return 0, nil, nil, fmt.Errorf("factor '%s' cannot send to %d: missing message from neighbor %d", f.name, to, nb)
		}
		if len(in) != f.potential.AxisLen(axis) {
			return 0, nil, nil, fmt.Errorf("factor '%s' holds a message of length %d from neighbor %d, axis %d wants %d",
				f.name, len(in), nb, axis, f.potential.AxisLen(axis))
		}
		others = append(others, axis)
		msgs = append(msgs, in)
	}
	return targetAxis, others, msgs, nil
}
