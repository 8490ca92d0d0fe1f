// Package factorgraph provides tree-structured factor graphs and the
// message-passing machinery that runs exact inference over them.
//
// This file defines the Variable node kind: a discrete random variable with a
// fixed number of states, optionally pinned to an observed state, together
// with its message computations and belief read-out.
package factorgraph

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ObservedEpsilon is the residual mass an observed variable keeps on its
// unobserved states. Keeping it above zero avoids zero-probability cells in
// downstream products while leaving the observed state dominant.
const ObservedEpsilon = 1e-6

// Variable is a discrete random variable node. It starts latent; SetObserved
// pins it to a single state until SetLatent or Reset.
type Variable struct {
	node

	states        int
	observed      bool
	observedIndex int
	observedState Message
}

func newVariable(id NodeID, name string, states int) *Variable {
	v := &Variable{
		node:   newNode(id, name),
		states: states,
	}
	v.SetLatent()
	return v
}

// States returns the number of states the variable ranges over.
func (v *Variable) States() int { return v.states }

// SetObserved pins the variable to the given state. Its observed-state
// vector becomes 1.0 at the state and ObservedEpsilon elsewhere, and every
// subsequent send transmits that vector in both modes, regardless of the
// inbox.
func (v *Variable) SetObserved(state int) error {
	if state < 0 || state >= v.states {
		return fmt.Errorf("state %d out of range for variable '%s' with %d states", state, v.name, v.states)
	}

	obs := make(Message, v.states)
	for i := range obs {
		obs[i] = ObservedEpsilon
	}
	obs[state] = 1.0

	v.mu.Lock()
	defer v.mu.Unlock()
	v.observed = true
	v.observedIndex = state
	v.observedState = obs
	return nil
}

// SetLatent clears any observation. The observed-state vector becomes all
// ones, the multiplicative identity, so it no longer influences products.
func (v *Variable) SetLatent() {
	obs := make(Message, v.states)
	for i := range obs {
		obs[i] = 1.0
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.observed = false
	v.observedIndex = 0
	v.observedState = obs
}

// Observed returns the pinned state index and whether the variable is
// currently observed.
func (v *Variable) Observed() (int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.observedIndex, v.observed
}

// Reset clears the inbox and pending set and returns the variable to latent.
func (v *Variable) Reset() {
	v.node.Reset()
	v.SetLatent()
}

// SendSumProduct computes and delivers the sum-product message toward to:
// the elementwise product of the inbox messages from every other neighbor.
// A leaf variable has no other neighbors and sends all ones. An observed
// variable sends its observed-state vector instead, whatever the inbox
// holds.
func (v *Variable) SendSumProduct(g *Graph, to NodeID) error {
	msg, err := v.outgoing(to, true)
	if err != nil {
		return err
	}
	if err := g.deliver(v.id, to, msg); err != nil {
		return err
	}
	v.clearPending(to)
	return nil
}

// SendMaxSum computes and delivers the max-sum message toward to: the
// elementwise sum of the inbox messages from every other neighbor, in log
// domain. A leaf variable sends all zeros. An observed variable sends its
// observed-state vector as is, the same vector it sends under sum-product.
func (v *Variable) SendMaxSum(g *Graph, to NodeID) error {
	msg, err := v.outgoing(to, false)
	if err != nil {
		return err
	}
	if err := g.deliver(v.id, to, msg); err != nil {
		return err
	}
	v.clearPending(to)
	return nil
}

// outgoing builds the message toward to for either mode. The two modes share
// everything but the accumulator: product over an all-ones start for
// sum-product, sum over an all-zeros start for max-sum.
func (v *Variable) outgoing(to NodeID, sumProduct bool) (Message, error) {
	if !v.isNeighbor(to) {
		return nil, fmt.Errorf("node %d is not a neighbor of variable '%s'", to, v.name)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.observed {
		return v.observedState.Clone(), nil
	}

	msg := make(Message, v.states)
	if sumProduct {
		for i := range msg {
			msg[i] = 1.0
		}
	}
	for _, nb := range v.neighbors {
		if nb == to {
			continue
		}
		in, ok := v.inbox[nb]
		if !ok {
			return nil, fmt.Errorf("variable '%s' cannot send to %d: missing message from neighbor %d", v.name, to, nb)
		}
		if len(in) != v.states {
			return nil, fmt.Errorf("variable '%s' holds a message of length %d from neighbor %d, want %d", v.name, len(in), nb, v.states)
		}
		if sumProduct {
			floats.Mul(msg, in)
		} else {
			floats.Add(msg, in)
		}
	}
	return msg, nil
}

// Marginal returns the variable's normalized marginal distribution and the
// normalization constant Z. The unnormalized belief is the elementwise
// product of the messages from every neighbor and the observed-state vector,
// so an observed variable's marginal stays pinned to its evidence. Every
// neighbor must have sent a message first.
func (v *Variable) Marginal() (Message, float64, error) {
	belief, err := v.belief()
	if err != nil {
		return nil, 0, err
	}

	z := floats.Sum(belief)
	if z == 0 {
		return nil, 0, fmt.Errorf("marginal of variable '%s': %w", v.name, ErrDegenerateZ)
	}
	floats.Scale(1/z, belief)
	return belief, z, nil
}

// MarginalWithZ returns the variable's marginal normalized by a caller
// supplied constant instead of the belief's own mass. Passing the Z obtained
// from one variable's Marginal call reuses a single normalization across the
// graph.
func (v *Variable) MarginalWithZ(z float64) (Message, error) {
	if z == 0 {
		return nil, fmt.Errorf("marginal of variable '%s': %w", v.name, ErrDegenerateZ)
	}
	belief, err := v.belief()
	if err != nil {
		return nil, err
	}
	floats.Scale(1/z, belief)
	return belief, nil
}

// belief computes the unnormalized marginal.
func (v *Variable) belief() (Message, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	belief := v.observedState.Clone()
	for _, nb := range v.neighbors {
		in, ok := v.inbox[nb]
		if !ok {
			return nil, fmt.Errorf("marginal of variable '%s': missing message from neighbor %d", v.name, nb)
		}
		if len(in) != v.states {
			return nil, fmt.Errorf("marginal of variable '%s': message of length %d from neighbor %d, want %d", v.name, len(in), nb, v.states)
		}
		floats.Mul(belief, in)
	}
	return belief, nil
}

// BestValue returns the state with the highest max-sum score: the argmax of
// the elementwise sum of the messages from every neighbor. Ties resolve to
// the lowest state index. Every neighbor must have sent a message first, so
// it is meaningful only after a max-sum run.
func (v *Variable) BestValue() (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	score := make(Message, v.states)
	for _, nb := range v.neighbors {
		in, ok := v.inbox[nb]
		if !ok {
			return 0, fmt.Errorf("best value of variable '%s': missing message from neighbor %d", v.name, nb)
		}
		if len(in) != v.states {
			return 0, fmt.Errorf("best value of variable '%s': message of length %d from neighbor %d, want %d", v.name, len(in), nb, v.states)
		}
		floats.Add(score, in)
	}
	return floats.MaxIdx(score), nil
}
