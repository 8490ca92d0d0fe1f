// Package factorgraph provides tree-structured factor graphs and the
// message-passing machinery that runs exact inference over them.
//
// This file defines the pieces shared by every node kind: identifiers,
// messages, the Node contract, and the embedded base state (neighbor list,
// inbox, pending set) that variables and factors build on.
package factorgraph

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// NodeID identifies a node within its graph. IDs are dense indexes into the
// graph's node arena, assigned in insertion order starting at zero. Nodes
// refer to each other only through IDs, never through pointers.
type NodeID uint32

// Message is the vector of values exchanged along one edge of the graph. Its
// length always equals the state count of the variable side of that edge.
// Sum-product messages hold unnormalized probabilities; max-sum messages hold
// log-domain scores.
type Message []float64

// Clone returns an independent copy of the message.
func (m Message) Clone() Message {
	out := make(Message, len(m))
	copy(out, m)
	return out
}

// ErrUnimplemented is returned when a send operation is attempted on a node
// that provides no specialization for it.
var ErrUnimplemented = errors.New("capability not implemented")

// ErrDegenerateZ is returned when a marginal has zero total mass and can
// therefore not be normalized.
var ErrDegenerateZ = errors.New("marginal has zero total mass")

// Node is the contract every node kind satisfies. A node knows its identity,
// its neighbors, and how to receive messages; the send operations compute a
// fresh outgoing message from the inbox and deliver it through the graph.
type Node interface {
	ID() NodeID
	Name() string
	Neighbors() []NodeID

	// Receive stores msg in the inbox slot for the sending edge,
	// overwriting any previous message from the same sender, and marks
	// every other neighbor pending.
	Receive(from NodeID, msg Message) error

	// SendSumProduct computes the sum-product message for the edge toward
	// to and delivers it. The receiver must be a neighbor. A successful
	// send clears the receiver from this node's pending set.
	SendSumProduct(g *Graph, to NodeID) error

	// SendMaxSum is the log-domain counterpart of SendSumProduct.
	SendMaxSum(g *Graph, to NodeID) error

	// Pending reports the neighbors this node owes a message, in ascending
	// ID order. The synchronous scheduler maintains this set but does not
	// consult it; it exists for introspection and for asynchronous
	// schedules layered on top.
	Pending() []NodeID

	// Reset clears the inbox and pending set and restores the node's
	// default state, leaving the graph topology untouched.
	Reset()
}

// node carries the state common to variables and factors. It is embedded in
// both; on its own it satisfies the receive side of the contract but rejects
// sends with ErrUnimplemented.
type node struct {
	id        NodeID
	name      string
	neighbors []NodeID

	mu      sync.Mutex
	inbox   map[NodeID]Message
	pending map[NodeID]struct{}
}

func newNode(id NodeID, name string) node {
	return node{
		id:      id,
		name:    name,
		inbox:   make(map[NodeID]Message),
		pending: make(map[NodeID]struct{}),
	}
}

// ID returns the node's arena index.
func (n *node) ID() NodeID { return n.id }

// Name returns the unique name the node was registered under.
func (n *node) Name() string { return n.name }

// Neighbors returns the node's neighbor IDs in attachment order. For factors
// this order is significant: neighbor i corresponds to axis i of the
// potential. The returned slice is a copy.
func (n *node) Neighbors() []NodeID {
	out := make([]NodeID, len(n.neighbors))
	copy(out, n.neighbors)
	return out
}

// Degree returns the number of neighbors.
func (n *node) Degree() int { return len(n.neighbors) }

// Receive stores msg in the inbox keyed by sender and marks every neighbor
// except the sender pending. A repeated message from the same sender
// overwrites the previous one.
func (n *node) Receive(from NodeID, msg Message) error {
	if !n.isNeighbor(from) {
		return fmt.Errorf("node '%s' received a message from non-neighbor %d", n.name, from)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.inbox[from] = msg
	for _, id := range n.neighbors {
		if id != from {
			n.pending[id] = struct{}{}
		}
	}
	return nil
}

// SendSumProduct on the base node always fails; only specialized node kinds
// know how to compute messages.
func (n *node) SendSumProduct(g *Graph, to NodeID) error {
	return fmt.Errorf("node '%s' cannot send sum-product messages: %w", n.name, ErrUnimplemented)
}

// SendMaxSum on the base node always fails; only specialized node kinds know
// how to compute messages.
func (n *node) SendMaxSum(g *Graph, to NodeID) error {
	return fmt.Errorf("node '%s' cannot send max-sum messages: %w", n.name, ErrUnimplemented)
}

// Pending returns the IDs of neighbors this node owes a message, in
// ascending order.
func (n *node) Pending() []NodeID {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]NodeID, 0, len(n.pending))
	for id := range n.pending {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset clears the inbox and pending set. Node kinds that carry extra state
// override this to restore their defaults as well.
func (n *node) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.inbox = make(map[NodeID]Message)
	n.pending = make(map[NodeID]struct{})
}

// markPending records that the node owes a message to the given neighbor.
// The scheduler uses this after its forward sweep to flag leaves.
func (n *node) markPending(to NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending[to] = struct{}{}
}

// clearPending records that the node no longer owes a message to the given
// neighbor. Every successful send clears its receiver.
func (n *node) clearPending(to NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.pending, to)
}

// inboxMessage returns the stored message from a given neighbor, if any.
func (n *node) inboxMessage(from NodeID) (Message, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	msg, ok := n.inbox[from]
	return msg, ok
}

// inboxSize returns the number of distinct senders present in the inbox.
func (n *node) inboxSize() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.inbox)
}

func (n *node) isNeighbor(id NodeID) bool {
	for _, nb := range n.neighbors {
		if nb == id {
			return true
		}
	}
	return false
}

// attach appends a neighbor to the node's adjacency list. The graph calls
// this once per edge end while wiring factors.
func (n *node) attach(id NodeID) {
	n.neighbors = append(n.neighbors, id)
}
