// Package factorgraph provides tree-structured factor graphs and the
// message-passing machinery that runs exact inference over them.
//
// This file defines the Graph type: the node arena, the ordered name
// registry, edge wiring with construction-time shape validation, and message
// delivery between nodes.
package factorgraph

import (
	"fmt"
	"sync"

	"github.com/chielk/ml2-lab/pkg/factorgraph/tensor"
	"github.com/tidwall/btree"
)

// nameEntry associates a registered node name with its arena ID inside the
// name index.
type nameEntry struct {
	name string
	id   NodeID
}

// nameEntryLess orders name index entries lexicographically by name. Names
// are unique, so no tie-breaker is needed.
func nameEntryLess(a, b nameEntry) bool {
	return a.name < b.name
}

// Graph is a bipartite factor graph: variables on one side, factors on the
// other, every edge between a factor and one of its variables. Nodes live in
// an arena indexed by NodeID and reference each other only through IDs.
//
// Construction is not safe for concurrent use; a fully built graph can run
// schedules and read beliefs concurrently.
type Graph struct {
	mu    sync.RWMutex
	nodes []Node
	names *btree.BTreeG[nameEntry]
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		names: btree.NewBTreeG[nameEntry](nameEntryLess),
	}
}

// AddVariable creates a variable node with the given number of states and
// registers it under name. Names are unique across both node kinds.
func (g *Graph) AddVariable(name string, states int) (*Variable, error) {
	if name == "" {
		return nil, fmt.Errorf("variable name must not be empty")
	}
	if states < 1 {
		return nil, fmt.Errorf("variable '%s' needs at least one state, got %d", name, states)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.names.Get(nameEntry{name: name}); exists {
		return nil, fmt.Errorf("node '%s' already exists", name)
	}

	v := newVariable(NodeID(len(g.nodes)), name, states)
	g.nodes = append(g.nodes, v)
	g.names.Set(nameEntry{name: name, id: v.id})
	return v, nil
}

// AddFactor creates a factor node holding a copy of potential, registers it
// under name, and wires one edge per listed variable. Axis i of the
// potential is bound to vars[i], so the table's rank must equal the number
// of variables and each axis length must equal the matching variable's state
// count.
func (g *Graph) AddFactor(name string, potential *tensor.Dense, vars ...*Variable) (*Factor, error) {
	if name == "" {
		return nil, fmt.Errorf("factor name must not be empty")
	}
	if potential == nil {
		return nil, fmt.Errorf("factor '%s' needs a potential table", name)
	}
	if len(vars) == 0 {
		return nil, fmt.Errorf("factor '%s' needs at least one variable", name)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.names.Get(nameEntry{name: name}); exists {
		return nil, fmt.Errorf("node '%s' already exists", name)
	}
	if potential.Rank() != len(vars) {
		return nil, fmt.Errorf("factor '%s': potential has rank %d for %d variables", name, potential.Rank(), len(vars))
	}

	seen := make(map[NodeID]struct{}, len(vars))
	for axis, v := range vars {
		if v == nil {
			return nil, fmt.Errorf("factor '%s': variable for axis %d is nil", name, axis)
		}
		if int(v.id) >= len(g.nodes) || g.nodes[v.id] != Node(v) {
			return nil, fmt.Errorf("factor '%s': variable '%s' does not belong to this graph", name, v.name)
		}
		if _, dup := seen[v.id]; dup {
			return nil, fmt.Errorf("factor '%s': variable '%s' is listed twice", name, v.name)
		}
		seen[v.id] = struct{}{}
		if potential.AxisLen(axis) != v.states {
			return nil, fmt.Errorf("factor '%s': axis %d has length %d, variable '%s' has %d states",
				name, axis, potential.AxisLen(axis), v.name, v.states)
		}
	}

	f := newFactor(NodeID(len(g.nodes)), name, potential.Clone())
	g.nodes = append(g.nodes, f)
	g.names.Set(nameEntry{name: name, id: f.id})

	for _, v := range vars {
		f.attach(v.id)
		v.attach(f.id)
	}
	return f, nil
}

// Node returns the node with the given ID.
func (g *Graph) Node(id NodeID) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if int(id) >= len(g.nodes) {
		return nil, false
	}
	return g.nodes[id], true
}

// NodeByName returns the node registered under name.
func (g *Graph) NodeByName(name string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entry, ok := g.names.Get(nameEntry{name: name})
	if !ok {
		return nil, false
	}
	return g.nodes[entry.id], true
}

// VariableByName returns the variable registered under name; it reports
// false for unknown names and for factor names.
func (g *Graph) VariableByName(name string) (*Variable, bool) {
	n, ok := g.NodeByName(name)
	if !ok {
		return nil, false
	}
	v, ok := n.(*Variable)
	return v, ok
}

// FactorByName returns the factor registered under name; it reports false
// for unknown names and for variable names.
func (g *Graph) FactorByName(name string) (*Factor, bool) {
	n, ok := g.NodeByName(name)
	if !ok {
		return nil, false
	}
	f, ok := n.(*Factor)
	return f, ok
}

// Len returns the number of nodes of both kinds.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Edges returns the number of undirected edges.
func (g *Graph) Edges() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	total := 0
	for _, n := range g.nodes {
		if f, ok := n.(*Factor); ok {
			total += f.Degree()
		}
	}
	return total
}

// Names returns every registered node name in ascending order.
func (g *Graph) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, g.names.Len())
	g.names.Scan(func(entry nameEntry) bool {
		out = append(out, entry.name)
		return true
	})
	return out
}

// Variables returns every variable node in insertion order.
func (g *Graph) Variables() []*Variable {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Variable, 0, len(g.nodes))
	for _, n := range g.nodes {
		if v, ok := n.(*Variable); ok {
			out = append(out, v)
		}
	}
	return out
}

// Factors returns every factor node in insertion order.
func (g *Graph) Factors() []*Factor {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Factor, 0, len(g.nodes))
	for _, n := range g.nodes {
		if f, ok := n.(*Factor); ok {
			out = append(out, f)
		}
	}
	return out
}

// Reset returns every node to its initial state, dropping all stored
// messages and observations while keeping the topology.
func (g *Graph) Reset() {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, n := range g.nodes {
		n.Reset()
	}
}

// deliver routes a computed message from one node to another by invoking the
// receiver's Receive.
func (g *Graph) deliver(from, to NodeID, msg Message) error {
	g.mu.RLock()
	if int(to) >= len(g.nodes) {
		g.mu.RUnlock()
		return fmt.Errorf("message to unknown node %d", to)
	}
	target := g.nodes[to]
	g.mu.RUnlock()

	return target.Receive(from, msg)
}

// nameOf resolves an ID to its registered name for error messages and logs,
// falling back to the numeric ID for unknown nodes.
func (g *Graph) nameOf(id NodeID) string {
	if n, ok := g.Node(id); ok {
		return n.Name()
	}
	return fmt.Sprintf("#%d", id)
}
