// Package netdef loads declarative network definitions for ml2-lab.
//
// This file defines the Go structs that correspond to the YAML description
// of a discrete network: its variables, their state labels, and the factor
// tables that connect them. These structs allow for type-safe parsing of a
// network file and its translation into a runnable factor graph.
package netdef

import (
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chielk/ml2-lab/pkg/factorgraph"
	"github.com/chielk/ml2-lab/pkg/factorgraph/tensor"
)

// Definition represents the top-level structure of a network file.
// It declares the variables, the factor tables over them, and optionally
// baked-in evidence and a hand-written message-passing order.
type Definition struct {
	Name      string            `yaml:"name"`
	Variables []VariableDef     `yaml:"variables"`
	Factors   []FactorDef       `yaml:"factors"`
	Evidence  map[string]string `yaml:"evidence"`
	Order     []string          `yaml:"order"`
}

// VariableDef declares one discrete variable and the labels of its states.
// State indices follow the order of the labels.
type VariableDef struct {
	Name   string   `yaml:"name"`
	States []string `yaml:"states"`
}

// FactorDef declares one factor table over the listed variables.
//
// Values holds the table flattened in row-major order, one axis per listed
// variable, so the last variable varies fastest. A factor over two binary
// variables a and b lists its values as [a0b0, a0b1, a1b0, a1b1].
type FactorDef struct {
	Name      string    `yaml:"name"`
	Variables []string  `yaml:"variables"`
	Values    []float64 `yaml:"values"`
}

// Load parses a network definition from r.
// It uses Strict Mode (KnownFields) to prevent silent errors due to typos.
func Load(r io.Reader) (*Definition, error) {
	var def Definition
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(&def); err != nil {
		return nil, fmt.Errorf("YAML syntax error in network definition: %w", err)
	}
	return &def, nil
}

// LoadFile reads and parses the network definition at the given path.
func LoadFile(path string) (*Definition, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not read network file '%s': %w", path, err)
	}
	defer file.Close()

	def, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("in '%s': %w", path, err)
	}
	return def, nil
}

// Validate checks the definition for internal consistency: unique names,
// known variable references, and factor tables of the right size.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("network has no name")
	}
	if len(d.Variables) == 0 {
		return fmt.Errorf("network '%s' declares no variables", d.Name)
	}

	names := make(map[string]bool, len(d.Variables)+len(d.Factors))
	for _, vd := range d.Variables {
		if vd.Name == "" {
			return fmt.Errorf("network '%s' declares a variable without a name", d.Name)
		}
		if names[vd.Name] {
			return fmt.Errorf("name '%s' is declared twice", vd.Name)
		}
		names[vd.Name] = true

		if len(vd.States) == 0 {
			return fmt.Errorf("variable '%s' declares no states", vd.Name)
		}
		labels := make(map[string]bool, len(vd.States))
		for _, s := range vd.States {
			if labels[s] {
				return fmt.Errorf("variable '%s' repeats state '%s'", vd.Name, s)
			}
			labels[s] = true
		}
	}

	for _, fd := range d.Factors {
		if fd.Name == "" {
			return fmt.Errorf("network '%s' declares a factor without a name", d.Name)
		}
		if names[fd.Name] {
			return fmt.Errorf("name '%s' is declared twice", fd.Name)
		}
		names[fd.Name] = true

		if len(fd.Variables) == 0 {
			return fmt.Errorf("factor '%s' lists no variables", fd.Name)
		}
		want := 1
		seen := make(map[string]bool, len(fd.Variables))
		for _, vn := range fd.Variables {
			vd, ok := d.variableDef(vn)
			if !ok {
				return fmt.Errorf("factor '%s' references unknown variable '%s'", fd.Name, vn)
			}
			if seen[vn] {
				return fmt.Errorf("factor '%s' lists variable '%s' twice", fd.Name, vn)
			}
			seen[vn] = true
			want *= len(vd.States)
		}
		if len(fd.Values) != want {
			return fmt.Errorf("factor '%s' has %d values, its table needs %d", fd.Name, len(fd.Values), want)
		}
		for _, x := range fd.Values {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return fmt.Errorf("factor '%s' has a non-finite entry", fd.Name)
			}
			if x < 0 {
				return fmt.Errorf("factor '%s' has a negative entry", fd.Name)
			}
		}
	}

	for vn, label := range d.Evidence {
		if _, err := d.StateIndex(vn, label); err != nil {
			return fmt.Errorf("evidence: %w", err)
		}
	}

	if len(d.Order) > 0 {
		if len(d.Order) != len(d.Variables)+len(d.Factors) {
			return fmt.Errorf("order lists %d nodes, network '%s' has %d",
				len(d.Order), d.Name, len(d.Variables)+len(d.Factors))
		}
		seen := make(map[string]bool, len(d.Order))
		for _, n := range d.Order {
			if !names[n] {
				return fmt.Errorf("order lists unknown node '%s'", n)
			}
			if seen[n] {
				return fmt.Errorf("order lists '%s' twice", n)
			}
			seen[n] = true
		}
	}
	return nil
}

// Build validates the definition, assembles it into a factor graph, and
// pins the variables listed under evidence.
func (d *Definition) Build() (*factorgraph.Graph, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	g := factorgraph.NewGraph()
	vars := make(map[string]*factorgraph.Variable, len(d.Variables))
	for _, vd := range d.Variables {
		v, err := g.AddVariable(vd.Name, len(vd.States))
		if err != nil {
			return nil, err
		}
		vars[vd.Name] = v
	}

	for _, fd := range d.Factors {
		shape := make([]int, len(fd.Variables))
		nbs := make([]*factorgraph.Variable, len(fd.Variables))
		for i, vn := range fd.Variables {
			nbs[i] = vars[vn]
			shape[i] = nbs[i].States()
		}
		pot, err := tensor.FromSlice(fd.Values, shape...)
		if err != nil {
			return nil, fmt.Errorf("factor '%s': %w", fd.Name, err)
		}
		if _, err := g.AddFactor(fd.Name, pot, nbs...); err != nil {
			return nil, err
		}
	}

	for vn, label := range d.Evidence {
		state, err := d.StateIndex(vn, label)
		if err != nil {
			return nil, fmt.Errorf("evidence: %w", err)
		}
		if err := vars[vn].SetObserved(state); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ResolveOrder maps the definition's hand-written order onto the node IDs of
// a graph built from it. It returns nil when the definition carries no order
// list; running the graph then needs an order from somewhere else.
func (d *Definition) ResolveOrder(g *factorgraph.Graph) ([]factorgraph.NodeID, error) {
	if len(d.Order) == 0 {
		return nil, nil
	}
	order := make([]factorgraph.NodeID, len(d.Order))
	for i, name := range d.Order {
		n, ok := g.NodeByName(name)
		if !ok {
			return nil, fmt.Errorf("order lists unknown node '%s'", name)
		}
		order[i] = n.ID()
	}
	return order, nil
}

// StateIndex translates a state label of the named variable into its index.
func (d *Definition) StateIndex(variable, label string) (int, error) {
	vd, ok := d.variableDef(variable)
	if !ok {
		return 0, fmt.Errorf("unknown variable '%s'", variable)
	}
	for i, s := range vd.States {
		if s == label {
			return i, nil
		}
	}
	return 0, fmt.Errorf("variable '%s' has no state '%s'", variable, label)
}

// StateLabel translates a state index of the named variable into its label.
func (d *Definition) StateLabel(variable string, index int) (string, error) {
	vd, ok := d.variableDef(variable)
	if !ok {
		return "", fmt.Errorf("unknown variable '%s'", variable)
	}
	if index < 0 || index >= len(vd.States) {
		return "", fmt.Errorf("state %d out of range for variable '%s' with %d states",
			index, variable, len(vd.States))
	}
	return vd.States[index], nil
}

func (d *Definition) variableDef(name string) (*VariableDef, bool) {
	for i := range d.Variables {
		if d.Variables[i].Name == name {
			return &d.Variables[i], true
		}
	}
	return nil, false
}
