/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package graph defines the op-handle graph abstraction the execgraph
// analyses operate on.
//
// A Graph owns operator nodes (OpNode) and variable nodes (VarNode), keeps
// the program description it was built from, and carries a side-table of
// named attributes -- among them the two structural tables every
// builder-produced graph has: the per-device variable mapping (Vars) and the
// set of synchronization placeholders (DepVars).
//
// # Node ownership
//
// Every Node belongs to exactly one Graph at a time. The Graph's live-set is
// the single source of truth for ownership: AddNode, RemoveNode and Move are
// the only ways in or out, and they guarantee a node is never reachable from
// two graphs, and never detached without being re-attached. Passes that
// redistribute nodes (see the multidevice package) rely on this to stay
// side-effect-free on their abort paths.
//
// The package is not safe for concurrent use; callers get exclusive access
// to a Graph for the duration of whatever pass they run on it.
package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/execgraph/program"
	"github.com/gomlx/execgraph/types"
	"github.com/pkg/errors"
)

// Attribute keys of the standard side-tables.
const (
	// VarsAttrKey holds a Vars value: the per-device variable name to
	// handle-list mapping. Set on every graph created by New.
	VarsAttrKey = "vars"

	// DepVarsAttrKey holds a DepVars value: the dummy synchronization
	// variables. Set on every graph created by New.
	DepVarsAttrKey = "dep_vars"

	// ProgramsAttrKey optionally holds a Programs value: auxiliary program
	// descriptions attached by earlier passes.
	ProgramsAttrKey = "programs"

	// FusedVarsAttrKey optionally holds a FusedVars value: bookkeeping of
	// variables fused into shared allocations by earlier passes.
	FusedVarsAttrKey = "fused_vars"
)

// Vars maps, per device, a variable name to its handles (one per version of
// the variable).
type Vars []map[string][]*VarNode

// DepVars is the set of dummy synchronization variables of a graph.
type DepVars = types.Set[*VarNode]

// Programs is a list of auxiliary program descriptions.
type Programs = []*program.Desc

// FusedVars is the set of fused-variable names.
type FusedVars = types.Set[string]

// Graph owns a set of nodes, the program description it originates from and
// a table of named attributes.
type Graph struct {
	prog  *program.Desc
	nodes types.Set[Node]
	order []Node // Insertion order, for deterministic iteration.
	attrs map[string]any
}

// New creates an empty graph for the given program description, with the
// standard Vars (sized for numDevices) and DepVars side-tables already set.
func New(prog *program.Desc, numDevices int) *Graph {
	g := &Graph{
		prog:  prog,
		nodes: types.MakeSet[Node](),
		attrs: make(map[string]any),
	}
	vars := make(Vars, numDevices)
	for ii := range vars {
		vars[ii] = make(map[string][]*VarNode)
	}
	g.SetAttr(VarsAttrKey, vars)
	g.SetAttr(DepVarsAttrKey, make(DepVars))
	return g
}

// Program returns the program description this graph was built from.
func (g *Graph) Program() *program.Desc { return g.prog }

// NumNodes returns how many nodes the graph currently owns.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Contains returns whether the graph currently owns the node.
func (g *Graph) Contains(n Node) bool { return g.nodes.Has(n) }

// AddNode takes ownership of the node. It panics if the graph already owns
// it -- the caller is responsible for first detaching it from its previous
// owner (or use Move).
func (g *Graph) AddNode(n Node) {
	if g.nodes.Has(n) {
		exceptions.Panicf("AddNode: graph already owns %s", n)
	}
	g.nodes.Insert(n)
	g.order = append(g.order, n)
}

// RemoveNode detaches the node from the graph and returns it. It panics if
// the graph does not own the node.
func (g *Graph) RemoveNode(n Node) Node {
	if !g.nodes.Has(n) {
		exceptions.Panicf("RemoveNode: graph does not own %s", n)
	}
	g.nodes.Delete(n)
	idx := slices.Index(g.order, n)
	g.order = slices.Delete(g.order, idx, idx+1)
	return n
}

// Move transfers ownership of the node from one graph to another, in one
// step. It panics if `from` does not own the node or `to` already does.
func Move(n Node, from, to *Graph) {
	to.AddNode(from.RemoveNode(n))
}

// Nodes returns the nodes currently owned by the graph, in insertion order.
// The returned slice is a copy.
func (g *Graph) Nodes() []Node {
	return slices.Clone(g.order)
}

// Ops returns the operator nodes currently owned by the graph, in insertion
// order.
func (g *Graph) Ops() []*OpNode {
	ops := make([]*OpNode, 0, len(g.order))
	for _, n := range g.order {
		if op, ok := n.(*OpNode); ok {
			ops = append(ops, op)
		}
	}
	return ops
}

// String implements fmt.Stringer.
func (g *Graph) String() string {
	parts := []string{fmt.Sprintf("Graph: %d nodes, %d attributes", len(g.nodes), len(g.attrs))}
	for ii, n := range g.order {
		parts = append(parts, fmt.Sprintf("#%d\t%s", ii, n))
	}
	return strings.Join(parts, "\n")
}

// SetAttr sets the named attribute, replacing any previous value.
func (g *Graph) SetAttr(key string, value any) {
	g.attrs[key] = value
}

// HasAttr returns whether the named attribute is set, of whatever type.
func (g *Graph) HasAttr(key string) bool {
	_, found := g.attrs[key]
	return found
}

// EraseAttr removes the named attribute. Removing an unset attribute is a
// no-op.
func (g *Graph) EraseAttr(key string) {
	delete(g.attrs, key)
}

// AttrKeys returns the keys of the attributes currently set, sorted.
func (g *Graph) AttrKeys() []string {
	keys := make([]string, 0, len(g.attrs))
	for key := range g.attrs {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Attr returns the named attribute, checking it has the requested type T.
// It returns an error if the attribute is not set or holds a different
// type.
func Attr[T any](g *Graph, key string) (value T, err error) {
	raw, found := g.attrs[key]
	if !found {
		err = errors.Errorf("graph has no attribute %q", key)
		return
	}
	value, ok := raw.(T)
	if !ok {
		err = errors.Errorf("graph attribute %q is a %T, wanted %T", key, raw, value)
	}
	return
}

// MustAttr is like Attr but panics on error. Used for the structural
// side-tables whose presence is an invariant of the graph.
func MustAttr[T any](g *Graph, key string) T {
	value, err := Attr[T](g, key)
	if err != nil {
		exceptions.Panicf("MustAttr: %+v", err)
	}
	return value
}

// CopyAttrIfExists copies the named attribute from one graph to another, if
// it is set. The value must have type T; the value is shared, not deep
// copied.
func CopyAttrIfExists[T any](from, to *Graph, key string) {
	if !from.HasAttr(key) {
		return
	}
	to.SetAttr(key, MustAttr[T](from, key))
}
