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

package graph

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/execgraph/program"
)

// This file is the builder side of the graph: creating nodes and wiring
// dependencies. The analyses in the multidevice package only read what is
// built here.

// AddOp creates an operator node of the given kind and takes ownership of
// it. Compute ops require a descriptor, which is also appended to the
// top-level block of the graph's program description; for other kinds the
// descriptor is optional.
func (g *Graph) AddOp(kind OpKind, desc *program.OpDesc, scope DeviceIndex) *OpNode {
	if kind == OpCompute && desc == nil {
		exceptions.Panicf("AddOp: a compute op requires a program.OpDesc")
	}
	if kind == OpCompute {
		g.prog.TopBlock().AppendOp(desc)
	}
	op := &OpNode{kind: kind, desc: desc, scope: scope}
	g.AddNode(op)
	return op
}

// AddComputeOp creates an operator node executing the described operator on
// the given device/scope.
func (g *Graph) AddComputeOp(desc *program.OpDesc, scope DeviceIndex) *OpNode {
	return g.AddOp(OpCompute, desc, scope)
}

// AddEagerDeletionOp creates the garbage-collection operator node for the
// given device/scope.
func (g *Graph) AddEagerDeletionOp(scope DeviceIndex) *OpNode {
	return g.AddOp(OpEagerDeletion, nil, scope)
}

// AddShareBufferOp creates a buffer-sharing operator node for the given
// device/scope.
func (g *Graph) AddShareBufferOp(scope DeviceIndex) *OpNode {
	return g.AddOp(OpShareBuffer, nil, scope)
}

// AddVar creates a named variable node on the given device/scope, takes
// ownership of it and registers it in the graph's per-device Vars table.
// It panics if scope is out of the range the graph was created with.
func (g *Graph) AddVar(name string, scope DeviceIndex) *VarNode {
	vars := MustAttr[Vars](g, VarsAttrKey)
	if scope < 0 || int(scope) >= len(vars) {
		exceptions.Panicf("AddVar(%q): scope %d out of range, graph has %d device slots",
			name, scope, len(vars))
	}
	v := &VarNode{kind: VarOrdinary, name: name, scope: scope}
	g.AddNode(v)
	vars[scope][name] = append(vars[scope][name], v)
	return v
}

// AddDummyVar creates a synchronization-only placeholder variable, takes
// ownership of it and registers it in the graph's DepVars set.
func (g *Graph) AddDummyVar() *VarNode {
	v := &VarNode{kind: VarDummy, scope: UndefinedDevice}
	g.AddNode(v)
	MustAttr[DepVars](g, DepVarsAttrKey).Insert(v)
	return v
}

// Connect wires the operator node to consume inputs and produce outputs,
// keeping the generated-by and pending-ops back-links mirrored. A variable
// has at most one generating op; Connect panics on a second one.
func (g *Graph) Connect(op *OpNode, inputs, outputs []*VarNode) {
	for _, v := range inputs {
		op.inputs = append(op.inputs, v)
		v.pendingOps = append(v.pendingOps, op)
	}
	for _, v := range outputs {
		if v.generatedBy != nil {
			exceptions.Panicf("Connect: variable %s already generated by %s", v, v.generatedBy)
		}
		v.generatedBy = op
		op.outputs = append(op.outputs, v)
	}
}
