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
	"fmt"

	"github.com/gomlx/execgraph/program"
)

// DeviceIndex identifies one device and its associated execution scope.
type DeviceIndex int

// UndefinedDevice is the sentinel DeviceIndex meaning "unknown or
// unassignable".
const UndefinedDevice = DeviceIndex(-1)

// OpKind discriminates the operator node variants.
type OpKind int

const (
	// OpCompute executes one operator from the program description.
	OpCompute OpKind = iota

	// OpEagerDeletion frees variables no longer referenced, within one scope.
	OpEagerDeletion

	// OpShareBuffer reuses an input buffer for an output, within one scope.
	OpShareBuffer

	// OpOther covers operator nodes with no per-scope semantics (fetch,
	// collective communication wrappers, etc.).
	OpOther
)

// String implements fmt.Stringer.
func (k OpKind) String() string {
	switch k {
	case OpCompute:
		return "compute"
	case OpEagerDeletion:
		return "eager_deletion"
	case OpShareBuffer:
		return "share_buffer"
	default:
		return "other"
	}
}

// VarKind discriminates the variable node variants.
type VarKind int

const (
	// VarOrdinary is a named variable carrying data.
	VarOrdinary VarKind = iota

	// VarDummy is a synchronization-only placeholder carrying no data.
	VarDummy
)

// Node is a node of a Graph: either an *OpNode or a *VarNode.
//
// The interface is sealed, dispatch on the concrete type with a type switch.
type Node interface {
	fmt.Stringer
	isNode()
}

func (op *OpNode) isNode() {}
func (v *VarNode) isNode() {}

// OpNode is an operator node: one computational step, with the variable
// nodes it consumes and produces.
type OpNode struct {
	kind    OpKind
	desc    *program.OpDesc // Required for OpCompute, optional otherwise.
	scope   DeviceIndex
	inputs  []*VarNode
	outputs []*VarNode
}

// Kind returns the operator node variant.
func (op *OpNode) Kind() OpKind { return op.kind }

// Desc returns the operator descriptor, nil for node kinds not backed by
// the program description.
func (op *OpNode) Desc() *program.OpDesc { return op.desc }

// Type returns the operator type name: the descriptor's type when there is
// one, the kind name otherwise.
func (op *OpNode) Type() string {
	if op.desc != nil {
		return op.desc.Type()
	}
	return op.kind.String()
}

// Scope returns the device/scope index recorded when the node was built.
func (op *OpNode) Scope() DeviceIndex { return op.scope }

// Inputs returns the variable nodes the operator consumes.
func (op *OpNode) Inputs() []*VarNode { return op.inputs }

// Outputs returns the variable nodes the operator produces.
func (op *OpNode) Outputs() []*VarNode { return op.outputs }

// String implements fmt.Stringer.
func (op *OpNode) String() string {
	if op == nil {
		return "OpNode(nil)"
	}
	return fmt.Sprintf("OpNode[%s, scope=%d]", op.Type(), op.scope)
}

// VarNode is a variable node: a value passed between operators, or a dummy
// synchronization placeholder.
type VarNode struct {
	kind        VarKind
	name        string
	scope       DeviceIndex
	generatedBy *OpNode
	pendingOps  []*OpNode
}

// Kind returns the variable node variant.
func (v *VarNode) Kind() VarKind { return v.kind }

// IsDummy returns whether the variable is a synchronization-only
// placeholder.
func (v *VarNode) IsDummy() bool { return v.kind == VarDummy }

// Name returns the variable name, empty for dummy variables.
func (v *VarNode) Name() string { return v.name }

// Scope returns the device/scope index recorded when the node was built.
// Dummy variables record UndefinedDevice.
func (v *VarNode) Scope() DeviceIndex { return v.scope }

// GeneratedBy returns the single operator node that produces this variable,
// or nil if it is a graph input or a dummy without a generator.
func (v *VarNode) GeneratedBy() *OpNode { return v.generatedBy }

// PendingOps returns the operator nodes that consume this variable.
func (v *VarNode) PendingOps() []*OpNode { return v.pendingOps }

// String implements fmt.Stringer.
func (v *VarNode) String() string {
	if v == nil {
		return "VarNode(nil)"
	}
	if v.IsDummy() {
		return "VarNode[dummy]"
	}
	return fmt.Sprintf("VarNode[%s, scope=%d]", v.name, v.scope)
}
