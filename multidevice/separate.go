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

// Package multidevice analyses multi-device execution graphs.
//
// Its main entry point is TrySeparate, which decides whether a unified
// multi-device graph is really a disjoint union of per-device subgraphs --
// no communication operators anywhere, every operator unambiguously on one
// device, no dependency crossing a device boundary -- and if so splits it by
// moving nodes into freshly created single-device graphs. Whenever that
// cannot be proven safe, it returns nil and leaves the input graph
// untouched: an empty result always means "the original graph is still
// valid and complete".
//
// The package also provides HasDropLastReadOp / HasKeepLastReadOp, a small
// independent scan over the same graph abstraction used by callers to pick
// an iteration-truncation policy.
package multidevice

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/execgraph/graph"
	"github.com/gomlx/execgraph/program"
	"github.com/gomlx/execgraph/types"
	"github.com/gomlx/execgraph/types/xslices"
	"golang.org/x/exp/maps"
	"k8s.io/klog/v2"
)

// communicationOps are the operator types related to multi-device
// communication. If a graph (or any block of its originating program)
// mentions any of them, it cannot be separated into per-device graphs.
//
// This is a closed table: it reflects the operators with inherent
// cross-device semantics, and is not configurable at runtime.
var communicationOps = types.SetWith(
	"sync_batch_norm",
	"sync_batch_norm_grad",
	"allreduce",
	"c_allreduce_sum",
	"c_allreduce_prod",
	"c_allreduce_min",
	"c_allreduce_max",
	"c_allgather",
	"c_reducescatter",
	"c_broadcast",
	"c_comm_init",
	"c_comm_init_all",
	"c_gen_nccl_id",
	"c_sync_comm_stream",
	"send",
	"recv",
	"send_barrier",
	"fetch_barrier",
)

// IsCommunicationOp returns whether the operator type has inherent
// cross-device semantics (collective reductions, broadcasts, point-to-point
// send/recv, synchronization barriers).
func IsCommunicationOp(opType string) bool {
	return communicationOps.Has(opType)
}

// scopeOf returns the device/scope the operator node records, or
// UndefinedDevice for nodes that cannot be pinned to one device: compute
// ops of a communication type, and op kinds with no per-scope semantics.
func scopeOf(op *graph.OpNode) graph.DeviceIndex {
	switch op.Kind() {
	case graph.OpCompute:
		if communicationOps.Has(op.Type()) {
			return graph.UndefinedDevice
		}
		return op.Scope()
	case graph.OpEagerDeletion, graph.OpShareBuffer:
		return op.Scope()
	default:
		return graph.UndefinedDevice
	}
}

// uniqueDeviceOf returns the device the operator node unambiguously belongs
// to, or UndefinedDevice. The node's own scope only counts if every named
// variable it touches records the same scope; dummy variables carry no
// scope and are skipped. Pure, safe to call repeatedly and in any order.
func uniqueDeviceOf(op *graph.OpNode) graph.DeviceIndex {
	dev := scopeOf(op)
	if dev == graph.UndefinedDevice {
		return dev
	}
	for _, vars := range [][]*graph.VarNode{op.Inputs(), op.Outputs()} {
		for _, v := range vars {
			if v.IsDummy() {
				continue
			}
			if v.Scope() != dev {
				return graph.UndefinedDevice
			}
		}
	}
	return dev
}

// containsCommunicationOp scans the program blocks from beginBlockIdx
// onward for any operator of a communication type. The scan is by
// descriptor type only; it does not check whether the block is reachable.
func containsCommunicationOp(prog *program.Desc, beginBlockIdx int) bool {
	for blockIdx := beginBlockIdx; blockIdx < prog.NumBlocks(); blockIdx++ {
		for _, op := range prog.Block(blockIdx).Ops() {
			if communicationOps.Has(op.Type()) {
				klog.V(10).Infof("program block %d contains communication op %q", blockIdx, op.Type())
				return true
			}
		}
	}
	return false
}

// TrySeparate tries to separate the graph into multiple graphs, each of
// which would only run on a single device. This is usually used to separate
// a data-parallel inference graph into one graph per device.
//
// The graph can be separated if and only if:
//
//   - neither the graph nor any block of its originating program contains an
//     operator related to multi-device communication (allreduce, send, recv,
//     sync_batch_norm, etc.);
//
//   - operators on different devices do not depend on each other, that is,
//     the graph is a disjoint union of per-device subgraphs.
//
// On success it returns the new graphs in device order, and the input graph
// is left in an unusable state: its nodes have been moved out and its
// structural side-tables removed, callers must discard it. On any of the
// abort conditions it returns nil and the input graph is untouched.
func TrySeparate(g *graph.Graph) []*graph.Graph {
	// Communication ops in nested blocks cannot be checked node by node,
	// their presence anywhere vetoes the separation. The top-level block is
	// covered by the per-node classification below.
	if containsCommunicationOp(g.Program(), 1) {
		klog.V(10).Infof("not separating: program has communication ops in nested blocks")
		return nil
	}

	ops := g.Ops()
	if len(ops) == 0 {
		klog.V(10).Infof("not separating: graph has no operator nodes")
		return nil
	}

	opToDev := make(map[*graph.OpNode]graph.DeviceIndex, len(ops))
	for _, op := range ops {
		dev := uniqueDeviceOf(op)
		if dev == graph.UndefinedDevice {
			klog.V(10).Infof("not separating: device of %s is not determined", op)
			return nil
		}
		opToDev[op] = dev
	}

	// Every dependency edge must stay within one device: the generator of
	// each input and every pending consumer of each output must resolve to
	// the same device as the op itself.
	for _, op := range ops {
		dev := opToDev[op]
		for _, in := range op.Inputs() {
			if gen := in.GeneratedBy(); gen != nil {
				if genDev, found := opToDev[gen]; !found || genDev != dev {
					klog.V(10).Infof("not separating: %s input %s crosses a device boundary", op, in)
					return nil
				}
			}
		}
		for _, out := range op.Outputs() {
			for _, pending := range out.PendingOps() {
				if pendingDev, found := opToDev[pending]; !found || pendingDev != dev {
					klog.V(10).Infof("not separating: %s output %s crosses a device boundary", op, out)
					return nil
				}
			}
		}
	}

	numDevices := int(xslices.Max(maps.Values(opToDev))) + 1
	if numDevices < 1 {
		exceptions.Panicf("TrySeparate: no device found after classifying %d ops, this is a bug", len(ops))
	}
	if numDevices == 1 {
		klog.V(10).Infof("not separating: all ops are on a single device")
		return nil
	}

	// All checks passed, the split below cannot fail anymore.
	parts := make([]*graph.Graph, numDevices)
	for ii := range parts {
		parts[ii] = graph.New(program.New(), 1)
	}

	srcVars := graph.MustAttr[graph.Vars](g, graph.VarsAttrKey)
	for _, op := range ops {
		dst := parts[opToDev[op]]
		dstVars := graph.MustAttr[graph.Vars](dst, graph.VarsAttrKey)
		dstDepVars := graph.MustAttr[graph.DepVars](dst, graph.DepVarsAttrKey)
		graph.Move(op, g, dst)
		moveVars := func(vars []*graph.VarNode) {
			for _, v := range vars {
				if !g.Contains(v) {
					// Already moved along an earlier op sharing it.
					continue
				}
				graph.Move(v, g, dst)
				if v.IsDummy() {
					dstDepVars.Insert(v)
				} else {
					dstVars[0][v.Name()] = srcVars[v.Scope()][v.Name()]
				}
			}
		}
		moveVars(op.Inputs())
		moveVars(op.Outputs())
	}

	// The source tables no longer describe the source graph, ownership has
	// been redistributed.
	g.EraseAttr(graph.VarsAttrKey)
	g.EraseAttr(graph.DepVarsAttrKey)

	for _, part := range parts {
		graph.CopyAttrIfExists[graph.Programs](g, part, graph.ProgramsAttrKey)
		graph.CopyAttrIfExists[graph.FusedVars](g, part, graph.FusedVarsAttrKey)
	}
	klog.V(10).Infof("separated graph into %d single-device graphs", numDevices)
	return parts
}
