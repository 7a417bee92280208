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

package multidevice

import (
	"github.com/gomlx/execgraph/graph"
	"github.com/gomlx/execgraph/program"
	"k8s.io/klog/v2"
)

const (
	readOpType       = "read"
	dropLastAttrName = "drop_last"
)

// hasReadOp reports whether the graph has a "read" operator whose
// "drop_last" attribute equals dropLast. Read-only, no ordering
// requirements.
func hasReadOp(g *graph.Graph, dropLast bool) bool {
	for _, op := range g.Ops() {
		if op.Kind() != graph.OpCompute || op.Type() != readOpType {
			continue
		}
		value, err := program.Attr[bool](op.Desc(), dropLastAttrName)
		if err != nil {
			// The graph builder always sets drop_last on read ops.
			klog.Warningf("read op without a bool %q attribute: %v", dropLastAttrName, err)
			continue
		}
		if value == dropLast {
			klog.V(10).Infof("the graph has a drop_last=%v read op", dropLast)
			return true
		}
	}
	klog.V(10).Infof("the graph does not have a drop_last=%v read op", dropLast)
	return false
}

// HasDropLastReadOp returns whether the graph has a "read" operator that
// drops the last incomplete batch (attribute drop_last=true).
func HasDropLastReadOp(g *graph.Graph) bool {
	return hasReadOp(g, true)
}

// HasKeepLastReadOp returns whether the graph has a "read" operator that
// keeps the last incomplete batch (attribute drop_last=false).
func HasKeepLastReadOp(g *graph.Graph) bool {
	return hasReadOp(g, false)
}
