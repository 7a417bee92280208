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
	"slices"

	"github.com/pkg/errors"
)

// Validate checks the structural integrity of the graph: every node linked
// from an owned node is itself owned by this graph, and every op<->var link
// is bidirectional (an op listing a variable as input appears in the
// variable's pending ops, an op listing a variable as output is its
// generating op, and vice versa). It returns the first inconsistency found.
func (g *Graph) Validate() error {
	for _, n := range g.order {
		switch node := n.(type) {
		case *OpNode:
			for _, in := range node.inputs {
				if !g.nodes.Has(in) {
					return errors.Errorf("op %s consumes %s, which this graph does not own", node, in)
				}
				if !slices.Contains(in.pendingOps, node) {
					return errors.Errorf("op %s consumes %s but is missing from its pending ops", node, in)
				}
			}
			for _, out := range node.outputs {
				if !g.nodes.Has(out) {
					return errors.Errorf("op %s produces %s, which this graph does not own", node, out)
				}
				if out.generatedBy != node {
					return errors.Errorf("op %s produces %s, but the variable records %s as its generator",
						node, out, out.generatedBy)
				}
			}
		case *VarNode:
			if gen := node.generatedBy; gen != nil {
				if !g.nodes.Has(gen) {
					return errors.Errorf("%s is generated by %s, which this graph does not own", node, gen)
				}
				if !slices.Contains(gen.outputs, node) {
					return errors.Errorf("%s records generator %s, which does not list it as output", node, gen)
				}
			}
			for _, op := range node.pendingOps {
				if !g.nodes.Has(op) {
					return errors.Errorf("%s is pending on %s, which this graph does not own", node, op)
				}
				if !slices.Contains(op.inputs, node) {
					return errors.Errorf("%s lists pending op %s, which does not consume it", node, op)
				}
			}
		}
	}
	return nil
}
