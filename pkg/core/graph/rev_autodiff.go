// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/controlflow/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// This file implements the reverse-mode differentiation driver over the symbolic graph.
//
// Conventions:
//
// * root: the variable whose gradient is being computed.
// * VJP: the accumulated gradient of root with respect to a variable. They are generated in reverse
//   order of registration of the operations, from the root back to the inputs.
// * Each operation creates its own backward operations in DoDiff: for control-flow operations
//   that is the derivative operation wrapping the forward one.

// Gradient creates the variables holding the gradient of root with respect to each of wrt.
//
// Operations are visited in reverse order of registration in g, and DoDiff is called exactly once for each
// operation that has a gradient arriving at one of its outputs. Gradients arriving at the same variable are
// summed with the registered "add" operation. The entry for a variable in wrt that root doesn't depend on is nil.
func Gradient(g *Graph, root *Variable, wrt ...*Variable) []*Variable {
	if root == nil {
		exceptions.Panicf("Gradient() requires a root variable")
	}
	root = g.VarFrom(root)
	accumulatedVJPs := map[string]*Variable{
		root.name: g.VarWithValue(g.GenerateName("grad-seed"), 1),
	}

	// Snapshot: operations created by DoDiff are not visited.
	ops := g.Ops()
	for opIdx := len(ops) - 1; opIdx >= 0; opIdx-- {
		op := ops[opIdx]
		outputs := g.OutputsFor(op)
		vjpsForOutputs := make([]*Variable, len(outputs))
		var hasVJP bool
		for ii, output := range outputs {
			if vjp, found := accumulatedVJPs[output.name]; found {
				vjpsForOutputs[ii] = vjp
				hasVJP = true
			}
		}
		if !hasVJP {
			continue
		}

		args := g.ArgsFor(op)
		klog.V(2).Infof("Gradient: back-propagating through %s (%d args)", op.OpName(), len(args))
		inputsVJPs := op.DoDiff(vjpsForOutputs)
		if len(inputsVJPs) > len(args) {
			exceptions.Panicf("Gradient: DoDiff of operation %s returned %d gradients, but it has %d arguments",
				op.OpName(), len(inputsVJPs), len(args))
		}
		for ii, vjp := range inputsVJPs {
			if vjp == nil {
				continue
			}
			name := args[ii].name
			if current, found := accumulatedVJPs[name]; found {
				accumulatedVJPs[name] = Apply(g, "add", current, vjp)
			} else {
				accumulatedVJPs[name] = vjp
			}
		}
	}
	return xslices.Map(wrt, func(v *Variable) *Variable { return accumulatedVJPs[v.name] })
}
