// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"github.com/gomlx/controlflow/pkg/core/graph"
)

// The helpers below create the operation in the graph of the first argument.

// Identity returns x unchanged.
func Identity(x *graph.Variable) *graph.Variable { return graph.Apply(x.Graph(), IdentityName, x) }

// Add returns x + y.
func Add(x, y *graph.Variable) *graph.Variable { return graph.Apply(x.Graph(), AddName, x, y) }

// Sub returns x - y.
func Sub(x, y *graph.Variable) *graph.Variable { return graph.Apply(x.Graph(), SubtractName, x, y) }

// Mul returns x * y.
func Mul(x, y *graph.Variable) *graph.Variable { return graph.Apply(x.Graph(), MultiplyName, x, y) }

// Neg returns -x.
func Neg(x *graph.Variable) *graph.Variable { return graph.Apply(x.Graph(), NegativeName, x) }

// Min returns the element-wise minimum of x and y.
func Min(x, y *graph.Variable) *graph.Variable { return graph.Apply(x.Graph(), MinimumName, x, y) }

// Max returns the element-wise maximum of x and y.
func Max(x, y *graph.Variable) *graph.Variable { return graph.Apply(x.Graph(), MaximumName, x, y) }

// Greater returns x > y.
func Greater(x, y *graph.Variable) *graph.Variable { return graph.Apply(x.Graph(), GreaterName, x, y) }

// Less returns x < y.
func Less(x, y *graph.Variable) *graph.Variable { return graph.Apply(x.Graph(), LessName, x, y) }

// LessEqual returns x <= y.
func LessEqual(x, y *graph.Variable) *graph.Variable {
	return graph.Apply(x.Graph(), LessEqualName, x, y)
}

// Scalar declares a new scalar literal in g.
func Scalar(g *graph.Graph, value float64) *graph.Variable {
	return g.VarWithValue(g.GenerateName("scalar"), value)
}
