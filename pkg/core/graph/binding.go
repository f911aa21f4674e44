// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/controlflow/pkg/core/shapes"
	"github.com/gomlx/controlflow/pkg/ml/initializer"
	"k8s.io/klog/v2"
)

// ResolveOrCreate returns the variable declared as name in g, or declares a new one with unknown shape
// and zero-fill initialization.
func ResolveOrCreate(g *Graph, name string) *Variable {
	if v := g.GetVariable(name); v != nil {
		return v
	}
	return g.Var(name, shapes.Invalid(), initializer.Zero)
}

// Mirror declares the same logical variable v (by name) in each of the target graphs.
// Targets that already declare the name keep their variable (with its shape filled in, if it was unset).
func Mirror(v *Variable, targets ...*Graph) {
	for _, target := range targets {
		if target != nil {
			target.VarFrom(v)
		}
	}
}

// Resolver resolves variable names across nested graphs in a fixed order:
//
//  1. Scopes, in order: the first graph declaring the name wins.
//  2. Enclosing (if not nil): if it declares the name, the variable is mirrored into MirrorTo.
//  3. Fallback (if not nil) creates the variable.
//
// Resolve returns nil if none of the above yields a variable.
type Resolver struct {
	Scopes    []*Graph
	Enclosing *Graph
	MirrorTo  []*Graph
	Fallback  func(name string) *Variable
}

// Resolve the variable name, see Resolver for the order.
func (r *Resolver) Resolve(name string) *Variable {
	for _, scope := range r.Scopes {
		if v := scope.GetVariable(name); v != nil {
			return v
		}
	}
	if r.Enclosing != nil {
		if v := r.Enclosing.GetVariable(name); v != nil {
			Mirror(v, r.MirrorTo...)
			return v
		}
	}
	if r.Fallback != nil {
		return r.Fallback(name)
	}
	return nil
}

// FallbackScalarLiteral returns a Resolver.Fallback that declares unresolved names in g as scalar
// literals with the given value.
func FallbackScalarLiteral(g *Graph, value float64) func(name string) *Variable {
	return func(name string) *Variable {
		klog.V(1).Infof("graph %q: unresolved variable %q declared as scalar literal %g", g.Path(), name, value)
		return g.VarWithValue(name, value)
	}
}

// FallbackCreate returns a Resolver.Fallback that declares unresolved names in g, see ResolveOrCreate.
func FallbackCreate(g *Graph) func(name string) *Variable {
	return func(name string) *Variable {
		return ResolveOrCreate(g, name)
	}
}
