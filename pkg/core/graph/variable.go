// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/gomlx/controlflow/pkg/core/shapes"
	"github.com/gomlx/controlflow/pkg/ml/initializer"
	"github.com/gomlx/exceptions"
)

// Variable is a named symbolic value declared in a Graph.
//
// Its name is unique within the graph that declares it. Its shape is shapes.Invalid() until it is
// inferred or explicitly set, and once set it never changes.
type Variable struct {
	name        string
	graph       *Graph
	shape       shapes.Shape
	initializer initializer.Initializer

	// literal is set for variables declared with a value, see Graph.VarWithValue.
	literal *float64
}

// Name of the variable, unique in its graph.
func (v *Variable) Name() string { return v.name }

// Graph where the variable is declared.
func (v *Variable) Graph() *Graph { return v.graph }

// Shape of the variable. It may be invalid (shapes.Shape.Ok() == false) if not known yet.
func (v *Variable) Shape() shapes.Shape { return v.shape }

// SetShape fills in the shape of the variable, if it's not set yet.
// It panics if the variable already has a different shape.
func (v *Variable) SetShape(shape shapes.Shape) {
	if !shape.Ok() {
		return
	}
	if !v.shape.Ok() {
		v.shape = shape.Clone()
		return
	}
	if !v.shape.Equal(shape) {
		exceptions.Panicf("variable %q in graph %q already has shape %s, cannot change it to %s",
			v.name, v.graph.name, v.shape, shape)
	}
}

// Initializer used to materialize the variable when no value is given.
func (v *Variable) Initializer() initializer.Initializer { return v.initializer }

// Literal returns the value of a variable declared with Graph.VarWithValue, and whether there is one.
func (v *Variable) Literal() (value float64, ok bool) {
	if v.literal == nil {
		return 0, false
	}
	return *v.literal, true
}

// String implements fmt.Stringer.
func (v *Variable) String() string {
	if v == nil {
		return "Variable(nil)"
	}
	if v.literal != nil {
		return fmt.Sprintf("%s%s=%g", v.name, v.shape, *v.literal)
	}
	return fmt.Sprintf("%s%s", v.name, v.shape)
}
