// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package initializer defines the named fill strategies applied to graph variables that are
// declared without an explicit value.
//
// Initializers don't compute anything on a device: they describe how a value is to be
// materialized, and Fill produces the flat values for a given shape, in the initializer's order.
package initializer

import (
	"fmt"

	"github.com/gomlx/controlflow/pkg/core/shapes"
)

// Initializer is a named fill strategy for a variable of a given shape.
type Initializer interface {
	// Name of the strategy, e.g. "zero".
	Name() string

	// Order of the flat values, 'f' (column-major) or 'c' (row-major).
	Order() byte

	// Fill returns the flat values for the shape. It returns nil if the shape is not yet known.
	Fill(shape shapes.Shape) []float64
}

type constantFill struct {
	name  string
	order byte
	value float64
}

var (
	// Zero initializes variables with zero.
	Zero Initializer = constantFill{name: "zero", order: 'f'}

	// One initializes variables with one.
	One Initializer = constantFill{name: "one", order: 'f', value: 1}
)

// Constant returns an initializer that fills variables with the given value.
func Constant(value float64) Initializer {
	return constantFill{name: fmt.Sprintf("constant(%g)", value), order: 'f', value: value}
}

// Name implements Initializer.
func (c constantFill) Name() string { return c.name }

// Order implements Initializer.
func (c constantFill) Order() byte { return c.order }

// Fill implements Initializer.
func (c constantFill) Fill(shape shapes.Shape) []float64 {
	if !shape.Ok() {
		return nil
	}
	values := make([]float64, shape.Size())
	if c.value != 0 {
		for ii := range values {
			values[ii] = c.value
		}
	}
	return values
}
