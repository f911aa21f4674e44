// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package initializer

import (
	"testing"

	"github.com/gomlx/controlflow/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
)

func TestFill(t *testing.T) {
	assert.Nil(t, Zero.Fill(shapes.Invalid()))
	assert.Equal(t, []float64{0, 0, 0, 0}, Zero.Fill(shapes.Make(dtypes.Float32, 2, 2)))
	assert.Equal(t, []float64{1}, One.Fill(shapes.Scalar(dtypes.Float64)))
	assert.Equal(t, []float64{2.5, 2.5}, Constant(2.5).Fill(shapes.Make(dtypes.Float32, 2)))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "zero", Zero.Name())
	assert.Equal(t, byte('f'), Zero.Order())
	assert.Equal(t, "constant(2.5)", Constant(2.5).Name())
}
