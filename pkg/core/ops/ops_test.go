// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops_test

import (
	"testing"

	"github.com/gomlx/controlflow/pkg/core/graph"
	. "github.com/gomlx/controlflow/pkg/core/ops"
	"github.com/gomlx/controlflow/pkg/core/shapes"
	"github.com/gomlx/controlflow/pkg/importers/graphdef"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func producer(t *testing.T, v *graph.Variable) graph.Op {
	t.Helper()
	g := v.Graph()
	for _, op := range g.Ops() {
		for _, out := range g.OutputsFor(op) {
			if out == v {
				return op
			}
		}
	}
	require.Failf(t, "no producer", "variable %s has no producing operation", v)
	return nil
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{IdentityName, AddName, SubtractName, MultiplyName, NegativeName,
		MinimumName, MaximumName, GreaterName, LessName, LessEqualName, NoOpName} {
		assert.Contains(t, graph.RegisteredOps(), name)
	}
	assert.Equal(t, MinimumName, graph.MapTensorflowOp("Minimum"))
	assert.Equal(t, MinimumName, graph.MapTensorflowOp("minimum"))
	assert.Equal(t, MinimumName, graph.MapONNXOp("Min"))
	assert.Equal(t, IdentityName, graph.MapTensorflowOp("Identity"))
	assert.True(t, graph.HasTensorflowOp("Sub"))
	assert.False(t, graph.HasTensorflowOp("Conv2D"))

	err := exceptionOf(func() { graph.MapTensorflowOp("Conv2D") })
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrUnrecognizedOp)
	err = exceptionOf(func() { graph.NewOp("conv") })
	assert.ErrorIs(t, err, graph.ErrUnrecognizedOp)
	assert.Panics(t, func() { graph.RegisterOp(AddName, func() graph.Op { return nil }) })

	op := graph.NewOp(MinimumName)
	assert.Equal(t, "minimum", op.OpName())
	onnxName, err := op.(graph.ONNXMapped).ONNXName()
	require.NoError(t, err)
	assert.Equal(t, "Min", onnxName)
	_, err = graph.NewOp(NoOpName).(graph.ONNXMapped).ONNXName()
	assert.ErrorIs(t, err, graph.ErrNoONNXName)
	assert.Equal(t, graph.OpHash(op), graph.OpHash(graph.NewOp(MinimumName)))
	assert.NotEqual(t, graph.OpHash(op), graph.OpHash(graph.NewOp(MaximumName)))
}

func exceptionOf(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	fn()
	return nil
}

func TestApply(t *testing.T) {
	g := graph.New("main")
	x := g.Var("x", shapes.Make(dtypes.Float32, 3), nil)
	y := g.Var("y", shapes.Make(dtypes.Float32), nil)
	sum := Add(x, y)
	assert.True(t, sum.Shape().Equal(shapes.Make(dtypes.Float32, 3)))
	gt := Greater(x, y)
	assert.True(t, gt.Shape().Equal(shapes.Make(dtypes.Bool, 3)))
	neg := Neg(g.Var("z", shapes.Invalid(), nil))
	assert.False(t, neg.Shape().Ok())

	op := producer(t, sum)
	assert.Equal(t, AddName, op.OpName())
	assert.Equal(t, []*graph.Variable{x, y}, op.Args())
	assert.Same(t, g, op.Graph())
	assert.Len(t, g.Ops(), 3)
}

func TestInitFromTensorFlow(t *testing.T) {
	op := graph.NewOp(AddName).(*Elementwise)
	require.NoError(t, op.InitFromTensorFlow(&graphdef.NodeDef{Name: "sum", Op: "Add", Inputs: []string{"a", "b:0", "^c"}}, nil))
	assert.Equal(t, "sum", op.NodeName())
	assert.Error(t, op.InitFromTensorFlow(&graphdef.NodeDef{Name: "sum", Op: "Add", Inputs: []string{"a"}}, nil))
	assert.Error(t, op.InitFromTensorFlow(&graphdef.NodeDef{Name: "sum", Op: "Sub", Inputs: []string{"a", "b"}}, nil))

	noop := graph.NewOp(NoOpName).(*Elementwise)
	assert.NoError(t, noop.InitFromTensorFlow(&graphdef.NodeDef{Name: "n", Op: "NoOp", Inputs: []string{"^a", "^b"}}, nil))
}

func TestGradient(t *testing.T) {
	g := graph.New("main")
	x := g.Var("x", shapes.Make(dtypes.Float32), nil)
	y := g.Var("y", shapes.Make(dtypes.Float32), nil)
	z := g.Var("z", shapes.Make(dtypes.Float32), nil)
	// out = (x - y) * x
	out := Mul(Sub(x, y), x)
	grads := graph.Gradient(g, out, x, y, z)
	require.Len(t, grads, 3)
	require.NotNil(t, grads[0])
	require.NotNil(t, grads[1])
	assert.Nil(t, grads[2])

	// Gradient of y: -(seed * x)
	assert.Equal(t, NegativeName, producer(t, grads[1]).OpName())
	// Gradient of x accumulates both paths.
	assert.Equal(t, AddName, producer(t, grads[0]).OpName())

	// Comparisons have no gradient.
	cmp := graph.NewOp(LessName)
	assert.Nil(t, cmp.DoDiff([]*graph.Variable{x}))
}

func TestMinGradient(t *testing.T) {
	g := graph.New("main")
	a := g.Var("a", shapes.Make(dtypes.Float32), nil)
	b := g.Var("b", shapes.Make(dtypes.Float32), nil)
	grads := graph.Gradient(g, Min(a, b), a, b)
	require.Len(t, grads, 2)
	for _, grad := range grads {
		require.NotNil(t, grad)
		mul := producer(t, grad)
		assert.Equal(t, MultiplyName, mul.OpName())
		assert.Equal(t, graph.OpTypeComparison, producer(t, mul.Args()[1]).OpType())
	}
}
