// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ops registers the leaf operations used inside the branches and loop bodies of control-flow
// operations: identity, arithmetic and comparisons.
//
// They are purely symbolic: each operation knows its names (canonical, TensorFlow and ONNX), how to infer
// its output shape and how to build its gradient with other operations.
//
// Import it for its side effect of registering the operations:
//
//	import _ "github.com/gomlx/controlflow/pkg/core/ops"
package ops

import (
	"github.com/gomlx/controlflow/pkg/core/graph"
	"github.com/gomlx/controlflow/pkg/core/shapes"
	"github.com/gomlx/controlflow/pkg/importers/graphdef"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Canonical names of the operations in this package.
const (
	IdentityName  = "identity"
	AddName       = "add"
	SubtractName  = "subtract"
	MultiplyName  = "multiply"
	NegativeName  = "negative"
	MinimumName   = "minimum"
	MaximumName   = "maximum"
	GreaterName   = "greater"
	LessName      = "less"
	LessEqualName = "less_equal"
	NoOpName      = "no_op"
)

// vjpFn builds the gradients with respect to the arguments, given the gradient v of the output.
type vjpFn func(args []*graph.Variable, v *graph.Variable) []*graph.Variable

type opDef struct {
	name, tensorflow, onnx string
	opType                 graph.OpType

	// numArgs is the number of data inputs, or -1 for any.
	numArgs int
	vjp     vjpFn
}

var opDefs = []*opDef{
	{name: IdentityName, tensorflow: "Identity", onnx: "Identity", opType: graph.OpTypeTransform, numArgs: 1,
		vjp: func(_ []*graph.Variable, v *graph.Variable) []*graph.Variable { return []*graph.Variable{v} }},
	{name: AddName, tensorflow: "Add", onnx: "Add", opType: graph.OpTypeTransform, numArgs: 2,
		vjp: func(_ []*graph.Variable, v *graph.Variable) []*graph.Variable { return []*graph.Variable{v, v} }},
	{name: SubtractName, tensorflow: "Sub", onnx: "Sub", opType: graph.OpTypeTransform, numArgs: 2,
		vjp: func(_ []*graph.Variable, v *graph.Variable) []*graph.Variable { return []*graph.Variable{v, Neg(v)} }},
	{name: MultiplyName, tensorflow: "Mul", onnx: "Mul", opType: graph.OpTypeTransform, numArgs: 2,
		vjp: func(args []*graph.Variable, v *graph.Variable) []*graph.Variable {
			return []*graph.Variable{Mul(v, args[1]), Mul(v, args[0])}
		}},
	{name: NegativeName, tensorflow: "Neg", onnx: "Neg", opType: graph.OpTypeTransform, numArgs: 1,
		vjp: func(_ []*graph.Variable, v *graph.Variable) []*graph.Variable { return []*graph.Variable{Neg(v)} }},
	{name: MinimumName, tensorflow: "Minimum", onnx: "Min", opType: graph.OpTypeTransform, numArgs: 2,
		vjp: func(args []*graph.Variable, v *graph.Variable) []*graph.Variable {
			// Ties go to the first argument.
			return []*graph.Variable{Mul(v, LessEqual(args[0], args[1])), Mul(v, Less(args[1], args[0]))}
		}},
	{name: MaximumName, tensorflow: "Maximum", onnx: "Max", opType: graph.OpTypeTransform, numArgs: 2,
		vjp: func(args []*graph.Variable, v *graph.Variable) []*graph.Variable {
			// Ties go to the first argument.
			return []*graph.Variable{Mul(v, LessEqual(args[1], args[0])), Mul(v, Less(args[0], args[1]))}
		}},
	{name: GreaterName, tensorflow: "Greater", onnx: "Greater", opType: graph.OpTypeComparison, numArgs: 2},
	{name: LessName, tensorflow: "Less", onnx: "Less", opType: graph.OpTypeComparison, numArgs: 2},
	{name: LessEqualName, tensorflow: "LessEqual", onnx: "LessOrEqual", opType: graph.OpTypeComparison, numArgs: 2},
	{name: NoOpName, tensorflow: "NoOp", opType: graph.OpTypeCustom, numArgs: -1},
}

func init() {
	for _, def := range opDefs {
		graph.RegisterOp(def.name, func() graph.Op { return &Elementwise{def: def} })
	}
}

// Elementwise is the implementation of all the operations of this package.
type Elementwise struct {
	graph.BaseOp
	def *opDef

	// nodeName is set when imported from a TensorFlow node.
	nodeName string
}

var (
	_ graph.Op                       = (*Elementwise)(nil)
	_ graph.TensorflowMapped         = (*Elementwise)(nil)
	_ graph.ONNXMapped               = (*Elementwise)(nil)
	_ graph.ShapeInferrer            = (*Elementwise)(nil)
	_ graphdef.TensorflowInitializer = (*Elementwise)(nil)
)

// OpName implements graph.Op.
func (op *Elementwise) OpName() string { return op.def.name }

// OpType implements graph.Op.
func (op *Elementwise) OpType() graph.OpType { return op.def.opType }

// TensorflowName implements graph.TensorflowMapped.
func (op *Elementwise) TensorflowName() string { return op.def.tensorflow }

// ONNXName implements graph.ONNXMapped.
func (op *Elementwise) ONNXName() (string, error) {
	if op.def.onnx == "" {
		return "", errors.Wrapf(graph.ErrNoONNXName, "operation %q", op.def.name)
	}
	return op.def.onnx, nil
}

// NodeName returns the name of the TensorFlow node the operation was imported from, if any.
func (op *Elementwise) NodeName() string { return op.nodeName }

// InitFromTensorFlow implements graphdef.TensorflowInitializer: it checks the node matches the operation.
// Arguments and outputs are bound by the importer.
func (op *Elementwise) InitFromTensorFlow(node *graphdef.NodeDef, _ *graphdef.GraphDef) error {
	if !node.IsOp(op.def.tensorflow) {
		return errors.Errorf("node %q has op %q, cannot initialize operation %q (TensorFlow %q) from it",
			node.Name, node.Op, op.def.name, op.def.tensorflow)
	}
	if numInputs := len(node.InputNames()); op.def.numArgs >= 0 && numInputs != op.def.numArgs {
		return errors.Errorf("node %q (%s) has %d inputs, operation %q takes %d",
			node.Name, node.Op, numInputs, op.def.name, op.def.numArgs)
	}
	op.nodeName = node.Name
	return nil
}

// InferShape implements graph.ShapeInferrer: the output has the shape of the highest rank argument,
// with dtype Bool for comparisons.
func (op *Elementwise) InferShape(argShapes []shapes.Shape) shapes.Shape {
	if len(argShapes) == 0 {
		return shapes.Invalid()
	}
	shape := argShapes[0]
	for _, argShape := range argShapes[1:] {
		if argShape.Rank() > shape.Rank() {
			shape = argShape
		}
	}
	shape = shape.Clone()
	if op.def.opType == graph.OpTypeComparison {
		shape.DType = dtypes.Bool
	}
	return shape
}

// DoDiff implements graph.Op. Comparisons (and no_op) have no gradient.
func (op *Elementwise) DoDiff(gradients []*graph.Variable) []*graph.Variable {
	if op.def.vjp == nil || len(gradients) == 0 || gradients[0] == nil {
		return nil
	}
	return op.def.vjp(op.Args(), gradients[0])
}
