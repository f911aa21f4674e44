// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"hash/fnv"

	"github.com/gomlx/controlflow/pkg/core/shapes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// OpType is the category of an operation.
type OpType int

const (
	OpTypeCustom OpType = iota
	OpTypeTransform
	OpTypeComparison
	OpTypeConditional
)

// String implements fmt.Stringer.
func (t OpType) String() string {
	switch t {
	case OpTypeCustom:
		return "Custom"
	case OpTypeTransform:
		return "Transform"
	case OpTypeComparison:
		return "Comparison"
	case OpTypeConditional:
		return "Conditional"
	default:
		return "OpType(?)"
	}
}

// Op is an operation of the graph.
//
// Operations are registered in a Graph (Graph.PutFunctionForId), and their arguments and outputs are
// recorded as edges in the graph (Graph.AddArgsFor, Graph.AddOutgoingFor).
type Op interface {
	// InstanceId uniquely identifies this operation instance.
	InstanceId() string

	// OpName is the canonical name of the operation, the one used in the registry (see RegisterOp).
	OpName() string

	// OpType returns the category of the operation.
	OpType() OpType

	// Graph the operation is bound to.
	Graph() *Graph

	// SetGraph binds the operation to g.
	SetGraph(g *Graph)

	// Args returns the argument variables, as recorded in the graph holding the edges of the operation.
	Args() []*Variable

	// OutputVariables returns the output variables, as recorded in the graph holding the edges of the operation.
	OutputVariables() []*Variable

	// DoDiff returns the gradients with respect to each of the arguments, given the gradients with respect
	// to each output. Arguments that have no gradient have a nil entry.
	DoDiff(gradients []*Variable) []*Variable
}

// TensorflowMapped is implemented by operations that can be imported from a TensorFlow graph.
type TensorflowMapped interface {
	TensorflowName() string
}

// ONNXMapped is implemented by operations that may be imported from an ONNX graph.
// ONNXName returns ErrNoONNXName if the operation has no ONNX counterpart.
type ONNXMapped interface {
	ONNXName() (string, error)
}

// ErrNoONNXName is returned by ONNXMapped.ONNXName for operations without an ONNX counterpart.
var ErrNoONNXName = errors.New("no ONNX op name found")

// OutputShapeCalculator is implemented by operations that can compute their output shapes
// before execution.
type OutputShapeCalculator interface {
	CalculateOutputShape() []shapes.Shape
}

// ShapeInferrer is implemented by single output operations that can infer their output shape
// from the shapes of their arguments. It's used by Apply.
type ShapeInferrer interface {
	InferShape(argShapes []shapes.Shape) shapes.Shape
}

// edgeBinder is implemented by BaseOp: it's called when the edges of the operation are recorded in a graph.
type edgeBinder interface {
	bindEdges(g *Graph)
}

// BaseOp implements the bookkeeping part of Op: instance id, bound graph and the graph holding its edges.
// It's meant to be embedded in the operation implementations, and its zero value is ready to use.
//
// The graph an operation is bound to and the graph holding its edges are usually the same, but not
// always: operations imported into a loop body are bound to the condition graph, while their edges
// are recorded in the body graph.
type BaseOp struct {
	id           string
	graph, edges *Graph
}

// InstanceId implements Op. It's generated on first use.
func (b *BaseOp) InstanceId() string {
	if b.id == "" {
		b.id = uuid.NewString()
	}
	return b.id
}

// Graph implements Op.
func (b *BaseOp) Graph() *Graph { return b.graph }

// SetGraph implements Op.
func (b *BaseOp) SetGraph(g *Graph) { b.graph = g }

// EdgesGraph returns the graph where the edges of the operation were last recorded, or nil.
func (b *BaseOp) EdgesGraph() *Graph { return b.edges }

// Args implements Op.
func (b *BaseOp) Args() []*Variable {
	if b.edges == nil {
		return nil
	}
	return b.edges.argsForId(b.InstanceId())
}

// OutputVariables implements Op.
func (b *BaseOp) OutputVariables() []*Variable {
	if b.edges == nil {
		return nil
	}
	return b.edges.outputsForId(b.InstanceId())
}

func (b *BaseOp) bindEdges(g *Graph) { b.edges = g }

// OpHash returns a hash of the operation name, used by backends to identify the operation kind.
func OpHash(op Op) uint64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(op.OpName()))
	return hasher.Sum64()
}
