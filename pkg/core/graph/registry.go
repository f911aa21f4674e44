// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"strings"

	"github.com/gomlx/controlflow/pkg/core/shapes"
	"github.com/gomlx/controlflow/pkg/ml/initializer"
	"github.com/gomlx/controlflow/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrUnrecognizedOp is wrapped by the panics of the registry when an operator name has no registered mapping.
var ErrUnrecognizedOp = errors.New("unrecognized operator")

// OpFactory creates a new, unbound, instance of an operation.
type OpFactory func() Op

// registry of operations, populated at start-up (usually by init() functions of the operations packages).
var registry = struct {
	factories map[string]OpFactory

	// tensorflow and onnx map lower-cased external names to canonical names.
	tensorflow, onnx map[string]string
}{
	factories:  make(map[string]OpFactory),
	tensorflow: make(map[string]string),
	onnx:       make(map[string]string),
}

// RegisterOp registers the factory for the operation with the canonical name.
//
// The external names of the operation (see TensorflowMapped and ONNXMapped) are taken from an
// instance created by the factory. Registering the same name twice panics.
func RegisterOp(name string, factory OpFactory) {
	if _, found := registry.factories[name]; found {
		exceptions.Panicf("RegisterOp(%q): operation already registered", name)
	}
	registry.factories[name] = factory
	op := factory()
	if tf, ok := op.(TensorflowMapped); ok {
		registry.tensorflow[strings.ToLower(tf.TensorflowName())] = name
	}
	if onnx, ok := op.(ONNXMapped); ok {
		if onnxName, err := onnx.ONNXName(); err == nil {
			registry.onnx[strings.ToLower(onnxName)] = name
		}
	}
	klog.V(2).Infof("registered operation %q", name)
}

// NewOp creates a new instance of the operation with the canonical name.
// It panics with an error wrapping ErrUnrecognizedOp if there is no such operation.
func NewOp(name string) Op {
	factory, found := registry.factories[name]
	if !found {
		panic(errors.Wrapf(ErrUnrecognizedOp, "no operation registered as %q", name))
	}
	return factory()
}

// MapTensorflowOp returns the canonical name of the operation for the TensorFlow operator tag (case-insensitive).
// It panics with an error wrapping ErrUnrecognizedOp if there is no mapping.
func MapTensorflowOp(tag string) string {
	name, found := registry.tensorflow[strings.ToLower(tag)]
	if !found {
		panic(errors.Wrapf(ErrUnrecognizedOp, "no operation registered for TensorFlow op %q", tag))
	}
	return name
}

// HasTensorflowOp returns whether the TensorFlow operator tag has a registered mapping.
func HasTensorflowOp(tag string) bool {
	_, found := registry.tensorflow[strings.ToLower(tag)]
	return found
}

// MapONNXOp returns the canonical name of the operation for the ONNX operator type (case-insensitive).
// It panics with an error wrapping ErrUnrecognizedOp if there is no mapping.
func MapONNXOp(opType string) string {
	name, found := registry.onnx[strings.ToLower(opType)]
	if !found {
		panic(errors.Wrapf(ErrUnrecognizedOp, "no operation registered for ONNX op %q", opType))
	}
	return name
}

// RegisteredOps returns the canonical names of all registered operations, sorted.
func RegisteredOps() []string {
	return xslices.SortedKeys(registry.factories)
}

// Apply creates a new instance of the named operation in g, with the given arguments and one new output
// variable, which is returned. The output shape is inferred if the operation implements ShapeInferrer and
// all argument shapes are known.
func Apply(g *Graph, name string, args ...*Variable) *Variable {
	op := NewOp(name)
	op.SetGraph(g)
	out := g.Var(g.GenerateName(name), shapes.Invalid(), initializer.Zero)
	g.AddArgsFor(args, op)
	g.AddOutgoingFor([]*Variable{out}, op)
	if inferrer, ok := op.(ShapeInferrer); ok {
		argShapes := xslices.Map(args, (*Variable).Shape)
		known := len(xslices.Filter(argShapes, shapes.Shape.Ok)) == len(argShapes)
		if known {
			out.SetShape(inferrer.InferShape(argShapes))
		}
	}
	return out
}
