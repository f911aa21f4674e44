// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphdef defines the external serialized graph consumed by the importers: an ordered list of
// nodes, each with an operator tag, input references by name and an attribute map.
//
// It mirrors the structure of a TensorFlow GraphDef, and it can be read from YAML (see Parse and Load).
// Importers traverse the nodes with a Cursor, shared by every (possibly recursive) import step.
package graphdef

import (
	"slices"
	"strings"

	"github.com/gomlx/controlflow/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"
)

// Format of the serialized graph.
type Format string

const (
	FormatTensorflow Format = "tensorflow"
	FormatONNX       Format = "onnx"
)

// Operator tags of the TensorFlow control-flow lowering.
const (
	OpEnter         = "Enter"
	OpMerge         = "Merge"
	OpLoopCond      = "LoopCond"
	OpSwitch        = "Switch"
	OpIdentity      = "Identity"
	OpNextIteration = "NextIteration"
	OpExit          = "Exit"
	OpConst         = "Const"
)

// GraphDef is the serialized graph: an ordered list of nodes.
type GraphDef struct {
	// Format defaults to FormatTensorflow if empty.
	Format Format     `yaml:"format,omitempty"`
	Nodes  []*NodeDef `yaml:"nodes"`
}

// NodeDef is one node of the serialized graph.
type NodeDef struct {
	Name string `yaml:"name"`
	Op   string `yaml:"op"`

	// Inputs are references to other nodes, possibly prefixed with "^" (control inputs) or with an
	// output index suffix (":1"). See NodeName.
	Inputs []string             `yaml:"inputs,omitempty"`
	Attr   map[string]AttrValue `yaml:"attr,omitempty"`
}

// AttrValue is the value of a node attribute. Only the fields relevant to the attribute are set.
type AttrValue struct {
	S     string   `yaml:"s,omitempty"`
	I     int64    `yaml:"i,omitempty"`
	F     float64  `yaml:"f,omitempty"`
	B     bool     `yaml:"b,omitempty"`
	Type  string   `yaml:"type,omitempty"`
	Shape []int    `yaml:"shape,omitempty"`
	Value *float64 `yaml:"value,omitempty"`
}

// TensorflowInitializer is implemented by operations that are configured from a TensorFlow node.
type TensorflowInitializer interface {
	InitFromTensorFlow(node *NodeDef, gd *GraphDef) error
}

// ONNXInitializer is implemented by operations that are configured from an ONNX node.
type ONNXInitializer interface {
	InitFromONNX(node *NodeDef, gd *GraphDef) error
}

// EffectiveFormat returns the format of the graph, defaulting to FormatTensorflow.
func (gd *GraphDef) EffectiveFormat() Format {
	if gd.Format == "" {
		return FormatTensorflow
	}
	return gd.Format
}

// IndexOf returns the position of the node with the given name, or -1.
func (gd *GraphDef) IndexOf(name string) int {
	return slices.IndexFunc(gd.Nodes, func(node *NodeDef) bool { return node.Name == name })
}

// NodeName converts an input reference to the name of the node it refers to: it strips the
// control input prefix "^" and the output index suffix ":N".
func NodeName(ref string) string {
	name := strings.TrimPrefix(ref, "^")
	if idx := strings.LastIndexByte(name, ':'); idx >= 0 {
		name = name[:idx]
	}
	return name
}

// InputNames returns the names of the nodes referenced by the data inputs, ignoring control inputs.
func (n *NodeDef) InputNames() []string {
	names := make([]string, 0, len(n.Inputs))
	for _, ref := range n.Inputs {
		if strings.HasPrefix(ref, "^") {
			continue
		}
		names = append(names, NodeName(ref))
	}
	return names
}

// IsOp returns whether the node operator tag is op, case-insensitive.
func (n *NodeDef) IsOp(op string) bool { return strings.EqualFold(n.Op, op) }

// IsEnter returns whether the node enters a loop or conditional frame.
func (n *NodeDef) IsEnter() bool { return n.IsOp(OpEnter) }

// IsMerge returns whether the node merges the values flowing into a loop or conditional frame.
func (n *NodeDef) IsMerge() bool { return n.IsOp(OpMerge) }

// IsLoopCond returns whether the node marks the boolean predicate of a loop.
func (n *NodeDef) IsLoopCond() bool { return n.IsOp(OpLoopCond) }

// IsSwitch returns whether the node routes a value to one of two branches, given the predicate.
func (n *NodeDef) IsSwitch() bool { return n.IsOp(OpSwitch) }

// IsIdentity returns whether the node forwards its input unchanged.
func (n *NodeDef) IsIdentity() bool { return n.IsOp(OpIdentity) }

// IsNextIteration returns whether the node advances a loop to its next iteration.
func (n *NodeDef) IsNextIteration() bool { return n.IsOp(OpNextIteration) }

// IsExit returns whether the node exits a loop or conditional frame.
func (n *NodeDef) IsExit() bool { return n.IsOp(OpExit) }

// IsVariableLike returns whether the node declares a value: constants, variables and placeholders.
func (n *NodeDef) IsVariableLike() bool {
	return n.IsOp(OpConst) || strings.HasPrefix(n.Op, "VariableV") || strings.HasPrefix(n.Op, "Placeholder")
}

// tfDTypes maps TensorFlow dtype names to dtypes.
var tfDTypes = map[string]dtypes.DType{
	"DT_FLOAT":    dtypes.Float32,
	"DT_DOUBLE":   dtypes.Float64,
	"DT_HALF":     dtypes.Float16,
	"DT_BFLOAT16": dtypes.BFloat16,
	"DT_INT32":    dtypes.Int32,
	"DT_INT64":    dtypes.Int64,
	"DT_UINT8":    dtypes.Uint8,
	"DT_BOOL":     dtypes.Bool,
}

// DTypeFromTF converts a TensorFlow dtype name (e.g. "DT_FLOAT") to a dtypes.DType.
// It returns dtypes.InvalidDType if unknown.
func DTypeFromTF(name string) dtypes.DType {
	dtype, found := tfDTypes[strings.ToUpper(name)]
	if !found {
		return dtypes.InvalidDType
	}
	return dtype
}

// Shape returns the shape declared by the "dtype" and "shape" attributes of the node.
// It returns shapes.Invalid() if the dtype is unknown or any dimension is unknown (<= 0).
func (n *NodeDef) Shape() shapes.Shape {
	dtype := DTypeFromTF(n.Attr["dtype"].Type)
	if dtype == dtypes.InvalidDType {
		return shapes.Invalid()
	}
	dims := n.Attr["shape"].Shape
	for _, dim := range dims {
		if dim <= 0 {
			return shapes.Invalid()
		}
	}
	return shapes.Make(dtype, dims...)
}

// Literal returns the scalar value of the "value" attribute, if there is one.
// Values of float dtypes narrower than float64 are rounded to the precision of the node's "dtype".
func (n *NodeDef) Literal() (value float64, ok bool) {
	attr, found := n.Attr["value"]
	if !found || attr.Value == nil {
		return 0, false
	}
	return roundToDType(*attr.Value, DTypeFromTF(n.Attr["dtype"].Type)), true
}

func roundToDType(value float64, dtype dtypes.DType) float64 {
	switch dtype {
	case dtypes.Float32:
		return float64(float32(value))
	case dtypes.Float16:
		return float64(float16.Fromfloat32(float32(value)).Float32())
	case dtypes.BFloat16:
		return float64(bfloat16.FromFloat32(float32(value)).Float32())
	default:
		return value
	}
}
