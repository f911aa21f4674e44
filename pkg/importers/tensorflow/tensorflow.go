// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensorflow imports a TensorFlow graph (see package graphdef) into a graph.Graph.
//
// The nodes are visited once, left to right, with a single graphdef.Cursor. The TensorFlow lowering of
// loops and conditionals (the nodes from an Enter to the matching Exit nodes) is handed over to the
// control-flow operations (controlflow.While and controlflow.If), which consume the nodes they use on the
// same cursor. Every other node is imported through the operations registry (see graph.RegisterOp).
//
// Example:
//
//	gd := must.M1(graphdef.Load("~/models/counter.yaml"))
//	g, err := tensorflow.Import(gd, tensorflow.WithGraphName("counter"))
package tensorflow

import (
	"github.com/gomlx/controlflow/pkg/core/controlflow"
	"github.com/gomlx/controlflow/pkg/core/graph"
	"github.com/gomlx/controlflow/pkg/core/shapes"
	"github.com/gomlx/controlflow/pkg/importers/graphdef"
	"github.com/gomlx/controlflow/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	// Registers the basic operations.
	_ "github.com/gomlx/controlflow/pkg/core/ops"
)

// DefaultGraphName is the name of the imported graph, if none is given with WithGraphName.
const DefaultGraphName = "main"

// Option configures Import.
type Option func(imp *importer)

// WithGraphName sets the name of the graph created by Import.
func WithGraphName(name string) Option {
	return func(imp *importer) { imp.graphName = name }
}

// WithStrict sets whether a node without a registered operator fails the import (the default).
// If strict is false, the node is skipped with a warning and only its output variable is declared.
//
// Nodes inside a loop or conditional always require a registered operator.
func WithStrict(strict bool) Option {
	return func(imp *importer) { imp.strict = strict }
}

type importer struct {
	gd        *graphdef.GraphDef
	graphName string
	strict    bool

	g      *graph.Graph
	cursor *graphdef.Cursor

	// Number of nodes skipped because they have no registered operator.
	numUnknown int
}

// Import creates a new graph with the contents of gd.
//
// Graphs in the ONNX format are not supported: nothing is imported, and an empty graph is returned.
// Errors from the import (unrecognized operators, malformed control-flow) are returned, possibly wrapping
// graph.ErrUnrecognizedOp.
func Import(gd *graphdef.GraphDef, options ...Option) (*graph.Graph, error) {
	if gd == nil {
		return nil, errors.New("tensorflow.Import: nil GraphDef")
	}
	imp := &importer{
		gd:        gd,
		graphName: DefaultGraphName,
		strict:    true,
	}
	for _, option := range options {
		option(imp)
	}
	imp.g = graph.New(imp.graphName)
	if gd.EffectiveFormat() == graphdef.FormatONNX {
		klog.Warningf("tensorflow.Import: graph is in the %s format, nothing imported", graphdef.FormatONNX)
		return imp.g, nil
	}
	imp.cursor = graphdef.NewCursor(gd)
	err := exceptions.TryCatch[error](imp.run)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to import graph %q at node #%d", imp.graphName, imp.cursor.Pos())
	}
	klog.V(1).Infof("imported graph %q: %d nodes, %d operations, %d sub-functions, %d unknown nodes skipped",
		imp.graphName, len(gd.Nodes), len(imp.g.Ops()), len(imp.g.SubFunctionNames()), imp.numUnknown)
	return imp.g, nil
}

// ImportFile loads the graph in filePath (see graphdef.Load) and imports it.
func ImportFile(filePath string, options ...Option) (*graph.Graph, error) {
	gd, err := graphdef.Load(filePath)
	if err != nil {
		return nil, err
	}
	return Import(gd, options...)
}

func (imp *importer) run() {
	c := imp.cursor
	for !c.Done() {
		node := c.Node()
		if c.IsSkipped(node.Name) {
			c.Advance()
			continue
		}
		if node.IsEnter() {
			// The control-flow operation consumes its nodes, moving the cursor past its Exit nodes.
			imp.controlFlow(node).DoImport(imp.g, c)
			continue
		}
		c.Skip(node.Name)
		if node.IsVariableLike() {
			imp.declare(node)
		} else {
			imp.operation(node)
		}
		c.Advance()
	}
}

type controlFlowImporter interface {
	DoImport(parent *graph.Graph, cursor *graphdef.Cursor)
}

// controlFlow returns the operation for the loop or conditional starting at the Enter node.
func (imp *importer) controlFlow(enter *graphdef.NodeDef) controlFlowImporter {
	if IsLoop(imp.gd, imp.cursor.Pos()) {
		klog.V(1).Infof("node %q: importing loop", enter.Name)
		return &controlflow.While{}
	}
	klog.V(1).Infof("node %q: importing conditional", enter.Name)
	return &controlflow.If{}
}

// IsLoop returns whether the lowered control-flow starting at node position pos is a loop: that is, if a
// NextIteration node is found before the first Exit node.
func IsLoop(gd *graphdef.GraphDef, pos int) bool {
	for _, node := range gd.Nodes[pos:] {
		switch {
		case node.IsNextIteration():
			return true
		case node.IsExit():
			return false
		}
	}
	return false
}

func (imp *importer) declare(node *graphdef.NodeDef) {
	if value, ok := node.Literal(); ok {
		imp.g.VarWithValue(node.Name, value)
		return
	}
	imp.g.Var(node.Name, node.Shape(), nil)
}

// operation imports a node through the operations registry.
func (imp *importer) operation(node *graphdef.NodeDef) {
	g := imp.g
	if !graph.HasTensorflowOp(node.Op) && !imp.strict {
		klog.Warningf("node %q: no operator registered for TensorFlow op %q, skipping", node.Name, node.Op)
		imp.numUnknown++
		graph.ResolveOrCreate(g, node.Name)
		return
	}
	name := graph.MapTensorflowOp(node.Op)
	if name == controlflow.IfName || name == controlflow.WhileName {
		exceptions.Panicf("node %q: functional control-flow op %q is not supported, only its lowering with Enter/Exit nodes",
			node.Name, node.Op)
	}
	op := graph.NewOp(name)
	op.SetGraph(g)
	if tfInit, ok := op.(graphdef.TensorflowInitializer); ok {
		if err := tfInit.InitFromTensorFlow(node, imp.gd); err != nil {
			panic(errors.WithMessagef(err, "failed to initialize operation from node %q", node.Name))
		}
	}
	args := xslices.Map(node.InputNames(), func(input string) *graph.Variable {
		return graph.ResolveOrCreate(g, input)
	})
	out := graph.ResolveOrCreate(g, node.Name)
	g.AddArgsFor(args, op)
	g.AddOutgoingFor([]*graph.Variable{out}, op)
	if inferrer, ok := op.(graph.ShapeInferrer); ok && !out.Shape().Ok() {
		argShapes := xslices.Map(args, (*graph.Variable).Shape)
		if len(xslices.Filter(argShapes, shapes.Shape.Ok)) == len(argShapes) {
			out.SetShape(inferrer.InferShape(argShapes))
		}
	}
	klog.V(2).Infof("node %q: imported as %s", node.Name, name)
}
