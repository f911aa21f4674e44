// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package controlflow

import (
	"github.com/gomlx/controlflow/pkg/core/graph"
	"github.com/gomlx/controlflow/pkg/importers/graphdef"
	"github.com/gomlx/controlflow/pkg/ml/initializer"
	"github.com/gomlx/controlflow/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// importable is implemented by If and While.
type importable interface {
	graph.Op
	DoImport(parent *graph.Graph, cursor *graphdef.Cursor)
}

// loopImport reconstructs a control-flow operation from the TensorFlow lowering of loops and conditionals.
//
// The nodes are scanned once, left to right, by phases. Each phase consumes the contiguous run of nodes of
// its structural role and stops, without consuming it, at the first node that doesn't match:
//
//	entries -> merges -> predicate -> switches -> identities -> body -> nextIterations -> exits
//
// Every consumed node name is added to the cursor's skip set, and nodes already in it are never processed
// again. The cursor is shared with the caller and with nested imports.
type loopImport struct {
	kind   string
	parent *graph.Graph
	cursor *graphdef.Cursor

	// condition is the predicate scope, body the true (or loop) body.
	condition, body, falseBody            *graph.Graph
	conditionName, bodyName, falseBodyName string

	// frameName is the name of the loop frame, from the first Enter node.
	frameName string

	inputVars, outputVars []*graph.Variable
	targetBoolean         *graph.Variable

	// nested creates the operation for an Enter node found in the body.
	nested func() importable
}

// newLoopImport creates the sub-graphs and registers them in parent as "condition-<id>", bodyPrefix+"<id>"
// and, if withFalseBody, "falsebody-<id>".
func newLoopImport(kind string, parent *graph.Graph, cursor *graphdef.Cursor, bodyPrefix string, withFalseBody bool,
	nested func() importable) *loopImport {
	uniqueId := uuid.NewString()
	l := &loopImport{
		kind:          kind,
		parent:        parent,
		cursor:        cursor,
		conditionName: "condition-" + uniqueId,
		bodyName:      bodyPrefix + uniqueId,
		nested:        nested,
	}
	l.condition = graph.New(l.conditionName)
	l.body = graph.New(l.bodyName)
	parent.PutSubFunction(l.conditionName, l.condition)
	parent.PutSubFunction(l.bodyName, l.body)
	if withFalseBody {
		l.falseBodyName = "falsebody-" + uniqueId
		l.falseBody = graph.New(l.falseBodyName)
		parent.PutSubFunction(l.falseBodyName, l.falseBody)
	}
	return l
}

// run all phases, registering op in the parent graph.
func (l *loopImport) run(op graph.Op) {
	start := l.cursor.Pos()
	l.entries()
	l.merges()
	l.predicate()
	numSwitches := l.consume((*graphdef.NodeDef).IsSwitch, nil)
	l.identities()
	l.bodyNodes()
	l.nextIterations()
	l.parent.AddArgsFor(l.inputVars, op)
	l.exits()
	l.parent.AddOutgoingFor(l.outputVars, op)
	klog.V(1).Infof("%s %q imported from nodes #%d to #%d: %d inputs, %d outputs, %d switches",
		l.kind, l.frameName, start, l.cursor.Pos(), len(l.inputVars), len(l.outputVars), numSwitches)
}

// consume the run of nodes matching, calling fn on those not yet skipped. It returns the number of
// nodes consumed.
func (l *loopImport) consume(match func(node *graphdef.NodeDef) bool, fn func(node *graphdef.NodeDef)) int {
	var count int
	for ; !l.cursor.Done(); l.cursor.Advance() {
		node := l.cursor.Node()
		if !match(node) {
			break
		}
		count++
		if l.cursor.Skip(node.Name) && fn != nil {
			fn(node)
		}
	}
	return count
}

// entries consumes the Enter nodes: their inputs are the parent variables the loop reads, declared
// in the condition and the body.
func (l *loopImport) entries() {
	l.consume((*graphdef.NodeDef).IsEnter, func(node *graphdef.NodeDef) {
		if l.frameName == "" {
			l.frameName = node.Attr["frame_name"].S
			if l.frameName == "" {
				l.frameName = node.Name
			}
		}
		l.inputVars = xslices.Map(node.InputNames(), func(name string) *graph.Variable {
			v := graph.ResolveOrCreate(l.parent, name)
			graph.Mirror(v, l.condition, l.body)
			return v
		})
	})
}

// merges consumes the Merge nodes: each declares a body variable, also declared in the condition and in
// the parent. The first node after the merges is declared in the body too.
func (l *loopImport) merges() {
	l.consume((*graphdef.NodeDef).IsMerge, func(node *graphdef.NodeDef) {
		v := graph.ResolveOrCreate(l.body, node.Name)
		graph.Mirror(v, l.condition, l.parent)
	})
	if node := l.cursor.Node(); node != nil && !l.cursor.IsSkipped(node.Name) {
		graph.ResolveOrCreate(l.body, node.Name)
	}
}

// predicate consumes the nodes up to and including the LoopCond node, building the condition graph.
// Value nodes (constants, variables and placeholders) are declared in the condition, the body and the parent,
// so a body variable pre-declared by merges takes the node's value. Other nodes become operations of the
// condition graph. The input of LoopCond is the
// target boolean.
func (l *loopImport) predicate() {
	c := l.cursor
	for ; !c.Done(); c.Advance() {
		node := c.Node()
		if node.IsLoopCond() {
			if c.Skip(node.Name) {
				l.bindTarget(node)
			}
			c.Advance()
			return
		}
		if !c.Skip(node.Name) {
			continue
		}
		if node.IsVariableLike() {
			v := declareNode(l.condition, node)
			declareNode(l.body, node)
			declareNode(l.parent, node)
			klog.V(2).Infof("%s: adding condition variable %q", l.kind, v.Name())
			continue
		}
		l.conditionOp(node)
	}
	klog.Warningf("%s %q: no %s node found, the remaining nodes were consumed by the predicate",
		l.kind, l.frameName, graphdef.OpLoopCond)
}

// conditionOp builds the operation of a predicate node in the condition graph. Nodes without a registered
// operator only declare their output.
func (l *loopImport) conditionOp(node *graphdef.NodeDef) {
	out := graph.ResolveOrCreate(l.condition, node.Name)
	if !graph.HasTensorflowOp(node.Op) {
		klog.V(2).Infof("%s: predicate node %q (%s) has no registered operator, only its output is declared",
			l.kind, node.Name, node.Op)
		return
	}
	op := l.instantiate(node)
	op.SetGraph(l.condition)
	resolver := &graph.Resolver{
		Scopes:    []*graph.Graph{l.condition},
		Enclosing: l.parent,
		MirrorTo:  []*graph.Graph{l.condition},
		Fallback:  graph.FallbackCreate(l.condition),
	}
	l.condition.AddArgsFor(xslices.Map(node.InputNames(), resolver.Resolve), op)
	l.condition.AddOutgoingFor([]*graph.Variable{out}, op)
}

func (l *loopImport) bindTarget(node *graphdef.NodeDef) {
	targetName := node.Name
	if inputs := node.InputNames(); len(inputs) > 0 {
		targetName = inputs[0]
	}
	l.targetBoolean = graph.ResolveOrCreate(l.condition, targetName)
	l.condition.SetOutputs(l.targetBoolean)
}

// identities consumes the Identity nodes: each becomes an operation of the body, reading parent variables.
func (l *loopImport) identities() {
	l.consume((*graphdef.NodeDef).IsIdentity, func(node *graphdef.NodeDef) {
		op := l.instantiate(node)
		op.SetGraph(l.body)
		args := xslices.Map(node.InputNames(), func(name string) *graph.Variable {
			v := graph.ResolveOrCreate(l.parent, name)
			graph.Mirror(v, l.condition, l.body)
			return v
		})
		l.body.AddArgsFor(args, op)
		l.body.AddOutgoingFor([]*graph.Variable{graph.ResolveOrCreate(l.body, node.Name)}, op)
	})
}

// bodyNodes consumes the nodes up to the first NextIteration, or the first Exit for conditionals.
// A nested Enter starts the import of a nested operation, which consumes its own nodes on the same cursor:
// the scan resumes right where it stopped.
func (l *loopImport) bodyNodes() {
	c := l.cursor
	for !c.Done() {
		node := c.Node()
		if c.IsSkipped(node.Name) {
			klog.V(2).Infof("%s: skipping %q", l.kind, node.Name)
			c.Advance()
			continue
		}
		if node.IsNextIteration() || node.IsExit() {
			return
		}
		if node.IsEnter() {
			klog.V(1).Infof("%s %q: nested import starting at %q", l.kind, l.frameName, node.Name)
			nested := l.nested()
			nested.DoImport(l.body, c)
			continue
		}
		c.Skip(node.Name)
		if node.IsVariableLike() {
			v := declareNode(l.body, node)
			klog.V(2).Infof("%s: adding body variable %q", l.kind, v.Name())
		} else {
			l.bodyOp(node)
		}
		c.Advance()
	}
}

// bodyOp builds the operation of a body node. It is bound to the condition graph, while its edges are
// recorded in the body. Inputs are resolved in the condition, then the body, then the parent (mirrored into
// the condition), and unresolved inputs become scalar literals (1.0) in the body.
func (l *loopImport) bodyOp(node *graphdef.NodeDef) {
	klog.V(2).Infof("%s: starting on %q (%s)", l.kind, node.Name, node.Op)
	op := l.instantiate(node)
	op.SetGraph(l.condition)
	resolver := &graph.Resolver{
		Scopes:    []*graph.Graph{l.condition, l.body},
		Enclosing: l.parent,
		MirrorTo:  []*graph.Graph{l.condition},
		Fallback:  graph.FallbackScalarLiteral(l.body, 1.0),
	}
	l.body.AddArgsFor(xslices.Map(node.InputNames(), resolver.Resolve), op)
	l.body.AddOutgoingFor([]*graph.Variable{graph.ResolveOrCreate(l.body, node.Name)}, op)
}

// nextIterations consumes the NextIteration nodes: their parent variables replace the inputs of the
// operation. Without NextIteration nodes (conditionals) the inputs are those of the Enter nodes.
func (l *loopImport) nextIterations() {
	var returnInputs []*graph.Variable
	l.consume((*graphdef.NodeDef).IsNextIteration, func(node *graphdef.NodeDef) {
		returnInputs = append(returnInputs, graph.ResolveOrCreate(l.parent, node.Name))
	})
	if len(returnInputs) > 0 {
		l.inputVars = returnInputs
	}
}

// exits consumes the Exit nodes: their parent variables are the outputs of the operation.
func (l *loopImport) exits() {
	l.consume((*graphdef.NodeDef).IsExit, func(node *graphdef.NodeDef) {
		l.outputVars = append(l.outputVars, graph.ResolveOrCreate(l.parent, node.Name))
	})
}

// instantiate creates the registered operator for the node and initializes it.
// It panics with an error wrapping graph.ErrUnrecognizedOp if the node op has no registered operator.
func (l *loopImport) instantiate(node *graphdef.NodeDef) graph.Op {
	op := graph.NewOp(graph.MapTensorflowOp(node.Op))
	if tfInit, ok := op.(graphdef.TensorflowInitializer); ok {
		if err := tfInit.InitFromTensorFlow(node, l.cursor.GraphDef()); err != nil {
			panic(errors.WithMessagef(err, "failed to initialize operation from node %q", node.Name))
		}
	}
	return op
}

// declareNode declares the variable of a value node (constant, variable or placeholder) in g.
func declareNode(g *graph.Graph, node *graphdef.NodeDef) *graph.Variable {
	if value, ok := node.Literal(); ok {
		return g.VarWithValue(node.Name, value)
	}
	if node.Name == "" {
		exceptions.Panicf("cannot declare a variable for a node without name (op %q)", node.Op)
	}
	return g.Var(node.Name, node.Shape(), initializer.Zero)
}
