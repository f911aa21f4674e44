// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package controlflow

import (
	"github.com/gomlx/controlflow/pkg/core/graph"
	"github.com/gomlx/controlflow/pkg/importers/graphdef"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// If is a conditional operation: it runs one of two bodies (true or false) depending on a predicate.
//
// It has three sub-graphs, all registered in the parent graph's sub-function registry: the predicate
// (PredicateExecution), the true body (TrueBodyExecution) and the false body (FalseBodyExecution).
// The forward pass has no real output: explicitly constructed operations output a placeholder variable,
// the real output comes from whichever branch executed.
type If struct {
	block

	trueBody, falseBody                   graph.FunctionDefinition
	trueBodyName, falseBodyName           string
	trueBodyExecution, falseBodyExecution *graph.Graph

	trueBodyExecuted BranchTaken
	derivative       *IfDerivative
}

var (
	_ graph.Op                       = (*If)(nil)
	_ graph.TensorflowMapped         = (*If)(nil)
	_ graph.ONNXMapped               = (*If)(nil)
	_ graph.OutputShapeCalculator    = (*If)(nil)
	_ graphdef.TensorflowInitializer = (*If)(nil)
	_ graphdef.ONNXInitializer       = (*If)(nil)
)

// IfConfig holds the definitions of an If operation, see NewIf.
type IfConfig struct {
	// BlockName uniquely identifies the operation. If empty a unique name is generated.
	BlockName string

	// Parent graph where the operation is registered.
	Parent *graph.Graph

	// InputVars are the inputs of the predicate and of both bodies, in order.
	InputVars []*graph.Variable

	// ConditionBody builds the condition from the inputs, evaluated by Predicate.
	ConditionBody graph.FunctionDefinition

	// Predicate evaluation strategy. Defaults to DefaultConditional.
	Predicate Conditional

	// TrueBody and FalseBody build the two branches.
	TrueBody, FalseBody graph.FunctionDefinition
}

// NewIf creates an If operation in config.Parent.
//
// It registers itself in the parent with the inputs as arguments and a new placeholder variable
// ("dummyresult-<uuid>") as its sole output. It then builds the predicate sub-graph, and the true and
// false bodies as sub-functions of the parent, each seeded with the same inputs. No execution happens:
// TrueBodyExecuted is BranchUnknown.
func NewIf(config IfConfig) *If {
	op := &If{}
	op.construct(op, IfName, config.BlockName, config.Parent, config.InputVars, config.ConditionBody, config.Predicate)
	parent := config.Parent
	op.trueBody = config.TrueBody
	op.falseBody = config.FalseBody
	op.trueBodyName = parent.GenerateName("true-body")
	op.falseBodyName = parent.GenerateName("false-body")
	op.trueBodyExecution = parent.DefineFunction(op.trueBodyName, config.TrueBody, op.inputVars)
	op.falseBodyExecution = parent.DefineFunction(op.falseBodyName, config.FalseBody, op.inputVars)
	parent.DefineFunction(op.blockName, config.ConditionBody, op.inputVars)
	parent.PutSubFunction(op.predicateName, op.predicateExecution)
	klog.V(1).Infof("if %q: created in graph %q with %d inputs", op.blockName, parent.Path(), len(op.inputVars))
	return op
}

// OpName implements graph.Op.
func (op *If) OpName() string { return IfName }

// TensorflowName implements graph.TensorflowMapped.
func (op *If) TensorflowName() string { return "Cond" }

// ONNXName implements graph.ONNXMapped: there is no ONNX counterpart.
func (op *If) ONNXName() (string, error) {
	return "", errors.Wrapf(graph.ErrNoONNXName, "operation %q", IfName)
}

// String implements fmt.Stringer.
func (op *If) String() string { return IfName }

// TrueBody returns the definition of the true branch, nil for imported operations.
func (op *If) TrueBody() graph.FunctionDefinition { return op.trueBody }

// FalseBody returns the definition of the false branch, nil for imported operations.
func (op *If) FalseBody() graph.FunctionDefinition { return op.falseBody }

// TrueBodyName is the name of the true body in the parent's sub-function registry.
func (op *If) TrueBodyName() string { return op.trueBodyName }

// FalseBodyName is the name of the false body in the parent's sub-function registry.
func (op *If) FalseBodyName() string { return op.falseBodyName }

// TrueBodyExecution returns the true body sub-graph.
func (op *If) TrueBodyExecution() *graph.Graph { return op.trueBodyExecution }

// FalseBodyExecution returns the false body sub-graph.
func (op *If) FalseBodyExecution() *graph.Graph { return op.falseBodyExecution }

// TrueBodyExecuted returns which branch was executed last, BranchUnknown before execution.
func (op *If) TrueBodyExecuted() BranchTaken { return op.trueBodyExecuted }

// RecordBranch records which branch was executed. Once set it never goes back to BranchUnknown.
func (op *If) RecordBranch(trueBodyExecuted bool) {
	if trueBodyExecuted {
		op.trueBodyExecuted = BranchTrue
	} else {
		op.trueBodyExecuted = BranchFalse
	}
}

// Derivative returns the derivative operation created by DoDiff, or nil if DoDiff was not called yet.
func (op *If) Derivative() *IfDerivative { return op.derivative }

// DoDiff implements graph.Op: it returns the outputs of the derivative operation, one gradient per input.
// The derivative is created on the first call and reused afterwards.
func (op *If) DoDiff(gradients []*graph.Variable) []*graph.Variable {
	if op.derivative == nil {
		op.derivative = newIfDerivative(op, gradients)
	}
	return op.derivative.OutputVariables()
}

// Execute evaluates the predicate, runs exactly one of the bodies and records which one.
func (op *If) Execute(ev Evaluator) error {
	taken, err := op.evaluatePredicate(ev)
	if err != nil {
		return err
	}
	body := op.falseBodyExecution
	if taken {
		body = op.trueBodyExecution
	}
	if body == nil {
		return errors.Errorf("if %q: no body for branch %v", op.blockName, taken)
	}
	if err := ev.Run(body); err != nil {
		return errors.WithMessagef(err, "if %q: while running body %q", op.blockName, body.Name())
	}
	op.RecordBranch(taken)
	return nil
}

// InitFromTensorFlow implements graphdef.TensorflowInitializer: it imports the conditional starting at node,
// see DoImport. The operation must be bound to its parent graph (SetGraph) beforehand.
func (op *If) InitFromTensorFlow(node *graphdef.NodeDef, gd *graphdef.GraphDef) error {
	parent := op.Graph()
	if parent == nil {
		return errors.Errorf("if: operation must be bound to a graph before importing node %q", node.Name)
	}
	idx := gd.IndexOf(node.Name)
	if idx < 0 {
		return errors.Errorf("if: node %q not found in graph", node.Name)
	}
	cursor := graphdef.NewCursor(gd)
	cursor.Seek(idx)
	return exceptions.TryCatch[error](func() { op.DoImport(parent, cursor) })
}

// DoImport reconstructs the operation from the TensorFlow lowering of a conditional, starting at the cursor
// position (the first Enter node). The cursor is shared: on return it is positioned past the Exit nodes,
// and every consumed node is in its skip set.
//
// The predicate and the true body are built into new sub-graphs registered in parent as
// "condition-<id>" and "truebody-<id>". The false body ("falsebody-<id>") is registered empty.
//
// It panics (with an error wrapping graph.ErrUnrecognizedOp) if a node has no registered operator.
func (op *If) DoImport(parent *graph.Graph, cursor *graphdef.Cursor) {
	op.SetGraph(parent)
	l := newLoopImport(IfName, parent, cursor, "truebody-", true, func() importable { return &If{} })
	l.run(op)
	op.blockName = l.frameName
	op.inputVars = l.inputVars
	op.outputVars = l.outputVars
	op.predicateExecution = l.condition
	op.predicateName = l.conditionName
	op.targetBoolean = l.targetBoolean
	op.trueBodyName, op.trueBodyExecution = l.bodyName, l.body
	op.falseBodyName, op.falseBodyExecution = l.falseBodyName, l.falseBody
}
