// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package controlflow implements conditional (If) and loop (While) operations for the symbolic graph.
//
// Each control-flow operation is registered in a parent graph.Graph and holds nested sub-graphs: a predicate
// graph, evaluated to a boolean "target" variable, and the body graphs (true and false bodies for If, a
// single loop body for While). All sub-graphs are registered in the parent's named sub-function registry,
// so they can be looked up again by a later pass.
//
// Operations are created in one of two ways:
//
//   - Explicitly, with NewIf or NewWhile, given the function definitions of the predicate and the bodies.
//   - By importing the TensorFlow lowering of a loop or conditional (Enter, Merge, LoopCond, Switch, Identity,
//     NextIteration and Exit nodes), with If.DoImport or While.DoImport.
//
// Execution is delegated to an Evaluator (see If.Execute and While.Execute), which records the branch taken
// or the number of iterations. Differentiation (DoDiff) creates a derivative operation (IfDerivative,
// WhileDerivative) that borrows the sub-graphs of the forward operation.
package controlflow

import (
	"github.com/gomlx/controlflow/pkg/core/graph"
	"github.com/gomlx/controlflow/pkg/core/shapes"
	"github.com/gomlx/controlflow/pkg/importers/graphdef"
	"github.com/gomlx/controlflow/pkg/ml/initializer"
	"github.com/gomlx/controlflow/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Canonical names of the control-flow operations and their derivatives.
const (
	IfName              = "if"
	WhileName           = "while"
	IfDerivativeName    = "if_bp"
	WhileDerivativeName = "while_bp"
)

var (
	// ErrNotExecuted is returned when execution state (branch taken, number of iterations) is required
	// before the operation was executed.
	ErrNotExecuted = errors.New("control-flow operation not executed yet")

	// ErrMaxIterations is returned by While.Execute when the loop exceeds its maximum number of iterations.
	ErrMaxIterations = errors.New("maximum number of iterations exceeded")

	// ErrNoPredicate is returned when executing an operation without a predicate target variable.
	ErrNoPredicate = errors.New("control-flow operation has no predicate target")
)

func init() {
	graph.RegisterOp(IfName, func() graph.Op { return &If{} })
	graph.RegisterOp(WhileName, func() graph.Op { return &While{} })
	graph.RegisterOp(IfDerivativeName, func() graph.Op { return &IfDerivative{} })
	graph.RegisterOp(WhileDerivativeName, func() graph.Op { return &WhileDerivative{} })
}

// BranchTaken records which branch of an If was executed last.
type BranchTaken int

const (
	// BranchUnknown is the state before execution.
	BranchUnknown BranchTaken = iota
	BranchTrue
	BranchFalse
)

// String implements fmt.Stringer.
func (b BranchTaken) String() string {
	switch b {
	case BranchUnknown:
		return "unknown"
	case BranchTrue:
		return "true"
	case BranchFalse:
		return "false"
	default:
		return "BranchTaken(?)"
	}
}

// UnknownIterations is returned by While.NumLooped before the loop is executed.
const UnknownIterations = -1

// Conditional is the predicate-evaluation strategy: it builds, in g, the computation of the boolean
// target variable from the condition body and the inputs.
type Conditional interface {
	Eval(g *graph.Graph, conditionBody graph.FunctionDefinition, inputs []*graph.Variable) *graph.Variable
}

// ConditionalFunc adapts a function to a Conditional.
type ConditionalFunc func(g *graph.Graph, conditionBody graph.FunctionDefinition, inputs []*graph.Variable) *graph.Variable

// Eval implements Conditional.
func (fn ConditionalFunc) Eval(g *graph.Graph, conditionBody graph.FunctionDefinition, inputs []*graph.Variable) *graph.Variable {
	return fn(g, conditionBody, inputs)
}

// DefaultConditional declares the inputs in g, calls the condition body and takes its first output as the target.
var DefaultConditional Conditional = ConditionalFunc(
	func(g *graph.Graph, conditionBody graph.FunctionDefinition, inputs []*graph.Variable) *graph.Variable {
		if conditionBody == nil {
			exceptions.Panicf("predicate of graph %q has no condition body", g.Name())
		}
		outputs := conditionBody(g, xslices.Map(inputs, g.VarFrom))
		if len(outputs) == 0 || outputs[0] == nil {
			exceptions.Panicf("condition body of graph %q returned no target variable", g.Name())
		}
		return outputs[0]
	})

// Evaluator executes graphs: it's the external executor of the sub-graphs of control-flow operations.
type Evaluator interface {
	// Run executes all operations of g.
	Run(g *graph.Graph) error

	// EvaluateBool executes what is needed in g to compute the boolean variable v, and returns its value.
	EvaluateBool(g *graph.Graph, v *graph.Variable) (bool, error)
}

// dummyShape is the shape of the placeholder output of explicitly constructed operations.
func dummyShape() shapes.Shape { return shapes.Make(dtypes.Float32, 1, 1) }

// block holds what is common to If and While: inputs, outputs and the predicate.
type block struct {
	graph.BaseOp

	blockName  string
	inputVars  []*graph.Variable
	outputVars []*graph.Variable

	predicate          Conditional
	conditionBody      graph.FunctionDefinition
	predicateExecution *graph.Graph
	predicateName      string
	targetBoolean      *graph.Variable
}

// BlockName is the unique identifier given to the operation instance.
func (b *block) BlockName() string { return b.blockName }

// InputVars returns the input variables, in order.
func (b *block) InputVars() []*graph.Variable { return b.inputVars }

// OutputVars returns the output variables: the placeholder for explicitly constructed operations, the loop
// exits for imported ones.
func (b *block) OutputVars() []*graph.Variable { return b.outputVars }

// SetOutputVars replaces the output variables.
func (b *block) SetOutputVars(outputs []*graph.Variable) { b.outputVars = outputs }

// Predicate returns the predicate-evaluation strategy, nil for imported operations.
func (b *block) Predicate() Conditional { return b.predicate }

// ConditionBody returns the function definition of the condition, nil for imported operations.
func (b *block) ConditionBody() graph.FunctionDefinition { return b.conditionBody }

// PredicateExecution returns the predicate sub-graph.
func (b *block) PredicateExecution() *graph.Graph { return b.predicateExecution }

// PredicateName returns the name of the predicate sub-graph in the parent's sub-function registry.
func (b *block) PredicateName() string { return b.predicateName }

// TargetBoolean returns the boolean variable of the predicate sub-graph.
func (b *block) TargetBoolean() *graph.Variable { return b.targetBoolean }

// OpType implements graph.Op.
func (b *block) OpType() graph.OpType { return graph.OpTypeConditional }

// CalculateOutputShape implements graph.OutputShapeCalculator.
func (b *block) CalculateOutputShape() []shapes.Shape { return []shapes.Shape{dummyShape()} }

// InitFromONNX implements graphdef.ONNXInitializer: ONNX import of control-flow is not supported, and
// it does nothing.
func (b *block) InitFromONNX(_ *graphdef.NodeDef, _ *graphdef.GraphDef) error { return nil }

// construct is the part of the explicit construction shared by If and While: it registers op in
// parent with the inputs as arguments and a new placeholder as output, and builds the predicate sub-graph.
// op must be the operation embedding b.
func (b *block) construct(op graph.Op, kind, blockName string, parent *graph.Graph, inputs []*graph.Variable,
	conditionBody graph.FunctionDefinition, predicate Conditional) {
	if parent == nil {
		exceptions.Panicf("%s requires a parent graph", kind)
	}
	for ii, input := range inputs {
		if input == nil {
			exceptions.Panicf("%s: input #%d is nil", kind, ii)
		}
	}
	if predicate == nil {
		predicate = DefaultConditional
	}
	if blockName == "" {
		blockName = parent.GenerateName(kind)
	}
	b.SetGraph(parent)
	parent.PutFunctionForId(op)
	b.blockName = blockName
	b.inputVars = xslices.Map(inputs, parent.VarFrom)
	b.predicate = predicate
	b.conditionBody = conditionBody
	parent.AddArgsFor(b.inputVars, op)

	dummyResult := parent.Var(parent.GenerateName("dummyresult"), dummyShape(), initializer.Zero)
	parent.AddOutgoingFor([]*graph.Variable{dummyResult}, op)
	b.outputVars = []*graph.Variable{dummyResult}

	b.predicateName = parent.GenerateName("predicate-eval-body")
	predicateGraph := graph.New(b.predicateName)
	b.targetBoolean = predicate.Eval(predicateGraph, conditionBody, b.inputVars)
	if b.targetBoolean == nil {
		exceptions.Panicf("%s %q: predicate returned no target variable", kind, blockName)
	}
	predicateGraph.SetOutputs(b.targetBoolean)
	b.predicateExecution = predicateGraph
}

// evaluatePredicate returns the value of the target boolean.
func (b *block) evaluatePredicate(ev Evaluator) (bool, error) {
	if b.predicateExecution == nil || b.targetBoolean == nil {
		return false, errors.Wrapf(ErrNoPredicate, "%q", b.blockName)
	}
	value, err := ev.EvaluateBool(b.predicateExecution, b.targetBoolean)
	if err != nil {
		return false, errors.WithMessagef(err, "while evaluating predicate of %q", b.blockName)
	}
	return value, nil
}

// registerDerivative registers the derivative op in the graph of the forward operation: its arguments are the
// forward outputs and the incoming gradients, and its outputs one gradient per forward input.
func registerDerivative(derivative graph.Op, forwardGraph *graph.Graph, forwardOutputs, forwardInputs,
	gradients []*graph.Variable) {
	if forwardGraph == nil {
		exceptions.Panicf("%s: forward operation is not bound to a graph", derivative.OpName())
	}
	derivative.SetGraph(forwardGraph)
	args := append(xslices.Copy(forwardOutputs), xslices.Filter(gradients, func(v *graph.Variable) bool { return v != nil })...)
	forwardGraph.AddArgsFor(args, derivative)
	outputs := xslices.Map(forwardInputs, func(input *graph.Variable) *graph.Variable {
		return forwardGraph.Var(forwardGraph.GenerateName(input.Name()+"-grad"), input.Shape(), initializer.Zero)
	})
	forwardGraph.AddOutgoingFor(outputs, derivative)
}
