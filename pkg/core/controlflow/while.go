// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package controlflow

import (
	"github.com/gomlx/controlflow/pkg/core/graph"
	"github.com/gomlx/controlflow/pkg/importers/graphdef"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// While is a loop operation: it runs its body while the predicate holds.
//
// It has two sub-graphs, registered in the parent graph's sub-function registry: the predicate
// (PredicateExecution) and the loop body (LoopBodyExecution). The number of iterations is only known after
// execution (see NumLooped), and it's what the derivative uses to unroll the backward pass.
type While struct {
	block

	loopBody          graph.FunctionDefinition
	loopBodyName      string
	loopBodyExecution *graph.Graph

	numLooped     int
	looped        bool
	maxIterations int
	derivative    *WhileDerivative
}

var (
	_ graph.Op                       = (*While)(nil)
	_ graph.TensorflowMapped         = (*While)(nil)
	_ graph.ONNXMapped               = (*While)(nil)
	_ graph.OutputShapeCalculator    = (*While)(nil)
	_ graphdef.TensorflowInitializer = (*While)(nil)
	_ graphdef.ONNXInitializer       = (*While)(nil)
)

// WhileConfig holds the definitions of a While operation, see NewWhile.
type WhileConfig struct {
	// BlockName uniquely identifies the operation. If empty a unique name is generated.
	BlockName string

	// Parent graph where the operation is registered.
	Parent *graph.Graph

	// InputVars are the loop state, inputs of the predicate and of the body, in order.
	InputVars []*graph.Variable

	// ConditionBody builds the condition from the loop state, evaluated by Predicate.
	ConditionBody graph.FunctionDefinition

	// Predicate evaluation strategy. Defaults to DefaultConditional.
	Predicate Conditional

	// LoopBody builds the body of the loop.
	LoopBody graph.FunctionDefinition
}

// NewWhile creates a While operation in config.Parent.
//
// Like NewIf, it registers itself in the parent with the inputs as arguments and a placeholder output, and
// builds the predicate sub-graph and the loop body ("while-body-<uuid>") as sub-functions of the parent.
func NewWhile(config WhileConfig) *While {
	op := &While{}
	op.construct(op, WhileName, config.BlockName, config.Parent, config.InputVars, config.ConditionBody, config.Predicate)
	parent := config.Parent
	op.loopBody = config.LoopBody
	op.loopBodyName = parent.GenerateName("while-body")
	op.loopBodyExecution = parent.DefineFunction(op.loopBodyName, config.LoopBody, op.inputVars)
	parent.DefineFunction(op.blockName, config.ConditionBody, op.inputVars)
	parent.PutSubFunction(op.predicateName, op.predicateExecution)
	klog.V(1).Infof("while %q: created in graph %q with %d inputs", op.blockName, parent.Path(), len(op.inputVars))
	return op
}

// WithMaxIterations limits the number of iterations of Execute. A value <= 0 means no limit (the default).
func (op *While) WithMaxIterations(maxIterations int) *While {
	op.maxIterations = maxIterations
	return op
}

// MaxIterations returns the limit of iterations set with WithMaxIterations, 0 if none.
func (op *While) MaxIterations() int { return op.maxIterations }

// OpName implements graph.Op.
func (op *While) OpName() string { return WhileName }

// TensorflowName implements graph.TensorflowMapped.
func (op *While) TensorflowName() string { return "While" }

// ONNXName implements graph.ONNXMapped: there is no ONNX counterpart.
func (op *While) ONNXName() (string, error) {
	return "", errors.Wrapf(graph.ErrNoONNXName, "operation %q", WhileName)
}

// String implements fmt.Stringer.
func (op *While) String() string { return WhileName }

// LoopBody returns the definition of the loop body, nil for imported operations.
func (op *While) LoopBody() graph.FunctionDefinition { return op.loopBody }

// LoopBodyName is the name of the loop body in the parent's sub-function registry.
func (op *While) LoopBodyName() string { return op.loopBodyName }

// LoopBodyExecution returns the loop body sub-graph.
func (op *While) LoopBodyExecution() *graph.Graph { return op.loopBodyExecution }

// NumLooped returns the number of times the body was executed, or UnknownIterations before execution.
func (op *While) NumLooped() int {
	if !op.looped {
		return UnknownIterations
	}
	return op.numLooped
}

// SetNumLooped records the number of times the body was executed.
func (op *While) SetNumLooped(numLooped int) {
	if numLooped < 0 {
		exceptions.Panicf("while %q: invalid number of iterations %d", op.blockName, numLooped)
	}
	op.numLooped = numLooped
	op.looped = true
}

// Derivative returns the derivative operation created by DoDiff, or nil if DoDiff was not called yet.
func (op *While) Derivative() *WhileDerivative { return op.derivative }

// DoDiff implements graph.Op: it returns the outputs of the derivative operation, one gradient per input.
// The derivative is created on the first call and reused afterwards.
func (op *While) DoDiff(gradients []*graph.Variable) []*graph.Variable {
	if op.derivative == nil {
		op.derivative = newWhileDerivative(op, gradients)
	}
	return op.derivative.OutputVariables()
}

// Execute runs the body while the predicate holds, and records the number of iterations.
// It returns an error wrapping ErrMaxIterations if the limit set with WithMaxIterations is exceeded.
func (op *While) Execute(ev Evaluator) error {
	if op.loopBodyExecution == nil {
		return errors.Errorf("while %q: no loop body", op.blockName)
	}
	var numLooped int
	for {
		continueLoop, err := op.evaluatePredicate(ev)
		if err != nil {
			return err
		}
		if !continueLoop {
			break
		}
		if op.maxIterations > 0 && numLooped >= op.maxIterations {
			return errors.Wrapf(ErrMaxIterations, "while %q: limit of %d iterations", op.blockName, op.maxIterations)
		}
		if err := ev.Run(op.loopBodyExecution); err != nil {
			return errors.WithMessagef(err, "while %q: iteration #%d", op.blockName, numLooped)
		}
		numLooped++
	}
	klog.V(1).Infof("while %q: looped %d times", op.blockName, numLooped)
	op.SetNumLooped(numLooped)
	return nil
}

// InitFromTensorFlow implements graphdef.TensorflowInitializer: it imports the loop starting at node,
// see DoImport. The operation must be bound to its parent graph (SetGraph) beforehand.
func (op *While) InitFromTensorFlow(node *graphdef.NodeDef, gd *graphdef.GraphDef) error {
	parent := op.Graph()
	if parent == nil {
		return errors.Errorf("while: operation must be bound to a graph before importing node %q", node.Name)
	}
	idx := gd.IndexOf(node.Name)
	if idx < 0 {
		return errors.Errorf("while: node %q not found in graph", node.Name)
	}
	cursor := graphdef.NewCursor(gd)
	cursor.Seek(idx)
	return exceptions.TryCatch[error](func() { op.DoImport(parent, cursor) })
}

// DoImport reconstructs the loop from its TensorFlow lowering, starting at the cursor position (the first
// Enter node). It follows the same phases as If.DoImport, with the body registered as "loopbody-<id>".
func (op *While) DoImport(parent *graph.Graph, cursor *graphdef.Cursor) {
	op.SetGraph(parent)
	l := newLoopImport(WhileName, parent, cursor, "loopbody-", false, func() importable { return &While{} })
	l.run(op)
	op.blockName = l.frameName
	op.inputVars = l.inputVars
	op.outputVars = l.outputVars
	op.predicateExecution = l.condition
	op.predicateName = l.conditionName
	op.targetBoolean = l.targetBoolean
	op.loopBodyName, op.loopBodyExecution = l.bodyName, l.body
}
