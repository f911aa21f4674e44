// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package controlflow

import (
	"github.com/gomlx/controlflow/pkg/core/graph"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// IfDerivative is the backward operation of an If. It borrows the forward operation: every accessor
// returns the forward operation's values (same sub-graphs, not copies).
//
// It's created by If.DoDiff and registered in the forward operation's graph, with the forward outputs and
// the incoming gradients as arguments, and one gradient placeholder per forward input as outputs.
type IfDerivative struct {
	graph.BaseOp
	forward *If
}

var _ graph.Op = (*IfDerivative)(nil)

func newIfDerivative(forward *If, gradients []*graph.Variable) *IfDerivative {
	d := &IfDerivative{forward: forward}
	registerDerivative(d, forward.Graph(), forward.OutputVariables(), forward.InputVars(), gradients)
	return d
}

// Forward returns the forward operation.
func (d *IfDerivative) Forward() *If { return d.forward }

// OpName implements graph.Op.
func (d *IfDerivative) OpName() string { return IfDerivativeName }

// OpType implements graph.Op.
func (d *IfDerivative) OpType() graph.OpType { return graph.OpTypeConditional }

// String implements fmt.Stringer.
func (d *IfDerivative) String() string { return IfDerivativeName }

// DoDiff implements graph.Op. Higher order derivatives of control-flow are not supported, and it panics.
func (d *IfDerivative) DoDiff(_ []*graph.Variable) []*graph.Variable {
	exceptions.Panicf("%s: higher order derivatives of control-flow operations are not supported", IfDerivativeName)
	return nil
}

// BlockName returns the block name of the forward operation.
func (d *IfDerivative) BlockName() string { return d.forward.BlockName() }

// InputVars returns the input variables of the forward operation.
func (d *IfDerivative) InputVars() []*graph.Variable { return d.forward.InputVars() }

// Predicate returns the predicate-evaluation strategy of the forward operation.
func (d *IfDerivative) Predicate() Conditional { return d.forward.Predicate() }

// PredicateExecution returns the condition sub-graph of the forward operation.
func (d *IfDerivative) PredicateExecution() *graph.Graph { return d.forward.PredicateExecution() }

// TargetBoolean returns the boolean target variable of the forward operation.
func (d *IfDerivative) TargetBoolean() *graph.Variable { return d.forward.TargetBoolean() }

// TrueBody returns the true-branch definition of the forward operation.
func (d *IfDerivative) TrueBody() graph.FunctionDefinition { return d.forward.TrueBody() }

// FalseBody returns the false-branch definition of the forward operation.
func (d *IfDerivative) FalseBody() graph.FunctionDefinition { return d.forward.FalseBody() }

// TrueBodyName returns the name of the forward true-branch sub-graph.
func (d *IfDerivative) TrueBodyName() string { return d.forward.TrueBodyName() }

// FalseBodyName returns the name of the forward false-branch sub-graph.
func (d *IfDerivative) FalseBodyName() string { return d.forward.FalseBodyName() }

// TrueBodyExecution returns the forward true-branch sub-graph.
func (d *IfDerivative) TrueBodyExecution() *graph.Graph { return d.forward.TrueBodyExecution() }

// FalseBodyExecution returns the forward false-branch sub-graph.
func (d *IfDerivative) FalseBodyExecution() *graph.Graph { return d.forward.FalseBodyExecution() }

// TrueBodyExecuted returns which branch the forward operation executed last.
func (d *IfDerivative) TrueBodyExecuted() BranchTaken { return d.forward.TrueBodyExecuted() }

// ExecutedBody returns the body sub-graph of the branch that was executed, the one the backward pass
// descends into. It returns nil if the forward operation was not executed yet.
func (d *IfDerivative) ExecutedBody() *graph.Graph {
	switch d.forward.TrueBodyExecuted() {
	case BranchTrue:
		return d.forward.TrueBodyExecution()
	case BranchFalse:
		return d.forward.FalseBodyExecution()
	default:
		return nil
	}
}

// WhileDerivative is the backward operation of a While. It borrows the forward operation: every accessor
// returns the forward operation's values, including the number of iterations, so the backward pass unrolls
// the body the same number of times, in reverse order.
type WhileDerivative struct {
	graph.BaseOp
	forward *While
}

var _ graph.Op = (*WhileDerivative)(nil)

func newWhileDerivative(forward *While, gradients []*graph.Variable) *WhileDerivative {
	d := &WhileDerivative{forward: forward}
	registerDerivative(d, forward.Graph(), forward.OutputVariables(), forward.InputVars(), gradients)
	return d
}

// Forward returns the forward operation.
func (d *WhileDerivative) Forward() *While { return d.forward }

// OpName implements graph.Op.
func (d *WhileDerivative) OpName() string { return WhileDerivativeName }

// OpType implements graph.Op.
func (d *WhileDerivative) OpType() graph.OpType { return graph.OpTypeConditional }

// String implements fmt.Stringer.
func (d *WhileDerivative) String() string { return WhileDerivativeName }

// DoDiff implements graph.Op. Higher order derivatives of control-flow are not supported, and it panics.
func (d *WhileDerivative) DoDiff(_ []*graph.Variable) []*graph.Variable {
	exceptions.Panicf("%s: higher order derivatives of control-flow operations are not supported", WhileDerivativeName)
	return nil
}

// BlockName returns the block name of the forward operation.
func (d *WhileDerivative) BlockName() string { return d.forward.BlockName() }

// InputVars returns the input variables of the forward operation.
func (d *WhileDerivative) InputVars() []*graph.Variable { return d.forward.InputVars() }

// Predicate returns the predicate-evaluation strategy of the forward operation.
func (d *WhileDerivative) Predicate() Conditional { return d.forward.Predicate() }

// PredicateExecution returns the condition sub-graph of the forward operation.
func (d *WhileDerivative) PredicateExecution() *graph.Graph { return d.forward.PredicateExecution() }

// TargetBoolean returns the boolean target variable of the forward operation.
func (d *WhileDerivative) TargetBoolean() *graph.Variable { return d.forward.TargetBoolean() }

// LoopBody returns the loop body definition of the forward operation.
func (d *WhileDerivative) LoopBody() graph.FunctionDefinition { return d.forward.LoopBody() }

// LoopBodyName returns the name of the forward loop body sub-graph.
func (d *WhileDerivative) LoopBodyName() string { return d.forward.LoopBodyName() }

// LoopBodyExecution returns the forward loop body sub-graph.
func (d *WhileDerivative) LoopBodyExecution() *graph.Graph { return d.forward.LoopBodyExecution() }

// NumLooped returns the number of iterations of the forward loop, or UnknownIterations if it was not executed.
func (d *WhileDerivative) NumLooped() int { return d.forward.NumLooped() }

// BackwardSteps returns the indices of the forward iterations in the order the backward pass replays them:
// from the last iteration to the first. It returns an error wrapping ErrNotExecuted if the forward loop was
// not executed yet.
func (d *WhileDerivative) BackwardSteps() ([]int, error) {
	numLooped := d.forward.NumLooped()
	if numLooped == UnknownIterations {
		return nil, errors.Wrapf(ErrNotExecuted, "while %q", d.forward.BlockName())
	}
	steps := make([]int, numLooped)
	for ii := range steps {
		steps[ii] = numLooped - 1 - ii
	}
	return steps, nil
}
