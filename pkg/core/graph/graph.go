// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph holds the symbolic computation graph used by the control-flow operations.
//
// The main elements in the package are:
//
//   - Graph: an addressable computation graph, with its own variables, operations and the adjacency
//     of each operation to its argument and output variables. A Graph can be nested inside a parent
//     Graph as a named sub-function (see Graph.PutSubFunction and Graph.DefineFunction), in which
//     case it keeps a back-reference to its parent, used for name resolution only.
//
//   - Variable: a named symbolic value declared in a Graph. The same logical variable may be declared
//     in several graphs (a parent and its sub-functions): they are reconciled by name, not identity.
//
//   - Op: an operation registered in a Graph. Operations are created through a registry of
//     factories keyed by their canonical name (see RegisterOp and NewOp), which also maps
//     external (TensorFlow, ONNX) operator names to the canonical ones.
//
// # Error Handling
//
// Graph building methods "throw" errors with panic(), with the exceptions.Panicf function, with
// meaningful messages and the full stack-trace. Public entry points that deal with external inputs
// (importers, command line tools) convert them back to errors with exceptions.TryCatch.
package graph

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/controlflow/pkg/core/shapes"
	"github.com/gomlx/controlflow/pkg/ml/initializer"
	"github.com/gomlx/controlflow/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// GraphId is globally unique.
type GraphId int

var (
	muGraphCount sync.Mutex
	graphCount   GraphId
)

// Graph holds variables, operations and nested sub-functions (other graphs) of a computation.
//
// It is not safe for concurrent use: graph construction and import are sequential.
type Graph struct {
	id     GraphId
	name   string
	parent *Graph

	variables map[string]*Variable
	varNames  []string

	ops   map[string]Op
	opIds []string

	// args and outputs map an operation instance id to the names of its argument/output variables.
	args, outputs map[string][]string

	subFunctions map[string]*Graph

	// inputNames and outputNames are set when the graph is used as a function, see DefineFunction.
	inputNames, outputNames []string
}

// New creates an empty Graph with the given name.
func New(name string) *Graph {
	muGraphCount.Lock()
	defer muGraphCount.Unlock()
	g := &Graph{
		id:           graphCount,
		name:         name,
		variables:    make(map[string]*Variable),
		ops:          make(map[string]Op),
		args:         make(map[string][]string),
		outputs:      make(map[string][]string),
		subFunctions: make(map[string]*Graph),
	}
	graphCount++
	return g
}

// GraphId is a unique id (within the process) of the graph.
func (g *Graph) GraphId() GraphId { return g.id }

// Name of the graph. For sub-functions, it's the name it was registered with.
func (g *Graph) Name() string { return g.name }

// Parent returns the graph where this graph is registered as a sub-function, or nil for a root graph.
//
// The parent owns the sub-function, the back-reference is only used for name resolution.
func (g *Graph) Parent() *Graph { return g.parent }

// Path returns the names of the graph and its parents, starting from the root, separated by "/".
func (g *Graph) Path() string {
	var parts []string
	for current := g; current != nil; current = current.parent {
		parts = append(parts, current.name)
	}
	slices.Reverse(parts)
	return strings.Join(parts, "/")
}

// GenerateName returns a name unique to the process, prefixed by prefix.
func (g *Graph) GenerateName(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// PutFunctionForId registers the operation in the graph under its instance id.
//
// Registering the same operation twice is a no-op, but a different operation with the same id panics.
func (g *Graph) PutFunctionForId(op Op) {
	id := op.InstanceId()
	if current, found := g.ops[id]; found {
		if current != op {
			exceptions.Panicf("graph %q: instance id %q already registered for a different operation (%s)",
				g.name, id, current.OpName())
		}
		return
	}
	g.ops[id] = op
	g.opIds = append(g.opIds, id)
}

// OpById returns the operation registered with the given instance id, or nil.
func (g *Graph) OpById(id string) Op { return g.ops[id] }

// Ops returns the operations registered in the graph, in order of registration.
func (g *Graph) Ops() []Op {
	return xslices.Map(g.opIds, func(id string) Op { return g.ops[id] })
}

// AddArgsFor records vars as arguments of op in this graph.
//
// The operation is registered in the graph (see PutFunctionForId) and variables not yet declared in the
// graph are declared by name (see VarFrom).
func (g *Graph) AddArgsFor(vars []*Variable, op Op) {
	g.addEdges(g.args, vars, op)
}

// AddOutgoingFor records vars as outputs of op in this graph.
//
// The operation is registered in the graph (see PutFunctionForId) and variables not yet declared in the
// graph are declared by name (see VarFrom).
func (g *Graph) AddOutgoingFor(vars []*Variable, op Op) {
	g.addEdges(g.outputs, vars, op)
}

func (g *Graph) addEdges(edges map[string][]string, vars []*Variable, op Op) {
	g.PutFunctionForId(op)
	id := op.InstanceId()
	for _, v := range vars {
		if v == nil {
			exceptions.Panicf("graph %q: nil variable given as edge of operation %s", g.name, op.OpName())
		}
		edges[id] = append(edges[id], g.VarFrom(v).name)
	}
	if binder, ok := op.(edgeBinder); ok {
		binder.bindEdges(g)
	}
}

// ArgsFor returns the argument variables of op in this graph.
func (g *Graph) ArgsFor(op Op) []*Variable {
	return g.argsForId(op.InstanceId())
}

// OutputsFor returns the output variables of op in this graph.
func (g *Graph) OutputsFor(op Op) []*Variable {
	return g.outputsForId(op.InstanceId())
}

func (g *Graph) argsForId(id string) []*Variable {
	return xslices.Map(g.args[id], g.GetVariable)
}

func (g *Graph) outputsForId(id string) []*Variable {
	return xslices.Map(g.outputs[id], g.GetVariable)
}

// FunctionDefinition builds the body of a sub-function: it is given the new graph and the inputs, already
// declared in it, and returns the outputs of the function.
type FunctionDefinition func(g *Graph, inputs []*Variable) []*Variable

// PutSubFunction registers sub as a named sub-function of g. The sub-function parent is set to g.
//
// Registering the same graph twice under the same name is a no-op, a different graph panics.
func (g *Graph) PutSubFunction(name string, sub *Graph) {
	if current, found := g.subFunctions[name]; found {
		if current != sub {
			exceptions.Panicf("graph %q: sub-function %q already registered", g.name, name)
		}
		return
	}
	if sub == g {
		exceptions.Panicf("graph %q: cannot register itself as a sub-function", g.name)
	}
	sub.parent = g
	g.subFunctions[name] = sub
	klog.V(2).Infof("graph %q: registered sub-function %q", g.Path(), name)
}

// DefineFunction creates a new graph registered as the sub-function name of g, declares the inputs in it
// (by name) and calls def to build its body. The outputs returned by def are recorded as the function outputs.
//
// The definition may be nil, in which case only the inputs are declared.
func (g *Graph) DefineFunction(name string, def FunctionDefinition, inputs []*Variable) *Graph {
	sub := New(name)
	g.PutSubFunction(name, sub)
	subInputs := xslices.Map(inputs, sub.VarFrom)
	sub.inputNames = xslices.Map(subInputs, (*Variable).Name)
	if def != nil {
		sub.SetOutputs(def(sub, subInputs)...)
	}
	return sub
}

// GetFunction returns the sub-function registered under name, or nil if there is none.
func (g *Graph) GetFunction(name string) *Graph { return g.subFunctions[name] }

// SubFunctionNames returns the names of the registered sub-functions, sorted.
func (g *Graph) SubFunctionNames() []string { return xslices.SortedKeys(g.subFunctions) }

// Inputs returns the inputs of the graph when used as a function.
func (g *Graph) Inputs() []*Variable { return xslices.Map(g.inputNames, g.GetVariable) }

// Outputs returns the outputs of the graph when used as a function.
func (g *Graph) Outputs() []*Variable { return xslices.Map(g.outputNames, g.GetVariable) }

// SetOutputs records the outputs of the graph when used as a function. The variables are declared (by name)
// in the graph if they are not yet.
func (g *Graph) SetOutputs(outputs ...*Variable) {
	g.outputNames = xslices.Map(outputs, func(v *Variable) string { return g.VarFrom(v).name })
}

// Var declares a variable with the given name, shape and initializer. The shape may be shapes.Invalid()
// if not known yet, and a nil initializer defaults to initializer.Zero.
//
// If a variable with the same name is already declared, it is returned instead: only a previously unset
// shape is filled in. A conflicting shape panics.
func (g *Graph) Var(name string, shape shapes.Shape, init initializer.Initializer) *Variable {
	if name == "" {
		exceptions.Panicf("graph %q: cannot declare a variable with an empty name", g.name)
	}
	if v, found := g.variables[name]; found {
		if shape.Ok() {
			v.SetShape(shape)
		}
		return v
	}
	if init == nil {
		init = initializer.Zero
	}
	v := &Variable{name: name, graph: g, shape: shape.Clone(), initializer: init}
	g.variables[name] = v
	g.varNames = append(g.varNames, name)
	return v
}

// VarWithValue declares a scalar float64 variable holding the literal value.
//
// If the name is already declared, the existing variable is returned: if it has no literal value yet
// (e.g. it was created by a consumer before its constant was seen) it takes this one, and an unset shape
// becomes scalar. An existing literal value is never replaced.
func (g *Graph) VarWithValue(name string, value float64) *Variable {
	if v, found := g.variables[name]; found {
		if v.literal == nil {
			if !v.shape.Ok() {
				v.shape = shapes.Scalar(dtypes.Float64)
			}
			v.literal = &value
			v.initializer = initializer.Constant(value)
		}
		return v
	}
	v := g.Var(name, shapes.Scalar(dtypes.Float64), initializer.Constant(value))
	v.literal = &value
	return v
}

// VarFrom declares in g the same logical variable as v: same name, shape, initializer and literal value.
// If g already has a variable with that name, it is returned, and only its shape is filled in, if it was unset.
func (g *Graph) VarFrom(v *Variable) *Variable {
	if v.graph == g {
		return v
	}
	if current, found := g.variables[v.name]; found {
		if v.shape.Ok() && !current.shape.Ok() {
			current.shape = v.shape.Clone()
		}
		return current
	}
	mirrored := g.Var(v.name, v.shape, v.initializer)
	if v.literal != nil {
		value := *v.literal
		mirrored.literal = &value
	}
	return mirrored
}

// GetVariable returns the variable declared with name, or nil.
func (g *Graph) GetVariable(name string) *Variable { return g.variables[name] }

// HasVariable returns whether a variable with name is declared in the graph.
func (g *Graph) HasVariable(name string) bool {
	_, found := g.variables[name]
	return found
}

// Variables returns the variables declared in the graph, in order of declaration.
func (g *Graph) Variables() []*Variable {
	return xslices.Map(g.varNames, g.GetVariable)
}

// PutShapeForVarName sets the shape of the variable declared as name. It panics if the variable
// is not declared or if it already has a different shape.
func (g *Graph) PutShapeForVarName(name string, shape shapes.Shape) {
	v := g.variables[name]
	if v == nil {
		exceptions.Panicf("graph %q: PutShapeForVarName(%q): variable not declared", g.name, name)
	}
	v.SetShape(shape)
}

// ShapeForVarName returns the shape of the variable declared as name. It returns shapes.Invalid() if
// the variable is not declared or its shape is not known yet.
func (g *Graph) ShapeForVarName(name string) shapes.Shape {
	v := g.variables[name]
	if v == nil {
		return shapes.Invalid()
	}
	return v.shape
}

// String converts the Graph to a multiline string with its variables, operations and sub-functions.
func (g *Graph) String() string {
	if g == nil {
		return "Graph(nil)!?"
	}
	parts := []string{
		fmt.Sprintf("Graph %q: %d variables, %d ops, %d sub-functions",
			g.Path(), len(g.varNames), len(g.opIds), len(g.subFunctions)),
	}
	for _, v := range g.Variables() {
		parts = append(parts, fmt.Sprintf("\tvar %s", v))
	}
	for ii, op := range g.Ops() {
		argNames := g.args[op.InstanceId()]
		outNames := g.outputs[op.InstanceId()]
		parts = append(parts, fmt.Sprintf("\t#%d\t%s(%s) -> (%s)", ii, op.OpName(),
			strings.Join(argNames, ", "), strings.Join(outNames, ", ")))
	}
	for _, name := range g.SubFunctionNames() {
		parts = append(parts, fmt.Sprintf("\tfunc %s", name))
	}
	return strings.Join(parts, "\n")
}
