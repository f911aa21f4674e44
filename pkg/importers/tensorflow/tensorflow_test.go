// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensorflow_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/controlflow/pkg/core/controlflow"
	"github.com/gomlx/controlflow/pkg/core/graph"
	"github.com/gomlx/controlflow/pkg/core/ops"
	"github.com/gomlx/controlflow/pkg/core/shapes"
	"github.com/gomlx/controlflow/pkg/importers/graphdef"
	. "github.com/gomlx/controlflow/pkg/importers/tensorflow"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loopGraph = `
format: tensorflow
nodes:
  - {name: x, op: Placeholder, attr: {dtype: {type: DT_FLOAT}, shape: {shape: [2]}}}
  - {name: two, op: Const, attr: {value: {value: 2}}}
  - {name: scaled, op: Mul, inputs: [x, two]}
  - {name: enter, op: Enter, inputs: [scaled]}
  - {name: m, op: Merge, inputs: [enter, n]}
  - {name: c, op: Const, attr: {value: {value: 10}}}
  - {name: cond, op: LoopCond, inputs: [m]}
  - {name: s, op: Switch, inputs: [m, cond]}
  - {name: i, op: Identity, inputs: ["s:1"]}
  - {name: body_op, op: Add, inputs: [i, c]}
  - {name: n, op: NextIteration, inputs: [body_op]}
  - {name: e, op: Exit, inputs: [s]}
  - {name: result, op: Neg, inputs: [e]}
`

const conditionalGraph = `
nodes:
  - {name: x, op: Placeholder}
  - {name: enter, op: Enter, inputs: [x]}
  - {name: m, op: Merge, inputs: [enter]}
  - {name: cond, op: LoopCond, inputs: [m]}
  - {name: s, op: Switch, inputs: [m, cond]}
  - {name: i, op: Identity, inputs: ["s:1"]}
  - {name: e, op: Exit, inputs: [s]}
`

func parse(t *testing.T, text string) *graphdef.GraphDef {
	t.Helper()
	gd, err := graphdef.Parse(strings.NewReader(text))
	require.NoError(t, err)
	return gd
}

func TestImportLoop(t *testing.T) {
	g, err := Import(parse(t, loopGraph), WithGraphName("counter"))
	require.NoError(t, err)
	assert.Equal(t, "counter", g.Name())

	allOps := g.Ops()
	require.Len(t, allOps, 3)
	assert.Equal(t, ops.MultiplyName, allOps[0].OpName())
	assert.Equal(t, controlflow.WhileName, allOps[1].OpName())
	assert.Equal(t, ops.NegativeName, allOps[2].OpName())

	// Shapes are inferred where the arguments are known.
	scaled := g.GetVariable("scaled")
	require.NotNil(t, scaled)
	assert.True(t, scaled.Shape().Equal(shapes.Make(dtypes.Float32, 2)))
	two, ok := g.GetVariable("two").Literal()
	require.True(t, ok)
	assert.Equal(t, 2.0, two)

	loop := allOps[1].(*controlflow.While)
	assert.Equal(t, []string{"e"}, []string{loop.OutputVars()[0].Name()})
	assert.Equal(t, "e", allOps[2].Args()[0].Name())
	assert.Len(t, g.SubFunctionNames(), 2)
	assert.True(t, loop.LoopBodyExecution().HasVariable("body_op"))
	assert.Same(t, g.GetFunction(loop.PredicateName()), loop.PredicateExecution())
}

func TestImportConditional(t *testing.T) {
	g, err := Import(parse(t, conditionalGraph))
	require.NoError(t, err)
	assert.Equal(t, DefaultGraphName, g.Name())
	require.Len(t, g.Ops(), 1)
	cond, ok := g.Ops()[0].(*controlflow.If)
	require.True(t, ok)
	assert.Equal(t, "e", cond.OutputVars()[0].Name())
	require.Len(t, cond.InputVars(), 1)
	assert.Equal(t, "x", cond.InputVars()[0].Name())
	assert.True(t, cond.TrueBodyExecution().HasVariable("i"))
	assert.Len(t, g.SubFunctionNames(), 3)
	assert.True(t, g.HasVariable("x"))
}

func TestIsLoop(t *testing.T) {
	assert.True(t, IsLoop(parse(t, loopGraph), 3))
	assert.False(t, IsLoop(parse(t, conditionalGraph), 1))
	assert.False(t, IsLoop(parse(t, "nodes: [{name: a, op: Enter}]"), 0))
}

func TestImportLateConstant(t *testing.T) {
	g, err := Import(parse(t, `
nodes:
  - {name: x, op: Placeholder}
  - {name: y, op: Add, inputs: [x, k]}
  - {name: k, op: Const, attr: {value: {value: 5}}}
`))
	require.NoError(t, err)
	k := g.GetVariable("k")
	require.NotNil(t, k)
	assert.Same(t, k, g.Ops()[0].Args()[1])
	value, ok := k.Literal()
	require.True(t, ok)
	assert.Equal(t, 5.0, value)
	assert.True(t, k.Shape().IsScalar())
}

func TestImportUnknownOp(t *testing.T) {
	text := `
nodes:
  - {name: x, op: Placeholder}
  - {name: y, op: FancyOp, inputs: [x]}
  - {name: z, op: Neg, inputs: [y]}
`
	_, err := Import(parse(t, text))
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrUnrecognizedOp)
	assert.Contains(t, err.Error(), "node #1")

	g, err := Import(parse(t, text), WithStrict(false))
	require.NoError(t, err)
	assert.True(t, g.HasVariable("y"))
	require.Len(t, g.Ops(), 1)
	assert.Equal(t, ops.NegativeName, g.Ops()[0].OpName())
}

func TestImportErrors(t *testing.T) {
	_, err := Import(nil)
	assert.Error(t, err)

	_, err = Import(parse(t, "nodes: [{name: w, op: While}]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")

	// Wrong number of inputs.
	_, err = Import(parse(t, "nodes: [{name: a, op: Add, inputs: [x]}]"))
	assert.Error(t, err)
}

func TestImportONNX(t *testing.T) {
	g, err := Import(parse(t, "format: onnx\nnodes: [{name: a, op: Add}]\n"))
	require.NoError(t, err)
	assert.Empty(t, g.Ops())
	assert.Empty(t, g.Variables())
}

func TestImportFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "loop.yaml")
	require.NoError(t, os.WriteFile(filePath, []byte(loopGraph), 0o644))
	g, err := ImportFile(filePath)
	require.NoError(t, err)
	assert.Len(t, g.Ops(), 3)

	_, err = ImportFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
