// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphdef

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/controlflow/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const whileYAML = `
format: tensorflow
nodes:
  - {name: x, op: Placeholder, attr: {dtype: {type: DT_FLOAT}, shape: {shape: [2]}}}
  - {name: enter, op: Enter, inputs: [x]}
  - {name: m, op: Merge, inputs: [enter, n]}
  - {name: c, op: Const, attr: {dtype: {type: DT_FLOAT}, value: {value: 10}}}
  - {name: cond, op: LoopCond, inputs: [m]}
  - {name: s, op: Switch, inputs: ["m:0", cond]}
  - {name: i, op: Identity, inputs: ["s:1"]}
  - {name: body_op, op: Add, inputs: [i, c, "^cond"]}
  - {name: n, op: NextIteration, inputs: [body_op]}
  - {name: e, op: Exit, inputs: [s]}
`

func TestParse(t *testing.T) {
	gd, err := Parse(strings.NewReader(whileYAML))
	require.NoError(t, err)
	require.Len(t, gd.Nodes, 10)
	assert.Equal(t, FormatTensorflow, gd.EffectiveFormat())
	assert.Equal(t, 3, gd.IndexOf("c"))
	assert.Equal(t, -1, gd.IndexOf("missing"))

	x := gd.Nodes[0]
	assert.True(t, x.IsVariableLike())
	assert.True(t, x.Shape().Equal(shapes.Make(dtypes.Float32, 2)))

	c := gd.Nodes[3]
	value, ok := c.Literal()
	require.True(t, ok)
	assert.Equal(t, 10.0, value)
	assert.True(t, c.Shape().IsScalar())

	bodyOp := gd.Nodes[7]
	assert.Equal(t, []string{"i", "c"}, bodyOp.InputNames())
	assert.False(t, bodyOp.IsVariableLike())
	_, ok = bodyOp.Literal()
	assert.False(t, ok)
	assert.False(t, bodyOp.Shape().Ok())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("format: protobuf\nnodes: []\n"))
	assert.Error(t, err)
	_, err = Parse(strings.NewReader("nodes:\n  - {op: Add}\n"))
	assert.Error(t, err)
	_, err = Parse(strings.NewReader("nodes:\n  - {name: a}\n"))
	assert.Error(t, err)
	_, err = Parse(strings.NewReader("nodes:\n  - {name: a, op: Add, unknown: 1}\n"))
	assert.Error(t, err)

	gd, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, gd.Nodes)
}

func TestLoad(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "while.yaml")
	require.NoError(t, os.WriteFile(filePath, []byte(whileYAML), 0o644))
	gd, err := Load(filePath)
	require.NoError(t, err)
	assert.Len(t, gd.Nodes, 10)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}

func TestNodeName(t *testing.T) {
	assert.Equal(t, "s", NodeName("s:1"))
	assert.Equal(t, "cond", NodeName("^cond"))
	assert.Equal(t, "while/x", NodeName("while/x:0"))
	assert.Equal(t, "x", NodeName("x"))
}

func TestLiteralPrecision(t *testing.T) {
	literal := func(dtype string, value float64) float64 {
		node := &NodeDef{Name: "c", Op: OpConst, Attr: map[string]AttrValue{
			"dtype": {Type: dtype},
			"value": {Value: &value},
		}}
		got, ok := node.Literal()
		require.True(t, ok)
		return got
	}
	assert.Equal(t, 0.1, literal("DT_DOUBLE", 0.1))
	assert.Equal(t, 0.1, literal("", 0.1))
	assert.Equal(t, float64(float32(0.1)), literal("DT_FLOAT", 0.1))
	assert.Equal(t, 1.0, literal("DT_HALF", 1.0001))
	assert.Equal(t, 1.0, literal("DT_BFLOAT16", 1.001))
	assert.Equal(t, 10.0, literal("DT_BFLOAT16", 10))
	assert.Equal(t, dtypes.BFloat16, DTypeFromTF("dt_bfloat16"))
}

func TestOpTags(t *testing.T) {
	node := &NodeDef{Name: "e", Op: "enter"}
	assert.True(t, node.IsEnter())
	assert.False(t, node.IsExit())
	assert.True(t, (&NodeDef{Op: "LOOPCOND"}).IsLoopCond())
	assert.True(t, (&NodeDef{Op: "VariableV2"}).IsVariableLike())
	assert.True(t, (&NodeDef{Op: "PlaceholderWithDefault"}).IsVariableLike())
	assert.True(t, (&NodeDef{Op: "const"}).IsVariableLike())
	assert.Equal(t, dtypes.InvalidDType, DTypeFromTF("DT_STRING"))
	assert.Equal(t, dtypes.Float64, DTypeFromTF("dt_double"))
}

func TestCursor(t *testing.T) {
	gd, err := Parse(strings.NewReader(whileYAML))
	require.NoError(t, err)
	cursor := NewCursor(gd)
	assert.Same(t, gd, cursor.GraphDef())
	assert.Equal(t, 0, cursor.Pos())
	assert.Equal(t, "x", cursor.Node().Name)

	assert.True(t, cursor.Skip("x"))
	assert.False(t, cursor.Skip("x"))
	assert.True(t, cursor.IsSkipped("x"))
	assert.False(t, cursor.IsSkipped("enter"))

	for !cursor.Done() {
		cursor.Skip(cursor.Node().Name)
		cursor.Advance()
	}
	assert.Equal(t, 10, cursor.Pos())
	assert.Nil(t, cursor.Node())
	assert.Len(t, cursor.Skipped(), 10)
	assert.Equal(t, "body_op", cursor.Skipped()[0])

	cursor.Seek(2)
	assert.Equal(t, "m", cursor.Node().Name)
}
