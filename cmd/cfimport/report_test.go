// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"
	"testing"

	"github.com/gomlx/controlflow/pkg/core/graph"
	"github.com/gomlx/controlflow/pkg/importers/graphdef"
	"github.com/gomlx/controlflow/pkg/importers/tensorflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nestedGraph = `
nodes:
  - {name: x, op: Placeholder}
  - {name: enter1, op: Enter, inputs: [x]}
  - {name: m1, op: Merge, inputs: [enter1, n1]}
  - {name: cond1, op: LoopCond, inputs: [m1]}
  - {name: s1, op: Switch, inputs: [m1, cond1]}
  - {name: i1, op: Identity, inputs: ["s1:1"]}
  - {name: enter2, op: Enter, inputs: [i1]}
  - {name: m2, op: Merge, inputs: [enter2, n2]}
  - {name: cond2, op: LoopCond, inputs: [m2]}
  - {name: s2, op: Switch, inputs: [m2, cond2]}
  - {name: i2, op: Identity, inputs: ["s2:1"]}
  - {name: inner_op, op: Add, inputs: [i2, i2]}
  - {name: n2, op: NextIteration, inputs: [inner_op]}
  - {name: e2, op: Exit, inputs: [s2]}
  - {name: outer_op, op: Add, inputs: [e2, i1]}
  - {name: n1, op: NextIteration, inputs: [outer_op]}
  - {name: e1, op: Exit, inputs: [s1]}
  - {name: result, op: Neg, inputs: [e1]}
`

func importNested(t *testing.T) *graph.Graph {
	t.Helper()
	gd, err := graphdef.Parse(strings.NewReader(nestedGraph))
	require.NoError(t, err)
	g, err := tensorflow.Import(gd)
	require.NoError(t, err)
	return g
}

func TestCollectStats(t *testing.T) {
	g := importNested(t)
	stats := collectStats(g)
	// main, the outer condition and body, and the inner condition and body.
	assert.Equal(t, 5, stats.numGraphs)
	assert.Equal(t, 2, stats.numWhiles)
	assert.Equal(t, 0, stats.numIfs)
	// main: while, neg; outer body: identity, while, add; inner body: identity, add.
	assert.Equal(t, 7, stats.numOps)

	var paths []string
	walkGraphs(g, func(sub *graph.Graph) { paths = append(paths, sub.Path()) })
	require.Len(t, paths, 5)
	assert.Equal(t, "main", paths[0])
}

func TestTables(t *testing.T) {
	g := importNested(t)
	summary := Summary("nested.yaml", g).Render()
	assert.Contains(t, summary, "nested.yaml")
	assert.Contains(t, summary, "# loops")

	assert.Contains(t, OpsTable(g).Render(), "negative")
	assert.Contains(t, VariablesTable(g).Render(), "e1")
	assert.Contains(t, SubFunctionsTable(g).Render(), "loopbody-")
	cf := ControlFlowTable(g).Render()
	assert.Contains(t, cf, "enter1")
	assert.Contains(t, cf, "enter2")
}
