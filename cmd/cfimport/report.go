// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/controlflow/pkg/core/controlflow"
	"github.com/gomlx/controlflow/pkg/core/graph"
)

// graphStats are the counts over a graph and all its sub-functions, recursively.
type graphStats struct {
	numGraphs, numOps, numVars int
	numIfs, numWhiles          int
}

func collectStats(g *graph.Graph) (stats graphStats) {
	walkGraphs(g, func(g *graph.Graph) {
		stats.numGraphs++
		stats.numVars += len(g.Variables())
		for _, op := range g.Ops() {
			stats.numOps++
			switch op.(type) {
			case *controlflow.If:
				stats.numIfs++
			case *controlflow.While:
				stats.numWhiles++
			}
		}
	})
	return
}

// walkGraphs calls fn on g and then on each of its sub-functions, depth-first, in name order.
func walkGraphs(g *graph.Graph, fn func(g *graph.Graph)) {
	fn(g)
	for _, name := range g.SubFunctionNames() {
		walkGraphs(g.GetFunction(name), fn)
	}
}

func varNames(vars []*graph.Variable) string {
	names := make([]string, len(vars))
	for ii, v := range vars {
		names[ii] = v.Name()
	}
	return strings.Join(names, ", ")
}

// Summary table of the imported graph.
func Summary(filePath string, g *graph.Graph) *lgtable.Table {
	stats := collectStats(g)
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Row("file", filePath)
	table.Row("graph", g.Name())
	table.Row("# graphs", humanize.Comma(int64(stats.numGraphs)))
	table.Row("# operations", humanize.Comma(int64(stats.numOps)))
	table.Row("# variables", humanize.Comma(int64(stats.numVars)))
	table.Row("# loops", humanize.Comma(int64(stats.numWhiles)))
	table.Row("# conditionals", humanize.Comma(int64(stats.numIfs)))
	return table
}

// OpsTable lists the operations of g, in order of registration.
func OpsTable(g *graph.Graph) *lgtable.Table {
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Headers("#", "Operation", "Type", "Arguments", "Outputs")
	for ii, op := range g.Ops() {
		table.Row(humanize.Comma(int64(ii)), op.OpName(), op.OpType().String(),
			varNames(g.ArgsFor(op)), varNames(g.OutputsFor(op)))
	}
	return table
}

// VariablesTable lists the variables of g, in order of declaration.
func VariablesTable(g *graph.Graph) *lgtable.Table {
	table := newPlainTable(lipgloss.Left, lipgloss.Left, lipgloss.Right, lipgloss.Left)
	table.Headers("Name", "Shape", "Size", "Initializer")
	for _, v := range g.Variables() {
		size := "?"
		if v.Shape().Ok() {
			size = humanize.Comma(int64(v.Shape().Size()))
		}
		initName := v.Initializer().Name()
		if value, ok := v.Literal(); ok {
			initName = fmt.Sprintf("literal(%g)", value)
		}
		table.Row(v.Name(), v.Shape().String(), size, initName)
	}
	return table
}

// SubFunctionsTable lists the sub-functions of all graphs, by path.
func SubFunctionsTable(g *graph.Graph) *lgtable.Table {
	table := newPlainTable(lipgloss.Left, lipgloss.Right)
	table.Headers("Path", "# Operations", "# Variables")
	walkGraphs(g, func(sub *graph.Graph) {
		if sub == g {
			return
		}
		table.Row(sub.Path(), humanize.Comma(int64(len(sub.Ops()))), humanize.Comma(int64(len(sub.Variables()))))
	})
	return table
}

// ControlFlowTable lists the loops and conditionals of all graphs.
func ControlFlowTable(g *graph.Graph) *lgtable.Table {
	table := newPlainTable(lipgloss.Left)
	table.Headers("Graph", "Kind", "Block", "Inputs", "Outputs", "Target", "Bodies")
	walkGraphs(g, func(sub *graph.Graph) {
		for _, op := range sub.Ops() {
			var bodies []string
			switch cf := op.(type) {
			case *controlflow.If:
				bodies = []string{cf.TrueBodyName(), cf.FalseBodyName()}
			case *controlflow.While:
				bodies = []string{cf.LoopBodyName()}
			default:
				continue
			}
			row := controlFlowRow(op)
			table.Row(sub.Path(), op.OpName(), row.BlockName(), varNames(row.InputVars()), varNames(row.OutputVars()),
				targetName(row.TargetBoolean()), strings.Join(bodies, ", "))
		}
	})
	return table
}

// controlFlowAccessors is implemented by both If and While.
type controlFlowAccessors interface {
	BlockName() string
	InputVars() []*graph.Variable
	OutputVars() []*graph.Variable
	TargetBoolean() *graph.Variable
}

func controlFlowRow(op graph.Op) controlFlowAccessors { return op.(controlFlowAccessors) }

func targetName(v *graph.Variable) string {
	if v == nil {
		return "-"
	}
	return v.Name()
}
