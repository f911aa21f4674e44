// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// cfimport imports a TensorFlow graph, given as a YAML list of nodes, and reports what was created:
// operations, variables, sub-functions and control-flow operations (loops and conditionals).
//
// Usage:
//
//	cfimport [-ops] [-vars] [-subfunctions] [-controlflow] [-strict=false] <graph.yaml>
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/controlflow/pkg/core/graph"
	"github.com/gomlx/controlflow/pkg/importers/tensorflow"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagName    = flag.String("name", tensorflow.DefaultGraphName, "Name of the imported graph.")
	flagStrict  = flag.Bool("strict", true, "Fail on nodes without a registered operator. If false they are skipped with a warning.")
	flagSummary = flag.Bool("summary", true, "Display a summary of the imported graph.")
	flagOps     = flag.Bool("ops", false, "Lists the operations of the main graph.")
	flagVars    = flag.Bool("vars", false, "Lists the variables of the main graph.")
	flagSubFns  = flag.Bool("subfunctions", false, "Lists the sub-functions (sub-graphs) of all graphs, recursively.")
	flagCF      = flag.Bool("controlflow", false, "Lists the control-flow operations of all graphs, recursively.")
)

var titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		klog.Errorf("Missing graph file to import. See 'cfimport -help'")
		os.Exit(1)
	}
	if len(args) > 1 {
		klog.Errorf("Too many arguments. See 'cfimport -help'.")
		os.Exit(1)
	}
	g := must.M1(tensorflow.ImportFile(args[0],
		tensorflow.WithGraphName(*flagName), tensorflow.WithStrict(*flagStrict)))
	report(args[0], g)
}

func report(filePath string, g *graph.Graph) {
	if *flagSummary {
		fmt.Println(titleStyle.Render("Summary"))
		fmt.Println(Summary(filePath, g).Render())
	}
	if *flagOps {
		fmt.Println(titleStyle.Render("Operations"))
		fmt.Println(OpsTable(g).Render())
	}
	if *flagVars {
		fmt.Println(titleStyle.Render("Variables"))
		fmt.Println(VariablesTable(g).Render())
	}
	if *flagSubFns {
		fmt.Println(titleStyle.Render("Sub-Functions"))
		fmt.Println(SubFunctionsTable(g).Render())
	}
	if *flagCF {
		fmt.Println(titleStyle.Render("Control-Flow"))
		fmt.Println(ControlFlowTable(g).Render())
	}
}
