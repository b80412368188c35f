package main

import (
	"os"

	"github.com/cs-au-dk/jstar/analysis/absint"
	"github.com/cs-au-dk/jstar/analysis/cfg"
)

// taskCfgToDot emits the lowered flow graph on stdout in dot format.
func taskCfgToDot(fg *cfg.FlowGraph) error {
	return fg.WriteDot(os.Stdout)
}

// taskCallGraphToDot emits the discovered call graph on stdout in dot
// format.
func taskCallGraphToDot(solver *absint.Solver, full bool) error {
	return solver.CallGraph().WriteDot(os.Stdout, full)
}
