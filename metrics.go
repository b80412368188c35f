package main

import (
	"github.com/cs-au-dk/jstar/analysis/absint"
	"github.com/cs-au-dk/jstar/analysis/monitoring"
	"github.com/cs-au-dk/jstar/utils"
)

// reportMetrics prints solver statistics when running verbosely. The
// numbers come from the monitoring layer, which receives the run
// summary when solving completes.
func (p *pipeline) reportMetrics(solver *absint.Solver) {
	counts := map[monitoring.Severity]int{}
	for _, msg := range solver.Messages() {
		counts[msg.Severity]++
	}
	stats := solver.Monitor().Statistics()

	utils.VerbosePrint("\n================ Metrics ================\n")
	utils.VerbosePrint("Status:            %s\n", solver.Status())
	utils.VerbosePrint("Time:              %s\n", p.elapsed)
	utils.VerbosePrint("Worklist steps:    %d\n", stats.Steps)
	utils.VerbosePrint("Control locations: %d\n", stats.Locations)
	utils.VerbosePrint("Call edges:        %d\n", stats.CallEdges)
	if stats.EvalCacheHits+stats.EvalCacheMisses > 0 {
		utils.VerbosePrint("Eval cache:        %d hits, %d misses\n",
			stats.EvalCacheHits, stats.EvalCacheMisses)
	}
	utils.VerbosePrint("Messages:          %d high, %d medium, %d low\n",
		counts[monitoring.HIGH], counts[monitoring.MEDIUM], counts[monitoring.LOW])
}
