package main

import (
	"time"

	"github.com/cs-au-dk/jstar/analysis/absint"
	"github.com/cs-au-dk/jstar/analysis/cfg"

	log "github.com/sirupsen/logrus"
)

// pipeline wraps the stages between a lowered flow graph and a solved
// analysis.
type pipeline struct {
	conf    *Config
	fg      *cfg.FlowGraph
	elapsed time.Duration
}

func newPipeline(conf *Config, fg *cfg.FlowGraph) *pipeline {
	return &pipeline{conf: conf, fg: fg}
}

// solve runs the abstract interpretation to a fixpoint.
func (p *pipeline) solve() (*absint.Solver, error) {
	policy, err := p.conf.policy()
	if err != nil {
		return nil, err
	}
	log.WithField("policy", policy.String()).Info("solving")

	solver := absint.NewSolver(p.fg, absint.Config{
		Policy:      policy,
		MaxSteps:    p.conf.MaxSteps,
		HostGlobals: p.conf.HostGlobals,
	})
	start := time.Now()
	err = solver.Solve()
	p.elapsed = time.Since(start)
	if err != nil {
		return nil, err
	}
	return solver, nil
}
