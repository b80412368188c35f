// Package absint implements the fixpoint solver: a worklist-driven
// abstract interpreter computing, for every reachable control location,
// an over-approximation of the memory states that occur there, together
// with the context-sensitive call graph discovered along the way.
package absint

import (
	"github.com/cs-au-dk/jstar/analysis/cfg"
	"github.com/cs-au-dk/jstar/analysis/defs"
	"github.com/cs-au-dk/jstar/analysis/lattice"
	"github.com/cs-au-dk/jstar/analysis/monitoring"
	"github.com/cs-au-dk/jstar/analysis/nativeobjects"
	"github.com/cs-au-dk/jstar/utils/pq"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/yourbasic/graph"
)

// Status describes the lifecycle of a solver.
type Status int

const (
	// Idle: created, Solve not yet called.
	Idle Status = iota
	// Running: inside Solve.
	Running
	// Fixpoint: Solve completed; the analysis result is a fixpoint.
	Fixpoint
	// Failed: Solve aborted; the analysis result is unusable.
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Fixpoint:
		return "fixpoint"
	case Failed:
		return "failed"
	}
	return "?"
}

// A Synchronizer observes the solver between atomic steps. Single
// stepping and interactive front-ends hook in here; callbacks run on
// the solving goroutine and must not mutate analysis state.
type Synchronizer interface {
	// OnStep is called before each worklist step with the location
	// about to be processed and the number of the step.
	OnStep(cl defs.CtrLoc, step int)
}

// Config carries the solver parameters.
type Config struct {
	// Policy decides context sensitivity. Defaults to 1-callsite.
	Policy ContextPolicy
	// Monitor receives diagnostics. Defaults to a fresh monitor.
	Monitor monitoring.Monitor
	// Sync, when set, is pinged between atomic solver steps.
	Sync Synchronizer
	// HostGlobals names opaque host objects (such as "document") seeded
	// onto the global object. Their properties are unknown values.
	HostGlobals []string
	// MaxSteps aborts runs that exceed the given number of worklist
	// steps. Zero means no limit; the lattice is finite, so the solver
	// terminates regardless.
	MaxSteps int
}

// A Solver drives one analysis of one flow graph to a fixpoint.
type Solver struct {
	fg      *cfg.FlowGraph
	session *lattice.Session
	policy  ContextPolicy
	monitor monitoring.Monitor
	sync    Synchronizer
	hosts   []string

	analysis   *lattice.Analysis
	callGraph  *lattice.CallGraph
	callStates map[lattice.CallEdge]*lattice.State
	evals      *EvalCache
	globals    *nativeobjects.Globals

	worklist pq.PriorityQueue[defs.CtrLoc]
	funPrio  map[*cfg.Function]int

	status         Status
	steps          int
	maxSteps       int
	reprioritizeAt int
}

func NewSolver(fg *cfg.FlowGraph, conf Config) *Solver {
	if conf.Policy == nil {
		conf.Policy = CallStringPolicy(1)
	}
	if conf.Monitor == nil {
		conf.Monitor = monitoring.NewMonitor()
	}
	session := lattice.NewSession()
	s := &Solver{
		fg:             fg,
		session:        session,
		policy:         conf.Policy,
		monitor:        conf.Monitor,
		sync:           conf.Sync,
		hosts:          conf.HostGlobals,
		analysis:       lattice.NewAnalysis(session),
		callGraph:      lattice.NewCallGraph(),
		callStates:     map[lattice.CallEdge]*lattice.State{},
		evals:          NewEvalCache(fg),
		funPrio:        map[*cfg.Function]int{},
		maxSteps:       conf.MaxSteps,
		reprioritizeAt: 256,
	}
	s.worklist = pq.Empty(s.lessCtrLoc)
	return s
}

func (s *Solver) Status() Status                  { return s.status }
func (s *Solver) Monitor() monitoring.Monitor     { return s.monitor }
func (s *Solver) Analysis() *lattice.Analysis     { return s.analysis }
func (s *Solver) CallGraph() *lattice.CallGraph   { return s.callGraph }
func (s *Solver) Messages() []monitoring.Message  { return s.monitor.Messages() }
func (s *Solver) Steps() int                      { return s.steps }
func (s *Solver) EvalCacheStats() (int, int)      { return s.evals.Stats() }

// InitialContext returns the context the program entry runs under.
func (s *Solver) InitialContext() defs.Context { return s.policy.Initial() }

// MainExitState returns the state at the ordinary exit of the top-level
// code, or nil if it is unreachable.
func (s *Solver) MainExitState() *lattice.State {
	st, _ := s.analysis.GetOk(defs.MakeCtrLoc(s.fg.Main().Exit(), s.policy.Initial()))
	return st
}

// lessCtrLoc orders the worklist: functions in call graph dependency
// order first, blocks of one function in reverse post-order.
func (s *Solver) lessCtrLoc(a, b defs.CtrLoc) bool {
	fa, fb := a.Block().Function(), b.Block().Function()
	if pa, pb := s.funPrio[fa], s.funPrio[fb]; pa != pb {
		return pa < pb
	}
	if fa != fb {
		return fa.Index() < fb.Index()
	}
	return a.Block().Order() < b.Block().Order()
}

// Solve runs the worklist algorithm to a fixpoint. Internal failures
// are recovered into an error and the Failed status instead of
// crashing the caller.
func (s *Solver) Solve() (err error) {
	if s.status != Idle {
		return errors.Errorf("solver in status %s, cannot solve again", s.status)
	}
	defer func() {
		if r := recover(); r != nil {
			s.status = Failed
			if rerr, ok := r.(error); ok {
				err = errors.Wrap(rerr, "solver panicked")
				return
			}
			err = errors.Errorf("solver panicked: %v", r)
		}
	}()
	s.status = Running

	initState, globals := buildInitialState(s.session, s.fg, s.hosts)
	s.globals = globals
	entry := defs.MakeCtrLoc(s.fg.Main().Entry(), s.policy.Initial())
	s.analysis.Propagate(entry, initState)
	s.enqueue(entry)

	for !s.worklist.IsEmpty() {
		s.steps++
		if s.maxSteps > 0 && s.steps > s.maxSteps {
			s.status = Failed
			return errors.Errorf("analysis aborted after %d steps", s.maxSteps)
		}
		if s.steps == s.reprioritizeAt {
			s.reprioritize()
			// Reprioritizing at an exponentially decaying rate keeps
			// its cost negligible while late call graph discoveries
			// still improve the processing order.
			s.reprioritizeAt *= 2
		}
		cl := s.worklist.GetNext()
		if s.sync != nil {
			s.sync.OnStep(cl, s.steps)
		}
		s.process(cl)
	}

	s.status = Fixpoint
	hits, misses := s.evals.Stats()
	s.monitor.RecordStatistics(monitoring.Statistics{
		Steps:           s.steps,
		Locations:       s.analysis.Size(),
		CallEdges:       s.callGraph.Size(),
		EvalCacheHits:   hits,
		EvalCacheMisses: misses,
	})
	log.WithFields(log.Fields{
		"steps":     s.steps,
		"locations": s.analysis.Size(),
		"edges":     s.callGraph.Size(),
	}).Info("analysis reached fixpoint")
	return nil
}

func (s *Solver) enqueue(cl defs.CtrLoc) {
	s.worklist.Add(cl)
}

// propagate joins a state into a location and schedules it when it
// changed.
func (s *Solver) propagate(cl defs.CtrLoc, state *lattice.State) {
	if s.analysis.Propagate(cl, state) {
		s.enqueue(cl)
	}
}

// process transfers one block under one context.
func (s *Solver) process(cl defs.CtrLoc) {
	st, ok := s.analysis.GetOk(cl)
	if !ok {
		return
	}
	block := cl.Block()
	log.WithField("loc", cl.String()).Trace("processing")

	if block.IsExit() || block.IsExcExit() {
		if !block.Function().IsMain() {
			s.transferReturn(cl, st)
		}
		return
	}

	state := st.Clone()
	for _, n := range block.Nodes() {
		switch n := n.(type) {
		case *cfg.CallNode:
			s.transferCall(cl, state, n)
			return
		case *cfg.IfNode:
			s.transferBranch(cl, state, n)
			return
		default:
			if !s.transferNode(cl, state, n) {
				return
			}
		}
	}
	for _, succ := range block.Succs() {
		s.propagate(cl.Derive(succ), state)
	}
}

// transferBranch restricts the condition register on each branch and
// prunes infeasible successors.
func (s *Solver) transferBranch(cl defs.CtrLoc, state *lattice.State, n *cfg.IfNode) {
	succs := cl.Block().Succs()
	if len(succs) != 2 {
		panic(errors.Errorf("branch block %s has %d successors", cl.Block(), len(succs)))
	}
	cond := state.GetRegister(n.Cond)

	if truthy := cond.RestrictToTruthy(); !truthy.IsNone() {
		tstate := state.Clone()
		tstate.SetRegister(n.Cond, truthy)
		s.propagate(cl.Derive(succs[0]), tstate)
	}
	if falsy := cond.RestrictToFalsy(); !falsy.IsNone() {
		fstate := state.Clone()
		fstate.SetRegister(n.Cond, falsy)
		s.propagate(cl.Derive(succs[1]), fstate)
	}
}

// reprioritize recomputes function priorities from the strongly
// connected components of the current call graph, so callees are
// processed before their callers, and rebuilds the worklist heap.
func (s *Solver) reprioritize() {
	funs := s.fg.Functions()
	g := graph.New(len(funs))
	s.callGraph.ForEachEdge(func(e lattice.CallEdge) {
		caller := e.Site.Function()
		if caller == nil {
			return
		}
		g.Add(caller.Index(), e.Callee.Index())
	})
	for i, comp := range graph.StrongComponents(g) {
		for _, v := range comp {
			s.funPrio[funs[v]] = i
		}
	}
	s.worklist.Rebuild()
	log.WithField("steps", s.steps).Debug("worklist reprioritized")
}
