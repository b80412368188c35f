package absint

import (
	"github.com/cs-au-dk/jstar/analysis/cfg"
	"github.com/cs-au-dk/jstar/analysis/defs"
	"github.com/cs-au-dk/jstar/analysis/lattice"
	"github.com/cs-au-dk/jstar/analysis/monitoring"
	"github.com/cs-au-dk/jstar/analysis/nativeobjects"
	"github.com/cs-au-dk/jstar/analysis/nativeobjects/concrete"

	log "github.com/sirupsen/logrus"
)

// transferCall processes a block-terminating call node: dispatches to
// native models, adds call edges for user functions, and flows the
// state into callee entries. Results of native calls flow directly to
// the after-call block; user function results arrive through return
// flow when callee exits are processed.
func (s *Solver) transferCall(cl defs.CtrLoc, state *lattice.State, call *cfg.CallNode) {
	funV := state.GetRegister(call.Fun)
	args := make([]lattice.Value, len(call.Args))
	for i, a := range call.Args {
		args[i] = state.GetRegister(a)
	}

	if funV.IsMaybePrimitive() {
		s.monitor.Report(call, monitoring.MEDIUM, "TypeError: callee may not be a function")
		s.maybeThrow(cl, state, call)
	}

	nativeResult := lattice.MakeNone()
	anyNative := false

	for _, funLabel := range funV.ObjectLabels() {
		if funLabel.Kind() != lattice.KFunction {
			s.monitor.Report(call, monitoring.MEDIUM,
				"TypeError: %s is not a function", funLabel)
			s.maybeThrow(cl, state, call)
			continue
		}
		if !state.HasObject(funLabel) {
			continue
		}
		funObj := state.GetObject(funLabel)

		switch {
		case funObj.Native() == nativeobjects.Eval:
			if res, ok := s.transferEval(cl, state, call, args); ok {
				nativeResult = nativeResult.Join(res)
				anyNative = true
			}

		case funObj.Native() != 0:
			// Native constructors allocate their own result objects;
			// only the receiver matters here.
			thisV := lattice.MakeObject(s.globals.Global)
			if call.Base != cfg.NoReg {
				if recv := state.GetRegister(call.Base); recv.IsMaybeObject() {
					thisV = recv.RestrictToObject()
				}
			}
			res, ok := nativeobjects.Invoke(funObj.Native(), &nativeobjects.Call{
				State:       state,
				Globals:     s.globals,
				Site:        call,
				This:        thisV,
				Args:        args,
				Constructor: call.Constructor,
				Monitor:     s.monitor,
			})
			if !ok {
				s.maybeThrow(cl, state, call)
				continue
			}
			nativeResult = nativeResult.Join(res)
			anyNative = true

		case funObj.Code() != nil:
			s.transferUserCall(cl, state, call, funLabel, args)

		default:
			s.monitor.Report(call, monitoring.MEDIUM,
				"TypeError: %s is not callable", funLabel)
			s.maybeThrow(cl, state, call)
		}
	}

	if anyNative {
		after := state.Clone()
		after.SetRegister(call.Result, nativeResult)
		s.propagate(cl.Derive(call.AfterBlock()), after)
	}
}

// calleeThis computes the this-value of a call: the allocated object
// for constructor calls, the receiver for method calls, and the global
// object otherwise.
func (s *Solver) calleeThis(cl defs.CtrLoc, state *lattice.State, call *cfg.CallNode, funLabel lattice.ObjectLabel) lattice.Value {
	if call.Constructor {
		return s.constructThis(state, call, funLabel)
	}
	if call.Base != cfg.NoReg {
		recv := state.GetRegister(call.Base)
		if recv.IsMaybeObject() {
			return recv.RestrictToObject()
		}
	}
	return lattice.MakeObject(s.globals.Global)
}

// constructThis allocates the object a constructor call operates on,
// linked to the callee's prototype property.
func (s *Solver) constructThis(state *lattice.State, call *cfg.CallNode, funLabel lattice.ObjectLabel) lattice.Value {
	proto := state.GetObject(funLabel).GetProperty("prototype").RestrictToNotAbsent()
	if !proto.IsMaybeObject() {
		proto = lattice.MakeObject(s.globals.ObjectProto)
	} else {
		proto = proto.RestrictToObject()
	}
	thisLabel := lattice.MakeObjectLabel(call, lattice.KObject)
	state.PutObject(thisLabel, lattice.NewObject(proto))
	return lattice.MakeObject(thisLabel)
}

// transferUserCall adds a call edge and flows the state into the callee
// entry under the callee context.
func (s *Solver) transferUserCall(cl defs.CtrLoc, state *lattice.State, call *cfg.CallNode, funLabel lattice.ObjectLabel, args []lattice.Value) {
	funObj := state.GetObject(funLabel)
	code := funObj.Code()
	calleeCtx := s.policy.CalleeContext(cl.Context(), call)

	// Constructor calls allocate their this-object into the caller
	// state here, before the edge snapshot and the entry clone, so both
	// contain it.
	thisV := s.calleeThis(cl, state, call, funLabel)

	edge := lattice.CallEdge{
		Site:      call,
		CallerCtx: cl.Context(),
		Callee:    code,
		CalleeCtx: calleeCtx,
	}
	newEdge := s.callGraph.AddEdge(edge)

	// The caller-side state at the call is kept per edge for the
	// return merge.
	if existing, ok := s.callStates[edge]; ok {
		existing.JoinWith(state)
	} else {
		s.callStates[edge] = state.Clone()
	}

	entry := state.CloneForFunction(code)
	entry.SetThisVal(thisV)

	// One activation object per (function, callee context); revisits
	// under the same context summarize weakly through PutObject.
	actLabel := lattice.MakeObjectLabelCtx(code.Entry().First(), lattice.KActivation, calleeCtx)
	act := lattice.NewObject(lattice.MakeNull())
	for i, param := range code.Params() {
		if i < len(args) {
			act.SetProperty(param, args[i])
		} else {
			act.SetProperty(param, lattice.MakeUndef())
		}
	}
	entry.PutObject(actLabel, act)

	chains := []*lattice.ScopeChain{}
	for _, sc := range funObj.Scopes() {
		chains = append(chains, s.session.ExtendScopeChain(actLabel, sc))
	}
	if len(chains) == 0 {
		chains = append(chains, s.session.ExtendScopeChain(actLabel, nil))
	}
	entry.SetScope(chains[0])
	for _, c := range chains[1:] {
		entry.AddScope(c)
	}

	entryLoc := defs.MakeCtrLoc(code.Entry(), calleeCtx)
	changed := s.analysis.Propagate(entryLoc, entry)
	if changed {
		s.enqueue(entryLoc)
	}
	if newEdge && !changed {
		// The callee is already analyzed for this entry state; only
		// the return flow to this new caller is missing.
		s.enqueue(defs.MakeCtrLoc(code.Exit(), calleeCtx))
		s.enqueue(defs.MakeCtrLoc(code.ExcExit(), calleeCtx))
	}
}

// transferEval analyzes a call to the global eval function. Constant
// argument strings are lowered once through the eval cache and analyzed
// as a zero-parameter function running in the caller's scope.
func (s *Solver) transferEval(cl defs.CtrLoc, state *lattice.State, call *cfg.CallNode, args []lattice.Value) (lattice.Value, bool) {
	if len(args) == 0 {
		return lattice.MakeUndef(), true
	}
	arg := args[0]
	// eval of a non-string argument returns it unchanged.
	if !arg.IsMaybeStr() {
		return arg, true
	}
	src, err := concrete.Gamma(arg.RestrictToStr())
	if err != nil {
		s.monitor.Report(call, monitoring.MEDIUM,
			"eval of a non-constant string; its effects are not analyzed")
		return lattice.MakeUndef().Join(arg.RestrictToNotObject()), true
	}
	fragment, ferr := s.evals.Fragment(string(src.(concrete.String)))
	if ferr != nil {
		s.monitor.Report(call, monitoring.HIGH, "SyntaxError in eval: %v", ferr)
		s.maybeThrow(cl, state, call)
		return lattice.MakeNone(), false
	}
	log.WithField("fragment", fragment.String()).Debug("analyzing eval fragment")

	calleeCtx := s.policy.CalleeContext(cl.Context(), call)
	edge := lattice.CallEdge{
		Site:      call,
		CallerCtx: cl.Context(),
		Callee:    fragment,
		CalleeCtx: calleeCtx,
	}
	newEdge := s.callGraph.AddEdge(edge)
	if existing, ok := s.callStates[edge]; ok {
		existing.JoinWith(state)
	} else {
		s.callStates[edge] = state.Clone()
	}

	// The fragment runs directly in the caller's scope: var
	// declarations target the caller's variable object.
	entry := state.CloneForFunction(fragment)
	entry.SetThisVal(state.ThisVal())
	for _, sc := range state.Scope() {
		entry.AddScope(sc)
	}

	entryLoc := defs.MakeCtrLoc(fragment.Entry(), calleeCtx)
	changed := s.analysis.Propagate(entryLoc, entry)
	if changed {
		s.enqueue(entryLoc)
	}
	if newEdge && !changed {
		s.enqueue(defs.MakeCtrLoc(fragment.Exit(), calleeCtx))
		s.enqueue(defs.MakeCtrLoc(fragment.ExcExit(), calleeCtx))
	}
	// Results arrive through return flow.
	return lattice.MakeNone(), false
}

// transferReturn flows a callee exit state back to the after-call
// blocks of every caller.
func (s *Solver) transferReturn(cl defs.CtrLoc, exitState *lattice.State) {
	fun := cl.Block().Function()
	for _, edge := range s.callGraph.Callers(fun, cl.Context()) {
		callState, ok := s.callStates[edge]
		if !ok {
			continue
		}
		caller := callState.Clone()
		caller.MergeReturned(exitState)

		if cl.Block().IsExcExit() {
			if exitState.ExcVal().IsNone() {
				continue
			}
			caller.JoinExcVal(exitState.ExcVal())
			excSucc := edge.Site.Block().ExcSucc()
			if excSucc != nil {
				s.propagate(defs.MakeCtrLoc(excSucc, edge.CallerCtx), caller)
			}
			continue
		}

		result := exitState.RetVal()
		if result.IsNone() {
			result = lattice.MakeUndef()
		}
		if edge.Site.Constructor {
			// A constructor returning a non-object yields the
			// allocated this object instead.
			obj := result.RestrictToObject()
			if result.RestrictToNotObject().IsMaybeOtherThanUndef() ||
				result.IsMaybeUndef() || !result.IsMaybeObject() {
				obj = obj.Join(exitState.ThisVal())
			}
			result = obj
		}
		caller.SetRegister(edge.Site.Result, result)
		s.propagate(defs.MakeCtrLoc(edge.Site.AfterBlock(), edge.CallerCtx), caller)
	}
}
