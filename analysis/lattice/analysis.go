package lattice

import (
	"sort"

	"github.com/cs-au-dk/jstar/analysis/defs"
	"github.com/cs-au-dk/jstar/utils/indenter"
)

// Analysis is the global lattice element the solver computes a fixpoint
// of: a map from control locations to the abstract state holding there.
// Locations not in the map are bottom. Control locations are comparable
// values (contexts are interned), so a plain map serves as the carrier.
type Analysis struct {
	session *Session
	states  map[defs.CtrLoc]*State
}

func NewAnalysis(session *Session) *Analysis {
	return &Analysis{
		session: session,
		states:  map[defs.CtrLoc]*State{},
	}
}

func (a *Analysis) Size() int { return len(a.states) }

// GetOk returns the state at a location, if any. The result must be
// treated as immutable; use Clone before transferring over it.
func (a *Analysis) GetOk(cl defs.CtrLoc) (*State, bool) {
	s, ok := a.states[cl]
	return s, ok
}

// GetUnsafe returns the state at a location, panicking on bottom.
func (a *Analysis) GetUnsafe(cl defs.CtrLoc) *State {
	s, ok := a.states[cl]
	if !ok {
		panic(errInternal)
	}
	return s
}

// Propagate joins a state into the location and reports whether the
// location's state changed. The argument is not retained; a frozen
// clone is.
func (a *Analysis) Propagate(cl defs.CtrLoc, state *State) bool {
	existing, ok := a.states[cl]
	if !ok {
		a.states[cl] = state.Clone()
		return true
	}
	return existing.JoinWith(state)
}

// ForEach visits every non-bottom location in deterministic order.
func (a *Analysis) ForEach(do func(defs.CtrLoc, *State)) {
	cls := make([]defs.CtrLoc, 0, len(a.states))
	for cl := range a.states {
		cls = append(cls, cl)
	}
	sort.Slice(cls, func(i, j int) bool {
		return cls[i].String() < cls[j].String()
	})
	for _, cl := range cls {
		do(cl, a.states[cl])
	}
}

func (a *Analysis) String() string {
	fields := []func() string{}
	a.ForEach(func(cl defs.CtrLoc, s *State) {
		fields = append(fields, func() string {
			return colorize.Key(cl.String()) + " ↦ " + s.String()
		})
	})
	if len(fields) == 0 {
		return colorize.Lattice("⊥")
	}
	return indenter.Indenter().Start("{").NestThunkedSep(",", fields...).End("}")
}
