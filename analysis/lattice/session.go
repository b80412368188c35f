package lattice

import (
	"github.com/cs-au-dk/jstar/utils/hmap"
)

// A Session owns the canonicalization state of one analysis run: the
// interning tables for scope chains and object label sets. Keeping this
// state in an explicit object instead of package level means concurrent
// analyses never share mutable state, and Reset gives tests a clean
// slate.
type Session struct {
	scopeChains *hmap.Map[*ScopeChain, *ScopeChain]
	labelSets   *hmap.Map[*labelSet, *labelSet]
}

func NewSession() *Session {
	s := &Session{}
	s.Reset()
	return s
}

// Reset drops all interned structures.
func (s *Session) Reset() {
	s.scopeChains = hmap.NewMap[*ScopeChain](scopeChainHasher{})
	s.labelSets = hmap.NewMap[*labelSet](labelSetHasher{})
}

// ExtendScopeChain returns the interned chain with obj pushed innermost
// onto rest.
func (s *Session) ExtendScopeChain(obj ObjectLabel, rest *ScopeChain) *ScopeChain {
	cand := &ScopeChain{obj: obj, rest: rest, hash: scopeChainHash(obj, rest)}
	if interned, found := s.scopeChains.GetOk(cand); found {
		return interned
	}
	s.scopeChains.Set(cand, cand)
	return cand
}

// Canon returns the interned representative of the value's label set,
// making label set equality on canonicalized values a pointer check.
// Applied when values are stored into states, not on intermediate
// results.
func (s *Session) Canon(v Value) Value {
	if v.objs.size() == 0 {
		v.objs = nil
		return v
	}
	if interned, found := s.labelSets.GetOk(v.objs); found {
		v.objs = interned
		return v
	}
	s.labelSets.Set(v.objs, v.objs)
	return v
}
