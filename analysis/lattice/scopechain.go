package lattice

import (
	"strings"

	"github.com/cs-au-dk/jstar/utils"
)

// A ScopeChain is the chain of activation objects a function body
// resolves variables through, innermost first. Chains are immutable and
// interned by the session, so equal chains are pointer-equal and
// suitable as map keys by identity.
type ScopeChain struct {
	obj  ObjectLabel
	rest *ScopeChain
	hash uint32
}

// Obj returns the innermost activation object.
func (sc *ScopeChain) Obj() ObjectLabel { return sc.obj }

// Rest returns the enclosing chain, nil at the global scope.
func (sc *ScopeChain) Rest() *ScopeChain { return sc.rest }

func (sc *ScopeChain) Hash() uint32 {
	if sc == nil {
		return 0
	}
	return sc.hash
}

// Len returns the number of activations on the chain.
func (sc *ScopeChain) Len() int {
	n := 0
	for c := sc; c != nil; c = c.rest {
		n++
	}
	return n
}

// ForEach visits the activations innermost first.
func (sc *ScopeChain) ForEach(do func(ObjectLabel)) {
	for c := sc; c != nil; c = c.rest {
		do(c.obj)
	}
}

func (sc *ScopeChain) String() string {
	if sc == nil {
		return "[]"
	}
	strs := []string{}
	sc.ForEach(func(l ObjectLabel) {
		strs = append(strs, l.String())
	})
	return "[" + strings.Join(strs, " ▸ ") + "]"
}

type scopeChainHasher struct{}

func (scopeChainHasher) Hash(sc *ScopeChain) uint32 { return sc.Hash() }

func (scopeChainHasher) Equal(a, b *ScopeChain) bool {
	for a != nil && b != nil {
		if a == b {
			return true
		}
		if a.obj != b.obj {
			return false
		}
		a, b = a.rest, b.rest
	}
	return a == nil && b == nil
}

func scopeChainHash(obj ObjectLabel, rest *ScopeChain) uint32 {
	return utils.HashCombine(obj.Hash(), rest.Hash())
}
