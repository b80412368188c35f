package defs

import (
	"strings"

	"github.com/cs-au-dk/jstar/analysis/cfg"
	"github.com/cs-au-dk/jstar/utils"
	"github.com/cs-au-dk/jstar/utils/hmap"
)

type (
	// insensitiveContext is the sole context of a context-insensitive
	// analysis.
	insensitiveContext struct{}

	// CallStringContext abstracts the call history as the string of the
	// k most recent call sites. Instances are interned by the context
	// factory, so equal contexts are pointer-equal.
	CallStringContext struct {
		sites []*cfg.CallNode
		hash  uint32
	}
)

func (insensitiveContext) Hash() uint32 { return 0x61C88647 }

func (insensitiveContext) Equal(other Context) bool {
	_, ok := other.(insensitiveContext)
	return ok
}

func (insensitiveContext) String() string { return "ε" }

// InsensitiveContext returns the context of a context-insensitive
// analysis.
func InsensitiveContext() Context { return insensitiveContext{} }

func (c *CallStringContext) Hash() uint32 { return c.hash }

func (c *CallStringContext) Equal(other Context) bool {
	o, ok := other.(*CallStringContext)
	// Interning guarantees pointer equality for equal call strings.
	return ok && c == o
}

func (c *CallStringContext) Sites() []*cfg.CallNode { return c.sites }

func (c *CallStringContext) String() string {
	if len(c.sites) == 0 {
		return "ε"
	}
	strs := make([]string, len(c.sites))
	for i, site := range c.sites {
		strs[i] = site.Block().String()
	}
	return "[" + strings.Join(strs, " ▸ ") + "]"
}

type callStringHasher struct{}

func (callStringHasher) Hash(c *CallStringContext) uint32 { return c.hash }

func (callStringHasher) Equal(a, b *CallStringContext) bool {
	if len(a.sites) != len(b.sites) {
		return false
	}
	for i := range a.sites {
		if a.sites[i] != b.sites[i] {
			return false
		}
	}
	return true
}

// A ContextFactory interns call string contexts. One factory exists per
// analysis session, replacing any process-wide canonicalization state.
type ContextFactory struct {
	calls *hmap.Map[*CallStringContext, *CallStringContext]
	empty *CallStringContext
}

func NewContextFactory() *ContextFactory {
	empty := &CallStringContext{hash: utils.HashCombine()}
	f := &ContextFactory{
		calls: hmap.NewMap[*CallStringContext](callStringHasher{}),
		empty: empty,
	}
	f.calls.Set(empty, empty)
	return f
}

// EmptyCallString returns the interned empty call string.
func (f *ContextFactory) EmptyCallString() Context { return f.empty }

// CallString derives the context for a call at the given site made
// under the parent context, truncated to the k most recent sites.
func (f *ContextFactory) CallString(parent Context, site *cfg.CallNode, k int) Context {
	if k <= 0 {
		return f.empty
	}
	var psites []*cfg.CallNode
	if p, ok := parent.(*CallStringContext); ok {
		psites = p.sites
	}
	sites := append([]*cfg.CallNode{site}, psites...)
	if len(sites) > k {
		sites = sites[:k]
	}

	hashes := make([]uint32, len(sites))
	ph := utils.PointerHasher[*cfg.CallNode]{}
	for i, s := range sites {
		hashes[i] = ph.Hash(s)
	}
	cand := &CallStringContext{sites: sites, hash: utils.HashCombine(hashes...)}
	if interned, found := f.calls.GetOk(cand); found {
		return interned
	}
	f.calls.Set(cand, cand)
	return cand
}
