package absint

import (
	"fmt"

	"github.com/cs-au-dk/jstar/analysis/cfg"
	"github.com/cs-au-dk/jstar/analysis/defs"
)

// A ContextPolicy decides how call histories are abstracted into
// contexts. The solver is parametric in the policy; precision and cost
// scale with it.
type ContextPolicy interface {
	// Initial returns the context the program entry is analyzed under.
	Initial() defs.Context
	// CalleeContext returns the context a callee is analyzed under for
	// a call at site made under the caller context.
	CalleeContext(caller defs.Context, site *cfg.CallNode) defs.Context
	String() string
}

type insensitivePolicy struct{}

// InsensitivePolicy merges all call histories into one context.
func InsensitivePolicy() ContextPolicy { return insensitivePolicy{} }

func (insensitivePolicy) Initial() defs.Context { return defs.InsensitiveContext() }

func (insensitivePolicy) CalleeContext(defs.Context, *cfg.CallNode) defs.Context {
	return defs.InsensitiveContext()
}

func (insensitivePolicy) String() string { return "insensitive" }

type callStringPolicy struct {
	factory *defs.ContextFactory
	k       int
}

// CallStringPolicy distinguishes call histories by their k most recent
// call sites. k = 1 is classic 1-CFA.
func CallStringPolicy(k int) ContextPolicy {
	return &callStringPolicy{factory: defs.NewContextFactory(), k: k}
}

func (p *callStringPolicy) Initial() defs.Context { return p.factory.EmptyCallString() }

func (p *callStringPolicy) CalleeContext(caller defs.Context, site *cfg.CallNode) defs.Context {
	return p.factory.CallString(caller, site, p.k)
}

func (p *callStringPolicy) String() string { return fmt.Sprintf("%d-callsite", p.k) }
