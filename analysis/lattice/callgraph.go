package lattice

import (
	"fmt"
	"io"
	"sort"

	"github.com/cs-au-dk/jstar/analysis/cfg"
	"github.com/cs-au-dk/jstar/analysis/defs"
	"github.com/cs-au-dk/jstar/utils/dot"
)

type (
	// A CallEdge connects a call site analyzed under a caller context to
	// a function analyzed under a callee context. The call graph grows
	// monotonically as the solver discovers dataflow to call sites.
	CallEdge struct {
		Site      *cfg.CallNode
		CallerCtx defs.Context
		Callee    *cfg.Function
		CalleeCtx defs.Context
	}

	// CallGraph is the context-sensitive call graph: the set of
	// discovered call edges with indexes in both directions.
	CallGraph struct {
		edges   map[CallEdge]bool
		callees map[siteKey][]CallEdge
		callers map[funKey][]CallEdge
	}

	siteKey struct {
		site *cfg.CallNode
		ctx  defs.Context
	}

	funKey struct {
		fun *cfg.Function
		ctx defs.Context
	}
)

func NewCallGraph() *CallGraph {
	return &CallGraph{
		edges:   map[CallEdge]bool{},
		callees: map[siteKey][]CallEdge{},
		callers: map[funKey][]CallEdge{},
	}
}

func (cg *CallGraph) Size() int { return len(cg.edges) }

// AddEdge records a call edge, reporting whether it is new.
func (cg *CallGraph) AddEdge(e CallEdge) bool {
	if cg.edges[e] {
		return false
	}
	cg.edges[e] = true
	sk := siteKey{e.Site, e.CallerCtx}
	cg.callees[sk] = append(cg.callees[sk], e)
	fk := funKey{e.Callee, e.CalleeCtx}
	cg.callers[fk] = append(cg.callers[fk], e)
	return true
}

// Callees returns the edges out of a call site under a caller context.
func (cg *CallGraph) Callees(site *cfg.CallNode, ctx defs.Context) []CallEdge {
	return cg.callees[siteKey{site, ctx}]
}

// Callers returns the edges into a function under a callee context.
func (cg *CallGraph) Callers(fun *cfg.Function, ctx defs.Context) []CallEdge {
	return cg.callers[funKey{fun, ctx}]
}

// ForEachEdge visits every edge in deterministic order.
func (cg *CallGraph) ForEachEdge(do func(CallEdge)) {
	es := make([]CallEdge, 0, len(cg.edges))
	for e := range cg.edges {
		es = append(es, e)
	}
	sort.Slice(es, func(i, j int) bool {
		return edgeString(es[i]) < edgeString(es[j])
	})
	for _, e := range es {
		do(e)
	}
}

func edgeString(e CallEdge) string {
	return fmt.Sprintf("%s @ %s → %s @ %s",
		e.Site.Block(), e.CallerCtx, e.Callee, e.CalleeCtx)
}

// WriteDot renders the call graph in Graphviz dot format. Functions are
// nodes; context-sensitive edges to the same function collapse unless
// full is set, in which case every (function, context) pair is a node.
func (cg *CallGraph) WriteDot(w io.Writer, full bool) error {
	g := &dot.DotGraph{
		Name:    "callgraph",
		Title:   "Call graph",
		Options: map[string]string{"rankdir": "TB"},
	}
	nodes := map[string]*dot.DotNode{}
	getNode := func(fun *cfg.Function, ctx defs.Context) *dot.DotNode {
		id := fun.String()
		if full {
			id += " @ " + ctx.String()
		}
		if n, ok := nodes[id]; ok {
			return n
		}
		n := &dot.DotNode{ID: id, Attrs: dot.DotAttrs{"label": id}}
		nodes[id] = n
		g.Nodes = append(g.Nodes, n)
		return n
	}
	cg.ForEachEdge(func(e CallEdge) {
		from := getNode(e.Site.Function(), e.CallerCtx)
		to := getNode(e.Callee, e.CalleeCtx)
		attrs := dot.DotAttrs{"label": e.Site.Block().String()}
		g.Edges = append(g.Edges, &dot.DotEdge{From: from, To: to, Attrs: attrs})
	})
	return g.WriteDot(w)
}
