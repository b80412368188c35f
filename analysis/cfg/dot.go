package cfg

import (
	"fmt"
	"io"
	"strings"

	"github.com/cs-au-dk/jstar/utils/dot"
)

// WriteDot renders the flow graph in Graphviz dot format, one cluster
// per function, one node per basic block. Exceptional edges are dashed.
func (fg *FlowGraph) WriteDot(w io.Writer) error {
	g := &dot.DotGraph{
		Name:    "cfg",
		Title:   "Flow graph",
		Options: map[string]string{"rankdir": "TB"},
	}

	nodes := map[*BasicBlock]*dot.DotNode{}
	for _, f := range fg.functions {
		cluster := dot.NewDotCluster(fmt.Sprintf("f%d", f.index))
		cluster.Attrs["label"] = f.String()
		g.Clusters = append(g.Clusters, cluster)

		for _, b := range f.blocks {
			lines := make([]string, len(b.nodes))
			for i, n := range b.nodes {
				lines[i] = n.String()
			}
			n := &dot.DotNode{
				ID: fmt.Sprintf("f%d_b%d", f.index, b.index),
				Attrs: dot.DotAttrs{
					"label": fmt.Sprintf("%s\n%s", b, strings.Join(lines, "\n")),
					"shape": "box",
				},
			}
			if b.IsEntry() {
				n.Attrs["fillcolor"] = "palegreen"
			}
			if b.IsExit() || b.IsExcExit() {
				n.Attrs["fillcolor"] = "lightpink"
			}
			nodes[b] = n
			cluster.Nodes = append(cluster.Nodes, n)
		}
	}

	for _, f := range fg.functions {
		for _, b := range f.blocks {
			for _, succ := range b.succs {
				g.Edges = append(g.Edges, &dot.DotEdge{
					From: nodes[b], To: nodes[succ], Attrs: dot.DotAttrs{},
				})
			}
			if b.excSucc != nil && b.excSucc != f.excExit {
				g.Edges = append(g.Edges, &dot.DotEdge{
					From: nodes[b], To: nodes[b.excSucc],
					Attrs: dot.DotAttrs{"style": "dashed"},
				})
			}
		}
	}
	return g.WriteDot(w)
}
