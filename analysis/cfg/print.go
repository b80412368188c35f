package cfg

import (
	"fmt"
	"strings"
)

// String renders the flow graph in a stable textual form, mainly for
// debugging and golden tests.
func (fg *FlowGraph) String() string {
	var sb strings.Builder
	for _, f := range fg.functions {
		fmt.Fprintf(&sb, "function %s(%s):\n", f, strings.Join(f.params, ", "))
		for _, b := range f.blocks {
			tags := []string{}
			if b.IsEntry() {
				tags = append(tags, "entry")
			}
			if b.IsExit() {
				tags = append(tags, "exit")
			}
			if b.IsExcExit() {
				tags = append(tags, "exc-exit")
			}
			tag := ""
			if len(tags) > 0 {
				tag = " (" + strings.Join(tags, ", ") + ")"
			}
			fmt.Fprintf(&sb, "  block %d%s:\n", b.index, tag)
			for _, n := range b.nodes {
				fmt.Fprintf(&sb, "    %s\n", n)
			}
			if len(b.succs) > 0 {
				succs := make([]string, len(b.succs))
				for i, s := range b.succs {
					succs[i] = fmt.Sprintf("%d", s.index)
				}
				fmt.Fprintf(&sb, "    -> %s\n", strings.Join(succs, ", "))
			}
		}
	}
	return sb.String()
}
