package cfg

import (
	"fmt"

	"github.com/robertkrimen/otto/file"
)

// Reg identifies a temporary register within a function.
type Reg int

// NoReg marks an unused register operand.
const NoReg Reg = -1

// A FlowGraph is the input to the solver: a set of functions, each with
// ordered basic blocks of typed nodes. The graph is read-only during
// solving; the solver only attaches call graph information on the side.
type FlowGraph struct {
	functions []*Function
	main      *Function
	file      *file.File
}

// Main returns the synthetic top-level function of the program.
func (fg *FlowGraph) Main() *Function {
	return fg.main
}

// Functions returns all functions in the flow graph, including the
// top-level function, in declaration order.
func (fg *FlowGraph) Functions() []*Function {
	return fg.functions
}

// File returns the source file the flow graph was built from, if any.
func (fg *FlowGraph) File() *file.File {
	return fg.file
}

// PositionOf renders the source position of a node, or the empty string
// for synthetic nodes.
func (fg *FlowGraph) PositionOf(n Node) string {
	if fg.file == nil || n == nil || n.Idx() == 0 {
		return ""
	}
	pos := fg.file.Position(n.Idx())
	if pos == nil {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", pos.Filename, pos.Line, pos.Column)
}

func (fg *FlowGraph) addFunction(f *Function) {
	f.index = len(fg.functions)
	fg.functions = append(fg.functions, f)
}

// A Function is an ordered collection of basic blocks with distinguished
// entry, ordinary exit and exceptional exit blocks.
type Function struct {
	index  int
	name   string
	params []string
	// Variables declared with var, hoisted to the activation object.
	varNames []string
	outer    *Function
	blocks   []*BasicBlock
	entry    *BasicBlock
	exit     *BasicBlock
	excExit  *BasicBlock
	regCount int
}

func (f *Function) Index() int         { return f.index }
func (f *Function) Name() string       { return f.name }
func (f *Function) Params() []string   { return f.params }
func (f *Function) VarNames() []string { return f.varNames }
func (f *Function) Outer() *Function   { return f.outer }

func (f *Function) Blocks() []*BasicBlock    { return f.blocks }
func (f *Function) Entry() *BasicBlock       { return f.entry }
func (f *Function) Exit() *BasicBlock        { return f.exit }
func (f *Function) ExcExit() *BasicBlock     { return f.excExit }
func (f *Function) RegCount() int            { return f.regCount }
func (f *Function) IsMain() bool             { return f.outer == nil }

func (f *Function) String() string {
	if f.name != "" {
		return f.name
	}
	if f.outer == nil {
		return "<main>"
	}
	return fmt.Sprintf("<anonymous:%d>", f.index)
}

func (f *Function) newBlock() *BasicBlock {
	b := &BasicBlock{fn: f, index: len(f.blocks)}
	f.blocks = append(f.blocks, b)
	return b
}

// A BasicBlock holds a straight-line sequence of nodes. A block with a
// branch node as its last node has exactly two successors (the true
// branch first); a block ending in a call node has a single successor,
// the after-call block. Exceptional control flows to ExcSucc.
type BasicBlock struct {
	fn      *Function
	index   int
	order   int
	nodes   []Node
	succs   []*BasicBlock
	excSucc *BasicBlock
}

func (b *BasicBlock) Function() *Function    { return b.fn }
func (b *BasicBlock) Index() int             { return b.index }
func (b *BasicBlock) Nodes() []Node          { return b.nodes }
func (b *BasicBlock) Succs() []*BasicBlock   { return b.succs }
func (b *BasicBlock) ExcSucc() *BasicBlock   { return b.excSucc }

// Order is the priority of the block in the reverse post-order of its
// function, used by the worklist strategy.
func (b *BasicBlock) Order() int { return b.order }

// First returns the first node of the block, or nil for an empty block.
func (b *BasicBlock) First() Node {
	if len(b.nodes) == 0 {
		return nil
	}
	return b.nodes[0]
}

// Last returns the last node of the block, or nil for an empty block.
func (b *BasicBlock) Last() Node {
	if len(b.nodes) == 0 {
		return nil
	}
	return b.nodes[len(b.nodes)-1]
}

// IsEntry reports whether the block is its function's entry block.
func (b *BasicBlock) IsEntry() bool { return b == b.fn.entry }

// IsExit reports whether the block is its function's ordinary exit block.
func (b *BasicBlock) IsExit() bool { return b == b.fn.exit }

// IsExcExit reports whether the block is its function's exceptional exit.
func (b *BasicBlock) IsExcExit() bool { return b == b.fn.excExit }

// CallNode returns the call node terminating the block, if any.
func (b *BasicBlock) CallNode() *CallNode {
	if c, ok := b.Last().(*CallNode); ok {
		return c
	}
	return nil
}

func (b *BasicBlock) String() string {
	return fmt.Sprintf("%s:%d", b.fn, b.index)
}

func (b *BasicBlock) add(n Node) {
	n.setBlock(b)
	b.nodes = append(b.nodes, n)
}

func (b *BasicBlock) addSucc(s *BasicBlock) {
	b.succs = append(b.succs, s)
}

// setOrder assigns reverse post-order priorities to the blocks of every
// function. Unreachable blocks keep priority 0 and are harmless; the
// solver never visits them.
func (fg *FlowGraph) setOrder() {
	for _, f := range fg.functions {
		seen := make([]bool, len(f.blocks))
		post := []*BasicBlock{}
		var visit func(b *BasicBlock)
		visit = func(b *BasicBlock) {
			if seen[b.index] {
				return
			}
			seen[b.index] = true
			for _, s := range b.succs {
				visit(s)
			}
			if b.excSucc != nil {
				visit(b.excSucc)
			}
			post = append(post, b)
		}
		visit(f.entry)

		for i, b := range post {
			b.order = len(post) - i - 1
		}
		// The exit blocks are always processed after regular blocks.
		f.exit.order = len(f.blocks)
		f.excExit.order = len(f.blocks) + 1
	}
}
