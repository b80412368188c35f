package cfg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robertkrimen/otto/file"
)

var errUnsupportedNodeConversion = errors.New("unsupported CFG node type conversion")

// BinOp enumerates the binary operators the transfer functions model.
type BinOp int

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinDiv
	BinRem
	BinLt
	BinGt
	BinLe
	BinGe
	BinEq
	BinNe
	BinStrictEq
	BinStrictNe
)

func (op BinOp) String() string {
	switch op {
	case BinAdd:
		return "+"
	case BinSub:
		return "-"
	case BinMul:
		return "*"
	case BinDiv:
		return "/"
	case BinRem:
		return "%"
	case BinLt:
		return "<"
	case BinGt:
		return ">"
	case BinLe:
		return "<="
	case BinGe:
		return ">="
	case BinEq:
		return "=="
	case BinNe:
		return "!="
	case BinStrictEq:
		return "==="
	case BinStrictNe:
		return "!=="
	}
	return "?"
}

// UnOp enumerates the unary operators the transfer functions model.
type UnOp int

const (
	UnNot UnOp = iota
	UnMinus
	UnPlus
	UnTypeof
)

func (op UnOp) String() string {
	switch op {
	case UnNot:
		return "!"
	case UnMinus:
		return "-"
	case UnPlus:
		return "+"
	case UnTypeof:
		return "typeof"
	}
	return "?"
}

// ConstKind tags the kind of a constant node.
type ConstKind int

const (
	ConstNumber ConstKind = iota
	ConstString
	ConstBoolean
	ConstNull
	ConstUndefined
)

// Node is a typed flow graph node. Nodes are created by the builder and
// immutable afterwards.
type Node interface {
	Block() *BasicBlock
	Function() *Function
	Idx() file.Idx
	String() string

	// Type conversion API
	Call() *CallNode
	If() *IfNode

	setBlock(*BasicBlock)
}

type baseNode struct {
	block *BasicBlock
	idx   file.Idx
}

func (n *baseNode) Block() *BasicBlock  { return n.block }
func (n *baseNode) Function() *Function { return n.block.fn }
func (n *baseNode) Idx() file.Idx       { return n.idx }

func (n *baseNode) setBlock(b *BasicBlock) { n.block = b }

func (n *baseNode) Call() *CallNode { panic(errUnsupportedNodeConversion) }
func (n *baseNode) If() *IfNode     { panic(errUnsupportedNodeConversion) }

// ConstantNode loads a constant into a register.
type ConstantNode struct {
	baseNode
	Kind   ConstKind
	Num    float64
	Str    string
	Bool   bool
	Result Reg
}

func (n *ConstantNode) String() string {
	switch n.Kind {
	case ConstNumber:
		return fmt.Sprintf("v%d = %v", n.Result, n.Num)
	case ConstString:
		return fmt.Sprintf("v%d = %q", n.Result, n.Str)
	case ConstBoolean:
		return fmt.Sprintf("v%d = %v", n.Result, n.Bool)
	case ConstNull:
		return fmt.Sprintf("v%d = null", n.Result)
	default:
		return fmt.Sprintf("v%d = undefined", n.Result)
	}
}

// DeclareVarNode introduces a variable binding in the current variable
// object, initialized to undefined unless the binding already exists.
type DeclareVarNode struct {
	baseNode
	Name string
}

func (n *DeclareVarNode) String() string { return "var " + n.Name }

// ReadVarNode reads a variable through the scope chain into a register.
type ReadVarNode struct {
	baseNode
	Name   string
	Result Reg
}

func (n *ReadVarNode) String() string { return fmt.Sprintf("v%d = %s", n.Result, n.Name) }

// WriteVarNode writes a register to a variable through the scope chain.
type WriteVarNode struct {
	baseNode
	Name string
	Src  Reg
}

func (n *WriteVarNode) String() string { return fmt.Sprintf("%s = v%d", n.Name, n.Src) }

// BinOpNode applies a binary operator to two registers.
type BinOpNode struct {
	baseNode
	Op     BinOp
	Arg1   Reg
	Arg2   Reg
	Result Reg
}

func (n *BinOpNode) String() string {
	return fmt.Sprintf("v%d = v%d %s v%d", n.Result, n.Arg1, n.Op, n.Arg2)
}

// UnOpNode applies a unary operator to a register.
type UnOpNode struct {
	baseNode
	Op     UnOp
	Arg    Reg
	Result Reg
}

func (n *UnOpNode) String() string {
	return fmt.Sprintf("v%d = %s v%d", n.Result, n.Op, n.Arg)
}

// IfNode terminates a block with a two-way branch on a condition
// register. The first block successor is the true branch.
type IfNode struct {
	baseNode
	Cond Reg
}

func (n *IfNode) If() *IfNode    { return n }
func (n *IfNode) String() string { return fmt.Sprintf("if v%d", n.Cond) }

// CallNode terminates a block with a function or constructor call.
// Base holds the receiver for method calls and NoReg otherwise.
type CallNode struct {
	baseNode
	Result      Reg
	Base        Reg
	Fun         Reg
	Args        []Reg
	Constructor bool
}

func (n *CallNode) Call() *CallNode { return n }

// AfterBlock returns the block receiving the call result.
func (n *CallNode) AfterBlock() *BasicBlock {
	return n.block.succs[0]
}

func (n *CallNode) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = fmt.Sprintf("v%d", a)
	}
	kw := ""
	if n.Constructor {
		kw = "new "
	}
	recv := ""
	if n.Base != NoReg {
		recv = fmt.Sprintf("v%d.", n.Base)
	}
	return fmt.Sprintf("v%d = %s%sv%d(%s)", n.Result, kw, recv, n.Fun, strings.Join(args, ", "))
}

// ReturnNode assigns the function result and flows to the exit block.
// Value is NoReg for a bare return.
type ReturnNode struct {
	baseNode
	Value Reg
}

func (n *ReturnNode) String() string {
	if n.Value == NoReg {
		return "return"
	}
	return fmt.Sprintf("return v%d", n.Value)
}

// NewObjectNode allocates a fresh plain object.
type NewObjectNode struct {
	baseNode
	Result Reg
}

func (n *NewObjectNode) String() string { return fmt.Sprintf("v%d = {}", n.Result) }

// DeclareFunNode allocates a function object for a function literal.
type DeclareFunNode struct {
	baseNode
	Fun    *Function
	Result Reg
}

func (n *DeclareFunNode) String() string {
	return fmt.Sprintf("v%d = function %s", n.Result, n.Fun)
}

// ReadPropNode reads a named property of the object held in Base.
type ReadPropNode struct {
	baseNode
	Base   Reg
	Prop   string
	Result Reg
}

func (n *ReadPropNode) String() string {
	return fmt.Sprintf("v%d = v%d.%s", n.Result, n.Base, n.Prop)
}

// WritePropNode writes a named property of the object held in Base.
type WritePropNode struct {
	baseNode
	Base Reg
	Prop string
	Src  Reg
}

func (n *WritePropNode) String() string {
	return fmt.Sprintf("v%d.%s = v%d", n.Base, n.Prop, n.Src)
}

// ThisNode reads the current this-value into a register.
type ThisNode struct {
	baseNode
	Result Reg
}

func (n *ThisNode) String() string { return fmt.Sprintf("v%d = this", n.Result) }

// NopNode marks block boundaries that carry no semantics.
type NopNode struct {
	baseNode
	Text string
}

func (n *NopNode) String() string { return n.Text }

// SyntheticNode is an allocation site without a source counterpart, used
// for the objects of the initial state.
type SyntheticNode struct {
	baseNode
	Name string
}

func (n *SyntheticNode) String() string          { return n.Name }
func (n *SyntheticNode) Block() *BasicBlock      { return nil }
func (n *SyntheticNode) Function() *Function     { return nil }
func (n *SyntheticNode) setBlock(_ *BasicBlock)  {}

// NewSyntheticNode creates a named synthetic allocation site.
func NewSyntheticNode(name string) *SyntheticNode {
	return &SyntheticNode{Name: name}
}
