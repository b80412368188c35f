package cfg

import (
	"github.com/pkg/errors"

	"github.com/robertkrimen/otto/ast"
	"github.com/robertkrimen/otto/parser"
	"github.com/robertkrimen/otto/token"
)

// BuildSource parses the given JavaScript source and lowers it to a flow
// graph. Syntax outside the supported subset yields an error here,
// before any analysis takes place.
func BuildSource(filename, src string) (*FlowGraph, error) {
	prog, err := parser.ParseFile(nil, filename, src, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse %s", filename)
	}
	return BuildProgram(prog)
}

// BuildProgram lowers a parsed program to a flow graph.
func BuildProgram(prog *ast.Program) (fg *FlowGraph, err error) {
	defer func() {
		if r := recover(); r != nil {
			if berr, ok := r.(buildError); ok {
				fg, err = nil, error(berr)
				return
			}
			panic(r)
		}
	}()

	fg = &FlowGraph{file: prog.File}
	b := &builder{fg: fg}
	main := &Function{name: ""}
	fg.main = main
	fg.addFunction(main)
	b.buildFunction(main, nil, prog.DeclarationList, prog.Body)
	fg.setOrder()
	return fg, nil
}

// BuildFragment parses dynamically constructed code and lowers it into
// a fresh zero-parameter function appended to the flow graph. The
// caller supplies the scope the fragment runs in at analysis time.
func (fg *FlowGraph) BuildFragment(name, src string) (fn *Function, err error) {
	defer func() {
		if r := recover(); r != nil {
			if berr, ok := r.(buildError); ok {
				fn, err = nil, error(berr)
				return
			}
			panic(r)
		}
	}()

	prog, perr := parser.ParseFile(nil, name, src, 0)
	if perr != nil {
		return nil, errors.Wrapf(perr, "cannot parse fragment %s", name)
	}
	fn = &Function{name: name, outer: fg.main}
	fg.addFunction(fn)
	b := &builder{fg: fg}
	b.buildFunction(fn, nil, prog.DeclarationList, prog.Body)
	fg.setOrder()
	return fn, nil
}

type buildError struct{ error }

type builder struct {
	fg  *FlowGraph
	fn  *Function
	cur *BasicBlock
}

func (b *builder) failf(format string, args ...interface{}) {
	panic(buildError{errors.Errorf(format, args...)})
}

func (b *builder) newReg() Reg {
	r := Reg(b.fn.regCount)
	b.fn.regCount++
	return r
}

func (b *builder) emit(n Node) {
	if b.cur == nil {
		// Unreachable code after a return. Lower it into a floating
		// block so registers stay well-formed; the solver never reaches
		// it and reports it separately.
		b.cur = b.fn.newBlock()
	}
	b.cur.add(n)
}

// seal terminates the current block with an edge to the given block.
func (b *builder) seal(to *BasicBlock) {
	if b.cur != nil {
		b.cur.addSucc(to)
	}
	b.cur = to
}

func (b *builder) buildFunction(fn *Function, paramList []string, decls []ast.Declaration, body []ast.Statement) {
	outerFn, outerCur := b.fn, b.cur
	b.fn, b.cur = fn, nil

	fn.params = paramList
	fn.entry = fn.newBlock()
	b.cur = fn.entry
	b.emit(&NopNode{Text: "entry"})

	// Hoist var and function declarations into the variable object.
	funDecls := []*ast.FunctionDeclaration{}
	for _, d := range decls {
		switch d := d.(type) {
		case *ast.VariableDeclaration:
			for _, v := range d.List {
				fn.varNames = append(fn.varNames, v.Name)
				b.emit(&DeclareVarNode{baseNode: baseNode{idx: v.Idx0()}, Name: v.Name})
			}
		case *ast.FunctionDeclaration:
			funDecls = append(funDecls, d)
		}
	}
	for _, d := range funDecls {
		name := d.Function.Name.Name
		fn.varNames = append(fn.varNames, name)
		b.emit(&DeclareVarNode{baseNode: baseNode{idx: d.Function.Idx0()}, Name: name})
		r := b.lowerFunctionLiteral(d.Function)
		b.emit(&WriteVarNode{baseNode: baseNode{idx: d.Function.Idx0()}, Name: name, Src: r})
	}

	fn.exit = fn.newBlock()
	fn.exit.add(&NopNode{Text: "exit"})
	fn.excExit = fn.newBlock()
	fn.excExit.add(&NopNode{Text: "exceptional exit"})

	for _, stmt := range body {
		b.lowerStatement(stmt)
	}
	b.seal(fn.exit)

	// Any node may throw through its block; the default exception
	// continuation is the function's exceptional exit.
	for _, blk := range fn.blocks {
		if blk != fn.excExit {
			blk.excSucc = fn.excExit
		}
	}

	b.fn, b.cur = outerFn, outerCur
}

func (b *builder) lowerStatement(stmt ast.Statement) {
	switch stmt := stmt.(type) {
	case *ast.EmptyStatement:

	case *ast.BlockStatement:
		for _, s := range stmt.List {
			b.lowerStatement(s)
		}

	case *ast.ExpressionStatement:
		b.lowerExpression(stmt.Expression)

	case *ast.VariableStatement:
		for _, item := range stmt.List {
			b.lowerExpression(item)
		}

	case *ast.FunctionStatement:
		// Hoisted with the declaration list.

	case *ast.ReturnStatement:
		val := NoReg
		if stmt.Argument != nil {
			val = b.lowerExpression(stmt.Argument)
		}
		b.emit(&ReturnNode{baseNode: baseNode{idx: stmt.Idx0()}, Value: val})
		b.cur.addSucc(b.fn.exit)
		b.cur = nil

	case *ast.IfStatement:
		cond := b.lowerExpression(stmt.Test)
		b.emit(&IfNode{baseNode: baseNode{idx: stmt.Idx0()}, Cond: cond})
		branch := b.cur

		thenBlk := b.fn.newBlock()
		elseBlk := b.fn.newBlock()
		join := b.fn.newBlock()
		branch.addSucc(thenBlk)
		branch.addSucc(elseBlk)

		b.cur = thenBlk
		b.lowerStatement(stmt.Consequent)
		b.seal(join)

		b.cur = elseBlk
		if stmt.Alternate != nil {
			b.lowerStatement(stmt.Alternate)
		}
		b.seal(join)
		b.cur = join

	case *ast.WhileStatement:
		condStart := b.fn.newBlock()
		b.seal(condStart)
		cond := b.lowerExpression(stmt.Test)
		b.emit(&IfNode{baseNode: baseNode{idx: stmt.Idx0()}, Cond: cond})
		branch := b.cur

		body := b.fn.newBlock()
		exit := b.fn.newBlock()
		branch.addSucc(body)
		branch.addSucc(exit)

		b.cur = body
		b.lowerStatement(stmt.Body)
		b.seal(condStart)
		b.cur = exit

	case *ast.ForStatement:
		if stmt.Initializer != nil {
			b.lowerExpression(stmt.Initializer)
		}
		condStart := b.fn.newBlock()
		b.seal(condStart)
		cond := NoReg
		if stmt.Test != nil {
			cond = b.lowerExpression(stmt.Test)
		} else {
			cond = b.newReg()
			b.emit(&ConstantNode{baseNode: baseNode{idx: stmt.Idx0()}, Kind: ConstBoolean, Bool: true, Result: cond})
		}
		b.emit(&IfNode{baseNode: baseNode{idx: stmt.Idx0()}, Cond: cond})
		branch := b.cur

		body := b.fn.newBlock()
		exit := b.fn.newBlock()
		branch.addSucc(body)
		branch.addSucc(exit)

		b.cur = body
		b.lowerStatement(stmt.Body)
		if stmt.Update != nil {
			b.lowerExpression(stmt.Update)
		}
		b.seal(condStart)
		b.cur = exit

	default:
		b.failf("unsupported statement %T", stmt)
	}
}

func (b *builder) lowerExpression(expr ast.Expression) Reg {
	switch expr := expr.(type) {
	case *ast.NumberLiteral:
		r := b.newReg()
		var num float64
		switch v := expr.Value.(type) {
		case float64:
			num = v
		case int64:
			num = float64(v)
		case int:
			num = float64(v)
		default:
			b.failf("unsupported number literal %v", expr.Value)
		}
		b.emit(&ConstantNode{baseNode: baseNode{idx: expr.Idx0()}, Kind: ConstNumber, Num: num, Result: r})
		return r

	case *ast.StringLiteral:
		r := b.newReg()
		b.emit(&ConstantNode{baseNode: baseNode{idx: expr.Idx0()}, Kind: ConstString, Str: expr.Value, Result: r})
		return r

	case *ast.BooleanLiteral:
		r := b.newReg()
		b.emit(&ConstantNode{baseNode: baseNode{idx: expr.Idx0()}, Kind: ConstBoolean, Bool: expr.Value, Result: r})
		return r

	case *ast.NullLiteral:
		r := b.newReg()
		b.emit(&ConstantNode{baseNode: baseNode{idx: expr.Idx0()}, Kind: ConstNull, Result: r})
		return r

	case *ast.RegExpLiteral:
		// A regular expression literal behaves as a call to the RegExp
		// constructor with concrete pattern and flags.
		fun := b.newReg()
		b.emit(&ReadVarNode{baseNode: baseNode{idx: expr.Idx0()}, Name: "RegExp", Result: fun})
		pat := b.newReg()
		b.emit(&ConstantNode{baseNode: baseNode{idx: expr.Idx0()}, Kind: ConstString, Str: expr.Pattern, Result: pat})
		flags := b.newReg()
		b.emit(&ConstantNode{baseNode: baseNode{idx: expr.Idx0()}, Kind: ConstString, Str: expr.Flags, Result: flags})
		return b.lowerCall(&CallNode{
			baseNode:    baseNode{idx: expr.Idx0()},
			Base:        NoReg,
			Fun:         fun,
			Args:        []Reg{pat, flags},
			Constructor: true,
		})

	case *ast.ThisExpression:
		r := b.newReg()
		b.emit(&ThisNode{baseNode: baseNode{idx: expr.Idx0()}, Result: r})
		return r

	case *ast.Identifier:
		if expr.Name == "undefined" {
			r := b.newReg()
			b.emit(&ConstantNode{baseNode: baseNode{idx: expr.Idx0()}, Kind: ConstUndefined, Result: r})
			return r
		}
		r := b.newReg()
		b.emit(&ReadVarNode{baseNode: baseNode{idx: expr.Idx0()}, Name: expr.Name, Result: r})
		return r

	case *ast.VariableExpression:
		// The binding itself is hoisted; only an initializer writes.
		if expr.Initializer == nil {
			r := b.newReg()
			b.emit(&ConstantNode{baseNode: baseNode{idx: expr.Idx0()}, Kind: ConstUndefined, Result: r})
			return r
		}
		r := b.lowerExpression(expr.Initializer)
		b.emit(&WriteVarNode{baseNode: baseNode{idx: expr.Idx0()}, Name: expr.Name, Src: r})
		return r

	case *ast.AssignExpression:
		if expr.Operator != token.ASSIGN {
			b.failf("unsupported compound assignment %s", expr.Operator)
		}
		src := b.lowerExpression(expr.Right)
		switch lhs := expr.Left.(type) {
		case *ast.Identifier:
			b.emit(&WriteVarNode{baseNode: baseNode{idx: expr.Idx0()}, Name: lhs.Name, Src: src})
		case *ast.DotExpression:
			base := b.lowerExpression(lhs.Left)
			b.emit(&WritePropNode{baseNode: baseNode{idx: expr.Idx0()}, Base: base, Prop: lhs.Identifier.Name, Src: src})
		default:
			b.failf("unsupported assignment target %T", expr.Left)
		}
		return src

	case *ast.BinaryExpression:
		op, ok := binOps[expr.Operator]
		if !ok {
			b.failf("unsupported binary operator %s", expr.Operator)
		}
		a1 := b.lowerExpression(expr.Left)
		a2 := b.lowerExpression(expr.Right)
		r := b.newReg()
		b.emit(&BinOpNode{baseNode: baseNode{idx: expr.Idx0()}, Op: op, Arg1: a1, Arg2: a2, Result: r})
		return r

	case *ast.UnaryExpression:
		op, ok := unOps[expr.Operator]
		if !ok {
			b.failf("unsupported unary operator %s", expr.Operator)
		}
		a := b.lowerExpression(expr.Operand)
		r := b.newReg()
		b.emit(&UnOpNode{baseNode: baseNode{idx: expr.Idx0()}, Op: op, Arg: a, Result: r})
		return r

	case *ast.DotExpression:
		base := b.lowerExpression(expr.Left)
		r := b.newReg()
		b.emit(&ReadPropNode{baseNode: baseNode{idx: expr.Idx0()}, Base: base, Prop: expr.Identifier.Name, Result: r})
		return r

	case *ast.ObjectLiteral:
		r := b.newReg()
		b.emit(&NewObjectNode{baseNode: baseNode{idx: expr.Idx0()}, Result: r})
		for _, prop := range expr.Value {
			if prop.Kind != "value" {
				b.failf("unsupported object literal property kind %q", prop.Kind)
			}
			v := b.lowerExpression(prop.Value)
			b.emit(&WritePropNode{baseNode: baseNode{idx: expr.Idx0()}, Base: r, Prop: prop.Key, Src: v})
		}
		return r

	case *ast.FunctionLiteral:
		return b.lowerFunctionLiteral(expr)

	case *ast.CallExpression:
		base, fun := b.lowerCallee(expr.Callee)
		args := make([]Reg, len(expr.ArgumentList))
		for i, a := range expr.ArgumentList {
			args[i] = b.lowerExpression(a)
		}
		return b.lowerCall(&CallNode{
			baseNode: baseNode{idx: expr.Idx0()},
			Base:     base,
			Fun:      fun,
			Args:     args,
		})

	case *ast.NewExpression:
		fun := b.lowerExpression(expr.Callee)
		args := make([]Reg, len(expr.ArgumentList))
		for i, a := range expr.ArgumentList {
			args[i] = b.lowerExpression(a)
		}
		return b.lowerCall(&CallNode{
			baseNode:    baseNode{idx: expr.Idx0()},
			Base:        NoReg,
			Fun:         fun,
			Args:        args,
			Constructor: true,
		})

	case *ast.SequenceExpression:
		r := NoReg
		for _, e := range expr.Sequence {
			r = b.lowerExpression(e)
		}
		return r

	default:
		b.failf("unsupported expression %T", expr)
		return NoReg
	}
}

func (b *builder) lowerCallee(callee ast.Expression) (base, fun Reg) {
	if dot, ok := callee.(*ast.DotExpression); ok {
		base = b.lowerExpression(dot.Left)
		fun = b.newReg()
		b.emit(&ReadPropNode{baseNode: baseNode{idx: dot.Idx0()}, Base: base, Prop: dot.Identifier.Name, Result: fun})
		return base, fun
	}
	return NoReg, b.lowerExpression(callee)
}

// lowerCall terminates the current block with the call node and starts
// the after-call block that receives the result.
func (b *builder) lowerCall(call *CallNode) Reg {
	call.Result = b.newReg()
	b.emit(call)
	after := b.fn.newBlock()
	b.cur.addSucc(after)
	b.cur = after
	return call.Result
}

func (b *builder) lowerFunctionLiteral(lit *ast.FunctionLiteral) Reg {
	fn := &Function{outer: b.fn}
	if lit.Name != nil {
		fn.name = lit.Name.Name
	}
	b.fg.addFunction(fn)

	params := make([]string, len(lit.ParameterList.List))
	for i, p := range lit.ParameterList.List {
		params[i] = p.Name
	}
	blk, ok := lit.Body.(*ast.BlockStatement)
	if !ok {
		b.failf("unsupported function body %T", lit.Body)
	}
	b.buildFunction(fn, params, lit.DeclarationList, blk.List)

	r := b.newReg()
	b.emit(&DeclareFunNode{baseNode: baseNode{idx: lit.Idx0()}, Fun: fn, Result: r})
	return r
}

var binOps = map[token.Token]BinOp{
	token.PLUS:             BinAdd,
	token.MINUS:            BinSub,
	token.MULTIPLY:         BinMul,
	token.SLASH:            BinDiv,
	token.REMAINDER:        BinRem,
	token.LESS:             BinLt,
	token.GREATER:          BinGt,
	token.LESS_OR_EQUAL:    BinLe,
	token.GREATER_OR_EQUAL: BinGe,
	token.EQUAL:            BinEq,
	token.NOT_EQUAL:        BinNe,
	token.STRICT_EQUAL:     BinStrictEq,
	token.STRICT_NOT_EQUAL: BinStrictNe,
}

var unOps = map[token.Token]UnOp{
	token.NOT:    UnNot,
	token.MINUS:  UnMinus,
	token.PLUS:   UnPlus,
	token.TYPEOF: UnTypeof,
}
