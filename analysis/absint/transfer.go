package absint

import (
	"math"

	"github.com/cs-au-dk/jstar/analysis/cfg"
	"github.com/cs-au-dk/jstar/analysis/defs"
	"github.com/cs-au-dk/jstar/analysis/lattice"
	"github.com/cs-au-dk/jstar/analysis/monitoring"
)

// transferNode applies the semantics of a single non-terminator node to
// the state in place. It returns false when execution definitely stops
// at the node (the node always throws).
func (s *Solver) transferNode(cl defs.CtrLoc, state *lattice.State, n cfg.Node) bool {
	switch n := n.(type) {
	case *cfg.NopNode:

	case *cfg.ConstantNode:
		state.SetRegister(n.Result, constValue(n))

	case *cfg.DeclareVarNode:
		s.declareVar(state, n.Name)

	case *cfg.ReadVarNode:
		v, found := state.ReadVar(n.Name)
		if !found {
			s.monitor.Report(n, monitoring.HIGH,
				"ReferenceError: %s is not defined", n.Name)
			s.maybeThrow(cl, state, n)
			return false
		}
		if v.IsMaybeAbsent() {
			s.monitor.Report(n, monitoring.MEDIUM,
				"ReferenceError: %s may not be defined", n.Name)
			s.maybeThrow(cl, state, n)
			v = v.RestrictToNotAbsent()
		}
		state.SetRegister(n.Result, v)

	case *cfg.WriteVarNode:
		state.WriteVar(n.Name, state.GetRegister(n.Src))

	case *cfg.ThisNode:
		state.SetRegister(n.Result, state.ThisVal())

	case *cfg.BinOpNode:
		v := transferBinOp(n.Op, state.GetRegister(n.Arg1), state.GetRegister(n.Arg2))
		state.SetRegister(n.Result, v)

	case *cfg.UnOpNode:
		state.SetRegister(n.Result, transferUnOp(n.Op, state.GetRegister(n.Arg)))

	case *cfg.NewObjectNode:
		label := lattice.MakeObjectLabel(n, lattice.KObject)
		state.PutObject(label, lattice.NewObject(lattice.MakeObject(s.globals.ObjectProto)))
		state.SetRegister(n.Result, lattice.MakeObject(label))

	case *cfg.DeclareFunNode:
		state.SetRegister(n.Result, s.declareFun(state, n))

	case *cfg.ReadPropNode:
		base := state.GetRegister(n.Base)
		if base.IsMaybeUndef() || base.IsMaybeNull() {
			s.monitor.Report(n, monitoring.MEDIUM,
				"TypeError: cannot read property %q of null or undefined", n.Prop)
			s.maybeThrow(cl, state, n)
		}
		if !base.IsMaybeObject() {
			if !base.IsMaybeOtherThanUndef() && !base.IsMaybeNull() {
				return false
			}
			// Properties of primitives are outside the modelled
			// built-ins; undefined is the sound default for the
			// properties the analysis does not track.
			state.SetRegister(n.Result, lattice.MakeUndef())
			return true
		}
		v := state.ReadPropertyValue(base, n.Prop)
		if base.RestrictToNotObject().IsMaybeOtherThanUndef() {
			v = v.JoinUndef()
		}
		state.SetRegister(n.Result, v)

	case *cfg.WritePropNode:
		base := state.GetRegister(n.Base)
		if base.IsMaybeUndef() || base.IsMaybeNull() {
			s.monitor.Report(n, monitoring.MEDIUM,
				"TypeError: cannot set property %q of null or undefined", n.Prop)
			s.maybeThrow(cl, state, n)
		}
		if !base.IsMaybeObject() {
			return base.IsMaybeOtherThanUndef() || base.IsMaybeNull()
		}
		state.WriteProperty(base, n.Prop, state.GetRegister(n.Src))

	case *cfg.ReturnNode:
		if n.Value == cfg.NoReg {
			state.JoinRetVal(lattice.MakeUndef())
		} else {
			state.JoinRetVal(state.GetRegister(n.Value))
		}

	default:
		panic(errUnsupportedNode{n})
	}
	return true
}

type errUnsupportedNode struct{ n cfg.Node }

func (e errUnsupportedNode) Error() string {
	return "no transfer function for node: " + e.n.String()
}

func constValue(n *cfg.ConstantNode) lattice.Value {
	switch n.Kind {
	case cfg.ConstNumber:
		return lattice.MakeNum(n.Num)
	case cfg.ConstString:
		return lattice.MakeStr(n.Str)
	case cfg.ConstBoolean:
		return lattice.MakeBool(n.Bool)
	case cfg.ConstNull:
		return lattice.MakeNull()
	default:
		return lattice.MakeUndef()
	}
}

// declareVar introduces a hoisted binding without clobbering a binding
// that already flowed in.
func (s *Solver) declareVar(state *lattice.State, name string) {
	for _, chain := range state.Scope() {
		binding := state.GetObject(chain.Obj()).GetProperty(name)
		switch {
		case binding.RestrictToNotAbsent().IsNone():
			state.GetObjectW(chain.Obj()).SetProperty(name, lattice.MakeUndef())
		case binding.IsMaybeAbsent():
			state.GetObjectW(chain.Obj()).SetProperty(name,
				binding.RestrictToNotAbsent().JoinUndef())
		}
	}
}

// declareFun allocates the function object and its prototype object.
func (s *Solver) declareFun(state *lattice.State, n *cfg.DeclareFunNode) lattice.Value {
	funLabel := lattice.MakeObjectLabel(n, lattice.KFunction)
	protoLabel := lattice.MakeObjectLabel(n, lattice.KObject)

	proto := lattice.NewObject(lattice.MakeObject(s.globals.ObjectProto))
	proto.SetProperty("constructor", lattice.MakeObject(funLabel).SetAttributes(true, false, true))
	state.PutObject(protoLabel, proto)

	fun := lattice.NewFunctionObject(
		lattice.MakeObject(s.globals.FunctionProto), n.Fun, state.Scope())
	fun.SetProperty("prototype", lattice.MakeObject(protoLabel).SetAttributes(true, false, false))
	fun.SetProperty("length",
		lattice.MakeNum(float64(len(n.Fun.Params()))).SetAttributes(false, false, false))
	state.PutObject(funLabel, fun)
	return lattice.MakeObject(funLabel)
}

// maybeThrow routes a clone of the state to the exceptional successor
// with an error object allocated at the offending node.
func (s *Solver) maybeThrow(cl defs.CtrLoc, state *lattice.State, n cfg.Node) {
	excSucc := cl.Block().ExcSucc()
	if excSucc == nil {
		return
	}
	errLabel := lattice.MakeObjectLabel(n, lattice.KError)
	exc := state.Clone()
	exc.PutObject(errLabel, lattice.NewObject(lattice.MakeObject(s.globals.ErrorProto)))
	exc.JoinExcVal(lattice.MakeObject(errLabel))
	s.propagate(cl.Derive(excSucc), exc)
}

/* Operators */

// toPrimitive reduces the object component of an operand to an
// abstract primitive. Objects stringify in ways the abstraction does
// not track, so they widen to any string or number.
func toPrimitive(v lattice.Value) lattice.Value {
	if !v.IsMaybeObject() {
		return v
	}
	return v.RestrictToNotObject().Join(lattice.MakeAnyStr()).Join(lattice.MakeAnyNum())
}

// singleNum reports whether the value's number component is exactly one
// concrete number.
func singleNum(v lattice.Value) bool {
	return v.IsMaybeSingleNum() && !v.IsMaybeFuzzyNum()
}

// singleStr reports whether the value's string component is exactly one
// concrete string.
func singleStr(v lattice.Value) bool {
	return v.IsMaybeSingleStr() && !v.IsMaybeFuzzyStr()
}

func transferBinOp(op cfg.BinOp, v1, v2 lattice.Value) lattice.Value {
	if v1.IsNone() || v2.IsNone() {
		return lattice.MakeNone()
	}
	p1, p2 := toPrimitive(v1), toPrimitive(v2)
	switch op {
	case cfg.BinAdd:
		return transferAdd(p1, p2)
	case cfg.BinSub, cfg.BinMul, cfg.BinDiv, cfg.BinRem:
		return transferArith(op, p1.ToNumber(), p2.ToNumber())
	case cfg.BinLt, cfg.BinGt, cfg.BinLe, cfg.BinGe:
		return transferCompare(op, p1, p2)
	case cfg.BinEq, cfg.BinNe:
		return transferLooseEq(op, v1, v2)
	default:
		return transferStrictEq(op, v1, v2)
	}
}

// transferAdd models addition: string concatenation when either operand
// may be a string, numeric addition when both may be non-strings, and
// the join when both outcomes are possible.
func transferAdd(v1, v2 lattice.Value) lattice.Value {
	res := lattice.MakeNone()
	if v1.IsMaybeStr() || v2.IsMaybeStr() {
		s1, s2 := v1.ToStr(), v2.ToStr()
		if singleStr(s1) && singleStr(s2) {
			res = res.Join(lattice.MakeStr(s1.Str() + s2.Str()))
		} else {
			res = res.Join(lattice.MakeAnyStr())
		}
	}
	// The numeric outcome requires both operands to possibly be
	// non-strings.
	if v1.IsMaybeOtherThanStr() && v2.IsMaybeOtherThanStr() {
		if v1.IsNotStr() && v2.IsNotStr() {
			res = res.Join(transferArith(cfg.BinAdd, v1.ToNumber(), v2.ToNumber()))
		} else {
			res = res.Join(lattice.MakeAnyNum())
		}
	}
	return res
}

func transferArith(op cfg.BinOp, n1, n2 lattice.Value) lattice.Value {
	if n1.IsNone() || n2.IsNone() {
		return lattice.MakeNone()
	}
	if singleNum(n1) && singleNum(n2) {
		a, b := n1.Num(), n2.Num()
		switch op {
		case cfg.BinAdd:
			return lattice.MakeNum(a + b)
		case cfg.BinSub:
			return lattice.MakeNum(a - b)
		case cfg.BinMul:
			return lattice.MakeNum(a * b)
		case cfg.BinDiv:
			return lattice.MakeNum(a / b)
		case cfg.BinRem:
			return lattice.MakeNum(math.Mod(a, b))
		}
	}
	onlyNaN := func(v lattice.Value) bool {
		return v.IsMaybeNaN() && !v.IsMaybeSingleNum() && !v.IsMaybeFuzzyNumOtherThanNaN()
	}
	if onlyNaN(n1) || onlyNaN(n2) {
		return lattice.MakeNum(math.NaN())
	}
	return lattice.MakeAnyNum()
}

func transferCompare(op cfg.BinOp, v1, v2 lattice.Value) lattice.Value {
	onlyStr := func(v lattice.Value) bool {
		return singleStr(v) && !v.IsMaybeOtherThanStr()
	}
	onlyNum := func(v lattice.Value) bool {
		return singleNum(v) && v.IsNotStr() && !v.IsMaybeUndef() && !v.IsMaybeNull() &&
			!v.IsMaybeTrue() && !v.IsMaybeFalse() && !v.IsMaybeObject()
	}
	if onlyStr(v1) && onlyStr(v2) {
		a, b := v1.Str(), v2.Str()
		return lattice.MakeBool(compareOrdered(op, a < b, a > b, a == b))
	}
	if onlyNum(v1) && onlyNum(v2) {
		a, b := v1.Num(), v2.Num()
		return lattice.MakeBool(compareOrdered(op, a < b, a > b, a == b))
	}
	return lattice.MakeAnyBool()
}

func compareOrdered(op cfg.BinOp, lt, gt, eq bool) bool {
	switch op {
	case cfg.BinLt:
		return lt
	case cfg.BinGt:
		return gt
	case cfg.BinLe:
		return lt || eq
	default:
		return gt || eq
	}
}

func transferStrictEq(op cfg.BinOp, v1, v2 lattice.Value) lattice.Value {
	res := strictEqBool(v1, v2)
	if op == cfg.BinStrictNe {
		res = negateBool(res)
	}
	return res
}

func negateBool(v lattice.Value) lattice.Value {
	switch {
	case v.IsMaybeAnyBool():
		return v
	case v.IsMaybeTrue():
		return lattice.MakeBool(false)
	case v.IsMaybeFalse():
		return lattice.MakeBool(true)
	default:
		return lattice.MakeNone()
	}
}

func strictEqBool(v1, v2 lattice.Value) lattice.Value {
	if !overlap(v1, v2) {
		return lattice.MakeBool(false)
	}
	switch {
	case exactly(v1, v2, singleNum):
		return lattice.MakeBool(v1.Num() == v2.Num())
	case exactly(v1, v2, singleStr):
		return lattice.MakeBool(v1.Str() == v2.Str())
	case exactly(v1, v2, lattice.Value.IsMaybeUndef),
		exactly(v1, v2, lattice.Value.IsMaybeNull),
		exactly(v1, v2, lattice.Value.IsMaybeTrue),
		exactly(v1, v2, lattice.Value.IsMaybeFalse):
		return lattice.MakeBool(true)
	}
	return lattice.MakeAnyBool()
}

// exactly reports whether pred describes the only component of both
// values.
func exactly(v1, v2 lattice.Value, pred func(lattice.Value) bool) bool {
	only := func(v lattice.Value) bool {
		if !pred(v) || v.IsMaybeObject() {
			return false
		}
		count := 0
		for _, p := range []bool{
			v.IsMaybeUndef(), v.IsMaybeNull(), v.IsMaybeTrue(), v.IsMaybeFalse(),
			v.IsMaybeNum(), v.IsMaybeStr(),
		} {
			if p {
				count++
			}
		}
		return count == 1
	}
	return only(v1) && only(v2)
}

func overlap(v1, v2 lattice.Value) bool {
	if v1.IsMaybeUndef() && v2.IsMaybeUndef() ||
		v1.IsMaybeNull() && v2.IsMaybeNull() ||
		v1.IsMaybeTrue() && v2.IsMaybeTrue() ||
		v1.IsMaybeFalse() && v2.IsMaybeFalse() ||
		v1.IsMaybeNum() && v2.IsMaybeNum() ||
		v1.IsMaybeStr() && v2.IsMaybeStr() {
		return true
	}
	for _, l := range v1.ObjectLabels() {
		for _, l2 := range v2.ObjectLabels() {
			if l == l2 {
				return true
			}
		}
	}
	return false
}

// transferLooseEq resolves loose equality only for identical singleton
// types; the coercion table makes everything else any-bool, except
// clearly disjoint primitives without coercion partners.
func transferLooseEq(op cfg.BinOp, v1, v2 lattice.Value) lattice.Value {
	res := lattice.MakeAnyBool()
	switch {
	case exactly(v1, v2, singleNum):
		res = lattice.MakeBool(v1.Num() == v2.Num())
	case exactly(v1, v2, singleStr):
		res = lattice.MakeBool(v1.Str() == v2.Str())
	case exactly(v1, v2, lattice.Value.IsMaybeUndef),
		exactly(v1, v2, lattice.Value.IsMaybeNull):
		res = lattice.MakeBool(true)
	}
	if op == cfg.BinNe {
		res = negateBool(res)
	}
	return res
}

func transferUnOp(op cfg.UnOp, v lattice.Value) lattice.Value {
	if v.IsNone() {
		return lattice.MakeNone()
	}
	switch op {
	case cfg.UnNot:
		return negateBool(v.ToBoolean())
	case cfg.UnMinus:
		n := toPrimitive(v).ToNumber()
		if singleNum(n) {
			return lattice.MakeNum(-n.Num())
		}
		return n
	case cfg.UnPlus:
		return toPrimitive(v).ToNumber()
	case cfg.UnTypeof:
		return v.Typeof()
	}
	return lattice.MakeNone()
}
