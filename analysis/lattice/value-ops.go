package lattice

import (
	"math"
	"strconv"
)

// isArrayIndex reports whether s is the canonical string of a 32-bit
// unsigned integer, the property names arrays treat as indices.
func isArrayIndex(s string) bool {
	if s == "" {
		return false
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return false
	}
	return strconv.FormatUint(n, 10) == s
}

// isNumericString reports whether s parses as a number.
func isNumericString(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// numComponent returns the coarse component a concrete number widens
// into when its identity is lost.
func numComponent(n float64) valueFlags {
	if n >= 0 && n <= math.MaxUint32 && n == math.Trunc(n) {
		return flagNumUInt
	}
	return flagNumOther
}

// strComponent returns the coarse component a concrete string widens
// into when its identity is lost.
func strComponent(s string) valueFlags {
	switch {
	case isArrayIndex(s):
		return flagStrUInt
	case isNumericString(s):
		return flagStrOtherNum
	default:
		return flagStrOther
	}
}

// Join returns the least upper bound of two values. Joining distinct
// concrete numbers or strings widens them into their coarse components;
// this keeps the primitive component lattices finite and the solver
// terminating.
func (v Value) Join(o Value) Value {
	res := Value{
		flags: v.flags | o.flags,
		attrs: v.attrs | o.attrs,
		num:   v.num,
		str:   v.str,
		objs:  v.objs.union(o.objs),
	}
	if v.flags&flagNumSingle != 0 && o.flags&flagNumSingle != 0 && v.num != o.num {
		res.flags = res.flags&^flagNumSingle | numComponent(v.num) | numComponent(o.num)
		res.num = 0
	} else if o.flags&flagNumSingle != 0 {
		res.num = o.num
	}
	if v.flags&flagStrSingle != 0 && o.flags&flagStrSingle != 0 && v.str != o.str {
		res.flags = res.flags&^flagStrSingle | strComponent(v.str) | strComponent(o.str)
		res.str = ""
	} else if o.flags&flagStrSingle != 0 {
		res.str = o.str
	}
	// A singleton never coexists with a fuzzy component of its own
	// type: it widens into its coarse component. This normalization
	// keeps the representation canonical and the join associative.
	if res.flags&flagNumSingle != 0 && res.flags&flagAnyNum != 0 {
		res.flags = res.flags&^flagNumSingle | numComponent(res.num)
		res.num = 0
	}
	if res.flags&flagStrSingle != 0 && res.flags&flagAnyStr != 0 {
		res.flags = res.flags&^flagStrSingle | strComponent(res.str)
		res.str = ""
	}
	return res
}

// Eq reports whether two values are equal.
func (v Value) Eq(o Value) bool {
	return v.flags == o.flags && v.attrs == o.attrs &&
		v.num == o.num && v.str == o.str && v.objs.eq(o.objs)
}

// Leq reports whether v is below o in the lattice.
func (v Value) Leq(o Value) bool {
	return v.Join(o).Eq(o)
}

func (v Value) Geq(o Value) bool { return o.Leq(v) }

/* Restrictions */

// RestrictToTruthy keeps only the components that coerce to true. Used
// to refine branch conditions.
func (v Value) RestrictToTruthy() Value {
	flags := v.flags &^ (flagUndef | flagNull | flagFalse | flagAbsent | flagNaN)
	if flags&flagNumSingle != 0 && v.num == 0 {
		flags &^= flagNumSingle
		v.num = 0
	}
	if flags&flagStrSingle != 0 && v.str == "" {
		flags &^= flagStrSingle
		v.str = ""
	}
	// The coarse uint components contain 0 and "" but also truthy
	// members, so they survive restriction.
	v.flags = flags
	return v
}

// RestrictToFalsy keeps only the components that coerce to false.
func (v Value) RestrictToFalsy() Value {
	flags := v.flags & (flagUndef | flagNull | flagFalse | flagNaN | flagAbsent)
	num, str := 0.0, ""
	if (v.flags&flagNumSingle != 0 && v.num == 0) || v.flags&flagNumUInt != 0 {
		if flags&flagNaN != 0 {
			// A zero singleton cannot coexist with the NaN component.
			flags |= flagNumUInt
		} else {
			flags |= flagNumSingle
		}
	}
	if v.flags&flagStrSingle != 0 && v.str == "" {
		flags |= flagStrSingle
	} else if v.flags&flagStrOther != 0 {
		// The coarse other-string component contains the empty string.
		flags |= flagStrSingle
	}
	v.flags, v.num, v.str, v.objs = flags, num, str, nil
	return v
}

// RestrictToNum keeps the number components.
func (v Value) RestrictToNum() Value {
	return Value{flags: v.flags & flagMaybeNum, num: v.num, attrs: v.attrs}
}

// RestrictToStr keeps the string components.
func (v Value) RestrictToStr() Value {
	return Value{flags: v.flags & flagMaybeStr, str: v.str, attrs: v.attrs}
}

// RestrictToBool keeps the boolean components.
func (v Value) RestrictToBool() Value {
	return Value{flags: v.flags & flagAnyBool, attrs: v.attrs}
}

// RestrictToObject keeps the object component.
func (v Value) RestrictToObject() Value {
	return Value{objs: v.objs, attrs: v.attrs}
}

// RestrictToNotObject drops the object component.
func (v Value) RestrictToNotObject() Value {
	v.objs = nil
	return v
}

/* Coercions */

// ToBoolean abstracts the ToBoolean coercion.
func (v Value) ToBoolean() Value {
	t := v.RestrictToTruthy()
	f := v.RestrictToFalsy()
	switch {
	case t.IsNone() && f.IsNone():
		return MakeNone()
	case f.IsNone():
		return MakeBool(true)
	case t.IsNone():
		return MakeBool(false)
	default:
		return MakeAnyBool()
	}
}

// ToNumber abstracts the ToNumber coercion, ignoring objects (the
// caller handles ToPrimitive on the object component).
func (v Value) ToNumber() Value {
	res := MakeNone()
	if v.flags&flagUndef != 0 {
		res = res.Join(MakeNum(math.NaN()))
	}
	if v.flags&flagNull != 0 || v.flags&flagFalse != 0 {
		res = res.Join(MakeNum(0))
	}
	if v.flags&flagTrue != 0 {
		res = res.Join(MakeNum(1))
	}
	res = res.Join(Value{flags: v.flags & flagAnyNum, attrs: attrDefault})
	if v.flags&flagNumSingle != 0 {
		res = res.Join(MakeNum(v.num))
	}
	if v.flags&flagStrSingle != 0 {
		res = res.Join(MakeNum(numberFromString(v.str)))
	}
	if v.flags&(flagStrUInt|flagStrOtherNum) != 0 {
		res = res.Join(MakeAnyNum())
	}
	if v.flags&flagStrOther != 0 {
		res = res.Join(MakeNum(math.NaN()))
	}
	return res
}

// ToStr abstracts the ToString coercion for primitives.
func (v Value) ToStr() Value {
	res := MakeNone()
	if v.flags&flagUndef != 0 {
		res = res.Join(MakeStr("undefined"))
	}
	if v.flags&flagNull != 0 {
		res = res.Join(MakeStr("null"))
	}
	if v.flags&flagTrue != 0 {
		res = res.Join(MakeStr("true"))
	}
	if v.flags&flagFalse != 0 {
		res = res.Join(MakeStr("false"))
	}
	if v.flags&flagNumSingle != 0 {
		res = res.Join(MakeStr(NumberToString(v.num)))
	}
	if v.flags&flagNaN != 0 {
		res = res.Join(MakeStr("NaN"))
	}
	if v.flags&flagInf != 0 {
		res = res.Join(Value{flags: flagStrOther, attrs: attrDefault})
	}
	if v.flags&flagNumUInt != 0 {
		res = res.Join(Value{flags: flagStrUInt, attrs: attrDefault})
	}
	if v.flags&flagNumOther != 0 {
		res = res.Join(Value{flags: flagStrOtherNum, attrs: attrDefault})
	}
	if v.flags&flagStrSingle != 0 {
		res = res.Join(MakeStr(v.str))
	}
	res = res.Join(Value{flags: v.flags & flagAnyStr, attrs: attrDefault})
	return res
}

// Typeof abstracts the typeof operator on the value.
func (v Value) Typeof() Value {
	res := MakeNone()
	if v.flags&(flagUndef|flagAbsent) != 0 {
		res = res.Join(MakeStr("undefined"))
	}
	if v.flags&flagNull != 0 {
		res = res.Join(MakeStr("object"))
	}
	if v.flags&flagAnyBool != 0 {
		res = res.Join(MakeStr("boolean"))
	}
	if v.flags&flagMaybeNum != 0 {
		res = res.Join(MakeStr("number"))
	}
	if v.flags&flagMaybeStr != 0 {
		res = res.Join(MakeStr("string"))
	}
	v.ForEachObjectLabel(func(l ObjectLabel) {
		if l.Kind() == KFunction {
			res = res.Join(MakeStr("function"))
		} else {
			res = res.Join(MakeStr("object"))
		}
	})
	return res
}

// numberFromString implements the ToNumber coercion of a concrete
// string.
func numberFromString(s string) float64 {
	trimmed := trimJSWhitespace(s)
	if trimmed == "" {
		return 0
	}
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return math.NaN()
	}
	return n
}

func trimJSWhitespace(s string) string {
	isWS := func(r byte) bool {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			return true
		}
		return false
	}
	i, j := 0, len(s)
	for i < j && isWS(s[i]) {
		i++
	}
	for j > i && isWS(s[j-1]) {
		j--
	}
	return s[i:j]
}

// NumberToString renders a number the way JavaScript ToString does for
// the common cases.
func NumberToString(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == math.Trunc(n) && math.Abs(n) < 1e21:
		return strconv.FormatFloat(n, 'f', -1, 64)
	default:
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
}
