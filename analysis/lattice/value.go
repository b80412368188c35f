package lattice

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// valueFlags encode the primitive components of an abstract value.
type valueFlags uint32

const (
	flagUndef valueFlags = 1 << iota
	flagNull
	flagTrue
	flagFalse
	// Numbers: either the concrete singleton in the num field, or any
	// combination of the coarse components below.
	flagNumSingle
	flagNaN
	flagInf
	flagNumUInt
	flagNumOther
	// Strings: either the concrete singleton in the str field, or the
	// coarse components distinguishing numeric strings.
	flagStrSingle
	flagStrUInt
	flagStrOtherNum
	flagStrOther
	// The property may be absent entirely; orthogonal to the above.
	flagAbsent
)

const (
	flagAnyBool = flagTrue | flagFalse
	flagAnyNum  = flagNaN | flagInf | flagNumUInt | flagNumOther
	flagAnyStr  = flagStrUInt | flagStrOtherNum | flagStrOther
	flagMaybeNum = flagNumSingle | flagAnyNum
	flagMaybeStr = flagStrSingle | flagAnyStr
)

// attrFlags carry the property attributes (writable, enumerable,
// configurable) of a value when used as a property. Each attribute is
// three-valued: maybe-true, maybe-false, or both after joins.
type attrFlags uint16

const (
	attrWritable attrFlags = 1 << iota
	attrNotWritable
	attrEnumerable
	attrNotEnumerable
	attrConfigurable
	attrNotConfigurable
)

const attrDefault = attrWritable | attrEnumerable | attrConfigurable

// Value is a member of the abstract value lattice: a set of possible
// concrete JavaScript values, combining abstracted primitives with a
// set of object labels. Values are immutable; all operations return new
// values. The bottom value (none) is distinguishable from definite
// undefined.
type Value struct {
	flags valueFlags
	attrs attrFlags
	num   float64
	str   string
	objs  *labelSet
}

/* Constructors */

// MakeNone returns the bottom value: no concrete values at all. It is
// the zero Value, so unset registers and properties are bottom.
func MakeNone() Value { return Value{} }

// MakeUndef returns definite undefined.
func MakeUndef() Value { return Value{flags: flagUndef, attrs: attrDefault} }

// MakeNull returns definite null.
func MakeNull() Value { return Value{flags: flagNull, attrs: attrDefault} }

// MakeBool returns a definite boolean.
func MakeBool(b bool) Value {
	if b {
		return Value{flags: flagTrue, attrs: attrDefault}
	}
	return Value{flags: flagFalse, attrs: attrDefault}
}

// MakeAnyBool returns the boolean lattice top.
func MakeAnyBool() Value { return Value{flags: flagAnyBool, attrs: attrDefault} }

// MakeNum returns a concrete number singleton. NaN and infinities are
// normalized into their coarse components.
func MakeNum(n float64) Value {
	switch {
	case math.IsNaN(n):
		return Value{flags: flagNaN, attrs: attrDefault}
	case math.IsInf(n, 0):
		return Value{flags: flagInf, attrs: attrDefault}
	default:
		return Value{flags: flagNumSingle, num: n, attrs: attrDefault}
	}
}

// MakeAnyNum returns the number lattice top.
func MakeAnyNum() Value { return Value{flags: flagAnyNum, attrs: attrDefault} }

// MakeAnyNumUInt returns the abstraction of all unsigned integers.
func MakeAnyNumUInt() Value { return Value{flags: flagNumUInt, attrs: attrDefault} }

// MakeStr returns a concrete string singleton.
func MakeStr(s string) Value {
	return Value{flags: flagStrSingle, str: s, attrs: attrDefault}
}

// MakeAnyStr returns the string lattice top.
func MakeAnyStr() Value { return Value{flags: flagAnyStr, attrs: attrDefault} }

// MakeAnyStrUInt returns the abstraction of all array index strings.
func MakeAnyStrUInt() Value { return Value{flags: flagStrUInt, attrs: attrDefault} }

// MakeAbsent returns the value of a definitely absent property.
func MakeAbsent() Value { return Value{flags: flagAbsent, attrs: attrDefault} }

// MakeObject returns a value holding exactly the given object label.
func MakeObject(l ObjectLabel) Value {
	return Value{objs: (*labelSet)(nil).add(l), attrs: attrDefault}
}

/* Predicates */

// IsNone reports whether the value is bottom.
func (v Value) IsNone() bool { return v.flags == 0 && v.objs.size() == 0 }

func (v Value) IsMaybeUndef() bool  { return v.flags&flagUndef != 0 }
func (v Value) IsNotUndef() bool    { return v.flags&flagUndef == 0 }
func (v Value) IsMaybeNull() bool   { return v.flags&flagNull != 0 }
func (v Value) IsMaybeAbsent() bool { return v.flags&flagAbsent != 0 }
func (v Value) IsNotAbsent() bool   { return v.flags&flagAbsent == 0 }

// IsMaybeOtherThanUndef reports whether the value may be anything
// besides undefined (and absent).
func (v Value) IsMaybeOtherThanUndef() bool {
	return v.flags&^(flagUndef|flagAbsent) != 0 || v.objs.size() > 0
}

func (v Value) IsMaybeTrue() bool    { return v.flags&flagTrue != 0 }
func (v Value) IsMaybeFalse() bool   { return v.flags&flagFalse != 0 }
func (v Value) IsMaybeAnyBool() bool { return v.flags&flagAnyBool == flagAnyBool }

func (v Value) IsMaybeNum() bool       { return v.flags&flagMaybeNum != 0 }
func (v Value) IsMaybeSingleNum() bool { return v.flags&flagNumSingle != 0 }
func (v Value) IsMaybeFuzzyNum() bool  { return v.flags&flagAnyNum != 0 }
func (v Value) IsMaybeNaN() bool       { return v.flags&flagNaN != 0 }

// IsMaybeFuzzyNumOtherThanNaN reports whether the value has a coarse
// number component besides NaN. NaN is special: coarse in the lattice
// but a concrete singleton.
func (v Value) IsMaybeFuzzyNumOtherThanNaN() bool {
	return v.flags&(flagInf|flagNumUInt|flagNumOther) != 0
}

func (v Value) IsMaybeStr() bool       { return v.flags&flagMaybeStr != 0 }
func (v Value) IsMaybeSingleStr() bool { return v.flags&flagStrSingle != 0 }
func (v Value) IsMaybeFuzzyStr() bool  { return v.flags&flagAnyStr != 0 }
func (v Value) IsNotStr() bool         { return v.flags&flagMaybeStr == 0 }

func (v Value) IsMaybeObject() bool { return v.objs.size() > 0 }

// IsMaybeOtherThanStr reports whether the value may be anything besides
// a string (ignoring absent).
func (v Value) IsMaybeOtherThanStr() bool {
	return v.flags&^(flagMaybeStr|flagAbsent) != 0 || v.objs.size() > 0
}

// IsMaybePrimitive reports whether the value may be a primitive
// (including undefined and null).
func (v Value) IsMaybePrimitive() bool {
	return v.flags&^flagAbsent != 0
}

// Num returns the concrete number singleton. Must only be called when
// IsMaybeSingleNum holds.
func (v Value) Num() float64 {
	if !v.IsMaybeSingleNum() {
		panic(errUnsupportedOperation)
	}
	return v.num
}

// Str returns the concrete string singleton. Must only be called when
// IsMaybeSingleStr holds.
func (v Value) Str() string {
	if !v.IsMaybeSingleStr() {
		panic(errUnsupportedOperation)
	}
	return v.str
}

// ObjectLabels returns the object labels of the value.
func (v Value) ObjectLabels() []ObjectLabel {
	if v.objs == nil {
		return nil
	}
	return v.objs.labels
}

// ForEachObjectLabel visits every object label of the value.
func (v Value) ForEachObjectLabel(do func(ObjectLabel)) {
	if v.objs == nil {
		return
	}
	for _, l := range v.objs.labels {
		do(l)
	}
}

/* Attributes */

// SetAttributes sets all three property attributes to definite values.
func (v Value) SetAttributes(writable, enumerable, configurable bool) Value {
	var a attrFlags
	set := func(yes bool, t, f attrFlags) {
		if yes {
			a |= t
		} else {
			a |= f
		}
	}
	set(writable, attrWritable, attrNotWritable)
	set(enumerable, attrEnumerable, attrNotEnumerable)
	set(configurable, attrConfigurable, attrNotConfigurable)
	v.attrs = a
	return v
}

// IsMaybeWritable reports whether the property may be writable.
func (v Value) IsMaybeWritable() bool { return v.attrs&attrWritable != 0 }

/* Derived constructors */

// JoinObject adds an object label to the value.
func (v Value) JoinObject(l ObjectLabel) Value {
	v.objs = v.objs.add(l)
	return v
}

// JoinUndef adds undefined to the value.
func (v Value) JoinUndef() Value {
	v.flags |= flagUndef
	return v
}

// JoinNull adds null to the value.
func (v Value) JoinNull() Value {
	v.flags |= flagNull
	return v
}

// JoinAbsent adds absent to the value.
func (v Value) JoinAbsent() Value {
	v.flags |= flagAbsent
	return v
}

// RestrictToNotAbsent removes the absent component.
func (v Value) RestrictToNotAbsent() Value {
	v.flags &^= flagAbsent
	return v
}

func (v Value) String() string {
	if v.IsNone() {
		return colorize.Element("⊥")
	}
	strs := []string{}
	add := func(s string) { strs = append(strs, colorize.Element(s)) }
	if v.flags&flagUndef != 0 {
		add("undefined")
	}
	if v.flags&flagNull != 0 {
		add("null")
	}
	switch v.flags & flagAnyBool {
	case flagAnyBool:
		add("AnyBool")
	case flagTrue:
		add("true")
	case flagFalse:
		add("false")
	}
	if v.flags&flagNumSingle != 0 {
		add(strconv.FormatFloat(v.num, 'g', -1, 64))
	}
	if v.flags&flagAnyNum == flagAnyNum {
		add("AnyNum")
	} else {
		if v.flags&flagNaN != 0 {
			add("NaN")
		}
		if v.flags&flagInf != 0 {
			add("Inf")
		}
		if v.flags&flagNumUInt != 0 {
			add("AnyNumUInt")
		}
		if v.flags&flagNumOther != 0 {
			add("AnyNumOther")
		}
	}
	if v.flags&flagStrSingle != 0 {
		add(fmt.Sprintf("%q", v.str))
	}
	if v.flags&flagAnyStr == flagAnyStr {
		add("AnyStr")
	} else {
		if v.flags&flagStrUInt != 0 {
			add("AnyStrUInt")
		}
		if v.flags&flagStrOtherNum != 0 {
			add("AnyStrOtherNum")
		}
		if v.flags&flagStrOther != 0 {
			add("AnyStrOther")
		}
	}
	if v.flags&flagAbsent != 0 {
		add("absent")
	}
	if v.objs.size() > 0 {
		strs = append(strs, v.objs.String())
	}
	sort.Strings(strs)
	return strings.Join(strs, "|")
}
