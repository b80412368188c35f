// Package concrete bridges the abstract domain to concrete JavaScript
// execution. When every operand of a native call is a concrete
// singleton, the call is executed for real on an embedded interpreter
// and the result abstracted back, instead of modelling the native
// abstractly.
package concrete

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cs-au-dk/jstar/analysis/lattice"

	"github.com/pkg/errors"
	"github.com/robertkrimen/otto"
)

// A Value is a concrete JavaScript value.
type Value interface {
	fmt.Stringer
	isValue()
}

type (
	Undefined struct{}
	Null      struct{}
	Boolean   bool
	Number    float64
	String    string

	// Object is a plain object given by its enumerable properties.
	Object struct {
		Properties map[string]Value
	}

	// Array is an array given by its elements plus any non-index
	// properties (exec results carry index and input).
	Array struct {
		Elements   []Value
		Properties map[string]Value
	}

	// RegExp is a regular expression object.
	RegExp struct {
		Pattern   string
		Flags     string
		LastIndex float64
	}
)

func (Undefined) isValue() {}
func (Null) isValue()      {}
func (Boolean) isValue()   {}
func (Number) isValue()    {}
func (String) isValue()    {}
func (Object) isValue()    {}
func (Array) isValue()     {}
func (RegExp) isValue()    {}

func (Undefined) String() string { return "undefined" }
func (Null) String() string      { return "null" }
func (b Boolean) String() string { return strconv.FormatBool(bool(b)) }
func (n Number) String() string  { return lattice.NumberToString(float64(n)) }
func (s String) String() string  { return strconv.Quote(string(s)) }

func (o Object) String() string {
	keys := make([]string, 0, len(o.Properties))
	for k := range o.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + o.Properties[k].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (a Array) String() string {
	parts := make([]string, len(a.Elements))
	for i, el := range a.Elements {
		parts[i] = el.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (r RegExp) String() string {
	return "/" + r.Pattern + "/" + r.Flags
}

// ErrNotConcrete reports that an abstract value covers more than one
// concrete value and cannot be concretized.
var ErrNotConcrete = errors.New("value is not concrete")

// Gamma concretizes an abstract value covering exactly one primitive.
// Object components must be concretized by the caller, which owns the
// abstract heap.
func Gamma(v lattice.Value) (Value, error) {
	if v.IsMaybeObject() {
		return nil, ErrNotConcrete
	}
	cands := []Value{}
	if v.IsMaybeUndef() || v.IsMaybeAbsent() {
		cands = append(cands, Undefined{})
	}
	if v.IsMaybeNull() {
		cands = append(cands, Null{})
	}
	if v.IsMaybeTrue() {
		cands = append(cands, Boolean(true))
	}
	if v.IsMaybeFalse() {
		cands = append(cands, Boolean(false))
	}
	if v.IsMaybeSingleNum() {
		cands = append(cands, Number(v.Num()))
	}
	if v.IsMaybeNaN() {
		// NaN is coarse in the lattice but concretely a singleton.
		cands = append(cands, Number(math.NaN()))
	}
	if v.IsMaybeFuzzyNumOtherThanNaN() {
		return nil, ErrNotConcrete
	}
	if v.IsMaybeSingleStr() {
		cands = append(cands, String(v.Str()))
	}
	if v.IsMaybeFuzzyStr() {
		return nil, ErrNotConcrete
	}
	if len(cands) != 1 {
		return nil, ErrNotConcrete
	}
	return cands[0], nil
}

// Alpha abstracts a concrete primitive. Objects return false; the
// caller must allocate them in the abstract heap.
func Alpha(v Value) (lattice.Value, bool) {
	switch c := v.(type) {
	case Undefined:
		return lattice.MakeUndef(), true
	case Null:
		return lattice.MakeNull(), true
	case Boolean:
		return lattice.MakeBool(bool(c)), true
	case Number:
		return lattice.MakeNum(float64(c)), true
	case String:
		return lattice.MakeStr(string(c)), true
	default:
		return lattice.Value{}, false
	}
}

// Apply executes the native function denoted by funExpr (a JavaScript
// expression such as "RegExp.prototype.exec") on a fresh interpreter
// with the given concrete receiver and arguments, and returns the
// concrete result. JavaScript exceptions thrown by the call are
// returned as errors.
func Apply(funExpr string, this Value, args []Value) (Value, error) {
	vm := otto.New()
	fn, err := vm.Run(funExpr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving native %s", funExpr)
	}
	thisOtto, err := toOtto(vm, this)
	if err != nil {
		return nil, err
	}
	argList := make([]interface{}, len(args))
	for i, arg := range args {
		ov, err := toOtto(vm, arg)
		if err != nil {
			return nil, err
		}
		argList[i] = ov
	}
	res, err := fn.Call(thisOtto, argList...)
	if err != nil {
		return nil, err
	}
	return fromOtto(res)
}

func toOtto(vm *otto.Otto, v Value) (otto.Value, error) {
	switch c := v.(type) {
	case nil, Undefined:
		return otto.UndefinedValue(), nil
	case Null:
		return otto.NullValue(), nil
	case Boolean:
		return vm.ToValue(bool(c))
	case Number:
		return vm.ToValue(float64(c))
	case String:
		return vm.ToValue(string(c))
	case RegExp:
		obj, err := vm.Object(fmt.Sprintf("new RegExp(%s, %s)",
			strconv.Quote(c.Pattern), strconv.Quote(c.Flags)))
		if err != nil {
			return otto.Value{}, errors.Wrap(err, "constructing concrete RegExp")
		}
		if err := obj.Set("lastIndex", c.LastIndex); err != nil {
			return otto.Value{}, err
		}
		return obj.Value(), nil
	case Object:
		obj, err := vm.Object("({})")
		if err != nil {
			return otto.Value{}, err
		}
		for name, pv := range c.Properties {
			ov, err := toOtto(vm, pv)
			if err != nil {
				return otto.Value{}, err
			}
			if err := obj.Set(name, ov); err != nil {
				return otto.Value{}, err
			}
		}
		return obj.Value(), nil
	case Array:
		obj, err := vm.Object("([])")
		if err != nil {
			return otto.Value{}, err
		}
		for i, el := range c.Elements {
			ov, err := toOtto(vm, el)
			if err != nil {
				return otto.Value{}, err
			}
			if err := obj.Set(strconv.Itoa(i), ov); err != nil {
				return otto.Value{}, err
			}
		}
		for name, pv := range c.Properties {
			ov, err := toOtto(vm, pv)
			if err != nil {
				return otto.Value{}, err
			}
			if err := obj.Set(name, ov); err != nil {
				return otto.Value{}, err
			}
		}
		return obj.Value(), nil
	default:
		return otto.Value{}, errors.Errorf("cannot pass %v to concrete execution", v)
	}
}

func fromOtto(v otto.Value) (Value, error) {
	switch {
	case v.IsUndefined():
		return Undefined{}, nil
	case v.IsNull():
		return Null{}, nil
	case v.IsBoolean():
		b, err := v.ToBoolean()
		return Boolean(b), err
	case v.IsNumber():
		n, err := v.ToFloat()
		return Number(n), err
	case v.IsString():
		s, err := v.ToString()
		return String(s), err
	case v.IsObject():
		obj := v.Object()
		if obj.Class() == "RegExp" {
			re := RegExp{}
			get := func(name string) (Value, error) {
				pv, err := obj.Get(name)
				if err != nil {
					return nil, err
				}
				return fromOtto(pv)
			}
			src, err := get("source")
			if err != nil {
				return nil, err
			}
			if s, ok := src.(String); ok {
				re.Pattern = string(s)
			}
			for _, f := range []struct {
				prop string
				flag string
			}{{"global", "g"}, {"ignoreCase", "i"}, {"multiline", "m"}} {
				b, err := get(f.prop)
				if err != nil {
					return nil, err
				}
				if bb, ok := b.(Boolean); ok && bool(bb) {
					re.Flags += f.flag
				}
			}
			li, err := get("lastIndex")
			if err != nil {
				return nil, err
			}
			if n, ok := li.(Number); ok {
				re.LastIndex = float64(n)
			}
			return re, nil
		}
		if obj.Class() == "Array" {
			lengthVal, err := obj.Get("length")
			if err != nil {
				return nil, err
			}
			length, err := lengthVal.ToInteger()
			if err != nil {
				return nil, err
			}
			arr := Array{
				Elements:   make([]Value, length),
				Properties: map[string]Value{},
			}
			for i := int64(0); i < length; i++ {
				el, err := obj.Get(strconv.FormatInt(i, 10))
				if err != nil {
					return nil, err
				}
				arr.Elements[i], err = fromOtto(el)
				if err != nil {
					return nil, err
				}
			}
			for _, key := range obj.Keys() {
				if _, err := strconv.ParseUint(key, 10, 32); err == nil || key == "length" {
					continue
				}
				pv, err := obj.Get(key)
				if err != nil {
					return nil, err
				}
				arr.Properties[key], err = fromOtto(pv)
				if err != nil {
					return nil, err
				}
			}
			return arr, nil
		}
		res := Object{Properties: map[string]Value{}}
		for _, key := range obj.Keys() {
			pv, err := obj.Get(key)
			if err != nil {
				return nil, err
			}
			res.Properties[key], err = fromOtto(pv)
			if err != nil {
				return nil, err
			}
		}
		return res, nil
	default:
		return nil, errors.New("unexpected concrete result")
	}
}
