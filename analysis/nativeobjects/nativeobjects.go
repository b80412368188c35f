// Package nativeobjects models the built-in objects of the language.
// Each native function either executes concretely, when all operands
// are concrete singletons, or falls back to a sound abstract summary.
package nativeobjects

import (
	"strings"

	"github.com/cs-au-dk/jstar/analysis/cfg"
	"github.com/cs-au-dk/jstar/analysis/lattice"
	"github.com/cs-au-dk/jstar/analysis/monitoring"
	"github.com/cs-au-dk/jstar/analysis/nativeobjects/concrete"

	log "github.com/sirupsen/logrus"
)

// Native function identifiers. Zero is reserved for "not native".
const (
	_ lattice.NativeID = iota
	ObjectCtor
	ArrayCtor
	RegExpCtor
	RegExpExec
	RegExpTest
	RegExpToString
	// Eval is handled by the interpreter loop itself, which owns the
	// machinery to lower and analyze dynamically constructed code;
	// Invoke never sees it.
	Eval
)

// Globals names the well-known object labels the initial state builder
// allocates; natives link freshly allocated objects to the right
// prototypes through it.
type Globals struct {
	Global        lattice.ObjectLabel
	ObjectProto   lattice.ObjectLabel
	FunctionProto lattice.ObjectLabel
	ArrayProto    lattice.ObjectLabel
	RegExpProto   lattice.ObjectLabel
	ErrorProto    lattice.ObjectLabel
}

// A Call carries everything a native model needs: the heap to read and
// allocate in, the call site (which doubles as allocation site for
// result objects), operands, and the diagnostics sink.
type Call struct {
	State       *lattice.State
	Globals     *Globals
	Site        *cfg.CallNode
	This        lattice.Value
	Args        []lattice.Value
	Constructor bool
	Monitor     monitoring.Monitor
}

// Arg returns the i'th argument, or undefined past the end.
func (c *Call) Arg(i int) lattice.Value {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return lattice.MakeUndef()
}

// Invoke runs the native model. The bool result reports whether the
// call produces a result at all; false means the call definitely
// throws (the model has reported the diagnostic).
func Invoke(id lattice.NativeID, c *Call) (lattice.Value, bool) {
	switch id {
	case ObjectCtor:
		return objectCtor(c)
	case ArrayCtor:
		return arrayCtor(c)
	case RegExpCtor:
		return regexpCtor(c)
	case RegExpExec:
		return regexpExec(c)
	case RegExpTest:
		return regexpTest(c)
	case RegExpToString:
		return regexpToString(c)
	default:
		log.WithField("native", int(id)).Warn("unmodelled native, result is AnyValue")
		c.Monitor.Report(c.Site, monitoring.LOW, "call to unmodelled native function")
		return lattice.MakeUndef().Join(lattice.MakeAnyNum()).
			Join(lattice.MakeAnyStr()).Join(lattice.MakeAnyBool()), true
	}
}

func objectCtor(c *Call) (lattice.Value, bool) {
	label := lattice.MakeObjectLabel(c.Site, lattice.KObject)
	c.State.PutObject(label, lattice.NewObject(lattice.MakeObject(c.Globals.ObjectProto)))
	return lattice.MakeObject(label), true
}

func arrayCtor(c *Call) (lattice.Value, bool) {
	label := lattice.MakeObjectLabel(c.Site, lattice.KArray)
	arr := lattice.NewObject(lattice.MakeObject(c.Globals.ArrayProto))
	length := lattice.MakeNum(0)
	switch {
	case len(c.Args) == 1 && c.Arg(0).IsMaybeNum():
		length = c.Arg(0).RestrictToNum()
		if length.IsMaybeFuzzyNum() {
			length = lattice.MakeAnyNumUInt()
		}
	case len(c.Args) >= 1:
		// new Array(e0, e1, ...) fills elements.
		for i := range c.Args {
			arr.SetProperty(lattice.NumberToString(float64(i)), c.Args[i])
		}
		length = lattice.MakeNum(float64(len(c.Args)))
	}
	arr.SetProperty("length", length.SetAttributes(true, false, false))
	c.State.PutObject(label, arr)
	return lattice.MakeObject(label), true
}

/* RegExp */

// validFlags checks a concrete flags string: any of g, i, m at most
// once each.
func validFlags(flags string) bool {
	seen := map[rune]bool{}
	for _, r := range flags {
		if !strings.ContainsRune("gim", r) || seen[r] {
			return false
		}
		seen[r] = true
	}
	return true
}

func regexpCtor(c *Call) (lattice.Value, bool) {
	pattern, flags := c.Arg(0), c.Arg(1)

	// RegExp(r) and new RegExp(r) with an existing RegExp object and no
	// flags pass the object through.
	if pattern.IsMaybeObject() && flags.IsNotUndef() {
		c.Monitor.Report(c.Site, monitoring.HIGH,
			"TypeError: cannot supply flags when constructing one RegExp from another")
	}
	passthrough := lattice.MakeNone()
	for _, l := range pattern.ObjectLabels() {
		if l.Kind() == lattice.KRegExp {
			passthrough = passthrough.JoinObject(l)
		}
	}
	pattern = pattern.RestrictToNotObject()
	if pattern.IsNone() && !pattern.IsMaybeUndef() {
		if !passthrough.IsNone() {
			return passthrough, true
		}
	}

	label := lattice.MakeObjectLabel(c.Site, lattice.KRegExp)
	re := lattice.NewObject(lattice.MakeObject(c.Globals.RegExpProto))

	src, srcErr := concrete.Gamma(pattern.ToStr())
	if pattern.IsMaybeUndef() && pattern.RestrictToNotAbsent().IsNotStr() {
		// new RegExp() means empty pattern, not "undefined".
		src, srcErr = concrete.String(""), nil
	}
	flg, flgErr := concrete.Gamma(flags.ToStr())
	if flags.IsMaybeUndef() {
		flg, flgErr = concrete.String(""), nil
	}

	if srcErr == nil && flgErr == nil {
		source, flagStr := string(src.(concrete.String)), string(flg.(concrete.String))
		if !validFlags(flagStr) {
			c.Monitor.Report(c.Site, monitoring.HIGH,
				"SyntaxError: invalid regular expression flags %q", flagStr)
			return passthroughOrNone(passthrough)
		}
		// Pattern syntax is validated by the concrete engine.
		if _, err := concrete.Apply("RegExp", concrete.Undefined{},
			[]concrete.Value{src, flg}); err != nil {
			c.Monitor.Report(c.Site, monitoring.HIGH,
				"SyntaxError: invalid regular expression %q", source)
			return passthroughOrNone(passthrough)
		}
		re.SetProperty("source", lattice.MakeStr(source).SetAttributes(false, false, false))
		re.SetProperty("global", lattice.MakeBool(strings.Contains(flagStr, "g")).SetAttributes(false, false, false))
		re.SetProperty("ignoreCase", lattice.MakeBool(strings.Contains(flagStr, "i")).SetAttributes(false, false, false))
		re.SetProperty("multiline", lattice.MakeBool(strings.Contains(flagStr, "m")).SetAttributes(false, false, false))
		re.SetProperty("lastIndex", lattice.MakeNum(0).SetAttributes(true, false, false))
	} else {
		re.SetProperty("source", lattice.MakeAnyStr().SetAttributes(false, false, false))
		re.SetProperty("global", lattice.MakeAnyBool().SetAttributes(false, false, false))
		re.SetProperty("ignoreCase", lattice.MakeAnyBool().SetAttributes(false, false, false))
		re.SetProperty("multiline", lattice.MakeAnyBool().SetAttributes(false, false, false))
		re.SetProperty("lastIndex", lattice.MakeAnyNumUInt().SetAttributes(true, false, false))
	}
	c.State.PutObject(label, re)
	return lattice.MakeObject(label).Join(passthrough), true
}

func passthroughOrNone(passthrough lattice.Value) (lattice.Value, bool) {
	if passthrough.IsNone() {
		return lattice.MakeNone(), false
	}
	return passthrough, true
}

// gammaRegExp concretizes the regexp at the label, if its properties
// are all singletons.
func gammaRegExp(state *lattice.State, l lattice.ObjectLabel) (concrete.RegExp, error) {
	obj := state.GetObject(l)
	get := func(name string) (concrete.Value, error) {
		return concrete.Gamma(obj.GetProperty(name))
	}
	re := concrete.RegExp{}
	src, err := get("source")
	if err != nil {
		return re, err
	}
	s, ok := src.(concrete.String)
	if !ok {
		return re, concrete.ErrNotConcrete
	}
	re.Pattern = string(s)
	for _, f := range []struct {
		prop string
		flag string
	}{{"global", "g"}, {"ignoreCase", "i"}, {"multiline", "m"}} {
		b, err := get(f.prop)
		if err != nil {
			return re, err
		}
		bb, ok := b.(concrete.Boolean)
		if !ok {
			return re, concrete.ErrNotConcrete
		}
		if bool(bb) {
			re.Flags += f.flag
		}
	}
	li, err := get("lastIndex")
	if err != nil {
		return re, err
	}
	n, ok := li.(concrete.Number)
	if !ok {
		return re, concrete.ErrNotConcrete
	}
	re.LastIndex = float64(n)
	return re, nil
}

// regexpReceiver extracts the regexp labels of the receiver, reporting
// a TypeError when the receiver may be something else.
func regexpReceiver(c *Call, method string) []lattice.ObjectLabel {
	labels := []lattice.ObjectLabel{}
	for _, l := range c.This.ObjectLabels() {
		if l.Kind() == lattice.KRegExp {
			labels = append(labels, l)
		}
	}
	if len(labels) != len(c.This.ObjectLabels()) || c.This.IsMaybePrimitive() {
		c.Monitor.Report(c.Site, monitoring.MEDIUM,
			"TypeError: %s called on non-RegExp receiver", method)
	}
	return labels
}

// touchLastIndex models the lastIndex side effect of exec and test: a
// global regexp advances it by an amount the abstraction cannot track,
// so it weakens to any unsigned integer.
func touchLastIndex(c *Call, l lattice.ObjectLabel) {
	obj := c.State.GetObject(l)
	if obj.GetProperty("global").IsMaybeTrue() {
		c.State.GetObjectW(l).WeakSetProperty("lastIndex", lattice.MakeAnyNumUInt())
	}
}

func regexpExec(c *Call) (lattice.Value, bool) {
	labels := regexpReceiver(c, "RegExp.prototype.exec")
	if len(labels) == 0 {
		return lattice.MakeNone(), false
	}
	input := c.Arg(0).ToStr()

	// Hybrid path: a single concrete regexp applied to a concrete
	// string runs on the concrete engine.
	if len(labels) == 1 && len(c.This.ObjectLabels()) == 1 {
		if re, err := gammaRegExp(c.State, labels[0]); err == nil {
			if in, err := concrete.Gamma(input); err == nil {
				res, err := concrete.Apply("RegExp.prototype.exec", re, []concrete.Value{in})
				if err == nil {
					touchLastIndex(c, labels[0])
					return alphaExecResult(c, res), true
				}
				log.WithError(err).Debug("concrete exec failed, falling back to abstract summary")
			}
		}
	}

	for _, l := range labels {
		touchLastIndex(c, l)
	}
	return abstractMatchArray(c, input).JoinNull(), true
}

// alphaExecResult abstracts a concrete exec result: null, or a match
// array allocated at the call site.
func alphaExecResult(c *Call, res concrete.Value) lattice.Value {
	if _, isNull := res.(concrete.Null); isNull {
		return lattice.MakeNull()
	}
	arr, ok := res.(concrete.Array)
	if !ok {
		return lattice.MakeNull()
	}
	label := lattice.MakeObjectLabel(c.Site, lattice.KArray)
	obj := lattice.NewObject(lattice.MakeObject(c.Globals.ArrayProto))
	for i, el := range arr.Elements {
		av, ok := concrete.Alpha(el)
		if !ok {
			av = lattice.MakeUndef()
		}
		obj.SetProperty(lattice.NumberToString(float64(i)), av)
	}
	obj.SetProperty("length", lattice.MakeNum(float64(len(arr.Elements))).SetAttributes(true, false, false))
	for name, pv := range arr.Properties {
		av, ok := concrete.Alpha(pv)
		if !ok {
			continue
		}
		obj.SetProperty(name, av)
	}
	c.State.PutObject(label, obj)
	return lattice.MakeObject(label)
}

// abstractMatchArray summarizes an exec result when concrete execution
// is impossible: an array of unknown strings with index and input.
func abstractMatchArray(c *Call, input lattice.Value) lattice.Value {
	label := lattice.MakeObjectLabel(c.Site, lattice.KArray)
	obj := lattice.NewObject(lattice.MakeObject(c.Globals.ArrayProto))
	obj.SetDefaultNum(lattice.MakeAnyStr().JoinUndef())
	obj.SetProperty("length", lattice.MakeAnyNumUInt().SetAttributes(true, false, false))
	obj.SetProperty("index", lattice.MakeAnyNumUInt())
	obj.SetProperty("input", input)
	c.State.PutObject(label, obj)
	return lattice.MakeObject(label)
}

func regexpTest(c *Call) (lattice.Value, bool) {
	labels := regexpReceiver(c, "RegExp.prototype.test")
	if len(labels) == 0 {
		return lattice.MakeNone(), false
	}
	input := c.Arg(0).ToStr()

	if len(labels) == 1 && len(c.This.ObjectLabels()) == 1 {
		if re, err := gammaRegExp(c.State, labels[0]); err == nil {
			if in, err := concrete.Gamma(input); err == nil {
				res, err := concrete.Apply("RegExp.prototype.test", re, []concrete.Value{in})
				if err == nil {
					touchLastIndex(c, labels[0])
					if b, ok := res.(concrete.Boolean); ok {
						return lattice.MakeBool(bool(b)), true
					}
				}
			}
		}
	}

	for _, l := range labels {
		touchLastIndex(c, l)
	}
	return lattice.MakeAnyBool(), true
}

func regexpToString(c *Call) (lattice.Value, bool) {
	labels := regexpReceiver(c, "RegExp.prototype.toString")
	if len(labels) == 0 {
		return lattice.MakeNone(), false
	}
	res := lattice.MakeNone()
	for _, l := range labels {
		if re, err := gammaRegExp(c.State, l); err == nil {
			res = res.Join(lattice.MakeStr(re.String()))
		} else {
			res = res.Join(lattice.MakeAnyStr())
		}
	}
	return res, true
}
