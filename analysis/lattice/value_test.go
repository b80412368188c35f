package lattice

import (
	"math"
	"testing"

	"github.com/cs-au-dk/jstar/analysis/cfg"
)

func TestJoinBasics(t *testing.T) {
	vals := []Value{
		MakeNone(), MakeUndef(), MakeNull(), MakeBool(true), MakeBool(false),
		MakeNum(0), MakeNum(42), MakeNum(-1.5), MakeNum(math.NaN()),
		MakeAnyNum(), MakeAnyNumUInt(),
		MakeStr(""), MakeStr("foo"), MakeStr("17"), MakeAnyStr(),
		MakeAbsent(),
	}
	for _, v := range vals {
		if !v.Join(v).Eq(v) {
			t.Errorf("join not idempotent for %s", v)
		}
		if !MakeNone().Join(v).Eq(v) {
			t.Errorf("bottom is not neutral for %s", v)
		}
		if !v.Leq(v.Join(MakeUndef())) {
			t.Errorf("%s not below its join with undefined", v)
		}
	}

	for _, v := range vals {
		for _, o := range vals {
			if !v.Join(o).Eq(o.Join(v)) {
				t.Errorf("join not commutative for %s, %s", v, o)
			}
		}
	}
}

func TestJoinAssociativity(t *testing.T) {
	vals := []Value{
		MakeNone(), MakeUndef(), MakeNull(), MakeBool(true), MakeBool(false),
		MakeNum(0), MakeNum(42), MakeNum(-1.5), MakeNum(math.NaN()),
		MakeAnyNum(), MakeAnyNumUInt(),
		MakeStr(""), MakeStr("foo"), MakeStr("17"), MakeAnyStr(),
		MakeAbsent(),
	}
	for _, a := range vals {
		for _, b := range vals {
			for _, c := range vals {
				if !a.Join(b).Join(c).Eq(a.Join(b.Join(c))) {
					t.Errorf("join not associative for %s, %s, %s", a, b, c)
				}
			}
		}
	}
}

func TestJoinWidensSingletons(t *testing.T) {
	// Distinct concrete numbers lose their identity.
	v := MakeNum(1).Join(MakeNum(2))
	if v.IsMaybeSingleNum() {
		t.Errorf("join of distinct numbers kept a singleton: %s", v)
	}
	if !v.IsMaybeFuzzyNum() {
		t.Errorf("join of distinct numbers lost the number component: %s", v)
	}
	if !v.Leq(MakeAnyNum()) {
		t.Errorf("%s not below AnyNum", v)
	}

	// Equal singletons stay concrete.
	v = MakeNum(42).Join(MakeNum(42))
	if !v.IsMaybeSingleNum() || v.Num() != 42 {
		t.Errorf("join of equal numbers widened: %s", v)
	}

	// A singleton below an existing coarse component is dropped.
	v = MakeAnyNumUInt().Join(MakeNum(3))
	if v.IsMaybeSingleNum() {
		t.Errorf("uint singleton not subsumed by the uint component: %s", v)
	}
	// A singleton outside the component widens into its own component;
	// singletons never coexist with fuzzy numbers.
	v = MakeAnyNumUInt().Join(MakeNum(1.5))
	if v.IsMaybeSingleNum() || !MakeNum(1.5).Leq(v) {
		t.Errorf("non-uint singleton not widened next to the uint component: %s", v)
	}

	// Strings widen per component.
	v = MakeStr("foo").Join(MakeStr("bar"))
	if v.IsMaybeSingleStr() || !v.IsMaybeFuzzyStr() {
		t.Errorf("join of distinct strings: %s", v)
	}
	v = MakeStr("17").Join(MakeStr("foo"))
	if !v.Leq(MakeAnyStr()) || v.Eq(MakeAnyStr()) {
		t.Errorf("index and plain string should widen below AnyStr: %s", v)
	}
}

func TestLeq(t *testing.T) {
	if !MakeBool(true).Leq(MakeAnyBool()) {
		t.Errorf("true not below AnyBool")
	}
	if MakeAnyBool().Leq(MakeBool(true)) {
		t.Errorf("AnyBool below true")
	}
	if !MakeNum(7).Leq(MakeAnyNum()) {
		t.Errorf("7 not below AnyNum")
	}
	if MakeUndef().Leq(MakeNull()) {
		t.Errorf("undefined below null")
	}
	if !MakeNone().Leq(MakeUndef()) {
		t.Errorf("bottom not below undefined")
	}
}

func TestObjectLabels(t *testing.T) {
	site1 := cfg.NewSyntheticNode("site1")
	site2 := cfg.NewSyntheticNode("site2")
	l1 := MakeObjectLabel(site1, KObject)
	l2 := MakeObjectLabel(site2, KFunction)

	v := MakeObject(l1)
	if !v.IsMaybeObject() || v.IsMaybePrimitive() {
		t.Errorf("object value misclassified: %s", v)
	}
	v = v.JoinObject(l2)
	if got := len(v.ObjectLabels()); got != 2 {
		t.Fatalf("value has %d labels, want 2", got)
	}
	if !v.JoinObject(l1).Eq(v) {
		t.Errorf("re-adding a label changed the value")
	}
	if !MakeObject(l1).Leq(v) {
		t.Errorf("single label not below the pair")
	}
	if v.Leq(MakeObject(l1)) {
		t.Errorf("pair below single label")
	}
}

func TestRestrictTruthyFalsy(t *testing.T) {
	if !MakeNum(0).RestrictToTruthy().IsNone() {
		t.Errorf("0 survived truthy restriction")
	}
	if !MakeStr("").Join(MakeUndef()).RestrictToTruthy().IsNone() {
		t.Errorf("empty string and undefined survived truthy restriction")
	}
	if MakeNum(1).RestrictToTruthy().IsNone() {
		t.Errorf("1 removed by truthy restriction")
	}

	v := MakeNum(3).Join(MakeNull())
	tr := v.RestrictToTruthy()
	if !tr.IsMaybeSingleNum() || tr.Num() != 3 || tr.IsMaybeNull() {
		t.Errorf("truthy restriction of 3|null = %s", tr)
	}
	fa := v.RestrictToFalsy()
	if fa.IsMaybeNum() || !fa.IsMaybeNull() {
		t.Errorf("falsy restriction of 3|null = %s", fa)
	}

	// The coarse uint component contains 0, so it restricts to the
	// singleton on the falsy side and survives on the truthy side.
	fa = MakeAnyNumUInt().RestrictToFalsy()
	if !fa.IsMaybeSingleNum() || fa.Num() != 0 {
		t.Errorf("falsy restriction of the uint component = %s", fa)
	}
	if MakeAnyNumUInt().RestrictToTruthy().IsNone() {
		t.Errorf("uint component removed by truthy restriction")
	}

	site := cfg.NewSyntheticNode("obj")
	obj := MakeObject(MakeObjectLabel(site, KObject))
	if !obj.RestrictToFalsy().IsNone() {
		t.Errorf("object survived falsy restriction")
	}
	if obj.RestrictToTruthy().IsNone() {
		t.Errorf("object removed by truthy restriction")
	}
}

func TestToBoolean(t *testing.T) {
	cases := []struct {
		v    Value
		want Value
	}{
		{MakeNum(0), MakeBool(false)},
		{MakeNum(2), MakeBool(true)},
		{MakeNum(math.NaN()), MakeBool(false)},
		{MakeStr(""), MakeBool(false)},
		{MakeStr("x"), MakeBool(true)},
		{MakeUndef(), MakeBool(false)},
		{MakeNull(), MakeBool(false)},
		{MakeAnyNumUInt(), MakeAnyBool()},
		{MakeNum(0).Join(MakeStr("x")), MakeAnyBool()},
	}
	for _, c := range cases {
		if got := c.v.ToBoolean(); !got.Eq(c.want) {
			t.Errorf("ToBoolean(%s) = %s, want %s", c.v, got, c.want)
		}
	}
}

func TestToNumber(t *testing.T) {
	if got := MakeStr("42").ToNumber(); !got.IsMaybeSingleNum() || got.Num() != 42 {
		t.Errorf("ToNumber(\"42\") = %s", got)
	}
	if got := MakeStr("  3.5 ").ToNumber(); !got.IsMaybeSingleNum() || got.Num() != 3.5 {
		t.Errorf("ToNumber(\"  3.5 \") = %s", got)
	}
	if got := MakeStr("foo").ToNumber(); !got.IsMaybeNaN() || got.IsMaybeFuzzyNumOtherThanNaN() {
		t.Errorf("ToNumber(\"foo\") = %s", got)
	}
	if got := MakeBool(true).ToNumber(); !got.IsMaybeSingleNum() || got.Num() != 1 {
		t.Errorf("ToNumber(true) = %s", got)
	}
	if got := MakeUndef().ToNumber(); !got.IsMaybeNaN() {
		t.Errorf("ToNumber(undefined) = %s", got)
	}
	if got := MakeNull().ToNumber(); !got.IsMaybeSingleNum() || got.Num() != 0 {
		t.Errorf("ToNumber(null) = %s", got)
	}
	if got := MakeAnyStrUInt().ToNumber(); !got.IsMaybeFuzzyNum() {
		t.Errorf("ToNumber(AnyStrUInt) = %s", got)
	}
}

func TestToStr(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{MakeNum(42), "42"},
		{MakeNum(-1.5), "-1.5"},
		{MakeNum(math.NaN()), "NaN"},
		{MakeBool(true), "true"},
		{MakeUndef(), "undefined"},
		{MakeNull(), "null"},
		{MakeStr("x"), "x"},
	}
	for _, c := range cases {
		got := c.v.ToStr()
		if !got.IsMaybeSingleStr() || got.Str() != c.want {
			t.Errorf("ToStr(%s) = %s, want %q", c.v, got, c.want)
		}
	}
	if got := MakeAnyNum().ToStr(); got.IsMaybeSingleStr() || !got.IsMaybeFuzzyStr() {
		t.Errorf("ToStr(AnyNum) = %s", got)
	}
}

func TestNumberToString(t *testing.T) {
	cases := []struct {
		n    float64
		want string
	}{
		{0, "0"},
		{42, "42"},
		{-7, "-7"},
		{1.5, "1.5"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
		{math.NaN(), "NaN"},
	}
	for _, c := range cases {
		if got := NumberToString(c.n); got != c.want {
			t.Errorf("NumberToString(%v) = %q, want %q", c.n, got, c.want)
		}
	}
}

func TestTypeof(t *testing.T) {
	if got := MakeNum(1).Typeof(); !got.IsMaybeSingleStr() || got.Str() != "number" {
		t.Errorf("typeof 1 = %s", got)
	}
	if got := MakeUndef().Typeof(); got.Str() != "undefined" {
		t.Errorf("typeof undefined = %s", got)
	}
	site := cfg.NewSyntheticNode("f")
	if got := MakeObject(MakeObjectLabel(site, KFunction)).Typeof(); got.Str() != "function" {
		t.Errorf("typeof function = %s", got)
	}
	// Multiple types widen into a fuzzy string.
	v := MakeNum(1).Join(MakeUndef())
	if got := v.Typeof(); got.IsMaybeSingleStr() || !got.IsMaybeFuzzyStr() {
		t.Errorf("typeof (1|undefined) = %s", got)
	}
}

func TestAttributes(t *testing.T) {
	v := MakeNum(1)
	if !v.IsMaybeWritable() {
		t.Errorf("default attributes not writable")
	}
	ro := v.SetAttributes(false, false, false)
	if ro.IsMaybeWritable() {
		t.Errorf("read-only value still writable")
	}
	// Joining a writable and a read-only value may be either.
	if !ro.Join(v).IsMaybeWritable() {
		t.Errorf("join of attributes lost the writable side")
	}
}

func TestAbsent(t *testing.T) {
	v := MakeNum(1).JoinAbsent()
	if !v.IsMaybeAbsent() || v.IsNotAbsent() {
		t.Errorf("absent component missing: %s", v)
	}
	r := v.RestrictToNotAbsent()
	if r.IsMaybeAbsent() || !r.IsMaybeSingleNum() {
		t.Errorf("restriction to not-absent = %s", r)
	}
	if MakeAbsent().IsMaybeOtherThanUndef() {
		t.Errorf("absent counts as other-than-undefined")
	}
}
