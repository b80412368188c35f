package concrete

import (
	"math"
	"testing"

	"github.com/cs-au-dk/jstar/analysis/lattice"
)

func TestGammaSingletons(t *testing.T) {
	cases := []struct {
		v    lattice.Value
		want Value
	}{
		{lattice.MakeUndef(), Undefined{}},
		{lattice.MakeNull(), Null{}},
		{lattice.MakeBool(true), Boolean(true)},
		{lattice.MakeBool(false), Boolean(false)},
		{lattice.MakeNum(3.5), Number(3.5)},
		{lattice.MakeStr("x"), String("x")},
	}
	for _, c := range cases {
		got, err := Gamma(c.v)
		if err != nil {
			t.Errorf("Gamma(%s) failed: %v", c.v, err)
			continue
		}
		if got != c.want {
			t.Errorf("Gamma(%s) = %v, want %v", c.v, got, c.want)
		}
	}

	// NaN is coarse in the lattice but a concrete singleton.
	got, err := Gamma(lattice.MakeNum(math.NaN()))
	if err != nil {
		t.Fatalf("Gamma(NaN) failed: %v", err)
	}
	if n, ok := got.(Number); !ok || !math.IsNaN(float64(n)) {
		t.Errorf("Gamma(NaN) = %v", got)
	}
}

func TestGammaRejectsFuzzy(t *testing.T) {
	fuzzy := []lattice.Value{
		lattice.MakeAnyNum(),
		lattice.MakeAnyStr(),
		lattice.MakeAnyBool(),
		lattice.MakeAnyNumUInt(),
		lattice.MakeNum(1).Join(lattice.MakeNum(2)),
		lattice.MakeNum(1).Join(lattice.MakeUndef()),
		lattice.MakeNone(),
	}
	for _, v := range fuzzy {
		if got, err := Gamma(v); err == nil {
			t.Errorf("Gamma(%s) = %v, want error", v, got)
		}
	}
}

func TestAlphaGammaRoundtrip(t *testing.T) {
	vals := []Value{Undefined{}, Null{}, Boolean(true), Number(-2.5), String("abc")}
	for _, c := range vals {
		av, ok := Alpha(c)
		if !ok {
			t.Errorf("Alpha(%v) rejected a primitive", c)
			continue
		}
		back, err := Gamma(av)
		if err != nil {
			t.Errorf("Gamma(Alpha(%v)) failed: %v", c, err)
			continue
		}
		if back != c {
			t.Errorf("roundtrip of %v gave %v", c, back)
		}
	}

	if _, ok := Alpha(Object{}); ok {
		t.Errorf("Alpha accepted an object")
	}
}

func TestApplyExec(t *testing.T) {
	re := RegExp{Pattern: "a(b+)c", Flags: ""}
	res, err := Apply("RegExp.prototype.exec", re, []Value{String("xabbbc")})
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	arr, ok := res.(Array)
	if !ok {
		t.Fatalf("exec result is %T, want Array", res)
	}
	if len(arr.Elements) != 2 {
		t.Fatalf("exec result has %d elements, want 2", len(arr.Elements))
	}
	if arr.Elements[0] != String("abbbc") || arr.Elements[1] != String("bbb") {
		t.Errorf("exec groups = %v", arr.Elements)
	}
	if arr.Properties["index"] != Number(1) {
		t.Errorf("exec index = %v", arr.Properties["index"])
	}
	if arr.Properties["input"] != String("xabbbc") {
		t.Errorf("exec input = %v", arr.Properties["input"])
	}

	// No match yields null.
	res, err = Apply("RegExp.prototype.exec", re, []Value{String("zzz")})
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if _, ok := res.(Null); !ok {
		t.Errorf("exec without match = %v, want null", res)
	}
}

func TestApplyTest(t *testing.T) {
	re := RegExp{Pattern: "b+", Flags: ""}
	res, err := Apply("RegExp.prototype.test", re, []Value{String("abc")})
	if err != nil {
		t.Fatalf("test failed: %v", err)
	}
	if res != Boolean(true) {
		t.Errorf("test = %v, want true", res)
	}
}

func TestApplyGlobalLastIndex(t *testing.T) {
	re := RegExp{Pattern: "a", Flags: "g", LastIndex: 0}
	res, err := Apply("RegExp.prototype.exec", re, []Value{String("aa")})
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if arr, ok := res.(Array); !ok || arr.Properties["index"] != Number(0) {
		t.Errorf("first global exec = %v", res)
	}

	re.LastIndex = 1
	res, err = Apply("RegExp.prototype.exec", re, []Value{String("aa")})
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if arr, ok := res.(Array); !ok || arr.Properties["index"] != Number(1) {
		t.Errorf("resumed global exec = %v", res)
	}
}

func TestApplyInvalidPattern(t *testing.T) {
	_, err := Apply("RegExp", Undefined{}, []Value{String("("), String("")})
	if err == nil {
		t.Errorf("expected error for invalid pattern")
	}
}
