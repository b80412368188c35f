package lattice

import (
	"testing"

	"github.com/cs-au-dk/jstar/analysis/cfg"
)

func testState(t *testing.T) (*Session, *State) {
	t.Helper()
	fg, err := cfg.BuildSource("test.js", "var a = 1; var b = 2; var c = a + b;")
	if err != nil {
		t.Fatalf("BuildSource failed: %v", err)
	}
	session := NewSession()
	return session, NewState(session, fg.Main())
}

func TestStateCopyOnWrite(t *testing.T) {
	_, st := testState(t)
	l := MakeObjectLabel(cfg.NewSyntheticNode("obj"), KObject)
	obj := NewObject(MakeNull())
	obj.SetProperty("a", MakeNum(1))
	st.PutObject(l, obj)

	clone := st.Clone()
	clone.GetObjectW(l).SetProperty("a", MakeNum(2))

	if got := st.GetObject(l).GetProperty("a"); !got.IsMaybeSingleNum() || got.Num() != 1 {
		t.Errorf("write through clone leaked into the original: %s", got)
	}
	if got := clone.GetObject(l).GetProperty("a"); got.Num() != 2 {
		t.Errorf("clone write lost: %s", got)
	}
	if !clone.IsModified(l) {
		t.Errorf("clone did not record the modified label")
	}
}

func TestStateFrozenObjectPanics(t *testing.T) {
	_, st := testState(t)
	l := MakeObjectLabel(cfg.NewSyntheticNode("obj"), KObject)
	st.PutObject(l, NewObject(MakeNull()))
	frozen := st.GetObject(l)
	st.Clone()

	defer func() {
		if recover() == nil {
			t.Errorf("mutating a frozen object did not panic")
		}
	}()
	frozen.SetProperty("a", MakeNum(1))
}

func TestStateJoinWith(t *testing.T) {
	_, st := testState(t)
	s1 := st.Clone()
	s2 := st.Clone()
	s1.SetRegister(0, MakeNum(1))
	s2.SetRegister(0, MakeNum(2))
	s2.SetRegister(1, MakeStr("x"))

	if !s1.JoinWith(s2) {
		t.Fatalf("join of different states reported no change")
	}
	r0 := s1.GetRegister(0)
	if r0.IsMaybeSingleNum() || !r0.IsMaybeFuzzyNum() {
		t.Errorf("register 0 after join = %s", r0)
	}
	if got := s1.GetRegister(1); !got.IsMaybeSingleStr() || got.Str() != "x" {
		t.Errorf("register 1 after join = %s", got)
	}
	if s1.JoinWith(s2) {
		t.Errorf("second join reported a change")
	}
	if !s2.Leq(s1) {
		t.Errorf("joined state does not bound its input")
	}
	if s1.Leq(s2) {
		t.Errorf("strictly larger state below its input")
	}
}

func TestStateJoinStores(t *testing.T) {
	_, st := testState(t)
	l1 := MakeObjectLabel(cfg.NewSyntheticNode("o1"), KObject)
	l2 := MakeObjectLabel(cfg.NewSyntheticNode("o2"), KObject)

	s1 := st.Clone()
	o1 := NewObject(MakeNull())
	o1.SetProperty("p", MakeNum(1))
	s1.PutObject(l1, o1)

	s2 := st.Clone()
	o1b := NewObject(MakeNull())
	o1b.SetProperty("p", MakeNum(1))
	s2.PutObject(l1, o1b)
	s2.PutObject(l2, NewObject(MakeNull()))

	if !s1.JoinWith(s2) {
		t.Fatalf("join adding an object reported no change")
	}
	if !s1.HasObject(l2) {
		t.Errorf("joined state lacks the new object")
	}
	if got := s1.GetObject(l1).GetProperty("p"); got.Num() != 1 {
		t.Errorf("equal objects degraded under join: %s", got)
	}
}

func TestMergeReturned(t *testing.T) {
	_, st := testState(t)
	lKeep := MakeObjectLabel(cfg.NewSyntheticNode("keep"), KObject)
	lMod := MakeObjectLabel(cfg.NewSyntheticNode("mod"), KObject)

	keep := NewObject(MakeNull())
	keep.SetProperty("p", MakeNum(1))
	st.PutObject(lKeep, keep)
	mod := NewObject(MakeNull())
	mod.SetProperty("q", MakeNum(1))
	st.PutObject(lMod, mod)

	caller := st.Clone()
	callee := st.Clone()
	// The callee is a fresh frame: it has not modified anything yet.
	callee.modified = map[ObjectLabel]bool{}

	callee.GetObjectW(lMod).SetProperty("q", MakeNum(2))
	lNew := MakeObjectLabel(cfg.NewSyntheticNode("new"), KObject)
	fresh := NewObject(MakeNull())
	fresh.SetProperty("r", MakeNum(3))
	callee.PutObject(lNew, fresh)

	caller.MergeReturned(callee)

	// Untouched objects keep their precise caller-side value.
	if got := caller.GetObject(lKeep).GetProperty("p"); !got.IsMaybeSingleNum() || got.Num() != 1 {
		t.Errorf("untouched object degraded: %s", got)
	}
	// Modified objects are joined.
	q := caller.GetObject(lMod).GetProperty("q")
	if q.IsMaybeSingleNum() || !q.IsMaybeFuzzyNum() {
		t.Errorf("modified object not joined: %s", q)
	}
	// Fresh callee objects are adopted.
	if !caller.HasObject(lNew) {
		t.Fatalf("fresh callee object not adopted")
	}
	if got := caller.GetObject(lNew).GetProperty("r"); got.Num() != 3 {
		t.Errorf("adopted object lost its property: %s", got)
	}
}

func TestScopeVariables(t *testing.T) {
	session, st := testState(t)
	global := MakeObjectLabel(cfg.NewSyntheticNode("global"), KActivation)
	g := NewObject(MakeNull())
	g.SetProperty("x", MakeNum(10))
	st.PutObject(global, g)
	st.SetScope(session.ExtendScopeChain(global, nil))

	if v, found := st.ReadVar("x"); !found || v.Num() != 10 {
		t.Errorf("ReadVar(x) = %s, %v", v, found)
	}
	if _, found := st.ReadVar("missing"); found {
		t.Errorf("unbound variable reported as found")
	}

	// A strong write through a single chain replaces the binding.
	st.WriteVar("x", MakeStr("s"))
	if v, _ := st.ReadVar("x"); !v.IsMaybeSingleStr() || v.IsMaybeNum() {
		t.Errorf("strong write did not replace the binding: %s", v)
	}

	// Unbound names fall through to the outermost activation.
	st.WriteVar("fresh", MakeNum(1))
	if v, found := st.ReadVar("fresh"); !found || v.Num() != 1 {
		t.Errorf("fallthrough write lost: %s, %v", v, found)
	}

	// An inner activation shadows the global binding.
	inner := MakeObjectLabel(cfg.NewSyntheticNode("act"), KActivation)
	act := NewObject(MakeNull())
	act.SetProperty("x", MakeNum(1))
	st.PutObject(inner, act)
	st.SetScope(session.ExtendScopeChain(inner, session.ExtendScopeChain(global, nil)))
	if v, _ := st.ReadVar("x"); !v.IsMaybeSingleNum() || v.Num() != 1 {
		t.Errorf("inner binding did not shadow: %s", v)
	}

	// A maybe-absent inner binding joins with the outer one.
	st.GetObjectW(inner).WeakSetProperty("y", MakeNum(1))
	st.GetObjectW(global).SetProperty("y", MakeNum(2))
	v, found := st.ReadVar("y")
	if !found || v.IsMaybeSingleNum() || !v.IsMaybeFuzzyNum() {
		t.Errorf("maybe-absent binding did not join outward: %s", v)
	}
	if v.IsMaybeAbsent() {
		t.Errorf("absent leaked out of variable read: %s", v)
	}
}

func TestMultipleScopeChainsAreWeak(t *testing.T) {
	session, st := testState(t)
	global := MakeObjectLabel(cfg.NewSyntheticNode("global"), KActivation)
	g := NewObject(MakeNull())
	g.SetProperty("x", MakeNum(1))
	st.PutObject(global, g)

	a1 := MakeObjectLabel(cfg.NewSyntheticNode("a1"), KActivation)
	a2 := MakeObjectLabel(cfg.NewSyntheticNode("a2"), KActivation)
	st.PutObject(a1, NewObject(MakeNull()))
	st.PutObject(a2, NewObject(MakeNull()))

	base := session.ExtendScopeChain(global, nil)
	st.SetScope(session.ExtendScopeChain(a1, base))
	st.AddScope(session.ExtendScopeChain(a2, base))
	if got := len(st.Scope()); got != 2 {
		t.Fatalf("scope set has %d chains, want 2", got)
	}
	// Re-adding an interned chain is a no-op.
	st.AddScope(session.ExtendScopeChain(a1, base))
	if got := len(st.Scope()); got != 2 {
		t.Fatalf("duplicate chain added, %d chains", got)
	}

	// With several chains the write must be weak.
	st.WriteVar("x", MakeNum(2))
	v, _ := st.ReadVar("x")
	if v.IsMaybeSingleNum() || !v.IsMaybeFuzzyNum() {
		t.Errorf("write through two chains was strong: %s", v)
	}
}

func TestReadPropertyValue(t *testing.T) {
	_, st := testState(t)
	protoL := MakeObjectLabel(cfg.NewSyntheticNode("proto"), KObject)
	proto := NewObject(MakeNull())
	proto.SetProperty("inherited", MakeNum(7))
	st.PutObject(protoL, proto)

	objL := MakeObjectLabel(cfg.NewSyntheticNode("obj"), KObject)
	obj := NewObject(MakeObject(protoL))
	obj.SetProperty("own", MakeStr("v"))
	st.PutObject(objL, obj)

	base := MakeObject(objL)
	if got := st.ReadPropertyValue(base, "own"); got.Str() != "v" {
		t.Errorf("own property read = %s", got)
	}
	if got := st.ReadPropertyValue(base, "inherited"); !got.IsMaybeSingleNum() || got.Num() != 7 {
		t.Errorf("inherited property read = %s", got)
	}
	// Absent on the whole chain reads as undefined.
	got := st.ReadPropertyValue(base, "nope")
	if !got.IsMaybeUndef() || got.IsMaybeOtherThanUndef() {
		t.Errorf("missing property read = %s", got)
	}

	// Prototype cycles terminate.
	st.GetObjectW(protoL).SetProto(MakeObject(objL))
	_ = st.ReadPropertyValue(base, "nope")
}

func TestWriteProperty(t *testing.T) {
	_, st := testState(t)
	l1 := MakeObjectLabel(cfg.NewSyntheticNode("o1"), KObject)
	l2 := MakeObjectLabel(cfg.NewSyntheticNode("o2"), KObject)
	o1 := NewObject(MakeNull())
	o1.SetProperty("p", MakeNum(1))
	st.PutObject(l1, o1)
	o2 := NewObject(MakeNull())
	o2.SetProperty("p", MakeNum(1))
	st.PutObject(l2, o2)

	// Single label: strong update.
	st.WriteProperty(MakeObject(l1), "p", MakeStr("s"))
	if got := st.GetObject(l1).GetProperty("p"); got.IsMaybeNum() {
		t.Errorf("strong property write kept the old value: %s", got)
	}

	// Two labels: weak update on both.
	st.WriteProperty(MakeObject(l1).JoinObject(l2), "p", MakeNum(2))
	if got := st.GetObject(l2).GetProperty("p"); !got.IsMaybeFuzzyNum() {
		t.Errorf("weak property write replaced the value: %s", got)
	}
}

func TestSummarizedLabelWeakUpdate(t *testing.T) {
	_, st := testState(t)
	l := MakeObjectLabel(cfg.NewSyntheticNode("site"), KObject)

	// The first allocation at a site keeps the label precise.
	st.PutObject(l, NewObject(MakeNull()))
	if st.IsSummarized(l) {
		t.Fatalf("first allocation marked the label summarized")
	}
	st.WriteProperty(MakeObject(l), "p", MakeNum(1))
	if got := st.GetObject(l).GetProperty("p"); !got.IsMaybeSingleNum() || got.Num() != 1 {
		t.Errorf("strong write on a precise label = %s", got)
	}

	// Re-allocating at the same site summarizes the label; later
	// single-label writes must join instead of replacing.
	st.PutObject(l, NewObject(MakeNull()))
	if !st.IsSummarized(l) {
		t.Fatalf("re-allocation did not summarize the label")
	}
	st.WriteProperty(MakeObject(l), "p", MakeNum(2))
	got := st.GetObject(l).GetProperty("p")
	if !MakeNum(1).Leq(got.RestrictToNotAbsent()) || !MakeNum(2).Leq(got.RestrictToNotAbsent()) {
		t.Errorf("write on a summarized label dropped a value: %s", got)
	}

	// The summary mark survives cloning and joining.
	clone := st.Clone()
	if !clone.IsSummarized(l) {
		t.Errorf("clone lost the summary mark")
	}
	fresh := NewState(st.Session(), st.Fun())
	fresh.JoinWith(st)
	if !fresh.IsSummarized(l) {
		t.Errorf("join lost the summary mark")
	}
}

func TestStateEq(t *testing.T) {
	_, st := testState(t)
	clone := st.Clone()
	if !st.Eq(clone) {
		t.Errorf("clone not equal to original")
	}
	clone.SetRegister(0, MakeNum(1))
	if st.Eq(clone) {
		t.Errorf("states equal after divergent write")
	}
	if !st.Leq(clone) {
		t.Errorf("original not below extended clone")
	}
	if clone.Leq(st) {
		t.Errorf("extended clone below original")
	}
}
