package absint

import (
	"strings"
	"testing"

	"github.com/cs-au-dk/jstar/analysis/cfg"
	"github.com/cs-au-dk/jstar/analysis/defs"
	"github.com/cs-au-dk/jstar/analysis/lattice"
	"github.com/cs-au-dk/jstar/analysis/monitoring"
)

func analyze(t *testing.T, src string, conf Config) *Solver {
	t.Helper()
	fg, err := cfg.BuildSource("test.js", src)
	if err != nil {
		t.Fatalf("BuildSource failed: %v", err)
	}
	solver := NewSolver(fg, conf)
	if err := solver.Solve(); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if solver.Status() != Fixpoint {
		t.Fatalf("solver status = %s, want fixpoint", solver.Status())
	}
	return solver
}

func exitVar(t *testing.T, solver *Solver, name string) lattice.Value {
	t.Helper()
	st := solver.MainExitState()
	if st == nil {
		t.Fatalf("main exit is unreachable")
	}
	v, found := st.ReadVar(name)
	if !found {
		t.Fatalf("variable %s not bound at main exit", name)
	}
	return v
}

func hasMessage(solver *Solver, sev monitoring.Severity, substr string) bool {
	for _, msg := range solver.Messages() {
		if msg.Severity == sev && strings.Contains(msg.Text, substr) {
			return true
		}
	}
	return false
}

func TestSolveArithmetic(t *testing.T) {
	solver := analyze(t, "var x = 1;\nvar y = x + 1;", Config{})
	if v := exitVar(t, solver, "y"); !v.IsMaybeSingleNum() || v.Num() != 2 {
		t.Errorf("y = %s, want 2", v)
	}
	if v := exitVar(t, solver, "x"); v.Num() != 1 {
		t.Errorf("x = %s, want 1", v)
	}
}

func TestSolveOnlyOnce(t *testing.T) {
	fg, err := cfg.BuildSource("test.js", "var x = 1;")
	if err != nil {
		t.Fatal(err)
	}
	solver := NewSolver(fg, Config{})
	if solver.Status() != Idle {
		t.Errorf("fresh solver status = %s", solver.Status())
	}
	if err := solver.Solve(); err != nil {
		t.Fatal(err)
	}
	if err := solver.Solve(); err == nil {
		t.Errorf("second Solve did not fail")
	}
}

func TestSolveMaxSteps(t *testing.T) {
	fg, err := cfg.BuildSource("test.js", "var i = 0; while (i < 10) { i = i + 1; }")
	if err != nil {
		t.Fatal(err)
	}
	solver := NewSolver(fg, Config{MaxSteps: 1})
	if err := solver.Solve(); err == nil {
		t.Errorf("expected step limit error")
	}
	if solver.Status() != Failed {
		t.Errorf("status = %s, want failed", solver.Status())
	}
}

func TestSolveStringOps(t *testing.T) {
	solver := analyze(t, `
var s = "a" + 1;
var n = 2 + 3;
var eq = 1 === 1;
var ne = 1 === 2;
var sne = "a" !== "b";
var ty = typeof 3;
`, Config{})
	if v := exitVar(t, solver, "s"); !v.IsMaybeSingleStr() || v.Str() != "a1" {
		t.Errorf("s = %s, want \"a1\"", v)
	}
	if v := exitVar(t, solver, "n"); v.Num() != 5 {
		t.Errorf("n = %s, want 5", v)
	}
	if v := exitVar(t, solver, "eq"); !v.IsMaybeTrue() || v.IsMaybeFalse() {
		t.Errorf("eq = %s, want true", v)
	}
	if v := exitVar(t, solver, "ne"); !v.IsMaybeFalse() || v.IsMaybeTrue() {
		t.Errorf("ne = %s, want false", v)
	}
	if v := exitVar(t, solver, "sne"); !v.IsMaybeTrue() || v.IsMaybeFalse() {
		t.Errorf("sne = %s, want true", v)
	}
	if v := exitVar(t, solver, "ty"); v.Str() != "number" {
		t.Errorf("ty = %s, want \"number\"", v)
	}
}

func TestSolveBranchPruning(t *testing.T) {
	solver := analyze(t, `
var x = 1;
var y = 0;
if (x) {
	y = 2;
} else {
	y = 3;
}
`, Config{})
	// The condition is definitely truthy, so the else branch is dead.
	if v := exitVar(t, solver, "y"); !v.IsMaybeSingleNum() || v.Num() != 2 {
		t.Errorf("y = %s, want exactly 2", v)
	}
}

func TestSolveLoopWidens(t *testing.T) {
	solver := analyze(t, `
var i = 0;
while (i < 10) {
	i = i + 1;
}
`, Config{})
	v := exitVar(t, solver, "i")
	if v.IsMaybeSingleNum() || !v.IsMaybeFuzzyNum() {
		t.Errorf("i = %s, want a widened number", v)
	}
	if v.IsMaybeStr() || v.IsMaybeUndef() {
		t.Errorf("i picked up junk components: %s", v)
	}
}

func TestSolveCallsSensitive(t *testing.T) {
	solver := analyze(t, `
function id(v) {
	return v;
}
var a = id(1);
var b = id("s");
`, Config{})
	// Under the default 1-callsite policy the two calls are analyzed in
	// separate contexts, keeping the results precise.
	if v := exitVar(t, solver, "a"); !v.IsMaybeSingleNum() || v.Num() != 1 || v.IsMaybeStr() {
		t.Errorf("a = %s, want exactly 1", v)
	}
	if v := exitVar(t, solver, "b"); !v.IsMaybeSingleStr() || v.Str() != "s" || v.IsMaybeNum() {
		t.Errorf("b = %s, want exactly \"s\"", v)
	}
	if got := solver.CallGraph().Size(); got != 2 {
		t.Errorf("call graph has %d edges, want 2", got)
	}
}

func TestSolveCallsInsensitive(t *testing.T) {
	solver := analyze(t, `
function id(v) {
	return v;
}
var a = id(1);
var b = id("s");
`, Config{Policy: InsensitivePolicy()})
	// One shared context: the argument values meet in the activation and
	// the joined result flows back to both sites.
	v := exitVar(t, solver, "a")
	if !v.IsMaybeNum() || !v.IsMaybeStr() {
		t.Errorf("a = %s, want the join of both arguments", v)
	}
}

func TestSolveClosure(t *testing.T) {
	solver := analyze(t, `
function counter() {
	var n = 0;
	function get() {
		return n;
	}
	return get;
}
var g = counter();
var v = g();
`, Config{})
	if got := exitVar(t, solver, "v"); !got.IsMaybeSingleNum() || got.Num() != 0 {
		t.Errorf("v = %s, want 0", got)
	}
}

func TestSolveConstructor(t *testing.T) {
	solver := analyze(t, `
function Point(a) {
	this.x = a;
}
var p = new Point(3);
var q = p.x;
`, Config{})
	if v := exitVar(t, solver, "p"); !v.IsMaybeObject() || v.IsMaybePrimitive() {
		t.Errorf("p = %s, want an object", v)
	}
	if v := exitVar(t, solver, "q"); !v.IsMaybeSingleNum() || v.Num() != 3 {
		t.Errorf("q = %s, want 3", v)
	}
}

func TestSolveSharedAllocationSite(t *testing.T) {
	// Both calls return an object from the same allocation site, so one
	// label stands for two concrete objects. Writes through it must be
	// weak: neither value may be lost.
	solver := analyze(t, `
function f() {
	return {};
}
var a = f();
var b = f();
a.p = 1;
b.p = 2;
var r = a.p;
`, Config{})
	r := exitVar(t, solver, "r")
	if !lattice.MakeNum(1).Leq(r) {
		t.Errorf("r = %s, feasible value 1 lost", r)
	}
	if !lattice.MakeNum(2).Leq(r) {
		t.Errorf("r = %s, feasible value 2 lost", r)
	}
}

func TestSolveObjectLiteral(t *testing.T) {
	solver := analyze(t, `
var o = {a: 1, b: "x"};
var r = o.a;
var missing = o.nope;
`, Config{})
	if v := exitVar(t, solver, "r"); !v.IsMaybeSingleNum() || v.Num() != 1 {
		t.Errorf("r = %s, want 1", v)
	}
	if v := exitVar(t, solver, "missing"); !v.IsMaybeUndef() || v.IsMaybeOtherThanUndef() {
		t.Errorf("missing = %s, want undefined", v)
	}
}

func TestSolveUndeclaredVariable(t *testing.T) {
	fg, err := cfg.BuildSource("test.js", "var x = y;")
	if err != nil {
		t.Fatal(err)
	}
	solver := NewSolver(fg, Config{})
	if err := solver.Solve(); err != nil {
		t.Fatal(err)
	}
	if !hasMessage(solver, monitoring.HIGH, "y is not defined") {
		t.Errorf("missing ReferenceError diagnostic, got %v", solver.Messages())
	}
	if solver.MainExitState() != nil {
		t.Errorf("main exit reachable past a definite ReferenceError")
	}
}

func TestSolveEval(t *testing.T) {
	solver := analyze(t, `
eval("var q = 40 + 2;");
var z = q;
`, Config{})
	if v := exitVar(t, solver, "z"); !v.IsMaybeSingleNum() || v.Num() != 42 {
		t.Errorf("z = %s, want 42", v)
	}
}

func TestSolveEvalCache(t *testing.T) {
	solver := analyze(t, `
eval("var q = 1;");
eval("var q = 1;");
var z = q;
`, Config{})
	hits, misses := solver.EvalCacheStats()
	if misses != 1 {
		t.Errorf("eval cache misses = %d, want 1", misses)
	}
	if hits < 1 {
		t.Errorf("eval cache hits = %d, want at least 1", hits)
	}
	if v := exitVar(t, solver, "z"); v.Num() != 1 {
		t.Errorf("z = %s, want 1", v)
	}
}

func TestSolveEvalSyntaxError(t *testing.T) {
	fg, err := cfg.BuildSource("test.js", `eval("var = 2;");`)
	if err != nil {
		t.Fatal(err)
	}
	solver := NewSolver(fg, Config{})
	if err := solver.Solve(); err != nil {
		t.Fatal(err)
	}
	if !hasMessage(solver, monitoring.HIGH, "SyntaxError") {
		t.Errorf("missing SyntaxError diagnostic, got %v", solver.Messages())
	}
}

func TestSolveRegExpExec(t *testing.T) {
	solver := analyze(t, `
var m = /a(b+)c/.exec("xabbbc");
var i = m.index;
var inp = m.input;
`, Config{})
	if v := exitVar(t, solver, "m"); !v.IsMaybeObject() {
		t.Errorf("m = %s, want a match array", v)
	}
	if v := exitVar(t, solver, "i"); !v.IsMaybeSingleNum() || v.Num() != 1 {
		t.Errorf("m.index = %s, want 1", v)
	}
	if v := exitVar(t, solver, "inp"); !v.IsMaybeSingleStr() || v.Str() != "xabbbc" {
		t.Errorf("m.input = %s, want \"xabbbc\"", v)
	}
}

func TestSolveRegExpTest(t *testing.T) {
	solver := analyze(t, `var t = /b+/.test("xb");`, Config{})
	if v := exitVar(t, solver, "t"); !v.IsMaybeTrue() || v.IsMaybeFalse() {
		t.Errorf("t = %s, want exactly true", v)
	}

	solver = analyze(t, `var t = /z/.test("xb");`, Config{})
	if v := exitVar(t, solver, "t"); !v.IsMaybeFalse() || v.IsMaybeTrue() {
		t.Errorf("t = %s, want exactly false", v)
	}
}

func TestSolveRegExpInvalidFlags(t *testing.T) {
	fg, err := cfg.BuildSource("test.js", `var r = new RegExp("a", "gg");`)
	if err != nil {
		t.Fatal(err)
	}
	solver := NewSolver(fg, Config{})
	if err := solver.Solve(); err != nil {
		t.Fatal(err)
	}
	if !hasMessage(solver, monitoring.HIGH, "invalid regular expression flags") {
		t.Errorf("missing flag diagnostic, got %v", solver.Messages())
	}
}

func TestSolveRegExpAbstractInput(t *testing.T) {
	// A fuzzy input string forces the abstract model: the result may be
	// null or a match array.
	solver := analyze(t, `
var s = "" + 0;
var i = 0;
while (i < 3) {
	s = s + "a";
	i = i + 1;
}
var m = /a/.exec(s);
`, Config{})
	v := exitVar(t, solver, "m")
	if !v.IsMaybeNull() || !v.IsMaybeObject() {
		t.Errorf("m = %s, want null or a match array", v)
	}
}

func TestSolveCalleeNotFunction(t *testing.T) {
	fg, err := cfg.BuildSource("test.js", "var x = 1; var y = x();")
	if err != nil {
		t.Fatal(err)
	}
	solver := NewSolver(fg, Config{})
	if err := solver.Solve(); err != nil {
		t.Fatal(err)
	}
	if !hasMessage(solver, monitoring.MEDIUM, "may not be a function") {
		t.Errorf("missing TypeError diagnostic, got %v", solver.Messages())
	}
}

func TestSolveRecursionTerminates(t *testing.T) {
	// Concretely this recursion never ends; the argument widens after a
	// few rounds, so the analysis must settle well under the step cap.
	fg, err := cfg.BuildSource("test.js", `
function spin(n) {
	return spin(n + 1);
}
var r = spin(0);
`)
	if err != nil {
		t.Fatal(err)
	}
	solver := NewSolver(fg, Config{MaxSteps: 10000})
	if err := solver.Solve(); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if solver.Status() != Fixpoint {
		t.Errorf("status = %s, want fixpoint", solver.Status())
	}
}

func TestSolveFixpointIdempotent(t *testing.T) {
	solver := analyze(t, `
function Point(a) {
	this.x = a;
}
function twice(v) {
	return v + v;
}
var i = 0;
while (i < 3) {
	i = i + 1;
}
var p = new Point(i);
var d = twice(p.x);
`, Config{})

	// Transferring every reached location again over the final result
	// must not schedule any new work.
	var locs []defs.CtrLoc
	solver.Analysis().ForEach(func(cl defs.CtrLoc, _ *lattice.State) {
		locs = append(locs, cl)
	})
	for _, cl := range locs {
		solver.process(cl)
	}
	if !solver.worklist.IsEmpty() {
		t.Errorf("reprocessing the fixpoint scheduled new work")
	}
}

type recordingSync struct {
	pings int
	last  defs.CtrLoc
}

func (r *recordingSync) OnStep(cl defs.CtrLoc, step int) {
	r.pings++
	r.last = cl
}

func TestSolveSynchronizer(t *testing.T) {
	sync := &recordingSync{}
	solver := analyze(t, "var x = 1;\nvar y = x + 1;", Config{Sync: sync})
	if sync.pings != solver.Steps() {
		t.Errorf("synchronizer pinged %d times over %d steps", sync.pings, solver.Steps())
	}
	if sync.last.Block() == nil {
		t.Errorf("synchronizer never saw a location")
	}
}

func TestSolveHostObject(t *testing.T) {
	solver := analyze(t, `
var d = document;
var tt = d.title;
`, Config{HostGlobals: []string{"document"}})
	if v := exitVar(t, solver, "d"); !v.IsMaybeObject() || v.IsMaybePrimitive() {
		t.Errorf("d = %s, want the host object", v)
	}
	// Nothing is known about host properties beyond their existence.
	if v := exitVar(t, solver, "tt"); !v.IsMaybeStr() || !v.IsMaybeNum() {
		t.Errorf("d.title = %s, want an unknown value", v)
	}
	if hasMessage(solver, monitoring.HIGH, "document is not defined") {
		t.Errorf("seeded host global reported as undefined")
	}
}

func TestSolveStatisticsRecorded(t *testing.T) {
	solver := analyze(t, `
eval("var q = 1;");
var z = q;
`, Config{})
	stats := solver.Monitor().Statistics()
	if stats.Steps != solver.Steps() || stats.Steps == 0 {
		t.Errorf("recorded steps = %d, solver steps = %d", stats.Steps, solver.Steps())
	}
	if stats.Locations != solver.Analysis().Size() {
		t.Errorf("recorded locations = %d, want %d", stats.Locations, solver.Analysis().Size())
	}
	if stats.CallEdges != solver.CallGraph().Size() {
		t.Errorf("recorded call edges = %d, want %d", stats.CallEdges, solver.CallGraph().Size())
	}
	hits, misses := solver.EvalCacheStats()
	if stats.EvalCacheHits != hits || stats.EvalCacheMisses != misses {
		t.Errorf("recorded eval cache %d/%d, want %d/%d",
			stats.EvalCacheHits, stats.EvalCacheMisses, hits, misses)
	}
}
