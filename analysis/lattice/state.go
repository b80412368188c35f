package lattice

import (
	"fmt"
	"sort"

	"github.com/cs-au-dk/jstar/analysis/cfg"
	"github.com/cs-au-dk/jstar/utils/indenter"
)

// A State is the abstract memory at one control location: the abstract
// heap (store), the registers of the enclosing function, the current
// scope chain and this-value, and the return and exception values being
// propagated.
//
// States follow a copy-on-write protocol. Clone shallow-copies the
// store and freezes every object in it; the clone and the original then
// share objects until one of them writes, at which point GetObjectW
// copies the frozen object into the writing state. The modified set
// records which labels a state has written since it was created, which
// call-return merging uses to keep unmodified caller objects precise.
type State struct {
	session   *Session
	fun       *cfg.Function
	registers []Value
	store     map[ObjectLabel]*Object
	// The scope component is a set of chains: distinct closures of the
	// same function joined at its entry contribute one chain each.
	// Chains are interned, so the set is duplicate-free by pointer.
	scope    []*ScopeChain
	thisVal  Value
	retVal   Value
	excVal   Value
	modified map[ObjectLabel]bool
	// summarized marks labels whose allocation site was reached more
	// than once, so the label stands for several concrete objects.
	// Strong updates are only legal on labels not in this set.
	summarized map[ObjectLabel]bool
}

// NewState creates the bottom state for a function: empty store, all
// registers bottom.
func NewState(session *Session, fun *cfg.Function) *State {
	return &State{
		session:    session,
		fun:        fun,
		registers:  make([]Value, fun.RegCount()),
		store:      map[ObjectLabel]*Object{},
		modified:   map[ObjectLabel]bool{},
		summarized: map[ObjectLabel]bool{},
	}
}

func (s *State) Session() *Session  { return s.session }
func (s *State) Fun() *cfg.Function { return s.fun }
func (s *State) Scope() []*ScopeChain { return s.scope }
func (s *State) ThisVal() Value     { return s.thisVal }
func (s *State) RetVal() Value      { return s.retVal }
func (s *State) ExcVal() Value      { return s.excVal }

// SetScope replaces the scope component with a single chain.
func (s *State) SetScope(sc *ScopeChain) { s.scope = []*ScopeChain{sc} }

// AddScope adds a chain to the scope component.
func (s *State) AddScope(sc *ScopeChain) {
	for _, c := range s.scope {
		if c == sc {
			return
		}
	}
	s.scope = append(append([]*ScopeChain{}, s.scope...), sc)
}
func (s *State) SetThisVal(v Value)      { s.thisVal = s.session.Canon(v) }
func (s *State) SetRetVal(v Value)       { s.retVal = s.session.Canon(v) }
func (s *State) JoinRetVal(v Value)      { s.retVal = s.session.Canon(s.retVal.Join(v)) }
func (s *State) SetExcVal(v Value)       { s.excVal = s.session.Canon(v) }
func (s *State) JoinExcVal(v Value)      { s.excVal = s.session.Canon(s.excVal.Join(v)) }

// Clone returns an independent copy of the state. Objects are frozen
// and shared until either side writes them.
func (s *State) Clone() *State {
	store := make(map[ObjectLabel]*Object, len(s.store))
	for l, obj := range s.store {
		obj.freeze()
		store[l] = obj
	}
	registers := make([]Value, len(s.registers))
	copy(registers, s.registers)
	modified := make(map[ObjectLabel]bool, len(s.modified))
	for l := range s.modified {
		modified[l] = true
	}
	summarized := make(map[ObjectLabel]bool, len(s.summarized))
	for l := range s.summarized {
		summarized[l] = true
	}
	return &State{
		session:    s.session,
		fun:        s.fun,
		registers:  registers,
		store:      store,
		scope:      s.scope,
		thisVal:    s.thisVal,
		retVal:     s.retVal,
		excVal:     s.excVal,
		modified:   modified,
		summarized: summarized,
	}
}

// CloneForFunction clones the heap parts of the state into a fresh
// register frame for fun, used when flowing into a callee.
func (s *State) CloneForFunction(fun *cfg.Function) *State {
	c := s.Clone()
	c.fun = fun
	c.registers = make([]Value, fun.RegCount())
	c.retVal = MakeNone()
	c.excVal = MakeNone()
	c.modified = map[ObjectLabel]bool{}
	return c
}

/* Registers */

// GetRegister reads a register; unwritten registers are bottom.
func (s *State) GetRegister(r cfg.Reg) Value {
	if r == cfg.NoReg {
		return MakeNone()
	}
	return s.registers[r]
}

// SetRegister strongly updates a register.
func (s *State) SetRegister(r cfg.Reg, v Value) {
	if r == cfg.NoReg {
		return
	}
	s.registers[r] = s.session.Canon(v)
}

/* Store */

// HasObject reports whether the store binds the label.
func (s *State) HasObject(l ObjectLabel) bool {
	_, ok := s.store[l]
	return ok
}

// GetObject reads the object at the label for inspection only. The
// result must not be mutated.
func (s *State) GetObject(l ObjectLabel) *Object {
	obj, ok := s.store[l]
	if !ok {
		panic(fmt.Errorf("%w: no object at %s", errInternal, l))
	}
	return obj
}

// GetObjectW returns the object at the label ready for mutation,
// copying it first if it is frozen, and records the label as modified.
func (s *State) GetObjectW(l ObjectLabel) *Object {
	obj := s.GetObject(l)
	if !obj.IsWritable() {
		obj = obj.Copy()
		s.store[l] = obj
	}
	s.modified[l] = true
	return obj
}

// PutObject binds a label to a fresh object. An allocation site
// revisited in a loop or recursion rebinds an existing label; the old
// and new objects are joined and the label becomes summarized, ruling
// out strong updates on it from then on.
func (s *State) PutObject(l ObjectLabel, obj *Object) {
	if old, ok := s.store[l]; ok {
		obj = old.Join(obj)
		s.summarized[l] = true
	}
	s.store[l] = obj
	s.modified[l] = true
}

// IsModified reports whether the state wrote the label since creation.
func (s *State) IsModified(l ObjectLabel) bool { return s.modified[l] }

// IsSummarized reports whether the label stands for more than one
// concrete object.
func (s *State) IsSummarized(l ObjectLabel) bool { return s.summarized[l] }

// Labels returns the store's labels in deterministic order.
func (s *State) Labels() []ObjectLabel {
	labels := make([]ObjectLabel, 0, len(s.store))
	for l := range s.store {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		return labels[i].String() < labels[j].String()
	})
	return labels
}

/* Properties with prototype traversal */

// ReadPropertyValue reads base.name, traversing prototype chains of all
// base labels. Absent on the entire chain contributes undefined.
func (s *State) ReadPropertyValue(base Value, name string) Value {
	res := MakeNone()
	seen := map[ObjectLabel]bool{}
	var read func(l ObjectLabel)
	read = func(l ObjectLabel) {
		if seen[l] || !s.HasObject(l) {
			return
		}
		seen[l] = true
		v := s.GetObject(l).GetProperty(name)
		res = res.Join(v.RestrictToNotAbsent())
		if v.IsMaybeAbsent() {
			proto := s.GetObject(l).Proto()
			if proto.IsMaybeNull() || proto.IsNone() {
				res = res.JoinUndef()
			}
			proto.ForEachObjectLabel(read)
		}
	}
	base.ForEachObjectLabel(read)
	return res
}

// WriteProperty writes base.name = v. The update is strong when the
// base is a single label standing for a single concrete object, weak
// otherwise. Summarized labels always get weak updates; the write may
// hit only one of the objects the label stands for.
func (s *State) WriteProperty(base Value, name string, v Value) {
	labels := base.ObjectLabels()
	v = s.session.Canon(v)
	if len(labels) == 1 && !s.summarized[labels[0]] {
		s.GetObjectW(labels[0]).SetProperty(name, v)
		return
	}
	for _, l := range labels {
		if s.HasObject(l) {
			s.GetObjectW(l).WeakSetProperty(name, v)
		}
	}
}

/* Scope chain variable access */

// ReadVar resolves a variable through every scope chain, innermost
// activation first. On one chain a definitely bound activation stops
// the walk; a maybe-absent binding continues outward and joins. The
// bool result reports whether any chain binds the name.
func (s *State) ReadVar(name string) (Value, bool) {
	res := MakeNone()
	found := false
	for _, chain := range s.scope {
		for c := chain; c != nil; c = c.Rest() {
			if !s.HasObject(c.Obj()) {
				continue
			}
			v := s.GetObject(c.Obj()).GetProperty(name)
			if !v.RestrictToNotAbsent().IsNone() {
				res = res.Join(v.RestrictToNotAbsent())
				found = true
			}
			if !v.IsMaybeAbsent() {
				break
			}
		}
	}
	return res, found
}

// WriteVar assigns a variable through the scope chains. With a single
// chain the innermost activation that definitely binds the name gets a
// strong update; maybe-bound activations on the way get weak updates;
// unbound names fall through to the outermost (global) activation.
// With multiple chains every update is weak.
func (s *State) WriteVar(name string, v Value) {
	v = s.session.Canon(v)
	strong := len(s.scope) == 1
	for _, chain := range s.scope {
		var outermost ObjectLabel
		done := false
		for c := chain; c != nil; c = c.Rest() {
			outermost = c.Obj()
			if !s.HasObject(c.Obj()) {
				continue
			}
			binding := s.GetObject(c.Obj()).GetProperty(name)
			if binding.RestrictToNotAbsent().IsNone() && binding.IsMaybeAbsent() {
				continue
			}
			if !binding.IsMaybeAbsent() && strong && !s.summarized[c.Obj()] {
				s.GetObjectW(c.Obj()).SetProperty(name, v)
				done = true
				break
			}
			s.GetObjectW(c.Obj()).WeakSetProperty(name, v)
			if !binding.IsMaybeAbsent() {
				done = true
				break
			}
		}
		if !done && s.HasObject(outermost) {
			if strong && !s.summarized[outermost] {
				s.GetObjectW(outermost).SetProperty(name, v)
			} else {
				s.GetObjectW(outermost).WeakSetProperty(name, v)
			}
		}
	}
}

// DeclareVar binds a name in the innermost activation of every chain,
// strongly when there is only one chain.
func (s *State) DeclareVar(name string, v Value) {
	if len(s.scope) == 0 {
		panic(errInternal)
	}
	v = s.session.Canon(v)
	for _, chain := range s.scope {
		if len(s.scope) == 1 && !s.summarized[chain.Obj()] {
			s.GetObjectW(chain.Obj()).SetProperty(name, v)
		} else {
			s.GetObjectW(chain.Obj()).WeakSetProperty(name, v)
		}
	}
}

/* Lattice operations */

// JoinWith joins other into the receiver in place and reports whether
// the receiver changed. Both states must be at the same function.
func (s *State) JoinWith(other *State) bool {
	changed := false
	for i := range s.registers {
		j := s.registers[i].Join(other.registers[i])
		if !j.Eq(s.registers[i]) {
			s.registers[i] = s.session.Canon(j)
			changed = true
		}
	}
	for l, oobj := range other.store {
		obj, ok := s.store[l]
		if !ok {
			oobj.freeze()
			s.store[l] = oobj
			changed = true
			continue
		}
		if oobj.Leq(obj) {
			continue
		}
		s.store[l] = obj.Join(oobj)
		changed = true
	}
	for _, sc := range other.scope {
		before := len(s.scope)
		s.AddScope(sc)
		if len(s.scope) != before {
			changed = true
		}
	}
	join := func(dst *Value, src Value) {
		j := dst.Join(src)
		if !j.Eq(*dst) {
			*dst = s.session.Canon(j)
			changed = true
		}
	}
	join(&s.thisVal, other.thisVal)
	join(&s.retVal, other.retVal)
	join(&s.excVal, other.excVal)
	for l := range other.modified {
		if !s.modified[l] {
			s.modified[l] = true
			changed = true
		}
	}
	for l := range other.summarized {
		if !s.summarized[l] {
			s.summarized[l] = true
			changed = true
		}
	}
	return changed
}

// MergeReturned merges a callee's exit state back into this caller
// state: objects the callee modified are joined in, untouched caller
// objects keep their precise caller-side value, and objects the callee
// allocated are added.
func (s *State) MergeReturned(callee *State) {
	for l, obj := range callee.store {
		if _, ok := s.store[l]; !ok {
			obj.freeze()
			s.store[l] = obj
			s.modified[l] = true
			continue
		}
		if callee.IsModified(l) {
			s.store[l] = s.store[l].Join(obj)
			s.modified[l] = true
		}
	}
	for l := range callee.summarized {
		s.summarized[l] = true
	}
}

// Eq reports whether two states are equal.
func (s *State) Eq(other *State) bool {
	if s == other {
		return true
	}
	if len(s.registers) != len(other.registers) || len(s.store) != len(other.store) ||
		len(s.scope) != len(other.scope) || len(s.summarized) != len(other.summarized) {
		return false
	}
	for l := range other.summarized {
		if !s.summarized[l] {
			return false
		}
	}
	for _, sc := range other.scope {
		found := false
		for _, c := range s.scope {
			if c == sc {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i := range s.registers {
		if !s.registers[i].Eq(other.registers[i]) {
			return false
		}
	}
	for l, obj := range s.store {
		oobj, ok := other.store[l]
		if !ok || !obj.Eq(oobj) {
			return false
		}
	}
	return s.thisVal.Eq(other.thisVal) &&
		s.retVal.Eq(other.retVal) &&
		s.excVal.Eq(other.excVal)
}

// Leq reports whether the receiver is below other.
func (s *State) Leq(other *State) bool {
	c := other.Clone()
	return !c.JoinWith(s)
}

func (s *State) String() string {
	fields := []func() string{}
	for i, v := range s.registers {
		if v.IsNone() {
			continue
		}
		i, v := i, v
		fields = append(fields, func() string {
			return colorize.Key(fmt.Sprintf("r%d", i)) + " ↦ " + v.String()
		})
	}
	for _, l := range s.Labels() {
		l := l
		fields = append(fields, func() string {
			return l.String() + " ↦ " + s.GetObject(l).String()
		})
	}
	for _, sc := range s.scope {
		sc := sc
		fields = append(fields, func() string {
			return colorize.Key("scope") + " ↦ " + sc.String()
		})
	}
	if !s.thisVal.IsNone() {
		fields = append(fields, func() string {
			return colorize.Key("this") + " ↦ " + s.thisVal.String()
		})
	}
	if !s.retVal.IsNone() {
		fields = append(fields, func() string {
			return colorize.Key("return") + " ↦ " + s.retVal.String()
		})
	}
	if !s.excVal.IsNone() {
		fields = append(fields, func() string {
			return colorize.Key("exception") + " ↦ " + s.excVal.String()
		})
	}
	if len(fields) == 0 {
		return colorize.Element("⊥")
	}
	return indenter.Indenter().Start("⟨").NestThunkedSep(",", fields...).End("⟩")
}
