package lattice

import (
	"sort"

	"github.com/benbjohnson/immutable"
	"github.com/cs-au-dk/jstar/analysis/cfg"
	"github.com/cs-au-dk/jstar/utils"
	"github.com/cs-au-dk/jstar/utils/indenter"
)

// NativeID identifies a built-in function or object with native
// semantics. Zero means the object has no native behavior.
type NativeID int

// An Object is the abstract state of the set of concrete objects
// summarized by one object label: a map of named properties plus two
// default properties summarizing the unnamed rest (array indices and
// other strings), the prototype link, the internal primitive value of
// wrapper objects, and the code of function objects.
//
// Objects are copy-on-write: when a state is cloned, its objects are
// frozen in place and shared; a frozen object must be copied through
// Object.Copy before mutation. The writable flag tracks which side of
// that protocol an object is on.
type Object struct {
	properties *immutable.Map[string, Value]
	defaultNum Value // summary of absent array index properties
	defaultStr Value // summary of absent other properties
	proto      Value // [[Prototype]]; null or object labels
	internal   Value // [[PrimitiveValue]] of wrapper objects
	fun        *cfg.Function
	// Scope chains the function closes over. A set: joining closures
	// of the same allocation site accumulates chains.
	scopes   []*ScopeChain
	native   NativeID
	writable bool
}

// NewObject creates an empty writable object with the given prototype.
func NewObject(proto Value) *Object {
	return &Object{
		properties: immutable.NewMap[string, Value](utils.StringHasher{}),
		defaultNum: MakeAbsent(),
		defaultStr: MakeAbsent(),
		proto:      proto,
		internal:   MakeNone(),
		writable:   true,
	}
}

// NewFunctionObject creates a writable function object carrying code
// and the scope chains it closes over.
func NewFunctionObject(proto Value, fun *cfg.Function, scopes []*ScopeChain) *Object {
	obj := NewObject(proto)
	obj.fun = fun
	obj.scopes = append([]*ScopeChain{}, scopes...)
	return obj
}

// NewNativeObject creates a writable object with native semantics.
func NewNativeObject(proto Value, id NativeID) *Object {
	obj := NewObject(proto)
	obj.native = id
	return obj
}

// Copy returns a writable copy of the object. The property map is
// shared structurally, so copies are cheap.
func (o *Object) Copy() *Object {
	c := *o
	c.scopes = append([]*ScopeChain(nil), o.scopes...)
	c.writable = true
	return &c
}

// freeze marks the object immutable. Frozen objects may be shared
// between states; mutating one is a bug caught by checkWritable.
func (o *Object) freeze() { o.writable = false }

// IsWritable reports whether the object may be mutated in place.
func (o *Object) IsWritable() bool { return o.writable }

func (o *Object) checkWritable() {
	if !o.writable {
		panic(errInternal)
	}
}

func (o *Object) Proto() Value           { return o.proto }
func (o *Object) Internal() Value        { return o.internal }
func (o *Object) Code() *cfg.Function    { return o.fun }
func (o *Object) Scopes() []*ScopeChain  { return o.scopes }
func (o *Object) Native() NativeID       { return o.native }
func (o *Object) DefaultNum() Value      { return o.defaultNum }
func (o *Object) DefaultStr() Value      { return o.defaultStr }

// SetProto replaces the prototype link.
func (o *Object) SetProto(v Value) {
	o.checkWritable()
	o.proto = v
}

// SetInternal replaces the internal primitive value.
func (o *Object) SetInternal(v Value) {
	o.checkWritable()
	o.internal = v
}

// AddScope adds a chain the function closes over.
func (o *Object) AddScope(sc *ScopeChain) {
	o.checkWritable()
	for _, c := range o.scopes {
		if c == sc {
			return
		}
	}
	o.scopes = append(o.scopes, sc)
}

// GetProperty reads a named property of this object alone, without
// prototype traversal. Properties never written explicitly fall back to
// the matching default.
func (o *Object) GetProperty(name string) Value {
	if v, ok := o.properties.Get(name); ok {
		return v
	}
	if isArrayIndex(name) {
		return o.defaultNum
	}
	return o.defaultStr
}

// HasProperty reports whether the property was written explicitly.
func (o *Object) HasProperty(name string) bool {
	_, ok := o.properties.Get(name)
	return ok
}

// SetProperty strongly updates a named property.
func (o *Object) SetProperty(name string, v Value) {
	o.checkWritable()
	o.properties = o.properties.Set(name, v.RestrictToNotAbsent())
}

// WeakSetProperty joins a value into a named property, for writes that
// may not happen or hit a summarized object.
func (o *Object) WeakSetProperty(name string, v Value) {
	o.checkWritable()
	o.properties = o.properties.Set(name, o.GetProperty(name).Join(v))
}

// DeleteProperty removes a named property, leaving absent behind.
func (o *Object) DeleteProperty(name string) {
	o.checkWritable()
	o.properties = o.properties.Delete(name)
}

// SetDefaultNum weakly updates the array index summary property.
func (o *Object) SetDefaultNum(v Value) {
	o.checkWritable()
	o.defaultNum = o.defaultNum.Join(v)
	// Existing named index properties may be the ones written.
	itr := o.properties.Iterator()
	for !itr.Done() {
		name, old, _ := itr.Next()
		if isArrayIndex(name) {
			o.properties = o.properties.Set(name, old.Join(v))
		}
	}
}

// SetDefaultStr weakly updates the other-property summary.
func (o *Object) SetDefaultStr(v Value) {
	o.checkWritable()
	o.defaultStr = o.defaultStr.Join(v)
	itr := o.properties.Iterator()
	for !itr.Done() {
		name, old, _ := itr.Next()
		if !isArrayIndex(name) {
			o.properties = o.properties.Set(name, old.Join(v))
		}
	}
}

// PropertyNames returns the explicitly written property names, sorted.
func (o *Object) PropertyNames() []string {
	names := make([]string, 0, o.properties.Len())
	itr := o.properties.Iterator()
	for !itr.Done() {
		name, _, _ := itr.Next()
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForEachProperty visits every explicitly written property.
func (o *Object) ForEachProperty(do func(name string, v Value)) {
	itr := o.properties.Iterator()
	for !itr.Done() {
		name, v, _ := itr.Next()
		do(name, v)
	}
}

// Join returns the least upper bound of two objects summarizing the
// same label. The receiver is not mutated.
func (o *Object) Join(other *Object) *Object {
	if o == other {
		return o
	}
	res := o.Copy()
	other.ForEachProperty(func(name string, v Value) {
		res.properties = res.properties.Set(name, res.GetProperty(name).Join(v))
	})
	// Properties only the receiver wrote join with the other side's
	// default.
	o.ForEachProperty(func(name string, v Value) {
		if !other.HasProperty(name) {
			res.properties = res.properties.Set(name, v.Join(other.GetProperty(name)))
		}
	})
	res.defaultNum = o.defaultNum.Join(other.defaultNum)
	res.defaultStr = o.defaultStr.Join(other.defaultStr)
	res.proto = o.proto.Join(other.proto)
	res.internal = o.internal.Join(other.internal)
	if res.fun == nil {
		res.fun = other.fun
	}
	for _, sc := range other.scopes {
		res.AddScope(sc)
	}
	if res.native == 0 {
		res.native = other.native
	}
	return res
}

// Eq reports whether two objects are equal.
func (o *Object) Eq(other *Object) bool {
	if o == other {
		return true
	}
	if o.properties.Len() != other.properties.Len() ||
		o.fun != other.fun || o.native != other.native ||
		len(o.scopes) != len(other.scopes) {
		return false
	}
	for _, sc := range other.scopes {
		found := false
		for _, c := range o.scopes {
			if c == sc {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	eq := true
	o.ForEachProperty(func(name string, v Value) {
		ov, ok := other.properties.Get(name)
		if !ok || !v.Eq(ov) {
			eq = false
		}
	})
	return eq &&
		o.defaultNum.Eq(other.defaultNum) &&
		o.defaultStr.Eq(other.defaultStr) &&
		o.proto.Eq(other.proto) &&
		o.internal.Eq(other.internal)
}

// Leq reports whether the receiver is below other in the lattice.
func (o *Object) Leq(other *Object) bool {
	return o.Join(other).Eq(other)
}

func (o *Object) String() string {
	fields := []func() string{}
	for _, name := range o.PropertyNames() {
		name := name
		v := o.GetProperty(name)
		fields = append(fields, func() string {
			return colorize.Field(name) + " ↦ " + v.String()
		})
	}
	if !o.defaultNum.IsNone() && !o.defaultNum.Eq(MakeAbsent()) {
		fields = append(fields, func() string {
			return colorize.Field("[[DefaultNum]]") + " ↦ " + o.defaultNum.String()
		})
	}
	if !o.defaultStr.IsNone() && !o.defaultStr.Eq(MakeAbsent()) {
		fields = append(fields, func() string {
			return colorize.Field("[[DefaultStr]]") + " ↦ " + o.defaultStr.String()
		})
	}
	if !o.proto.IsNone() {
		fields = append(fields, func() string {
			return colorize.Field("[[Proto]]") + " ↦ " + o.proto.String()
		})
	}
	if !o.internal.IsNone() {
		fields = append(fields, func() string {
			return colorize.Field("[[Value]]") + " ↦ " + o.internal.String()
		})
	}
	if o.fun != nil {
		fields = append(fields, func() string {
			return colorize.Field("[[Code]]") + " ↦ " + o.fun.String()
		})
	}
	if len(fields) == 0 {
		return "{}"
	}
	return indenter.Indenter().Start("{").NestThunkedSep(",", fields...).End("}")
}
