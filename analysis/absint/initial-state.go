package absint

import (
	"math"

	"github.com/cs-au-dk/jstar/analysis/cfg"
	"github.com/cs-au-dk/jstar/analysis/lattice"
	"github.com/cs-au-dk/jstar/analysis/nativeobjects"
)

// buildInitialState allocates the built-in objects and returns the
// state the program entry is analyzed under: the global object with
// the standard constructors and prototypes, serving as the outermost
// variable object. Each name in hosts additionally becomes an opaque
// host object on the global, with unknown properties.
func buildInitialState(session *lattice.Session, fg *cfg.FlowGraph, hosts []string) (*lattice.State, *nativeobjects.Globals) {
	state := lattice.NewState(session, fg.Main())

	label := func(name string, kind lattice.ObjKind) lattice.ObjectLabel {
		return lattice.MakeObjectLabel(cfg.NewSyntheticNode(name), kind)
	}

	globals := &nativeobjects.Globals{
		Global:        label("<global>", lattice.KObject),
		ObjectProto:   label("Object.prototype", lattice.KObject),
		FunctionProto: label("Function.prototype", lattice.KObject),
		ArrayProto:    label("Array.prototype", lattice.KObject),
		RegExpProto:   label("RegExp.prototype", lattice.KObject),
		ErrorProto:    label("Error.prototype", lattice.KObject),
	}

	objectProtoV := lattice.MakeObject(globals.ObjectProto)
	funProtoV := lattice.MakeObject(globals.FunctionProto)

	objectProto := lattice.NewObject(lattice.MakeNull())
	funProto := lattice.NewObject(objectProtoV)
	arrayProto := lattice.NewObject(objectProtoV)
	regexpProto := lattice.NewObject(objectProtoV)
	errorProto := lattice.NewObject(objectProtoV)

	// Native constructors and methods.
	native := func(name string, id lattice.NativeID) lattice.ObjectLabel {
		l := label(name, lattice.KFunction)
		state.PutObject(l, lattice.NewNativeObject(funProtoV, id))
		return l
	}
	objectCtor := native("Object", nativeobjects.ObjectCtor)
	arrayCtor := native("Array", nativeobjects.ArrayCtor)
	regexpCtor := native("RegExp", nativeobjects.RegExpCtor)
	evalFn := native("eval", nativeobjects.Eval)

	link := func(ctor, proto lattice.ObjectLabel, protoObj *lattice.Object) {
		state.GetObjectW(ctor).SetProperty("prototype",
			lattice.MakeObject(proto).SetAttributes(false, false, false))
		protoObj.SetProperty("constructor", lattice.MakeObject(ctor).SetAttributes(true, false, true))
	}
	link(objectCtor, globals.ObjectProto, objectProto)
	link(arrayCtor, globals.ArrayProto, arrayProto)
	link(regexpCtor, globals.RegExpProto, regexpProto)

	regexpProto.SetProperty("exec",
		lattice.MakeObject(native("RegExp.prototype.exec", nativeobjects.RegExpExec)))
	regexpProto.SetProperty("test",
		lattice.MakeObject(native("RegExp.prototype.test", nativeobjects.RegExpTest)))
	regexpProto.SetProperty("toString",
		lattice.MakeObject(native("RegExp.prototype.toString", nativeobjects.RegExpToString)))

	state.PutObject(globals.ObjectProto, objectProto)
	state.PutObject(globals.FunctionProto, funProto)
	state.PutObject(globals.ArrayProto, arrayProto)
	state.PutObject(globals.RegExpProto, regexpProto)
	state.PutObject(globals.ErrorProto, errorProto)

	global := lattice.NewObject(objectProtoV)
	global.SetProperty("undefined", lattice.MakeUndef().SetAttributes(false, false, false))
	global.SetProperty("NaN", lattice.MakeNum(math.NaN()).SetAttributes(false, false, false))
	global.SetProperty("Infinity", lattice.MakeNum(math.Inf(1)).SetAttributes(false, false, false))
	global.SetProperty("Object", lattice.MakeObject(objectCtor))
	global.SetProperty("Array", lattice.MakeObject(arrayCtor))
	global.SetProperty("RegExp", lattice.MakeObject(regexpCtor))
	global.SetProperty("eval", lattice.MakeObject(evalFn))
	// Opaque host objects. Nothing is known about their properties
	// beyond "any primitive or the host object itself".
	for _, name := range hosts {
		l := label(name, lattice.KObject)
		anyV := lattice.MakeAnyNum().
			Join(lattice.MakeAnyStr()).
			Join(lattice.MakeAnyBool()).
			JoinUndef().JoinNull().
			JoinObject(l)
		host := lattice.NewObject(objectProtoV)
		host.SetDefaultNum(anyV)
		host.SetDefaultStr(anyV)
		state.PutObject(l, host)
		global.SetProperty(name, lattice.MakeObject(l))
	}

	// Everything else starts out absent; reads of unknown globals
	// surface as ReferenceError diagnostics.
	state.PutObject(globals.Global, global)

	// The global object is the outermost variable object and the
	// top-level this.
	state.SetScope(session.ExtendScopeChain(globals.Global, nil))
	state.SetThisVal(lattice.MakeObject(globals.Global))

	return state, globals
}
