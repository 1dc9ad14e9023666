package scope

import (
	"fmt"
	"reflect"

	"github.com/dop251/goja"
)

var proxyType = reflect.TypeOf(goja.Proxy{})

// Intrinsics are the engine objects the wrapper relies on. They must be
// captured before scripts run, while the built-ins are still pristine.
type Intrinsics struct {
	Global                   *goja.Object
	GetOwnPropertyDescriptor goja.Callable
	IsExtensible             goja.Callable
	// Marker is a symbol no script can name. Reading it from a wrapper
	// yields the wrapped object.
	Marker *goja.Symbol
	// Constructors maps the stubs left on function prototypes to the real
	// function constructors. A wrapper hands out the real one instead.
	Constructors map[*goja.Object]*goja.Object
}

// CaptureIntrinsics reads the intrinsics from vm.
func CaptureIntrinsics(vm *goja.Runtime) (*Intrinsics, error) {
	object := vm.GlobalObject().Get("Object")
	if object == nil {
		return nil, fmt.Errorf("global Object is missing")
	}
	ctor := object.ToObject(vm)

	gopd, ok := goja.AssertFunction(ctor.Get("getOwnPropertyDescriptor"))
	if !ok {
		return nil, fmt.Errorf("Object.getOwnPropertyDescriptor is not callable")
	}
	isExtensible, ok := goja.AssertFunction(ctor.Get("isExtensible"))
	if !ok {
		return nil, fmt.Errorf("Object.isExtensible is not callable")
	}

	return &Intrinsics{
		Global:                   vm.GlobalObject(),
		GetOwnPropertyDescriptor: gopd,
		IsExtensible:             isExtensible,
		Marker:                   goja.NewSymbol("scripthost.wrapped"),
	}, nil
}

// Wrapper hands out transparent proxies for the objects a script reaches
// through the fixed, local and host function tiers. Calls through a
// wrapper see unwrapped arguments; their results are wrapped again, and
// the real global object is replaced by the bound global scope.
//
// A Wrapper belongs to one evaluation. Release drops its memo table.
type Wrapper struct {
	vm    *goja.Runtime
	in    *Intrinsics
	scope *goja.Object
	memo  map[*goja.Object]*goja.Object
	traps *goja.ProxyTrapConfig
}

// NewWrapper creates a wrapper for one evaluation.
func NewWrapper(vm *goja.Runtime, in *Intrinsics) *Wrapper {
	w := &Wrapper{
		vm:   vm,
		in:   in,
		memo: make(map[*goja.Object]*goja.Object),
	}
	w.traps = &goja.ProxyTrapConfig{
		Get:                         w.get,
		GetSym:                      w.getSym,
		GetOwnPropertyDescriptor:    w.ownDescriptor,
		GetOwnPropertyDescriptorSym: w.ownDescriptorSym,
		GetPrototypeOf:              w.prototypeOf,
		Apply:                       w.apply,
		Construct:                   w.construct,
	}
	return w
}

// Bind sets the object that stands in for the real global object.
func (w *Wrapper) Bind(scope *goja.Object) {
	w.scope = scope
}

// Wrap returns the transparent proxy for v. Primitives, engine-side
// proxies and existing wrappers are returned unchanged. A constructor stub
// is replaced by the real constructor it stands for.
func (w *Wrapper) Wrap(v goja.Value) goja.Value {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		return v
	}
	if obj == w.in.Global && w.scope != nil {
		return w.scope
	}
	if ctor, ok := w.in.Constructors[obj]; ok {
		obj = ctor
	}
	if _, native := nativeProxy(obj); native {
		return obj
	}
	if p, ok := w.memo[obj]; ok {
		return p
	}
	if w.memo == nil {
		w.memo = make(map[*goja.Object]*goja.Object)
	}
	p := w.vm.ToValue(w.vm.NewProxy(obj, w.traps)).(*goja.Object)
	w.memo[obj] = p
	return p
}

// Unwrap returns the object behind a wrapper, or v itself.
func (w *Wrapper) Unwrap(v goja.Value) goja.Value {
	return Unwrap(w.in, v)
}

// Release forgets every wrapper handed out so far.
func (w *Wrapper) Release() {
	w.memo = nil
}

// Unwrap returns the object behind a wrapper created with in, or v itself.
func Unwrap(in *Intrinsics, v goja.Value) goja.Value {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		return v
	}
	if _, native := nativeProxy(obj); !native {
		return v
	}
	if target, ok := obj.GetSymbol(in.Marker).(*goja.Object); ok {
		return target
	}
	return v
}

// nativeProxy reports whether obj is a live proxy created from Go. Script
// proxies carry a script handler and are never asked for the marker.
func nativeProxy(obj *goja.Object) (goja.Proxy, bool) {
	if obj.ExportType() != proxyType {
		return goja.Proxy{}, false
	}
	p, ok := obj.Export().(goja.Proxy)
	if !ok {
		return goja.Proxy{}, false
	}
	handler := p.Handler()
	if handler == nil {
		return goja.Proxy{}, false
	}
	if _, ok := handler.Export().(*goja.ProxyTrapConfig); !ok {
		return goja.Proxy{}, false
	}
	return p, true
}

func (w *Wrapper) unwrapAll(args []goja.Value) []goja.Value {
	out := make([]goja.Value, len(args))
	for i, arg := range args {
		out[i] = w.Unwrap(arg)
	}
	return out
}

// property is an own property of a wrapped object as the engine reports it.
type property struct {
	found        bool
	accessor     bool
	value        goja.Value
	getter       goja.Value
	setter       goja.Value
	writable     bool
	enumerable   bool
	configurable bool
}

// pinned reports whether proxy invariants force the wrapper to return the
// raw value: a non-configurable data property that is not writable, or a
// non-configurable accessor without getter.
func (p property) pinned() (goja.Value, bool) {
	if !p.found || p.configurable {
		return nil, false
	}
	if !p.accessor && !p.writable {
		return p.value, true
	}
	if p.accessor && (p.getter == nil || goja.IsUndefined(p.getter)) {
		return goja.Undefined(), true
	}
	return nil, false
}

func (w *Wrapper) own(target *goja.Object, key goja.Value) property {
	d, err := w.in.GetOwnPropertyDescriptor(goja.Undefined(), target, key)
	if err != nil {
		panic(err)
	}
	desc, ok := d.(*goja.Object)
	if !ok {
		return property{}
	}
	p := property{
		found:        true,
		enumerable:   desc.Get("enumerable").ToBoolean(),
		configurable: desc.Get("configurable").ToBoolean(),
	}
	if get := desc.Get("get"); get != nil {
		p.accessor = true
		p.getter = get
		p.setter = desc.Get("set")
		return p
	}
	p.value = desc.Get("value")
	if p.value == nil {
		p.value = goja.Undefined()
	}
	p.writable = desc.Get("writable").ToBoolean()
	return p
}

func (w *Wrapper) get(target *goja.Object, name string, _ goja.Value) goja.Value {
	if v, ok := w.own(target, w.vm.ToValue(name)).pinned(); ok {
		return v
	}
	return w.Wrap(orUndefined(target.Get(name)))
}

func (w *Wrapper) getSym(target *goja.Object, sym *goja.Symbol, _ goja.Value) goja.Value {
	if sym == w.in.Marker {
		return target
	}
	if v, ok := w.own(target, sym).pinned(); ok {
		return v
	}
	if sym == goja.SymUnscopables {
		return goja.Undefined()
	}
	return w.Wrap(orUndefined(target.GetSymbol(sym)))
}

func (w *Wrapper) ownDescriptor(target *goja.Object, name string) goja.PropertyDescriptor {
	return w.descriptor(w.own(target, w.vm.ToValue(name)))
}

func (w *Wrapper) ownDescriptorSym(target *goja.Object, sym *goja.Symbol) goja.PropertyDescriptor {
	return w.descriptor(w.own(target, sym))
}

func (w *Wrapper) descriptor(p property) goja.PropertyDescriptor {
	if !p.found {
		return goja.PropertyDescriptor{}
	}
	desc := goja.PropertyDescriptor{
		Enumerable:   flag(p.enumerable),
		Configurable: flag(p.configurable),
	}
	if p.accessor {
		desc.Getter = p.getter
		desc.Setter = p.setter
		return desc
	}
	desc.Writable = flag(p.writable)
	if v, ok := p.pinned(); ok {
		desc.Value = v
	} else {
		desc.Value = w.Wrap(p.value)
	}
	return desc
}

func (w *Wrapper) prototypeOf(target *goja.Object) *goja.Object {
	proto := target.Prototype()
	if proto == nil {
		return nil
	}
	extensible, err := w.in.IsExtensible(goja.Undefined(), target)
	if err != nil {
		panic(err)
	}
	if !extensible.ToBoolean() {
		return proto
	}
	return w.Wrap(proto).(*goja.Object)
}

func (w *Wrapper) apply(target *goja.Object, this goja.Value, args []goja.Value) goja.Value {
	fn, ok := goja.AssertFunction(target)
	if !ok {
		panic(w.vm.NewTypeError("wrapped value is not a function"))
	}
	result, err := fn(w.Unwrap(this), w.unwrapAll(args)...)
	if err != nil {
		panic(err)
	}
	return w.Wrap(result)
}

func (w *Wrapper) construct(target *goja.Object, args []goja.Value, newTarget *goja.Object) *goja.Object {
	ctor, ok := goja.AssertConstructor(target)
	if !ok {
		panic(w.vm.NewTypeError("wrapped value is not a constructor"))
	}
	if newTarget != nil {
		if nt, ok := w.Unwrap(newTarget).(*goja.Object); ok {
			newTarget = nt
		}
	}
	result, err := ctor(newTarget, w.unwrapAll(args)...)
	if err != nil {
		panic(err)
	}
	return w.Wrap(result).(*goja.Object)
}

func flag(b bool) goja.Flag {
	if b {
		return goja.FLAG_TRUE
	}
	return goja.FLAG_FALSE
}

func orUndefined(v goja.Value) goja.Value {
	if v == nil {
		return goja.Undefined()
	}
	return v
}
