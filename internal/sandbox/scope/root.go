package scope

import (
	"github.com/dop251/goja"
)

// Bag is the property set a Root exposes. Set and Delete return a
// *Violation to reject the operation.
type Bag interface {
	Keys() []string
	Has(name string) bool
	Get(name string) goja.Value
	// Peek reads a value without recording it anywhere.
	Peek(name string) (goja.Value, bool)
	Set(name string, value goja.Value) error
	Delete(name string) error
}

// Root is a revocable proxy that forwards property access on string keys
// to a Bag. Everything else (calls, construction, property definition,
// prototype access and extension control) throws.
type Root struct {
	name  string
	vm    *goja.Runtime
	bag   Bag
	proxy goja.Proxy
	value *goja.Object
}

// NewRoot creates a root proxy named name (used in error messages) over bag.
func NewRoot(vm *goja.Runtime, name string, bag Bag) *Root {
	r := &Root{name: name, vm: vm, bag: bag}
	r.proxy = vm.NewProxy(vm.NewObject(), &goja.ProxyTrapConfig{
		Apply: func(*goja.Object, goja.Value, []goja.Value) goja.Value {
			panic(r.fail("Cannot invoke %s", name))
		},
		Construct: func(*goja.Object, []goja.Value, *goja.Object) *goja.Object {
			panic(r.fail("Cannot construct %s", name))
		},
		DefineProperty: func(*goja.Object, string, goja.PropertyDescriptor) bool {
			panic(r.fail("Cannot define property on %s", name))
		},
		DefinePropertySym: func(*goja.Object, *goja.Symbol, goja.PropertyDescriptor) bool {
			panic(r.fail("Cannot define property on %s", name))
		},
		GetPrototypeOf: func(*goja.Object) *goja.Object {
			panic(r.fail("Cannot get prototype of %s", name))
		},
		SetPrototypeOf: func(*goja.Object, *goja.Object) bool {
			panic(r.fail("Cannot set prototype of %s", name))
		},
		PreventExtensions: func(*goja.Object) bool {
			panic(r.fail("Cannot prevent extensions of %s", name))
		},
		IsExtensible: func(*goja.Object) bool {
			return true
		},
		Has: func(_ *goja.Object, key string) bool {
			return bag.Has(key)
		},
		HasSym: func(*goja.Object, *goja.Symbol) bool {
			return false
		},
		Get: func(_ *goja.Object, key string, _ goja.Value) goja.Value {
			if v := bag.Get(key); v != nil {
				return v
			}
			return goja.Undefined()
		},
		GetSym: func(*goja.Object, *goja.Symbol, goja.Value) goja.Value {
			return goja.Undefined()
		},
		GetOwnPropertyDescriptor: func(_ *goja.Object, key string) goja.PropertyDescriptor {
			v, ok := bag.Peek(key)
			if !ok {
				return goja.PropertyDescriptor{}
			}
			if v == nil {
				v = goja.Undefined()
			}
			return goja.PropertyDescriptor{
				Value:        v,
				Writable:     goja.FLAG_TRUE,
				Enumerable:   goja.FLAG_TRUE,
				Configurable: goja.FLAG_TRUE,
			}
		},
		GetOwnPropertyDescriptorSym: func(*goja.Object, *goja.Symbol) goja.PropertyDescriptor {
			return goja.PropertyDescriptor{}
		},
		Set: func(_ *goja.Object, key string, value goja.Value, _ goja.Value) bool {
			if err := bag.Set(key, value); err != nil {
				panic(vm.NewGoError(err))
			}
			return true
		},
		SetSym: func(*goja.Object, *goja.Symbol, goja.Value, goja.Value) bool {
			panic(r.fail("Cannot assign symbol property on %s", name))
		},
		DeleteProperty: func(_ *goja.Object, key string) bool {
			if err := bag.Delete(key); err != nil {
				panic(vm.NewGoError(err))
			}
			return true
		},
		DeletePropertySym: func(*goja.Object, *goja.Symbol) bool {
			panic(r.fail("Cannot delete symbol property on %s", name))
		},
		OwnKeys: func(*goja.Object) *goja.Object {
			keys := bag.Keys()
			values := make([]any, len(keys))
			for i, k := range keys {
				values[i] = k
			}
			return vm.NewArray(values...)
		},
	})
	r.value = vm.ToValue(r.proxy).(*goja.Object)
	return r
}

func (r *Root) fail(format string, args ...any) *goja.Object {
	return r.vm.NewGoError(violation(format, args...))
}

// Name returns the name used in error messages.
func (r *Root) Name() string {
	return r.name
}

// Object returns the proxy as a script value.
func (r *Root) Object() *goja.Object {
	return r.value
}

// Revoke disables the proxy. Every later operation on it throws.
func (r *Root) Revoke() {
	r.proxy.Revoke()
}
