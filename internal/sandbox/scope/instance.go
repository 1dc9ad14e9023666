package scope

import (
	"github.com/dop251/goja"
)

// RefreshKey is the instance variable a script sets to ask for a re-run.
// It stays writable under idempotent evaluation.
const RefreshKey = "refresh"

// Instance implements the `this` scope Bag: a fixed idempotent flag plus
// the instance store.
type Instance struct {
	idempotent bool
	flag       goja.Value
	store      *Vars
}

// NewInstance creates the `this` scope root over store.
func NewInstance(vm *goja.Runtime, idempotent bool, store *Vars) *Root {
	if store == nil {
		store = NewVars()
	}
	return NewRoot(vm, "script instance", &Instance{
		idempotent: idempotent,
		flag:       vm.ToValue(idempotent),
		store:      store,
	})
}

// Keys lists the fixed flag followed by the stored names.
func (i *Instance) Keys() []string {
	return append([]string{"idempotent"}, i.store.Keys()...)
}

// Has reports the fixed flag and stored names.
func (i *Instance) Has(name string) bool {
	return name == "idempotent" || i.store.Has(name)
}

// Get returns the fixed flag or the stored value.
func (i *Instance) Get(name string) goja.Value {
	v, _ := i.Peek(name)
	return v
}

// Peek returns the fixed flag or the stored value.
func (i *Instance) Peek(name string) (goja.Value, bool) {
	if name == "idempotent" {
		return i.flag, true
	}
	if v, ok := i.store.Get(name); ok {
		return v, true
	}
	return goja.Undefined(), false
}

// Set writes an instance variable.
func (i *Instance) Set(name string, value goja.Value) error {
	if err := i.check(name, "assign", "assigned"); err != nil {
		return err
	}
	i.store.Set(name, value)
	return nil
}

// Delete removes an instance variable.
func (i *Instance) Delete(name string) error {
	if err := i.check(name, "delete", "deleted"); err != nil {
		return err
	}
	i.store.Delete(name)
	return nil
}

func (i *Instance) check(name, verb, participle string) error {
	if name == "idempotent" {
		return violation("Instance variable '%s' cannot be %s", name, participle)
	}
	if i.idempotent && name != RefreshKey {
		return violation("Idempotent script cannot %s instance variable '%s'", verb, name)
	}
	return nil
}
