package scope

import (
	"slices"

	"github.com/dop251/goja"
)

// Vars is an insertion-ordered name → value store. It backs the persistent
// global store and every instance store. Callers serialize access.
type Vars struct {
	values map[string]goja.Value
	order  []string
}

// NewVars creates an empty store.
func NewVars() *Vars {
	return &Vars{values: make(map[string]goja.Value)}
}

// Get returns the value stored under name.
func (v *Vars) Get(name string) (goja.Value, bool) {
	value, ok := v.values[name]
	return value, ok
}

// Has reports whether name is stored.
func (v *Vars) Has(name string) bool {
	_, ok := v.values[name]
	return ok
}

// Set stores value under name, keeping the original position of an
// existing name.
func (v *Vars) Set(name string, value goja.Value) {
	if _, ok := v.values[name]; !ok {
		v.order = append(v.order, name)
	}
	v.values[name] = value
}

// Delete removes name. Deleting a missing name is a no-op.
func (v *Vars) Delete(name string) {
	if _, ok := v.values[name]; !ok {
		return
	}
	delete(v.values, name)
	if i := slices.Index(v.order, name); i >= 0 {
		v.order = slices.Delete(v.order, i, i+1)
	}
}

// Keys returns the stored names in insertion order.
func (v *Vars) Keys() []string {
	return slices.Clone(v.order)
}

// Len returns the number of stored names.
func (v *Vars) Len() int {
	return len(v.order)
}

func sortedKeys(m map[string]goja.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
