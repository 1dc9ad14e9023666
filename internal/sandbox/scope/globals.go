package scope

import (
	"github.com/dop251/goja"
)

// GlobalsConfig describes the four tiers of a global scope, searched in
// order: fixed built-ins, evaluation-local bindings, host functions and
// the persistent global store.
type GlobalsConfig struct {
	Fixed  map[string]goja.Value
	Locals map[string]goja.Value
	Funcs  map[string]goja.Value
	Store  *Vars

	// ReadOnly rejects writes and deletes on the global store.
	ReadOnly bool
	Tracker  *Tracker
	Wrapper  *Wrapper
}

// Globals implements the global scope Bag.
type Globals struct {
	cfg GlobalsConfig
}

// NewGlobals creates the global scope root. The wrapper, when set, is
// bound to the new root so values resolving to the real global object are
// replaced by it.
func NewGlobals(vm *goja.Runtime, cfg GlobalsConfig) *Root {
	if cfg.Store == nil {
		cfg.Store = NewVars()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = NewTracker(&Clock{}, false)
	}
	root := NewRoot(vm, "global scope", &Globals{cfg: cfg})
	if cfg.Wrapper != nil {
		cfg.Wrapper.Bind(root.Object())
	}
	return root
}

// tier returns the value of name from tiers 1–3.
func (g *Globals) tier(name string) (goja.Value, bool) {
	if v, ok := g.cfg.Fixed[name]; ok {
		return v, true
	}
	if v, ok := g.cfg.Locals[name]; ok {
		return v, true
	}
	if v, ok := g.cfg.Funcs[name]; ok {
		return v, true
	}
	return nil, false
}

func (g *Globals) wrap(v goja.Value) goja.Value {
	if g.cfg.Wrapper == nil {
		return v
	}
	return g.cfg.Wrapper.Wrap(v)
}

// Keys lists fixed, local, stored and host function names.
func (g *Globals) Keys() []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			keys = append(keys, name)
		}
	}
	for _, m := range []map[string]goja.Value{g.cfg.Fixed, g.cfg.Locals} {
		for _, name := range sortedKeys(m) {
			add(name)
		}
	}
	for _, name := range g.cfg.Store.Keys() {
		add(name)
	}
	for _, name := range sortedKeys(g.cfg.Funcs) {
		add(name)
	}
	return keys
}

// Has claims every name so unresolved identifiers never fall through to
// the real global object. Names outside tiers 1–3 count as reads.
func (g *Globals) Has(name string) bool {
	if _, ok := g.tier(name); !ok {
		g.cfg.Tracker.Read(name)
	}
	return true
}

// Get resolves name through the four tiers.
func (g *Globals) Get(name string) goja.Value {
	if v, ok := g.tier(name); ok {
		return g.wrap(v)
	}
	g.cfg.Tracker.Read(name)
	if v, ok := g.cfg.Store.Get(name); ok {
		return v
	}
	return goja.Undefined()
}

// Peek resolves name without recording a read. Every name exists.
func (g *Globals) Peek(name string) (goja.Value, bool) {
	if v, ok := g.tier(name); ok {
		return g.wrap(v), true
	}
	if v, ok := g.cfg.Store.Get(name); ok {
		return v, true
	}
	return goja.Undefined(), true
}

// Set writes name to the global store.
func (g *Globals) Set(name string, value goja.Value) error {
	if err := g.check(name, "assign", "replace"); err != nil {
		return err
	}
	g.cfg.Tracker.Write(name)
	g.cfg.Store.Set(name, value)
	return nil
}

// Delete removes name from the global store.
func (g *Globals) Delete(name string) error {
	if err := g.check(name, "delete", "delete"); err != nil {
		return err
	}
	g.cfg.Tracker.Write(name)
	g.cfg.Store.Delete(name)
	return nil
}

func (g *Globals) check(name, verb, funcVerb string) error {
	if _, ok := g.cfg.Fixed[name]; ok {
		return violation("Cannot %s fixed global variable '%s'", verb, name)
	}
	if _, ok := g.cfg.Locals[name]; ok {
		return violation("Cannot %s local variable '%s'", verb, name)
	}
	if _, ok := g.cfg.Funcs[name]; ok {
		return violation("Cannot %s host function '%s'", funcVerb, name)
	}
	if g.cfg.ReadOnly {
		return violation("Cannot %s read-only global variable '%s'", verb, name)
	}
	return nil
}
