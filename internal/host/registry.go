package host

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
)

// ErrDuplicate is returned when a function name is registered twice.
var ErrDuplicate = errors.New("host function already registered")

// Func implements a host function. Args holds the normalized script
// arguments; the returned value is sent back as the call result.
type Func func(ctx context.Context, call protocol.Call) (any, error)

// Registry maps host function names to implementations.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds fn under name.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return fmt.Errorf("host function name is empty")
	}
	if fn == nil {
		return fmt.Errorf("host function %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.funcs[name] = fn
	return nil
}

// Unregister removes name. Sandboxes already initialized keep the name,
// and calls to it fail.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.funcs, name)
}

// Get returns the function registered under name.
func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names lists registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
