package resilience

import (
	"context"
	"sort"
	"sync"
)

// Set lazily creates one breaker per name from shared settings, so a
// failing host function does not trip calls to its neighbours.
type Set struct {
	settings Settings
	breakers sync.Map // name -> *Breaker
}

// NewSet creates an empty breaker set.
func NewSet(settings Settings) *Set {
	return &Set{settings: settings}
}

// Get returns the breaker for name, creating it on first use.
func (s *Set) Get(name string) *Breaker {
	if b, ok := s.breakers.Load(name); ok {
		return b.(*Breaker)
	}
	b, _ := s.breakers.LoadOrStore(name, New(name, s.settings))
	return b.(*Breaker)
}

// Execute runs fn behind the breaker for name.
func (s *Set) Execute(ctx context.Context, name string, fn func(context.Context) (any, error)) (any, error) {
	return s.Get(name).Execute(ctx, fn)
}

// Remove forgets the breaker for name.
func (s *Set) Remove(name string) {
	s.breakers.Delete(name)
}

// States reports the current state of every breaker created so far.
func (s *Set) States() map[string]State {
	states := make(map[string]State)
	s.breakers.Range(func(key, value any) bool {
		states[key.(string)] = value.(*Breaker).State()
		return true
	})
	return states
}

// Names lists breaker names in sorted order.
func (s *Set) Names() []string {
	var names []string
	s.breakers.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}
