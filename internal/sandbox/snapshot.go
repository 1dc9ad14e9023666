package sandbox

import (
	"fmt"
	"maps"
	"slices"

	"github.com/dop251/goja"
)

// Snapshot is a copy of the persistent stores as plain Go data.
// Functions and other values without a data form are left out.
type Snapshot struct {
	Version   int                       `json:"version"`
	Globals   map[string]any            `json:"globals"`
	Instances map[string]map[string]any `json:"instances"`
}

// Snapshot copies the global store, every instance store and the global
// version.
func (s *Sandbox) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Version:   s.clock.Now(),
		Instances: make(map[string]map[string]any, len(s.instances)),
	}
	var err error
	s.slice(func() {
		err = s.try(func() {
			snap.Globals = s.exportStore(s.globals.Keys(), s.globals.Get)
			for instanceID, store := range s.instances {
				snap.Instances[instanceID] = s.exportStore(store.Keys(), store.Get)
			}
		})
	})
	if err != nil {
		s.metrics.RecordSnapshot("save", "error")
		return Snapshot{}, fmt.Errorf("failed to export stores: %w", err)
	}
	s.metrics.RecordSnapshot("save", "ok")
	return snap, nil
}

// Restore loads stores from snap. Existing names are overwritten, and the
// global version never moves backwards.
func (s *Sandbox) Restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		s.metrics.RecordSnapshot("load", "error")
		return fmt.Errorf("%w: sandbox is disposed", ErrProtocolViolation)
	}
	for _, name := range slices.Sorted(maps.Keys(snap.Globals)) {
		s.globals.Set(name, s.toScript(snap.Globals[name]))
	}
	for _, instanceID := range slices.Sorted(maps.Keys(snap.Instances)) {
		store := s.instance(instanceID)
		vars := snap.Instances[instanceID]
		for _, name := range slices.Sorted(maps.Keys(vars)) {
			store.Set(name, s.toScript(vars[name]))
		}
	}
	s.clock.Advance(snap.Version)
	s.metrics.RecordSnapshot("load", "ok")
	return nil
}

func (s *Sandbox) exportStore(keys []string, get func(string) (goja.Value, bool)) map[string]any {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		v, _ := get(key)
		if obj, ok := v.(*goja.Object); ok {
			if _, fn := goja.AssertFunction(obj); fn {
				continue
			}
		}
		out[key] = s.exportValue(v, 0)
	}
	return out
}
