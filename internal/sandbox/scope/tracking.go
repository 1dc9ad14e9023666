package scope

import (
	"maps"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
)

// Clock is the per-sandbox global version counter. It starts at 0 and
// advances by one on every accepted global write or delete.
type Clock struct {
	version int
}

// Now returns the current version.
func (c *Clock) Now() int {
	return c.version
}

// Tick advances the clock and returns the new version.
func (c *Clock) Tick() int {
	c.version++
	return c.version
}

// Advance moves the clock forward to at least version.
func (c *Clock) Advance(version int) {
	if version > c.version {
		c.version = version
	}
}

// Tracker records the global names one evaluation touched. Writes are
// always remembered so host calls can report them; the per-name
// read/write map is only kept when tracking was requested.
type Tracker struct {
	clock   *Clock
	vars    protocol.Tracking
	written map[string]int
}

// NewTracker creates a tracker on clock. With track false, Vars returns nil.
func NewTracker(clock *Clock, track bool) *Tracker {
	t := &Tracker{
		clock:   clock,
		written: make(map[string]int),
	}
	if track {
		t.vars = make(protocol.Tracking)
	}
	return t
}

// Read records a read of name at the current version.
func (t *Tracker) Read(name string) {
	if t.vars == nil {
		return
	}
	entry := t.vars[name]
	now := t.clock.Now()
	if entry.Read == nil || *entry.Read < now {
		entry.Read = protocol.Version(now)
	}
	t.vars[name] = entry
}

// Write advances the clock and records the new version as the write of name.
func (t *Tracker) Write(name string) int {
	version := t.clock.Tick()
	t.written[name] = version
	if t.vars != nil {
		entry := t.vars[name]
		entry.Write = protocol.Version(version)
		t.vars[name] = entry
	}
	return version
}

// Written returns a copy of name → latest write version for this evaluation.
func (t *Tracker) Written() map[string]int {
	return maps.Clone(t.written)
}

// Vars returns the tracking map, or nil when tracking is off.
func (t *Tracker) Vars() protocol.Tracking {
	return t.vars
}
