package scope

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
)

type globalsFixture struct {
	vm      *goja.Runtime
	clock   *Clock
	store   *Vars
	tracker *Tracker
	root    *Root
}

func newGlobalsFixture(t *testing.T, readOnly bool) *globalsFixture {
	t.Helper()
	vm := goja.New()
	f := &globalsFixture{
		vm:    vm,
		clock: &Clock{},
		store: NewVars(),
	}
	f.tracker = NewTracker(f.clock, true)

	in, err := CaptureIntrinsics(vm)
	require.NoError(t, err)

	f.root = NewGlobals(vm, GlobalsConfig{
		Fixed: map[string]goja.Value{
			"Math":     vm.Get("Math"),
			"isFinite": vm.Get("isFinite"),
		},
		Locals: map[string]goja.Value{
			"input": vm.ToValue(7),
		},
		Funcs: map[string]goja.Value{
			"notify": vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue("sent") }),
		},
		Store:    f.store,
		ReadOnly: readOnly,
		Tracker:  f.tracker,
		Wrapper:  NewWrapper(vm, in),
	})
	return f
}

func (f *globalsFixture) run(t *testing.T, body string) (goja.Value, error) {
	t.Helper()
	return runIn(t, f.vm, f.root.Object(), body)
}

func TestGlobalsResolveTiers(t *testing.T) {
	f := newGlobalsFixture(t, false)

	v, err := f.run(t, `return [isFinite(123), Math.max(1, input), notify()].join(",");`)
	require.NoError(t, err)
	assert.Equal(t, "true,7,sent", v.String())
	assert.Empty(t, f.tracker.Vars(), "tiers 1-3 are not tracked")
}

func TestGlobalsTrackUndeclaredReads(t *testing.T) {
	f := newGlobalsFixture(t, false)

	v, err := f.run(t, `return value || 0;`)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.Export())
	assert.Equal(t, protocol.Tracking{"value": {Read: protocol.Version(0)}}, f.tracker.Vars())

	v, err = f.run(t, `return typeof unknownThing;`)
	require.NoError(t, err)
	assert.Equal(t, "undefined", v.String())
	assert.Contains(t, f.tracker.Vars(), "unknownThing")
}

func TestGlobalsWriteAdvancesVersion(t *testing.T) {
	f := newGlobalsFixture(t, false)

	v, err := f.run(t, `value = 123; return value;`)
	require.NoError(t, err)
	assert.Equal(t, int64(123), v.Export())
	assert.Equal(t, 1, f.clock.Now())
	assert.Equal(t, protocol.Tracking{
		"value": {Read: protocol.Version(1), Write: protocol.Version(1)},
	}, f.tracker.Vars())
	assert.Equal(t, map[string]int{"value": 1}, f.tracker.Written())

	stored, ok := f.store.Get("value")
	require.True(t, ok)
	assert.Equal(t, int64(123), stored.Export())
}

func TestGlobalsDelete(t *testing.T) {
	f := newGlobalsFixture(t, false)
	f.store.Set("value", f.vm.ToValue(1))
	require.NoError(t, f.vm.Set("g", f.root.Object()))

	v, err := f.vm.RunString(`delete g.value`)
	require.NoError(t, err)
	assert.True(t, v.ToBoolean())
	assert.False(t, f.store.Has("value"))
	assert.Equal(t, 1, f.clock.Now())
	assert.Equal(t, protocol.Version(1), f.tracker.Vars()["value"].Write)
}

func TestGlobalsRejectProtectedWrites(t *testing.T) {
	tests := []struct {
		name     string
		readOnly bool
		body     string
		want     string
	}{
		{"fixed", false, `Math = 1;`, "Cannot assign fixed global variable 'Math'"},
		{"local", false, `input = 1;`, "Cannot assign local variable 'input'"},
		{"host function", false, `notify = 1;`, "Cannot replace host function 'notify'"},
		{"read-only store", true, `value = 1;`, "Cannot assign read-only global variable 'value'"},
		{"fixed under read-only", true, `Math = 1;`, "Cannot assign fixed global variable 'Math'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGlobalsFixture(t, tt.readOnly)

			_, err := f.run(t, tt.body)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.ErrorIs(t, err, ErrViolation)
			assert.Equal(t, 0, f.clock.Now())
			assert.Zero(t, f.store.Len())
		})
	}
}

func TestGlobalsRejectProtectedDeletes(t *testing.T) {
	tests := []struct {
		name     string
		readOnly bool
		key      string
		want     string
	}{
		{"fixed", false, "Math", "Cannot delete fixed global variable 'Math'"},
		{"local", false, "input", "Cannot delete local variable 'input'"},
		{"host function", false, "notify", "Cannot delete host function 'notify'"},
		{"read-only store", true, "value", "Cannot delete read-only global variable 'value'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGlobalsFixture(t, tt.readOnly)
			require.NoError(t, f.vm.Set("g", f.root.Object()))

			_, err := f.vm.RunString(`delete g["` + tt.key + `"]`)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGlobalsKeys(t *testing.T) {
	f := newGlobalsFixture(t, false)
	f.store.Set("zeta", f.vm.ToValue(1))
	f.store.Set("alpha", f.vm.ToValue(2))

	bag := &Globals{cfg: GlobalsConfig{
		Fixed:  map[string]goja.Value{"Math": f.vm.Get("Math")},
		Locals: map[string]goja.Value{"input": f.vm.ToValue(1), "Math": f.vm.ToValue(2)},
		Funcs:  map[string]goja.Value{"notify": f.vm.ToValue(1)},
		Store:  f.store,
	}}

	assert.Equal(t, []string{"Math", "input", "zeta", "alpha", "notify"}, bag.Keys())
}
