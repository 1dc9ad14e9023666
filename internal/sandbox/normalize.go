package sandbox

import (
	"strconv"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/sandbox/scope"
)

// settled receives the outcome of an asynchronous resolution. It is called
// exactly once, with the engine lock held.
type settled func(goja.Value, error)

// await resolves v if it is a thenable and passes anything else through.
func (s *Sandbox) await(v goja.Value, done settled) {
	s.unthen(v, func(v goja.Value, _ bool, err error) {
		done(v, err)
	})
}

// unthen subscribes to v when it is a thenable. The callback learns
// whether v was one.
func (s *Sandbox) unthen(v goja.Value, done func(goja.Value, bool, error)) {
	v = scope.Unwrap(s.in.Intrinsics, v)
	obj, ok := v.(*goja.Object)
	if !ok || revoked(obj) {
		done(v, false, nil)
		return
	}

	var then goja.Callable
	if err := s.try(func() {
		then, _ = goja.AssertFunction(obj.Get("then"))
	}); err != nil {
		done(nil, false, s.failure(err))
		return
	}
	if then == nil {
		done(v, false, nil)
		return
	}

	finished := false
	once := func(v goja.Value, err error) {
		if finished {
			return
		}
		finished = true
		done(v, true, err)
	}
	onFulfilled := s.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		once(call.Argument(0), nil)
		return goja.Undefined()
	})
	onRejected := s.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		once(nil, s.reasonError(call.Argument(0)))
		return goja.Undefined()
	})
	if _, err := then(obj, onFulfilled, onRejected); err != nil {
		once(nil, s.failure(err))
	}
}

// normalize resolves v before it leaves the sandbox. Thenables are awaited
// and their results normalized in turn; arrays and plain objects are
// rebuilt with normalized members. Other values pass through unchanged and
// the input is never mutated. The first failure wins.
func (s *Sandbox) normalize(v goja.Value, done settled) {
	s.settle(v, 0, done)
}

func (s *Sandbox) settle(v goja.Value, depth int, done settled) {
	if depth > maxDepth {
		done(nil, fault(ErrScriptFault, "Value is nested more than %d levels deep", maxDepth))
		return
	}
	s.unthen(v, func(v goja.Value, thenable bool, err error) {
		switch {
		case err != nil:
			done(nil, err)
		case thenable:
			s.settle(v, depth+1, done)
		default:
			s.settleMembers(v, depth, done)
		}
	})
}

func (s *Sandbox) settleMembers(v goja.Value, depth int, done settled) {
	obj, ok := v.(*goja.Object)
	if !ok || revoked(obj) {
		done(v, nil)
		return
	}

	var (
		keys    []string
		values  []goja.Value
		isArray bool
	)
	if err := s.try(func() {
		switch {
		case obj.ClassName() == "Array":
			isArray = true
			n := int(obj.Get("length").ToInteger())
			values = make([]goja.Value, n)
			for i := range values {
				values[i] = obj.Get(strconv.Itoa(i))
			}
		case obj.Prototype() == s.in.objectProto:
			keys = obj.Keys()
			values = make([]goja.Value, len(keys))
			for i, key := range keys {
				values[i] = obj.Get(key)
			}
		}
	}); err != nil {
		done(nil, s.failure(err))
		return
	}
	if values == nil {
		done(obj, nil)
		return
	}

	results := make([]goja.Value, len(values))
	remaining := len(values)
	failed := false
	assemble := func() {
		if isArray {
			items := make([]any, len(results))
			for i, r := range results {
				items[i] = r
			}
			done(s.vm.NewArray(items...), nil)
			return
		}
		out := s.vm.NewObject()
		for i, key := range keys {
			_ = out.DefineDataProperty(key, results[i], goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE)
		}
		done(out, nil)
	}
	if remaining == 0 {
		assemble()
		return
	}
	for i, member := range values {
		s.settle(member, depth+1, func(v goja.Value, err error) {
			if failed {
				return
			}
			if err != nil {
				failed = true
				done(nil, err)
				return
			}
			results[i] = v
			remaining--
			if remaining == 0 {
				assemble()
			}
		})
	}
}
