package sandbox

import (
	"math"
	"reflect"
	"slices"
	"strconv"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/sandbox/scope"
)

const maxDepth = 100

var proxyType = reflect.TypeOf(goja.Proxy{})

// try runs f, turning script exceptions into errors. Uncatchable errors
// are recorded so the current slice ends with an abort.
func (s *Sandbox) try(f func()) (err error) {
	defer func() {
		if x := recover(); x != nil {
			if e, ok := x.(error); ok && uncatchable(e) {
				s.note(e)
				err = e
				return
			}
			panic(x)
		}
	}()
	if ex := s.vm.Try(f); ex != nil {
		return ex
	}
	return nil
}

// note records an uncatchable engine error. Every in-flight evaluation is
// failed once the current slice ends.
func (s *Sandbox) note(err error) {
	if err != nil && uncatchable(err) && s.aborted == nil {
		s.aborted = err
	}
}

// failure converts an error returned by the engine into a Fault.
func (s *Sandbox) failure(err error) error {
	if uncatchable(err) {
		s.note(err)
		return fault(ErrScriptFault, "Script execution interrupted: %s", interruptReason(err))
	}
	if ex, ok := err.(*goja.Exception); ok {
		return s.reasonError(ex.Value())
	}
	if f, ok := err.(*Fault); ok {
		return f
	}
	return fault(kindOf(err), "%s", err.Error())
}

// reasonError converts a thrown or rejected script value. Error objects
// keep their message, also when built through a wrapped constructor; any
// other value is reported as "Unknown error".
func (s *Sandbox) reasonError(reason goja.Value) error {
	message := "Unknown error"
	var cause error
	_ = s.try(func() {
		obj, ok := scope.Unwrap(s.in.Intrinsics, reason).(*goja.Object)
		if !ok || obj.ClassName() != "Error" {
			return
		}
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			message = m.String()
		}
		if v := obj.Get("value"); v != nil {
			cause, _ = v.Export().(error)
		}
	})
	if cause != nil {
		return &Fault{Kind: kindOf(cause), Message: message}
	}
	return &Fault{Kind: ErrScriptFault, Message: message}
}

// revoked reports a proxy whose handler is gone. Touching it throws.
func revoked(obj *goja.Object) bool {
	if obj.ExportType() != proxyType {
		return false
	}
	p, ok := obj.Export().(goja.Proxy)
	return ok && p.Handler() == nil
}

// export converts a script value into plain Go data: nil, bool, int64,
// float64, string, *big.Int, time.Time, []any and map[string]any.
// Functions, symbols and non-finite numbers become nil.
func (s *Sandbox) export(v goja.Value) (out any, err error) {
	err = s.try(func() {
		out = s.exportValue(v, 0)
	})
	return out, err
}

func (s *Sandbox) exportValue(v goja.Value, depth int) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) || depth > maxDepth {
		return nil
	}
	v = scope.Unwrap(s.in.Intrinsics, v)

	obj, ok := v.(*goja.Object)
	if !ok {
		if _, sym := v.(*goja.Symbol); sym {
			return nil
		}
		switch x := v.Export().(type) {
		case float64:
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil
			}
			return x
		default:
			return x
		}
	}

	if revoked(obj) {
		return nil
	}
	if _, fn := goja.AssertFunction(obj); fn {
		return nil
	}

	switch obj.ClassName() {
	case "Array":
		n := int(obj.Get("length").ToInteger())
		out := make([]any, n)
		for i := range out {
			out[i] = s.exportValue(obj.Get(strconv.Itoa(i)), depth+1)
		}
		return out
	case "Date":
		return obj.Export()
	}

	return s.exportFields(obj, depth)
}

// exportFields converts the own enumerable properties of obj, skipping
// functions.
func (s *Sandbox) exportFields(obj *goja.Object, depth int) map[string]any {
	out := make(map[string]any)
	for _, key := range obj.Keys() {
		field := obj.Get(key)
		if fobj, ok := field.(*goja.Object); ok {
			if _, fn := goja.AssertFunction(fobj); fn {
				continue
			}
		}
		out[key] = s.exportValue(field, depth+1)
	}
	return out
}

// toScript converts decoded protocol data into fresh script values.
// Objects are populated with defined properties so frozen prototypes
// cannot shadow their keys.
func (s *Sandbox) toScript(v any) goja.Value {
	switch x := v.(type) {
	case nil:
		return goja.Null()
	case goja.Value:
		return x
	case map[string]any:
		obj := s.vm.NewObject()
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			_ = obj.DefineDataProperty(k, s.toScript(x[k]), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE)
		}
		return obj
	case []any:
		items := make([]any, len(x))
		for i, item := range x {
			items[i] = s.toScript(item)
		}
		return s.vm.NewArray(items...)
	default:
		return s.vm.ToValue(x)
	}
}
