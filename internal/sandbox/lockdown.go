package sandbox

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/sandbox/scope"
)

// fixedNames are the built-ins visible to every script. Names the engine
// does not provide are skipped.
var fixedNames = []string{
	"Infinity", "NaN", "undefined",
	"isFinite", "isNaN", "parseFloat", "parseInt",
	"encodeURI", "encodeURIComponent", "decodeURI", "decodeURIComponent",
	"Object", "Function", "Boolean", "Symbol",
	"Error", "EvalError", "RangeError", "ReferenceError", "SyntaxError", "TypeError", "URIError",
	"Number", "BigInt", "Math", "Date", "String", "RegExp", "Array",
	"Int8Array", "Uint8Array", "Uint8ClampedArray", "Int16Array", "Uint16Array",
	"Int32Array", "Uint32Array", "Float32Array", "Float64Array", "BigInt64Array", "BigUint64Array",
	"Map", "Set", "WeakMap", "WeakSet", "ArrayBuffer", "DataView",
	"JSON", "Promise",
}

// DelayName is the fixed helper that yields to the host and then waits.
const DelayName = "delay"

// codegenMessage is thrown when a script reaches a function constructor
// through a prototype chain that never passed a wrapper.
const codegenMessage = "Code generation from strings is not allowed"

// functionProtos are the prototypes whose constructor builds functions
// from source text.
var functionProtos = []string{
	"Function.prototype",
	"Object.getPrototypeOf(async function () {})",
	"Object.getPrototypeOf(function* () {})",
}

// freezeSource deep-freezes everything reachable from the global object
// and from extra, including the hidden prototypes of function and
// iterator kinds.
const freezeSource = `(function (root, extra) {
	"use strict";
	const seen = new Set();
	const pending = [
		root,
		...extra,
		Object.getPrototypeOf(async function () {}),
		Object.getPrototypeOf(function* () {}),
		Object.getPrototypeOf(Object.getPrototypeOf([][Symbol.iterator]())),
		Object.getPrototypeOf((function* () {})()),
		Object.getPrototypeOf(Int8Array),
	];
	while (pending.length > 0) {
		const value = pending.pop();
		if ((typeof value !== "object" && typeof value !== "function") || value === null || seen.has(value)) {
			continue;
		}
		seen.add(value);
		Object.freeze(value);
		pending.push(Object.getPrototypeOf(value));
		for (const key of Reflect.ownKeys(value)) {
			const desc = Reflect.getOwnPropertyDescriptor(value, key);
			if ("value" in desc) {
				pending.push(desc.value);
			} else {
				pending.push(desc.get, desc.set);
			}
		}
	}
	return seen.size;
})`

// intrinsics are the pristine engine objects captured before any script
// runs.
type intrinsics struct {
	*scope.Intrinsics
	objectProto *goja.Object
	fixed       map[string]goja.Value
}

// lockdown captures the intrinsics and freezes the built-ins so scripts
// cannot tamper with objects shared across evaluations.
func lockdown(vm *goja.Runtime) (*intrinsics, error) {
	in, err := scope.CaptureIntrinsics(vm)
	if err != nil {
		return nil, err
	}

	global := vm.GlobalObject()
	fixed := make(map[string]goja.Value, len(fixedNames))
	for _, name := range fixedNames {
		if v := global.Get(name); v != nil {
			fixed[name] = v
		}
	}

	object, ok := fixed["Object"].(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("global Object is missing")
	}
	proto, ok := object.Get("prototype").(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("Object.prototype is missing")
	}

	reals, err := sealConstructors(vm, in)
	if err != nil {
		return nil, err
	}

	freezer, err := vm.RunString(freezeSource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile freezer: %w", err)
	}
	freeze, ok := goja.AssertFunction(freezer)
	if !ok {
		return nil, fmt.Errorf("freezer is not a function")
	}
	if _, err := freeze(goja.Undefined(), global, vm.NewArray(reals...)); err != nil {
		return nil, fmt.Errorf("failed to freeze built-ins: %w", err)
	}

	return &intrinsics{Intrinsics: in, objectProto: proto, fixed: fixed}, nil
}

// sealConstructors replaces the constructor of every function prototype
// with a stub that throws, so literals such as (() => 0).constructor lead
// nowhere. Wrappers map each stub back to the real constructor, whose
// results they wrap. The real constructors are returned for freezing.
func sealConstructors(vm *goja.Runtime, in *scope.Intrinsics) ([]any, error) {
	in.Constructors = make(map[*goja.Object]*goja.Object, len(functionProtos))
	reals := make([]any, 0, len(functionProtos))
	for _, expr := range functionProtos {
		v, err := vm.RunString(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", expr, err)
		}
		proto, ok := v.(*goja.Object)
		if !ok {
			return nil, fmt.Errorf("%s is not an object", expr)
		}
		ctor, ok := proto.Get("constructor").(*goja.Object)
		if !ok {
			return nil, fmt.Errorf("%s has no constructor", expr)
		}
		stub := vm.ToValue(func(goja.FunctionCall) goja.Value {
			panic(vm.NewTypeError(codegenMessage))
		}).(*goja.Object)
		if err := proto.DefineDataProperty("constructor", stub, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
			return nil, fmt.Errorf("failed to seal %s: %w", expr, err)
		}
		in.Constructors[stub] = ctor
		reals = append(reals, ctor)
	}
	return reals, nil
}
