package sandbox

import (
	"maps"
	"math"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/sandbox/scope"
)

// invocation is one in-flight evaluation.
type invocation struct {
	id       string
	req      protocol.Eval
	tracker  *scope.Tracker
	instance *scope.Vars
	wrapper  *scope.Wrapper
	globals  *scope.Root
	this     *scope.Root
	timer    *monitoring.Timer
	logger   *zap.Logger
	revoked  bool
	done     bool
}

// revoke disables both scopes. Script code still holding them fails on
// its next access.
func (inv *invocation) revoke() {
	if inv.revoked {
		return
	}
	inv.revoked = true
	inv.this.Revoke()
	inv.globals.Revoke()
	inv.wrapper.Release()
}

func (s *Sandbox) eval(req protocol.Eval) {
	timer := monitoring.NewTimer(s.metrics)
	logger := s.logger.With(zap.String("invocation_id", req.MessageID))

	prg, err := s.compiler.compile(req.Script)
	if err != nil {
		logger.Debug("Script rejected", zap.Error(err))
		s.emitError(req.MessageID, err)
		timer.Stop(status(err))
		return
	}
	if _, ok := s.active[req.MessageID]; ok {
		err := fault(ErrInvocationConflict, "Invocation ID '%s' is already active", req.MessageID)
		logger.Debug("Invocation rejected", zap.Error(err))
		s.emitError(req.MessageID, err)
		timer.Stop(status(err))
		return
	}

	inv := s.start(req, timer, logger)

	fn, err := s.vm.RunProgram(prg)
	if err != nil {
		s.finish(inv, nil, s.failure(err))
		return
	}
	run, ok := goja.AssertFunction(fn)
	if !ok {
		s.finish(inv, nil, fault(ErrScriptFault, "Script did not compile to a function"))
		return
	}
	promise, err := run(inv.this.Object(), inv.globals.Object())
	if err != nil {
		s.finish(inv, nil, s.failure(err))
		return
	}

	s.await(promise, func(v goja.Value, err error) {
		s.release(inv)
		if err != nil {
			s.finish(inv, nil, err)
			return
		}
		s.normalize(v, func(v goja.Value, err error) {
			s.finish(inv, v, err)
		})
	})
}

// start builds the scopes of a new evaluation and registers it.
func (s *Sandbox) start(req protocol.Eval, timer *monitoring.Timer, logger *zap.Logger) *invocation {
	inv := &invocation{
		id:       req.MessageID,
		req:      req,
		tracker:  scope.NewTracker(s.clock, req.Track),
		instance: s.instance(req.InstanceID),
		wrapper:  scope.NewWrapper(s.vm, s.in.Intrinsics),
		timer:    timer,
		logger:   logger,
	}

	fixed := maps.Clone(s.in.fixed)
	fixed[DelayName] = s.delayFunc(inv)

	locals := make(map[string]goja.Value, len(req.Vars))
	for name, value := range req.Vars {
		locals[name] = s.toScript(value)
	}

	funcs := make(map[string]goja.Value, len(s.funcs))
	for _, name := range s.funcs {
		funcs[name] = s.hostFunc(inv, name)
	}

	inv.globals = scope.NewGlobals(s.vm, scope.GlobalsConfig{
		Fixed:    fixed,
		Locals:   locals,
		Funcs:    funcs,
		Store:    s.globals,
		ReadOnly: req.Idempotent || s.readOnly,
		Tracker:  inv.tracker,
		Wrapper:  inv.wrapper,
	})
	inv.this = scope.NewInstance(s.vm, req.Idempotent, inv.instance)

	s.active[inv.id] = inv
	s.inflight[inv] = struct{}{}
	logger.Debug("Evaluation started",
		zap.String("instance_id", req.InstanceID),
		zap.Bool("idempotent", req.Idempotent),
		zap.Bool("track", req.Track))
	return inv
}

// instance returns the store for instanceID, creating it on first use.
// Evaluations without an instance get a store of their own.
func (s *Sandbox) instance(instanceID string) *scope.Vars {
	if instanceID == "" {
		return scope.NewVars()
	}
	store, ok := s.instances[instanceID]
	if !ok {
		store = scope.NewVars()
		s.instances[instanceID] = store
	}
	return store
}

// release revokes the scopes of inv and unregisters it.
func (s *Sandbox) release(inv *invocation) {
	inv.revoke()
	if s.active[inv.id] == inv {
		delete(s.active, inv.id)
	}
}

// finish sends the single response of inv.
func (s *Sandbox) finish(inv *invocation, v goja.Value, err error) {
	if inv.done {
		return
	}
	inv.done = true
	s.release(inv)
	delete(s.inflight, inv)

	var result any
	if err == nil {
		result, err = s.export(v)
		if err != nil {
			err = s.failure(err)
		}
	}
	refresh := s.takeRefresh(inv.instance)

	if err != nil {
		inv.logger.Debug("Evaluation failed", zap.Error(err))
		inv.timer.Stop(status(err))
		s.emitError(inv.id, err)
		return
	}

	inv.logger.Debug("Evaluation finished")
	inv.timer.Stop("ok")
	s.emit(protocol.Result{
		ResponseHeader: s.reply(inv.id),
		Result:         result,
		Vars:           inv.tracker.Vars(),
		Refresh:        refresh,
	})
}

// takeRefresh consumes the refresh signal of an instance store. Only a
// positive number counts; it is truncated to whole milliseconds.
func (s *Sandbox) takeRefresh(store *scope.Vars) int {
	v, ok := store.Get(scope.RefreshKey)
	if !ok {
		return 0
	}
	store.Delete(scope.RefreshKey)

	var n float64
	switch x := v.Export().(type) {
	case int64:
		n = float64(x)
	case float64:
		n = x
	default:
		return 0
	}
	if math.IsNaN(n) || n < 1 {
		return 0
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}
