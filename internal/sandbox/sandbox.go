package sandbox

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/sandbox/scope"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/id"
)

// Listener receives every outbound message. A returned error or a panic
// is logged and does not stop delivery to other listeners.
type Listener = func(protocol.Message) error

// Sandbox evaluates scripts against synthetic scopes and talks to its host
// through protocol messages.
type Sandbox struct {
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	// mu is the engine lock. It guards the runtime and all state below.
	mu       sync.Mutex
	vm       *goja.Runtime
	in       *intrinsics
	compiler *compiler
	watchdog *watchdog
	ids      *id.Sequence

	clock     *scope.Clock
	globals   *scope.Vars
	instances map[string]*scope.Vars

	initialized bool
	funcs       []string
	readOnly    bool

	active   map[string]*invocation
	inflight map[*invocation]struct{}
	pending  map[string]*pending
	timers   map[*time.Timer]struct{}
	aborted  error
	disposed bool
	closed   bool

	outMu    sync.Mutex
	outbox   []protocol.Message
	draining bool

	listenMu  sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64
}

// New creates a sandbox with its own engine.
func New(cfg Config, opts ...Option) (*Sandbox, error) {
	cfg = cfg.withDefaults()
	vm := goja.New()
	if cfg.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(cfg.MaxCallStackSize)
	}

	in, err := lockdown(vm)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare engine: %w", err)
	}

	s := &Sandbox{
		cfg:       cfg,
		logger:    zap.NewNop(),
		vm:        vm,
		in:        in,
		watchdog:  newWatchdog(vm, cfg.ExecTimeout),
		ids:       id.NewSequence(cfg.MessagePrefix),
		clock:     &scope.Clock{},
		globals:   scope.NewVars(),
		instances: make(map[string]*scope.Vars),
		active:    make(map[string]*invocation),
		inflight:  make(map[*invocation]struct{}),
		pending:   make(map[string]*pending),
		timers:    make(map[*time.Timer]struct{}),
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.compiler = newCompiler(cfg.CacheSize, s.metrics)
	return s, nil
}

// Post delivers an inbound message. Responses to it are sent to listeners,
// in order, before Post returns unless another goroutine is already
// delivering. The error is non-nil only when every listener failed for a
// message delivered during this call. After Dispose, Post does nothing.
func (s *Sandbox) Post(msg protocol.Message) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrProtocolViolation)
	}
	if !s.enter(func() { s.dispatch(msg) }) {
		return nil
	}
	return s.flush()
}

// Listen subscribes to outbound messages. The returned function removes
// the subscription and may be called any number of times.
func (s *Sandbox) Listen(l Listener) func() {
	s.listenMu.Lock()
	s.nextID++
	key := s.nextID
	s.listeners[key] = l
	s.listenMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenMu.Lock()
			delete(s.listeners, key)
			s.listenMu.Unlock()
		})
	}
}

// Dispose stops all traffic and revokes the scopes of every active
// evaluation. Global and instance stores are kept.
func (s *Sandbox) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispose()
}

func (s *Sandbox) dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	for _, inv := range s.active {
		inv.revoke()
	}
	clear(s.active)
	s.logger.Debug("Sandbox disposed")
}

// Close disposes the sandbox, stops its timers and drops pending host
// requests.
func (s *Sandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dispose()
	if s.closed {
		return nil
	}
	s.closed = true
	for t := range s.timers {
		t.Stop()
	}
	clear(s.timers)
	for key, p := range s.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(s.pending, key)
	}
	clear(s.inflight)
	return nil
}

// Disposed reports whether Dispose or Close was called.
func (s *Sandbox) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// enter runs fn with the engine lock held and the watchdog armed. It
// returns false without running fn once the sandbox is disposed.
func (s *Sandbox) enter(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return false
	}
	s.slice(fn)
	return true
}

// slice runs one synchronous stretch of engine work. If the engine was
// interrupted its job queue is gone, so every in-flight evaluation fails.
func (s *Sandbox) slice(fn func()) {
	s.watchdog.arm()
	fn()
	s.watchdog.disarm()

	if s.aborted == nil {
		return
	}
	err := fault(ErrScriptFault, "Script execution interrupted: %s", interruptReason(s.aborted))
	s.aborted = nil
	s.logger.Warn("Script execution interrupted", zap.String("reason", err.Message))

	stuck := make([]*invocation, 0, len(s.inflight))
	for inv := range s.inflight {
		stuck = append(stuck, inv)
	}
	slices.SortFunc(stuck, func(a, b *invocation) int {
		return cmp.Compare(a.id, b.id)
	})
	for _, inv := range stuck {
		s.finish(inv, nil, err)
	}
}

// after runs fn inside the engine once d has elapsed.
func (s *Sandbox) after(d time.Duration, fn func()) {
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.enter(func() {
			delete(s.timers, t)
			fn()
		})
		if err := s.flush(); err != nil {
			s.logger.Warn("Failed to deliver message", zap.Error(err))
		}
	})
	s.timers[t] = struct{}{}
}

// emit queues msg for delivery. Callers hold the engine lock.
func (s *Sandbox) emit(msg protocol.Message) {
	s.outMu.Lock()
	s.outbox = append(s.outbox, msg)
	s.outMu.Unlock()
}

func (s *Sandbox) reply(inResponseTo string) protocol.ResponseHeader {
	return protocol.Reply(s.ids.Next(), inResponseTo)
}

func (s *Sandbox) emitError(inResponseTo string, err error) {
	s.emit(protocol.Error{ResponseHeader: s.reply(inResponseTo), Message: err.Error()})
}

// flush delivers queued messages. Only one goroutine drains at a time, so
// messages reach listeners in the order they were emitted.
func (s *Sandbox) flush() error {
	s.outMu.Lock()
	if s.draining {
		s.outMu.Unlock()
		return nil
	}
	s.draining = true

	var errs []error
	for len(s.outbox) > 0 {
		msg := s.outbox[0]
		s.outbox[0] = nil
		s.outbox = s.outbox[1:]
		s.outMu.Unlock()

		if err := s.deliver(msg); err != nil {
			errs = append(errs, err)
		}

		s.outMu.Lock()
	}
	s.outbox = nil
	s.draining = false
	s.outMu.Unlock()
	return errors.Join(errs...)
}

func (s *Sandbox) deliver(msg protocol.Message) error {
	s.listenMu.RLock()
	keys := make([]uint64, 0, len(s.listeners))
	for key := range s.listeners {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	listeners := make([]Listener, len(keys))
	for i, key := range keys {
		listeners[i] = s.listeners[key]
	}
	s.listenMu.RUnlock()

	if len(listeners) == 0 {
		return nil
	}

	var errs []error
	for _, l := range listeners {
		if err := s.notify(l, msg); err != nil {
			s.logger.Warn("Sandbox listener failed",
				zap.String("kind", string(msg.Kind())),
				zap.String("message_id", msg.ID()),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) < len(listeners) {
		return nil
	}
	return fmt.Errorf("%w: every listener failed for %s '%s': %w",
		ErrSubscriberFault, msg.Kind(), msg.ID(), errors.Join(errs...))
}

func (s *Sandbox) notify(l Listener, msg protocol.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l(msg)
}
