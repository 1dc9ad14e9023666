package sandbox

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// watchdog interrupts the engine when one synchronous slice of script
// execution runs longer than its limit.
type watchdog struct {
	vm     *goja.Runtime
	limit  time.Duration
	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	armed  bool
	fired  bool
	reason string
}

func newWatchdog(vm *goja.Runtime, limit time.Duration) *watchdog {
	return &watchdog{
		vm:     vm,
		limit:  limit,
		reason: fmt.Sprintf("execution time limit of %s exceeded", limit),
	}
}

func (w *watchdog) arm() {
	if w.limit <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.gen++
	w.armed = true
	w.fired = false
	gen := w.gen
	w.timer = time.AfterFunc(w.limit, func() { w.fire(gen) })
}

func (w *watchdog) fire(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.armed || gen != w.gen {
		return
	}
	w.fired = true
	w.vm.Interrupt(w.reason)
}

// disarm stops the timer. An interrupt that fired after the script had
// already returned is cleared so it cannot hit the next slice.
func (w *watchdog) disarm() {
	if w.limit <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.armed = false
	w.timer.Stop()
	if w.fired {
		w.vm.ClearInterrupt()
		w.fired = false
	}
}

// uncatchable reports errors that abort the engine and drop its job queue.
func uncatchable(err error) bool {
	var interrupted *goja.InterruptedError
	var overflow *goja.StackOverflowError
	return errors.As(err, &interrupted) || errors.As(err, &overflow)
}

func interruptReason(err error) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprint(interrupted.Value())
	}
	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return "maximum call stack size exceeded"
	}
	return err.Error()
}
