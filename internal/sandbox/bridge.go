package sandbox

import (
	"math"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
)

// pending is an outbound request waiting for its response.
type pending struct {
	request protocol.Message
	timer   *time.Timer
	respond func(protocol.Response, error)
}

// request sends msg to the host and calls respond exactly once with the
// response or a timeout error. A zero timeout waits forever.
func (s *Sandbox) request(msg protocol.Message, timeout time.Duration, respond func(protocol.Response, error)) {
	key := msg.ID()
	p := &pending{request: msg, respond: respond}
	s.pending[key] = p

	if timeout > 0 {
		p.timer = time.AfterFunc(timeout, func() {
			s.enter(func() {
				if s.pending[key] != p {
					return
				}
				delete(s.pending, key)
				s.logger.Debug("Host request timed out",
					zap.String("kind", string(msg.Kind())),
					zap.String("message_id", key),
					zap.Duration("timeout", timeout))
				respond(nil, fault(ErrTimeout, "Did not receive a response within the specified timeout"))
			})
			if err := s.flush(); err != nil {
				s.logger.Warn("Failed to deliver message", zap.Error(err))
			}
		})
	}
	s.emit(msg)
}

// unexpected builds the error for a response of the wrong kind.
func unexpected(resp protocol.Response, req protocol.Message) error {
	if e, ok := resp.(protocol.Error); ok {
		return fault(ErrScriptFault, "%s", e.Message)
	}
	return fault(ErrProtocolViolation, "Received unexpected response '%s' to request '%s'", resp.Kind(), req.Kind())
}

// rejectWith rejects a script promise with err as an Error object.
func (s *Sandbox) rejectWith(reject func(any) error, err error) {
	s.note(reject(s.vm.NewGoError(err)))
}

// hostFunc returns the callable a script uses to invoke host function key.
// Arguments are normalized before the call is sent; the result is
// delivered through a promise. Once inv is over the callable only rejects.
func (s *Sandbox) hostFunc(inv *invocation, key string) goja.Value {
	return s.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		promise, resolve, reject := s.vm.NewPromise()
		if inv.revoked {
			s.rejectWith(reject, fault(ErrScriptFault, "Host function '%s' was called after its evaluation finished", key))
			return s.vm.ToValue(promise)
		}

		items := make([]any, len(call.Arguments))
		for i, arg := range call.Arguments {
			items[i] = arg
		}
		s.normalize(s.vm.NewArray(items...), func(v goja.Value, err error) {
			if err != nil {
				s.rejectWith(reject, err)
				return
			}
			exported, err := s.export(v)
			if err != nil {
				s.rejectWith(reject, s.failure(err))
				return
			}
			args, _ := exported.([]any)
			if args == nil {
				args = []any{}
			}

			msg := protocol.Call{
				Header:        protocol.Header{MessageID: s.ids.Next()},
				Key:           key,
				Args:          args,
				Idempotent:    inv.req.Idempotent,
				CorrelationID: inv.id,
				Written:       inv.tracker.Written(),
			}
			s.request(msg, s.cfg.CallTimeout, func(resp protocol.Response, err error) {
				if err == nil {
					if result, ok := resp.(protocol.CallResult); ok {
						s.metrics.RecordHostRequest(string(protocol.KindCall), "ok")
						s.note(resolve(s.toScript(result.Result)))
						return
					}
					err = unexpected(resp, msg)
				}
				s.metrics.RecordHostRequest(string(protocol.KindCall), status(err))
				s.rejectWith(reject, err)
			})
		})
		return s.vm.ToValue(promise)
	})
}

// delayFunc returns delay(ms) for inv: yield to the host, then wait out
// whatever part of ms the round trip did not use.
func (s *Sandbox) delayFunc(inv *invocation) goja.Value {
	return s.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		promise, resolve, reject := s.vm.NewPromise()
		if inv.revoked {
			s.rejectWith(reject, fault(ErrScriptFault, "%s was called after its evaluation finished", DelayName))
			return s.vm.ToValue(promise)
		}
		total := millis(call.Argument(0))
		start := time.Now()

		wait := func() {
			remaining := total - time.Since(start)
			if remaining <= 0 {
				s.note(resolve(goja.Undefined()))
				return
			}
			s.after(remaining, func() {
				s.note(resolve(goja.Undefined()))
			})
		}

		if s.cfg.DisableYield {
			wait()
			return s.vm.ToValue(promise)
		}

		msg := protocol.Yield{
			Header:        protocol.Header{MessageID: s.ids.Next()},
			CorrelationID: inv.id,
			Written:       inv.tracker.Written(),
		}
		s.request(msg, s.cfg.YieldTimeout, func(resp protocol.Response, err error) {
			if err == nil {
				if _, ok := resp.(protocol.YieldAck); ok {
					s.metrics.RecordHostRequest(string(protocol.KindYield), "ok")
					wait()
					return
				}
				err = unexpected(resp, msg)
			}
			s.metrics.RecordHostRequest(string(protocol.KindYield), status(err))
			s.rejectWith(reject, err)
		})
		return s.vm.ToValue(promise)
	})
}

// millis converts a script number of milliseconds. Missing, negative and
// non-numeric values mean zero.
func millis(v goja.Value) time.Duration {
	if v == nil || goja.IsUndefined(v) {
		return 0
	}
	ms := v.ToFloat()
	if math.IsNaN(ms) || ms <= 0 {
		return 0
	}
	if ms >= float64(math.MaxInt64/int64(time.Millisecond)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms * float64(time.Millisecond))
}
