package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
)

const waitFor = 5 * time.Second

type harness struct {
	t    *testing.T
	sb   *Sandbox
	msgs chan protocol.Message
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	sb, err := New(cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	h := &harness{t: t, sb: sb, msgs: make(chan protocol.Message, 256)}
	sb.Listen(func(msg protocol.Message) error {
		h.msgs <- msg
		return nil
	})
	t.Cleanup(func() { _ = sb.Close() })
	return h
}

func noYield(cfg *Config) { cfg.DisableYield = true }

func (h *harness) post(msg protocol.Message) {
	h.t.Helper()
	require.NoError(h.t, h.sb.Post(msg))
}

func (h *harness) next() protocol.Message {
	h.t.Helper()
	select {
	case msg := <-h.msgs:
		return msg
	case <-time.After(waitFor):
		h.t.Fatal("timed out waiting for an outbound message")
		return nil
	}
}

func (h *harness) quiet(d time.Duration) {
	h.t.Helper()
	select {
	case msg := <-h.msgs:
		h.t.Fatalf("unexpected outbound message %#v", msg)
	case <-time.After(d):
	}
}

func (h *harness) init(funcs ...string) {
	h.t.Helper()
	h.post(protocol.Init{Header: protocol.Header{MessageID: "init"}, Funcs: funcs})
	_, ok := h.next().(protocol.Ready)
	require.True(h.t, ok)
}

// start posts an eval without waiting for its response.
func (h *harness) start(req protocol.Eval) {
	h.t.Helper()
	if req.MessageID == "" {
		req.MessageID = "req"
	}
	h.post(req)
}

// eval posts an eval and returns its response.
func (h *harness) eval(req protocol.Eval) protocol.Response {
	h.t.Helper()
	h.start(req)
	return h.response(req.MessageID)
}

// script evaluates a plain script and returns its response.
func (h *harness) script(src string) protocol.Response {
	h.t.Helper()
	return h.eval(protocol.Eval{Header: protocol.Header{MessageID: "req"}, Script: src})
}

func (h *harness) response(inResponseTo string) protocol.Response {
	h.t.Helper()
	if inResponseTo == "" {
		inResponseTo = "req"
	}
	for {
		msg := h.next()
		if resp, ok := msg.(protocol.Response); ok && resp.RespondsTo() == inResponseTo {
			return resp
		}
	}
}

func (h *harness) result(resp protocol.Response) protocol.Result {
	h.t.Helper()
	if e, ok := resp.(protocol.Error); ok {
		h.t.Fatalf("evaluation failed: %s", e.Message)
	}
	res, ok := resp.(protocol.Result)
	require.True(h.t, ok, "got %T", resp)
	return res
}

func (h *harness) failure(resp protocol.Response) string {
	h.t.Helper()
	e, ok := resp.(protocol.Error)
	require.True(h.t, ok, "got %#v", resp)
	return e.Message
}

func (h *harness) call() protocol.Call {
	h.t.Helper()
	c, ok := h.next().(protocol.Call)
	require.True(h.t, ok)
	return c
}

func (h *harness) yield() protocol.Yield {
	h.t.Helper()
	y, ok := h.next().(protocol.Yield)
	require.True(h.t, ok)
	return y
}
