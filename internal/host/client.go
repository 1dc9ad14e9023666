package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/id"
)

// YieldHook runs before a yield is acknowledged. Returning an error
// answers the yield with that error, which fails the script's delay call.
type YieldHook func(ctx context.Context, y protocol.Yield) error

// EvalRequest describes one evaluation.
type EvalRequest struct {
	Script     string
	InstanceID string
	Idempotent bool
	Track      bool
	Vars       map[string]any
}

// Result is the outcome of a successful evaluation.
type Result struct {
	Value   any
	Vars    protocol.Tracking
	Refresh int
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics records host call metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBreakers replaces the per-function circuit breakers.
func WithBreakers(set *resilience.Set) Option {
	return func(c *Client) { c.breakers = set }
}

// WithYieldHook interposes on every yield.
func WithYieldHook(hook YieldHook) Option {
	return func(c *Client) { c.yieldHook = hook }
}

// WithEvalTimeout bounds evaluations whose context has no deadline.
func WithEvalTimeout(d time.Duration) Option {
	return func(c *Client) { c.evalTimeout = d }
}

// Breakers builds a breaker set that opens a function's breaker after
// failures consecutive errors and retries after timeout.
func Breakers(failures uint32, timeout time.Duration) *resilience.Set {
	return resilience.NewSet(resilience.Settings{
		Timeout:     timeout,
		ReadyToTrip: resilience.TripAfter(failures),
	})
}

// Client drives one sandbox endpoint.
type Client struct {
	ep          Endpoint
	reg         *Registry
	logger      *zap.Logger
	metrics     *monitoring.Metrics
	breakers    *resilience.Set
	yieldHook   YieldHook
	evalTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	stop   func()
	wg     sync.WaitGroup

	mu      sync.Mutex
	waiting map[string]chan protocol.Response
	closed  bool
}

// NewClient subscribes to ep and starts answering host requests with the
// functions in reg.
func NewClient(ep Endpoint, reg *Registry, opts ...Option) *Client {
	if reg == nil {
		reg = NewRegistry()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		ep:       ep,
		reg:      reg,
		logger:   zap.NewNop(),
		breakers: Breakers(5, 30*time.Second),
		ctx:      ctx,
		cancel:   cancel,
		waiting:  make(map[string]chan protocol.Response),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stop = ep.Listen(c.receive)
	return c
}

// Init announces the registered functions. With readOnly, scripts cannot
// modify the global store.
func (c *Client) Init(ctx context.Context, readOnly bool) error {
	resp, err := c.roundTrip(ctx, func(reqID string) protocol.Message {
		return protocol.Init{
			Header:          protocol.Header{MessageID: reqID},
			Funcs:           c.reg.Names(),
			ReadOnlyGlobals: readOnly,
		}
	})
	if err != nil {
		return err
	}
	switch r := resp.(type) {
	case protocol.Ready:
		return nil
	case protocol.Error:
		return fmt.Errorf("init rejected: %w", r)
	default:
		return fmt.Errorf("%w '%s' to init", ErrUnexpectedResponse, resp.Kind())
	}
}

// Ping checks that the sandbox answers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.roundTrip(ctx, func(reqID string) protocol.Message {
		return protocol.Ping{Header: protocol.Header{MessageID: reqID}}
	})
	if err != nil {
		return err
	}
	if _, ok := resp.(protocol.Pong); !ok {
		return fmt.Errorf("%w '%s' to ping", ErrUnexpectedResponse, resp.Kind())
	}
	return nil
}

// Eval runs a script. A script failure is returned as *EvalError.
func (c *Client) Eval(ctx context.Context, req EvalRequest) (*Result, error) {
	if _, ok := ctx.Deadline(); !ok && c.evalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.evalTimeout)
		defer cancel()
	}

	var reqID string
	resp, err := c.roundTrip(ctx, func(id string) protocol.Message {
		reqID = id
		return protocol.Eval{
			Header:     protocol.Header{MessageID: id},
			Script:     req.Script,
			InstanceID: req.InstanceID,
			Idempotent: req.Idempotent,
			Track:      req.Track,
			Vars:       req.Vars,
		}
	})
	if err != nil {
		return nil, err
	}

	switch r := resp.(type) {
	case protocol.Result:
		return &Result{Value: r.Result, Vars: r.Vars, Refresh: r.Refresh}, nil
	case protocol.Error:
		return nil, &EvalError{RequestID: reqID, Message: r.Message}
	default:
		return nil, fmt.Errorf("%w '%s' to eval", ErrUnexpectedResponse, resp.Kind())
	}
}

// Close stops answering requests, cancels running host functions and
// fails requests still waiting for a response.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stop()
	c.cancel()
	c.wg.Wait()
	return nil
}

// roundTrip posts the message built by build and waits for its response.
// The waiter is registered first because an in-process sandbox answers
// before Post returns.
func (c *Client) roundTrip(ctx context.Context, build func(reqID string) protocol.Message) (protocol.Response, error) {
	reqID := id.NewRequestID().String()
	ch := make(chan protocol.Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.waiting[reqID] = ch
	c.mu.Unlock()
	defer c.forget(reqID)

	msg := build(reqID)
	if err := c.ep.Post(msg); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", msg.Kind(), err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrClosed
	}
}

func (c *Client) forget(reqID string) {
	c.mu.Lock()
	delete(c.waiting, reqID)
	c.mu.Unlock()
}

// receive handles every message coming out of the endpoint. Host
// requests are served on their own goroutines so a slow function never
// blocks delivery.
func (c *Client) receive(msg protocol.Message) error {
	if resp, ok := msg.(protocol.Response); ok {
		c.mu.Lock()
		ch, ok := c.waiting[resp.RespondsTo()]
		delete(c.waiting, resp.RespondsTo())
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
		return nil
	}

	switch m := msg.(type) {
	case protocol.Call:
		c.serve(func() { c.serveCall(m) })
	case protocol.Yield:
		c.serve(func() { c.serveYield(m) })
	default:
		c.logger.Debug("Ignoring sandbox message",
			zap.String("kind", string(msg.Kind())),
			zap.String("message_id", msg.ID()))
	}
	return nil
}

func (c *Client) serve(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *Client) serveCall(call protocol.Call) {
	logger := c.logger.With(
		zap.String("function", call.Key),
		zap.String("correlation_id", call.CorrelationID))

	fn, ok := c.reg.Get(call.Key)
	if !ok {
		c.metrics.RecordHostCall(call.Key, "unknown")
		c.reply(protocol.Error{
			ResponseHeader: c.header(call.MessageID),
			Message:        fmt.Sprintf("Host function '%s' is not registered", call.Key),
		})
		return
	}

	start := time.Now()
	result, err := c.breakers.Execute(c.ctx, call.Key, func(ctx context.Context) (any, error) {
		return fn(ctx, call)
	})
	if err != nil {
		logger.Debug("Host function failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		c.metrics.RecordHostCall(call.Key, "error")
		c.reply(protocol.Error{ResponseHeader: c.header(call.MessageID), Message: err.Error()})
		return
	}

	logger.Debug("Host function finished", zap.Duration("duration", time.Since(start)))
	c.metrics.RecordHostCall(call.Key, "ok")
	c.reply(protocol.CallResult{ResponseHeader: c.header(call.MessageID), Result: result})
}

func (c *Client) serveYield(y protocol.Yield) {
	if c.yieldHook != nil {
		if err := c.yieldHook(c.ctx, y); err != nil {
			c.reply(protocol.Error{ResponseHeader: c.header(y.MessageID), Message: err.Error()})
			return
		}
	}
	c.reply(protocol.YieldAck{ResponseHeader: c.header(y.MessageID)})
}

func (c *Client) header(inResponseTo string) protocol.ResponseHeader {
	return protocol.Reply(id.NewRequestID().String(), inResponseTo)
}

func (c *Client) reply(msg protocol.Message) {
	if c.ctx.Err() != nil {
		return
	}
	if err := c.ep.Post(msg); err != nil {
		c.logger.Warn("Failed to answer sandbox request",
			zap.String("kind", string(msg.Kind())),
			zap.Error(err))
	}
}
