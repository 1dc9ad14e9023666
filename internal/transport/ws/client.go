package ws

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
)

// ErrClientClosed is returned by Post after Close.
var ErrClientClosed = errors.New("websocket client closed")

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client logger.
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// Client is the host end of a sandbox connection.
type Client struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	listenMu  sync.RWMutex
	listeners map[uint64]func(protocol.Message) error
	nextID    uint64

	done      chan struct{}
	err       error
	closeOnce sync.Once
}

// Dial connects to a sandbox server.
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	c := &Client{
		conn:      conn,
		logger:    zap.NewNop(),
		listeners: make(map[uint64]func(protocol.Message) error),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c, nil
}

// Post sends msg to the sandbox.
func (c *Client) Post(msg protocol.Message) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	data, err := protocol.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Kind(), err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Listen subscribes to messages from the sandbox.
func (c *Client) Listen(l func(protocol.Message) error) func() {
	c.listenMu.Lock()
	c.nextID++
	key := c.nextID
	c.listeners[key] = l
	c.listenMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listenMu.Lock()
			delete(c.listeners, key)
			c.listenMu.Unlock()
		})
	}
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

// Close sends a close frame and waits for the read loop to stop.
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	if err != nil {
		_ = c.conn.Close()
	}

	select {
	case <-c.done:
	case <-time.After(writeWait):
		_ = c.conn.Close()
		<-c.done
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.closeOnce.Do(func() {
		_ = c.conn.Close()
		close(c.done)
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.err = err
			}
			return
		}

		msg, err := protocol.Unmarshal(data)
		if err != nil {
			c.logger.Warn("Dropping malformed frame", zap.Error(err))
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg protocol.Message) {
	c.listenMu.RLock()
	keys := make([]uint64, 0, len(c.listeners))
	for key := range c.listeners {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	listeners := make([]func(protocol.Message) error, len(keys))
	for i, key := range keys {
		listeners[i] = c.listeners[key]
	}
	c.listenMu.RUnlock()

	for _, l := range listeners {
		if err := l(msg); err != nil {
			c.logger.Warn("Listener failed",
				zap.String("kind", string(msg.Kind())),
				zap.String("message_id", msg.ID()),
				zap.Error(err))
		}
	}
}
