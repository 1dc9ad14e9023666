package ws

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/id"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// HandlerConfig configures the sandboxes and limits of every connection.
type HandlerConfig struct {
	Sandbox sandbox.Config
	// AllowedFuncs are doublestar patterns host function names must match.
	AllowedFuncs []string
	// MessagesPerSecond limits inbound frames per connection; zero disables it.
	MessagesPerSecond float64
	Burst             int
	// MaxMessageSize caps inbound frames in bytes.
	MaxMessageSize int64
}

// DefaultHandlerConfig allows every function and limits each connection
// to 100 messages per second.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		Sandbox:           sandbox.DefaultConfig(),
		AllowedFuncs:      []string{"**"},
		MessagesPerSecond: 100,
		Burst:             200,
		MaxMessageSize:    4 << 20,
	}
}

// HandlerConfigFrom builds a handler configuration from application settings.
func HandlerConfigFrom(cfg *config.Config) HandlerConfig {
	hc := DefaultHandlerConfig()
	hc.Sandbox = sandbox.FromSettings(cfg.Sandbox)
	if len(cfg.Sandbox.AllowedFuncs) > 0 {
		hc.AllowedFuncs = cfg.Sandbox.AllowedFuncs
	}
	if cfg.RateLimit.Enabled {
		hc.MessagesPerSecond = float64(cfg.RateLimit.RequestsPerSecond)
		hc.Burst = cfg.RateLimit.Burst
	} else {
		hc.MessagesPerSecond = 0
	}
	return hc
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithMetrics records connection, message and sandbox metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// Handler serves sandbox connections.
type Handler struct {
	cfg      HandlerConfig
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader
}

// NewHandler creates a handler. Invalid allowlist patterns are rejected.
func NewHandler(cfg HandlerConfig, opts ...Option) (*Handler, error) {
	for _, pattern := range cfg.AllowedFuncs {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid function pattern %q", pattern)
		}
	}
	h := &Handler{
		cfg:    cfg,
		logger: zap.NewNop(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// HandleConnection upgrades the request and serves one sandbox until the
// peer disconnects.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	connID := id.NewConnectionID()
	logger := h.logger.With(zap.String("conn_id", connID.String()))

	sb, err := sandbox.New(h.cfg.Sandbox, sandbox.WithLogger(logger), sandbox.WithMetrics(h.metrics))
	if err != nil {
		logger.Error("Failed to create sandbox", zap.Error(err))
		_ = conn.Close()
		return
	}

	s := &session{
		conn:    conn,
		sb:      sb,
		logger:  logger,
		metrics: h.metrics,
		ids:     id.NewSequence("ws"),
		done:    make(chan struct{}),
	}
	if h.cfg.MessagesPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSecond), max(h.cfg.Burst, 1))
	}

	h.metrics.IncWSConnections()
	logger.Info("Sandbox connection opened", zap.String("remote", c.ClientIP()))
	defer func() {
		s.close()
		h.metrics.DecWSConnections()
		logger.Info("Sandbox connection closed")
	}()

	stop := sb.Listen(s.write)
	defer stop()

	go s.keepAlive()
	h.readLoop(s)
}

func (h *Handler) readLoop(s *session) {
	if h.cfg.MaxMessageSize > 0 {
		s.conn.SetReadLimit(h.cfg.MaxMessageSize)
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		msg, err := protocol.Unmarshal(data)
		if err != nil {
			h.metrics.RecordWSMessage("in", "malformed")
			s.logger.Debug("Dropping malformed frame", zap.Error(err))
			s.fail("", "Malformed message")
			continue
		}
		h.metrics.RecordWSMessage("in", string(msg.Kind()))

		if s.limiter != nil && !s.limiter.Allow() {
			s.fail(msg.ID(), "Rate limit exceeded")
			continue
		}
		if init, ok := msg.(protocol.Init); ok {
			if name, ok := h.forbidden(init.Funcs); ok {
				s.fail(init.MessageID, fmt.Sprintf("Host function '%s' is not permitted", name))
				continue
			}
		}

		if err := s.sb.Post(msg); err != nil {
			s.logger.Warn("Failed to deliver sandbox output", zap.Error(err))
			return
		}
	}
}

// forbidden returns the first name no allowlist pattern matches.
func (h *Handler) forbidden(funcs []string) (string, bool) {
	for _, name := range funcs {
		allowed := false
		for _, pattern := range h.cfg.AllowedFuncs {
			if ok, _ := doublestar.Match(pattern, name); ok {
				allowed = true
				break
			}
		}
		if !allowed {
			return name, true
		}
	}
	return "", false
}

// session is one connection and its sandbox.
type session struct {
	conn    *websocket.Conn
	sb      *sandbox.Sandbox
	logger  *zap.Logger
	metrics *monitoring.Metrics
	limiter *rate.Limiter
	ids     *id.Sequence

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// write sends msg to the peer. Sandbox timers call it from their own
// goroutines, so writes are serialized.
func (s *session) write(msg protocol.Message) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Kind(), err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", msg.Kind(), err)
	}
	s.metrics.RecordWSMessage("out", string(msg.Kind()))
	return nil
}

// fail answers a frame the sandbox never sees.
func (s *session) fail(inResponseTo, message string) {
	err := s.write(protocol.Error{
		ResponseHeader: protocol.Reply(s.ids.Next(), inResponseTo),
		Message:        message,
	})
	if err != nil {
		s.logger.Debug("Failed to send error", zap.Error(err))
	}
}

func (s *session) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.sb.Close()
		_ = s.conn.Close()
	})
}
