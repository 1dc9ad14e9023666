package sandbox

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
)

func (s *Sandbox) dispatch(msg protocol.Message) {
	if resp, ok := msg.(protocol.Response); ok {
		s.resolve(resp)
		return
	}

	switch m := msg.(type) {
	case protocol.Ping:
		s.emit(protocol.Pong{ResponseHeader: s.reply(m.MessageID)})
	case protocol.Init:
		s.initialize(m)
	case protocol.Eval:
		s.eval(m)
	default:
		s.logger.Debug("Unsupported request",
			zap.String("kind", string(msg.Kind())),
			zap.String("message_id", msg.ID()))
		s.emitError(msg.ID(), fault(ErrProtocolViolation, "Unsupported request: %s", msg.Kind()))
	}
}

// initialize fixes the host function set. Only the first init counts.
func (s *Sandbox) initialize(m protocol.Init) {
	if s.initialized {
		s.emitError(m.MessageID, fault(ErrProtocolViolation, "Sandbox is already initialized"))
		return
	}
	s.initialized = true
	s.readOnly = m.ReadOnlyGlobals
	seen := make(map[string]bool, len(m.Funcs))
	for _, name := range m.Funcs {
		if !seen[name] {
			seen[name] = true
			s.funcs = append(s.funcs, name)
		}
	}
	s.logger.Debug("Sandbox initialized",
		zap.Strings("funcs", s.funcs),
		zap.Bool("read_only_globals", s.readOnly))
	s.emit(protocol.Ready{ResponseHeader: s.reply(m.MessageID)})
}

// resolve hands a response to the pending request it answers. Responses
// nobody waits for are dropped.
func (s *Sandbox) resolve(resp protocol.Response) {
	key := resp.RespondsTo()
	p, ok := s.pending[key]
	if !ok {
		s.logger.Debug("Dropping unsolicited response",
			zap.String("kind", string(resp.Kind())),
			zap.String("in_response_to", key))
		return
	}
	delete(s.pending, key)
	if p.timer != nil {
		p.timer.Stop()
	}
	p.respond(resp, nil)
}
