package host

import (
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
)

// Endpoint is one side of a sandbox conversation.
type Endpoint interface {
	Post(msg protocol.Message) error
	Listen(l func(protocol.Message) error) func()
}
