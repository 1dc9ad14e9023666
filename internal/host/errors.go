package host

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by requests on a closed client.
	ErrClosed = errors.New("host client closed")
	// ErrUnexpectedResponse is returned when the sandbox answers with the
	// wrong kind of message.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// EvalError is a script failure reported by the sandbox.
type EvalError struct {
	RequestID string
	Message   string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluation %s failed: %s", e.RequestID, e.Message)
}
