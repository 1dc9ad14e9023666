package sandbox

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/sandbox/scope"
)

// Failure classes. Every failure reaches the host as an error message;
// the class is kept for Go callers and metrics.
var (
	ErrProtocolViolation  = errors.New("protocol violation")
	ErrScopeViolation     = scope.ErrViolation
	ErrInvocationConflict = errors.New("invocation conflict")
	ErrTimeout            = errors.New("timeout")
	ErrScriptFault        = errors.New("script fault")
	ErrSubscriberFault    = errors.New("subscriber fault")
)

// Fault is a classified failure with the message sent to the host.
type Fault struct {
	Kind    error
	Message string
}

func fault(kind error, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (f *Fault) Error() string {
	return f.Message
}

// Is matches the fault's class.
func (f *Fault) Is(target error) bool {
	return target == f.Kind
}

// kindOf returns the class of err, ErrScriptFault when unknown.
func kindOf(err error) error {
	for _, kind := range []error{
		ErrProtocolViolation,
		ErrScopeViolation,
		ErrInvocationConflict,
		ErrTimeout,
		ErrSubscriberFault,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrScriptFault
}

// status is the metrics label for an evaluation outcome.
func status(err error) string {
	switch kindOf(err) {
	case ErrScopeViolation:
		return "scope_violation"
	case ErrInvocationConflict:
		return "conflict"
	case ErrTimeout:
		return "timeout"
	default:
		return "error"
	}
}
