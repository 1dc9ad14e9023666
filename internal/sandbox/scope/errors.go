package scope

import (
	"errors"
	"fmt"
)

// ErrViolation classifies every rejected write or delete on a scope.
var ErrViolation = errors.New("scope violation")

// Violation is thrown into the script when it writes or deletes a name it
// is not allowed to touch. Its message is shown to the script verbatim.
type Violation struct {
	Message string
}

func violation(format string, args ...any) *Violation {
	return &Violation{Message: fmt.Sprintf(format, args...)}
}

func (v *Violation) Error() string {
	return v.Message
}

// Is reports ErrViolation as the class of every Violation.
func (v *Violation) Is(target error) bool {
	return target == ErrViolation
}
