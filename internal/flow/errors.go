package flow

import (
	"errors"
	"fmt"
)

// IntakeError reports an invalid intake field. Recoverable: the form is
// re-shown with the message next to the offending control.
type IntakeError struct {
	Field  string
	Reason string
}

func (e *IntakeError) Error() string {
	return fmt.Sprintf("intake field %s: %s", e.Field, e.Reason)
}

// SaveError wraps a sink failure that blocked an advance. The participant
// retries the identical submission; nothing is retried automatically.
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string { return fmt.Sprintf("save response: %v", e.Err) }
func (e *SaveError) Unwrap() error { return e.Err }

var (
	// ErrNotAllowed marks an action that the current phase or step does not
	// permit. The state is unchanged.
	ErrNotAllowed = errors.New("action not allowed in current state")

	// ErrAlreadyAnswered marks a second submission to a question whose
	// feedback is still pending acknowledgement.
	ErrAlreadyAnswered = errors.New("question already answered")

	// ErrQuizFailed marks an attempt to enter the main study below the
	// passing threshold.
	ErrQuizFailed = errors.New("quiz score below passing threshold")
)
